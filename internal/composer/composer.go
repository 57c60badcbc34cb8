// Package composer turns a generation request into prompt text, consulting
// the prompt history so creative prompts keep moving to new subjects.
package composer

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"frameart/internal/domain"
	"frameart/internal/history"
	"frameart/internal/infra"
	"frameart/internal/providers/prompt"
)

// DefaultMaxAttempts bounds creative requests per composition.
const DefaultMaxAttempts = 3

// QuirkWeights are the relative odds of each quirkiness level.
var QuirkWeights = [4]int{0, 6, 3, 1}

type Options struct {
	History      *history.History
	Writer       prompt.Writer
	Styles       []string
	Compositions []string
	MaxAttempts  int
	Rand         *rand.Rand
	Logger       *infra.Logger
}

// Composer is safe for concurrent use.
type Composer struct {
	history      *history.History
	writer       prompt.Writer
	styles       []string
	compositions []string
	maxAttempts  int
	logger       *infra.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// Composition is the outcome of one Compose call.
type Composition struct {
	Mode        domain.Mode
	Text        string
	Subject     string
	Style       string
	Composition string
	Quirk       int
	Attempts    int
	Provider    string
}

func New(opts Options) (*Composer, error) {
	if opts.History == nil {
		return nil, fmt.Errorf("composer: history is required")
	}
	if opts.Writer == nil {
		return nil, fmt.Errorf("composer: prompt writer is required")
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := opts.Logger
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Composer{
		history:      opts.History,
		writer:       opts.Writer,
		styles:       append([]string(nil), opts.Styles...),
		compositions: append([]string(nil), opts.Compositions...),
		maxAttempts:  maxAttempts,
		logger:       logger,
		rng:          rng,
	}, nil
}

// Compose produces the prompt for req and records it in the history.
// Writer failures are returned wrapped in domain.ErrPromptGenerationFailed;
// there is no cached fallback.
func (c *Composer) Compose(ctx context.Context, req domain.GenerationRequest) (Composition, error) {
	switch req.Mode {
	case domain.ModeManual:
		return c.composeManual(req)
	case domain.ModeInspiration:
		return c.composeInspiration(ctx, req)
	case domain.ModeCreative:
		return c.composeCreative(ctx, req)
	default:
		return Composition{}, fmt.Errorf("%w: unsupported mode %q", domain.ErrPromptGenerationFailed, req.Mode)
	}
}

func (c *Composer) composeManual(req domain.GenerationRequest) (Composition, error) {
	if strings.TrimSpace(req.ManualText) == "" {
		return Composition{}, fmt.Errorf("%w: manual prompt is empty", domain.ErrPromptGenerationFailed)
	}
	subject := DeriveSubject(req.ManualText)
	rec := c.history.Record(req.ManualText, subject)
	return Composition{
		Mode:     domain.ModeManual,
		Text:     req.ManualText,
		Subject:  rec.Subject,
		Attempts: 0,
		Provider: "manual",
	}, nil
}

func (c *Composer) composeInspiration(ctx context.Context, req domain.GenerationRequest) (Composition, error) {
	if req.Reference == nil || len(req.Reference.Data) == 0 {
		return Composition{}, fmt.Errorf("%w: no inspiration image uploaded", domain.ErrPromptGenerationFailed)
	}
	res, err := c.writer.Describe(ctx, prompt.Reference{Data: req.Reference.Data, MIME: req.Reference.MIME})
	if err != nil {
		return Composition{}, err
	}
	subject := primarySubject(res)
	rec := c.history.Record(res.Text, subject)
	return Composition{
		Mode:     domain.ModeInspiration,
		Text:     res.Text,
		Subject:  rec.Subject,
		Attempts: 1,
		Provider: res.Provider,
	}, nil
}

func (c *Composer) composeCreative(ctx context.Context, req domain.GenerationRequest) (Composition, error) {
	style, composition, quirk := c.sample(req)
	avoid := c.history.RecentSubjects()
	creative := prompt.CreativeRequest{
		Theme:         req.Theme,
		Style:         style,
		Composition:   composition,
		Quirk:         quirk,
		AvoidSubjects: avoid,
		RecentPrompts: c.history.RecentPrompts(),
	}

	var (
		res     prompt.Result
		subject string
		attempt int
	)
	for attempt = 1; attempt <= c.maxAttempts; attempt++ {
		var err error
		res, err = c.writer.Creative(ctx, creative)
		if err != nil {
			return Composition{}, err
		}
		subject = primarySubject(res)
		if !c.history.Contains(subject) {
			break
		}
		c.logger.Debug().
			Str("subject", subject).
			Int("attempt", attempt).
			Msg("creative prompt repeats a recent subject")
		creative.AvoidSubjects = appendUnique(creative.AvoidSubjects, c.history.Normalize(subject))
	}
	if attempt > c.maxAttempts {
		attempt = c.maxAttempts
		c.logger.Info().
			Str("subject", subject).
			Int("attempts", attempt).
			Msg("accepting repeated subject after bounded retries")
	}

	rec := c.history.Record(res.Text, subject)
	return Composition{
		Mode:        domain.ModeCreative,
		Text:        res.Text,
		Subject:     rec.Subject,
		Style:       style,
		Composition: composition,
		Quirk:       quirk,
		Attempts:    attempt,
		Provider:    res.Provider,
	}, nil
}

func (c *Composer) sample(req domain.GenerationRequest) (style, composition string, quirk int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	style = strings.TrimSpace(req.Style)
	if style == "" && len(c.styles) > 0 {
		style = c.styles[c.rng.Intn(len(c.styles))]
	}
	composition = strings.TrimSpace(req.Composition)
	if composition == "" && len(c.compositions) > 0 {
		composition = c.compositions[c.rng.Intn(len(c.compositions))]
	}
	return style, composition, weightedQuirk(c.rng)
}

func weightedQuirk(rng *rand.Rand) int {
	total := 0
	for _, w := range QuirkWeights {
		total += w
	}
	n := rng.Intn(total)
	for level, w := range QuirkWeights {
		if n < w {
			return level
		}
		n -= w
	}
	return 1
}

func primarySubject(res prompt.Result) string {
	if len(res.Subjects) > 0 {
		return res.Subjects[0]
	}
	return DeriveSubject(res.Text)
}

func appendUnique(list []string, item string) []string {
	if item == "" {
		return list
	}
	for _, v := range list {
		if v == item {
			return list
		}
	}
	return append(list, item)
}
