// Package scheduler decides when the frame gets a new still. It owns the
// refresh state, runs at most one regeneration at a time and serves the
// current still (and its video) in between.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"frameart/internal/composer"
	"frameart/internal/derived"
	"frameart/internal/domain"
	"frameart/internal/infra"
	"frameart/internal/providers/image"
	"frameart/internal/providers/video"
)

// State is the refresh state of the scheduler.
type State string

const (
	StateIdle         State = "idle"
	StateDue          State = "due"
	StateRegenerating State = "regenerating"
)

// PromptComposer produces the prompt for the next still.
type PromptComposer interface {
	Compose(ctx context.Context, req domain.GenerationRequest) (composer.Composition, error)
}

// StillNormalizer makes a raw image device compliant.
type StillNormalizer interface {
	Normalize(raw domain.RawImage, width, height int) (domain.CompliantAsset, error)
}

// Sink publishes stills and derived media.
type Sink interface {
	SaveStill(ctx context.Context, asset domain.CompliantAsset) (domain.CompliantAsset, error)
	SaveArtifact(ctx context.Context, art domain.DerivedArtifact) (domain.DerivedArtifact, error)
}

type Options struct {
	Composer   PromptComposer
	Generator  image.Generator
	Normalizer StillNormalizer
	Sink       Sink
	// Derived holds the video of the current still. Nil creates a private
	// cache without eviction hooks.
	Derived *derived.Cache
	// Renderer is optional; without it video requests fail with
	// domain.ErrRenderFailed and the still is still served.
	Renderer video.Renderer
	Clock    Clock
	Policy   Policy
	Settings domain.Settings
	Logger   *infra.Logger
}

// Want selects what Serve should return besides the still.
type Want struct {
	Video bool
}

// Result is what a caller of Serve gets.
type Result struct {
	Asset    domain.CompliantAsset
	Artifact *domain.DerivedArtifact
	Prompt   string
	// Generated is set when the still was produced for this call or for the
	// regeneration it joined.
	Generated bool
	// Stale is set when a regeneration was in flight and the previous still
	// was served instead.
	Stale bool
}

// Status is a point-in-time view for dashboards and the settings API.
type Status struct {
	State         State
	Refresh       domain.RefreshState
	NextRefreshAt time.Time
	Current       domain.AssetID
	CurrentKey    string
	CurrentAt     time.Time
	LastPrompt    string
	LastError     string
	Settings      domain.Settings
	Reference     *domain.ReferenceImage
	Artifact      *domain.DerivedArtifact
	Policy        Policy
}

// flight is one regeneration. done is closed once the outcome fields are set.
type flight struct {
	done   chan struct{}
	asset  domain.CompliantAsset
	prompt string
	err    error
}

type Scheduler struct {
	composer   PromptComposer
	generator  image.Generator
	normalizer StillNormalizer
	sink       Sink
	derived    *derived.Cache
	renderer   video.Renderer
	clock      Clock
	policy     Policy
	logger     *infra.Logger

	// mu guards the fields below. It is never held across a collaborator call.
	mu         sync.Mutex
	state      State
	refresh    domain.RefreshState
	settings   domain.Settings
	reference  *domain.ReferenceImage
	current    domain.CompliantAsset
	lastPrompt string
	lastErr    string
	inflight   *flight
	// redo marks a settings change made while regenerating; the finished
	// generation then leaves the scheduler DUE instead of IDLE.
	redo bool
}

func New(opts Options) (*Scheduler, error) {
	switch {
	case opts.Composer == nil:
		return nil, errors.New("scheduler: composer is required")
	case opts.Generator == nil:
		return nil, errors.New("scheduler: image generator is required")
	case opts.Normalizer == nil:
		return nil, errors.New("scheduler: normalizer is required")
	case opts.Sink == nil:
		return nil, errors.New("scheduler: sink is required")
	}
	cache := opts.Derived
	if cache == nil {
		cache = derived.New(derived.Options{})
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	settings := sanitizeSettings(opts.Settings)
	return &Scheduler{
		composer:   opts.Composer,
		generator:  opts.Generator,
		normalizer: opts.Normalizer,
		sink:       opts.Sink,
		derived:    cache,
		renderer:   opts.Renderer,
		clock:      clock,
		policy:     opts.Policy,
		logger:     logger,
		state:      StateDue,
		settings:   settings,
		refresh: domain.RefreshState{
			Mode:     settings.Mode,
			Interval: settings.Interval,
		},
	}, nil
}

// Serve returns the still the frame should show now, regenerating it first
// when the refresh interval has elapsed. Cancelling ctx abandons the wait,
// not the regeneration.
func (s *Scheduler) Serve(ctx context.Context, want Want) (Result, error) {
	now := s.clock.Now()

	s.mu.Lock()
	s.evaluateLocked(now)
	switch s.state {
	case StateIdle:
		res := Result{Asset: s.current, Prompt: s.lastPrompt}
		s.mu.Unlock()
		return s.withVideo(ctx, res, want)

	case StateRegenerating:
		f := s.inflight
		if s.policy == PolicyServeStale && !s.current.IsZero() {
			res := Result{Asset: s.current, Prompt: s.lastPrompt, Stale: true}
			s.mu.Unlock()
			return s.withVideo(ctx, res, want)
		}
		s.mu.Unlock()
		return s.await(ctx, f, want)

	default:
		f, err := s.beginLocked(ctx, now)
		if errors.Is(err, domain.ErrStateConflict) {
			f = s.inflight
		}
		s.mu.Unlock()
		return s.await(ctx, f, want)
	}
}

// evaluateLocked applies the IDLE to DUE transition.
func (s *Scheduler) evaluateLocked(now time.Time) {
	if s.state != StateIdle {
		return
	}
	if now.Sub(s.refresh.LastRefreshAt) >= s.refresh.Interval {
		s.state = StateDue
	}
}

// beginLocked starts a regeneration. A second start while one is in flight
// is refused with domain.ErrStateConflict.
func (s *Scheduler) beginLocked(ctx context.Context, now time.Time) (*flight, error) {
	if s.inflight != nil {
		return nil, domain.ErrStateConflict
	}
	f := &flight{done: make(chan struct{})}
	s.inflight = f
	s.state = StateRegenerating
	s.redo = false
	req := s.requestLocked()

	go s.regenerate(context.WithoutCancel(ctx), f, req, now)
	return f, nil
}

func (s *Scheduler) requestLocked() domain.GenerationRequest {
	req := domain.GenerationRequest{
		Mode:       s.settings.Mode,
		Theme:      s.settings.Theme,
		ManualText: s.settings.ManualPrompt,
	}
	if s.reference != nil {
		ref := *s.reference
		req.Reference = &ref
	}
	return req
}

func (s *Scheduler) await(ctx context.Context, f *flight, want Want) (Result, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	if f.err != nil {
		return Result{}, f.err
	}
	return s.withVideo(ctx, Result{Asset: f.asset, Prompt: f.prompt, Generated: true}, want)
}

// regenerate runs the pipeline outside the lock and publishes the outcome.
func (s *Scheduler) regenerate(ctx context.Context, f *flight, req domain.GenerationRequest, startedAt time.Time) {
	start := time.Now()
	asset, text, err := s.produce(ctx, req)

	if err != nil {
		s.mu.Lock()
		s.state = StateDue
		s.inflight = nil
		s.lastErr = err.Error()
		s.mu.Unlock()

		s.logger.Error().Err(err).
			Str("mode", string(req.Mode)).
			Dur("took", time.Since(start)).
			Msg("scheduler: regeneration failed")
		f.err = err
		close(f.done)
		return
	}

	// Key the derived cache to the new still before anyone can see it.
	s.derived.Invalidate(asset.ID())

	s.mu.Lock()
	s.current = asset
	s.lastPrompt = text
	s.lastErr = ""
	s.refresh.LastRefreshAt = startedAt
	s.inflight = nil
	if s.redo {
		s.state = StateDue
		s.redo = false
	} else {
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("asset", asset.ID().String()).
		Str("mode", string(req.Mode)).
		Str("key", asset.StorageKey).
		Dur("took", time.Since(start)).
		Msg("scheduler: published still")
	f.asset = asset
	f.prompt = text
	close(f.done)
}

// produce is Composer, Generator, Normalizer and Sink in order. Each error
// already wraps its sentinel and is returned as is.
func (s *Scheduler) produce(ctx context.Context, req domain.GenerationRequest) (domain.CompliantAsset, string, error) {
	comp, err := s.composer.Compose(ctx, req)
	if err != nil {
		return domain.CompliantAsset{}, "", err
	}
	raw, err := s.generator.Generate(ctx, image.GenerateRequest{
		Prompt:      comp.Text,
		AspectRatio: domain.TargetAspect,
	})
	if err != nil {
		return domain.CompliantAsset{}, "", err
	}
	asset, err := s.normalizer.Normalize(raw, domain.TargetWidth, domain.TargetHeight)
	if err != nil {
		return domain.CompliantAsset{}, "", err
	}
	asset.Prompt = comp.Text
	saved, err := s.sink.SaveStill(ctx, asset)
	if err != nil {
		return domain.CompliantAsset{}, "", fmt.Errorf("save still: %w", err)
	}
	return saved, comp.Text, nil
}

// withVideo attaches the derived video when asked for. A render failure
// keeps the still in the result.
func (s *Scheduler) withVideo(ctx context.Context, res Result, want Want) (Result, error) {
	if !want.Video || res.Asset.IsZero() {
		return res, nil
	}
	if s.renderer == nil {
		return res, fmt.Errorf("%w: video rendering is disabled", domain.ErrRenderFailed)
	}
	// A still replaced after it was read yields derived.ErrStaleArtifact.
	art, err := s.derived.GetOrBuild(ctx, res.Asset, s.buildVideo)
	if err != nil {
		return res, err
	}
	res.Artifact = &art
	return res, nil
}

func (s *Scheduler) buildVideo(ctx context.Context, asset domain.CompliantAsset) (domain.DerivedArtifact, error) {
	art, err := s.renderer.Render(ctx, asset)
	if err != nil {
		return domain.DerivedArtifact{}, err
	}
	saved, err := s.sink.SaveArtifact(ctx, art)
	if err != nil {
		return domain.DerivedArtifact{}, fmt.Errorf("%w: save artifact: %w", domain.ErrRenderFailed, err)
	}
	return saved, nil
}

// Configure replaces the operator settings. Any change of mode or of the
// input the active mode reads forces a regeneration on the next Serve.
// Switching to creative drops the remembered prompt so the next one is fresh.
func (s *Scheduler) Configure(next domain.Settings) domain.Settings {
	next = sanitizeSettings(next)

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.settings
	s.settings = next
	s.refresh.Mode = next.Mode
	s.refresh.Interval = next.Interval

	changed := prev.Mode != next.Mode
	switch next.Mode {
	case domain.ModeManual:
		changed = changed || prev.ManualPrompt != next.ManualPrompt
	case domain.ModeCreative:
		changed = changed || prev.Theme != next.Theme
	}
	if prev.Mode != next.Mode && next.Mode == domain.ModeCreative {
		s.lastPrompt = ""
	}
	if changed {
		s.forceDueLocked()
	}
	return next
}

// SetInspiration stores ref and switches to inspiration mode.
func (s *Scheduler) SetInspiration(ref domain.ReferenceImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reference = &ref
	s.settings.Mode = domain.ModeInspiration
	s.refresh.Mode = domain.ModeInspiration
	s.forceDueLocked()
}

// ForceRefresh makes the next Serve regenerate regardless of the interval.
func (s *Scheduler) ForceRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceDueLocked()
}

func (s *Scheduler) forceDueLocked() {
	if s.state == StateRegenerating {
		s.redo = true
		return
	}
	s.state = StateDue
}

// Settings returns the current operator settings.
func (s *Scheduler) Settings() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Snapshot reports the scheduler state without triggering anything.
func (s *Scheduler) Snapshot() Status {
	now := s.clock.Now()
	s.mu.Lock()
	st := Status{
		State:      s.state,
		Refresh:    s.refresh,
		Current:    s.current.ID(),
		CurrentKey: s.current.StorageKey,
		CurrentAt:  s.current.CreatedAt,
		LastPrompt: s.lastPrompt,
		LastError:  s.lastErr,
		Settings:   s.settings,
		Policy:     s.policy,
	}
	if s.state == StateIdle && now.Sub(s.refresh.LastRefreshAt) >= s.refresh.Interval {
		st.State = StateDue
	}
	if s.reference != nil {
		ref := *s.reference
		ref.Data = nil
		st.Reference = &ref
	}
	s.mu.Unlock()

	if !st.Refresh.LastRefreshAt.IsZero() {
		st.NextRefreshAt = st.Refresh.LastRefreshAt.Add(st.Refresh.Interval)
	}
	if art, ok := s.derived.Current(); ok {
		st.Artifact = &art
	}
	return st
}

func sanitizeSettings(in domain.Settings) domain.Settings {
	out := in
	if mode, ok := domain.ParseMode(string(in.Mode)); ok {
		out.Mode = mode
	} else {
		out.Mode = domain.ModeCreative
	}
	out.ManualPrompt = strings.TrimSpace(in.ManualPrompt)
	out.Theme = strings.TrimSpace(in.Theme)
	if out.Interval < domain.MinRefreshInterval {
		out.Interval = domain.MinRefreshInterval
	}
	return out
}
