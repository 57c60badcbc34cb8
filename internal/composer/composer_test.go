package composer

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"frameart/internal/domain"
	"frameart/internal/history"
	"frameart/internal/providers/prompt"
)

type scriptedWriter struct {
	subjects  []string
	calls     int
	requests  []prompt.CreativeRequest
	err       error
	describe  prompt.Result
	described int
}

func (w *scriptedWriter) Creative(ctx context.Context, req prompt.CreativeRequest) (prompt.Result, error) {
	w.requests = append(w.requests, req)
	if w.err != nil {
		return prompt.Result{}, w.err
	}
	subject := w.subjects[w.calls%len(w.subjects)]
	w.calls++
	return prompt.Result{
		Text:     "A scene featuring " + subject + ".",
		Subjects: []string{subject},
		Provider: "scripted",
	}, nil
}

func (w *scriptedWriter) Describe(ctx context.Context, ref prompt.Reference) (prompt.Result, error) {
	w.described++
	if w.err != nil {
		return prompt.Result{}, w.err
	}
	return w.describe, nil
}

func newComposer(t *testing.T, h *history.History, w prompt.Writer) *Composer {
	t.Helper()
	c, err := New(Options{
		History:      h,
		Writer:       w,
		Styles:       []string{"watercolor", "oil painting"},
		Compositions: []string{"wide aerial view", "low angle"},
		Rand:         rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return c
}

func TestComposeCreativeAvoidsRecentSubjects(t *testing.T) {
	h := history.New(history.Options{Size: 2})
	w := &scriptedWriter{subjects: []string{
		"koala",
		"koala", "wave",
		"koala", "wave", "river gum",
		"koala",
	}}
	c := newComposer(t, h, w)

	var got []string
	for i := 0; i < 4; i++ {
		comp, err := c.Compose(context.Background(), domain.GenerationRequest{Mode: domain.ModeCreative, Theme: "South Australia"})
		if err != nil {
			t.Fatalf("Compose %d returned error: %v", i, err)
		}
		got = append(got, comp.Subject)
	}

	want := []string{"koala", "wave", "river gum", "koala"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("subjects = %v, want %v", got, want)
		}
	}
	for i := 1; i < len(got); i++ {
		for back := 1; back <= 2 && i-back >= 0; back++ {
			if got[i] == got[i-back] {
				t.Fatalf("composition %d repeats subject %q from %d back", i, got[i], back)
			}
		}
	}
	if w.calls != 7 {
		t.Fatalf("writer calls = %d, want 7", w.calls)
	}
}

func TestComposeCreativeRetriesAreBounded(t *testing.T) {
	h := history.New(history.Options{Size: 5})
	h.Record("earlier", "lighthouse")
	w := &scriptedWriter{subjects: []string{"Lighthouse"}}
	c := newComposer(t, h, w)

	comp, err := c.Compose(context.Background(), domain.GenerationRequest{Mode: domain.ModeCreative, Theme: "coast"})
	if err != nil {
		t.Fatalf("Compose returned error: %v", err)
	}
	if w.calls != DefaultMaxAttempts {
		t.Fatalf("writer calls = %d, want %d", w.calls, DefaultMaxAttempts)
	}
	if comp.Attempts != DefaultMaxAttempts {
		t.Fatalf("Attempts = %d, want %d", comp.Attempts, DefaultMaxAttempts)
	}
	if comp.Subject != "lighthouse" {
		t.Fatalf("Subject = %q, want accepted repeat %q", comp.Subject, "lighthouse")
	}
	for _, req := range w.requests {
		found := false
		for _, s := range req.AvoidSubjects {
			if s == "lighthouse" {
				found = true
			}
		}
		if !found {
			t.Fatalf("request did not ask to avoid lighthouse: %v", req.AvoidSubjects)
		}
	}
}

func TestComposeCreativeSamplesCatalog(t *testing.T) {
	h := history.New(history.Options{Size: 5})
	w := &scriptedWriter{subjects: []string{"jetty"}}
	c := newComposer(t, h, w)

	comp, err := c.Compose(context.Background(), domain.GenerationRequest{Mode: domain.ModeCreative, Theme: "coast"})
	if err != nil {
		t.Fatalf("Compose returned error: %v", err)
	}
	if comp.Style != "watercolor" && comp.Style != "oil painting" {
		t.Fatalf("Style = %q, not from catalog", comp.Style)
	}
	if comp.Composition == "" {
		t.Fatal("expected a sampled composition")
	}
	if comp.Quirk < 1 || comp.Quirk > 3 {
		t.Fatalf("Quirk = %d, level 0 has zero weight", comp.Quirk)
	}

	pinned, err := c.Compose(context.Background(), domain.GenerationRequest{Mode: domain.ModeCreative, Theme: "coast", Style: "pixel art"})
	if err != nil {
		t.Fatalf("Compose returned error: %v", err)
	}
	if pinned.Style != "pixel art" {
		t.Fatalf("Style = %q, want pinned %q", pinned.Style, "pixel art")
	}
}

func TestComposeCreativeFailureIsSurfaced(t *testing.T) {
	h := history.New(history.Options{Size: 5})
	w := &scriptedWriter{err: errors.Join(domain.ErrPromptGenerationFailed, errors.New("quota"))}
	c := newComposer(t, h, w)

	_, err := c.Compose(context.Background(), domain.GenerationRequest{Mode: domain.ModeCreative, Theme: "coast"})
	if !errors.Is(err, domain.ErrPromptGenerationFailed) {
		t.Fatalf("err = %v, want ErrPromptGenerationFailed", err)
	}
	if h.Len() != 0 {
		t.Fatalf("history length = %d, failed compositions must not be recorded", h.Len())
	}
}

func TestComposeManualReturnsTextUnchanged(t *testing.T) {
	h := history.New(history.Options{Size: 5})
	w := &scriptedWriter{subjects: []string{"unused"}}
	c := newComposer(t, h, w)

	text := "  A cat chasing a dog through tall grass "
	comp, err := c.Compose(context.Background(), domain.GenerationRequest{Mode: domain.ModeManual, ManualText: text})
	if err != nil {
		t.Fatalf("Compose returned error: %v", err)
	}
	if comp.Text != text {
		t.Fatalf("Text = %q, want unchanged %q", comp.Text, text)
	}
	if comp.Subject != "cat chasing" {
		t.Fatalf("Subject = %q, want %q", comp.Subject, "cat chasing")
	}
	if !h.Contains("cat chasing") {
		t.Fatal("manual subject should be recorded for future creative prompts")
	}
	if w.calls != 0 {
		t.Fatalf("writer calls = %d, manual mode must not call the model", w.calls)
	}
}

func TestComposeManualRejectsEmpty(t *testing.T) {
	c := newComposer(t, history.New(history.Options{}), &scriptedWriter{subjects: []string{"x"}})
	_, err := c.Compose(context.Background(), domain.GenerationRequest{Mode: domain.ModeManual, ManualText: "   "})
	if !errors.Is(err, domain.ErrPromptGenerationFailed) {
		t.Fatalf("err = %v, want ErrPromptGenerationFailed", err)
	}
}

func TestComposeInspirationUsesVision(t *testing.T) {
	h := history.New(history.Options{Size: 5})
	w := &scriptedWriter{describe: prompt.Result{Text: "Weathered jetty pylons recede into a pastel dawn.", Provider: "scripted"}}
	c := newComposer(t, h, w)

	ref := &domain.ReferenceImage{Data: []byte{1, 2, 3}, MIME: "image/png"}
	comp, err := c.Compose(context.Background(), domain.GenerationRequest{Mode: domain.ModeInspiration, Reference: ref})
	if err != nil {
		t.Fatalf("Compose returned error: %v", err)
	}
	if w.described != 1 {
		t.Fatalf("Describe calls = %d, want 1", w.described)
	}
	if !strings.HasPrefix(comp.Text, "Weathered jetty") {
		t.Fatalf("Text = %q", comp.Text)
	}
	if comp.Subject != "weathered jetty" {
		t.Fatalf("Subject = %q, want %q", comp.Subject, "weathered jetty")
	}

	if _, err := c.Compose(context.Background(), domain.GenerationRequest{Mode: domain.ModeInspiration}); !errors.Is(err, domain.ErrPromptGenerationFailed) {
		t.Fatalf("missing reference err = %v, want ErrPromptGenerationFailed", err)
	}
}

func TestDeriveSubject(t *testing.T) {
	cases := map[string]string{
		"a cat chasing a dog":             "cat chasing",
		"The old bluestone cottage, dusk": "old bluestone",
		"":                                "",
		"of the":                          "",
		"Kangaroo":                        "kangaroo",
	}
	for in, want := range cases {
		if got := DeriveSubject(in); got != want {
			t.Fatalf("DeriveSubject(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWeightedQuirkNeverPicksZero(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	counts := map[int]int{}
	for i := 0; i < 1000; i++ {
		counts[weightedQuirk(rng)]++
	}
	if counts[0] != 0 {
		t.Fatalf("level 0 picked %d times with zero weight", counts[0])
	}
	if counts[1] <= counts[3] {
		t.Fatalf("level 1 (%d) should be far more common than level 3 (%d)", counts[1], counts[3])
	}
}
