package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"frameart/internal/composer"
	"frameart/internal/derived"
	"frameart/internal/domain"
	"frameart/internal/history"
	"frameart/internal/normalize"
	"frameart/internal/providers/image"
	"frameart/internal/providers/prompt"
	"frameart/internal/storage"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

// gatedComposer numbers its prompts and can hold each call until released.
type gatedComposer struct {
	mu       sync.Mutex
	calls    int
	requests []domain.GenerationRequest
	gate     chan struct{}
	started  chan struct{}
	err      error
}

func newGatedComposer(gated bool) *gatedComposer {
	c := &gatedComposer{started: make(chan struct{}, 16)}
	if gated {
		c.gate = make(chan struct{})
	}
	return c
}

func (c *gatedComposer) Compose(ctx context.Context, req domain.GenerationRequest) (composer.Composition, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.requests = append(c.requests, req)
	err := c.err
	gate := c.gate
	c.mu.Unlock()

	c.started <- struct{}{}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return composer.Composition{}, ctx.Err()
		}
	}
	if err != nil {
		return composer.Composition{}, err
	}
	return composer.Composition{Mode: req.Mode, Text: fmt.Sprintf("%s prompt #%d", req.Mode, n)}, nil
}

func (c *gatedComposer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *gatedComposer) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

type textGenerator struct {
	mu   sync.Mutex
	errs []error
}

func (g *textGenerator) Generate(ctx context.Context, req image.GenerateRequest) (domain.RawImage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return domain.RawImage{}, err
		}
	}
	return domain.RawImage{Data: []byte(req.Prompt), Provider: "text"}, nil
}

// hashNormalizer skips pixel work: the still is the raw payload.
type hashNormalizer struct{}

func (hashNormalizer) Normalize(raw domain.RawImage, width, height int) (domain.CompliantAsset, error) {
	sum := sha256.Sum256(raw.Data)
	return domain.CompliantAsset{
		Hash:         hex.EncodeToString(sum[:]),
		Width:        width,
		Height:       height,
		ColorProfile: domain.ColorProfileSRGB,
		Format:       domain.FormatJPEG,
		Data:         raw.Data,
	}, nil
}

type countingRenderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRenderer) Render(ctx context.Context, asset domain.CompliantAsset) (domain.DerivedArtifact, error) {
	r.mu.Lock()
	r.calls++
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return domain.DerivedArtifact{}, err
	}
	return domain.DerivedArtifact{
		Source: asset.ID(),
		Kind:   domain.AssetKindVideo,
		Format: "video/mp4",
		Data:   []byte("mp4 of " + asset.Hash),
		Length: 15 * time.Second,
	}, nil
}

func (r *countingRenderer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fixture struct {
	sched    *Scheduler
	clock    *ManualClock
	composer *gatedComposer
	gen      *textGenerator
	renderer *countingRenderer
	store    *storage.AssetStore
	dir      string
}

func newFixture(t *testing.T, policy Policy, gated bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	store, err := storage.NewAssetStore(storage.AssetStoreOptions{Files: files})
	if err != nil {
		t.Fatalf("NewAssetStore returned error: %v", err)
	}
	f := &fixture{
		clock:    NewManualClock(t0),
		composer: newGatedComposer(gated),
		gen:      &textGenerator{},
		renderer: &countingRenderer{},
		store:    store,
		dir:      dir,
	}
	cache := derived.New(derived.Options{OnEvict: func(art domain.DerivedArtifact) {
		_ = store.RemoveArtifact(context.Background(), art)
	}})
	f.sched, err = New(Options{
		Composer:   f.composer,
		Generator:  f.gen,
		Normalizer: hashNormalizer{},
		Sink:       store,
		Derived:    cache,
		Renderer:   f.renderer,
		Clock:      f.clock,
		Policy:     policy,
		Settings:   domain.Settings{Mode: domain.ModeCreative, Theme: "coast", Interval: time.Minute},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return f
}

func waitStarted(t *testing.T, c *gatedComposer) {
	t.Helper()
	select {
	case <-c.started:
	case <-time.After(5 * time.Second):
		t.Fatal("regeneration did not start")
	}
}

func waitState(t *testing.T, s *Scheduler, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.Snapshot().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", s.Snapshot().State, want)
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for missing collaborators")
	}
}

func TestServeCachesWithinInterval(t *testing.T) {
	f := newFixture(t, PolicyWait, false)
	ctx := context.Background()

	if got := f.sched.Snapshot().State; got != StateDue {
		t.Fatalf("initial state = %s, want %s", got, StateDue)
	}
	first, err := f.sched.Serve(ctx, Want{})
	if err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
	if !first.Generated || first.Asset.Seq != 1 {
		t.Fatalf("first = %+v, want generated seq 1", first)
	}
	if got := f.sched.Snapshot().Refresh.LastRefreshAt; !got.Equal(t0) {
		t.Fatalf("LastRefreshAt = %s, want %s", got, t0)
	}

	f.clock.Advance(59 * time.Second)
	second, err := f.sched.Serve(ctx, Want{})
	if err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
	if second.Generated || second.Asset.ID() != first.Asset.ID() {
		t.Fatalf("second = %+v, want cached %s", second, first.Asset.ID())
	}
	if second.Prompt != first.Prompt {
		t.Fatalf("Prompt = %q, want %q", second.Prompt, first.Prompt)
	}
	if got := f.composer.Calls(); got != 1 {
		t.Fatalf("composer calls = %d, want 1", got)
	}

	f.clock.Advance(time.Second)
	third, err := f.sched.Serve(ctx, Want{})
	if err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
	if !third.Generated || third.Asset.Seq != 2 {
		t.Fatalf("third = %+v, want generated seq 2", third)
	}
}

func TestFailureLeavesSchedulerDue(t *testing.T) {
	f := newFixture(t, PolicyWait, false)
	ctx := context.Background()
	f.gen.errs = []error{fmt.Errorf("%w: openai: status 500", domain.ErrGenerationFailed)}

	_, err := f.sched.Serve(ctx, Want{})
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	snap := f.sched.Snapshot()
	if snap.State != StateDue {
		t.Fatalf("state = %s, want %s", snap.State, StateDue)
	}
	if !snap.Refresh.LastRefreshAt.IsZero() {
		t.Fatalf("LastRefreshAt = %s, want unchanged", snap.Refresh.LastRefreshAt)
	}
	if snap.LastError == "" {
		t.Fatal("LastError should describe the failure")
	}
	if _, err := os.Stat(filepath.Join(f.dir, "images", "001.jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("failed generation left a file behind: %v", err)
	}

	res, err := f.sched.Serve(ctx, Want{})
	if err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if !res.Generated || res.Asset.Seq != 1 {
		t.Fatalf("retry = %+v, want generated seq 1", res)
	}
}

func TestFailureKeepsPreviousStill(t *testing.T) {
	f := newFixture(t, PolicyWait, false)
	ctx := context.Background()

	first, err := f.sched.Serve(ctx, Want{})
	if err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
	f.clock.Advance(2 * time.Minute)
	f.composer.setErr(fmt.Errorf("%w: openai: timeout", domain.ErrPromptGenerationFailed))

	if _, err := f.sched.Serve(ctx, Want{}); !errors.Is(err, domain.ErrPromptGenerationFailed) {
		t.Fatalf("err = %v, want ErrPromptGenerationFailed", err)
	}
	snap := f.sched.Snapshot()
	if snap.Current != first.Asset.ID() {
		t.Fatalf("current = %s, want %s", snap.Current, first.Asset.ID())
	}
	if !snap.Refresh.LastRefreshAt.Equal(t0) {
		t.Fatalf("LastRefreshAt = %s, want %s", snap.Refresh.LastRefreshAt, t0)
	}
	data, err := os.ReadFile(filepath.Join(f.dir, "images", "001.jpg"))
	if err != nil || string(data) != first.Prompt {
		t.Fatalf("previous still was disturbed: %q, %v", data, err)
	}
}

func TestConcurrentCallersShareOneRegeneration(t *testing.T) {
	f := newFixture(t, PolicyWait, true)
	ctx := context.Background()

	const callers = 8
	results := make([]Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.sched.Serve(ctx, Want{})
		}(i)
	}
	waitStarted(t, f.composer)
	waitState(t, f.sched, StateRegenerating)
	close(f.composer.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Asset.ID() != results[0].Asset.ID() {
			t.Fatalf("caller %d got %s, want %s", i, results[i].Asset.ID(), results[0].Asset.ID())
		}
	}
	if got := f.composer.Calls(); got != 1 {
		t.Fatalf("composer calls = %d, want 1", got)
	}
	entries, err := os.ReadDir(filepath.Join(f.dir, "images"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("images written = %d, want 1", len(entries))
	}
}

func TestSecondStartIsAConflict(t *testing.T) {
	f := newFixture(t, PolicyWait, true)

	f.sched.mu.Lock()
	first, err := f.sched.beginLocked(context.Background(), t0)
	if err != nil {
		f.sched.mu.Unlock()
		t.Fatalf("beginLocked returned error: %v", err)
	}
	_, err = f.sched.beginLocked(context.Background(), t0)
	f.sched.mu.Unlock()
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("err = %v, want ErrStateConflict", err)
	}

	close(f.composer.gate)
	<-first.done
	if first.err != nil {
		t.Fatalf("flight failed: %v", first.err)
	}
}

func TestServeStaleReturnsPreviousStill(t *testing.T) {
	f := newFixture(t, PolicyServeStale, false)
	ctx := context.Background()

	first, err := f.sched.Serve(ctx, Want{})
	if err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}

	f.composer.mu.Lock()
	f.composer.gate = make(chan struct{})
	f.composer.mu.Unlock()
	f.clock.Advance(time.Minute)

	done := make(chan Result, 1)
	go func() {
		res, err := f.sched.Serve(ctx, Want{})
		if err != nil {
			t.Errorf("triggering Serve returned error: %v", err)
		}
		done <- res
	}()
	<-f.composer.started // first generation
	waitStarted(t, f.composer)

	stale, err := f.sched.Serve(ctx, Want{})
	if err != nil {
		t.Fatalf("stale Serve returned error: %v", err)
	}
	if !stale.Stale || stale.Asset.ID() != first.Asset.ID() {
		t.Fatalf("stale = %+v, want stale %s", stale, first.Asset.ID())
	}

	close(f.composer.gate)
	fresh := <-done
	if fresh.Stale || fresh.Asset.Seq != 2 {
		t.Fatalf("fresh = %+v, want seq 2", fresh)
	}
}

func TestServeStaleWaitsWithoutPreviousStill(t *testing.T) {
	f := newFixture(t, PolicyServeStale, true)
	ctx := context.Background()

	results := make(chan Result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, err := f.sched.Serve(ctx, Want{})
			if err != nil {
				t.Errorf("Serve returned error: %v", err)
			}
			results <- res
		}()
	}
	waitStarted(t, f.composer)
	waitState(t, f.sched, StateRegenerating)

	select {
	case res := <-results:
		t.Fatalf("caller returned before the first still existed: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}

	close(f.composer.gate)
	a, b := <-results, <-results
	if a.Stale || b.Stale || a.Asset.ID() != b.Asset.ID() || a.Asset.Seq != 1 {
		t.Fatalf("unexpected results: %+v / %+v", a, b)
	}
}

func TestCancelledCallerDoesNotAbortRegeneration(t *testing.T) {
	f := newFixture(t, PolicyWait, true)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := f.sched.Serve(ctx, Want{})
		errc <- err
	}()
	waitStarted(t, f.composer)
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	close(f.composer.gate)
	waitState(t, f.sched, StateIdle)

	res, err := f.sched.Serve(context.Background(), Want{})
	if err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
	if res.Generated || res.Asset.Seq != 1 {
		t.Fatalf("res = %+v, want cached seq 1", res)
	}
	if got := f.composer.Calls(); got != 1 {
		t.Fatalf("composer calls = %d, want 1", got)
	}
}

func TestVideoFollowsCurrentStill(t *testing.T) {
	f := newFixture(t, PolicyWait, false)
	ctx := context.Background()

	first, err := f.sched.Serve(ctx, Want{Video: true})
	if err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
	if first.Artifact == nil || first.Artifact.Source != first.Asset.ID() {
		t.Fatalf("artifact = %+v, want source %s", first.Artifact, first.Asset.ID())
	}
	if first.Artifact.StorageKey != "videos/001.mp4" {
		t.Fatalf("StorageKey = %q, want videos/001.mp4", first.Artifact.StorageKey)
	}

	again, err := f.sched.Serve(ctx, Want{Video: true})
	if err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
	if again.Artifact == nil || f.renderer.Calls() != 1 {
		t.Fatalf("renderer calls = %d, want 1", f.renderer.Calls())
	}

	f.clock.Advance(time.Minute)
	next, err := f.sched.Serve(ctx, Want{Video: true})
	if err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
	if next.Artifact == nil || next.Artifact.Source != next.Asset.ID() || next.Asset.Seq != 2 {
		t.Fatalf("next = %+v", next)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "videos", "001.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale video still on disk: %v", err)
	}
}

func TestRenderFailureStillServesImage(t *testing.T) {
	f := newFixture(t, PolicyWait, false)
	f.renderer.err = errors.New("ffmpeg exploded")

	res, err := f.sched.Serve(context.Background(), Want{Video: true})
	if !errors.Is(err, domain.ErrRenderFailed) {
		t.Fatalf("err = %v, want ErrRenderFailed", err)
	}
	if res.Asset.Seq != 1 || res.Artifact != nil {
		t.Fatalf("res = %+v, want still without artifact", res)
	}
	if got := f.sched.Snapshot().State; got != StateIdle {
		t.Fatalf("state = %s, want %s", got, StateIdle)
	}
}

func TestConfigureForcesRegenerationOnModeChange(t *testing.T) {
	f := newFixture(t, PolicyWait, false)
	ctx := context.Background()
	if _, err := f.sched.Serve(ctx, Want{}); err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}

	cur := f.sched.Settings()
	cur.Interval = 10 * time.Minute
	f.sched.Configure(cur)
	if got := f.sched.Snapshot().State; got != StateIdle {
		t.Fatalf("interval change: state = %s, want %s", got, StateIdle)
	}

	cur.Mode = domain.ModeManual
	cur.ManualPrompt = "  desert at dusk "
	applied := f.sched.Configure(cur)
	if applied.ManualPrompt != "desert at dusk" {
		t.Fatalf("ManualPrompt = %q", applied.ManualPrompt)
	}
	if got := f.sched.Snapshot().State; got != StateDue {
		t.Fatalf("mode change: state = %s, want %s", got, StateDue)
	}
	res, err := f.sched.Serve(ctx, Want{})
	if err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
	if !res.Generated || res.Asset.Seq != 2 {
		t.Fatalf("res = %+v, want generated seq 2", res)
	}
	last := f.composer.requests[len(f.composer.requests)-1]
	if last.Mode != domain.ModeManual || last.ManualText != "desert at dusk" {
		t.Fatalf("request = %+v", last)
	}

	cur = f.sched.Settings()
	cur.Mode = domain.ModeCreative
	f.sched.Configure(cur)
	if got := f.sched.Snapshot().LastPrompt; got != "" {
		t.Fatalf("LastPrompt = %q, want cleared", got)
	}
}

func TestConfigureClampsInterval(t *testing.T) {
	f := newFixture(t, PolicyWait, false)
	got := f.sched.Configure(domain.Settings{Mode: domain.ModeCreative, Theme: "coast", Interval: time.Second})
	if got.Interval != domain.MinRefreshInterval {
		t.Fatalf("Interval = %s, want %s", got.Interval, domain.MinRefreshInterval)
	}
}

func TestSetInspirationSwitchesMode(t *testing.T) {
	f := newFixture(t, PolicyWait, false)
	ctx := context.Background()
	if _, err := f.sched.Serve(ctx, Want{}); err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}

	f.sched.SetInspiration(domain.ReferenceImage{Data: []byte{0xff, 0xd8}, MIME: "image/jpeg", Filename: "beach.jpg"})
	snap := f.sched.Snapshot()
	if snap.State != StateDue || snap.Settings.Mode != domain.ModeInspiration {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Reference == nil || snap.Reference.Data != nil || snap.Reference.Filename != "beach.jpg" {
		t.Fatalf("Reference = %+v", snap.Reference)
	}

	if _, err := f.sched.Serve(ctx, Want{}); err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}
	last := f.composer.requests[len(f.composer.requests)-1]
	if last.Reference == nil || last.Reference.MIME != "image/jpeg" {
		t.Fatalf("request reference = %+v", last.Reference)
	}
}

func TestForceRefreshDuringRegenerationRunsAgain(t *testing.T) {
	f := newFixture(t, PolicyWait, true)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := f.sched.Serve(ctx, Want{}); err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	}()
	waitStarted(t, f.composer)
	waitState(t, f.sched, StateRegenerating)
	f.sched.ForceRefresh()
	close(f.composer.gate)
	<-done

	if got := f.sched.Snapshot().State; got != StateDue {
		t.Fatalf("state = %s, want %s", got, StateDue)
	}
}

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{in: "", want: PolicyWait},
		{in: "wait", want: PolicyWait},
		{in: " Stale ", want: PolicyServeStale},
		{in: "serve-stale", want: PolicyServeStale},
		{in: "race", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParsePolicy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParsePolicy(%q) err = %v", tc.in, err)
		}
		if !tc.wantErr && got != tc.want {
			t.Fatalf("ParsePolicy(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

type refusingWriter struct{}

func (refusingWriter) Creative(context.Context, prompt.CreativeRequest) (prompt.Result, error) {
	return prompt.Result{}, errors.New("creative writer not expected")
}

func (refusingWriter) Describe(context.Context, prompt.Reference) (prompt.Result, error) {
	return prompt.Result{}, errors.New("vision writer not expected")
}

// TestDesertAtDusk runs the real composer, synthetic generator, normalizer and
// store through a manual-mode session at t=0s, 30s and 61s.
func TestDesertAtDusk(t *testing.T) {
	if testing.Short() {
		t.Skip("renders full-size stills")
	}
	dir := t.TempDir()
	files, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	store, err := storage.NewAssetStore(storage.AssetStoreOptions{Files: files})
	if err != nil {
		t.Fatalf("NewAssetStore returned error: %v", err)
	}
	comp, err := composer.New(composer.Options{History: history.New(history.Options{}), Writer: refusingWriter{}})
	if err != nil {
		t.Fatalf("composer.New returned error: %v", err)
	}
	var evicted []domain.AssetID
	cache := derived.New(derived.Options{OnEvict: func(art domain.DerivedArtifact) {
		evicted = append(evicted, art.Source)
		_ = store.RemoveArtifact(context.Background(), art)
	}})
	clock := NewManualClock(t0)
	renderer := &countingRenderer{}
	sched, err := New(Options{
		Composer:   comp,
		Generator:  &image.SyntheticGenerator{Width: 96, Height: 64},
		Normalizer: normalize.New(normalize.Options{Now: clock.Now}),
		Sink:       store,
		Derived:    cache,
		Renderer:   renderer,
		Clock:      clock,
		Settings:   domain.Settings{Mode: domain.ModeManual, ManualPrompt: "desert at dusk", Interval: 60 * time.Second},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	steps := []struct {
		at      time.Duration
		wantSeq int
		wantGen bool
	}{
		{at: 0, wantSeq: 1, wantGen: true},
		{at: 30 * time.Second, wantSeq: 1, wantGen: false},
		{at: 61 * time.Second, wantSeq: 2, wantGen: true},
	}
	var prev Result
	for _, step := range steps {
		clock.Set(t0.Add(step.at))
		res, err := sched.Serve(context.Background(), Want{Video: true})
		if err != nil {
			t.Fatalf("t=%s: Serve returned error: %v", step.at, err)
		}
		if res.Asset.Seq != step.wantSeq || res.Generated != step.wantGen {
			t.Fatalf("t=%s: seq=%d generated=%v, want seq=%d generated=%v", step.at, res.Asset.Seq, res.Generated, step.wantSeq, step.wantGen)
		}
		if res.Prompt != "desert at dusk" {
			t.Fatalf("t=%s: Prompt = %q", step.at, res.Prompt)
		}
		if res.Asset.Width != domain.TargetWidth || res.Asset.Height != domain.TargetHeight {
			t.Fatalf("t=%s: still is %dx%d", step.at, res.Asset.Width, res.Asset.Height)
		}
		if res.Artifact == nil || res.Artifact.Source != res.Asset.ID() {
			t.Fatalf("t=%s: artifact %+v does not match still %s", step.at, res.Artifact, res.Asset.ID())
		}
		if step.at == 30*time.Second && res.Artifact.StorageKey != prev.Artifact.StorageKey {
			t.Fatalf("t=30s: video was rebuilt")
		}
		prev = res
	}

	if renderer.Calls() != 2 {
		t.Fatalf("renderer calls = %d, want 2", renderer.Calls())
	}
	if len(evicted) != 1 || evicted[0].Seq != 1 {
		t.Fatalf("evicted = %v, want the seq 1 video", evicted)
	}
	for _, name := range []string{"001.jpg", "002.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, "images", name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}

// scriptedWriter replays canned creative replies in order and keeps the
// requests it saw.
type scriptedWriter struct {
	mu      sync.Mutex
	replies []prompt.Result
	seen    []prompt.CreativeRequest
}

func (w *scriptedWriter) Creative(ctx context.Context, req prompt.CreativeRequest) (prompt.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = append(w.seen, req)
	if len(w.replies) == 0 {
		return prompt.Result{}, fmt.Errorf("%w: script exhausted", domain.ErrPromptGenerationFailed)
	}
	res := w.replies[0]
	w.replies = w.replies[1:]
	return res, nil
}

func (w *scriptedWriter) Describe(context.Context, prompt.Reference) (prompt.Result, error) {
	return prompt.Result{}, fmt.Errorf("%w: no vision", domain.ErrPromptGenerationFailed)
}

func TestDesertAtDuskCreative(t *testing.T) {
	if testing.Short() {
		t.Skip("renders full-size stills")
	}
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	store, err := storage.NewAssetStore(storage.AssetStoreOptions{Files: files})
	if err != nil {
		t.Fatalf("NewAssetStore returned error: %v", err)
	}
	writer := &scriptedWriter{replies: []prompt.Result{
		{Text: "Wind-carved dunes glow amber beneath a violet sky.", Subjects: []string{"dunes"}},
		{Text: "Dunes again, rippling toward the horizon.", Subjects: []string{"Dunes"}},
		{Text: "A lone camel crosses a ridge as the first stars appear.", Subjects: []string{"camel"}},
	}}
	hist := history.New(history.Options{Size: 2})
	comp, err := composer.New(composer.Options{
		History:      hist,
		Writer:       writer,
		Styles:       []string{"watercolor"},
		Compositions: []string{"wide establishing shot"},
		Rand:         rand.New(rand.NewSource(7)),
	})
	if err != nil {
		t.Fatalf("composer.New returned error: %v", err)
	}
	clock := NewManualClock(t0)
	sched, err := New(Options{
		Composer:   comp,
		Generator:  &image.SyntheticGenerator{Width: 96, Height: 64},
		Normalizer: normalize.New(normalize.Options{Now: clock.Now}),
		Sink:       store,
		Derived:    derived.New(derived.Options{}),
		Renderer:   &countingRenderer{},
		Clock:      clock,
		Settings:   domain.Settings{Mode: domain.ModeCreative, Theme: "desert at dusk", Interval: 60 * time.Second},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	steps := []struct {
		at         time.Duration
		wantSeq    int
		wantPrompt string
		wantCalls  int
	}{
		{at: 0, wantSeq: 1, wantPrompt: "Wind-carved dunes glow amber beneath a violet sky.", wantCalls: 1},
		{at: 30 * time.Second, wantSeq: 1, wantPrompt: "Wind-carved dunes glow amber beneath a violet sky.", wantCalls: 1},
		{at: 61 * time.Second, wantSeq: 2, wantPrompt: "A lone camel crosses a ridge as the first stars appear.", wantCalls: 3},
	}
	for _, step := range steps {
		clock.Set(t0.Add(step.at))
		res, err := sched.Serve(context.Background(), Want{Video: true})
		if err != nil {
			t.Fatalf("t=%s: Serve returned error: %v", step.at, err)
		}
		if res.Asset.Seq != step.wantSeq || res.Prompt != step.wantPrompt {
			t.Fatalf("t=%s: seq=%d prompt=%q, want seq=%d prompt=%q", step.at, res.Asset.Seq, res.Prompt, step.wantSeq, step.wantPrompt)
		}
		if got := len(writer.seen); got != step.wantCalls {
			t.Fatalf("t=%s: writer calls = %d, want %d", step.at, got, step.wantCalls)
		}
		if res.Artifact == nil || res.Artifact.Source != res.Asset.ID() {
			t.Fatalf("t=%s: video does not belong to the current still", step.at)
		}
	}

	for i, req := range writer.seen {
		if req.Theme != "desert at dusk" || req.Style != "watercolor" {
			t.Fatalf("request %d: theme=%q style=%q", i, req.Theme, req.Style)
		}
	}
	if avoid := writer.seen[1].AvoidSubjects; len(avoid) != 1 || avoid[0] != "dunes" {
		t.Fatalf("second request avoids %v, want [dunes]", avoid)
	}
	if got := hist.RecentSubjects(); len(got) != 2 || got[0] != "camel" || got[1] != "dunes" {
		t.Fatalf("RecentSubjects = %v, want [camel dunes]", got)
	}
}
