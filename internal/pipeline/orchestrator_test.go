package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vizor/internal/cache"
	"vizor/internal/collab"
	"vizor/internal/domain"
	"vizor/internal/provider"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (s *memStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

type stubValidator struct {
	verdict collab.Verdict
	err     error
	calls   int32
}

func (v *stubValidator) Validate(ctx context.Context, target string) (collab.Verdict, error) {
	atomic.AddInt32(&v.calls, 1)
	return v.verdict, v.err
}

type stubFetcher struct {
	content []byte
	err     error
	calls   int32
}

func (f *stubFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.content, f.err
}

type stubDescriber struct {
	text  string
	err   error
	calls int32
}

func (d *stubDescriber) Describe(ctx context.Context, target string, content []byte) (string, error) {
	atomic.AddInt32(&d.calls, 1)
	return d.text, d.err
}

type fixture struct {
	store     *memStore
	validator *stubValidator
	fetcher   *stubFetcher
	describer *stubDescriber
	registry  *provider.Registry
	orch      *Orchestrator
}

func newFixture(gens ...provider.Generator) *fixture {
	f := &fixture{
		store:     newMemStore(),
		validator: &stubValidator{verdict: collab.Verdict{Accepted: true, RiskTier: collab.RiskSafe}},
		fetcher:   &stubFetcher{content: []byte("<html>content</html>")},
		describer: &stubDescriber{text: "a vivid scene"},
		registry:  provider.NewRegistry(),
	}
	for _, g := range gens {
		f.registry.Register(g)
	}
	f.orch = New(Deps{
		Cache:     cache.New(f.store, zerolog.Nop()),
		Registry:  f.registry,
		Validator: f.validator,
		Fetcher:   f.fetcher,
		Describer: f.describer,
		Logger:    zerolog.Nop(),
	})
	return f
}

func collect(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func stages(events []Event) []Stage {
	out := make([]Stage, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Stage)
	}
	return out
}

func TestCacheHitShortCircuits(t *testing.T) {
	gen := &stubGen{name: "a", artifact: &provider.Artifact{Bytes: []byte("fresh"), MediaType: "image/png"}}
	f := newFixture(gen)

	key := cache.KeyFor("https://example.com", "a")
	_ = f.store.Put(context.Background(), key.ArtifactObject(), []byte("cached"), "image/png")
	_ = f.store.Put(context.Background(), key.MetadataObject(), []byte(`{"media_type":"image/png"}`), "application/json")

	events := collect(f.orch.Run(context.Background(), domain.GenerationRequest{
		Target:             "https://example.com",
		ProviderPreference: "a",
		CallerID:           "caller",
	}, ModeSingle))

	want := []Stage{StageCheckingCache, StageCompleted}
	got := stages(events)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("event sequence %v, want %v", got, want)
	}
	final := events[len(events)-1]
	if string(final.Artifact) != "cached" || final.Provider != "a" {
		t.Fatalf("unexpected final event %+v", final)
	}
	if atomic.LoadInt32(&f.validator.calls) != 0 || atomic.LoadInt32(&f.fetcher.calls) != 0 ||
		atomic.LoadInt32(&f.describer.calls) != 0 || atomic.LoadInt32(&gen.genCalls) != 0 {
		t.Fatal("cache hit still invoked collaborators or providers")
	}
}

func TestHappyPathSingleShot(t *testing.T) {
	gen := &stubGen{name: "a", artifact: &provider.Artifact{Bytes: []byte("fresh"), MediaType: "image/png"}}
	f := newFixture(gen)

	events := collect(f.orch.Run(context.Background(), domain.GenerationRequest{
		Target:   "https://example.com",
		CallerID: "caller",
	}, ModeSingle))

	want := []Stage{StageCheckingCache, StageValidating, StageFetching, StageDescribing, StageGenerating, StageCompleted}
	got := stages(events)
	if len(got) != len(want) {
		t.Fatalf("event sequence %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d is %s, want %s", i, got[i], want[i])
		}
	}
	final := events[len(events)-1]
	if final.Provider != "a" || string(final.Artifact) != "fresh" {
		t.Fatalf("unexpected final event %+v", final)
	}
}

func TestFallbackAttribution(t *testing.T) {
	a := &stubGen{name: "a", genErr: errors.New("a down")}
	b := &stubGen{name: "b", artifact: &provider.Artifact{Bytes: []byte("from-b"), MediaType: "image/png"}}
	f := newFixture(a, b)

	events := collect(f.orch.Run(context.Background(), domain.GenerationRequest{
		Target:   "https://example.com",
		CallerID: "caller",
	}, ModeSingle))

	final := events[len(events)-1]
	if final.Stage != StageCompleted || final.Provider != "b" {
		t.Fatalf("unexpected final event %+v", final)
	}
}

func TestPreferenceSkipsFailingDefault(t *testing.T) {
	a := &stubGen{name: "a", genErr: errors.New("a down")}
	b := &stubGen{name: "b", artifact: &provider.Artifact{Bytes: []byte("from-b"), MediaType: "image/png"}}
	f := newFixture(a, b)

	events := collect(f.orch.Run(context.Background(), domain.GenerationRequest{
		Target:             "https://example.com",
		ProviderPreference: "b",
		CallerID:           "caller",
	}, ModeSingle))

	final := events[len(events)-1]
	if final.Stage != StageCompleted || final.Provider != "b" {
		t.Fatalf("unexpected final event %+v", final)
	}
	if atomic.LoadInt32(&a.genCalls) != 0 {
		t.Fatal("non-preferred backend attempted despite preferred success")
	}
}

func TestRejectedTargetProducesErrorBeforeFetch(t *testing.T) {
	gen := &stubGen{name: "a"}
	f := newFixture(gen)
	f.validator.verdict = collab.Verdict{Accepted: false, RiskTier: collab.RiskRejected, Reason: "blocked term"}

	events := collect(f.orch.Run(context.Background(), domain.GenerationRequest{
		Target:   "https://example.com",
		CallerID: "caller",
	}, ModeSingle))

	final := events[len(events)-1]
	if final.Stage != StageError || final.Code != "rejected" {
		t.Fatalf("unexpected final event %+v", final)
	}
	if !strings.Contains(final.Err, "blocked term") {
		t.Fatalf("rejection reason not reported verbatim: %q", final.Err)
	}
	if atomic.LoadInt32(&f.fetcher.calls) != 0 || atomic.LoadInt32(&gen.genCalls) != 0 {
		t.Fatal("pipeline continued past rejection")
	}
}

func TestCautionAnnotatesValidatingMessage(t *testing.T) {
	gen := &stubGen{name: "a", artifact: &provider.Artifact{Bytes: []byte("img"), MediaType: "image/png"}}
	f := newFixture(gen)
	f.validator.verdict = collab.Verdict{Accepted: true, RiskTier: collab.RiskCaution, Reason: "flagged term"}

	events := collect(f.orch.Run(context.Background(), domain.GenerationRequest{
		Target:   "https://example.com",
		CallerID: "caller",
	}, ModeSingle))

	var validating *Event
	for i := range events {
		if events[i].Stage == StageValidating {
			validating = &events[i]
		}
	}
	if validating == nil {
		t.Fatal("no validating event emitted")
	}
	if !strings.Contains(validating.Message, "warning") || !strings.Contains(validating.Message, "flagged term") {
		t.Fatalf("caution not annotated: %q", validating.Message)
	}
	if events[len(events)-1].Stage != StageCompleted {
		t.Fatal("caution tier prevented completion")
	}
}

func TestFetchFailureTerminates(t *testing.T) {
	gen := &stubGen{name: "a"}
	f := newFixture(gen)
	f.fetcher.err = errors.New("connection refused")

	events := collect(f.orch.Run(context.Background(), domain.GenerationRequest{
		Target:   "https://example.com",
		CallerID: "caller",
	}, ModeSingle))

	final := events[len(events)-1]
	if final.Stage != StageError || final.Code != "collaborator_failed" {
		t.Fatalf("unexpected final event %+v", final)
	}
	if atomic.LoadInt32(&gen.genCalls) != 0 {
		t.Fatal("providers invoked after fetch failure")
	}
}

func TestEmptyDescriptionFailsBeforeProviders(t *testing.T) {
	gen := &stubGen{name: "a", artifact: &provider.Artifact{Bytes: []byte("img"), MediaType: "image/png"}}
	f := newFixture(gen)
	f.describer.text = ""

	events := collect(f.orch.Run(context.Background(), domain.GenerationRequest{
		Target:   "https://example.com",
		CallerID: "caller",
	}, ModeSingle))

	final := events[len(events)-1]
	if final.Stage != StageError || final.Code != "collaborator_failed" {
		t.Fatalf("unexpected final event %+v", final)
	}
	if atomic.LoadInt32(&gen.genCalls) != 0 || atomic.LoadInt32(&gen.strCalls) != 0 {
		t.Fatal("providers invoked despite empty description")
	}
}

func TestPartialPromotion(t *testing.T) {
	gen := &stubGen{name: "a", partials: []provider.Partial{
		{Bytes: []byte("p0"), MediaType: "image/png", Index: 0},
		{Bytes: []byte("p1"), MediaType: "image/png", Index: 1},
	}}
	f := newFixture(gen)

	events := collect(f.orch.Run(context.Background(), domain.GenerationRequest{
		Target:   "https://example.com",
		CallerID: "caller",
	}, ModeStream))

	var partials []Event
	var final *Event
	for i := range events {
		switch events[i].Stage {
		case StagePartial:
			partials = append(partials, events[i])
		case StageCompleted:
			final = &events[i]
		}
	}
	if len(partials) != 2 {
		t.Fatalf("saw %d partial events, want 2", len(partials))
	}
	if partials[0].PartialIndex != 0 || partials[1].PartialIndex != 1 {
		t.Fatalf("partial indices out of order: %+v", partials)
	}
	if final == nil {
		t.Fatal("stream without final item never completed")
	}
	if !bytes.Equal(final.Artifact, []byte("p1")) {
		t.Fatalf("promoted artifact is %q, want last partial", final.Artifact)
	}
}

func TestCompletedEntryIsCached(t *testing.T) {
	gen := &stubGen{name: "a", artifact: &provider.Artifact{Bytes: []byte("fresh"), MediaType: "image/png"}}
	f := newFixture(gen)

	events := collect(f.orch.Run(context.Background(), domain.GenerationRequest{
		Target:   "https://example.com",
		CallerID: "caller",
	}, ModeSingle))
	if events[len(events)-1].Stage != StageCompleted {
		t.Fatalf("pipeline did not complete: %v", stages(events))
	}

	key := cache.KeyFor("https://example.com", "a")
	deadline := time.Now().Add(2 * time.Second)
	for {
		if f.store.has(key.ArtifactObject()) && f.store.has(key.MetadataObject()) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("best-effort cache write never landed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCancellationSilencesStream(t *testing.T) {
	gate := make(chan struct{})
	gen := &stubGen{name: "a", gate: gate, partials: []provider.Partial{
		{Bytes: []byte("p0"), MediaType: "image/png", Index: 0},
		{Bytes: []byte("p1"), MediaType: "image/png", Index: 1, Final: true},
	}}
	f := newFixture(gen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := f.orch.Run(ctx, domain.GenerationRequest{
		Target:   "https://example.com",
		CallerID: "caller",
	}, ModeStream)

	var sawFirstPartial bool
	var after []Event
	for ev := range events {
		if sawFirstPartial {
			after = append(after, ev)
			continue
		}
		if ev.Stage == StagePartial {
			sawFirstPartial = true
			cancel()
			close(gate)
		}
	}
	if !sawFirstPartial {
		t.Fatal("stream never reached a partial event")
	}
	for _, ev := range after {
		if ev.Stage == StageError || ev.Stage == StageCompleted {
			t.Fatalf("terminal event %s emitted after cancellation", ev.Stage)
		}
	}
}

func TestUnknownPreferenceIgnored(t *testing.T) {
	gen := &stubGen{name: "a", artifact: &provider.Artifact{Bytes: []byte("img"), MediaType: "image/png"}}
	f := newFixture(gen)

	events := collect(f.orch.Run(context.Background(), domain.GenerationRequest{
		Target:             "https://example.com",
		ProviderPreference: "missing",
		CallerID:           "caller",
	}, ModeSingle))

	final := events[len(events)-1]
	if final.Stage != StageCompleted || final.Provider != "a" {
		t.Fatalf("unexpected final event %+v", final)
	}
}

func TestAllProvidersFailed(t *testing.T) {
	a := &stubGen{name: "a", genErr: errors.New("a down")}
	b := &stubGen{name: "b", genErr: errors.New("b down")}
	f := newFixture(a, b)

	events := collect(f.orch.Run(context.Background(), domain.GenerationRequest{
		Target:   "https://example.com",
		CallerID: "caller",
	}, ModeSingle))

	final := events[len(events)-1]
	if final.Stage != StageError || final.Code != "providers_failed" {
		t.Fatalf("unexpected final event %+v", final)
	}
}
