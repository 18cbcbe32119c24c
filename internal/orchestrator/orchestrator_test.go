package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobwatch/crawler/internal/adapter"
	"github.com/jobwatch/crawler/internal/crawler"
	"github.com/jobwatch/crawler/internal/reconciler"
	"github.com/jobwatch/crawler/internal/storage/memory"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

// stubAdapter returns a canned result or error per target ID.
type stubAdapter struct {
	results map[string]adapter.Result
	errs    map[string]error
}

func (s *stubAdapter) Poll(_ context.Context, target crawler.CrawlTarget) (adapter.Result, error) {
	if err, ok := s.errs[target.ID]; ok {
		return adapter.Result{}, err
	}
	return s.results[target.ID], nil
}

type capturingPublisher struct {
	events []crawler.ChangeEvent
	err    error
}

func (p *capturingPublisher) PublishChange(_ context.Context, event crawler.ChangeEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

const stubKind crawler.AdapterKind = "stub"

func newHarness(t *testing.T, stub *stubAdapter) (*Orchestrator, *memory.Store, *capturingPublisher, *fixedClock) {
	t.Helper()

	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)}
	publisher := &capturingPublisher{}

	registry := adapter.NewRegistry(nil, zap.NewNop())
	registry.Register(stubKind, stub)

	rec := reconciler.New(store, clock)
	orch := New(store, registry, rec, publisher, clock, zap.NewNop())
	return orch, store, publisher, clock
}

func stubTarget(id string) crawler.CrawlTarget {
	return crawler.CrawlTarget{
		ID:      id,
		Name:    "Target " + id,
		ListURL: "https://example.com/" + id,
		Kind:    stubKind,
		Active:  true,
	}
}

func normalized(url, content string) crawler.NormalizedPosting {
	return crawler.NormalizedPosting{
		Title:       "Role at " + url,
		CompanyName: "Example",
		URL:         url,
		Content:     content,
	}
}

func TestRunPassNewPostings(t *testing.T) {
	t.Parallel()

	stub := &stubAdapter{results: map[string]adapter.Result{
		"t1": {
			Fingerprint: "fp-1",
			Postings: []crawler.NormalizedPosting{
				normalized("https://example.com/jobs/a", "content a"),
				normalized("https://example.com/jobs/b", "content b"),
			},
		},
	}}
	orch, store, publisher, _ := newHarness(t, stub)
	store.AddTarget(stubTarget("t1"))

	stats, err := orch.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.PassStats{New: 2}, stats)

	target, ok := store.GetTarget("t1")
	require.True(t, ok)
	require.Equal(t, "fp-1", target.LastFingerprint)
	require.NotNil(t, target.LastCheckedAt)

	require.Len(t, publisher.events, 2)
	require.Equal(t, crawler.OutcomeNew, publisher.events[0].Outcome)
	require.Equal(t, "t1", publisher.events[0].TargetID)
}

func TestRunPassUnchangedFingerprintOnlyStampsChecked(t *testing.T) {
	t.Parallel()

	stub := &stubAdapter{results: map[string]adapter.Result{
		"t1": {Fingerprint: "fp-same"},
	}}
	orch, store, publisher, _ := newHarness(t, stub)
	target := stubTarget("t1")
	target.LastFingerprint = "fp-same"
	store.AddTarget(target)

	stats, err := orch.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.PassStats{}, stats)
	require.Empty(t, publisher.events)

	stored, _ := store.GetTarget("t1")
	require.Equal(t, "fp-same", stored.LastFingerprint)
	require.NotNil(t, stored.LastCheckedAt)
}

func TestRunPassReconcilesChangesAcrossPasses(t *testing.T) {
	t.Parallel()

	stub := &stubAdapter{results: map[string]adapter.Result{
		"t1": {
			Fingerprint: "fp-1",
			Postings: []crawler.NormalizedPosting{
				normalized("https://example.com/jobs/a", "content a"),
				normalized("https://example.com/jobs/b", "content b"),
			},
		},
	}}
	orch, store, publisher, clock := newHarness(t, stub)
	store.AddTarget(stubTarget("t1"))

	stats, err := orch.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.PassStats{New: 2}, stats)

	// Second pass: a unchanged, b rewritten, c appears.
	clock.now = clock.now.Add(time.Hour)
	stub.results["t1"] = adapter.Result{
		Fingerprint: "fp-2",
		Postings: []crawler.NormalizedPosting{
			normalized("https://example.com/jobs/a", "content a"),
			normalized("https://example.com/jobs/b", "content b v2"),
			normalized("https://example.com/jobs/c", "content c"),
		},
	}

	stats, err = orch.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.PassStats{New: 1, Updated: 1, Skipped: 1}, stats)

	target, _ := store.GetTarget("t1")
	require.Equal(t, "fp-2", target.LastFingerprint)

	// SKIP outcomes are not published: 2 from pass one, NEW + UPDATED from pass two.
	require.Len(t, publisher.events, 4)
}

// Three jobs A/B/C; only B's upstream timestamp moves between passes. The
// new fingerprint forces a full remap, but reconciliation still reports B as
// the only update when its content changed, or all three as skips when the
// payloads are byte-identical.
func TestRunPassTimestampOnlyChange(t *testing.T) {
	t.Parallel()

	pass1 := []crawler.NormalizedPosting{
		normalized("https://example.com/jobs/a", "content a"),
		normalized("https://example.com/jobs/b", "content b"),
		normalized("https://example.com/jobs/c", "content c"),
	}
	stub := &stubAdapter{results: map[string]adapter.Result{
		"t1": {Fingerprint: "fp-t1", Postings: pass1},
	}}
	orch, store, _, clock := newHarness(t, stub)
	store.AddTarget(stubTarget("t1"))

	stats, err := orch.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.PassStats{New: 3}, stats)

	// B's content actually changed along with its timestamp.
	clock.now = clock.now.Add(time.Hour)
	stub.results["t1"] = adapter.Result{
		Fingerprint: "fp-t2",
		Postings: []crawler.NormalizedPosting{
			pass1[0],
			normalized("https://example.com/jobs/b", "content b v2"),
			pass1[2],
		},
	}
	stats, err = orch.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.PassStats{Updated: 1, Skipped: 2}, stats)

	// Timestamp moved again but every payload is byte-identical: all skips,
	// fingerprint still advances.
	stub.results["t1"] = adapter.Result{
		Fingerprint: "fp-t3",
		Postings: []crawler.NormalizedPosting{
			pass1[0],
			normalized("https://example.com/jobs/b", "content b v2"),
			pass1[2],
		},
	}
	stats, err = orch.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.PassStats{Skipped: 3}, stats)

	target, _ := store.GetTarget("t1")
	require.Equal(t, "fp-t3", target.LastFingerprint)
}

func TestRunPassTargetFailureIsIsolated(t *testing.T) {
	t.Parallel()

	stub := &stubAdapter{
		results: map[string]adapter.Result{
			"ok": {
				Fingerprint: "fp-ok",
				Postings:    []crawler.NormalizedPosting{normalized("https://example.com/jobs/x", "x")},
			},
		},
		errs: map[string]error{
			"bad": &crawler.FetchError{URL: "https://example.com/bad", StatusCode: 500, Transient: true},
		},
	}
	orch, store, _, _ := newHarness(t, stub)
	store.AddTarget(stubTarget("bad"))
	store.AddTarget(stubTarget("ok"))

	stats, err := orch.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Errors)
	require.Equal(t, 1, stats.New)

	bad, _ := store.GetTarget("bad")
	require.Contains(t, bad.LastError, "status 500")
	// Failed target keeps its fingerprint so the next pass retries mapping.
	require.Empty(t, bad.LastFingerprint)

	ok, _ := store.GetTarget("ok")
	require.Equal(t, "fp-ok", ok.LastFingerprint)
	require.Empty(t, ok.LastError)
}

func TestRunPassUnknownKindFailsTarget(t *testing.T) {
	t.Parallel()

	orch, store, _, _ := newHarness(t, &stubAdapter{})
	target := stubTarget("t1")
	target.Kind = "no_such_kind"
	store.AddTarget(target)

	stats, err := orch.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Errors)

	stored, _ := store.GetTarget("t1")
	require.Contains(t, stored.LastError, "no adapter for kind")
}

func TestRunPassCountsItemErrors(t *testing.T) {
	t.Parallel()

	stub := &stubAdapter{results: map[string]adapter.Result{
		"t1": {
			Fingerprint: "fp-1",
			Postings:    []crawler.NormalizedPosting{normalized("https://example.com/jobs/a", "a")},
			ItemErrors:  2,
		},
	}}
	orch, store, _, _ := newHarness(t, stub)
	store.AddTarget(stubTarget("t1"))

	stats, err := orch.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.PassStats{New: 1, Errors: 2}, stats)
}

func TestRunPassPublisherFailureDoesNotAffectStats(t *testing.T) {
	t.Parallel()

	stub := &stubAdapter{results: map[string]adapter.Result{
		"t1": {
			Fingerprint: "fp-1",
			Postings:    []crawler.NormalizedPosting{normalized("https://example.com/jobs/a", "a")},
		},
	}}
	orch, store, publisher, _ := newHarness(t, stub)
	publisher.err = errors.New("nats unavailable")
	store.AddTarget(stubTarget("t1"))

	stats, err := orch.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.PassStats{New: 1}, stats)
}

func TestRunPassNilPublisher(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	clock := &fixedClock{now: time.Now().UTC()}
	registry := adapter.NewRegistry(nil, zap.NewNop())
	registry.Register(stubKind, &stubAdapter{results: map[string]adapter.Result{
		"t1": {
			Fingerprint: "fp-1",
			Postings:    []crawler.NormalizedPosting{normalized("https://example.com/jobs/a", "a")},
		},
	}})

	orch := New(store, registry, reconciler.New(store, clock), nil, clock, zap.NewNop())
	store.AddTarget(stubTarget("t1"))

	stats, err := orch.RunPass(context.Background())
	require.NoError(t, err)
	require.Equal(t, crawler.PassStats{New: 1}, stats)
}
