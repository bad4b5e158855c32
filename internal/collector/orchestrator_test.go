package collector

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"jobradar/internal/domain/job"
	"jobradar/internal/normalize"
	"jobradar/internal/quota"
	"jobradar/internal/repository"
	"jobradar/internal/source"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name     string
	mu       sync.Mutex
	calls    int
	wanted   []int
	listings func(spec source.SearchSpec, call int) ([]source.RawListing, error)
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Fetch(ctx context.Context, spec source.SearchSpec, resultsWanted, maxAgeHours int) ([]source.RawListing, error) {
	a.mu.Lock()
	a.calls++
	call := a.calls
	a.wanted = append(a.wanted, resultsWanted)
	a.mu.Unlock()
	return a.listings(spec, call)
}

func (a *fakeAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// hangingAdapter blocks until the fetch context ends.
type hangingAdapter struct{ name string }

func (a hangingAdapter) Name() string { return a.name }

func (a hangingAdapter) Fetch(ctx context.Context, spec source.SearchSpec, resultsWanted, maxAgeHours int) ([]source.RawListing, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type adapters map[string]source.Adapter

func (m adapters) Get(name string) (source.Adapter, bool) {
	a, ok := m[name]
	return a, ok
}

type fakeUpserter struct {
	jobs   []job.Job
	err    error
	ctxErr error
}

func (u *fakeUpserter) Upsert(ctx context.Context, jobs []job.Job) (repository.UpsertResult, error) {
	u.ctxErr = ctx.Err()
	if u.err != nil {
		return repository.UpsertResult{}, u.err
	}
	u.jobs = append(u.jobs, jobs...)
	kept, dups := repository.PrefilterLatest(jobs)
	return repository.UpsertResult{Inserted: len(kept), DuplicatesWithinBatch: dups}, nil
}

type fakeRuns struct {
	started  []string
	finished []repository.CollectionRun
}

func (r *fakeRuns) Start(ctx context.Context, runID, window string, startedAt time.Time) error {
	r.started = append(r.started, runID)
	return nil
}

func (r *fakeRuns) Finish(ctx context.Context, run repository.CollectionRun) error {
	r.finished = append(r.finished, run)
	return nil
}

type fakeEvents struct {
	runID    string
	inserted int
}

func (e *fakeEvents) PublishJobsUpdated(ctx context.Context, runID string, inserted, updated int) error {
	e.runID = runID
	e.inserted = inserted
	return nil
}

type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, source, day string, limit int) (quota.Record, error) {
	return quota.Record{}, errors.New("connection refused")
}

func (brokenStore) Add(ctx context.Context, source, day string, limit, n int) (quota.Record, bool, error) {
	return quota.Record{}, false, errors.New("connection refused")
}

var cycleStart = time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)

func listingsFor(src string, n int, prefix string) []source.RawListing {
	out := make([]source.RawListing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, source.RawListing{
			Title:   "Backend Engineer",
			Company: "Acme",
			URL:     fmt.Sprintf("https://%s.example.com/job/%s-%d", src, prefix, i),
			Source:  src,
		})
	}
	return out
}

func newTestOrchestrator(a AdapterLookup, ledger *quota.Ledger, up JobUpserter, runs RunRecorder, ev EventPublisher, cfg Config) *Orchestrator {
	n := normalize.New(0)
	n.Now = func() time.Time { return cycleStart }
	o := NewOrchestrator(a, ledger, n, up, runs, ev, cfg, nil)
	o.now = func() time.Time { return cycleStart }
	return o
}

func TestRunCycle_CollectsAndUpserts(t *testing.T) {
	siteA := &fakeAdapter{name: "siteA", listings: func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		return listingsFor("a", 3, spec.Term), nil
	}}
	siteB := &fakeAdapter{name: "siteB", listings: func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		out := listingsFor("b", 2, spec.Term)
		out = append(out, source.RawListing{Title: "", URL: "https://b.example.com/job/x"})
		return out, nil
	}}

	ledger := quota.NewLedger(quota.NewMemoryStore(), map[string]int{"siteA": 100, "siteB": 100}, 10, nil)
	up := &fakeUpserter{}
	runs := &fakeRuns{}
	ev := &fakeEvents{}
	o := newTestOrchestrator(adapters{"siteA": siteA, "siteB": siteB}, ledger, up, runs, ev, Config{ResultsPerSpec: 5, BatchIdentifier: "test"})

	specs := []source.SearchSpec{
		{Term: "go", Location: "Remote", Source: "siteA"},
		{Term: "go", Location: "Remote", Source: "siteB"},
		{Term: "rust", Location: "Remote", Source: "siteA"},
	}
	sum, err := o.RunCycle(context.Background(), specs, RunOptions{Window: "morning"})
	require.NoError(t, err)

	assert.Equal(t, "20250301_060000_test", sum.RunID)
	assert.Equal(t, 2, siteA.Calls())
	assert.Equal(t, 1, siteB.Calls())

	a := sum.Source("siteA")
	assert.Equal(t, 10, a.Requested)
	assert.Equal(t, 6, a.Returned)
	assert.Equal(t, 6, a.Accepted)

	b := sum.Source("siteB")
	assert.Equal(t, 5, b.Requested)
	assert.Equal(t, 3, b.Returned)
	assert.Equal(t, 1, b.Rejected)
	assert.Equal(t, 1, b.RejectReasons[normalize.ReasonTitle])

	assert.Equal(t, 8, sum.Accepted)
	assert.Equal(t, 8, sum.Inserted)
	require.Len(t, up.jobs, 8)
	require.NotNil(t, up.jobs[0].CollectionRunID)
	assert.Equal(t, sum.RunID, *up.jobs[0].CollectionRunID)

	rec, err := ledger.Status(context.Background(), "siteA", "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Used)

	require.Len(t, runs.finished, 1)
	assert.Equal(t, repository.RunStatusCompleted, runs.finished[0].Status)
	assert.Equal(t, 9, runs.finished[0].ListingsReturned)
	assert.Len(t, sum.Quota, 2)
	assert.Equal(t, sum.RunID, ev.runID)
	assert.Equal(t, 8, ev.inserted)
}

func TestRunCycle_SourceErrorDoesNotAbort(t *testing.T) {
	limited := &fakeAdapter{name: "siteA", listings: func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		return nil, &source.SourceError{Source: "siteA", RateLimited: true, StatusCode: 429}
	}}
	ok := &fakeAdapter{name: "siteB", listings: func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		return listingsFor("b", 2, spec.Term), nil
	}}

	ledger := quota.NewLedger(quota.NewMemoryStore(), nil, 100, nil)
	up := &fakeUpserter{}
	o := newTestOrchestrator(adapters{"siteA": limited, "siteB": ok}, ledger, up, nil, nil, Config{ResultsPerSpec: 5})

	specs := []source.SearchSpec{
		{Term: "go", Source: "siteA"},
		{Term: "rust", Source: "siteA"},
		{Term: "go", Source: "siteB"},
	}
	sum, err := o.RunCycle(context.Background(), specs, RunOptions{})
	require.NoError(t, err)

	a := sum.Source("siteA")
	assert.True(t, a.RateLimited)
	assert.Equal(t, 1, a.Failures)
	assert.Equal(t, 1, a.Skipped)
	assert.Equal(t, 1, limited.Calls())
	// the failed call still counts against quota
	assert.Equal(t, 5, a.Requested)

	assert.Equal(t, 2, sum.Source("siteB").Accepted)
	assert.Len(t, up.jobs, 2)
}

func TestRunCycle_PartialListingsWithErrorAreKept(t *testing.T) {
	flaky := &fakeAdapter{name: "siteA", listings: func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		return listingsFor("a", 2, "p"), &source.SourceError{Source: "siteA", Err: errors.New("page 2 failed")}
	}}
	ledger := quota.NewLedger(quota.NewMemoryStore(), nil, 100, nil)
	up := &fakeUpserter{}
	o := newTestOrchestrator(adapters{"siteA": flaky}, ledger, up, nil, nil, Config{ResultsPerSpec: 5})

	sum, err := o.RunCycle(context.Background(), []source.SearchSpec{{Term: "go", Source: "siteA"}}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Source("siteA").Failures)
	assert.Len(t, up.jobs, 2)
}

func TestRunCycle_QuotaExhaustedSkipsSource(t *testing.T) {
	site := &fakeAdapter{name: "siteA", listings: func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		return listingsFor("a", 1, fmt.Sprint(call)), nil
	}}
	ledger := quota.NewLedger(quota.NewMemoryStore(), map[string]int{"siteA": 8}, 10, nil)
	o := newTestOrchestrator(adapters{"siteA": site}, ledger, &fakeUpserter{}, nil, nil, Config{ResultsPerSpec: 5})

	specs := []source.SearchSpec{{Term: "a", Source: "siteA"}, {Term: "b", Source: "siteA"}, {Term: "c", Source: "siteA"}}
	sum, err := o.RunCycle(context.Background(), specs, RunOptions{})
	require.NoError(t, err)

	a := sum.Source("siteA")
	assert.Equal(t, 2, site.Calls())
	assert.Equal(t, []int{5, 3}, site.wanted)
	assert.Equal(t, 8, a.Requested)
	assert.True(t, a.Exhausted)
	assert.Equal(t, 1, a.Skipped)
}

func TestRunCycle_StopsAtListingBudget(t *testing.T) {
	site := &fakeAdapter{name: "siteA", listings: func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		return listingsFor("a", 4, fmt.Sprint(call)), nil
	}}
	ledger := quota.NewLedger(quota.NewMemoryStore(), nil, 100, nil)
	o := newTestOrchestrator(adapters{"siteA": site}, ledger, &fakeUpserter{}, nil, nil, Config{ResultsPerSpec: 5, MaxListingsPerRun: 6})

	specs := []source.SearchSpec{{Term: "a", Source: "siteA"}, {Term: "b", Source: "siteA"}, {Term: "c", Source: "siteA"}}
	sum, err := o.RunCycle(context.Background(), specs, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, site.Calls())
	assert.Equal(t, []int{5, 2}, site.wanted)
	assert.Equal(t, 1, sum.Source("siteA").Skipped)
}

func TestRunCycle_CountsCrossSourceDuplicates(t *testing.T) {
	same := func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		return []source.RawListing{{Title: "SRE", Company: "Acme", URL: "https://acme.com/careers/7?utm_source=x"}}, nil
	}
	ledger := quota.NewLedger(quota.NewMemoryStore(), nil, 100, nil)
	up := &fakeUpserter{}
	o := newTestOrchestrator(adapters{
		"siteA": &fakeAdapter{name: "siteA", listings: same},
		"siteB": &fakeAdapter{name: "siteB", listings: same},
	}, ledger, up, nil, nil, Config{})

	sum, err := o.RunCycle(context.Background(), []source.SearchSpec{{Term: "sre", Source: "siteA"}, {Term: "sre", Source: "siteB"}}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Equal(t, 1, sum.Inserted)
	assert.InDelta(t, 0.5, sum.DuplicateRate(), 1e-9)
}

func TestRunCycle_QuotaStoreFailureAborts(t *testing.T) {
	site := &fakeAdapter{name: "siteA", listings: func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		return listingsFor("a", 1, "x"), nil
	}}
	runs := &fakeRuns{}
	ledger := quota.NewLedger(brokenStore{}, nil, 100, nil)
	o := newTestOrchestrator(adapters{"siteA": site}, ledger, &fakeUpserter{}, runs, nil, Config{})

	_, err := o.RunCycle(context.Background(), []source.SearchSpec{{Term: "a", Source: "siteA"}}, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, 0, site.Calls())
	require.Len(t, runs.finished, 1)
	assert.Equal(t, repository.RunStatusFailed, runs.finished[0].Status)
}

func TestRunCycle_UpsertFailureAborts(t *testing.T) {
	site := &fakeAdapter{name: "siteA", listings: func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		return listingsFor("a", 1, "x"), nil
	}}
	ledger := quota.NewLedger(quota.NewMemoryStore(), nil, 100, nil)
	o := newTestOrchestrator(adapters{"siteA": site}, ledger, &fakeUpserter{err: errors.New("db down")}, nil, nil, Config{})

	_, err := o.RunCycle(context.Background(), []source.SearchSpec{{Term: "a", Source: "siteA"}}, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert collected jobs")
}

func TestRunCycle_UnknownSourceIsContained(t *testing.T) {
	ledger := quota.NewLedger(quota.NewMemoryStore(), nil, 100, nil)
	o := newTestOrchestrator(adapters{}, ledger, &fakeUpserter{}, nil, nil, Config{})

	sum, err := o.RunCycle(context.Background(), []source.SearchSpec{{Term: "a", Source: "ghost"}}, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Source("ghost").Failures)
}

func TestRunCycle_FetchTimeoutIsASourceError(t *testing.T) {
	ok := &fakeAdapter{name: "siteB", listings: func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		return listingsFor("b", 2, spec.Term), nil
	}}
	ledger := quota.NewLedger(quota.NewMemoryStore(), nil, 100, nil)
	up := &fakeUpserter{}
	runs := &fakeRuns{}
	o := newTestOrchestrator(adapters{"siteA": hangingAdapter{name: "siteA"}, "siteB": ok}, ledger, up, runs, nil,
		Config{ResultsPerSpec: 5, FetchTimeout: 30 * time.Millisecond})

	specs := []source.SearchSpec{{Term: "go", Source: "siteA"}, {Term: "go", Source: "siteB"}}
	sum, err := o.RunCycle(context.Background(), specs, RunOptions{})
	require.NoError(t, err)
	assert.False(t, sum.Cancelled)

	a := sum.Source("siteA")
	assert.Equal(t, 1, a.Failures)
	require.Len(t, a.Errors, 1)
	assert.Contains(t, a.Errors[0], "source siteA")
	assert.Contains(t, a.Errors[0], "timed out")

	assert.Len(t, up.jobs, 2)
	require.Len(t, runs.finished, 1)
	assert.Equal(t, repository.RunStatusCompleted, runs.finished[0].Status)
}

func TestRunCycle_CancelledMidCycleKeepsFetchedListings(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	site := &fakeAdapter{name: "siteA", listings: func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		if call == 2 {
			cancel()
		}
		return listingsFor("a", 2, spec.Term), nil
	}}
	ledger := quota.NewLedger(quota.NewMemoryStore(), nil, 100, nil)
	up := &fakeUpserter{}
	runs := &fakeRuns{}
	o := newTestOrchestrator(adapters{"siteA": site}, ledger, up, runs, nil, Config{ResultsPerSpec: 5})

	specs := []source.SearchSpec{
		{Term: "go", Source: "siteA"},
		{Term: "rust", Source: "siteA"},
		{Term: "java", Source: "siteA"},
	}
	sum, err := o.RunCycle(ctx, specs, RunOptions{})
	require.NoError(t, err)
	assert.True(t, sum.Cancelled)
	assert.Equal(t, 2, site.Calls())
	assert.Equal(t, 1, sum.Source("siteA").Skipped)

	assert.Len(t, up.jobs, 4)
	assert.NoError(t, up.ctxErr)

	rec, err := ledger.Status(context.Background(), "siteA", quota.Day(cycleStart))
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Used)

	require.Len(t, runs.finished, 1)
	assert.Equal(t, repository.RunStatusFailed, runs.finished[0].Status)
	require.NotNil(t, runs.finished[0].ErrorMessage)
	assert.Equal(t, "cancelled", *runs.finished[0].ErrorMessage)
}

func TestRunCycle_CancelledUpFrontSkipsEverySpec(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	site := &fakeAdapter{name: "siteA", listings: func(spec source.SearchSpec, call int) ([]source.RawListing, error) {
		return listingsFor("a", 2, spec.Term), nil
	}}
	ledger := quota.NewLedger(quota.NewMemoryStore(), nil, 100, nil)
	up := &fakeUpserter{}
	runs := &fakeRuns{}
	o := newTestOrchestrator(adapters{"siteA": site}, ledger, up, runs, nil, Config{ResultsPerSpec: 5})

	specs := []source.SearchSpec{{Term: "go", Source: "siteA"}, {Term: "rust", Source: "siteA"}}
	sum, err := o.RunCycle(ctx, specs, RunOptions{})
	require.NoError(t, err)
	assert.True(t, sum.Cancelled)
	assert.Equal(t, 0, site.Calls())
	assert.Equal(t, 2, sum.Source("siteA").Skipped)
	assert.Empty(t, up.jobs)

	require.Len(t, runs.finished, 1)
	assert.Equal(t, repository.RunStatusFailed, runs.finished[0].Status)
}
