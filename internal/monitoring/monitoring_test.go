package monitoring

import (
	"context"
	"testing"
	"time"

	"jobradar/internal/quota"
	"jobradar/internal/repository"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type statsStub struct {
	sites    []SiteCount
	coverage repository.CompanyCoverage
	last     *time.Time
	err      error
}

func (s statsStub) JobsBySite(ctx context.Context, since time.Time) ([]SiteCount, error) {
	return s.sites, s.err
}

func (s statsStub) CompanyCoverage(ctx context.Context, since time.Time) (repository.CompanyCoverage, error) {
	return s.coverage, s.err
}

func (s statsStub) TopSearchTerms(ctx context.Context, since time.Time, limit int) ([]TermCount, error) {
	return []TermCount{{Term: "golang", Count: 4}}, s.err
}

func (s statsStub) LastCollectedAt(ctx context.Context) (*time.Time, error) {
	return s.last, s.err
}

type runsStub []repository.CollectionRun

func (r runsStub) Recent(ctx context.Context, since time.Time, limit int) ([]repository.CollectionRun, error) {
	return r, nil
}

type countStub int

func (c countStub) CountPendingEmbedding(ctx context.Context) (int, error) { return int(c), nil }
func (c countStub) CountOutstanding(ctx context.Context) (int, error)      { return int(c), nil }

func alertTypes(alerts []Alert) []string {
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Type)
	}
	return out
}

func TestEvaluate_Healthy(t *testing.T) {
	last := now.Add(-time.Hour)
	m := Metrics{TotalJobs: 500, CompanyExtractionRate: 0.9, DuplicateRate: 0.05, LastCollectedAt: &last}
	assert.Empty(t, Evaluate(m, DefaultThresholds(), now))
}

func TestEvaluate_AllAlerts(t *testing.T) {
	last := now.Add(-7 * time.Hour)
	m := Metrics{TotalJobs: 10, CompanyExtractionRate: 0.5, DuplicateRate: 0.2, LastCollectedAt: &last}
	alerts := Evaluate(m, DefaultThresholds(), now)
	assert.Equal(t, []string{AlertLowCollection, AlertDataQuality, AlertHighDuplicates, AlertCollectionStopped}, alertTypes(alerts))
	assert.Equal(t, SeverityCritical, alerts[3].Severity)
	assert.Equal(t, "collection_stopped_20261018_12", alerts[3].ID)
	for _, a := range alerts {
		assert.Equal(t, now, a.CreatedAt)
	}
}

func TestEvaluate_NeverCollected(t *testing.T) {
	alerts := Evaluate(Metrics{}, DefaultThresholds(), now)
	assert.Equal(t, []string{AlertLowCollection, AlertCollectionStopped}, alertTypes(alerts))
}

func TestRecommendations_UnderperformingSite(t *testing.T) {
	m := Metrics{
		TotalJobs:             300,
		CompanyExtractionRate: 0.95,
		JobsBySite:            []SiteCount{{Site: "indeed", Count: 280}, {Site: "google", Count: 20}},
	}
	recs := Recommendations(m, nil, DefaultThresholds())
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0], "google")
}

func TestService_Report(t *testing.T) {
	last := now.Add(-30 * time.Minute)
	stats := statsStub{
		sites:    []SiteCount{{Site: "indeed", Count: 90}, {Site: "linkedin", Count: 60}},
		coverage: repository.CompanyCoverage{Total: 150, WithCompany: 120},
		last:     &last,
	}
	runs := runsStub{
		{Status: repository.RunStatusCompleted, ListingsReturned: 100, Duplicates: 5},
		{Status: repository.RunStatusFailed, ListingsReturned: 100, Duplicates: 15},
	}
	ledger := quota.NewLedger(quota.NewMemoryStore(), map[string]int{"indeed": 300}, 100, nil)

	svc := NewService(stats, runs, countStub(7), countStub(2), ledger, Config{Sources: []string{"indeed"}}, nil)
	svc.now = func() time.Time { return now }

	rep, err := svc.Report(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Partial)
	assert.Equal(t, 150, rep.Metrics.TotalJobs)
	assert.InDelta(t, 0.8, rep.Metrics.CompanyExtractionRate, 1e-9)
	assert.InDelta(t, 0.1, rep.Metrics.DuplicateRate, 1e-9)
	assert.Equal(t, 2, rep.Metrics.Runs)
	assert.Equal(t, 1, rep.Metrics.FailedRuns)
	assert.Equal(t, 7, rep.Metrics.PendingEmbeddings)
	assert.Equal(t, 2, rep.Metrics.OutstandingBatches)
	assert.Empty(t, rep.Alerts)
	require.Len(t, rep.Quota, 1)
	assert.Equal(t, 300, rep.Quota[0].Limit)
}

func TestService_AllQueriesFail(t *testing.T) {
	svc := NewService(statsStub{err: errors.New("db down")}, nil, nil, nil, nil, Config{}, nil)
	_, err := svc.Report(context.Background())
	require.Error(t, err)
}
