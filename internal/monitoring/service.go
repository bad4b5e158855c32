// Package monitoring reports collection health: recent volume, data quality,
// embedding backlog and threshold alerts.
package monitoring

import (
	"context"
	"sync"
	"time"

	"jobradar/internal/logger"
	"jobradar/internal/quota"
	"jobradar/internal/repository"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type SiteCount = repository.SiteCount
type TermCount = repository.TermCount

type Metrics struct {
	WindowHours           int         `json:"window_hours"`
	TotalJobs             int         `json:"total_jobs"`
	JobsBySite            []SiteCount `json:"jobs_by_site"`
	CompanyExtractionRate float64     `json:"company_extraction_rate"`
	DuplicateRate         float64     `json:"duplicate_rate"`
	TopSearchTerms        []TermCount `json:"top_search_terms"`
	LastCollectedAt       *time.Time  `json:"last_collected_at"`
	Runs                  int         `json:"runs"`
	FailedRuns            int         `json:"failed_runs"`
	PendingEmbeddings     int         `json:"pending_embeddings"`
	OutstandingBatches    int         `json:"outstanding_batches"`
}

type Report struct {
	Metrics         Metrics        `json:"metrics"`
	Alerts          []Alert        `json:"alerts"`
	Recommendations []string       `json:"recommendations"`
	Quota           []quota.Record `json:"quota"`
	Partial         bool           `json:"partial"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

type RunLister interface {
	Recent(ctx context.Context, since time.Time, limit int) ([]repository.CollectionRun, error)
}

type PendingCounter interface {
	CountPendingEmbedding(ctx context.Context) (int, error)
}

type BatchCounter interface {
	CountOutstanding(ctx context.Context) (int, error)
}

type QuotaReader interface {
	Snapshot(ctx context.Context, day string, sources []string) ([]quota.Record, error)
}

type Config struct {
	WindowHours int
	Thresholds  Thresholds
	Sources     []string
}

type Service struct {
	stats   repository.StatsRepository
	runs    RunLister
	pending PendingCounter
	batches BatchCounter
	quota   QuotaReader
	cfg     Config
	log     *zap.SugaredLogger
	now     func() time.Time
}

func NewService(stats repository.StatsRepository, runs RunLister, pending PendingCounter, batches BatchCounter, q QuotaReader, cfg Config, log *zap.SugaredLogger) *Service {
	if cfg.WindowHours <= 0 {
		cfg.WindowHours = 24
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	return &Service{
		stats:   stats,
		runs:    runs,
		pending: pending,
		batches: batches,
		quota:   q,
		cfg:     cfg,
		log:     logger.OrNop(log),
		now:     time.Now,
	}
}

// Collect gathers metrics concurrently. A failing query is logged and leaves
// its part zero; Collect only errors when every query failed.
func (s *Service) Collect(ctx context.Context) (Metrics, bool, error) {
	now := s.now().UTC()
	since := now.Add(-time.Duration(s.cfg.WindowHours) * time.Hour)
	m := Metrics{WindowHours: s.cfg.WindowHours}

	var (
		mu       sync.Mutex
		failures int
		total    int
	)
	wg := sync.WaitGroup{}
	step := func(name string, fn func() error) {
		total++
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				s.log.Errorw("monitoring step failed", "pipeline", "monitoring", "step", name, "error", err)
			}
		}()
	}

	var (
		bySite   []SiteCount
		coverage repository.CompanyCoverage
		terms    []TermCount
		last     *time.Time
		runs     []repository.CollectionRun
		pending  int
		batches  int
	)

	step("jobs_by_site", func() (err error) { bySite, err = s.stats.JobsBySite(ctx, since); return })
	step("company_coverage", func() (err error) { coverage, err = s.stats.CompanyCoverage(ctx, since); return })
	step("top_search_terms", func() (err error) { terms, err = s.stats.TopSearchTerms(ctx, since, 10); return })
	step("last_collected_at", func() (err error) { last, err = s.stats.LastCollectedAt(ctx); return })
	if s.runs != nil {
		step("runs", func() (err error) { runs, err = s.runs.Recent(ctx, since, 500); return })
	}
	if s.pending != nil {
		step("pending_embeddings", func() (err error) { pending, err = s.pending.CountPendingEmbedding(ctx); return })
	}
	if s.batches != nil {
		step("outstanding_batches", func() (err error) { batches, err = s.batches.CountOutstanding(ctx); return })
	}
	wg.Wait()

	if failures == total {
		return Metrics{}, true, errors.New("monitoring: every metrics query failed")
	}

	m.JobsBySite = bySite
	for _, sc := range bySite {
		m.TotalJobs += sc.Count
	}
	if coverage.Total > 0 {
		m.CompanyExtractionRate = float64(coverage.WithCompany) / float64(coverage.Total)
	}
	m.TopSearchTerms = terms
	m.LastCollectedAt = last
	m.PendingEmbeddings = pending
	m.OutstandingBatches = batches

	var returned, duplicates int
	for _, r := range runs {
		m.Runs++
		if r.Status == repository.RunStatusFailed {
			m.FailedRuns++
		}
		returned += r.ListingsReturned
		duplicates += r.Duplicates
	}
	if returned > 0 {
		m.DuplicateRate = float64(duplicates) / float64(returned)
	}
	return m, failures > 0, nil
}

// Report collects metrics, evaluates alerts and logs each alert.
func (s *Service) Report(ctx context.Context) (Report, error) {
	m, partial, err := s.Collect(ctx)
	if err != nil {
		return Report{}, err
	}
	now := s.now().UTC()
	alerts := Evaluate(m, s.cfg.Thresholds, now)

	rep := Report{
		Metrics:         m,
		Alerts:          alerts,
		Recommendations: Recommendations(m, alerts, s.cfg.Thresholds),
		Partial:         partial,
		GeneratedAt:     now,
	}
	if s.quota != nil && len(s.cfg.Sources) > 0 {
		recs, err := s.quota.Snapshot(ctx, quota.Day(now), s.cfg.Sources)
		if err != nil {
			s.log.Errorw("monitoring quota snapshot failed", "pipeline", "monitoring", "error", err)
			rep.Partial = true
		} else {
			rep.Quota = recs
		}
	}
	if rep.Alerts == nil {
		rep.Alerts = []Alert{}
	}

	for _, a := range alerts {
		switch a.Severity {
		case SeverityCritical, SeverityError:
			s.log.Errorw("health alert", "pipeline", "monitoring", "type", a.Type, "severity", a.Severity, "message", a.Message)
		default:
			s.log.Warnw("health alert", "pipeline", "monitoring", "type", a.Type, "severity", a.Severity, "message", a.Message)
		}
	}
	return rep, nil
}
