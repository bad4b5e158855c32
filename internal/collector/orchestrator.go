// Package collector runs collection cycles: search specs are fetched from
// their sources under the quota ledger, normalized, and upserted.
package collector

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"jobradar/internal/domain/job"
	"jobradar/internal/logger"
	"jobradar/internal/normalize"
	"jobradar/internal/quota"
	"jobradar/internal/repository"
	"jobradar/internal/source"
	"jobradar/internal/worker"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type AdapterLookup interface {
	Get(name string) (source.Adapter, bool)
}

type JobUpserter interface {
	Upsert(ctx context.Context, jobs []job.Job) (repository.UpsertResult, error)
}

// RunRecorder persists the collection_runs audit row. Optional.
type RunRecorder interface {
	Start(ctx context.Context, runID string, window string, startedAt time.Time) error
	Finish(ctx context.Context, run repository.CollectionRun) error
}

// EventPublisher announces that stored jobs changed. Optional.
type EventPublisher interface {
	PublishJobsUpdated(ctx context.Context, runID string, inserted, updated int) error
}

type Config struct {
	ResultsPerSpec    int
	MaxAgeHours       int
	MaxListingsPerRun int
	FetchTimeout      time.Duration
	BatchIdentifier   string
}

func (c Config) withDefaults() Config {
	if c.ResultsPerSpec <= 0 {
		c.ResultsPerSpec = 50
	}
	if c.MaxAgeHours <= 0 {
		c.MaxAgeHours = 48
	}
	if c.MaxListingsPerRun <= 0 {
		c.MaxListingsPerRun = 500
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 60 * time.Second
	}
	return c
}

// cancelledUpsertTimeout bounds the upsert of listings gathered before a
// cycle was cancelled.
const cancelledUpsertTimeout = 30 * time.Second

type RunOptions struct {
	RunID  string
	Window string
}

type Orchestrator struct {
	adapters   AdapterLookup
	ledger     *quota.Ledger
	normalizer *normalize.Normalizer
	jobs       JobUpserter
	runs       RunRecorder
	events     EventPublisher
	cfg        Config
	log        *zap.SugaredLogger
	now        func() time.Time
}

func NewOrchestrator(
	adapters AdapterLookup,
	ledger *quota.Ledger,
	normalizer *normalize.Normalizer,
	jobs JobUpserter,
	runs RunRecorder,
	events EventPublisher,
	cfg Config,
	log *zap.SugaredLogger,
) *Orchestrator {
	if normalizer == nil {
		normalizer = normalize.New(normalize.DefaultDescriptionMax)
	}
	return &Orchestrator{
		adapters:   adapters,
		ledger:     ledger,
		normalizer: normalizer,
		jobs:       jobs,
		runs:       runs,
		events:     events,
		cfg:        cfg.withDefaults(),
		log:        logger.OrNop(log),
		now:        time.Now,
	}
}

// sourceRun is the state one source task owns during a cycle.
type sourceRun struct {
	summary SourceSummary
	jobs    []job.Job
	started bool
}

// cycle holds state shared by the source tasks of one RunCycle call.
type cycle struct {
	runID    string
	day      string
	returned atomic.Int64

	mu    sync.Mutex
	fatal error
}

func (c *cycle) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fatal == nil {
		c.fatal = err
	}
}

func (c *cycle) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

// RunCycle collects every spec once. Sources run concurrently, one task per
// source; specs of the same source run in order. A failing source never
// aborts the cycle; storage failures (quota store, upsert) do.
func (o *Orchestrator) RunCycle(ctx context.Context, specs []source.SearchSpec, opts RunOptions) (Summary, error) {
	start := o.now().UTC()
	runID := opts.RunID
	if runID == "" {
		runID = NewRunID(start, o.cfg.BatchIdentifier)
	}
	summary := Summary{RunID: runID, Window: opts.Window, StartedAt: start}

	o.log.Infow("collection cycle started", "pipeline", "collect", "run_id", runID, "window", opts.Window, "specs", len(specs))

	if o.runs != nil {
		if err := o.runs.Start(ctx, runID, opts.Window, start); err != nil {
			return summary, err
		}
	}

	bySource, order := groupBySource(specs)
	c := &cycle{runID: runID, day: quota.Day(start)}

	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := worker.NewPool(len(order), len(order))
	results := pool.Run(cycleCtx)

	runs := make(map[string]*sourceRun, len(order))
	for _, name := range order {
		sr := &sourceRun{summary: SourceSummary{Source: name, Specs: len(bySource[name])}}
		runs[name] = sr
		pool.Submit(cycleCtx, name, func(ctx context.Context) error {
			sr.started = true
			err := o.runSource(ctx, c, bySource[name], sr)
			if err != nil {
				c.fail(err)
				cancel()
			}
			return err
		})
	}
	pool.Close()
	for range results {
	}

	summary.Cancelled = ctx.Err() != nil
	for _, sr := range runs {
		if !sr.started {
			sr.summary.Skipped = sr.summary.Specs
		}
	}
	if err := c.err(); err != nil {
		o.log.Errorw("collection cycle aborted", "pipeline", "collect", "run_id", runID, "error", err)
		o.finishRun(ctx, &summary, runs, err)
		return summary, err
	}

	var collected []job.Job
	seen := map[string]struct{}{}
	for _, name := range order {
		sr := runs[name]
		for _, j := range sr.jobs {
			if _, dup := seen[j.DedupKey]; dup {
				sr.summary.Duplicates++
			}
			seen[j.DedupKey] = struct{}{}
		}
		collected = append(collected, sr.jobs...)
	}

	if len(collected) > 0 {
		// Listings fetched before a cancellation were already charged to
		// quota, so they are stored anyway.
		uctx := ctx
		if summary.Cancelled {
			var cancelUpsert context.CancelFunc
			uctx, cancelUpsert = context.WithTimeout(context.WithoutCancel(ctx), cancelledUpsertTimeout)
			defer cancelUpsert()
		}
		res, err := o.jobs.Upsert(uctx, collected)
		if err != nil {
			err = errors.Wrap(err, "upsert collected jobs")
			o.finishRun(ctx, &summary, runs, err)
			return summary, err
		}
		summary.Inserted = res.Inserted
		summary.Updated = res.Updated
		summary.Stale = res.Stale

		if o.events != nil && res.Inserted+res.Updated > 0 {
			if err := o.events.PublishJobsUpdated(uctx, runID, res.Inserted, res.Updated); err != nil {
				o.log.Warnw("publish jobs_updated failed", "run_id", runID, "error", err)
			}
		}
	}

	o.finishRun(ctx, &summary, runs, nil)
	o.log.Infow("collection cycle finished",
		"pipeline", "collect",
		"run_id", runID,
		"status", runStatus(summary, nil),
		"requested", summary.Requested,
		"returned", summary.Returned,
		"accepted", summary.Accepted,
		"duplicates", summary.Duplicates,
		"rejected", summary.Rejected,
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)
	return summary, nil
}

func (o *Orchestrator) runSource(ctx context.Context, c *cycle, specs []source.SearchSpec, sr *sourceRun) error {
	name := sr.summary.Source
	adapter, ok := o.adapters.Get(name)
	if !ok {
		sr.summary.Failures++
		sr.summary.Skipped += len(specs)
		sr.summary.Errors = append(sr.summary.Errors, "no adapter configured")
		o.log.Warnw("no adapter for source", "pipeline", "collect", "source", name)
		return nil
	}

	for i, spec := range specs {
		if ctx.Err() != nil {
			sr.summary.Skipped += len(specs) - i
			return nil
		}
		if sr.summary.RateLimited || sr.summary.Exhausted {
			sr.summary.Skipped += len(specs) - i
			return nil
		}

		budget := o.cfg.MaxListingsPerRun - int(c.returned.Load())
		if budget <= 0 {
			sr.summary.Skipped += len(specs) - i
			o.log.Infow("listing budget reached", "pipeline", "collect", "source", name, "run_id", c.runID)
			return nil
		}

		rec, err := o.ledger.Status(ctx, name, c.day)
		if err != nil {
			return err
		}
		wanted := minInt(o.cfg.ResultsPerSpec, budget, rec.Remaining())
		if wanted <= 0 {
			sr.summary.Exhausted = true
			sr.summary.Skipped++
			o.log.Infow("source quota exhausted", "pipeline", "collect", "source", name, "used", rec.Used, "limit", rec.Limit)
			continue
		}

		// Quota is charged for what is requested, before the call goes out.
		if _, err := o.ledger.Consume(ctx, name, c.day, wanted); err != nil {
			if errors.Is(err, quota.ErrExhausted) {
				sr.summary.Exhausted = true
				sr.summary.Skipped++
				continue
			}
			return err
		}
		sr.summary.Requested += wanted

		listings, err := o.fetch(ctx, adapter, spec, wanted)
		sr.summary.Returned += len(listings)
		c.returned.Add(int64(len(listings)))
		if err != nil {
			sr.summary.Failures++
			sr.summary.Errors = append(sr.summary.Errors, err.Error())
			if source.IsRateLimited(err) {
				sr.summary.RateLimited = true
			}
			o.log.Errorw("source fetch failed",
				"pipeline", "collect",
				"source", name,
				"spec", spec.String(),
				"rate_limited", sr.summary.RateLimited,
				"returned", len(listings),
				"error", err,
			)
		}

		for _, raw := range listings {
			j, err := o.normalizer.Normalize(raw, spec)
			if err != nil {
				sr.summary.Rejected++
				if sr.summary.RejectReasons == nil {
					sr.summary.RejectReasons = map[string]int{}
				}
				sr.summary.RejectReasons[normalize.RejectReason(err)]++
				o.log.Warnw("listing rejected", "source", name, "reason", normalize.RejectReason(err), "url", raw.URL)
				continue
			}
			runID := c.runID
			j.CollectionRunID = &runID
			sr.jobs = append(sr.jobs, j)
			sr.summary.Accepted++
		}
	}
	return nil
}

func (o *Orchestrator) fetch(ctx context.Context, a source.Adapter, spec source.SearchSpec, wanted int) ([]source.RawListing, error) {
	fctx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	listings, err := a.Fetch(fctx, spec, wanted, o.cfg.MaxAgeHours)
	if err != nil && fctx.Err() != nil && ctx.Err() == nil {
		err = &source.SourceError{Source: spec.Source, Err: errors.Wrapf(fctx.Err(), "fetch timed out after %s", o.cfg.FetchTimeout)}
	}
	o.log.Debugw("source fetch", "source", spec.Source, "spec", spec.String(), "wanted", wanted, "returned", len(listings), "duration", time.Since(start))
	return listings, err
}

func (o *Orchestrator) finishRun(ctx context.Context, s *Summary, runs map[string]*sourceRun, cause error) {
	m := make(map[string]*SourceSummary, len(runs))
	names := make([]string, 0, len(runs))
	for name, sr := range runs {
		ss := sr.summary
		m[name] = &ss
		names = append(names, name)
	}
	s.setSources(m)
	s.FinishedAt = o.now().UTC()

	// Bookkeeping still has to land when the caller cancelled the cycle.
	bg := context.WithoutCancel(ctx)

	if o.ledger != nil {
		if snap, err := o.ledger.Snapshot(bg, quota.Day(s.StartedAt), names); err == nil {
			s.Quota = snap
		}
	}
	if o.runs == nil {
		return
	}

	body, _ := json.Marshal(s)
	snapshot, _ := json.Marshal(s.Quota)
	finished := s.FinishedAt
	run := repository.CollectionRun{
		RunID:            s.RunID,
		FinishedAt:       &finished,
		Status:           runStatus(*s, cause),
		ListingsReturned: s.Returned,
		Inserted:         s.Inserted,
		Updated:          s.Updated,
		Duplicates:       s.Duplicates,
		Rejected:         s.Rejected,
		Summary:          body,
		QuotaSnapshot:    snapshot,
	}
	if cause != nil {
		msg := cause.Error()
		run.ErrorMessage = &msg
	} else if s.Cancelled {
		msg := "cancelled"
		run.ErrorMessage = &msg
	}
	if err := o.runs.Finish(bg, run); err != nil {
		o.log.Errorw("record collection run failed", "run_id", s.RunID, "error", err)
	}
}

func runStatus(s Summary, cause error) string {
	if cause != nil || s.Cancelled {
		return repository.RunStatusFailed
	}
	return repository.RunStatusCompleted
}

// groupBySource keeps the first-seen order of sources.
func groupBySource(specs []source.SearchSpec) (map[string][]source.SearchSpec, []string) {
	out := map[string][]source.SearchSpec{}
	var order []string
	for _, s := range specs {
		name := strings.TrimSpace(s.Source)
		if name == "" {
			continue
		}
		if _, ok := out[name]; !ok {
			order = append(order, name)
		}
		out[name] = append(out[name], s)
	}
	return out, order
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
