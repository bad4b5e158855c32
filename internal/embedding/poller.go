package embedding

import (
	"context"
	"sync"
	"time"

	"jobradar/internal/domain/batch"
	"jobradar/internal/domain/job"
	"jobradar/internal/logger"
	"jobradar/internal/repository"
	"jobradar/internal/worker"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PollConfig struct {
	Parallelism int
	Timeout     time.Duration
	Dimensions  int
	Limit       int
}

// Outcome is what one poll did to a batch.
type Outcome string

const (
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeInProgress Outcome = "in_progress"
	OutcomeCompleted  Outcome = "completed"
	OutcomeFailed     Outcome = "failed"
	OutcomeMissed     Outcome = "missed"
)

type PollResult struct {
	BatchID   string
	Outcome   Outcome
	Processed int
	BadLines  int
	Err       error
}

type PollSummary struct {
	Polled  int
	Results []PollResult
}

func (s PollSummary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

type Poller struct {
	jobs    JobStore
	batches BatchStore
	svc     BatchService
	cfg     PollConfig
	log     *zap.SugaredLogger
}

func NewPoller(jobs JobStore, batches BatchStore, svc BatchService, cfg PollConfig, log *zap.SugaredLogger) *Poller {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	return &Poller{jobs: jobs, batches: batches, svc: svc, cfg: cfg, log: logger.OrNop(log)}
}

// Run polls every outstanding batch once. Batches are independent and are
// polled in parallel; a failure on one batch is recorded on its result.
func (p *Poller) Run(ctx context.Context) (PollSummary, error) {
	start := time.Now()
	outstanding, err := p.batches.ListOutstanding(ctx, p.cfg.Limit)
	if err != nil {
		return PollSummary{}, errors.Wrap(err, "list outstanding batches")
	}
	sum := PollSummary{Polled: len(outstanding)}
	if len(outstanding) == 0 {
		return sum, nil
	}

	pool := worker.NewPool(minInt(p.cfg.Parallelism, len(outstanding)), len(outstanding))
	results := pool.Run(ctx)

	var mu sync.Mutex
	for _, b := range outstanding {
		pool.Submit(ctx, b.BatchID, func(ctx context.Context) error {
			r := p.poll(ctx, b)
			mu.Lock()
			sum.Results = append(sum.Results, r)
			mu.Unlock()
			return r.Err
		})
	}
	pool.Close()
	for range results {
	}

	p.log.Infow("embedding poll finished",
		"pipeline", "embed_poll",
		"polled", sum.Polled,
		"completed", sum.Count(OutcomeCompleted),
		"failed", sum.Count(OutcomeFailed),
		"in_progress", sum.Count(OutcomeInProgress),
		"missed", sum.Count(OutcomeMissed),
		"duration", time.Since(start),
	)
	return sum, ctx.Err()
}

// PollOne polls a single batch by id. Terminal batches are left untouched.
func (p *Poller) PollOne(ctx context.Context, batchID string) (PollResult, error) {
	b, err := p.batches.Get(ctx, batchID)
	if err != nil {
		return PollResult{BatchID: batchID}, err
	}
	r := p.poll(ctx, b)
	return r, r.Err
}

func (p *Poller) poll(ctx context.Context, b batch.BatchJob) PollResult {
	res := PollResult{BatchID: b.BatchID, Outcome: OutcomeUnchanged}
	if !batch.Outstanding(b.Status) {
		return res
	}

	pctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	st, err := p.svc.PollBatch(pctx, b.BatchID)
	if err != nil {
		p.log.Warnw("embedding poll missed", "pipeline", "embed_poll", "batch_id", b.BatchID, "error", err)
		res.Outcome = OutcomeMissed
		return res
	}

	switch st.State {
	case StateQueued, StateRunning:
		if b.Status == batch.StatusSubmitted {
			if _, err := p.batches.Transition(ctx, b.BatchID, batch.StatusSubmitted, batch.StatusInProgress, nil, nil); err != nil {
				res.Err = err
				return res
			}
			res.Outcome = OutcomeInProgress
		}
		return res

	case StateFailed:
		msg := st.Failure
		if msg == "" {
			msg = "batch " + st.RawStatus
		}
		p.log.Errorw("embedding batch failed", "pipeline", "embed_poll", "batch_id", b.BatchID, "status", st.RawStatus, "failure", msg)
		return p.fail(ctx, b, msg, res)

	case StateCompleted:
		if st.ResultLocation == "" {
			return p.fail(ctx, b, "completed without a result file", res)
		}
		return p.complete(ctx, pctx, b, st, res)
	}
	return res
}

func (p *Poller) fail(ctx context.Context, b batch.BatchJob, msg string, res PollResult) PollResult {
	if _, err := p.batches.Transition(ctx, b.BatchID, b.Status, batch.StatusFailed, nil, &msg); err != nil {
		res.Err = err
		return res
	}
	res.Outcome = OutcomeFailed
	return res
}

func (p *Poller) complete(ctx, pctx context.Context, b batch.BatchJob, st BatchStatus, res PollResult) PollResult {
	data, err := p.svc.DownloadResults(pctx, st.ResultLocation)
	if err != nil {
		p.log.Warnw("embedding results download missed", "pipeline", "embed_poll", "batch_id", b.BatchID, "error", err)
		res.Outcome = OutcomeMissed
		return res
	}

	lines, bad := ParseResultLines(data, p.cfg.Dimensions)
	for _, le := range bad {
		p.log.Warnw("embedding result line rejected",
			"pipeline", "embed_poll",
			"batch_id", b.BatchID,
			"line", le.Line,
			"custom_id", le.CustomID,
			"error", le.Err,
		)
	}
	res.BadLines = len(bad)

	byJob := map[uuid.UUID]map[View][]float32{}
	ids := make([]uuid.UUID, 0)
	for _, l := range lines {
		m, ok := byJob[l.JobID]
		if !ok {
			m = map[View][]float32{}
			byJob[l.JobID] = m
			ids = append(ids, l.JobID)
		}
		m[l.View] = l.Vector
	}

	jobs, err := p.jobs.GetByIDs(ctx, ids)
	if err != nil {
		res.Err = errors.Wrapf(err, "load jobs for batch %s", b.BatchID)
		return res
	}
	known := make(map[uuid.UUID]job.Job, len(jobs))
	for _, j := range jobs {
		known[j.ID] = j
	}

	processed := b.ProcessedCount
	for _, id := range ids {
		j, ok := known[id]
		if !ok {
			p.log.Warnw("embedding result for unknown job", "pipeline", "embed_poll", "batch_id", b.BatchID, "job_id", id)
			continue
		}
		w := embeddingWrite(j, byJob[id])
		if w.Empty() {
			continue
		}
		ok, err := p.jobs.UpdateEmbeddings(ctx, id, w)
		if err != nil {
			res.Err = err
			return res
		}
		if !ok {
			continue
		}
		processed++
		res.Processed++
		if err := p.batches.IncrementProcessed(ctx, b.BatchID, 1); err != nil {
			res.Err = err
			return res
		}
	}

	if _, err := p.batches.Transition(ctx, b.BatchID, b.Status, batch.StatusCompleted, &processed, nil); err != nil {
		res.Err = err
		return res
	}
	res.Outcome = OutcomeCompleted
	p.log.Infow("embedding batch completed",
		"pipeline", "embed_poll",
		"batch_id", b.BatchID,
		"job_count", b.JobCount,
		"processed", processed,
		"bad_lines", len(bad),
	)
	return res
}

// embeddingWrite maps view vectors onto the stored columns. The core column
// falls back to the full-description vector.
func embeddingWrite(j job.Job, vecs map[View][]float32) repository.EmbeddingWrite {
	w := repository.EmbeddingWrite{
		CoreRequirements:    vecs[ViewCoreRequirements],
		TransferableContext: vecs[ViewTransferableContext],
		RoleContext:         vecs[ViewRoleContext],
	}
	text := Texts(j)[ViewCoreRequirements]
	if len(w.CoreRequirements) == 0 && len(vecs[ViewFullDescription]) > 0 {
		w.CoreRequirements = vecs[ViewFullDescription]
		text = Texts(j)[ViewFullDescription]
	}
	if len(w.CoreRequirements) == 0 {
		return repository.EmbeddingWrite{}
	}
	w.Text = text
	return w
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
