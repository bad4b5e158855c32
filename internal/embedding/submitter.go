package embedding

import (
	"context"
	"time"

	"jobradar/internal/domain/batch"
	"jobradar/internal/domain/job"
	"jobradar/internal/logger"
	"jobradar/internal/repository"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSubmission wraps failures of the embedding service during submission.
var ErrSubmission = errors.New("embedding submission failed")

const (
	DefaultBatchSize  = 500
	DefaultMaxBatches = 10
	DefaultMaxChars   = 8000
)

type JobStore interface {
	ListPendingEmbedding(ctx context.Context, limit int) ([]job.Job, error)
	AssignBatch(ctx context.Context, batchID string, ids []uuid.UUID) (int64, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]job.Job, error)
	UpdateEmbeddings(ctx context.Context, id uuid.UUID, w repository.EmbeddingWrite) (bool, error)
	ReleaseBatch(ctx context.Context, batchID string) (int64, error)
}

type BatchStore interface {
	Create(ctx context.Context, b batch.BatchJob) error
	Get(ctx context.Context, batchID string) (batch.BatchJob, error)
	ListOutstanding(ctx context.Context, limit int) ([]batch.BatchJob, error)
	Transition(ctx context.Context, batchID string, from, to batch.Status, processed *int, errMsg *string) (bool, error)
	IncrementProcessed(ctx context.Context, batchID string, delta int) error
}

type SubmitConfig struct {
	BatchSize  int
	MaxBatches int
	MaxChars   int
	Timeout    time.Duration
}

type SubmitSummary struct {
	Batches  []string
	Jobs     int
	Requests int
}

type Submitter struct {
	jobs    JobStore
	batches BatchStore
	svc     BatchService
	cfg     SubmitConfig
	log     *zap.SugaredLogger
}

func NewSubmitter(jobs JobStore, batches BatchStore, svc BatchService, cfg SubmitConfig, log *zap.SugaredLogger) *Submitter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = DefaultMaxBatches
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Submitter{jobs: jobs, batches: batches, svc: svc, cfg: cfg, log: logger.OrNop(log)}
}

// Run submits up to MaxBatches chunks of jobs that have no embedding yet.
// A service failure ends the pass and leaves the chunk's jobs pending; a
// storage failure is returned.
func (s *Submitter) Run(ctx context.Context) (SubmitSummary, error) {
	var sum SubmitSummary
	start := time.Now()
	s.log.Infow("embedding submission started", "pipeline", "embed_submit", "batch_size", s.cfg.BatchSize)

	for i := 0; i < s.cfg.MaxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		jobs, err := s.jobs.ListPendingEmbedding(ctx, s.cfg.BatchSize)
		if err != nil {
			return sum, errors.Wrap(err, "list jobs pending embedding")
		}
		if len(jobs) == 0 {
			break
		}

		batchID, nreq, err := s.submitChunk(ctx, jobs)
		if err != nil {
			if errors.Is(err, ErrSubmission) {
				s.log.Errorw("embedding submission failed", "pipeline", "embed_submit", "jobs", len(jobs), "error", err)
				break
			}
			return sum, err
		}
		sum.Batches = append(sum.Batches, batchID)
		sum.Jobs += len(jobs)
		sum.Requests += nreq

		if len(jobs) < s.cfg.BatchSize {
			break
		}
	}

	s.log.Infow("embedding submission finished",
		"pipeline", "embed_submit",
		"batches", len(sum.Batches),
		"jobs", sum.Jobs,
		"requests", sum.Requests,
		"duration", time.Since(start),
	)
	return sum, nil
}

func (s *Submitter) submitChunk(ctx context.Context, jobs []job.Job) (string, int, error) {
	reqs := make([]Request, 0, len(jobs)*len(views))
	ids := make([]uuid.UUID, 0, len(jobs))
	for _, j := range jobs {
		reqs = append(reqs, BuildRequests(j, s.cfg.MaxChars)...)
		ids = append(ids, j.ID)
	}

	// The record stays in memory while pending; the service assigns its id.
	b := batch.BatchJob{Status: batch.StatusPending, JobCount: len(jobs), CreatedAt: time.Now().UTC()}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	batchID, err := s.svc.SubmitBatch(sctx, reqs)
	if err != nil {
		return "", 0, errors.Mark(errors.Wrap(err, "submit batch"), ErrSubmission)
	}

	b.BatchID = batchID
	if err := b.Transition(batch.StatusSubmitted, time.Now().UTC()); err != nil {
		return "", 0, err
	}
	if err := s.batches.Create(ctx, b); err != nil {
		return "", 0, err
	}
	if _, err := s.jobs.AssignBatch(ctx, batchID, ids); err != nil {
		return "", 0, errors.Wrapf(err, "assign jobs to batch %s", batchID)
	}

	s.log.Infow("embedding batch submitted", "pipeline", "embed_submit", "batch_id", batchID, "jobs", len(jobs), "requests", len(reqs))
	return batchID, len(reqs), nil
}

// Release detaches the jobs of a failed batch so the next submission pass
// picks them up again.
func (s *Submitter) Release(ctx context.Context, batchID string) (int64, error) {
	b, err := s.batches.Get(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if b.Status != batch.StatusFailed {
		return 0, errors.Newf("batch %s is %s; only failed batches can be released", batchID, b.Status)
	}
	n, err := s.jobs.ReleaseBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	s.log.Infow("embedding batch released", "pipeline", "embed_release", "batch_id", batchID, "jobs", n)
	return n, nil
}
