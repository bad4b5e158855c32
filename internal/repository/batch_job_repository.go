package repository

import (
	"context"
	"time"

	"jobradar/internal/database"
	"jobradar/internal/domain/batch"

	"github.com/cockroachdb/errors"
)

type BatchJobRepository interface {
	Create(ctx context.Context, b batch.BatchJob) error
	Get(ctx context.Context, batchID string) (batch.BatchJob, error)
	ListOutstanding(ctx context.Context, limit int) ([]batch.BatchJob, error)
	ListRecent(ctx context.Context, limit int) ([]batch.BatchJob, error)
	Transition(ctx context.Context, batchID string, from, to batch.Status, processed *int, errMsg *string) (bool, error)
	IncrementProcessed(ctx context.Context, batchID string, delta int) error
	CountOutstanding(ctx context.Context) (int, error)
}

type PostgresBatchJobRepository struct {
	db  database.DB
	now func() time.Time
}

func NewPostgresBatchJobRepository(db database.DB) *PostgresBatchJobRepository {
	return &PostgresBatchJobRepository{db: db, now: time.Now}
}

func (r *PostgresBatchJobRepository) Create(ctx context.Context, b batch.BatchJob) error {
	if b.BatchID == "" {
		return errors.New("batch id is required")
	}
	if b.Status == "" {
		b.Status = batch.StatusSubmitted
	}
	if b.Status == batch.StatusPending {
		return errors.Newf("batch %s has not been submitted", b.BatchID)
	}
	now := r.now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO batch_jobs (batch_id, status, job_count, processed_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.BatchID,
		string(b.Status),
		b.JobCount,
		b.ProcessedCount,
		b.CreatedAt,
		now,
	)
	if err != nil {
		return errors.Wrapf(err, "create batch_job batch_id=%s", b.BatchID)
	}
	return nil
}

const batchColumns = `batch_id, status, job_count, processed_count, error_message, created_at, updated_at, completed_at`

func scanBatch(s scanner) (batch.BatchJob, error) {
	var (
		b      batch.BatchJob
		status string
	)
	if err := s.Scan(&b.BatchID, &status, &b.JobCount, &b.ProcessedCount, &b.ErrorMessage, &b.CreatedAt, &b.UpdatedAt, &b.CompletedAt); err != nil {
		return batch.BatchJob{}, err
	}
	st, err := batch.ParseStatus(status)
	if err != nil {
		return batch.BatchJob{}, err
	}
	b.Status = st
	return b, nil
}

func (r *PostgresBatchJobRepository) Get(ctx context.Context, batchID string) (batch.BatchJob, error) {
	b, err := scanBatch(r.db.QueryRow(ctx, `SELECT `+batchColumns+` FROM batch_jobs WHERE batch_id = $1`, batchID))
	if err != nil {
		if database.IsNoRows(err) {
			return batch.BatchJob{}, ErrNotFound
		}
		return batch.BatchJob{}, err
	}
	return b, nil
}

func (r *PostgresBatchJobRepository) list(ctx context.Context, query string, args ...any) ([]batch.BatchJob, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]batch.BatchJob, 0)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListOutstanding returns batches still waiting on the embedding service,
// oldest first.
func (r *PostgresBatchJobRepository) ListOutstanding(ctx context.Context, limit int) ([]batch.BatchJob, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx,
		`SELECT `+batchColumns+`
		 FROM batch_jobs
		 WHERE status IN ('submitted', 'in_progress')
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit,
	)
}

func (r *PostgresBatchJobRepository) ListRecent(ctx context.Context, limit int) ([]batch.BatchJob, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.list(ctx,
		`SELECT `+batchColumns+`
		 FROM batch_jobs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
}

// Transition moves a batch from one status to another with a compare-and-set
// on the stored status. It reports false when the stored status was not from,
// which makes repeated polls of a terminal batch a no-op.
func (r *PostgresBatchJobRepository) Transition(ctx context.Context, batchID string, from, to batch.Status, processed *int, errMsg *string) (bool, error) {
	if from == to {
		return false, nil
	}
	b := batch.BatchJob{BatchID: batchID, Status: from}
	if err := b.Transition(to, r.now().UTC()); err != nil {
		return false, errors.Wrapf(err, "batch_id=%s", batchID)
	}

	n, err := r.db.Exec(ctx,
		`UPDATE batch_jobs SET
			status = $3,
			processed_count = COALESCE($4, processed_count),
			error_message = COALESCE($5, error_message),
			updated_at = $6,
			completed_at = COALESCE($7, completed_at)
		 WHERE batch_id = $1 AND status = $2`,
		batchID,
		string(from),
		string(to),
		processed,
		errMsg,
		b.UpdatedAt,
		b.CompletedAt,
	)
	if err != nil {
		return false, errors.Wrapf(err, "transition batch_id=%s", batchID)
	}
	return n > 0, nil
}

// IncrementProcessed adds delta to processed_count while the batch is not terminal.
func (r *PostgresBatchJobRepository) IncrementProcessed(ctx context.Context, batchID string, delta int) error {
	if delta <= 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE batch_jobs SET processed_count = processed_count + $2, updated_at = $3
		 WHERE batch_id = $1 AND status NOT IN ('completed', 'failed')`,
		batchID,
		delta,
		r.now().UTC(),
	)
	return err
}

func (r *PostgresBatchJobRepository) CountOutstanding(ctx context.Context) (int, error) {
	var c int
	err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM batch_jobs WHERE status IN ('submitted', 'in_progress')`).Scan(&c)
	return c, err
}
