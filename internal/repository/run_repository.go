package repository

import (
	"context"
	"encoding/json"
	"time"

	"jobradar/internal/database"

	"github.com/cockroachdb/errors"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// CollectionRun is the audit row of one collection cycle.
type CollectionRun struct {
	RunID            string
	WindowName       *string
	StartedAt        time.Time
	FinishedAt       *time.Time
	Status           string
	ListingsReturned int
	Inserted         int
	Updated          int
	Duplicates       int
	Rejected         int
	Summary          json.RawMessage
	QuotaSnapshot    json.RawMessage
	ErrorMessage     *string
}

type RunRepository interface {
	Start(ctx context.Context, runID string, window string, startedAt time.Time) error
	Finish(ctx context.Context, run CollectionRun) error
	Recent(ctx context.Context, since time.Time, limit int) ([]CollectionRun, error)
}

type PostgresRunRepository struct {
	db database.DB
}

func NewPostgresRunRepository(db database.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

func (r *PostgresRunRepository) Start(ctx context.Context, runID string, window string, startedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO collection_runs (run_id, window_name, started_at, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id) DO NOTHING`,
		runID,
		nullableText(window),
		startedAt.UTC(),
		RunStatusRunning,
	)
	if err != nil {
		return errors.Wrapf(err, "start collection run run_id=%s", runID)
	}
	return nil
}

func (r *PostgresRunRepository) Finish(ctx context.Context, run CollectionRun) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	_, err := r.db.Exec(ctx,
		`UPDATE collection_runs SET
			finished_at = $2,
			status = $3,
			listings_returned = $4,
			inserted = $5,
			updated = $6,
			duplicates = $7,
			rejected = $8,
			summary = $9,
			quota_snapshot = $10,
			error_message = $11
		 WHERE run_id = $1`,
		run.RunID,
		finished,
		run.Status,
		run.ListingsReturned,
		run.Inserted,
		run.Updated,
		run.Duplicates,
		run.Rejected,
		rawJSON(run.Summary),
		rawJSON(run.QuotaSnapshot),
		run.ErrorMessage,
	)
	if err != nil {
		return errors.Wrapf(err, "finish collection run run_id=%s", run.RunID)
	}
	return nil
}

func (r *PostgresRunRepository) Recent(ctx context.Context, since time.Time, limit int) ([]CollectionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT run_id, window_name, started_at, finished_at, status, listings_returned,
		        inserted, updated, duplicates, rejected, summary, quota_snapshot, error_message
		 FROM collection_runs
		 WHERE started_at >= $1
		 ORDER BY started_at DESC
		 LIMIT $2`,
		since.UTC(),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CollectionRun, 0)
	for rows.Next() {
		var (
			c                 CollectionRun
			summary, snapshot []byte
		)
		if err := rows.Scan(
			&c.RunID, &c.WindowName, &c.StartedAt, &c.FinishedAt, &c.Status, &c.ListingsReturned,
			&c.Inserted, &c.Updated, &c.Duplicates, &c.Rejected, &summary, &snapshot, &c.ErrorMessage,
		); err != nil {
			return nil, err
		}
		c.Summary = summary
		c.QuotaSnapshot = snapshot
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func rawJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
