package quota

import (
	"context"
	"time"

	"jobradar/internal/database"

	"github.com/cockroachdb/errors"
)

// PostgresStore keeps records in quota_records. The conditional UPDATE makes
// the increment atomic across processes.
type PostgresStore struct {
	db database.DB
}

func NewPostgresStore(db database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, source, day string, limit int) (Record, error) {
	d, err := parseDay(day)
	if err != nil {
		return Record{}, err
	}
	if err := s.ensure(ctx, source, d, limit); err != nil {
		return Record{}, err
	}

	rec := Record{Source: source, Day: day}
	err = s.db.QueryRow(ctx, `
SELECT used, daily_limit
FROM quota_records
WHERE source = $1 AND day = $2`, source, d).Scan(&rec.Used, &rec.Limit)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) Add(ctx context.Context, source, day string, limit, n int) (Record, bool, error) {
	d, err := parseDay(day)
	if err != nil {
		return Record{}, false, err
	}
	if err := s.ensure(ctx, source, d, limit); err != nil {
		return Record{}, false, err
	}

	rec := Record{Source: source, Day: day}
	err = s.db.QueryRow(ctx, `
UPDATE quota_records
SET used = used + $3, updated_at = now()
WHERE source = $1 AND day = $2 AND used + $3 <= daily_limit
RETURNING used, daily_limit`, source, d, n).Scan(&rec.Used, &rec.Limit)
	if err == nil {
		return rec, true, nil
	}
	if !database.IsNoRows(err) {
		return Record{}, false, err
	}

	cur, err := s.Get(ctx, source, day, limit)
	if err != nil {
		return Record{}, false, err
	}
	return cur, false, nil
}

func (s *PostgresStore) ensure(ctx context.Context, source string, day time.Time, limit int) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO quota_records (source, day, used, daily_limit)
VALUES ($1, $2, 0, $3)
ON CONFLICT (source, day) DO NOTHING`, source, day, limit)
	return err
}

func parseDay(day string) (time.Time, error) {
	d, err := time.Parse(DayLayout, day)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid quota day %q", day)
	}
	return d, nil
}
