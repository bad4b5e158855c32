package repository

import (
	"context"
	"time"

	"jobradar/internal/database"
)

type SiteCount struct {
	Site  string `json:"site"`
	Count int    `json:"count"`
}

type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

type CompanyCoverage struct {
	Total       int `json:"total"`
	WithCompany int `json:"with_company"`
}

// StatsRepository answers the aggregate queries behind pipeline monitoring.
type StatsRepository interface {
	JobsBySite(ctx context.Context, since time.Time) ([]SiteCount, error)
	CompanyCoverage(ctx context.Context, since time.Time) (CompanyCoverage, error)
	TopSearchTerms(ctx context.Context, since time.Time, limit int) ([]TermCount, error)
	LastCollectedAt(ctx context.Context) (*time.Time, error)
}

type PostgresStatsRepository struct {
	db database.DB
}

func NewPostgresStatsRepository(db database.DB) *PostgresStatsRepository {
	return &PostgresStatsRepository{db: db}
}

func (r *PostgresStatsRepository) JobsBySite(ctx context.Context, since time.Time) ([]SiteCount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT site, COUNT(1)
		 FROM jobs
		 WHERE collected_at >= $1
		 GROUP BY site
		 ORDER BY COUNT(1) DESC, site ASC`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SiteCount, 0)
	for rows.Next() {
		var s SiteCount
		if err := rows.Scan(&s.Site, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresStatsRepository) CompanyCoverage(ctx context.Context, since time.Time) (CompanyCoverage, error) {
	var out CompanyCoverage
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(1),
		        COUNT(1) FILTER (WHERE company <> 'Unknown Company' AND BTRIM(company) <> '')
		 FROM jobs
		 WHERE collected_at >= $1`,
		since.UTC(),
	).Scan(&out.Total, &out.WithCompany)
	if err != nil {
		return CompanyCoverage{}, err
	}
	return out, nil
}

func (r *PostgresStatsRepository) TopSearchTerms(ctx context.Context, since time.Time, limit int) ([]TermCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx,
		`SELECT search_term, COUNT(1)
		 FROM jobs
		 WHERE collected_at >= $1 AND search_term IS NOT NULL
		 GROUP BY search_term
		 ORDER BY COUNT(1) DESC, search_term ASC
		 LIMIT $2`,
		since.UTC(),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]TermCount, 0)
	for rows.Next() {
		var t TermCount
		if err := rows.Scan(&t.Term, &t.Count); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresStatsRepository) LastCollectedAt(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	if err := r.db.QueryRow(ctx, `SELECT MAX(collected_at) FROM jobs`).Scan(&t); err != nil {
		return nil, err
	}
	return t, nil
}
