package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"jobradar/internal/database"
	"jobradar/internal/domain/job"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

var ErrNotFound = errors.New("not found")

// UpsertResult counts the outcome of one Upsert call. Stale rows lost to a
// stored row with a newer collected_at.
type UpsertResult struct {
	Inserted              int
	Updated               int
	Stale                 int
	DuplicatesWithinBatch int
}

type JobRepository interface {
	Upsert(ctx context.Context, jobs []job.Job) (UpsertResult, error)
	Latest(ctx context.Context, limit, offset int) ([]job.Job, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]job.Job, error)
	ListPendingEmbedding(ctx context.Context, limit int) ([]job.Job, error)
	CountPendingEmbedding(ctx context.Context) (int, error)
	AssignBatch(ctx context.Context, batchID string, ids []uuid.UUID) (int64, error)
	ReleaseBatch(ctx context.Context, batchID string) (int64, error)
	UpdateEmbeddings(ctx context.Context, id uuid.UUID, vecs EmbeddingWrite) (bool, error)
	ListPendingExtraction(ctx context.Context, limit int) ([]job.Job, error)
	UpdateExtraction(ctx context.Context, id uuid.UUID, ext job.Extraction, salary job.Salary, embeddingText string, processedAt time.Time) error
	SearchCandidates(ctx context.Context, query []float32, filters job.Filters, limit int) ([]job.Job, error)
	DeleteResidualDuplicates(ctx context.Context) (int64, error)
}

// EmbeddingWrite carries the vectors for one job. Nil vectors leave the stored
// column unchanged.
type EmbeddingWrite struct {
	CoreRequirements    []float32
	TransferableContext []float32
	RoleContext         []float32
	Text                string
}

func (w EmbeddingWrite) Empty() bool {
	return len(w.CoreRequirements) == 0 && len(w.TransferableContext) == 0 && len(w.RoleContext) == 0
}

type PostgresJobRepository struct {
	db database.DB
}

func NewPostgresJobRepository(db database.DB) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

// PrefilterLatest keeps one job per dedup key, the one with the latest
// CollectedAt; on a tie the later element wins. Order of first appearance is kept.
func PrefilterLatest(jobs []job.Job) ([]job.Job, int) {
	idx := make(map[string]int, len(jobs))
	out := make([]job.Job, 0, len(jobs))
	dups := 0
	for _, j := range jobs {
		i, seen := idx[j.DedupKey]
		if !seen {
			idx[j.DedupKey] = len(out)
			out = append(out, j)
			continue
		}
		dups++
		if !j.CollectedAt.Before(out[i].CollectedAt) {
			out[i] = j
		}
	}
	return out, dups
}

const upsertJobSQL = `INSERT INTO jobs (
	id, dedup_key, title, company, company_url, location, description, job_url, site,
	job_type, is_remote, date_posted, search_term, search_location, collection_strategy,
	collection_run_id, min_amount, max_amount, salary_currency, salary_period, salary_type,
	collected_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
ON CONFLICT (dedup_key) DO UPDATE SET
	title = EXCLUDED.title,
	company = COALESCE(NULLIF(EXCLUDED.company, 'Unknown Company'), jobs.company),
	company_url = COALESCE(EXCLUDED.company_url, jobs.company_url),
	location = COALESCE(EXCLUDED.location, jobs.location),
	description = COALESCE(EXCLUDED.description, jobs.description),
	job_url = EXCLUDED.job_url,
	site = EXCLUDED.site,
	job_type = COALESCE(EXCLUDED.job_type, jobs.job_type),
	is_remote = COALESCE(EXCLUDED.is_remote, jobs.is_remote),
	date_posted = COALESCE(EXCLUDED.date_posted, jobs.date_posted),
	search_term = COALESCE(EXCLUDED.search_term, jobs.search_term),
	search_location = COALESCE(EXCLUDED.search_location, jobs.search_location),
	collection_strategy = COALESCE(EXCLUDED.collection_strategy, jobs.collection_strategy),
	collection_run_id = COALESCE(EXCLUDED.collection_run_id, jobs.collection_run_id),
	min_amount = COALESCE(EXCLUDED.min_amount, jobs.min_amount),
	max_amount = COALESCE(EXCLUDED.max_amount, jobs.max_amount),
	salary_currency = COALESCE(EXCLUDED.salary_currency, jobs.salary_currency),
	salary_period = COALESCE(EXCLUDED.salary_period, jobs.salary_period),
	salary_type = CASE WHEN EXCLUDED.salary_type = 'not_specified' THEN jobs.salary_type ELSE EXCLUDED.salary_type END,
	collected_at = EXCLUDED.collected_at
WHERE jobs.collected_at <= EXCLUDED.collected_at
RETURNING (xmax = 0) AS inserted`

// Upsert writes jobs keyed on dedup_key. Conflicts are resolved by the
// database; AI-derived and embedding columns are never part of the write.
func (r *PostgresJobRepository) Upsert(ctx context.Context, jobs []job.Job) (UpsertResult, error) {
	var res UpsertResult
	if len(jobs) == 0 {
		return res, nil
	}

	kept, dups := PrefilterLatest(jobs)
	res.DuplicatesWithinBatch = dups

	for _, j := range kept {
		if j.ID == uuid.Nil {
			j.ID = uuid.New()
		}
		company := j.Company
		if strings.TrimSpace(company) == "" {
			company = job.UnknownCompany
		}
		salaryType := j.Salary.Type
		if salaryType == "" {
			salaryType = job.SalaryNotSpecified
		}

		var inserted bool
		err := r.db.QueryRow(ctx, upsertJobSQL,
			j.ID,
			j.DedupKey,
			j.Title,
			company,
			j.CompanyURL,
			j.Location,
			j.Description,
			j.URL,
			j.Site,
			j.JobType,
			j.IsRemote,
			j.DatePosted,
			j.SearchTerm,
			j.SearchLocation,
			j.Strategy,
			j.CollectionRunID,
			j.Salary.Min,
			j.Salary.Max,
			j.Salary.Currency,
			j.Salary.Period,
			salaryType,
			j.CollectedAt.UTC(),
		).Scan(&inserted)
		if err != nil {
			if database.IsNoRows(err) {
				res.Stale++
				continue
			}
			return res, errors.Wrapf(err, "upsert job dedup_key=%s", j.DedupKey)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

const jobColumns = `id, dedup_key, title, company, company_url, location, description, job_url, site,
	job_type, is_remote, date_posted, search_term, search_location, collection_strategy,
	collection_run_id, min_amount, max_amount, salary_currency, salary_period, salary_type,
	core_skills, nice_to_have_skills, realistic_experience_level, transferable_skills_indicators,
	actual_job_complexity, bias_removal_notes, embedding_text, embedding_batch_id,
	processed_at, collected_at, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner, extra ...any) (job.Job, error) {
	var (
		j                                job.Job
		coreSkills, niceSkills, transfer []byte
		level, complexity, notes         *string
	)
	dest := []any{
		&j.ID, &j.DedupKey, &j.Title, &j.Company, &j.CompanyURL, &j.Location, &j.Description, &j.URL, &j.Site,
		&j.JobType, &j.IsRemote, &j.DatePosted, &j.SearchTerm, &j.SearchLocation, &j.Strategy,
		&j.CollectionRunID, &j.Salary.Min, &j.Salary.Max, &j.Salary.Currency, &j.Salary.Period, &j.Salary.Type,
		&coreSkills, &niceSkills, &level, &transfer,
		&complexity, &notes, &j.Embeddings.Text, &j.Embeddings.BatchID,
		&j.ProcessedAt, &j.CollectedAt, &j.CreatedAt,
	}
	dest = append(dest, extra...)
	if err := s.Scan(dest...); err != nil {
		return job.Job{}, err
	}

	if j.ProcessedAt != nil || coreSkills != nil || level != nil {
		ext := &job.Extraction{
			RealisticExperienceLevel: derefString(level),
			ActualJobComplexity:      derefString(complexity),
			BiasRemovalNotes:         derefString(notes),
		}
		if err := unmarshalList(coreSkills, &ext.CoreSkills); err != nil {
			return job.Job{}, err
		}
		if err := unmarshalList(niceSkills, &ext.NiceToHaveSkills); err != nil {
			return job.Job{}, err
		}
		if err := unmarshalList(transfer, &ext.TransferableSkillsIndicators); err != nil {
			return job.Job{}, err
		}
		j.Extraction = ext
	}
	return j, nil
}

func (r *PostgresJobRepository) queryJobs(ctx context.Context, query string, args ...any) ([]job.Job, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresJobRepository) Latest(ctx context.Context, limit, offset int) ([]job.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return r.queryJobs(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs
		 ORDER BY collected_at DESC, id ASC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
}

func (r *PostgresJobRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]job.Job, error) {
	if len(ids) == 0 {
		return []job.Job{}, nil
	}
	return r.queryJobs(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs
		 WHERE id = ANY($1)`,
		ids,
	)
}

// pendingEmbeddingWhere selects jobs without vectors that are not held by an
// unfinished or failed batch.
const pendingEmbeddingWhere = `core_requirements_embedding IS NULL
	AND (embedding_batch_id IS NULL
	     OR embedding_batch_id IN (SELECT batch_id FROM batch_jobs WHERE status = 'completed'))`

func (r *PostgresJobRepository) ListPendingEmbedding(ctx context.Context, limit int) ([]job.Job, error) {
	if limit <= 0 {
		limit = 500
	}
	return r.queryJobs(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs
		 WHERE `+pendingEmbeddingWhere+`
		 ORDER BY collected_at ASC, id ASC
		 LIMIT $1`,
		limit,
	)
}

func (r *PostgresJobRepository) CountPendingEmbedding(ctx context.Context) (int, error) {
	var c int
	err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM jobs WHERE `+pendingEmbeddingWhere).Scan(&c)
	return c, err
}

func (r *PostgresJobRepository) AssignBatch(ctx context.Context, batchID string, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.db.Exec(ctx,
		`UPDATE jobs SET embedding_batch_id = $1 WHERE id = ANY($2)`,
		batchID, ids,
	)
}

// ReleaseBatch detaches jobs that never received vectors from batchID so the
// next submission pass picks them up again.
func (r *PostgresJobRepository) ReleaseBatch(ctx context.Context, batchID string) (int64, error) {
	return r.db.Exec(ctx,
		`UPDATE jobs SET embedding_batch_id = NULL
		 WHERE embedding_batch_id = $1 AND core_requirements_embedding IS NULL`,
		batchID,
	)
}

func vectorArg(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

// UpdateEmbeddings merges the given vectors into the job row field by field.
// embedding_text keeps an existing value. It reports true only when the row
// had no core-requirements vector before, so rewriting a job after an
// abandoned poll is not counted twice.
func (r *PostgresJobRepository) UpdateEmbeddings(ctx context.Context, id uuid.UUID, w EmbeddingWrite) (bool, error) {
	if w.Empty() {
		return false, nil
	}
	var firstWrite bool
	err := r.db.QueryRow(ctx,
		`WITH prev AS (
			SELECT id, core_requirements_embedding IS NULL AS was_empty
			FROM jobs
			WHERE id = $1
			FOR UPDATE
		)
		UPDATE jobs SET
			core_requirements_embedding = COALESCE($2::vector, jobs.core_requirements_embedding),
			transferable_context_embedding = COALESCE($3::vector, jobs.transferable_context_embedding),
			role_context_embedding = COALESCE($4::vector, jobs.role_context_embedding),
			embedding_text = COALESCE(jobs.embedding_text, $5)
		FROM prev
		WHERE jobs.id = prev.id
		RETURNING prev.was_empty`,
		id,
		vectorArg(w.CoreRequirements),
		vectorArg(w.TransferableContext),
		vectorArg(w.RoleContext),
		w.Text,
	).Scan(&firstWrite)
	if err != nil {
		if database.IsNoRows(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "update embeddings job_id=%s", id)
	}
	return firstWrite, nil
}

func (r *PostgresJobRepository) ListPendingExtraction(ctx context.Context, limit int) ([]job.Job, error) {
	if limit <= 0 {
		limit = 200
	}
	return r.queryJobs(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs
		 WHERE processed_at IS NULL AND description IS NOT NULL
		 ORDER BY collected_at ASC, id ASC
		 LIMIT $1`,
		limit,
	)
}

// UpdateExtraction stores AI-derived fields. Salary columns are only filled
// where they are still empty.
func (r *PostgresJobRepository) UpdateExtraction(ctx context.Context, id uuid.UUID, ext job.Extraction, salary job.Salary, embeddingText string, processedAt time.Time) error {
	core, err := json.Marshal(nonNil(ext.CoreSkills))
	if err != nil {
		return err
	}
	nice, err := json.Marshal(nonNil(ext.NiceToHaveSkills))
	if err != nil {
		return err
	}
	transfer, err := json.Marshal(nonNil(ext.TransferableSkillsIndicators))
	if err != nil {
		return err
	}
	salaryType := salary.Type
	if salaryType == "" {
		salaryType = job.SalaryNotSpecified
	}

	_, err = r.db.Exec(ctx,
		`UPDATE jobs SET
			core_skills = $2,
			nice_to_have_skills = $3,
			realistic_experience_level = $4,
			transferable_skills_indicators = $5,
			actual_job_complexity = $6,
			bias_removal_notes = $7,
			min_amount = COALESCE(min_amount, $8),
			max_amount = COALESCE(max_amount, $9),
			salary_currency = COALESCE(salary_currency, $10),
			salary_period = COALESCE(salary_period, $11),
			salary_type = CASE WHEN salary_type = 'not_specified' THEN $12 ELSE salary_type END,
			embedding_text = CASE WHEN core_requirements_embedding IS NULL THEN $13 ELSE COALESCE(embedding_text, $13) END,
			processed_at = $14
		 WHERE id = $1`,
		id,
		core,
		nice,
		nullableText(ext.RealisticExperienceLevel),
		transfer,
		nullableText(ext.ActualJobComplexity),
		nullableText(ext.BiasRemovalNotes),
		salary.Min,
		salary.Max,
		salary.Currency,
		salary.Period,
		salaryType,
		nullableText(embeddingText),
		processedAt.UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "update extraction job_id=%s", id)
	}
	return nil
}

// SearchCandidates returns up to limit jobs nearest to query by cosine
// distance on the core-requirements vector, with filters applied in SQL.
func (r *PostgresJobRepository) SearchCandidates(ctx context.Context, query []float32, filters job.Filters, limit int) ([]job.Job, error) {
	if len(query) == 0 {
		return nil, errors.New("empty query vector")
	}
	if limit <= 0 {
		limit = 100
	}
	f := filters.Normalized()

	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+`, core_requirements_embedding::text
		 FROM jobs
		 WHERE core_requirements_embedding IS NOT NULL
		   AND ($2 = '' OR location ILIKE $3 ESCAPE '\')
		   AND ($4 = '' OR job_type ILIKE $5 ESCAPE '\')
		   AND ($6 = '' OR company ILIKE $7 ESCAPE '\')
		 ORDER BY core_requirements_embedding <=> $1::vector ASC, collected_at DESC
		 LIMIT $8`,
		pgvector.NewVector(query),
		f.Location, likePattern(f.Location),
		f.JobType, likePattern(f.JobType),
		f.Company, likePattern(f.Company),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]job.Job, 0)
	for rows.Next() {
		var vec pgvector.Vector
		j, err := scanJob(rows, &vec)
		if err != nil {
			return nil, err
		}
		j.Embeddings.CoreRequirements = vec.Slice()
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteResidualDuplicates keeps the most recently collected row per dedup key.
func (r *PostgresJobRepository) DeleteResidualDuplicates(ctx context.Context) (int64, error) {
	return r.db.Exec(ctx,
		`DELETE FROM jobs j
		 USING (
			SELECT id, ROW_NUMBER() OVER (PARTITION BY dedup_key ORDER BY collected_at DESC, created_at DESC, id) AS rn
			FROM jobs
		 ) d
		 WHERE j.id = d.id AND d.rn > 1`,
	)
}

func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

func nullableText(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func unmarshalList(b []byte, dst *[]string) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return errors.Wrap(err, "decode skills list")
	}
	return nil
}
