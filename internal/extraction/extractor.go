package extraction

import (
	"context"
	"strconv"
	"strings"
	"time"

	"jobradar/internal/domain/job"
	"jobradar/internal/logger"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type JobStore interface {
	ListPendingExtraction(ctx context.Context, limit int) ([]job.Job, error)
	UpdateExtraction(ctx context.Context, id uuid.UUID, ext job.Extraction, salary job.Salary, embeddingText string, processedAt time.Time) error
}

type Config struct {
	RequestsPerSecond float64
	Limit             int
	Timeout           time.Duration
}

type Summary struct {
	Processed int
	Failed    int
	Skipped   int
}

// Runner works through jobs lacking AI fields at a steady pace.
type Runner struct {
	jobs      JobStore
	extractor Extractor
	limiter   *rate.Limiter
	cfg       Config
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewRunner(jobs JobStore, extractor Extractor, cfg Config, log *zap.SugaredLogger) *Runner {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Runner{
		jobs:      jobs,
		extractor: extractor,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		cfg:       cfg,
		log:       logger.OrNop(log),
		now:       time.Now,
	}
}

// Run extracts up to Limit jobs. Collaborator failures are logged and the job
// stays unprocessed for the next pass; storage failures end the pass.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	start := time.Now()

	jobs, err := r.jobs.ListPendingExtraction(ctx, r.cfg.Limit)
	if err != nil {
		return sum, errors.Wrap(err, "list jobs pending extraction")
	}
	r.log.Infow("extraction started", "pipeline", "extract", "jobs", len(jobs))

	for _, j := range jobs {
		if j.Description == nil || strings.TrimSpace(*j.Description) == "" {
			sum.Skipped++
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return sum, err
		}

		ectx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		res, err := r.extractor.Extract(ectx, inputFor(j))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Failed++
			r.log.Errorw("extraction failed", "pipeline", "extract", "job_id", j.ID, "error", err)
			continue
		}

		text := EmbeddingText(j.Title, res.Extraction)
		if err := r.jobs.UpdateExtraction(ctx, j.ID, res.Extraction, res.Salary(), text, r.now().UTC()); err != nil {
			return sum, err
		}
		sum.Processed++
	}

	r.log.Infow("extraction finished",
		"pipeline", "extract",
		"processed", sum.Processed,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"duration", time.Since(start),
	)
	return sum, nil
}

func inputFor(j job.Job) Input {
	in := Input{Title: j.Title, Company: j.Company}
	if j.Description != nil {
		in.Description = *j.Description
	}
	in.ExistingSalary = describeSalary(j.Salary)
	return in
}

func describeSalary(s job.Salary) string {
	if s.Min == nil && s.Max == nil {
		return ""
	}
	var parts []string
	if s.Currency != nil {
		parts = append(parts, *s.Currency)
	}
	if s.Min != nil {
		parts = append(parts, strconv.FormatFloat(*s.Min, 'f', -1, 64))
	}
	if s.Max != nil {
		parts = append(parts, "-", strconv.FormatFloat(*s.Max, 'f', -1, 64))
	}
	if s.Period != nil {
		parts = append(parts, "per", *s.Period)
	}
	return strings.Join(parts, " ")
}

// EmbeddingText renders the text the core-requirements vector is built from.
func EmbeddingText(title string, e job.Extraction) string {
	return "Title: " + title +
		"\nSkills: " + listOrUnspecified(e.CoreSkills) +
		"\nExperience: " + e.RealisticExperienceLevel +
		"\nComplexity: " + e.ActualJobComplexity +
		"\nTransferable: " + listOrUnspecified(e.TransferableSkillsIndicators)
}

func listOrUnspecified(v []string) string {
	if len(v) == 0 {
		return "Not specified"
	}
	return strings.Join(v, ", ")
}
