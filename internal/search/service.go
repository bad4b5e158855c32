// Package search serves similarity-ranked jobs for a query embedding.
package search

import (
	"context"
	"time"

	"jobradar/internal/domain/job"
	"jobradar/internal/logger"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	// candidateFactor widens the index lookup so that exact re-ranking has
	// enough rows to choose from.
	candidateFactor = 4
)

// ErrQueryEmbedding wraps a failure to embed the query text.
var ErrQueryEmbedding = errors.New("query embedding failed")

// ErrEmptyQuery is returned when neither text nor a vector was given.
var ErrEmptyQuery = errors.New("query or embedding is required")

type CandidateStore interface {
	SearchCandidates(ctx context.Context, query []float32, filters job.Filters, limit int) ([]job.Job, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Request struct {
	Query     string
	Embedding []float32
	Limit     int
	Filters   job.Filters
}

type Service struct {
	store      CandidateStore
	embedder   Embedder
	dimensions int
	timeout    time.Duration
	log        *zap.SugaredLogger
}

// NewService builds a search service. dimensions is the length of the stored
// vectors; zero accepts query vectors of any length.
func NewService(store CandidateStore, embedder Embedder, dimensions int, timeout time.Duration, log *zap.SugaredLogger) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{store: store, embedder: embedder, dimensions: dimensions, timeout: timeout, log: logger.OrNop(log)}
}

func (s *Service) checkDimensions(vec []float32) error {
	if s.dimensions > 0 && len(vec) != s.dimensions {
		return errors.Wrapf(ErrDimensionMismatch, "query has %d dimensions, stored vectors have %d", len(vec), s.dimensions)
	}
	return nil
}

// ClampLimit maps limit into 1..MaxLimit, using DefaultLimit for non-positive values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Search ranks stored jobs against queryEmbedding.
func (s *Service) Search(ctx context.Context, queryEmbedding []float32, limit int, filters job.Filters) ([]job.Scored, error) {
	if len(queryEmbedding) == 0 {
		return nil, ErrEmptyQuery
	}
	if err := s.checkDimensions(queryEmbedding); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)
	filters = filters.Normalized()

	candidates, err := s.store.SearchCandidates(ctx, queryEmbedding, filters, limit*candidateFactor)
	if err != nil {
		return nil, errors.Wrap(err, "search candidates")
	}
	return Rank(queryEmbedding, candidates, filters, limit), nil
}

// Query embeds req.Query when no vector is supplied and runs Search.
func (s *Service) Query(ctx context.Context, req Request) ([]job.Scored, error) {
	vec := req.Embedding
	if len(vec) == 0 {
		text := NormalizeQuery(req.Query)
		if text == "" {
			return nil, ErrEmptyQuery
		}
		if s.embedder == nil {
			return nil, errors.Mark(errors.New("no embedder configured"), ErrQueryEmbedding)
		}

		ectx, cancel := context.WithTimeout(ctx, s.timeout)
		vecs, err := s.embedder.Embed(ectx, []string{text})
		cancel()
		if err != nil {
			s.log.Errorw("query embedding failed", "pipeline", "search", "error", err)
			return nil, errors.Mark(errors.Wrap(err, "embed query"), ErrQueryEmbedding)
		}
		if len(vecs) == 0 || len(vecs[0]) == 0 {
			return nil, errors.Mark(errors.New("embedder returned no vector"), ErrQueryEmbedding)
		}
		vec = vecs[0]
		if err := s.checkDimensions(vec); err != nil {
			return nil, errors.Mark(err, ErrQueryEmbedding)
		}
	}
	return s.Search(ctx, vec, req.Limit, req.Filters)
}
