package handler

import (
	"context"
	"strings"

	"jobradar/internal/delivery/http/dto"
	"jobradar/internal/delivery/http/middleware"
	"jobradar/internal/domain/job"
	"jobradar/internal/pkg/response"
	"jobradar/internal/search"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v3"
)

type Searcher interface {
	Query(ctx context.Context, req search.Request) ([]job.Scored, error)
}

type SearchHandler struct {
	svc Searcher
}

func NewSearchHandler(svc Searcher) *SearchHandler {
	return &SearchHandler{svc: svc}
}

func (h *SearchHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/search", h.HandleSearch)
}

func (h *SearchHandler) HandleSearch(c fiber.Ctx) error {
	var req dto.SearchRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, response.MessageBadRequest,
			response.ReasonInvalidRequest, "request body must be a JSON object", err)
	}
	if strings.TrimSpace(req.Query) == "" && len(req.Embedding) == 0 {
		return middleware.NewAppError(fiber.StatusBadRequest, response.MessageBadRequest,
			response.ReasonInvalidRequest, "query or embedding is required", nil)
	}
	if req.Limit < 0 || req.Limit > search.MaxLimit {
		return middleware.NewAppError(fiber.StatusBadRequest, response.MessageBadRequest,
			response.ReasonInvalidRequest, "limit must be between 1 and 100", nil)
	}

	results, err := h.svc.Query(c.Context(), search.Request{
		Query:     req.Query,
		Embedding: req.Embedding,
		Limit:     req.Limit,
		Filters: job.Filters{
			Location: req.Location,
			JobType:  req.JobType,
			Company:  req.Company,
		},
	})
	if err != nil {
		return mapSearchError(err)
	}

	out := dto.NewScoredJobResponses(results)
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.SearchResponse{Count: len(out), Results: out})
}

func mapSearchError(err error) error {
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		return middleware.NewAppError(fiber.StatusBadRequest, response.MessageBadRequest,
			response.ReasonInvalidRequest, "query or embedding is required", err)
	case errors.Is(err, search.ErrQueryEmbedding):
		return middleware.NewAppError(fiber.StatusBadGateway, "embedding service unavailable",
			response.ReasonEmbeddingUnavailable, "the query could not be embedded, try again later", err)
	case errors.Is(err, search.ErrDimensionMismatch):
		return middleware.NewAppError(fiber.StatusBadRequest, response.MessageBadRequest,
			response.ReasonInvalidRequest, "embedding dimension does not match stored vectors", err)
	default:
		return middleware.NewAppError(fiber.StatusServiceUnavailable, "search unavailable",
			response.ReasonStorageUnavailable, "job storage could not be queried", err)
	}
}
