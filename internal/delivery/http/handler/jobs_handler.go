package handler

import (
	"context"
	"strconv"
	"time"

	"jobradar/internal/cache"
	"jobradar/internal/delivery/http/dto"
	"jobradar/internal/delivery/http/middleware"
	"jobradar/internal/domain/job"
	"jobradar/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

const (
	defaultLatestLimit = 20
	maxLatestLimit     = 100
)

type LatestLister interface {
	Latest(ctx context.Context, limit, offset int) ([]job.Job, error)
}

type JSONCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type JobsHandler struct {
	jobs  LatestLister
	cache JSONCache
}

func NewJobsHandler(jobs LatestLister, c JSONCache) *JobsHandler {
	return &JobsHandler{jobs: jobs, cache: c}
}

func (h *JobsHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/jobs/latest", h.HandleLatest)
}

// HandleLatest serves GET /jobs/latest?limit&offset, newest first.
func (h *JobsHandler) HandleLatest(c fiber.Ctx) error {
	limit, err := parseQueryIntStrict(c, "limit", defaultLatestLimit)
	if err != nil {
		return badQuery("limit must be an integer", err)
	}
	offset, err := parseQueryIntStrict(c, "offset", 0)
	if err != nil || offset < 0 {
		return badQuery("offset must be a non-negative integer", err)
	}
	limit = clamp(limit, 1, maxLatestLimit)

	ctx := c.Context()
	key := cache.LatestJobsKey(limit, offset)

	var cached dto.LatestJobsResponse
	if h.cache != nil {
		if ok, _ := h.cache.GetJSON(ctx, key, &cached); ok {
			c.Set("X-Cache", "HIT")
			return response.Success(c, fiber.StatusOK, response.MessageOK, cached)
		}
	}

	items, err := h.jobs.Latest(ctx, limit, offset)
	if err != nil {
		return middleware.NewAppError(fiber.StatusServiceUnavailable, "jobs unavailable",
			response.ReasonStorageUnavailable, "job storage could not be queried", err)
	}

	out := dto.LatestJobsResponse{Limit: limit, Offset: offset, Jobs: dto.NewJobResponses(items)}
	if h.cache != nil {
		_ = h.cache.SetJSON(ctx, key, out, 0)
	}
	c.Set("X-Cache", "MISS")
	return response.Success(c, fiber.StatusOK, response.MessageOK, out)
}

func parseQueryIntStrict(c fiber.Ctx, key string, defaultVal int) (int, error) {
	s := c.Query(key)
	if s == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(s)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func badQuery(detail string, err error) error {
	return middleware.NewAppError(fiber.StatusBadRequest, response.MessageBadRequest,
		response.ReasonInvalidRequest, detail, err)
}
