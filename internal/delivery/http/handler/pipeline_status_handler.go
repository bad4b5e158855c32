package handler

import (
	"context"

	"jobradar/internal/delivery/http/middleware"
	"jobradar/internal/monitoring"
	"jobradar/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

type StatusReporter interface {
	Report(ctx context.Context) (monitoring.Report, error)
}

type PipelineStatusHandler struct {
	svc StatusReporter
}

func NewPipelineStatusHandler(svc StatusReporter) *PipelineStatusHandler {
	return &PipelineStatusHandler{svc: svc}
}

func (h *PipelineStatusHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/pipeline/status", h.GetStatus)
}

func (h *PipelineStatusHandler) GetStatus(c fiber.Ctx) error {
	rep, err := h.svc.Report(c.Context())
	if err != nil {
		return middleware.NewAppError(fiber.StatusServiceUnavailable, "pipeline status unavailable",
			response.ReasonStorageUnavailable, "metrics could not be collected", err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, rep)
}
