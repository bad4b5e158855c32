package routes

import (
	"jobradar/internal/delivery/http/handler"
	"jobradar/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type Registry struct {
	Health         *handler.HealthHandler
	Search         *handler.SearchHandler
	Jobs           *handler.JobsHandler
	PipelineStatus *handler.PipelineStatusHandler
	WS             *ws.Handler
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil || r == nil {
		return
	}

	if r.Health != nil {
		r.Health.RegisterRoutes(app)
	}
	if r.WS != nil {
		app.Get("/ws/jobs", r.WS.HandleJobsWS)
	}
	r.registerV1(app.Group("/api").Group("/v1"))
}

func (r *Registry) registerV1(v1 fiber.Router) {
	if r.Search != nil {
		r.Search.RegisterRoutes(v1)
	}
	if r.Jobs != nil {
		r.Jobs.RegisterRoutes(v1)
	}
	if r.PipelineStatus != nil {
		r.PipelineStatus.RegisterRoutes(v1)
	}
}
