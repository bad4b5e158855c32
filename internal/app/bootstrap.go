package app

import (
	"context"
	"strings"

	"jobradar/internal/config"
	"jobradar/internal/delivery/http/handler"
	"jobradar/internal/delivery/http/middleware"
	"jobradar/internal/delivery/http/routes"
	"jobradar/internal/ws"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

type App struct {
	Fiber     *fiber.App
	Container *Container

	relay *ws.Relay
}

func New(c *Container) *App {
	f := fiber.New(fiber.Config{AppName: c.Config.App.AppName})

	registerGlobalMiddleware(f, c.Log)

	reg := &routes.Registry{
		Health:         handler.NewHealthHandler(c.DB, c.Redis),
		Search:         handler.NewSearchHandler(c.Search),
		Jobs:           handler.NewJobsHandler(c.Jobs, c.Redis),
		PipelineStatus: handler.NewPipelineStatusHandler(c.Monitor),
		WS:             ws.NewHandler(c.Hub, c.Log.Named("ws")),
	}
	reg.Register(f)

	return &App{
		Fiber:     f,
		Container: c,
		relay:     ws.NewRelay(c.Redis.Client(), c.Hub, c.Redis, c.Log.Named("ws")),
	}
}

// Bootstrap builds the container and the HTTP app, and starts the WebSocket
// hub and event relay. The returned cleanup stops them and closes the container.
func Bootstrap(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*App, func() error, error) {
	c, err := NewContainer(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	a := New(c)

	runCtx, cancel := context.WithCancel(ctx)
	go c.Hub.Run(runCtx)
	go a.relay.Run(runCtx)

	cleanup := func() error {
		cancel()
		return c.Close()
	}
	return a, cleanup, nil
}

func registerGlobalMiddleware(app *fiber.App, log *zap.SugaredLogger) {
	if app == nil {
		return
	}

	app.Use(middleware.NewAccessLogMiddleware(log.Named("http")).Middleware())
	app.Use(middleware.NewErrorMiddleware(log.Named("http")).Middleware())
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", errors.New("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
