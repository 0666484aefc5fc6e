// Package main provides the Quartic describe API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/quartictech/quartic/pkg/pipeline"
	"github.com/quartictech/quartic/pkg/web"
)

type API struct {
	logger    *slog.Logger
	nodes     []*pipeline.Node
	namespace string
	validate  *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	nodes []*pipeline.Node,
	namespace string,
) *API {
	return &API{
		logger:    logger,
		nodes:     nodes,
		namespace: namespace,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.nodes, a.namespace, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Quartic API")
	})

	s := app.Group("/steps")
	s.Get("/", handlers.GetSteps)
	s.Get("/:id", handlers.GetStep)

	app.Get("/graph", handlers.GetGraph)
	app.Get("/schedule", handlers.GetSchedule)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Starting API server", "port", port, "steps", len(a.nodes))

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
