package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/mdtro/gitbot/internal/auth"
	"github.com/mdtro/gitbot/internal/bus"
	"github.com/mdtro/gitbot/internal/config"
	"github.com/mdtro/gitbot/internal/db"
	"github.com/mdtro/gitbot/internal/handlers"
	"github.com/mdtro/gitbot/internal/ingest"
	"github.com/mdtro/gitbot/internal/secrets"
	"github.com/mdtro/gitbot/internal/syncer"
)

type Deps struct {
	DB        *db.DB
	Bus       bus.Bus
	Secrets   secrets.Secrets
	Syncer    syncer.Syncer
	Reverters map[string]handlers.Reverter
}

func New(cfg config.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:     "gitbot",
		IdleTimeout: 60 * time.Second,
		ReadTimeout: 10 * time.Second,
		// Sync runs inside the request; allow it to finish.
		WriteTimeout: 3 * time.Minute,
	})

	// Baseline middleware.
	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(logger.New())

	var ingestor *ingest.OutcomeIngestor
	if deps.DB != nil && deps.DB.Pool != nil {
		ingestor = &ingest.OutcomeIngestor{Pool: deps.DB.Pool}
	}

	// Routes.
	app.Get("/health", handlers.Health(cfg))
	app.Get("/ready", handlers.Ready(deps.DB))

	webhooks := handlers.NewGitHubWebhooksHandler(cfg, deps.Secrets.WebhookSecret, deps.Syncer, deps.Bus, ingestor)
	// "/" is where GitHub's webhook config has always pointed; keep both.
	app.Post("/", webhooks.Receive())
	app.Post("/webhooks/github", webhooks.Receive())

	revert := handlers.NewRevertHandler(deps.Secrets.APISecret, deps.Reverters)
	app.Post("/api/revert", revert.Revert())

	deliveries := handlers.NewDeliveriesHandler(deps.DB)
	app.Get("/deliveries", auth.RequireAuth(cfg.JWTSecret), deliveries.List())

	return app
}
