package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdtro/gitbot/internal/api"
	"github.com/mdtro/gitbot/internal/bump"
	"github.com/mdtro/gitbot/internal/bus"
	"github.com/mdtro/gitbot/internal/bus/natsbus"
	"github.com/mdtro/gitbot/internal/config"
	"github.com/mdtro/gitbot/internal/db"
	"github.com/mdtro/gitbot/internal/gitx"
	"github.com/mdtro/gitbot/internal/handlers"
	"github.com/mdtro/gitbot/internal/migrate"
	"github.com/mdtro/gitbot/internal/secrets"
	"github.com/mdtro/gitbot/internal/syncer"
)

func main() {
	config.LoadDotenv()
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("starting", "env", cfg.Env, "source", cfg.SourceRepo, "deploy", cfg.DeployRepo)

	sec, err := secrets.Load(secrets.Env{}, !cfg.IsDev())
	if err != nil {
		slog.Error("secrets load failed", "error", err)
		os.Exit(1)
	}

	var database *db.DB
	if cfg.DBURL == "" {
		slog.Warn("DB_URL not set; outcome auditing disabled")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		d, err := db.Connect(ctx, cfg.DBURL)
		cancel()
		if err != nil {
			slog.Error("db connect failed", "error", err)
			os.Exit(1)
		}
		database = d
		defer database.Close()

		if cfg.AutoMigrate {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			err := migrate.Up(ctx, database.Pool)
			cancel()
			if err != nil {
				slog.Error("auto-migrate failed", "error", err)
				os.Exit(1)
			}
			slog.Info("auto-migrate complete")
		}
	}

	var eventBus bus.Bus
	if cfg.NATSURL != "" {
		b, err := natsbus.Connect(cfg.NATSURL)
		if err != nil {
			slog.Error("nats connect failed", "error", err)
			os.Exit(1)
		}
		eventBus = b
		defer eventBus.Close()
	}

	deployWS := gitx.New(gitx.Options{
		Repo:           cfg.DeployRepo,
		Token:          sec.GitHubToken,
		Path:           cfg.CheckoutPath,
		DefaultBranch:  cfg.DeployBranch,
		CommitterName:  cfg.CommitterName,
		CommitterEmail: cfg.CommitterEmail,
		PinPrefix:      cfg.SourceRepo + "@",
		DryRun:         cfg.DryRun,
	})
	sourceWS := gitx.New(gitx.Options{
		Repo:           cfg.SourceRepo,
		Token:          sec.GitHubToken,
		Path:           cfg.CheckoutPath + "-source",
		CommitterName:  cfg.CommitterName,
		CommitterEmail: cfg.CommitterEmail,
		DryRun:         cfg.DryRun,
	})

	// Prime the cached clones so the first webhook doesn't pay for a full
	// clone. FAST_STARTUP skips this for local iteration.
	if os.Getenv("FAST_STARTUP") == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		for _, ws := range []*gitx.Workspace{deployWS, sourceWS} {
			if err := ws.Refresh(ctx); err != nil {
				cancel()
				slog.Error("priming checkout failed", "repo", ws.Repo(), "error", err)
				os.Exit(1)
			}
		}
		cancel()
	}

	if cfg.DryRun {
		slog.Info("dry run mode: on")
	} else {
		slog.Info("dry run mode: *OFF* <--!")
		slog.Info("code bumps will be pushed", "branch", cfg.DeployBranch, "repo", cfg.DeployRepo)
	}

	coordinator := syncer.NewCoordinator(cfg, deployWS, &bump.ScriptExecutor{Path: cfg.BumpPath})

	app := api.New(cfg, api.Deps{
		DB:      database,
		Bus:     eventBus,
		Secrets: sec,
		Syncer:  coordinator,
		Reverters: map[string]handlers.Reverter{
			"sentry":    sourceWS,
			"getsentry": deployWS,
		},
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting http server", "addr", cfg.HTTPAddr)
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		// Fiber returns nil only on clean shutdown; treat any error as fatal.
		slog.Error("http server exited", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := api.Shutdown(ctx, app); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("shutdown complete")
}
