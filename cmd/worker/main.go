package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdtro/gitbot/internal/bus/natsbus"
	"github.com/mdtro/gitbot/internal/config"
	"github.com/mdtro/gitbot/internal/db"
	"github.com/mdtro/gitbot/internal/ingest"
	"github.com/mdtro/gitbot/internal/worker"
)

func main() {
	config.LoadDotenv()
	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DBURL == "" {
		slog.Error("DB_URL is required")
		os.Exit(1)
	}
	d, err := db.Connect(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	defer d.Close()

	if cfg.NATSURL == "" {
		slog.Error("NATS_URL is required to run the audit worker")
		os.Exit(1)
	}

	b, err := natsbus.Connect(cfg.NATSURL)
	if err != nil {
		slog.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	ingestor := &ingest.OutcomeIngestor{Pool: d.Pool}
	consumer := &worker.SyncOutcomeConsumer{Ingest: ingestor}
	if err := consumer.Subscribe(ctx, b.Conn(), "gitbot-workers"); err != nil {
		slog.Error("subscribe failed", "error", err)
		os.Exit(1)
	}

	slog.Info("worker started")

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("worker shutting down")
	cancel()
	time.Sleep(300 * time.Millisecond)
}
