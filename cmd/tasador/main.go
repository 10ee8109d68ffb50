package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/catastro-tasador/internal/adapter/catastro"
	"github.com/couchcryptid/catastro-tasador/internal/adapter/filestore"
	httpadapter "github.com/couchcryptid/catastro-tasador/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/catastro-tasador/internal/adapter/kafka"
	"github.com/couchcryptid/catastro-tasador/internal/adapter/viewmodel"
	"github.com/couchcryptid/catastro-tasador/internal/asset"
	"github.com/couchcryptid/catastro-tasador/internal/config"
	"github.com/couchcryptid/catastro-tasador/internal/lookup"
	"github.com/couchcryptid/catastro-tasador/internal/observability"
	"github.com/couchcryptid/catastro-tasador/internal/report"
	"github.com/couchcryptid/catastro-tasador/internal/state"
	"github.com/couchcryptid/catastro-tasador/internal/view"
	"github.com/couchcryptid/catastro-tasador/internal/workflow"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	profile, err := config.LoadProfile(cfg.TechnicianProfile)
	if err != nil {
		logger.Error("failed to load technician profile", "error", err)
		os.Exit(1)
	}

	backend := catastro.NewClient(cfg, logger)
	st := state.New()

	doc := viewmodel.NewDocument()
	view.NewSynchronizer(doc, doc, doc, logger).Attach(st)

	var opts []workflow.Option
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, workflow.WithPublisher(writer))
		logger.Info("analysis events enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("analysis events disabled")
	}

	wf := workflow.New(
		st,
		lookup.NewClient(backend, st, clock, metrics, logger),
		report.NewComposer(backend, filestore.New(cfg.OutputDir, logger), st, profile, clock, metrics, logger),
		asset.NewIngester(st, cfg.MaxLogoBytes, metrics, logger),
		clock,
		metrics,
		logger,
		opts...,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if profile.LogoPath != "" {
		if _, err := wf.AttachLogoFile(ctx, profile.LogoPath); err != nil {
			logger.Warn("profile logo not loaded", "path", profile.LogoPath, "error", err)
		}
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, wf, doc, backend, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	logger.Info("dashboard ready", "backend", cfg.BackendURL, "output_dir", cfg.OutputDir)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
