// Imaginears Web - Community Management and Session Security Analytics
// Copyright 2026 Imaginears Club
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/imaginearsclub/imaginears-web

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imaginearsclub/imaginears-web-sub001/internal/alertstate"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/api"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/config"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/database"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/detection"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/eventbus"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/geoip"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/logging"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/supervisor"
	"github.com/imaginearsclub/imaginears-web-sub001/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server stopped with error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

//nolint:gocyclo // sequential setup steps
func run() error {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("alert_state", alertStateLocation(&cfg.AlertState)).
		Str("environment", cfg.Server.Environment).
		Msg("Configuration loaded")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	resolver, err := geoip.NewFromConfig(cfg.GeoIP)
	if err != nil {
		return err
	}

	aggregator := detection.NewAggregator(resolver, aggregatorConfig(&cfg.Detection))
	scanner := detection.NewScanner(aggregator, db, scannerConfig(&cfg.Detection))

	alertStore, err := alertstate.Open(cfg.AlertState)
	if err != nil {
		return err
	}
	defer func() {
		if err := alertStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing alert state")
		}
	}()
	scanner.SetStatusStore(alertStore)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	tree.AddStorageService(alertstate.NewGCService(alertStore, cfg.AlertState.GCInterval))

	scannerService := services.NewScannerService(scanner)
	if cfg.Events.Enabled {
		bus := eventbus.New(cfg.Events)
		defer func() {
			if err := bus.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing event bus")
			}
		}()
		scanner.SetPublisher(eventbus.NewPublisher(bus.Publisher()))
		audit := eventbus.NewAuditService(bus.Subscriber(), bus.Logger())
		tree.AddAnalyticsService(audit)
		scannerService.WaitFor(audit.Running(), services.DefaultReadyTimeout)
		logging.Info().Msg("Security event bus enabled")
	} else {
		logging.Info().Msg("Security event bus disabled (EVENTS_ENABLED=false)")
	}

	tree.AddAnalyticsService(scannerService)

	handler := api.NewHandler(scanner, db, cfg.API)
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&cfg.Security)))
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	var serveErr error
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
			serveErr = err
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	return serveErr
}
