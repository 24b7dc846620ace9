package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"wheatr-server/internal/config"
	"wheatr-server/internal/db"
	"wheatr-server/internal/httpapi"
	"wheatr-server/internal/ingest"
	"wheatr-server/internal/ingest/aemet"
	"wheatr-server/internal/metrics"
	"wheatr-server/internal/migrate"
	weather "wheatr-server/internal/modules/weather"
	"wheatr-server/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"dbDriver", cfg.DBDriver,
		"sqlitePath", cfg.SQLitePath,
		"dbMaxOpenConns", cfg.DBMaxOpenConns,
		"estimateLookback", cfg.EstimateLookback,
		"ingestEnabled", cfg.IngestEnabled(),
		"ingestSchedule", cfg.IngestSchedule,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttTopic", cfg.MQTTTopic,
	)

	logger := slog.Default()
	dbConn, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, dbConn); err != nil {
		return err
	}
	slog.Info("database ready")

	m := metrics.New()
	mux := httpapi.NewMux(dbConn, cfg.StaticDir, m)
	feature := weather.RegisterFeature(mux, dbConn, cfg.EstimateLookback, m, logger.With("component", "estimator"))

	var mqttSubscriber *mqtt.Subscriber
	if cfg.MQTTEnabled {
		mqttLogger := logger.With("component", "mqtt")
		mqttSubscriber = mqtt.NewSubscriber(cfg, mqttLogger, m)
		// The handler must be in place before Connect subscribes.
		feature.AttachTelemetry(mqttSubscriber, m, mqttLogger)

		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = mqttSubscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	var scheduler *ingest.Scheduler
	if cfg.IngestEnabled() {
		ingestLogger := logger.With("component", "ingest")
		job := ingest.NewJob(aemet.NewClient(cfg, m, ingestLogger), feature.Repository, m, ingestLogger)
		scheduler, err = ingest.NewScheduler(cfg.IngestSchedule, cfg.IngestTimeout, job, ingestLogger)
		if err != nil {
			return err
		}
		scheduler.Start(ctx, cfg.IngestOnStart)
	} else {
		slog.Warn("AEMET_API_KEY not set, ingestion disabled")
	}

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	stopBackground := func(ctx context.Context) {
		if scheduler != nil {
			slog.Info("ingest scheduler stopping")
			if err := scheduler.Stop(ctx); err != nil {
				slog.Warn("ingest scheduler stop", "error", err)
			}
		}
		if mqttSubscriber != nil {
			slog.Info("mqtt disconnecting")
			mqttSubscriber.Disconnect()
		}
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		// The listener failed before shutdown was requested. Background
		// writers must stop before the deferred db.Close runs.
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		stopBackground(stopCtx)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopBackground(shutdownCtx)

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
