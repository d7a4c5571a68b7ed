package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apprelay "github.com/erp/mikrosync/internal/application/relay"
	"github.com/erp/mikrosync/internal/domain/mikro"
	"github.com/erp/mikrosync/internal/infrastructure/config"
	"github.com/erp/mikrosync/internal/infrastructure/logger"
	mikroclient "github.com/erp/mikrosync/internal/infrastructure/mikro"
	"github.com/erp/mikrosync/internal/infrastructure/persistence"
	"github.com/erp/mikrosync/internal/infrastructure/scheduler"
	"github.com/erp/mikrosync/internal/infrastructure/telemetry"
	"github.com/erp/mikrosync/internal/infrastructure/watermark"
	"github.com/erp/mikrosync/internal/interfaces/http/handler"
	"github.com/erp/mikrosync/internal/interfaces/http/router"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// Logs bridge; the logger is rebuilt with the OTLP core teed in
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logs provider", zap.Error(err))
	}
	if logsProvider.IsEnabled() {
		level, err := zapcore.ParseLevel(cfg.Telemetry.LogsLevel)
		if err != nil {
			level = zapcore.InfoLevel
		}
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: logsProvider,
			Level:          level,
		})
		if log, err = logger.New(logCfg, otelCore); err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting mikrosync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", telemetry.ServiceVersion),
		zap.String("watermark_backend", cfg.Watermark.Backend),
		zap.Duration("poll_interval", cfg.Relay.PollInterval),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	meter := meterProvider.Meter(telemetry.RelayMeterName)

	// Shop database
	gormLog := logger.NewGormLogger(
		log.Named("gorm"),
		logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(200*time.Millisecond),
	)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database connection", zap.Error(err))
		}
	}()
	log.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName),
	)

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled
	if err := telemetry.NewDBTracingPlugin(dbTracing, log).Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	if sqlDB, err := db.DB.DB(); err == nil {
		poolMetrics, err := telemetry.RegisterDBPoolMetrics(meter, sqlDB)
		if err != nil {
			log.Warn("Failed to register pool metrics", zap.Error(err))
		} else {
			defer func() {
				_ = poolMetrics.Stop()
			}()
		}
	}

	source := persistence.NewGormOrderSource(db.DB, persistence.SourceTables{
		Orders:     cfg.Database.OrdersTable,
		OrderItems: cfg.Database.OrderItemsTable,
		Users:      cfg.Database.UsersTable,
		Products:   cfg.Database.ProductsTable,
	}, cfg.Database.QueryTimeout)

	marks, err := watermark.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize watermark store", zap.Error(err))
	}
	defer func() {
		if err := marks.Close(); err != nil {
			log.Error("Error closing watermark store", zap.Error(err))
		}
	}()

	client, err := mikroclient.NewClient(&cfg.Mikro, log)
	if err != nil {
		log.Fatal("Failed to initialize Mikro client", zap.Error(err))
	}

	relayMetrics, err := telemetry.NewRelayMetrics(meter)
	if err != nil {
		log.Fatal("Failed to initialize relay metrics", zap.Error(err))
	}

	svc := apprelay.NewSyncService(source, marks, client, mikro.Credentials{
		APIKey:      cfg.Mikro.APIKey,
		CompanyCode: cfg.Mikro.CompanyCode,
		UserCode:    cfg.Mikro.UserCode,
	}, log,
		apprelay.WithRecorder(relayMetrics),
		apprelay.WithTracer(tracerProvider.Tracer("mikrosync/relay")),
	)

	sched, err := scheduler.NewRelayScheduler(scheduler.RelaySchedulerConfig{
		PollInterval:      cfg.Relay.PollInterval,
		StopCheckInterval: cfg.Relay.StopCheckInterval,
		CycleTimeout:      cfg.Relay.CycleTimeout,
		HistorySize:       cfg.Relay.HistorySize,
	}, svc, log)
	if err != nil {
		log.Fatal("Failed to create relay scheduler", zap.Error(err))
	}

	// Loops started over HTTP live as long as the process
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	if cfg.Relay.AutoStart {
		if err := sched.Start(runCtx); err != nil {
			log.Fatal("Failed to start relay loop", zap.Error(err))
		}
	}

	var srv *http.Server
	if cfg.HTTP.Enabled {
		// Stop answers 202 before the write timeout if a cycle is still running
		stopWait := cfg.HTTP.WriteTimeout / 2
		engine := router.NewEngine(router.EngineConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			TracingEnabled: cfg.Telemetry.Enabled,
			Mode:           ginMode(cfg.App.Env),
		}, router.Handlers{
			System: handler.NewSystemHandler(db, sched, telemetry.ServiceVersion),
			Relay:  handler.NewRelayHandler(runCtx, sched, stopWait),
		}, log.Named("http"))

		srv = &http.Server{
			Addr:         cfg.HTTP.Address,
			Handler:      engine,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		}

		go func() {
			log.Info("Control server listening", zap.String("address", cfg.HTTP.Address))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("Failed to start control server", zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Control server forced to shutdown", zap.Error(err))
		}
	}

	// The in-flight cycle is allowed to finish
	if err := sched.Stop(shutdownCtx); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		log.Error("Relay loop did not stop cleanly", zap.Error(err))
	}

	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := logsProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down logs provider", zap.Error(err))
	}

	log.Info("Stopped")
}

func ginMode(env string) string {
	if env == "production" {
		return "release"
	}
	return "debug"
}
