package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"time"
	_ "time/tzdata" // trading timezone must resolve on hosts without zoneinfo

	"logMirrorBot/config"
	"logMirrorBot/internal/adapters/actuator"
	"logMirrorBot/internal/adapters/joinquant"
	"logMirrorBot/internal/adapters/logger"
	"logMirrorBot/internal/adapters/sqlite"
	"logMirrorBot/internal/adapters/tracing"
	"logMirrorBot/internal/app"
	"logMirrorBot/internal/execution"
	"logMirrorBot/internal/metrics"
	"logMirrorBot/internal/ports"
	"logMirrorBot/internal/signals"
)

var version = "dev"

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Observability
	tp, err := tracing.Init(ctx, tracing.Config{Enabled: cfg.TracingEnabled, Version: version})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize tracing")
		log.Fatalf("FATAL: Failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(context.Background(), err, "Error flushing traces")
		}
	}()
	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr)
		defer srv.Close()
		appLogger.Info(ctx, "Metrics server started", map[string]interface{}{"addr": cfg.MetricsAddr})
	}

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath:   cfg.DBPath,
		Logger:   appLogger,
		Location: cfg.Location,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 5. Initialize Log Source (JoinQuant Adapter)
	source, err := joinquant.New(joinquant.Config{
		BaseURL:        cfg.BaseURL,
		Cookies:        cfg.Cookies,
		Timeout:        cfg.FetchTimeout,
		Logger:         appLogger,
		SessionQueryID: cfg.QueryID,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize JoinQuant client")
		log.Fatalf("FATAL: Failed to initialize JoinQuant client: %v", err)
	}
	appLogger.Info(ctx, "JoinQuant client initialized", map[string]interface{}{"queryID": cfg.QueryID})

	// 6. Initialize Actuator and Execution Engine
	var act ports.OrderActuator
	switch cfg.ActuatorMode {
	case config.ActuatorMemory:
		act = actuator.NewMemory()
	default:
		act = actuator.NewDryRun(appLogger)
	}
	act = actuator.Traced(act, tp.Tracer())

	engine, err := execution.New(execution.Config{
		Actuator:            act,
		Logger:              appLogger,
		MinSignalDelay:      cfg.MinSignalDelay,
		BoundarySettleDelay: cfg.BoundarySettleDelay,
		ConfirmWindow:       cfg.ConfirmWindow,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize execution engine")
		log.Fatalf("FATAL: Failed to initialize execution engine: %v", err)
	}
	appLogger.Info(ctx, "Execution engine initialized", map[string]interface{}{"actuator": cfg.ActuatorMode})

	// 7. Initialize Signal Extractor
	extractor, err := signals.New(signals.Config{
		Location:   cfg.Location,
		CodeLength: cfg.InstrumentCodeLength,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize signal extractor")
		log.Fatalf("FATAL: Failed to initialize signal extractor: %v", err)
	}

	// 8. Initialize Pipeline and Application Service
	pipeline, err := app.NewPipeline(app.PipelineConfig{
		QueryID:    cfg.QueryID,
		Source:     source,
		Extractor:  extractor,
		Engine:     engine,
		States:     repo,
		Executions: repo,
		Location:   cfg.Location,
		Logger:     appLogger,
		Tracer:     tp.Tracer(),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize pipeline")
		log.Fatalf("FATAL: Failed to initialize pipeline: %v", err)
	}

	service, err := app.NewService(
		app.ServiceConfig{
			QueryID:              cfg.QueryID,
			PollInterval:         cfg.PollInterval,
			RetryInterval:        cfg.RetryInterval,
			SessionCheckInterval: cfg.SessionCheckInterval,
			Window: app.TradingWindow{
				Location: cfg.Location,
				Sessions: cfg.Sessions,
				Margin:   cfg.BoundaryMargin,
			},
		},
		appLogger,
		pipeline,
		repo, // Pass the concrete implementation, service expects the interface
		repo,
		source,
	)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize log mirror service")
		log.Fatalf("FATAL: Failed to initialize log mirror service: %v", err)
	}
	appLogger.Info(ctx, "Log mirror service initialized")

	// 9. Start the Service
	if err := service.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Log mirror service exited with error")
		log.Fatalf("FATAL: Log mirror service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
