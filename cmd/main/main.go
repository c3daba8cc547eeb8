package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credit-observer/src/alerting"
	"credit-observer/src/cache"
	"credit-observer/src/config"
	datasource "credit-observer/src/data_source"
	"credit-observer/src/explain"
	"credit-observer/src/features"
	"credit-observer/src/helpers"
	"credit-observer/src/ingestion"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/network"
	"credit-observer/src/pipeline"
	"credit-observer/src/query"
	"credit-observer/src/scoring"
	"credit-observer/src/server"
	"credit-observer/src/storage"
	"credit-observer/src/utils"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	scoreOnStart := flag.Bool("score-on-start", true, "run one ingestion and scoring pass before scheduling")
	flag.Parse()

	// 1. Load config (YAML, .env, CREDIT_* overrides)
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg, cfg.Name)
	helpers.ApplyMemoryLimit(appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Storage
	db, err := storage.NewDatabase(cfg.MConfig, appLogger)
	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to initialize db: %v", err)
	}
	defer db.Close()

	// Issuers may reference a postgres table (schema.table.field)
	if pg, ok := db.(*storage.PostgresDB); ok {
		issuers, err := pg.ExpandIssuerRefs(ctx, cfg.Issuers)
		if err != nil {
			appLogger.Critical("Failed to expand issuers: %v", err)
		}
		cfg.Issuers = issuers
	}
	if len(cfg.Issuers) == 0 {
		appLogger.Critical("No issuers configured")
	}

	// 3. Connectors
	var networkManager interfaces.INetworkManager = network.NewNetworkManager(cfg.MConfig, appLogger)
	connectors, err := ingestion.NewConnectors(cfg.MConfig, networkManager)
	if err != nil {
		appLogger.Critical("Failed to build connectors: %v", err)
	}
	if len(connectors) == 0 {
		appLogger.Warning("No data sources enabled, scoring will rely on existing data")
	}
	sources := datasource.NewMultiSourceManager(connectors, appLogger)
	market := utils.NewMarketScheduler(cfg.Symbols(), appLogger)

	orchestrator := ingestion.NewOrchestrator(cfg.MConfig, db, sources, market, logger.NewLogger(cfg, "Ingestion"))
	if err := orchestrator.SeedIssuers(ctx); err != nil {
		appLogger.Error("Failed to seed issuers: %v", err)
	}

	// 4. Scoring stack
	aggregator := features.NewAggregator(cfg.MConfig, db, logger.NewLogger(cfg, "Features"))
	engine := scoring.NewEngine(cfg.MConfig, db, aggregator.Default, logger.NewLogger(cfg, "ScoringEngine"))
	if err := engine.LoadLatest(); err != nil {
		appLogger.Warning("No persisted model loaded: %v", err)
	}
	explainer := explain.NewExplainer(cfg.MConfig, logger.NewLogger(cfg, "Explainer"))

	// 5. Optional cache
	var scoreCache interfaces.IScoreCache
	if cfg.Cache.Enabled {
		rc, err := cache.NewRedisCache(cfg.MConfig, logger.NewLogger(cfg, "Cache"))
		if err != nil {
			appLogger.Warning("Redis cache disabled: %v", err)
		} else {
			defer rc.Close()
			scoreCache = rc
		}
	}

	// 6. Read surface and push server
	queries := query.NewService(cfg.MConfig, db, aggregator, scoreCache, logger.NewLogger(cfg, "Query"))
	var srv interfaces.IDataExchanger = server.NewAPIServer(cfg.MConfig, queries, logger.NewLogger(cfg, "APIServer"))

	monitor := alerting.NewMonitor(cfg.MConfig, db, srv, logger.NewLogger(cfg, "AlertMonitor"))
	scorer := pipeline.NewPipeline(cfg.MConfig, db, aggregator, engine, explainer, monitor, logger.NewLogger(cfg, "ScoringPipeline"))
	scorer.Cache = scoreCache

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
			cancel()
		}
	}()

	// 7. Initial pass
	if *scoreOnStart {
		appLogger.Info("Running initial ingestion...")
		for _, res := range orchestrator.RunAll(ctx) {
			appLogger.Info("  %s: committed=%d rejected=%d skipped=%v", res.Source, res.Committed, res.Rejected, res.Skipped)
		}
		if _, err := scorer.RunScoring(ctx, time.Now().Unix()); err != nil {
			appLogger.Error("Initial scoring failed: %v", err)
		}
	}

	// 8. Schedules
	if err := orchestrator.Start(ctx); err != nil {
		appLogger.Critical("Failed to schedule ingestion: %v", err)
	}
	if err := scorer.Start(ctx); err != nil {
		appLogger.Critical("Failed to schedule scoring: %v", err)
	}
	appLogger.Info("%s running with %d issuers and %d sources", cfg.Name, len(cfg.Issuers), len(connectors))

	// 9. Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down...")
	cancel()
	orchestrator.Stop()
	scorer.Stop()
	if err := srv.Stop(); err != nil {
		appLogger.Error("Server shutdown: %v", err)
	}
}
