package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"credit-observer/src/alerting"
	"credit-observer/src/config"
	datasource "credit-observer/src/data_source"
	"credit-observer/src/explain"
	"credit-observer/src/features"
	"credit-observer/src/ingestion"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/pipeline"
	"credit-observer/src/scoring"
)

// seed populates the database with synthetic issuers, bars, fundamentals and
// news, then runs one scoring pass and prints the result.
func main() {
	// 1. Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	days := flag.Int("days", 90, "days of daily bars per issuer")
	seed := flag.Int64("seed", 7, "random seed for the synthetic data")
	retrain := flag.Bool("retrain", true, "train a model on the seeded data before scoring")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if len(conf.Issuers) == 0 {
		conf.Issuers = sampleIssuers
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf, "Seed")
	ctx := context.Background()

	// 4. Setup Components
	db, err := setupDatabase(conf.MConfig, appLogger)
	if err != nil {
		os.Exit(1)
	}
	defer db.Close()

	now := time.Now()
	src := &sampleSource{issuers: conf.Issuers, days: *days, asOf: now, seed: *seed}
	manager := datasource.NewMultiSourceManager([]interfaces.IDataSource{src}, appLogger)
	orchestrator := ingestion.NewOrchestrator(conf.MConfig, db, manager, nil, logger.NewLogger(conf, "Ingestion"))

	// 5. Ingest through the regular validation and commit path
	res, err := orchestrator.RunCycle(ctx, src)
	if err != nil {
		appLogger.Error("Seeding failed: %v", err)
		os.Exit(1)
	}
	appLogger.Info("Seeded %d records (%d rejected)", res.Committed, res.Rejected)

	// 6. Scoring
	aggregator := features.NewAggregator(conf.MConfig, db, logger.NewLogger(conf, "Features"))
	engine := scoring.NewEngine(conf.MConfig, db, aggregator.Default, logger.NewLogger(conf, "ScoringEngine"))
	if err := engine.LoadLatest(); err != nil {
		appLogger.Warning("No persisted model loaded: %v", err)
	}
	explainer := explain.NewExplainer(conf.MConfig, logger.NewLogger(conf, "Explainer"))
	monitor := alerting.NewMonitor(conf.MConfig, db, nil, logger.NewLogger(conf, "AlertMonitor"))
	scorer := pipeline.NewPipeline(conf.MConfig, db, aggregator, engine, explainer, monitor, logger.NewLogger(conf, "ScoringPipeline"))

	asOf := now.Unix()
	if *retrain {
		if version, err := scorer.Retrain(ctx, asOf); err != nil {
			appLogger.Warning("Retrain skipped: %v", err)
		} else {
			appLogger.Info("Model %s trained", version)
		}
	}

	sum, err := scorer.RunScoring(ctx, asOf)
	if err != nil {
		appLogger.Error("Scoring failed: %v", err)
		os.Exit(1)
	}

	// 7. Report
	fmt.Printf("\n%-8s %7s %6s  %s\n", "ISSUER", "SCORE", "CONF", "MODEL")
	for _, is := range conf.Issuers {
		sc, err := db.GetLatestScore(ctx, is.Symbol)
		if err != nil {
			fmt.Printf("%-8s %7s\n", is.Symbol, "-")
			continue
		}
		fmt.Printf("%-8s %7.1f %6.2f  %s\n", sc.Symbol, sc.Score, sc.Confidence, sc.ModelVersion)
		if ex, err := db.GetExplanation(ctx, is.Symbol, sc.Timestamp); err == nil {
			fmt.Printf("         %s\n", ex.Summary)
		}
	}
	fmt.Printf("\n%d scored, %d failed, %d alerts in %v\n", sum.Scored, sum.Failed, sum.Alerts, sum.Duration)
}
