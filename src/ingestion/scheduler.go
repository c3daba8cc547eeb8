package ingestion

import (
	"context"
	"fmt"
	"time"

	"credit-observer/src/config"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/metrics"
	"credit-observer/src/models"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Default cadences per source type.
var defaultSchedules = map[string]string{
	config.SourceYahooChart:        "@every 5m",
	config.SourceYahooFundamentals: "@every 15m",
	config.SourceAlphaVantage:      "@every 15m",
	config.SourceNewsAPI:           "@every 10m",
	config.SourceSECEdgar:          "@every 1h",
}

func (o *Orchestrator) scheduleFor(name string) string {
	for _, src := range o.Config.Ingestion.Sources {
		if src.Name != name {
			continue
		}
		if src.Schedule != "" {
			return src.Schedule
		}
		if s, ok := defaultSchedules[src.Type]; ok {
			return s
		}
	}
	return "@every 15m"
}

// -----------------------------------------------------------------------------

// Start registers one job per source plus the retention cleanup and starts
// the scheduler. Jobs of the same source never overlap; different sources
// run concurrently. ctx bounds every job started by the scheduler.
func (o *Orchestrator) Start(ctx context.Context) error {
	cl := logger.CronLogger{L: o.Logger}
	o.cron = cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	for _, src := range o.Sources.GetAllSources() {
		src := src
		spec := o.scheduleFor(src.Name())
		if _, err := o.cron.AddFunc(spec, func() { o.runScheduled(ctx, src) }); err != nil {
			return fmt.Errorf("schedule %s (%s): %w", src.Name(), spec, err)
		}
		o.Logger.Info("Scheduled %s %s", src.Name(), spec)
	}

	if spec := o.Config.Ingestion.CleanupSchedule; spec != "" && o.Config.Storage.RetentionDays > 0 {
		if _, err := o.cron.AddFunc(spec, func() { o.Cleanup(ctx) }); err != nil {
			return fmt.Errorf("schedule cleanup (%s): %w", spec, err)
		}
	}

	o.cron.Start()
	return nil
}

// Stop halts scheduling and waits for running cycles to return.
func (o *Orchestrator) Stop() {
	if o.cron == nil {
		return
	}
	<-o.cron.Stop().Done()
}

// RunAll runs one cycle of every source concurrently and waits for them.
// A failing source does not cancel the others; its result carries the error.
func (o *Orchestrator) RunAll(ctx context.Context) []models.MCycleResult {
	sources := o.Sources.GetAllSources()
	results := make([]models.MCycleResult, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = o.runScheduled(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runScheduled skips market-hours sources while every tracked exchange is
// closed and otherwise runs a cycle.
func (o *Orchestrator) runScheduled(ctx context.Context, src interfaces.IDataSource) models.MCycleResult {
	if ctx.Err() != nil {
		return models.MCycleResult{Source: src.Name(), Skipped: true}
	}
	if o.Config.Ingestion.RespectMarketHours && src.RequiresOpenMarket() && o.Market != nil && !o.Market.AnyMarketOpen() {
		o.Logger.Debug("Markets closed, skipping %s", src.Name())
		metrics.IngestCycles.WithLabelValues(src.Name(), "skipped").Inc()
		return models.MCycleResult{Source: src.Name(), Skipped: true}
	}
	res, _ := o.RunCycle(ctx, src)
	return res
}

// Cleanup removes market observations older than the retention window.
func (o *Orchestrator) Cleanup(ctx context.Context) {
	days := o.Config.Storage.RetentionDays
	if days <= 0 {
		return
	}
	cutoff := o.Now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
	n, err := o.Store.CleanupOldData(ctx, cutoff)
	if err != nil {
		o.ErrorHandler.Handle(err, "retention cleanup")
		return
	}
	if n > 0 {
		o.Logger.Info("Removed %d market observations older than %d days", n, days)
	}
}
