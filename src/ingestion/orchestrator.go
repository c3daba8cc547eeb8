package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	datasource "credit-observer/src/data_source"
	"credit-observer/src/helpers"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/metrics"
	"credit-observer/src/models"
	"credit-observer/src/utils"

	"github.com/robfig/cron/v3"
)

// Store is the part of the database ingestion writes to.
type Store interface {
	interfaces.IRecordWriter
	interfaces.ISourceStatusStore
	CleanupOldData(ctx context.Context, cutoff int64) (int64, error)
}

// Orchestrator pulls from every configured connector on its own cadence and
// commits what it gets.
type Orchestrator struct {
	Config       *models.MConfig
	Store        Store
	Sources      *datasource.MultiSourceManager
	Market       *utils.MarketScheduler
	Logger       *logger.Logger
	ErrorHandler *helpers.ErrorHandler
	Now          func() time.Time

	// OnCommit, when set, runs after every successful cycle.
	OnCommit func(res models.MCycleResult)

	normalizer *normalizer
	policy     helpers.RetryPolicy
	cron       *cron.Cron
}

func NewOrchestrator(cfg *models.MConfig, store Store, sources *datasource.MultiSourceManager, market *utils.MarketScheduler, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewLogger(cfg, "Ingestion")
	}
	o := &Orchestrator{
		Config:       cfg,
		Store:        store,
		Sources:      sources,
		Market:       market,
		Logger:       log,
		ErrorHandler: helpers.NewErrorHandler(log),
		Now:          time.Now,
	}
	o.normalizer = &normalizer{
		validate: NewValidator(),
		onReject: func(kind string, err error) {
			o.Logger.Debug("Rejected %s record: %v", kind, err)
		},
	}

	o.policy = helpers.NewRetryPolicy(cfg.Ingestion, log)
	if o.policy.MaxAttempts <= 0 {
		o.policy.MaxAttempts = 4
	}
	if o.policy.BaseDelay <= 0 {
		o.policy.BaseDelay = 500 * time.Millisecond
	}
	return o
}

func (o *Orchestrator) degradeThreshold() int {
	if t := o.Config.Ingestion.DegradeThreshold; t > 0 {
		return t
	}
	return 3
}

func (o *Orchestrator) failThreshold() int {
	if t := o.Config.Ingestion.FailThreshold; t > 0 {
		return t
	}
	return 10
}

// -----------------------------------------------------------------------------
// Cycle
// -----------------------------------------------------------------------------

// RunCycle fetches one batch from src, validates, deduplicates and commits it,
// then updates the source's health row. Commits made before a failure or a
// deadline stand; every commit is an idempotent upsert.
func (o *Orchestrator) RunCycle(ctx context.Context, src interfaces.IDataSource) (models.MCycleResult, error) {
	name := src.Name()
	res := models.MCycleResult{Source: name}
	start := time.Now()
	defer func() {
		metrics.IngestCycleDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	if t := o.Config.Ingestion.CycleTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t)*time.Second)
		defer cancel()
	}

	// partial keeps the symbols that failed inside a batch that is otherwise
	// committed
	var batch models.MRecordBatch
	var partial error
	attempts, err := helpers.RetryWithBackoff(ctx, "fetch "+name, o.policy, func(ctx context.Context) error {
		b, err := src.Fetch(ctx)
		var pf *helpers.PartialFetchError
		if err != nil && !errors.As(err, &pf) {
			return err
		}
		batch, partial = b, err
		return nil
	})
	res.Attempts = attempts
	if err != nil {
		return res, o.fail(ctx, res, err)
	}
	if batch.Source == "" {
		batch.Source = name
	}

	clean, rejected := o.normalizer.Normalize(batch)
	res.Rejected = rejected

	committed, err := o.commit(ctx, clean)
	res.Committed = committed
	if err != nil {
		return res, o.fail(ctx, res, err)
	}
	if partial != nil {
		return res, o.fail(ctx, res, partial)
	}

	o.succeed(ctx, res)
	return res, nil
}

// commit writes each record kind in its own transaction, issuers first so
// that dependent rows have a parent.
func (o *Orchestrator) commit(ctx context.Context, b models.MRecordBatch) (int, error) {
	total := 0
	steps := []struct {
		kind string
		n    int
		fn   func() (int, error)
	}{
		{"issuers", len(b.Issuers), func() (int, error) { return o.Store.UpsertIssuers(ctx, b.Issuers) }},
		{"market", len(b.Market), func() (int, error) { return o.Store.UpsertMarketObservations(ctx, b.Market) }},
		{"metrics", len(b.Metrics), func() (int, error) { return o.Store.UpsertFinancialMetrics(ctx, b.Metrics) }},
		{"news", len(b.News), func() (int, error) { return o.Store.UpsertNewsEvents(ctx, b.News) }},
	}
	for _, s := range steps {
		if s.n == 0 {
			continue
		}
		n, err := s.fn()
		if err != nil {
			return total, fmt.Errorf("commit %s: %w", s.kind, err)
		}
		total += n
	}
	return total, nil
}

// -----------------------------------------------------------------------------
// Source health
// -----------------------------------------------------------------------------

func (o *Orchestrator) status(ctx context.Context, name string) models.MSourceStatus {
	st, err := o.Store.GetSourceStatus(ctx, name)
	if err != nil {
		if !errors.Is(err, helpers.ErrNotFound) {
			o.Logger.Warning("Cannot read status of %s: %v", name, err)
		}
		return models.MSourceStatus{SourceName: name, Status: models.SourceActive}
	}
	return st
}

// health updates use a fresh context so an expired cycle still records its
// outcome.
func (o *Orchestrator) healthContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

func (o *Orchestrator) succeed(ctx context.Context, res models.MCycleResult) {
	hctx, cancel := o.healthContext(ctx)
	defer cancel()

	st := o.status(hctx, res.Source)
	st.LastUpdate = o.Now().Unix()
	st.ErrorCount = 0
	st.Status = models.SourceActive
	st.LastError = ""
	if err := o.Store.SaveSourceStatus(hctx, st); err != nil {
		o.ErrorHandler.Handle(err, "save status of "+res.Source)
	}

	metrics.IngestCycles.WithLabelValues(res.Source, "ok").Inc()
	metrics.IngestRecords.WithLabelValues(res.Source, "committed").Add(float64(res.Committed))
	metrics.IngestRecords.WithLabelValues(res.Source, "rejected").Add(float64(res.Rejected))
	metrics.SourceErrorCount.WithLabelValues(res.Source).Set(0)
	o.Logger.Info("Cycle %s: %d committed, %d rejected, %d attempt(s)", res.Source, res.Committed, res.Rejected, res.Attempts)

	if o.OnCommit != nil {
		o.OnCommit(res)
	}
}

func (o *Orchestrator) fail(ctx context.Context, res models.MCycleResult, cause error) error {
	hctx, cancel := o.healthContext(ctx)
	defer cancel()

	st := o.status(hctx, res.Source)
	st.ErrorCount++
	st.LastError = cause.Error()
	switch {
	case st.ErrorCount >= o.failThreshold():
		st.Status = models.SourceFailed
	case st.ErrorCount >= o.degradeThreshold():
		st.Status = models.SourceDegraded
	case helpers.IsTransient(cause):
		// rate limited or unavailable through the whole retry budget
		st.Status = models.SourceDegraded
	default:
		st.Status = models.SourceActive
	}
	if err := o.Store.SaveSourceStatus(hctx, st); err != nil {
		o.ErrorHandler.Handle(err, "save status of "+res.Source)
	}

	metrics.IngestCycles.WithLabelValues(res.Source, "failed").Inc()
	if res.Committed > 0 {
		metrics.IngestRecords.WithLabelValues(res.Source, "committed").Add(float64(res.Committed))
	}
	if res.Rejected > 0 {
		metrics.IngestRecords.WithLabelValues(res.Source, "rejected").Add(float64(res.Rejected))
	}
	metrics.SourceErrorCount.WithLabelValues(res.Source).Set(float64(st.ErrorCount))
	o.ErrorHandler.Handle(cause, "ingestion cycle "+res.Source)
	if st.Status != models.SourceActive {
		o.Logger.Warning("Source %s is %s after %d consecutive failure(s)", res.Source, st.Status, st.ErrorCount)
	}
	return cause
}

// -----------------------------------------------------------------------------
// Issuers
// -----------------------------------------------------------------------------

// SeedIssuers upserts the configured issuers so every tracked symbol has a
// row before the first fundamentals cycle.
func (o *Orchestrator) SeedIssuers(ctx context.Context) error {
	if len(o.Config.Issuers) == 0 {
		return nil
	}
	now := o.Now().Unix()
	issuers := make([]models.MIssuer, 0, len(o.Config.Issuers))
	for _, is := range o.Config.Issuers {
		issuers = append(issuers, models.MIssuer{
			Symbol:    is.Symbol,
			Name:      is.Name,
			Sector:    is.Sector,
			Industry:  is.Industry,
			CIK:       is.CIK,
			UpdatedAt: now,
		})
	}
	clean, rejected := o.normalizer.Normalize(models.MRecordBatch{Issuers: issuers})
	if rejected > 0 {
		o.Logger.Warning("%d configured issuers rejected", rejected)
	}
	_, err := o.Store.UpsertIssuers(ctx, clean.Issuers)
	return err
}
