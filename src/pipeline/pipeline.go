package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"credit-observer/src/alerting"
	"credit-observer/src/explain"
	"credit-observer/src/features"
	"credit-observer/src/helpers"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/metrics"
	"credit-observer/src/models"
	"credit-observer/src/scoring"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// past scores per issuer folded into each training set
const trainingHistoryLimit = 200

// Store is what scoring reads from and writes to.
type Store interface {
	interfaces.IFeatureStore
	interfaces.IScoreStore
}

// Outcome is the result of scoring one issuer.
type Outcome struct {
	Record    models.MScoreRecord
	Alert     *models.MAlert
	Fallback  bool
	Duplicate bool
}

// RunSummary reports one scoring pass over all issuers.
type RunSummary struct {
	AsOf     int64
	Scored   int
	Failed   int
	Alerts   int
	Duration time.Duration
}

// Pipeline runs features, scoring, explanation and alerting for each issuer.
type Pipeline struct {
	Config    *models.MConfig
	Store     Store
	Features  *features.Aggregator
	Engine    *scoring.Engine
	Explainer *explain.Explainer
	Alerts    *alerting.Monitor
	Cache     interfaces.IScoreCache
	Logger    *logger.Logger
	Now       func() time.Time

	locks *keyedMutex
	cron  *cron.Cron
}

func NewPipeline(cfg *models.MConfig, store Store, agg *features.Aggregator, engine *scoring.Engine,
	explainer *explain.Explainer, alerts *alerting.Monitor, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewLogger(cfg, "ScoringPipeline")
	}
	return &Pipeline{
		Config:    cfg,
		Store:     store,
		Features:  agg,
		Engine:    engine,
		Explainer: explainer,
		Alerts:    alerts,
		Logger:    log,
		Now:       time.Now,
		locks:     newKeyedMutex(),
	}
}

// -----------------------------------------------------------------------------
// Single issuer
// -----------------------------------------------------------------------------

// ScoreIssuer scores symbol as of asOf and commits the score with its
// attributions in one transaction. A score already stored for (symbol, asOf)
// is returned as is. Alerting is best effort and never fails the run.
func (p *Pipeline) ScoreIssuer(ctx context.Context, symbol string, asOf int64) (Outcome, error) {
	unlock := p.locks.Lock(symbol)
	defer unlock()

	fv, err := p.Features.BuildFeatures(ctx, symbol, asOf)
	if err != nil {
		return Outcome{}, fmt.Errorf("features for %s: %w", symbol, err)
	}

	res, err := p.Engine.Score(ctx, symbol, fv)
	if err != nil {
		return Outcome{}, fmt.Errorf("score %s: %w", symbol, err)
	}

	events, err := p.Features.RecentEvents(ctx, symbol, asOf)
	if err != nil {
		return Outcome{}, fmt.Errorf("events for %s: %w", symbol, err)
	}
	ex, err := p.Explainer.Explain(res.Model, fv, res.Score, events)
	if err != nil {
		return Outcome{}, fmt.Errorf("explain %s: %w", symbol, err)
	}

	rec := models.MScoreRecord{
		Score: models.MCreditScore{
			Symbol:       symbol,
			Timestamp:    asOf,
			Score:        res.Score,
			Confidence:   res.Confidence,
			ModelVersion: ex.ModelVersion,
		},
		Attributions: ex.Attributions,
		Explanation: models.MExplanation{
			Symbol:       symbol,
			Timestamp:    asOf,
			ModelVersion: ex.ModelVersion,
			Baseline:     ex.Baseline,
			Summary:      ex.Summary,
		},
	}
	out := Outcome{Record: rec, Fallback: res.Fallback}

	err = p.Store.SaveScoreRecord(ctx, rec)
	var dup *helpers.DuplicateKeyError
	switch {
	case errors.As(err, &dup):
		stored, gerr := p.Store.GetScoreAt(ctx, symbol, asOf)
		if gerr != nil {
			return Outcome{}, fmt.Errorf("load existing score %s@%d: %w", symbol, asOf, gerr)
		}
		p.Logger.Debug("Score for %s@%d already stored", symbol, asOf)
		out.Record.Score = stored
		out.Duplicate = true
	case err != nil:
		return Outcome{}, fmt.Errorf("save score %s: %w", symbol, err)
	default:
		p.publishLatest(ctx, rec.Score)
	}

	out.Alert = p.evaluateAlert(ctx, out.Record.Score)
	return out, nil
}

// publishLatest updates the gauge and the cache with sc unless a newer score
// is already stored, so a backfill never hides the current one.
func (p *Pipeline) publishLatest(ctx context.Context, sc models.MCreditScore) {
	latest, err := p.Store.GetLatestScore(ctx, sc.Symbol)
	if err != nil {
		p.Logger.Warning("Latest score lookup for %s failed: %v", sc.Symbol, err)
		return
	}
	if sc.Timestamp < latest.Timestamp {
		p.Logger.Debug("Score for %s@%d is older than %d, cache left as is", sc.Symbol, sc.Timestamp, latest.Timestamp)
		return
	}
	metrics.LatestScore.WithLabelValues(sc.Symbol).Set(sc.Score)
	if p.Cache != nil {
		if err := p.Cache.SetLatestScore(ctx, sc); err != nil {
			p.Logger.Warning("Cache update for %s failed: %v", sc.Symbol, err)
		}
	}
}

func (p *Pipeline) evaluateAlert(ctx context.Context, s models.MCreditScore) *models.MAlert {
	if p.Alerts == nil {
		return nil
	}
	prev, err := p.Store.GetPreviousScore(ctx, s.Symbol, s.Timestamp)
	if errors.Is(err, helpers.ErrNotFound) {
		return nil
	}
	if err != nil {
		p.Logger.Warning("Previous score for %s unavailable: %v", s.Symbol, err)
		return nil
	}
	a, err := p.Alerts.Evaluate(ctx, s.Symbol, prev.Score, s.Score, s.Confidence, s.Timestamp)
	if err != nil {
		p.Logger.Error("Alert evaluation for %s failed: %v", s.Symbol, err)
		return nil
	}
	return a
}

// -----------------------------------------------------------------------------
// All issuers
// -----------------------------------------------------------------------------

func (p *Pipeline) parallelism() int {
	if n := p.Config.Scoring.Parallelism; n > 0 {
		return n
	}
	return 4
}

// RunScoring scores every known issuer as of asOf. Failures are contained to
// the issuer; only a failure to list issuers fails the run.
func (p *Pipeline) RunScoring(ctx context.Context, asOf int64) (RunSummary, error) {
	start := time.Now()
	sum := RunSummary{AsOf: asOf}

	if t := p.Config.Scoring.RunTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t)*time.Second)
		defer cancel()
	}

	issuers, err := p.Store.ListIssuers(ctx)
	if err != nil {
		return sum, fmt.Errorf("list issuers: %w", err)
	}

	outcomes := make([]*Outcome, len(issuers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism())
	for i, is := range issuers {
		i, symbol := i, is.Symbol
		g.Go(func() error {
			out, err := p.ScoreIssuer(gctx, symbol, asOf)
			if err != nil {
				metrics.ScoringFailures.Inc()
				p.Logger.Error("Scoring %s failed: %v", symbol, err)
				return nil
			}
			outcomes[i] = &out
			return nil
		})
	}
	g.Wait()

	for _, o := range outcomes {
		if o == nil {
			sum.Failed++
			continue
		}
		sum.Scored++
		if o.Alert != nil && !o.Duplicate {
			sum.Alerts++
		}
	}
	sum.Duration = time.Since(start)
	metrics.ScoringRunDuration.Observe(sum.Duration.Seconds())
	p.Logger.Info("Scoring run at %d: %d scored, %d failed, %d alerts in %v",
		asOf, sum.Scored, sum.Failed, sum.Alerts, sum.Duration)
	return sum, nil
}

// Retrain builds a training set as of asOf and hands it to the engine. The
// serving model is untouched if anything fails.
func (p *Pipeline) Retrain(ctx context.Context, asOf int64) (string, error) {
	set, err := scoring.BuildTrainingSet(ctx, p.Store, p.Features, asOf, trainingHistoryLimit, p.Logger)
	if err != nil {
		return "", err
	}
	return p.Engine.Retrain(ctx, set)
}

// -----------------------------------------------------------------------------
// Schedules
// -----------------------------------------------------------------------------

// Start schedules the periodic scoring and retraining jobs.
func (p *Pipeline) Start(ctx context.Context) error {
	cl := logger.CronLogger{L: p.Logger}
	p.cron = cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	sc := p.Config.Scoring
	if sc.ScoreSchedule != "" {
		if _, err := p.cron.AddFunc(sc.ScoreSchedule, func() {
			if _, err := p.RunScoring(ctx, p.Now().Unix()); err != nil {
				p.Logger.Error("Scoring run failed: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule scoring (%s): %w", sc.ScoreSchedule, err)
		}
	}
	if sc.RetrainSchedule != "" {
		if _, err := p.cron.AddFunc(sc.RetrainSchedule, func() {
			if _, err := p.Retrain(ctx, p.Now().Unix()); err != nil {
				p.Logger.Warning("Retrain skipped: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule retrain (%s): %w", sc.RetrainSchedule, err)
		}
	}
	p.cron.Start()
	return nil
}

// Stop halts scheduling and waits for running jobs.
func (p *Pipeline) Stop() {
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
}
