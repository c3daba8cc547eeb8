package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"credit-observer/src/helpers"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/models"
)

// Store is the read side of the database.
type Store interface {
	interfaces.IFeatureStore
	interfaces.IScoreStore
	interfaces.IAlertStore
	interfaces.ISourceStatusStore
	interfaces.IModelStore
}

// EventSource supplies the news window shown next to an explanation.
type EventSource interface {
	RecentEvents(ctx context.Context, symbol string, asOf int64) ([]models.MNewsEvent, error)
}

// Service answers read queries. It never writes scoring data; the only side
// effect is filling the cache on a miss.
type Service struct {
	Store  Store
	Events EventSource
	Cache  interfaces.IScoreCache
	Logger *logger.Logger
	Now    func() time.Time
}

func NewService(cfg *models.MConfig, store Store, events EventSource, cache interfaces.IScoreCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewLogger(cfg, "Query")
	}
	return &Service{
		Store:  store,
		Events: events,
		Cache:  cache,
		Logger: log,
		Now:    time.Now,
	}
}

// issuer fails with ErrNotFound for an untracked symbol.
func (s *Service) issuer(ctx context.Context, symbol string) error {
	_, err := s.Store.GetIssuer(ctx, symbol)
	return err
}

// -----------------------------------------------------------------------------
// Scores
// -----------------------------------------------------------------------------

// GetLatestScore returns the most recent score for symbol.
func (s *Service) GetLatestScore(ctx context.Context, symbol string) (models.MCreditScore, error) {
	if s.Cache != nil {
		sc, ok, err := s.Cache.GetLatestScore(ctx, symbol)
		if err != nil {
			s.Logger.Warning("Cache read for %s failed: %v", symbol, err)
		} else if ok {
			return sc, nil
		}
	}

	if err := s.issuer(ctx, symbol); err != nil {
		return models.MCreditScore{}, err
	}
	sc, err := s.Store.GetLatestScore(ctx, symbol)
	if err != nil {
		return sc, err
	}
	if s.Cache != nil {
		if err := s.Cache.SetLatestScore(ctx, sc); err != nil {
			s.Logger.Debug("Cache fill for %s failed: %v", symbol, err)
		}
	}
	return sc, nil
}

// GetScoreHistory returns the scores of symbol within window of now, most
// recent first. A zero window returns the full history.
func (s *Service) GetScoreHistory(ctx context.Context, symbol string, window time.Duration) ([]models.MCreditScore, error) {
	if err := s.issuer(ctx, symbol); err != nil {
		return nil, err
	}
	var since int64
	if window > 0 {
		since = s.Now().Add(-window).Unix()
	}
	history, err := s.Store.GetScoreHistory(ctx, symbol, since, 0)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		return history, nil
	}
	// an issuer that was scored before the window has an empty history;
	// one that was never scored has none at all
	if since > 0 {
		if _, err := s.Store.GetLatestScore(ctx, symbol); err == nil {
			return []models.MCreditScore{}, nil
		} else if !errors.Is(err, helpers.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("scores for %s: %w", symbol, helpers.ErrNotFound)
}

// GetExplanation returns the score of symbol at ts, or the latest one when ts
// is nil, with its attributions in rank order and the events around it.
func (s *Service) GetExplanation(ctx context.Context, symbol string, ts *int64) (models.MScoreExplanation, error) {
	if err := s.issuer(ctx, symbol); err != nil {
		return models.MScoreExplanation{}, err
	}

	var (
		sc  models.MCreditScore
		err error
	)
	if ts == nil {
		sc, err = s.Store.GetLatestScore(ctx, symbol)
	} else {
		sc, err = s.Store.GetScoreAt(ctx, symbol, *ts)
	}
	if err != nil {
		return models.MScoreExplanation{}, err
	}

	ex, err := s.Store.GetExplanation(ctx, symbol, sc.Timestamp)
	if err != nil {
		return models.MScoreExplanation{}, err
	}
	attrs, err := s.Store.GetAttributions(ctx, symbol, sc.Timestamp)
	if err != nil {
		return models.MScoreExplanation{}, err
	}

	out := models.MScoreExplanation{
		Symbol:       symbol,
		Timestamp:    sc.Timestamp,
		Score:        sc.Score,
		Confidence:   sc.Confidence,
		ModelVersion: sc.ModelVersion,
		Baseline:     ex.Baseline,
		Attributions: attrs,
		Summary:      ex.Summary,
		RecentEvents: []models.MNewsEvent{},
	}
	if s.Events != nil {
		events, err := s.Events.RecentEvents(ctx, symbol, sc.Timestamp)
		if err != nil {
			s.Logger.Warning("Recent events for %s unavailable: %v", symbol, err)
		} else if len(events) > 0 {
			out.RecentEvents = events
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Alerts, sources, issuers
// -----------------------------------------------------------------------------

func (s *Service) GetAlerts(ctx context.Context, since int64) ([]models.MAlert, error) {
	alerts, err := s.Store.GetAlerts(ctx, since)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []models.MAlert{}
	}
	return alerts, nil
}

func (s *Service) GetSourceStatus(ctx context.Context) ([]models.MSourceStatus, error) {
	st, err := s.Store.ListSourceStatus(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = []models.MSourceStatus{}
	}
	return st, nil
}

func (s *Service) ListIssuers(ctx context.Context) ([]models.MIssuer, error) {
	is, err := s.Store.ListIssuers(ctx)
	if err != nil {
		return nil, err
	}
	if is == nil {
		is = []models.MIssuer{}
	}
	return is, nil
}

// GetModelPerformance returns the evaluation of the most recent retrains.
func (s *Service) GetModelPerformance(ctx context.Context, limit int) ([]models.MModelPerformance, error) {
	perf, err := s.Store.GetModelPerformance(ctx, limit)
	if err != nil {
		return nil, err
	}
	if perf == nil {
		perf = []models.MModelPerformance{}
	}
	return perf, nil
}

// IsNotFound reports whether err means the requested data does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, helpers.ErrNotFound)
}
