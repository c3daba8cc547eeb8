package alerting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/metrics"
	"credit-observer/src/models"

	"github.com/google/uuid"
)

// Default thresholds in score points.
const (
	DefaultLowThreshold    = 10.0
	DefaultMediumThreshold = 20.0
	DefaultHighThreshold   = 40.0
)

// DefaultBands are the rating-band boundaries on the score scale.
var DefaultBands = []float64{580, 670, 740, 750, 800}

// AlertMessage is the payload pushed to live subscribers.
type AlertMessage struct {
	Type  string        `json:"type"`
	Alert models.MAlert `json:"alert"`
}

// -----------------------------------------------------------------------------

// Monitor turns consecutive scores into severity-tiered alerts.
type Monitor struct {
	Store     interfaces.IAlertStore
	Publisher interfaces.IBroadcaster
	Logger    *logger.Logger
	Now       func() time.Time

	low, medium, high float64
	bands             []float64
}

func NewMonitor(cfg *models.MConfig, store interfaces.IAlertStore, publisher interfaces.IBroadcaster, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewLogger(cfg, "AlertMonitor")
	}
	m := &Monitor{
		Store:     store,
		Publisher: publisher,
		Logger:    log,
		Now:       time.Now,
		low:       DefaultLowThreshold,
		medium:    DefaultMediumThreshold,
		high:      DefaultHighThreshold,
		bands:     DefaultBands,
	}
	if cfg != nil {
		a := cfg.Alerts
		if a.LowThreshold > 0 {
			m.low = a.LowThreshold
		}
		if a.MediumThreshold > 0 {
			m.medium = a.MediumThreshold
		}
		if a.HighThreshold > 0 {
			m.high = a.HighThreshold
		}
		if len(a.Bands) > 0 {
			m.bands = append([]float64(nil), a.Bands...)
			sort.Float64s(m.bands)
		}
	}
	return m
}

// -----------------------------------------------------------------------------

// band returns the index of the rating band containing score.
func (m *Monitor) band(score float64) int {
	return sort.Search(len(m.bands), func(i int) bool { return m.bands[i] > score })
}

// Classify returns the severity for a move from prev to next, or "" when the
// move does not warrant an alert. Moves below the low threshold never alert,
// even across a band boundary; above it, a crossing is always high.
func (m *Monitor) Classify(prev, next float64) (severity string, crossed bool) {
	delta := math.Abs(next - prev)
	crossed = m.band(prev) != m.band(next)

	switch {
	case delta < m.low:
		return "", crossed
	case crossed || delta > m.high:
		return models.SeverityHigh, crossed
	case delta >= m.medium:
		return models.SeverityMedium, false
	default:
		return models.SeverityLow, false
	}
}

// Evaluate compares two consecutive scores of issuer and stores an alert
// when warranted. Re-evaluating the same (issuer, ts) returns the alert
// stored the first time and does not publish again.
func (m *Monitor) Evaluate(ctx context.Context, issuer string, prevScore, newScore, newConfidence float64, ts int64) (*models.MAlert, error) {
	severity, crossed := m.Classify(prevScore, newScore)
	if severity == "" {
		return nil, nil
	}

	a := models.MAlert{
		ID:            uuid.NewString(),
		Symbol:        issuer,
		Timestamp:     ts,
		PreviousScore: prevScore,
		NewScore:      newScore,
		ScoreChange:   newScore - prevScore,
		Confidence:    newConfidence,
		Severity:      severity,
		BandCrossed:   crossed,
		CreatedAt:     m.Now().Unix(),
	}

	stored, inserted, err := m.Store.InsertAlert(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("store alert for %s@%d: %w", issuer, ts, err)
	}
	if !inserted {
		m.Logger.Debug("Alert for %s@%d already stored", issuer, ts)
		return &stored, nil
	}

	metrics.AlertsEmitted.WithLabelValues(stored.Severity).Inc()
	m.Logger.Info("%s alert for %s: %.1f -> %.1f (%+.1f, band crossed: %v)",
		stored.Severity, issuer, prevScore, newScore, stored.ScoreChange, crossed)

	if m.Publisher != nil {
		m.Publisher.Broadcast(AlertMessage{Type: "ALERT", Alert: stored})
	}
	return &stored, nil
}
