package pipeline

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"credit-observer/src/alerting"
	"credit-observer/src/explain"
	"credit-observer/src/features"
	"credit-observer/src/helpers"
	"credit-observer/src/models"
	"credit-observer/src/scoring"
	"credit-observer/src/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const asOf = int64(1_700_000_000)

// failingStore breaks metric reads for one symbol.
type failingStore struct {
	*storage.SQLiteDB
	bad string
}

func (f failingStore) GetLatestMetrics(ctx context.Context, symbol string, ts int64) ([]models.MFinancialMetric, error) {
	if symbol == f.bad {
		return nil, errors.New("disk on fire")
	}
	return f.SQLiteDB.GetLatestMetrics(ctx, symbol, ts)
}

type memCache struct {
	mu     sync.Mutex
	scores map[string]models.MCreditScore
}

func (m *memCache) GetLatestScore(ctx context.Context, symbol string) (models.MCreditScore, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scores[symbol]
	return s, ok, nil
}

func (m *memCache) SetLatestScore(ctx context.Context, s models.MCreditScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[s.Symbol] = s
	return nil
}

type env struct {
	db       *storage.SQLiteDB
	pipeline *Pipeline
	cache    *memCache
}

func newEnv(t *testing.T, bad string) *env {
	t.Helper()
	cfg := &models.MConfig{
		Storage: models.MStorageConfig{DBPath: filepath.Join(t.TempDir(), "pipeline.db")},
		Scoring: models.MScoringConfig{
			Trees: 5, MaxDepth: 3, MinLeaf: 1, Seed: 3, Parallelism: 2,
			ModelDir: filepath.Join(t.TempDir(), "models"), MinTrainingSamples: 3,
		},
	}
	db, err := storage.NewSQLiteDB(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })

	var fs Store = db
	if bad != "" {
		fs = failingStore{SQLiteDB: db, bad: bad}
	}
	agg := features.NewAggregator(cfg, fs, nil)
	engine := scoring.NewEngine(cfg, db, agg.Default, nil)
	p := NewPipeline(cfg, fs, agg, engine, explain.NewExplainer(cfg, nil), alerting.NewMonitor(cfg, db, nil, nil), nil)
	c := &memCache{scores: map[string]models.MCreditScore{}}
	p.Cache = c
	return &env{db: db, pipeline: p, cache: c}
}

func (e *env) issuers(t *testing.T, symbols ...string) {
	var is []models.MIssuer
	for _, s := range symbols {
		is = append(is, models.MIssuer{Symbol: s, Name: s + " Corp"})
	}
	_, err := e.db.UpsertIssuers(context.Background(), is)
	require.NoError(t, err)
}

func (e *env) fundamentals(t *testing.T, symbol string) {
	values := map[string]float64{
		"debt_to_equity": 0.3, "current_ratio": 2.1, "pe_ratio": 18, "roe": 0.25,
		"revenue_growth": 0.08, "beta": 1.1, "dividend_yield": 0.01,
		"total_revenue": 1000, "net_income": 150, "gross_profit": 400, "market_cap": 3e12,
	}
	var ms []models.MFinancialMetric
	for name, v := range values {
		ms = append(ms, models.MFinancialMetric{Symbol: symbol, Timestamp: asOf - 3600, MetricName: name, Value: v, Source: "test"})
	}
	_, err := e.db.UpsertFinancialMetrics(context.Background(), ms)
	require.NoError(t, err)
}

// -----------------------------------------------------------------------------

func TestScoreIssuerCommitsExplainedScore(t *testing.T) {
	e := newEnv(t, "")
	e.issuers(t, "AAPL")
	e.fundamentals(t, "AAPL")
	_, err := e.db.UpsertNewsEvents(context.Background(), []models.MNewsEvent{{
		Symbol: "AAPL", Timestamp: asOf - 600, Headline: "Apple beats estimates", Source: "test",
		Sentiment: 80, Impact: 70, EventType: models.EventFinancial,
	}})
	require.NoError(t, err)

	out, err := e.pipeline.ScoreIssuer(context.Background(), "AAPL", asOf)
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	assert.False(t, out.Duplicate)
	assert.Nil(t, out.Alert)

	stored, err := e.db.GetLatestScore(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, out.Record.Score, stored)
	assert.Equal(t, scoring.HeuristicVersion, stored.ModelVersion)

	attrs, err := e.db.GetAttributions(context.Background(), "AAPL", asOf)
	require.NoError(t, err)
	require.Len(t, attrs, len(features.FeatureNames))
	ex, err := e.db.GetExplanation(context.Background(), "AAPL", asOf)
	require.NoError(t, err)
	assert.Contains(t, ex.Summary, "Apple beats estimates")

	total := ex.Baseline
	for _, a := range attrs {
		assert.Equal(t, stored.ModelVersion, a.ModelVersion)
		total += a.AttributionValue
	}
	assert.LessOrEqual(t, math.Abs(total-stored.Score), 1e-3*stored.Score)

	cached, ok, _ := e.cache.GetLatestScore(context.Background(), "AAPL")
	require.True(t, ok)
	assert.Equal(t, stored, cached)
}

func TestRescoringSameTimestampIsIdempotent(t *testing.T) {
	e := newEnv(t, "")
	e.issuers(t, "AAPL")
	ctx := context.Background()

	first, err := e.pipeline.ScoreIssuer(ctx, "AAPL", asOf)
	require.NoError(t, err)
	again, err := e.pipeline.ScoreIssuer(ctx, "AAPL", asOf)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Record.Score, again.Record.Score)

	history, err := e.db.GetScoreHistory(ctx, "AAPL", 0, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestBackfilledScoreDoesNotReplaceCachedLatest(t *testing.T) {
	e := newEnv(t, "")
	e.issuers(t, "AAPL")
	ctx := context.Background()

	current, err := e.pipeline.ScoreIssuer(ctx, "AAPL", asOf)
	require.NoError(t, err)
	older, err := e.pipeline.ScoreIssuer(ctx, "AAPL", asOf-86400)
	require.NoError(t, err)
	assert.False(t, older.Duplicate)

	cached, ok, _ := e.cache.GetLatestScore(ctx, "AAPL")
	require.True(t, ok)
	assert.Equal(t, current.Record.Score, cached)
	assert.Equal(t, asOf, cached.Timestamp)

	history, err := e.db.GetScoreHistory(ctx, "AAPL", 0, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestScoreMoveRaisesAlert(t *testing.T) {
	e := newEnv(t, "")
	e.issuers(t, "AAPL")
	ctx := context.Background()

	prev := models.MScoreRecord{
		Score:       models.MCreditScore{Symbol: "AAPL", Timestamp: asOf - 600, Score: 700, Confidence: 0.5, ModelVersion: "old"},
		Explanation: models.MExplanation{Symbol: "AAPL", Timestamp: asOf - 600, ModelVersion: "old", Baseline: 700},
	}
	require.NoError(t, e.db.SaveScoreRecord(ctx, prev))

	// no data: the heuristic lands on its baseline of 630
	out, err := e.pipeline.ScoreIssuer(ctx, "AAPL", asOf)
	require.NoError(t, err)
	assert.InDelta(t, 630.0, out.Record.Score.Score, 1e-9)
	require.NotNil(t, out.Alert)
	assert.Equal(t, models.SeverityHigh, out.Alert.Severity)
	assert.InDelta(t, -70.0, out.Alert.ScoreChange, 1e-9)

	again, err := e.pipeline.ScoreIssuer(ctx, "AAPL", asOf)
	require.NoError(t, err)
	require.NotNil(t, again.Alert)
	assert.Equal(t, out.Alert.ID, again.Alert.ID)

	alerts, err := e.db.GetAlerts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestMissingMetricsLowerConfidence(t *testing.T) {
	e := newEnv(t, "")
	e.issuers(t, "FULL", "BARE")
	e.fundamentals(t, "FULL")
	ctx := context.Background()

	full, err := e.pipeline.ScoreIssuer(ctx, "FULL", asOf)
	require.NoError(t, err)
	bare, err := e.pipeline.ScoreIssuer(ctx, "BARE", asOf)
	require.NoError(t, err)
	assert.Less(t, bare.Record.Score.Confidence, full.Record.Score.Confidence)
}

func TestRunScoringContainsFailures(t *testing.T) {
	e := newEnv(t, "BAD")
	e.issuers(t, "AAPL", "BAD", "MSFT", "NVDA")

	sum, err := e.pipeline.RunScoring(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Scored)
	assert.Equal(t, 1, sum.Failed)

	_, err = e.db.GetLatestScore(context.Background(), "BAD")
	assert.ErrorIs(t, err, helpers.ErrNotFound)
	_, err = e.db.GetLatestScore(context.Background(), "NVDA")
	assert.NoError(t, err)
}

func TestRetrainSwapsModel(t *testing.T) {
	e := newEnv(t, "")
	ctx := context.Background()

	_, err := e.pipeline.Retrain(ctx, asOf)
	var ve *helpers.ValidationError
	require.ErrorAs(t, err, &ve)

	e.issuers(t, "AAPL", "MSFT", "NVDA")
	e.fundamentals(t, "AAPL")
	version, err := e.pipeline.Retrain(ctx, asOf)
	require.NoError(t, err)
	require.NotNil(t, e.pipeline.Engine.Current())

	out, err := e.pipeline.ScoreIssuer(ctx, "MSFT", asOf+60)
	require.NoError(t, err)
	assert.False(t, out.Fallback)
	assert.Equal(t, version, out.Record.Score.ModelVersion)

	perf, err := e.db.GetModelPerformance(ctx, 5)
	require.NoError(t, err)
	require.Len(t, perf, 1)
	assert.Equal(t, version, perf[0].ModelVersion)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := newKeyedMutex()
	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("AAPL")
			n := active.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
	assert.Empty(t, k.locks)

	// distinct keys do not block each other
	a := k.Lock("A")
	b := k.Lock("B")
	a()
	b()
}
