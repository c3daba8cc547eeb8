package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"credit-observer/src/helpers"
	"credit-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	cfg := &models.MConfig{Storage: models.MStorageConfig{DBType: "sqlite", DBPath: filepath.Join(t.TempDir(), "test.db")}}
	db, err := NewSQLiteDB(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitializeIsRepeatable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, err := db.UpsertIssuers(ctx, []models.MIssuer{{Symbol: "AAPL", Name: "Apple"}})
	require.NoError(t, err)

	// re-running the schema must not drop history
	require.NoError(t, db.createTables(sqliteTypes))
	is, err := db.GetIssuer(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple", is.Name)
}

func TestMarketUpsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := models.MMarketObservation{Symbol: "AAPL", Timestamp: 1000, Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10}
	second := first
	second.Close = 1.8
	second.Volume = 20

	_, err := db.UpsertMarketObservations(ctx, []models.MMarketObservation{first})
	require.NoError(t, err)
	_, err = db.UpsertMarketObservations(ctx, []models.MMarketObservation{second})
	require.NoError(t, err)

	rows, err := db.GetMarketObservations(ctx, "AAPL", 0, 2000)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.8, rows[0].Close)
	assert.Equal(t, 20.0, rows[0].Volume)
}

func TestIssuerUpsertKeepsKnownFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.UpsertIssuers(ctx, []models.MIssuer{{Symbol: "MSFT", Name: "Microsoft", Sector: "Technology"}})
	require.NoError(t, err)
	_, err = db.UpsertIssuers(ctx, []models.MIssuer{{Symbol: "MSFT", MarketCap: 3e12, UpdatedAt: 5}})
	require.NoError(t, err)

	is, err := db.GetIssuer(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "Microsoft", is.Name)
	assert.Equal(t, "Technology", is.Sector)
	assert.Equal(t, 3e12, is.MarketCap)

	_, err = db.GetIssuer(ctx, "NOPE")
	assert.True(t, errors.Is(err, helpers.ErrNotFound))
}

func TestLatestMetricsPerName(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, err := db.UpsertFinancialMetrics(ctx, []models.MFinancialMetric{
		{Symbol: "AAPL", Timestamp: 100, MetricName: "pe_ratio", Value: 20, Source: "yahoo"},
		{Symbol: "AAPL", Timestamp: 200, MetricName: "pe_ratio", Value: 25, Source: "yahoo"},
		{Symbol: "AAPL", Timestamp: 300, MetricName: "pe_ratio", Value: 99, Source: "yahoo"},
		{Symbol: "AAPL", Timestamp: 150, MetricName: "current_ratio", Value: 1.1, Source: "yahoo"},
		{Symbol: "MSFT", Timestamp: 150, MetricName: "current_ratio", Value: 3, Source: "yahoo"},
	})
	require.NoError(t, err)

	got, err := db.GetLatestMetrics(ctx, "AAPL", 250)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "current_ratio", got[0].MetricName)
	assert.Equal(t, 1.1, got[0].Value)
	assert.Equal(t, "pe_ratio", got[1].MetricName)
	assert.Equal(t, 25.0, got[1].Value)
}

func TestNewsUpdateInPlace(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ev := models.MNewsEvent{Symbol: "AAPL", Timestamp: 10, Headline: "Apple beats", Source: "newsapi", Sentiment: 60, Impact: 30, EventType: models.EventFinancial}
	_, err := db.UpsertNewsEvents(ctx, []models.MNewsEvent{ev})
	require.NoError(t, err)
	ev.Sentiment = 80
	_, err = db.UpsertNewsEvents(ctx, []models.MNewsEvent{ev})
	require.NoError(t, err)

	got, err := db.GetNewsEvents(ctx, "AAPL", 0, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 80.0, got[0].Sentiment)
}

func TestScoreRecordIsImmutable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec := models.MScoreRecord{
		Score: models.MCreditScore{Symbol: "AAPL", Timestamp: 500, Score: 700, Confidence: 0.8, ModelVersion: "v1"},
		Attributions: []models.MFeatureAttribution{
			{Symbol: "AAPL", Timestamp: 500, FeatureName: "b", ImportanceValue: 2, AttributionValue: -2, ModelVersion: "v1", Rank: 2},
			{Symbol: "AAPL", Timestamp: 500, FeatureName: "a", ImportanceValue: 5, AttributionValue: 5, ModelVersion: "v1", Rank: 1},
		},
		Explanation: models.MExplanation{Symbol: "AAPL", Timestamp: 500, ModelVersion: "v1", Baseline: 697, Summary: "ok"},
	}
	require.NoError(t, db.SaveScoreRecord(ctx, rec))

	dup := rec
	dup.Score.Score = 400
	err := db.SaveScoreRecord(ctx, dup)
	var dk *helpers.DuplicateKeyError
	require.True(t, errors.As(err, &dk))

	sc, err := db.GetLatestScore(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 700.0, sc.Score)

	attrs, err := db.GetAttributions(ctx, "AAPL", 500)
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "a", attrs[0].FeatureName)

	ex, err := db.GetExplanation(ctx, "AAPL", 500)
	require.NoError(t, err)
	assert.Equal(t, 697.0, ex.Baseline)
}

func TestScoreHistoryAndPrevious(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for i, s := range []float64{600, 610, 620} {
		ts := int64(100 * (i + 1))
		require.NoError(t, db.SaveScoreRecord(ctx, models.MScoreRecord{
			Score:       models.MCreditScore{Symbol: "X", Timestamp: ts, Score: s, Confidence: 0.5, ModelVersion: "v"},
			Explanation: models.MExplanation{Symbol: "X", Timestamp: ts, ModelVersion: "v"},
		}))
	}

	hist, err := db.GetScoreHistory(ctx, "X", 150, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, int64(300), hist[0].Timestamp)

	prev, err := db.GetPreviousScore(ctx, "X", 300)
	require.NoError(t, err)
	assert.Equal(t, 610.0, prev.Score)

	_, err = db.GetPreviousScore(ctx, "X", 100)
	assert.True(t, errors.Is(err, helpers.ErrNotFound))
}

func TestInsertAlertIgnoresDuplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := models.MAlert{ID: "one", Symbol: "AAPL", Timestamp: 900, PreviousScore: 700, NewScore: 655, ScoreChange: -45,
		Confidence: 0.7, Severity: models.SeverityHigh, BandCrossed: true, CreatedAt: 900}

	stored, inserted, err := db.InsertAlert(ctx, a)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.True(t, stored.BandCrossed)

	b := a
	b.ID = "two"
	stored, inserted, err = db.InsertAlert(ctx, b)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "one", stored.ID)

	all, err := db.GetAlerts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSourceStatusAndCleanup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveSourceStatus(ctx, models.MSourceStatus{SourceName: "yahoo", Status: models.SourceDegraded, ErrorCount: 3}))
	require.NoError(t, db.SaveSourceStatus(ctx, models.MSourceStatus{SourceName: "yahoo", Status: models.SourceActive, LastUpdate: 10}))

	st, err := db.GetSourceStatus(ctx, "yahoo")
	require.NoError(t, err)
	assert.Equal(t, models.SourceActive, st.Status)
	assert.Equal(t, 0, st.ErrorCount)

	_, err = db.UpsertMarketObservations(ctx, []models.MMarketObservation{
		{Symbol: "A", Timestamp: 10, Open: 1, High: 1, Low: 1, Close: 1},
		{Symbol: "A", Timestamp: 20, Open: 1, High: 1, Low: 1, Close: 1},
	})
	require.NoError(t, err)
	n, err := db.CleanupOldData(ctx, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestModelPerformance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveModelPerformance(ctx, models.MModelPerformance{ModelVersion: "a", Timestamp: 1, MSE: 0.1}))
	require.NoError(t, db.SaveModelPerformance(ctx, models.MModelPerformance{ModelVersion: "b", Timestamp: 2, MSE: 0.05}))
	got, err := db.GetModelPerformance(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ModelVersion)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	s := &SQLStore{numbered: true, schema: "app"}
	assert.Equal(t, `DELETE FROM "app"."market_data" WHERE timestamp < $1`, s.q(`DELETE FROM {market_data} WHERE timestamp < ?`))
}
