package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"credit-observer/src/helpers"
	"credit-observer/src/models"
	"credit-observer/src/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvents struct {
	events []models.MNewsEvent
	asOf   int64
}

func (s *stubEvents) RecentEvents(ctx context.Context, symbol string, asOf int64) ([]models.MNewsEvent, error) {
	s.asOf = asOf
	return s.events, nil
}

type stubCache struct {
	hit   *models.MCreditScore
	fills int
}

func (c *stubCache) GetLatestScore(ctx context.Context, symbol string) (models.MCreditScore, bool, error) {
	if c.hit != nil && c.hit.Symbol == symbol {
		return *c.hit, true, nil
	}
	return models.MCreditScore{}, false, nil
}

func (c *stubCache) SetLatestScore(ctx context.Context, s models.MCreditScore) error {
	c.fills++
	return nil
}

func newStore(t *testing.T) *storage.SQLiteDB {
	t.Helper()
	cfg := &models.MConfig{Storage: models.MStorageConfig{DBPath: filepath.Join(t.TempDir(), "query.db")}}
	db, err := storage.NewSQLiteDB(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	_, err = db.UpsertIssuers(ctx, []models.MIssuer{{Symbol: "AAPL", Name: "Apple"}, {Symbol: "MSFT", Name: "Microsoft"}})
	require.NoError(t, err)

	for i, score := range []float64{700, 690, 640} {
		ts := int64(1000 * (i + 1))
		require.NoError(t, db.SaveScoreRecord(ctx, models.MScoreRecord{
			Score: models.MCreditScore{Symbol: "AAPL", Timestamp: ts, Score: score, Confidence: 0.6, ModelVersion: "heuristic-v1"},
			Attributions: []models.MFeatureAttribution{
				{Symbol: "AAPL", Timestamp: ts, FeatureName: "roe", AttributionValue: 20, ImportanceValue: 20, Rank: 2, ModelVersion: "heuristic-v1"},
				{Symbol: "AAPL", Timestamp: ts, FeatureName: "debt_to_equity", AttributionValue: score - 650, ImportanceValue: 40, Rank: 1, ModelVersion: "heuristic-v1"},
			},
			Explanation: models.MExplanation{Symbol: "AAPL", Timestamp: ts, ModelVersion: "heuristic-v1", Baseline: 630, Summary: "summary"},
		}))
	}
	return db
}

func newService(t *testing.T) (*Service, *stubEvents) {
	ev := &stubEvents{events: []models.MNewsEvent{{Symbol: "AAPL", Timestamp: 2900, Headline: "Apple faces lawsuit"}}}
	s := NewService(nil, newStore(t), ev, nil, nil)
	s.Now = func() time.Time { return time.Unix(3500, 0) }
	return s, ev
}

// -----------------------------------------------------------------------------

func TestLatestScore(t *testing.T) {
	s, _ := newService(t)
	sc, err := s.GetLatestScore(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), sc.Timestamp)
	assert.Equal(t, 640.0, sc.Score)
}

func TestUnknownIssuerIsNotFound(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.GetLatestScore(ctx, "ZZZZ")
	assert.True(t, IsNotFound(err))
	_, err = s.GetScoreHistory(ctx, "ZZZZ", 0)
	assert.ErrorIs(t, err, helpers.ErrNotFound)
	_, err = s.GetExplanation(ctx, "ZZZZ", nil)
	assert.ErrorIs(t, err, helpers.ErrNotFound)

	// tracked but never scored
	_, err = s.GetLatestScore(ctx, "MSFT")
	assert.ErrorIs(t, err, helpers.ErrNotFound)
	_, err = s.GetScoreHistory(ctx, "MSFT", 0)
	assert.ErrorIs(t, err, helpers.ErrNotFound)
}

func TestScoreHistoryWindow(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	all, err := s.GetScoreHistory(ctx, "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{3000, 2000, 1000}, []int64{all[0].Timestamp, all[1].Timestamp, all[2].Timestamp})

	recent, err := s.GetScoreHistory(ctx, "AAPL", 1600*time.Second)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3000), recent[0].Timestamp)

	// scored, but not within the last 100s
	none, err := s.GetScoreHistory(ctx, "AAPL", 100*time.Second)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = s.GetScoreHistory(ctx, "MSFT", 100*time.Second)
	assert.ErrorIs(t, err, helpers.ErrNotFound)
}

func TestExplanation(t *testing.T) {
	s, ev := newService(t)
	ctx := context.Background()

	latest, err := s.GetExplanation(ctx, "AAPL", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), latest.Timestamp)
	assert.Equal(t, 640.0, latest.Score)
	assert.Equal(t, 630.0, latest.Baseline)
	assert.Equal(t, "heuristic-v1", latest.ModelVersion)
	require.Len(t, latest.Attributions, 2)
	assert.Equal(t, "debt_to_equity", latest.Attributions[0].FeatureName)
	require.Len(t, latest.RecentEvents, 1)
	assert.Equal(t, int64(3000), ev.asOf)

	ts := int64(1000)
	old, err := s.GetExplanation(ctx, "AAPL", &ts)
	require.NoError(t, err)
	assert.Equal(t, 700.0, old.Score)
	assert.Equal(t, int64(1000), ev.asOf)

	missing := int64(1500)
	_, err = s.GetExplanation(ctx, "AAPL", &missing)
	assert.ErrorIs(t, err, helpers.ErrNotFound)
}

func TestLatestScoreUsesCache(t *testing.T) {
	s, _ := newService(t)
	cache := &stubCache{}
	s.Cache = cache
	ctx := context.Background()

	_, err := s.GetLatestScore(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.fills)

	cache.hit = &models.MCreditScore{Symbol: "AAPL", Timestamp: 9999, Score: 800}
	sc, err := s.GetLatestScore(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(9999), sc.Timestamp)
	assert.Equal(t, 1, cache.fills)
}

func TestEmptyListsAreNotNil(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	alerts, err := s.GetAlerts(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)

	st, err := s.GetSourceStatus(ctx)
	require.NoError(t, err)
	assert.NotNil(t, st)

	issuers, err := s.ListIssuers(ctx)
	require.NoError(t, err)
	assert.Len(t, issuers, 2)
}
