package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"credit-observer/src/alerting"
	"credit-observer/src/models"
	"credit-observer/src/query"
	"credit-observer/src/storage"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*APIServer, *httptest.Server) {
	t.Helper()
	cfg := &models.MConfig{
		Host:    "127.0.0.1",
		Storage: models.MStorageConfig{DBPath: filepath.Join(t.TempDir(), "api.db")},
	}
	db, err := storage.NewSQLiteDB(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	_, err = db.UpsertIssuers(ctx, []models.MIssuer{{Symbol: "AAPL", Name: "Apple"}})
	require.NoError(t, err)
	require.NoError(t, db.SaveScoreRecord(ctx, models.MScoreRecord{
		Score: models.MCreditScore{Symbol: "AAPL", Timestamp: 2000, Score: 655, Confidence: 0.4, ModelVersion: "heuristic-v1"},
		Attributions: []models.MFeatureAttribution{
			{Symbol: "AAPL", Timestamp: 2000, FeatureName: "roe", AttributionValue: 25, ImportanceValue: 25, Rank: 1, ModelVersion: "heuristic-v1"},
		},
		Explanation: models.MExplanation{Symbol: "AAPL", Timestamp: 2000, ModelVersion: "heuristic-v1", Baseline: 630, Summary: "Score 655"},
	}))
	_, _, err = db.InsertAlert(ctx, models.MAlert{ID: "a1", Symbol: "AAPL", Timestamp: 2000, PreviousScore: 700, NewScore: 655, ScoreChange: -45, Severity: models.SeverityHigh})
	require.NoError(t, err)

	s := NewAPIServer(cfg, query.NewService(cfg, db, nil, nil, nil), nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return s, ts
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// -----------------------------------------------------------------------------

func TestReadRoutes(t *testing.T) {
	_, ts := newTestServer(t)

	var issuers []models.MIssuer
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/issuers", &issuers))
	assert.Len(t, issuers, 1)

	var score models.MCreditScore
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/issuers/aapl/score", &score))
	assert.Equal(t, 655.0, score.Score)

	var history []models.MCreditScore
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/issuers/AAPL/scores", &history))
	assert.Len(t, history, 1)

	var ex models.MScoreExplanation
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/issuers/AAPL/explanation?ts=2000", &ex))
	assert.Equal(t, 630.0, ex.Baseline)
	require.Len(t, ex.Attributions, 1)
	assert.NotNil(t, ex.RecentEvents)

	var alerts []models.MAlert
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/alerts?since=1000", &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityHigh, alerts[0].Severity)

	var sources []models.MSourceStatus
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/sources", &sources))
	assert.Empty(t, sources)

	var health map[string]interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/health", &health))
	assert.Equal(t, "ok", health["status"])

	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/metrics", nil))
}

func TestReadRouteErrors(t *testing.T) {
	_, ts := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/issuers/ZZZZ/score", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/issuers/AAPL/explanation?ts=1234", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/issuers/AAPL/scores?days=abc", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/issuers/AAPL/scores?days=-1", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/alerts?since=-5", nil))
}

func TestWebSocketAlertPush(t *testing.T) {
	s, ts := newTestServer(t)
	s.StartHub()

	alert := func(symbol string, at int64) alerting.AlertMessage {
		return alerting.AlertMessage{Type: "ALERT", Alert: models.MAlert{ID: symbol, Symbol: symbol, Timestamp: at, Severity: models.SeverityHigh}}
	}

	s.Broadcast(alert("AAPL", 1))
	require.Eventually(t, func() bool { return s.recent.Size() == 1 }, time.Second, 5*time.Millisecond)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var initial Snapshot
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, "INITIAL", initial.Type)
	assert.Len(t, initial.Messages, 1)

	require.NoError(t, conn.WriteJSON(models.MSubscribeCommand{Command: "subscribe", Symbols: []string{"msft"}}))
	var filtered Snapshot
	require.NoError(t, conn.ReadJSON(&filtered))
	assert.Empty(t, filtered.Messages)

	s.Broadcast(alert("AAPL", 2))
	s.Broadcast(alert("MSFT", 3))

	var pushed alerting.AlertMessage
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, "ALERT", pushed.Type)
	assert.Equal(t, "MSFT", pushed.Alert.Symbol)

	s.stateMutex.RLock()
	assert.Equal(t, 1, s.connections)
	s.stateMutex.RUnlock()
}
