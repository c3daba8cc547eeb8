package newsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"credit-observer/src/models"
	"credit-observer/src/network"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchScoresAndClassifiesArticles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/everything", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, `"Apple Inc." OR "AAPL"`, r.URL.Query().Get("q"))
		w.Write([]byte(`{"status":"ok","articles":[
			{"title":"Apple beats earnings estimates with record growth","description":"Strong quarter","publishedAt":"2024-05-02T20:30:00Z","source":{"name":"Reuters"}},
			{"title":"Regulators open lawsuit investigation into Apple","publishedAt":"2024-05-03T10:00:00Z","source":{"name":""}},
			{"title":"","publishedAt":"2024-05-03T10:00:00Z"},
			{"title":"Bad date","publishedAt":"yesterday"}]}`))
	}))
	defer srv.Close()

	cfg := &models.MConfig{Issuers: []models.MIssuerConfig{{Symbol: "AAPL", Name: "Apple Inc."}}}
	net := network.NewNetworkManager(&models.MConfig{Network: models.MNetworkConfig{RequestTimeout: 5}}, nil)
	src := NewNewsAPISource(cfg, models.MSourceConfig{Name: "news", BaseURL: srv.URL, APIKey: "secret", Symbols: []string{"AAPL"}}, net)

	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.News, 4)

	good := batch.News[0]
	assert.Equal(t, "Reuters", good.Source)
	assert.Equal(t, models.EventFinancial, good.EventType)
	assert.Greater(t, good.Sentiment, 50.0)
	assert.Greater(t, good.Impact, models.NeutralImpact)

	bad := batch.News[1]
	assert.Equal(t, "news", bad.Source)
	assert.Equal(t, models.EventLegal, bad.EventType)
	assert.Less(t, bad.Sentiment, 50.0)

	// malformed articles reach validation instead of vanishing here
	untitled := batch.News[2]
	assert.Empty(t, untitled.Headline)
	assert.Positive(t, untitled.Timestamp)
	undated := batch.News[3]
	assert.Equal(t, "Bad date", undated.Headline)
	assert.Zero(t, undated.Timestamp)
}

func TestErrorStatusFailsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"bad key"}`))
	}))
	defer srv.Close()

	net := network.NewNetworkManager(&models.MConfig{}, nil)
	src := NewNewsAPISource(&models.MConfig{}, models.MSourceConfig{Name: "news", BaseURL: srv.URL, APIKey: "x", Symbols: []string{"AAPL"}}, net)
	_, err := src.Fetch(context.Background())
	assert.Error(t, err)
}
