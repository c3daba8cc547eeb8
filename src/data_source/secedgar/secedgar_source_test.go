package secedgar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"credit-observer/src/models"
	"credit-observer/src/network"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMapsFilingsToRegulatoryEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submissions/CIK0000320193.json", r.URL.Path)
		assert.Contains(t, r.Header.Get("User-Agent"), "@")
		w.Write([]byte(`{"cik":"320193","name":"Apple Inc.","filings":{"recent":{
			"form":["8-K","4","10-K","10-Q","S-8"],
			"filingDate":["2024-05-02","2024-05-01","2023-11-03","2023-08-04","2023-07-01"]}}}`))
	}))
	defer srv.Close()

	net := network.NewNetworkManager(&models.MConfig{}, nil)
	src := NewSECEdgarSource(&models.MConfig{}, models.MSourceConfig{Name: "sec", BaseURL: srv.URL, Symbols: []string{"AAPL", "ZZZZ"}}, net)

	batch, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.News, 3)

	assert.Equal(t, "8-K filing submitted", batch.News[0].Headline)
	assert.Equal(t, 40.0, batch.News[0].Impact)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC).Unix(), batch.News[0].Timestamp)
	assert.Equal(t, 60.0, batch.News[1].Impact)
	for _, ev := range batch.News {
		assert.Equal(t, models.EventRegulatory, ev.EventType)
		assert.Equal(t, models.NeutralSentiment, ev.Sentiment)
		assert.Equal(t, "SEC EDGAR", ev.Source)
	}
}

func TestConfiguredCIKOverridesFallback(t *testing.T) {
	cfg := &models.MConfig{Issuers: []models.MIssuerConfig{{Symbol: "acme", CIK: 42}}}
	src := NewSECEdgarSource(cfg, models.MSourceConfig{Name: "sec"}, network.NewNetworkManager(cfg, nil))
	assert.Equal(t, 42, src.ciks["ACME"])
	assert.Equal(t, 320193, src.ciks["AAPL"])
}
