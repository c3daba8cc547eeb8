package ingestion

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"credit-observer/src/config"
	datasource "credit-observer/src/data_source"
	"credit-observer/src/helpers"
	"credit-observer/src/models"
	"credit-observer/src/network"
	"credit-observer/src/storage"
	"credit-observer/src/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name   string
	market bool

	mu      sync.Mutex
	calls   int
	errs    []error
	batches []models.MRecordBatch
	block   bool
}

func (f *fakeSource) Name() string                   { return f.name }
func (f *fakeSource) RequiresOpenMarket() bool       { return f.market }
func (f *fakeSource) UpdateSymbols(s []string) error { return nil }
func (f *fakeSource) Symbols() []string              { return nil }

func (f *fakeSource) Fetch(ctx context.Context) (models.MRecordBatch, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return models.MRecordBatch{}, ctx.Err()
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return models.MRecordBatch{}, f.errs[i]
	}
	if len(f.batches) == 0 {
		return models.MRecordBatch{}, nil
	}
	if i >= len(f.batches) {
		i = len(f.batches) - 1
	}
	return f.batches[i], nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig(t *testing.T) *models.MConfig {
	return &models.MConfig{
		Storage: models.MStorageConfig{DBPath: filepath.Join(t.TempDir(), "ingest.db"), RetentionDays: 30},
		Ingestion: models.MIngestionConfig{
			MaxAttempts:      1,
			BaseDelayMillis:  1,
			MaxDelayMillis:   5,
			DegradeThreshold: 3,
			FailThreshold:    10,
		},
	}
}

func newOrchestrator(t *testing.T, cfg *models.MConfig, sources ...*fakeSource) (*Orchestrator, *storage.SQLiteDB) {
	t.Helper()
	db, err := storage.NewSQLiteDB(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })

	mgr := datasource.NewMultiSourceManager(nil, nil)
	for _, s := range sources {
		require.NoError(t, mgr.AddSource(s))
	}
	return NewOrchestrator(cfg, db, mgr, nil, nil), db
}

func bar(ts int64, close float64) models.MMarketObservation {
	return models.MMarketObservation{Symbol: "AAPL", Timestamp: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 1000, Source: "yahoo"}
}

// -----------------------------------------------------------------------------

func TestRunCycleValidatesAndDedupes(t *testing.T) {
	src := &fakeSource{name: "market", batches: []models.MRecordBatch{{
		Market: []models.MMarketObservation{
			bar(1000, 227),
			bar(1000, 228), // supersedes the first
			bar(1300, 229),
			{Symbol: "AAPL", Timestamp: 1600, Open: 1, High: 1, Low: 1, Close: -1, Volume: 1},
			{Symbol: "aa pl", Timestamp: 1600, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		},
		Metrics: []models.MFinancialMetric{
			{Symbol: "AAPL", Timestamp: 1000, MetricName: "pe_ratio", Value: 30, Source: "yahoo"},
			{Symbol: "AAPL", Timestamp: 1000, MetricName: "roe", Value: math.NaN(), Source: "yahoo"},
		},
	}}}
	o, db := newOrchestrator(t, testConfig(t), src)

	res, err := o.RunCycle(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Committed)
	assert.Equal(t, 4, res.Rejected)
	assert.Equal(t, 1, res.Attempts)

	rows, err := db.GetMarketObservations(context.Background(), "AAPL", 0, 2000)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 228.0, rows[0].Close)
	assert.Equal(t, 229.0, rows[1].Close)
}

func TestMalformedConnectorRecordsAreCountedAsRejected(t *testing.T) {
	src := &fakeSource{name: "news", batches: []models.MRecordBatch{{
		Market: []models.MMarketObservation{
			bar(1000, 227),
			{Symbol: "AAPL", Timestamp: 1300, Open: 0, High: 229, Low: 227, Close: 228, Volume: 900},
		},
		News: []models.MNewsEvent{
			{Symbol: "AAPL", Timestamp: 1000, Headline: "Apple beats estimates", Source: "Reuters", Sentiment: 60, Impact: 50, EventType: models.EventFinancial},
			{Symbol: "AAPL", Timestamp: 1000, Headline: "", Source: "Reuters", Sentiment: 50, Impact: 50, EventType: models.EventGeneral},
			{Symbol: "AAPL", Timestamp: 0, Headline: "Bad date", Source: "Reuters", Sentiment: 50, Impact: 50, EventType: models.EventGeneral},
		},
	}}}
	o, _ := newOrchestrator(t, testConfig(t), src)

	res, err := o.RunCycle(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Committed)
	assert.Equal(t, 3, res.Rejected)
}

func TestReingestionUpdatesInPlace(t *testing.T) {
	src := &fakeSource{name: "market", batches: []models.MRecordBatch{
		{Market: []models.MMarketObservation{bar(1000, 227)}},
		{Market: []models.MMarketObservation{bar(1000, 230)}},
	}}
	o, db := newOrchestrator(t, testConfig(t), src)
	ctx := context.Background()

	_, err := o.RunCycle(ctx, src)
	require.NoError(t, err)
	_, err = o.RunCycle(ctx, src)
	require.NoError(t, err)

	rows, err := db.GetMarketObservations(ctx, "AAPL", 0, 2000)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 230.0, rows[0].Close)
}

func TestSourceHealthTransitions(t *testing.T) {
	down := helpers.NewSourceUnavailableError("news", 503, nil)
	src := &fakeSource{name: "news", errs: []error{down, down, down, nil}}
	o, db := newOrchestrator(t, testConfig(t), src)
	ctx := context.Background()
	o.Now = func() time.Time { return time.Unix(5000, 0) }

	for i := 0; i < 3; i++ {
		_, err := o.RunCycle(ctx, src)
		require.Error(t, err)
	}
	st, err := db.GetSourceStatus(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, models.SourceDegraded, st.Status)
	assert.Equal(t, 3, st.ErrorCount)
	assert.NotEmpty(t, st.LastError)

	_, err = o.RunCycle(ctx, src)
	require.NoError(t, err)
	st, err = db.GetSourceStatus(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, models.SourceActive, st.Status)
	assert.Equal(t, 0, st.ErrorCount)
	assert.Equal(t, int64(5000), st.LastUpdate)
	assert.Empty(t, st.LastError)
}

func TestExhaustedRetriesDegradeSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingestion.MaxAttempts = 3
	limited := helpers.NewRateLimitedError("av", time.Millisecond)
	src := &fakeSource{name: "av", errs: []error{limited, limited, limited}}
	o, db := newOrchestrator(t, cfg, src)
	ctx := context.Background()

	res, err := o.RunCycle(ctx, src)
	require.Error(t, err)
	assert.Equal(t, 3, res.Attempts)

	st, err := db.GetSourceStatus(ctx, "av")
	require.NoError(t, err)
	assert.Equal(t, models.SourceDegraded, st.Status)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestPermanentFailureBelowThresholdStaysActive(t *testing.T) {
	src := &fakeSource{name: "edgar", errs: []error{errors.New("bad payload")}}
	o, db := newOrchestrator(t, testConfig(t), src)
	ctx := context.Background()

	o.RunCycle(ctx, src)
	st, err := db.GetSourceStatus(ctx, "edgar")
	require.NoError(t, err)
	assert.Equal(t, models.SourceActive, st.Status)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestSourceFailsAfterThreshold(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingestion.DegradeThreshold = 1
	cfg.Ingestion.FailThreshold = 2
	down := errors.New("bad payload")
	src := &fakeSource{name: "edgar", errs: []error{down, down}}
	o, db := newOrchestrator(t, cfg, src)
	ctx := context.Background()

	o.RunCycle(ctx, src)
	st, _ := db.GetSourceStatus(ctx, "edgar")
	assert.Equal(t, models.SourceDegraded, st.Status)
	o.RunCycle(ctx, src)
	st, _ = db.GetSourceStatus(ctx, "edgar")
	assert.Equal(t, models.SourceFailed, st.Status)
}

func TestRetryOnRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingestion.MaxAttempts = 3
	src := &fakeSource{
		name:    "av",
		errs:    []error{helpers.NewRateLimitedError("av", time.Millisecond)},
		batches: []models.MRecordBatch{{}, {Market: []models.MMarketObservation{bar(1000, 227)}}},
	}
	o, _ := newOrchestrator(t, cfg, src)

	res, err := o.RunCycle(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, res.Committed)
}

func TestNonRetryableErrorIsNotRetried(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingestion.MaxAttempts = 5
	src := &fakeSource{name: "av", errs: []error{helpers.NewConfigurationError("no api key", nil)}}
	o, _ := newOrchestrator(t, cfg, src)

	res, err := o.RunCycle(context.Background(), src)
	require.Error(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, src.Calls())
}

func TestCycleTimeoutIsRecorded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingestion.CycleTimeout = 1
	src := &fakeSource{name: "slow", block: true}
	o, db := newOrchestrator(t, cfg, src)

	_, err := o.RunCycle(context.Background(), src)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	st, err := db.GetSourceStatus(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestMarketSourceSkippedWhileClosed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingestion.RespectMarketHours = true
	market := &fakeSource{name: "market", market: true}
	news := &fakeSource{name: "news"}
	o, _ := newOrchestrator(t, cfg, market, news)

	o.Market = utils.NewMarketScheduler([]string{"AAPL"}, nil)
	o.Market.Now = func() time.Time { return time.Date(2025, 3, 9, 16, 0, 0, 0, time.UTC) } // Sunday

	results := o.RunAll(context.Background())
	require.Len(t, results, 2)
	assert.True(t, results[0].Skipped)
	assert.False(t, results[1].Skipped)
	assert.Equal(t, 0, market.Calls())
	assert.Equal(t, 1, news.Calls())
}

func TestRunAllIsolatesFailingSource(t *testing.T) {
	broken := &fakeSource{name: "edgar", errs: []error{errors.New("bad payload")}}
	healthy := &fakeSource{name: "market", batches: []models.MRecordBatch{{Market: []models.MMarketObservation{bar(1000, 227)}}}}
	o, db := newOrchestrator(t, testConfig(t), broken, healthy)

	results := o.RunAll(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "edgar", results[0].Source)
	assert.Zero(t, results[0].Committed)
	assert.Equal(t, "market", results[1].Source)
	assert.Equal(t, 1, results[1].Committed)
	assert.Equal(t, 1, broken.Calls())
	assert.Equal(t, 1, healthy.Calls())

	st, err := db.GetSourceStatus(context.Background(), "edgar")
	require.NoError(t, err)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestSeedIssuersAndCleanup(t *testing.T) {
	cfg := testConfig(t)
	cfg.Issuers = []models.MIssuerConfig{{Symbol: "aapl", Name: "Apple Inc."}, {Symbol: "MSFT"}}
	src := &fakeSource{name: "market", batches: []models.MRecordBatch{{
		Market: []models.MMarketObservation{bar(1000, 227), bar(40*86400, 229)},
	}}}
	o, db := newOrchestrator(t, cfg, src)
	ctx := context.Background()

	require.NoError(t, o.SeedIssuers(ctx))
	issuers, err := db.ListIssuers(ctx)
	require.NoError(t, err)
	require.Len(t, issuers, 2)
	assert.Equal(t, "AAPL", issuers[0].Symbol)
	assert.Equal(t, "Apple Inc.", issuers[0].Name)

	_, err = o.RunCycle(ctx, src)
	require.NoError(t, err)
	o.Now = func() time.Time { return time.Unix(45*86400, 0) }
	o.Cleanup(ctx)

	rows, err := db.GetMarketObservations(ctx, "AAPL", 0, 50*86400)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 229.0, rows[0].Close)
}

func TestOnCommitHook(t *testing.T) {
	src := &fakeSource{name: "market", batches: []models.MRecordBatch{{Market: []models.MMarketObservation{bar(1000, 227)}}}}
	o, _ := newOrchestrator(t, testConfig(t), src)
	var got []models.MCycleResult
	o.OnCommit = func(res models.MCycleResult) { got = append(got, res) }

	_, err := o.RunCycle(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "market", got[0].Source)
}

func TestNewConnectors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Issuers = []models.MIssuerConfig{{Symbol: "AAPL"}, {Symbol: "MSFT"}}
	cfg.Ingestion.Sources = []models.MSourceConfig{
		{Name: "yahoo", Type: config.SourceYahooChart, Enabled: true, RequestsPerSecond: 2, Burst: 2},
		{Name: "fund", Type: config.SourceYahooFundamentals, Enabled: true, Symbols: []string{"AAPL"}},
		{Name: "edgar", Type: config.SourceSECEdgar, Enabled: false},
	}
	net := network.NewNetworkManager(cfg, nil)

	sources, err := NewConnectors(cfg, net)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "yahoo", sources[0].Name())
	assert.Equal(t, []string{"AAPL", "MSFT"}, sources[0].Symbols())
	assert.Equal(t, []string{"AAPL"}, sources[1].Symbols())

	_, err = NewConnector(cfg, models.MSourceConfig{Name: "x", Type: "ftp"}, net)
	assert.Error(t, err)
}

func TestScheduleDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ingestion.Sources = []models.MSourceConfig{
		{Name: "news", Type: config.SourceNewsAPI},
		{Name: "edgar", Type: config.SourceSECEdgar, Schedule: "@every 2h"},
	}
	o, _ := newOrchestrator(t, cfg)
	assert.Equal(t, "@every 10m", o.scheduleFor("news"))
	assert.Equal(t, "@every 2h", o.scheduleFor("edgar"))
	assert.Equal(t, "@every 15m", o.scheduleFor("unknown"))
}
