package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	datasource "credit-observer/src/data_source"
	"credit-observer/src/helpers"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/models"
)

const DefaultBaseURL = "https://www.alphavantage.co/query"

// OVERVIEW field -> stored metric name
var overviewMetrics = []struct{ field, metric string }{
	{"RevenueTTM", "total_revenue"},
	{"GrossProfitTTM", "gross_profit"},
	{"EBITDA", "ebitda"},
	{"NetIncomeTTM", "net_income"},
	{"TotalDebt", "total_debt"},
	{"TotalAssets", "total_assets"},
	{"BookValue", "book_value"},
	{"DividendYield", "dividend_yield"},
	{"Beta", "beta"},
	{"MarketCapitalization", "market_cap"},
}

// AlphaVantageSource maps the company OVERVIEW function to financial metrics.
type AlphaVantageSource struct {
	Config       *models.MConfig
	SourceConfig models.MSourceConfig
	symbols      *datasource.SymbolList
	Network      interfaces.INetworkManager
	Logger       *logger.Logger
	Now          func() time.Time
}

func NewAlphaVantageSource(cfg *models.MConfig, sourceCfg models.MSourceConfig, netMgr interfaces.INetworkManager) *AlphaVantageSource {
	if sourceCfg.BaseURL == "" {
		sourceCfg.BaseURL = DefaultBaseURL
	}
	return &AlphaVantageSource{
		Config:       cfg,
		SourceConfig: sourceCfg,
		symbols:      datasource.NewSymbolList(sourceCfg.Symbols),
		Network:      netMgr,
		Logger:       logger.NewLogger(cfg, "AlphaVantageSource-"+sourceCfg.Name),
		Now:          time.Now,
	}
}

func (s *AlphaVantageSource) Name() string             { return s.SourceConfig.Name }
func (s *AlphaVantageSource) RequiresOpenMarket() bool { return false }
func (s *AlphaVantageSource) Symbols() []string        { return s.symbols.Load() }

func (s *AlphaVantageSource) UpdateSymbols(symbols []string) error {
	s.symbols.Store(symbols)
	return nil
}

// -----------------------------------------------------------------------------

func (s *AlphaVantageSource) Fetch(ctx context.Context) (models.MRecordBatch, error) {
	batch := models.MRecordBatch{Source: s.Name()}
	if s.SourceConfig.APIKey == "" {
		return batch, helpers.NewConfigurationError(fmt.Sprintf("source %s has no api key", s.Name()), nil)
	}
	ts := s.Now().UTC().Unix()

	metrics, err := datasource.FetchSymbols(ctx, s.Symbols(), datasource.DefaultConcurrency,
		datasource.SymbolRetryPolicy(s.Config, s.Logger), s.Logger,
		func(ctx context.Context, symbol string) ([]models.MFinancialMetric, error) {
			body, err := s.Network.Get(ctx, s.Name(), s.SourceConfig.BaseURL, map[string]string{
				"function": "OVERVIEW",
				"symbol":   symbol,
				"apikey":   s.SourceConfig.APIKey,
			}, nil)
			if err != nil {
				return nil, fmt.Errorf("overview request for %s: %w", symbol, err)
			}
			return s.parseOverview(symbol, ts, body)
		})
	batch.Metrics = metrics
	return batch, err
}

// -----------------------------------------------------------------------------

func (s *AlphaVantageSource) parseOverview(symbol string, ts int64, body []byte) ([]models.MFinancialMetric, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}

	// the free tier answers throttled calls with 200 and a Note
	if note, ok := data["Note"].(string); ok {
		s.Logger.Warning("Throttled on %s: %s", symbol, note)
		return nil, helpers.NewRateLimitedError(s.Name(), time.Minute)
	}
	if info, ok := data["Information"].(string); ok && data["Symbol"] == nil {
		s.Logger.Warning("Throttled on %s: %s", symbol, info)
		return nil, helpers.NewRateLimitedError(s.Name(), time.Minute)
	}
	if _, ok := data["Symbol"]; !ok {
		return nil, fmt.Errorf("no overview data returned for %s", symbol)
	}

	var out []models.MFinancialMetric
	for _, m := range overviewMetrics {
		raw, ok := data[m.field].(string)
		if !ok || raw == "" || strings.EqualFold(raw, "None") || raw == "-" {
			continue
		}
		// unparseable values go out as NaN and are rejected by validation
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			v = math.NaN()
		}
		out = append(out, models.MFinancialMetric{
			Symbol:     symbol,
			Timestamp:  ts,
			MetricName: m.metric,
			Value:      v,
			Source:     s.Name(),
		})
	}
	return out, nil
}
