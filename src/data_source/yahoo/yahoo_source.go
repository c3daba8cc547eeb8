package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	datasource "credit-observer/src/data_source"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/models"
)

const DefaultBaseURL = "https://query1.finance.yahoo.com"

// YahooChartSource maps the v8 chart endpoint to market observations.
type YahooChartSource struct {
	Config       *models.MConfig
	SourceConfig models.MSourceConfig
	symbols      *datasource.SymbolList
	Network      interfaces.INetworkManager
	Logger       *logger.Logger
}

// -----------------------------------------------------------------------------

func NewYahooChartSource(cfg *models.MConfig, sourceCfg models.MSourceConfig, netMgr interfaces.INetworkManager) *YahooChartSource {
	if sourceCfg.BaseURL == "" {
		sourceCfg.BaseURL = DefaultBaseURL
	}
	if sourceCfg.Range == "" {
		sourceCfg.Range = "5d"
	}
	if sourceCfg.Interval == "" {
		sourceCfg.Interval = "1d"
	}
	return &YahooChartSource{
		Config:       cfg,
		SourceConfig: sourceCfg,
		symbols:      datasource.NewSymbolList(sourceCfg.Symbols),
		Network:      netMgr,
		Logger:       logger.NewLogger(cfg, "YahooChartSource-"+sourceCfg.Name),
	}
}

// -----------------------------------------------------------------------------

func (s *YahooChartSource) Name() string {
	return s.SourceConfig.Name
}

// RequiresOpenMarket is true: prices only move during the session.
func (s *YahooChartSource) RequiresOpenMarket() bool {
	return true
}

func (s *YahooChartSource) UpdateSymbols(symbols []string) error {
	s.symbols.Store(symbols)
	s.Logger.Info("Updated symbol list. New count: %d", len(s.symbols.Load()))
	return nil
}

func (s *YahooChartSource) Symbols() []string {
	return s.symbols.Load()
}

// -----------------------------------------------------------------------------

// Fetch pulls the configured range for every symbol.
func (s *YahooChartSource) Fetch(ctx context.Context) (models.MRecordBatch, error) {
	batch := models.MRecordBatch{Source: s.Name()}
	obs, err := datasource.FetchSymbols(ctx, s.Symbols(), datasource.DefaultConcurrency,
		datasource.SymbolRetryPolicy(s.Config, s.Logger), s.Logger, s.fetchSymbolData)
	batch.Market = obs
	s.Logger.Debug("Fetched %d observations for %d symbols", len(obs), len(s.Symbols()))
	return batch, err
}

// -----------------------------------------------------------------------------

func (s *YahooChartSource) fetchSymbolData(ctx context.Context, symbol string) ([]models.MMarketObservation, error) {
	params := map[string]string{
		"interval":       s.SourceConfig.Interval,
		"range":          s.SourceConfig.Range,
		"includePrePost": "false",
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s", strings.TrimRight(s.SourceConfig.BaseURL, "/"), symbol)

	respBytes, err := s.Network.Get(ctx, s.Name(), url, params, nil)
	if err != nil {
		return nil, fmt.Errorf("chart request for %s: %w", symbol, err)
	}

	return s.parseChartResponse(symbol, respBytes)
}

// -----------------------------------------------------------------------------

type YahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				ExchangeName       string  `json:"exchangeName"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Open   []*float64 `json:"open"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// -----------------------------------------------------------------------------

func (s *YahooChartSource) parseChartResponse(symbol string, data []byte) ([]models.MMarketObservation, error) {
	var resp YahooChartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}

	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s - %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}

	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("no result in response for %s", symbol)
	}

	result := resp.Chart.Result[0]
	if len(result.Timestamp) == 0 {
		return nil, fmt.Errorf("no timestamps in response for %s", symbol)
	}

	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no quote data in response for %s", symbol)
	}
	quote := result.Indicators.Quote[0]

	n := len(result.Timestamp)
	if len(quote.Close) != n || len(quote.Open) != n || len(quote.High) != n ||
		len(quote.Low) != n || len(quote.Volume) != n {
		return nil, fmt.Errorf("data alignment error for %s", symbol)
	}

	// An all-null point is an interval without trades and is dropped. A
	// partially null point is malformed: it goes out with zeros so that
	// validation rejects and counts it.
	out := make([]models.MMarketObservation, 0, n)
	for i := 0; i < n; i++ {
		fields := []*float64{quote.Open[i], quote.High[i], quote.Low[i], quote.Close[i], quote.Volume[i]}
		present := 0
		for _, f := range fields {
			if f != nil {
				present++
			}
		}
		if present == 0 {
			continue
		}
		out = append(out, models.MMarketObservation{
			Symbol:    symbol,
			Timestamp: result.Timestamp[i],
			Open:      deref(quote.Open[i]),
			High:      deref(quote.High[i]),
			Low:       deref(quote.Low[i]),
			Close:     deref(quote.Close[i]),
			Volume:    deref(quote.Volume[i]),
			Source:    s.Name(),
		})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no data points for %s", symbol)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
