package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	datasource "credit-observer/src/data_source"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/models"
)

const quoteSummaryModules = "price,summaryDetail,financialData,assetProfile"

// YahooFundamentalsSource maps quoteSummary key statistics to financial
// metrics and refreshes issuer reference data.
type YahooFundamentalsSource struct {
	Config       *models.MConfig
	SourceConfig models.MSourceConfig
	symbols      *datasource.SymbolList
	Network      interfaces.INetworkManager
	Logger       *logger.Logger
	Now          func() time.Time
}

// -----------------------------------------------------------------------------

func NewYahooFundamentalsSource(cfg *models.MConfig, sourceCfg models.MSourceConfig, netMgr interfaces.INetworkManager) *YahooFundamentalsSource {
	if sourceCfg.BaseURL == "" {
		sourceCfg.BaseURL = DefaultBaseURL
	}
	return &YahooFundamentalsSource{
		Config:       cfg,
		SourceConfig: sourceCfg,
		symbols:      datasource.NewSymbolList(sourceCfg.Symbols),
		Network:      netMgr,
		Logger:       logger.NewLogger(cfg, "YahooFundamentalsSource-"+sourceCfg.Name),
		Now:          time.Now,
	}
}

func (s *YahooFundamentalsSource) Name() string             { return s.SourceConfig.Name }
func (s *YahooFundamentalsSource) RequiresOpenMarket() bool { return false }
func (s *YahooFundamentalsSource) Symbols() []string        { return s.symbols.Load() }

func (s *YahooFundamentalsSource) UpdateSymbols(symbols []string) error {
	s.symbols.Store(symbols)
	return nil
}

// -----------------------------------------------------------------------------

type rawValue struct {
	Raw *float64 `json:"raw"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price struct {
				LongName  string   `json:"longName"`
				ShortName string   `json:"shortName"`
				MarketCap rawValue `json:"marketCap"`
			} `json:"price"`
			SummaryDetail struct {
				MarketCap  rawValue `json:"marketCap"`
				TrailingPE rawValue `json:"trailingPE"`
			} `json:"summaryDetail"`
			FinancialData struct {
				DebtToEquity   rawValue `json:"debtToEquity"`
				CurrentRatio   rawValue `json:"currentRatio"`
				ReturnOnEquity rawValue `json:"returnOnEquity"`
				RevenueGrowth  rawValue `json:"revenueGrowth"`
			} `json:"financialData"`
			AssetProfile struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
			} `json:"assetProfile"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

type symbolFundamentals struct {
	issuer  models.MIssuer
	metrics []models.MFinancialMetric
}

// -----------------------------------------------------------------------------

// Fetch returns one issuer row and its key statistics per symbol, all
// stamped with the fetch time.
func (s *YahooFundamentalsSource) Fetch(ctx context.Context) (models.MRecordBatch, error) {
	batch := models.MRecordBatch{Source: s.Name()}
	ts := s.Now().UTC().Unix()

	results, err := datasource.FetchSymbols(ctx, s.Symbols(), datasource.DefaultConcurrency,
		datasource.SymbolRetryPolicy(s.Config, s.Logger), s.Logger,
		func(ctx context.Context, symbol string) ([]symbolFundamentals, error) {
			body, err := s.Network.Get(ctx, s.Name(),
				fmt.Sprintf("%s/v10/finance/quoteSummary/%s", strings.TrimRight(s.SourceConfig.BaseURL, "/"), symbol),
				map[string]string{"modules": quoteSummaryModules}, nil)
			if err != nil {
				return nil, fmt.Errorf("quoteSummary request for %s: %w", symbol, err)
			}
			f, err := s.parseQuoteSummary(symbol, ts, body)
			if err != nil {
				return nil, err
			}
			return []symbolFundamentals{f}, nil
		})
	for _, r := range results {
		batch.Issuers = append(batch.Issuers, r.issuer)
		batch.Metrics = append(batch.Metrics, r.metrics...)
	}
	return batch, err
}

// -----------------------------------------------------------------------------

func (s *YahooFundamentalsSource) parseQuoteSummary(symbol string, ts int64, data []byte) (symbolFundamentals, error) {
	var resp quoteSummaryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return symbolFundamentals{}, fmt.Errorf("json unmarshal failed: %w", err)
	}
	if resp.QuoteSummary.Error != nil {
		return symbolFundamentals{}, fmt.Errorf("yahoo api error: %s - %s", resp.QuoteSummary.Error.Code, resp.QuoteSummary.Error.Description)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return symbolFundamentals{}, fmt.Errorf("no quoteSummary result for %s", symbol)
	}
	r := resp.QuoteSummary.Result[0]

	name := r.Price.LongName
	if name == "" {
		name = r.Price.ShortName
	}
	out := symbolFundamentals{issuer: models.MIssuer{
		Symbol:    symbol,
		Name:      name,
		Sector:    r.AssetProfile.Sector,
		Industry:  r.AssetProfile.Industry,
		UpdatedAt: ts,
	}}

	marketCap := r.SummaryDetail.MarketCap.Raw
	if marketCap == nil {
		marketCap = r.Price.MarketCap.Raw
	}
	if marketCap != nil && *marketCap > 0 {
		out.issuer.MarketCap = *marketCap
	}

	var debtToEquity *float64
	// Yahoo reports debt/equity as a percentage
	if v := r.FinancialData.DebtToEquity.Raw; v != nil {
		d := *v / 100
		debtToEquity = &d
	}

	for _, m := range []struct {
		name  string
		value *float64
	}{
		{"market_cap", marketCap},
		{"pe_ratio", r.SummaryDetail.TrailingPE.Raw},
		{"debt_to_equity", debtToEquity},
		{"current_ratio", r.FinancialData.CurrentRatio.Raw},
		{"roe", r.FinancialData.ReturnOnEquity.Raw},
		{"revenue_growth", r.FinancialData.RevenueGrowth.Raw},
	} {
		if m.value == nil {
			continue
		}
		out.metrics = append(out.metrics, models.MFinancialMetric{
			Symbol:     symbol,
			Timestamp:  ts,
			MetricName: m.name,
			Value:      *m.value,
			Source:     s.Name(),
		})
	}
	return out, nil
}
