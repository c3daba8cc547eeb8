package secedgar

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

const (
	DefaultBaseURL = "https://data.sec.gov"
	maxFilings     = 10
	// SEC requires a descriptive agent with a contact address
	defaultUserAgent = "credit-observer admin@example.com"
)

var trackedForms = map[string]bool{"10-K": true, "10-Q": true, "8-K": true}

// Fallback CIKs for well-known tickers; issuer config takes precedence.
var knownCIKs = map[string]int{
	"AAPL":  320193,
	"MSFT":  789019,
	"GOOGL": 1652044,
	"TSLA":  1318605,
	"JPM":   19617,
}

// SECEdgarSource turns recent periodic and current reports into regulatory
// events.
type SECEdgarSource struct {
	Config       *models.MConfig
	SourceConfig models.MSourceConfig
	symbols      *datasource.SymbolList
	Network      interfaces.INetworkManager
	Logger       *logger.Logger
	ciks         map[string]int
}

func NewSECEdgarSource(cfg *models.MConfig, sourceCfg models.MSourceConfig, netMgr interfaces.INetworkManager) *SECEdgarSource {
	if sourceCfg.BaseURL == "" {
		sourceCfg.BaseURL = DefaultBaseURL
	}
	ciks := make(map[string]int, len(knownCIKs))
	for k, v := range knownCIKs {
		ciks[k] = v
	}
	if cfg != nil {
		for _, is := range cfg.Issuers {
			if is.CIK > 0 {
				ciks[strings.ToUpper(is.Symbol)] = is.CIK
			}
		}
	}
	return &SECEdgarSource{
		Config:       cfg,
		SourceConfig: sourceCfg,
		symbols:      datasource.NewSymbolList(sourceCfg.Symbols),
		Network:      netMgr,
		Logger:       logger.NewLogger(cfg, "SECEdgarSource-"+sourceCfg.Name),
		ciks:         ciks,
	}
}

func (s *SECEdgarSource) Name() string             { return s.SourceConfig.Name }
func (s *SECEdgarSource) RequiresOpenMarket() bool { return false }
func (s *SECEdgarSource) Symbols() []string        { return s.symbols.Load() }

func (s *SECEdgarSource) UpdateSymbols(symbols []string) error {
	s.symbols.Store(symbols)
	return nil
}

// -----------------------------------------------------------------------------

type submissionsResponse struct {
	CIK     string `json:"cik"`
	Name    string `json:"name"`
	Filings struct {
		Recent struct {
			Form            []string `json:"form"`
			FilingDate      []string `json:"filingDate"`
			AccessionNumber []string `json:"accessionNumber"`
		} `json:"recent"`
	} `json:"filings"`
}

// -----------------------------------------------------------------------------

func (s *SECEdgarSource) Fetch(ctx context.Context) (models.MRecordBatch, error) {
	batch := models.MRecordBatch{Source: s.Name()}

	var symbols []string
	for _, sym := range s.Symbols() {
		if _, ok := s.ciks[sym]; ok {
			symbols = append(symbols, sym)
		} else {
			s.Logger.Debug("No CIK configured for %s, skipping", sym)
		}
	}

	agent := defaultUserAgent
	if s.Config != nil && s.Config.Network.UserAgent != "" {
		agent = s.Config.Network.UserAgent
	}

	events, err := datasource.FetchSymbols(ctx, symbols, datasource.DefaultConcurrency,
		datasource.SymbolRetryPolicy(s.Config, s.Logger), s.Logger,
		func(ctx context.Context, symbol string) ([]models.MNewsEvent, error) {
			url := fmt.Sprintf("%s/submissions/CIK%010d.json", strings.TrimRight(s.SourceConfig.BaseURL, "/"), s.ciks[symbol])
			body, err := s.Network.Get(ctx, s.Name(), url, nil, map[string]string{"User-Agent": agent})
			if err != nil {
				return nil, fmt.Errorf("submissions request for %s: %w", symbol, err)
			}
			return s.parseSubmissions(symbol, body)
		})
	batch.News = events
	return batch, err
}

// -----------------------------------------------------------------------------

func (s *SECEdgarSource) parseSubmissions(symbol string, body []byte) ([]models.MNewsEvent, error) {
	var resp submissionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}
	recent := resp.Filings.Recent
	if len(recent.Form) != len(recent.FilingDate) {
		return nil, fmt.Errorf("misaligned filings for %s", symbol)
	}

	var out []models.MNewsEvent
	for i, form := range recent.Form {
		if len(out) >= maxFilings {
			break
		}
		if !trackedForms[form] {
			continue
		}
		// an unparseable date leaves a zero timestamp for validation to reject
		var ts int64
		if filed, err := time.Parse("2006-01-02", recent.FilingDate[i]); err == nil {
			ts = filed.UTC().Unix()
		}
		impact := 40.0
		if form == "10-K" {
			impact = 60.0
		}
		out = append(out, models.MNewsEvent{
			Symbol:    symbol,
			Timestamp: ts,
			Headline:  fmt.Sprintf("%s filing submitted", form),
			Body:      fmt.Sprintf("Company filed %s with SEC", form),
			Source:    "SEC EDGAR",
			Sentiment: models.NeutralSentiment,
			Impact:    impact,
			EventType: models.EventRegulatory,
		})
	}
	return out, nil
}
