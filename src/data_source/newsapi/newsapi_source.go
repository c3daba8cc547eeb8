package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"credit-observer/src/analysis/core"
	datasource "credit-observer/src/data_source"
	"credit-observer/src/helpers"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/models"
)

const (
	DefaultBaseURL = "https://newsapi.org"
	pageSize       = 10
)

// NewsAPISource searches recent articles per issuer and scores them with the
// headline lexicon.
type NewsAPISource struct {
	Config       *models.MConfig
	SourceConfig models.MSourceConfig
	symbols      *datasource.SymbolList
	Network      interfaces.INetworkManager
	Logger       *logger.Logger

	mu    sync.RWMutex
	names map[string]string
}

func NewNewsAPISource(cfg *models.MConfig, sourceCfg models.MSourceConfig, netMgr interfaces.INetworkManager) *NewsAPISource {
	if sourceCfg.BaseURL == "" {
		sourceCfg.BaseURL = DefaultBaseURL
	}
	s := &NewsAPISource{
		Config:       cfg,
		SourceConfig: sourceCfg,
		symbols:      datasource.NewSymbolList(sourceCfg.Symbols),
		Network:      netMgr,
		Logger:       logger.NewLogger(cfg, "NewsAPISource-"+sourceCfg.Name),
		names:        make(map[string]string),
	}
	if cfg != nil {
		for _, is := range cfg.Issuers {
			s.names[strings.ToUpper(is.Symbol)] = is.Name
		}
	}
	return s
}

func (s *NewsAPISource) Name() string             { return s.SourceConfig.Name }
func (s *NewsAPISource) RequiresOpenMarket() bool { return false }
func (s *NewsAPISource) Symbols() []string        { return s.symbols.Load() }

func (s *NewsAPISource) UpdateSymbols(symbols []string) error {
	s.symbols.Store(symbols)
	return nil
}

// SetCompanyName sets the display name used in the search query.
func (s *NewsAPISource) SetCompanyName(symbol, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[strings.ToUpper(symbol)] = name
}

func (s *NewsAPISource) query(symbol string) string {
	s.mu.RLock()
	name := s.names[symbol]
	s.mu.RUnlock()
	if name == "" {
		return fmt.Sprintf(`"%s"`, symbol)
	}
	return fmt.Sprintf(`"%s" OR "%s"`, name, symbol)
}

// -----------------------------------------------------------------------------

type article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

type everythingResponse struct {
	Status   string    `json:"status"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Articles []article `json:"articles"`
}

// -----------------------------------------------------------------------------

func (s *NewsAPISource) Fetch(ctx context.Context) (models.MRecordBatch, error) {
	batch := models.MRecordBatch{Source: s.Name()}
	if s.SourceConfig.APIKey == "" {
		return batch, helpers.NewConfigurationError(fmt.Sprintf("source %s has no api key", s.Name()), nil)
	}

	events, err := datasource.FetchSymbols(ctx, s.Symbols(), datasource.DefaultConcurrency,
		datasource.SymbolRetryPolicy(s.Config, s.Logger), s.Logger,
		func(ctx context.Context, symbol string) ([]models.MNewsEvent, error) {
			body, err := s.Network.Get(ctx, s.Name(), strings.TrimRight(s.SourceConfig.BaseURL, "/")+"/v2/everything",
				map[string]string{
					"q":        s.query(symbol),
					"sortBy":   "publishedAt",
					"language": "en",
					"pageSize": fmt.Sprint(pageSize),
				},
				map[string]string{"X-Api-Key": s.SourceConfig.APIKey})
			if err != nil {
				return nil, fmt.Errorf("news request for %s: %w", symbol, err)
			}
			return s.parseArticles(symbol, body)
		})
	batch.News = events
	return batch, err
}

// -----------------------------------------------------------------------------

func (s *NewsAPISource) parseArticles(symbol string, body []byte) ([]models.MNewsEvent, error) {
	var resp everythingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}
	if resp.Status != "ok" {
		if resp.Code == "rateLimited" {
			return nil, helpers.NewRateLimitedError(s.Name(), 0)
		}
		return nil, fmt.Errorf("newsapi error for %s: %s %s", symbol, resp.Code, resp.Message)
	}

	var out []models.MNewsEvent
	for i, a := range resp.Articles {
		if i >= pageSize {
			break
		}
		// a blank title or bad publishedAt stays in the batch with an empty
		// headline or zero timestamp; validation rejects and counts it
		var ts int64
		if published, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			ts = published.UTC().Unix()
		} else {
			s.Logger.Debug("Article with bad publishedAt %q for %s", a.PublishedAt, symbol)
		}
		a.Title = strings.TrimSpace(a.Title)
		text := a.Title + " " + a.Description
		sentiment := core.ScoreSentiment(text)
		source := a.Source.Name
		if source == "" {
			source = s.Name()
		}
		body := a.Description
		if body == "" {
			body = a.Content
		}
		out = append(out, models.MNewsEvent{
			Symbol:    symbol,
			Timestamp: ts,
			Headline:  a.Title,
			Body:      body,
			Source:    source,
			Sentiment: sentiment,
			Impact:    core.ScoreImpact(a.Title, sentiment),
			EventType: core.ClassifyEvent(a.Title),
		})
	}
	return out, nil
}
