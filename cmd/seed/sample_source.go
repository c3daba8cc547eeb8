package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"credit-observer/src/models"
)

// profile drives the synthetic data of one issuer.
type profile struct {
	price, drift, vol float64
	debtToEquity      float64
	currentRatio      float64
	roe               float64
	sentiment         float64
}

var profiles = map[string]profile{
	"AAPL": {price: 227, drift: 0.001, vol: 0.012, debtToEquity: 1.5, currentRatio: 1.0, roe: 1.4, sentiment: 65},
	"MSFT": {price: 410, drift: 0.0008, vol: 0.010, debtToEquity: 0.3, currentRatio: 1.3, roe: 0.35, sentiment: 70},
	"JPM":  {price: 200, drift: 0.0004, vol: 0.011, debtToEquity: 1.2, currentRatio: 0.9, roe: 0.16, sentiment: 55},
	"F":    {price: 11, drift: -0.002, vol: 0.025, debtToEquity: 3.4, currentRatio: 1.1, roe: 0.08, sentiment: 35},
	"T":    {price: 17, drift: -0.0005, vol: 0.014, debtToEquity: 1.3, currentRatio: 0.7, roe: 0.11, sentiment: 45},
}

var defaultProfile = profile{price: 50, drift: 0, vol: 0.015, debtToEquity: 0.8, currentRatio: 1.2, roe: 0.1, sentiment: 50}

// -----------------------------------------------------------------------------

// sampleSource is a connector that fabricates a deterministic history of
// daily bars, fundamentals and headlines, committed through the regular
// ingestion path.
type sampleSource struct {
	issuers []models.MIssuerConfig
	days    int
	asOf    time.Time
	seed    int64
}

func (s *sampleSource) Name() string                         { return "sample" }
func (s *sampleSource) RequiresOpenMarket() bool             { return false }
func (s *sampleSource) UpdateSymbols(symbols []string) error { return nil }

func (s *sampleSource) Symbols() []string {
	out := make([]string, len(s.issuers))
	for i, is := range s.issuers {
		out[i] = is.Symbol
	}
	return out
}

func (s *sampleSource) Fetch(ctx context.Context) (models.MRecordBatch, error) {
	batch := models.MRecordBatch{Source: s.Name()}
	rng := rand.New(rand.NewSource(s.seed))
	day := int64(24 * time.Hour / time.Second)
	end := s.asOf.Truncate(24 * time.Hour).Unix()

	for _, is := range s.issuers {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		p, ok := profiles[is.Symbol]
		if !ok {
			p = defaultProfile
		}
		batch.Issuers = append(batch.Issuers, models.MIssuer{
			Symbol:    is.Symbol,
			Name:      is.Name,
			Sector:    is.Sector,
			Industry:  is.Industry,
			CIK:       is.CIK,
			MarketCap: p.price * 1e9,
			UpdatedAt: end,
		})

		price := p.price
		for d := s.days; d >= 0; d-- {
			ts := end - int64(d)*day
			ret := p.drift + p.vol*rng.NormFloat64()
			open := price
			price = math.Max(0.5, price*(1+ret))
			batch.Market = append(batch.Market, models.MMarketObservation{
				Symbol:    is.Symbol,
				Timestamp: ts,
				Open:      open,
				High:      math.Max(open, price) * (1 + 0.003*rng.Float64()),
				Low:       math.Min(open, price) * (1 - 0.003*rng.Float64()),
				Close:     price,
				Volume:    1e6 * (1 + rng.Float64()),
				Source:    s.Name(),
			})
		}

		quarter := end - 45*day
		for name, v := range map[string]float64{
			"debt_to_equity": p.debtToEquity,
			"current_ratio":  p.currentRatio,
			"roe":            p.roe,
			"pe_ratio":       15 + 20*rng.Float64(),
			"revenue_growth": p.drift * 100,
			"total_revenue":  p.price * 1e8,
			"net_income":     p.price * 1e8 * p.roe / 4,
			"gross_profit":   p.price * 4e7,
			"market_cap":     p.price * 1e9,
			"beta":           0.8 + p.vol*20,
			"dividend_yield": 0.01,
		} {
			batch.Metrics = append(batch.Metrics, models.MFinancialMetric{
				Symbol: is.Symbol, Timestamp: quarter, MetricName: name, Value: v, Source: s.Name(),
			})
		}

		for i := 0; i < 3; i++ {
			sentiment := math.Max(0, math.Min(100, p.sentiment+10*rng.NormFloat64()))
			batch.News = append(batch.News, models.MNewsEvent{
				Symbol:    is.Symbol,
				Timestamp: end - int64(i+1)*day/2,
				Headline:  fmt.Sprintf("%s update %d", is.Name, i+1),
				Source:    s.Name(),
				Sentiment: sentiment,
				Impact:    30 + 10*float64(i),
				EventType: models.EventGeneral,
			})
		}
	}
	return batch, nil
}
