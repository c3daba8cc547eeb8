package features

import (
	"context"
	"errors"
	"fmt"
	"math"

	"credit-observer/src/analysis/core"
	"credit-observer/src/helpers"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/models"
)

const (
	day = int64(24 * 60 * 60)

	defaultMarketWindowDays = 30
	defaultNewsWindowDays   = 14
	defaultHalfLifeHours    = 72.0
	defaultRSIPeriod        = 14
	defaultMovingAverage    = 20
)

// Feature names in vector order. The order is part of a trained model's
// layout and must only ever be appended to.
const (
	DebtToEquity          = "debt_to_equity"
	CurrentRatio          = "current_ratio"
	PERatio               = "pe_ratio"
	ROE                   = "roe"
	RevenueGrowth         = "revenue_growth"
	ProfitMargin          = "profit_margin"
	GrossMargin           = "gross_margin"
	LogMarketCap          = "log_market_cap"
	Beta                  = "beta"
	DividendYield         = "dividend_yield"
	MomentumShort         = "momentum_short"
	PriceChange1D         = "price_change_1d"
	PriceChange7D         = "price_change_7d"
	PriceChange30D        = "price_change_30d"
	Volatility30D         = "volatility_30d"
	VolumeRatio           = "volume_ratio"
	RSI                   = "rsi"
	MovingAvgRatio        = "moving_avg_ratio"
	NewsSentiment         = "news_sentiment"
	NewsImpact            = "news_impact"
	NegativeEventPressure = "negative_event_pressure"
	NewsVolume            = "news_volume"
	RegulatoryEvents      = "regulatory_events"
	LegalEvents           = "legal_events"
)

var FeatureNames = []string{
	DebtToEquity, CurrentRatio, PERatio, ROE, RevenueGrowth, ProfitMargin, GrossMargin,
	LogMarketCap, Beta, DividendYield,
	MomentumShort, PriceChange1D, PriceChange7D, PriceChange30D, Volatility30D,
	VolumeRatio, RSI, MovingAvgRatio,
	NewsSentiment, NewsImpact, NegativeEventPressure, NewsVolume, RegulatoryEvents, LegalEvents,
}

// NeutralDefaults fill a feature when its inputs are missing.
var NeutralDefaults = map[string]float64{
	DebtToEquity:          0.5,
	CurrentRatio:          1.2,
	PERatio:               15,
	ROE:                   0.1,
	RevenueGrowth:         0.05,
	ProfitMargin:          0.05,
	GrossMargin:           0.2,
	LogMarketCap:          20.7,
	Beta:                  1.0,
	DividendYield:         0,
	MomentumShort:         0,
	PriceChange1D:         0,
	PriceChange7D:         0,
	PriceChange30D:        0,
	Volatility30D:         0.02,
	VolumeRatio:           1,
	RSI:                   50,
	MovingAvgRatio:        1,
	NewsSentiment:         models.NeutralSentiment,
	NewsImpact:            models.NeutralImpact,
	NegativeEventPressure: 0,
	NewsVolume:            0,
	RegulatoryEvents:      0,
	LegalEvents:           0,
}

// -----------------------------------------------------------------------------

// Aggregator builds point-in-time feature vectors from the store.
type Aggregator struct {
	Store    interfaces.IFeatureStore
	Logger   *logger.Logger
	defaults map[string]float64

	marketWindow int64
	newsWindow   int64
	halfLife     float64
	rsiPeriod    int
	maPoints     int
}

func NewAggregator(cfg *models.MConfig, store interfaces.IFeatureStore, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.NewLogger(cfg, "FeatureAggregator")
	}
	fc := models.MFeatureConfig{}
	if cfg != nil {
		fc = cfg.Features
	}
	a := &Aggregator{
		Store:        store,
		Logger:       log,
		defaults:     make(map[string]float64, len(NeutralDefaults)),
		marketWindow: int64(orInt(fc.MarketWindowDays, defaultMarketWindowDays)) * day,
		newsWindow:   int64(orInt(fc.NewsWindowDays, defaultNewsWindowDays)) * day,
		halfLife:     orFloat(fc.NewsHalfLifeHours, defaultHalfLifeHours) * 3600,
		rsiPeriod:    orInt(fc.RSIPeriod, defaultRSIPeriod),
		maPoints:     orInt(fc.MovingAveragePoint, defaultMovingAverage),
	}
	for k, v := range NeutralDefaults {
		a.defaults[k] = v
	}
	for k, v := range fc.NeutralDefaults {
		if _, ok := a.defaults[k]; ok {
			a.defaults[k] = v
		}
	}
	return a
}

// Default returns the neutral value used for name.
func (a *Aggregator) Default(name string) float64 {
	return a.defaults[name]
}

// RecentEvents returns the news inside the scoring window ending at asOf.
func (a *Aggregator) RecentEvents(ctx context.Context, symbol string, asOf int64) ([]models.MNewsEvent, error) {
	return a.Store.GetNewsEvents(ctx, symbol, asOf-a.newsWindow, asOf)
}

// -----------------------------------------------------------------------------

// vectorBuilder fills values by name and records which were imputed.
type vectorBuilder struct {
	values  map[string]float64
	imputed map[string]bool
}

func (b *vectorBuilder) set(name string, v float64) {
	b.values[name] = v
}

func (b *vectorBuilder) setOr(name string, v float64, ok bool, def float64) {
	if ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
		b.values[name] = v
		return
	}
	b.values[name] = def
	b.imputed[name] = true
}

// -----------------------------------------------------------------------------

// BuildFeatures assembles the vector for symbol as of asOf. It reads only
// data stamped at or before asOf and never consults the wall clock, so the
// same stored data and asOf give the same vector.
func (a *Aggregator) BuildFeatures(ctx context.Context, symbol string, asOf int64) (models.MFeatureVector, error) {
	b := &vectorBuilder{values: make(map[string]float64, len(FeatureNames)), imputed: make(map[string]bool)}

	issuer, err := a.Store.GetIssuer(ctx, symbol)
	if err != nil && !errors.Is(err, helpers.ErrNotFound) {
		return models.MFeatureVector{}, fmt.Errorf("load issuer %s: %w", symbol, err)
	}

	metrics, err := a.Store.GetLatestMetrics(ctx, symbol, asOf)
	if err != nil {
		return models.MFeatureVector{}, fmt.Errorf("load metrics %s: %w", symbol, err)
	}
	a.financialFeatures(b, metrics, issuer)

	obs, err := a.Store.GetMarketObservations(ctx, symbol, asOf-a.marketWindow, asOf)
	if err != nil {
		return models.MFeatureVector{}, fmt.Errorf("load market data %s: %w", symbol, err)
	}
	a.marketFeatures(b, obs)

	events, err := a.Store.GetNewsEvents(ctx, symbol, asOf-a.newsWindow, asOf)
	if err != nil {
		return models.MFeatureVector{}, fmt.Errorf("load news %s: %w", symbol, err)
	}
	a.newsFeatures(b, events, asOf)

	fv := models.MFeatureVector{
		Symbol:  symbol,
		AsOf:    asOf,
		Names:   make([]string, len(FeatureNames)),
		Values:  make([]float64, len(FeatureNames)),
		Imputed: make([]bool, len(FeatureNames)),
	}
	for i, name := range FeatureNames {
		fv.Names[i] = name
		fv.Values[i] = b.values[name]
		fv.Imputed[i] = b.imputed[name]
	}

	a.Logger.Debug("Built features for %s @%d: %d metrics, %d bars, %d events, %.0f%% imputed",
		symbol, asOf, len(metrics), len(obs), len(events), fv.ImputedFraction()*100)
	return fv, nil
}

// -----------------------------------------------------------------------------

func (a *Aggregator) financialFeatures(b *vectorBuilder, metrics []models.MFinancialMetric, issuer models.MIssuer) {
	m := make(map[string]float64, len(metrics))
	for _, fm := range metrics {
		m[fm.MetricName] = fm.Value
	}
	get := func(name string) (float64, bool) {
		v, ok := m[name]
		return v, ok
	}

	for _, name := range []string{DebtToEquity, CurrentRatio, PERatio, ROE, RevenueGrowth, Beta, DividendYield} {
		v, ok := get(name)
		b.setOr(name, v, ok, a.defaults[name])
	}

	revenue, hasRevenue := get("total_revenue")
	hasRevenue = hasRevenue && revenue != 0

	netIncome, ok := get("net_income")
	b.setOr(ProfitMargin, safeDiv(netIncome, revenue), ok && hasRevenue, a.defaults[ProfitMargin])

	grossProfit, ok := get("gross_profit")
	b.setOr(GrossMargin, safeDiv(grossProfit, revenue), ok && hasRevenue, a.defaults[GrossMargin])

	mcap, ok := get("market_cap")
	if !ok && issuer.MarketCap > 0 {
		mcap, ok = issuer.MarketCap, true
	}
	logCap, logOK := core.SafeLog(mcap)
	b.setOr(LogMarketCap, logCap, ok && logOK, a.defaults[LogMarketCap])
}

// -----------------------------------------------------------------------------

func (a *Aggregator) marketFeatures(b *vectorBuilder, obs []models.MMarketObservation) {
	closes := make([]float64, len(obs))
	volumes := make([]float64, len(obs))
	for i, o := range obs {
		closes[i] = o.Close
		volumes[i] = o.Volume
	}
	n := len(obs)

	if n >= 2 {
		b.set(MomentumShort, core.CalculateChangePercent(closes[n-1], closes[n-2]))
		b.set(PriceChange30D, core.CalculateChangePercent(closes[n-1], closes[0]))
	} else {
		b.setOr(MomentumShort, 0, false, a.defaults[MomentumShort])
		b.setOr(PriceChange30D, 0, false, a.defaults[PriceChange30D])
	}

	for _, h := range []struct {
		name    string
		horizon int64
	}{{PriceChange1D, day}, {PriceChange7D, 7 * day}} {
		ref, ok := referenceClose(obs, h.horizon)
		v := 0.0
		if ok {
			v = core.CalculateChangePercent(closes[n-1], ref)
		}
		b.setOr(h.name, v, ok, a.defaults[h.name])
	}

	returns := core.SimpleReturns(closes)
	_, vol := core.CalculateMeanStd(returns)
	b.setOr(Volatility30D, vol, len(returns) >= 2, a.defaults[Volatility30D])

	if n >= 2 {
		mean, _ := core.CalculateMeanStd(volumes)
		b.setOr(VolumeRatio, core.CalculateVolumeRatio(volumes[n-1], mean), mean > 0, a.defaults[VolumeRatio])
	} else {
		b.setOr(VolumeRatio, 0, false, a.defaults[VolumeRatio])
	}

	rsi, ok := core.CalculateRSI(closes, a.rsiPeriod)
	b.setOr(RSI, rsi, ok, a.defaults[RSI])

	ma, ok := core.CalculateMovingAverageRatio(closes, a.maPoints)
	b.setOr(MovingAvgRatio, ma, ok, a.defaults[MovingAvgRatio])
}

// referenceClose is the close of the latest bar at or before last - horizon.
func referenceClose(obs []models.MMarketObservation, horizon int64) (float64, bool) {
	if len(obs) < 2 {
		return 0, false
	}
	ts := make([]int64, len(obs))
	for i, o := range obs {
		ts[i] = o.Timestamp
	}
	cutoff := obs[len(obs)-1].Timestamp - horizon
	idx := core.SearchSorted(ts, cutoff, "right") - 1
	if idx < 0 {
		return 0, false
	}
	return obs[idx].Close, true
}

// -----------------------------------------------------------------------------

func (a *Aggregator) newsFeatures(b *vectorBuilder, events []models.MNewsEvent, asOf int64) {
	var wSum, sentSum, impactSum, pressure, regulatory, legal float64
	for _, ev := range events {
		w := core.DecayWeight(float64(asOf-ev.Timestamp), a.halfLife)
		wSum += w
		sentSum += w * ev.Sentiment
		impactSum += w * ev.Impact
		pressure += w * (ev.Impact / 100) * math.Max(0, (50-ev.Sentiment)/50)
		switch ev.EventType {
		case models.EventRegulatory:
			regulatory += w
		case models.EventLegal:
			legal += w
		}
	}

	b.setOr(NewsSentiment, safeDiv(sentSum, wSum), wSum > 0, a.defaults[NewsSentiment])
	b.setOr(NewsImpact, safeDiv(impactSum, wSum), wSum > 0, a.defaults[NewsImpact])
	b.set(NegativeEventPressure, pressure)
	b.set(NewsVolume, wSum)
	b.set(RegulatoryEvents, regulatory)
	b.set(LegalEvents, legal)
}

// -----------------------------------------------------------------------------

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orFloat(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
