package utils

import (
	"sync"
	"time"

	"credit-observer/src/logger"
)

// MarketScheduler gates market-price ingestion on the exchanges of the
// tracked issuers.
type MarketScheduler struct {
	Logger *logger.Logger
	Now    func() time.Time

	mu        sync.RWMutex
	calendars map[string]*TradingCalendar // by MIC
}

func NewMarketScheduler(symbols []string, log *logger.Logger) *MarketScheduler {
	if log == nil {
		log = logger.NewLogger(nil, "MarketScheduler")
	}
	ms := &MarketScheduler{Logger: log, Now: time.Now}
	ms.UpdateSymbols(symbols)
	return ms
}

// -----------------------------------------------------------------------------

// UpdateSymbols replaces the tracked exchanges with those of symbols.
func (ms *MarketScheduler) UpdateSymbols(symbols []string) {
	cals := make(map[string]*TradingCalendar)
	for _, sym := range symbols {
		mic := MICForSymbol(sym)
		if _, ok := cals[mic]; !ok {
			cals[mic] = GetCalendar(sym, ms.Logger)
		}
	}

	ms.mu.Lock()
	ms.calendars = cals
	ms.mu.Unlock()
	ms.Logger.Info("Tracking %d symbols on %d exchanges", len(symbols), len(cals))
}

// AnyMarketOpen reports whether at least one tracked exchange is open now.
// With no tracked exchanges it reports false.
func (ms *MarketScheduler) AnyMarketOpen() bool {
	return ms.AnyMarketOpenAt(ms.Now())
}

func (ms *MarketScheduler) AnyMarketOpenAt(t time.Time) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	for _, cal := range ms.calendars {
		if cal.IsOpenAt(t) {
			return true
		}
	}
	return false
}
