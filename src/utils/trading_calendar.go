package utils

import (
	"strings"
	"time"

	"credit-observer/src/logger"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers market-hours questions for one exchange.
type TradingCalendar struct {
	MIC      string
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// Yahoo symbol suffix to ISO 10383 MIC. Unsuffixed symbols trade on NYSE.
var suffixMIC = []struct {
	suffix string
	mic    string
}{
	{".L", "xlon"}, {".PA", "xpar"}, {".DE", "xfra"}, {".AS", "xams"},
	{".BR", "xbru"}, {".MI", "xmil"}, {".MC", "xmad"}, {".ST", "xsto"},
	{".CO", "xcse"}, {".HE", "xhel"}, {".VI", "xwbo"}, {".SW", "xswx"},
	{".TO", "xtse"}, {".V", "xtsx"}, {".T", "xtks"}, {".HK", "xhkg"},
	{".AX", "xasx"}, {".KS", "xkrx"}, {".TW", "xtai"}, {".SS", "xshg"},
	{".SZ", "xshe"},
}

// MICForSymbol maps a ticker to the exchange it lists on.
func MICForSymbol(symbol string) string {
	for _, s := range suffixMIC {
		if strings.HasSuffix(symbol, s.suffix) {
			return s.mic
		}
	}
	return "xnys"
}

// -----------------------------------------------------------------------------

// GetCalendar returns the calendar for symbol's exchange. When the calendar
// library has no entry the result falls back to Mon-Fri 09:30-16:00 New York.
func GetCalendar(symbol string, log *logger.Logger) *TradingCalendar {
	mic := MICForSymbol(symbol)
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}
	if cal == nil {
		if log != nil {
			log.Warning("No calendar for MIC %s or xnys, using weekday fallback", mic)
		}
		nyLoc, err := time.LoadLocation("America/New_York")
		if err != nil {
			nyLoc = time.UTC
		}
		return &TradingCalendar{MIC: mic, Fallback: true, Timezone: nyLoc}
	}
	return &TradingCalendar{MIC: mic, Calendar: cal, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}
	if tc.Fallback {
		wd := date.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// IsOpenAt reports whether the exchange is in its regular session at t.
func (tc *TradingCalendar) IsOpenAt(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}
	if !tc.Fallback {
		return tc.Calendar.IsOpen(t)
	}
	if !tc.IsTradingDay(t) {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}
