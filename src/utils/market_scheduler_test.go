package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMICForSymbol(t *testing.T) {
	assert.Equal(t, "xnys", MICForSymbol("AAPL"))
	assert.Equal(t, "xlon", MICForSymbol("BARC.L"))
	assert.Equal(t, "xtks", MICForSymbol("7203.T"))
	assert.Equal(t, "xtsx", MICForSymbol("ABC.V"))
}

func TestAnyMarketOpen(t *testing.T) {
	ms := NewMarketScheduler([]string{"AAPL", "MSFT"}, nil)

	// Wednesday 5 March 2025, 10:00 and 20:00 in New York
	open := time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)
	closed := time.Date(2025, 3, 6, 1, 0, 0, 0, time.UTC)
	sunday := time.Date(2025, 3, 9, 16, 0, 0, 0, time.UTC)

	assert.True(t, ms.AnyMarketOpenAt(open))
	assert.False(t, ms.AnyMarketOpenAt(closed))
	assert.False(t, ms.AnyMarketOpenAt(sunday))

	ms.Now = func() time.Time { return open }
	assert.True(t, ms.AnyMarketOpen())

	ms.UpdateSymbols(nil)
	assert.False(t, ms.AnyMarketOpen())
}

func TestFallbackCalendarHours(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("no tzdata")
	}
	tc := &TradingCalendar{Fallback: true, Timezone: ny}
	assert.False(t, tc.IsOpenAt(time.Date(2025, 3, 5, 9, 29, 0, 0, ny)))
	assert.True(t, tc.IsOpenAt(time.Date(2025, 3, 5, 9, 30, 0, 0, ny)))
	assert.False(t, tc.IsOpenAt(time.Date(2025, 3, 5, 16, 0, 0, 0, ny)))
	assert.False(t, tc.IsOpenAt(time.Date(2025, 3, 8, 12, 0, 0, 0, ny)))
}
