package datasource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"credit-observer/src/helpers"
	"credit-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	name    string
	symbols *SymbolList
}

func (s *stubSource) Name() string             { return s.name }
func (s *stubSource) RequiresOpenMarket() bool { return false }
func (s *stubSource) Symbols() []string        { return s.symbols.Load() }
func (s *stubSource) UpdateSymbols(sym []string) error {
	s.symbols.Store(sym)
	return nil
}
func (s *stubSource) Fetch(ctx context.Context) (models.MRecordBatch, error) {
	return models.MRecordBatch{Source: s.name}, nil
}

func TestRegistry(t *testing.T) {
	m := NewMultiSourceManager(nil, nil)
	require.NoError(t, m.AddSource(&stubSource{name: "b", symbols: NewSymbolList(nil)}))
	require.NoError(t, m.AddSource(&stubSource{name: "a", symbols: NewSymbolList(nil)}))
	var cfgErr *helpers.ConfigurationError
	assert.ErrorAs(t, m.AddSource(&stubSource{name: "a", symbols: NewSymbolList(nil)}), &cfgErr)

	all := m.GetAllSources()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name())

	require.NoError(t, m.UpdateSymbols([]string{" aapl", "AAPL", "msft"}))
	src, err := m.GetSource("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, src.Symbols())

	require.NoError(t, m.RemoveSource("a"))
	_, err = m.GetSource("a")
	assert.ErrorIs(t, err, helpers.ErrNotFound)
	assert.ErrorIs(t, m.RemoveSource("a"), helpers.ErrNotFound)
}

func TestFetchSymbolsPartialAndTotalFailure(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(ctx context.Context, sym string) ([]string, error) {
		if sym == "BAD" {
			return nil, boom
		}
		return []string{sym + "1", sym + "2"}, nil
	}

	out, err := FetchSymbols(context.Background(), []string{"A", "BAD", "C"}, 2, helpers.RetryPolicy{}, nil, fetch)
	assert.Equal(t, []string{"A1", "A2", "C1", "C2"}, out)
	var partial *helpers.PartialFetchError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"BAD"}, partial.Failed)
	assert.ErrorIs(t, err, boom)

	_, err = FetchSymbols(context.Background(), []string{"BAD", "BAD"}, 2, helpers.RetryPolicy{}, nil, fetch)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.As(err, &partial))
}

func TestFetchSymbolsRetriesRateLimitedSymbol(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	fetch := func(ctx context.Context, sym string) ([]string, error) {
		mu.Lock()
		calls[sym]++
		n := calls[sym]
		mu.Unlock()
		if sym == "MSFT" && n == 1 {
			return nil, helpers.NewRateLimitedError("av", 0)
		}
		return []string{sym}, nil
	}
	policy := helpers.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	out, err := FetchSymbols(context.Background(), []string{"AAPL", "MSFT"}, 2, policy, nil, fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, out)
	assert.Equal(t, map[string]int{"AAPL": 1, "MSFT": 2}, calls)
}

func TestFetchSymbolsReportsPersistentRateLimit(t *testing.T) {
	fetch := func(ctx context.Context, sym string) ([]string, error) {
		if sym == "MSFT" {
			return nil, helpers.NewRateLimitedError("av", 0)
		}
		return []string{sym}, nil
	}
	policy := helpers.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	out, err := FetchSymbols(context.Background(), []string{"AAPL", "MSFT"}, 2, policy, nil, fetch)
	assert.Equal(t, []string{"AAPL"}, out)

	var partial *helpers.PartialFetchError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"MSFT"}, partial.Failed)
	assert.True(t, helpers.IsTransient(err))
	assert.False(t, helpers.IsRetryable(err))

	var exhausted *helpers.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}
