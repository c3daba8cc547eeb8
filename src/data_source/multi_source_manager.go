package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"credit-observer/src/helpers"
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/models"
)

// DefaultConcurrency bounds in-flight symbol requests per connector fetch.
const DefaultConcurrency = 4

// SymbolRetryPolicy is the per-symbol retry policy of connectors built from
// cfg. Without ingestion settings each symbol gets a single attempt.
func SymbolRetryPolicy(cfg *models.MConfig, log *logger.Logger) helpers.RetryPolicy {
	if cfg == nil {
		return helpers.RetryPolicy{MaxAttempts: 1}
	}
	return helpers.NewRetryPolicy(cfg.Ingestion, log)
}

// MultiSourceManager is the registry of configured connectors.
type MultiSourceManager struct {
	Sources map[string]interfaces.IDataSource
	Logger  *logger.Logger
	mu      sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMultiSourceManager(sources []interfaces.IDataSource, log *logger.Logger) *MultiSourceManager {
	if log == nil {
		log = logger.NewLogger(nil, "MultiSourceManager")
	}
	m := &MultiSourceManager{
		Sources: make(map[string]interfaces.IDataSource),
		Logger:  log,
	}

	for _, s := range sources {
		m.Sources[s.Name()] = s
	}

	return m
}

// -----------------------------------------------------------------------------

// AddSource registers a connector under its name. Names are unique because
// they key SourceStatus rows.
func (m *MultiSourceManager) AddSource(source interfaces.IDataSource) error {
	name := source.Name()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.Sources[name]; dup {
		return helpers.NewConfigurationError(fmt.Sprintf("duplicate source %q", name), nil)
	}
	m.Sources[name] = source
	m.Logger.Info("Registered connector %s", name)
	return nil
}

func (m *MultiSourceManager) RemoveSource(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Sources[name]; !ok {
		return fmt.Errorf("connector %s: %w", name, helpers.ErrNotFound)
	}
	delete(m.Sources, name)
	m.Logger.Info("Unregistered connector %s", name)
	return nil
}

func (m *MultiSourceManager) GetSource(name string) (interfaces.IDataSource, error) {
	m.mu.RLock()
	src, ok := m.Sources[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("connector %s: %w", name, helpers.ErrNotFound)
	}
	return src, nil
}

// GetAllSources returns the connectors ordered by name, which is also the
// order the scheduler registers them in.
func (m *MultiSourceManager) GetAllSources() []interfaces.IDataSource {
	m.mu.RLock()
	list := make([]interfaces.IDataSource, 0, len(m.Sources))
	for _, s := range m.Sources {
		list = append(list, s)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// UpdateSymbols pushes the tracked issuer universe to every connector. A
// connector that rejects it keeps its previous list; the others still update.
func (m *MultiSourceManager) UpdateSymbols(symbols []string) error {
	var failed []string
	for _, src := range m.GetAllSources() {
		if err := src.UpdateSymbols(symbols); err != nil {
			m.Logger.Error("Connector %s rejected symbol update: %v", src.Name(), err)
			failed = append(failed, src.Name())
		}
	}
	if len(failed) > 0 {
		return helpers.NewConfigurationError(fmt.Sprintf("symbol update rejected by %v", failed), nil)
	}
	return nil
}

// -----------------------------------------------------------------------------

// FetchSymbols runs fetch for every symbol with at most concurrency calls in
// flight, retrying each symbol on its own under policy. Results keep symbol
// order. When some symbols still fail, the others' records are returned with
// a *helpers.PartialFetchError; when all fail, only the error is returned.
// Errors that went through more than one attempt are marked exhausted so the
// caller does not retry them again.
func FetchSymbols[T any](
	ctx context.Context,
	symbols []string,
	concurrency int,
	policy helpers.RetryPolicy,
	log *logger.Logger,
	fetch func(ctx context.Context, symbol string) ([]T, error),
) ([]T, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	perSymbol := make([][]T, len(symbols))
	errs := make([]error, len(symbols))
	var wg sync.WaitGroup

	sem := make(chan struct{}, concurrency)

	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()

			attempts, err := helpers.RetryWithBackoff(ctx, "fetch "+sym, policy, func(ctx context.Context) error {
				data, err := fetch(ctx, sym)
				if err != nil {
					return err
				}
				perSymbol[i] = data
				return nil
			})
			if err != nil {
				if log != nil {
					log.Warning("Error fetching symbol %s: %v", sym, err)
				}
				if attempts > 1 {
					err = helpers.NewRetriesExhaustedError(attempts, err)
				}
				errs[i] = err
			}
		}(i, symbol)
	}

	wg.Wait()

	var out []T
	var failed []string
	var first error
	for i, sym := range symbols {
		if errs[i] != nil {
			failed = append(failed, sym)
			if first == nil {
				first = errs[i]
			}
			continue
		}
		out = append(out, perSymbol[i]...)
	}

	switch {
	case len(failed) == len(symbols):
		return nil, fmt.Errorf("all %d fetches failed: %w", len(failed), first)
	case len(failed) > 0:
		return out, helpers.NewPartialFetchError(failed, first)
	}
	return out, nil
}
