package interfaces

import (
	"context"

	"credit-observer/src/models"
)

// -----------------------------------------------------------------------------
// IDataSource is one external connector. It maps its provider's response into
// the fixed record variants of models.MRecordBatch.
// -----------------------------------------------------------------------------

type IDataSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// Fetch pulls one batch for the currently tracked symbols. It returns the
	// records it could map even when some symbols failed; an error with an
	// empty batch means nothing was fetched.
	Fetch(ctx context.Context) (models.MRecordBatch, error)

	// -----------------------------------------------------------------------------

	// RequiresOpenMarket is true for sources whose data only moves while the
	// exchange is trading.
	RequiresOpenMarket() bool

	// -----------------------------------------------------------------------------

	// UpdateSymbols updates the list of symbols being monitored
	UpdateSymbols(symbols []string) error

	// -----------------------------------------------------------------------------

	// Symbols returns the current symbol list
	Symbols() []string
}
