package interfaces

import (
	"context"

	"credit-observer/src/models"
)

// -----------------------------------------------------------------------------
// IScoreCache is an optional read-through cache of the latest score per
// issuer. A miss is reported with ok=false, not an error.
// -----------------------------------------------------------------------------

type IScoreCache interface {
	GetLatestScore(ctx context.Context, symbol string) (score models.MCreditScore, ok bool, err error)
	SetLatestScore(ctx context.Context, score models.MCreditScore) error
}
