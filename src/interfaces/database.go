package interfaces

import (
	"context"

	"credit-observer/src/models"
)

// -----------------------------------------------------------------------------
// IRecordWriter commits normalized records. Every method is an idempotent
// upsert run in its own transaction and returns the number of rows written.
// -----------------------------------------------------------------------------

type IRecordWriter interface {
	UpsertIssuers(ctx context.Context, issuers []models.MIssuer) (int, error)
	UpsertMarketObservations(ctx context.Context, obs []models.MMarketObservation) (int, error)
	UpsertFinancialMetrics(ctx context.Context, metrics []models.MFinancialMetric) (int, error)
	UpsertNewsEvents(ctx context.Context, events []models.MNewsEvent) (int, error)
}

// -----------------------------------------------------------------------------
// IFeatureStore is the read side used to build feature vectors. All results
// are deterministically ordered.
// -----------------------------------------------------------------------------

type IFeatureStore interface {
	GetIssuer(ctx context.Context, symbol string) (models.MIssuer, error)
	ListIssuers(ctx context.Context) ([]models.MIssuer, error)

	// GetMarketObservations returns bars in [from, to] ordered by timestamp.
	GetMarketObservations(ctx context.Context, symbol string, from, to int64) ([]models.MMarketObservation, error)

	// GetLatestMetrics returns the newest value of each metric at or before
	// asOf, ordered by metric name.
	GetLatestMetrics(ctx context.Context, symbol string, asOf int64) ([]models.MFinancialMetric, error)

	// GetNewsEvents returns events in [from, to] ordered by timestamp then headline.
	GetNewsEvents(ctx context.Context, symbol string, from, to int64) ([]models.MNewsEvent, error)
}

// -----------------------------------------------------------------------------
// IScoreStore persists scoring outputs.
// -----------------------------------------------------------------------------

type IScoreStore interface {
	// SaveScoreRecord writes the score, its attributions and summary in one
	// transaction. An existing (symbol, timestamp) yields DuplicateKeyError
	// and leaves the stored record untouched.
	SaveScoreRecord(ctx context.Context, rec models.MScoreRecord) error

	GetLatestScore(ctx context.Context, symbol string) (models.MCreditScore, error)
	GetScoreAt(ctx context.Context, symbol string, ts int64) (models.MCreditScore, error)

	// GetPreviousScore returns the newest score strictly before ts.
	GetPreviousScore(ctx context.Context, symbol string, ts int64) (models.MCreditScore, error)

	// GetScoreHistory returns scores at or after since, most recent first.
	GetScoreHistory(ctx context.Context, symbol string, since int64, limit int) ([]models.MCreditScore, error)

	GetAttributions(ctx context.Context, symbol string, ts int64) ([]models.MFeatureAttribution, error)
	GetExplanation(ctx context.Context, symbol string, ts int64) (models.MExplanation, error)
}

// -----------------------------------------------------------------------------
// IAlertStore persists alerts with insert-or-ignore semantics.
// -----------------------------------------------------------------------------

type IAlertStore interface {
	// InsertAlert stores a if no alert exists for (symbol, timestamp). It
	// returns the stored alert and whether this call inserted it.
	InsertAlert(ctx context.Context, a models.MAlert) (models.MAlert, bool, error)

	// GetAlerts returns alerts at or after since, most recent first.
	GetAlerts(ctx context.Context, since int64) ([]models.MAlert, error)
}

// -----------------------------------------------------------------------------
// ISourceStatusStore keeps the per-source health row.
// -----------------------------------------------------------------------------

type ISourceStatusStore interface {
	GetSourceStatus(ctx context.Context, name string) (models.MSourceStatus, error)
	SaveSourceStatus(ctx context.Context, st models.MSourceStatus) error
	ListSourceStatus(ctx context.Context) ([]models.MSourceStatus, error)
}

// -----------------------------------------------------------------------------
// IModelStore records model evaluation history.
// -----------------------------------------------------------------------------

type IModelStore interface {
	SaveModelPerformance(ctx context.Context, p models.MModelPerformance) error
	GetModelPerformance(ctx context.Context, limit int) ([]models.MModelPerformance, error)
}

// -----------------------------------------------------------------------------
// IDatabase defines the full contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {
	IRecordWriter
	IFeatureStore
	IScoreStore
	IAlertStore
	ISourceStatusStore
	IModelStore

	// -----------------------------------------------------------------------------

	// Initialize opens the connection and creates missing tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// CleanupOldData removes market observations older than cutoff.
	CleanupOldData(ctx context.Context, cutoff int64) (int64, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
