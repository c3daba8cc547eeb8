package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"credit-observer/src/helpers"
	"credit-observer/src/logger"
	"credit-observer/src/models"
)

// SQLStore implements every query shared by the sqlite and postgres
// backends. Queries are written with '?' placeholders and rebound for
// dialects that need numbered ones.
type SQLStore struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger

	numbered bool
	schema   string
}

// -----------------------------------------------------------------------------

// table returns the (possibly schema-qualified) table name.
func (s *SQLStore) table(name string) string {
	if s.schema == "" {
		return name
	}
	return fmt.Sprintf(`"%s"."%s"`, s.schema, name)
}

// q expands {table} references and rebinds placeholders.
func (s *SQLStore) q(query string) string {
	for _, t := range tableNames {
		query = strings.ReplaceAll(query, "{"+t+"}", s.table(t))
	}
	if s.numbered {
		return rebind(query)
	}
	return query
}

// rebind turns '?' placeholders into $1..$n.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// -----------------------------------------------------------------------------
// Writers
// -----------------------------------------------------------------------------

// upsert runs one prepared statement per row inside a single transaction.
func (s *SQLStore) upsert(ctx context.Context, op, query string, n int, args func(i int) []interface{}) (int, error) {
	if n == 0 {
		return 0, nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, helpers.NewDatabaseError(op, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.q(query))
	if err != nil {
		return 0, helpers.NewDatabaseError(op, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return 0, helpers.NewDatabaseError(op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, helpers.NewDatabaseError(op, err)
	}
	return n, nil
}

// -----------------------------------------------------------------------------

func (s *SQLStore) UpsertIssuers(ctx context.Context, issuers []models.MIssuer) (int, error) {
	return s.upsert(ctx, "upsert issuers", `
		INSERT INTO {issuers} (symbol, name, sector, industry, market_cap, cik, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE issuers.name END,
			sector = CASE WHEN excluded.sector <> '' THEN excluded.sector ELSE issuers.sector END,
			industry = CASE WHEN excluded.industry <> '' THEN excluded.industry ELSE issuers.industry END,
			market_cap = CASE WHEN excluded.market_cap > 0 THEN excluded.market_cap ELSE issuers.market_cap END,
			cik = CASE WHEN excluded.cik > 0 THEN excluded.cik ELSE issuers.cik END,
			updated_at = excluded.updated_at
	`, len(issuers), func(i int) []interface{} {
		is := issuers[i]
		return []interface{}{is.Symbol, is.Name, is.Sector, is.Industry, is.MarketCap, is.CIK, is.UpdatedAt}
	})
}

// -----------------------------------------------------------------------------

func (s *SQLStore) UpsertMarketObservations(ctx context.Context, obs []models.MMarketObservation) (int, error) {
	return s.upsert(ctx, "upsert market data", `
		INSERT INTO {market_data} (symbol, timestamp, open, high, low, close, volume, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timestamp) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			source = excluded.source
	`, len(obs), func(i int) []interface{} {
		o := obs[i]
		return []interface{}{o.Symbol, o.Timestamp, o.Open, o.High, o.Low, o.Close, o.Volume, o.Source}
	})
}

// -----------------------------------------------------------------------------

func (s *SQLStore) UpsertFinancialMetrics(ctx context.Context, metrics []models.MFinancialMetric) (int, error) {
	return s.upsert(ctx, "upsert financial metrics", `
		INSERT INTO {financial_metrics} (symbol, timestamp, metric_name, value, source)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timestamp, metric_name) DO UPDATE SET
			value = excluded.value,
			source = excluded.source
	`, len(metrics), func(i int) []interface{} {
		m := metrics[i]
		return []interface{}{m.Symbol, m.Timestamp, m.MetricName, m.Value, m.Source}
	})
}

// -----------------------------------------------------------------------------

func (s *SQLStore) UpsertNewsEvents(ctx context.Context, events []models.MNewsEvent) (int, error) {
	return s.upsert(ctx, "upsert news events", `
		INSERT INTO {news_events} (symbol, timestamp, headline, body, source, sentiment_score, impact_score, event_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timestamp, headline) DO UPDATE SET
			body = excluded.body,
			source = excluded.source,
			sentiment_score = excluded.sentiment_score,
			impact_score = excluded.impact_score,
			event_type = excluded.event_type
	`, len(events), func(i int) []interface{} {
		e := events[i]
		return []interface{}{e.Symbol, e.Timestamp, e.Headline, e.Body, e.Source, e.Sentiment, e.Impact, e.EventType}
	})
}

// -----------------------------------------------------------------------------
// Feature reads
// -----------------------------------------------------------------------------

func (s *SQLStore) GetIssuer(ctx context.Context, symbol string) (models.MIssuer, error) {
	var is models.MIssuer
	err := s.DB.QueryRowContext(ctx, s.q(`
		SELECT symbol, name, sector, industry, market_cap, cik, updated_at
		FROM {issuers} WHERE symbol = ?
	`), symbol).Scan(&is.Symbol, &is.Name, &is.Sector, &is.Industry, &is.MarketCap, &is.CIK, &is.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return is, fmt.Errorf("issuer %s: %w", symbol, helpers.ErrNotFound)
	}
	if err != nil {
		return is, helpers.NewDatabaseError("get issuer", err)
	}
	return is, nil
}

func (s *SQLStore) ListIssuers(ctx context.Context) ([]models.MIssuer, error) {
	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT symbol, name, sector, industry, market_cap, cik, updated_at
		FROM {issuers} ORDER BY symbol
	`))
	if err != nil {
		return nil, helpers.NewDatabaseError("list issuers", err)
	}
	defer rows.Close()

	var out []models.MIssuer
	for rows.Next() {
		var is models.MIssuer
		if err := rows.Scan(&is.Symbol, &is.Name, &is.Sector, &is.Industry, &is.MarketCap, &is.CIK, &is.UpdatedAt); err != nil {
			return nil, helpers.NewDatabaseError("list issuers", err)
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *SQLStore) GetMarketObservations(ctx context.Context, symbol string, from, to int64) ([]models.MMarketObservation, error) {
	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT symbol, timestamp, open, high, low, close, volume, source
		FROM {market_data}
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`), symbol, from, to)
	if err != nil {
		return nil, helpers.NewDatabaseError("get market data", err)
	}
	defer rows.Close()

	var out []models.MMarketObservation
	for rows.Next() {
		var o models.MMarketObservation
		if err := rows.Scan(&o.Symbol, &o.Timestamp, &o.Open, &o.High, &o.Low, &o.Close, &o.Volume, &o.Source); err != nil {
			return nil, helpers.NewDatabaseError("get market data", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *SQLStore) GetLatestMetrics(ctx context.Context, symbol string, asOf int64) ([]models.MFinancialMetric, error) {
	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT m.symbol, m.timestamp, m.metric_name, m.value, m.source
		FROM {financial_metrics} m
		JOIN (
			SELECT metric_name, MAX(timestamp) AS ts
			FROM {financial_metrics}
			WHERE symbol = ? AND timestamp <= ?
			GROUP BY metric_name
		) latest ON m.metric_name = latest.metric_name AND m.timestamp = latest.ts
		WHERE m.symbol = ?
		ORDER BY m.metric_name ASC
	`), symbol, asOf, symbol)
	if err != nil {
		return nil, helpers.NewDatabaseError("get latest metrics", err)
	}
	defer rows.Close()

	var out []models.MFinancialMetric
	for rows.Next() {
		var m models.MFinancialMetric
		if err := rows.Scan(&m.Symbol, &m.Timestamp, &m.MetricName, &m.Value, &m.Source); err != nil {
			return nil, helpers.NewDatabaseError("get latest metrics", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *SQLStore) GetNewsEvents(ctx context.Context, symbol string, from, to int64) ([]models.MNewsEvent, error) {
	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT symbol, timestamp, headline, body, source, sentiment_score, impact_score, event_type
		FROM {news_events}
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, headline ASC
	`), symbol, from, to)
	if err != nil {
		return nil, helpers.NewDatabaseError("get news events", err)
	}
	defer rows.Close()

	var out []models.MNewsEvent
	for rows.Next() {
		var e models.MNewsEvent
		if err := rows.Scan(&e.Symbol, &e.Timestamp, &e.Headline, &e.Body, &e.Source, &e.Sentiment, &e.Impact, &e.EventType); err != nil {
			return nil, helpers.NewDatabaseError("get news events", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Scores
// -----------------------------------------------------------------------------

func (s *SQLStore) SaveScoreRecord(ctx context.Context, rec models.MScoreRecord) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return helpers.NewDatabaseError("save score", err)
	}
	defer tx.Rollback()

	sc := rec.Score
	res, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO {credit_scores} (symbol, timestamp, score, confidence, model_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timestamp) DO NOTHING
	`), sc.Symbol, sc.Timestamp, sc.Score, sc.Confidence, sc.ModelVersion)
	if err != nil {
		return helpers.NewDatabaseError("save score", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &helpers.DuplicateKeyError{
			CreditObserverError: helpers.CreditObserverError{Message: fmt.Sprintf("score for %s at %d already exists", sc.Symbol, sc.Timestamp)},
			Key:                 fmt.Sprintf("%s|%d", sc.Symbol, sc.Timestamp),
		}
	}

	if len(rec.Attributions) > 0 {
		stmt, err := tx.PrepareContext(ctx, s.q(`
			INSERT INTO {feature_attributions}
				(symbol, timestamp, feature_name, importance_value, attribution_value, feature_value, model_version, rank)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`))
		if err != nil {
			return helpers.NewDatabaseError("save attributions", err)
		}
		defer stmt.Close()
		for _, a := range rec.Attributions {
			if _, err := stmt.ExecContext(ctx, a.Symbol, a.Timestamp, a.FeatureName, a.ImportanceValue,
				a.AttributionValue, a.FeatureValue, a.ModelVersion, a.Rank); err != nil {
				return helpers.NewDatabaseError("save attributions", err)
			}
		}
	}

	ex := rec.Explanation
	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO {score_explanations} (symbol, timestamp, model_version, baseline, summary)
		VALUES (?, ?, ?, ?, ?)
	`), ex.Symbol, ex.Timestamp, ex.ModelVersion, ex.Baseline, ex.Summary); err != nil {
		return helpers.NewDatabaseError("save explanation", err)
	}

	if err := tx.Commit(); err != nil {
		return helpers.NewDatabaseError("save score", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

const scoreColumns = `symbol, timestamp, score, confidence, model_version`

func scanScore(row interface{ Scan(...interface{}) error }) (models.MCreditScore, error) {
	var sc models.MCreditScore
	err := row.Scan(&sc.Symbol, &sc.Timestamp, &sc.Score, &sc.Confidence, &sc.ModelVersion)
	return sc, err
}

func (s *SQLStore) scoreRow(ctx context.Context, op, query string, args ...interface{}) (models.MCreditScore, error) {
	sc, err := scanScore(s.DB.QueryRowContext(ctx, s.q(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return sc, fmt.Errorf("%s: %w", op, helpers.ErrNotFound)
	}
	if err != nil {
		return sc, helpers.NewDatabaseError(op, err)
	}
	return sc, nil
}

func (s *SQLStore) GetLatestScore(ctx context.Context, symbol string) (models.MCreditScore, error) {
	return s.scoreRow(ctx, "latest score", `
		SELECT `+scoreColumns+` FROM {credit_scores}
		WHERE symbol = ? ORDER BY timestamp DESC LIMIT 1
	`, symbol)
}

func (s *SQLStore) GetScoreAt(ctx context.Context, symbol string, ts int64) (models.MCreditScore, error) {
	return s.scoreRow(ctx, "score", `
		SELECT `+scoreColumns+` FROM {credit_scores}
		WHERE symbol = ? AND timestamp = ?
	`, symbol, ts)
}

func (s *SQLStore) GetPreviousScore(ctx context.Context, symbol string, ts int64) (models.MCreditScore, error) {
	return s.scoreRow(ctx, "previous score", `
		SELECT `+scoreColumns+` FROM {credit_scores}
		WHERE symbol = ? AND timestamp < ? ORDER BY timestamp DESC LIMIT 1
	`, symbol, ts)
}

func (s *SQLStore) GetScoreHistory(ctx context.Context, symbol string, since int64, limit int) ([]models.MCreditScore, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT `+scoreColumns+` FROM {credit_scores}
		WHERE symbol = ? AND timestamp >= ?
		ORDER BY timestamp DESC LIMIT ?
	`), symbol, since, limit)
	if err != nil {
		return nil, helpers.NewDatabaseError("score history", err)
	}
	defer rows.Close()

	var out []models.MCreditScore
	for rows.Next() {
		sc, err := scanScore(rows)
		if err != nil {
			return nil, helpers.NewDatabaseError("score history", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *SQLStore) GetAttributions(ctx context.Context, symbol string, ts int64) ([]models.MFeatureAttribution, error) {
	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT symbol, timestamp, feature_name, importance_value, attribution_value, feature_value, model_version, rank
		FROM {feature_attributions}
		WHERE symbol = ? AND timestamp = ?
		ORDER BY rank ASC
	`), symbol, ts)
	if err != nil {
		return nil, helpers.NewDatabaseError("get attributions", err)
	}
	defer rows.Close()

	var out []models.MFeatureAttribution
	for rows.Next() {
		var a models.MFeatureAttribution
		if err := rows.Scan(&a.Symbol, &a.Timestamp, &a.FeatureName, &a.ImportanceValue,
			&a.AttributionValue, &a.FeatureValue, &a.ModelVersion, &a.Rank); err != nil {
			return nil, helpers.NewDatabaseError("get attributions", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetExplanation(ctx context.Context, symbol string, ts int64) (models.MExplanation, error) {
	var ex models.MExplanation
	err := s.DB.QueryRowContext(ctx, s.q(`
		SELECT symbol, timestamp, model_version, baseline, summary
		FROM {score_explanations} WHERE symbol = ? AND timestamp = ?
	`), symbol, ts).Scan(&ex.Symbol, &ex.Timestamp, &ex.ModelVersion, &ex.Baseline, &ex.Summary)
	if errors.Is(err, sql.ErrNoRows) {
		return ex, fmt.Errorf("explanation %s@%d: %w", symbol, ts, helpers.ErrNotFound)
	}
	if err != nil {
		return ex, helpers.NewDatabaseError("get explanation", err)
	}
	return ex, nil
}

// -----------------------------------------------------------------------------
// Alerts
// -----------------------------------------------------------------------------

const alertColumns = `id, symbol, timestamp, previous_score, new_score, score_change, confidence, severity, band_crossed, created_at`

func scanAlert(row interface{ Scan(...interface{}) error }) (models.MAlert, error) {
	var a models.MAlert
	var crossed int
	err := row.Scan(&a.ID, &a.Symbol, &a.Timestamp, &a.PreviousScore, &a.NewScore, &a.ScoreChange,
		&a.Confidence, &a.Severity, &crossed, &a.CreatedAt)
	a.BandCrossed = crossed != 0
	return a, err
}

func (s *SQLStore) InsertAlert(ctx context.Context, a models.MAlert) (models.MAlert, bool, error) {
	res, err := s.DB.ExecContext(ctx, s.q(`
		INSERT INTO {alerts} (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timestamp) DO NOTHING
	`), a.ID, a.Symbol, a.Timestamp, a.PreviousScore, a.NewScore, a.ScoreChange,
		a.Confidence, a.Severity, btoi(a.BandCrossed), a.CreatedAt)
	if err != nil {
		return a, false, helpers.NewDatabaseError("insert alert", err)
	}
	n, _ := res.RowsAffected()

	stored, err := scanAlert(s.DB.QueryRowContext(ctx, s.q(`
		SELECT `+alertColumns+` FROM {alerts} WHERE symbol = ? AND timestamp = ?
	`), a.Symbol, a.Timestamp))
	if err != nil {
		return a, false, helpers.NewDatabaseError("read alert", err)
	}
	return stored, n > 0, nil
}

func (s *SQLStore) GetAlerts(ctx context.Context, since int64) ([]models.MAlert, error) {
	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT `+alertColumns+` FROM {alerts}
		WHERE timestamp >= ?
		ORDER BY timestamp DESC, symbol ASC
	`), since)
	if err != nil {
		return nil, helpers.NewDatabaseError("get alerts", err)
	}
	defer rows.Close()

	var out []models.MAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, helpers.NewDatabaseError("get alerts", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Source status
// -----------------------------------------------------------------------------

func (s *SQLStore) GetSourceStatus(ctx context.Context, name string) (models.MSourceStatus, error) {
	var st models.MSourceStatus
	err := s.DB.QueryRowContext(ctx, s.q(`
		SELECT source_name, last_update, status, error_count, last_error
		FROM {source_status} WHERE source_name = ?
	`), name).Scan(&st.SourceName, &st.LastUpdate, &st.Status, &st.ErrorCount, &st.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return st, fmt.Errorf("source %s: %w", name, helpers.ErrNotFound)
	}
	if err != nil {
		return st, helpers.NewDatabaseError("get source status", err)
	}
	return st, nil
}

func (s *SQLStore) SaveSourceStatus(ctx context.Context, st models.MSourceStatus) error {
	_, err := s.DB.ExecContext(ctx, s.q(`
		INSERT INTO {source_status} (source_name, last_update, status, error_count, last_error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source_name) DO UPDATE SET
			last_update = excluded.last_update,
			status = excluded.status,
			error_count = excluded.error_count,
			last_error = excluded.last_error
	`), st.SourceName, st.LastUpdate, st.Status, st.ErrorCount, st.LastError)
	if err != nil {
		return helpers.NewDatabaseError("save source status", err)
	}
	return nil
}

func (s *SQLStore) ListSourceStatus(ctx context.Context) ([]models.MSourceStatus, error) {
	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT source_name, last_update, status, error_count, last_error
		FROM {source_status} ORDER BY source_name
	`))
	if err != nil {
		return nil, helpers.NewDatabaseError("list source status", err)
	}
	defer rows.Close()

	var out []models.MSourceStatus
	for rows.Next() {
		var st models.MSourceStatus
		if err := rows.Scan(&st.SourceName, &st.LastUpdate, &st.Status, &st.ErrorCount, &st.LastError); err != nil {
			return nil, helpers.NewDatabaseError("list source status", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Model performance
// -----------------------------------------------------------------------------

func (s *SQLStore) SaveModelPerformance(ctx context.Context, p models.MModelPerformance) error {
	_, err := s.DB.ExecContext(ctx, s.q(`
		INSERT INTO {model_performance}
			(model_version, timestamp, mse, r2, accuracy, training_samples, validation_samples)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (model_version) DO UPDATE SET
			timestamp = excluded.timestamp,
			mse = excluded.mse,
			r2 = excluded.r2,
			accuracy = excluded.accuracy,
			training_samples = excluded.training_samples,
			validation_samples = excluded.validation_samples
	`), p.ModelVersion, p.Timestamp, p.MSE, p.R2, p.Accuracy, p.TrainingSamples, p.ValidationSamples)
	if err != nil {
		return helpers.NewDatabaseError("save model performance", err)
	}
	return nil
}

func (s *SQLStore) GetModelPerformance(ctx context.Context, limit int) ([]models.MModelPerformance, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, s.q(`
		SELECT model_version, timestamp, mse, r2, accuracy, training_samples, validation_samples
		FROM {model_performance} ORDER BY timestamp DESC LIMIT ?
	`), limit)
	if err != nil {
		return nil, helpers.NewDatabaseError("get model performance", err)
	}
	defer rows.Close()

	var out []models.MModelPerformance
	for rows.Next() {
		var p models.MModelPerformance
		if err := rows.Scan(&p.ModelVersion, &p.Timestamp, &p.MSE, &p.R2, &p.Accuracy, &p.TrainingSamples, &p.ValidationSamples); err != nil {
			return nil, helpers.NewDatabaseError("get model performance", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (s *SQLStore) CleanupOldData(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.DB.ExecContext(ctx, s.q(`DELETE FROM {market_data} WHERE timestamp < ?`), cutoff)
	if err != nil {
		return 0, helpers.NewDatabaseError("cleanup market data", err)
	}
	n, _ := res.RowsAffected()
	if s.Logger != nil {
		s.Logger.Info("Removed %d market observations older than %d", n, cutoff)
	}
	return n, nil
}

// -----------------------------------------------------------------------------

func (s *SQLStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
