package storage

import "strings"

var tableNames = []string{
	"issuers",
	"market_data",
	"financial_metrics",
	"news_events",
	"credit_scores",
	"feature_attributions",
	"score_explanations",
	"alerts",
	"source_status",
	"model_performance",
}

// Column types differ per dialect; {INT}, {REAL} and {SERIAL} are
// substituted before the statements run.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS {issuers} (
		symbol TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		sector TEXT NOT NULL DEFAULT '',
		industry TEXT NOT NULL DEFAULT '',
		market_cap {REAL} NOT NULL DEFAULT 0,
		cik {INT} NOT NULL DEFAULT 0,
		updated_at {INT} NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS {market_data} (
		symbol TEXT NOT NULL,
		timestamp {INT} NOT NULL,
		open {REAL} NOT NULL,
		high {REAL} NOT NULL,
		low {REAL} NOT NULL,
		close {REAL} NOT NULL,
		volume {REAL} NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (symbol, timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS {financial_metrics} (
		symbol TEXT NOT NULL,
		timestamp {INT} NOT NULL,
		metric_name TEXT NOT NULL,
		value {REAL} NOT NULL,
		source TEXT NOT NULL,
		PRIMARY KEY (symbol, timestamp, metric_name)
	)`,
	`CREATE TABLE IF NOT EXISTS {news_events} (
		id {SERIAL},
		symbol TEXT NOT NULL,
		timestamp {INT} NOT NULL,
		headline TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		sentiment_score {REAL} NOT NULL,
		impact_score {REAL} NOT NULL,
		event_type TEXT NOT NULL,
		UNIQUE (symbol, timestamp, headline)
	)`,
	`CREATE TABLE IF NOT EXISTS {credit_scores} (
		symbol TEXT NOT NULL,
		timestamp {INT} NOT NULL,
		score {REAL} NOT NULL CHECK (score >= 300 AND score <= 850),
		confidence {REAL} NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
		model_version TEXT NOT NULL,
		PRIMARY KEY (symbol, timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS {feature_attributions} (
		symbol TEXT NOT NULL,
		timestamp {INT} NOT NULL,
		feature_name TEXT NOT NULL,
		importance_value {REAL} NOT NULL,
		attribution_value {REAL} NOT NULL,
		feature_value {REAL} NOT NULL,
		model_version TEXT NOT NULL,
		rank {INT} NOT NULL,
		PRIMARY KEY (symbol, timestamp, feature_name)
	)`,
	`CREATE TABLE IF NOT EXISTS {score_explanations} (
		symbol TEXT NOT NULL,
		timestamp {INT} NOT NULL,
		model_version TEXT NOT NULL,
		baseline {REAL} NOT NULL,
		summary TEXT NOT NULL,
		PRIMARY KEY (symbol, timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS {alerts} (
		id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		timestamp {INT} NOT NULL,
		previous_score {REAL} NOT NULL,
		new_score {REAL} NOT NULL,
		score_change {REAL} NOT NULL,
		confidence {REAL} NOT NULL,
		severity TEXT NOT NULL,
		band_crossed {INT} NOT NULL DEFAULT 0,
		created_at {INT} NOT NULL,
		PRIMARY KEY (symbol, timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS {source_status} (
		source_name TEXT PRIMARY KEY,
		last_update {INT} NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_count {INT} NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS {model_performance} (
		model_version TEXT PRIMARY KEY,
		timestamp {INT} NOT NULL,
		mse {REAL} NOT NULL,
		r2 {REAL} NOT NULL,
		accuracy {REAL} NOT NULL,
		training_samples {INT} NOT NULL,
		validation_samples {INT} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON {alerts} (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_news_symbol_ts ON {news_events} (symbol, timestamp)`,
}

type columnTypes struct {
	Int    string
	Real   string
	Serial string
}

var (
	sqliteTypes   = columnTypes{Int: "INTEGER", Real: "REAL", Serial: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	postgresTypes = columnTypes{Int: "BIGINT", Real: "DOUBLE PRECISION", Serial: "BIGSERIAL PRIMARY KEY"}
)

// createTables runs the schema with dialect types. Existing tables are kept.
func (s *SQLStore) createTables(types columnTypes) error {
	r := strings.NewReplacer("{INT}", types.Int, "{REAL}", types.Real, "{SERIAL}", types.Serial)
	for _, stmt := range schemaStatements {
		if _, err := s.DB.Exec(s.q(r.Replace(stmt))); err != nil {
			return err
		}
	}
	return nil
}
