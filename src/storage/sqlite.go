package storage

import (
	"database/sql"
	"fmt"

	"credit-observer/src/logger"
	"credit-observer/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteDB struct {
	*SQLStore
}

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*SQLiteDB, error) {
	if cfg == nil || cfg.Storage.DBPath == "" {
		return nil, fmt.Errorf("sqlite requires storage.db_path")
	}
	return &SQLiteDB{SQLStore: &SQLStore{Config: cfg, Logger: log}}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	// Open DB
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	// sqlite serializes writers; one connection avoids SQLITE_BUSY between
	// the orchestrator and the scoring pipeline.
	db.SetMaxOpenConns(1)
	d.DB = db

	// PRAGMA optimizations
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil && d.Logger != nil {
			d.Logger.Warning("Failed to apply %s: %v", pragma, err)
		}
	}

	if err := d.createTables(sqliteTypes); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if d.Logger != nil {
		d.Logger.Info("SQLiteDB initialized (%s)", dsn)
	}
	return nil
}
