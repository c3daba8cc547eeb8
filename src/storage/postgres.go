package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"credit-observer/src/logger"
	"credit-observer/src/models"

	_ "github.com/lib/pq"
)

var schemaNameRegex = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	*SQLStore
	Schema string
}

// -----------------------------------------------------------------------------

// NewPostgresDB stores tables in a schema named after the executable.
func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	if cfg == nil || cfg.Storage.DBConnectionString == "" {
		return nil, fmt.Errorf("postgres requires storage.db_connection_string")
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = schemaNameRegex.ReplaceAllString(name, "_")

	return &PostgresDB{
		SQLStore: &SQLStore{Config: cfg, Logger: log, numbered: true, schema: name},
		Schema:   name,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	db, err := sql.Open("postgres", d.Config.Storage.DBConnectionString)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	d.DB = db

	// Create Schema
	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}
	if err := d.createTables(postgresTypes); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if d.Logger != nil {
		d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	}
	return nil
}
