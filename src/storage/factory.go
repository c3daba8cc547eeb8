package storage

import (
	"fmt"

	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/models"
)

// NewDatabase returns the backend selected by storage.db_type. The caller
// must still call Initialize.
func NewDatabase(cfg *models.MConfig, log *logger.Logger) (interfaces.IDatabase, error) {
	switch cfg.Storage.DBType {
	case "sqlite", "":
		return NewSQLiteDB(cfg, log)
	case "postgres":
		return NewPostgresDB(cfg, log)
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Storage.DBType)
	}
}
