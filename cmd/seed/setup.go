package main

import (
	"credit-observer/src/interfaces"
	"credit-observer/src/logger"
	"credit-observer/src/models"
	"credit-observer/src/storage"
)

// -----------------------------------------------------------------------------

// setupDatabase initializes the database connection based on config
func setupDatabase(config *models.MConfig, appLogger *logger.Logger) (interfaces.IDatabase, error) {
	dbLogger := logger.NewLogger(config, "Storage")
	db, err := storage.NewDatabase(config, dbLogger)
	if err != nil {
		appLogger.Error("Failed to init db: %v", err)
		return nil, err
	}
	if err := db.Initialize(); err != nil {
		appLogger.Error("Failed to initialize db: %v", err)
		return nil, err
	}
	return db, nil
}

// -----------------------------------------------------------------------------

// sampleIssuers is the built-in universe used when the config lists none.
var sampleIssuers = []models.MIssuerConfig{
	{Symbol: "AAPL", Name: "Apple Inc.", Sector: "Technology", Industry: "Consumer Electronics", CIK: 320193},
	{Symbol: "MSFT", Name: "Microsoft Corporation", Sector: "Technology", Industry: "Software", CIK: 789019},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co.", Sector: "Financial Services", Industry: "Banks", CIK: 19617},
	{Symbol: "F", Name: "Ford Motor Company", Sector: "Consumer Cyclical", Industry: "Auto Manufacturers", CIK: 37996},
	{Symbol: "T", Name: "AT&T Inc.", Sector: "Communication Services", Industry: "Telecom", CIK: 732717},
}
