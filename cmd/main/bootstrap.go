package main

import (
	"context"
	"time"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/interfaces"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"
)

const initialLoadBackoff = 2 * time.Second

// -----------------------------------------------------------------------------

// performInitialLoad fetches the retention window for every polled symbol,
// stores it and seeds the relay. A partial failure is logged and the daemon
// keeps going with what it got.
func performInitialLoad(
	ctx context.Context,
	source interfaces.IDataSource,
	db interfaces.IDatabase,
	exchanger interfaces.IDataExchanger,
	retries int,
	appLogger *logger.Logger,
) {
	appLogger.Info("Fetching initial data...")
	initialData, err := helpers.RetryWithBackoff(ctx, appLogger, "initial load", retries+1, initialLoadBackoff,
		func() (map[string][]models.MPriceBar, error) { return source.FetchInitialData(ctx) })
	if err != nil {
		appLogger.Warning("Initial fetch failed: %v", err)
	}
	if len(initialData) == 0 {
		return
	}

	persistBars(initialData, db, appLogger)

	if exchanger != nil {
		exchanger.Broadcast(initialData)
	}
	appLogger.Info("Initialization complete: %d symbols loaded", len(initialData))
}

// -----------------------------------------------------------------------------

func persistBars(data map[string][]models.MPriceBar, db interfaces.IDatabase, appLogger *logger.Logger) {
	if db == nil {
		return
	}

	var all []models.MPriceBar
	for _, bars := range data {
		all = append(all, bars...)
	}
	if err := db.SavePriceBars(all); err != nil {
		appLogger.Error("Failed to save %d bars: %v", len(all), err)
	}
}
