package main

import (
	"context"
	"time"

	"yfinance-observer/src/interfaces"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"
)

const cleanupEvery = time.Hour

// -----------------------------------------------------------------------------

// runDataLoop stores and relays every polled bar update until the channel
// closes or ctx ends.
func runDataLoop(
	ctx context.Context,
	updates <-chan map[string][]models.MPriceBar,
	db interfaces.IDatabase,
	exchanger interfaces.IDataExchanger,
	appLogger *logger.Logger,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-updates:
			if !ok {
				appLogger.Info("Data source closed channel.")
				return nil
			}

			appLogger.Info("Received update for %d symbols", len(data))
			persistBars(data, db, appLogger)
			if exchanger != nil {
				exchanger.Broadcast(data)
			}
		}
	}
}

// -----------------------------------------------------------------------------

// runCleanup prunes rows older than the retention window once an hour.
func runCleanup(ctx context.Context, db interfaces.IDatabase, retentionDays int, appLogger *logger.Logger) error {
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()

	for {
		if err := db.CleanupOldData(retentionDays); err != nil {
			appLogger.Warning("Cleanup failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
