package interfaces

import "yfinance-observer/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SavePriceBars upserts chart rows keyed by (symbol, timestamp).
	SavePriceBars(bars []models.MPriceBar) error

	// -----------------------------------------------------------------------------

	// SavePriceTicks stores streaming ticks keyed by (symbol, time).
	SavePriceTicks(ticks []models.MPricingData) error

	// -----------------------------------------------------------------------------

	// LatestTicks returns the newest tick per symbol, at most limit rows.
	LatestTicks(limit int) ([]models.MPricingData, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes data older than the retention policy.
	CleanupOldData(retentionDays int) error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
