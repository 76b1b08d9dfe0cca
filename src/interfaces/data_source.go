package interfaces

import (
	"context"
	"sync"

	"yfinance-observer/src/models"
)

// -----------------------------------------------------------------------------
// IDataSource interface for periodically fetching price bars.
// -----------------------------------------------------------------------------

type IDataSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// FetchInitialData retrieves the retention window for all symbols.
	FetchInitialData(ctx context.Context) (map[string][]models.MPriceBar, error)

	// -----------------------------------------------------------------------------

	// FetchUpdateData returns only bars newer than the last ones seen.
	FetchUpdateData(ctx context.Context) (map[string][]models.MPriceBar, error)

	// -----------------------------------------------------------------------------

	// UpdateSymbols updates the list of symbols being monitored
	UpdateSymbols(symbols []string) error

	// -----------------------------------------------------------------------------

	// Start begins the data fetching process
	// ctx: controls the lifecycle (cancellation stops the source)
	// outputChan: channel to push data to
	// wg: WaitGroup to signal when the source has fully stopped
	Start(ctx context.Context, outputChan chan<- map[string][]models.MPriceBar, wg *sync.WaitGroup) error

	// -----------------------------------------------------------------------------

	// Stop terminates the data fetching process
	Stop() error
}
