package yahoo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"
	"yfinance-observer/src/utils"

	"golang.org/x/sync/errgroup"
)

// HistoryFetcher is the part of Client the poller needs.
type HistoryFetcher interface {
	History(ctx context.Context, q HistoryQuery) (models.MStockHistory, error)
}

// ChartSource polls chart bars for a symbol list and pushes only bars newer
// than the last one seen per symbol.
type ChartSource struct {
	name             string
	Config           models.MPollingConfig
	Fetcher          HistoryFetcher
	MarketScheduler  *utils.MarketScheduler
	Logger           *logger.Logger
	ClosedPause      time.Duration
	symbols          atomic.Value // []string
	lastTimestamps   map[string]int64
	lastTimestampsMu sync.Mutex
	cancelFunc       context.CancelFunc
	isRunning        atomic.Bool
	now              func() time.Time
	mu               sync.Mutex
}

// -----------------------------------------------------------------------------

func NewChartSource(name string, cfg models.MPollingConfig, fetcher HistoryFetcher, log *logger.Logger) *ChartSource {
	if log == nil {
		log = logger.NewLogger(nil, "ChartSource-"+name)
	}
	s := &ChartSource{
		name:            name,
		Config:          cfg,
		Fetcher:         fetcher,
		MarketScheduler: utils.NewMarketScheduler(cfg.Symbols, log.Named("scheduler")),
		Logger:          log,
		ClosedPause:     60 * time.Minute,
		lastTimestamps:  make(map[string]int64),
		now:             time.Now,
	}
	s.symbols.Store(append([]string(nil), cfg.Symbols...))
	return s
}

func (s *ChartSource) Name() string {
	return s.name
}

// -----------------------------------------------------------------------------

// FetchInitialData loads the retention window and seeds the per-symbol
// high-water marks.
func (s *ChartSource) FetchInitialData(ctx context.Context) (map[string][]models.MPriceBar, error) {
	end := s.now()
	start := end.AddDate(0, 0, -s.Config.DataRetentionDays)

	data, err := s.fetchBatch(ctx, s.getSymbols(), func(symbol string) HistoryQuery {
		return HistoryQuery{Symbol: symbol, Interval: Interval(s.Config.Interval), Start: start, End: end}
	})
	if err != nil {
		return nil, err
	}

	s.lastTimestampsMu.Lock()
	for symbol, bars := range data {
		if n := len(bars); n > 0 && bars[n-1].Timestamp > s.lastTimestamps[symbol] {
			s.lastTimestamps[symbol] = bars[n-1].Timestamp
		}
	}
	s.lastTimestampsMu.Unlock()

	return data, nil
}

// -----------------------------------------------------------------------------

// FetchUpdateData fetches the current day and drops bars already seen.
func (s *ChartSource) FetchUpdateData(ctx context.Context) (map[string][]models.MPriceBar, error) {
	data, err := s.fetchBatch(ctx, s.getSymbols(), func(symbol string) HistoryQuery {
		return HistoryQuery{Symbol: symbol, Range: Range1D, Interval: Interval(s.Config.Interval)}
	})
	if err != nil {
		return nil, err
	}

	s.lastTimestampsMu.Lock()
	defer s.lastTimestampsMu.Unlock()

	fresh := make(map[string][]models.MPriceBar)
	for symbol, bars := range data {
		lastTs := s.lastTimestamps[symbol]
		var newBars []models.MPriceBar
		for _, b := range bars {
			if b.Timestamp > lastTs {
				newBars = append(newBars, b)
			}
		}
		if len(newBars) == 0 {
			continue
		}
		fresh[symbol] = newBars
		s.lastTimestamps[symbol] = newBars[len(newBars)-1].Timestamp
	}
	return fresh, nil
}

// -----------------------------------------------------------------------------

// fetchBatch fetches symbols concurrently, bounded by ConcurrentRequests.
// Individual failures are logged; the batch fails only if every symbol
// failed.
func (s *ChartSource) fetchBatch(ctx context.Context, symbols []string, query func(string) HistoryQuery) (map[string][]models.MPriceBar, error) {
	results := make(map[string][]models.MPriceBar)
	if len(symbols) == 0 {
		return results, nil
	}

	var (
		mu       sync.Mutex
		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.Config.ConcurrentRequests > 0 {
		g.SetLimit(s.Config.ConcurrentRequests)
	}

	for _, symbol := range symbols {
		g.Go(func() error {
			history, err := s.Fetcher.History(gctx, query(symbol))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.Logger.Warning("Error fetching symbol %s: %v", symbol, err)
				failures = append(failures, err)
				return nil
			}
			if len(history.Bars) > 0 {
				results[symbol] = history.Bars
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.Logger.Info("Fetched %d/%d symbols successfully", len(symbols)-len(failures), len(symbols))
	if len(failures) == len(symbols) {
		return nil, fmt.Errorf("all %d fetches failed: %w", len(symbols), failures[0])
	}
	return results, nil
}

// -----------------------------------------------------------------------------

// Start begins the polling loop.
func (s *ChartSource) Start(parentCtx context.Context, outputChan chan<- map[string][]models.MPriceBar, wg *sync.WaitGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning.Load() {
		return fmt.Errorf("source %s is already running", s.Name())
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.cancelFunc = cancel
	s.isRunning.Store(true)

	wg.Add(1)
	go s.runLoop(ctx, outputChan, wg)
	s.Logger.Info("Started ChartSource: %s", s.Name())
	return nil
}

// -----------------------------------------------------------------------------

// Stop signals the run loop to exit
func (s *ChartSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning.Load() {
		return fmt.Errorf("source %s is not running", s.Name())
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.isRunning.Store(false)
	s.Logger.Info("Stopped ChartSource: %s", s.Name())
	return nil
}

// -----------------------------------------------------------------------------

func (s *ChartSource) runLoop(ctx context.Context, out chan<- map[string][]models.MPriceBar, wg *sync.WaitGroup) {
	defer wg.Done()
	defer s.isRunning.Store(false)

	interval := time.Duration(s.Config.UpdateIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !s.MarketScheduler.AnyMarketOpen() {
			s.Logger.Info("All markets are closed. Pausing for %s", s.ClosedPause)
			select {
			case <-time.After(s.ClosedPause):
				continue
			case <-ctx.Done():
				return
			}
		}

		data, err := s.FetchUpdateData(ctx)
		if err != nil {
			s.Logger.Warning("Error fetching updates: %v", err)
			continue
		}
		if len(data) == 0 {
			continue
		}

		select {
		case out <- data:
		case <-ctx.Done():
			return
		}
	}
}

// -----------------------------------------------------------------------------

func (s *ChartSource) UpdateSymbols(symbols []string) error {
	s.symbols.Store(append([]string(nil), symbols...))
	s.MarketScheduler.UpdateSymbols(symbols)
	s.Logger.Info("Updated symbol list. New count: %d", len(symbols))
	return nil
}

func (s *ChartSource) getSymbols() []string {
	return s.symbols.Load().([]string)
}
