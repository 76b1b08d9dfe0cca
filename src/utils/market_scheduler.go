package utils

import (
	"sync"
	"time"

	"yfinance-observer/src/logger"
)

// MarketScheduler tracks the calendars behind a symbol list.
type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	now       func() time.Time
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(symbols []string, l *logger.Logger) *MarketScheduler {
	if l == nil {
		l = logger.NewLogger(nil, "MarketScheduler")
	}
	ms := &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
		now:       time.Now,
	}
	ms.MapSymbolsToCalendars(symbols)
	return ms
}

// -----------------------------------------------------------------------------

// MapSymbolsToCalendars replaces the tracked set. Calendars are shared per
// MIC.
func (ms *MarketScheduler) MapSymbolsToCalendars(symbols []string) {
	byMIC := make(map[string]*TradingCalendar)
	calendars := make(map[string]*TradingCalendar, len(symbols))

	for _, symbol := range symbols {
		mic := MICForSymbol(symbol)
		cal, ok := byMIC[mic]
		if !ok {
			cal = GetCalendar(symbol)
			byMIC[mic] = cal
		}
		calendars[symbol] = cal
	}

	ms.mu.Lock()
	ms.Calendars = calendars
	ms.mu.Unlock()

	ms.Logger.Info("Mapped %d symbols to %d unique calendars", len(symbols), len(byMIC))
}

// UpdateSymbols updates the scheduler with a new list of symbols
func (ms *MarketScheduler) UpdateSymbols(symbols []string) {
	ms.MapSymbolsToCalendars(symbols)
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if any tracked market is open now.
func (ms *MarketScheduler) AnyMarketOpen() bool {
	return ms.AnyMarketOpenAt(ms.now().UTC())
}

// AnyMarketOpenAt is AnyMarketOpen for an arbitrary instant. No tracked
// symbols means closed.
func (ms *MarketScheduler) AnyMarketOpenAt(t time.Time) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	seen := make(map[*TradingCalendar]bool)
	for _, cal := range ms.Calendars {
		if seen[cal] {
			continue
		}
		seen[cal] = true
		if cal.IsOpenOnMinute(t) {
			return true
		}
	}
	return false
}
