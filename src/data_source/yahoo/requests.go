package yahoo

import (
	"strconv"
	"strings"
	"time"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/network"
)

// -----------------------------------------------------------------------------
// Endpoints
// -----------------------------------------------------------------------------

const (
	DefaultQuery1Host = "https://query1.finance.yahoo.com"
	DefaultQuery2Host = "https://query2.finance.yahoo.com"

	quoteSummaryPath  = "/v10/finance/quoteSummary"
	chartPath         = "/v8/finance/chart"
	marketTimePath    = "/v6/finance/markettime"
	marketSummaryPath = "/v6/finance/quote/marketSummary"
	lookupPath        = "/v1/finance/lookup"
	timeseriesPath    = "/ws/fundamentals-timeseries/v1/finance/timeseries"
)

// Endpoints holds the two API hosts. Tests point both at one httptest server.
type Endpoints struct {
	Query1 string
	Query2 string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{Query1: DefaultQuery1Host, Query2: DefaultQuery2Host}
}

func (e Endpoints) url(host, path string) string {
	return strings.TrimRight(host, "/") + path
}

// -----------------------------------------------------------------------------
// Enumerations
// -----------------------------------------------------------------------------

type Region string

const (
	RegionEurope           Region = "EUROPE"
	RegionAsia             Region = "ASIA"
	RegionUS               Region = "US"
	RegionGB               Region = "GB"
	RegionRates            Region = "RATES"
	RegionCommodities      Region = "COMMODITIES"
	RegionCurrencies       Region = "CURRENCIES"
	RegionCryptocurrencies Region = "CRYPTOCURRENCIES"
)

var regions = []Region{
	RegionEurope, RegionAsia, RegionUS, RegionGB,
	RegionRates, RegionCommodities, RegionCurrencies, RegionCryptocurrencies,
}

// ParseRegion accepts any case.
func ParseRegion(s string) (Region, error) {
	for _, r := range regions {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return "", helpers.NewIllegalArgumentError("unknown region %q", s)
}

type Range string

const (
	Range1D  Range = "1d"
	Range5D  Range = "5d"
	Range1Mo Range = "1mo"
	Range3Mo Range = "3mo"
	Range6Mo Range = "6mo"
	Range1Y  Range = "1y"
	Range2Y  Range = "2y"
	Range5Y  Range = "5y"
	Range10Y Range = "10y"
	RangeYTD Range = "ytd"
	RangeMax Range = "max"
)

const day = 24 * time.Hour

var rangeSpans = map[Range]time.Duration{
	Range1D:  day,
	Range5D:  5 * day,
	Range1Mo: 30 * day,
	Range3Mo: 90 * day,
	Range6Mo: 180 * day,
	Range1Y:  365 * day,
	Range2Y:  2 * 365 * day,
	Range5Y:  5 * 365 * day,
	Range10Y: 10 * 365 * day,
	RangeMax: 0,
}

// Span is the length of r measured back from now. RangeYTD depends on now;
// RangeMax is zero.
func (r Range) Span(now time.Time) time.Duration {
	if r == RangeYTD {
		now = now.UTC()
		return now.Sub(time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC))
	}
	return rangeSpans[r]
}

func ParseRange(s string) (Range, error) {
	r := Range(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rangeSpans[r]; ok || r == RangeYTD {
		return r, nil
	}
	return "", helpers.NewIllegalArgumentError("unknown range %q", s)
}

type Interval string

const (
	Interval1m  Interval = "1m"
	Interval2m  Interval = "2m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval60m Interval = "60m"
	Interval90m Interval = "90m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval5d  Interval = "5d"
	Interval1wk Interval = "1wk"
	Interval1mo Interval = "1mo"
	Interval3mo Interval = "3mo"
)

var intervals = map[Interval]bool{
	Interval1m: true, Interval2m: true, Interval5m: true, Interval15m: true,
	Interval30m: true, Interval60m: true, Interval90m: true, Interval1h: true,
	Interval4h: true, Interval1d: true, Interval5d: true, Interval1wk: true,
	Interval1mo: true, Interval3mo: true,
}

func ParseInterval(s string) (Interval, error) {
	i := Interval(strings.ToLower(strings.TrimSpace(s)))
	if intervals[i] {
		return i, nil
	}
	return "", helpers.NewIllegalArgumentError("unknown interval %q", s)
}

type LookupType string

const (
	LookupAll            LookupType = "all"
	LookupEquity         LookupType = "equity"
	LookupMutualFund     LookupType = "mutualfund"
	LookupETF            LookupType = "etf"
	LookupIndex          LookupType = "index"
	LookupFuture         LookupType = "future"
	LookupCurrency       LookupType = "currency"
	LookupCryptocurrency LookupType = "cryptocurrency"
)

func ParseLookupType(s string) (LookupType, error) {
	switch t := LookupType(strings.ToLower(strings.TrimSpace(s))); t {
	case LookupAll, LookupEquity, LookupMutualFund, LookupETF, LookupIndex,
		LookupFuture, LookupCurrency, LookupCryptocurrency:
		return t, nil
	case "":
		return LookupAll, nil
	}
	return "", helpers.NewIllegalArgumentError("unknown lookup type %q", s)
}

// -----------------------------------------------------------------------------
// Quote summary
// -----------------------------------------------------------------------------

// DefaultModules are requested when the caller names none.
var DefaultModules = []string{
	"financialData",
	"quoteType",
	"defaultKeyStatistics",
	"assetProfile",
	"summaryDetail",
}

func QuoteSummaryRequest(ep Endpoints, symbol string, modules []string) network.RequestDescriptor {
	if len(modules) == 0 {
		modules = DefaultModules
	}
	return network.RequestDescriptor{
		BaseURL:        ep.url(ep.Query2, quoteSummaryPath),
		Symbol:         symbol,
		RequiresSymbol: true,
		Params:         []network.Param{{Key: "modules", Value: strings.Join(modules, ",")}},
		NeedsAuth:      true,
		ExtractResult:  "quoteSummary",
	}
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

// HistoryQuery selects a chart window. With neither Start nor End set the
// server resolves Range. With one of them set, the other is derived from
// Range. With both set, Range is ignored.
type HistoryQuery struct {
	Symbol   string
	Range    Range
	Interval Interval
	Start    time.Time
	End      time.Time
}

func HistoryRequest(ep Endpoints, q HistoryQuery, now time.Time) network.RequestDescriptor {
	interval := q.Interval
	if interval == "" {
		interval = Interval1d
	}
	rng := q.Range
	if rng == "" && q.Start.IsZero() && q.End.IsZero() {
		rng = Range1Mo
	}

	start, end := q.Start, q.End
	switch {
	case !start.IsZero() && end.IsZero() && rng != "":
		end = start.Add(rng.Span(now))
	case start.IsZero() && !end.IsZero() && rng != "":
		start = end.Add(-rng.Span(now))
	}

	var params []network.Param
	if start.IsZero() && end.IsZero() {
		params = append(params, network.Param{Key: "range", Value: string(rng)})
	}
	params = append(params, network.Param{Key: "interval", Value: string(interval)})
	if !start.IsZero() {
		params = append(params, network.Param{Key: "period1", Value: strconv.FormatInt(start.Unix(), 10)})
	}
	if !end.IsZero() {
		params = append(params, network.Param{Key: "period2", Value: strconv.FormatInt(end.Unix(), 10)})
	}

	return network.RequestDescriptor{
		BaseURL:        ep.url(ep.Query2, chartPath),
		Symbol:         q.Symbol,
		RequiresSymbol: true,
		Params:         params,
		NeedsAuth:      true,
		ExtractResult:  "chart",
	}
}

// -----------------------------------------------------------------------------
// Market status and summary
// -----------------------------------------------------------------------------

func regionParams(region Region) []network.Param {
	return []network.Param{
		{Key: "formatted", Value: "true"},
		{Key: "lang", Value: "en-US"},
		{Key: "region", Value: string(region)},
	}
}

func MarketStatusRequest(ep Endpoints, region Region) network.RequestDescriptor {
	return network.RequestDescriptor{
		BaseURL: ep.url(ep.Query1, marketTimePath),
		Params:  regionParams(region),
	}
}

func MarketSummaryRequest(ep Endpoints, region Region) network.RequestDescriptor {
	return network.RequestDescriptor{
		BaseURL:       ep.url(ep.Query1, marketSummaryPath),
		Params:        regionParams(region),
		ExtractResult: "marketSummaryResponse",
	}
}

// -----------------------------------------------------------------------------
// Lookup
// -----------------------------------------------------------------------------

func LookupRequest(ep Endpoints, query string, kind LookupType) network.RequestDescriptor {
	if kind == "" {
		kind = LookupAll
	}
	return network.RequestDescriptor{
		BaseURL: ep.url(ep.Query1, lookupPath),
		Params: []network.Param{
			{Key: "query", Value: query},
			{Key: "type", Value: string(kind)},
			{Key: "formatted", Value: "false"},
			{Key: "fetchPricingData", Value: "true"},
		},
		ExtractResult: "finance",
	}
}

// -----------------------------------------------------------------------------
// Financials
// -----------------------------------------------------------------------------

// FinancialsRequest fails for the trailing balance sheet, which the service
// does not publish.
func FinancialsRequest(ep Endpoints, symbol string, statement Statement, timescale Timescale, now time.Time) (network.RequestDescriptor, error) {
	keys, ok := statementKeys[statement]
	if !ok {
		return network.RequestDescriptor{}, helpers.NewIllegalArgumentError("unknown statement %q", statement)
	}
	if !timescale.valid() {
		return network.RequestDescriptor{}, helpers.NewIllegalArgumentError("unknown timescale %q", timescale)
	}
	if timescale == TimescaleTrailing && statement == StatementBalanceSheet {
		return network.RequestDescriptor{}, helpers.NewIllegalArgumentError("timescale %q is only available for cash flow or income data", timescale)
	}
	if strings.TrimSpace(symbol) == "" {
		return network.RequestDescriptor{}, helpers.NewIllegalArgumentError("symbol is required")
	}

	types := make([]string, len(keys))
	for i, k := range keys {
		types[i] = string(timescale) + k
	}

	return network.RequestDescriptor{
		BaseURL: ep.url(ep.Query2, timeseriesPath),
		Params: []network.Param{
			{Key: "symbol", Value: strings.TrimSpace(symbol)},
			{Key: "period1", Value: strconv.FormatInt(financialsEpoch.Unix(), 10)},
			{Key: "period2", Value: strconv.FormatInt(now.Unix(), 10)},
			{Key: "type", Value: strings.Join(types, ",")},
		},
		ExtractResult: "timeseries",
	}, nil
}
