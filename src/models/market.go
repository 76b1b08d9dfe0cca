package models

// MFormattedValue is Yahoo's {"raw": x, "fmt": "..."} pair.
type MFormattedValue struct {
	Raw     float64 `json:"raw"`
	Fmt     string  `json:"fmt,omitempty"`
	LongFmt string  `json:"long_fmt,omitempty"`
}

// -----------------------------------------------------------------------------
// Market status
// -----------------------------------------------------------------------------

type MMarketTimeDuration struct {
	Hrs  string `json:"hrs"`
	Mins string `json:"mins"`
}

type MMarketTimeZone struct {
	DST       string `json:"dst"`
	GMTOffset string `json:"gmt_offset"`
	ShortName string `json:"short_name"`
	Text      string `json:"text"`
}

type MMarketStatus struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	Status           string                `json:"status"`
	YfitMarketID     string                `json:"yfit_market_id"`
	YfitMarketStatus string                `json:"yfit_market_status"`
	Open             string                `json:"open"`
	Close            string                `json:"close"`
	Message          string                `json:"message"`
	Time             string                `json:"time"`
	Duration         []MMarketTimeDuration `json:"duration,omitempty"`
	Timezone         []MMarketTimeZone     `json:"timezone,omitempty"`
}

// -----------------------------------------------------------------------------
// Market summary
// -----------------------------------------------------------------------------

type MMarketSummary struct {
	Symbol                     string          `json:"symbol"`
	ShortName                  string          `json:"short_name"`
	FullExchangeName           string          `json:"full_exchange_name"`
	Exchange                   string          `json:"exchange"`
	Market                     string          `json:"market"`
	Region                     string          `json:"region"`
	QuoteType                  string          `json:"quote_type"`
	Currency                   string          `json:"currency"`
	MarketState                string          `json:"market_state"`
	ExchangeTimezoneName       string          `json:"exchange_timezone_name"`
	GMTOffsetMilliseconds      int64           `json:"gmt_offset_milliseconds"`
	ExchangeDataDelayedBy      int64           `json:"exchange_data_delayed_by"`
	PriceHint                  int64           `json:"price_hint"`
	Tradeable                  bool            `json:"tradeable"`
	Triggerable                bool            `json:"triggerable"`
	HasPrePostMarketData       bool            `json:"has_pre_post_market_data"`
	RegularMarketTime          MFormattedValue `json:"regular_market_time"`
	RegularMarketPrice         MFormattedValue `json:"regular_market_price"`
	RegularMarketChange        MFormattedValue `json:"regular_market_change"`
	RegularMarketChangePercent MFormattedValue `json:"regular_market_change_percent"`
	RegularMarketPreviousClose MFormattedValue `json:"regular_market_previous_close"`
}

// -----------------------------------------------------------------------------
// Ticker lookup
// -----------------------------------------------------------------------------

type MLookupDocument struct {
	Symbol                     string  `json:"symbol"`
	ShortName                  string  `json:"short_name"`
	Exchange                   string  `json:"exchange"`
	QuoteType                  string  `json:"quote_type"`
	IndustryName               string  `json:"industry_name,omitempty"`
	IndustryLink               string  `json:"industry_link,omitempty"`
	Rank                       int64   `json:"rank"`
	RegularMarketPrice         float64 `json:"regular_market_price"`
	RegularMarketChange        float64 `json:"regular_market_change"`
	RegularMarketPercentChange float64 `json:"regular_market_percent_change"`
}

type MLookupResult struct {
	Start        int64             `json:"start"`
	Count        int64             `json:"count"`
	Total        int64             `json:"total"`
	Documents    []MLookupDocument `json:"documents"`
	LookupTotals map[string]int64  `json:"lookup_totals,omitempty"`
}

// -----------------------------------------------------------------------------
// Financial time series
// -----------------------------------------------------------------------------

type MSegmentData struct {
	SegmentName      string  `json:"segment_name"`
	SegmentType      string  `json:"segment_type"`
	DataValue        float64 `json:"data_value"`
	IsPrimarySegment bool    `json:"is_primary_segment"`
}

type MFinancialDataPoint struct {
	DataID         int64           `json:"data_id"`
	AsOfDate       string          `json:"as_of_date"`
	PeriodType     string          `json:"period_type"`
	CurrencyCode   string          `json:"currency_code"`
	ReportedValue  MFormattedValue `json:"reported_value"`
	GeographicData []MSegmentData  `json:"geographic_segment_data,omitempty"`
	BusinessData   []MSegmentData  `json:"business_segment_data,omitempty"`
}

// MFinancialSummary holds every requested series keyed by its unprefixed
// name (e.g. "TotalRevenue").
type MFinancialSummary struct {
	Symbol     string                           `json:"symbol"`
	Statement  string                           `json:"statement"`
	Timescale  string                           `json:"timescale"`
	Timestamps []int64                          `json:"timestamps"`
	Series     map[string][]MFinancialDataPoint `json:"series"`
}
