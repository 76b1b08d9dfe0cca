package models

import "time"

// MPriceBar is one cleaned chart row.
type MPriceBar struct {
	Symbol              string    `json:"symbol"`
	Timestamp           int64     `json:"timestamp"`
	Open                float64   `json:"open"`
	High                float64   `json:"high"`
	Low                 float64   `json:"low"`
	Close               float64   `json:"close"`
	AdjClose            float64   `json:"adj_close,omitempty"`
	Volume              float64   `json:"volume"`
	PricePercentChange  float64   `json:"price_percent_change"`
	VolumePercentChange float64   `json:"volume_percent_change"`
	FetchedAt           int64     `json:"fetched_at"`
	CreatedAt           time.Time `json:"created_at"`
}

// MChartMeta is the subset of chart metadata kept alongside the bars.
type MChartMeta struct {
	Symbol             string  `json:"symbol"`
	Currency           string  `json:"currency"`
	ExchangeName       string  `json:"exchange_name"`
	InstrumentType     string  `json:"instrument_type"`
	ExchangeTimezone   string  `json:"exchange_timezone"`
	RegularMarketPrice float64 `json:"regular_market_price"`
	ChartPreviousClose float64 `json:"chart_previous_close"`
	DataGranularity    string  `json:"data_granularity"`
	Range              string  `json:"range"`
}

// MStockHistory is the projection of a chart response.
type MStockHistory struct {
	Meta MChartMeta  `json:"meta"`
	Bars []MPriceBar `json:"bars"`
}
