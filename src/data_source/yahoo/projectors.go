package yahoo

import (
	"fmt"
	"sort"
	"time"

	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"
	"yfinance-observer/src/network"
)

// QuoteSummary keeps each requested module as an untyped document.
type QuoteSummary struct {
	Symbol  string
	Modules map[string]*network.Document
}

// Module returns the named module or an absent document.
func (q QuoteSummary) Module(name string) *network.Document {
	if d, ok := q.Modules[name]; ok {
		return d
	}
	return &network.Document{}
}

// -----------------------------------------------------------------------------

// ProjectQuoteSummary reads quoteSummary.result[0].
func ProjectQuoteSummary(symbol string) func(*network.Document) (QuoteSummary, error) {
	return func(result *network.Document) (QuoteSummary, error) {
		first := result.Index(0)
		if !first.Exists() || first.IsNull() {
			return QuoteSummary{}, fmt.Errorf("empty quote summary for %s", symbol)
		}

		out := QuoteSummary{Symbol: symbol, Modules: make(map[string]*network.Document)}
		for _, name := range first.Keys() {
			out.Modules[name] = first.Get(name)
		}
		return out, nil
	}
}

// -----------------------------------------------------------------------------

type chartRow struct {
	timestamp int64
	open      float64
	high      float64
	low       float64
	close     float64
	adjClose  float64
	volume    float64
}

// ProjectChart turns chart.result[0] into cleaned, time ordered bars.
// Rows with any null OHLCV value, a non-positive close or a negative volume
// are skipped. A response without timestamps yields no bars.
func ProjectChart(symbol string, log *logger.Logger, now func() time.Time) func(*network.Document) (models.MStockHistory, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if now == nil {
		now = time.Now
	}

	return func(result *network.Document) (models.MStockHistory, error) {
		res := result.Index(0)
		if !res.Exists() {
			return models.MStockHistory{}, fmt.Errorf("no chart result for %s", symbol)
		}

		meta := res.Get("meta")
		history := models.MStockHistory{Meta: models.MChartMeta{
			Symbol:           meta.Get("symbol").String(),
			Currency:         meta.Get("currency").String(),
			ExchangeName:     meta.Get("exchangeName").String(),
			InstrumentType:   meta.Get("instrumentType").String(),
			ExchangeTimezone: meta.Get("exchangeTimezoneName").String(),
			DataGranularity:  meta.Get("dataGranularity").String(),
			Range:            meta.Get("range").String(),
		}}
		history.Meta.RegularMarketPrice, _ = meta.Get("regularMarketPrice").Float()
		history.Meta.ChartPreviousClose, _ = meta.Get("chartPreviousClose").Float()
		if history.Meta.Symbol == "" {
			history.Meta.Symbol = symbol
		}

		timestamps := res.Get("timestamp").Array()
		if len(timestamps) == 0 {
			log.Info("No bars for %s", symbol)
			return history, nil
		}

		quote := res.Get("indicators", "quote").Index(0)
		if !quote.Exists() {
			return history, fmt.Errorf("no quote data in response for %s", symbol)
		}

		open, high, low := quote.Get("open").Array(), quote.Get("high").Array(), quote.Get("low").Array()
		closes, volume := quote.Get("close").Array(), quote.Get("volume").Array()
		n := len(timestamps)
		if len(open) != n || len(high) != n || len(low) != n || len(closes) != n || len(volume) != n {
			log.Warning("Data alignment error for %s: mismatched array lengths", symbol)
			return history, fmt.Errorf("data alignment error for %s", symbol)
		}

		adj := res.Get("indicators", "adjclose").Index(0).Get("adjclose").Array()
		if len(adj) != n {
			adj = nil
		}

		rows := make([]chartRow, 0, n)
		for i := 0; i < n; i++ {
			ts, okT := timestamps[i].Int()
			o, okO := open[i].Float()
			h, okH := high[i].Float()
			l, okL := low[i].Float()
			c, okC := closes[i].Float()
			v, okV := volume[i].Float()
			if !(okT && okO && okH && okL && okC && okV) {
				log.Debug("Null OHLCV for %s at index %d", symbol, i)
				continue
			}
			if c <= 0 || v < 0 {
				log.Debug("Skipping invalid point for %s: close=%f, volume=%f", symbol, c, v)
				continue
			}

			row := chartRow{timestamp: ts, open: o, high: h, low: l, close: c, volume: v}
			if adj != nil {
				row.adjClose, _ = adj[i].Float()
			}
			rows = append(rows, row)
		}

		sort.SliceStable(rows, func(i, j int) bool { return rows[i].timestamp < rows[j].timestamp })
		if len(rows) == 0 {
			return history, nil
		}

		prevClose := history.Meta.ChartPreviousClose
		if prevClose <= 0 {
			prevClose = rows[0].close
		}
		prevVolume := rows[0].volume

		fetched := now().UTC()
		history.Bars = make([]models.MPriceBar, 0, len(rows))
		for _, r := range rows {
			bar := models.MPriceBar{
				Symbol:    symbol,
				Timestamp: r.timestamp,
				Open:      r.open,
				High:      r.high,
				Low:       r.low,
				Close:     r.close,
				AdjClose:  r.adjClose,
				Volume:    r.volume,
				FetchedAt: fetched.Unix(),
				CreatedAt: fetched,
			}
			if prevClose > 0 {
				bar.PricePercentChange = (r.close - prevClose) / prevClose
			}
			if prevVolume > 0 {
				bar.VolumePercentChange = (r.volume - prevVolume) / prevVolume
			}
			history.Bars = append(history.Bars, bar)
			prevClose, prevVolume = r.close, r.volume
		}

		log.Debug("Projected %s: %d bars [%d -> %d]", symbol, len(history.Bars),
			history.Bars[0].Timestamp, history.Bars[len(history.Bars)-1].Timestamp)
		return history, nil
	}
}

// -----------------------------------------------------------------------------

// ProjectMarketStatus flattens finance.marketTimes[].marketTime[].
func ProjectMarketStatus(doc *network.Document) ([]models.MMarketStatus, error) {
	finance := doc.Get("finance")
	if !finance.Exists() || finance.IsNull() {
		return nil, fmt.Errorf("response has no finance node")
	}
	if apiErr := finance.Get("error"); !apiErr.IsNull() {
		return nil, fmt.Errorf("markettime error %s: %s", apiErr.Get("code").String(), apiErr.Get("description").String())
	}

	var out []models.MMarketStatus
	for _, group := range finance.Get("marketTimes").Array() {
		for _, t := range group.Get("marketTime").Array() {
			status := models.MMarketStatus{
				ID:               t.Get("id").String(),
				Name:             t.Get("name").String(),
				Status:           t.Get("status").String(),
				YfitMarketID:     t.Get("yfit_market_id").String(),
				YfitMarketStatus: t.Get("yfit_market_status").String(),
				Open:             t.Get("open").String(),
				Close:            t.Get("close").String(),
				Message:          t.Get("message").String(),
				Time:             t.Get("time").String(),
			}
			for _, d := range t.Get("duration").Array() {
				status.Duration = append(status.Duration, models.MMarketTimeDuration{
					Hrs:  d.Get("hrs").String(),
					Mins: d.Get("mins").String(),
				})
			}
			for _, z := range t.Get("timezone").Array() {
				status.Timezone = append(status.Timezone, models.MMarketTimeZone{
					DST:       z.Get("dst").String(),
					GMTOffset: z.Get("gmtoffset").String(),
					ShortName: z.Get("short").String(),
					Text:      z.Get("$text").String(),
				})
			}
			out = append(out, status)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// ProjectMarketSummary reads marketSummaryResponse.result[].
func ProjectMarketSummary(result *network.Document) ([]models.MMarketSummary, error) {
	rows := result.Array()
	out := make([]models.MMarketSummary, 0, len(rows))
	for _, r := range rows {
		s := models.MMarketSummary{
			Symbol:                     r.Get("symbol").String(),
			ShortName:                  r.Get("shortName").String(),
			FullExchangeName:           r.Get("fullExchangeName").String(),
			Exchange:                   r.Get("exchange").String(),
			Market:                     r.Get("market").String(),
			Region:                     r.Get("region").String(),
			QuoteType:                  r.Get("quoteType").String(),
			Currency:                   r.Get("currency").String(),
			MarketState:                r.Get("marketState").String(),
			ExchangeTimezoneName:       r.Get("exchangeTimezoneName").String(),
			Tradeable:                  r.Get("tradeable").Bool(),
			Triggerable:                r.Get("triggerable").Bool(),
			HasPrePostMarketData:       r.Get("hasPrePostMarketData").Bool(),
			RegularMarketTime:          r.Get("regularMarketTime").Formatted(),
			RegularMarketPrice:         r.Get("regularMarketPrice").Formatted(),
			RegularMarketChange:        r.Get("regularMarketChange").Formatted(),
			RegularMarketChangePercent: r.Get("regularMarketChangePercent").Formatted(),
			RegularMarketPreviousClose: r.Get("regularMarketPreviousClose").Formatted(),
		}
		s.GMTOffsetMilliseconds, _ = r.Get("gmtOffSetMilliseconds").Int()
		s.ExchangeDataDelayedBy, _ = r.Get("exchangeDataDelayedBy").Int()
		s.PriceHint, _ = r.Get("priceHint").Int()
		out = append(out, s)
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// ProjectLookup reads finance.result[0].
func ProjectLookup(result *network.Document) (models.MLookupResult, error) {
	first := result.Index(0)
	if !first.Exists() {
		return models.MLookupResult{}, fmt.Errorf("empty lookup result")
	}

	var out models.MLookupResult
	out.Start, _ = first.Get("start").Int()
	out.Count, _ = first.Get("count").Int()
	out.Total, _ = first.Get("total").Int()

	for _, d := range first.Get("documents").Array() {
		doc := models.MLookupDocument{
			Symbol:       d.Get("symbol").String(),
			ShortName:    d.Get("shortName").String(),
			Exchange:     d.Get("exchange").String(),
			QuoteType:    d.Get("quoteType").String(),
			IndustryName: d.Get("industryName").String(),
			IndustryLink: d.Get("industryLink").String(),
		}
		doc.Rank, _ = d.Get("rank").Int()
		doc.RegularMarketPrice, _ = d.Get("regularMarketPrice").RawFloat()
		doc.RegularMarketChange, _ = d.Get("regularMarketChange").RawFloat()
		doc.RegularMarketPercentChange, _ = d.Get("regularMarketPercentChange").RawFloat()
		out.Documents = append(out.Documents, doc)
	}

	if totals := first.Get("lookupTotals"); totals.Exists() {
		out.LookupTotals = make(map[string]int64)
		for _, k := range totals.Keys() {
			out.LookupTotals[k], _ = totals.Get(k).Int()
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// ProjectFinancials collects every <timescale><Key> series of statement from
// timeseries.result[]. Missing series are left out of Series.
func ProjectFinancials(symbol string, statement Statement, timescale Timescale) func(*network.Document) (models.MFinancialSummary, error) {
	return func(result *network.Document) (models.MFinancialSummary, error) {
		out := models.MFinancialSummary{
			Symbol:    symbol,
			Statement: string(statement),
			Timescale: string(timescale),
			Series:    make(map[string][]models.MFinancialDataPoint),
		}

		elements := result.Array()
		for _, el := range elements {
			if ts := el.Get("timestamp"); ts.Exists() {
				for _, t := range ts.Array() {
					v, _ := t.Int()
					out.Timestamps = append(out.Timestamps, v)
				}
				break
			}
		}

		for _, key := range statementKeys[statement] {
			field := string(timescale) + key
			for _, el := range elements {
				series := el.Get(field)
				if !series.Exists() {
					continue
				}
				points := make([]models.MFinancialDataPoint, 0, series.Len())
				for _, p := range series.Array() {
					if p.IsNull() {
						continue
					}
					points = append(points, projectDataPoint(p))
				}
				out.Series[key] = points
				break
			}
		}
		return out, nil
	}
}

func projectDataPoint(p *network.Document) models.MFinancialDataPoint {
	dp := models.MFinancialDataPoint{
		AsOfDate:      p.Get("asOfDate").String(),
		PeriodType:    p.Get("periodType").String(),
		CurrencyCode:  p.Get("currencyCode").String(),
		ReportedValue: p.Get("reportedValue").Formatted(),
	}
	dp.DataID, _ = p.Get("dataId").Int()
	dp.GeographicData = projectSegments(p.Get("geographicSegmentData"))
	dp.BusinessData = projectSegments(p.Get("businessSegmentData"))
	return dp
}

func projectSegments(d *network.Document) []models.MSegmentData {
	var out []models.MSegmentData
	for _, s := range d.Array() {
		seg := models.MSegmentData{
			SegmentName:      s.Get("segmentName").String(),
			SegmentType:      s.Get("segmentType").String(),
			IsPrimarySegment: s.Get("isPrimarySegment").Bool(),
		}
		seg.DataValue, _ = s.Get("dataValue").Float()
		out = append(out, seg)
	}
	return out
}
