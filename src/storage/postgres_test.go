package storage

import (
	"testing"

	"yfinance-observer/src/config"
	"yfinance-observer/src/logger"

	"github.com/stretchr/testify/assert"
)

func TestSchemaName(t *testing.T) {
	assert.Equal(t, "yfinance_observer", SchemaName("/usr/local/bin/yfinance-observer"))
	assert.Equal(t, "main", SchemaName("/opt/app/Main.EXE"))
	assert.Equal(t, "yfinance", SchemaName("---"))
}

func TestParseSymbolRef(t *testing.T) {
	ref, ok := ParseSymbolRef("market.watchlist.ticker")
	assert.True(t, ok)
	assert.Equal(t, SymbolEntry{
		Symbol: "market.watchlist.ticker", Kind: SymbolKindTableRef,
		RefSchema: "market", RefTable: "watchlist", RefField: "ticker",
	}, ref)

	for _, s := range []string{"AAPL", "VOD.L", "BRK.B", "^GSPC", "a.b.c.d"} {
		_, ok := ParseSymbolRef(s)
		assert.False(t, ok, s)
	}
}

func TestPostgresDialectQueries(t *testing.T) {
	db := newPostgresDB(config.Default().MConfig, logger.NewNop(), "observer")

	assert.Equal(t, `"observer"."price_bars"`, db.dialect.table("price_bars"))
	assert.Equal(t,
		`INSERT INTO "observer"."price_ticks" (symbol, tick_time, price, market_hours, payload) VALUES ($1, $2, $3, $4, $5) `+
			`ON CONFLICT (symbol, tick_time) DO UPDATE SET price = excluded.price, market_hours = excluded.market_hours, payload = excluded.payload`,
		db.upsertQuery("price_ticks", tickColumns, "symbol", "tick_time"))
}
