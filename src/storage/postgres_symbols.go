package storage

import (
	"fmt"
	"regexp"

	"yfinance-observer/src/helpers"

	"github.com/lib/pq"
)

const (
	SymbolKindTicker   = "ticker"
	SymbolKindTableRef = "table_ref"
)

// SymbolEntry is one row of the symbols registry.
type SymbolEntry struct {
	Symbol    string
	Kind      string
	RefSchema string
	RefTable  string
	RefField  string
	Consumer  string
}

// tableRef matches schema.table.column. Exchange suffixed tickers have at
// most one dot.
var tableRef = regexp.MustCompile(`^(\w+)\.(\w+)\.(\w+)$`)

// ParseSymbolRef splits a schema.table.column reference.
func ParseSymbolRef(s string) (SymbolEntry, bool) {
	m := tableRef.FindStringSubmatch(s)
	if m == nil {
		return SymbolEntry{}, false
	}
	return SymbolEntry{Symbol: s, Kind: SymbolKindTableRef, RefSchema: m[1], RefTable: m[2], RefField: m[3]}, true
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createSymbolsTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol TEXT NOT NULL,
			consumer TEXT NOT NULL,
			kind TEXT NOT NULL,
			ref_schema TEXT,
			ref_table TEXT,
			ref_field TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (symbol, consumer)
		)`, d.dialect.table("symbols"))
	if _, err := d.DB.Exec(query); err != nil {
		return helpers.NewDatabaseError("create symbols table", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// ResolveSymbols expands every schema.table.column entry into the values of
// that column, records both kinds in the registry and returns plain tickers.
func (d *PostgresDB) ResolveSymbols(consumer string, raw []string) ([]string, error) {
	var (
		tickers []string
		entries []SymbolEntry
	)

	for _, sym := range raw {
		ref, ok := ParseSymbolRef(sym)
		if !ok {
			tickers = append(tickers, sym)
			entries = append(entries, SymbolEntry{Symbol: sym, Kind: SymbolKindTicker, Consumer: consumer})
			continue
		}

		ref.Consumer = consumer
		entries = append(entries, ref)

		loaded, err := d.SymbolsFromTable(ref.RefSchema, ref.RefTable, ref.RefField)
		if err != nil {
			return tickers, fmt.Errorf("failed to load symbols from %s: %w", sym, err)
		}
		for _, s := range loaded {
			tickers = append(tickers, s)
			entries = append(entries, SymbolEntry{Symbol: s, Kind: SymbolKindTicker, Consumer: consumer})
		}
	}

	if err := d.RegisterSymbols(entries); err != nil {
		return tickers, err
	}
	return tickers, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) RegisterSymbols(entries []SymbolEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return helpers.NewDatabaseError("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (symbol, consumer, kind, ref_schema, ref_table, ref_field, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, consumer) DO UPDATE SET
			kind = EXCLUDED.kind,
			ref_schema = EXCLUDED.ref_schema,
			ref_table = EXCLUDED.ref_table,
			ref_field = EXCLUDED.ref_field,
			updated_at = EXCLUDED.updated_at`, d.dialect.table("symbols")))
	if err != nil {
		return helpers.NewDatabaseError("prepare symbols upsert", err)
	}
	defer stmt.Close()

	now := d.now().UTC()
	for _, e := range entries {
		if _, err := stmt.Exec(e.Symbol, e.Consumer, e.Kind, e.RefSchema, e.RefTable, e.RefField, now); err != nil {
			return helpers.NewDatabaseError("register symbol "+e.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helpers.NewDatabaseError("commit symbols", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// SymbolsFromTable reads non-empty values of schema.table.field.
func (d *PostgresDB) SymbolsFromTable(schema, table, field string) ([]string, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s.%s`,
		pq.QuoteIdentifier(field), pq.QuoteIdentifier(schema), pq.QuoteIdentifier(table))

	rows, err := d.DB.Query(query)
	if err != nil {
		return nil, helpers.NewDatabaseError("query "+schema+"."+table, err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, helpers.NewDatabaseError("scan symbol", err)
		}
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewDatabaseError("iterate symbols", err)
	}
	return symbols, nil
}
