package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/interfaces"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"

	"github.com/segmentio/encoding/json"
)

// dialect captures what differs between the SQLite and Postgres backends.
type dialect struct {
	name        string
	realType    string
	intType     string
	table       func(name string) string
	placeholder func(n int) string
}

func (d dialect) placeholders(from, count int) string {
	ps := make([]string, count)
	for i := range ps {
		ps[i] = d.placeholder(from + i)
	}
	return strings.Join(ps, ", ")
}

// -----------------------------------------------------------------------------

// sqlStore holds the schema and queries shared by both backends. Bars are
// keyed by (symbol, timestamp in seconds); ticks by (symbol, tick_time in
// milliseconds) with the full tick kept as JSON.
type sqlStore struct {
	DB      *sql.DB
	Logger  *logger.Logger
	dialect dialect
	now     func() time.Time
}

var barColumns = []string{
	"symbol", "timestamp", "open", "high", "low", "close", "adj_close", "volume",
	"price_percent_change", "volume_percent_change", "fetched_at",
}

var tickColumns = []string{"symbol", "tick_time", "price", "market_hours", "payload"}

// -----------------------------------------------------------------------------

func (s *sqlStore) createTables() error {
	d := s.dialect
	queries := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				symbol TEXT NOT NULL,
				timestamp %s NOT NULL,
				open %s,
				high %s,
				low %s,
				close %s,
				adj_close %s,
				volume %s,
				price_percent_change %s,
				volume_percent_change %s,
				fetched_at %s,
				PRIMARY KEY (symbol, timestamp)
			)`, d.table("price_bars"), d.intType,
			d.realType, d.realType, d.realType, d.realType, d.realType, d.realType,
			d.realType, d.realType, d.intType),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				symbol TEXT NOT NULL,
				tick_time %s NOT NULL,
				price %s,
				market_hours INTEGER,
				payload TEXT NOT NULL,
				PRIMARY KEY (symbol, tick_time)
			)`, d.table("price_ticks"), d.intType, d.realType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS price_ticks_time_idx ON %s (tick_time)`, d.table("price_ticks")),
	}

	for _, q := range queries {
		if _, err := s.DB.Exec(q); err != nil {
			return helpers.NewDatabaseError("failed to create tables", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) upsertQuery(table string, columns []string, keys ...string) string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var updates []string
	for _, c := range columns {
		if !isKey[c] {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s`,
		s.dialect.table(table),
		strings.Join(columns, ", "),
		s.dialect.placeholders(1, len(columns)),
		strings.Join(keys, ", "),
		strings.Join(updates, ", "))
}

// -----------------------------------------------------------------------------

func (s *sqlStore) SavePriceBars(bars []models.MPriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return helpers.NewDatabaseError("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(s.upsertQuery("price_bars", barColumns, "symbol", "timestamp"))
	if err != nil {
		return helpers.NewDatabaseError("prepare price_bars upsert", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(b.Symbol, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume,
			b.PricePercentChange, b.VolumePercentChange, b.FetchedAt); err != nil {
			return helpers.NewDatabaseError(fmt.Sprintf("upsert bar %s@%d", b.Symbol, b.Timestamp), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helpers.NewDatabaseError("commit price_bars", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) SavePriceTicks(ticks []models.MPricingData) error {
	if len(ticks) == 0 {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return helpers.NewDatabaseError("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(s.upsertQuery("price_ticks", tickColumns, "symbol", "tick_time"))
	if err != nil {
		return helpers.NewDatabaseError("prepare price_ticks upsert", err)
	}
	defer stmt.Close()

	for _, t := range ticks {
		payload, err := json.Marshal(t)
		if err != nil {
			return helpers.NewDatabaseError("encode tick "+t.ID, err)
		}
		if _, err := stmt.Exec(t.ID, t.Time, float64(t.Price), int32(t.MarketHours), string(payload)); err != nil {
			return helpers.NewDatabaseError(fmt.Sprintf("upsert tick %s@%d", t.ID, t.Time), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helpers.NewDatabaseError("commit price_ticks", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// LatestTicks returns the newest tick of each symbol, newest first.
func (s *sqlStore) LatestTicks(limit int) ([]models.MPricingData, error) {
	if limit <= 0 {
		return nil, nil
	}
	table := s.dialect.table("price_ticks")
	query := fmt.Sprintf(`
		SELECT t.payload FROM %s t
		WHERE t.tick_time = (SELECT MAX(i.tick_time) FROM %s i WHERE i.symbol = t.symbol)
		ORDER BY t.tick_time DESC, t.symbol
		LIMIT %s`, table, table, s.dialect.placeholder(1))

	rows, err := s.DB.Query(query, limit)
	if err != nil {
		return nil, helpers.NewDatabaseError("query latest ticks", err)
	}
	defer rows.Close()

	var out []models.MPricingData
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, helpers.NewDatabaseError("scan tick", err)
		}
		var t models.MPricingData
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			s.Logger.Warning("Skipping undecodable stored tick: %v", err)
			continue
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, helpers.NewDatabaseError("iterate ticks", err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) CleanupOldData(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	s.Logger.Info("Cleaning up data older than %d days (before %s)", retentionDays, cutoff.Format(time.RFC3339))

	bars, err := s.DB.Exec(fmt.Sprintf(`DELETE FROM %s WHERE timestamp < %s`, s.dialect.table("price_bars"), s.dialect.placeholder(1)), cutoff.Unix())
	if err != nil {
		return helpers.NewDatabaseError("cleanup price_bars", err)
	}
	ticks, err := s.DB.Exec(fmt.Sprintf(`DELETE FROM %s WHERE tick_time < %s`, s.dialect.table("price_ticks"), s.dialect.placeholder(1)), cutoff.UnixMilli())
	if err != nil {
		return helpers.NewDatabaseError("cleanup price_ticks", err)
	}

	nBars, _ := bars.RowsAffected()
	nTicks, _ := ticks.RowsAffected()
	s.Logger.Info("Cleanup completed: %d bars, %d ticks removed", nBars, nTicks)
	return nil
}

// -----------------------------------------------------------------------------

func (s *sqlStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------

// New opens the backend selected by cfg.Storage.DBType.
func New(cfg *models.MConfig, log *logger.Logger) (interfaces.IDatabase, error) {
	switch cfg.Storage.DBType {
	case "sqlite":
		return NewSQLiteDB(cfg, log)
	case "postgres":
		return NewPostgresDB(cfg, log)
	}
	return nil, fmt.Errorf("unsupported database type: %s", cfg.Storage.DBType)
}
