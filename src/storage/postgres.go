package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"

	"github.com/lib/pq"
)

// -----------------------------------------------------------------------------

// PostgresDB keeps every table in a schema named after the running binary.
type PostgresDB struct {
	sqlStore
	Config *models.MConfig
	Schema string
}

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// SchemaName lowercases name and replaces anything that is not a plain
// identifier character.
func SchemaName(name string) string {
	name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	name = nonIdentChars.ReplaceAllString(strings.ToLower(name), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "yfinance"
	}
	return name
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	if log == nil {
		log = logger.NewLogger(cfg, "Postgres")
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	return newPostgresDB(cfg, log, SchemaName(exe)), nil
}

func newPostgresDB(cfg *models.MConfig, log *logger.Logger, schema string) *PostgresDB {
	quoted := pq.QuoteIdentifier(schema)
	return &PostgresDB{
		Config: cfg,
		Schema: schema,
		sqlStore: sqlStore{
			Logger: log,
			now:    time.Now,
			dialect: dialect{
				name:     "postgres",
				realType: "DOUBLE PRECISION",
				intType:  "BIGINT",
				table: func(name string) string {
					return quoted + "." + pq.QuoteIdentifier(name)
				},
				placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
			},
		},
	}
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	db, err := sql.Open("postgres", d.Config.Storage.DBConnectionString)
	if err != nil {
		return helpers.NewDatabaseError("open postgres", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return helpers.NewDatabaseError("ping postgres", err)
	}
	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pq.QuoteIdentifier(d.Schema))); err != nil {
		return helpers.NewDatabaseError("create schema "+d.Schema, err)
	}
	if err := d.createTables(); err != nil {
		return err
	}
	if err := d.createSymbolsTable(); err != nil {
		return err
	}

	// Table references in the symbol lists are expanded once, so the poller
	// and the stream only ever see plain tickers.
	polling, err := d.ResolveSymbols("polling", d.Config.Polling.Symbols)
	if err != nil {
		d.Logger.Error("Failed to resolve polling symbols: %v", err)
	} else {
		d.Config.Polling.Symbols = polling
	}
	streaming, err := d.ResolveSymbols("streaming", d.Config.Streaming.Symbols)
	if err != nil {
		d.Logger.Error("Failed to resolve streaming symbols: %v", err)
	} else {
		d.Config.Streaming.Symbols = streaming
	}

	d.Logger.Info("PostgresDB initialized (schema %s)", d.Schema)
	return nil
}
