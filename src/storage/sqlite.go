package storage

import (
	"database/sql"
	"time"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	sqlStore
	Config *models.MConfig
}

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*SQLiteDB, error) {
	if log == nil {
		log = logger.NewLogger(cfg, "SQLite")
	}
	return &SQLiteDB{
		Config: cfg,
		sqlStore: sqlStore{
			Logger: log,
			now:    time.Now,
			dialect: dialect{
				name:        "sqlite",
				realType:    "REAL",
				intType:     "INTEGER",
				table:       func(name string) string { return name },
				placeholder: func(int) string { return "?" },
			},
		},
	}, nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteDB) Initialize() error {
	db, err := sql.Open("sqlite", d.Config.Storage.DBPath)
	if err != nil {
		return helpers.NewDatabaseError("open "+d.Config.Storage.DBPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return helpers.NewDatabaseError("ping "+d.Config.Storage.DBPath, err)
	}

	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	d.DB = db

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			d.Logger.Warning("Failed to apply %q: %v", pragma, err)
		}
	}

	if err := d.createTables(); err != nil {
		return err
	}
	d.Logger.Info("SQLite initialized at %s", d.Config.Storage.DBPath)
	return nil
}
