package main

import (
	"yfinance-observer/src/config"
	"yfinance-observer/src/data_source/yahoo"
	"yfinance-observer/src/interfaces"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"
	"yfinance-observer/src/server"
	"yfinance-observer/src/storage"
)

// -----------------------------------------------------------------------------

// setupDatabase opens and migrates the configured store. "none" disables
// persistence and returns a nil store.
func setupDatabase(cfg *models.MConfig, appLogger *logger.Logger) (interfaces.IDatabase, error) {
	if cfg.Storage.DBType == "none" {
		appLogger.Info("Storage disabled")
		return nil, nil
	}

	db, err := storage.New(cfg, logger.NewLogger(cfg, "Storage"))
	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
		return nil, err
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
		return nil, err
	}
	return db, nil
}

// -----------------------------------------------------------------------------

// setupClient builds the Yahoo client shared by the poller, the stream and
// the REST routes.
func setupClient(cfg *models.MConfig) (*yahoo.Client, error) {
	return yahoo.NewClient(cfg, logger.NewLogger(cfg, "YahooClient"))
}

// -----------------------------------------------------------------------------

// setupSource returns the chart poller, or nil when polling is disabled.
func setupSource(cfg *models.MConfig, client *yahoo.Client, appLogger *logger.Logger) interfaces.IDataSource {
	if !cfg.Polling.Enabled {
		appLogger.Info("Chart polling disabled")
		return nil
	}
	appLogger.Info("Polling %d symbols every %ds", len(cfg.Polling.Symbols), cfg.Polling.UpdateIntervalSeconds)
	return yahoo.NewChartSource("yahoo-chart", cfg.Polling, client, logger.NewLogger(cfg, "ChartSource"))
}

// -----------------------------------------------------------------------------

// setupServer returns the relay server, or nil when it is disabled.
func setupServer(conf *config.Config, client *yahoo.Client, db interfaces.IDatabase) *server.RelayServer {
	if !conf.Server.Enabled {
		return nil
	}
	return server.NewRelayServer(conf.MConfig, client, db, logger.NewLogger(conf, "RelayServer"))
}
