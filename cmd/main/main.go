package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"yfinance-observer/src/config"
	"yfinance-observer/src/interfaces"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"

	"golang.org/x/sync/errgroup"
)

// -----------------------------------------------------------------------------

func main() {

	// 1. Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf, conf.Name)
	defer appLogger.Sync()

	// 4. Setup Components. Storage goes first: postgres may resolve table
	// references in the symbol lists.
	db, err := setupDatabase(conf.MConfig, appLogger)
	if err != nil {
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	client, err := setupClient(conf.MConfig)
	if err != nil {
		appLogger.Critical("Failed to build client: %v", err)
		os.Exit(1)
	}

	source := setupSource(conf.MConfig, client, appLogger)
	relay := setupServer(conf, client, db)

	var exchanger interfaces.IDataExchanger
	if relay != nil {
		exchanger = relay
	}

	// Lifecycle Management
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Start Server
	if exchanger != nil {
		if err := exchanger.Start(); err != nil {
			appLogger.Critical("Server failed: %v", err)
			os.Exit(1)
		}
	}

	// 6. Bootstrap and run
	g, gctx := errgroup.WithContext(ctx)
	var wg sync.WaitGroup

	if source != nil {
		performInitialLoad(gctx, source, db, exchanger, conf.Network.MaxRetries, appLogger)

		updatesChan := make(chan map[string][]models.MPriceBar, 100)
		if err := source.Start(gctx, updatesChan, &wg); err != nil {
			appLogger.Critical("Failed to start source: %v", err)
			os.Exit(1)
		}
		g.Go(func() error { return runDataLoop(gctx, updatesChan, db, exchanger, appLogger) })
	}

	if len(conf.Streaming.Symbols) > 0 {
		ticks := make(chan models.MPricingData, 1024)
		g.Go(func() error {
			return runStream(gctx, client, conf.Streaming.Symbols, ticks, relay, logger.NewLogger(conf, "Stream"))
		})
		g.Go(func() error { return runTickWriter(gctx, ticks, db, exchanger, appLogger) })
	}

	if db != nil {
		g.Go(func() error { return runCleanup(gctx, db, conf.Polling.DataRetentionDays, appLogger) })
	}

	appLogger.Info("Observer running. Press Ctrl+C to stop.")
	<-ctx.Done()

	// 7. Graceful shutdown
	appLogger.Info("Shutting down...")
	if err := g.Wait(); err != nil {
		appLogger.Error("Worker exited with error: %v", err)
	}
	wg.Wait()

	if exchanger != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := exchanger.Stop(shutdownCtx); err != nil {
			appLogger.Error("Server shutdown: %v", err)
		}
	}
	appLogger.Info("Shutdown complete.")
}
