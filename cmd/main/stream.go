package main

import (
	"context"
	"time"

	"yfinance-observer/src/data_source/yahoo"
	"yfinance-observer/src/interfaces"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"
	"yfinance-observer/src/server"
)

const (
	reconnectMin   = time.Second
	reconnectMax   = 2 * time.Minute
	tickBatchSize  = 200
	tickFlushEvery = time.Second
)

// -----------------------------------------------------------------------------
// Stream supervisor
// -----------------------------------------------------------------------------

// runStream keeps a streaming session alive until ctx ends. A dropped
// session is replaced with a new one after an exponential backoff, and the
// subscriptions are replayed. Ticks are pushed to ticks.
func runStream(
	ctx context.Context,
	client *yahoo.Client,
	symbols []string,
	ticks chan<- models.MPricingData,
	relay *server.RelayServer,
	appLogger *logger.Logger,
) error {
	backoff := reconnectMin

	for {
		dropped := make(chan error, 1)
		session := client.NewStream()
		session.OnClose(func(err error) { dropped <- err })

		err := session.Listen(func(tick models.MPricingData) {
			select {
			case ticks <- tick:
			case <-ctx.Done():
			}
		})
		if err == nil {
			err = session.Connect(ctx)
		}
		if err == nil {
			err = session.Subscribe(symbols...)
		}

		if err == nil {
			backoff = reconnectMin
			setStreamConnected(relay, true)

			select {
			case <-ctx.Done():
				setStreamConnected(relay, false)
				return session.Close()
			case cause := <-dropped:
				setStreamConnected(relay, false)
				appLogger.Warning("Stream dropped (%v), reconnecting in %s", cause, backoff)
			}
		} else {
			session.Close()
			appLogger.Warning("Stream setup failed (%v), retrying in %s", err, backoff)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func setStreamConnected(relay *server.RelayServer, connected bool) {
	if relay != nil {
		relay.SetStreamConnected(connected)
	}
}

// -----------------------------------------------------------------------------
// Tick writer
// -----------------------------------------------------------------------------

// runTickWriter relays every tick immediately and stores them in batches,
// flushing on size or on a timer. Pending ticks are flushed on exit.
func runTickWriter(
	ctx context.Context,
	ticks <-chan models.MPricingData,
	db interfaces.IDatabase,
	exchanger interfaces.IDataExchanger,
	appLogger *logger.Logger,
) error {
	ticker := time.NewTicker(tickFlushEvery)
	defer ticker.Stop()

	batch := make([]models.MPricingData, 0, tickBatchSize)
	flush := func() {
		if len(batch) == 0 || db == nil {
			batch = batch[:0]
			return
		}
		if err := db.SavePriceTicks(batch); err != nil {
			appLogger.Error("Failed to save %d ticks: %v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil
		case tick := <-ticks:
			if exchanger != nil {
				exchanger.Broadcast(tick)
			}
			batch = append(batch, tick)
			if len(batch) >= tickBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
