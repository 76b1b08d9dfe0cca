package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"yfinance-observer/src/config"
	"yfinance-observer/src/data_source/yahoo"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"

	"github.com/segmentio/encoding/json"
	"github.com/urfave/cli/v3"
)

const dateLayout = "2006-01-02"

// -----------------------------------------------------------------------------

// newClient loads the optional config file and builds a client from it.
func newClient(cmd *cli.Command) (*yahoo.Client, error) {
	conf := config.Default()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.NewConfig(path)
		if err != nil {
			return nil, err
		}
		conf = loaded
	}
	if cmd.Bool("verbose") {
		conf.LogLevel = "DEBUG"
	} else {
		conf.LogLevel = "ERROR"
	}

	client, err := yahoo.NewClient(conf.MConfig, logger.NewLogger(conf, "cli"))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	arg := strings.TrimSpace(cmd.Args().First())
	if arg == "" {
		return "", fmt.Errorf("%s requires a %s argument", cmd.Name, name)
	}
	return arg, nil
}

// -----------------------------------------------------------------------------
// Actions
// -----------------------------------------------------------------------------

func quoteAction(ctx context.Context, cmd *cli.Command) error {
	symbol, err := requireArg(cmd, "symbol")
	if err != nil {
		return err
	}
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	qs, err := client.QuoteSummary(ctx, symbol, cmd.StringSlice("modules")...)
	if err != nil {
		return err
	}
	modules := make(map[string]interface{}, len(qs.Modules))
	for name, doc := range qs.Modules {
		modules[name] = doc.Raw()
	}
	return printJSON(map[string]interface{}{"symbol": qs.Symbol, "modules": modules})
}

func historyAction(ctx context.Context, cmd *cli.Command) error {
	symbol, err := requireArg(cmd, "symbol")
	if err != nil {
		return err
	}
	q := yahoo.HistoryQuery{Symbol: symbol}
	if raw := cmd.String("range"); raw != "" {
		if q.Range, err = yahoo.ParseRange(raw); err != nil {
			return err
		}
	}
	if raw := cmd.String("interval"); raw != "" {
		if q.Interval, err = yahoo.ParseInterval(raw); err != nil {
			return err
		}
	}
	if cmd.IsSet("start") {
		q.Start = cmd.Timestamp("start")
	}
	if cmd.IsSet("end") {
		q.End = cmd.Timestamp("end")
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	history, err := client.History(ctx, q)
	if err != nil {
		return err
	}
	return printJSON(history)
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	region, err := yahoo.ParseRegion(cmd.String("region"))
	if err != nil {
		return err
	}
	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	status, err := client.MarketStatus(ctx, region)
	if err != nil {
		return err
	}
	return printJSON(status)
}

func summaryAction(ctx context.Context, cmd *cli.Command) error {
	region, err := yahoo.ParseRegion(cmd.String("region"))
	if err != nil {
		return err
	}
	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	summary, err := client.MarketSummary(ctx, region)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func lookupAction(ctx context.Context, cmd *cli.Command) error {
	query, err := requireArg(cmd, "query")
	if err != nil {
		return err
	}
	kind, err := yahoo.ParseLookupType(cmd.String("type"))
	if err != nil {
		return err
	}
	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	result, err := client.Lookup(ctx, query, kind)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func financialsAction(ctx context.Context, cmd *cli.Command) error {
	symbol, err := requireArg(cmd, "symbol")
	if err != nil {
		return err
	}
	statement, err := yahoo.ParseStatement(cmd.String("statement"))
	if err != nil {
		return err
	}
	timescale, err := yahoo.ParseTimescale(cmd.String("timescale"))
	if err != nil {
		return err
	}
	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	summary, err := client.Financials(ctx, symbol, statement, timescale)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

// streamAction prints one JSON line per tick until interrupted or the
// stream drops.
func streamAction(ctx context.Context, cmd *cli.Command) error {
	symbols := cmd.Args().Slice()
	if len(symbols) == 0 {
		return fmt.Errorf("stream requires at least one symbol")
	}
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dropped := make(chan error, 1)
	session := client.NewStream()
	session.OnClose(func(err error) { dropped <- err })

	enc := json.NewEncoder(os.Stdout)
	if err := session.Listen(func(tick models.MPricingData) {
		if err := enc.Encode(tick); err != nil {
			fmt.Fprintf(os.Stderr, "encode tick: %v\n", err)
		}
	}); err != nil {
		return err
	}
	if err := session.Connect(ctx); err != nil {
		return err
	}
	defer session.Close()

	if err := session.Subscribe(symbols...); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-dropped:
		return fmt.Errorf("stream closed: %w", err)
	}
}

// -----------------------------------------------------------------------------

func regionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "region",
		Aliases: []string{"r"},
		Usage:   "market region (US, GB, EUROPE, ASIA, ...)",
		Value:   string(yahoo.RegionUS),
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "yfinance",
		Usage: "Query Yahoo Finance from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "quote",
				Usage:     "Fetch quote summary modules for a symbol",
				ArgsUsage: "SYMBOL",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "modules",
						Aliases: []string{"m"},
						Usage:   "modules to request (defaults to the standard set)",
					},
				},
				Action: quoteAction,
			},
			{
				Name:      "history",
				Usage:     "Fetch chart bars for a symbol",
				ArgsUsage: "SYMBOL",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "range", Usage: "chart range (1d, 5d, 1mo, ... max)"},
					&cli.StringFlag{Name: "interval", Aliases: []string{"i"}, Usage: "bar interval (1m ... 3mo)"},
					&cli.TimestampFlag{
						Name:   "start",
						Usage:  "start date in `YYYY-MM-DD` format",
						Config: cli.TimestampConfig{Layouts: []string{dateLayout}},
					},
					&cli.TimestampFlag{
						Name:   "end",
						Usage:  "end date in `YYYY-MM-DD` format",
						Config: cli.TimestampConfig{Layouts: []string{dateLayout}},
					},
				},
				Action: historyAction,
			},
			{
				Name:   "status",
				Usage:  "Show market open/close status for a region",
				Flags:  []cli.Flag{regionFlag()},
				Action: statusAction,
			},
			{
				Name:   "summary",
				Usage:  "Show the headline indices for a region",
				Flags:  []cli.Flag{regionFlag()},
				Action: summaryAction,
			},
			{
				Name:      "lookup",
				Usage:     "Search tickers by name or symbol",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "instrument type filter", Value: string(yahoo.LookupAll)},
				},
				Action: lookupAction,
			},
			{
				Name:      "financials",
				Usage:     "Fetch a financial statement time series for a symbol",
				ArgsUsage: "SYMBOL",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "statement", Aliases: []string{"s"}, Value: string(yahoo.StatementIncome), Usage: "INCOME, BALANCE_SHEET or CASH_FLOW"},
					&cli.StringFlag{Name: "timescale", Aliases: []string{"t"}, Value: string(yahoo.TimescaleAnnual), Usage: "annual, quarterly or trailing"},
				},
				Action: financialsAction,
			},
			{
				Name:      "stream",
				Usage:     "Print live ticks as JSON lines until interrupted",
				ArgsUsage: "SYMBOL...",
				Action:    streamAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
