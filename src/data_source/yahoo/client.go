package yahoo

import (
	"context"
	"strings"
	"time"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"
	"yfinance-observer/src/network"
	"yfinance-observer/src/streaming"
)

// Client is the entry point of the library: one credential cache, one
// executor and a factory for streaming sessions. Every request gets
// network.retries extra attempts; Recovery decides what changes between them.
type Client struct {
	Config    *models.MConfig
	Network   *network.NetworkManager
	Recovery  *helpers.ErrorHandler
	Endpoints Endpoints
	Logger    *logger.Logger
	now       func() time.Time
}

type ClientOption func(*Client)

// WithEndpoints redirects both API hosts.
func WithEndpoints(ep Endpoints) ClientOption {
	return func(c *Client) { c.Endpoints = ep }
}

// WithNow overrides the clock used for derived request windows.
func WithNow(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// -----------------------------------------------------------------------------

func NewClient(cfg *models.MConfig, log *logger.Logger, opts ...ClientOption) (*Client, error) {
	if log == nil {
		log = logger.NewLogger(cfg, "YahooClient")
	}

	nm, err := network.NewNetworkManager(cfg, log.Named("network"))
	if err != nil {
		return nil, err
	}

	c := &Client{
		Config:    cfg,
		Network:   nm,
		Recovery:  helpers.NewErrorHandler(nm.Credentials, nm, log.Named("retry")),
		Endpoints: DefaultEndpoints(),
		Logger:    log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// -----------------------------------------------------------------------------

// QuoteSummary fetches the named modules, or DefaultModules when none are
// given.
func (c *Client) QuoteSummary(ctx context.Context, symbol string, modules ...string) (QuoteSummary, error) {
	d := QuoteSummaryRequest(c.Endpoints, symbol, modules)
	return execute(ctx, c, "quote summary "+symbol, d, ProjectQuoteSummary(symbol))
}

func (c *Client) History(ctx context.Context, q HistoryQuery) (models.MStockHistory, error) {
	symbol := strings.TrimSpace(q.Symbol)
	d := HistoryRequest(c.Endpoints, q, c.now())
	return execute(ctx, c, "history "+symbol, d, ProjectChart(symbol, c.Logger.Named("chart"), c.now))
}

func (c *Client) MarketStatus(ctx context.Context, region Region) ([]models.MMarketStatus, error) {
	return execute(ctx, c, "market status", MarketStatusRequest(c.Endpoints, region), ProjectMarketStatus)
}

func (c *Client) MarketSummary(ctx context.Context, region Region) ([]models.MMarketSummary, error) {
	return execute(ctx, c, "market summary", MarketSummaryRequest(c.Endpoints, region), ProjectMarketSummary)
}

func (c *Client) Lookup(ctx context.Context, query string, kind LookupType) (models.MLookupResult, error) {
	return execute(ctx, c, "lookup", LookupRequest(c.Endpoints, query, kind), ProjectLookup)
}

// Financials fails before any I/O for the trailing balance sheet.
func (c *Client) Financials(ctx context.Context, symbol string, statement Statement, timescale Timescale) (models.MFinancialSummary, error) {
	d, err := FinancialsRequest(c.Endpoints, symbol, statement, timescale, c.now())
	if err != nil {
		return models.MFinancialSummary{}, err
	}
	return execute(ctx, c, "financials "+symbol, d, ProjectFinancials(symbol, statement, timescale))
}

// execute runs one request through the retry and recovery policy.
func execute[T any](ctx context.Context, c *Client, operation string, d network.RequestDescriptor, parse func(*network.Document) (T, error)) (T, error) {
	return helpers.ExecuteWithRetry(ctx, c.Recovery, operation, c.Config.Network.MaxRetries+1, func(ctx context.Context) (T, error) {
		return network.Execute(ctx, c.Network.Executor, d, parse)
	})
}

// -----------------------------------------------------------------------------

// NewStream builds an idle streaming session sharing the client's proxy
// selection and user agent.
func (c *Client) NewStream() *streaming.Session {
	dialer := streaming.NewGorillaDialer(c.Config.Streaming, c.Config.Network.UserAgent, c.Network.ProxyManager.Proxy)
	return streaming.NewSession(c.Config.Streaming, dialer, c.Logger.Named("stream"))
}
