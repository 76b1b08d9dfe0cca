package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/interfaces"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/metrics"

	"golang.org/x/time/rate"
)

const maxErrorBody = 8 << 10

// Param is one query parameter. Params keep their insertion order in the URL.
type Param struct {
	Key   string
	Value string
}

// RequestDescriptor declares one resource fetch.
type RequestDescriptor struct {
	BaseURL        string
	Symbol         string
	RequiresSymbol bool
	Params         []Param
	NeedsAuth      bool
	Headers        map[string]string

	// ExtractResult names the {"<name>": {"result": ..., "error": ...}}
	// envelope to unwrap. Empty returns the whole body.
	ExtractResult string
}

// -----------------------------------------------------------------------------

// URL builds base[/escaped symbol][?params]. It fails when a required symbol
// is blank.
func (d RequestDescriptor) URL() (string, error) {
	symbol := strings.TrimSpace(d.Symbol)
	if d.RequiresSymbol && symbol == "" {
		return "", helpers.NewIllegalArgumentError("symbol must not be blank")
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(d.BaseURL, "/"))
	if d.RequiresSymbol {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(symbol))
	}

	for i, p := range d.Params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String(), nil
}

// -----------------------------------------------------------------------------

// Executor turns descriptors into Documents. It never retries.
type Executor struct {
	network interfaces.INetworkManager
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewExecutor builds an executor; requestsPerSecond <= 0 disables throttling.
func NewExecutor(network interfaces.INetworkManager, requestsPerSecond float64, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.NewLogger(nil, "Executor")
	}
	e := &Executor{network: network, logger: log}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return e
}

// -----------------------------------------------------------------------------

// Fetch performs the request and decodes the body.
func (e *Executor) Fetch(ctx context.Context, d RequestDescriptor) (*Document, error) {
	target, err := d.URL()
	if err != nil {
		return nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := e.network.Open(ctx, target, d.Headers, d.NeedsAuth)
	if err != nil {
		var connErr *helpers.ConnectionError
		if errors.As(err, &connErr) && connErr.Response != nil {
			e.logErrorBody(connErr)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveFailure("transport")
		return nil, helpers.NewConnectionError(helpers.StatusTransportFailure, target, err)
	}

	doc, err := ParseDocument(body)
	if err != nil {
		metrics.ObserveFailure("parse")
		return nil, helpers.NewResponseParsingError("malformed JSON from "+d.BaseURL, body, err)
	}

	if d.ExtractResult == "" {
		return doc, nil
	}
	return ExtractResult(doc, d.ExtractResult)
}

// -----------------------------------------------------------------------------

// Execute fetches d and hands the Document to parse.
func Execute[T any](ctx context.Context, e *Executor, d RequestDescriptor, parse func(*Document) (T, error)) (T, error) {
	var zero T
	doc, err := e.Fetch(ctx, d)
	if err != nil {
		return zero, err
	}

	res, err := parse(doc)
	if err != nil {
		var parseErr *helpers.ResponseParsingError
		if errors.As(err, &parseErr) {
			return zero, err
		}
		return zero, helpers.NewResponseParsingError(fmt.Sprintf("failed to project %s", d.BaseURL), nil, err)
	}
	return res, nil
}

// -----------------------------------------------------------------------------

// ExtractResult unwraps doc[name].result, failing when doc[name].error is set.
func ExtractResult(doc *Document, name string) (*Document, error) {
	envelope := doc.Get(name)
	if !envelope.Exists() {
		return nil, helpers.NewResponseParsingError(fmt.Sprintf("response has no %q envelope", name), nil, nil)
	}

	if apiErr := envelope.Get("error"); !apiErr.IsNull() {
		code := apiErr.Get("code").String()
		desc := apiErr.Get("description").String()
		if desc == "" {
			desc = apiErr.String()
		}
		return nil, helpers.NewResponseParsingError(fmt.Sprintf("%s error %s: %s", name, code, desc), nil, nil)
	}

	result := envelope.Get("result")
	if result.IsNull() {
		return nil, helpers.NewResponseParsingError(fmt.Sprintf("%s envelope has no result", name), nil, nil)
	}
	return result, nil
}

// -----------------------------------------------------------------------------

// logErrorBody reads and closes the error response. Decode failures are
// ignored.
func (e *Executor) logErrorBody(connErr *helpers.ConnectionError) {
	resp := connErr.Response
	connErr.Response = nil
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		e.logger.Warning("HTTP %d from %s", connErr.StatusCode, connErr.URL)
		return
	}

	if doc, err := ParseDocument(body); err == nil {
		for _, k := range doc.Keys() {
			if desc := doc.Get(k, "error", "description").String(); desc != "" {
				e.logger.Warning("HTTP %d from %s: %s", connErr.StatusCode, connErr.URL, desc)
				return
			}
		}
	}

	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	e.logger.Warning("HTTP %d from %s: %s", connErr.StatusCode, connErr.URL, snippet)
}
