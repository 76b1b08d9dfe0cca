package network

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/interfaces"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/metrics"
	"yfinance-observer/src/models"
)

const maxDrainBytes = 4 << 10

// RedirectingClient follows redirects by hand so the crumb is attached once,
// before the chain starts, and the hop count stays bounded.
type RedirectingClient struct {
	client      *http.Client
	credentials interfaces.ICredentialProvider
	userAgent   string
	limit       int
	readTimeout time.Duration
	logger      *logger.Logger
}

// -----------------------------------------------------------------------------

func NewRedirectingClient(client *http.Client, credentials interfaces.ICredentialProvider, cfg models.MNetworkConfig, log *logger.Logger) *RedirectingClient {
	if log == nil {
		log = logger.NewLogger(nil, "RedirectingClient")
	}
	return &RedirectingClient{
		client:      client,
		credentials: credentials,
		userAgent:   cfg.UserAgent,
		limit:       cfg.RedirectLimit,
		readTimeout: cfg.ReadTimeout,
		logger:      log,
	}
}

// -----------------------------------------------------------------------------

// Open issues a GET and follows up to limit redirects. The returned response
// has a 2xx or non-redirect 3xx status and an open body the caller must close.
func (c *RedirectingClient) Open(ctx context.Context, rawURL string, headers map[string]string, useAuth bool) (*http.Response, error) {
	start := time.Now()

	requestURL := rawURL
	var cookie string
	if useAuth {
		if c.credentials == nil {
			return nil, helpers.NewIllegalStateError("authenticated request without a credential provider")
		}
		crumb, err := c.credentials.Crumb(ctx)
		if err != nil {
			return nil, err
		}
		if cookie, err = c.credentials.Cookie(ctx); err != nil {
			return nil, err
		}
		requestURL = AppendQuery(rawURL, "crumb", crumb)
	}

	current, err := url.Parse(requestURL)
	if err != nil {
		return nil, helpers.NewIllegalArgumentError("invalid URL %q: %v", rawURL, err)
	}

	redirects := 0
	for {
		resp, err := c.do(ctx, current.String(), headers, cookie)
		if err != nil {
			metrics.ObserveFailure("transport")
			return nil, helpers.NewConnectionError(helpers.StatusTransportFailure, rawURL, err)
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			drain(resp)
			if location == "" {
				metrics.ObserveFailure("status")
				return nil, helpers.NewConnectionError(resp.StatusCode, rawURL, errors.New("redirect without Location header"))
			}

			next, err := current.Parse(location)
			if err != nil {
				metrics.ObserveFailure("status")
				return nil, helpers.NewConnectionError(resp.StatusCode, rawURL, err)
			}

			redirects++
			metrics.HTTPRedirectsTotal.Inc()
			if redirects > c.limit {
				metrics.ObserveFailure("redirect")
				return nil, helpers.NewRedirectError(redirects, c.limit, next.String())
			}

			c.logger.Debug("Redirect %d/%d: %d -> %s", redirects, c.limit, resp.StatusCode, next.Redacted())
			current = next
			continue
		}

		metrics.ObserveRequest(resp.StatusCode, time.Since(start))
		if resp.StatusCode >= http.StatusBadRequest {
			metrics.ObserveFailure("status")
			connErr := helpers.NewConnectionError(resp.StatusCode, rawURL, nil)
			connErr.Response = resp
			return nil, connErr
		}
		return resp, nil
	}
}

// -----------------------------------------------------------------------------

func (c *RedirectingClient) do(ctx context.Context, target string, headers map[string]string, cookie string) (*http.Response, error) {
	reqCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &deadlineBody{ReadCloser: resp.Body, timeout: c.readTimeout, cancel: cancel}
	return resp, nil
}

// -----------------------------------------------------------------------------

// deadlineBody bounds every Read by timeout, independent of the connect
// timeout, and releases the request context on Close.
type deadlineBody struct {
	io.ReadCloser
	timeout time.Duration
	cancel  context.CancelFunc
}

func (b *deadlineBody) Read(p []byte) (int, error) {
	if b.timeout <= 0 {
		return b.ReadCloser.Read(p)
	}
	t := time.AfterFunc(b.timeout, b.cancel)
	n, err := b.ReadCloser.Read(p)
	if !t.Stop() && err != nil {
		err = errors.Join(context.DeadlineExceeded, err)
	}
	return n, err
}

func (b *deadlineBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// -----------------------------------------------------------------------------

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}

// -----------------------------------------------------------------------------

// AppendQuery adds key=value (query-escaped) to rawURL, keeping any existing
// query untouched.
func AppendQuery(rawURL, key, value string) string {
	sep := "?"
	if u, err := url.Parse(rawURL); err == nil && u.RawQuery != "" {
		sep = "&"
	} else if err == nil && u.ForceQuery {
		sep = ""
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
