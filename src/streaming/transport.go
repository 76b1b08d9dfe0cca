package streaming

//go:generate mockgen -package=streaming_test -destination=mock_transport_test.go -source=transport.go

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"yfinance-observer/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait    = 2 * time.Second
	streamOrigin = "https://finance.yahoo.com"
)

// Conn is the subset of *websocket.Conn the session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Conn.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// -----------------------------------------------------------------------------

// GorillaDialer dials with gorilla/websocket.
type GorillaDialer struct {
	Dialer    *websocket.Dialer
	Header    http.Header
	ReadLimit int64
}

// NewGorillaDialer builds a dialer honouring the handshake timeout, buffer
// size and proxy selection. proxy may be nil.
func NewGorillaDialer(cfg models.MStreamingConfig, userAgent string, proxy func(*http.Request) (*url.URL, error)) *GorillaDialer {
	if proxy == nil {
		proxy = http.ProxyFromEnvironment
	}

	header := http.Header{}
	header.Set("Origin", streamOrigin)
	if userAgent != "" {
		header.Set("User-Agent", userAgent)
	}

	return &GorillaDialer{
		Dialer: &websocket.Dialer{
			Proxy:            proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  4096,
		},
		Header:    header,
		ReadLimit: int64(cfg.ReadBufferSize) * 16,
	}
}

func (d *GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := d.Dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return c, nil
}
