package server

import (
	"sync"
	"time"

	"yfinance-observer/src/models"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client is one websocket consumer. symbols nil means every symbol.
type Client struct {
	hub    *RelayServer
	conn   *websocket.Conn
	send   chan *models.MLatestData
	remote string

	mu      sync.Mutex
	symbols map[string]struct{}
}

func newClient(hub *RelayServer, conn *websocket.Conn, remote string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan *models.MLatestData, sendBuffer),
		remote: remote,
	}
}

// -----------------------------------------------------------------------------

// subscribe replaces the filter; an empty list selects every symbol. It
// returns a copy of the new filter.
func (c *Client) subscribe(symbols []string) map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(symbols) == 0 {
		c.symbols = nil
		return nil
	}
	c.symbols = make(map[string]struct{}, len(symbols))
	out := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		c.symbols[s] = struct{}{}
		out[s] = struct{}{}
	}
	return out
}

func (c *Client) unsubscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.symbols == nil {
		return
	}
	for _, s := range symbols {
		delete(c.symbols, s)
	}
}

// filter narrows msg to the client's symbols, or returns nil when nothing
// is left.
func (c *Client) filter(msg *models.MLatestData) *models.MLatestData {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.symbols == nil {
		return msg
	}

	out := &models.MLatestData{Type: msg.Type, Timestamp: msg.Timestamp}
	for _, t := range msg.Ticks {
		if _, ok := c.symbols[t.ID]; ok {
			out.Ticks = append(out.Ticks, t)
		}
	}
	for sym, bars := range msg.Bars {
		if _, ok := c.symbols[sym]; ok {
			if out.Bars == nil {
				out.Bars = make(map[string][]models.MPriceBar)
			}
			out.Bars[sym] = bars
		}
	}
	if len(out.Ticks) == 0 && len(out.Bars) == 0 {
		return nil
	}
	return out
}

// -----------------------------------------------------------------------------
// readPump - handles incoming commands and acts as the connection watchdog
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.hub.Logger.Debug("Client %s disconnected", c.remote)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.Logger.Info("WebSocket error from %s: %v", c.remote, err)
			}
			return
		}
		c.hub.HandleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages and pings
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.hub.Logger.Error("Failed to encode relay message: %v", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.Logger.Info("Write error to %s: %v", c.remote, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
