package server

import (
	"net/http"
	"sort"
	"strings"

	"yfinance-observer/src/metrics"
	"yfinance-observer/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
)

const (
	MessageTick    = "TICK"
	MessageBars    = "BARS"
	MessageInitial = "INITIAL"
)

// clientReply is a message for one client, delivered by the hub loop so it
// never races with the client's removal.
type clientReply struct {
	client  *Client
	message *models.MLatestData
}

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// runHub owns the client set. A client whose buffer is full is dropped so a
// slow consumer never blocks the loop.
func (s *RelayServer) runHub() {
	defer close(s.hubDone)
	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}
			metrics.RelayClients.Set(float64(len(s.clients)))

		case client := <-s.unregister:
			s.removeClient(client)

		case r := <-s.replies:
			if _, ok := s.clients[r.client]; ok {
				select {
				case r.client.send <- r.message:
				default:
				}
			}

		case message := <-s.broadcast:
			for client := range s.clients {
				filtered := client.filter(message)
				if filtered == nil {
					continue
				}
				select {
				case client.send <- filtered:
				default:
					s.Logger.Warning("Dropping slow websocket client %s", client.remote)
					metrics.RelayDroppedTotal.Inc()
					s.removeClient(client)
				}
			}

		case <-s.done:
			for client := range s.clients {
				s.removeClient(client)
			}
			return
		}
	}
}

func (s *RelayServer) removeClient(client *Client) {
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
		metrics.RelayClients.Set(float64(len(s.clients)))
	}
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// Broadcast accepts a tick, a tick slice or a bar map and queues it for
// every interested client. Anything else is ignored. The queue never blocks
// the caller; a full queue drops the message.
func (s *RelayServer) Broadcast(payload interface{}) {
	ts := s.now().UnixMilli()

	var msg *models.MLatestData
	switch v := payload.(type) {
	case models.MPricingData:
		msg = &models.MLatestData{Type: MessageTick, Ticks: []models.MPricingData{v}, Timestamp: ts}
	case []models.MPricingData:
		if len(v) == 0 {
			return
		}
		msg = &models.MLatestData{Type: MessageTick, Ticks: v, Timestamp: ts}
	case map[string][]models.MPriceBar:
		if len(v) == 0 {
			return
		}
		msg = &models.MLatestData{Type: MessageBars, Bars: v, Timestamp: ts}
	default:
		s.Logger.Warning("Broadcast ignoring payload of type %T", payload)
		return
	}

	s.stateMutex.Lock()
	for _, t := range msg.Ticks {
		if prev, ok := s.latest[t.ID]; !ok || t.Time >= prev.Time {
			s.latest[t.ID] = t
		}
	}
	s.lastUpdate = ts
	s.stateMutex.Unlock()

	select {
	case s.broadcast <- msg:
	case <-s.done:
	default:
		metrics.RelayDroppedTotal.Inc()
		s.Logger.Warning("Relay queue full, dropping %s message", msg.Type)
	}
}

// -----------------------------------------------------------------------------

// snapshot returns the latest tick of each symbol in symbols, or of every
// symbol when symbols is nil.
func (s *RelayServer) snapshot(symbols map[string]struct{}) *models.MLatestData {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()

	latest := make(map[string]models.MPricingData)
	for sym, t := range s.latest {
		if symbols == nil {
			latest[sym] = t
			continue
		}
		if _, ok := symbols[sym]; ok {
			latest[sym] = t
		}
	}
	return &models.MLatestData{Type: MessageInitial, Latest: latest, Timestamp: s.lastUpdate}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *RelayServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s, conn, c.ClientIP()+"/"+c.GetString(HeaderRequestID))
	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage applies a subscribe or unsubscribe command. Subscribing
// answers with an INITIAL snapshot of the requested symbols. A malformed
// command closes the connection.
func (s *RelayServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	symbols := normalizeSymbols(cmd.Symbols)
	switch strings.ToLower(cmd.Command) {
	case "subscribe":
		filter := client.subscribe(symbols)
		select {
		case s.replies <- clientReply{client: client, message: s.snapshot(filter)}:
		case <-s.done:
		}
	case "unsubscribe":
		client.unsubscribe(symbols)
	default:
		s.Logger.Debug("Ignoring client command %q", cmd.Command)
	}
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
