package streaming

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/metrics"
	"yfinance-observer/src/models"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateConnected
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateConnected:
		return "CONNECTED"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// -----------------------------------------------------------------------------

// Session owns one push connection to the pricing stream. A closed Session
// cannot be reconnected; build a new one.
type Session struct {
	url             string
	heartbeat       time.Duration
	shutdownTimeout time.Duration
	dialer          Dialer
	logger          *logger.Logger

	mu            sync.Mutex
	state         State
	dialing       bool
	conn          Conn
	callback      func(models.MPricingData)
	onClose       func(error)
	subscriptions map[string]struct{}
	stopPing      chan struct{}
	pingDone      chan struct{}

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

// NewSession builds an idle session. dialer may be nil to use gorilla with
// cfg's handshake settings.
func NewSession(cfg models.MStreamingConfig, dialer Dialer, log *logger.Logger) *Session {
	if log == nil {
		log = logger.NewLogger(nil, "StreamingSession")
	}
	if dialer == nil {
		dialer = NewGorillaDialer(cfg, "", nil)
	}
	return &Session{
		url:             cfg.URL,
		heartbeat:       cfg.HeartbeatInterval,
		shutdownTimeout: cfg.ShutdownTimeout,
		dialer:          dialer,
		logger:          log,
		subscriptions:   make(map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------

// Listen registers the tick callback. Ticks are delivered in arrival order
// from a single goroutine.
func (s *Session) Listen(callback func(models.MPricingData)) error {
	if callback == nil {
		return helpers.NewIllegalArgumentError("callback must not be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return helpers.NewIllegalStateError("session is closed")
	}
	s.callback = callback
	if s.state == StateIdle {
		s.state = StateListening
	}
	return nil
}

// OnClose registers a hook invoked once when the transport drops without
// Close being called.
func (s *Session) OnClose(hook func(error)) {
	s.mu.Lock()
	s.onClose = hook
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Connect dials the stream and starts the heartbeat and read loop. The lock
// is released while dialing; a Close that lands meanwhile wins and the new
// transport is discarded.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state == StateClosed:
		s.mu.Unlock()
		return helpers.NewIllegalStateError("session is closed")
	case s.callback == nil:
		s.mu.Unlock()
		return helpers.NewIllegalStateError("connect called before listen")
	case s.conn != nil:
		s.mu.Unlock()
		return nil
	case s.dialing:
		s.mu.Unlock()
		return helpers.NewIllegalStateError("connect already in progress")
	}
	s.dialing = true
	s.mu.Unlock()

	s.logger.Info("Connecting to %s", s.url)
	conn, err := s.dialer.Dial(ctx, s.url)

	s.mu.Lock()
	s.dialing = false
	if err != nil {
		s.mu.Unlock()
		metrics.ObserveFailure("stream_dial")
		return helpers.NewConnectionError(helpers.StatusTransportFailure, s.url, err)
	}
	if s.state == StateClosed {
		s.mu.Unlock()
		_ = conn.Close()
		return helpers.NewIllegalStateError("session closed while connecting")
	}

	s.conn = conn
	s.state = StateConnected
	s.stopPing = make(chan struct{})
	s.pingDone = make(chan struct{})
	callback := s.callback
	metrics.StreamConnected.Set(1)
	go s.pingLoop(conn, s.stopPing, s.pingDone)
	go s.readLoop(conn, callback)
	s.mu.Unlock()

	s.logger.Info("Connected to %s", s.url)
	return nil
}

// -----------------------------------------------------------------------------

// IsConnected reports whether a transport is open.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscriptions returns the subscribed symbols, sorted.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.subscriptions))
	for sym := range s.subscriptions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------

// Subscribe asks the server for ticks on symbols.
func (s *Session) Subscribe(symbols ...string) error {
	if len(symbols) == 0 {
		return helpers.NewIllegalArgumentError("no symbols to subscribe")
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return helpers.NewIllegalStateError("subscribe requires a connected session")
	}

	if err := s.send(conn, map[string][]string{"subscribe": symbols}); err != nil {
		return err
	}

	s.mu.Lock()
	if s.conn == conn {
		for _, sym := range symbols {
			s.subscriptions[sym] = struct{}{}
		}
		s.state = StateSubscribed
	}
	s.mu.Unlock()

	s.logger.Info("Subscribed to %v", symbols)
	return nil
}

// -----------------------------------------------------------------------------

// Unsubscribe stops ticks for symbols. On a disconnected session it only
// logs a warning.
func (s *Session) Unsubscribe(symbols ...string) error {
	if len(symbols) == 0 {
		return nil
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.logger.Warning("Unsubscribe %v ignored: session is not connected", symbols)
		return nil
	}

	if err := s.send(conn, map[string][]string{"unsubscribe": symbols}); err != nil {
		return err
	}

	s.mu.Lock()
	if s.conn == conn {
		for _, sym := range symbols {
			delete(s.subscriptions, sym)
		}
		if len(s.subscriptions) == 0 {
			s.state = StateConnected
		}
	}
	s.mu.Unlock()

	s.logger.Info("Unsubscribed from %v", symbols)
	return nil
}

// -----------------------------------------------------------------------------

func (s *Session) send(conn Conn, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return helpers.NewConnectionError(helpers.StatusTransportFailure, s.url, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return helpers.NewConnectionError(helpers.StatusTransportFailure, s.url, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Close stops the heartbeat, sends a normal-closure frame and releases the
// transport. Safe to call repeatedly.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	stop, done := s.stopPing, s.pingDone
	s.conn = nil
	s.state = StateClosed
	s.subscriptions = make(map[string]struct{})
	s.stopPing, s.pingDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		select {
		case <-done:
		case <-time.After(s.shutdownTimeout):
			s.logger.Warning("Heartbeat did not stop within %s, abandoning it", s.shutdownTimeout)
		}
	}

	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		s.logger.Debug("Close frame not sent: %v", err)
	}
	s.writeMu.Unlock()

	metrics.StreamConnected.Set(0)
	s.logger.Info("Session closed")
	return conn.Close()
}

// -----------------------------------------------------------------------------

func (s *Session) pingLoop(conn Conn, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if s.heartbeat <= 0 {
		<-stop
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				metrics.StreamPingErrorsTotal.Inc()
				s.logger.Warning("Heartbeat ping failed: %v", err)
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (s *Session) readLoop(conn Conn, callback func(models.MPricingData)) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			s.dropped(conn, err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		s.handleFrame(data, callback)
	}
}

// dropped tears down after the transport ends without Close.
func (s *Session) dropped(conn Conn, cause error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	stop := s.stopPing
	hook := s.onClose
	s.conn = nil
	s.state = StateClosed
	s.subscriptions = make(map[string]struct{})
	s.stopPing, s.pingDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	_ = conn.Close()
	metrics.StreamConnected.Set(0)

	if websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Info("Stream closed by peer: %v", cause)
	} else {
		s.logger.Error("Stream connection lost: %v", cause)
	}
	if hook != nil {
		hook(cause)
	}
}

// -----------------------------------------------------------------------------

func (s *Session) handleFrame(data []byte, callback func(models.MPricingData)) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		metrics.StreamDecodeErrorsTotal.WithLabelValues("envelope").Inc()
		s.logger.Warning("Dropping frame: %v", err)
		return
	}
	metrics.StreamFramesTotal.WithLabelValues(env.Type).Inc()

	if env.Type != MessageTypePricing {
		s.logger.Info("Ignoring %q frame", env.Type)
		return
	}

	tick, err := DecodePricingMessage(env.Message)
	if err != nil {
		metrics.StreamDecodeErrorsTotal.WithLabelValues("pricing").Inc()
		s.logger.Warning("Dropping pricing frame: %v", err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Tick callback panicked for %s: %v", tick.ID, r)
		}
	}()
	callback(tick)
}
