package streaming_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"yfinance-observer/src/helpers"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"
	"yfinance-observer/src/streaming"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const fakeStreamURL = "wss://example.invalid/?version=2"

func testStreamingConfig(url string) models.MStreamingConfig {
	return models.MStreamingConfig{
		URL:               url,
		HeartbeatInterval: time.Hour,
		ShutdownTimeout:   time.Second,
		HandshakeTimeout:  2 * time.Second,
		ReadBufferSize:    4096,
	}
}

// blockingConn wires ReadMessage to block until Close is called.
func blockingConn(ctrl *gomock.Controller) *MockConn {
	conn := NewMockConn(ctrl)
	closed := make(chan struct{})

	conn.EXPECT().ReadMessage().DoAndReturn(func() (int, []byte, error) {
		<-closed
		return 0, nil, errors.New("use of closed network connection")
	}).AnyTimes()
	conn.EXPECT().Close().DoAndReturn(func() error {
		select {
		case <-closed:
		default:
			close(closed)
		}
		return nil
	}).AnyTimes()

	return conn
}

// -----------------------------------------------------------------------------

func TestConnectBeforeListenDoesNoIO(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := NewMockDialer(ctrl)

	s := streaming.NewSession(testStreamingConfig(fakeStreamURL), dialer, logger.NewNop())
	assert.Equal(t, streaming.StateIdle, s.State())

	err := s.Connect(context.Background())
	var stateErr *helpers.IllegalStateError
	require.True(t, errors.As(err, &stateErr), "got %v", err)
	assert.False(t, s.IsConnected())
}

func TestSubscribeBeforeConnectFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := streaming.NewSession(testStreamingConfig(fakeStreamURL), NewMockDialer(ctrl), logger.NewNop())
	require.NoError(t, s.Listen(func(models.MPricingData) {}))
	assert.Equal(t, streaming.StateListening, s.State())

	err := s.Subscribe("AAPL")
	var stateErr *helpers.IllegalStateError
	require.True(t, errors.As(err, &stateErr))

	assert.NoError(t, s.Unsubscribe("AAPL"), "unsubscribe on a dead session is a no-op")
}

func TestDialFailureIsConnectionError(t *testing.T) {
	ctrl := gomock.NewController(t)
	dialer := NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any(), fakeStreamURL).Return(nil, errors.New("refused"))

	s := streaming.NewSession(testStreamingConfig(fakeStreamURL), dialer, logger.NewNop())
	require.NoError(t, s.Listen(func(models.MPricingData) {}))

	err := s.Connect(context.Background())
	var connErr *helpers.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, helpers.StatusTransportFailure, connErr.StatusCode)
	assert.Equal(t, streaming.StateListening, s.State())
}

func TestCloseIsIdempotentAndTerminal(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := streaming.NewSession(testStreamingConfig(fakeStreamURL), NewMockDialer(ctrl), logger.NewNop())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, streaming.StateClosed, s.State())

	var stateErr *helpers.IllegalStateError
	assert.True(t, errors.As(s.Listen(func(models.MPricingData) {}), &stateErr))
	assert.True(t, errors.As(s.Connect(context.Background()), &stateErr))
}

// -----------------------------------------------------------------------------

// slowDial makes dialer block until release is closed, announcing the call
// on entered.
func slowDial(dialer *MockDialer, conn streaming.Conn) (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	dialer.EXPECT().Dial(gomock.Any(), fakeStreamURL).DoAndReturn(func(context.Context, string) (streaming.Conn, error) {
		close(entered)
		<-release
		return conn, nil
	})
	return entered, release
}

func TestQueriesDoNotWaitForPendingDial(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := blockingConn(ctrl)
	conn.EXPECT().WriteControl(websocket.CloseMessage, gomock.Any(), gomock.Any()).Return(nil)
	dialer := NewMockDialer(ctrl)
	entered, release := slowDial(dialer, conn)

	s := streaming.NewSession(testStreamingConfig(fakeStreamURL), dialer, logger.NewNop())
	require.NoError(t, s.Listen(func(models.MPricingData) {}))

	connected := make(chan error, 1)
	go func() { connected <- s.Connect(context.Background()) }()
	<-entered

	answered := make(chan bool, 1)
	go func() { answered <- s.IsConnected() }()
	select {
	case ok := <-answered:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("IsConnected blocked behind the dial")
	}
	assert.Equal(t, streaming.StateListening, s.State())

	var stateErr *helpers.IllegalStateError
	assert.True(t, errors.As(s.Connect(context.Background()), &stateErr), "second connect while dialing")

	close(release)
	require.NoError(t, <-connected)
	assert.True(t, s.IsConnected())
	require.NoError(t, s.Close())
}

func TestCloseDuringDialDiscardsTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := NewMockConn(ctrl)
	conn.EXPECT().Close().Return(nil)
	dialer := NewMockDialer(ctrl)
	entered, release := slowDial(dialer, conn)

	s := streaming.NewSession(testStreamingConfig(fakeStreamURL), dialer, logger.NewNop())
	require.NoError(t, s.Listen(func(models.MPricingData) {}))

	connected := make(chan error, 1)
	go func() { connected <- s.Connect(context.Background()) }()
	<-entered

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind the dial")
	}

	close(release)
	var stateErr *helpers.IllegalStateError
	require.True(t, errors.As(<-connected, &stateErr))
	assert.False(t, s.IsConnected())
	assert.Equal(t, streaming.StateClosed, s.State())
}

func TestSubscribeLifecycleOverMockConn(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := blockingConn(ctrl)
	dialer := NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any(), fakeStreamURL).Return(conn, nil)

	gomock.InOrder(
		conn.EXPECT().SetWriteDeadline(gomock.Any()).Return(nil),
		conn.EXPECT().WriteMessage(websocket.TextMessage, []byte(`{"subscribe":["AAPL","MSFT"]}`)).Return(nil),
		conn.EXPECT().SetWriteDeadline(gomock.Any()).Return(nil),
		conn.EXPECT().WriteMessage(websocket.TextMessage, []byte(`{"unsubscribe":["AAPL"]}`)).Return(nil),
		conn.EXPECT().WriteControl(websocket.CloseMessage, gomock.Any(), gomock.Any()).Return(nil),
	)

	s := streaming.NewSession(testStreamingConfig(fakeStreamURL), dialer, logger.NewNop())
	require.NoError(t, s.Listen(func(models.MPricingData) {}))
	require.NoError(t, s.Connect(context.Background()))
	assert.True(t, s.IsConnected())
	assert.Equal(t, streaming.StateConnected, s.State())

	require.NoError(t, s.Subscribe("AAPL", "MSFT"))
	assert.Equal(t, streaming.StateSubscribed, s.State())
	assert.Equal(t, []string{"AAPL", "MSFT"}, s.Subscriptions())

	require.NoError(t, s.Unsubscribe("AAPL"))
	assert.Equal(t, []string{"MSFT"}, s.Subscriptions())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.IsConnected())
	assert.Empty(t, s.Subscriptions())
	assert.Equal(t, streaming.StateClosed, s.State())
}

func TestSubscribeSendFailureIsConnectionError(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := blockingConn(ctrl)
	dialer := NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(conn, nil)
	conn.EXPECT().SetWriteDeadline(gomock.Any()).Return(nil)
	conn.EXPECT().WriteMessage(gomock.Any(), gomock.Any()).Return(errors.New("broken pipe"))
	conn.EXPECT().WriteControl(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	s := streaming.NewSession(testStreamingConfig(fakeStreamURL), dialer, logger.NewNop())
	require.NoError(t, s.Listen(func(models.MPricingData) {}))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	err := s.Subscribe("AAPL")
	var connErr *helpers.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Empty(t, s.Subscriptions())
}

func TestHeartbeatFailuresAreNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	conn := blockingConn(ctrl)
	dialer := NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(conn, nil)

	pinged := make(chan struct{}, 8)
	conn.EXPECT().WriteControl(websocket.PingMessage, gomock.Any(), gomock.Any()).DoAndReturn(
		func(int, []byte, time.Time) error {
			select {
			case pinged <- struct{}{}:
			default:
			}
			return errors.New("write timeout")
		}).MinTimes(2)
	conn.EXPECT().WriteControl(websocket.CloseMessage, gomock.Any(), gomock.Any()).Return(nil)

	cfg := testStreamingConfig(fakeStreamURL)
	cfg.HeartbeatInterval = 10 * time.Millisecond
	s := streaming.NewSession(cfg, dialer, logger.NewNop())
	require.NoError(t, s.Listen(func(models.MPricingData) {}))
	require.NoError(t, s.Connect(context.Background()))

	for i := 0; i < 2; i++ {
		select {
		case <-pinged:
		case <-time.After(2 * time.Second):
			t.Fatal("heartbeat never fired")
		}
	}
	assert.True(t, s.IsConnected())
	require.NoError(t, s.Close())
}

// -----------------------------------------------------------------------------

func TestSessionAgainstWebsocketServer(t *testing.T) {
	tick := sampleTick()
	subscribed := make(chan string, 1)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		subscribed <- string(msg)

		frames := []string{
			`not json`,
			`{"type":"heartbeat","message":""}`,
			`{"type":"pricing","message":"%%%"}`,
			fmt.Sprintf(`{"type":"pricing","message":%q}`, base64.StdEncoding.EncodeToString([]byte{0xff})),
			fmt.Sprintf(`{"type":"pricing","message":%q}`, streaming.EncodePricingMessage(tick)),
		}
		for _, f := range frames {
			if err := c.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	s := streaming.NewSession(testStreamingConfig("ws"+strings.TrimPrefix(srv.URL, "http")), nil, logger.NewNop())

	ticks := make(chan models.MPricingData, 4)
	closed := make(chan error, 1)
	require.NoError(t, s.Listen(func(p models.MPricingData) { ticks <- p }))
	s.OnClose(func(err error) { closed <- err })

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Subscribe("BTC-USD"))
	assert.Equal(t, `{"subscribe":["BTC-USD"]}`, <-subscribed)

	select {
	case got := <-ticks:
		if diff := cmp.Diff(tick, got); diff != "" {
			t.Errorf("tick mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick delivered")
	}

	select {
	case err := <-closed:
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
	case <-time.After(2 * time.Second):
		t.Fatal("close hook not called")
	}

	assert.Empty(t, ticks, "malformed frames must be dropped")
	assert.False(t, s.IsConnected())
	assert.Equal(t, streaming.StateClosed, s.State())
	assert.Empty(t, s.Subscriptions())
	require.NoError(t, s.Close())
}

func TestCallbackPanicDoesNotKillReadLoop(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for _, id := range []string{"BOOM", "OK"} {
			msg := streaming.EncodePricingMessage(models.MPricingData{ID: id})
			_ = c.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(`{"type":"pricing","message":%q}`, msg)))
		}
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	s := streaming.NewSession(testStreamingConfig("ws"+strings.TrimPrefix(srv.URL, "http")), nil, logger.NewNop())
	got := make(chan string, 2)
	require.NoError(t, s.Listen(func(p models.MPricingData) {
		if p.ID == "BOOM" {
			panic("callback failure")
		}
		got <- p.ID
	}))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	select {
	case id := <-got:
		assert.Equal(t, "OK", id)
	case <-time.After(2 * time.Second):
		t.Fatal("read loop stopped after a callback panic")
	}
}
