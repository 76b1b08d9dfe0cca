package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"yfinance-observer/src/data_source/yahoo"
	"yfinance-observer/src/interfaces"
	"yfinance-observer/src/logger"
	"yfinance-observer/src/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StreamHealthService is the gRPC health service name tracking the upstream
// stream. The empty service name reports the process itself.
const StreamHealthService = "yfinance.Stream"

// Provider is the part of yahoo.Client the REST routes serve.
type Provider interface {
	QuoteSummary(ctx context.Context, symbol string, modules ...string) (yahoo.QuoteSummary, error)
	History(ctx context.Context, q yahoo.HistoryQuery) (models.MStockHistory, error)
	MarketStatus(ctx context.Context, region yahoo.Region) ([]models.MMarketStatus, error)
	MarketSummary(ctx context.Context, region yahoo.Region) ([]models.MMarketSummary, error)
	Lookup(ctx context.Context, query string, kind yahoo.LookupType) (models.MLookupResult, error)
	Financials(ctx context.Context, symbol string, statement yahoo.Statement, timescale yahoo.Timescale) (models.MFinancialSummary, error)
}

// -----------------------------------------------------------------------------
// RelayServer
// -----------------------------------------------------------------------------

// RelayServer serves the REST API, the live tick websocket and the gRPC
// health service.
type RelayServer struct {
	Config   *models.MConfig
	Logger   *logger.Logger
	Provider Provider
	Store    interfaces.IDatabase
	engine   *gin.Engine

	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
	httpAddr   net.Addr
	grpcAddr   net.Addr

	// WebSocket clients, owned by the hub loop
	clients    map[*Client]struct{}
	broadcast  chan *models.MLatestData
	register   chan *Client
	unregister chan *Client
	replies    chan clientReply
	done       chan struct{}
	hubDone    chan struct{}
	stopOnce   sync.Once

	// Latest tick per symbol and last update time
	latest     map[string]models.MPricingData
	lastUpdate int64
	connected  bool
	stateMutex sync.RWMutex

	now func() time.Time
}

// -----------------------------------------------------------------------------

// NewRelayServer wires routes. store may be nil, in which case the stored
// tick route answers 503.
func NewRelayServer(cfg *models.MConfig, provider Provider, store interfaces.IDatabase, log *logger.Logger) *RelayServer {
	if log == nil {
		log = logger.NewLogger(cfg, "RelayServer")
	}
	if cfg.GetLogLevel() != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &RelayServer{
		Config:     cfg,
		Logger:     log,
		Provider:   provider,
		Store:      store,
		engine:     gin.New(),
		health:     health.NewServer(),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan *models.MLatestData, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		replies:    make(chan clientReply),
		done:       make(chan struct{}),
		hubDone:    make(chan struct{}),
		latest:     make(map[string]models.MPricingData),
		now:        time.Now,
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(StreamHealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	s.engine.Use(
		gin.Recovery(),
		requestID,
		s.requestLogger(),
		cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{http.MethodGet, http.MethodOptions},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Cache-Control", HeaderRequestID},
			ExposeHeaders:   []string{HeaderRequestID},
			MaxAge:          12 * time.Hour,
		}),
	)
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------

// HeaderRequestID carries the per-request id, echoed back when the caller
// supplies one.
const HeaderRequestID = "X-Request-Id"

func requestID(c *gin.Context) {
	id := c.GetHeader(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(HeaderRequestID, id)
	c.Header(HeaderRequestID, id)
	c.Next()
}

func (s *RelayServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("[%s] %s %s -> %d (%s)", c.GetString(HeaderRequestID), c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// -----------------------------------------------------------------------------

func (s *RelayServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/quote/:symbol", s.getQuote)
	api.GET("/history/:symbol", s.getHistory)
	api.GET("/financials/:symbol", s.getFinancials)
	api.GET("/market/status", s.getMarketStatus)
	api.GET("/market/summary", s.getMarketSummary)
	api.GET("/lookup", s.getLookup)
	api.GET("/ticks/latest", s.getLatestTicks)

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/ws", s.handleWebSocket)
}

// Handler exposes the engine for tests and embedding.
func (s *RelayServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start binds the HTTP listener (and the gRPC one when GrpcPort is set) and
// serves in the background. Bind errors are returned.
func (s *RelayServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.httpAddr = ln.Addr()
	s.httpServer = &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	if s.Config.Server.GrpcPort > 0 {
		gaddr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.GrpcPort)
		gln, err := net.Listen("tcp", gaddr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("listen %s: %w", gaddr, err)
		}
		s.grpcAddr = gln.Addr()
		s.grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(s.grpcServer, s.health)

		go func() {
			s.Logger.Info("Starting gRPC health service on %s", s.grpcAddr)
			if err := s.grpcServer.Serve(gln); err != nil {
				s.Logger.Error("gRPC server failed: %v", err)
			}
		}()
	}

	go s.runHub()
	go func() {
		s.Logger.Info("Starting relay server on %s", s.httpAddr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error("Relay server failed: %v", err)
		}
	}()
	return nil
}

// Addr is the bound HTTP address, nil before Start.
func (s *RelayServer) Addr() net.Addr { return s.httpAddr }

// GrpcAddr is the bound gRPC address, nil when gRPC is disabled.
func (s *RelayServer) GrpcAddr() net.Addr { return s.grpcAddr }

// -----------------------------------------------------------------------------

// Stop drains HTTP within ctx, stops gRPC and closes every websocket client.
func (s *RelayServer) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.health.Shutdown()
		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}
		if s.grpcServer != nil {
			stopped := make(chan struct{})
			go func() {
				s.grpcServer.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				s.grpcServer.Stop()
			}
		}
		close(s.done)
		if s.httpServer != nil {
			<-s.hubDone
		}
		s.Logger.Info("Relay server stopped")
	})
	return err
}

// -----------------------------------------------------------------------------

// SetStreamConnected flips the stream health status.
func (s *RelayServer) SetStreamConnected(connected bool) {
	s.stateMutex.Lock()
	s.connected = connected
	s.stateMutex.Unlock()

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(StreamHealthService, status)
}
