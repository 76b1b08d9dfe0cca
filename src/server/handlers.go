package server

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"yfinance-observer/src/data_source/yahoo"
	"yfinance-observer/src/helpers"
	"yfinance-observer/src/models"

	"github.com/gin-gonic/gin"
)

const defaultLatestLimit = 100

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *RelayServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	symbols := len(s.latest)
	lastUpdate := s.lastUpdate
	connected := s.connected
	s.stateMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"stream_connected": connected,
		"symbols":          symbols,
		"latest_update":    lastUpdate,
	})
}

// -----------------------------------------------------------------------------

type quoteResponse struct {
	Symbol  string                 `json:"symbol"`
	Modules map[string]interface{} `json:"modules"`
}

func (s *RelayServer) getQuote(c *gin.Context) {
	var modules []string
	if raw := c.Query("modules"); raw != "" {
		modules = strings.Split(raw, ",")
	}

	qs, err := s.Provider.QuoteSummary(c.Request.Context(), c.Param("symbol"), modules...)
	if err != nil {
		s.writeError(c, err)
		return
	}

	names := make([]string, 0, len(qs.Modules))
	for name := range qs.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := quoteResponse{Symbol: qs.Symbol, Modules: make(map[string]interface{}, len(names))}
	for _, name := range names {
		resp.Modules[name] = qs.Modules[name].Raw()
	}
	c.JSON(http.StatusOK, resp)
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getHistory(c *gin.Context) {
	q := yahoo.HistoryQuery{Symbol: c.Param("symbol")}

	if raw := c.Query("range"); raw != "" {
		r, err := yahoo.ParseRange(raw)
		if err != nil {
			s.writeError(c, err)
			return
		}
		q.Range = r
	}
	if raw := c.Query("interval"); raw != "" {
		i, err := yahoo.ParseInterval(raw)
		if err != nil {
			s.writeError(c, err)
			return
		}
		q.Interval = i
	}

	var err error
	if q.Start, err = unixQuery(c, "start"); err != nil {
		s.writeError(c, err)
		return
	}
	if q.End, err = unixQuery(c, "end"); err != nil {
		s.writeError(c, err)
		return
	}

	history, err := s.Provider.History(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// unixQuery reads an epoch-seconds parameter; absent is the zero time.
func unixQuery(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, helpers.NewIllegalArgumentError("%s must be epoch seconds, got %q", key, raw)
	}
	return time.Unix(sec, 0).UTC(), nil
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getFinancials(c *gin.Context) {
	statement, err := yahoo.ParseStatement(c.DefaultQuery("statement", string(yahoo.StatementIncome)))
	if err != nil {
		s.writeError(c, err)
		return
	}
	timescale, err := yahoo.ParseTimescale(c.DefaultQuery("timescale", string(yahoo.TimescaleAnnual)))
	if err != nil {
		s.writeError(c, err)
		return
	}

	summary, err := s.Provider.Financials(c.Request.Context(), c.Param("symbol"), statement, timescale)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// -----------------------------------------------------------------------------

func (s *RelayServer) regionQuery(c *gin.Context) (yahoo.Region, bool) {
	region, err := yahoo.ParseRegion(c.DefaultQuery("region", string(yahoo.RegionUS)))
	if err != nil {
		s.writeError(c, err)
		return "", false
	}
	return region, true
}

func (s *RelayServer) getMarketStatus(c *gin.Context) {
	region, ok := s.regionQuery(c)
	if !ok {
		return
	}
	status, err := s.Provider.MarketStatus(c.Request.Context(), region)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *RelayServer) getMarketSummary(c *gin.Context) {
	region, ok := s.regionQuery(c)
	if !ok {
		return
	}
	summary, err := s.Provider.MarketSummary(c.Request.Context(), region)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getLookup(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		s.writeError(c, helpers.NewIllegalArgumentError("q is required"))
		return
	}
	kind, err := yahoo.ParseLookupType(c.Query("type"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	result, err := s.Provider.Lookup(c.Request.Context(), query, kind)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// -----------------------------------------------------------------------------

func (s *RelayServer) getLatestTicks(c *gin.Context) {
	if s.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
		return
	}

	limit := defaultLatestLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(c, helpers.NewIllegalArgumentError("limit must be a positive integer, got %q", raw))
			return
		}
		limit = n
	}

	ticks, err := s.Store.LatestTicks(limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if ticks == nil {
		ticks = []models.MPricingData{}
	}
	c.JSON(http.StatusOK, ticks)
}

// -----------------------------------------------------------------------------
// Error mapping
// -----------------------------------------------------------------------------

// statusFor maps library errors to HTTP statuses. Upstream failures are 502
// except an upstream 404, which is passed through.
func statusFor(err error) int {
	var (
		argErr   *helpers.IllegalArgumentError
		connErr  *helpers.ConnectionError
		parseErr *helpers.ResponseParsingError
		redirErr *helpers.RedirectError
	)
	switch {
	case errors.As(err, &argErr):
		return http.StatusBadRequest
	case errors.As(err, &connErr):
		if connErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case errors.As(err, &parseErr), errors.As(err, &redirErr):
		return http.StatusBadGateway
	case helpers.IsAuthFailure(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *RelayServer) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Warning("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
