package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yfinance_http_requests_total",
		Help: "Upstream HTTP requests, partitioned by final status code",
	}, []string{"code"})
	HTTPRedirectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yfinance_http_redirects_total",
		Help: "Redirect hops followed",
	})
	HTTPFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yfinance_http_failures_total",
		Help: "Failed upstream requests",
	}, []string{"kind"}) // transport/status/redirect/parse
	HTTPDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yfinance_http_request_duration_seconds",
		Help:    "Duration of an upstream request including redirects",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	CredentialRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yfinance_credential_refresh_total",
		Help: "Cookie and crumb acquisitions",
	}, []string{"kind", "result"})

	StreamConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yfinance_stream_connected",
		Help: "1 while the streaming session holds an open connection",
	})
	StreamFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yfinance_stream_frames_total",
		Help: "Streaming frames received, partitioned by envelope type",
	}, []string{"type"})
	StreamDecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yfinance_stream_decode_errors_total",
		Help: "Streaming frames dropped because they could not be decoded",
	}, []string{"stage"}) // envelope/base64/protobuf
	StreamPingErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yfinance_stream_ping_errors_total",
		Help: "Heartbeat ping send errors",
	})

	RelayClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yfinance_relay_clients",
		Help: "Connected relay websocket clients",
	})
	RelayDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yfinance_relay_dropped_total",
		Help: "Relay messages dropped for slow clients",
	})
)

// ObserveRequest records the outcome of one upstream request.
func ObserveRequest(code int, dur time.Duration) {
	HTTPRequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	HTTPDuration.Observe(dur.Seconds())
}

func ObserveFailure(kind string) {
	HTTPFailuresTotal.WithLabelValues(kind).Inc()
}

func ObserveCredential(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CredentialRefreshTotal.WithLabelValues(kind, result).Inc()
}
