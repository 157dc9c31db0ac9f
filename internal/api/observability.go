package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"creature-tree/internal/config"
)

// Metrics with bounded cardinality (no per-creature or per-IP labels).
// A nil *Metrics records nothing.
type Metrics struct {
	connectionRejected  *prometheus.CounterVec
	requestLatency      *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	wsConnectionsActive prometheus.Gauge
	wsMessagesTotal     prometheus.Counter
	renderDuration      prometheus.Histogram
}

// NewMetrics creates the HTTP metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connectionRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "connection_rejected_total",
			Help: "Connections rejected by rate limiter or origin check",
		}, []string{"reason"}), // Bounded: "rate_limit", "rate_limit_<route>", "origin", "ws_total_limit", "ws_ip_limit"
		requestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}), // endpoint is the route pattern, not the URL
		requestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		wsConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Currently active WebSocket connections",
		}),
		wsMessagesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "websocket_messages_total",
			Help: "Total WebSocket messages sent",
		}),
		renderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "index_render_duration_seconds",
			Help:    "Time spent rendering an index snapshot",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

// RecordConnectionRejected increments the rejection counter
func (m *Metrics) RecordConnectionRejected(reason string) {
	if m == nil {
		return
	}
	m.connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func (m *Metrics) UpdateWSConnections(count int) {
	if m == nil {
		return
	}
	m.wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func (m *Metrics) IncrementWSMessages() {
	if m == nil {
		return
	}
	m.wsMessagesTotal.Inc()
}

// RecordRender records render timing
func (m *Metrics) RecordRender(duration time.Duration) {
	if m == nil {
		return
	}
	m.renderDuration.Observe(duration.Seconds())
}

// DebugHandler serves pprof, the metrics gathered from g, and a health check.
func DebugHandler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", handleHealth)
	return mux
}

// DebugServer is the internal observability listener.
type DebugServer struct {
	srv    *http.Server
	logger *zap.Logger
}

// StartDebugServer starts the internal observability server. It returns a nil
// server when disabled.
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS
func StartDebugServer(cfg config.ObservabilityConfig, g prometheus.Gatherer, logger *zap.Logger) (*DebugServer, error) {
	if !cfg.Enabled {
		logger.Info("debug server disabled")
		return nil, nil
	}

	addr := cfg.ListenAddr
	if !isLoopback(addr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		logger.Warn("debug server forced to localhost", zap.String("requested", addr))
		addr = config.DefaultObservability().ListenAddr
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	d := &DebugServer{
		srv:    &http.Server{Handler: DebugHandler(g), ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
	go func() {
		if err := d.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("debug server error", zap.Error(err))
		}
	}()
	logger.Info("debug server started",
		zap.String("pprof", "http://"+ln.Addr().String()+"/debug/pprof/"),
		zap.String("metrics", "http://"+ln.Addr().String()+"/metrics"))
	return d, nil
}

// Shutdown stops the debug server.
func (d *DebugServer) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	return d.srv.Shutdown(ctx)
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
