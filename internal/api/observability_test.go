package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"creature-tree/internal/config"
)

func TestDebugHandlerServesMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordConnectionRejected("origin")
	m.UpdateWSConnections(3)

	ts := httptest.NewServer(DebugHandler(reg))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `connection_rejected_total{reason="origin"} 1`)
	assert.Contains(t, string(body), "websocket_connections_active 3")

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(ts.URL + "/debug/pprof/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordConnectionRejected("rate_limit")
		m.RecordRequest("GET", "/health", 200, time.Millisecond)
		m.UpdateWSConnections(1)
		m.IncrementWSMessages()
		m.RecordRender(time.Millisecond)
	})
}

func TestRecordRender(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordRender(2 * time.Millisecond)
	m.RecordRender(3 * time.Millisecond)

	n, err := testutil.GatherAndCount(reg, "index_render_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{"0.0.0.0:6060", false},
		{":6060", false},
		{"10.1.2.3:6060", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, isLoopback(tt.addr))
		})
	}
}

func TestStartDebugServer(t *testing.T) {
	logger := zaptest.NewLogger(t)

	d, err := StartDebugServer(config.ObservabilityConfig{Enabled: false}, prometheus.NewRegistry(), logger)
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.NoError(t, d.Shutdown(context.Background()))

	d, err = StartDebugServer(config.ObservabilityConfig{Enabled: true, ListenAddr: "127.0.0.1:0"}, prometheus.NewRegistry(), logger)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.NoError(t, d.Shutdown(context.Background()))
}
