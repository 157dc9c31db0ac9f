package api

import (
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creature-tree/internal/game"
	"creature-tree/internal/game/proximity"
	"creature-tree/internal/game/spatial"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockEngine implements EngineInterface for testing
type mockEngine struct {
	creatures map[proximity.Handle]game.Creature
	neighbors []proximity.Neighbor
	nearest   []proximity.Handle
	snapshot  *game.Snapshot
	err       error

	lastPoint  spatial.Point
	lastRadius uint32
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		creatures: map[proximity.Handle]game.Creature{
			1: {ID: 1, Kind: "imp", X: 5000, Y: 5000, Health: game.MaxHealth},
		},
		neighbors: []proximity.Neighbor{{Handle: 2, Distance: 2828}, {Handle: 3, Distance: 3000}},
		nearest:   []proximity.Handle{1, 2, 3},
	}
}

func (m *mockEngine) IndexInfo() game.IndexInfo {
	return game.IndexInfo{Tick: 7, Generation: 7, Count: len(m.creatures), State: "queried", Backend: "rtree", Boundary: "center"}
}

func (m *mockEngine) Nearby(h proximity.Handle) (game.Creature, []proximity.Neighbor, error) {
	if m.err != nil {
		return game.Creature{}, nil, m.err
	}
	c, ok := m.creatures[h]
	if !ok {
		return game.Creature{}, nil, game.ErrUnknownCreature
	}
	return c, m.neighbors, nil
}

func (m *mockEngine) Nearest(p spatial.Point, radius uint32) ([]proximity.Handle, error) {
	m.lastPoint, m.lastRadius = p, radius
	if m.err != nil {
		return nil, m.err
	}
	return m.nearest, nil
}

func (m *mockEngine) Creatures() []game.Creature {
	out := make([]game.Creature, 0, len(m.creatures))
	for _, c := range m.creatures {
		out = append(out, c)
	}
	return out
}

func (m *mockEngine) Snapshot() *game.Snapshot {
	return m.snapshot
}

func testRouter(t *testing.T, engine EngineInterface) *httptest.Server {
	t.Helper()
	rl := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000, CleanupInterval: time.Hour}, nil)
	t.Cleanup(rl.Stop)
	ts := httptest.NewServer(NewRouter(RouterConfig{Engine: engine, RateLimiter: rl}))
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

// ============================================================================
// API Endpoint Tests
// ============================================================================

func TestAPIIndex(t *testing.T) {
	ts := testRouter(t, newMockEngine())

	var info game.IndexInfo
	getJSON(t, ts.URL+"/api/index", http.StatusOK, &info)
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, "queried", info.State)
	assert.Equal(t, uint64(7), info.Generation)
}

func TestAPICreatures(t *testing.T) {
	ts := testRouter(t, newMockEngine())

	var creatures []map[string]any
	getJSON(t, ts.URL+"/api/creatures", http.StatusOK, &creatures)
	require.Len(t, creatures, 1)
	assert.Equal(t, "imp", creatures[0]["kind"])
	assert.EqualValues(t, 5000, creatures[0]["x"])
}

func TestAPINearby(t *testing.T) {
	engine := newMockEngine()
	ts := testRouter(t, engine)

	var got nearbyResponse
	getJSON(t, ts.URL+"/api/nearby/1", http.StatusOK, &got)
	assert.Equal(t, proximity.Handle(1), got.Creature.ID)
	assert.Equal(t, engine.neighbors, got.Neighbors)

	getJSON(t, ts.URL+"/api/nearby/42", http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/api/nearby/abc", http.StatusBadRequest, nil)
	getJSON(t, ts.URL+"/api/nearby/4294967296", http.StatusBadRequest, nil)

	engine.err = errors.New("backend down")
	getJSON(t, ts.URL+"/api/nearby/1", http.StatusInternalServerError, nil)
}

func TestAPINearest(t *testing.T) {
	engine := newMockEngine()
	ts := testRouter(t, engine)

	var got nearestResponse
	getJSON(t, ts.URL+"/api/nearest?x=5000&y=-20&r=3000", http.StatusOK, &got)
	assert.Equal(t, []proximity.Handle{1, 2, 3}, got.Handles)
	assert.Equal(t, spatial.Point{X: 5000, Y: -20}, engine.lastPoint)
	assert.Equal(t, uint32(3000), engine.lastRadius)

	tests := []string{
		"/api/nearest",
		"/api/nearest?x=1&y=1",
		"/api/nearest?x=1&y=1&r=-5",
		"/api/nearest?x=99999999999&y=1&r=5",
		"/api/nearest?x=one&y=1&r=5",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			getJSON(t, ts.URL+path, http.StatusBadRequest, nil)
		})
	}

	engine.err = errors.New("backend down")
	getJSON(t, ts.URL+"/api/nearest?x=1&y=1&r=5", http.StatusInternalServerError, nil)
}

func TestAPISnapshotAndPNG(t *testing.T) {
	engine := newMockEngine()
	ts := testRouter(t, engine)

	getJSON(t, ts.URL+"/api/snapshot", http.StatusServiceUnavailable, nil)
	resp, err := http.Get(ts.URL + "/debug/index.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	engine.snapshot = &game.Snapshot{
		WorldWidth:  20000,
		WorldHeight: 20000,
		Backend:     "rtree",
		Creatures: []game.CreatureSnapshot{
			{ID: 1, Box: spatial.BoxAround(spatial.Point{X: 5000, Y: 5000}, 300), Health: game.MaxHealth},
		},
		Stats: game.TickStats{Tick: 3},
	}

	var snap game.Snapshot
	getJSON(t, ts.URL+"/api/snapshot", http.StatusOK, &snap)
	assert.Equal(t, uint64(3), snap.Stats.Tick)
	require.Len(t, snap.Creatures, 1)

	resp, err = http.Get(ts.URL + "/debug/index.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds().Dx(), img.Bounds().Dy(), "square world renders square")
}

func TestAPIHealthAndUnknownRoute(t *testing.T) {
	ts := testRouter(t, newMockEngine())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPICORS(t *testing.T) {
	ts := testRouter(t, newMockEngine())

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/index", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAPIRateLimit(t *testing.T) {
	rl := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2, CleanupInterval: time.Hour}, nil)
	defer rl.Stop()
	ts := httptest.NewServer(NewRouter(RouterConfig{Engine: newMockEngine(), RateLimiter: rl}))
	defer ts.Close()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, map[string]uint64{"allowed": 2, "rejected": 1, "route_rejected": 0}, rl.GetStats())
}

func TestAPIRecordsRequestMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	rl := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}, metrics)
	defer rl.Stop()
	ts := httptest.NewServer(NewRouter(RouterConfig{Engine: newMockEngine(), RateLimiter: rl, Metrics: metrics}))
	defer ts.Close()

	for _, path := range []string{"/api/nearby/1", "/api/nearby/2", "/api/nearby/1"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
	}

	ok := metrics.requestTotal.WithLabelValues("GET", "/api/nearby/{handle}", "OK")
	notFound := metrics.requestTotal.WithLabelValues("GET", "/api/nearby/{handle}", "Not Found")
	assert.Equal(t, float64(2), testutil.ToFloat64(ok))
	assert.Equal(t, float64(1), testutil.ToFloat64(notFound))
}

func TestAPIRenderRouteBudget(t *testing.T) {
	engine := newMockEngine()
	engine.snapshot = &game.Snapshot{WorldWidth: 1000, WorldHeight: 1000}
	metrics := NewMetrics(prometheus.NewRegistry())
	rl := NewIPRateLimiter(RateLimitConfig{
		RequestsPerSecond: 1000,
		Burst:             1000,
		CleanupInterval:   time.Hour,
		Routes:            map[string]RouteLimit{RouteRender: {RequestsPerSecond: 0.001, Burst: 1}},
	}, metrics)
	defer rl.Stop()
	ts := httptest.NewServer(NewRouter(RouterConfig{Engine: engine, RateLimiter: rl, Metrics: metrics}))
	defer ts.Close()

	status := func(path string) int {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, status("/debug/index.png"))
	assert.Equal(t, http.StatusTooManyRequests, status("/debug/index.png"))
	assert.Equal(t, http.StatusOK, status("/api/index"), "JSON routes keep the global budget")

	assert.Equal(t, uint64(1), rl.GetStats()["route_rejected"])
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.connectionRejected.WithLabelValues("rate_limit_render")))
}
