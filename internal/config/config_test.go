package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "rtree", cfg.Spatial.Backend)
	assert.Equal(t, 2, cfg.Spatial.MinChildren)
	assert.Equal(t, 4, cfg.Spatial.MaxChildren)
	assert.Equal(t, "127.0.0.1:6060", cfg.Observability.ListenAddr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SPATIAL_BACKEND", "grid")
	t.Setenv("WORLD_CREATURES", "0")
	t.Setenv("TICK_RATE", "not-a-number")
	t.Setenv("PORT", "8088")
	t.Setenv("DISABLE_DEBUG_SERVER", "true")

	cfg := Load()
	assert.Equal(t, "grid", cfg.Spatial.Backend)
	assert.Equal(t, 0, cfg.World.Creatures)
	assert.Equal(t, DefaultWorld().TickRate, cfg.World.TickRate, "bad values fall back to the default")
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.False(t, cfg.Observability.Enabled)
}

func TestLoadFileMergesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "app.yaml", `
spatial:
  backend: grid
  grid_cell_size: 1024
world:
  creatures: 50
log:
  level: debug
`)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "grid", cfg.Spatial.Backend)
	assert.Equal(t, 1024, cfg.Spatial.GridCellSize)
	assert.Equal(t, 4, cfg.Spatial.MaxChildren, "unset keys keep defaults")
	assert.Equal(t, 50, cfg.World.Creatures)
	assert.Equal(t, DefaultWorld().Width, cfg.World.Width)
	assert.Equal(t, "warn", cfg.Log.Level, "environment wins over the file")
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadFile(writeFile(t, dir, "broken.yaml", "spatial: [unclosed"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, dir, "invalid.yaml", "spatial:\n  backend: octree\n  min_children: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "octree")
	assert.Contains(t, err.Error(), "children bounds")
}

func TestLoadCreatureStats(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stats.yaml", `
creatures:
  imp: {visual_range: 2560, solid_size: 256, speed: 48}
  bile_demon:
    visual_range: 1800
    solid_size: 512
`)
	table, err := LoadCreatureStats(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"bile_demon", "imp"}, table.Kinds())
	assert.Equal(t, CreatureStats{VisualRange: 1800, SolidSize: 512}, table["bile_demon"])

	_, err = LoadCreatureStats(writeFile(t, dir, "empty.yaml", "creatures: {}\n"))
	assert.Error(t, err)

	_, err = LoadCreatureStats(writeFile(t, dir, "neg.yaml", "creatures:\n  imp: {solid_size: -1}\n"))
	assert.Error(t, err)

	require.NoError(t, DefaultCreatureStats().Validate())
}

func TestStatsValidateBoundsVisualRange(t *testing.T) {
	ok := StatsTable{"imp": {VisualRange: MaxVisualRange}}
	assert.NoError(t, ok.Validate())

	wide := StatsTable{"imp": {VisualRange: MaxVisualRange + 1}}
	assert.ErrorContains(t, wide.Validate(), "visual_range")

	_, err := LoadCreatureStats(writeFile(t, t.TempDir(), "wide.yaml", "creatures:\n  imp: {visual_range: 4294967295}\n"))
	assert.Error(t, err)
}

func TestStatsWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "stats.yaml", "creatures:\n  imp: {visual_range: 100}\n")

	w, err := NewStatsWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, dir, "other.yaml", "ignored: true\n")
	writeFile(t, dir, "stats.yaml", "creatures:\n  imp: {visual_range: 200}\n")

	select {
	case table := <-w.Updates:
		assert.Equal(t, uint32(200), table["imp"].VisualRange)
	case err := <-w.Errors:
		t.Fatalf("unexpected watcher error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the stats file changed")
	}

	writeFile(t, dir, "stats.yaml", "creatures: {}\n")
	select {
	case err := <-w.Errors:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no error for an invalid stats file")
	}

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "Close is idempotent")
}
