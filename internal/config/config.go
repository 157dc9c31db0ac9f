// Package config provides centralized configuration management.
//
// Values come from three layers, later ones winning: the Default*()
// constructors, an optional YAML file (LoadFile), and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// SPATIAL INDEX CONFIGURATION
// =============================================================================

// SpatialConfig holds creature index settings.
type SpatialConfig struct {
	Backend      string `yaml:"backend"`        // "rtree" or "grid"
	MinChildren  int    `yaml:"min_children"`   // R-tree node fill lower bound
	MaxChildren  int    `yaml:"max_children"`   // R-tree node fan-out
	GridCellSize int    `yaml:"grid_cell_size"` // grid backend cell edge, subtiles
	Boundary     string `yaml:"boundary"`       // "center" or "box"
}

// DefaultSpatial returns the default spatial configuration.
func DefaultSpatial() SpatialConfig {
	return SpatialConfig{
		Backend:      "rtree",
		MinChildren:  2,
		MaxChildren:  4,
		GridCellSize: 2048,
		Boundary:     "center",
	}
}

// =============================================================================
// WORLD / SIMULATION CONFIGURATION
// =============================================================================

// WorldConfig sizes the simulated map and its population.
type WorldConfig struct {
	Width     int    `yaml:"width"`  // subtiles
	Height    int    `yaml:"height"` // subtiles
	Creatures int    `yaml:"creatures"`
	TickRate  int    `yaml:"tick_rate"` // game turns per second
	Seed      int64  `yaml:"seed"`      // 0 = time based
	StatsFile string `yaml:"stats_file"`
	EventLog  string `yaml:"event_log"` // JSON Lines path, empty = off
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Width:     85 * 256, // 85 slabs of 256 subtiles
		Height:    85 * 256,
		Creatures: 300,
		TickRate:  20,
	}
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP debug API settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 3000,
	}
}

// ObservabilityConfig configures the pprof/metrics listener.
type ObservabilityConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"` // keep on localhost
}

// DefaultObservability returns safe defaults.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// LogConfig selects the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Spatial       SpatialConfig       `yaml:"spatial"`
	World         WorldConfig         `yaml:"world"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
	Log           LogConfig           `yaml:"log"`
}

// Default returns the configuration without file or environment overrides.
func Default() AppConfig {
	return AppConfig{
		Spatial:       DefaultSpatial(),
		World:         DefaultWorld(),
		Server:        DefaultServer(),
		Observability: DefaultObservability(),
		Log:           LogConfig{Level: "info"},
	}
}

// Load returns the default configuration with environment overrides.
func Load() AppConfig {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML file on top of the defaults, then applies environment
// overrides. Keys missing from the file keep their default values.
func LoadFile(path string) (AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would make the index or the world unusable.
func (c AppConfig) Validate() error {
	var errs []error
	switch c.Spatial.Backend {
	case "rtree", "grid":
	default:
		errs = append(errs, fmt.Errorf("spatial.backend %q is not rtree or grid", c.Spatial.Backend))
	}
	switch strings.ToLower(c.Spatial.Boundary) {
	case "center", "box":
	default:
		errs = append(errs, fmt.Errorf("spatial.boundary %q is not center or box", c.Spatial.Boundary))
	}
	if c.Spatial.MaxChildren < 2 || c.Spatial.MinChildren < 1 || c.Spatial.MinChildren > c.Spatial.MaxChildren/2 {
		errs = append(errs, fmt.Errorf("spatial children bounds %d..%d are invalid", c.Spatial.MinChildren, c.Spatial.MaxChildren))
	}
	if c.Spatial.GridCellSize <= 0 {
		errs = append(errs, errors.New("spatial.grid_cell_size must be positive"))
	}
	if c.World.Width <= 0 || c.World.Height <= 0 {
		errs = append(errs, errors.New("world dimensions must be positive"))
	}
	if c.World.TickRate <= 0 {
		errs = append(errs, errors.New("world.tick_rate must be positive"))
	}
	if c.World.Creatures < 0 {
		errs = append(errs, errors.New("world.creatures must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *AppConfig) applyEnv() {
	if v := os.Getenv("SPATIAL_BACKEND"); v != "" {
		c.Spatial.Backend = v
	}
	if v := os.Getenv("SPATIAL_BOUNDARY"); v != "" {
		c.Spatial.Boundary = v
	}
	if n := getEnvInt("WORLD_CREATURES", -1); n >= 0 {
		c.World.Creatures = n
	}
	if tps := getEnvInt("TICK_RATE", 0); tps > 0 {
		c.World.TickRate = tps
	}
	if v := os.Getenv("CREATURE_STATS_FILE"); v != "" {
		c.World.StatsFile = v
	}
	if v := os.Getenv("EVENT_LOG_PATH"); v != "" {
		c.World.EventLog = v
	}
	if p := getEnvInt("PORT", 0); p > 0 {
		c.Server.Port = p
	}
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		c.Observability.Enabled = false
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
