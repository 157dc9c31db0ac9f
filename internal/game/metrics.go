package game

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engineMetrics are the per-turn simulation metrics. A nil value records
// nothing.
type engineMetrics struct {
	tickDuration    prometheus.Histogram
	rebuildDuration prometheus.Histogram
	creatures       prometheus.Gauge
	targeted        prometheus.Gauge
	kills           prometheus.Counter
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &engineMetrics{
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "game_tick_duration_seconds",
			Help:    "Time spent in game tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
		}),
		rebuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "game_index_rebuild_duration_seconds",
			Help:    "Time spent clearing and refilling the creature index",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		creatures: f.NewGauge(prometheus.GaugeOpts{
			Name: "game_creature_count",
			Help: "Creatures alive in the current turn",
		}),
		targeted: f.NewGauge(prometheus.GaugeOpts{
			Name: "game_creatures_with_target",
			Help: "Creatures that picked a combat target in the current turn",
		}),
		kills: f.NewCounter(prometheus.CounterOpts{
			Name: "game_kills_total",
			Help: "Creatures killed in combat",
		}),
	}
}

func (m *engineMetrics) observe(s TickStats, tick, rebuild time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(tick.Seconds())
	m.rebuildDuration.Observe(rebuild.Seconds())
	m.creatures.Set(float64(s.Alive))
	m.targeted.Set(float64(s.Targeted))
	m.kills.Add(float64(s.Kills))
}
