package game

import (
	"math"
	"math/rand"

	"creature-tree/internal/config"
	"creature-tree/internal/game/proximity"
	"creature-tree/internal/game/spatial"
)

// Combat balance, in subtiles and game turns.
const (
	MaxHealth    = 100
	AttackDamage = 6
	AttackReach  = 64 // added to the footprint half sizes of both creatures
	AttackCool   = 8  // turns between two hits
	RespawnTurns = 40
	NumOwners    = 4 // keepers; creatures of different owners fight
)

// Creature is one simulated creature. Positions are box centers in subtiles.
type Creature struct {
	ID     proximity.Handle `json:"id"`
	Kind   string           `json:"kind"`
	Owner  uint8            `json:"owner"`
	X      int32            `json:"x"`
	Y      int32            `json:"y"`
	Health int              `json:"health"`
	Kills  int              `json:"kills"`
	Deaths int              `json:"deaths"`

	// Combat target chosen this turn.
	Target     proximity.Handle `json:"target,omitempty"`
	HasTarget  bool             `json:"hasTarget"`
	TargetDist uint64           `json:"targetDist,omitempty"`

	stats        config.CreatureStats
	heading      float64
	cooldown     int
	respawnTimer int
}

// newCreature places a creature of the given kind at (x, y) with full health.
func newCreature(id proximity.Handle, kind string, owner uint8, stats config.CreatureStats, x, y int32, rng *rand.Rand) *Creature {
	return &Creature{
		ID:      id,
		Kind:    kind,
		Owner:   owner,
		X:       x,
		Y:       y,
		Health:  MaxHealth,
		stats:   stats,
		heading: rng.Float64() * 2 * math.Pi,
	}
}

// Handle implements proximity.Creature.
func (c *Creature) Handle() proximity.Handle { return c.ID }

// Position implements proximity.Creature.
func (c *Creature) Position() spatial.Point { return spatial.Point{X: c.X, Y: c.Y} }

// SolidSize implements proximity.Creature.
func (c *Creature) SolidSize() int32 { return c.stats.SolidSize }

// VisualRange is how far the creature notices others.
func (c *Creature) VisualRange() uint32 { return c.stats.VisualRange }

// Stats returns the stats the creature currently runs with.
func (c *Creature) Stats() config.CreatureStats { return c.stats }

// Alive reports whether the creature takes part in the current turn.
func (c *Creature) Alive() bool { return c.Health > 0 }

// Hostile reports whether c attacks o.
func (c *Creature) Hostile(o *Creature) bool {
	return o != nil && o != c && o.Owner != c.Owner
}

// inReach reports whether o is close enough to be hit, given the distance
// between the two centers.
func (c *Creature) inReach(o *Creature, dist uint64) bool {
	reach := int64(c.stats.SolidSize)/2 + int64(o.stats.SolidSize)/2 + AttackReach
	return dist <= uint64(reach)
}

// clearTarget forgets the current combat target.
func (c *Creature) clearTarget() {
	c.Target, c.HasTarget, c.TargetDist = 0, false, 0
}

// moveToward steps at most Speed subtiles toward (tx, ty), stopping at stopAt
// subtiles from it.
func (c *Creature) moveToward(tx, ty int32, stopAt uint64) {
	dx := float64(tx) - float64(c.X)
	dy := float64(ty) - float64(c.Y)
	dist := math.Hypot(dx, dy)
	if dist <= float64(stopAt) || dist == 0 {
		return
	}
	step := math.Min(float64(c.stats.Speed), dist-float64(stopAt))
	c.heading = math.Atan2(dy, dx)
	c.X = clampCoord(float64(c.X)+dx/dist*step, 0)
	c.Y = clampCoord(float64(c.Y)+dy/dist*step, 0)
}

// wander drifts along a slowly turning heading and bounces off the map edge.
func (c *Creature) wander(width, height int32, rng *rand.Rand) {
	c.heading += (rng.Float64() - 0.5) * 0.6
	speed := float64(c.stats.Speed) / 2
	nx := float64(c.X) + math.Cos(c.heading)*speed
	ny := float64(c.Y) + math.Sin(c.heading)*speed

	margin := float64(c.stats.SolidSize) / 2
	if nx < margin || nx > float64(width)-margin {
		c.heading = math.Pi - c.heading
	}
	if ny < margin || ny > float64(height)-margin {
		c.heading = -c.heading
	}
	c.X = clampCoord(nx, 0)
	c.Y = clampCoord(ny, 0)
	c.keepInside(width, height)
}

// keepInside clamps the creature's footprint into the world rectangle.
func (c *Creature) keepInside(width, height int32) {
	half := c.stats.SolidSize / 2
	c.X = min(max(c.X, half), max(width-half, half))
	c.Y = min(max(c.Y, half), max(height-half, half))
}

// takeHit applies damage and reports whether it was fatal.
func (c *Creature) takeHit(damage int) bool {
	if !c.Alive() {
		return false
	}
	c.Health -= damage
	if c.Health > 0 {
		return false
	}
	c.Health = 0
	c.Deaths++
	c.respawnTimer = RespawnTurns
	c.clearTarget()
	return true
}

// respawn brings a dead creature back at (x, y).
func (c *Creature) respawn(x, y int32) {
	c.X, c.Y = x, y
	c.Health = MaxHealth
	c.cooldown = 0
	c.respawnTimer = 0
	c.clearTarget()
}

func clampCoord(v float64, lo int32) int32 {
	if v < float64(lo) {
		return lo
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(math.Round(v))
}
