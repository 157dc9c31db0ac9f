package game

import (
	"math"

	"creature-tree/internal/game/proximity"
	"creature-tree/internal/game/spatial"
)

// HearingFactor widens the fallback search when nothing hostile is in sight:
// creatures still react to fights they can hear.
const HearingFactor = 2

// selectTarget picks the closest hostile creature c can see. When none is
// in visual range it falls back to a wider direct search. Must be called
// with the engine lock held, after the index was rebuilt.
func (e *Engine) selectTarget(c *Creature) error {
	view, err := e.index.NearbyCreatures(c, c.VisualRange())
	if err != nil {
		return err
	}
	if n, ok := view.Closest(e.hostileTo(c)); ok {
		c.Target, c.HasTarget, c.TargetDist = n.Handle, true, n.Distance
		return nil
	}

	// Priority 2: the closest hostile within hearing distance.
	handles, err := e.index.NearestCreatureSearch(c, hearingRange(c.VisualRange()))
	if err != nil {
		return err
	}
	c.clearTarget()
	for _, h := range handles {
		o := e.byHandle[h]
		if o == nil || !o.Alive() || !c.Hostile(o) {
			continue
		}
		d := spatial.Distance(c.Position(), o.Position())
		if !c.HasTarget || d < c.TargetDist || (d == c.TargetDist && h < c.Target) {
			c.Target, c.HasTarget, c.TargetDist = h, true, d
		}
	}
	return nil
}

// hostileTo filters visual-range neighbors down to live enemies of c.
func (e *Engine) hostileTo(c *Creature) func(proximity.Neighbor) bool {
	return func(n proximity.Neighbor) bool {
		o := e.byHandle[n.Handle]
		return o != nil && o.Alive() && c.Hostile(o)
	}
}

// engage moves c toward its target and attacks once in reach. It returns
// true when the hit killed the target.
func (e *Engine) engage(c *Creature) (killed bool) {
	if c.cooldown > 0 {
		c.cooldown--
	}
	if !c.HasTarget {
		c.wander(e.worldWidth, e.worldHeight, e.rng)
		return false
	}
	target := e.byHandle[c.Target]
	if target == nil || !target.Alive() {
		c.clearTarget()
		return false
	}

	dist := spatial.Distance(c.Position(), target.Position())
	if !c.inReach(target, dist) {
		reach := uint64(c.stats.SolidSize/2+target.stats.SolidSize/2) + AttackReach/2
		c.moveToward(target.X, target.Y, reach)
		c.keepInside(e.worldWidth, e.worldHeight)
		return false
	}
	if c.cooldown > 0 {
		return false
	}
	c.cooldown = AttackCool
	if target.takeHit(AttackDamage) {
		c.Kills++
		c.clearTarget()
		return true
	}
	return false
}

// hearingRange is HearingFactor times visualRange, saturating at MaxUint32.
func hearingRange(visualRange uint32) uint32 {
	return uint32(min(uint64(visualRange)*HearingFactor, math.MaxUint32))
}
