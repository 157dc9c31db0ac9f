package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"creature-tree/internal/config"
	"creature-tree/internal/game/proximity"
	"creature-tree/internal/game/spatial"
)

var (
	// ErrUnknownCreature is returned for a handle no creature owns.
	ErrUnknownCreature = errors.New("game: unknown creature")
	// ErrUnknownKind is returned when spawning a kind missing from the stats table.
	ErrUnknownKind = errors.New("game: unknown creature kind")
)

// Options configures NewEngine.
type Options struct {
	World   config.WorldConfig
	Spatial config.SpatialConfig
	Stats   config.StatsTable

	Logger *zap.Logger
	// Registerer receives the engine and index metrics. Nil disables them.
	Registerer prometheus.Registerer
}

// Engine runs the creature simulation: every turn it rebuilds the proximity
// index from scratch, lets each creature pick a target through it, then
// moves creatures and resolves combat.
type Engine struct {
	mu sync.Mutex

	index     *proximity.Manager
	backend   string
	creatures []*Creature
	byHandle  map[proximity.Handle]*Creature
	live      []*Creature // reused every turn
	nextID    proximity.Handle

	stats config.StatsTable
	kinds []string

	logger    *zap.Logger
	dupWarn   *rate.Limiter // duplicate-insert warnings
	queryWarn *rate.Limiter // failed target selection warnings
	metrics   *engineMetrics
	events    *EventLog // nil when disabled
	snapshot  atomic.Pointer[Snapshot]

	// onTick is called after every turn, outside the engine lock.
	onTick func(TickStats)

	tickRate  int
	running   bool
	ticker    *time.Ticker
	stopChan  chan struct{}
	tickCount uint64

	worldWidth  int32
	worldHeight int32

	rng  *rand.Rand
	seed int64
}

// IndexOptions translates the spatial configuration into proximity options
// presized for capacity creatures.
func IndexOptions(sp config.SpatialConfig, world config.WorldConfig, capacity int) (proximity.Options, error) {
	boundary, err := spatial.ParseBoundary(sp.Boundary)
	if err != nil {
		return proximity.Options{}, err
	}
	if world.Width > math.MaxInt32 || world.Height > math.MaxInt32 || sp.GridCellSize > math.MaxInt32 {
		return proximity.Options{}, fmt.Errorf("game: world %dx%d does not fit subtile coordinates", world.Width, world.Height)
	}

	opts := proximity.DefaultOptions()
	opts.Boundary = boundary
	opts.Capacity = max(capacity, 1)
	opts.Backend = spatial.Options{
		Kind:        spatial.Kind(sp.Backend),
		MinChildren: sp.MinChildren,
		MaxChildren: sp.MaxChildren,
		CellSize:    int32(sp.GridCellSize),
		WorldWidth:  int32(world.Width),
		WorldHeight: int32(world.Height),
		MaxEntities: opts.Capacity,
	}
	return opts, nil
}

// NewEngine creates an engine and spawns World.Creatures creatures, cycling
// through the stat table's kinds and the owners.
func NewEngine(opts Options) (*Engine, error) {
	if opts.World.TickRate <= 0 {
		return nil, fmt.Errorf("game: tick rate %d must be positive", opts.World.TickRate)
	}
	stats := opts.Stats
	if stats == nil {
		stats = config.DefaultCreatureStats()
	}
	if err := stats.Validate(); err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	indexOpts, err := IndexOptions(opts.Spatial, opts.World, opts.World.Creatures)
	if err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}
	if opts.Registerer != nil {
		indexOpts.Metrics = proximity.NewMetrics(opts.Registerer)
	}
	index, err := proximity.New(indexOpts)
	if err != nil {
		return nil, fmt.Errorf("game: %w", err)
	}

	seed := opts.World.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	e := &Engine{
		index:       index,
		backend:     string(indexOpts.Backend.Kind),
		creatures:   make([]*Creature, 0, opts.World.Creatures),
		byHandle:    make(map[proximity.Handle]*Creature, opts.World.Creatures),
		live:        make([]*Creature, 0, opts.World.Creatures),
		stats:       stats,
		kinds:       stats.Kinds(),
		logger:      logger.Named("engine"),
		dupWarn:     rate.NewLimiter(rate.Every(time.Second), 5),
		queryWarn:   rate.NewLimiter(rate.Every(time.Second), 5),
		metrics:     newEngineMetrics(opts.Registerer),
		tickRate:    opts.World.TickRate,
		stopChan:    make(chan struct{}),
		worldWidth:  int32(opts.World.Width),
		worldHeight: int32(opts.World.Height),
		rng:         rand.New(rand.NewSource(seed)),
		seed:        seed,
	}
	if e.backend == "" {
		e.backend = string(spatial.KindRTree)
	}

	for i := 0; i < opts.World.Creatures; i++ {
		kind := e.kinds[i%len(e.kinds)]
		if _, err := e.Spawn(kind, uint8(i%NumOwners)); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Start begins the game loop
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.ticker = time.NewTicker(time.Second / time.Duration(e.tickRate))
	ticker := e.ticker
	e.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				e.tick()
			case <-e.stopChan:
				return
			}
		}
	}()

	e.logger.Info("game engine started",
		zap.Int("tps", e.tickRate),
		zap.String("backend", e.backend),
		zap.Stringer("boundary", e.index.Boundary()),
		zap.Int64("seed", e.seed))
}

// Stop stops the game loop. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}
	e.running = false
	if e.ticker != nil {
		e.ticker.Stop()
	}
	close(e.stopChan)
	e.logger.Info("game engine stopped", zap.Uint64("tick", e.tickCount))
}

// OnTick registers fn to receive every turn's stats. fn runs on the game loop
// goroutine and must not block.
func (e *Engine) OnTick(fn func(TickStats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTick = fn
}

// tick is called at tickRate times per second
func (e *Engine) tick() {
	stats := e.Step()

	e.mu.Lock()
	fn := e.onTick
	e.mu.Unlock()
	if fn != nil {
		fn(stats)
	}
}

// Step runs one game turn synchronously and returns its stats.
func (e *Engine) Step() TickStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.tickCount++
	e.respawnDead()

	e.live = e.live[:0]
	for _, c := range e.creatures {
		if c.Alive() {
			e.live = append(e.live, c)
		}
	}

	dups := e.rebuildIndex(e.live)
	rebuild := time.Since(start)

	targeted := 0
	for _, c := range e.live {
		if err := e.selectTarget(c); err != nil {
			c.clearTarget()
			if e.queryWarn.Allow() {
				e.logger.Warn("target selection failed",
					zap.Uint32("creature", uint32(c.ID)),
					zap.Uint64("tick", e.tickCount),
					zap.Error(err))
			}
			continue
		}
		if c.HasTarget {
			targeted++
		}
	}
	snap := e.buildSnapshot(e.live)

	kills := 0
	for _, c := range e.live {
		if !c.Alive() {
			continue // killed earlier this turn
		}
		victim := c.Target
		if e.engage(c) {
			kills++
			ev := NewEvent(EventTypeKill, e.tickCount, c.ID)
			ev.Other = uint32(victim)
			ev.Kind = c.Kind
			e.events.Emit(ev)
			e.logger.Debug("creature killed",
				zap.Uint32("killer", uint32(c.ID)),
				zap.Uint32("victim", uint32(victim)),
				zap.Uint64("tick", e.tickCount))
		}
	}

	stats := TickStats{
		Tick:          e.tickCount,
		Generation:    e.index.Generation(),
		Creatures:     len(e.creatures),
		Alive:         len(e.live),
		Indexed:       e.index.Count(),
		Duplicates:    dups,
		Targeted:      targeted,
		Kills:         kills,
		CachedQueries: e.index.CachedQueries(),
		RangeQueries:  e.index.RangeQueries(),
		RebuildMicros: rebuild.Microseconds(),
		TickMicros:    time.Since(start).Microseconds(),
	}
	snap.Stats = stats
	e.snapshot.Store(snap)
	e.metrics.observe(stats, time.Since(start), rebuild)
	return stats
}

// rebuildIndex clears the index and adds every creature in list. It returns
// the number of insertions rejected as duplicates.
func (e *Engine) rebuildIndex(list []*Creature) int {
	e.index.Clear()
	dups := 0
	for _, c := range list {
		if c == nil {
			continue
		}
		if e.index.AddCreature(c) {
			continue
		}
		dups++
		e.events.Emit(NewEvent(EventTypeDuplicate, e.tickCount, c.ID))
		if e.dupWarn.Allow() {
			e.logger.Warn("creature already indexed this turn",
				zap.Uint32("creature", uint32(c.ID)),
				zap.String("kind", c.Kind),
				zap.Uint64("tick", e.tickCount))
		}
	}
	return dups
}

// respawnDead counts down dead creatures and revives them at a random spot.
func (e *Engine) respawnDead() {
	for _, c := range e.creatures {
		if c.Alive() {
			continue
		}
		if c.respawnTimer > 0 {
			c.respawnTimer--
			continue
		}
		x, y := e.randomPosition(c.stats.SolidSize)
		c.respawn(x, y)
		e.events.Emit(NewEvent(EventTypeRespawn, e.tickCount, c.ID))
	}
}

func (e *Engine) randomPosition(size int32) (int32, int32) {
	half := size / 2
	spanX := max(e.worldWidth-2*half, 1)
	spanY := max(e.worldHeight-2*half, 1)
	return half + e.rng.Int31n(spanX), half + e.rng.Int31n(spanY)
}

// Spawn adds a creature of kind at a random position.
func (e *Engine) Spawn(kind string, owner uint8) (*Creature, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.stats[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	x, y := e.randomPosition(s.SolidSize)
	return e.spawnLocked(kind, owner, s, x, y), nil
}

// SpawnAt adds a creature of kind centered on (x, y).
func (e *Engine) SpawnAt(kind string, owner uint8, x, y int32) (*Creature, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.stats[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return e.spawnLocked(kind, owner, s, x, y), nil
}

func (e *Engine) spawnLocked(kind string, owner uint8, s config.CreatureStats, x, y int32) *Creature {
	e.nextID++
	c := newCreature(e.nextID, kind, owner%NumOwners, s, x, y, e.rng)
	e.creatures = append(e.creatures, c)
	e.byHandle[c.ID] = c
	return c
}

// RemoveCreature deletes a creature. It leaves the index on the next turn.
func (e *Engine) RemoveCreature(h proximity.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.byHandle[h]; !ok {
		return false
	}
	delete(e.byHandle, h)
	e.creatures = slices.DeleteFunc(e.creatures, func(c *Creature) bool { return c.ID == h })
	return true
}

// SetStats swaps the stats table. Creatures whose kind is missing from the
// new table keep their current stats.
func (e *Engine) SetStats(table config.StatsTable) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats = table
	e.kinds = table.Kinds()
	updated := 0
	for _, c := range e.creatures {
		if s, ok := table[c.Kind]; ok {
			c.stats = s
			updated++
		}
	}
	e.events.Emit(NewEvent(EventTypeStatsReload, e.tickCount, 0))
	e.logger.Info("creature stats reloaded",
		zap.Int("kinds", len(e.kinds)),
		zap.Int("creatures_updated", updated))
}

// StartEventLog appends kills, respawns, duplicate inserts and stats reloads
// to the JSON Lines file at path.
func (e *Engine) StartEventLog(path string) error {
	el, err := OpenEventLog(path)
	if err != nil {
		return err
	}
	e.SetEventLog(el)
	return nil
}

// SetEventLog starts el and routes engine events to it, replacing and
// stopping any previous log.
func (e *Engine) SetEventLog(el *EventLog) {
	if el != nil {
		el.Start()
	}
	e.mu.Lock()
	prev := e.events
	e.events = el
	e.mu.Unlock()

	if err := prev.Stop(); err != nil {
		e.logger.Warn("event log close failed", zap.Error(err))
	}
}

// StopEventLog flushes and closes the event log.
func (e *Engine) StopEventLog() error {
	e.mu.Lock()
	el := e.events
	e.events = nil
	e.mu.Unlock()
	return el.Stop()
}

// WatchStats applies every table the watcher delivers until ctx is done or
// the watcher is closed.
func (e *Engine) WatchStats(ctx context.Context, w *config.StatsWatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case table, ok := <-w.Updates:
			if !ok {
				return
			}
			e.SetStats(table)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			e.logger.Warn("creature stats reload failed, keeping the previous table", zap.Error(err))
		}
	}
}

// =============================================================================
// QUERIES (debug API)
// =============================================================================

// IndexInfo describes the proximity index after the last turn.
type IndexInfo struct {
	Tick          uint64             `json:"tick"`
	Generation    uint64             `json:"generation"`
	Count         int                `json:"count"`
	State         string             `json:"state"`
	Backend       string             `json:"backend"`
	Boundary      string             `json:"boundary"`
	CachedQueries int                `json:"cachedQueries"`
	RangeQueries  uint64             `json:"rangeQueries"`
	Height        int                `json:"height,omitempty"`
	Bounds        *spatial.AABB      `json:"bounds,omitempty"`
	Grid          *spatial.GridStats `json:"grid,omitempty"`
}

// IndexInfo returns the current index state.
func (e *Engine) IndexInfo() IndexInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := IndexInfo{
		Tick:          e.tickCount,
		Generation:    e.index.Generation(),
		Count:         e.index.Count(),
		State:         e.index.State().String(),
		Backend:       e.backend,
		Boundary:      e.index.Boundary().String(),
		CachedQueries: e.index.CachedQueries(),
		RangeQueries:  e.index.RangeQueries(),
	}
	switch idx := e.index.Index().(type) {
	case *spatial.RTree:
		info.Height = idx.Height()
		if b, ok := idx.Bounds(); ok {
			info.Bounds = &b
		}
	case *spatial.Grid:
		gs := idx.Stats()
		info.Grid = &gs
	}
	return info
}

// Nearby returns a copy of creature h and the creatures its target selection
// saw this turn, itself excluded. It only reads the index cache: a creature
// that was dead or not yet indexed when the turn ran has no neighbors.
func (e *Engine) Nearby(h proximity.Handle) (Creature, []proximity.Neighbor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.byHandle[h]
	if !ok {
		return Creature{}, nil, fmt.Errorf("%w: %d", ErrUnknownCreature, h)
	}
	view, ok := e.index.Cached(h)
	if !ok {
		return *c, []proximity.Neighbor{}, nil
	}
	return *c, view.Others(), nil
}

// Nearest returns the handles indexed within radius of p, in ascending order.
func (e *Engine) Nearest(p spatial.Point, radius uint32) ([]proximity.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	handles, err := e.index.NearestSearch(p, radius)
	if err != nil {
		return nil, err
	}
	slices.Sort(handles)
	return handles, nil
}

// Creature returns a copy of creature h.
func (e *Engine) Creature(h proximity.Handle) (Creature, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.byHandle[h]
	if !ok {
		return Creature{}, false
	}
	return *c, true
}

// Creatures returns copies of every creature in spawn order.
func (e *Engine) Creatures() []Creature {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Creature, len(e.creatures))
	for i, c := range e.creatures {
		out[i] = *c
	}
	return out
}

// Snapshot returns the last published turn, or nil before the first one.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// TickCount returns the number of turns played.
func (e *Engine) TickCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickCount
}
