// Package render draws index snapshots: creature footprints, combat targets
// and the R-tree node boxes covering them.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"sync"

	"github.com/fogleman/gg"

	"creature-tree/internal/game"
	"creature-tree/internal/game/spatial"
)

// Config holds renderer configuration
type Config struct {
	Width    int // output width in pixels; height follows the world aspect
	GridStep int // subtiles between background grid lines, 0 disables
	Nodes    bool
	Targets  bool
}

// DefaultConfig returns a 768px wide render with every layer enabled.
func DefaultConfig() Config {
	return Config{
		Width:    768,
		GridStep: 256 * 8,
		Nodes:    true,
		Targets:  true,
	}
}

// Owner colors, indexed by creature owner.
var ownerColors = []color.RGBA{
	{231, 76, 60, 255},
	{52, 152, 219, 255},
	{46, 204, 113, 255},
	{241, 196, 15, 255},
}

// Node outline colors, indexed by tree level (leaves first).
var levelColors = []color.RGBA{
	{255, 255, 255, 70},
	{155, 89, 182, 110},
	{230, 126, 34, 140},
	{26, 188, 156, 170},
}

// Renderer draws snapshots into a reused gg context. It is safe for
// concurrent use; renders are serialized.
type Renderer struct {
	cfg Config
	mu  sync.Mutex
	dc  *gg.Context
}

// New creates a renderer.
func New(cfg Config) *Renderer {
	if cfg.Width <= 0 {
		cfg.Width = DefaultConfig().Width
	}
	return &Renderer{cfg: cfg}
}

// WritePNG renders snap and encodes it as PNG.
func (r *Renderer) WritePNG(w io.Writer, snap *game.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dc, err := r.draw(snap)
	if err != nil {
		return err
	}
	return dc.EncodePNG(w)
}

// Render draws snap and returns a copy of the image.
func (r *Renderer) Render(snap *game.Snapshot) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dc, err := r.draw(snap)
	if err != nil {
		return nil, err
	}
	src := dc.Image()
	out := image.NewRGBA(src.Bounds())
	draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Src)
	return out, nil
}

// Size returns the pixel size of a render of a world with the given
// dimensions.
func (r *Renderer) Size(worldWidth, worldHeight int32) (int, int) {
	w := r.cfg.Width
	h := int(float64(w) * float64(worldHeight) / float64(worldWidth))
	return w, max(h, 1)
}

func (r *Renderer) draw(snap *game.Snapshot) (*gg.Context, error) {
	if snap == nil {
		return nil, fmt.Errorf("render: no snapshot yet")
	}
	if snap.WorldWidth <= 0 || snap.WorldHeight <= 0 {
		return nil, fmt.Errorf("render: empty world %dx%d", snap.WorldWidth, snap.WorldHeight)
	}

	w, h := r.Size(snap.WorldWidth, snap.WorldHeight)
	if r.dc == nil || r.dc.Width() != w || r.dc.Height() != h {
		r.dc = gg.NewContext(w, h)
	}
	dc := r.dc
	scale := float64(w) / float64(snap.WorldWidth)

	r.drawBackground(dc, snap, scale)
	if r.cfg.Nodes {
		drawNodes(dc, snap.Nodes, scale)
	}
	drawCreatures(dc, snap.Creatures, scale)
	if r.cfg.Targets {
		drawTargets(dc, snap.Creatures, scale)
	}
	drawUI(dc, snap)
	return dc, nil
}

func (r *Renderer) drawBackground(dc *gg.Context, snap *game.Snapshot, scale float64) {
	dc.SetColor(color.RGBA{12, 12, 28, 255})
	dc.DrawRectangle(0, 0, float64(dc.Width()), float64(dc.Height()))
	dc.Fill()

	if r.cfg.GridStep <= 0 {
		return
	}
	dc.SetColor(color.RGBA{30, 30, 45, 255})
	dc.SetLineWidth(1)
	step := float64(r.cfg.GridStep) * scale
	for x := step; x < float64(dc.Width()); x += step {
		dc.DrawLine(x, 0, x, float64(dc.Height()))
		dc.Stroke()
	}
	for y := step; y < float64(dc.Height()); y += step {
		dc.DrawLine(0, y, float64(dc.Width()), y)
		dc.Stroke()
	}
}

func drawNodes(dc *gg.Context, nodes []game.NodeSnapshot, scale float64) {
	dc.SetLineWidth(1)
	for _, n := range nodes {
		dc.SetColor(levelColors[min(n.Level, len(levelColors)-1)])
		x, y, w, h := rect(n.Box, scale)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()
	}
}

func drawCreatures(dc *gg.Context, creatures []game.CreatureSnapshot, scale float64) {
	for _, c := range creatures {
		col := ownerColors[int(c.Owner)%len(ownerColors)]
		x, y, w, h := rect(c.Box, scale)
		// Keep tiny footprints visible at small output sizes.
		w, h = max(w, 2), max(h, 2)

		dc.SetColor(col)
		dc.DrawRectangle(x, y, w, h)
		dc.Fill()

		// Health bar
		frac := float64(c.Health) / float64(game.MaxHealth)
		dc.SetColor(color.RGBA{0, 0, 0, 160})
		dc.DrawRectangle(x, y-3, w, 2)
		dc.Fill()
		dc.SetColor(color.RGBA{46, 204, 113, 255})
		dc.DrawRectangle(x, y-3, w*frac, 2)
		dc.Fill()
	}
}

func drawTargets(dc *gg.Context, creatures []game.CreatureSnapshot, scale float64) {
	centers := make(map[uint32]spatial.Point, len(creatures))
	for _, c := range creatures {
		centers[c.ID] = c.Box.Center()
	}
	dc.SetLineWidth(1)
	dc.SetColor(color.RGBA{255, 255, 255, 90})
	for _, c := range creatures {
		if !c.HasTarget {
			continue
		}
		to, ok := centers[c.Target]
		if !ok {
			continue
		}
		from := centers[c.ID]
		dc.DrawLine(float64(from.X)*scale, float64(from.Y)*scale, float64(to.X)*scale, float64(to.Y)*scale)
		dc.Stroke()
	}
}

func drawUI(dc *gg.Context, snap *game.Snapshot) {
	s := snap.Stats
	line := fmt.Sprintf("tick %d  %s  indexed %d/%d  targeted %d  rebuild %dus",
		s.Tick, snap.Backend, s.Indexed, s.Creatures, s.Targeted, s.RebuildMicros)
	dc.SetColor(color.RGBA{0, 0, 0, 180})
	dc.DrawRectangle(0, 0, float64(dc.Width()), 18)
	dc.Fill()
	dc.SetColor(color.White)
	dc.DrawString(line, 6, 13)
}

// rect converts a subtile box into pixel x, y, width, height.
func rect(b spatial.AABB, scale float64) (x, y, w, h float64) {
	x = float64(b.Min[0]) * scale
	y = float64(b.Min[1]) * scale
	w = float64(int64(b.Max[0])-int64(b.Min[0])) * scale
	h = float64(int64(b.Max[1])-int64(b.Min[1])) * scale
	return x, y, w, h
}
