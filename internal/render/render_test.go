package render

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creature-tree/internal/game"
	"creature-tree/internal/game/spatial"
)

func testSnapshot() *game.Snapshot {
	return &game.Snapshot{
		WorldWidth:  10000,
		WorldHeight: 5000,
		Backend:     "rtree",
		Creatures: []game.CreatureSnapshot{
			{ID: 1, Owner: 0, Box: spatial.BoxAround(spatial.Point{X: 2000, Y: 2500}, 1000), Health: game.MaxHealth, Target: 2, HasTarget: true},
			{ID: 2, Owner: 1, Box: spatial.BoxAround(spatial.Point{X: 8000, Y: 2500}, 1000), Health: 10},
		},
		Nodes: []game.NodeSnapshot{
			{Box: spatial.AABB{Min: [2]int32{1500, 2000}, Max: [2]int32{8500, 3000}}, Level: 0},
		},
		Stats: game.TickStats{Tick: 9, Creatures: 2, Indexed: 2},
	}
}

func TestSizeFollowsWorldAspect(t *testing.T) {
	r := New(Config{Width: 400})
	w, h := r.Size(10000, 5000)
	assert.Equal(t, 400, w)
	assert.Equal(t, 200, h)

	w, h = r.Size(10000, 1)
	assert.Equal(t, 400, w)
	assert.Equal(t, 1, h)
}

func TestRenderDrawsCreatures(t *testing.T) {
	r := New(Config{Width: 400, Nodes: true, Targets: true})
	img, err := r.Render(testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())

	// Creature 1 covers (1500..2500, 2000..3000) subtiles = (60..100, 80..120) px.
	got := color.RGBAModel.Convert(img.At(80, 110)).(color.RGBA)
	assert.Equal(t, ownerColors[0], got)
	got = color.RGBAModel.Convert(img.At(320, 110)).(color.RGBA)
	assert.Equal(t, ownerColors[1], got)

	// Empty space keeps the background.
	got = color.RGBAModel.Convert(img.At(200, 180)).(color.RGBA)
	assert.Equal(t, color.RGBA{12, 12, 28, 255}, got)
}

func TestWritePNG(t *testing.T) {
	r := New(DefaultConfig())
	var buf bytes.Buffer
	require.NoError(t, r.WritePNG(&buf, testSnapshot()))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Width, img.Bounds().Dx())
}

func TestRenderRejectsMissingSnapshot(t *testing.T) {
	r := New(DefaultConfig())
	_, err := r.Render(nil)
	assert.Error(t, err)

	_, err = r.Render(&game.Snapshot{})
	assert.Error(t, err)
}
