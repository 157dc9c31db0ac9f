package spatial

import (
	"errors"
)

// Grid provides O(1) average spatial queries via fixed-size cells.
//
// Each entry is stored once, in the cell holding its box center. Queries are
// widened by the largest half-extent seen since the last Clear so that boxes
// reaching into the query from a neighboring cell are still found.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col]).
// The world rectangle spans [0, width) x [0, height); positions outside it
// are clamped into the border cells.
type Grid struct {
	cellSize   int64
	cols, rows int
	cells      [][]gridEntry
	size       int
	maxHalf    int64 // largest half-extent on either axis
}

type gridEntry struct {
	box AABB
	id  uint32
}

// NewGrid creates a grid for the given world bounds.
// cellSize should be close to the typical query radius.
// maxEntities is used to preallocate cell capacity.
func NewGrid(worldWidth, worldHeight, cellSize int32, maxEntities int) (*Grid, error) {
	if cellSize <= 0 {
		return nil, errors.New("spatial: grid cell size must be positive")
	}
	if worldWidth <= 0 || worldHeight <= 0 {
		return nil, errors.New("spatial: grid world size must be positive")
	}

	cols := int((int64(worldWidth) + int64(cellSize) - 1) / int64(cellSize))
	rows := int((int64(worldHeight) + int64(cellSize) - 1) / int64(cellSize))

	cells := make([][]gridEntry, cols*rows)
	avgPerCell := maxEntities / len(cells)
	if avgPerCell < 4 {
		avgPerCell = 4
	}
	for i := range cells {
		cells[i] = make([]gridEntry, 0, avgPerCell)
	}

	return &Grid{
		cellSize: int64(cellSize),
		cols:     cols,
		rows:     rows,
		cells:    cells,
	}, nil
}

// Clear resets all cells without deallocating underlying memory.
// This is O(n) where n = number of cells, not number of entities.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0] // Keep capacity, reset length
	}
	g.size = 0
	g.maxHalf = 0
}

// Len returns the number of stored entries.
func (g *Grid) Len() int {
	return g.size
}

// Insert adds an entry to the cell containing the box center.
// O(1) time complexity.
func (g *Grid) Insert(box AABB, id uint32) {
	c := box.Center()
	idx := g.row(int64(c.Y))*g.cols + g.col(int64(c.X))
	g.cells[idx] = append(g.cells[idx], gridEntry{box: box, id: id})
	g.size++

	for axis := 0; axis < 2; axis++ {
		half := (int64(box.Max[axis]) - int64(box.Min[axis]) + 1) / 2
		if half > g.maxHalf {
			g.maxHalf = half
		}
	}
}

// Search calls fn for every entry whose box overlaps query.
func (g *Grid) Search(query AABB, fn func(box AABB, id uint32) bool) error {
	if !query.Valid() {
		return ErrInvalidRegion
	}
	if g.size == 0 {
		return nil
	}

	// Calculate cell range that could contain centers of overlapping boxes
	minCol := g.col(int64(query.Min[0]) - g.maxHalf)
	maxCol := g.col(int64(query.Max[0]) + g.maxHalf)
	minRow := g.row(int64(query.Min[1]) - g.maxHalf)
	maxRow := g.row(int64(query.Max[1]) + g.maxHalf)

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			for _, e := range g.cells[row*g.cols+col] {
				if !e.box.Overlaps(query) {
					continue
				}
				if !fn(e.box, e.id) {
					return nil
				}
			}
		}
	}
	return nil
}

// col maps an X coordinate to a clamped column.
func (g *Grid) col(x int64) int {
	return clampCell(floorDiv(x, g.cellSize), g.cols)
}

// row maps a Y coordinate to a clamped row.
func (g *Grid) row(y int64) int {
	return clampCell(floorDiv(y, g.cellSize), g.rows)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func clampCell(v int64, n int) int {
	if v < 0 {
		return 0
	}
	if v >= int64(n) {
		return n - 1
	}
	return int(v)
}

// Stats returns grid statistics for debugging/profiling.
func (g *Grid) Stats() GridStats {
	var maxInCell, nonEmpty int
	for _, cell := range g.cells {
		count := len(cell)
		if count > maxInCell {
			maxInCell = count
		}
		if count > 0 {
			nonEmpty++
		}
	}

	avgPerCell := 0.0
	if nonEmpty > 0 {
		avgPerCell = float64(g.size) / float64(nonEmpty)
	}

	return GridStats{
		TotalCells:     len(g.cells),
		NonEmptyCells:  nonEmpty,
		TotalEntities:  g.size,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avgPerCell,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	TotalCells     int
	NonEmptyCells  int
	TotalEntities  int
	MaxInCell      int
	AvgPerNonEmpty float64
}

// Dimensions returns the grid dimensions.
func (g *Grid) Dimensions() (cols, rows int, cellSize int32) {
	return g.cols, g.rows, int32(g.cellSize)
}
