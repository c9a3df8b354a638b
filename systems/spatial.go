package systems

import (
	"slices"
)

// NeighborFinder enumerates candidate family members of a point.
// Implementations append to dst and return it in ascending index order so
// the energy sum is accumulated in the same order whatever the strategy.
// Candidates are a superset of the family; the kernel applies Weight.
type NeighborFinder interface {
	CandidatesInto(dst []int, i int) []int
}

// BruteForce offers every point as a candidate.
type BruteForce struct {
	n int
}

// NewBruteForce creates a finder over all points of the store.
func NewBruteForce(s *Store) *BruteForce {
	return &BruteForce{n: s.Len()}
}

// CandidatesInto appends every index except i.
func (b *BruteForce) CandidatesInto(dst []int, i int) []int {
	for j := 0; j < b.n; j++ {
		if j != i {
			dst = append(dst, j)
		}
	}
	return dst
}

// maxCellsPerAxis bounds grid memory when the horizon is tiny relative to the cloud.
const maxCellsPerAxis = 1024

// SpatialGrid buckets points into square cells at least one horizon wide,
// so a family lies within the surrounding block of cells.
type SpatialGrid struct {
	cellSize   float64
	cellRadius int
	cols       int
	rows       int
	minX, minY float64
	cells      [][]int // flat grid of point indices, ascending per cell
	cellOf     []int   // cell index of every point
}

// NewSpatialGrid indexes every point of the store for queries of the given radius.
func NewSpatialGrid(s *Store, radius float64) *SpatialGrid {
	lo, hi := s.Bounds()
	width := hi.X - lo.X
	height := hi.Y - lo.Y

	cellSize := radius
	if extent := max(width, height); extent/cellSize > maxCellsPerAxis {
		cellSize = extent / maxCellsPerAxis
	}

	cols := int(width/cellSize) + 1
	rows := int(height/cellSize) + 1

	g := &SpatialGrid{
		cellSize:   cellSize,
		cellRadius: int(radius/cellSize) + 1,
		cols:       cols,
		rows:       rows,
		minX:       lo.X,
		minY:       lo.Y,
		cells:      make([][]int, cols*rows),
		cellOf:     make([]int, s.Len()),
	}

	for i, p := range s.positions {
		col, row := g.cellCoords(p.X, p.Y)
		idx := row*g.cols + col
		g.cells[idx] = append(g.cells[idx], i)
		g.cellOf[i] = idx
	}

	return g
}

// CandidatesInto appends the indices of all points in the block of cells
// around point i, excluding i itself, sorted ascending.
func (g *SpatialGrid) CandidatesInto(dst []int, i int) []int {
	start := len(dst)
	center := g.cellOf[i]
	centerCol := center % g.cols
	centerRow := center / g.cols

	c0, c1 := max(centerCol-g.cellRadius, 0), min(centerCol+g.cellRadius, g.cols-1)
	r0, r1 := max(centerRow-g.cellRadius, 0), min(centerRow+g.cellRadius, g.rows-1)

	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			for _, j := range g.cells[row*g.cols+col] {
				if j != i {
					dst = append(dst, j)
				}
			}
		}
	}

	slices.Sort(dst[start:])
	return dst
}

// cellCoords returns the clamped cell column and row of a position.
func (g *SpatialGrid) cellCoords(x, y float64) (col, row int) {
	col = int((x - g.minX) / g.cellSize)
	row = int((y - g.minY) / g.cellSize)

	if col < 0 {
		col = 0
	} else if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	} else if row >= g.rows {
		row = g.rows - 1
	}

	return col, row
}
