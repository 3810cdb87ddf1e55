// Package gridmap provides an occupancy grid with bidirectional transforms
// between integer pixel coordinates and continuous world coordinates.
package gridmap

import (
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Cell is the classification of a single grid cell. The numeric values mirror
// the occupancy grid convention of -1/0/100 for unknown/free/occupied.
type Cell int8

// The set of cell classifications.
const (
	CellUnknown  Cell = -1
	CellFree     Cell = 0
	CellObstacle Cell = 100
)

// Config holds the metadata needed to construct a Map.
type Config struct {
	// Resolution is the size of one cell edge in meters. Must be positive.
	Resolution float64
	// Origin is the world-frame offset of grid cell (0,0).
	Origin r3.Vector
	// OccupiedThresh and FreeThresh are normalized occupancy cutoffs in [0,1].
	OccupiedThresh float64
	FreeThresh     float64
	// Reverse inverts raw pixel intensity when deriving occupancy.
	Reverse bool
}

// Map is an immutable occupancy grid plus the metadata needed to convert
// between pixel and world frames. The one exception to immutability is
// CalcObstacleMap, which may crop the grid once per load.
type Map struct {
	cfg   Config
	cells [][]Cell
	raw   *mat.Dense

	// fullRows is the row count of the grid as loaded; the vertical axis flip
	// is always computed against it, even after a crop.
	fullRows int

	padX, padY int
	cropped    bool
}

// NewMap builds a Map from classified cells, indexed cells[row][col].
func NewMap(cfg Config, cells [][]Cell) (*Map, error) {
	if cfg.Resolution <= 0 {
		return nil, errors.Errorf("resolution must be positive, got %f", cfg.Resolution)
	}
	if len(cells) == 0 || len(cells[0]) == 0 {
		return nil, errors.New("grid must have at least one row and one column")
	}
	cols := len(cells[0])
	for i, row := range cells {
		if len(row) != cols {
			return nil, errors.Errorf("grid is ragged: row %d has %d columns, want %d", i, len(row), cols)
		}
	}
	return &Map{cfg: cfg, cells: cells, fullRows: len(cells)}, nil
}

// Resolution returns the cell edge length in meters.
func (m *Map) Resolution() float64 {
	return m.cfg.Resolution
}

// Origin returns the world-frame offset of grid cell (0,0).
func (m *Map) Origin() r3.Vector {
	return m.cfg.Origin
}

// Dims returns the (rows, cols) of the stored grid, post-crop if one happened.
func (m *Map) Dims() (int, int) {
	return len(m.cells), len(m.cells[0])
}

// Contains reports whether the pixel coordinate indexes a stored cell.
func (m *Map) Contains(px, py int) bool {
	rows, cols := m.Dims()
	return px >= 0 && px < cols && py >= 0 && py < rows
}

// CellAt returns the classification of the cell at (px, py). The coordinate
// must be in bounds; see Contains.
func (m *Map) CellAt(px, py int) Cell {
	return m.cells[py][px]
}

// Occupancy returns the normalized occupancy value behind the cell at
// (px, py), or a value derived from the classification when the map was built
// without raw data.
func (m *Map) Occupancy(px, py int) float64 {
	if m.raw != nil {
		return m.raw.At(py, px)
	}
	switch m.cells[py][px] {
	case CellObstacle:
		return 1
	case CellFree:
		return 0
	default:
		return 0.5
	}
}

// PaddingOffset returns the (col, row) crop offset and whether a crop is
// active.
func (m *Map) PaddingOffset() (int, int, bool) {
	return m.padX, m.padY, m.cropped
}

// Obstacles returns the pixel coordinates of every cell classified as an
// obstacle, in row-major order.
func (m *Map) Obstacles() [][2]int {
	var out [][2]int
	for py, row := range m.cells {
		for px, c := range row {
			if c == CellObstacle {
				out = append(out, [2]int{px, py})
			}
		}
	}
	return out
}

// WorldToPixel converts a world coordinate in meters to the nearest pixel
// coordinate. The result is a valid index only if the point lies within the
// grid's spatial extent; callers must bounds-check with Contains.
func (m *Map) WorldToPixel(wx, wy float64) (int, int) {
	fx := (wx - m.cfg.Origin.X) / m.cfg.Resolution
	fy := float64(m.fullRows) - (wy-m.cfg.Origin.Y)/m.cfg.Resolution
	px, py := roundToInt(fx), roundToInt(fy)
	if m.cropped {
		px -= m.padX
		py -= m.padY
	}
	return px, py
}

// PixelToWorld converts a pixel coordinate to the world coordinate of the
// cell, in meters. It is the exact inverse of WorldToPixel up to rounding.
func (m *Map) PixelToWorld(px, py int) (float64, float64) {
	if m.cropped {
		px += m.padX
		py += m.padY
	}
	fy := float64(m.fullRows - py)
	wx := m.cfg.Origin.X + float64(px)*m.cfg.Resolution
	wy := m.cfg.Origin.Y + fy*m.cfg.Resolution
	return wx, wy
}

// BatchWorldToPixel converts a set of world points in bulk, discarding points
// that fall outside the grid and de-duplicating the resulting pixels. The
// output is sorted row-major for determinism.
func (m *Map) BatchWorldToPixel(points []r3.Vector) [][2]int {
	seen := make(map[[2]int]bool, len(points))
	out := make([][2]int, 0, len(points))
	for _, pt := range points {
		px, py := m.WorldToPixel(pt.X, pt.Y)
		if !m.Contains(px, py) {
			continue
		}
		key := [2]int{px, py}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][1] != out[j][1] {
			return out[i][1] < out[j][1]
		}
		return out[i][0] < out[j][0]
	})
	return out
}

// BatchPixelToWorld converts a set of pixel coordinates to world points in
// bulk.
func (m *Map) BatchPixelToWorld(pixels [][2]int) []r3.Vector {
	out := make([]r3.Vector, 0, len(pixels))
	for _, p := range pixels {
		wx, wy := m.PixelToWorld(p[0], p[1])
		out = append(out, r3.Vector{X: wx, Y: wy})
	}
	return out
}

// CalcObstacleMap computes the minimal bounding box covering the given
// obstacle cells, crops the stored grid to that box, and records the crop as
// the padding offset. The rebased obstacle list is returned. It is a no-op on
// an empty obstacle list and runs at most once per load.
func (m *Map) CalcObstacleMap(obstacles [][2]int) [][2]int {
	if len(obstacles) == 0 || m.cropped {
		return obstacles
	}
	xMin, yMin := obstacles[0][0], obstacles[0][1]
	xMax, yMax := xMin, yMin
	for _, o := range obstacles[1:] {
		xMin, xMax = min(xMin, o[0]), max(xMax, o[0])
		yMin, yMax = min(yMin, o[1]), max(yMax, o[1])
	}

	cropped := make([][]Cell, 0, yMax-yMin+1)
	for py := yMin; py <= yMax; py++ {
		cropped = append(cropped, m.cells[py][xMin:xMax+1])
	}
	m.cells = cropped
	if m.raw != nil {
		m.raw = m.raw.Slice(yMin, yMax+1, xMin, xMax+1).(*mat.Dense)
	}
	m.padX, m.padY = xMin, yMin
	m.cropped = true

	rebased := make([][2]int, 0, len(obstacles))
	for _, o := range obstacles {
		rebased = append(rebased, [2]int{o[0] - xMin, o[1] - yMin})
	}
	return rebased
}

func roundToInt(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
