package motionplan

import "math"

// node is a single cell under consideration during grid search. The parent is
// tracked by grid index rather than by pointer; it is only used to walk the
// chain back once the search finishes.
type node struct {
	x, y   int
	cost   float64
	parent int
}

// noParent marks the root of a parent chain.
const noParent = -1

// motion is one move of the 8-connected motion model.
type motion struct {
	dx, dy int
	cost   float64
}

// Cardinal moves cost 1, diagonal moves cost sqrt(2). These are fixed motion
// model weights, independent of map resolution.
var motions = []motion{
	{1, 0, 1},
	{0, 1, 1},
	{-1, 0, 1},
	{0, -1, 1},
	{-1, -1, math.Sqrt2},
	{-1, 1, math.Sqrt2},
	{1, -1, math.Sqrt2},
	{1, 1, math.Sqrt2},
}

// heuristic is the straight-line distance between two nodes with a weight of
// 1, admissible and consistent on a uniform-cost 8-connected grid.
func heuristic(a, b *node) float64 {
	return math.Hypot(float64(a.x-b.x), float64(a.y-b.y))
}
