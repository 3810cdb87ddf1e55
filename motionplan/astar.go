package motionplan

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/edgerobotics/gridnav/gridmap"
	"github.com/edgerobotics/gridnav/spatialmath"
)

// Algorithm selects which grid search to run. Planners are a closed
// enumeration rather than a runtime registry so that an invalid choice is a
// compile-time concern for callers.
type Algorithm byte

// The set of available planning algorithms.
const (
	AStar Algorithm = iota
)

func (a Algorithm) String() string {
	switch a {
	case AStar:
		return "AStar"
	default:
		return "unknown"
	}
}

// Config is the input to Plan.
type Config struct {
	// Map is the occupancy grid to search.
	Map *gridmap.Map
	// Start and Goal are world poses; the goal's heading is propagated to
	// every waypoint of the result.
	Start spatialmath.Pose
	Goal  spatialmath.Pose
	// Step controls waypoint reduction: 1 emits every cell, >1 stride-samples,
	// 0 compresses collinear runs into the minimal polyline.
	Step int
}

// Plan searches the grid for a path from start to goal and reduces it to a
// waypoint sequence. When the goal is unreachable the result is the
// best-effort partial chain attached to the goal's grid index; callers should
// validate that the sequence actually reaches the intended goal cell before
// trusting it.
func Plan(ctx context.Context, alg Algorithm, cfg Config, logger golog.Logger) (*Sequence, error) {
	if cfg.Map == nil {
		return nil, errors.New("a map is required for planning")
	}
	if cfg.Step < 0 {
		return nil, errors.Errorf("step must be non-negative, got %d", cfg.Step)
	}
	switch alg {
	case AStar:
		p := &aStarPlanner{gm: cfg.Map, logger: logger}
		p.rows, p.cols = cfg.Map.Dims()
		return p.plan(ctx, cfg)
	default:
		return nil, errors.Errorf("unknown planning algorithm %q", alg)
	}
}

type aStarPlanner struct {
	gm         *gridmap.Map
	rows, cols int
	logger     golog.Logger
}

func (p *aStarPlanner) plan(ctx context.Context, cfg Config) (*Sequence, error) {
	sx, sy := p.gm.WorldToPixel(cfg.Start.X, cfg.Start.Y)
	gx, gy := p.gm.WorldToPixel(cfg.Goal.X, cfg.Goal.Y)

	start := &node{x: sx, y: sy, parent: noParent}
	goal := &node{x: gx, y: gy, parent: noParent}

	open := map[int]*node{p.gridIndex(start): start}
	closed := map[int]*node{}

	for len(open) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cID := p.selectNext(open, goal)
		current := open[cID]

		if current.x == goal.x && current.y == goal.y {
			goal.parent = current.parent
			goal.cost = current.cost
			break
		}

		delete(open, cID)
		closed[cID] = current

		for _, mv := range motions {
			nb := &node{
				x:      current.x + mv.dx,
				y:      current.y + mv.dy,
				cost:   current.cost + mv.cost,
				parent: cID,
			}
			nID := p.gridIndex(nb)
			if !p.verifyNode(nb) {
				continue
			}
			if _, ok := closed[nID]; ok {
				continue
			}
			if existing, ok := open[nID]; !ok || existing.cost > nb.cost {
				open[nID] = nb
			}
		}
	}

	path := p.reconstruct(goal, closed)
	seq := p.buildSequence(path, cfg.Step, cfg.Goal.Theta)
	p.logger.Debugf(
		"planned from (%d,%d) to (%d,%d): %d raw cells reduced to %d waypoints",
		sx, sy, gx, gy, len(path), seq.Len(),
	)
	return seq, nil
}

// selectNext picks the open node minimizing cost + heuristic. Ties break on
// the lower grid index so the search is deterministic for a fixed input.
func (p *aStarPlanner) selectNext(open map[int]*node, goal *node) int {
	best := -1
	bestF := 0.0
	for id, n := range open {
		f := n.cost + heuristic(goal, n)
		if best == -1 || f < bestF || (f == bestF && id < best) {
			best, bestF = id, f
		}
	}
	return best
}

// verifyNode reports whether a cell may be expanded: it must lie strictly
// inside the grid boundary and must not be an obstacle.
func (p *aStarPlanner) verifyNode(n *node) bool {
	if n.x <= 0 || n.y <= 0 || n.x >= p.cols || n.y >= p.rows {
		return false
	}
	return p.gm.CellAt(n.x, n.y) != gridmap.CellObstacle
}

func (p *aStarPlanner) gridIndex(n *node) int {
	return n.y*p.cols + n.x
}

// reconstruct walks the parent chain from the goal node back through the
// closed set, returning cells in goal-to-start order. When the search never
// reached the goal the chain is whatever was last attached to the goal's grid
// index, possibly just the goal cell itself.
func (p *aStarPlanner) reconstruct(goal *node, closed map[int]*node) [][2]int {
	path := [][2]int{{goal.x, goal.y}}
	parent := goal.parent
	for parent != noParent {
		n := closed[parent]
		path = append(path, [2]int{n.x, n.y})
		parent = n.parent
	}
	return path
}

// buildSequence reduces a goal-to-start cell path into a waypoint sequence in
// start-to-goal order, converting every emitted cell to world coordinates and
// attaching the goal heading to all of them.
func (p *aStarPlanner) buildSequence(path [][2]int, step int, goalYaw float64) *Sequence {
	var pts [][2]int
	switch {
	case step == 1 || len(path) < 4:
		for i := len(path) - 1; i >= 0; i-- {
			pts = append(pts, path[i])
		}
	case step > 1:
		for i := len(path) - 1; i >= 0; i -= step {
			pts = append(pts, path[i])
		}
		if pts[len(pts)-1] != path[0] {
			pts = append(pts, path[0])
		}
	default:
		// Auto mode: emit the start, every collinearity break, and the goal.
		var prev [2]int
		for i := len(path) - 1; i >= 0; i-- {
			cur := path[i]
			if len(pts) == 0 || i == 0 {
				pts = append(pts, cur)
				prev = cur
				continue
			}
			next := path[i-1]
			if next[0]-cur[0] != cur[0]-prev[0] || next[1]-cur[1] != cur[1]-prev[1] {
				pts = append(pts, cur)
			}
			prev = cur
		}
	}

	var head, prev *Waypoint
	for i, cell := range pts {
		wx, wy := p.gm.PixelToWorld(cell[0], cell[1])
		wp := &Waypoint{Index: i, Cell: cell, Pose: spatialmath.NewPose(wx, wy, goalYaw)}
		if prev == nil {
			head = wp
		} else {
			prev.next = wp
		}
		prev = wp
	}
	return &Sequence{head: head, length: len(pts)}
}
