// Package spatialmath defines the planar geometry used by the navigation core.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Pose represents a position and heading in the robot's operating frame.
// X and Y are in meters, Theta is a yaw angle in radians.
type Pose struct {
	X     float64
	Y     float64
	Theta float64
}

// NewPose creates a pose from a planar position and yaw.
func NewPose(x, y, theta float64) Pose {
	return Pose{X: x, Y: y, Theta: theta}
}

// NewPoseFromPoint creates a pose with zero heading at the given point.
func NewPoseFromPoint(pt r3.Vector) Pose {
	return Pose{X: pt.X, Y: pt.Y}
}

// Point returns the position component of the pose.
func (p Pose) Point() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y}
}

// DistanceTo returns the planar Euclidean distance between two poses,
// ignoring heading.
func (p Pose) DistanceTo(o Pose) float64 {
	return math.Hypot(o.X-p.X, o.Y-p.Y)
}

// Compose treats o as an offset in the frame of p and returns the resulting
// absolute pose: o rotated by p's heading, translated by p's position, with
// the headings summed.
func (p Pose) Compose(o Pose) Pose {
	sin, cos := math.Sincos(p.Theta)
	return Pose{
		X:     p.X + o.X*cos - o.Y*sin,
		Y:     p.Y + o.X*sin + o.Y*cos,
		Theta: p.Theta + o.Theta,
	}
}

// ApproxEqual reports whether two poses are within tol of one another in
// position and heading.
func (p Pose) ApproxEqual(o Pose, tol float64) bool {
	return math.Abs(p.X-o.X) <= tol &&
		math.Abs(p.Y-o.Y) <= tol &&
		math.Abs(p.Theta-o.Theta) <= tol
}

func (p Pose) String() string {
	return fmt.Sprintf("(x: %.3f, y: %.3f, theta: %.3f)", p.X, p.Y, p.Theta)
}
