// Package motionplan computes obstacle-free waypoint sequences over an
// occupancy grid.
package motionplan

import (
	"fmt"

	"github.com/edgerobotics/gridnav/spatialmath"
)

// Waypoint is one target pose of a planned path. Waypoints form a finite,
// forward-only, acyclic chain; the final waypoint's Next is nil.
type Waypoint struct {
	// Index is the position of the waypoint within its sequence.
	Index int
	// Cell is the grid coordinate the waypoint was derived from.
	Cell [2]int
	// Pose is the waypoint's world position with the goal's heading attached.
	Pose spatialmath.Pose

	next *Waypoint
}

// Next returns the following waypoint, or nil at the end of the sequence.
func (w *Waypoint) Next() *Waypoint {
	if w == nil {
		return nil
	}
	return w.next
}

func (w *Waypoint) String() string {
	return fmt.Sprintf("waypoint %d cell=(%d,%d) pose=%v", w.Index, w.Cell[0], w.Cell[1], w.Pose)
}

// Sequence is an ordered, singly linked chain of waypoints produced by a
// planner. Consumers advance a cursor through the chain and never mutate it.
type Sequence struct {
	head   *Waypoint
	length int
}

// NewSequence builds a sequence directly from world poses, bypassing any grid
// search. It is used when no map is available and the caller wants a straight
// shot through the given poses.
func NewSequence(poses []spatialmath.Pose) *Sequence {
	var head, prev *Waypoint
	for i, p := range poses {
		wp := &Waypoint{Index: i, Pose: p}
		if prev == nil {
			head = wp
		} else {
			prev.next = wp
		}
		prev = wp
	}
	return &Sequence{head: head, length: len(poses)}
}

// Head returns the first waypoint of the sequence, or nil if it is empty.
func (s *Sequence) Head() *Waypoint {
	if s == nil {
		return nil
	}
	return s.head
}

// Len returns the number of waypoints in the sequence.
func (s *Sequence) Len() int {
	if s == nil {
		return 0
	}
	return s.length
}

// Poses returns the world poses of the sequence in order.
func (s *Sequence) Poses() []spatialmath.Pose {
	out := make([]spatialmath.Pose, 0, s.Len())
	for wp := s.Head(); wp != nil; wp = wp.Next() {
		out = append(out, wp.Pose)
	}
	return out
}

// Cells returns the grid coordinates of the sequence in order.
func (s *Sequence) Cells() [][2]int {
	out := make([][2]int, 0, s.Len())
	for wp := s.Head(); wp != nil; wp = wp.Next() {
		out = append(out, wp.Cell)
	}
	return out
}
