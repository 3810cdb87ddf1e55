package navigation

import (
	"context"
	"time"

	"github.com/edgerobotics/gridnav/motionplan"
	"github.com/edgerobotics/gridnav/spatialmath"
)

// Goal is one absolute pose dispatched to the motion backend. Seq increases
// monotonically within a tracker so the backend can tell goals apart.
type Goal struct {
	ID     string
	Seq    int64
	Target spatialmath.Pose
}

// MotionBackend is the boundary to the subsystem that actually drives the
// robot. Implementations map their native status vocabulary into ActionStatus
// via a total mapping; anything unmapped must become StatusUnknown.
type MotionBackend interface {
	// SendGoal dispatches a goal for execution.
	SendGoal(ctx context.Context, goal Goal) error
	// Status returns the backend's view of the most recent goal.
	Status(ctx context.Context) ActionStatus
	// WaitForResult blocks until the outstanding goal finishes or the timeout
	// elapses, reporting whether a result arrived in time.
	WaitForResult(ctx context.Context, timeout time.Duration) (bool, error)
	// CancelGoal requests cancellation of the identified goal over the
	// backend's cancellation channel. An empty ID cancels whatever is
	// outstanding.
	CancelGoal(ctx context.Context, goalID string) error
	// CancelAll is the direct-cancel fallback used when publishing a
	// cancellation fails.
	CancelAll(ctx context.Context) error
}

// Localizer supplies the robot's current pose. A failure to localize is an
// explicit error rather than a zero pose, so callers can tell "no data yet"
// apart from "robot at the origin".
type Localizer interface {
	CurrentPose(ctx context.Context) (spatialmath.Pose, error)
}

type staticLocalizer struct {
	pose spatialmath.Pose
}

// NewStaticLocalizer returns a Localizer that always reports the given pose.
// Useful for dead-reckoning setups and tests.
func NewStaticLocalizer(pose spatialmath.Pose) Localizer {
	return &staticLocalizer{pose: pose}
}

func (l *staticLocalizer) CurrentPose(ctx context.Context) (spatialmath.Pose, error) {
	return l.pose, nil
}

// Options tune a Tracker. The zero value is usable; unset fields fall back to
// the defaults below.
type Options struct {
	// MinGap is the spatial convergence radius in meters: once the robot is
	// within MinGap of the current waypoint the cursor advances.
	MinGap float64
	// ResultTimeout bounds the synchronous wait for backend completion of a
	// single goal.
	ResultTimeout time.Duration
	// MaxIterations bounds the tracking loop as a hardening measure; 0 keeps
	// the loop bounded only by spatial convergence, matching the historic
	// behavior.
	MaxIterations int
	// Algorithm selects the planner; the zero value is A*.
	Algorithm motionplan.Algorithm
}

// Defaults for Options.
const (
	DefaultMinGap        = 0.15
	DefaultResultTimeout = 60 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MinGap == 0 {
		o.MinGap = DefaultMinGap
	}
	if o.ResultTimeout == 0 {
		o.ResultTimeout = DefaultResultTimeout
	}
	return o
}
