package navigation

import (
	"context"
	"math"
	"sync"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/edgerobotics/gridnav/gridmap"
	"github.com/edgerobotics/gridnav/motionplan"
	"github.com/edgerobotics/gridnav/spatialmath"
)

// Tracker walks a waypoint sequence to completion: it converts each waypoint
// into an absolute goal relative to the robot's current pose, dispatches it to
// the motion backend, and classifies the backend's status to decide whether to
// continue, finish, or abort. One Tracker serves one navigation request at a
// time; create a fresh one per request.
type Tracker struct {
	backend   MotionBackend
	localizer Localizer
	gm        *gridmap.Map
	opts      Options
	logger    golog.Logger

	// goalMu serializes goal dispatch so two in-flight goals can never race on
	// the current goal or the sequence number.
	goalMu    sync.Mutex
	actionSeq int64

	currMu   sync.Mutex
	currGoal Goal
	hasGoal  bool

	statusMu   sync.Mutex
	lastStatus ActionStatus

	cancelCtx               context.Context
	cancelFunc              context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
}

// NewTracker wires a tracker to its collaborators. The map may be nil, in
// which case Goto skips planning and heads straight for the goal.
func NewTracker(
	backend MotionBackend,
	localizer Localizer,
	gm *gridmap.Map,
	opts Options,
	logger golog.Logger,
) (*Tracker, error) {
	if backend == nil {
		return nil, errors.New("a motion backend is required")
	}
	if localizer == nil {
		return nil, errors.New("a localizer is required")
	}
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &Tracker{
		backend:    backend,
		localizer:  localizer,
		gm:         gm,
		opts:       opts.withDefaults(),
		logger:     logger,
		lastStatus: StatusUnknown,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}, nil
}

// GotoRequest describes one navigation request.
type GotoRequest struct {
	// Goal is the world pose to reach.
	Goal spatialmath.Pose
	// Start overrides the localizer-provided start pose when non-nil.
	Start *spatialmath.Pose
	// Step is the waypoint-reduction parameter; 0 selects auto mode.
	Step int
	// MinGap overrides Options.MinGap when non-zero.
	MinGap float64
	// Async runs tracking on a background worker and returns StatusPending
	// immediately; poll Status for the outcome.
	Async bool
}

// Goto plans a path from the start pose to the goal and tracks it. In
// synchronous mode it blocks until a terminal status is produced.
func (t *Tracker) Goto(ctx context.Context, req GotoRequest) (ActionStatus, error) {
	start := req.Start
	if start == nil {
		p := t.currentPose(ctx)
		start = &p
	}

	var seq *motionplan.Sequence
	if t.gm == nil {
		seq = motionplan.NewSequence([]spatialmath.Pose{*start, req.Goal})
	} else {
		var err error
		seq, err = motionplan.Plan(ctx, t.opts.Algorithm, motionplan.Config{
			Map:   t.gm,
			Start: *start,
			Goal:  req.Goal,
			Step:  req.Step,
		}, t.logger)
		if err != nil {
			return StatusRejected, err
		}
	}

	if req.Async {
		t.setStatus(StatusPending)
		t.activeBackgroundWorkers.Add(1)
		goutils.PanicCapturingGo(func() {
			defer t.activeBackgroundWorkers.Done()
			status, err := t.TrackTrajectory(t.cancelCtx, seq, req.MinGap)
			if err != nil {
				t.logger.Errorw("async trajectory tracking failed", "error", err)
			}
			t.setStatus(status)
		})
		return StatusPending, nil
	}

	status, err := t.TrackTrajectory(ctx, seq, req.MinGap)
	t.setStatus(status)
	return status, err
}

// TrackTrajectory drives the waypoint sequence until it is exhausted or the
// backend reports a terminal failure. The loop is bounded by spatial
// convergence against minGap; Options.MaxIterations adds an explicit ceiling
// on top of that.
func (t *Tracker) TrackTrajectory(ctx context.Context, seq *motionplan.Sequence, minGap float64) (ActionStatus, error) {
	if minGap == 0 {
		minGap = t.opts.MinGap
	}
	target := seq.Head()

	for iters := 0; ; iters++ {
		if err := ctx.Err(); err != nil {
			return StatusPreempted, err
		}
		if t.opts.MaxIterations > 0 && iters >= t.opts.MaxIterations {
			return StatusLost, errors.Errorf("no convergence after %d iterations", t.opts.MaxIterations)
		}

		curr := t.currentPose(ctx)
		for target != nil && curr.DistanceTo(target.Pose) <= math.Abs(minGap) {
			target = target.Next()
		}
		if target == nil {
			t.logger.Info("trajectory execution complete")
			// StatusActive doubles as the trajectory-level success signal
			// here; see ActionStatus.Complete.
			return StatusActive, nil
		}

		goal := curr.Compose(target.Pose)
		status, err := t.GotoAbsolute(ctx, goal, false)
		if err != nil {
			return status, err
		}
		if status.Abnormal() {
			t.logger.Errorw("trajectory execution failed", "status", status.String())
			return status, nil
		}
		// Healthy and unknown statuses both keep the loop polling.
	}
}

// GotoAbsolute dispatches a single absolute goal pose to the backend. In
// synchronous mode it waits for completion up to Options.ResultTimeout; an
// expired wait cancels the goal and reports StatusPreempted.
func (t *Tracker) GotoAbsolute(ctx context.Context, target spatialmath.Pose, async bool) (ActionStatus, error) {
	t.goalMu.Lock()
	defer t.goalMu.Unlock()

	t.actionSeq++
	goal := Goal{ID: uuid.NewString(), Seq: t.actionSeq, Target: target}
	t.setCurrentGoal(goal)

	t.logger.Debugf("sending goal %d: %v", goal.Seq, target)
	if err := t.backend.SendGoal(ctx, goal); err != nil {
		return StatusUnknown, errors.Wrap(err, "failed to dispatch goal")
	}
	if async {
		return t.backend.Status(ctx), nil
	}

	ok, err := t.backend.WaitForResult(ctx, t.opts.ResultTimeout)
	if err != nil {
		return StatusUnknown, errors.Wrap(err, "waiting for goal result")
	}
	if !ok {
		t.logger.Errorw("goal not completed within timeout; cancelling", "seq", goal.Seq)
		t.Cancel(ctx)
		return StatusPreempted, nil
	}
	return t.backend.Status(ctx), nil
}

// Cancel makes a best-effort attempt to cancel the outstanding goal: first
// over the backend's cancellation channel, then via the direct cancel-all
// fallback. It is idempotent and safe to call with no goal outstanding.
func (t *Tracker) Cancel(ctx context.Context) {
	t.logger.Warn("goal cancel")
	t.currMu.Lock()
	var goalID string
	if t.hasGoal {
		goalID = t.currGoal.ID
	}
	t.currMu.Unlock()

	if err := t.backend.CancelGoal(ctx, goalID); err != nil {
		t.logger.Debugw("cancel publish failed, falling back to direct cancel", "error", err)
		if err := t.backend.CancelAll(ctx); err != nil {
			t.logger.Debugw("direct cancel failed", "error", err)
		}
	}
}

// Status returns the last status produced by a Goto run on this tracker. For
// asynchronous runs this is the only built-in way to observe the outcome.
func (t *Tracker) Status() ActionStatus {
	t.statusMu.Lock()
	defer t.statusMu.Unlock()
	return t.lastStatus
}

// BackendStatus returns the backend's live view of the most recent goal.
func (t *Tracker) BackendStatus(ctx context.Context) ActionStatus {
	return t.backend.Status(ctx)
}

// Close stops any asynchronous tracking run and waits for it to wind down.
func (t *Tracker) Close(ctx context.Context) error {
	t.cancelFunc()
	t.activeBackgroundWorkers.Wait()
	return nil
}

// currentPose reads the localizer, falling back to the zero pose on failure
// so that tracking keeps its historic control behavior when localization
// drops out.
func (t *Tracker) currentPose(ctx context.Context) spatialmath.Pose {
	pose, err := t.localizer.CurrentPose(ctx)
	if err != nil {
		t.logger.Warnw("localizer failed, assuming origin", "error", err)
		return spatialmath.Pose{}
	}
	return pose
}

func (t *Tracker) setCurrentGoal(goal Goal) {
	t.currMu.Lock()
	t.currGoal = goal
	t.hasGoal = true
	t.currMu.Unlock()
}

func (t *Tracker) setStatus(status ActionStatus) {
	t.statusMu.Lock()
	t.lastStatus = status
	t.statusMu.Unlock()
}
