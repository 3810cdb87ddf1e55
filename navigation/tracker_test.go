package navigation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/edgerobotics/gridnav/gridmap"
	"github.com/edgerobotics/gridnav/motionplan"
	"github.com/edgerobotics/gridnav/navigation"
	"github.com/edgerobotics/gridnav/spatialmath"
)

// fakeLocalizer replays a scripted list of poses; the final pose repeats once
// the script runs out.
type fakeLocalizer struct {
	mu    sync.Mutex
	poses []spatialmath.Pose
	err   error
}

func (l *fakeLocalizer) CurrentPose(ctx context.Context) (spatialmath.Pose, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return spatialmath.Pose{}, l.err
	}
	if len(l.poses) == 0 {
		return spatialmath.Pose{}, nil
	}
	p := l.poses[0]
	if len(l.poses) > 1 {
		l.poses = l.poses[1:]
	}
	return p, nil
}

// fakeBackend records dispatched goals and replays a scripted list of
// statuses; the final status repeats once the script runs out.
type fakeBackend struct {
	mu             sync.Mutex
	sent           []navigation.Goal
	statuses       []navigation.ActionStatus
	waitOK         bool
	waitErr        error
	cancelGoalErr  error
	cancelledIDs   []string
	cancelAllCalls int
}

func newFakeBackend(statuses ...navigation.ActionStatus) *fakeBackend {
	return &fakeBackend{statuses: statuses, waitOK: true}
}

func (b *fakeBackend) SendGoal(ctx context.Context, goal navigation.Goal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, goal)
	return nil
}

func (b *fakeBackend) Status(ctx context.Context) navigation.ActionStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.statuses) == 0 {
		return navigation.StatusSucceeded
	}
	s := b.statuses[0]
	if len(b.statuses) > 1 {
		b.statuses = b.statuses[1:]
	}
	return s
}

func (b *fakeBackend) WaitForResult(ctx context.Context, timeout time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waitOK, b.waitErr
}

func (b *fakeBackend) CancelGoal(ctx context.Context, goalID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelGoalErr != nil {
		return b.cancelGoalErr
	}
	b.cancelledIDs = append(b.cancelledIDs, goalID)
	return nil
}

func (b *fakeBackend) CancelAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelAllCalls++
	return nil
}

func (b *fakeBackend) sentGoals() []navigation.Goal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]navigation.Goal{}, b.sent...)
}

func newTestTracker(t *testing.T, backend navigation.MotionBackend, localizer navigation.Localizer, opts navigation.Options) *navigation.Tracker {
	t.Helper()
	tracker, err := navigation.NewTracker(backend, localizer, nil, opts, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return tracker
}

func TestNewTrackerValidation(t *testing.T) {
	logger := golog.NewTestLogger(t)
	_, err := navigation.NewTracker(nil, &fakeLocalizer{}, nil, navigation.Options{}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = navigation.NewTracker(newFakeBackend(), nil, nil, navigation.Options{}, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTrackTrajectoryAlreadyConverged(t *testing.T) {
	backend := newFakeBackend()
	localizer := &fakeLocalizer{poses: []spatialmath.Pose{spatialmath.NewPose(0, 0, 0)}}
	tracker := newTestTracker(t, backend, localizer, navigation.Options{})

	seq := motionplan.NewSequence([]spatialmath.Pose{
		spatialmath.NewPose(0, 0, 0),
		spatialmath.NewPose(0.05, 0, 0),
	})
	status, err := tracker.TrackTrajectory(context.Background(), seq, 0.15)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status.Complete(), test.ShouldBeTrue)
	test.That(t, backend.sentGoals(), test.ShouldHaveLength, 0)
}

func TestTrackTrajectoryAbnormalAbortsImmediately(t *testing.T) {
	backend := newFakeBackend(navigation.StatusAborted)
	localizer := &fakeLocalizer{poses: []spatialmath.Pose{spatialmath.NewPose(0, 0, 0)}}
	tracker := newTestTracker(t, backend, localizer, navigation.Options{})

	seq := motionplan.NewSequence([]spatialmath.Pose{
		spatialmath.NewPose(5, 5, 0),
		spatialmath.NewPose(10, 10, 0),
	})
	status, err := tracker.TrackTrajectory(context.Background(), seq, 0.15)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, navigation.StatusAborted)
	// the abort happened on the first waypoint; nothing further was sent
	test.That(t, backend.sentGoals(), test.ShouldHaveLength, 1)
}

func TestTrackTrajectoryAdvancesOnConvergence(t *testing.T) {
	backend := newFakeBackend(navigation.StatusSucceeded)
	localizer := &fakeLocalizer{poses: []spatialmath.Pose{
		spatialmath.NewPose(0, 0, 0),
		spatialmath.NewPose(5, 5, 0),
	}}
	tracker := newTestTracker(t, backend, localizer, navigation.Options{})

	seq := motionplan.NewSequence([]spatialmath.Pose{spatialmath.NewPose(5, 5, 0)})
	status, err := tracker.TrackTrajectory(context.Background(), seq, 0.15)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status.Complete(), test.ShouldBeTrue)
	test.That(t, backend.sentGoals(), test.ShouldHaveLength, 1)
}

func TestTrackTrajectoryUnknownStatusContinues(t *testing.T) {
	backend := newFakeBackend(navigation.StatusUnknown, navigation.StatusSucceeded)
	localizer := &fakeLocalizer{poses: []spatialmath.Pose{
		spatialmath.NewPose(0, 0, 0),
		spatialmath.NewPose(5, 5, 0),
	}}
	tracker := newTestTracker(t, backend, localizer, navigation.Options{})

	seq := motionplan.NewSequence([]spatialmath.Pose{spatialmath.NewPose(5, 5, 0)})
	status, err := tracker.TrackTrajectory(context.Background(), seq, 0.15)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status.Complete(), test.ShouldBeTrue)
}

func TestTrackTrajectoryMaxIterations(t *testing.T) {
	// the backend stays healthy forever and the robot never moves
	backend := newFakeBackend(navigation.StatusPending)
	localizer := &fakeLocalizer{poses: []spatialmath.Pose{spatialmath.NewPose(0, 0, 0)}}
	tracker := newTestTracker(t, backend, localizer, navigation.Options{MaxIterations: 3})

	seq := motionplan.NewSequence([]spatialmath.Pose{spatialmath.NewPose(50, 50, 0)})
	status, err := tracker.TrackTrajectory(context.Background(), seq, 0.15)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, status, test.ShouldEqual, navigation.StatusLost)
	test.That(t, backend.sentGoals(), test.ShouldHaveLength, 3)
}

func TestTrackTrajectoryHonorsContext(t *testing.T) {
	backend := newFakeBackend(navigation.StatusPending)
	localizer := &fakeLocalizer{poses: []spatialmath.Pose{spatialmath.NewPose(0, 0, 0)}}
	tracker := newTestTracker(t, backend, localizer, navigation.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	seq := motionplan.NewSequence([]spatialmath.Pose{spatialmath.NewPose(50, 50, 0)})
	status, err := tracker.TrackTrajectory(ctx, seq, 0.15)
	test.That(t, err, test.ShouldBeError, context.Canceled)
	test.That(t, status, test.ShouldEqual, navigation.StatusPreempted)
	test.That(t, backend.sentGoals(), test.ShouldHaveLength, 0)
}

func TestGotoAbsolute(t *testing.T) {
	t.Run("sequence numbers increase monotonically", func(t *testing.T) {
		backend := newFakeBackend(
			navigation.StatusSucceeded,
			navigation.StatusSucceeded,
			navigation.StatusSucceeded,
		)
		localizer := &fakeLocalizer{}
		tracker := newTestTracker(t, backend, localizer, navigation.Options{})

		for i := 0; i < 3; i++ {
			_, err := tracker.GotoAbsolute(context.Background(), spatialmath.NewPose(1, 1, 0), false)
			test.That(t, err, test.ShouldBeNil)
		}
		sent := backend.sentGoals()
		test.That(t, sent, test.ShouldHaveLength, 3)
		for i, goal := range sent {
			test.That(t, goal.Seq, test.ShouldEqual, int64(i+1))
			test.That(t, goal.ID, test.ShouldNotBeEmpty)
		}
	})

	t.Run("timeout cancels the goal and reports preempted", func(t *testing.T) {
		backend := newFakeBackend(navigation.StatusActive)
		backend.waitOK = false
		localizer := &fakeLocalizer{}
		tracker := newTestTracker(t, backend, localizer, navigation.Options{ResultTimeout: time.Millisecond})

		status, err := tracker.GotoAbsolute(context.Background(), spatialmath.NewPose(1, 1, 0), false)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, status, test.ShouldEqual, navigation.StatusPreempted)

		sent := backend.sentGoals()
		test.That(t, sent, test.ShouldHaveLength, 1)
		backend.mu.Lock()
		defer backend.mu.Unlock()
		test.That(t, backend.cancelledIDs, test.ShouldResemble, []string{sent[0].ID})
	})

	t.Run("async returns without waiting", func(t *testing.T) {
		backend := newFakeBackend(navigation.StatusPending)
		backend.waitOK = false // would time out if the wait ran
		localizer := &fakeLocalizer{}
		tracker := newTestTracker(t, backend, localizer, navigation.Options{})

		status, err := tracker.GotoAbsolute(context.Background(), spatialmath.NewPose(1, 1, 0), true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, status, test.ShouldEqual, navigation.StatusPending)
		backend.mu.Lock()
		defer backend.mu.Unlock()
		test.That(t, backend.cancelledIDs, test.ShouldHaveLength, 0)
	})

	t.Run("wait errors surface", func(t *testing.T) {
		backend := newFakeBackend(navigation.StatusActive)
		backend.waitErr = errors.New("link down")
		localizer := &fakeLocalizer{}
		tracker := newTestTracker(t, backend, localizer, navigation.Options{})

		_, err := tracker.GotoAbsolute(context.Background(), spatialmath.NewPose(1, 1, 0), false)
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestCancel(t *testing.T) {
	t.Run("safe with no outstanding goal", func(t *testing.T) {
		backend := newFakeBackend()
		tracker := newTestTracker(t, backend, &fakeLocalizer{}, navigation.Options{})

		tracker.Cancel(context.Background())
		backend.mu.Lock()
		defer backend.mu.Unlock()
		test.That(t, backend.cancelledIDs, test.ShouldResemble, []string{""})
		test.That(t, backend.cancelAllCalls, test.ShouldEqual, 0)
	})

	t.Run("falls back to direct cancel", func(t *testing.T) {
		backend := newFakeBackend()
		backend.cancelGoalErr = errors.New("publish failed")
		tracker := newTestTracker(t, backend, &fakeLocalizer{}, navigation.Options{})

		tracker.Cancel(context.Background())
		backend.mu.Lock()
		defer backend.mu.Unlock()
		test.That(t, backend.cancelAllCalls, test.ShouldEqual, 1)
	})
}

func TestGotoWithMap(t *testing.T) {
	cells := make([][]gridmap.Cell, 20)
	for py := range cells {
		cells[py] = make([]gridmap.Cell, 20)
	}
	gm, err := gridmap.NewMap(gridmap.Config{
		Resolution:     1,
		Origin:         r3.Vector{},
		OccupiedThresh: 0.65,
		FreeThresh:     0.2,
	}, cells)
	test.That(t, err, test.ShouldBeNil)

	start := spatialmath.NewPose(5, 5, 0)
	backend := newFakeBackend()
	localizer := &fakeLocalizer{poses: []spatialmath.Pose{start}}
	tracker, err := navigation.NewTracker(backend, localizer, gm, navigation.Options{}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	// goal in the same cell as the start: the planned sequence is fully
	// within the convergence radius, so tracking finishes without dispatching
	status, err := tracker.Goto(context.Background(), navigation.GotoRequest{
		Goal:   start,
		MinGap: 2,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status.Complete(), test.ShouldBeTrue)
	test.That(t, backend.sentGoals(), test.ShouldHaveLength, 0)
	test.That(t, tracker.Status().Complete(), test.ShouldBeTrue)
}

func TestGotoAsync(t *testing.T) {
	backend := newFakeBackend()
	goal := spatialmath.NewPose(0.05, 0.05, 0)
	localizer := &fakeLocalizer{poses: []spatialmath.Pose{spatialmath.NewPose(0, 0, 0)}}
	tracker := newTestTracker(t, backend, localizer, navigation.Options{})

	status, err := tracker.Goto(context.Background(), navigation.GotoRequest{
		Goal:  goal,
		Async: true,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status, test.ShouldEqual, navigation.StatusPending)

	deadline := time.Now().Add(5 * time.Second)
	for tracker.Status() == navigation.StatusPending && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	test.That(t, tracker.Status().Complete(), test.ShouldBeTrue)
	test.That(t, tracker.Close(context.Background()), test.ShouldBeNil)
}

func TestGotoLocalizerFailureFallsBackToOrigin(t *testing.T) {
	backend := newFakeBackend()
	localizer := &fakeLocalizer{err: errors.New("no fix")}
	tracker := newTestTracker(t, backend, localizer, navigation.Options{})

	// goal within the gap of the origin fallback pose
	status, err := tracker.Goto(context.Background(), navigation.GotoRequest{
		Goal: spatialmath.NewPose(0.05, 0, 0),
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status.Complete(), test.ShouldBeTrue)
	test.That(t, backend.sentGoals(), test.ShouldHaveLength, 0)
}
