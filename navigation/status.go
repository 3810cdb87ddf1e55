// Package navigation drives a planned waypoint sequence to completion against
// a motion-execution backend.
package navigation

// ActionStatus tracks the lifecycle of a dispatched motion goal. The
// vocabulary mirrors the common robotic-action status set.
type ActionStatus int

// The set of action statuses.
const (
	StatusPending ActionStatus = iota
	StatusActive
	StatusPreempted
	StatusSucceeded
	StatusAborted
	StatusRejected
	StatusPreempting
	StatusRecalling
	StatusRecalled
	StatusLost
	StatusUnknown
)

var statusNames = map[ActionStatus]string{
	StatusPending:    "pending",
	StatusActive:     "active",
	StatusPreempted:  "preempted",
	StatusSucceeded:  "succeeded",
	StatusAborted:    "aborted",
	StatusRejected:   "rejected",
	StatusPreempting: "preempting",
	StatusRecalling:  "recalling",
	StatusRecalled:   "recalled",
	StatusLost:       "lost",
	StatusUnknown:    "unknown",
}

func (s ActionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Healthy reports whether the status means the goal is still being worked on
// and the tracking loop should keep polling.
func (s ActionStatus) Healthy() bool {
	switch s {
	case StatusPending, StatusRecalling, StatusRecalled:
		return true
	default:
		return false
	}
}

// Abnormal reports whether the status is a terminal failure that must abort
// tracking immediately and be surfaced verbatim to the caller.
func (s ActionStatus) Abnormal() bool {
	switch s {
	case StatusPreempted, StatusAborted, StatusRejected, StatusPreempting, StatusLost:
		return true
	default:
		return false
	}
}

// Complete reports whether the status counts as forward progress at the
// trajectory level. Note that StatusActive lands here rather than in the
// healthy set; most action vocabularies treat it as "still running", but the
// trajectory loop has always taken it as a success signal and callers depend
// on that.
func (s ActionStatus) Complete() bool {
	return s == StatusActive || s == StatusSucceeded
}

// StatusFromWire maps the numeric goal-status code used on the wire (the
// actionlib convention, 0 through 9) into an ActionStatus. The mapping is
// total: codes without a defined meaning become StatusUnknown.
func StatusFromWire(code uint8) ActionStatus {
	wire := map[uint8]ActionStatus{
		0: StatusPending,
		1: StatusActive,
		2: StatusPreempted,
		3: StatusSucceeded,
		4: StatusAborted,
		5: StatusRejected,
		6: StatusPreempting,
		7: StatusRecalling,
		8: StatusRecalled,
		9: StatusLost,
	}
	if s, ok := wire[code]; ok {
		return s
	}
	return StatusUnknown
}
