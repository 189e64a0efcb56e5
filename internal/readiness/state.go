package readiness

import "github.com/hamori-app/hamori/internal/models"

// State is the coordinator's session state.
type State int

const (
	// Idle means no session is open.
	Idle State = iota

	// Tracking means at least one member is ready but not all.
	Tracking

	// NoneReady means the session is open and nobody is ready.
	NoneReady

	// AllReady is entered when every member is ready; the countdown starts
	// immediately.
	AllReady

	// Countdown means the countdown is running. Members are frozen.
	Countdown

	// Completed means the countdown reached zero and OnAllReady fired.
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	case NoneReady:
		return "none_ready"
	case AllReady:
		return "all_ready"
	case Countdown:
		return "countdown"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// acceptsUpdates reports whether member readiness may change in s.
func (s State) acceptsUpdates() bool {
	return s == Tracking || s == NoneReady || s == AllReady
}

// Snapshot is a copy of a coordinator's session.
type Snapshot struct {
	SessionID string
	SelfID    string
	State     State
	Members   []models.GroupMember
	Readiness models.Readiness

	// Remaining is the countdown value; meaningful in Countdown.
	Remaining int

	// Generation increments on every Open and Close.
	Generation uint64
}

// Event is a lifecycle signal emitted by the coordinator.
type Event int

const (
	EventNotify Event = iota
	EventNoReadyMembers
	EventAllReady
)

func (e Event) String() string {
	switch e {
	case EventNotify:
		return "notify"
	case EventNoReadyMembers:
		return "no_ready_members"
	case EventAllReady:
		return "all_ready"
	default:
		return "unknown"
	}
}

// Hooks receive lifecycle events. Hooks run in emission order on a
// dedicated goroutine and may call back into the coordinator. Nil hooks
// are skipped.
type Hooks struct {
	OnAllReady       func(sessionID string)
	OnNotify         func(sessionID string)
	OnNoReadyMembers func(sessionID string)
}

func (h Hooks) fire(e Event, sessionID string) {
	var fn func(string)
	switch e {
	case EventNotify:
		fn = h.OnNotify
	case EventNoReadyMembers:
		fn = h.OnNoReadyMembers
	case EventAllReady:
		fn = h.OnAllReady
	}
	if fn != nil {
		fn(sessionID)
	}
}
