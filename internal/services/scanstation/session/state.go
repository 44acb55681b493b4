package session

import "time"

// State is the lifecycle position of a scan session. It is the only value
// that decides whether a new attempt may be dispatched.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateScanning
	StateProcessing
	StateResultShown
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StateAcquiring:   "acquiring",
	StateScanning:    "scanning",
	StateProcessing:  "processing",
	StateResultShown: "result_shown",
	StateClosed:      "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// CanDispatch reports whether a decoded payload may be sent for
// verification: the session must be scanning with no verification
// outstanding and the local cooldown must have elapsed.
func CanDispatch(state State, now, cooldownUntil time.Time) bool {
	return state == StateScanning && !now.Before(cooldownUntil)
}
