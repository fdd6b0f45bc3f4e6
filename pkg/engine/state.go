package engine

// State is the lifecycle state of a Server.
//
//	Starting ──Listen ok──▶ Listening ──Shutdown──▶ Stopped
//	    │                       │
//	    └──Listen error──▶ Failed ◀──serve error
type State int

const (
	StateStarting State = iota
	StateListening
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
