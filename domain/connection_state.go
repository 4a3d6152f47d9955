package domain

// ConnectionState is the lifecycle of a connection inside the core.
// Connecting -> Joined -> Closed, Connecting -> Closed on rejection.
type ConnectionState int32

const (
	Connecting ConnectionState = iota
	Joined
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Joined:
		return "joined"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether next is reachable from s.
func (s ConnectionState) CanTransition(next ConnectionState) bool {
	switch s {
	case Connecting:
		return next == Joined || next == Closed
	case Joined:
		return next == Closed
	default:
		return false
	}
}
