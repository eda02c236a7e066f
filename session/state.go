package session

// State is the liveness of the client's session.
type State int

const (
	LoggedOut State = iota
	Live
	Terminating
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case Live:
		return "live"
	case Terminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Reason explains why a session ended.
type Reason string

const (
	ReasonLogout     Reason = "logout"
	ReasonExpired    Reason = "expired"
	ReasonInactivity Reason = "inactivity"
)

// Identity is who the live session belongs to.
type Identity struct {
	UserID   int64
	Username string
}
