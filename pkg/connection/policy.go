package connection

import "time"

const (
	badSessionRetry = 3 * time.Second
	transientRetry  = 5 * time.Second
)

// Plan is the reaction to one disconnection.
type Plan struct {
	Reconnect        bool
	ClearCredentials bool
	After            time.Duration
}

// Decide maps a disconnection reason to a Plan. A logout is terminal and
// requires re-pairing; a bad session wipes stored credentials first.
// Everything else retries indefinitely.
func Decide(reason Reason) Plan {
	switch reason {
	case ReasonLoggedOut:
		return Plan{}
	case ReasonBadSession:
		return Plan{Reconnect: true, ClearCredentials: true, After: badSessionRetry}
	default:
		return Plan{Reconnect: true, After: transientRetry}
	}
}

// ReasonFromStatusCode classifies a transport status code the way the
// pairing protocol reports them: 401 is a rejected session.
func ReasonFromStatusCode(code int) Reason {
	switch code {
	case 401:
		return ReasonBadSession
	default:
		return ReasonTransient
	}
}
