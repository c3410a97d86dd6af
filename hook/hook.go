package hook

import "net"

// Action identifies the operation an authorize call is gating.
type Action byte

const (
	ActionPublish Action = iota
	ActionSubscribe
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionPublish:
		return "publish"
	case ActionSubscribe:
		return "subscribe"
	default:
		return "unknown"
	}
}

// Plugin is the narrow contract external authentication/authorization
// collaborators implement. A broker holds an ordered list of plug-ins and
// consults every one of them for each decision:
//
//   - Authenticate: plug-ins run in order; the first to return ok == true
//     wins, with whatever uid it returned (possibly empty). Any plug-in
//     returning an error fails the CONNECT.
//   - Authorize: every plug-in must return true for the action to be
//     permitted; the first false (or error) denies it.
type Plugin interface {
	// ID returns a unique identifier for this plug-in.
	ID() string

	// Authenticate resolves a uid for the given username/password, or
	// reports that this plug-in has no opinion (ok == false, err == nil).
	Authenticate(username string, password []byte) (uid string, ok bool, err error)

	// Authorize reports whether uid (possibly empty, for anonymous
	// clients) may perform action on topic from remoteAddr.
	Authorize(remoteAddr net.Addr, uid string, action Action, topic string) (bool, error)
}
