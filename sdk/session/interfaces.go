package session

import "context"

// IdentityProvider supplies the current session and a stream of authentication events.
type IdentityProvider interface {
	// CurrentSession returns the signed-in user. Any error means "not signed in" to the gate.
	CurrentSession(ctx context.Context) (Identity, error)
	// Subscribe registers handler for every subsequent event and returns a function
	// releasing the registration. Events must be delivered serially in arrival order.
	Subscribe(handler func(AuthEvent)) (unsubscribe func())
}

// Route identifies a root screen of the application.
type Route string

const (
	// RouteTabs is the authenticated root (catalog, profile, add product).
	RouteTabs Route = "/(tabs)"
	// RouteLogin is the sign-in root.
	RouteLogin Route = "/(login)"
)

// Mode selects how the router applies a navigation.
type Mode int

const (
	// ModeReplace replaces the whole screen stack so back navigation cannot return
	// to a pre-redirect screen.
	ModeReplace Mode = iota + 1
	// ModePush pushes the route on top of the current stack.
	ModePush
)

func (m Mode) String() string {
	switch m {
	case ModeReplace:
		return "replace"
	case ModePush:
		return "push"
	default:
		return "unknown"
	}
}

// Router performs navigation. Navigate runs with no gate lock held; a call back into the
// Gate is applied after Navigate returns.
type Router interface {
	Navigate(route Route, mode Mode)
}

// RouterFunc adapts a function to the Router interface.
type RouterFunc func(route Route, mode Mode)

// Navigate calls f(route, mode).
func (f RouterFunc) Navigate(route Route, mode Mode) { f(route, mode) }
