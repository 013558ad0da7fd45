package session

import (
	"strings"
	"time"
)

// EventKind is the closed set of authentication events the gate reacts to.
type EventKind int

const (
	// EventSignedIn reports that a session became active.
	EventSignedIn EventKind = iota + 1
	// EventSignedOut reports that the session ended.
	EventSignedOut
)

func (k EventKind) String() string {
	switch k {
	case EventSignedIn:
		return "signedIn"
	case EventSignedOut:
		return "signedOut"
	default:
		return "invalid"
	}
}

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	return k == EventSignedIn || k == EventSignedOut
}

// AuthEvent is a single transition published by the identity provider.
type AuthEvent struct {
	Kind EventKind
	// Identity optionally carries the user that signed in.
	Identity *Identity
	// Seq is the provider's monotonic sequence number. Zero means unsequenced.
	Seq uint64
	At  time.Time
}

// ParseEventName validates a raw event name coming from a provider.
// Names are matched case-insensitively; anything else reports false.
func ParseEventName(name string) (EventKind, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "signedin", "signin":
		return EventSignedIn, true
	case "signedout", "signout":
		return EventSignedOut, true
	default:
		return 0, false
	}
}
