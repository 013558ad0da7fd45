// Package session derives the process-wide authentication state of the storefront and
// gates navigation on it. A Gate resolves the current session once at start-up, follows
// the identity provider's event stream afterwards and asks the Router to replace the
// screen stack exactly once per transition.
package session

import (
	"strings"
	"time"
)

// Kind is the discriminator of State.
type Kind string

const (
	// KindUnknown is the initial kind; no determination has completed yet.
	KindUnknown Kind = "unknown"
	// KindAuthenticated means a session is confirmed active.
	KindAuthenticated Kind = "authenticated"
	// KindUnauthenticated means there is no active session or resolution failed.
	KindUnauthenticated Kind = "unauthenticated"
)

func (k Kind) String() string { return string(k) }

// Identity is the authenticated user as reported by the identity provider.
// Attributes (email, name, address, phone) are owned by the provider and are not
// interpreted by the gate.
type Identity struct {
	Username   string            `json:"username,omitempty"`
	Subject    string            `json:"sub,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ID returns the stable identifier of the user: the subject when present, otherwise the username.
func (i *Identity) ID() string {
	if i == nil {
		return ""
	}
	if s := strings.TrimSpace(i.Subject); s != "" {
		return s
	}
	return strings.TrimSpace(i.Username)
}

// Attribute returns a single attribute value.
func (i *Identity) Attribute(name string) string {
	if i == nil || i.Attributes == nil {
		return ""
	}
	return i.Attributes[name]
}

// Clone returns a deep copy of the identity.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	if i.Attributes != nil {
		out.Attributes = make(map[string]string, len(i.Attributes))
		for k, v := range i.Attributes {
			out.Attributes[k] = v
		}
	}
	return &out
}

// State is a snapshot of the gate. Values are copies; Identity must be treated as read-only.
type State struct {
	Kind     Kind
	Identity *Identity
	// Seq increases by one for every applied transition.
	Seq       uint64
	ChangedAt time.Time
}

// Authenticated reports whether the snapshot holds an active session.
func (s State) Authenticated() bool { return s.Kind == KindAuthenticated }

// Known reports whether the initial determination has completed.
func (s State) Known() bool { return s.Kind != KindUnknown && s.Kind != "" }
