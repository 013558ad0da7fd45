package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lojinha-app/storefront/sdk/session"
	log "github.com/sirupsen/logrus"
)

// navigateMsg carries a gate navigation into the program.
type navigateMsg struct {
	route session.Route
	mode  session.Mode
}

// Router implements session.Router for the terminal client. Navigate never blocks:
// navigations are queued in order and drained into the program by a tea.Cmd.
type Router struct {
	mu      sync.Mutex
	pending []navigateMsg
	notify  chan struct{}
	closed  bool
}

var _ session.Router = (*Router)(nil)

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{notify: make(chan struct{}, 1)}
}

// Navigate queues a navigation for the program.
func (r *Router) Navigate(route session.Route, mode session.Mode) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.pending = append(r.pending, navigateMsg{route: route, mode: mode})
	r.mu.Unlock()
	log.WithFields(log.Fields{"route": route, "status": mode.String()}).Debug("navigation queued")

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Close drops queued navigations and ignores later ones.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.pending = nil
}

func (r *Router) next() (navigateMsg, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return navigateMsg{}, false
	}
	msg := r.pending[0]
	r.pending = r.pending[1:]
	return msg, true
}

// wait returns a command that delivers the next queued navigation. It yields nil when
// ctx ends.
func (r *Router) wait(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		for {
			if msg, ok := r.next(); ok {
				return msg
			}
			select {
			case <-ctx.Done():
				return nil
			case <-r.notify:
			}
		}
	}
}
