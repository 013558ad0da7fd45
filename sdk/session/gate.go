package session

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const initializeKey = "initialize"

// Option configures a Gate.
type Option func(*Gate)

// WithLogger replaces the logger used for resolution failures and dropped events.
func WithLogger(logger log.FieldLogger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides the time source used for State.ChangedAt.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRoutes overrides the authenticated and unauthenticated root routes.
func WithRoutes(authenticated, unauthenticated Route) Option {
	return func(g *Gate) {
		if authenticated != "" {
			g.authenticatedRoute = authenticated
		}
		if unauthenticated != "" {
			g.unauthenticatedRoute = unauthenticated
		}
	}
}

// Gate owns the session state of the process and drives navigation from it.
//
// The state starts as KindUnknown, leaves it once through Initialize or the first
// event, and afterwards only toggles between KindAuthenticated and KindUnauthenticated.
type Gate struct {
	provider IdentityProvider
	router   Router
	logger   log.FieldLogger
	now      func() time.Time

	authenticatedRoute   Route
	unauthenticatedRoute Route

	group         singleflight.Group
	subscribeOnce sync.Once

	mu          sync.Mutex
	state       State
	disposed    bool
	unsubscribe func()
	// eventEpoch counts applied events; a pending resolution compares it to
	// detect that an event won the race.
	eventEpoch   uint64
	lastEventSeq uint64
	watchers     map[uint64]func(State)
	nextWatcher  uint64
	// settling is set while one caller delivers states; settlePending asks it to
	// deliver once more before it stops.
	settling      bool
	settlePending bool

	// navigated and notifiedSeq belong to the caller that holds settling.
	navigated   Kind
	notifiedSeq uint64
}

// NewGate constructs a gate over provider and router. Nothing happens until Initialize.
func NewGate(provider IdentityProvider, router Router, opts ...Option) *Gate {
	g := &Gate{
		provider:             provider,
		router:               router,
		logger:               log.WithField("component", "session"),
		now:                  time.Now,
		authenticatedRoute:   RouteTabs,
		unauthenticatedRoute: RouteLogin,
		state:                State{Kind: KindUnknown},
		navigated:            KindUnknown,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Initialize subscribes to the provider's events and resolves the current session.
//
// The first call queries the provider; later calls return the cached state. Concurrent
// callers share one in-flight resolution. Failures are never returned: they are logged
// as ErrSessionResolutionFailed and the state becomes KindUnauthenticated. When ctx is
// cancelled before the provider answers, the state stays KindUnknown and a later call
// may retry.
func (g *Gate) Initialize(ctx context.Context) State {
	if ctx == nil {
		ctx = context.Background()
	}
	if g.isDisposed() {
		return g.Snapshot()
	}
	// Subscribe before resolving so no event published during resolution is lost.
	g.ensureSubscribed()

	if snapshot := g.Snapshot(); snapshot.Known() || g.isDisposed() {
		return snapshot
	}

	v, _, _ := g.group.Do(initializeKey, func() (interface{}, error) {
		return g.resolve(ctx), nil
	})
	state, ok := v.(State)
	if !ok {
		return g.Snapshot()
	}
	return state
}

func (g *Gate) resolve(ctx context.Context) State {
	g.mu.Lock()
	if g.disposed || g.state.Known() {
		state := g.state
		g.mu.Unlock()
		return state
	}
	epoch := g.eventEpoch
	g.mu.Unlock()

	var (
		identity Identity
		err      error
	)
	if g.provider == nil {
		err = errNoProvider
	} else {
		identity, err = g.provider.CurrentSession(ctx)
	}
	if err == nil && identity.ID() == "" {
		err = errEmptyIdentity
	}

	g.mu.Lock()
	switch {
	case g.disposed:
		state := g.state
		g.mu.Unlock()
		g.logger.Debug("gate disposed while resolving, discarding result")
		return state
	case g.eventEpoch != epoch || g.state.Known():
		state := g.state
		g.mu.Unlock()
		g.logger.WithField("state", state.Kind).Debug("event applied while resolving, discarding result")
		return state
	case err != nil && ctx.Err() != nil:
		state := g.state
		g.mu.Unlock()
		g.logger.WithError(err).Debug("session resolution cancelled, state stays unknown")
		return state
	}

	var next State
	if err != nil {
		next = State{Kind: KindUnauthenticated}
	} else {
		next = State{Kind: KindAuthenticated, Identity: identity.Clone()}
	}
	g.applyLocked(next)
	state := g.state
	g.mu.Unlock()

	if err != nil {
		g.logger.WithError(&ResolutionError{Cause: err}).Warn("no active session, continuing signed out")
	} else {
		g.logger.WithField("user", state.Identity.ID()).Info("session resolved")
	}
	g.settle()
	return state
}

// HandleEvent applies a provider event. SignedIn forces KindAuthenticated, SignedOut forces
// KindUnauthenticated; the latest event always wins. Events whose sequence is not newer
// than the last applied one are stale and ignored, as is everything after Dispose.
// A SignedIn event without an identity keeps the known one; when no identity is known it
// is dropped, since an authenticated state always carries its user.
func (g *Gate) HandleEvent(event AuthEvent) {
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return
	}
	if !event.Kind.Valid() {
		g.mu.Unlock()
		g.logger.WithField("event", int(event.Kind)).Warn("ignoring invalid auth event")
		return
	}
	identity := event.Identity.Clone()
	if event.Kind == EventSignedIn && identity == nil {
		identity = g.state.Identity
		if identity == nil {
			g.mu.Unlock()
			g.logger.WithFields(log.Fields{"event": event.Kind, "seq": event.Seq}).Warn("ignoring signed-in event without identity")
			return
		}
	}
	if event.Seq != 0 {
		if event.Seq <= g.lastEventSeq {
			last := g.lastEventSeq
			g.mu.Unlock()
			g.logger.WithFields(log.Fields{"event": event.Kind, "seq": event.Seq}).Debugf("ignoring stale auth event, last applied seq %d", last)
			return
		}
		g.lastEventSeq = event.Seq
	}

	var next State
	switch event.Kind {
	case EventSignedIn:
		next = State{Kind: KindAuthenticated, Identity: identity}
	case EventSignedOut:
		next = State{Kind: KindUnauthenticated}
	}
	g.eventEpoch++
	changed := g.applyLocked(next)
	g.mu.Unlock()

	if changed {
		g.logger.WithFields(log.Fields{"event": event.Kind, "state": next.Kind}).Debug("auth event applied")
		g.settle()
	}
}

// applyLocked stores next and reports whether anything observable changed.
// Re-entering the same kind with the same user is a no-op.
func (g *Gate) applyLocked(next State) bool {
	current := g.state
	if current.Kind == next.Kind && current.Identity.ID() == next.Identity.ID() {
		if next.Identity != nil {
			g.state.Identity = next.Identity
		}
		return false
	}
	next.Seq = current.Seq + 1
	next.ChangedAt = g.now()
	g.state = next
	return true
}

// settle delivers the latest state to observers and the router. One caller drains at a
// time with no lock held while calling out, so observers and routers may call back into
// the gate; a nested or concurrent call only marks the drain pending and returns.
func (g *Gate) settle() {
	g.mu.Lock()
	g.settlePending = true
	if g.settling {
		g.mu.Unlock()
		return
	}
	g.settling = true
	for g.settlePending && !g.disposed {
		g.settlePending = false
		state := g.state
		watchers := make([]func(State), 0, len(g.watchers))
		for _, fn := range g.watchers {
			watchers = append(watchers, fn)
		}
		g.mu.Unlock()

		g.deliver(state, watchers)

		g.mu.Lock()
	}
	g.settling = false
	g.settlePending = false
	g.mu.Unlock()
}

// deliver notifies observers of state once and navigates on a change of kind.
func (g *Gate) deliver(state State, watchers []func(State)) {
	if state.Seq > g.notifiedSeq {
		g.notifiedSeq = state.Seq
		for _, fn := range watchers {
			g.notify(fn, state)
		}
	}

	if !state.Known() || state.Kind == g.navigated {
		return
	}
	g.navigated = state.Kind
	route := g.unauthenticatedRoute
	if state.Kind == KindAuthenticated {
		route = g.authenticatedRoute
	}
	g.logger.WithFields(log.Fields{"route": route, "state": state.Kind}).Debug("navigating")
	if g.router == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.logger.Errorf("session router panic: %v", r)
		}
	}()
	g.router.Navigate(route, ModeReplace)
}

func (g *Gate) notify(fn func(State), state State) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Errorf("session watcher panic: %v", r)
		}
	}()
	fn(state)
}

// Snapshot returns a copy of the current state.
func (g *Gate) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Watch registers fn for every subsequent state change. Observers run with no gate lock
// held, serially and in mutation order, and may call HandleEvent or Initialize; the
// resulting state is delivered after fn returns. The returned function removes the
// observer.
func (g *Gate) Watch(fn func(State)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return func() {}
	}
	if g.watchers == nil {
		g.watchers = make(map[uint64]func(State))
	}
	g.nextWatcher++
	id := g.nextWatcher
	g.watchers[id] = fn
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.watchers, id)
			g.mu.Unlock()
		})
	}
}

// Dispose releases the provider subscription exactly once. Pending resolutions and
// later events no longer mutate the state or navigate. Dispose is idempotent.
func (g *Gate) Dispose() {
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return
	}
	g.disposed = true
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.watchers = nil
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (g *Gate) ensureSubscribed() {
	g.subscribeOnce.Do(func() {
		if g.provider == nil {
			return
		}
		unsubscribe := g.provider.Subscribe(g.HandleEvent)
		g.mu.Lock()
		if g.disposed {
			g.mu.Unlock()
			if unsubscribe != nil {
				unsubscribe()
			}
			return
		}
		g.unsubscribe = unsubscribe
		g.mu.Unlock()
	})
}

func (g *Gate) isDisposed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disposed
}

// IsResolutionFailure reports whether err is a session resolution failure.
func IsResolutionFailure(err error) bool {
	return errors.Is(err, ErrSessionResolutionFailed)
}
