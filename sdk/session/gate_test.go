package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var errNetworkTimeout = errors.New("network timeout")

type fakeProvider struct {
	mu           sync.Mutex
	identity     Identity
	err          error
	block        chan struct{}
	called       chan struct{}
	calls        int
	handlers     map[int]func(AuthEvent)
	nextHandler  int
	subscribes   int
	unsubscribes int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{called: make(chan struct{}, 16), handlers: make(map[int]func(AuthEvent))}
}

func (p *fakeProvider) CurrentSession(ctx context.Context) (Identity, error) {
	p.mu.Lock()
	p.calls++
	block := p.block
	p.mu.Unlock()
	p.called <- struct{}{}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return Identity{}, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity, p.err
}

func (p *fakeProvider) Subscribe(handler func(AuthEvent)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribes++
	p.nextHandler++
	id := p.nextHandler
	p.handlers[id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.unsubscribes++
		delete(p.handlers, id)
	}
}

func (p *fakeProvider) emit(event AuthEvent) {
	p.mu.Lock()
	handlers := make([]func(AuthEvent), 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()
	for _, h := range handlers {
		h(event)
	}
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type navigation struct {
	route Route
	mode  Mode
}

type recordingRouter struct {
	mu    sync.Mutex
	calls []navigation
}

func (r *recordingRouter) Navigate(route Route, mode Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, navigation{route: route, mode: mode})
}

func (r *recordingRouter) navigations() []navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]navigation, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recordingRouter) count(route Route) int {
	n := 0
	for _, nav := range r.navigations() {
		if nav.route == route {
			n++
		}
	}
	return n
}

func newTestGate(provider *fakeProvider, router *recordingRouter) (*Gate, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	return NewGate(provider, router, WithLogger(logger)), hook
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestInitializeAuthenticatedNavigatesToTabsOnce(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.identity = Identity{Username: "u1"}
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)

	state := gate.Initialize(context.Background())

	if state.Kind != KindAuthenticated {
		t.Fatalf("expected authenticated, got %s", state.Kind)
	}
	if state.Identity.ID() != "u1" {
		t.Fatalf("expected identity u1, got %q", state.Identity.ID())
	}
	navs := router.navigations()
	if len(navs) != 1 || navs[0].route != RouteTabs || navs[0].mode != ModeReplace {
		t.Fatalf("expected exactly one replace navigation to tabs, got %+v", navs)
	}
}

func TestInitializeFailureNavigatesToLoginOnce(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.err = errNetworkTimeout
	router := &recordingRouter{}
	gate, hook := newTestGate(provider, router)

	state := gate.Initialize(context.Background())

	if state.Kind != KindUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", state.Kind)
	}
	navs := router.navigations()
	if len(navs) != 1 || navs[0].route != RouteLogin || navs[0].mode != ModeReplace {
		t.Fatalf("expected exactly one replace navigation to login, got %+v", navs)
	}

	var logged error
	for _, entry := range hook.AllEntries() {
		if err, ok := entry.Data[log.ErrorKey].(error); ok && entry.Level == log.WarnLevel {
			logged = err
		}
	}
	if logged == nil {
		t.Fatalf("expected resolution failure to be logged")
	}
	if !errors.Is(logged, ErrSessionResolutionFailed) {
		t.Fatalf("expected logged error to match ErrSessionResolutionFailed, got %v", logged)
	}
	if !errors.Is(logged, errNetworkTimeout) {
		t.Fatalf("expected logged error to wrap the provider cause, got %v", logged)
	}
}

func TestInitializeTreatsEmptyIdentityAsFailure(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)

	if state := gate.Initialize(context.Background()); state.Kind != KindUnauthenticated {
		t.Fatalf("expected unauthenticated for empty identity, got %s", state.Kind)
	}
	if router.count(RouteLogin) != 1 {
		t.Fatalf("expected one login navigation, got %+v", router.navigations())
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.identity = Identity{Subject: "sub-1"}
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)

	first := gate.Initialize(context.Background())
	second := gate.Initialize(context.Background())

	if first.Kind != second.Kind || first.Seq != second.Seq {
		t.Fatalf("expected identical states, got %+v and %+v", first, second)
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected provider to be queried once, got %d", provider.callCount())
	}
	if len(router.navigations()) != 1 {
		t.Fatalf("expected one navigation, got %+v", router.navigations())
	}
	if provider.subscribes != 1 {
		t.Fatalf("expected one subscription, got %d", provider.subscribes)
	}
}

func TestConcurrentInitializeSharesResolution(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.identity = Identity{Username: "u1"}
	provider.block = make(chan struct{})
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)

	var wg sync.WaitGroup
	results := make([]State, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = gate.Initialize(context.Background())
		}(i)
	}
	waitSignal(t, provider.called, "provider call")
	close(provider.block)
	wg.Wait()

	for i, state := range results {
		if state.Kind != KindAuthenticated {
			t.Fatalf("caller %d: expected authenticated, got %s", i, state.Kind)
		}
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected a single provider call, got %d", provider.callCount())
	}
	if router.count(RouteTabs) != 1 {
		t.Fatalf("expected one tabs navigation, got %+v", router.navigations())
	}
}

func TestRepeatedSignedInNavigatesOnce(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.err = errors.New("no current user")
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)
	gate.Initialize(context.Background())

	user := &Identity{Username: "u1"}
	provider.emit(AuthEvent{Kind: EventSignedIn, Identity: user, Seq: 1})
	provider.emit(AuthEvent{Kind: EventSignedIn, Identity: user, Seq: 2})

	if got := gate.Snapshot(); got.Kind != KindAuthenticated || got.Identity.ID() != "u1" {
		t.Fatalf("expected authenticated u1, got %+v", got)
	}
	want := []navigation{{RouteLogin, ModeReplace}, {RouteTabs, ModeReplace}}
	got := router.navigations()
	if len(got) != len(want) {
		t.Fatalf("expected navigations %+v, got %+v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("navigation %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestRepeatedSignedOutDoesNotNavigate(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.err = errors.New("no current user")
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)
	gate.Initialize(context.Background())

	provider.emit(AuthEvent{Kind: EventSignedOut, Seq: 1})

	if router.count(RouteLogin) != 1 {
		t.Fatalf("expected a single login navigation, got %+v", router.navigations())
	}
}

func TestEventWinsOverPendingResolution(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		identity  Identity
		err       error
		event     EventKind
		wantKind  Kind
		wantRoute Route
	}{
		{"signed out beats successful resolution", Identity{Username: "u1"}, nil, EventSignedOut, KindUnauthenticated, RouteLogin},
		{"signed in beats failed resolution", Identity{}, errNetworkTimeout, EventSignedIn, KindAuthenticated, RouteTabs},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			provider := newFakeProvider()
			provider.identity = tt.identity
			provider.err = tt.err
			provider.block = make(chan struct{})
			router := &recordingRouter{}
			gate, _ := newTestGate(provider, router)

			done := make(chan State, 1)
			go func() { done <- gate.Initialize(context.Background()) }()
			waitSignal(t, provider.called, "provider call")

			provider.emit(AuthEvent{Kind: tt.event, Identity: &Identity{Username: "u2"}, Seq: 1})
			close(provider.block)

			var state State
			select {
			case state = <-done:
			case <-time.After(2 * time.Second):
				t.Fatalf("initialize did not return")
			}
			if state.Kind != tt.wantKind {
				t.Fatalf("expected %s, got %s", tt.wantKind, state.Kind)
			}
			if snap := gate.Snapshot(); snap.Kind != tt.wantKind {
				t.Fatalf("expected snapshot %s, got %s", tt.wantKind, snap.Kind)
			}
			navs := router.navigations()
			if len(navs) != 1 || navs[0].route != tt.wantRoute {
				t.Fatalf("expected exactly one navigation to %s, got %+v", tt.wantRoute, navs)
			}
		})
	}
}

func TestDisposeReleasesSubscriptionOnce(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.err = errors.New("no current user")
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)
	gate.Initialize(context.Background())

	gate.Dispose()
	gate.Dispose()

	if provider.unsubscribes != 1 {
		t.Fatalf("expected exactly one unsubscribe, got %d", provider.unsubscribes)
	}

	before := gate.Snapshot()
	provider.emit(AuthEvent{Kind: EventSignedIn, Identity: &Identity{Username: "u1"}, Seq: 1})
	gate.HandleEvent(AuthEvent{Kind: EventSignedIn, Identity: &Identity{Username: "u1"}, Seq: 2})

	after := gate.Snapshot()
	if after.Kind != before.Kind || after.Seq != before.Seq {
		t.Fatalf("expected no mutation after dispose, before %+v after %+v", before, after)
	}
	if router.count(RouteTabs) != 0 {
		t.Fatalf("expected no navigation after dispose, got %+v", router.navigations())
	}
}

func TestDisposeDiscardsLateResolution(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.identity = Identity{Username: "u1"}
	provider.block = make(chan struct{})
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)

	done := make(chan State, 1)
	go func() { done <- gate.Initialize(context.Background()) }()
	waitSignal(t, provider.called, "provider call")

	gate.Dispose()
	close(provider.block)

	select {
	case state := <-done:
		if state.Kind != KindUnknown {
			t.Fatalf("expected late result to be discarded, got %s", state.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("initialize did not return")
	}
	if navs := router.navigations(); len(navs) != 0 {
		t.Fatalf("expected no navigation, got %+v", navs)
	}
	if provider.unsubscribes != 1 {
		t.Fatalf("expected subscription to be released, got %d unsubscribes", provider.unsubscribes)
	}
}

func TestCancelledInitializeStaysUnknownAndRetries(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.identity = Identity{Username: "u1"}
	provider.block = make(chan struct{})
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan State, 1)
	go func() { done <- gate.Initialize(ctx) }()
	waitSignal(t, provider.called, "provider call")
	cancel()

	select {
	case state := <-done:
		if state.Kind != KindUnknown {
			t.Fatalf("expected unknown after cancellation, got %s", state.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("initialize did not return")
	}
	if navs := router.navigations(); len(navs) != 0 {
		t.Fatalf("expected no navigation while unknown, got %+v", navs)
	}

	close(provider.block)
	state := gate.Initialize(context.Background())
	if state.Kind != KindAuthenticated {
		t.Fatalf("expected retry to authenticate, got %s", state.Kind)
	}
	if provider.callCount() != 2 {
		t.Fatalf("expected two provider calls, got %d", provider.callCount())
	}
	if router.count(RouteTabs) != 1 {
		t.Fatalf("expected one tabs navigation, got %+v", router.navigations())
	}
}

func TestStaleEventIsIgnored(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.err = errors.New("no current user")
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)
	gate.Initialize(context.Background())

	gate.HandleEvent(AuthEvent{Kind: EventSignedIn, Identity: &Identity{Username: "u1"}, Seq: 5})
	gate.HandleEvent(AuthEvent{Kind: EventSignedOut, Seq: 3})

	if state := gate.Snapshot(); state.Kind != KindAuthenticated {
		t.Fatalf("expected stale sign out to be ignored, got %s", state.Kind)
	}
	if router.count(RouteLogin) != 1 || router.count(RouteTabs) != 1 {
		t.Fatalf("unexpected navigations %+v", router.navigations())
	}
}

func TestSignedInWithoutIdentityKeepsPrevious(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.identity = Identity{Username: "u1", Attributes: map[string]string{"email": "u1@example.com"}}
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)
	gate.Initialize(context.Background())

	gate.HandleEvent(AuthEvent{Kind: EventSignedIn})

	state := gate.Snapshot()
	if state.Identity.ID() != "u1" || state.Identity.Attribute("email") != "u1@example.com" {
		t.Fatalf("expected previous identity to be kept, got %+v", state.Identity)
	}
	if len(router.navigations()) != 1 {
		t.Fatalf("expected no extra navigation, got %+v", router.navigations())
	}
}

func TestSignedInWithoutIdentityIsDroppedWhileUnknown(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	router := &recordingRouter{}
	gate, hook := newTestGate(provider, router)

	gate.HandleEvent(AuthEvent{Kind: EventSignedIn, Seq: 1})

	if state := gate.Snapshot(); state.Kind != KindUnknown {
		t.Fatalf("expected state to stay unknown, got %s", state.Kind)
	}
	if last := hook.LastEntry(); last == nil || last.Level != log.WarnLevel {
		t.Fatalf("expected a warning for the event without identity, got %+v", last)
	}
	if navs := router.navigations(); len(navs) != 0 {
		t.Fatalf("expected no navigation, got %+v", navs)
	}

	gate.HandleEvent(AuthEvent{Kind: EventSignedIn, Identity: &Identity{Username: "u1"}, Seq: 1})
	state := gate.Snapshot()
	if state.Kind != KindAuthenticated || state.Identity.ID() != "u1" {
		t.Fatalf("expected authenticated u1, got %+v", state)
	}
}

func TestObserverCanSignOutDuringInitialize(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.identity = Identity{Username: "u1"}
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)

	var mu sync.Mutex
	var kinds []Kind
	gate.Watch(func(s State) {
		mu.Lock()
		kinds = append(kinds, s.Kind)
		mu.Unlock()
		if s.Kind == KindAuthenticated {
			gate.HandleEvent(AuthEvent{Kind: EventSignedOut, Seq: 1})
		}
	})

	done := make(chan State, 1)
	go func() { done <- gate.Initialize(context.Background()) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("initialize did not return after the observer handled an event")
	}

	if state := gate.Snapshot(); state.Kind != KindUnauthenticated {
		t.Fatalf("expected the observer's sign out to win, got %s", state.Kind)
	}
	navs := router.navigations()
	if len(navs) != 2 || navs[0].route != RouteTabs || navs[1].route != RouteLogin {
		t.Fatalf("expected tabs then login, got %+v", navs)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 2 || kinds[0] != KindAuthenticated || kinds[1] != KindUnauthenticated {
		t.Fatalf("expected authenticated then unauthenticated, got %v", kinds)
	}
}

func TestRouterCanReenterGate(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.err = errors.New("no current user")
	var gate *Gate
	var mu sync.Mutex
	var routes []Route
	router := RouterFunc(func(route Route, _ Mode) {
		mu.Lock()
		routes = append(routes, route)
		mu.Unlock()
		if route == RouteLogin {
			gate.HandleEvent(AuthEvent{Kind: EventSignedIn, Identity: &Identity{Username: "u1"}, Seq: 1})
		}
	})
	logger, _ := test.NewNullLogger()
	gate = NewGate(provider, router, WithLogger(logger))

	gate.Initialize(context.Background())

	if state := gate.Snapshot(); state.Kind != KindAuthenticated {
		t.Fatalf("expected authenticated, got %s", state.Kind)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(routes) != 2 || routes[0] != RouteLogin || routes[1] != RouteTabs {
		t.Fatalf("expected login then tabs, got %v", routes)
	}
}

func TestInvalidEventIsDropped(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.err = errors.New("no current user")
	router := &recordingRouter{}
	gate, hook := newTestGate(provider, router)
	gate.Initialize(context.Background())
	before := gate.Snapshot()

	gate.HandleEvent(AuthEvent{Kind: EventKind(99), Seq: 1})

	if after := gate.Snapshot(); after.Seq != before.Seq {
		t.Fatalf("expected invalid event to be ignored, got %+v", after)
	}
	if last := hook.LastEntry(); last == nil || last.Level != log.WarnLevel {
		t.Fatalf("expected a warning for the invalid event, got %+v", last)
	}
}

func TestWatchDeliversTransitionsInOrder(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.identity = Identity{Username: "u1"}
	router := &recordingRouter{}
	gate, _ := newTestGate(provider, router)

	var mu sync.Mutex
	var kinds []Kind
	cancel := gate.Watch(func(s State) {
		mu.Lock()
		kinds = append(kinds, s.Kind)
		mu.Unlock()
	})

	gate.Initialize(context.Background())
	provider.emit(AuthEvent{Kind: EventSignedOut, Seq: 1})
	cancel()
	cancel()
	provider.emit(AuthEvent{Kind: EventSignedIn, Seq: 2})

	mu.Lock()
	defer mu.Unlock()
	want := []Kind{KindAuthenticated, KindUnauthenticated}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
}

func TestWithRoutesOverridesTargets(t *testing.T) {
	t.Parallel()
	provider := newFakeProvider()
	provider.identity = Identity{Username: "u1"}
	router := &recordingRouter{}
	logger, _ := test.NewNullLogger()
	gate := NewGate(provider, router, WithLogger(logger), WithRoutes("/home", "/signin"))

	gate.Initialize(context.Background())

	if router.count("/home") != 1 {
		t.Fatalf("expected navigation to custom route, got %+v", router.navigations())
	}
}

func TestChangedAtUsesClock(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	provider := newFakeProvider()
	provider.identity = Identity{Username: "u1"}
	logger, _ := test.NewNullLogger()
	gate := NewGate(provider, &recordingRouter{}, WithLogger(logger), WithClock(func() time.Time { return fixed }))

	state := gate.Initialize(context.Background())
	if !state.ChangedAt.Equal(fixed) || state.Seq != 1 {
		t.Fatalf("expected seq 1 at %v, got seq %d at %v", fixed, state.Seq, state.ChangedAt)
	}
}
