package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lojinha-app/storefront/internal/catalog"
	"github.com/lojinha-app/storefront/internal/identity"
	"github.com/lojinha-app/storefront/internal/storefront"
	"github.com/lojinha-app/storefront/sdk/session"
	log "github.com/sirupsen/logrus"
)

type fakeStorefront struct {
	signIns   [][2]string
	signInErr error
	products  []catalog.Product
	purchased []string
}

func (f *fakeStorefront) SignIn(_ context.Context, login, password string) (*session.Identity, error) {
	f.signIns = append(f.signIns, [2]string{login, password})
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return &session.Identity{Username: login}, nil
}

func (f *fakeStorefront) SignUp(context.Context, storefront.SignUpInput) (*identity.SignUpResult, error) {
	return &identity.SignUpResult{}, nil
}

func (f *fakeStorefront) SignOut(context.Context) error { return nil }

func (f *fakeStorefront) Profile(context.Context) (*storefront.Profile, error) {
	return &storefront.Profile{Username: "maria"}, nil
}

func (f *fakeStorefront) Catalog(context.Context) ([]catalog.Product, error) {
	return f.products, nil
}

func (f *fakeStorefront) Product(_ context.Context, id string) (*catalog.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func (f *fakeStorefront) AddProduct(context.Context, storefront.AddProductInput) (*catalog.Product, error) {
	return &catalog.Product{ID: "new"}, nil
}

func (f *fakeStorefront) Purchase(product catalog.Product) storefront.Receipt {
	f.purchased = append(f.purchased, product.ID)
	return storefront.Receipt{ProductID: product.ID, Name: product.Name}
}

func newTestApp(t *testing.T, svc Storefront) App {
	t.Helper()
	SetLocale("pt")
	t.Cleanup(func() { SetLocale("pt") })
	app := NewApp(context.Background(), Options{Service: svc})
	return step(t, app, tea.WindowSizeMsg{Width: 100, Height: 30})
}

func step(t *testing.T, app App, msg tea.Msg) App {
	t.Helper()
	model, _ := app.Update(msg)
	next, ok := model.(App)
	if !ok {
		t.Fatalf("expected App model, got %T", model)
	}
	return next
}

func stepCmd(t *testing.T, app App, msg tea.Msg) (App, tea.Cmd) {
	t.Helper()
	model, cmd := app.Update(msg)
	return model.(App), cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func stackOf(app App) []screen {
	return append([]screen(nil), app.stack...)
}

func TestRouterDeliversNavigationsInOrder(t *testing.T) {
	router := NewRouter()
	router.Navigate(session.RouteLogin, session.ModeReplace)
	router.Navigate(session.RouteTabs, session.ModeReplace)

	wait := router.wait(context.Background())
	first, ok := wait().(navigateMsg)
	if !ok || first.route != session.RouteLogin {
		t.Fatalf("expected login first, got %#v", first)
	}
	second, ok := wait().(navigateMsg)
	if !ok || second.route != session.RouteTabs || second.mode != session.ModeReplace {
		t.Fatalf("expected tabs replace second, got %#v", second)
	}
}

func TestRouterWaitEndsWithContext(t *testing.T) {
	router := NewRouter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if msg := router.wait(ctx)(); msg != nil {
		t.Fatalf("expected nil after cancellation, got %#v", msg)
	}

	router.Close()
	router.Navigate(session.RouteTabs, session.ModeReplace)
	if _, ok := router.next(); ok {
		t.Fatalf("expected closed router to drop navigations")
	}
}

type staticProvider struct {
	identity *session.Identity
}

func (p staticProvider) CurrentSession(context.Context) (session.Identity, error) {
	if p.identity == nil {
		return session.Identity{}, identity.ErrNoSession
	}
	return *p.identity, nil
}

func (p staticProvider) Subscribe(func(session.AuthEvent)) func() { return func() {} }

func TestGateNavigatesThroughRouter(t *testing.T) {
	tests := []struct {
		name    string
		current *session.Identity
		want    screen
	}{
		{name: "signed in", current: &session.Identity{Username: "maria"}, want: screenTabs},
		{name: "signed out", current: nil, want: screenLogin},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter()
			gate := session.NewGate(staticProvider{identity: tt.current}, router)
			defer gate.Dispose()
			gate.Initialize(context.Background())

			app := newTestApp(t, &fakeStorefront{})
			if app.current() != screenSplash {
				t.Fatalf("expected splash before the gate resolves, got %v", app.current())
			}
			msg := router.wait(context.Background())()
			app = step(t, app, msg)
			if got := stackOf(app); len(got) != 1 || got[0] != tt.want {
				t.Fatalf("expected stack [%v], got %v", tt.want, got)
			}
		})
	}
}

func TestReplaceClearsBackStack(t *testing.T) {
	svc := &fakeStorefront{products: []catalog.Product{{ID: "p1", Name: "Caneca"}}}
	app := newTestApp(t, svc)
	app = step(t, app, navigateMsg{route: session.RouteTabs, mode: session.ModeReplace})
	app = step(t, app, openProductMsg{product: svc.products[0]})
	if got := stackOf(app); len(got) != 2 || got[1] != screenProduct {
		t.Fatalf("expected product pushed over tabs, got %v", got)
	}

	app = step(t, app, navigateMsg{route: session.RouteLogin, mode: session.ModeReplace})
	if got := stackOf(app); len(got) != 1 || got[0] != screenLogin {
		t.Fatalf("expected replace to leave only login, got %v", got)
	}

	// esc cannot pop the root
	app = step(t, app, key("esc"))
	if app.current() != screenLogin || len(app.stack) != 1 {
		t.Fatalf("expected login root to stay, got %v", stackOf(app))
	}
}

func TestEscPopsPushedScreens(t *testing.T) {
	app := newTestApp(t, &fakeStorefront{})
	app = step(t, app, navigateMsg{route: session.RouteLogin, mode: session.ModeReplace})
	app = step(t, app, pushScreenMsg{screen: screenSignup})
	if app.current() != screenSignup {
		t.Fatalf("expected signup on top, got %v", app.current())
	}
	app = step(t, app, key("esc"))
	if app.current() != screenLogin {
		t.Fatalf("expected esc to return to login, got %v", app.current())
	}

	app = step(t, app, navigateMsg{route: session.RouteTabs, mode: session.ModePush})
	if got := stackOf(app); len(got) != 2 {
		t.Fatalf("expected push to keep login below tabs, got %v", got)
	}
}

func TestUnknownRouteIsIgnored(t *testing.T) {
	app := newTestApp(t, &fakeStorefront{})
	app = step(t, app, navigateMsg{route: session.Route("/(nowhere)"), mode: session.ModeReplace})
	if app.current() != screenSplash {
		t.Fatalf("expected splash to stay, got %v", app.current())
	}
}

func TestLoginSubmitsCredentials(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr string
	}{
		{name: "accepted"},
		{name: "rejected", err: &identity.Error{Code: "NotAuthorizedException", Message: "Incorrect username or password."}, wantErr: "Incorrect username or password."},
		{name: "invalid form", err: &storefront.ValidationError{Message: "Informe usuário e senha."}, wantErr: "Informe usuário e senha."},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeStorefront{signInErr: tt.err}
			app := newTestApp(t, svc)
			app = step(t, app, navigateMsg{route: session.RouteLogin, mode: session.ModeReplace})
			app.login.form.setValue(loginFieldUser, "maria@example.com")
			app.login.form.setValue(loginFieldPassword, "secret")

			app = step(t, app, key("enter"))
			app, cmd := stepCmd(t, app, key("enter"))
			if cmd == nil || !app.login.busy {
				t.Fatalf("expected submit command while busy")
			}
			result := cmd()
			if len(svc.signIns) != 1 || svc.signIns[0] != [2]string{"maria@example.com", "secret"} {
				t.Fatalf("unexpected sign-ins: %v", svc.signIns)
			}
			app = step(t, app, result)
			if app.login.busy {
				t.Fatalf("expected busy to clear")
			}
			if app.login.err != tt.wantErr {
				t.Fatalf("expected error %q, got %q", tt.wantErr, app.login.err)
			}
			// navigation is left to the gate
			if app.current() != screenLogin {
				t.Fatalf("expected login to stay until the gate navigates, got %v", app.current())
			}
		})
	}
}

func TestBrowserSignInUnavailable(t *testing.T) {
	app := newTestApp(t, &fakeStorefront{})
	app = step(t, app, navigateMsg{route: session.RouteLogin, mode: session.ModeReplace})
	app = step(t, app, tea.KeyMsg{Type: tea.KeyCtrlO})
	if app.login.err != T("login_no_browser") {
		t.Fatalf("expected browser sign-in error, got %q", app.login.err)
	}
}

func TestUnconfirmedSignUpReturnsToLogin(t *testing.T) {
	app := newTestApp(t, &fakeStorefront{})
	app = step(t, app, navigateMsg{route: session.RouteLogin, mode: session.ModeReplace})
	app = step(t, app, pushScreenMsg{screen: screenSignup})
	app = step(t, app, signUpResultMsg{
		email:  "ana@example.com",
		result: &identity.SignUpResult{UserSub: "u1", Destination: "a***@example.com"},
	})
	if app.current() != screenLogin {
		t.Fatalf("expected login after unconfirmed sign-up, got %v", app.current())
	}
	if !strings.Contains(app.login.status, "a***@example.com") {
		t.Fatalf("expected confirmation hint, got %q", app.login.status)
	}
	if got := app.login.form.value(loginFieldUser); got != "ana@example.com" {
		t.Fatalf("expected login prefilled with e-mail, got %q", got)
	}
}

func TestHomeSearchFiltersAndOpensProduct(t *testing.T) {
	svc := &fakeStorefront{products: []catalog.Product{
		{ID: "1", Name: "Caneca Azul", Price: 24.9},
		{ID: "2", Name: "Camiseta", Price: 59},
		{ID: "3", Name: "Boné", Price: 35},
	}}
	app := newTestApp(t, svc)
	app = step(t, app, navigateMsg{route: session.RouteTabs, mode: session.ModeReplace})
	app = step(t, app, catalogMsg{products: svc.products})
	if len(app.home.visible) != 3 {
		t.Fatalf("expected 3 products, got %d", len(app.home.visible))
	}

	app = step(t, app, key("/"))
	if !app.inputFocused() {
		t.Fatalf("expected search to take keystrokes")
	}
	app = step(t, app, key("CAMI"))
	if len(app.home.visible) != 1 || app.home.visible[0].ID != "2" {
		t.Fatalf("expected only Camiseta, got %+v", app.home.visible)
	}

	app = step(t, app, key("enter"))
	app, cmd := stepCmd(t, app, key("enter"))
	if cmd == nil {
		t.Fatalf("expected open command")
	}
	app = step(t, app, cmd())
	if app.current() != screenProduct || app.product.product.ID != "2" {
		t.Fatalf("expected Camiseta detail, got %v %+v", app.current(), app.product.product)
	}
}

func TestProductActions(t *testing.T) {
	svc := &fakeStorefront{}
	app := newTestApp(t, svc)
	var copied, opened string
	app.deps.copyText = func(s string) error { copied = s; return nil }
	app.deps.openURL = func(s string) error { opened = s; return nil }

	app = step(t, app, navigateMsg{route: session.RouteTabs, mode: session.ModeReplace})
	product := catalog.Product{ID: "1", Name: "Caneca", ImageURL: "https://img.example.com/1.jpg"}
	app = step(t, app, openProductMsg{product: product})

	app = step(t, app, key("c"))
	if app.product.receipt == nil || app.product.receipt.Message() != "Você adquiriu: Caneca" {
		t.Fatalf("expected purchase receipt, got %+v", app.product.receipt)
	}
	if len(svc.purchased) != 1 {
		t.Fatalf("expected one purchase, got %v", svc.purchased)
	}

	app = step(t, app, key("y"))
	if copied != product.ImageURL {
		t.Fatalf("expected image url copied, got %q", copied)
	}
	app = step(t, app, key("o"))
	if opened != product.ImageURL {
		t.Fatalf("expected image url opened, got %q", opened)
	}
}

func TestProductCopyFailure(t *testing.T) {
	app := newTestApp(t, &fakeStorefront{})
	app.deps.copyText = func(string) error { return errors.New("no clipboard") }
	app = step(t, app, navigateMsg{route: session.RouteTabs, mode: session.ModeReplace})
	app = step(t, app, openProductMsg{product: catalog.Product{ID: "1", ImageURL: "https://img.example.com/1.jpg"}})
	app = step(t, app, key("y"))
	if !strings.Contains(app.product.status, "no clipboard") {
		t.Fatalf("expected copy failure status, got %q", app.product.status)
	}
}

func TestLocaleToggle(t *testing.T) {
	app := newTestApp(t, &fakeStorefront{})
	app = step(t, app, navigateMsg{route: session.RouteTabs, mode: session.ModeReplace})
	if app.tabs[tabHome] != "Início" {
		t.Fatalf("expected Portuguese tabs, got %v", app.tabs)
	}
	app = step(t, app, key("L"))
	if CurrentLocale() != "en" || app.tabs[tabHome] != "Home" {
		t.Fatalf("expected English after toggle, got %s %v", CurrentLocale(), app.tabs)
	}

	// typed into the search box instead of toggling
	app = step(t, app, key("/"))
	app = step(t, app, key("L"))
	if CurrentLocale() != "en" || app.home.search.Value() != "L" {
		t.Fatalf("expected L typed into search, got locale %s value %q", CurrentLocale(), app.home.search.Value())
	}
}

func TestTabCycling(t *testing.T) {
	app := newTestApp(t, &fakeStorefront{})
	app = step(t, app, navigateMsg{route: session.RouteTabs, mode: session.ModeReplace})
	if len(app.tabs) != 3 {
		t.Fatalf("expected logs tab hidden without a hook, got %v", app.tabs)
	}
	for _, want := range []int{tabProfile, tabAdd, tabHome} {
		app = step(t, app, key("tab"))
		if app.activeTab != want {
			t.Fatalf("expected tab %d, got %d", want, app.activeTab)
		}
	}
}

type fakeFeed struct {
	sub catalog.Subscription
}

func (f *fakeFeed) Subscribe(_ context.Context, sub catalog.Subscription, handler func(catalog.Event)) error {
	f.sub = sub
	handler(catalog.Event{Subscription: sub, Product: catalog.Product{ID: "9", Name: "Chapéu"}})
	return nil
}

func TestLiveProductRefresh(t *testing.T) {
	SetLocale("pt")
	feed := &fakeFeed{}
	app := NewApp(context.Background(), Options{Service: &fakeStorefront{}, Feed: feed})

	live := app.startLive()
	if live == nil || !app.liveStarted {
		t.Fatalf("expected live subscription to start")
	}
	if again := app.startLive(); again != nil {
		t.Fatalf("expected a single subscription")
	}
	batch, ok := live().(tea.BatchMsg)
	if !ok || len(batch) != 2 {
		t.Fatalf("expected subscribe and wait commands, got %#v", batch)
	}
	if ended, ok := batch[0]().(liveEndedMsg); !ok || ended.err != nil {
		t.Fatalf("expected clean end of subscription, got %#v", ended)
	}
	if feed.sub != catalog.OnCreateProduct {
		t.Fatalf("expected onCreateProduct subscription, got %q", feed.sub)
	}
	event, ok := batch[1]().(productEventMsg)
	if !ok || event.event.Product.Name != "Chapéu" {
		t.Fatalf("expected product event, got %#v", event)
	}

	app, cmd := stepCmd(t, app, event)
	if cmd == nil || app.home.status != "Novo produto: Chapéu" || !app.home.loading {
		t.Fatalf("expected refresh after live event, got status %q", app.home.status)
	}
}

func TestLogHook(t *testing.T) {
	hook := NewLogHook(2, log.InfoLevel)
	for _, level := range hook.Levels() {
		if level == log.DebugLevel {
			t.Fatalf("expected debug to be excluded")
		}
	}
	logger := log.New()
	fire := func(msg string, data log.Fields) {
		if err := hook.Fire(&log.Entry{Logger: logger, Level: log.WarnLevel, Message: msg, Data: data}); err != nil {
			t.Fatalf("Fire returned error: %v", err)
		}
	}
	fire("one", log.Fields{})
	fire("two", log.Fields{"component": "catalog"})
	fire("three", log.Fields{"component": "session"})
	first := <-hook.Chan()
	second := <-hook.Chan()
	if !strings.Contains(first.line, "two") || !strings.Contains(second.line, "three") {
		t.Fatalf("expected oldest line dropped, got %q %q", first.line, second.line)
	}
	if !strings.Contains(second.line, "[warn ]") || second.level != log.WarnLevel {
		t.Fatalf("expected warn entry, got %+v", second)
	}
	if first.session || !second.session {
		t.Fatalf("expected only the session component to be marked, got %v %v", first.session, second.session)
	}
}

func TestIsSessionEntry(t *testing.T) {
	tests := []struct {
		name   string
		fields log.Fields
		want   bool
	}{
		{"gate", log.Fields{"component": "session"}, true},
		{"auth event", log.Fields{"event": "signedIn", "seq": 3}, true},
		{"navigation", log.Fields{"route": session.RouteTabs}, true},
		{"catalog", log.Fields{"component": "catalog"}, false},
		{"plain", log.Fields{}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := isSessionEntry(tt.fields); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLogsTabFilters(t *testing.T) {
	m := newLogsTabModel(NewLogHook(8, log.DebugLevel))
	m.SetSize(80, 20)
	for _, entry := range []logEntry{
		{level: log.DebugLevel, line: "navigation queued", session: true},
		{level: log.InfoLevel, line: "session resolved", session: true},
		{level: log.InfoLevel, line: "catalog loaded"},
		{level: log.WarnLevel, line: "failed to resolve product image"},
	} {
		m, _ = m.Update(logLineMsg(entry))
	}
	if m.verbosity != log.DebugLevel || len(m.visible()) != 4 {
		t.Fatalf("expected all 4 entries at debug, got %d at %s", len(m.visible()), m.verbosity)
	}

	m, _ = m.Update(key("f"))
	if m.verbosity != log.InfoLevel || len(m.visible()) != 3 {
		t.Fatalf("expected 3 entries at info, got %d at %s", len(m.visible()), m.verbosity)
	}

	m, _ = m.Update(key("s"))
	visible := m.visible()
	if len(visible) != 1 || visible[0].line != "session resolved" {
		t.Fatalf("expected only the session entry, got %+v", visible)
	}

	m, _ = m.Update(key("f"))
	if len(m.visible()) != 0 {
		t.Fatalf("expected no session entry at warn, got %+v", m.visible())
	}

	m, _ = m.Update(key("c"))
	if len(m.entries) != 0 {
		t.Fatalf("expected entries to be cleared, got %d", len(m.entries))
	}
}

func TestLogsTabVerbosityFollowsHook(t *testing.T) {
	m := newLogsTabModel(NewLogHook(1, log.InfoLevel))
	want := []log.Level{log.WarnLevel, log.ErrorLevel, log.InfoLevel}
	for _, level := range want {
		m, _ = m.Update(key("f"))
		if m.verbosity != level {
			t.Fatalf("expected %s, got %s", level, m.verbosity)
		}
	}
}

func TestRenderLogEntryMarksSessionLines(t *testing.T) {
	if got := renderLogEntry(logEntry{level: log.InfoLevel, line: "session resolved", session: true}); !strings.Contains(got, "» session resolved") {
		t.Fatalf("expected session marker, got %q", got)
	}
	if got := renderLogEntry(logEntry{level: log.InfoLevel, line: "catalog loaded"}); strings.Contains(got, "»") {
		t.Fatalf("expected no session marker, got %q", got)
	}
}
