package tui

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lojinha-app/storefront/internal/browser"
	"github.com/lojinha-app/storefront/internal/catalog"
	"github.com/lojinha-app/storefront/internal/identity"
	"github.com/lojinha-app/storefront/internal/storefront"
	"github.com/lojinha-app/storefront/sdk/session"
	log "github.com/sirupsen/logrus"
)

// Storefront is the set of screen actions the TUI drives.
type Storefront interface {
	SignIn(ctx context.Context, login, password string) (*session.Identity, error)
	SignUp(ctx context.Context, input storefront.SignUpInput) (*identity.SignUpResult, error)
	SignOut(ctx context.Context) error
	Profile(ctx context.Context) (*storefront.Profile, error)
	Catalog(ctx context.Context) ([]catalog.Product, error)
	Product(ctx context.Context, id string) (*catalog.Product, error)
	AddProduct(ctx context.Context, input storefront.AddProductInput) (*catalog.Product, error)
	Purchase(product catalog.Product) storefront.Receipt
}

// ProductFeed streams product changes.
type ProductFeed interface {
	Subscribe(ctx context.Context, sub catalog.Subscription, handler func(catalog.Event)) error
}

// Options configures the TUI.
type Options struct {
	Service Storefront
	Router  *Router
	// BrowserSignIn runs the hosted-UI sign-in. Optional.
	BrowserSignIn func(ctx context.Context) error
	// Feed enables live catalog refresh. Optional.
	Feed ProductFeed
	Hook *LogHook
	// Output is where bubbletea renders. Defaults to os.Stdout.
	Output io.Writer
}

// Screen identifiers
type screen int

const (
	screenSplash screen = iota
	screenLogin
	screenSignup
	screenTabs
	screenProduct
)

// Tab identifiers
const (
	tabHome = iota
	tabProfile
	tabAdd
	tabLogs
)

// deps is shared by the screen models.
type deps struct {
	ctx           context.Context
	service       Storefront
	browserSignIn func(ctx context.Context) error
	copyText      func(string) error
	openURL       func(string) error
}

// App is the root bubbletea model. The session gate decides between the login and tabs
// roots through the Router; signup and product detail are pushed on top of them.
type App struct {
	deps   *deps
	router *Router
	feed   ProductFeed
	events chan catalog.Event

	stack     []screen
	activeTab int
	tabs      []string

	login   loginModel
	signup  signupModel
	home    homeTabModel
	profile profileTabModel
	add     addTabModel
	logs    logsTabModel
	product productModel

	liveStarted bool
	logsEnabled bool

	width  int
	height int
	ready  bool
}

// pushScreenMsg asks the app to push a screen on the stack.
type pushScreenMsg struct{ screen screen }

// localeChangedMsg is broadcast to all screens when the user toggles locale.
type localeChangedMsg struct{}

// NewApp creates the root TUI application model.
func NewApp(ctx context.Context, opts Options) App {
	if ctx == nil {
		ctx = context.Background()
	}
	router := opts.Router
	if router == nil {
		router = NewRouter()
	}
	d := &deps{
		ctx:           ctx,
		service:       opts.Service,
		browserSignIn: opts.BrowserSignIn,
		copyText:      clipboard.WriteAll,
		openURL:       browser.OpenURL,
	}
	app := App{
		deps:        d,
		router:      router,
		feed:        opts.Feed,
		events:      make(chan catalog.Event, 16),
		stack:       []screen{screenSplash},
		logsEnabled: opts.Hook != nil,
		login:       newLoginModel(d),
		signup:      newSignupModel(d),
		home:        newHomeTabModel(d),
		profile:     newProfileTabModel(d),
		add:         newAddTabModel(d),
		logs:        newLogsTabModel(opts.Hook),
		product:     newProductModel(d),
	}
	app.refreshTabs()
	return app
}

func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.router.wait(a.deps.ctx)}
	if a.logsEnabled {
		cmds = append(cmds, a.logs.Init())
	}
	return tea.Batch(cmds...)
}

func (a App) current() screen {
	return a.stack[len(a.stack)-1]
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		contentH := a.height - 4 // tab bar + status bar
		if contentH < 1 {
			contentH = 1
		}
		contentW := a.width
		a.login.SetSize(contentW, contentH)
		a.signup.SetSize(contentW, contentH)
		a.home.SetSize(contentW, contentH)
		a.profile.SetSize(contentW, contentH)
		a.add.SetSize(contentW, contentH)
		a.logs.SetSize(contentW, contentH)
		a.product.SetSize(contentW, contentH)
		return a, nil

	case navigateMsg:
		enter := a.navigate(msg)
		return a, tea.Batch(a.router.wait(a.deps.ctx), enter)

	case pushScreenMsg:
		return a, a.push(msg.screen)

	case openProductMsg:
		a.product.show(msg.product)
		a.stack = append(a.stack, screenProduct)
		return a, a.product.fetch(msg.product.ID)

	case signUpResultMsg:
		var cmd tea.Cmd
		a.signup, cmd = a.signup.Update(msg)
		if msg.err == nil && msg.result != nil && !msg.result.Confirmed && a.current() == screenSignup {
			a.pop()
			a.login.awaitConfirmation(msg.email, msg.result.Destination)
		}
		return a, cmd

	case addResultMsg:
		var cmd tea.Cmd
		a.add, cmd = a.add.Update(msg)
		if msg.err == nil {
			return a, tea.Batch(cmd, a.home.fetch())
		}
		return a, cmd

	case productEventMsg:
		var cmd tea.Cmd
		a.home, cmd = a.home.Update(msg)
		return a, tea.Batch(cmd, a.waitForProductEvent())

	case liveEndedMsg:
		a.liveStarted = false
		var cmd tea.Cmd
		a.home, cmd = a.home.Update(msg)
		return a, cmd

	case catalogMsg:
		var cmd tea.Cmd
		a.home, cmd = a.home.Update(msg)
		return a, cmd

	case profileMsg, signOutMsg:
		var cmd tea.Cmd
		a.profile, cmd = a.profile.Update(msg)
		return a, cmd

	case signInResultMsg:
		var cmd tea.Cmd
		a.login, cmd = a.login.Update(msg)
		return a, cmd

	case productDetailMsg:
		var cmd tea.Cmd
		a.product, cmd = a.product.Update(msg)
		return a, cmd

	case logLineMsg:
		var cmd tea.Cmd
		a.logs, cmd = a.logs.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "q":
			if !a.inputFocused() {
				return a, tea.Quit
			}
		case "L":
			if !a.inputFocused() {
				ToggleLocale()
				a.refreshTabs()
				return a.broadcast(localeChangedMsg{})
			}
		case "esc":
			switch a.current() {
			case screenSignup, screenProduct:
				a.pop()
				return a, nil
			}
		case "tab", "shift+tab":
			if a.current() == screenTabs && len(a.tabs) > 0 {
				if msg.String() == "tab" {
					a.activeTab = (a.activeTab + 1) % len(a.tabs)
				} else {
					a.activeTab = (a.activeTab - 1 + len(a.tabs)) % len(a.tabs)
				}
				return a, nil
			}
		}
	}

	// Route msg to the visible screen
	var cmd tea.Cmd
	switch a.current() {
	case screenLogin:
		a.login, cmd = a.login.Update(msg)
	case screenSignup:
		a.signup, cmd = a.signup.Update(msg)
	case screenProduct:
		a.product, cmd = a.product.Update(msg)
	case screenTabs:
		switch a.activeTab {
		case tabHome:
			a.home, cmd = a.home.Update(msg)
		case tabProfile:
			a.profile, cmd = a.profile.Update(msg)
		case tabAdd:
			a.add, cmd = a.add.Update(msg)
		case tabLogs:
			a.logs, cmd = a.logs.Update(msg)
		}
	}
	return a, cmd
}

// navigate applies a gate navigation and returns the command that loads the new root.
func (a *App) navigate(msg navigateMsg) tea.Cmd {
	var target screen
	switch msg.route {
	case session.RouteTabs:
		target = screenTabs
	case session.RouteLogin:
		target = screenLogin
	default:
		log.WithField("route", msg.route).Warn("ignoring navigation to unknown route")
		return nil
	}
	if msg.mode == session.ModeReplace {
		a.stack = []screen{target}
	} else {
		a.stack = append(a.stack, target)
	}
	log.WithFields(log.Fields{"route": msg.route, "status": msg.mode.String()}).Debug("navigated")
	return a.enter(target)
}

func (a *App) push(s screen) tea.Cmd {
	a.stack = append(a.stack, s)
	return a.enter(s)
}

// pop removes the top screen. The root cannot be popped.
func (a *App) pop() {
	if len(a.stack) > 1 {
		a.stack = a.stack[:len(a.stack)-1]
	}
}

func (a *App) enter(s screen) tea.Cmd {
	switch s {
	case screenLogin:
		a.login.clearPassword()
		return a.login.Focus()
	case screenSignup:
		a.signup.reset()
		return a.signup.Focus()
	case screenTabs:
		a.activeTab = tabHome
		a.add.reset()
		cmds := []tea.Cmd{a.home.fetch(), a.profile.fetch()}
		if live := a.startLive(); live != nil {
			cmds = append(cmds, live)
		}
		return tea.Batch(cmds...)
	}
	return nil
}

// liveEndedMsg reports that the product subscription stopped.
type liveEndedMsg struct{ err error }

// productEventMsg carries a product created elsewhere.
type productEventMsg struct{ event catalog.Event }

func (a *App) startLive() tea.Cmd {
	if a.feed == nil || a.liveStarted {
		return nil
	}
	a.liveStarted = true
	feed, ctx, events := a.feed, a.deps.ctx, a.events
	subscribe := func() tea.Msg {
		err := feed.Subscribe(ctx, catalog.OnCreateProduct, func(event catalog.Event) {
			select {
			case events <- event:
			case <-ctx.Done():
			}
		})
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		return liveEndedMsg{err: err}
	}
	return tea.Batch(subscribe, a.waitForProductEvent())
}

func (a App) waitForProductEvent() tea.Cmd {
	ctx, events := a.deps.ctx, a.events
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case event := <-events:
			return productEventMsg{event: event}
		}
	}
}

// inputFocused reports whether keystrokes go to a text input on the visible screen.
func (a App) inputFocused() bool {
	switch a.current() {
	case screenLogin, screenSignup:
		return true
	case screenTabs:
		switch a.activeTab {
		case tabHome:
			return a.home.searching
		case tabAdd:
			return true
		}
	}
	return false
}

func (a *App) refreshTabs() {
	names := TabNames()
	if a.logsEnabled {
		a.tabs = names
	} else {
		a.tabs = names[:tabLogs]
	}
	if a.activeTab >= len(a.tabs) {
		a.activeTab = len(a.tabs) - 1
	}
}

func (a App) View() string {
	if !a.ready {
		return T("initializing")
	}

	var sb strings.Builder
	switch a.current() {
	case screenSplash:
		sb.WriteString(a.renderSplash())
	case screenLogin:
		sb.WriteString(a.login.View())
	case screenSignup:
		sb.WriteString(a.signup.View())
	case screenProduct:
		sb.WriteString(a.product.View())
	case screenTabs:
		sb.WriteString(a.renderTabBar())
		sb.WriteString("\n")
		switch a.activeTab {
		case tabHome:
			sb.WriteString(a.home.View())
		case tabProfile:
			sb.WriteString(a.profile.View())
		case tabAdd:
			sb.WriteString(a.add.View())
		case tabLogs:
			sb.WriteString(a.logs.View())
		}
	}

	sb.WriteString("\n")
	sb.WriteString(a.renderStatusBar())
	return sb.String()
}

func (a App) renderSplash() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(T("splash_title")))
	sb.WriteString("\n")
	sb.WriteString(subtitleStyle.Render(T("splash_checking")))
	return sb.String()
}

func (a App) renderTabBar() string {
	var tabs []string
	for i, name := range a.tabs {
		if i == a.activeTab {
			tabs = append(tabs, tabActiveStyle.Render(name))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(name))
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	return tabBarStyle.Width(a.width).Render(tabBar)
}

func (a App) renderStatusBar() string {
	left := strings.TrimRight(T("status_left"), " ")
	right := strings.TrimRight(T("status_right"), " ")

	width := a.width
	if width < 1 {
		width = 1
	}

	// statusBarStyle has left/right padding(1), so content area is width-2.
	contentWidth := width - 2
	if contentWidth < 0 {
		contentWidth = 0
	}

	if lipgloss.Width(left) > contentWidth {
		left = fitStringWidth(left, contentWidth)
		right = ""
	}

	remaining := contentWidth - lipgloss.Width(left)
	if remaining < 0 {
		remaining = 0
	}
	if lipgloss.Width(right) > remaining {
		right = fitStringWidth(right, remaining)
	}

	gap := contentWidth - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return statusBarStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func fitStringWidth(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if lipgloss.Width(text) <= maxWidth {
		return text
	}

	out := ""
	for _, r := range text {
		next := out + string(r)
		if lipgloss.Width(next) > maxWidth {
			break
		}
		out = next
	}
	return out
}

func (a App) broadcast(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	a.login, cmd = a.login.Update(msg)
	cmds = append(cmds, cmd)
	a.signup, cmd = a.signup.Update(msg)
	cmds = append(cmds, cmd)
	a.home, cmd = a.home.Update(msg)
	cmds = append(cmds, cmd)
	a.profile, cmd = a.profile.Update(msg)
	cmds = append(cmds, cmd)
	a.add, cmd = a.add.Update(msg)
	cmds = append(cmds, cmd)
	a.logs, cmd = a.logs.Update(msg)
	cmds = append(cmds, cmd)
	a.product, cmd = a.product.Update(msg)
	cmds = append(cmds, cmd)

	return a, tea.Batch(cmds...)
}

// Run starts the TUI and blocks until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}
	if opts.Router == nil {
		opts.Router = NewRouter()
	}
	defer opts.Router.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app := NewApp(ctx, opts)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithOutput(output), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
