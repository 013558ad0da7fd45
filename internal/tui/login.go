package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lojinha-app/storefront/internal/identity"
	"github.com/lojinha-app/storefront/internal/storefront"
)

const (
	loginFieldUser = iota
	loginFieldPassword
)

// loginModel is the sign-in root. A successful sign-in does not navigate by itself: the
// provider publishes the event and the gate replaces the stack with the tabs.
type loginModel struct {
	deps   *deps
	form   form
	busy   bool
	status string
	err    string
	width  int
	height int
}

type signInResultMsg struct{ err error }

func newLoginModel(d *deps) loginModel {
	return loginModel{
		deps: d,
		form: newForm(
			formField{label: "login_user"},
			formField{label: "login_password", secret: true},
		),
	}
}

// Focus focuses the first empty field.
func (m *loginModel) Focus() tea.Cmd {
	target := loginFieldUser
	if strings.TrimSpace(m.form.value(loginFieldUser)) != "" {
		target = loginFieldPassword
	}
	return m.form.move(target - m.form.focus)
}

func (m *loginModel) clearPassword() {
	m.form.setValue(loginFieldPassword, "")
	m.busy = false
	m.err = ""
}

// awaitConfirmation shows the sign-up confirmation hint and prefills the login.
func (m *loginModel) awaitConfirmation(email, destination string) {
	if destination == "" {
		destination = T("signup_destination")
	}
	m.form.setValue(loginFieldUser, email)
	m.status = fmt.Sprintf(T("signup_confirm"), destination)
	m.err = ""
}

func (m loginModel) submit() tea.Cmd {
	d := m.deps
	login, password := strings.TrimSpace(m.form.value(loginFieldUser)), m.form.value(loginFieldPassword)
	return func() tea.Msg {
		_, err := d.service.SignIn(d.ctx, login, password)
		return signInResultMsg{err: err}
	}
}

func (m loginModel) signInWithBrowser() tea.Cmd {
	d := m.deps
	return func() tea.Msg {
		return signInResultMsg{err: d.browserSignIn(d.ctx)}
	}
}

func (m loginModel) Update(msg tea.Msg) (loginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case localeChangedMsg:
		m.form.setPrompts()
		return m, nil
	case signInResultMsg:
		m.busy = false
		if msg.err != nil {
			m.err = errorText(msg.err)
			return m, nil
		}
		m.err = ""
		m.status = ""
		m.form.setValue(loginFieldPassword, "")
		return m, nil
	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "up", "shift+tab":
			return m, m.form.move(-1)
		case "down", "tab":
			return m, m.form.move(1)
		case "ctrl+n":
			return m, func() tea.Msg { return pushScreenMsg{screen: screenSignup} }
		case "ctrl+o":
			if m.deps.browserSignIn == nil {
				m.err = T("login_no_browser")
				return m, nil
			}
			m.busy = true
			m.err = ""
			m.status = T("login_browser")
			return m, m.signInWithBrowser()
		case "enter":
			if !m.form.last() {
				return m, m.form.move(1)
			}
			m.busy = true
			m.err = ""
			m.status = T("login_submitting")
			return m, m.submit()
		}
	}
	return m, m.form.update(msg)
}

func (m *loginModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.form.setWidth(w)
}

func (m loginModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(T("login_title")))
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(T("login_help")))
	sb.WriteString("\n\n")
	sb.WriteString(m.form.view())
	sb.WriteString("\n")
	if m.status != "" {
		sb.WriteString(warningStyle.Render(m.status))
		sb.WriteString("\n")
	}
	if m.err != "" {
		sb.WriteString(errorStyle.Render("✗ " + m.err))
		sb.WriteString("\n")
	}
	return sb.String()
}

const (
	signupFieldName = iota
	signupFieldEmail
	signupFieldPassword
	signupFieldAddress
	signupFieldPhone
)

// signupModel is the registration form, pushed on top of the login.
type signupModel struct {
	deps   *deps
	form   form
	busy   bool
	status string
	err    string
	width  int
	height int
}

type signUpResultMsg struct {
	email  string
	result *identity.SignUpResult
	err    error
}

func newSignupModel(d *deps) signupModel {
	return signupModel{
		deps: d,
		form: newForm(
			formField{label: "signup_name"},
			formField{label: "signup_email"},
			formField{label: "signup_password", secret: true},
			formField{label: "signup_address", optional: true},
			formField{label: "signup_phone", optional: true},
		),
	}
}

func (m *signupModel) Focus() tea.Cmd {
	return m.form.move(0)
}

func (m *signupModel) reset() {
	m.form.reset()
	m.busy = false
	m.status = ""
	m.err = ""
}

func (m signupModel) input() storefront.SignUpInput {
	return storefront.SignUpInput{
		Name:     strings.TrimSpace(m.form.value(signupFieldName)),
		Email:    strings.TrimSpace(m.form.value(signupFieldEmail)),
		Password: m.form.value(signupFieldPassword),
		Address:  strings.TrimSpace(m.form.value(signupFieldAddress)),
		Phone:    strings.TrimSpace(m.form.value(signupFieldPhone)),
	}
}

func (m signupModel) submit() tea.Cmd {
	d := m.deps
	input := m.input()
	return func() tea.Msg {
		result, err := d.service.SignUp(d.ctx, input)
		return signUpResultMsg{email: input.Email, result: result, err: err}
	}
}

func (m signupModel) Update(msg tea.Msg) (signupModel, tea.Cmd) {
	switch msg := msg.(type) {
	case localeChangedMsg:
		m.form.setPrompts()
		return m, nil
	case signUpResultMsg:
		m.busy = false
		if msg.err != nil {
			m.status = ""
			m.err = errorText(msg.err)
			return m, nil
		}
		m.err = ""
		m.status = T("signup_signed_in")
		return m, nil
	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "up", "shift+tab":
			return m, m.form.move(-1)
		case "down", "tab":
			return m, m.form.move(1)
		case "enter":
			if !m.form.last() {
				return m, m.form.move(1)
			}
			m.busy = true
			m.err = ""
			m.status = T("signup_submitting")
			return m, m.submit()
		}
	}
	return m, m.form.update(msg)
}

func (m *signupModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.form.setWidth(w)
}

func (m signupModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(T("signup_title")))
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(T("signup_help")))
	sb.WriteString("\n\n")
	sb.WriteString(m.form.view())
	sb.WriteString("\n")
	if m.status != "" {
		sb.WriteString(warningStyle.Render(m.status))
		sb.WriteString("\n")
	}
	if m.err != "" {
		sb.WriteString(errorStyle.Render("✗ " + m.err))
		sb.WriteString("\n")
	}
	return sb.String()
}

// errorText picks the message shown for err: form and provider messages are already
// meant for the user.
func errorText(err error) string {
	var vErr *storefront.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	var idErr *identity.Error
	if errors.As(err, &idErr) && idErr.Message != "" {
		return idErr.Message
	}
	return err.Error()
}
