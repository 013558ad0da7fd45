package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lojinha-app/storefront/internal/storefront"
)

// profileTabModel shows the signed-in user and offers sign-out.
type profileTabModel struct {
	deps    *deps
	profile *storefront.Profile
	loading bool
	busy    bool
	err     error
	width   int
	height  int
}

type profileMsg struct {
	profile *storefront.Profile
	err     error
}

type signOutMsg struct{ err error }

func newProfileTabModel(d *deps) profileTabModel {
	return profileTabModel{deps: d}
}

func (m *profileTabModel) fetch() tea.Cmd {
	m.loading = true
	d := m.deps
	return func() tea.Msg {
		profile, err := d.service.Profile(d.ctx)
		return profileMsg{profile: profile, err: err}
	}
}

func (m profileTabModel) signOut() tea.Cmd {
	d := m.deps
	return func() tea.Msg {
		return signOutMsg{err: d.service.SignOut(d.ctx)}
	}
}

func (m profileTabModel) Update(msg tea.Msg) (profileTabModel, tea.Cmd) {
	switch msg := msg.(type) {
	case profileMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.profile = msg.profile
		}
		return m, nil
	case signOutMsg:
		m.busy = false
		m.err = msg.err
		if msg.err == nil {
			m.profile = nil
		}
		return m, nil
	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "r":
			return m, m.fetch()
		case "x":
			m.busy = true
			return m, m.signOut()
		}
	}
	return m, nil
}

func (m *profileTabModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

func (m profileTabModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(T("profile_title")))
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(T("profile_help")))
	sb.WriteString("\n\n")

	if m.busy {
		sb.WriteString(warningStyle.Render(T("profile_signout")))
		sb.WriteString("\n")
	}
	if m.err != nil {
		sb.WriteString(errorStyle.Render("⚠ " + T("error") + ": " + errorText(m.err)))
		sb.WriteString("\n")
	}
	if m.profile == nil {
		if m.loading {
			sb.WriteString(subtitleStyle.Render(T("loading")))
		}
		return sb.String()
	}

	rows := []struct {
		label string
		value string
	}{
		{"profile_name", m.profile.Name},
		{"profile_email", m.profile.Email},
		{"profile_user", m.profile.Username},
		{"profile_address", m.profile.Address},
		{"profile_phone", m.profile.Phone},
		{"profile_id", m.profile.ID},
	}
	var body strings.Builder
	for _, row := range rows {
		if row.value == "" {
			continue
		}
		body.WriteString(labelStyle.Render(T(row.label)))
		body.WriteString(valueStyle.Render(row.value))
		body.WriteString("\n")
	}
	sb.WriteString(sectionStyle.Render(strings.TrimRight(body.String(), "\n")))
	return sb.String()
}
