package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
)

const maxLogEntries = 2000

// logVerbosities are the levels the filter cycles through, most verbose first.
var logVerbosities = []log.Level{log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel}

// logsTabModel shows the entries captured by the LogHook. Session lines (gate state,
// auth events, navigation) are highlighted and can be shown alone.
type logsTabModel struct {
	hook     *LogHook
	viewport viewport.Model
	entries  []logEntry
	width    int
	ready    bool

	follow      bool
	verbosity   log.Level
	sessionOnly bool
}

type logLineMsg logEntry

func newLogsTabModel(hook *LogHook) logsTabModel {
	m := logsTabModel{hook: hook, follow: true, verbosity: log.InfoLevel}
	if hook != nil {
		m.verbosity = clampVerbosity(hook.maxLevel)
	}
	return m
}

// clampVerbosity maps a hook level onto the filter steps.
func clampVerbosity(level log.Level) log.Level {
	if level > log.DebugLevel {
		return log.DebugLevel
	}
	if level < log.ErrorLevel {
		return log.ErrorLevel
	}
	return level
}

func (m logsTabModel) Init() tea.Cmd {
	if m.hook == nil {
		return nil
	}
	return m.waitForLog
}

func (m logsTabModel) waitForLog() tea.Msg {
	entry, ok := <-m.hook.Chan()
	if !ok {
		return nil
	}
	return logLineMsg(entry)
}

// nextVerbosity steps to the next less verbose level, wrapping to the most verbose one
// the hook captures.
func (m logsTabModel) nextVerbosity() log.Level {
	most := log.DebugLevel
	if m.hook != nil {
		most = clampVerbosity(m.hook.maxLevel)
	}
	for i, level := range logVerbosities {
		if level == m.verbosity && i+1 < len(logVerbosities) {
			return logVerbosities[i+1]
		}
	}
	return most
}

func (m logsTabModel) Update(msg tea.Msg) (logsTabModel, tea.Cmd) {
	switch msg := msg.(type) {
	case localeChangedMsg:
		m.refresh()
		return m, nil

	case logLineMsg:
		m.entries = append(m.entries, logEntry(msg))
		if len(m.entries) > maxLogEntries {
			m.entries = m.entries[len(m.entries)-maxLogEntries:]
		}
		m.refresh()
		return m, m.waitForLog

	case tea.KeyMsg:
		switch msg.String() {
		case "a":
			m.follow = !m.follow
			m.refresh()
			return m, nil
		case "c":
			m.entries = nil
			m.refresh()
			return m, nil
		case "f":
			m.verbosity = m.nextVerbosity()
			m.refresh()
			return m, nil
		case "s":
			m.sessionOnly = !m.sessionOnly
			m.refresh()
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		// Scrolling away from the bottom pauses following; reaching it resumes.
		m.follow = m.viewport.AtBottom()
		return m, cmd
	}
	return m, nil
}

func (m *logsTabModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderLogs())
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m *logsTabModel) SetSize(w, h int) {
	m.width = w
	if !m.ready {
		m.viewport = viewport.New(w, h)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = h
	}
	m.refresh()
}

func (m logsTabModel) View() string {
	if !m.ready {
		return T("loading")
	}
	return m.viewport.View()
}

// visible returns the entries passing the level and session filters.
func (m logsTabModel) visible() []logEntry {
	out := make([]logEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		if entry.level > m.verbosity {
			continue
		}
		if m.sessionOnly && !entry.session {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func (m logsTabModel) renderLogs() string {
	shown := m.visible()

	follow := successStyle.Render(T("logs_follow"))
	if !m.follow {
		follow = warningStyle.Render(T("logs_paused"))
	}
	topic := T("logs_all_topics")
	if m.sessionOnly {
		topic = sessionLineStyle.Render(T("logs_session_only"))
	}
	header := fmt.Sprintf(" %s  %s  %s: %s+  %s  %s",
		T("logs_title"), follow, T("logs_level"), strings.ToUpper(m.verbosity.String()), topic,
		fmt.Sprintf(T("logs_count"), len(shown), len(m.entries)))

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(header))
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(T("logs_help")))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")

	switch {
	case len(m.entries) == 0:
		sb.WriteString(subtitleStyle.Render(T("logs_waiting")))
	case len(shown) == 0:
		sb.WriteString(subtitleStyle.Render(T("logs_no_match")))
	}
	for _, entry := range shown {
		sb.WriteString(renderLogEntry(entry))
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderLogEntry(entry logEntry) string {
	if entry.session && entry.level > log.WarnLevel {
		return sessionLineStyle.Render("» " + entry.line)
	}
	return logLevelStyle(entry.level).Render("  " + entry.line)
}
