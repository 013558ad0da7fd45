// Package tui is the terminal storefront: the screens the session gate navigates
// between, rendered with bubbletea.
package tui

import (
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"
)

// Storefront palette.
var (
	colorBrand   = lipgloss.Color("#EA580C") // storefront orange
	colorAccent  = lipgloss.Color("#0891B2") // category teal
	colorMoney   = lipgloss.Color("#16A34A")
	colorWarning = lipgloss.Color("#CA8A04")
	colorError   = lipgloss.Color("#DC2626")
	colorInfo    = lipgloss.Color("#2563EB")
	colorSession = lipgloss.Color("#C026D3")
	colorMuted   = lipgloss.Color("#78716C")
	colorShelf   = lipgloss.Color("#292524") // bars
	colorText    = lipgloss.Color("#F5F5F4")
	colorSubtext = lipgloss.Color("#A8A29E")
	colorWhite   = lipgloss.Color("#FFFFFF")
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

func card(border lipgloss.Color, vertical int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(vertical, 2)
}

// Chrome: tab bar and status bar.
var (
	tabActiveStyle   = fg(colorWhite).Background(colorBrand).Bold(true).Padding(0, 2)
	tabInactiveStyle = fg(colorSubtext).Background(colorShelf).Padding(0, 2)
	tabBarStyle      = lipgloss.NewStyle().Background(colorShelf).PaddingLeft(1)
	statusBarStyle   = fg(colorSubtext).Background(colorShelf).Padding(0, 1)
)

// Text used across screens.
var (
	titleStyle    = fg(colorBrand).Bold(true).MarginBottom(1)
	subtitleStyle = fg(colorSubtext).Italic(true)
	labelStyle    = fg(colorInfo).Bold(true).Width(12)
	valueStyle    = fg(colorText)
	helpStyle     = fg(colorMuted)
	errorStyle    = fg(colorError).Bold(true)
	successStyle  = fg(colorMoney)
	warningStyle  = fg(colorWarning)
)

// Catalog, product and profile.
var (
	priceStyle    = fg(colorMoney).Bold(true)
	categoryStyle = fg(colorAccent)
	selectedStyle = fg(colorWhite).Background(colorBrand).Bold(true)
	sectionStyle  = card(colorMuted, 1)
	receiptStyle  = card(colorMoney, 0)
)

// Logs.
var sessionLineStyle = fg(colorSession).Bold(true)

func logLevelStyle(level log.Level) lipgloss.Style {
	switch {
	case level <= log.ErrorLevel:
		return fg(colorError)
	case level == log.WarnLevel:
		return fg(colorWarning)
	case level == log.InfoLevel:
		return fg(colorInfo)
	default:
		return fg(colorMuted)
	}
}
