package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lojinha-app/storefront/internal/catalog"
)

// homeTabModel lists the catalog with a search box.
type homeTabModel struct {
	deps      *deps
	products  []catalog.Product
	visible   []catalog.Product
	search    textinput.Model
	searching bool
	cursor    int
	offset    int
	loading   bool
	err       error
	status    string
	width     int
	height    int
}

type catalogMsg struct {
	products []catalog.Product
	err      error
}

// openProductMsg asks the app to push the detail screen.
type openProductMsg struct{ product catalog.Product }

func newHomeTabModel(d *deps) homeTabModel {
	ti := textinput.New()
	ti.CharLimit = 128
	ti.Prompt = fmt.Sprintf("  %s: ", T("home_search"))
	return homeTabModel{deps: d, search: ti}
}

func (m *homeTabModel) fetch() tea.Cmd {
	m.loading = true
	d := m.deps
	return func() tea.Msg {
		products, err := d.service.Catalog(d.ctx)
		return catalogMsg{products: products, err: err}
	}
}

func (m *homeTabModel) applyFilter() {
	m.visible = catalog.Filter(m.products, m.search.Value())
	if m.cursor >= len(m.visible) {
		m.cursor = max(0, len(m.visible)-1)
	}
	m.clampOffset()
}

// rows is the number of product lines that fit below the header.
func (m homeTabModel) rows() int {
	return max(1, m.height-6)
}

func (m *homeTabModel) clampOffset() {
	rows := m.rows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m homeTabModel) Update(msg tea.Msg) (homeTabModel, tea.Cmd) {
	switch msg := msg.(type) {
	case localeChangedMsg:
		m.search.Prompt = fmt.Sprintf("  %s: ", T("home_search"))
		return m, nil
	case catalogMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.products = msg.products
		m.applyFilter()
		return m, nil
	case productEventMsg:
		m.status = fmt.Sprintf(T("home_live"), msg.event.Product.Name)
		return m, m.fetch()
	case liveEndedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf(T("home_live_fail"), msg.err.Error())
		}
		return m, nil
	case tea.KeyMsg:
		if m.searching {
			switch msg.String() {
			case "esc", "enter":
				m.searching = false
				m.search.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.search, cmd = m.search.Update(msg)
			m.cursor = 0
			m.applyFilter()
			return m, cmd
		}
		switch msg.String() {
		case "/":
			m.searching = true
			return m, m.search.Focus()
		case "esc":
			if m.search.Value() != "" {
				m.search.SetValue("")
				m.applyFilter()
			}
			return m, nil
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				m.clampOffset()
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.visible)-1 {
				m.cursor++
				m.clampOffset()
			}
			return m, nil
		case "r":
			m.status = ""
			return m, m.fetch()
		case "enter":
			if m.cursor < len(m.visible) {
				product := m.visible[m.cursor]
				return m, func() tea.Msg { return openProductMsg{product: product} }
			}
			return m, nil
		}
	}
	return m, nil
}

func (m *homeTabModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.search.Width = max(10, w-20)
	m.clampOffset()
}

func (m homeTabModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(T("home_title")))
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(T("home_help")))
	sb.WriteString("\n")
	sb.WriteString(m.search.View())
	sb.WriteString("\n")
	if m.status != "" {
		sb.WriteString(successStyle.Render(m.status))
	}
	sb.WriteString("\n")

	if m.err != nil {
		sb.WriteString(errorStyle.Render("⚠ " + T("error") + ": " + m.err.Error()))
		sb.WriteString("\n")
	}
	if m.loading && len(m.products) == 0 {
		sb.WriteString(subtitleStyle.Render(T("loading")))
		return sb.String()
	}
	if len(m.visible) == 0 {
		sb.WriteString(subtitleStyle.Render(T("home_empty")))
		return sb.String()
	}

	nameWidth := max(12, m.width-40)
	end := min(len(m.visible), m.offset+m.rows())
	for i := m.offset; i < end; i++ {
		p := m.visible[i]
		name := fitStringWidth(p.Name, nameWidth)
		line := fmt.Sprintf(" %-*s %12s  %s", nameWidth, name, catalog.FormatPrice(p.Price), p.Category)
		if i == m.cursor {
			sb.WriteString(selectedStyle.Render(line))
		} else {
			sb.WriteString(valueStyle.Render(line))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(helpStyle.Render(fmt.Sprintf(T("home_count"), len(m.visible))))
	return sb.String()
}
