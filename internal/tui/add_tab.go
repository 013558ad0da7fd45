package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lojinha-app/storefront/internal/catalog"
	"github.com/lojinha-app/storefront/internal/storefront"
)

const (
	addFieldName = iota
	addFieldDescription
	addFieldPrice
	addFieldCategory
	addFieldImage
)

// addTabModel is the add-product form.
type addTabModel struct {
	deps   *deps
	form   form
	busy   bool
	status string
	err    string
	width  int
	height int
}

type addResultMsg struct {
	product *catalog.Product
	err     error
}

func newAddTabModel(d *deps) addTabModel {
	return addTabModel{
		deps: d,
		form: newForm(
			formField{label: "add_name"},
			formField{label: "add_description", optional: true},
			formField{label: "add_price"},
			formField{label: "add_category", optional: true},
			formField{label: "add_image"},
		),
	}
}

func (m *addTabModel) reset() {
	m.form.reset()
	m.busy = false
	m.status = ""
	m.err = ""
}

func (m addTabModel) input() storefront.AddProductInput {
	return storefront.AddProductInput{
		Name:        m.form.value(addFieldName),
		Description: m.form.value(addFieldDescription),
		Price:       m.form.value(addFieldPrice),
		Category:    m.form.value(addFieldCategory),
		ImagePath:   m.form.value(addFieldImage),
	}
}

func (m addTabModel) submit() tea.Cmd {
	d := m.deps
	input := m.input()
	return func() tea.Msg {
		product, err := d.service.AddProduct(d.ctx, input)
		return addResultMsg{product: product, err: err}
	}
}

func (m addTabModel) Update(msg tea.Msg) (addTabModel, tea.Cmd) {
	switch msg := msg.(type) {
	case localeChangedMsg:
		m.form.setPrompts()
		return m, nil
	case addResultMsg:
		m.busy = false
		if msg.err != nil {
			m.status = ""
			m.err = errorText(msg.err)
			return m, nil
		}
		m.form.reset()
		m.err = ""
		m.status = fmt.Sprintf(T("add_saved"), msg.product.Name)
		return m, nil
	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "up":
			return m, m.form.move(-1)
		case "down":
			return m, m.form.move(1)
		case "enter":
			if !m.form.last() {
				return m, m.form.move(1)
			}
			m.busy = true
			m.err = ""
			m.status = T("add_saving")
			return m, m.submit()
		}
	}
	return m, m.form.update(msg)
}

func (m *addTabModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.form.setWidth(w)
}

func (m addTabModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(T("add_title")))
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(T("add_help")))
	sb.WriteString("\n\n")
	sb.WriteString(m.form.view())
	sb.WriteString("\n")
	if m.status != "" {
		if m.busy {
			sb.WriteString(warningStyle.Render(m.status))
		} else {
			sb.WriteString(successStyle.Render("✓ " + m.status))
		}
		sb.WriteString("\n")
	}
	if m.err != "" {
		sb.WriteString(errorStyle.Render("✗ " + m.err))
		sb.WriteString("\n")
	}
	return sb.String()
}
