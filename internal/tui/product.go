package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lojinha-app/storefront/internal/catalog"
	"github.com/lojinha-app/storefront/internal/storefront"
)

// productModel is the product detail screen, pushed from the catalog.
type productModel struct {
	deps     *deps
	product  catalog.Product
	viewport viewport.Model
	receipt  *storefront.Receipt
	loading  bool
	err      error
	status   string
	width    int
	height   int
	ready    bool
}

type productDetailMsg struct {
	product *catalog.Product
	err     error
}

func newProductModel(d *deps) productModel {
	return productModel{deps: d}
}

// show displays the catalog entry right away; fetch refreshes it.
func (m *productModel) show(product catalog.Product) {
	m.product = product
	m.receipt = nil
	m.err = nil
	m.status = ""
	m.refresh()
}

func (m *productModel) fetch(id string) tea.Cmd {
	m.loading = true
	m.refresh()
	d := m.deps
	return func() tea.Msg {
		product, err := d.service.Product(d.ctx, id)
		return productDetailMsg{product: product, err: err}
	}
}

func (m *productModel) refresh() {
	if m.ready {
		m.viewport.SetContent(m.renderContent())
	}
}

func (m productModel) Update(msg tea.Msg) (productModel, tea.Cmd) {
	switch msg := msg.(type) {
	case localeChangedMsg:
		m.refresh()
		return m, nil
	case productDetailMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else if msg.product != nil && msg.product.ID == m.product.ID {
			m.err = nil
			m.product = *msg.product
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "c":
			receipt := m.deps.service.Purchase(m.product)
			m.receipt = &receipt
			m.status = ""
			m.refresh()
			return m, nil
		case "y":
			if m.product.ImageURL == "" {
				m.status = warningStyle.Render(T("product_no_image"))
			} else if err := m.deps.copyText(m.product.ImageURL); err != nil {
				m.status = errorStyle.Render(T("copy_failed") + ": " + err.Error())
			} else {
				m.status = successStyle.Render(T("copied"))
			}
			m.refresh()
			return m, nil
		case "o":
			if m.product.ImageURL == "" {
				m.status = warningStyle.Render(T("product_no_image"))
			} else if err := m.deps.openURL(m.product.ImageURL); err != nil {
				m.status = errorStyle.Render(T("error") + ": " + err.Error())
			} else {
				m.status = successStyle.Render(T("product_opened"))
			}
			m.refresh()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *productModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if !m.ready {
		m.viewport = viewport.New(w, h)
		m.ready = true
	} else {
		m.viewport.Width = w
		m.viewport.Height = h
	}
	m.viewport.SetContent(m.renderContent())
}

func (m productModel) View() string {
	if !m.ready {
		return T("loading")
	}
	return m.viewport.View()
}

func (m productModel) renderContent() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(T("product_title")))
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(T("product_help")))
	sb.WriteString("\n\n")

	p := m.product
	sb.WriteString(titleStyle.Render(p.Name))
	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render(T("product_price")))
	sb.WriteString(priceStyle.Render(catalog.FormatPrice(p.Price)))
	sb.WriteString("\n")
	if p.Category != "" {
		sb.WriteString(labelStyle.Render(T("product_category")))
		sb.WriteString(categoryStyle.Render(p.Category))
		sb.WriteString("\n")
	}
	if p.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(valueStyle.Width(max(20, m.width-4)).Render(p.Description))
		sb.WriteString("\n")
	}
	if p.ImageURL != "" {
		sb.WriteString("\n")
		sb.WriteString(subtitleStyle.Render(fitStringWidth(p.ImageURL, max(20, m.width-2))))
		sb.WriteString("\n")
	}

	if m.loading {
		sb.WriteString("\n")
		sb.WriteString(subtitleStyle.Render(T("loading")))
		sb.WriteString("\n")
	}
	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render("⚠ " + T("error") + ": " + m.err.Error()))
		sb.WriteString("\n")
	}
	if m.receipt != nil {
		sb.WriteString("\n")
		sb.WriteString(receiptStyle.Render(successStyle.Render(m.receipt.Title()) + "\n" + m.receipt.Message()))
		sb.WriteString("\n")
	}
	if m.status != "" {
		sb.WriteString("\n")
		sb.WriteString(m.status)
		sb.WriteString("\n")
	}
	return sb.String()
}
