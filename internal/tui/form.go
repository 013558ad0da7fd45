package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// formField describes one input of a form. label is an i18n key.
type formField struct {
	label    string
	secret   bool
	optional bool
}

// form is a vertical list of text inputs with a single focused field.
type form struct {
	fields []formField
	inputs []textinput.Model
	focus  int
}

func newForm(fields ...formField) form {
	f := form{fields: fields, inputs: make([]textinput.Model, len(fields))}
	for i, field := range fields {
		ti := textinput.New()
		ti.CharLimit = 256
		if field.secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '*'
		}
		f.inputs[i] = ti
	}
	f.setPrompts()
	if len(f.inputs) > 0 {
		f.inputs[0].Focus()
	}
	return f
}

// setPrompts refreshes the labels after a locale change.
func (f *form) setPrompts() {
	width := 0
	for _, field := range f.fields {
		if w := len([]rune(T(field.label))); w > width {
			width = w
		}
	}
	for i, field := range f.fields {
		label := T(field.label)
		if !field.optional {
			label += "*"
		} else {
			label += " "
		}
		f.inputs[i].Prompt = fmt.Sprintf("  %-*s ", width+1, label+":")
	}
}

func (f *form) setWidth(w int) {
	for i := range f.inputs {
		f.inputs[i].Width = max(10, w-30)
	}
}

func (f *form) move(delta int) tea.Cmd {
	if len(f.inputs) == 0 {
		return nil
	}
	f.inputs[f.focus].Blur()
	f.focus = (f.focus + delta + len(f.inputs)) % len(f.inputs)
	return f.inputs[f.focus].Focus()
}

// last reports whether the focused field is the final one.
func (f *form) last() bool {
	return f.focus == len(f.inputs)-1
}

func (f *form) value(i int) string {
	return f.inputs[i].Value()
}

func (f *form) setValue(i int, v string) {
	f.inputs[i].SetValue(v)
}

func (f *form) reset() {
	for i := range f.inputs {
		f.inputs[i].SetValue("")
		f.inputs[i].Blur()
	}
	f.focus = 0
	if len(f.inputs) > 0 {
		f.inputs[0].Focus()
	}
}

func (f *form) update(msg tea.Msg) tea.Cmd {
	if len(f.inputs) == 0 {
		return nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f form) view() string {
	var sb strings.Builder
	for _, in := range f.inputs {
		sb.WriteString(in.View())
		sb.WriteString("\n")
	}
	return sb.String()
}
