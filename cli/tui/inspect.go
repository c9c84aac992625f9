package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Field is one labelled value of a Detail.
type Field struct {
	Label string
	Value string
}

// Detail is a titled list of fields. The field labelled "State" is
// colored by StateStyle.
type Detail struct {
	Title  string
	Fields []Field
}

// DetailModel is a Bubble Tea model showing one Detail.
type DetailModel struct {
	detail   *Detail
	width    int
	height   int
	quitting bool
}

// NewDetailModel creates a detail model.
func NewDetailModel(d *Detail) DetailModel {
	return DetailModel{detail: d}
}

// Init implements tea.Model.
func (m DetailModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m DetailModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		m.width, m.height = size.Width, size.Height
		return m, nil
	}
	quit, cmd := handleKey(msg)
	if quit {
		m.quitting = true
	}
	return m, cmd
}

// View implements tea.Model.
func (m DetailModel) View() string {
	if m.quitting {
		return ""
	}
	return m.render() + "\n" + helpLine()
}

func (m DetailModel) render() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.detail.Title))
	b.WriteString("\n\n")

	for _, f := range m.detail.Fields {
		if f.Value == "" {
			continue
		}
		style := ValueStyle
		if f.Label == "State" {
			style = StateStyle(f.Value)
		}
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(f.Label+":"), style.Render(f.Value))
	}
	return BoxStyle.Render(b.String())
}
