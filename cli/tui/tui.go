package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// View types with a TUI rendering.
const (
	ViewBuild   = "build"
	ViewMetrics = "metrics"
)

// Run starts the TUI for viewType and blocks until the user quits.
func Run(viewType string, data any) error {
	model, err := NewModel(viewType, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// NewModel returns the Bubble Tea model for viewType.
func NewModel(viewType string, data any) (tea.Model, error) {
	switch viewType {
	case ViewBuild:
		d, ok := data.(*Detail)
		if !ok {
			return nil, fmt.Errorf("view %s requires *tui.Detail, got %T", viewType, data)
		}
		return NewDetailModel(d), nil
	case ViewMetrics:
		s, ok := data.(*Stats)
		if !ok {
			return nil, fmt.Errorf("view %s requires *tui.Stats, got %T", viewType, data)
		}
		return NewStatsModel(s), nil
	default:
		return nil, fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
}

// RenderStatic renders the view once without starting a program, for
// output that is not a terminal.
func RenderStatic(viewType string, data any) (string, error) {
	model, err := NewModel(viewType, data)
	if err != nil {
		return "", err
	}
	var out string
	switch m := model.(type) {
	case DetailModel:
		out = m.render()
	case StatsModel:
		out = m.render()
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(out), nil
}

// IsTUISupported reports whether viewType has a TUI rendering.
func IsTUISupported(viewType string) bool {
	switch viewType {
	case ViewBuild, ViewMetrics:
		return true
	}
	return false
}

// SupportedTUIViews returns the view types with a TUI rendering.
func SupportedTUIViews() []string {
	return []string{ViewBuild, ViewMetrics}
}

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// handleKey returns tea.Quit for the quit binding.
func handleKey(msg tea.Msg) (quit bool, cmd tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, keys.Quit) {
		return true, tea.Quit
	}
	return false, nil
}

func helpLine() string {
	return HelpStyle.Render("Press q or Ctrl+C to quit")
}
