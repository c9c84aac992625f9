package tui

import (
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Stat is one counter shown in its own box.
type Stat struct {
	Label string
	Value int64
	// Kind selects the border color: "", "success", "warning" or "error".
	Kind string
}

// Stats is a titled row of counters. Rows wrap after PerRow boxes.
type Stats struct {
	Title  string
	Stats  []Stat
	PerRow int
}

// StatsModel is a Bubble Tea model for counter views.
type StatsModel struct {
	stats    *Stats
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a stats model.
func NewStatsModel(s *Stats) StatsModel {
	return StatsModel{stats: s}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	return m.render() + "\n" + helpLine()
}

func (m StatsModel) render() string {
	perRow := m.stats.PerRow
	if perRow <= 0 {
		perRow = 4
	}

	var rows []string
	for i := 0; i < len(m.stats.Stats); i += perRow {
		end := min(i+perRow, len(m.stats.Stats))
		boxes := make([]string, 0, end-i)
		for _, s := range m.stats.Stats[i:end] {
			boxes = append(boxes, renderStatBox(s))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.stats.Title))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, rows...))
	return b.String()
}

func renderStatBox(s Stat) string {
	color := highlightColor
	switch s.Kind {
	case "success":
		color = successColor
	case "warning":
		color = warningColor
	case "error":
		color = errorColor
	}
	content := lipgloss.JoinVertical(lipgloss.Center,
		StatValueStyle.Render(strconv.FormatInt(s.Value, 10)),
		StatLabelStyle.Render(s.Label),
	)
	return StatBoxStyle.BorderForeground(color).Render(content)
}
