package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("0")).
			Bold(true)

	tabsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Bold(true)

	metaOnlineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	metaOfflineStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("0")).
			Bold(true)

	statusOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	statusWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	statusErrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	selectedLineStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("255")).
				Bold(true)

	keysStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

func paintLayout(layout string) string {
	if layout == "" {
		return layout
	}

	lines := strings.Split(layout, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "TMR Reader Monitor"):
			lines[i] = headerStyle.Render(line)
		case strings.Contains(line, "▣ ") || strings.Contains(line, "□ "):
			lines[i] = tabsStyle.Render(line)
		case strings.HasPrefix(line, "Reader ONLINE"):
			lines[i] = metaOnlineStyle.Render(line)
		case strings.HasPrefix(line, "Reader OFFLINE"):
			lines[i] = metaOfflineStyle.Render(line)
		case strings.HasPrefix(line, "▶ "):
			lines[i] = selectedLineStyle.Render(line)
		case strings.HasPrefix(line, "[OK]"):
			lines[i] = statusOKStyle.Render(line)
		case strings.HasPrefix(line, "[WARN]"):
			lines[i] = statusWarnStyle.Render(line)
		case strings.HasPrefix(line, "[ERR]") || strings.HasSuffix(line, "[ERR]"):
			lines[i] = statusErrStyle.Render(line)
		case isPanelTitleLine(line):
			lines[i] = panelTitleStyle.Render(line)
		case strings.HasPrefix(line, "Keys:"):
			lines[i] = keysStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

func isPanelTitleLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return false
	}
	return !strings.Contains(trimmed, "[OK]") &&
		!strings.Contains(trimmed, "[WARN]") &&
		!strings.Contains(trimmed, "[ERR]") &&
		!strings.Contains(trimmed, "[INFO ]")
}
