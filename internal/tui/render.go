package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"ayudapo/internal/logging"
	"ayudapo/internal/templates"
)

// RenderMarkdown renders markdown text using Glamour
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content
	}

	return strings.TrimRight(rendered, "\n")
}

// RenderLogLine colorizes one log entry by level
func RenderLogLine(e logging.Entry, theme Theme) string {
	ts := e.Timestamp
	if len(ts) >= 19 {
		ts = ts[11:19]
	}
	line := fmt.Sprintf("%s %-5s %s", ts, strings.ToUpper(e.Level), e.Message)
	if e.Module != "" {
		line += "  [" + e.Module + "]"
	}
	switch strings.ToLower(e.Level) {
	case "error", "fatal", "panic", "dpanic":
		return theme.LogErrorStyle.Render(line)
	case "warn":
		return theme.LogWarnStyle.Render(line)
	case "debug":
		return theme.MutedStyle.Render(line)
	default:
		return line
	}
}

// RenderTemplateList renders the catalog with the active template and the cursor marked
func RenderTemplateList(list []templates.Template, current string, cursor int, theme Theme) string {
	lines := make([]string, 0, len(list))
	for i, t := range list {
		marker := "  "
		if t.Name == current {
			marker = "* "
		}
		line := fmt.Sprintf("%s%d. %s", marker, i+1, t.Name)
		if d := strings.TrimSpace(t.Description); d != "" {
			line += theme.MutedStyle.Render("  " + d)
		}
		if i == cursor {
			line = theme.SelectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
