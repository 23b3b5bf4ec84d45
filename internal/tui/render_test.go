package tui

import (
	"strings"
	"testing"

	"ayudapo/internal/logging"
	"ayudapo/internal/templates"
)

func TestRenderMarkdown_Basic(t *testing.T) {
	input := "# Historia\n\nComo **PO** quiero priorizar."
	result := RenderMarkdown(input, 80)
	if result == "" {
		t.Fatal("RenderMarkdown returned empty")
	}
	// Glamour should have rendered the heading
	if !strings.Contains(result, "Historia") {
		t.Fatalf("result should contain 'Historia': %q", result)
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	if RenderMarkdown("", 80) != "" {
		t.Fatal("empty input should return empty")
	}
	if RenderMarkdown("  ", 80) != "" {
		t.Fatal("whitespace input should return empty")
	}
}

func TestRenderMarkdown_CodeBlock(t *testing.T) {
	input := "```gherkin\nDado un cliente\n```"
	result := RenderMarkdown(input, 80)
	if !strings.Contains(result, "cliente") {
		t.Fatalf("code block should contain 'cliente': %q", result)
	}
}

func TestRenderLogLine(t *testing.T) {
	theme := DarkTheme()
	tests := []struct {
		entry  logging.Entry
		expect string
	}{
		{logging.Entry{Timestamp: "2025-03-01T09:15:42.120Z", Level: "info", Message: "listening"}, "09:15:42 INFO  listening"},
		{logging.Entry{Level: "error", Message: "boom", Module: "devops"}, "boom  [devops]"},
		{logging.Entry{Level: "debug", Message: "chunked"}, "chunked"},
	}
	for _, tt := range tests {
		got := RenderLogLine(tt.entry, theme)
		if !strings.Contains(got, tt.expect) {
			t.Errorf("RenderLogLine(%+v) should contain %q, got %q", tt.entry, tt.expect, got)
		}
	}
}

func TestRenderTemplateList(t *testing.T) {
	list := []templates.Template{
		{Name: "General", Description: "Uso libre"},
		{Name: "PO Definicion historia"},
	}
	out := RenderTemplateList(list, "PO Definicion historia", 0, DarkTheme())
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%d", len(lines))
	}
	if !strings.Contains(lines[0], "1. General") || !strings.Contains(lines[0], "Uso libre") {
		t.Fatalf("first line=%q", lines[0])
	}
	if !strings.Contains(lines[1], "* 2. PO Definicion historia") {
		t.Fatalf("current template should be marked: %q", lines[1])
	}
}
