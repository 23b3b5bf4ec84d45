package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
)

// renderMarkdown renders a reply for the terminal; on any glamour failure the text is returned as is.
func renderMarkdown(content string, width int) string {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

// answerStreamRenderer prints streamed reply text under an [AyudaPO] header, collapsing
// runs of blank lines to at most one.
type answerStreamRenderer struct {
	out             io.Writer
	color           bool
	started         bool
	lineStart       bool
	pendingNewlines int
	hasVisibleText  bool
}

func newAnswerStreamRenderer(out io.Writer, color bool) *answerStreamRenderer {
	return &answerStreamRenderer{out: out, color: color, lineStart: true}
}

func (r *answerStreamRenderer) start() {
	if r == nil || r.out == nil || r.started {
		return
	}
	r.started = true
	_, _ = fmt.Fprintln(r.out)
	header := "[AyudaPO] " + strings.Repeat("─", 40)
	if r.color {
		header = ansiCyan + ansiBold + "[AyudaPO]" + ansiReset + " " + ansiCyan + strings.Repeat("─", 40) + ansiReset
	}
	_, _ = fmt.Fprintln(r.out, header)
}

func (r *answerStreamRenderer) Append(chunk string) {
	if r == nil || r.out == nil || chunk == "" {
		return
	}
	r.start()
	normalized := strings.ReplaceAll(strings.ReplaceAll(chunk, "\r\n", "\n"), "\r", "\n")
	var b strings.Builder
	for _, ch := range normalized {
		if ch == '\n' {
			r.pendingNewlines++
			continue
		}
		r.flushPendingNewlines(&b)
		r.lineStart = false
		b.WriteRune(ch)
		r.hasVisibleText = true
	}
	_, _ = io.WriteString(r.out, b.String())
}

func (r *answerStreamRenderer) Finish() {
	if r == nil || r.out == nil || !r.started {
		return
	}
	r.pendingNewlines = 0
	if !r.lineStart {
		_, _ = fmt.Fprintln(r.out)
		r.lineStart = true
	}
	_, _ = fmt.Fprintln(r.out)
}

func (r *answerStreamRenderer) flushPendingNewlines(b *strings.Builder) {
	if r.pendingNewlines == 0 {
		return
	}
	if !r.hasVisibleText {
		r.pendingNewlines = 0
		return
	}
	n := r.pendingNewlines
	if n > 2 {
		n = 2
	}
	b.WriteString(strings.Repeat("\n", n))
	r.pendingNewlines = 0
	r.lineStart = true
}
