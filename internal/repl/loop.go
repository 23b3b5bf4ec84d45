// Package repl runs the line-oriented chat loop used when the TUI is not wanted or stdin
// is not a terminal.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"ayudapo/internal/conversation"
	"ayudapo/internal/i18n"
	"ayudapo/internal/provider"
)

const (
	ansiReset = "\x1b[0m"
	ansiDim   = "\x1b[90m"
	ansiGreen = "\x1b[32m"
	ansiCyan  = "\x1b[36m"
	ansiBold  = "\x1b[1m"
	ansiRed   = "\x1b[31m"
)

// maxTemplateCells bounds the template label in the prompt.
const maxTemplateCells = 28

// Loop holds REPL state: the session, the input source and where output goes.
// Loop holds the REPL state: the session, the input source and the output.
type Loop struct {
	sess  *conversation.Session
	in    LineReader
	out   io.Writer
	color bool
	// markdown buffers each reply and renders it with glamour instead of streaming raw text.
	markdown bool
	width    int
	// configPath is shown in the hint when no provider key is configured.
	configPath string
}

type Options struct {
	// HistoryPath stores readline history; empty disables persistence.
	HistoryPath string
	ConfigPath  string
	// Raw disables markdown rendering and streams reply text as it arrives.
	Raw bool
}

// New builds a loop over an explicit reader and writer. Color is off.
func New(sess *conversation.Session, in LineReader, out io.Writer) *Loop {
	return &Loop{sess: sess, in: in, out: out}
}

// NewTerminal wires the loop to stdin/stdout: readline with history and completion when
// stdin is a terminal, a plain line reader otherwise.
func NewTerminal(sess *conversation.Session, opts Options) *Loop {
	l := &Loop{sess: sess, out: os.Stdout, color: useColor(), configPath: opts.ConfigPath}
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) && !opts.Raw {
		l.markdown = true
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			l.width = w
		}
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		names := func() []string { return sess.Catalog().Names() }
		if rl, err := newReadlineInput(opts.HistoryPath, slashCompleter(names)); err == nil {
			l.in = rl
			return l
		}
	}
	l.in = newBasicLineInput(os.Stdin, os.Stdout)
	return l
}

// Run reads lines until EOF, /exit or ctx is done. Ctrl+C during a reply cancels only that
// reply; Ctrl+C on an empty prompt leaves the loop.
func (l *Loop) Run(ctx context.Context) error {
	if l.sess == nil {
		return errors.New("repl: session is nil")
	}
	if l.in == nil {
		return errors.New("repl: input is nil")
	}
	defer l.in.Close()

	fmt.Fprintln(l.out, l.paint(ansiBold, i18n.T("startup.welcome", l.sess.Template(), l.sess.Model())))
	fmt.Fprintln(l.out, l.paint(ansiDim, i18n.T("startup.hint")))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.printStatusLine()
		line, err := l.in.ReadLine(l.prompt())
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if strings.TrimSpace(line) == "" {
				l.bye()
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			l.bye()
			return nil
		case err != nil:
			return err
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if err := l.turn(ctx, text); err != nil {
			if errors.Is(err, conversation.ErrExit) {
				l.bye()
				return nil
			}
			return err
		}
	}
}

// turn runs one input. Only errors that should end the loop are returned.
func (l *Loop) turn(ctx context.Context, text string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var (
		reply string
		err   error
	)
	if l.markdown && !strings.HasPrefix(text, "/") {
		fmt.Fprint(l.out, l.paint(ansiDim, i18n.T("status.streaming")))
		reply, err = l.sess.RunInput(turnCtx, text, l.out, nil)
		fmt.Fprint(l.out, "\r\x1b[K")
		if err == nil {
			r := newAnswerStreamRenderer(l.out, l.color)
			r.Append(renderMarkdown(reply, l.width))
			r.Finish()
		}
	} else {
		r := newAnswerStreamRenderer(l.out, l.color)
		_, err = l.sess.RunInput(turnCtx, text, l.out, r.Append)
		r.Finish()
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, conversation.ErrExit):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case turnCtx.Err() != nil:
		fmt.Fprintln(l.out, l.paint(ansiDim, i18n.T("status.interrupted")))
		return nil
	case errors.Is(err, provider.ErrNotConfigured):
		fmt.Fprintln(l.out, l.paint(ansiRed, i18n.T("error.not_configured", l.configPath)))
		return nil
	default:
		fmt.Fprintln(l.out, l.paint(ansiRed, i18n.T("error.generic", err.Error())))
		return nil
	}
}

// printStatusLine writes the dim first prompt line: context tokens and model.
func (l *Loop) printStatusLine() {
	line := fmt.Sprintf("context: %s · model: %s",
		i18n.T("context.tokens", l.sess.ContextTokens()), l.sess.Model())
	fmt.Fprintln(l.out, l.paint(ansiDim, line))
}

// prompt is the second prompt line: "[template]> ".
func (l *Loop) prompt() string {
	label := runewidth.Truncate(l.sess.Template(), maxTemplateCells, "…")
	return l.paint(ansiGreen, "["+label+"]> ")
}

func (l *Loop) bye() {
	fmt.Fprintln(l.out, i18n.T("startup.bye"))
}

func (l *Loop) paint(code, s string) string {
	if !l.color {
		return s
	}
	return code + s + ansiReset
}

// useColor reports whether stdout is a terminal that accepts ANSI colors.
func useColor() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
