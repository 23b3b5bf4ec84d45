package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/chzyer/readline"

	"ayudapo/internal/conversation"
	"ayudapo/internal/i18n"
	"ayudapo/internal/provider"
	"ayudapo/internal/provider/providertest"
)

type scriptedStep struct {
	line string
	err  error
}

type scriptedInput struct {
	steps   []scriptedStep
	prompts []string
	closed  bool
}

func (s *scriptedInput) ReadLine(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.steps) == 0 {
		return "", io.EOF
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.line, step.err
}

func (s *scriptedInput) Close() error {
	s.closed = true
	return nil
}

func lines(ls ...string) *scriptedInput {
	in := &scriptedInput{}
	for _, l := range ls {
		in.steps = append(in.steps, scriptedStep{line: l})
	}
	return in
}

func TestBasicLineInput(t *testing.T) {
	var out bytes.Buffer
	in := newBasicLineInput(strings.NewReader("hola\r\nadios"), &out)

	got, err := in.ReadLine("> ")
	if err != nil || got != "hola" {
		t.Fatalf("first line=%q err=%v", got, err)
	}
	got, err = in.ReadLine("> ")
	if err != nil || got != "adios" {
		t.Fatalf("unterminated line=%q err=%v", got, err)
	}
	if _, err := in.ReadLine("> "); !errors.Is(err, io.EOF) {
		t.Fatalf("want EOF, got %v", err)
	}
	if out.String() != "> > > " {
		t.Fatalf("prompts=%q", out.String())
	}
}

func TestRun_CommandsAndReply(t *testing.T) {
	i18n.Init("en")
	llm := &providertest.Fake{Reply: "uno dos"}
	sess := conversation.New(llm, conversation.Options{})
	in := lines("", "/template 2", "necesito una historia", "/exit", "no se lee")
	var out bytes.Buffer

	if err := New(sess, in, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"AyudaPO ready · template General",
		"Template set to PO Casos exito",
		"[AyudaPO] ",
		"uno dos",
		"Bye.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if len(llm.Requests) != 1 {
		t.Fatalf("requests=%d, want 1", len(llm.Requests))
	}
	if len(in.steps) != 1 {
		t.Fatalf("loop should stop at /exit, %d steps left", len(in.steps))
	}
	if !in.closed {
		t.Fatal("input should be closed")
	}
	if in.prompts[2] != "[PO Casos exito]> " {
		t.Fatalf("prompt=%q", in.prompts[2])
	}
	if strings.Contains(got, "\x1b[") {
		t.Fatal("plain loop should not emit ANSI codes")
	}
}

func TestRun_ProviderNotConfiguredKeepsLooping(t *testing.T) {
	i18n.Init("en")
	llm := &providertest.Fake{Err: provider.ErrNotConfigured}
	sess := conversation.New(llm, conversation.Options{})
	in := lines("hola", "otra vez")
	var out bytes.Buffer
	l := New(sess, in, &out)
	l.configPath = "/tmp/.ayudapo/config.json"

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := strings.Count(out.String(), "No LLM provider configured"); n != 2 {
		t.Fatalf("hint count=%d:\n%s", n, out.String())
	}
	if !strings.Contains(out.String(), "/tmp/.ayudapo/config.json") {
		t.Fatal("hint should name the config path")
	}
}

func TestRun_ProviderErrorIsReported(t *testing.T) {
	i18n.Init("en")
	llm := &providertest.Fake{Err: errors.New("status 500")}
	sess := conversation.New(llm, conversation.Options{})
	var out bytes.Buffer

	if err := New(sess, lines("hola"), &out).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "error: status 500") {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestRun_InterruptOnEmptyPromptExits(t *testing.T) {
	i18n.Init("en")
	sess := conversation.New(&providertest.Fake{}, conversation.Options{})
	in := &scriptedInput{steps: []scriptedStep{
		{line: "a medias", err: readline.ErrInterrupt},
		{line: "", err: readline.ErrInterrupt},
		{line: "nunca"},
	}}
	var out bytes.Buffer

	if err := New(sess, in, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(in.steps) != 1 {
		t.Fatalf("steps left=%d, want 1", len(in.steps))
	}
}

func TestRun_CancelledContext(t *testing.T) {
	sess := conversation.New(&providertest.Fake{}, conversation.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(sess, lines("hola"), io.Discard).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestRun_NilSession(t *testing.T) {
	if err := New(nil, lines(), io.Discard).Run(context.Background()); err == nil {
		t.Fatal("want error for nil session")
	}
}

func TestStatusLineAndPrompt(t *testing.T) {
	sess := conversation.New(&providertest.Fake{}, conversation.Options{})
	if _, err := sess.SetTemplate("PO Definicion epica una historia"); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	l := New(sess, lines(), &out)
	l.printStatusLine()
	if !strings.Contains(out.String(), "model: fake-model") {
		t.Fatalf("status line=%q", out.String())
	}
	p := l.prompt()
	if !strings.HasPrefix(p, "[PO Definicion") || !strings.HasSuffix(p, "…]> ") {
		t.Fatalf("prompt=%q", p)
	}
}

func TestAnswerStreamRenderer(t *testing.T) {
	var out bytes.Buffer
	r := newAnswerStreamRenderer(&out, false)
	r.Append("\n\nhola")
	r.Append("\n\n\n\nmundo")
	r.Finish()

	want := "\n[AyudaPO] " + strings.Repeat("─", 40) + "\nhola\n\nmundo\n\n"
	if out.String() != want {
		t.Fatalf("got %q\nwant %q", out.String(), want)
	}
}

func TestAnswerStreamRenderer_NothingWhenEmpty(t *testing.T) {
	var out bytes.Buffer
	r := newAnswerStreamRenderer(&out, false)
	r.Append("")
	r.Finish()
	if out.Len() != 0 {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRun_MarkdownModeRendersWholeReply(t *testing.T) {
	i18n.Init("en")
	llm := &providertest.Fake{Reply: "# Historia\n\nComo **PO** quiero priorizar."}
	sess := conversation.New(llm, conversation.Options{})
	var out bytes.Buffer
	l := New(sess, lines("hola"), &out)
	l.markdown = true
	l.width = 60

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Writing...", "[AyudaPO]", "Historia", "priorizar"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "priorizar") != 1 {
		t.Fatal("reply should be printed once")
	}
}
