package storage

import (
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"
)

var sessIDRe = regexp.MustCompile(`^sess_[0-9a-f]{16}$`)

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	if !sessIDRe.MatchString(id) {
		t.Fatalf("NewSessionID format unexpected: %q", id)
	}
	if id == NewSessionID() {
		t.Fatal("NewSessionID should produce different ids")
	}
}

func TestInferTitle(t *testing.T) {
	if got := InferTitle("\n\n  crear   historia de usuario \nsegunda"); got != "crear historia de usuario" {
		t.Fatalf("InferTitle=%q", got)
	}
	long := InferTitle("necesito una historia de usuario para el flujo de pago con tarjeta en la app")
	if n := utf8.RuneCountInString(long); n > maxTitleRunes || !strings.HasSuffix(long, "…") {
		t.Fatalf("long title not capped: %d runes (%q)", n, long)
	}
	if InferTitle("   ") != "" {
		t.Fatal("blank input should give empty title")
	}
}
