package logging

import (
	"os"
	"strings"
	"testing"
)

func TestLoggerWritesAndRedacts(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Options{Dir: dir, MaxSizeMB: 1})
	if err != nil {
		t.Fatal(err)
	}
	l.Named("devops").Info("work item created", "id", 42, "pat", "super-secret", "api_key", "sk-123")
	l.Sync()

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "work item created") || !strings.Contains(text, `"module":"devops"`) {
		t.Fatalf("unexpected log: %s", text)
	}
	if strings.Contains(text, "super-secret") || strings.Contains(text, "sk-123") {
		t.Fatalf("secret leaked: %s", text)
	}

	entries, err := l.Tail(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Module != "devops" || entries[0].Level != "INFO" {
		t.Fatalf("entries=%+v", entries)
	}
}

func TestTailKeepsNewest(t *testing.T) {
	l, err := New(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range []string{"a", "b", "c", "d"} {
		l.Info(msg)
	}
	l.Sync()
	entries, err := l.Tail(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Message != "c" || entries[1].Message != "d" {
		t.Fatalf("entries=%+v", entries)
	}
}

func TestNilAndNopAreSafe(t *testing.T) {
	var l *Logger
	l.Info("ignored")
	Nop().Named("x").Warn("ignored", "password", "x")
	if entries, err := Nop().Tail(3); err != nil || entries != nil {
		t.Fatalf("entries=%v err=%v", entries, err)
	}
}
