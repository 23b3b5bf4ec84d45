package storage

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxTitleRunes = 48

// NewSessionID generates a new session ID
func NewSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// InferTitle derives a session title from the first user input: the first non-empty line,
// collapsed and capped at 48 runes.
func InferTitle(input string) string {
	line := ""
	for _, l := range strings.Split(input, "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}
	line = strings.Join(strings.Fields(line), " ")
	if utf8.RuneCountInString(line) <= maxTitleRunes {
		return line
	}
	r := []rune(line)
	return strings.TrimSpace(string(r[:maxTitleRunes-1])) + "…"
}
