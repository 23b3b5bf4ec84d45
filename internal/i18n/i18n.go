package i18n

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

var (
	supported = []language.Tag{language.English, language.Spanish}
	matcher   = language.NewMatcher(supported)
)

// I18n provides internationalization support
type I18n struct {
	locale   string
	messages map[string]string
	mu       sync.RWMutex
}

var (
	global     *I18n
	globalOnce sync.Once
)

// Global returns the global i18n instance
func Global() *I18n {
	globalOnce.Do(func() {
		global = New("")
	})
	return global
}

// Init initializes the global i18n instance
func Init(locale string) {
	global = New(locale)
}

// T is a global translation shortcut
func T(key string, args ...any) string {
	return Global().T(key, args...)
}

// New creates an i18n instance
func New(locale string) *I18n {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = DetectLocale()
	}
	locale = normalizeLocale(locale)

	i := &I18n{
		locale:   locale,
		messages: make(map[string]string),
	}

	// Load English as fallback first
	for k, v := range EnMessages {
		i.messages[k] = v
	}

	if locale == "es" {
		for k, v := range EsMessages {
			i.messages[k] = v
		}
	}

	return i
}

// T translates key, substituting args with fmt.Sprintf.
func (i *I18n) T(key string, args ...any) string {
	i.mu.RLock()
	tmpl, ok := i.messages[key]
	i.mu.RUnlock()

	if !ok {
		return key
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// Locale returns current locale
func (i *I18n) Locale() string {
	return i.locale
}

// DetectLocale auto-detects locale from environment
func DetectLocale() string {
	for _, env := range []string{"AYUDAPO_LANG", "LC_ALL", "LC_MESSAGES", "LANG"} {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" {
			continue
		}
		return normalizeLocale(v)
	}
	return "en"
}

// normalizeLocale maps a POSIX or BCP 47 locale ("es_ES.UTF-8", "es-419") to "en" or "es".
func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	// Remove .UTF-8 suffix
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.ReplaceAll(s, "_", "-")
	if s == "" || s == "C" || s == "POSIX" {
		return "en"
	}
	_, idx := language.MatchStrings(matcher, s)
	base, _ := supported[idx].Base()
	return base.String()
}
