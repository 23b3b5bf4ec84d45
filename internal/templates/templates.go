// Package templates holds the prompt catalog used to wrap user input before it reaches the LLM.
package templates

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Placeholder is replaced with the user's text when a template is rendered.
const Placeholder = "{input}"

var ErrUnknownTemplate = errors.New("unknown template")

//go:embed builtin.yaml
var builtinYAML []byte

type Template struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Body        string `yaml:"body" json:"body"`
}

// Slug returns the lowercase, accent-free, dash-separated form of the name.
func (t Template) Slug() string {
	return Slugify(t.Name)
}

// Render substitutes every {input} occurrence.
func (t Template) Render(input string) string {
	return strings.TrimSpace(strings.ReplaceAll(t.Body, Placeholder, input))
}

type catalogFile struct {
	Templates []Template `yaml:"templates"`
}

// Catalog is an ordered template list with case-insensitive lookup by name, slug or 1-based index.
type Catalog struct {
	items []Template
}

// Builtin returns the catalog shipped with the binary.
func Builtin() *Catalog {
	c, err := Parse(builtinYAML)
	if err != nil {
		panic(fmt.Sprintf("builtin templates: %v", err))
	}
	return c
}

// Parse reads a YAML document of the form `templates: [{name, description, body}]`.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	c := &Catalog{}
	for i, t := range f.Templates {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return nil, fmt.Errorf("parse templates: entry %d has no name", i+1)
		}
		c.Put(t)
	}
	return c, nil
}

// Load returns the builtin catalog merged with the YAML file at path (if any).
func Load(path string) (*Catalog, error) {
	c := Builtin()
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %q: %w", path, err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for _, t := range extra.items {
		c.Put(t)
	}
	return c, nil
}

// Put adds t or replaces the entry with the same slug, keeping its position.
// A body without the placeholder gets it appended on a new line.
func (c *Catalog) Put(t Template) {
	if !strings.Contains(t.Body, Placeholder) {
		t.Body = strings.TrimRight(t.Body, "\n") + "\n" + Placeholder
	}
	slug := t.Slug()
	for i := range c.items {
		if c.items[i].Slug() == slug {
			c.items[i] = t
			return
		}
	}
	c.items = append(c.items, t)
}

func (c *Catalog) List() []Template {
	return append([]Template(nil), c.items...)
}

func (c *Catalog) Names() []string {
	out := make([]string, len(c.items))
	for i, t := range c.items {
		out[i] = t.Name
	}
	return out
}

// Get resolves name, slug or a 1-based index ("3").
func (c *Catalog) Get(key string) (Template, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Template{}, fmt.Errorf("%w: empty name", ErrUnknownTemplate)
	}
	if n, ok := parseIndex(key); ok {
		if n >= 1 && n <= len(c.items) {
			return c.items[n-1], nil
		}
		return Template{}, fmt.Errorf("%w: index %d out of range", ErrUnknownTemplate, n)
	}
	slug := Slugify(key)
	for _, t := range c.items {
		if t.Slug() == slug {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, key)
}

// Render looks up key and fills it with input.
func (c *Catalog) Render(key, input string) (string, error) {
	t, err := c.Get(key)
	if err != nil {
		return "", err
	}
	return t.Render(input), nil
}

func parseIndex(s string) (int, bool) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
		if n > 1<<20 {
			return 0, false
		}
	}
	return n, true
}

// Slugify lowercases, strips accents and joins words with dashes: "PO Definición épica" -> "po-definicion-epica".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFD.String(strings.ToLower(strings.TrimSpace(s))) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}
