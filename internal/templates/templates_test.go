package templates

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuiltinCatalogOrder(t *testing.T) {
	want := []string{
		"General",
		"PO Casos exito",
		"PO Definicion epica",
		"PO Definicion epica una historia",
		"PO Definicion historia",
		"PO Definicion mejora tecnica",
		"PO Definicion spike",
		"PO resumen reunion",
		"Programador Python",
	}
	got := Builtin().Names()
	if len(got) != len(want) {
		t.Fatalf("names=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names[%d]=%q, want %q", i, got[i], want[i])
		}
	}
	for _, tpl := range Builtin().List() {
		if strings.Count(tpl.Body, Placeholder) != 1 {
			t.Fatalf("%s: placeholder count=%d", tpl.Name, strings.Count(tpl.Body, Placeholder))
		}
	}
}

func TestRenderFillsInput(t *testing.T) {
	c := Builtin()
	out, err := c.Render("PO Definicion spike", "migrar pagos a la nueva pasarela")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out, "Tienes que definir un spike con el detalle: migrar pagos a la nueva pasarela") {
		t.Fatalf("out=%q", out)
	}
	if strings.Contains(out, Placeholder) {
		t.Fatalf("placeholder left: %q", out)
	}
}

func TestRenderKeepsBracesInInput(t *testing.T) {
	out, err := Builtin().Render("General", `devuelve {"a": 1}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `{"a": 1}`) {
		t.Fatalf("out=%q", out)
	}
}

func TestGetBySlugAndIndex(t *testing.T) {
	c := Builtin()
	tests := []struct {
		key  string
		want string
	}{
		{"po-casos-exito", "PO Casos exito"},
		{"po casos éxito", "PO Casos exito"},
		{"programador python", "Programador Python"},
		{"1", "General"},
		{"9", "Programador Python"},
	}
	for _, tt := range tests {
		got, err := c.Get(tt.key)
		if err != nil {
			t.Fatalf("Get(%q): %v", tt.key, err)
		}
		if got.Name != tt.want {
			t.Errorf("Get(%q)=%q, want %q", tt.key, got.Name, tt.want)
		}
	}
	for _, key := range []string{"", "0", "10", "nope"} {
		if _, err := c.Get(key); !errors.Is(err, ErrUnknownTemplate) {
			t.Errorf("Get(%q) err=%v", key, err)
		}
	}
}

func TestLoadMergesUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	doc := `templates:
  - name: General
    body: "Responde en inglés: {input}"
  - name: Retro
    description: Retrospectiva
    body: Resume la retrospectiva.
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	names := c.Names()
	if len(names) != 10 || names[0] != "General" || names[9] != "Retro" {
		t.Fatalf("names=%v", names)
	}
	out, _ := c.Render("general", "hola")
	if out != "Responde en inglés: hola" {
		t.Fatalf("override not applied: %q", out)
	}
	out, _ = c.Render("retro", "sprint 12")
	if out != "Resume la retrospectiva.\nsprint 12" {
		t.Fatalf("placeholder not appended: %q", out)
	}
}

func TestParseRejectsNamelessEntries(t *testing.T) {
	if _, err := Parse([]byte("templates:\n  - body: x\n")); err == nil {
		t.Fatal("expected error")
	}
}

func TestSlugify(t *testing.T) {
	if got := Slugify("  PO Definición  épica!! "); got != "po-definicion-epica" {
		t.Fatalf("got %q", got)
	}
}
