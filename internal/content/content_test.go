package content

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCatalog_ResolvesBuiltins(t *testing.T) {
	c := NewCatalog()

	p, ok := c.PersonaByID("helpful-assistant")
	if !ok {
		t.Fatal("helpful-assistant should exist")
	}
	if p.Name != "Helpful Assistant" {
		t.Errorf("unexpected name %q", p.Name)
	}
	if !strings.Contains(p.Prompt, "never break character") {
		t.Errorf("prompt missing role-play instruction: %q", p.Prompt)
	}

	s, ok := c.SceneByID("no-scene")
	if !ok {
		t.Fatal("no-scene should exist")
	}
	if s.Text == "" {
		t.Error("scene text empty")
	}

	if _, ok := c.PersonaByID("does-not-exist"); ok {
		t.Error("unknown id should not resolve")
	}
}

func TestLoadCatalog_UserEntries(t *testing.T) {
	dir := t.TempDir()
	yaml := `
- id: pirate-captain
  name: Pirate Captain
  text: You are role-playing as a pirate captain.
- id: ""
  name: Broken
  text: missing id, should be skipped
`
	if err := os.WriteFile(filepath.Join(dir, "personas.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	c := LoadCatalog(dir)

	p, ok := c.PersonaByID("pirate-captain")
	if !ok {
		t.Fatal("user persona should resolve")
	}
	if p.Name != "Pirate Captain" {
		t.Errorf("unexpected name %q", p.Name)
	}
	// Built-ins still present and listed first.
	if c.Personas()[0].ID != "helpful-assistant" {
		t.Errorf("built-ins should come first, got %q", c.Personas()[0].ID)
	}
	for _, e := range c.Personas() {
		if e.Name == "Broken" {
			t.Error("invalid entry should have been skipped")
		}
	}
}

func TestLoadCatalog_MalformedFileIgnored(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sceneries.yaml"), []byte("{not yaml: ["), 0o644); err != nil {
		t.Fatal(err)
	}

	c := LoadCatalog(dir)
	if len(c.Scenes()) != len(NewCatalog().Scenes()) {
		t.Error("malformed user catalog should leave built-ins untouched")
	}
}

func TestPersonaGenPrompt(t *testing.T) {
	prompt, err := PersonaGenPrompt("heroic")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "NAME:") || !strings.Contains(prompt, "###") {
		t.Error("prompt must state the NAME/###/PROMPT contract")
	}
	if !strings.Contains(prompt, "heroic and action-oriented") {
		t.Error("category requirement missing")
	}

	if _, err := PersonaGenPrompt("nope"); err == nil {
		t.Error("unknown category should error")
	}
}

func TestSceneGenPrompt(t *testing.T) {
	prompt, err := SceneGenPrompt("cyberpunk")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "game master") || !strings.Contains(prompt, "Cyberpunk") {
		t.Errorf("unexpected prompt: %q", prompt)
	}
}

func TestParseGeneratedPersona(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantName   string
		wantPrompt string
		wantErr    bool
	}{
		{
			name:       "well formed",
			raw:        "NAME: Kael Stormwind\n###\nPROMPT: You are role-playing as Kael Stormwind...",
			wantName:   "Kael Stormwind",
			wantPrompt: "You are role-playing as Kael Stormwind...",
		},
		{
			name:       "extra whitespace",
			raw:        "NAME:   Mira  \n###\n  PROMPT:  You are role-playing as Mira. ",
			wantName:   "Mira",
			wantPrompt: "You are role-playing as Mira.",
		},
		{name: "missing separator", raw: "NAME: Kael PROMPT: something", wantErr: true},
		{name: "empty prompt", raw: "NAME: Kael\n###\nPROMPT: ", wantErr: true},
		{name: "empty response", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, prompt, err := ParseGeneratedPersona(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrBadPersonaFormat) {
					t.Fatalf("expected ErrBadPersonaFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if prompt != tt.wantPrompt {
				t.Errorf("prompt = %q, want %q", prompt, tt.wantPrompt)
			}
		})
	}
}
