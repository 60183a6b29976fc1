package schema

// SourceKind distinguishes catalog entries from user- or AI-authored ones.
// Persona and scene selection is a closed tagged variant, never a loose map.
type SourceKind string

const (
	SourceBuiltin   SourceKind = "builtin"
	SourceCustom    SourceKind = "custom"
	SourceGenerated SourceKind = "generated"
)

// Persona is the character the agent plays in a chat.
//
// Kind == SourceBuiltin: ID names a catalog entry and Prompt mirrors it.
// Otherwise Name/Prompt carry the full custom or generated definition.
type Persona struct {
	Kind   SourceKind `json:"kind"`
	ID     string     `json:"id,omitempty"`
	Name   string     `json:"name"`
	Prompt string     `json:"prompt"`
}

// Scene is the backdrop text for the role-play.
type Scene struct {
	Kind SourceKind `json:"kind"`
	ID   string     `json:"id,omitempty"`
	Name string     `json:"name"`
	Text string     `json:"text"`
}

// BuiltinPersona constructs a Persona referring to a catalog entry.
func BuiltinPersona(id, name, prompt string) Persona {
	return Persona{Kind: SourceBuiltin, ID: id, Name: name, Prompt: prompt}
}

// CustomPersona constructs a user-authored Persona.
func CustomPersona(name, prompt string) Persona {
	return Persona{Kind: SourceCustom, Name: name, Prompt: prompt}
}

// GeneratedPersona constructs an AI-authored Persona.
func GeneratedPersona(name, prompt string) Persona {
	return Persona{Kind: SourceGenerated, Name: name, Prompt: prompt}
}

// BuiltinScene constructs a Scene referring to a catalog entry.
func BuiltinScene(id, name, text string) Scene {
	return Scene{Kind: SourceBuiltin, ID: id, Name: name, Text: text}
}

// CustomScene constructs a user-authored Scene.
func CustomScene(text string) Scene {
	return Scene{Kind: SourceCustom, Name: "Custom", Text: text}
}

// GeneratedScene constructs an AI-authored Scene.
func GeneratedScene(text string) Scene {
	return Scene{Kind: SourceGenerated, Name: "AI Generated", Text: text}
}

// IsZero reports whether no persona has been chosen yet.
func (p Persona) IsZero() bool { return p.Kind == "" }

// IsZero reports whether no scene has been chosen yet.
func (s Scene) IsZero() bool { return s.Kind == "" }
