package schema

// Step identifies one state of the setup wizard. The concrete states and
// their transition table live in internal/wizard; the name is persisted
// verbatim so a restart resumes the identical step.
type Step string

// WizardDraft holds partially entered data while a wizard flow is active.
// Discarded wholesale on cancel.
type WizardDraft struct {
	Name          string `json:"name,omitempty"`
	Profile       string `json:"profile,omitempty"`
	PersonaName   string `json:"persona_name,omitempty"`
	PersonaPrompt string `json:"persona_prompt,omitempty"`
	SceneText     string `json:"scene_text,omitempty"`
	GenCategory   string `json:"gen_category,omitempty"`
	GenGenre      string `json:"gen_genre,omitempty"`
}

// WizardState is the persisted snapshot of an active wizard flow.
// Nil on a SessionRecord means no wizard is active.
type WizardState struct {
	Step  Step        `json:"step"`
	Draft WizardDraft `json:"draft"`
}

// SessionRecord is the durable per-chat state: active persona and scene,
// the user's declared character, the memory toggle, the consolidation
// counter, and the wizard snapshot. Mutated only by the controller and the
// wizard; deleted only by an explicit user action.
type SessionRecord struct {
	ChatID         string       `json:"chat_id"`
	Channel        string       `json:"channel"`
	UserName       string       `json:"user_name,omitempty"`
	UserProfile    string       `json:"user_profile,omitempty"`
	Persona        Persona      `json:"persona"`
	Scene          Scene        `json:"scene"`
	MemoryEnabled  bool         `json:"memory_enabled"`
	TurnsSince     int          `json:"turns_since_consolidation"`
	CustomPersonas []Persona    `json:"custom_personas,omitempty"`
	Wizard         *WizardState `json:"wizard,omitempty"`
}

// NewSessionRecord creates a fresh record. Memory is enabled by default
// for new chats.
func NewSessionRecord(channel, chatID string) *SessionRecord {
	return &SessionRecord{
		ChatID:        chatID,
		Channel:       channel,
		MemoryEnabled: true,
	}
}

// WizardActive reports whether a wizard flow is in progress.
func (r *SessionRecord) WizardActive() bool { return r.Wizard != nil }

// FindCustomPersona returns the stored custom persona with the given name.
func (r *SessionRecord) FindCustomPersona(name string) (Persona, bool) {
	for _, p := range r.CustomPersonas {
		if p.Name == name {
			return p, true
		}
	}
	return Persona{}, false
}

// UpsertCustomPersona stores p, replacing any existing persona with the
// same name.
func (r *SessionRecord) UpsertCustomPersona(p Persona) {
	for i := range r.CustomPersonas {
		if r.CustomPersonas[i].Name == p.Name {
			r.CustomPersonas[i] = p
			return
		}
	}
	r.CustomPersonas = append(r.CustomPersonas, p)
}
