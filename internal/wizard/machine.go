// Package wizard implements the /setup conversation flow as an explicit
// state machine over the persisted session record.
//
// The machine is pure: it mutates the given SessionRecord and returns a
// reply plus an optional side effect for the caller to perform (submit a
// generation request, clear history). It never touches the store or the
// queue itself, which keeps the persist-before-effect ordering in the
// controller's hands and makes every transition unit-testable.
package wizard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/velvetfox/velvetfox/internal/bus"
	"github.com/velvetfox/velvetfox/internal/content"
	"github.com/velvetfox/velvetfox/internal/schema"
)

// Wizard steps. Persisted verbatim in the session record, so renaming one
// is a breaking change for in-flight sessions.
const (
	StepMainMenu           schema.Step = "main_menu"
	StepAwaitingName       schema.Step = "awaiting_name"
	StepAwaitingProfile    schema.Step = "awaiting_profile"
	StepPersonaList        schema.Step = "persona_list"
	StepPersonaCustomName  schema.Step = "persona_custom_name"
	StepPersonaCustomDesc  schema.Step = "persona_custom_desc"
	StepPersonaGenCategory schema.Step = "persona_gen_category"
	StepPersonaReview      schema.Step = "persona_review"
	StepSceneList          schema.Step = "scene_list"
	StepSceneCustom        schema.Step = "scene_custom"
	StepSceneGenGenre      schema.Step = "scene_gen_genre"
	StepSceneReview        schema.Step = "scene_review"
	StepMemoryToggle       schema.Step = "memory_toggle"
	StepGenerating         schema.Step = "generating"
	StepDeleteMenu         schema.Step = "delete_menu"
)

// ErrInvalidInput means the input does not match what the current step
// accepts. The state is unchanged; the accompanying Reply re-prompts.
var ErrInvalidInput = errors.New("input not valid for current setup step")

// EffectKind enumerates side effects the caller must perform after
// persisting the transition.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectGeneratePersona
	EffectGenerateScene
	EffectClearHistory
	EffectDeleteChat
)

// Effect is work the controller performs after the transition is saved.
type Effect struct {
	Kind   EffectKind
	Prompt string // generation prompt, for the generate effects
}

// Reply is the user-visible output of a transition.
type Reply struct {
	Text    string
	Choices []bus.ChoiceRow
}

// Input is one user event routed into the machine: either free text or a
// selection carrying the choice data value.
type Input struct {
	Text      string
	Selection bool
}

// Machine drives the setup flow. Safe for concurrent use: all state lives
// in the SessionRecord passed per call.
type Machine struct {
	catalog *content.Catalog
}

func New(catalog *content.Catalog) *Machine {
	return &Machine{catalog: catalog}
}

// Start enters the wizard at the main menu, replacing any prior flow.
func (m *Machine) Start(rec *schema.SessionRecord) Reply {
	rec.Wizard = &schema.WizardState{Step: StepMainMenu}
	return m.mainMenu(rec)
}

// StartDelete enters the wizard at the delete hub.
func (m *Machine) StartDelete(rec *schema.SessionRecord) Reply {
	rec.Wizard = &schema.WizardState{Step: StepDeleteMenu}
	return Reply{
		Text: "What would you like to delete? This cannot be undone.",
		Choices: []bus.ChoiceRow{
			{{Label: "🗑 Chat history only", Data: "delete_history"}},
			{{Label: "💣 Everything (history, memory, setup)", Data: "delete_all"}},
			{{Label: "« Cancel", Data: "cancel"}},
		},
	}
}

// Cancel aborts any active flow, discarding the draft. Safe to call when
// no wizard is active.
func (m *Machine) Cancel(rec *schema.SessionRecord) Reply {
	rec.Wizard = nil
	return Reply{Text: "Setup closed. Just send me a message to continue our story."}
}

// Handle routes one input through the transition table. On ErrInvalidInput
// the record is unchanged and the reply carries a hint.
func (m *Machine) Handle(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	if rec.Wizard == nil {
		return Reply{}, Effect{}, fmt.Errorf("no setup flow active: %w", ErrInvalidInput)
	}
	if in.Selection && strings.TrimSpace(in.Text) == "cancel" {
		return m.Cancel(rec), Effect{}, nil
	}

	h, ok := transitions[rec.Wizard.Step]
	if !ok {
		// Unknown persisted step, e.g. after a downgrade. Reset rather
		// than trap the chat.
		rec.Wizard = &schema.WizardState{Step: StepMainMenu}
		return m.mainMenu(rec), Effect{}, nil
	}
	return h(m, rec, in)
}

// CompleteGeneration resumes a flow parked in Generating once the queued
// request resolves. A failure (or an unparseable persona) returns to the
// originating menu with the draft intact so the user can retry.
func (m *Machine) CompleteGeneration(rec *schema.SessionRecord, kind EffectKind, text string, genErr error) Reply {
	if rec.Wizard == nil || rec.Wizard.Step != StepGenerating {
		return Reply{}
	}
	switch kind {
	case EffectGeneratePersona:
		if genErr != nil {
			rec.Wizard.Step = StepPersonaGenCategory
			return m.personaGenMenu("Sorry, I couldn't create a persona right now. Pick a category to try again:")
		}
		name, prompt, err := content.ParseGeneratedPersona(text)
		if err != nil {
			rec.Wizard.Step = StepPersonaGenCategory
			return m.personaGenMenu("The generated persona came back malformed. Pick a category to try again:")
		}
		rec.Wizard.Step = StepPersonaReview
		rec.Wizard.Draft.PersonaName = name
		rec.Wizard.Draft.PersonaPrompt = prompt
		return Reply{
			Text: fmt.Sprintf("I've created this persona for you:\n\nName: %s\n\nPrompt:\n%s", name, prompt),
			Choices: []bus.ChoiceRow{
				{{Label: "✅ Use This Persona", Data: "persona_use"}},
				{{Label: "« Back to Persona Menu", Data: "back"}},
			},
		}
	case EffectGenerateScene:
		if genErr != nil {
			rec.Wizard.Step = StepSceneGenGenre
			return m.sceneGenMenu("Sorry, I couldn't generate a scene right now. Pick a genre to try again:")
		}
		rec.Wizard.Step = StepSceneReview
		rec.Wizard.Draft.SceneText = strings.TrimSpace(text)
		return Reply{
			Text: "Generated scene:\n\n" + rec.Wizard.Draft.SceneText,
			Choices: []bus.ChoiceRow{
				{{Label: "✅ Use This Scene", Data: "scene_use"}},
				{{Label: "« Back to Scenery Menu", Data: "back"}},
			},
		}
	}
	return Reply{}
}

type handler func(m *Machine, rec *schema.SessionRecord, in Input) (Reply, Effect, error)

// transitions is the state table: each step maps to the handler that
// interprets input for that step. Universal cancel is layered above in
// Handle.
var transitions = map[schema.Step]handler{
	StepMainMenu:           (*Machine).onMainMenu,
	StepAwaitingName:       (*Machine).onAwaitingName,
	StepAwaitingProfile:    (*Machine).onAwaitingProfile,
	StepPersonaList:        (*Machine).onPersonaList,
	StepPersonaCustomName:  (*Machine).onPersonaCustomName,
	StepPersonaCustomDesc:  (*Machine).onPersonaCustomDesc,
	StepPersonaGenCategory: (*Machine).onPersonaGenCategory,
	StepPersonaReview:      (*Machine).onPersonaReview,
	StepSceneList:          (*Machine).onSceneList,
	StepSceneCustom:        (*Machine).onSceneCustom,
	StepSceneGenGenre:      (*Machine).onSceneGenGenre,
	StepSceneReview:        (*Machine).onSceneReview,
	StepMemoryToggle:       (*Machine).onMemoryToggle,
	StepGenerating:         (*Machine).onGenerating,
	StepDeleteMenu:         (*Machine).onDeleteMenu,
}

func invalid(hint string) (Reply, Effect, error) {
	return Reply{Text: hint}, Effect{}, ErrInvalidInput
}

func (m *Machine) mainMenu(rec *schema.SessionRecord) Reply {
	name := rec.UserName
	if name == "" {
		name = "not set"
	}
	persona := rec.Persona.Name
	if rec.Persona.IsZero() {
		persona = "default"
	}
	scene := rec.Scene.Name
	if rec.Scene.IsZero() {
		scene = "default"
	}
	memory := "on"
	if !rec.MemoryEnabled {
		memory = "off"
	}
	return Reply{
		Text: fmt.Sprintf("Setup — what shall we adjust?\nName: %s · Persona: %s · Scene: %s · Memory: %s", name, persona, scene, memory),
		Choices: []bus.ChoiceRow{
			{{Label: "👤 Your Name", Data: "menu_name"}, {Label: "📝 Your Profile", Data: "menu_profile"}},
			{{Label: "🎭 Persona", Data: "menu_persona"}, {Label: "🏞 Scenery", Data: "menu_scene"}},
			{{Label: "🧠 Memory", Data: "menu_memory"}},
			{{Label: "✔️ Done", Data: "cancel"}},
		},
	}
}

func (m *Machine) onMainMenu(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	if !in.Selection {
		return invalid("Please pick one of the menu options, or /cancel to close setup.")
	}
	switch in.Text {
	case "menu_name":
		rec.Wizard.Step = StepAwaitingName
		return Reply{Text: "What should I call you?"}, Effect{}, nil
	case "menu_profile":
		rec.Wizard.Step = StepAwaitingProfile
		return Reply{Text: "Describe your character: appearance, personality, anything I should know."}, Effect{}, nil
	case "menu_persona":
		rec.Wizard.Step = StepPersonaList
		return m.personaList(rec), Effect{}, nil
	case "menu_scene":
		rec.Wizard.Step = StepSceneList
		return m.sceneList(), Effect{}, nil
	case "menu_memory":
		rec.Wizard.Step = StepMemoryToggle
		return m.memoryMenu(rec), Effect{}, nil
	}
	return invalid("That option isn't on the menu.")
}

func (m *Machine) onAwaitingName(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	name := strings.TrimSpace(in.Text)
	if in.Selection || name == "" {
		return invalid("Please type a name as a plain message.")
	}
	rec.UserName = name
	rec.Wizard.Step = StepMainMenu
	reply := m.mainMenu(rec)
	reply.Text = fmt.Sprintf("Got it, %s.\n\n%s", name, reply.Text)
	return reply, Effect{}, nil
}

func (m *Machine) onAwaitingProfile(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	profile := strings.TrimSpace(in.Text)
	if in.Selection || profile == "" {
		return invalid("Please describe your character as a plain message.")
	}
	rec.UserProfile = profile
	rec.Wizard.Step = StepMainMenu
	reply := m.mainMenu(rec)
	reply.Text = "Profile saved.\n\n" + reply.Text
	return reply, Effect{}, nil
}

func (m *Machine) personaList(rec *schema.SessionRecord) Reply {
	var rows []bus.ChoiceRow
	for _, e := range m.catalog.Personas() {
		rows = append(rows, bus.ChoiceRow{{Label: e.Name, Data: "persona_builtin:" + e.ID}})
	}
	for _, p := range rec.CustomPersonas {
		rows = append(rows, bus.ChoiceRow{{Label: "⭐ " + p.Name, Data: "persona_custom:" + p.Name}})
	}
	rows = append(rows,
		bus.ChoiceRow{{Label: "🎲 Surprise Me!", Data: "persona_surprise"}},
		bus.ChoiceRow{{Label: "➕ Create Custom Persona", Data: "persona_new"}},
		bus.ChoiceRow{{Label: "« Back", Data: "back"}},
	)
	return Reply{Text: "Choose a persona for me to play:", Choices: rows}
}

func (m *Machine) onPersonaList(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	if !in.Selection {
		return invalid("Please pick a persona from the list.")
	}
	switch {
	case in.Text == "back":
		rec.Wizard.Step = StepMainMenu
		return m.mainMenu(rec), Effect{}, nil
	case in.Text == "persona_new":
		rec.Wizard.Step = StepPersonaCustomName
		return Reply{Text: "What is your custom persona's name?"}, Effect{}, nil
	case in.Text == "persona_surprise":
		rec.Wizard.Step = StepPersonaGenCategory
		return m.personaGenMenu("Please choose a category for your surprise persona:"), Effect{}, nil
	case strings.HasPrefix(in.Text, "persona_builtin:"):
		id := strings.TrimPrefix(in.Text, "persona_builtin:")
		p, ok := m.catalog.PersonaByID(id)
		if !ok {
			return invalid("That persona no longer exists; pick another.")
		}
		rec.Persona = p
		rec.Wizard.Step = StepMainMenu
		reply := m.mainMenu(rec)
		reply.Text = fmt.Sprintf("Persona set to %s.\n\n%s", p.Name, reply.Text)
		return reply, Effect{}, nil
	case strings.HasPrefix(in.Text, "persona_custom:"):
		name := strings.TrimPrefix(in.Text, "persona_custom:")
		p, ok := rec.FindCustomPersona(name)
		if !ok {
			return invalid("That persona no longer exists; pick another.")
		}
		rec.Persona = p
		rec.Wizard.Step = StepMainMenu
		reply := m.mainMenu(rec)
		reply.Text = fmt.Sprintf("Persona set to %s.\n\n%s", p.Name, reply.Text)
		return reply, Effect{}, nil
	}
	return invalid("That option isn't on the persona menu.")
}

func (m *Machine) onPersonaCustomName(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	name := strings.TrimSpace(in.Text)
	if in.Selection || name == "" {
		return invalid("Please type the persona's name as a plain message.")
	}
	rec.Wizard.Draft.PersonaName = name
	rec.Wizard.Step = StepPersonaCustomDesc
	return Reply{Text: fmt.Sprintf("Now describe %s: personality, backstory, how they speak.", name)}, Effect{}, nil
}

func (m *Machine) onPersonaCustomDesc(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	desc := strings.TrimSpace(in.Text)
	if in.Selection || desc == "" {
		return invalid("Please describe the persona as a plain message.")
	}
	p := schema.CustomPersona(rec.Wizard.Draft.PersonaName, desc)
	rec.UpsertCustomPersona(p)
	rec.Persona = p
	rec.Wizard.Step = StepMainMenu
	rec.Wizard.Draft = schema.WizardDraft{}
	reply := m.mainMenu(rec)
	reply.Text = fmt.Sprintf("Persona %s saved and activated.\n\n%s", p.Name, reply.Text)
	return reply, Effect{}, nil
}

func (m *Machine) personaGenMenu(text string) Reply {
	var rows []bus.ChoiceRow
	for _, c := range content.PersonaCategories() {
		rows = append(rows, bus.ChoiceRow{{Label: c.Label, Data: "persona_gen:" + c.ID}})
	}
	rows = append(rows, bus.ChoiceRow{{Label: "« Back", Data: "back"}})
	return Reply{Text: text, Choices: rows}
}

func (m *Machine) onPersonaGenCategory(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	if !in.Selection {
		return invalid("Please pick a category from the list.")
	}
	if in.Text == "back" {
		rec.Wizard.Step = StepPersonaList
		return m.personaList(rec), Effect{}, nil
	}
	if id, ok := strings.CutPrefix(in.Text, "persona_gen:"); ok {
		prompt, err := content.PersonaGenPrompt(id)
		if err != nil {
			return invalid("That category isn't available.")
		}
		rec.Wizard.Step = StepGenerating
		rec.Wizard.Draft.GenCategory = id
		return Reply{Text: "Your persona request is in the queue. I'll send it when it's ready."},
			Effect{Kind: EffectGeneratePersona, Prompt: prompt}, nil
	}
	return invalid("That option isn't on the category menu.")
}

func (m *Machine) onPersonaReview(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	if !in.Selection {
		return invalid("Please choose whether to use the generated persona.")
	}
	switch in.Text {
	case "persona_use":
		rec.Persona = schema.GeneratedPersona(rec.Wizard.Draft.PersonaName, rec.Wizard.Draft.PersonaPrompt)
		rec.Wizard.Step = StepMainMenu
		rec.Wizard.Draft = schema.WizardDraft{}
		reply := m.mainMenu(rec)
		reply.Text = fmt.Sprintf("Persona set to %s.\n\n%s", rec.Persona.Name, reply.Text)
		return reply, Effect{}, nil
	case "back":
		rec.Wizard.Step = StepPersonaList
		rec.Wizard.Draft = schema.WizardDraft{}
		return m.personaList(rec), Effect{}, nil
	}
	return invalid("That option isn't available here.")
}

func (m *Machine) sceneList() Reply {
	var rows []bus.ChoiceRow
	for _, e := range m.catalog.Scenes() {
		rows = append(rows, bus.ChoiceRow{{Label: e.Name, Data: "scene_builtin:" + e.ID}})
	}
	rows = append(rows,
		bus.ChoiceRow{{Label: "🎲 Surprise Me!", Data: "scene_surprise"}},
		bus.ChoiceRow{{Label: "➕ Describe Your Own", Data: "scene_new"}},
		bus.ChoiceRow{{Label: "« Back", Data: "back"}},
	)
	return Reply{Text: "Choose a scene for our story:", Choices: rows}
}

func (m *Machine) onSceneList(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	if !in.Selection {
		return invalid("Please pick a scene from the list.")
	}
	switch {
	case in.Text == "back":
		rec.Wizard.Step = StepMainMenu
		return m.mainMenu(rec), Effect{}, nil
	case in.Text == "scene_new":
		rec.Wizard.Step = StepSceneCustom
		return Reply{Text: "Describe the scene where our story takes place."}, Effect{}, nil
	case in.Text == "scene_surprise":
		rec.Wizard.Step = StepSceneGenGenre
		return m.sceneGenMenu("Please choose a genre/archetype for the generated scene:"), Effect{}, nil
	case strings.HasPrefix(in.Text, "scene_builtin:"):
		id := strings.TrimPrefix(in.Text, "scene_builtin:")
		s, ok := m.catalog.SceneByID(id)
		if !ok {
			return invalid("That scene no longer exists; pick another.")
		}
		rec.Scene = s
		rec.Wizard.Step = StepMainMenu
		reply := m.mainMenu(rec)
		reply.Text = fmt.Sprintf("Scene set to %s.\n\n%s", s.Name, reply.Text)
		return reply, Effect{}, nil
	}
	return invalid("That option isn't on the scenery menu.")
}

func (m *Machine) onSceneCustom(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	text := strings.TrimSpace(in.Text)
	if in.Selection || text == "" {
		return invalid("Please describe the scene as a plain message.")
	}
	rec.Scene = schema.CustomScene(text)
	rec.Wizard.Step = StepMainMenu
	reply := m.mainMenu(rec)
	reply.Text = "Custom scene saved.\n\n" + reply.Text
	return reply, Effect{}, nil
}

func (m *Machine) sceneGenMenu(text string) Reply {
	var rows []bus.ChoiceRow
	for _, g := range content.SceneGenres() {
		rows = append(rows, bus.ChoiceRow{{Label: g.Label, Data: "scene_gen:" + g.ID}})
	}
	rows = append(rows, bus.ChoiceRow{{Label: "« Back", Data: "back"}})
	return Reply{Text: text, Choices: rows}
}

func (m *Machine) onSceneGenGenre(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	if !in.Selection {
		return invalid("Please pick a genre from the list.")
	}
	if in.Text == "back" {
		rec.Wizard.Step = StepSceneList
		return m.sceneList(), Effect{}, nil
	}
	if id, ok := strings.CutPrefix(in.Text, "scene_gen:"); ok {
		prompt, err := content.SceneGenPrompt(id)
		if err != nil {
			return invalid("That genre isn't available.")
		}
		rec.Wizard.Step = StepGenerating
		rec.Wizard.Draft.GenGenre = id
		return Reply{Text: "Your scene request is in the queue. I'll send it when it's ready."},
			Effect{Kind: EffectGenerateScene, Prompt: prompt}, nil
	}
	return invalid("That option isn't on the genre menu.")
}

func (m *Machine) onSceneReview(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	if !in.Selection {
		return invalid("Please choose whether to use the generated scene.")
	}
	switch in.Text {
	case "scene_use":
		rec.Scene = schema.GeneratedScene(rec.Wizard.Draft.SceneText)
		rec.Wizard.Step = StepMainMenu
		rec.Wizard.Draft = schema.WizardDraft{}
		reply := m.mainMenu(rec)
		reply.Text = "Generated scene activated.\n\n" + reply.Text
		return reply, Effect{}, nil
	case "back":
		rec.Wizard.Step = StepSceneList
		rec.Wizard.Draft = schema.WizardDraft{}
		return m.sceneList(), Effect{}, nil
	}
	return invalid("That option isn't available here.")
}

func (m *Machine) memoryMenu(rec *schema.SessionRecord) Reply {
	state := "enabled"
	if !rec.MemoryEnabled {
		state = "disabled"
	}
	return Reply{
		Text: fmt.Sprintf("Long-term memory is currently %s. When enabled, I periodically distil our story into a summary I keep across sessions.", state),
		Choices: []bus.ChoiceRow{
			{{Label: "🧠 Enable", Data: "memory_on"}, {Label: "🚫 Disable", Data: "memory_off"}},
			{{Label: "« Back", Data: "back"}},
		},
	}
}

func (m *Machine) onMemoryToggle(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	if !in.Selection {
		return invalid("Please pick an option from the memory menu.")
	}
	switch in.Text {
	case "memory_on", "memory_off":
		rec.MemoryEnabled = in.Text == "memory_on"
		rec.Wizard.Step = StepMainMenu
		state := "enabled"
		if !rec.MemoryEnabled {
			state = "disabled"
		}
		reply := m.mainMenu(rec)
		reply.Text = fmt.Sprintf("Long-term memory %s.\n\n%s", state, reply.Text)
		return reply, Effect{}, nil
	case "back":
		rec.Wizard.Step = StepMainMenu
		return m.mainMenu(rec), Effect{}, nil
	}
	return invalid("That option isn't on the memory menu.")
}

func (m *Machine) onGenerating(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	return invalid("Still working on your request — give me a moment, or /cancel to stop waiting.")
}

func (m *Machine) onDeleteMenu(rec *schema.SessionRecord, in Input) (Reply, Effect, error) {
	if !in.Selection {
		return invalid("Please pick what to delete, or /cancel.")
	}
	switch in.Text {
	case "delete_history":
		rec.Wizard = nil
		return Reply{Text: "Chat history deleted. Your setup and memory are untouched."},
			Effect{Kind: EffectClearHistory}, nil
	case "delete_all":
		rec.Wizard = nil
		return Reply{Text: "Everything deleted. We start from a blank page — say hi to begin again."},
			Effect{Kind: EffectDeleteChat}, nil
	}
	return invalid("That option isn't on the delete menu.")
}
