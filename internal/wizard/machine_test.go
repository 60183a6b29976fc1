package wizard

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/velvetfox/velvetfox/internal/content"
	"github.com/velvetfox/velvetfox/internal/schema"
)

func newMachine() *Machine {
	return New(content.NewCatalog())
}

func newRecord() *schema.SessionRecord {
	return schema.NewSessionRecord("telegram", "chat-1")
}

func selection(data string) Input { return Input{Text: data, Selection: true} }
func text(s string) Input         { return Input{Text: s} }

func mustHandle(t *testing.T, m *Machine, rec *schema.SessionRecord, in Input) (Reply, Effect) {
	t.Helper()
	reply, effect, err := m.Handle(rec, in)
	if err != nil {
		t.Fatalf("handle %+v at step %s: %v", in, rec.Wizard.Step, err)
	}
	return reply, effect
}

func TestStart_MainMenu(t *testing.T) {
	m, rec := newMachine(), newRecord()
	reply := m.Start(rec)

	if rec.Wizard == nil || rec.Wizard.Step != StepMainMenu {
		t.Fatalf("expected main menu, got %+v", rec.Wizard)
	}
	if len(reply.Choices) == 0 {
		t.Error("main menu should offer choices")
	}
}

func TestNameFlow(t *testing.T) {
	m, rec := newMachine(), newRecord()
	m.Start(rec)

	mustHandle(t, m, rec, selection("menu_name"))
	if rec.Wizard.Step != StepAwaitingName {
		t.Fatalf("step = %s", rec.Wizard.Step)
	}

	// A selection is not a name.
	if _, _, err := m.Handle(rec, selection("menu_name")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if rec.Wizard.Step != StepAwaitingName {
		t.Error("invalid input must not change state")
	}

	mustHandle(t, m, rec, text("  Alice  "))
	if rec.UserName != "Alice" {
		t.Errorf("name = %q", rec.UserName)
	}
	if rec.Wizard.Step != StepMainMenu {
		t.Errorf("should return to main menu, got %s", rec.Wizard.Step)
	}
}

func TestBuiltinPersonaSelection(t *testing.T) {
	m, rec := newMachine(), newRecord()
	m.Start(rec)

	reply, _ := mustHandle(t, m, rec, selection("menu_persona"))
	if rec.Wizard.Step != StepPersonaList {
		t.Fatalf("step = %s", rec.Wizard.Step)
	}
	if len(reply.Choices) == 0 {
		t.Fatal("persona list should offer choices")
	}

	mustHandle(t, m, rec, selection("persona_builtin:sarcastic-friend"))
	if rec.Persona.Kind != schema.SourceBuiltin || rec.Persona.ID != "sarcastic-friend" {
		t.Errorf("persona = %+v", rec.Persona)
	}
	if rec.Wizard.Step != StepMainMenu {
		t.Errorf("should return to main menu, got %s", rec.Wizard.Step)
	}
}

func TestCustomPersonaFlow(t *testing.T) {
	m, rec := newMachine(), newRecord()
	m.Start(rec)

	mustHandle(t, m, rec, selection("menu_persona"))
	mustHandle(t, m, rec, selection("persona_new"))
	mustHandle(t, m, rec, text("Captain Vex"))
	if rec.Wizard.Step != StepPersonaCustomDesc {
		t.Fatalf("step = %s", rec.Wizard.Step)
	}
	mustHandle(t, m, rec, text("A weathered starship captain with a dry wit."))

	if rec.Persona.Kind != schema.SourceCustom || rec.Persona.Name != "Captain Vex" {
		t.Errorf("persona = %+v", rec.Persona)
	}
	if _, ok := rec.FindCustomPersona("Captain Vex"); !ok {
		t.Error("custom persona should be stored for reuse")
	}
	if rec.Wizard.Draft != (schema.WizardDraft{}) {
		t.Error("draft should be cleared after commit")
	}
}

func TestSurprisePersonaFlow(t *testing.T) {
	m, rec := newMachine(), newRecord()
	m.Start(rec)

	mustHandle(t, m, rec, selection("menu_persona"))
	mustHandle(t, m, rec, selection("persona_surprise"))
	if rec.Wizard.Step != StepPersonaGenCategory {
		t.Fatalf("step = %s", rec.Wizard.Step)
	}

	_, effect := mustHandle(t, m, rec, selection("persona_gen:rogue"))
	if effect.Kind != EffectGeneratePersona {
		t.Fatalf("effect = %v", effect.Kind)
	}
	if !strings.Contains(effect.Prompt, "NAME:") {
		t.Error("generation prompt missing format contract")
	}
	if rec.Wizard.Step != StepGenerating {
		t.Fatalf("step = %s", rec.Wizard.Step)
	}

	// Messages while parked are rejected without losing the state.
	if _, _, err := m.Handle(rec, text("are you done yet")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if rec.Wizard.Step != StepGenerating {
		t.Error("state must stay parked while generating")
	}

	m.CompleteGeneration(rec, EffectGeneratePersona, "NAME: Silas\n###\nPROMPT: You are role-playing as Silas...", nil)
	if rec.Wizard.Step != StepPersonaReview {
		t.Fatalf("step = %s", rec.Wizard.Step)
	}

	mustHandle(t, m, rec, selection("persona_use"))
	if rec.Persona.Kind != schema.SourceGenerated || rec.Persona.Name != "Silas" {
		t.Errorf("persona = %+v", rec.Persona)
	}
}

func TestCompleteGeneration_MalformedPersonaRetries(t *testing.T) {
	m, rec := newMachine(), newRecord()
	m.Start(rec)
	mustHandle(t, m, rec, selection("menu_persona"))
	mustHandle(t, m, rec, selection("persona_surprise"))
	mustHandle(t, m, rec, selection("persona_gen:sfw"))

	reply := m.CompleteGeneration(rec, EffectGeneratePersona, "no separator here", nil)
	if rec.Wizard.Step != StepPersonaGenCategory {
		t.Fatalf("malformed result should return to category menu, got %s", rec.Wizard.Step)
	}
	if len(reply.Choices) == 0 {
		t.Error("retry menu should offer categories")
	}
}

func TestSceneGenerationFlow(t *testing.T) {
	m, rec := newMachine(), newRecord()
	m.Start(rec)

	mustHandle(t, m, rec, selection("menu_scene"))
	mustHandle(t, m, rec, selection("scene_surprise"))
	_, effect := mustHandle(t, m, rec, selection("scene_gen:horror"))
	if effect.Kind != EffectGenerateScene {
		t.Fatalf("effect = %v", effect.Kind)
	}

	m.CompleteGeneration(rec, EffectGenerateScene, "  A fog-drowned lighthouse at the edge of the world. ", nil)
	if rec.Wizard.Step != StepSceneReview {
		t.Fatalf("step = %s", rec.Wizard.Step)
	}

	mustHandle(t, m, rec, selection("scene_use"))
	if rec.Scene.Kind != schema.SourceGenerated {
		t.Errorf("scene = %+v", rec.Scene)
	}
	if rec.Scene.Text != "A fog-drowned lighthouse at the edge of the world." {
		t.Errorf("scene text = %q", rec.Scene.Text)
	}
}

func TestMemoryToggle(t *testing.T) {
	m, rec := newMachine(), newRecord()
	m.Start(rec)

	mustHandle(t, m, rec, selection("menu_memory"))
	mustHandle(t, m, rec, selection("memory_off"))
	if rec.MemoryEnabled {
		t.Error("memory should be disabled")
	}
	if rec.Wizard.Step != StepMainMenu {
		t.Errorf("should return to main menu, got %s", rec.Wizard.Step)
	}
}

func TestCancel_FromEveryStep(t *testing.T) {
	steps := []schema.Step{
		StepMainMenu, StepAwaitingName, StepAwaitingProfile, StepPersonaList,
		StepPersonaCustomName, StepPersonaCustomDesc, StepPersonaGenCategory,
		StepPersonaReview, StepSceneList, StepSceneCustom, StepSceneGenGenre,
		StepSceneReview, StepMemoryToggle, StepGenerating, StepDeleteMenu,
	}
	m := newMachine()
	for _, step := range steps {
		rec := newRecord()
		rec.Wizard = &schema.WizardState{Step: step, Draft: schema.WizardDraft{PersonaName: "leftover"}}

		if _, _, err := m.Handle(rec, selection("cancel")); err != nil {
			t.Errorf("cancel from %s: %v", step, err)
			continue
		}
		if rec.Wizard != nil {
			t.Errorf("cancel from %s should discard the wizard state", step)
		}
	}
}

func TestWizardState_PersistenceRoundTrip(t *testing.T) {
	m, rec := newMachine(), newRecord()
	m.Start(rec)
	mustHandle(t, m, rec, selection("menu_persona"))
	mustHandle(t, m, rec, selection("persona_new"))
	mustHandle(t, m, rec, text("Captain Vex"))

	// Simulate restart: round-trip the record through its JSON encoding.
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	var restored schema.SessionRecord
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatal(err)
	}
	if restored.Wizard == nil || restored.Wizard.Step != StepPersonaCustomDesc {
		t.Fatalf("restored wizard = %+v", restored.Wizard)
	}
	if restored.Wizard.Draft.PersonaName != "Captain Vex" {
		t.Errorf("draft lost on round-trip: %+v", restored.Wizard.Draft)
	}

	// The flow continues exactly where it stopped.
	mustHandle(t, m, &restored, text("A weathered starship captain."))
	if restored.Persona.Name != "Captain Vex" {
		t.Errorf("persona = %+v", restored.Persona)
	}
}

func TestUnknownPersistedStep_ResetsToMainMenu(t *testing.T) {
	m, rec := newMachine(), newRecord()
	rec.Wizard = &schema.WizardState{Step: "stale_step_from_old_version"}

	mustHandle(t, m, rec, text("hello"))
	if rec.Wizard == nil || rec.Wizard.Step != StepMainMenu {
		t.Fatalf("expected reset to main menu, got %+v", rec.Wizard)
	}
}

func TestDeleteMenu(t *testing.T) {
	m, rec := newMachine(), newRecord()
	m.StartDelete(rec)
	if rec.Wizard.Step != StepDeleteMenu {
		t.Fatalf("step = %s", rec.Wizard.Step)
	}

	_, effect := mustHandle(t, m, rec, selection("delete_history"))
	if effect.Kind != EffectClearHistory {
		t.Errorf("effect = %v", effect.Kind)
	}
	if rec.Wizard != nil {
		t.Error("wizard should close after delete choice")
	}

	rec2 := newRecord()
	m.StartDelete(rec2)
	_, effect = mustHandle(t, m, rec2, selection("delete_all"))
	if effect.Kind != EffectDeleteChat {
		t.Errorf("effect = %v", effect.Kind)
	}
}
