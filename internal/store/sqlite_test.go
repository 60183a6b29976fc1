package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/velvetfox/velvetfox/internal/schema"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecentTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, turn := range []struct{ role, content string }{
		{"user", "hello"},
		{"assistant", "hi there"},
		{"user", "how are you?"},
	} {
		if err := s.AppendTurn(ctx, "tg:1", turn.role, turn.content); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	// A different chat must not leak in.
	if err := s.AppendTurn(ctx, "tg:2", "user", "other chat"); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := s.RecentTurns(ctx, "tg:1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Content != "hi there" || turns[1].Content != "how are you?" {
		t.Errorf("wrong window: %q, %q", turns[0].Content, turns[1].Content)
	}

	count, err := s.TurnCount(ctx, "tg:1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestTurnsAfter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, content := range []string{"a", "b", "c", "d"} {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if err := s.AppendTurn(ctx, "tg:1", role, content); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	turns, err := s.TurnsAfter(ctx, "tg:1", 2)
	if err != nil {
		t.Fatalf("turns after: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns past offset, got %d", len(turns))
	}
	if turns[0].Content != "c" || turns[1].Content != "d" {
		t.Errorf("wrong slice: %q, %q", turns[0].Content, turns[1].Content)
	}
}

func TestDeleteLastAssistantTurn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AppendTurn(ctx, "tg:1", "user", "hello")

	// Newest turn is a user turn: nothing to delete.
	ok, err := s.DeleteLastAssistantTurn(ctx, "tg:1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok {
		t.Error("deleted a user turn")
	}

	_ = s.AppendTurn(ctx, "tg:1", "assistant", "hi")
	ok, err = s.DeleteLastAssistantTurn(ctx, "tg:1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !ok {
		t.Fatal("expected assistant turn to be deleted")
	}

	turns, _ := s.RecentTurns(ctx, "tg:1", 0)
	if len(turns) != 1 || turns[0].Role != "user" {
		t.Errorf("unexpected remaining turns: %+v", turns)
	}
}

func TestDeleteLastAssistantTurn_ClampsWatermark(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AppendTurn(ctx, "tg:1", "user", "hello")
	_ = s.AppendTurn(ctx, "tg:1", "assistant", "hi")
	if _, err := s.SetSummary(ctx, "tg:1", "covers both turns", 2); err != nil {
		t.Fatalf("set summary: %v", err)
	}

	ok, err := s.DeleteLastAssistantTurn(ctx, "tg:1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !ok {
		t.Fatal("expected assistant turn to be deleted")
	}

	// One summarized turn is gone; the watermark must follow the rows down
	// or the next consolidation would skip a fresh turn.
	_, watermark, ok, err := s.GetSummary(ctx, "tg:1")
	if err != nil || !ok {
		t.Fatalf("get summary: ok=%v err=%v", ok, err)
	}
	if watermark != 1 {
		t.Errorf("expected watermark 1 after delete, got %d", watermark)
	}
}

func TestClearTurns_ResetsWatermark(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = s.AppendTurn(ctx, "tg:1", "user", "hello")
		_ = s.AppendTurn(ctx, "tg:1", "assistant", "hi")
	}
	if _, err := s.SetSummary(ctx, "tg:1", "long-term memory", 8); err != nil {
		t.Fatalf("set summary: %v", err)
	}

	if err := s.ClearTurns(ctx, "tg:1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	summary, watermark, ok, err := s.GetSummary(ctx, "tg:1")
	if err != nil || !ok {
		t.Fatalf("get summary: ok=%v err=%v", ok, err)
	}
	if summary != "long-term memory" {
		t.Errorf("summary must survive a clear, got %q", summary)
	}
	if watermark != 0 {
		t.Errorf("expected watermark 0 after clear, got %d", watermark)
	}

	// Post-clear consolidation counts fresh turns from zero again.
	_ = s.AppendTurn(ctx, "tg:1", "user", "fresh start")
	_ = s.AppendTurn(ctx, "tg:1", "assistant", "welcome back")
	applied, err := s.SetSummary(ctx, "tg:1", "updated memory", 2)
	if err != nil {
		t.Fatalf("set summary: %v", err)
	}
	if !applied {
		t.Error("write after clear should apply at the reset watermark")
	}
	turns, err := s.TurnsAfter(ctx, "tg:1", 0)
	if err != nil {
		t.Fatalf("turns after: %v", err)
	}
	if len(turns) != 2 {
		t.Errorf("expected 2 fresh turns past the reset watermark, got %d", len(turns))
	}
}

func TestSummaryWatermarkMonotone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	applied, err := s.SetSummary(ctx, "tg:1", "first summary", 15)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !applied {
		t.Fatal("initial write not applied")
	}

	// Re-running consolidation for an already-passed watermark is a no-op.
	applied, err = s.SetSummary(ctx, "tg:1", "stale summary", 15)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if applied {
		t.Error("write with equal watermark should not apply")
	}
	applied, err = s.SetSummary(ctx, "tg:1", "older summary", 10)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if applied {
		t.Error("write with lower watermark should not apply")
	}

	summary, watermark, ok, err := s.GetSummary(ctx, "tg:1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if summary != "first summary" || watermark != 15 {
		t.Errorf("summary corrupted: %q @ %d", summary, watermark)
	}

	// A higher watermark supersedes.
	applied, _ = s.SetSummary(ctx, "tg:1", "second summary", 30)
	if !applied {
		t.Fatal("advancing write not applied")
	}
	summary, watermark, _, _ = s.GetSummary(ctx, "tg:1")
	if summary != "second summary" || watermark != 30 {
		t.Errorf("advance failed: %q @ %d", summary, watermark)
	}
}

func TestGetSummary_Missing(t *testing.T) {
	s := newTestStore(t)
	_, _, ok, err := s.GetSummary(context.Background(), "tg:none")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing summary")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := schema.NewSessionRecord("telegram", "tg:1")
	rec.UserName = "Rowan"
	rec.Persona = schema.CustomPersona("Grix", "You are role-playing as Grix, a grumpy dwarf.")
	rec.Wizard = &schema.WizardState{
		Step:  "persona_custom_desc",
		Draft: schema.WizardDraft{PersonaName: "Grix"},
	}

	if err := s.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.GetSession(ctx, "tg:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded == nil {
		t.Fatal("session missing after save")
	}
	if loaded.UserName != "Rowan" || loaded.Persona.Name != "Grix" {
		t.Errorf("session fields lost: %+v", loaded)
	}
	if loaded.Wizard == nil || loaded.Wizard.Step != "persona_custom_desc" ||
		loaded.Wizard.Draft.PersonaName != "Grix" {
		t.Errorf("wizard state lost: %+v", loaded.Wizard)
	}
}

func TestGetSession_Missing(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.GetSession(context.Background(), "tg:none")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Error("expected nil for missing session")
	}
}

func TestDeleteChat_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.AppendTurn(ctx, "tg:1", "user", "hello")
	_, _ = s.SetSummary(ctx, "tg:1", "summary", 2)
	_ = s.SaveSession(ctx, schema.NewSessionRecord("telegram", "tg:1"))
	_ = s.AppendTurn(ctx, "tg:2", "user", "untouched")

	if err := s.DeleteChat(ctx, "tg:1"); err != nil {
		t.Fatalf("delete chat: %v", err)
	}

	if count, _ := s.TurnCount(ctx, "tg:1"); count != 0 {
		t.Errorf("turns not deleted: %d", count)
	}
	if _, _, ok, _ := s.GetSummary(ctx, "tg:1"); ok {
		t.Error("summary not deleted")
	}
	if rec, _ := s.GetSession(ctx, "tg:1"); rec != nil {
		t.Error("session not deleted")
	}
	if count, _ := s.TurnCount(ctx, "tg:2"); count != 1 {
		t.Error("unrelated chat was deleted")
	}
}
