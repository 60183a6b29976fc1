package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Provider.Model != def.Provider.Model {
		t.Errorf("expected default model %q, got %q", def.Provider.Model, cfg.Provider.Model)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"provider": map[string]any{
			"model":     "mistral-7b",
			"maxTokens": 512,
		},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.Model != "mistral-7b" {
		t.Errorf("expected model %q, got %q", "mistral-7b", cfg.Provider.Model)
	}
	if cfg.Provider.MaxTokens != 512 {
		t.Errorf("expected maxTokens 512, got %d", cfg.Provider.MaxTokens)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for invalid JSON (falls back to default), got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Provider.APIBase != def.Provider.APIBase {
		t.Errorf("expected default apiBase %q, got %q", def.Provider.APIBase, cfg.Provider.APIBase)
	}
}

func TestLoad_PartialConfig_UsesDefaults(t *testing.T) {
	dir := t.TempDir()
	// Only set one field; the rest should come from DefaultConfig.
	path := writeConfig(t, dir, map[string]any{
		"memory": map[string]any{
			"historyWindow": 8,
		},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := DefaultConfig()
	if cfg.Memory.HistoryWindow != 8 {
		t.Errorf("expected historyWindow 8, got %d", cfg.Memory.HistoryWindow)
	}
	if cfg.Memory.ConsolidationThreshold != def.Memory.ConsolidationThreshold {
		t.Errorf("expected default threshold %d, got %d",
			def.Memory.ConsolidationThreshold, cfg.Memory.ConsolidationThreshold)
	}
	if cfg.Queue.Capacity != def.Queue.Capacity {
		t.Errorf("expected default capacity %d, got %d", def.Queue.Capacity, cfg.Queue.Capacity)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := DefaultConfig()
	original.Provider.Model = "qwen2.5-14b"
	original.Queue.Capacity = 7

	if err := Save(&original, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Provider.Model != original.Provider.Model {
		t.Errorf("model mismatch: got %q, want %q", loaded.Provider.Model, original.Provider.Model)
	}
	if loaded.Queue.Capacity != original.Queue.Capacity {
		t.Errorf("capacity mismatch: got %d, want %d", loaded.Queue.Capacity, original.Queue.Capacity)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dir", "config.json")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestDatabasePath_UsesDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/vfox-test"
	if got := cfg.DatabasePath(); got != filepath.Join("/tmp/vfox-test", "velvetfox.db") {
		t.Errorf("unexpected database path: %q", got)
	}
}
