package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DefaultCollection != "default" {
		t.Errorf("DefaultCollection = %q, want %q", cfg.DefaultCollection, "default")
	}
	if cfg.MaxSummaryLength != 2000 {
		t.Errorf("MaxSummaryLength = %d, want 2000", cfg.MaxSummaryLength)
	}
	if cfg.Vector.Backend != "local" {
		t.Errorf("Vector.Backend = %q, want %q", cfg.Vector.Backend, "local")
	}
	if cfg.FetchTimeoutSecs != 60 {
		t.Errorf("FetchTimeoutSecs = %d, want 60", cfg.FetchTimeoutSecs)
	}
}

func TestStoreDir(t *testing.T) {
	if dir, err := StoreDir("/explicit/path"); err != nil || dir != "/explicit/path" {
		t.Errorf("StoreDir(override) = %q, %v", dir, err)
	}

	t.Setenv(EnvStore, "/env/path")
	if dir, err := StoreDir(""); err != nil || dir != "/env/path" {
		t.Errorf("StoreDir(env) = %q, %v", dir, err)
	}

	t.Setenv(EnvStore, "")
	dir, err := StoreDir("")
	if err != nil {
		t.Fatalf("StoreDir(default): %v", err)
	}
	if filepath.Base(dir) != ".keep" {
		t.Errorf("StoreDir(default) = %q, want */.keep", dir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultCollection != "default" {
		t.Errorf("expected defaults when config.json is missing, got %+v", cfg)
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	data := `{
		"default_collection": "notes",
		"max_summary_length": 500,
		"embedding": {"name": "ollama", "model": "nomic-embed-text"},
		"vector": {"backend": "qdrant", "url": "http://localhost:6333"},
		"default_tags": {"host": "laptop"}
	}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultCollection != "notes" {
		t.Errorf("DefaultCollection = %q", cfg.DefaultCollection)
	}
	if cfg.MaxSummaryLength != 500 {
		t.Errorf("MaxSummaryLength = %d", cfg.MaxSummaryLength)
	}
	// Untouched fields keep defaults.
	if cfg.EmbedTimeoutSecs != 30 {
		t.Errorf("EmbedTimeoutSecs = %d, want 30", cfg.EmbedTimeoutSecs)
	}
	if cfg.Embedding.Name != "ollama" || cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("Embedding = %+v", cfg.Embedding)
	}
	if cfg.Vector.Backend != "qdrant" || cfg.Vector.URL != "http://localhost:6333" {
		t.Errorf("Vector = %+v", cfg.Vector)
	}
	if cfg.DefaultTags["host"] != "laptop" {
		t.Errorf("DefaultTags = %v", cfg.DefaultTags)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected error for invalid config.json")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("KEEP_TEST_ENV_VAL=hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KEEP_TEST_ENV_VAL", "")
	os.Unsetenv("KEEP_TEST_ENV_VAL")

	if _, err := Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := os.Getenv("KEEP_TEST_ENV_VAL"); got != "hello" {
		t.Errorf("dotenv value = %q, want %q", got, "hello")
	}
}

func TestMergeSlicesAndMaps(t *testing.T) {
	base := &Config{
		DefaultTags:   map[string]string{"a": "1", "b": "2"},
		DisabledTools: []string{"keep_delete"},
	}
	overlay := &Config{
		DefaultTags:   map[string]string{"b": "3"},
		DisabledTools: []string{"keep_delete", "keep_put"},
	}
	merged := Merge(base, overlay)
	if merged.DefaultTags["a"] != "1" || merged.DefaultTags["b"] != "3" {
		t.Errorf("DefaultTags = %v", merged.DefaultTags)
	}
	if len(merged.DisabledTools) != 2 {
		t.Errorf("DisabledTools = %v", merged.DisabledTools)
	}
}
