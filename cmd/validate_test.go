package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig_EmptyPath_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Policy.Algorithm == "" {
		t.Error("expected default algorithm")
	}
}

func TestLoadConfig_InvalidValues_Rejected(t *testing.T) {
	// GIVEN a well-formed file with an out-of-range value
	path := filepath.Join(t.TempDir(), "router.yaml")
	if err := os.WriteFile(path, []byte("decisions:\n  shards: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// WHEN loaded
	_, err := loadConfig(path)

	// THEN validation fails and names the file
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("expected validation error naming %s, got %v", path, err)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.yaml")
	content := "policy:\n  algorithm: thompson\narms:\n  - id: a\n    target: a:80\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Policy.Algorithm != "thompson" || len(cfg.Arms) != 1 {
		t.Errorf("unexpected config %+v", cfg)
	}
}
