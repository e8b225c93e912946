package retrieval

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Weights.Transcript != 0.5 || cfg.Weights.Notes != 0.3 || cfg.Weights.OCR != 0.2 {
		t.Fatalf("unexpected three-way weights: %+v", cfg.Weights)
	}
	if cfg.Weights.TwoWayPrimary != 0.6 || cfg.Weights.TwoWaySecondary != 0.4 {
		t.Fatalf("unexpected two-way weights: %+v", cfg.Weights)
	}
	if cfg.K.Transcript != 3 || cfg.K.Notes != 5 || cfg.K.OCR != 3 {
		t.Fatalf("unexpected retrieval depths: %+v", cfg.K)
	}
}

func TestConfigFromEnvUnset(t *testing.T) {
	t.Setenv("RETRIEVAL_CONFIG_PATH", "")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("unset path should not error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("unset path should return defaults, got %+v", cfg)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retrieval.yaml")
	raw := []byte("weights:\n  transcript: 0.7\n  notes: 0.2\n  ocr: 0.1\nk:\n  transcript: 8\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RETRIEVAL_CONFIG_PATH", path)

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Weights.Transcript != 0.7 || cfg.Weights.Notes != 0.2 || cfg.Weights.OCR != 0.1 {
		t.Fatalf("overrides not applied: %+v", cfg.Weights)
	}
	if cfg.K.Transcript != 8 {
		t.Fatalf("k override not applied: %+v", cfg.K)
	}
	// Untouched fields keep their defaults.
	if cfg.Weights.TwoWayPrimary != 0.6 || cfg.K.Notes != 5 {
		t.Fatalf("defaults lost on partial override: %+v", cfg)
	}
}

func TestConfigFromEnvInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retrieval.yaml")
	if err := os.WriteFile(path, []byte("weights:\n  transcript: -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RETRIEVAL_CONFIG_PATH", path)

	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected validation error for non-positive weight")
	}
}

func TestConfigFromEnvMissingFile(t *testing.T) {
	t.Setenv("RETRIEVAL_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("expected error for unreadable config path")
	}
}
