package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Setenv(APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))
	t.Setenv(APIKeyEnvVar, "test_api_key")
	t.Setenv("MODEL", "test_model")
	t.Setenv("ENABLE_FILE_LOGGING", "true")
	t.Setenv("HOTKEY", "Ctrl+Shift+T")
	t.Setenv("DIM_AMOUNT", "0.7")
	t.Setenv("SCALE_FACTOR", "1.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.APIKey != "test_api_key" {
		t.Errorf("Expected APIKey to be 'test_api_key', got '%s'", cfg.APIKey)
	}
	if cfg.Model != "test_model" {
		t.Errorf("Expected Model to be 'test_model', got '%s'", cfg.Model)
	}
	if !cfg.EnableFileLogging {
		t.Errorf("Expected EnableFileLogging to be true, got %v", cfg.EnableFileLogging)
	}
	if cfg.Hotkey != "Ctrl+Shift+T" {
		t.Errorf("Expected Hotkey to be 'Ctrl+Shift+T', got '%s'", cfg.Hotkey)
	}
	if cfg.DimAmount != 0.7 {
		t.Errorf("Expected DimAmount 0.7, got %v", cfg.DimAmount)
	}
	if cfg.ScaleFactor != 1.25 {
		t.Errorf("Expected ScaleFactor 1.25, got %v", cfg.ScaleFactor)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"MODEL", "HOTKEY", "ENABLE_FILE_LOGGING", "CAPTURE_TIMEOUT_SEC", "API_DEADLINE_SEC", "DIM_AMOUNT", "SCALE_FACTOR"} {
		t.Setenv(k, "")
	}
	t.Setenv(APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))
	t.Setenv(APIKeyEnvVar, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != DefaultModel || cfg.Hotkey != DefaultHotkey {
		t.Errorf("unexpected defaults: model=%q hotkey=%q", cfg.Model, cfg.Hotkey)
	}
	if cfg.CaptureTimeoutSec != 5 || cfg.APIDeadlineSec != 20 {
		t.Errorf("unexpected timeouts: capture=%d api=%d", cfg.CaptureTimeoutSec, cfg.APIDeadlineSec)
	}
	if cfg.DimAmount != 0.5 || cfg.ScaleFactor != 0 || cfg.EnableFileLogging {
		t.Errorf("unexpected render defaults: %+v", cfg)
	}
}

func TestAPIKeyFileWinsOverEnv(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "gemini")
	if err := os.WriteFile(keyFile, []byte("  file_key\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))
	t.Setenv(APIKeyEnvVar, "env_key")

	cfg, err := LoadWithOptions(LoadOptions{APIKeyPathOverride: keyFile})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "file_key" || cfg.APIKeyPath != keyFile {
		t.Errorf("got key %q from %q, want file_key from %q", cfg.APIKey, cfg.APIKeyPath, keyFile)
	}
}

func TestResolveDimAmount(t *testing.T) {
	tests := map[string]float64{
		"":     0.5,
		"abc":  0.5,
		"0.25": 0.25,
		"-1":   0,
		"3":    1,
		" 1 ":  1,
	}
	for in, want := range tests {
		if got := resolveDimAmount(in); got != want {
			t.Errorf("resolveDimAmount(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPositiveIntRejectsInvalid(t *testing.T) {
	t.Setenv("API_DEADLINE_SEC", "-3")
	if got := positiveInt("API_DEADLINE_SEC", 20); got != 20 {
		t.Errorf("got %d, want default 20", got)
	}
	t.Setenv("API_DEADLINE_SEC", "45")
	if got := positiveInt("API_DEADLINE_SEC", 20); got != 45 {
		t.Errorf("got %d, want 45", got)
	}
}
