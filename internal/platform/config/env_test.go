package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port     int           `env:"MOODRING_TEST_PORT" envDefault:"123"`
	Interval time.Duration `env:"MOODRING_TEST_INTERVAL" envDefault:"60s"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("port = %d, want 123", cfg.Port)
	}
	if cfg.Interval != time.Minute {
		t.Fatalf("interval = %v, want %v", cfg.Interval, time.Minute)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("MOODRING_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadDotEnvIgnoresMissingFiles(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), ""); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "MOODRING_TEST_PORT=9000\nMOODRING_TEST_DOTENV_ONLY=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	t.Setenv("MOODRING_TEST_PORT", "7000")
	t.Setenv("MOODRING_TEST_DOTENV_ONLY", "")
	os.Unsetenv("MOODRING_TEST_DOTENV_ONLY")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("MOODRING_TEST_DOTENV_ONLY") })

	if got := os.Getenv("MOODRING_TEST_PORT"); got != "7000" {
		t.Fatalf("port = %q, want %q", got, "7000")
	}
	if got := os.Getenv("MOODRING_TEST_DOTENV_ONLY"); got != "from-file" {
		t.Fatalf("dotenv value = %q, want %q", got, "from-file")
	}
}
