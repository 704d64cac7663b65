package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestConfig_LoadDefaults(t *testing.T) {
	viper.Reset()

	// Point HOME at an empty directory so no real config is found.
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	p, err := config.Profile(DefaultProfile)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}

	if p.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got '%s'", p.Host)
	}
	if p.Port != 8021 {
		t.Errorf("Expected default port 8021, got %d", p.Port)
	}
	if p.Password != "ClueCon" {
		t.Errorf("Expected default password 'ClueCon', got '%s'", p.Password)
	}
	if p.Color != "line" {
		t.Errorf("Expected default color 'line', got '%s'", p.Color)
	}
	if p.Timeout != 2*time.Second {
		t.Errorf("Expected default timeout 2s, got %v", p.Timeout)
	}
}

func TestConfig_LoadWithFile(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "fscli.yaml")
	configContent := `
profiles:
  default:
    host: "fs1.example.com"
    password: "hunter2"
  lab:
    host: "lab.example.com"
    port: 8022
    debug: 5
    color: "never"
    timeout: 5s
    events: ["CHANNEL_CREATE", "CHANNEL_HANGUP"]
`

	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	viper.Reset()
	config, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	def, err := config.Profile(DefaultProfile)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if def.Host != "fs1.example.com" {
		t.Errorf("Expected host 'fs1.example.com', got '%s'", def.Host)
	}
	if def.Password != "hunter2" {
		t.Errorf("Expected password 'hunter2', got '%s'", def.Password)
	}
	// Unset fields fall back to defaults.
	if def.Port != 8021 {
		t.Errorf("Expected fallback port 8021, got %d", def.Port)
	}

	lab, err := config.Profile("lab")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if lab.Host != "lab.example.com" {
		t.Errorf("Expected host 'lab.example.com', got '%s'", lab.Host)
	}
	if lab.Port != 8022 {
		t.Errorf("Expected port 8022, got %d", lab.Port)
	}
	if lab.Debug != 5 {
		t.Errorf("Expected debug 5, got %d", lab.Debug)
	}
	if lab.Color != "never" {
		t.Errorf("Expected color 'never', got '%s'", lab.Color)
	}
	if lab.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", lab.Timeout)
	}
	if len(lab.Events) != 2 || lab.Events[0] != "CHANNEL_CREATE" {
		t.Errorf("Expected two event types, got %v", lab.Events)
	}
}

func TestConfig_UnknownProfile(t *testing.T) {
	config := &Config{Profiles: map[string]Profile{DefaultProfile: {}}}

	if _, err := config.Profile("nonexistent"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestConfig_Names(t *testing.T) {
	config := &Config{Profiles: map[string]Profile{
		"prod":    {},
		"default": {},
		"lab":     {},
	}}

	names := config.Names()
	want := []string{"default", "lab", "prod"}
	if len(names) != len(want) {
		t.Fatalf("Expected %d names, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected names[%d]='%s', got '%s'", i, want[i], names[i])
		}
	}
}

func TestConfig_StarterFileWritten(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)

	viper.Reset()
	if _, err := Load(""); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	starter := filepath.Join(tempDir, ".config", "fscli.yaml")
	if _, err := os.Stat(starter); os.IsNotExist(err) {
		t.Error("Starter config file was not created")
	}
}

func TestConfig_LoadInvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "fscli.yaml")
	invalidYAML := `
profiles:
  default:
    host: invalid yaml content
      missing colon
malformed
`

	if err := os.WriteFile(configFile, []byte(invalidYAML), 0o644); err != nil {
		t.Fatalf("Failed to write invalid config file: %v", err)
	}

	viper.Reset()
	if _, err := Load(configFile); err == nil {
		t.Error("Expected error when reading invalid YAML")
	}
}

func TestConfig_FillDefaultsKeepsExplicit(t *testing.T) {
	p := fillDefaults(Profile{Host: "10.0.0.5", Port: 9021, Password: "secret"})

	if p.Host != "10.0.0.5" {
		t.Errorf("Expected host '10.0.0.5', got '%s'", p.Host)
	}
	if p.Port != 9021 {
		t.Errorf("Expected port 9021, got %d", p.Port)
	}
	if p.Password != "secret" {
		t.Errorf("Expected password 'secret', got '%s'", p.Password)
	}
	if p.Color != "line" {
		t.Errorf("Expected fallback color 'line', got '%s'", p.Color)
	}
}
