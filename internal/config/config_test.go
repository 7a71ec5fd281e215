package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.StatePath != "~/.local/state/cc-voice-reporter" {
		t.Errorf("StatePath = %q", cfg.StatePath)
	}
	if cfg.Watch.ProjectsDir != "~/.claude/projects" {
		t.Errorf("Watch.ProjectsDir = %q", cfg.Watch.ProjectsDir)
	}
	if !cfg.Narration.Enabled {
		t.Error("Narration.Enabled should default to true")
	}
	if cfg.Narration.ThrottleSeconds != 20 {
		t.Errorf("Narration.ThrottleSeconds = %d", cfg.Narration.ThrottleSeconds)
	}
	if cfg.Narration.MaxPromptEvents != 10 {
		t.Errorf("Narration.MaxPromptEvents = %d", cfg.Narration.MaxPromptEvents)
	}
	if cfg.Generator.Provider != "openai" {
		t.Errorf("Generator.Provider = %q", cfg.Generator.Provider)
	}
	if cfg.Generator.TimeoutSeconds != 30 {
		t.Errorf("Generator.TimeoutSeconds = %d", cfg.Generator.TimeoutSeconds)
	}
	if cfg.Speech.MaxMessageChars != 300 {
		t.Errorf("Speech.MaxMessageChars = %d", cfg.Speech.MaxMessageChars)
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled should default to true")
	}
}

func TestLoad_NoConfig(t *testing.T) {
	// Point XDG to an empty dir so no config file is found
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Should have expanded defaults (paths no longer start with ~/)
	if strings.HasPrefix(cfg.StatePath, "~/") {
		t.Errorf("StatePath not expanded: %q", cfg.StatePath)
	}
	if !strings.HasSuffix(cfg.Watch.ProjectsDir, ".claude/projects") {
		t.Errorf("Watch.ProjectsDir = %q, want suffix .claude/projects", cfg.Watch.ProjectsDir)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", t.TempDir())

	configDir := filepath.Join(xdg, "cc-voice-reporter")
	os.MkdirAll(configDir, 0o755)

	tomlContent := `state_path = "/custom/state"

[watch]
projects_dir = "/my/projects"

[narration]
enabled = false
throttle_seconds = 5

[generator]
model = "grok-3-mini-fast"
timeout_seconds = 15

[speech]
command = "espeak-ng"
max_message_chars = 200
`
	os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(tomlContent), 0o644)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.StatePath != "/custom/state" {
		t.Errorf("StatePath = %q", cfg.StatePath)
	}
	if cfg.Watch.ProjectsDir != "/my/projects" {
		t.Errorf("Watch.ProjectsDir = %q", cfg.Watch.ProjectsDir)
	}
	if cfg.Narration.Enabled {
		t.Error("Narration.Enabled should be false")
	}
	if cfg.Generator.Model != "grok-3-mini-fast" {
		t.Errorf("Generator.Model = %q", cfg.Generator.Model)
	}
	if cfg.Speech.Command != "espeak-ng" {
		t.Errorf("Speech.Command = %q", cfg.Speech.Command)
	}
	if cfg.Speech.MaxMessageChars != 200 {
		t.Errorf("Speech.MaxMessageChars = %d", cfg.Speech.MaxMessageChars)
	}
}

func TestLoad_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	configDir := filepath.Join(xdg, "cc-voice-reporter")
	os.MkdirAll(configDir, 0o755)
	os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(`state_path = "~/my-state"`), 0o644)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := filepath.Join(home, "my-state")
	if cfg.StatePath != want {
		t.Errorf("StatePath = %q, want %q", cfg.StatePath, want)
	}
}

func TestLoad_XDGPriority(t *testing.T) {
	xdg := t.TempDir()
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", home)

	xdgDir := filepath.Join(xdg, "cc-voice-reporter")
	os.MkdirAll(xdgDir, 0o755)
	os.WriteFile(filepath.Join(xdgDir, "config.toml"), []byte(`state_path = "/from-xdg"`), 0o644)

	homeDir := filepath.Join(home, ".config", "cc-voice-reporter")
	os.MkdirAll(homeDir, 0o755)
	os.WriteFile(filepath.Join(homeDir, "config.toml"), []byte(`state_path = "/from-home"`), 0o644)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.StatePath != "/from-xdg" {
		t.Errorf("StatePath = %q, want /from-xdg (XDG should take priority)", cfg.StatePath)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", t.TempDir())

	configDir := filepath.Join(xdg, "cc-voice-reporter")
	os.MkdirAll(configDir, 0o755)
	os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(`state_path = [broken`), 0o644)

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{}
	if got := cfg.GeneratorTimeout(); got != 30*time.Second {
		t.Errorf("GeneratorTimeout zero-value = %v", got)
	}
	if got := cfg.Throttle(); got != 20*time.Second {
		t.Errorf("Throttle zero-value = %v", got)
	}

	cfg.Generator.TimeoutSeconds = 5
	cfg.Narration.ThrottleSeconds = 3
	if got := cfg.GeneratorTimeout(); got != 5*time.Second {
		t.Errorf("GeneratorTimeout = %v", got)
	}
	if got := cfg.Throttle(); got != 3*time.Second {
		t.Errorf("Throttle = %v", got)
	}
}

func TestHookSpoolPath(t *testing.T) {
	cfg := Config{StatePath: "/var/state"}
	if got := cfg.HookSpoolPath(); got != "/var/state/hooks.jsonl" {
		t.Errorf("HookSpoolPath = %q", got)
	}
}
