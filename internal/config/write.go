package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigDir returns the cc-voice-reporter config directory path.
// Uses $XDG_CONFIG_HOME/cc-voice-reporter if set, otherwise
// ~/.config/cc-voice-reporter.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cc-voice-reporter")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cc-voice-reporter")
}

// WriteDefault writes a default config.toml. Returns the config file path.
// Skips if config.toml already exists.
func WriteDefault() (string, error) {
	dir := ConfigDir()
	path := filepath.Join(dir, "config.toml")

	if _, err := os.Stat(path); err == nil {
		return path, nil // already exists
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	content := `state_path = "~/.local/state/cc-voice-reporter"

[watch]
projects_dir = "~/.claude/projects"

[narration]
enabled = true
throttle_seconds = 20
max_prompt_events = 10
language = "English"

[generator]
provider = "openai"
model = "gpt-4o-mini"
api_key_env = "OPENAI_API_KEY"
base_url = "https://api.openai.com/v1"
timeout_seconds = 30

[speech]
# command = "say"
max_message_chars = 300
truncate_separator = " ... "
max_queue_wait_seconds = 45

[history]
enabled = true
path = "~/.local/state/cc-voice-reporter/history.db"

[logging]
level = "info"
`

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}

	return path, nil
}

// CompressHome replaces $HOME prefix with ~/ for portable config values.
func CompressHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home+"/") {
		return "~/" + path[len(home)+1:]
	}
	if path == home {
		return "~"
	}
	return path
}
