package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all cc-voice-reporter configuration.
type Config struct {
	StatePath string `toml:"state_path"`

	Watch     WatchConfig     `toml:"watch"`
	Narration NarrationConfig `toml:"narration"`
	Generator GeneratorConfig `toml:"generator"`
	Speech    SpeechConfig    `toml:"speech"`
	History   HistoryConfig   `toml:"history"`
	Logging   LoggingConfig   `toml:"logging"`
}

type WatchConfig struct {
	ProjectsDir string `toml:"projects_dir"`
}

type NarrationConfig struct {
	Enabled         bool `toml:"enabled"`
	ThrottleSeconds int  `toml:"throttle_seconds"`
	MaxPromptEvents int  `toml:"max_prompt_events"`
	// Language the narration is generated in, e.g. "English" or "日本語".
	Language string `toml:"language"`
}

type GeneratorConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	APIKeyEnv      string `toml:"api_key_env"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type SpeechConfig struct {
	Command             string   `toml:"command"`
	Args                []string `toml:"args"`
	MaxMessageChars     int      `toml:"max_message_chars"`
	TruncateSeparator   string   `toml:"truncate_separator"`
	MaxQueueWaitSeconds int      `toml:"max_queue_wait_seconds"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StatePath: "~/.local/state/cc-voice-reporter",
		Watch: WatchConfig{
			ProjectsDir: "~/.claude/projects",
		},
		Narration: NarrationConfig{
			Enabled:         true,
			ThrottleSeconds: 20,
			MaxPromptEvents: 10,
			Language:        "English",
		},
		Generator: GeneratorConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			APIKeyEnv:      "OPENAI_API_KEY",
			BaseURL:        "https://api.openai.com/v1",
			TimeoutSeconds: 30,
		},
		Speech: SpeechConfig{
			MaxMessageChars:     300,
			TruncateSeparator:   " ... ",
			MaxQueueWaitSeconds: 45,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "~/.local/state/cc-voice-reporter/history.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads config from the standard path, falling back to defaults.
func Load() (Config, error) {
	cfg := DefaultConfig()

	paths := configPaths()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if _, err := toml.DecodeFile(p, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", p, err)
			}
			break
		}
	}

	// Expand ~ in paths
	cfg.StatePath = expandHome(cfg.StatePath)
	cfg.Watch.ProjectsDir = expandHome(cfg.Watch.ProjectsDir)
	cfg.History.Path = expandHome(cfg.History.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)

	return cfg, nil
}

func configPaths() []string {
	var paths []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "cc-voice-reporter", "config.toml"))
	}

	home, _ := os.UserHomeDir()
	if home != "" {
		paths = append(paths, filepath.Join(home, ".config", "cc-voice-reporter", "config.toml"))
	}

	return paths
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// HookSpoolPath returns the JSONL file the hook command appends to and the
// daemon tails.
func (c Config) HookSpoolPath() string {
	return filepath.Join(c.StatePath, "hooks.jsonl")
}

// GeneratorTimeout returns the bounded deadline for one generator call.
func (c Config) GeneratorTimeout() time.Duration {
	if c.Generator.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Generator.TimeoutSeconds) * time.Second
}

// Throttle returns the delay between a triggering event and the throttled
// narration flush.
func (c Config) Throttle() time.Duration {
	if c.Narration.ThrottleSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.Narration.ThrottleSeconds) * time.Second
}
