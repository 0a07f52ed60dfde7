package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/codefionn/flagrunner/internal/consts"
)

const appName = "flagrunner"

// ModelConfig selects the language model and how it is called.
type ModelConfig struct {
	Provider       string  `json:"provider"` // anthropic, openai, deepseek, google
	Model          string  `json:"model"`
	APIKey         string  `json:"api_key,omitempty"`
	BaseURL        string  `json:"base_url,omitempty"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	MaxRetries     int     `json:"max_retries"`
	NativeTools    bool    `json:"native_tools"` // advertise tools through the provider's structured call API
}

// ContextConfig tunes how much history is resent every round.
type ContextConfig struct {
	FullContextInterval int `json:"full_context_interval"`
	MaxRecentTasks      int `json:"max_recent_tasks"`
	TokenCeiling        int `json:"token_ceiling"`
	MaxInputChars       int `json:"max_input_chars"`
	HistoryKeep         int `json:"history_keep"`
}

// ToolsConfig controls the built-in tool set.
type ToolsConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds"`
	EnableCommand  bool   `json:"enable_command"`
	WorkingDir     string `json:"working_dir"`
	Shell          string `json:"shell"`
}

// Config represents application configuration
type Config struct {
	Model     ModelConfig   `json:"model"`
	Context   ContextConfig `json:"context"`
	Tools     ToolsConfig   `json:"tools"`
	MaxRounds int           `json:"max_rounds"`
	Mode      string        `json:"mode"` // auto or hitl
	StateDir  string        `json:"state_dir"`
	Archive   bool          `json:"archive"` // keep a sqlite archive of every round
	LogLevel  string        `json:"log_level"`
	LogPath   string        `json:"-"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", appName)
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", appName)
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", appName)
	default:
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, appName)
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", appName)
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()
	return &Config{
		Model: ModelConfig{
			Provider:       "deepseek",
			Model:          "deepseek-chat",
			Temperature:    consts.DefaultTemperature,
			MaxTokens:      consts.DefaultMaxTokens,
			TimeoutSeconds: int(consts.Timeout2Minutes / time.Second),
			MaxRetries:     consts.DefaultMaxRetries,
		},
		Context: ContextConfig{
			FullContextInterval: consts.FullContextInterval,
			MaxRecentTasks:      consts.MaxRecentTasks,
			TokenCeiling:        consts.ContextTokenCeiling,
			MaxInputChars:       consts.MaxInputChars,
			HistoryKeep:         consts.HistoryKeepOnOverflow,
		},
		Tools: ToolsConfig{
			TimeoutSeconds: int(consts.Timeout60Seconds / time.Second),
			EnableCommand:  true,
			WorkingDir:     ".",
			Shell:          "sh",
		},
		MaxRounds: consts.DefaultMaxRounds,
		Mode:      "hitl",
		StateDir:  stateDir,
		LogLevel:  "info",
		LogPath:   filepath.Join(stateDir, appName+".log"),
	}
}

// Load loads configuration from file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	// Unmarshal over the defaults so absent fields keep their default values
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// applyDefaults restores defaults for fields explicitly zeroed in the file.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Model.Provider == "" {
		c.Model.Provider = d.Model.Provider
	}
	if c.Model.MaxTokens <= 0 {
		c.Model.MaxTokens = d.Model.MaxTokens
	}
	if c.Model.TimeoutSeconds <= 0 {
		c.Model.TimeoutSeconds = d.Model.TimeoutSeconds
	}
	if c.Model.MaxRetries < 0 {
		c.Model.MaxRetries = 0
	}
	if c.Context.FullContextInterval <= 0 {
		c.Context.FullContextInterval = d.Context.FullContextInterval
	}
	if c.Context.MaxRecentTasks <= 0 {
		c.Context.MaxRecentTasks = d.Context.MaxRecentTasks
	}
	if c.Context.TokenCeiling <= 0 {
		c.Context.TokenCeiling = d.Context.TokenCeiling
	}
	if c.Context.MaxInputChars <= 0 {
		c.Context.MaxInputChars = d.Context.MaxInputChars
	}
	if c.Context.HistoryKeep <= 0 {
		c.Context.HistoryKeep = d.Context.HistoryKeep
	}
	if c.Tools.TimeoutSeconds <= 0 {
		c.Tools.TimeoutSeconds = d.Tools.TimeoutSeconds
	}
	if c.Tools.WorkingDir == "" {
		c.Tools.WorkingDir = d.Tools.WorkingDir
	}
	if c.Tools.Shell == "" {
		c.Tools.Shell = d.Tools.Shell
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = d.MaxRounds
	}
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.StateDir == "" {
		c.StateDir = d.StateDir
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(c.StateDir, appName+".log")
	}
}

// Validate reports configuration values that cannot be used.
func (c *Config) Validate() error {
	switch c.Mode {
	case "auto", "hitl":
	default:
		return fmt.Errorf("invalid mode %q: expected auto or hitl", c.Mode)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0,2]", c.Model.Temperature)
	}
	return nil
}

// ModelTimeout returns the per-call model timeout.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutSeconds) * time.Second
}

// ToolTimeout returns the per-call tool timeout.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Tools.TimeoutSeconds) * time.Second
}

// SessionDir is where per-challenge task trees and summaries are written.
func (c *Config) SessionDir(title string) string {
	return filepath.Join(c.StateDir, "sessions", SafeName(title))
}

// ArchivePath is the sqlite archive location.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.StateDir, "rounds.db")
}

// SafeName turns a challenge title into a filesystem-friendly name.
func SafeName(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
