package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for the assistant gateway.
type Config struct {
	General  GeneralConfig            `json:"general"`
	Backends map[string]BackendConfig `json:"backends"`
	Channels ChannelsConfig           `json:"channels"`
	Storage  StorageConfig            `json:"storage"`
	Security SecurityConfig           `json:"security"`
	Tasks    TasksConfig              `json:"tasks"`
	Metrics  MetricsConfig            `json:"metrics"`
}

type GeneralConfig struct {
	Workspace string `json:"workspace"`
	LogLevel  string `json:"logLevel"`
	LogFile   string `json:"logFile,omitempty"`
	AgentName string `json:"agentName,omitempty"` // reported in response envelopes
}

// BackendConfig configures one processing backend. All API-mode backends
// speak the OpenAI-compatible wire protocol; the name keys which concern
// the backend serves ("speech", "vision", "media", "chat").
type BackendConfig struct {
	Enabled  bool   `json:"enabled"`
	APIBase  string `json:"apiBase,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"` // speech only, ISO-639-1
}

type ChannelsConfig struct {
	API      APIConfig      `json:"api"`
	Realtime RealtimeConfig `json:"realtime"`
	Telegram TelegramConfig `json:"telegram"`
}

// APIConfig configures the REST gateway.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	BaseURL string `json:"baseUrl,omitempty"` // public base for artifact download links
}

// RealtimeConfig configures the WebSocket push gateway.
type RealtimeConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

type TelegramConfig struct {
	Enabled   bool   `json:"enabled"`
	Token     string `json:"token"`
	ParseMode string `json:"parseMode"`
}

type StorageConfig struct {
	DBPath       string `json:"dbPath"`
	ArtifactDir  string `json:"artifactDir"`
	MaxSizeBytes int64  `json:"maxSizeBytes,omitempty"`
}

type SecurityConfig struct {
	RolesFile string `json:"rolesFile,omitempty"` // YAML permission table; empty = allow all
}

type TasksConfig struct {
	Workers          int `json:"workers"`
	EstimatedSeconds int `json:"estimatedSeconds"` // reported in task_queued pushes
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// DefaultConfigDir returns the default config directory (~/.mz-assistant).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mz-assistant"
	}
	return filepath.Join(home, ".mz-assistant")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = expandPath(cfg.General.Workspace)
	cfg.General.LogFile = expandPath(cfg.General.LogFile)
	cfg.Storage.DBPath = expandPath(cfg.Storage.DBPath)
	cfg.Storage.ArtifactDir = expandPath(cfg.Storage.ArtifactDir)
	cfg.Security.RolesFile = expandPath(cfg.Security.RolesFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Save writes the config as indented JSON.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(expandPath(path), append(data, '\n'), 0o600)
}

// Validate rejects configurations that cannot possibly serve.
func Validate(cfg *Config) error {
	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logLevel %q", cfg.General.LogLevel)
	}
	if cfg.Channels.API.Enabled && cfg.Channels.API.Port <= 0 {
		return fmt.Errorf("channels.api.port must be positive")
	}
	if cfg.Channels.Realtime.Enabled && cfg.Channels.Realtime.Port <= 0 {
		return fmt.Errorf("channels.realtime.port must be positive")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		return fmt.Errorf("channels.telegram.token is required when telegram is enabled")
	}
	if cfg.Tasks.Workers < 0 {
		return fmt.Errorf("tasks.workers must not be negative")
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
