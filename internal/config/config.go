package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultBaseURL   = "http://127.0.0.1:8000"
	DefaultTimeoutMS = 20000
	DefaultLogLevel  = "info"

	appDirName = "chemviz"
)

// Environment variables read once at startup. The first non-empty base URL
// variable wins.
var baseURLEnvVars = []string{"CHEMVIZ_API_BASE", "REACT_APP_API_BASE", "API_BASE"}

const (
	envTokenFile = "CHEMVIZ_TOKEN_FILE"
	envLogLevel  = "CHEMVIZ_LOG_LEVEL"
	envLogFile   = "CHEMVIZ_LOG_FILE"
)

// APIConfig points the client at the backend
type APIConfig struct {
	BaseURL   string `toml:"base_url"`
	TimeoutMS int    `toml:"timeout_ms"`
}

// SessionConfig locates the durable token
type SessionConfig struct {
	TokenFile string `toml:"token_file"`
}

// DownloadConfig controls where PDF reports are written
type DownloadConfig struct {
	Dir string `toml:"dir"`
}

// LogConfig controls the slog handler
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Config is the resolved client configuration
type Config struct {
	API      APIConfig      `toml:"api"`
	Session  SessionConfig  `toml:"session"`
	Download DownloadConfig `toml:"download"`
	Log      LogConfig      `toml:"log"`
}

// LoadInfo records where the configuration came from
type LoadInfo struct {
	ConfigPath    string
	ConfigFound   bool
	DotEnvLoaded  bool
	BaseURLSource string
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   DefaultBaseURL,
			TimeoutMS: DefaultTimeoutMS,
		},
		Session: SessionConfig{
			TokenFile: filepath.Join(configDir(), "token"),
		},
		Download: DownloadConfig{
			Dir: ".",
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
			File:  filepath.Join(stateDir(), "chemviz.log"),
		},
	}
}

// DefaultPath is the config file consulted when none is given
func DefaultPath() string {
	return filepath.Join(configDir(), "config.toml")
}

// Load resolves the configuration: defaults, then the TOML file, then a
// .env file in the working directory, then the environment.
func Load(path string) (*Config, LoadInfo, error) {
	info := LoadInfo{ConfigPath: path, BaseURLSource: "default"}
	if info.ConfigPath == "" {
		info.ConfigPath = DefaultPath()
	}

	cfg := Default()

	data, err := os.ReadFile(info.ConfigPath)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, info, fmt.Errorf("failed to parse %s: %w", info.ConfigPath, err)
		}
		info.ConfigFound = true
		if isBaseURLSpecified(data) {
			info.BaseURLSource = info.ConfigPath
		}
	case os.IsNotExist(err):
		// missing file is fine, defaults apply
	default:
		return nil, info, fmt.Errorf("failed to read %s: %w", info.ConfigPath, err)
	}

	// .env never overrides variables already present in the environment
	if err := godotenv.Load(); err == nil {
		info.DotEnvLoaded = true
	}

	applyEnv(cfg, &info)

	if err := cfg.Validate(); err != nil {
		return nil, info, err
	}
	return cfg, info, nil
}

func applyEnv(cfg *Config, info *LoadInfo) {
	for _, name := range baseURLEnvVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			cfg.API.BaseURL = v
			info.BaseURLSource = name
			break
		}
	}
	if v := os.Getenv(envTokenFile); v != "" {
		cfg.Session.TokenFile = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(envLogFile); v != "" {
		cfg.Log.File = v
	}
}

func isBaseURLSpecified(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}
	api, ok := raw["api"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = api["base_url"]
	return ok
}

// Validate rejects settings the client cannot run with
func (c *Config) Validate() error {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid api base url %q: %w", c.API.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api base url %q must use http or https", c.API.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("api base url %q has no host", c.API.BaseURL)
	}
	if c.API.TimeoutMS <= 0 {
		return errors.New("api timeout_ms must be positive")
	}
	if c.Session.TokenFile == "" {
		return errors.New("session token_file must not be empty")
	}
	return nil
}

// Save writes the configuration as TOML, creating the parent directory
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appDirName)
	}
	return filepath.Join(".", "."+appDirName)
}

func stateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appDirName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", appDirName)
	}
	return filepath.Join(".", "."+appDirName)
}
