package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range append(baseURLEnvVars, envTokenFile, envLogLevel, envLogFile) {
		t.Setenv(name, "")
	}
	// keep godotenv away from any .env next to the package
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, info, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("Expected default base url, got %s", cfg.API.BaseURL)
	}
	if cfg.API.TimeoutMS != DefaultTimeoutMS {
		t.Errorf("Expected default timeout, got %d", cfg.API.TimeoutMS)
	}
	if info.ConfigFound {
		t.Error("Config file should not be reported as found")
	}
	if info.BaseURLSource != "default" {
		t.Errorf("Expected default source, got %s", info.BaseURLSource)
	}
}

func TestLoadTOMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
base_url = "http://backend.local:9000/"
timeout_ms = 5000

[session]
token_file = "/tmp/chemviz-test-token"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, info, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.BaseURL != "http://backend.local:9000" {
		t.Errorf("Trailing slash should be trimmed, got %s", cfg.API.BaseURL)
	}
	if cfg.API.TimeoutMS != 5000 {
		t.Errorf("Expected timeout 5000, got %d", cfg.API.TimeoutMS)
	}
	if cfg.Session.TokenFile != "/tmp/chemviz-test-token" {
		t.Errorf("Unexpected token file %s", cfg.Session.TokenFile)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Unset sections should keep defaults, got level %s", cfg.Log.Level)
	}
	if info.BaseURLSource != path {
		t.Errorf("Expected base url source %s, got %s", path, info.BaseURLSource)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[api]\nbase_url = \"http://file:1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REACT_APP_API_BASE", "http://react:2")
	t.Setenv("CHEMVIZ_API_BASE", "http://chemviz:3")

	cfg, info, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.BaseURL != "http://chemviz:3" {
		t.Errorf("CHEMVIZ_API_BASE should win, got %s", cfg.API.BaseURL)
	}
	if info.BaseURLSource != "CHEMVIZ_API_BASE" {
		t.Errorf("Unexpected source %s", info.BaseURLSource)
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)

	if err := os.WriteFile(".env", []byte("CHEMVIZ_LOG_LEVEL=debug\nAPI_BASE=http://dotenv:4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHEMVIZ_LOG_LEVEL", "warn")
	// godotenv treats a present-but-empty variable as set
	os.Unsetenv("API_BASE")

	cfg, info, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.DotEnvLoaded {
		t.Error(".env should be reported as loaded")
	}
	if cfg.API.BaseURL != "http://dotenv:4" {
		t.Errorf("Expected base url from .env, got %s", cfg.API.BaseURL)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Real environment should win over .env, got %s", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "https", mutate: func(c *Config) { c.API.BaseURL = "https://example.com" }},
		{name: "ftp scheme", mutate: func(c *Config) { c.API.BaseURL = "ftp://example.com" }, wantErr: true},
		{name: "no host", mutate: func(c *Config) { c.API.BaseURL = "http://" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.API.TimeoutMS = 0 }, wantErr: true},
		{name: "empty token file", mutate: func(c *Config) { c.Session.TokenFile = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.API.BaseURL = "http://saved:8000"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, _, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.API.BaseURL != "http://saved:8000" {
		t.Errorf("Expected saved base url, got %s", loaded.API.BaseURL)
	}
}
