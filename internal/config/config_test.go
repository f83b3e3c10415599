package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Timeout != 1*time.Second {
		t.Errorf("Database.Timeout = %v, want 1s", cfg.Database.Timeout)
	}

	if cfg.API.BaseURL != "https://api.flickr.com/services/rest" {
		t.Errorf("API.BaseURL = %s, want Flickr REST endpoint", cfg.API.BaseURL)
	}
	if cfg.API.PerPage != 100 {
		t.Errorf("API.PerPage = %d, want 100", cfg.API.PerPage)
	}
	if cfg.API.HTTPTimeout != 30*time.Second {
		t.Errorf("API.HTTPTimeout = %v, want 30s", cfg.API.HTTPTimeout)
	}
	if cfg.API.UserAgent == "" {
		t.Error("API.UserAgent should not be empty")
	}
	if cfg.API.AllowPrivateHosts {
		t.Error("API.AllowPrivateHosts should default to false")
	}

	if cfg.Fetch.Workers != 4 {
		t.Errorf("Fetch.Workers = %d, want 4", cfg.Fetch.Workers)
	}

	if !strings.HasSuffix(cfg.Cache.Dir, filepath.Join(".photorama", "images")) {
		t.Errorf("Cache.Dir = %s, want it under ~/.photorama", cfg.Cache.Dir)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_DefaultConfig(t *testing.T) {
	// Run from an empty directory so a stray ./config.toml cannot interfere.
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}

	if cfg.Fetch.Workers != 4 {
		t.Errorf("Fetch.Workers = %d, want 4", cfg.Fetch.Workers)
	}
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "test-config.toml")
	configContent := `
[database]
path = "/tmp/test.db"
timeout = "10s"

[api]
http_timeout = "60s"
per_page = 25
user_agent = "test-agent"

[fetch]
workers = 8
`

	if writeErr := os.WriteFile(configPath, []byte(configContent), 0o644); writeErr != nil {
		t.Fatal(writeErr)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %s, want '/tmp/test.db'", cfg.Database.Path)
	}
	if cfg.Database.Timeout != 10*time.Second {
		t.Errorf("Database.Timeout = %v, want 10s", cfg.Database.Timeout)
	}
	if cfg.API.HTTPTimeout != 60*time.Second {
		t.Errorf("API.HTTPTimeout = %v, want 60s", cfg.API.HTTPTimeout)
	}
	if cfg.API.PerPage != 25 {
		t.Errorf("API.PerPage = %d, want 25", cfg.API.PerPage)
	}
	if cfg.API.UserAgent != "test-agent" {
		t.Errorf("API.UserAgent = %s, want 'test-agent'", cfg.API.UserAgent)
	}
	if cfg.Fetch.Workers != 8 {
		t.Errorf("Fetch.Workers = %d, want 8", cfg.Fetch.Workers)
	}

	// Keys absent from the file keep their defaults.
	if cfg.API.BaseURL != "https://api.flickr.com/services/rest" {
		t.Errorf("API.BaseURL = %s, want default", cfg.API.BaseURL)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[api]\nkey = \"from-file\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PHOTORAMA_API_KEY", "from-env")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Key != "from-env" {
		t.Errorf("API.Key = %s, want 'from-env'", cfg.API.Key)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "zero workers", content: "[fetch]\nworkers = 0\n"},
		{name: "per_page too large", content: "[api]\nper_page = 1000\n"},
		{name: "malformed toml", content: "[api\nper_page = "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			if _, err := Load(configPath); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestSave(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := TestConfig(tmpDir)
	cfg.Database.Timeout = 10 * time.Second
	cfg.API.UserAgent = "test-save-agent"
	cfg.API.PerPage = 42
	cfg.Fetch.Workers = 6
	cfg.Viewer.Command = "feh --fullscreen"

	savePath := filepath.Join(tmpDir, "nested", "saved-config.toml")
	if saveErr := Save(cfg, savePath); saveErr != nil {
		t.Fatalf("Save() error = %v", saveErr)
	}

	if _, statErr := os.Stat(savePath); os.IsNotExist(statErr) {
		t.Fatal("Save() did not create config file")
	}

	loaded, err := Load(savePath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if loaded.Database.Path != cfg.Database.Path {
		t.Errorf("Loaded Database.Path = %s, want %s", loaded.Database.Path, cfg.Database.Path)
	}
	if loaded.Database.Timeout != cfg.Database.Timeout {
		t.Errorf("Loaded Database.Timeout = %v, want %v", loaded.Database.Timeout, cfg.Database.Timeout)
	}
	if loaded.API.UserAgent != cfg.API.UserAgent {
		t.Errorf("Loaded API.UserAgent = %s, want %s", loaded.API.UserAgent, cfg.API.UserAgent)
	}
	if loaded.API.PerPage != 42 {
		t.Errorf("Loaded API.PerPage = %d, want 42", loaded.API.PerPage)
	}
	if loaded.Fetch.Workers != 6 {
		t.Errorf("Loaded Fetch.Workers = %d, want 6", loaded.Fetch.Workers)
	}
	if !loaded.API.AllowPrivateHosts {
		t.Error("Loaded API.AllowPrivateHosts = false, want true")
	}
	if loaded.Viewer.Command != "feh --fullscreen" {
		t.Errorf("Loaded Viewer.Command = %q, want 'feh --fullscreen'", loaded.Viewer.Command)
	}
}

func TestGenerateDefaultConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "generated.toml")
	if genErr := GenerateDefaultConfig(configPath); genErr != nil {
		t.Fatalf("GenerateDefaultConfig() error = %v", genErr)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}

	if cfg.Fetch.Workers != 4 {
		t.Errorf("Generated config has Fetch.Workers = %d, want 4", cfg.Fetch.Workers)
	}
	if cfg.API.HTTPTimeout != 30*time.Second {
		t.Errorf("Generated config has API.HTTPTimeout = %v, want 30s", cfg.API.HTTPTimeout)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := expandPath("~/photos"); got != filepath.Join(home, "photos") {
		t.Errorf("expandPath(~/photos) = %s", got)
	}
	if got := expandPath(""); got != "" {
		t.Errorf("expandPath(\"\") = %s, want empty", got)
	}
	if got := expandPath("relative/dir"); !filepath.IsAbs(got) {
		t.Errorf("expandPath(relative/dir) = %s, want absolute", got)
	}
}

func TestTestConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := TestConfig(dir)

	if cfg == nil {
		t.Fatal("TestConfig() returned nil")
	}

	if cfg.Database.Path != filepath.Join(dir, "test.db") {
		t.Errorf("TestConfig Database.Path = %s, want under %s", cfg.Database.Path, dir)
	}
	if cfg.API.UserAgent != "photorama-test/1.0" {
		t.Errorf("TestConfig API.UserAgent = %s, want 'photorama-test/1.0'", cfg.API.UserAgent)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("TestConfig should validate: %v", err)
	}
}
