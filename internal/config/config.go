package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	API      APIConfig      `mapstructure:"api"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Search   SearchConfig   `mapstructure:"search"`
	Viewer   ViewerConfig   `mapstructure:"viewer"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	FeedURL       string        `mapstructure:"feed_url"`
	Key           string        `mapstructure:"key"`
	PerPage       int           `mapstructure:"per_page"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
	MaxImageBytes int64         `mapstructure:"max_image_bytes"`
	// AllowPrivateHosts permits image URLs on localhost or private networks.
	AllowPrivateHosts bool `mapstructure:"allow_private_hosts"`
}

type FetchConfig struct {
	Workers int `mapstructure:"workers"`
}

type SearchConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
}

// ViewerConfig picks the program that opens cached images. An empty
// command selects the first viewer installed for the platform.
type ViewerConfig struct {
	Command string `mapstructure:"command"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".photorama")

	return &Config{
		Database: DatabaseConfig{
			Path:    filepath.Join(dataDir, "photorama.db"),
			Timeout: 1 * time.Second,
		},
		Cache: CacheConfig{
			Dir: filepath.Join(dataDir, "images"),
		},
		API: APIConfig{
			BaseURL:       "https://api.flickr.com/services/rest",
			FeedURL:       "https://www.flickr.com/services/feeds/photos_public.gne",
			Key:           "a6d819499131071f158fd740860a5a88",
			PerPage:       100,
			HTTPTimeout:   30 * time.Second,
			UserAgent:     "photorama/1.0 (https://github.com/pders01/photorama)",
			RateLimit:     2,
			RateBurst:     4,
			MaxImageBytes: 10 * 1024 * 1024,
		},
		Fetch: FetchConfig{
			Workers: 4,
		},
		Search: SearchConfig{
			Enabled: true,
			Index:   filepath.Join(dataDir, "index.bleve"),
		},
		Log: LogConfig{
			Level: "off",
			File:  filepath.Join(dataDir, "photorama.log"),
		},
	}
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "photorama")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	// PHOTORAMA_API_KEY overrides api.key, and so on.
	v.SetEnvPrefix("PHOTORAMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults registers every leaf key so partial files and env overrides
// merge with the defaults instead of replacing whole sections.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.timeout", cfg.Database.Timeout)
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.feed_url", cfg.API.FeedURL)
	v.SetDefault("api.key", cfg.API.Key)
	v.SetDefault("api.per_page", cfg.API.PerPage)
	v.SetDefault("api.http_timeout", cfg.API.HTTPTimeout)
	v.SetDefault("api.user_agent", cfg.API.UserAgent)
	v.SetDefault("api.rate_limit", cfg.API.RateLimit)
	v.SetDefault("api.rate_burst", cfg.API.RateBurst)
	v.SetDefault("api.max_image_bytes", cfg.API.MaxImageBytes)
	v.SetDefault("api.allow_private_hosts", cfg.API.AllowPrivateHosts)
	v.SetDefault("fetch.workers", cfg.Fetch.Workers)
	v.SetDefault("search.enabled", cfg.Search.Enabled)
	v.SetDefault("search.index", cfg.Search.Index)
	v.SetDefault("viewer.command", cfg.Viewer.Command)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
}

// Validate rejects settings the fetch pipeline cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if c.API.PerPage <= 0 || c.API.PerPage > 500 {
		return fmt.Errorf("api.per_page must be between 1 and 500, got %d", c.API.PerPage)
	}
	if c.Fetch.Workers <= 0 {
		return fmt.Errorf("fetch.workers must be positive, got %d", c.Fetch.Workers)
	}
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir must be set")
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Cache.Dir = expandPath(cfg.Cache.Dir)
	cfg.Search.Index = expandPath(cfg.Search.Index)
	cfg.Log.File = expandPath(cfg.Log.File)
}

// fileConfig mirrors Config with durations spelled out for TOML readability.
type fileConfig struct {
	Database struct {
		Path    string `toml:"path"`
		Timeout string `toml:"timeout"`
	} `toml:"database"`
	Cache struct {
		Dir string `toml:"dir"`
	} `toml:"cache"`
	API struct {
		BaseURL           string  `toml:"base_url"`
		FeedURL           string  `toml:"feed_url"`
		Key               string  `toml:"key"`
		PerPage           int     `toml:"per_page"`
		HTTPTimeout       string  `toml:"http_timeout"`
		UserAgent         string  `toml:"user_agent"`
		RateLimit         float64 `toml:"rate_limit"`
		RateBurst         int     `toml:"rate_burst"`
		MaxImageBytes     int64   `toml:"max_image_bytes"`
		AllowPrivateHosts bool    `toml:"allow_private_hosts"`
	} `toml:"api"`
	Fetch struct {
		Workers int `toml:"workers"`
	} `toml:"fetch"`
	Search struct {
		Enabled bool   `toml:"enabled"`
		Index   string `toml:"index"`
	} `toml:"search"`
	Viewer struct {
		Command string `toml:"command"`
	} `toml:"viewer"`
	Log struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"log"`
}

func Save(config *Config, path string) error {
	var fc fileConfig
	fc.Database.Path = config.Database.Path
	fc.Database.Timeout = config.Database.Timeout.String()
	fc.Cache.Dir = config.Cache.Dir
	fc.API.BaseURL = config.API.BaseURL
	fc.API.FeedURL = config.API.FeedURL
	fc.API.Key = config.API.Key
	fc.API.PerPage = config.API.PerPage
	fc.API.HTTPTimeout = config.API.HTTPTimeout.String()
	fc.API.UserAgent = config.API.UserAgent
	fc.API.RateLimit = config.API.RateLimit
	fc.API.RateBurst = config.API.RateBurst
	fc.API.MaxImageBytes = config.API.MaxImageBytes
	fc.API.AllowPrivateHosts = config.API.AllowPrivateHosts
	fc.Fetch.Workers = config.Fetch.Workers
	fc.Search.Enabled = config.Search.Enabled
	fc.Search.Index = config.Search.Index
	fc.Viewer.Command = config.Viewer.Command
	fc.Log.Level = config.Log.Level
	fc.Log.File = config.Log.File

	data, err := toml.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}

// DefaultConfigPath is where GenerateDefaultConfig writes when no path is given.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "photorama", "config.toml")
}
