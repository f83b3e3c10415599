package config

import (
	"path/filepath"
	"time"
)

// TestConfig returns a config suitable for testing, rooted at dir.
func TestConfig(dir string) *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:    filepath.Join(dir, "test.db"),
			Timeout: 1 * time.Second,
		},
		Cache: CacheConfig{
			Dir: filepath.Join(dir, "images"),
		},
		API: APIConfig{
			BaseURL:           "https://api.flickr.com/services/rest",
			FeedURL:           "https://www.flickr.com/services/feeds/photos_public.gne",
			Key:               "test-key",
			PerPage:           10,
			HTTPTimeout:       5 * time.Second,
			UserAgent:         "photorama-test/1.0",
			MaxImageBytes:     1 << 20,
			AllowPrivateHosts: true, // httptest servers listen on loopback
		},
		Fetch: FetchConfig{
			Workers: 2,
		},
		Search: SearchConfig{
			Enabled: false,
			Index:   filepath.Join(dir, "index.bleve"),
		},
		Log: LogConfig{
			Level: "off",
		},
	}
}
