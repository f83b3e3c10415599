package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxKeyLength = 255

// ValidateCacheKey checks that key can be used verbatim as a file name inside
// a cache directory. Photo identifiers are plain tokens, so anything that
// could address another directory is rejected.
func ValidateCacheKey(key string) error {
	if key == "" {
		return fmt.Errorf("cache key cannot be empty")
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("cache key too long (max %d characters)", maxKeyLength)
	}
	if key == "." || key == ".." || strings.HasPrefix(key, ".") {
		return fmt.Errorf("cache key cannot start with a dot")
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == '@':
		default:
			return fmt.Errorf("cache key contains invalid character %q", r)
		}
	}
	return nil
}

// ExpandPath expands a leading ~/ and returns a clean absolute path.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if strings.Contains(path, "\x00") {
		return "", fmt.Errorf("path contains null bytes")
	}

	if len(path) >= 2 && path[:2] == "~/" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	} else if strings.HasPrefix(path, "~") {
		return "", fmt.Errorf("invalid tilde usage")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot make path absolute: %w", err)
	}
	return filepath.Clean(absPath), nil
}

// EnsureDirectory expands path and creates the directory if it is missing.
func EnsureDirectory(path string) (string, error) {
	dir, err := ExpandPath(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return "", fmt.Errorf("failed to create directory: %w", mkErr)
		}
	case err != nil:
		return "", fmt.Errorf("checking directory: %w", err)
	case !info.IsDir():
		return "", fmt.Errorf("path exists but is not a directory: %s", dir)
	}

	return dir, nil
}
