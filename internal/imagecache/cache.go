// Package imagecache stores downloaded photo bytes on disk, one file per
// photo identifier. Entries never expire.
package imagecache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pders01/photorama/internal/debuglog"
	"github.com/pders01/photorama/internal/validation"
)

// CacheError reports a failed write for a key.
type CacheError struct {
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("image cache [%s]: %v", e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// Cache is safe for concurrent use. Writes to the same key are serialized;
// writes to distinct keys run in parallel.
type Cache struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// New opens (creating if needed) a cache rooted at dir.
func New(dir string) (*Cache, error) {
	path, err := validation.EnsureDirectory(dir)
	if err != nil {
		return nil, fmt.Errorf("image cache directory: %w", err)
	}
	return &Cache{
		dir:   path,
		locks: make(map[string]*sync.RWMutex),
	}, nil
}

// Dir returns the absolute cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the file that holds the entry for key.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, key)
}

// Lookup reads and decodes the entry for key. A missing, unreadable or
// corrupt entry is reported as a miss.
func (c *Cache) Lookup(key string) (*Image, bool) {
	if err := validation.ValidateCacheKey(key); err != nil {
		debuglog.Warnf("image cache lookup with invalid key %q: %v", key, err)
		return nil, false
	}

	lock := c.lockFor(key)
	lock.RLock()
	data, err := os.ReadFile(c.Path(key))
	lock.RUnlock()

	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			debuglog.Warnf("image cache read %s: %v", key, err)
		}
		return nil, false
	}

	img, err := Decode(data)
	if err != nil {
		debuglog.Warnf("image cache entry %s is not a valid image: %v", key, err)
		return nil, false
	}
	return img, true
}

// Has reports whether an entry exists for key without reading it.
func (c *Cache) Has(key string) bool {
	if validation.ValidateCacheKey(key) != nil {
		return false
	}
	_, err := os.Stat(c.Path(key))
	return err == nil
}

// Store writes img under key, replacing any existing entry. The bytes land
// in a temporary file first so readers never see a partial write.
func (c *Cache) Store(key string, img *Image) error {
	if err := validation.ValidateCacheKey(key); err != nil {
		return &CacheError{Key: key, Err: err}
	}
	if img == nil || len(img.Data) == 0 {
		return &CacheError{Key: key, Err: errors.New("image data cannot be empty")}
	}

	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	tmp, err := os.CreateTemp(c.dir, "."+key+".tmp-*")
	if err != nil {
		return &CacheError{Key: key, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(img.Data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &CacheError{Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &CacheError{Key: key, Err: err}
	}
	if err := os.Rename(tmpName, c.Path(key)); err != nil {
		os.Remove(tmpName)
		return &CacheError{Key: key, Err: err}
	}

	debuglog.Debugf("image cache stored %s (%d bytes)", key, len(img.Data))
	return nil
}

// Remove deletes the entry for key. Removing a missing entry is not an error.
func (c *Cache) Remove(key string) error {
	if err := validation.ValidateCacheKey(key); err != nil {
		return &CacheError{Key: key, Err: err}
	}

	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(c.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &CacheError{Key: key, Err: err}
	}
	return nil
}

func (c *Cache) lockFor(key string) *sync.RWMutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.RWMutex{}
		c.locks[key] = lock
	}
	return lock
}
