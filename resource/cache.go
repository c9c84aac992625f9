package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// hashCacheVersion is bumped whenever the on-disk layout changes.
// Files with another version are ignored rather than migrated.
const hashCacheVersion = 1

type cacheEntry struct {
	Size    int64  `msgpack:"size"`
	ModTime int64  `msgpack:"mtime"`
	SHA     string `msgpack:"sha"`
}

type cacheFile struct {
	Version int                   `msgpack:"version"`
	Entries map[string]cacheEntry `msgpack:"entries"`
}

// HashCache remembers SHA-256 digests of local files keyed by absolute
// path, size and modification time, so repeated gathers of an unchanged
// asset tree skip re-hashing. It is persisted as a msgpack document.
//
// A nil *HashCache is valid and never hits.
type HashCache struct {
	path string

	mu      sync.Mutex
	entries map[string]cacheEntry
	dirty   bool
}

// LoadHashCache reads the cache at path. A missing file, or one written
// by an incompatible version, yields an empty cache.
func LoadHashCache(path string) (*HashCache, error) {
	c := &HashCache{path: path, entries: make(map[string]cacheEntry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("hash cache: read %s: %w", path, err)
	}

	var file cacheFile
	if err := msgpack.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("hash cache: decode %s: %w", path, err)
	}
	if file.Version == hashCacheVersion && file.Entries != nil {
		c.entries = file.Entries
	}
	return c, nil
}

// Lookup returns the cached digest for absPath when size and mtime match.
func (c *HashCache) Lookup(absPath string, info fs.FileInfo) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[absPath]
	if !ok || e.Size != info.Size() || e.ModTime != info.ModTime().UnixNano() {
		return "", false
	}
	return e.SHA, true
}

// Store records the digest of absPath.
func (c *HashCache) Store(absPath string, info fs.FileInfo, sha string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[absPath] = cacheEntry{
		Size:    info.Size(),
		ModTime: info.ModTime().UnixNano(),
		SHA:     sha,
	}
	c.dirty = true
}

// Len returns the number of cached entries.
func (c *HashCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Save writes the cache if it changed since load. The file is replaced
// atomically via rename.
func (c *HashCache) Save() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	data, err := msgpack.Marshal(cacheFile{Version: hashCacheVersion, Entries: c.entries})
	if err != nil {
		return fmt.Errorf("hash cache: encode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("hash cache: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("hash cache: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("hash cache: rename: %w", err)
	}
	c.dirty = false
	return nil
}
