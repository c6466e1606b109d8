package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"time"

	"pdf-translator/internal/types"
)

// Cache stores finished translations keyed by CacheKey.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, translation string) error
}

// CacheKey hashes the language pair together with the source text.
func CacheKey(source, target, text string) string {
	sum := sha256.Sum256([]byte(source + "|" + target + "|" + text))
	return hex.EncodeToString(sum[:])
}

// CacheEntry 缓存条目
type CacheEntry struct {
	Key         string    `json:"key"`
	Translation string    `json:"translation"`
	CreatedAt   time.Time `json:"created_at"`
}

// CacheFile 缓存文件格式
type CacheFile struct {
	Version string       `json:"version"`
	Entries []CacheEntry `json:"entries"`
}

// FileCache keeps translations in memory and persists them as one JSON file.
type FileCache struct {
	path    string
	entries map[string]CacheEntry
	mu      sync.RWMutex
}

// NewFileCache creates a cache backed by path. An empty path keeps the cache
// in memory only.
func NewFileCache(path string) *FileCache {
	return &FileCache{
		path:    path,
		entries: make(map[string]CacheEntry),
	}
}

// Get 获取缓存的翻译
func (c *FileCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	return entry.Translation, true, nil
}

// Set 设置翻译缓存
func (c *FileCache) Set(_ context.Context, key, translation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = CacheEntry{
		Key:         key,
		Translation: translation,
		CreatedAt:   time.Now(),
	}
	return nil
}

// Load 从文件加载缓存. A missing file leaves the cache empty.
func (c *FileCache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return types.NewPDFError(types.ErrCacheFailed, "failed to read cache file", err)
	}

	var file CacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return types.NewPDFError(types.ErrCacheFailed, "failed to parse cache file", err)
	}
	c.entries = make(map[string]CacheEntry, len(file.Entries))
	for _, e := range file.Entries {
		c.entries[e.Key] = e
	}
	return nil
}

// Save 保存缓存到文件
func (c *FileCache) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return nil
	}
	file := CacheFile{Version: "2.0", Entries: make([]CacheEntry, 0, len(c.entries))}
	for _, e := range c.entries {
		file.Entries = append(file.Entries, e)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return types.NewPDFError(types.ErrCacheFailed, "failed to marshal cache", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return types.NewPDFError(types.ErrCacheFailed, "failed to write cache file", err)
	}
	return nil
}

// Size 返回缓存中的条目数量
func (c *FileCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear 清空缓存
func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry)
}

// Path returns the backing file path.
func (c *FileCache) Path() string {
	return c.path
}
