// Package rendercache implements the versioned on-disk KV store of
// rendered PNGs: SQLite metadata plus flat-file payloads, LRU eviction
// under a byte budget, and a TTL sweep.
package rendercache

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

// ErrCacheIO is the sentinel wrapped by any cache-layer I/O failure;
// callers treat it as a cache miss rather than a fatal pipeline error.
var ErrCacheIO = errors.New("rendercache: io error")

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cache_key TEXT UNIQUE NOT NULL,
	source_version TEXT NOT NULL,
	file_path TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	last_access_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_key ON cache_entries(cache_key);
CREATE INDEX IF NOT EXISTS idx_cache_entries_last_access ON cache_entries(last_access_at);
`

// Cache is a process-wide render cache instance. Construct exactly one
// per renders directory and pass it down explicitly rather than reaching
// for a package global.
type Cache struct {
	db          *sql.DB
	rendersDir  string
	maxBytes    int64
	ttl         time.Duration
	hot         *lru.Cache[string, []byte]
	mu          sync.Mutex // serialises multi-statement write paths
	logger      *slog.Logger
}

// Config configures a new Cache.
type Config struct {
	Dir        string        // directory holding the SQLite metadata file and PNG payloads
	MaxBytes   int64         // total size budget across all cached entries
	TTL        time.Duration // entries older than this (by created_at) are swept
	HotEntries int           // in-memory LRU capacity for recently-touched payloads; 0 disables it
}

// New opens (creating if absent) the render cache at cfg.Dir.
func New(cfg Config, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("rendercache: create dir: %w", err)
	}
	dbPath := filepath.Join(cfg.Dir, "cache.sqlite")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(30000)")
	if err != nil {
		return nil, fmt.Errorf("rendercache: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // single connection keeps SQLite writes serialised
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("rendercache: migrate: %w", err)
	}

	var hot *lru.Cache[string, []byte]
	if cfg.HotEntries > 0 {
		hot, _ = lru.New[string, []byte](cfg.HotEntries)
	}

	return &Cache{
		db:         db,
		rendersDir: cfg.Dir,
		maxBytes:   cfg.MaxBytes,
		ttl:        cfg.TTL,
		hot:        hot,
		logger:     logger,
	}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key builds the cache key source_id:source_version:page:dpi[:bbox],
// rounding any bbox to 4 decimals for key stability.
func Key(sourceID, sourceVersion string, page, dpi int, bbox *[4]float64) string {
	parts := []string{sourceID, sourceVersion, strconv.Itoa(page), strconv.Itoa(dpi)}
	key := strings.Join(parts, ":")
	if bbox != nil {
		key += fmt.Sprintf(":(%.4f, %.4f, %.4f, %.4f)", bbox[0], bbox[1], bbox[2], bbox[3])
	}
	return key
}

func (c *Cache) filePath(cacheKey string) string {
	sum := md5.Sum([]byte(cacheKey))
	return filepath.Join(c.rendersDir, hex.EncodeToString(sum[:])+".png")
}

// Get returns the cached bytes for cacheKey iff the entry exists, is within
// TTL, and its backing file is present. A missing or expired entry is
// lazily removed and (nil, nil) is returned; this is a cache miss, not an
// error.
func (c *Cache) Get(cacheKey string) ([]byte, error) {
	if c.hot != nil {
		if b, ok := c.hot.Get(cacheKey); ok {
			return b, nil
		}
	}

	var filePath string
	var createdAt int64
	err := c.db.QueryRow(
		`SELECT file_path, created_at FROM cache_entries WHERE cache_key = ?`, cacheKey,
	).Scan(&filePath, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheIO, err)
	}

	if c.ttl > 0 && time.Since(time.Unix(createdAt, 0)) > c.ttl {
		c.deleteEntry(cacheKey, filePath)
		return nil, nil
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		c.deleteEntry(cacheKey, filePath)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheIO, err)
	}

	now := time.Now().Unix()
	if _, err := c.db.Exec(`UPDATE cache_entries SET last_access_at = ? WHERE cache_key = ?`, now, cacheKey); err != nil {
		c.logger.Warn("rendercache: failed to bump last_access_at", "key", cacheKey, "error", err)
	}
	if c.hot != nil {
		c.hot.Add(cacheKey, data)
	}
	return data, nil
}

// Put writes payload under cacheKey, evicting as needed to stay within the
// byte budget first. On any failure the partially-written file is removed.
func (c *Cache) Put(cacheKey, sourceVersion string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureSpace(int64(len(payload))); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheIO, err)
	}

	path := c.filePath(cacheKey)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheIO, err)
	}

	now := time.Now().Unix()
	_, err := c.db.Exec(`
		INSERT INTO cache_entries (cache_key, source_version, file_path, size_bytes, created_at, last_access_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			source_version = excluded.source_version,
			file_path = excluded.file_path,
			size_bytes = excluded.size_bytes,
			created_at = excluded.created_at,
			last_access_at = excluded.last_access_at
	`, cacheKey, sourceVersion, path, len(payload), now, now)
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	if c.hot != nil {
		c.hot.Add(cacheKey, payload)
	}
	return nil
}

// ensureSpace sweeps TTL-expired rows, then evicts LRU entries (by
// last_access_at) until total + needed <= maxBytes.
func (c *Cache) ensureSpace(needed int64) error {
	if c.maxBytes <= 0 {
		return nil
	}

	if c.ttl > 0 {
		cutoff := time.Now().Add(-c.ttl).Unix()
		rows, err := c.db.Query(`SELECT cache_key, file_path FROM cache_entries WHERE created_at < ?`, cutoff)
		if err == nil {
			var expired []struct{ key, path string }
			for rows.Next() {
				var k, p string
				if rows.Scan(&k, &p) == nil {
					expired = append(expired, struct{ key, path string }{k, p})
				}
			}
			rows.Close()
			for _, e := range expired {
				c.deleteEntry(e.key, e.path)
			}
		}
	}

	for {
		total, err := c.totalSize()
		if err != nil {
			return err
		}
		if total+needed <= c.maxBytes {
			return nil
		}
		var key, path string
		err = c.db.QueryRow(`SELECT cache_key, file_path FROM cache_entries ORDER BY last_access_at ASC LIMIT 1`).Scan(&key, &path)
		if errors.Is(err, sql.ErrNoRows) {
			return nil // nothing left to evict; let the write proceed over-budget
		}
		if err != nil {
			return err
		}
		c.deleteEntry(key, path)
	}
}

func (c *Cache) totalSize() (int64, error) {
	var total sql.NullInt64
	if err := c.db.QueryRow(`SELECT SUM(size_bytes) FROM cache_entries`).Scan(&total); err != nil {
		return 0, err
	}
	return total.Int64, nil
}

func (c *Cache) deleteEntry(cacheKey, filePath string) {
	if _, err := c.db.Exec(`DELETE FROM cache_entries WHERE cache_key = ?`, cacheKey); err != nil {
		c.logger.Warn("rendercache: failed to delete row", "key", cacheKey, "error", err)
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("rendercache: failed to remove file", "path", filePath, "error", err)
	}
	if c.hot != nil {
		c.hot.Remove(cacheKey)
	}
}

// Invalidate removes every entry whose key begins with "sourceID:".
func (c *Cache) Invalidate(sourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := sourceID + ":"
	rows, err := c.db.Query(`SELECT cache_key, file_path FROM cache_entries WHERE cache_key LIKE ?`, prefix+"%")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	var toDelete []struct{ key, path string }
	for rows.Next() {
		var k, p string
		if err := rows.Scan(&k, &p); err == nil {
			toDelete = append(toDelete, struct{ key, path string }{k, p})
		}
	}
	rows.Close()
	for _, e := range toDelete {
		c.deleteEntry(e.key, e.path)
	}
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.db.Query(`SELECT cache_key, file_path FROM cache_entries`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	var toDelete []struct{ key, path string }
	for rows.Next() {
		var k, p string
		if err := rows.Scan(&k, &p); err == nil {
			toDelete = append(toDelete, struct{ key, path string }{k, p})
		}
	}
	rows.Close()
	for _, e := range toDelete {
		c.deleteEntry(e.key, e.path)
	}
	return nil
}

// Stats summarises the cache's current state.
type Stats struct {
	EntryCount int64
	TotalBytes int64
	OldestCreatedAt time.Time
	NewestCreatedAt time.Time
}

// Stats returns the current row count, total byte usage, and the creation
// time range of the live entries.
func (c *Cache) Stats() (Stats, error) {
	var s Stats
	var total, oldest, newest sql.NullInt64
	if err := c.db.QueryRow(`SELECT COUNT(*), SUM(size_bytes), MIN(created_at), MAX(created_at) FROM cache_entries`).Scan(&s.EntryCount, &total, &oldest, &newest); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	s.TotalBytes = total.Int64
	if oldest.Valid {
		s.OldestCreatedAt = time.Unix(oldest.Int64, 0)
	}
	if newest.Valid {
		s.NewestCreatedAt = time.Unix(newest.Int64, 0)
	}
	return s, nil
}
