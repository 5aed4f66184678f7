package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the cache holds no image for a key.
var ErrNotFound = errors.New("compiled unit not found")

// Cache maps tree hashes to program images in a SQLite database.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache database at path. The special path
// ":memory:" keeps the cache in memory.
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS compiled_units (
		key TEXT PRIMARY KEY,
		image BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened cache %s", path)
	return &Cache{db: db, path: path}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the image stored under key, or ErrNotFound.
func (c *Cache) Get(key string) ([]byte, error) {
	var image []byte
	err := c.db.QueryRow("SELECT image FROM compiled_units WHERE key = ?", key).Scan(&image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying cache: %w", err)
	}
	return image, nil
}

// Put stores image under key, replacing an earlier entry.
func (c *Cache) Put(key string, image []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO compiled_units (key, image, created_at) VALUES (?, ?, ?)",
		key, image, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving compiled unit: %w", err)
	}
	return nil
}

// Prune deletes entries created before cutoff and returns how many were
// removed.
func (c *Cache) Prune(cutoff time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.db.Exec("DELETE FROM compiled_units WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning cache: %w", err)
	}
	return r.RowsAffected()
}
