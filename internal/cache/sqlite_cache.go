package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteStore implements a Store backed by a single-table SQLite database.
type sqliteStore struct {
	db              *sql.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	ttl             time.Duration
	cleanupInterval time.Duration
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS responses (
	key        TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL,
	body       BLOB NOT NULL
);`

// openSQLite initializes a SQLite-backed Store.
func openSQLite(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// The modernc driver is not safe for concurrent writers on one connection pool
	// beyond SQLite's own locking; a single connection keeps busy errors away.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	store := &sqliteStore{
		db:              db,
		ttl:             opts.TTL,
		cleanupInterval: opts.CleanupInterval,
	}
	store.lastCleanup.Store(time.Now().Unix())
	return store, nil
}

// Close closes the SQLite store.
func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the cached response body for the key if it has not expired.
func (s *sqliteStore) Get(key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, nil
	}

	now := time.Now()
	if err := s.maybeCleanupExpired(now); err != nil {
		return nil, false, err
	}

	var expiresAt int64
	var body []byte
	err := s.db.QueryRow(`SELECT expires_at, body FROM responses WHERE key = ?`, key).Scan(&expiresAt, &body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache entry: %w", err)
	}

	if expiresAt <= now.Unix() {
		if _, err := s.db.Exec(`DELETE FROM responses WHERE key = ?`, key); err != nil {
			return nil, false, fmt.Errorf("delete expired entry: %w", err)
		}
		return nil, false, nil
	}

	return body, true, nil
}

// Set stores the response body under the key with the configured TTL.
func (s *sqliteStore) Set(key string, body []byte) error {
	if s == nil || s.db == nil {
		return nil
	}

	now := time.Now()
	if err := s.maybeCleanupExpired(now); err != nil {
		return err
	}

	_, err := s.db.Exec(
		`INSERT INTO responses (key, expires_at, body) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET expires_at = excluded.expires_at, body = excluded.body`,
		key, now.Add(s.ttl).Unix(), body,
	)
	if err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}

// maybeCleanupExpired removes expired responses on a fixed cadence.
func (s *sqliteStore) maybeCleanupExpired(now time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}

	last := time.Unix(s.lastCleanup.Load(), 0)
	if now.Sub(last) < s.cleanupInterval {
		return nil
	}

	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()

	last = time.Unix(s.lastCleanup.Load(), 0)
	if now.Sub(last) < s.cleanupInterval {
		return nil
	}

	if _, err := s.db.Exec(`DELETE FROM responses WHERE expires_at <= ?`, now.Unix()); err != nil {
		return fmt.Errorf("cleanup expired entries: %w", err)
	}
	s.lastCleanup.Store(now.Unix())
	return nil
}
