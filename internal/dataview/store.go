package dataview

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

// Store caches parsed page metadata in SQLite so restarts skip re-parsing
// unchanged notes.
type Store struct {
	db *sql.DB
}

// OpenStore opens the cache at dbPath. An empty path uses an in-memory
// database.
func OpenStore(dbPath string) (*Store, error) {
	dsn := ":memory:"
	if dbPath != "" {
		dsn = "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	// A single connection keeps the in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS pages (
    path TEXT PRIMARY KEY,
    hash INTEGER NOT NULL,
    mtime INTEGER NOT NULL,
    data BLOB NOT NULL
);
`
	_, err := s.db.Exec(schema)
	return err
}

// Hash returns the cached content hash for path.
func (s *Store) Hash(path string) (uint64, bool, error) {
	var h int64
	err := s.db.QueryRow(`SELECT hash FROM pages WHERE path = ?`, path).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query hash: %w", err)
	}
	return uint64(h), true, nil
}

// Get returns the cached page for path.
func (s *Store) Get(path string) (*Page, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM pages WHERE path = ?`, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query page: %w", err)
	}
	var p Page
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("decode page %s: %w", path, err)
	}
	return &p, true, nil
}

// Put inserts or replaces the cached page.
func (s *Store) Put(p *Page) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode page %s: %w", p.Path, err)
	}
	_, err = s.db.Exec(`
INSERT INTO pages (path, hash, mtime, data) VALUES (?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, mtime = excluded.mtime, data = excluded.data`,
		p.Path, int64(p.Hash), p.ModTime.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("store page %s: %w", p.Path, err)
	}
	return nil
}

// Delete drops the cached page for path.
func (s *Store) Delete(path string) error {
	if _, err := s.db.Exec(`DELETE FROM pages WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete page %s: %w", path, err)
	}
	return nil
}

// Paths lists every cached path.
func (s *Store) Paths() ([]string, error) {
	rows, err := s.db.Query(`SELECT path FROM pages ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
