// Package store persists compiled programs in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/reflow/pkg/bytecode"
)

var log = commonlog.GetLogger("reflow.store")

// ErrNotFound indicates the requested program doesn't exist.
var ErrNotFound = errors.New("program not found")

// Entry describes a stored program without decoding it.
type Entry struct {
	Name    string
	Mode    bytecode.Mode
	Size    int
	Updated time.Time
}

// Store is a named collection of compiled programs.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the database at path. The parent directory is
// created when missing. ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS programs (
		name    TEXT PRIMARY KEY,
		mode    INTEGER NOT NULL,
		code    BLOB NOT NULL,
		updated INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened program store %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put serializes p and stores it under name, replacing any previous program.
func (s *Store) Put(ctx context.Context, name string, p *bytecode.Program) error {
	if name == "" {
		return fmt.Errorf("saving program: empty name")
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("saving program %q: %w", name, err)
	}
	blob, err := p.Serialize()
	if err != nil {
		return fmt.Errorf("saving program %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO programs (name, mode, code, updated) VALUES (?, ?, ?, ?)",
		name, int(p.Mode), blob, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving program %q: %w", name, err)
	}
	log.Infof("stored program %q (%d bytes)", name, len(blob))
	return nil
}

// Get loads the program stored under name.
func (s *Store) Get(ctx context.Context, name string) (*bytecode.Program, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT code FROM programs WHERE name = ?", name).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("querying program %q: %w", name, err)
	}

	p, err := bytecode.Deserialize(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding program %q: %w", name, err)
	}
	return p, nil
}

// List returns every stored program, ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, mode, length(code), updated FROM programs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			mode    int
			updated int64
		)
		if err := rows.Scan(&e.Name, &mode, &e.Size, &updated); err != nil {
			return nil, fmt.Errorf("listing programs: %w", err)
		}
		e.Mode = bytecode.Mode(mode)
		e.Updated = time.Unix(0, updated)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	return entries, nil
}

// Delete removes the program stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM programs WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting program %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	log.Infof("deleted program %q", name)
	return nil
}
