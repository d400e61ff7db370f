// Package db owns the embedded sqlite store: opening, schema migrations and
// the exclusive-access discipline every repository goes through.
package db

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vetledger/vetledger/internal/platform/apperr"
)

// Queryer is the subset of database/sql used by repositories. Both *sql.DB
// and *sql.Tx satisfy it, so repo methods run unchanged inside transactions.
type Queryer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Store is the process-wide handle to one sqlite database. All access is
// serialized through a single exclusive mutex; the store never spawns
// goroutines of its own.
type Store struct {
	mu   sync.Mutex
	conn *sql.DB
	fts  bool
}

// Open opens (or creates) the database at path, applies pending migrations
// and returns a ready handle.
//
// Full-text catalog search needs the fts5 module, which mattn/go-sqlite3
// only compiles in under the sqlite_fts5 build tag. Without it the store
// still opens and search falls back to a table scan.
func Open(path string) (*Store, error) {
	return open("file:" + path + "?_foreign_keys=on&_journal_mode=WAL")
}

// OpenInMemory opens a private in-memory database. Used by tests and by
// hosts that manage persistence themselves.
func OpenInMemory() (*Store, error) {
	return open("file::memory:?_foreign_keys=on")
}

func open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.IO, "open database")
	}
	// One underlying connection so the exclusive mutex is the only gate.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, apperr.Wrap(err, apperr.IO, "ping database")
	}

	s := &Store{conn: conn}
	if _, err := s.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	s.setupFTS()
	return s, nil
}

// setupFTS creates the catalog full-text index if the linked sqlite has the
// fts5 module. The statements run as one script, so a missing module fails
// on the virtual table before any trigger exists.
func (s *Store) setupFTS() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conn.Exec(ftsSchema); err != nil {
		s.fts = false
		return
	}
	s.fts = true
}

// FTSEnabled reports whether the catalog_fts index is available.
func (s *Store) FTSEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fts
}

// Do runs fn while holding the store's mutex. fn must not retain q.
func (s *Store) Do(fn func(q Queryer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.conn)
}

// Tx runs fn inside a transaction while holding the store's mutex. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) Tx(fn func(q Queryer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return apperr.Wrap(err, apperr.IO, "begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return apperr.Wrap(err, apperr.IO, "rollback after %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(err, apperr.IO, "commit transaction")
	}
	return nil
}

// Close releases the handle. The store must not be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
