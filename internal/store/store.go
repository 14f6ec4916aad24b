// Package store is the bridge's persistent store: the four related
// tables of spec.md §3 (users, blocks, instb, comm) behind
// database/sql, using the mattn/go-sqlite3 driver against the
// configured database_file. Grounded on hunter007-jackal's
// storage/sql package shape (one *Store value wrapping *sql.DB, one
// file per table, NewMock() for sqlmock-backed tests).
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the bridge's database handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewMock returns a Store backed by a sqlmock connection, for unit
// tests, mirroring hunter007-jackal's storage/sql test helper.
func NewMock() (*Store, sqlmockMock, error) {
	db, mock, err := newSQLMock()
	if err != nil {
		return nil, nil, err
	}
	return &Store{db: db}, mock, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}
