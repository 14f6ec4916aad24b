package store

import (
	"database/sql"
	"fmt"
)

// WithTx runs fn inside a single transaction, committing on success
// and rolling back on error or panic. Unregister, the retention sweep
// and comm inserts use this so the rows they touch change atomically.
// Register and the command handlers issue their writes directly,
// outside any transaction.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
