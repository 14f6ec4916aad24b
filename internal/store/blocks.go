package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/model"
)

// InsertBlock records that blocking (on side) has blocked blocked (on
// the opposite side). It is idempotent: re-blocking is a no-op.
func (s *Store) InsertBlock(side model.Side, blocking, blocked string, now time.Time) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO blocks(side, blocking, blocked, block_date) VALUES (?, ?, ?, ?)`,
		int(side), blocking, blocked, now)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

// DeleteBlock removes one personal block entry.
func (s *Store) DeleteBlock(side model.Side, blocking, blocked string) error {
	_, err := s.db.Exec(`DELETE FROM blocks WHERE side = ? AND blocking = ? AND blocked = ?`,
		int(side), blocking, blocked)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	return nil
}

// IsBlocked reports whether blocking (on side) has blocked blocked.
func (s *Store) IsBlocked(side model.Side, blocking, blocked string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM blocks WHERE side = ? AND blocking = ? AND blocked = ?`,
		int(side), blocking, blocked).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is blocked: %w", err)
	}
	return n > 0, nil
}

// ListBlocks returns every address blocking (on side) has blocked.
func (s *Store) ListBlocks(side model.Side, blocking string) ([]string, error) {
	rows, err := s.db.Query(`SELECT blocked FROM blocks WHERE side = ? AND blocking = ? ORDER BY blocked`,
		int(side), blocking)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBlocksByBlocking removes every blocks row where user (on side)
// is the blocking party, per spec.md §4.4's unregister cleanup.
func (s *Store) DeleteBlocksByBlocking(tx *sql.Tx, side model.Side, blocking string) error {
	_, err := tx.Exec(`DELETE FROM blocks WHERE side = ? AND blocking = ?`, int(side), blocking)
	if err != nil {
		return fmt.Errorf("delete blocks by blocking: %w", err)
	}
	return nil
}
