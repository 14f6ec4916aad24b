package store

import (
	"fmt"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/model"
)

// InsertInstBlock adds blocked (on side) to the bridge-wide admin
// block list.
func (s *Store) InsertInstBlock(side model.Side, blocked string, now time.Time) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO instb(side, blocked, block_date) VALUES (?, ?, ?)`,
		int(side), blocked, now)
	if err != nil {
		return fmt.Errorf("insert instb: %w", err)
	}
	return nil
}

// DeleteInstBlock removes blocked (on side) from the admin block list.
func (s *Store) DeleteInstBlock(side model.Side, blocked string) error {
	_, err := s.db.Exec(`DELETE FROM instb WHERE side = ? AND blocked = ?`, int(side), blocked)
	if err != nil {
		return fmt.Errorf("delete instb: %w", err)
	}
	return nil
}

// IsInstBlocked reports whether blocked (on side) is on the bridge-wide
// admin block list.
func (s *Store) IsInstBlocked(side model.Side, blocked string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM instb WHERE side = ? AND blocked = ?`, int(side), blocked).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is instb blocked: %w", err)
	}
	return n > 0, nil
}

// ListInstBlocks returns the full admin block list for side.
func (s *Store) ListInstBlocks(side model.Side) ([]string, error) {
	rows, err := s.db.Query(`SELECT blocked FROM instb WHERE side = ? ORDER BY blocked`, int(side))
	if err != nil {
		return nil, fmt.Errorf("list instb: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scan instb: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
