package store

import (
	"fmt"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/model"
)

// ListRevokedBefore returns every revoked users row whose revoke_date
// is older than cutoff, the candidate set for the retention sweep of
// spec.md §4.7 step 2.
func (s *Store) ListRevokedBefore(cutoff time.Time) ([]model.User, error) {
	rows, err := s.db.Query(`SELECT side, user, req_date, nb_reg, lang, revoke_date, app, acc_id
		FROM users WHERE revoke_date IS NOT NULL AND revoke_date < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list revoked before: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}
