package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/model"
)

// FetchUser returns the users row for (side, user), or nil if no such
// row exists.
func (s *Store) FetchUser(side model.Side, user string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT side, user, req_date, nb_reg, lang, revoke_date, app, acc_id
		FROM users WHERE side = ? AND user = ?`, int(side), user)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u          model.User
		side       int
		revokeDate sql.NullTime
		lang       sql.NullString
		app        sql.NullString
		accID      sql.NullString
	)
	if err := row.Scan(&side, &u.User, &u.ReqDate, &u.NbReg, &lang, &revokeDate, &app, &accID); err != nil {
		return nil, err
	}
	u.Side = model.Side(side)
	if lang.Valid {
		u.Lang = lang.String
	}
	if app.Valid {
		u.App = app.String
	}
	if accID.Valid {
		u.AccID = accID.String
	}
	if revokeDate.Valid {
		t := revokeDate.Time
		u.RevokeDate = &t
	}
	return &u, nil
}

// InsertUser creates a new users row from u, storing u.NbReg as given
// (the registrar inserts first-time users with nb_reg=1).
func (s *Store) InsertUser(u *model.User) error {
	_, err := s.db.Exec(`INSERT INTO users(side, user, req_date, nb_reg, lang, revoke_date, app, acc_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int(u.Side), u.User, u.ReqDate, u.NbReg, nullableString(u.Lang), nullableTime(u.RevokeDate),
		nullableString(u.App), nullableString(u.AccID))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// ActivateUser sets req_date=now, increments nb_reg, sets lang, and
// clears revoke_date, per spec.md §4.3 step 5's "else" branch.
func (s *Store) ActivateUser(side model.Side, user, lang string, now time.Time) error {
	_, err := s.db.Exec(`UPDATE users SET req_date = ?, nb_reg = nb_reg + 1, lang = ?, revoke_date = NULL
		WHERE side = ? AND user = ?`, now, lang, int(side), user)
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	return nil
}

// UpdateUserLang sets a registered user's language, per spec.md §4.2.
func (s *Store) UpdateUserLang(side model.Side, user, lang string) error {
	res, err := s.db.Exec(`UPDATE users SET lang = ? WHERE side = ? AND user = ?`, lang, int(side), user)
	if err != nil {
		return fmt.Errorf("update user lang: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetAccID records the sender-side opaque id used for Fediverse
// unfollow.
func (s *Store) SetAccID(side model.Side, user, accID string) error {
	_, err := s.db.Exec(`UPDATE users SET acc_id = ? WHERE side = ? AND user = ?`, accID, int(side), user)
	if err != nil {
		return fmt.Errorf("set acc_id: %w", err)
	}
	return nil
}

// RevokeUser marks a users row revoked, per spec.md §4.4.
func (s *Store) RevokeUser(side model.Side, user string, now time.Time) error {
	_, err := s.db.Exec(`UPDATE users SET revoke_date = ? WHERE side = ? AND user = ?`, now, int(side), user)
	if err != nil {
		return fmt.Errorf("revoke user: %w", err)
	}
	return nil
}

// RevokeUserTx is RevokeUser run inside an existing transaction, used
// by unregister to keep the revoke and its cascading deletes atomic.
func (s *Store) RevokeUserTx(tx *sql.Tx, side model.Side, user string, now time.Time) error {
	_, err := tx.Exec(`UPDATE users SET revoke_date = ? WHERE side = ? AND user = ?`, now, int(side), user)
	if err != nil {
		return fmt.Errorf("revoke user: %w", err)
	}
	return nil
}

// DeleteUser removes a users row entirely, per the retention sweep of
// spec.md §4.7 step 2.
func (s *Store) DeleteUser(side model.Side, user string) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE side = ? AND user = ?`, int(side), user)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// DeleteUserTx is DeleteUser run inside an existing transaction, used
// by the retention sweep to keep the row delete and its cascades
// atomic.
func (s *Store) DeleteUserTx(tx *sql.Tx, side model.Side, user string) error {
	_, err := tx.Exec(`DELETE FROM users WHERE side = ? AND user = ?`, int(side), user)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// CountActiveUsers returns the bridge-wide count of active users
// (both sides), for the max_reg_users admission check.
func (s *Store) CountActiveUsers() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE revoke_date IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return n, nil
}

// ListActiveUsers returns every active users row on side, for the
// "list users" admin command.
func (s *Store) ListActiveUsers(side model.Side) ([]model.User, error) {
	rows, err := s.db.Query(`SELECT side, user, req_date, nb_reg, lang, revoke_date, app, acc_id
		FROM users WHERE side = ? AND revoke_date IS NULL ORDER BY user`, int(side))
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListActiveUsersByDomain returns every active users row on side whose
// address domain equals domain, for redlist/greenlist/instance-block
// sweeps.
func (s *Store) ListActiveUsersByDomain(side model.Side, domain string) ([]model.User, error) {
	rows, err := s.db.Query(`SELECT side, user, req_date, nb_reg, lang, revoke_date, app, acc_id
		FROM users WHERE side = ? AND revoke_date IS NULL AND user LIKE ?`,
		int(side), "%@"+domain)
	if err != nil {
		return nil, fmt.Errorf("list active users by domain: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]model.User, error) {
	var out []model.User
	for rows.Next() {
		var (
			u          model.User
			side       int
			revokeDate sql.NullTime
			lang       sql.NullString
			app        sql.NullString
			accID      sql.NullString
		)
		if err := rows.Scan(&side, &u.User, &u.ReqDate, &u.NbReg, &lang, &revokeDate, &app, &accID); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Side = model.Side(side)
		if lang.Valid {
			u.Lang = lang.String
		}
		if app.Valid {
			u.App = app.String
		}
		if accID.Valid {
			u.AccID = accID.String
		}
		if revokeDate.Valid {
			t := revokeDate.Time
			u.RevokeDate = &t
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
