package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/model"
)

// InsertComm records one successful delivery to a single recipient,
// per spec.md §3's "written once per successful delivery" invariant.
func (s *Store) InsertComm(tx *sql.Tx, c model.Comm) error {
	_, err := tx.Exec(`INSERT INTO comm(side, user, from_u, from_date, id_from, id_to)
		VALUES (?, ?, ?, ?, ?, ?)`, int(c.Side), c.User, c.FromU, c.FromDate, c.IDFrom, c.IDTo)
	if err != nil {
		return fmt.Errorf("insert comm: %w", err)
	}
	return nil
}

// FetchCommByIDTo looks up comm(side, id_to=idTo): "who sent me this",
// used by the Fediverse side to resolve a reply_id to its original
// sender.
func (s *Store) FetchCommByIDTo(side model.Side, idTo string) (*model.Comm, error) {
	row := s.db.QueryRow(`SELECT side, user, from_u, from_date, id_from, id_to FROM comm
		WHERE side = ? AND id_to = ? ORDER BY from_date DESC LIMIT 1`, int(side), idTo)
	c, err := scanComm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch comm by id_to: %w", err)
	}
	return c, nil
}

// FetchCommByIDFrom returns every comm row sharing id_from on side:
// "who did I just fan out to", used to resolve a resend.
func (s *Store) FetchCommByIDFrom(side model.Side, idFrom string) ([]model.Comm, error) {
	rows, err := s.db.Query(`SELECT side, user, from_u, from_date, id_from, id_to FROM comm
		WHERE side = ? AND id_from = ? ORDER BY from_date DESC`, int(side), idFrom)
	if err != nil {
		return nil, fmt.Errorf("fetch comm by id_from: %w", err)
	}
	defer rows.Close()
	return scanComms(rows)
}

// FetchLatestCommByUser returns the most-recent comm row for
// (side, user=user): the last inbound reply-able delivery to this
// user.
func (s *Store) FetchLatestCommByUser(side model.Side, user string) (*model.Comm, error) {
	row := s.db.QueryRow(`SELECT side, user, from_u, from_date, id_from, id_to FROM comm
		WHERE side = ? AND user = ? ORDER BY from_date DESC LIMIT 1`, int(side), user)
	c, err := scanComm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch latest comm by user: %w", err)
	}
	return c, nil
}

// FetchRecentCommByFromU returns the most-recent limit rows of
// comm(side, from_u=fromU): the user's last outbound fan-outs.
func (s *Store) FetchRecentCommByFromU(side model.Side, fromU string, limit int) ([]model.Comm, error) {
	rows, err := s.db.Query(`SELECT side, user, from_u, from_date, id_from, id_to FROM comm
		WHERE side = ? AND from_u = ? ORDER BY from_date DESC LIMIT ?`, int(side), fromU, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch recent comm by from_u: %w", err)
	}
	defer rows.Close()
	return scanComms(rows)
}

// CountCommFromSince counts comm rows with from_u=fromU and
// from_date >= since, for the rate-limit admission check of
// spec.md §4.6 preflight step 2.
func (s *Store) CountCommFromSince(fromU string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM comm WHERE from_u = ? AND from_date >= ?`, fromU, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count comm from since: %w", err)
	}
	return n, nil
}

// DeleteCommForUser removes every comm row where user (on side) is
// either the recipient or, on the opposite side, the sender, per
// spec.md §4.4's unregister cleanup.
func (s *Store) DeleteCommForUser(tx *sql.Tx, side model.Side, user string) error {
	if _, err := tx.Exec(`DELETE FROM comm WHERE side = ? AND user = ?`, int(side), user); err != nil {
		return fmt.Errorf("delete comm as recipient: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM comm WHERE side = ? AND from_u = ?`, int(side.Opposite()), user); err != nil {
		return fmt.Errorf("delete comm as sender: %w", err)
	}
	return nil
}

// PurgeCommOlderThan deletes every comm row older than before, per
// spec.md §4.7 step 3's comm_limit retention.
func (s *Store) PurgeCommOlderThan(before time.Time) error {
	if _, err := s.db.Exec(`DELETE FROM comm WHERE from_date < ?`, before); err != nil {
		return fmt.Errorf("purge comm: %w", err)
	}
	return nil
}

func scanComm(row *sql.Row) (*model.Comm, error) {
	var (
		c    model.Comm
		side int
	)
	if err := row.Scan(&side, &c.User, &c.FromU, &c.FromDate, &c.IDFrom, &c.IDTo); err != nil {
		return nil, err
	}
	c.Side = model.Side(side)
	return &c, nil
}

func scanComms(rows *sql.Rows) ([]model.Comm, error) {
	var out []model.Comm
	for rows.Next() {
		var (
			c    model.Comm
			side int
		)
		if err := rows.Scan(&side, &c.User, &c.FromU, &c.FromDate, &c.IDFrom, &c.IDTo); err != nil {
			return nil, fmt.Errorf("scan comm: %w", err)
		}
		c.Side = model.Side(side)
		out = append(out, c)
	}
	return out, rows.Err()
}
