package store

import "fmt"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	side        INTEGER NOT NULL,
	user        TEXT    NOT NULL,
	req_date    DATETIME NOT NULL,
	nb_reg      INTEGER NOT NULL DEFAULT 0,
	lang        TEXT,
	revoke_date DATETIME,
	app         TEXT,
	acc_id      TEXT,
	PRIMARY KEY (side, user)
);

CREATE TABLE IF NOT EXISTS blocks (
	side       INTEGER NOT NULL,
	blocking   TEXT    NOT NULL,
	blocked    TEXT    NOT NULL,
	block_date DATETIME NOT NULL,
	PRIMARY KEY (side, blocking, blocked)
);

CREATE TABLE IF NOT EXISTS instb (
	side       INTEGER NOT NULL,
	blocked    TEXT    NOT NULL,
	block_date DATETIME NOT NULL,
	PRIMARY KEY (side, blocked)
);

CREATE TABLE IF NOT EXISTS comm (
	side      INTEGER NOT NULL,
	user      TEXT    NOT NULL,
	from_u    TEXT    NOT NULL,
	from_date DATETIME NOT NULL,
	id_from   TEXT,
	id_to     TEXT
);

CREATE INDEX IF NOT EXISTS comm_id_to_idx   ON comm (side, id_to);
CREATE INDEX IF NOT EXISTS comm_id_from_idx ON comm (side, id_from);
CREATE INDEX IF NOT EXISTS comm_user_idx    ON comm (side, user, from_date);
CREATE INDEX IF NOT EXISTS comm_fromu_idx   ON comm (side, from_u, from_date);
`

// Migrate ensures all four tables exist. It is idempotent and safe to
// call once per process at startup, per spec.md §4.7 step 1.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
