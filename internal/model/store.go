package model

import "time"

// User is a row of the users table: a registered (or once-registered)
// bridge participant on one side.
type User struct {
	Side       Side
	User       string // address string, e.g. "alice@example.org"
	ReqDate    time.Time
	NbReg      int
	Lang       string
	RevokeDate *time.Time // nil iff active
	App        string
	AccID      string // opaque sender-side id, used for Fediverse unfollow
}

// Active reports whether the row currently represents a live
// registration.
func (u *User) Active() bool {
	return u != nil && u.RevokeDate == nil
}

// Block is a row of the blocks table: a personal block list entry.
// Blocking is on Side and has blocked Blocked, which lives on the
// opposite side.
type Block struct {
	Side      Side
	Blocking  string
	Blocked   string
	BlockDate time.Time
}

// InstBlock is a row of the instb table: a bridge-wide admin block.
// Side denotes the side Blocked lives on.
type InstBlock struct {
	Side      Side
	Blocked   string
	BlockDate time.Time
}

// Comm is a row of the comm table: one recorded delivery, letting
// future replies/resends be threaded back to their sender.
type Comm struct {
	Side     Side // side of User (the recipient)
	User     string
	FromU    string // sender, on the opposite side
	FromDate time.Time
	IDFrom   string // sender-side message id
	IDTo     string // recipient-side message id
}
