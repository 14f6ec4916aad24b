// Package capability defines the two narrow interfaces the core
// pipeline consumes from its XMPP and Fediverse collaborators,
// per DESIGN NOTES §9: "the core accepts a capability object that can
// send chat and modify roster; concrete implementations choose
// persistent vs transient." Grounded on klppl-klistr's APHandler,
// which accepts Signer/Publisher/Store as narrow interfaces rather
// than a concrete client type.
package capability

import (
	"context"
	"time"
)

// PresenceKind is a subscription-management presence stanza type.
type PresenceKind int

const (
	Subscribe PresenceKind = iota
	Subscribed
	Unsubscribe
	Unsubscribed
)

// Subscription mirrors an XMPP roster item's subscription state.
type Subscription int

const (
	SubNone Subscription = iota
	SubTo
	SubFrom
	SubBoth
)

// XMPPSession is the capability surface the core needs from an XMPP
// collaborator: send a chat message and manage one roster item. A
// persistent session (the listener's own) and an ephemeral one
// (login-send-disconnect) both satisfy this.
type XMPPSession interface {
	SendMessage(ctx context.Context, to, body, lang string) error
	SetPresenceSubscription(ctx context.Context, to string, kind PresenceKind) error
	DelRosterItem(ctx context.Context, jid string) error
	RosterSubscription(ctx context.Context, jid string) (Subscription, error)
}

// Relationship mirrors Mastodon's account_relationships response.
type Relationship struct {
	Following    bool
	Requested    bool
	FollowedBy   bool
	RequestedBy  bool
}

// Account mirrors the fields the core needs from account_lookup.
type Account struct {
	ID     string
	Note   string // bio, HTML
	Bot    bool
	Group  bool
	Locked bool
}

// Status mirrors one entry of account_statuses.
type Status struct {
	CreatedAt time.Time
	Language  string
}

// FediClient is the capability surface the core needs from a
// Fediverse/Mastodon collaborator.
type FediClient interface {
	AccountFollow(ctx context.Context, id string) error
	AccountUnfollow(ctx context.Context, id string) error
	AccountRelationships(ctx context.Context, id string) (Relationship, error)
	AccountLookup(ctx context.Context, acct string) (Account, error)
	AccountStatuses(ctx context.Context, id string, limit int) ([]Status, error)
	StatusPost(ctx context.Context, body, inReplyTo, lang string) (id string, err error)
	FollowRequestAuthorize(ctx context.Context, id string) error
	FollowRequestReject(ctx context.Context, id string) error
	InstanceDomainBlocks(ctx context.Context) ([]string, error)
	MaxCharacters(ctx context.Context) (int, error)
	VerifyCredentialsLocked(ctx context.Context) (bool, error)
}
