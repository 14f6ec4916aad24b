// Package manager implements UserManager's unregister operation
// (spec.md §4.4): revoke the users row, cascade-delete its blocks/comm
// rows, then perform the inverse roster synchronization.
package manager

import (
	"context"
	"database/sql"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/blog"
	"github.com/barbapulpe/xmppapbridge/internal/bridgeerr"
	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/config"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/store"
	"github.com/barbapulpe/xmppapbridge/internal/translations"
)

// Manager owns the unregister operation.
type Manager struct {
	Store   *store.Store
	Catalog translations.Catalog
	Config  *config.Config
}

// Now is overridable in tests.
var Now = time.Now

// Unregister implements spec.md §4.4.
func (m *Manager) Unregister(
	ctx context.Context,
	side model.Side,
	user string,
	fromUnfollowEvent bool,
	lang string,
	xmppSess capability.XMPPSession,
	fediClient capability.FediClient,
) (reply string, err error) {
	u, serr := m.Store.FetchUser(side, user)
	if serr != nil {
		return "", bridgeerr.NewStoreError("fetch user", serr)
	}
	L := m.replyLang(u, lang)
	if u == nil {
		if fromUnfollowEvent {
			return "", nil
		}
		return m.Catalog.Text("notregistered", L), nil
	}
	if !u.Active() {
		if fromUnfollowEvent {
			return "", nil
		}
		return m.Catalog.Text("alreadyrevoked", L), nil
	}

	err = m.Store.WithTx(func(tx *sql.Tx) error {
		if err := m.Store.RevokeUserTx(tx, side, user, Now()); err != nil {
			return err
		}
		if err := m.Store.DeleteBlocksByBlocking(tx, side, user); err != nil {
			return err
		}
		return m.Store.DeleteCommForUser(tx, side, user)
	})
	if err != nil {
		return "", bridgeerr.NewStoreError("revoke user", err)
	}

	reply = m.Catalog.Text("unregistered", L)
	rosterOK := m.inverseRoster(ctx, side, user, u.AccID, xmppSess, fediClient)
	if rosterOK {
		reply = reply + " " + m.Catalog.Text("contactremoved", L)
	}
	return reply, nil
}

// inverseRoster implements the unfollow/unsubscribe half of spec.md
// §4.4: unfollow on Fediverse; unsubscribe + unsubscribed + roster
// removal on XMPP.
func (m *Manager) inverseRoster(
	ctx context.Context, side model.Side, user, accID string,
	xmppSess capability.XMPPSession, fediClient capability.FediClient,
) bool {
	switch side {
	case model.FEDI:
		if fediClient == nil {
			return false
		}
		id := accID
		if id == "" {
			acct, err := fediClient.AccountLookup(ctx, user)
			if err != nil {
				blog.Errorf("%v", bridgeerr.NewTransportError("account lookup "+user, err))
				return false
			}
			id = acct.ID
		}
		if err := fediClient.AccountUnfollow(ctx, id); err != nil {
			blog.Errorf("%v", bridgeerr.NewTransportError("account unfollow "+id, err))
			return false
		}
		return true

	default:
		if xmppSess == nil {
			return false
		}
		_ = xmppSess.SetPresenceSubscription(ctx, user, capability.Unsubscribe)
		_ = xmppSess.SetPresenceSubscription(ctx, user, capability.Unsubscribed)
		if err := xmppSess.DelRosterItem(ctx, user); err != nil {
			blog.Errorf("%v", bridgeerr.NewTransportError("del roster item "+user, err))
			return false
		}
		return true
	}
}

func (m *Manager) replyLang(u *model.User, lang string) string {
	if lang != "" {
		return lang
	}
	if u != nil && u.Lang != "" {
		return u.Lang
	}
	return m.Config.DefaultLang
}
