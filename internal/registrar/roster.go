package registrar

import (
	"context"

	"github.com/barbapulpe/xmppapbridge/internal/blog"
	"github.com/barbapulpe/xmppapbridge/internal/bridgeerr"
	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/model"
)

// syncRoster implements spec.md §4.3.2: bring the bridge's own
// follow/roster relationship with user in line with its registration,
// appending a status clause to reply.
func (r *Registrar) syncRoster(
	ctx context.Context,
	side model.Side,
	user string,
	fromFollowEvent bool,
	reply string,
	xmppSess capability.XMPPSession,
	fediClient capability.FediClient,
) (string, bool, error) {
	switch side {
	case model.FEDI:
		return r.syncFediRoster(ctx, user, reply, fediClient)
	default:
		return r.syncXMPPRoster(ctx, user, fromFollowEvent, reply, xmppSess)
	}
}

func (r *Registrar) syncFediRoster(ctx context.Context, user, reply string, fedi capability.FediClient) (string, bool, error) {
	acct, err := fedi.AccountLookup(ctx, user)
	if err != nil {
		blog.Errorf("%v", bridgeerr.NewTransportError("account lookup "+user, err))
		return reply, true, nil
	}
	if err := fedi.AccountFollow(ctx, acct.ID); err != nil {
		blog.Errorf("%v", bridgeerr.NewTransportError("account follow "+acct.ID, err))
		return reply, true, nil
	}
	rel, err := fedi.AccountRelationships(ctx, acct.ID)
	if err != nil {
		blog.Errorf("%v", bridgeerr.NewTransportError("account relationships "+acct.ID, err))
		return reply, true, nil
	}
	switch {
	case rel.Requested:
		reply = appendClause(reply, r.Catalog.Text("awaitingapproval", r.currentLang(model.FEDI, user)))
	case rel.Following:
		reply = appendClause(reply, r.Catalog.Text("contactadded", r.currentLang(model.FEDI, user)))
	}
	if !rel.FollowedBy && !rel.RequestedBy {
		reply = appendClause(reply, r.Catalog.Text("pleasefollowback", r.currentLang(model.FEDI, user)))
	}
	return reply, true, nil
}

func (r *Registrar) syncXMPPRoster(
	ctx context.Context, user string, fromFollowEvent bool, reply string, xmppSess capability.XMPPSession,
) (string, bool, error) {
	sub, err := xmppSess.RosterSubscription(ctx, user)
	if err != nil {
		blog.Errorf("%v", bridgeerr.NewTransportError("roster subscription "+user, err))
		return reply, true, nil
	}
	switch sub {
	case capability.SubNone, capability.SubTo:
		if !fromFollowEvent {
			if err := xmppSess.SetPresenceSubscription(ctx, user, capability.Subscribe); err != nil {
				blog.Errorf("%v", bridgeerr.NewTransportError("subscribe "+user, err))
			}
		}
	}
	switch sub {
	case capability.SubBoth:
		reply = appendClause(reply, r.Catalog.Text("contactadded", r.currentLang(model.XMPP, user)))
	case capability.SubFrom:
		reply = appendClause(reply, r.Catalog.Text("pleasefollowback", r.currentLang(model.XMPP, user)))
	}
	return reply, true, nil
}

func (r *Registrar) currentLang(side model.Side, user string) string {
	if u, err := r.Store.FetchUser(side, user); err == nil && u != nil && u.Lang != "" {
		return u.Lang
	}
	return r.Config.DefaultLang
}

func appendClause(base, clause string) string {
	if clause == "" {
		return base
	}
	if base == "" {
		return clause
	}
	return base + " " + clause
}
