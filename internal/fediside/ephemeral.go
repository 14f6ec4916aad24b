package fediside

import (
	"context"
	"sync"

	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/xmppside"
)

// ephemeralXMPPSession implements capability.XMPPSession for the
// Fediverse-side process, which holds no persistent XMPP session: it
// dials on first use and is closed once per inbound notification,
// per spec.md §5's "ephemeral short-lived session per message
// (login → send → disconnect)".
type ephemeralXMPPSession struct {
	jid, password string

	mu   sync.Mutex
	sess *xmppside.Session
}

func newEphemeralSession(jid, password string) *ephemeralXMPPSession {
	return &ephemeralXMPPSession{jid: jid, password: password}
}

func (e *ephemeralXMPPSession) dial(ctx context.Context) (*xmppside.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		sess, err := xmppside.Dial(ctx, e.jid, e.password)
		if err != nil {
			return nil, err
		}
		e.sess = sess
	}
	return e.sess, nil
}

func (e *ephemeralXMPPSession) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != nil {
		e.sess.Close()
		e.sess = nil
	}
}

func (e *ephemeralXMPPSession) SendMessage(ctx context.Context, to, body, lang string) error {
	sess, err := e.dial(ctx)
	if err != nil {
		return err
	}
	return sess.SendMessage(ctx, to, body, lang)
}

func (e *ephemeralXMPPSession) SetPresenceSubscription(ctx context.Context, to string, kind capability.PresenceKind) error {
	sess, err := e.dial(ctx)
	if err != nil {
		return err
	}
	return sess.SetPresenceSubscription(ctx, to, kind)
}

func (e *ephemeralXMPPSession) DelRosterItem(ctx context.Context, jid string) error {
	sess, err := e.dial(ctx)
	if err != nil {
		return err
	}
	return sess.DelRosterItem(ctx, jid)
}

func (e *ephemeralXMPPSession) RosterSubscription(ctx context.Context, jid string) (capability.Subscription, error) {
	sess, err := e.dial(ctx)
	if err != nil {
		return capability.SubNone, err
	}
	return sess.RosterSubscription(ctx, jid)
}
