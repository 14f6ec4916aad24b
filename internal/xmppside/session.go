// Package xmppside is the XMPP half of the bridge: a persistent
// mellium.im/xmpp session implementing capability.XMPPSession, and
// the listener that feeds incoming stanzas into a Pipeline. Grounded
// on meszmate-roster's internal/xmpp client (negotiator construction,
// token-by-token stanza reading) adapted from a general-purpose roster
// client into the bridge's narrow capability surface.
package xmppside

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"mellium.im/sasl"
	"mellium.im/xmpp"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// Session is a live, persistent XMPP connection. It satisfies
// capability.XMPPSession.
type Session struct {
	session *xmpp.Session
	jid     jid.JID

	mu      sync.RWMutex
	roster  map[string]capability.Subscription
}

// Dial negotiates a new session against the JID's domain, per
// spec.md §5's "persistent session, resumed on disconnect" model.
func Dial(ctx context.Context, bareJID, password string) (*Session, error) {
	j, err := jid.Parse(bareJID)
	if err != nil {
		return nil, fmt.Errorf("xmppside: parse jid: %w", err)
	}

	addr := net.JoinHostPort(j.Domain().String(), strconv.Itoa(5222))
	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("xmppside: dial: %w", err)
	}

	tlsConfig := &tls.Config{ServerName: j.Domain().String(), MinVersion: tls.VersionTLS12}
	negotiator := xmpp.NewNegotiator(func(*xmpp.Session, *xmpp.StreamConfig) xmpp.StreamConfig {
		return xmpp.StreamConfig{
			Features: []xmpp.StreamFeature{
				xmpp.StartTLS(tlsConfig),
				xmpp.SASL("", password, sasl.ScramSha256Plus, sasl.ScramSha256, sasl.ScramSha1Plus, sasl.ScramSha1, sasl.Plain),
				xmpp.BindResource(),
			},
		}
	})

	sess, err := xmpp.NewSession(ctx, j.Domain(), j, conn, 0, negotiator)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("xmppside: negotiate: %w", err)
	}

	s := &Session{session: sess, jid: sess.LocalAddr(), roster: make(map[string]capability.Subscription)}
	if err := s.requestRoster(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close tears down the underlying stream.
func (s *Session) Close() error {
	return s.session.Close()
}

// TokenReader exposes the raw stream for the Listener's read loop.
func (s *Session) TokenReader() xml.TokenReader { return s.session.TokenReader() }

// JID returns the bridge's bound address.
func (s *Session) JID() jid.JID { return s.jid }

type xmlLangBody struct {
	Lang string `xml:"xml:lang,attr,omitempty"`
	Text string `xml:",chardata"`
}

type chatMessage struct {
	stanza.Message
	Body xmlLangBody `xml:"body"`
}

// SendMessage implements capability.XMPPSession.
func (s *Session) SendMessage(ctx context.Context, to, body, lang string) error {
	toJID, err := jid.Parse(to)
	if err != nil {
		return fmt.Errorf("xmppside: parse recipient: %w", err)
	}
	msg := chatMessage{
		Message: stanza.Message{To: toJID, Type: stanza.ChatMessage},
		Body:    xmlLangBody{Lang: lang, Text: body},
	}
	return s.session.Encode(ctx, msg)
}

type presenceIQ struct {
	stanza.Presence
}

// SetPresenceSubscription implements capability.XMPPSession.
func (s *Session) SetPresenceSubscription(ctx context.Context, to string, kind capability.PresenceKind) error {
	toJID, err := jid.Parse(to)
	if err != nil {
		return fmt.Errorf("xmppside: parse recipient: %w", err)
	}
	var ptype stanza.PresenceType
	switch kind {
	case capability.Subscribe:
		ptype = stanza.SubscribePresence
	case capability.Subscribed:
		ptype = stanza.SubscribedPresence
	case capability.Unsubscribe:
		ptype = stanza.UnsubscribePresence
	case capability.Unsubscribed:
		ptype = stanza.UnsubscribedPresence
	}
	p := presenceIQ{Presence: stanza.Presence{To: toJID.Bare(), Type: ptype}}
	return s.session.Encode(ctx, p)
}

type rosterItem struct {
	JID          string `xml:"jid,attr"`
	Subscription string `xml:"subscription,attr,omitempty"`
}

type rosterQuery struct {
	XMLName xml.Name   `xml:"jabber:iq:roster query"`
	Item    rosterItem `xml:"item"`
}

type rosterSetIQ struct {
	stanza.IQ
	Query rosterQuery
}

// DelRosterItem implements capability.XMPPSession: send subscription
// "remove", the jabber:iq:roster way of deleting a contact.
func (s *Session) DelRosterItem(ctx context.Context, jidStr string) error {
	toJID, err := jid.Parse(jidStr)
	if err != nil {
		return fmt.Errorf("xmppside: parse jid: %w", err)
	}
	iq := rosterSetIQ{
		IQ:    stanza.IQ{Type: stanza.SetIQ},
		Query: rosterQuery{Item: rosterItem{JID: toJID.Bare().String(), Subscription: "remove"}},
	}
	if err := s.session.Encode(ctx, iq); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.roster, toJID.Bare().String())
	s.mu.Unlock()
	return nil
}

// RosterSubscription implements capability.XMPPSession from the
// cached roster, kept current by the Listener's presence/roster-push
// handling.
func (s *Session) RosterSubscription(ctx context.Context, jidStr string) (capability.Subscription, error) {
	toJID, err := jid.Parse(jidStr)
	if err != nil {
		return capability.SubNone, fmt.Errorf("xmppside: parse jid: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roster[toJID.Bare().String()], nil
}

// setRosterSubscription is called by the Listener's roster-push
// handler to keep the cache current.
func (s *Session) setRosterSubscription(jidStr, subscription string) {
	sub := capability.SubNone
	switch subscription {
	case "to":
		sub = capability.SubTo
	case "from":
		sub = capability.SubFrom
	case "both":
		sub = capability.SubBoth
	}
	s.mu.Lock()
	s.roster[jidStr] = sub
	s.mu.Unlock()
}

type rosterGetIQ struct {
	stanza.IQ
	Query struct {
		XMLName xml.Name `xml:"jabber:iq:roster query"`
	}
}

func (s *Session) requestRoster(ctx context.Context) error {
	iq := rosterGetIQ{IQ: stanza.IQ{Type: stanza.GetIQ}}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.session.Encode(ctx, iq)
}
