package xmppside

import (
	"context"
	"encoding/xml"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/blog"
	"github.com/barbapulpe/xmppapbridge/internal/bridgecore"
	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

const reconnectBackoff = 10 * time.Second

// Listener owns the bridge's one persistent XMPP session: a connect →
// run → disconnect → backoff loop, each inbound stanza handed to the
// shared Pipeline through a single-goroutine mailbox, grounded on
// module/offline's actorLoop shape.
type Listener struct {
	JID      string
	Password string
	Pipeline *bridgecore.Pipeline

	actorCh chan func()
}

// Run drives the reconnect loop until ctx is cancelled, per spec.md
// §5's "resumed on disconnect after a 10-second backoff."
func (l *Listener) Run(ctx context.Context) {
	l.actorCh = make(chan func(), 64)
	go l.actorLoop(ctx)

	for {
		if ctx.Err() != nil {
			return
		}
		sess, err := Dial(ctx, l.JID, l.Password)
		if err != nil {
			blog.Errorf("xmppside: connect: %v", err)
		} else {
			if err := l.runUntilDisconnect(ctx, sess); err != nil {
				blog.Warnf("xmppside: session ended: %v", err)
			}
			sess.Close()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func (l *Listener) actorLoop(ctx context.Context) {
	for {
		select {
		case f := <-l.actorCh:
			f()
		case <-ctx.Done():
			return
		}
	}
}

// runUntilDisconnect reads stanzas off sess until the stream breaks,
// dispatching each onto the mailbox so handling never blocks the
// reader.
func (l *Listener) runUntilDisconnect(ctx context.Context, sess *Session) error {
	tr := sess.TokenReader()
	for {
		tok, err := tr.Token()
		if err != nil {
			return err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "message":
			l.handleMessage(ctx, sess, tr, start)
		case "presence":
			l.handlePresence(ctx, sess, tr, start)
		case "iq":
			l.handleIQ(sess, tr, start)
		}
	}
}

func (l *Listener) handleMessage(ctx context.Context, sess *Session, tr xml.TokenReader, start xml.StartElement) {
	var from, id, mtype string
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "from":
			from = a.Value
		case "id":
			id = a.Value
		case "type":
			mtype = a.Value
		}
	}
	if mtype != "" && mtype != string(stanza.ChatMessage) && mtype != string(stanza.NormalMessage) {
		return
	}

	var body string
	var hasBody bool
	for {
		tok, err := tr.Token()
		if err != nil {
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "body" {
				if bt, err := tr.Token(); err == nil {
					if cd, ok := bt.(xml.CharData); ok {
						body = string(cd)
						hasBody = true
					}
				}
			}
		case xml.EndElement:
			if t.Name.Local == "message" {
				if hasBody {
					l.dispatchMessage(ctx, sess, from, id, body)
				}
				return
			}
		}
	}
}

func (l *Listener) dispatchMessage(ctx context.Context, sess *Session, from, id, body string) {
	l.actorCh <- func() {
		sender := jid.MustParse(from).Bare().String()
		d := model.Dispatch{Side: model.XMPP, Sender: sender, Body: body, FromID: id}
		reply, err := l.Pipeline.HandleMessage(ctx, d, sess, nil)
		if err != nil {
			blog.Errorf("xmppside: handle message from %s: %v", sender, err)
			return
		}
		if reply != "" {
			if err := sess.SendMessage(ctx, sender, reply, ""); err != nil {
				blog.Errorf("xmppside: reply to %s: %v", sender, err)
			}
		}
	}
}

func (l *Listener) handlePresence(ctx context.Context, sess *Session, tr xml.TokenReader, start xml.StartElement) {
	var from, ptype string
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "from":
			from = a.Value
		case "type":
			ptype = a.Value
		}
	}
	drainElement(tr, "presence")

	switch ptype {
	case string(stanza.SubscribePresence):
		l.actorCh <- func() {
			sender := jid.MustParse(from).Bare().String()
			reply, err := l.Pipeline.HandleFollowEvent(ctx, model.XMPP, sender, sess, nil)
			if err != nil {
				blog.Errorf("xmppside: handle subscribe from %s: %v", sender, err)
				return
			}
			_ = sess.SetPresenceSubscription(ctx, sender, capability.Subscribed)
			if reply != "" {
				_ = sess.SendMessage(ctx, sender, reply, "")
			}
		}
	case string(stanza.UnsubscribePresence):
		l.actorCh <- func() {
			sender := jid.MustParse(from).Bare().String()
			if _, err := l.Pipeline.HandleUnfollowEvent(ctx, model.XMPP, sender, sess, nil); err != nil {
				blog.Errorf("xmppside: handle unsubscribe from %s: %v", sender, err)
			}
		}
	}
}

func (l *Listener) handleIQ(sess *Session, tr xml.TokenReader, start xml.StartElement) {
	for {
		tok, err := tr.Token()
		if err != nil {
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "query" && t.Name.Space == "jabber:iq:roster" {
				l.handleRosterQuery(sess, tr, t)
				return
			}
		case xml.EndElement:
			if t.Name.Local == "iq" {
				return
			}
		}
	}
}

func (l *Listener) handleRosterQuery(sess *Session, tr xml.TokenReader, start xml.StartElement) {
	for {
		tok, err := tr.Token()
		if err != nil {
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "item" {
				var itemJID, sub string
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "jid":
						itemJID = a.Value
					case "subscription":
						sub = a.Value
					}
				}
				drainElement(tr, "item")
				sess.setRosterSubscription(itemJID, sub)
			}
		case xml.EndElement:
			if t.Name.Local == "query" {
				return
			}
		}
	}
}

// drainElement consumes tokens up to and including the matching end
// element for name, discarding content the caller doesn't need.
func drainElement(tr xml.TokenReader, name string) {
	depth := 1
	for depth > 0 {
		tok, err := tr.Token()
		if err != nil {
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == name {
				depth++
			}
		case xml.EndElement:
			if t.Name.Local == name {
				depth--
			}
		}
	}
}
