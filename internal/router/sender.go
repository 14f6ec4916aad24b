// Package router implements MessageSender (spec.md §4.6): preflight
// admission checks, recipient resolution against the comm thread
// table, and the final per-side delivery fan-out.
package router

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/blog"
	"github.com/barbapulpe/xmppapbridge/internal/bridgeerr"
	"github.com/barbapulpe/xmppapbridge/internal/bridgefile"
	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/config"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/registrar"
	"github.com/barbapulpe/xmppapbridge/internal/store"
	"github.com/barbapulpe/xmppapbridge/internal/translations"
	"github.com/pborman/uuid"
)

// Sender owns the routing and delivery operation.
type Sender struct {
	Store     *store.Store
	Files     *bridgefile.Files
	Config    *config.Config
	Catalog   translations.Catalog
	Registrar *registrar.Registrar
}

// Now is overridable in tests.
var Now = time.Now

// Send runs the preflight checks, resolves recipients, auto-registers
// the sender if needed, and delivers d.Body to every resolved
// recipient, recording one comm row per successful delivery.
func (s *Sender) Send(
	ctx context.Context,
	d model.Dispatch,
	parsed model.ParsedContent,
	xmppSess capability.XMPPSession,
	fediClient capability.FediClient,
) (reply string, err error) {
	L := s.replyLang(d.Side, d.Sender)

	if !s.Files.Started() {
		return s.Catalog.Text("stopped", L), nil
	}
	if s.Config.MaxUserRate > 0 {
		n, cerr := s.Store.CountCommFromSince(d.Sender, Now().Add(-5*time.Minute))
		if cerr != nil {
			return "", bridgeerr.NewStoreError("count comm rate", cerr)
		}
		if n >= s.Config.MaxUserRate {
			return s.Catalog.Text("rateexceeded", L), nil
		}
	}
	if d.Side == model.XMPP && parsed.FlagShortAP {
		return s.Catalog.Text("shortap", L), nil
	}

	res, err := s.resolve(d, parsed)
	if err != nil {
		return "", err
	}
	if res == nil || len(res.recipients) == 0 {
		return s.Catalog.Text("noaddress", L), nil
	}

	maxDest := s.Config.EffectiveMaxDest()
	if len(res.recipients) > maxDest {
		return s.Catalog.Text("toomany", L), nil
	}

	u, serr := s.Store.FetchUser(d.Side, d.Sender)
	if serr != nil {
		return "", bridgeerr.NewStoreError("fetch sender", serr)
	}
	if u == nil || !u.Active() {
		regReply, ok, rerr := s.Registrar.Register(ctx, d.Side, d.Sender, false, "", xmppSess, fediClient)
		if rerr != nil {
			return "", rerr
		}
		if !ok {
			return regReply, nil
		}
	}

	switch d.Side {
	case model.FEDI:
		return s.deliverToXMPP(ctx, d, res, L, xmppSess)
	default:
		return s.deliverToFedi(ctx, d, res, L, fediClient)
	}
}

func (s *Sender) resolve(d model.Dispatch, parsed model.ParsedContent) (*resolution, error) {
	var targets []string
	if d.Side == model.FEDI {
		targets = parsed.XMPPJIDs
	} else {
		targets = parsed.APAddrs
	}
	if len(targets) > 0 {
		return &resolution{recipients: targets, isReply: d.ReplyID != "", replyID: d.ReplyID}, nil
	}

	if d.Side == model.FEDI {
		if res, ok := s.resolveFedi(d.Sender, d.ReplyID); ok {
			return &res, nil
		}
		return nil, nil
	}
	res, ok := s.resolveXMPP(d.Sender, s.Config.EffectiveMaxDest(), s.Config.MaxMinutesForReply, Now())
	if !ok {
		return nil, nil
	}
	return &res, nil
}

// deliverToXMPP handles a Fediverse-origin post being relayed to one
// or more XMPP recipients: one chat message per recipient, each
// recording its own comm row.
func (s *Sender) deliverToXMPP(
	ctx context.Context, d model.Dispatch, res *resolution, L string, xmppSess capability.XMPPSession,
) (string, error) {
	if xmppSess == nil {
		return "", fmt.Errorf("router: no xmpp session available")
	}

	senderUser, uerr := s.Store.FetchUser(d.Side, d.Sender)
	if uerr != nil {
		return "", bridgeerr.NewStoreError("fetch sender", uerr)
	}
	app := ""
	if senderUser != nil {
		app = senderUser.App
	}

	now := Now()
	var delivered, blockedWarn int
	for i, to := range res.recipients {
		if blocked, err := s.mutuallyBlocked(model.XMPP, to, d.Sender); err != nil {
			return "", err
		} else if blocked {
			blockedWarn++
			continue
		}

		body := d.Body
		if i == 0 {
			prefix := fmt.Sprintf("> answer from %s %s", app, d.Sender)
			if !res.isReply {
				prefix = fmt.Sprintf("> new msg from %s %s", app, d.Sender)
			}
			body = prefix + "\n" + body
		}
		if err := xmppSess.SendMessage(ctx, to, body, L); err != nil {
			blog.Errorf("%v", bridgeerr.NewTransportError("xmpp send to "+to, err))
			continue
		}

		idTo := uuid.New()
		c := model.Comm{Side: model.XMPP, User: to, FromU: d.Sender, FromDate: now, IDFrom: d.FromID, IDTo: idTo}
		if err := s.Store.WithTx(func(tx *sql.Tx) error { return s.Store.InsertComm(tx, c) }); err != nil {
			return "", bridgeerr.NewStoreError("insert comm", err)
		}
		delivered++
	}

	if s.Config.SilentSend && delivered > 0 {
		return "", nil
	}
	if delivered == 0 {
		return s.Catalog.Text("sendfailed", L), nil
	}
	reply := s.Catalog.Text("sent", L)
	if blockedWarn > 0 && !s.Config.SilentBlock {
		reply = appendClause(reply, s.Catalog.Text("blockedwarn", L))
	}
	return reply, nil
}

// deliverToFedi handles an XMPP-origin message being relayed as a
// single Fediverse status: one post, mentioning every non-blocked
// recipient, recording one comm row per recipient sharing the new
// status id.
func (s *Sender) deliverToFedi(
	ctx context.Context, d model.Dispatch, res *resolution, L string, fediClient capability.FediClient,
) (string, error) {
	if fediClient == nil {
		return "", fmt.Errorf("router: no fediverse client available")
	}

	var mentions []string
	var blockedWarn, notRegWarn int
	for _, to := range res.recipients {
		registered, err := s.isRegistered(model.FEDI, to)
		if err != nil {
			return "", err
		}
		if !registered {
			notRegWarn++
			continue
		}
		blocked, err := s.mutuallyBlocked(model.FEDI, to, d.Sender)
		if err != nil {
			return "", err
		}
		if blocked {
			blockedWarn++
			continue
		}
		mentions = append(mentions, to)
	}
	if len(mentions) == 0 {
		reply := s.Catalog.Text("noaddress", L)
		if blockedWarn > 0 && !s.Config.SilentBlock {
			reply = appendClause(reply, s.Catalog.Text("blockingwarn", L))
		}
		if notRegWarn > 0 {
			reply = appendClause(reply, s.Catalog.Text("notregwarn", L))
		}
		return reply, nil
	}

	body := mentionedBody(mentions, d.Body)
	if s.Config.MaxCharPerPost > 0 && len(body) > s.Config.MaxCharPerPost {
		return s.Catalog.Text("toolong", L), nil
	}

	statusID, err := fediClient.StatusPost(ctx, body, res.replyID, L)
	if err != nil {
		blog.Errorf("%v", bridgeerr.NewTransportError("fediverse status post", err))
		return s.Catalog.Text("sendfailed", L), nil
	}

	now := Now()
	for _, to := range mentions {
		c := model.Comm{Side: model.FEDI, User: to, FromU: d.Sender, FromDate: now, IDFrom: d.FromID, IDTo: statusID}
		if err := s.Store.WithTx(func(tx *sql.Tx) error { return s.Store.InsertComm(tx, c) }); err != nil {
			return "", bridgeerr.NewStoreError("insert comm", err)
		}
	}

	if s.Config.SilentSend {
		return "", nil
	}
	reply := s.Catalog.Text("sent", L)
	if blockedWarn > 0 && !s.Config.SilentBlock {
		reply = appendClause(reply, s.Catalog.Text("blockingwarn", L))
	}
	if notRegWarn > 0 {
		reply = appendClause(reply, s.Catalog.Text("notregwarn", L))
	}
	return reply, nil
}

func (s *Sender) isRegistered(side model.Side, user string) (bool, error) {
	u, err := s.Store.FetchUser(side, user)
	if err != nil {
		return false, bridgeerr.NewStoreError("fetch recipient", err)
	}
	return u.Active(), nil
}

func (s *Sender) mutuallyBlocked(recipientSide model.Side, recipient, sender string) (bool, error) {
	if blocked, err := s.Store.IsBlocked(recipientSide, recipient, sender); err != nil {
		return false, err
	} else if blocked {
		return true, nil
	}
	return s.Store.IsBlocked(recipientSide.Opposite(), sender, recipient)
}

func (s *Sender) replyLang(side model.Side, user string) string {
	if u, err := s.Store.FetchUser(side, user); err == nil && u != nil && u.Lang != "" {
		return u.Lang
	}
	return s.Config.DefaultLang
}

func mentionedBody(mentions []string, body string) string {
	var sb strings.Builder
	for _, m := range mentions {
		sb.WriteString("@")
		sb.WriteString(m)
		sb.WriteString(" ")
	}
	sb.WriteString(body)
	return sb.String()
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
