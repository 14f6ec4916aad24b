// Package bridgecore wires the per-side component chain
// (ContentParser → LanguageProcessor → InstructionProcessor →
// MessageSender) into one Pipeline entry point, and owns the
// once-per-process startup/cleanup sequence (InitBridge, spec.md
// §4.7). Grounded on hunter007-jackal's c2s/in.go newStream/Initialize
// sequencing: assemble collaborators, run setup steps in order, then
// serve one dispatch at a time through the chain.
package bridgecore

import (
	"context"

	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/command"
	"github.com/barbapulpe/xmppapbridge/internal/content"
	"github.com/barbapulpe/xmppapbridge/internal/lang"
	"github.com/barbapulpe/xmppapbridge/internal/manager"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/registrar"
	"github.com/barbapulpe/xmppapbridge/internal/router"
	"github.com/barbapulpe/xmppapbridge/internal/store"
)

// Pipeline is the shared per-side processing chain. A process owns
// exactly one: the XMPP bridge process wires it with its own
// Parser/ownAddresses, and likewise for the Fediverse process.
type Pipeline struct {
	Store     *store.Store
	Parser    *content.Parser
	Lang      *lang.Processor
	Command   *command.Processor
	Sender    *router.Sender
	Registrar *registrar.Registrar
	Manager   *manager.Manager
}

// HandleMessage runs one inbound user message through the chain and
// returns the localized reply to send back to the sender, if any.
func (p *Pipeline) HandleMessage(
	ctx context.Context,
	d model.Dispatch,
	xmppSess capability.XMPPSession,
	fediClient capability.FediClient,
) (string, error) {
	parsed := p.Parser.Parse(d.Side, d.Body)
	d.Body = parsed.ParsedBody

	if len(parsed.Commands) > 0 {
		return p.Command.Process(ctx, d, parsed, xmppSess, fediClient)
	}

	var langReply string
	hasRecipients := len(parsed.XMPPJIDs) > 0 || len(parsed.APAddrs) > 0
	if len(parsed.LangCodes) > 0 {
		u, err := p.Store.FetchUser(d.Side, d.Sender)
		if err != nil {
			return "", err
		}
		res := p.Lang.Process(d.Side, d.Sender, parsed.LangCodes, u.Active())
		langReply = res.Reply
		if !hasRecipients {
			return langReply, nil
		}
	}

	sendReply, err := p.Sender.Send(ctx, d, parsed, xmppSess, fediClient)
	if err != nil {
		return "", err
	}
	return appendClause(langReply, sendReply), nil
}

// HandleFollowEvent runs the event-triggered registration path: a
// follow/subscribe notification with no message body to parse.
func (p *Pipeline) HandleFollowEvent(
	ctx context.Context, side model.Side, user string,
	xmppSess capability.XMPPSession, fediClient capability.FediClient,
) (string, error) {
	reply, _, err := p.Registrar.Register(ctx, side, user, true, "", xmppSess, fediClient)
	return reply, err
}

// HandleUnfollowEvent runs the event-triggered unregistration path.
func (p *Pipeline) HandleUnfollowEvent(
	ctx context.Context, side model.Side, user string,
	xmppSess capability.XMPPSession, fediClient capability.FediClient,
) (string, error) {
	return p.Manager.Unregister(ctx, side, user, true, "", xmppSess, fediClient)
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
