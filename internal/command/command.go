// Package command implements InstructionProcessor (spec.md §4.5): a
// 23-slot command vocabulary, each slot dispatched by its configured
// position in command_list rather than by a fixed Go identifier.
package command

import (
	"context"
	"strings"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/bridgefile"
	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/config"
	"github.com/barbapulpe/xmppapbridge/internal/manager"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/registrar"
	"github.com/barbapulpe/xmppapbridge/internal/store"
	"github.com/barbapulpe/xmppapbridge/internal/translations"
)

// Slot indices into Config.CommandList, per spec.md §4.5's table.
const (
	cmdRegister = iota
	cmdUnregister
	cmdReport
	cmdHelp
	cmdBlock
	cmdUnblock
	cmdListBlocks
	cmdStart
	cmdStop
	cmdListUsers
	cmdListInstBlocks
	cmdAdminBlock
	cmdAdminUnblock
	cmdAdminHelp
	cmdAddRed
	cmdAddGreen
	cmdRemoveRed
	cmdRemoveGreen
	cmdListRed
	cmdListGreen
	cmdOpen
	cmdClose
	cmdStatus
)

var adminSlots = map[int]bool{
	cmdStart: true, cmdStop: true, cmdListUsers: true, cmdListInstBlocks: true,
	cmdAdminBlock: true, cmdAdminUnblock: true, cmdAdminHelp: true,
	cmdAddRed: true, cmdAddGreen: true, cmdRemoveRed: true, cmdRemoveGreen: true,
	cmdListRed: true, cmdListGreen: true, cmdOpen: true, cmdClose: true, cmdStatus: true,
}

// coexistsWithAddresses holds the slots that may legitimately carry
// recipient addresses alongside the command, per spec.md §4.5's last
// bullet.
var coexistsWithAddresses = map[int]bool{
	cmdReport: true, cmdBlock: true, cmdUnblock: true, cmdAdminBlock: true, cmdAdminUnblock: true,
}

// truncatedMarker replaces the tail of an over-long Fediverse reply.
const truncatedMarker = "[...]"

// Processor owns command interpretation and execution.
type Processor struct {
	Store      *store.Store
	Files      *bridgefile.Files
	Catalog    translations.Catalog
	Config     *config.Config
	Registrar  *registrar.Registrar
	Manager    *manager.Manager

	// OwnXMPPJID and OwnAPAccount are the bridge's own addresses, used
	// to refuse an admin-block command targeting the bridge itself.
	OwnXMPPJID  string
	OwnAPAccount string
}

// Now is overridable in tests.
var Now = time.Now

// Process executes the single command parsed out of d's body, or
// rejects the message if the command vocabulary rules are violated.
func (p *Processor) Process(
	ctx context.Context,
	d model.Dispatch,
	parsed model.ParsedContent,
	xmppSess capability.XMPPSession,
	fediClient capability.FediClient,
) (reply string, err error) {
	L := p.replyLang(d.Side, d.Sender)

	if len(parsed.Commands) > 1 {
		return p.Catalog.Text("onecommand", L), nil
	}
	cmd := parsed.Commands[0]
	idx := p.commandIndex(cmd)
	if idx < 0 {
		return p.Catalog.Text("notacommand", L), nil
	}
	if adminSlots[idx] && !p.isAdmin(d.Side, d.Sender) {
		return p.Catalog.Text("notadmin", L), nil
	}

	reply, err = p.dispatch(ctx, idx, d, parsed, xmppSess, fediClient, L)
	if err != nil {
		return "", err
	}

	if !coexistsWithAddresses[idx] && p.hasTargets(d, parsed) {
		reply = appendClause(reply, p.Catalog.Text("nomessagesent", L))
	}
	if d.Side == model.FEDI {
		reply = truncate(reply, p.Config.MaxCharPerPost)
	}
	return reply, nil
}

func (p *Processor) dispatch(
	ctx context.Context, idx int, d model.Dispatch, parsed model.ParsedContent,
	xmppSess capability.XMPPSession, fediClient capability.FediClient, L string,
) (string, error) {
	switch idx {
	case cmdRegister:
		reply, _, err := p.Registrar.Register(ctx, d.Side, d.Sender, false, "", xmppSess, fediClient)
		return reply, err
	case cmdUnregister:
		return p.Manager.Unregister(ctx, d.Side, d.Sender, false, "", xmppSess, fediClient)
	case cmdReport:
		return p.report(ctx, d, xmppSess)
	case cmdHelp:
		return p.help(d.Side, L), nil
	case cmdBlock:
		return p.block(d, parsed, L)
	case cmdUnblock:
		return p.unblock(d, parsed, L)
	case cmdListBlocks:
		return p.listBlocks(d, L)
	case cmdStart:
		return p.Catalog.Text("started", L), p.Files.SetStarted(true)
	case cmdStop:
		return p.Catalog.Text("stopped", L), p.Files.SetStarted(false)
	case cmdListUsers:
		return p.listUsers(d.Side, L)
	case cmdListInstBlocks:
		return p.listInstBlocks(d.Side, L)
	case cmdAdminBlock:
		return p.adminBlock(ctx, d, parsed, xmppSess, fediClient, L)
	case cmdAdminUnblock:
		return p.adminUnblock(d, parsed, L)
	case cmdAdminHelp:
		return p.adminHelp(d.Side, L), nil
	case cmdAddRed:
		return p.addDomain(ctx, d, parsed, true, xmppSess, fediClient, L)
	case cmdAddGreen:
		return p.addDomain(ctx, d, parsed, false, xmppSess, fediClient, L)
	case cmdRemoveRed:
		return p.removeDomain(ctx, d, parsed, true, xmppSess, fediClient, L)
	case cmdRemoveGreen:
		return p.removeDomain(ctx, d, parsed, false, xmppSess, fediClient, L)
	case cmdListRed:
		return p.listDomains(p.Files.Redlist(), L), nil
	case cmdListGreen:
		return p.listDomains(p.Files.Greenlist(), L), nil
	case cmdOpen:
		return p.Catalog.Text("opened", L), p.Files.SetRegistrationOpen(true)
	case cmdClose:
		return p.Catalog.Text("closed", L), p.Files.SetRegistrationOpen(false)
	case cmdStatus:
		return p.status(L), nil
	default:
		return p.Catalog.Text("notacommand", L), nil
	}
}

func (p *Processor) commandIndex(cmd string) int {
	for i, c := range p.Config.CommandList {
		if strings.EqualFold(c, cmd) {
			return i
		}
	}
	return -1
}

func (p *Processor) isAdmin(side model.Side, sender string) bool {
	list := p.Config.XMPPAdmin
	if side == model.FEDI {
		list = p.Config.APAdmin
	}
	for _, a := range list {
		if strings.EqualFold(a, sender) {
			return true
		}
	}
	return false
}

// targets returns the recipient-form addresses embedded in the
// message, on the command's own side: XMPP JIDs for an XMPP-side
// command, AP addresses for a Fediverse-side one.
func (p *Processor) targets(d model.Dispatch, parsed model.ParsedContent) []string {
	if d.Side == model.FEDI {
		return parsed.APAddrs
	}
	return parsed.XMPPJIDs
}

func (p *Processor) hasTargets(d model.Dispatch, parsed model.ParsedContent) bool {
	return len(parsed.XMPPJIDs) > 0 || len(parsed.APAddrs) > 0 || len(p.targets(d, parsed)) > 0
}

func (p *Processor) isLocalDomain(domain string) bool {
	return domain == p.Config.APInstance || domain == p.Config.XMPPInstance
}

func (p *Processor) replyLang(side model.Side, user string) string {
	if u, err := p.Store.FetchUser(side, user); err == nil && u != nil && u.Lang != "" {
		return u.Lang
	}
	return p.Config.DefaultLang
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

// truncate replaces the tail of reply with a newline and marker once
// it exceeds limit, per spec.md §4.5's final bullet. limit <= 0 means
// unbounded.
func truncate(reply string, limit int) string {
	if limit <= 0 || len(reply) <= limit {
		return reply
	}
	cut := len(reply) - (len(truncatedMarker) + 1)
	if cut < 0 {
		cut = 0
	}
	return reply[:cut] + "\n" + truncatedMarker
}
