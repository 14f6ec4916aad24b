package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/barbapulpe/xmppapbridge/internal/bridgeerr"
	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/model"
)

func (p *Processor) report(ctx context.Context, d model.Dispatch, xmppSess capability.XMPPSession) (string, error) {
	L := p.replyLang(d.Side, d.Sender)
	if len(p.Config.XMPPAdmin) == 0 || xmppSess == nil {
		return p.Catalog.Text("sendfailed", L), nil
	}
	body := fmt.Sprintf("> report from %s\n%s", d.Sender, d.Body)
	if err := xmppSess.SendMessage(ctx, p.Config.XMPPAdmin[0], body, L); err != nil {
		return p.Catalog.Text("sendfailed", L), nil
	}
	return p.Catalog.Text("sent", L), nil
}

func (p *Processor) help(side model.Side, L string) string {
	reply := p.Catalog.Text("help", L)
	if url, ok := p.Config.HelpURL[L]; ok && url != "" {
		reply = appendClause(reply, url)
	}
	return reply
}

func (p *Processor) adminHelp(side model.Side, L string) string {
	reply := p.Catalog.Text("adminhelp", L)
	if url, ok := p.Config.AHelpURL[L]; ok && url != "" {
		reply = appendClause(reply, url)
	}
	return reply
}

func (p *Processor) block(d model.Dispatch, parsed model.ParsedContent, L string) (string, error) {
	u, err := p.Store.FetchUser(d.Side, d.Sender)
	if err != nil {
		return "", bridgeerr.NewStoreError("fetch sender", err)
	}
	if !u.Active() {
		return p.Catalog.Text("notregistered", L), nil
	}
	targets := p.crossTargets(d, parsed)
	if len(targets) == 0 {
		return p.Catalog.Text("noaddress", L), nil
	}
	now := Now()
	for _, t := range targets {
		if err := p.Store.InsertBlock(d.Side, d.Sender, t, now); err != nil {
			return "", bridgeerr.NewStoreError("insert block", err)
		}
	}
	return p.Catalog.Text("blocked", L), nil
}

func (p *Processor) unblock(d model.Dispatch, parsed model.ParsedContent, L string) (string, error) {
	u, err := p.Store.FetchUser(d.Side, d.Sender)
	if err != nil {
		return "", bridgeerr.NewStoreError("fetch sender", err)
	}
	if !u.Active() {
		return p.Catalog.Text("notregistered", L), nil
	}
	targets := p.crossTargets(d, parsed)
	if len(targets) == 0 {
		return p.Catalog.Text("noaddress", L), nil
	}
	for _, t := range targets {
		if err := p.Store.DeleteBlock(d.Side, d.Sender, t); err != nil {
			return "", bridgeerr.NewStoreError("delete block", err)
		}
	}
	return p.Catalog.Text("unblocked", L), nil
}

func (p *Processor) listBlocks(d model.Dispatch, L string) (string, error) {
	blocks, err := p.Store.ListBlocks(d.Side, d.Sender)
	if err != nil {
		return "", bridgeerr.NewStoreError("list blocks", err)
	}
	if len(blocks) == 0 {
		return p.Catalog.Text("noblocks", L), nil
	}
	return strings.Join(blocks, "\n"), nil
}

func (p *Processor) listUsers(side model.Side, L string) (string, error) {
	users, err := p.Store.ListActiveUsers(side)
	if err != nil {
		return "", bridgeerr.NewStoreError("list active users", err)
	}
	if len(users) == 0 {
		return p.Catalog.Text("nousers", L), nil
	}
	var sb strings.Builder
	for _, u := range users {
		fmt.Fprintf(&sb, "%s (%s)\n", u.User, u.App)
	}
	return sb.String(), nil
}

func (p *Processor) listInstBlocks(side model.Side, L string) (string, error) {
	blocks, err := p.Store.ListInstBlocks(side)
	if err != nil {
		return "", bridgeerr.NewStoreError("list inst blocks", err)
	}
	if len(blocks) == 0 {
		return p.Catalog.Text("noblocks", L), nil
	}
	return strings.Join(blocks, "\n"), nil
}

// instTarget pairs an admin-block/unblock target address with the
// side (of the blocked party) it lives on, per model.InstBlock's
// "Side is the side Blocked lives on" convention.
type instTarget struct {
	side model.Side
	addr string
}

func (p *Processor) instTargets(parsed model.ParsedContent) []instTarget {
	var out []instTarget
	for _, jid := range parsed.XMPPJIDs {
		out = append(out, instTarget{side: model.XMPP, addr: jid})
	}
	for _, addr := range parsed.APAddrs {
		out = append(out, instTarget{side: model.FEDI, addr: addr})
	}
	return out
}

func (p *Processor) isOwnAddress(side model.Side, addr string) bool {
	if side == model.FEDI {
		return strings.EqualFold(addr, p.OwnAPAccount)
	}
	return strings.EqualFold(addr, p.OwnXMPPJID)
}

// adminBlock implements command_list[11]: instance-block each target
// (refusing admins and the bridge's own address) and unregister them.
func (p *Processor) adminBlock(
	ctx context.Context, d model.Dispatch, parsed model.ParsedContent,
	xmppSess capability.XMPPSession, fediClient capability.FediClient, L string,
) (string, error) {
	targets := p.instTargets(parsed)
	if len(targets) == 0 {
		return p.Catalog.Text("noaddress", L), nil
	}
	var refused []string
	now := Now()
	for _, t := range targets {
		if p.isOwnAddress(t.side, t.addr) || p.isAdmin(t.side, t.addr) {
			refused = append(refused, t.addr)
			continue
		}
		if err := p.Store.InsertInstBlock(t.side, t.addr, now); err != nil {
			return "", bridgeerr.NewStoreError("insert inst block", err)
		}
		if _, err := p.Manager.Unregister(ctx, t.side, t.addr, false, "", xmppSess, fediClient); err != nil {
			return "", err
		}
	}
	reply := p.Catalog.Text("blocked", L)
	if len(refused) > 0 {
		reply = appendClause(reply, p.Catalog.Text("refused", L)+" "+strings.Join(refused, ", "))
	}
	return reply, nil
}

func (p *Processor) adminUnblock(d model.Dispatch, parsed model.ParsedContent, L string) (string, error) {
	targets := p.instTargets(parsed)
	if len(targets) == 0 {
		return p.Catalog.Text("noaddress", L), nil
	}
	for _, t := range targets {
		if err := p.Store.DeleteInstBlock(t.side, t.addr); err != nil {
			return "", bridgeerr.NewStoreError("delete inst block", err)
		}
	}
	return p.Catalog.Text("unblocked", L), nil
}

// addDomain implements command_list[14]/[15]: append a domain to the
// red- or greenlist and, for redlisting, unregister its currently
// registered users.
func (p *Processor) addDomain(
	ctx context.Context, d model.Dispatch, parsed model.ParsedContent, red bool,
	xmppSess capability.XMPPSession, fediClient capability.FediClient, L string,
) (string, error) {
	if len(parsed.Domains) == 0 {
		return p.Catalog.Text("noaddress", L), nil
	}
	for _, dom := range parsed.Domains {
		var err error
		if red {
			err = p.Files.AddRed(dom)
		} else {
			err = p.Files.AddGreen(dom)
		}
		if err != nil {
			return "", err
		}
		if red {
			if err := p.unregisterDomain(ctx, d.Side, dom, xmppSess, fediClient); err != nil {
				return "", err
			}
		}
	}
	return p.Catalog.Text("added", L), nil
}

// removeDomain implements command_list[16]/[17].
func (p *Processor) removeDomain(
	ctx context.Context, d model.Dispatch, parsed model.ParsedContent, red bool,
	xmppSess capability.XMPPSession, fediClient capability.FediClient, L string,
) (string, error) {
	if len(parsed.Domains) == 0 {
		return p.Catalog.Text("noaddress", L), nil
	}
	for _, dom := range parsed.Domains {
		var err error
		if red {
			err = p.Files.RemoveRed(dom)
		} else {
			err = p.Files.RemoveGreen(dom)
		}
		if err != nil {
			return "", err
		}
		if !red && p.Config.GreenlistMode && !p.isLocalDomain(dom) {
			if err := p.unregisterDomain(ctx, d.Side, dom, xmppSess, fediClient); err != nil {
				return "", err
			}
		}
	}
	return p.Catalog.Text("removed", L), nil
}

func (p *Processor) unregisterDomain(
	ctx context.Context, side model.Side, domain string,
	xmppSess capability.XMPPSession, fediClient capability.FediClient,
) error {
	users, err := p.Store.ListActiveUsersByDomain(side, domain)
	if err != nil {
		return bridgeerr.NewStoreError("list active users by domain", err)
	}
	for _, u := range users {
		if _, err := p.Manager.Unregister(ctx, side, u.User, false, "", xmppSess, fediClient); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) listDomains(domains []string, L string) string {
	if len(domains) == 0 {
		return p.Catalog.Text("nodomains", L)
	}
	return strings.Join(domains, "\n")
}

func (p *Processor) status(L string) string {
	relay := "stopped"
	if p.Files.Started() {
		relay = "started"
	}
	reg := "closed"
	if p.Files.RegistrationOpen() {
		reg = "open"
	}
	green := "off"
	if p.Config.GreenlistMode {
		green = "on"
	}
	return fmt.Sprintf("%s: %s, %s: %s, %s: %s",
		p.Catalog.Text("relay", L), relay, p.Catalog.Text("registration", L), reg, p.Catalog.Text("greenlistmode", L), green)
}

// crossTargets returns the recipient-form addresses embedded in the
// message on the opposite side from d: the address a block/unblock
// command actually names.
func (p *Processor) crossTargets(d model.Dispatch, parsed model.ParsedContent) []string {
	if d.Side == model.FEDI {
		return parsed.XMPPJIDs
	}
	return parsed.APAddrs
}
