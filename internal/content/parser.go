// Package content implements the ContentParser: normalizing an inbound
// message body (HTML, for the Fediverse side) and extracting the
// structured commands/addresses/domains/language directives the rest
// of the pipeline needs. Parsing is pure and deterministic; patterns
// are compiled once, at construction time, per DESIGN NOTES §9.
package content

import (
	"regexp"
	"strings"

	"github.com/barbapulpe/xmppapbridge/internal/model"
	"golang.org/x/net/html"
)

// Parser holds the compiled patterns derived from one bridge's prefix
// configuration and own addresses. It is safe for concurrent use.
type Parser struct {
	pfixAP      string
	pfixXMPP    string
	pfixCommand string
	pfixLang    string

	ownJID string // bridge's own XMPP JID, lowercased
	ownAP  string // bridge's own AP account, lowercased
	apHost string // ap_instance, used to qualify short mention-class links

	reCommand  *regexp.Regexp
	reLang     *regexp.Regexp
	reXMPPJID  *regexp.Regexp
	reAPAddr   *regexp.Regexp
	reBareAddr *regexp.Regexp
	reShortAP  *regexp.Regexp
	reDomain   *regexp.Regexp
}

// New compiles a Parser from the four configured prefixes and the
// bridge's own addresses (both lowercased internally).
func New(pfix [4]string, ownJID, ownAP, apHost string) *Parser {
	q := regexp.QuoteMeta
	p := &Parser{
		pfixAP:      pfix[0],
		pfixXMPP:    pfix[1],
		pfixCommand: pfix[2],
		pfixLang:    pfix[3],
		ownJID:      strings.ToLower(ownJID),
		ownAP:       strings.ToLower(ownAP),
		apHost:      apHost,
	}
	p.reCommand = regexp.MustCompile(`(?:^|\s)` + q(pfix[2]) + `([A-Za-z]+)\b`)
	p.reLang = regexp.MustCompile(`(?:^|\s)` + q(pfix[3]) + `([A-Za-z]{2})\b`)
	p.reXMPPJID = regexp.MustCompile(`\b` + q(pfix[1]) + `([A-Za-z0-9._%+-]+)@([A-Za-z0-9.-]+\.[A-Za-z]{2,})(?:/[^\s]+)?`)
	p.reAPAddr = regexp.MustCompile(q(pfix[0]) + `([A-Za-z0-9._%+-]+)@([A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
	p.reBareAddr = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	p.reShortAP = regexp.MustCompile(q(pfix[0]) + `([A-Za-z0-9._%+-]+)\b`)
	p.reDomain = regexp.MustCompile(`\b[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	return p
}

// Parse implements the whole ContentParser algorithm of spec.md §4.1.
func (p *Parser) Parse(side model.Side, rawBody string) model.ParsedContent {
	body := rawBody
	if side == model.FEDI {
		body = p.normalizeHTML(rawBody)
	}

	commands := p.extractCommands(body)
	langCodes := p.extractLangCodes(body)
	xmppJIDs, body := p.extractXMPPJIDs(body)
	apAddrs, body := p.extractAPAddrs(body)
	domains := p.extractDomains(body)

	flagShortAP := false
	if side == model.XMPP {
		flagShortAP = p.reShortAP.MatchString(body)
	}

	return model.ParsedContent{
		Commands:    commands,
		LangCodes:   langCodes,
		XMPPJIDs:    xmppJIDs,
		APAddrs:     apAddrs,
		Domains:     domains,
		ParsedBody:  strings.TrimSpace(body),
		FlagShortAP: flagShortAP,
	}
}

// normalizeHTML implements step 1 of spec.md §4.1 for the Fediverse
// side: rewrite anchors, replace <br> with newline, and take the text
// content. Grounded on klppl-klistr's use of golang.org/x/net/html to
// walk and rewrite an AP note body.
func (p *Parser) normalizeHTML(body string) string {
	node, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return body
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "a":
				p.rewriteAnchor(n)
			case "br":
				sb.WriteString("\n")
				return
			}
		case html.TextNode:
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return sb.String()
}

func (p *Parser) rewriteAnchor(a *html.Node) {
	var href, class string
	for _, attr := range a.Attr {
		switch attr.Key {
		case "href":
			href = attr.Val
		case "class":
			class = attr.Val
		}
	}
	text := anchorText(a)

	switch {
	case strings.HasPrefix(href, "xmpp:"):
		appendTextChild(a, " ")
	case (strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://")) &&
		strings.Contains(class, "mention") && strings.Count(text, "@") == 1:
		netloc := hostFromURL(href)
		if netloc == "" {
			netloc = p.apHost
		}
		uname := strings.TrimPrefix(text, "@")
		replaceText(a, uname+"@"+netloc)
	}
}

func anchorText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func replaceText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	appendTextChild(n, text)
}

func appendTextChild(n *html.Node, text string) {
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func hostFromURL(raw string) string {
	rest := raw
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func (p *Parser) extractCommands(body string) []string {
	excluded := strings.TrimSuffix(p.pfixLang, "=")
	seen := map[string]bool{}
	var out []string
	for _, m := range p.reCommand.FindAllStringSubmatch(body, -1) {
		cmd := strings.ToLower(m[1])
		if cmd == strings.ToLower(excluded) || seen[cmd] {
			continue
		}
		seen[cmd] = true
		out = append(out, cmd)
	}
	return out
}

func (p *Parser) extractLangCodes(body string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range p.reLang.FindAllStringSubmatch(body, -1) {
		code := strings.ToLower(m[1])
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

func (p *Parser) extractXMPPJIDs(body string) ([]string, string) {
	seen := map[string]bool{}
	var out []string
	replaced := p.reXMPPJID.ReplaceAllStringFunc(body, func(m string) string {
		sub := p.reXMPPJID.FindStringSubmatch(m)
		jid := strings.ToLower(sub[1] + "@" + sub[2])
		if jid == p.ownJID {
			return ""
		}
		if !seen[jid] {
			seen[jid] = true
			out = append(out, jid)
		}
		return ""
	})
	return out, replaced
}

func (p *Parser) extractAPAddrs(body string) ([]string, string) {
	seen := map[string]bool{}
	var out []string
	replaced := p.reAPAddr.ReplaceAllStringFunc(body, func(m string) string {
		sub := p.reAPAddr.FindStringSubmatch(m)
		addr := strings.ToLower(sub[1] + "@" + sub[2])
		if addr == p.ownAP {
			return ""
		}
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
		return ""
	})
	return out, replaced
}

// extractDomains returns bare host.tld tokens remaining once AP-form
// and email-form addresses have been stripped from body, matching
// lib_bridge.py's `[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}` (host.tld, not just
// three-plus-label hosts).
func (p *Parser) extractDomains(body string) []string {
	stripped := p.reBareAddr.ReplaceAllString(body, " ")
	seen := map[string]bool{}
	var out []string
	for _, m := range p.reDomain.FindAllString(stripped, -1) {
		d := strings.ToLower(m)
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
