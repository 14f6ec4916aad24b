// Package lang implements the LanguageProcessor of spec.md §4.2:
// controlling a registered user's UI language from a parsed lang=
// directive.
package lang

import (
	"strings"

	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/store"
	"github.com/barbapulpe/xmppapbridge/internal/translations"
)

// Processor applies the per-user language directive.
type Processor struct {
	Store          *store.Store
	Catalog        translations.Catalog
	SupportedLangs map[string]bool
	UnknownLang    string
}

// Result is the outcome of processing one dispatch's language codes.
type Result struct {
	Reply   string // empty when there is nothing to say
	Changed bool   // whether the store was written
}

// Process implements spec.md §4.2's rules. registered is false when the
// sender has no active registration.
func (p *Processor) Process(side model.Side, sender string, codes []string, registered bool) Result {
	switch len(codes) {
	case 0:
		return Result{}
	case 1:
		return p.applyOne(side, sender, codes[0], registered)
	default:
		return Result{Reply: p.Catalog.Text("onelang", p.lang(sender))}
	}
}

func (p *Processor) applyOne(side model.Side, sender, code string, registered bool) Result {
	if !registered {
		return Result{Reply: p.Catalog.Text("mustregister", p.UnknownLang)}
	}

	l := strings.ToLower(code)
	reply := ""
	set := l
	if !p.SupportedLangs[l] {
		set = p.UnknownLang
		reply = p.Catalog.Text("unknownlang", p.UnknownLang)
	}

	if err := p.Store.UpdateUserLang(side, sender, set); err != nil {
		return Result{Reply: p.Catalog.Text("mustregister", p.UnknownLang)}
	}
	return Result{Reply: reply, Changed: true}
}

// lang is a best-effort language to render an error in before we know
// the sender's stored language (e.g. the "only one language" reply).
func (p *Processor) lang(sender string) string {
	return p.UnknownLang
}
