// Package registrar implements the UserRegistrar of spec.md §4.3: an
// idempotent, admission-controlled register operation, plus the
// roster-synchronization half of it (§4.3.2).
package registrar

import (
	"context"
	"strings"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/bridgeerr"
	"github.com/barbapulpe/xmppapbridge/internal/bridgefile"
	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/config"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/store"
	"github.com/barbapulpe/xmppapbridge/internal/translations"
)

// Registrar owns the register admission pipeline.
type Registrar struct {
	Store   *store.Store
	Files   *bridgefile.Files
	Catalog translations.Catalog
	Config  *config.Config
}

// Now is overridable in tests.
var Now = time.Now

// Register runs the admission pipeline of spec.md §4.3 and, on
// success, the roster synchronization of §4.3.2. On any rejection no
// state changes and reply carries the localized reason.
func (r *Registrar) Register(
	ctx context.Context,
	side model.Side,
	user string,
	fromFollowEvent bool,
	lang string,
	xmppSess capability.XMPPSession,
	fediClient capability.FediClient,
) (reply string, ok bool, err error) {
	L := r.replyLang(side, user, lang)

	if !r.Files.RegistrationOpen() {
		return r.Catalog.Text("closed", L), false, nil
	}
	if r.Config.MaxRegUsers > 0 {
		n, cerr := r.Store.CountActiveUsers()
		if cerr != nil {
			return "", false, bridgeerr.NewStoreError("count active users", cerr)
		}
		if n >= r.Config.MaxRegUsers {
			return r.Catalog.Text("maxusers", L), false, nil
		}
	}

	blocked, cerr := r.Store.IsInstBlocked(side, user)
	if cerr != nil {
		return "", false, bridgeerr.NewStoreError("is inst blocked", cerr)
	}
	if blocked {
		return r.Catalog.Text("blocked", L), false, nil
	}

	domain := domainOf(user)
	if !r.isLocalDomain(domain) {
		if r.Files.IsRedlisted(domain) {
			return r.Catalog.Text("domainred", L), false, nil
		}
		if r.Config.GreenlistMode && !r.Files.IsGreenlisted(domain) {
			return r.Catalog.Text("notgreen", L), false, nil
		}
	}

	initialLang := lang
	if side == model.FEDI {
		reply, rejected, accID, statusLang, herr := r.fediHeuristics(ctx, user, domain, fediClient, L)
		if herr != nil {
			return "", false, herr
		}
		if rejected {
			return reply, false, nil
		}
		if statusLang != "" {
			initialLang = statusLang
		}
		_ = accID
	}
	if initialLang == "" {
		initialLang = r.Config.DefaultLang
	}

	existing, serr := r.Store.FetchUser(side, user)
	if serr != nil {
		return "", false, bridgeerr.NewStoreError("fetch user", serr)
	}

	switch {
	case existing == nil:
		u := &model.User{
			Side: side, User: user, ReqDate: Now(), NbReg: 1, Lang: initialLang, App: detectApp(side, user, r.Config.UserAgent),
		}
		if err := r.Store.InsertUser(u); err != nil {
			return "", false, bridgeerr.NewStoreError("insert user", err)
		}

	case existing.Active() && existing.NbReg > 0:
		if !fromFollowEvent {
			reply = r.Catalog.Text("alreadyreg", existing.Lang)
		}
		return r.syncRoster(ctx, side, user, fromFollowEvent, reply, xmppSess, fediClient)

	case r.Config.MaxAPRegistrations > 0 && existing.NbReg >= r.Config.MaxAPRegistrations:
		return r.Catalog.Text("regmax", L), false, nil

	default:
		if err := r.Store.ActivateUser(side, user, initialLang, Now()); err != nil {
			return "", false, bridgeerr.NewStoreError("activate user", err)
		}
	}

	reply = r.Catalog.Text("registered", initialLang)
	return r.syncRoster(ctx, side, user, fromFollowEvent, reply, xmppSess, fediClient)
}

// isLocalDomain reports whether domain is the bridge's own AP instance
// or XMPP domain.
func (r *Registrar) isLocalDomain(domain string) bool {
	return domain == r.Config.APInstance || domain == r.Config.XMPPInstance
}

// fediHeuristics implements spec.md §4.3 step 4.
func (r *Registrar) fediHeuristics(
	ctx context.Context, user, domain string, fedi capability.FediClient, lang string,
) (reply string, rejected bool, accID string, statusLang string, err error) {
	acct, lerr := fedi.AccountLookup(ctx, user)
	if lerr != nil {
		return "", false, "", "", bridgeerr.NewTransportError("account lookup "+user, lerr)
	}
	accID = acct.ID

	note := strings.ToLower(acct.Note)
	if strings.Contains(note, "#nobot") || strings.Contains(note, "#nobridge") {
		return r.Catalog.Text("nobot", lang), true, accID, "", nil
	}
	if acct.Bot {
		return r.Catalog.Text("bot", lang), true, accID, "", nil
	}
	if acct.Group {
		return r.Catalog.Text("group", lang), true, accID, "", nil
	}

	if r.Config.MinAPActivityPosts <= 0 {
		return "", false, accID, "", nil
	}
	if r.isLocalDomain(domain) || r.Files.IsGreenlisted(domain) {
		return "", false, accID, "", nil
	}

	limit := r.Config.EffectiveMaxActivityPosts()
	statuses, serr := fedi.AccountStatuses(ctx, acct.ID, limit)
	if serr != nil {
		return "", false, "", "", bridgeerr.NewTransportError("account statuses "+acct.ID, serr)
	}
	cutoff := Now().AddDate(0, 0, -30)
	count := 0
	for _, st := range statuses {
		if st.CreatedAt.After(cutoff) {
			count++
		}
	}
	if count < r.Config.MinAPActivityPosts {
		return r.Catalog.Text("inactive", lang), true, accID, "", nil
	}
	if len(statuses) > 0 {
		statusLang = statuses[0].Language
	}
	return "", false, accID, statusLang, nil
}

func (r *Registrar) replyLang(side model.Side, user, lang string) string {
	if lang != "" {
		return lang
	}
	if u, err := r.Store.FetchUser(side, user); err == nil && u != nil && u.Lang != "" {
		return u.Lang
	}
	return r.Config.DefaultLang
}
