package bridgecore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/bridgefile"
	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/config"
	"github.com/barbapulpe/xmppapbridge/internal/manager"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/store"
)

// Now is overridable in tests.
var Now = time.Now

// InitBridge runs the once-per-process startup and cleanup sequence
// of spec.md §4.7 for one side. The four bridge files are assumed
// already created by bridgefile.Open, which InitBridge's caller must
// have run first.
func InitBridge(
	ctx context.Context,
	side model.Side,
	st *store.Store,
	files *bridgefile.Files,
	cfg *config.Config,
	mgr *manager.Manager,
	fediClient capability.FediClient,
) error {
	if err := st.Migrate(); err != nil {
		return err
	}
	if err := sweepRevokedUsers(st, cfg); err != nil {
		return err
	}
	if cfg.CommMaxLimitDays > 0 {
		if err := st.PurgeCommOlderThan(Now().AddDate(0, 0, -cfg.CommMaxLimitDays)); err != nil {
			return err
		}
	}
	if side == model.FEDI && fediClient != nil {
		if err := unregisterInstanceBlockedDomains(ctx, st, cfg, mgr, fediClient); err != nil {
			return err
		}
	}
	return reconcileAdmissionState(ctx, side, st, files, cfg, mgr, nil, fediClient)
}

// sweepRevokedUsers implements spec.md §4.7 step 2: delete a revoked
// users row and its downstream blocks/comm rows once it has aged past
// max_retention_days_revoked_user.
func sweepRevokedUsers(st *store.Store, cfg *config.Config) error {
	if cfg.MaxRetentionDaysUser <= 0 {
		return nil
	}
	cutoff := Now().AddDate(0, 0, -cfg.MaxRetentionDaysUser)
	stale, err := st.ListRevokedBefore(cutoff)
	if err != nil {
		return err
	}
	for _, u := range stale {
		err := st.WithTx(func(tx *sql.Tx) error {
			if err := st.DeleteUserTx(tx, u.Side, u.User); err != nil {
				return err
			}
			if err := st.DeleteBlocksByBlocking(tx, u.Side, u.User); err != nil {
				return err
			}
			return st.DeleteCommForUser(tx, u.Side, u.User)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// unregisterInstanceBlockedDomains implements spec.md §4.7 step 5.
func unregisterInstanceBlockedDomains(
	ctx context.Context, st *store.Store, cfg *config.Config, mgr *manager.Manager, fediClient capability.FediClient,
) error {
	blocked, err := fediClient.InstanceDomainBlocks(ctx)
	if err != nil {
		return err
	}
	for _, domain := range blocked {
		users, err := st.ListActiveUsersByDomain(model.FEDI, domain)
		if err != nil {
			return err
		}
		for _, u := range users {
			if _, err := mgr.Unregister(ctx, model.FEDI, u.User, false, "", nil, fediClient); err != nil {
				return err
			}
		}
	}
	return nil
}

// reconcileAdmissionState implements spec.md §4.7 step 6: unregister
// any active user on side whose domain no longer passes the current
// redlist/greenlist/instb admission rules.
func reconcileAdmissionState(
	ctx context.Context, side model.Side, st *store.Store, files *bridgefile.Files, cfg *config.Config,
	mgr *manager.Manager, xmppSess capability.XMPPSession, fediClient capability.FediClient,
) error {
	users, err := st.ListActiveUsers(side)
	if err != nil {
		return err
	}
	for _, u := range users {
		domain := domainOf(u.User)
		blocked, err := st.IsInstBlocked(side, u.User)
		if err != nil {
			return err
		}
		local := domain == cfg.APInstance || domain == cfg.XMPPInstance
		reject := blocked
		if !local {
			reject = reject || files.IsRedlisted(domain)
			reject = reject || (cfg.GreenlistMode && !files.IsGreenlisted(domain))
		}
		if !reject {
			continue
		}
		if _, err := mgr.Unregister(ctx, side, u.User, false, "", xmppSess, fediClient); err != nil {
			return err
		}
	}
	return nil
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return addr
}
