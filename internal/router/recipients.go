package router

import (
	"time"

	"github.com/barbapulpe/xmppapbridge/internal/model"
)

// resolution is the outcome of recipient resolution: who gets the
// message, whether this is a reply (vs a resend/fresh fan-out), and
// the reply_id to carry forward (FEDI side: the original sender's
// status id; XMPP side: the thread's id_from).
type resolution struct {
	recipients []string
	isReply    bool
	replyID    string
}

// resolveFedi implements spec.md §4.6's Fediverse-side recipient
// resolution: a reply_id is looked up against comm by id_to (a
// reply) or, failing that, by id_from on the opposite side (a
// resend).
func (s *Sender) resolveFedi(sender, replyID string) (resolution, bool) {
	if replyID == "" {
		return resolution{}, false
	}
	if row, err := s.Store.FetchCommByIDTo(model.FEDI, replyID); err == nil && row != nil {
		return resolution{recipients: []string{row.FromU}, isReply: true, replyID: replyID}, true
	}
	rows, err := s.Store.FetchCommByIDFrom(model.XMPP, replyID)
	if err != nil || len(rows) == 0 {
		return resolution{}, false
	}
	var recipients []string
	for _, r := range rows {
		recipients = append(recipients, r.User)
	}
	return resolution{recipients: recipients, isReply: false}, true
}

// resolveXMPP implements spec.md §4.6's XMPP-side recipient
// resolution: no explicit reply ids exist here, so the most-recent
// inbound delivery (e1) and the most-recent max_dest outbound
// fan-out rows (e2) are compared by recency.
func (s *Sender) resolveXMPP(sender string, maxDest int, maxReplyMinutes int, now time.Time) (resolution, bool) {
	e1, _ := s.Store.FetchLatestCommByUser(model.XMPP, sender)
	e2, _ := s.Store.FetchRecentCommByFromU(model.FEDI, sender, maxDest)

	withinWindow := func(t time.Time) bool {
		if maxReplyMinutes <= 0 {
			return true
		}
		return now.Sub(t) <= time.Duration(maxReplyMinutes)*time.Minute
	}

	if e1 != nil && (len(e2) == 0 || e1.FromDate.After(e2[0].FromDate)) && withinWindow(e1.FromDate) {
		return resolution{recipients: []string{e1.FromU}, isReply: true, replyID: e1.IDFrom}, true
	}
	if len(e2) > 0 && withinWindow(e2[0].FromDate) {
		newestID := e2[0].IDFrom
		var recipients []string
		for _, r := range e2 {
			if r.IDFrom == newestID {
				recipients = append(recipients, r.User)
			}
		}
		return resolution{recipients: recipients, isReply: false}, true
	}
	return resolution{}, false
}
