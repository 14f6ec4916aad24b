package fediside

import (
	"context"
	"fmt"
	"strings"

	"github.com/barbapulpe/xmppapbridge/internal/blog"
	"github.com/barbapulpe/xmppapbridge/internal/bridgecore"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/translations"
	"github.com/mattn/go-mastodon"
)

// Listener drives the bridge account's notification stream, per
// spec.md §5: "consumes a blocking event stream; each notification is
// processed synchronously." Grounded directly on the original
// Listener.on_notification (mention/follow/follow_request dispatch,
// content-warning and media/poll annotation of the bridged body).
type Listener struct {
	Client   *Client
	Pipeline *bridgecore.Pipeline
	Catalog  translations.Catalog

	// XMPPJID/XMPPPassword authenticate the ephemeral per-message XMPP
	// session this side uses to deliver to XMPP recipients.
	XMPPJID      string
	XMPPPassword string

	// AccountLocked is the bridge account's locked flag, read at startup
	// through VerifyCredentialsLocked: when true, a "follow"
	// notification is a duplicate of a prior "follow_request" and is
	// skipped.
	AccountLocked bool
}

// Run consumes the streaming-user event channel until ctx is
// cancelled or the stream ends, processing one notification at a time
// with no concurrency, matching the reference's single-threaded
// StreamListener.
func (l *Listener) Run(ctx context.Context) error {
	events, err := l.Client.mc.StreamingUser(ctx)
	if err != nil {
		return fmt.Errorf("fediside: open stream: %w", err)
	}
	for ev := range events {
		switch e := ev.(type) {
		case *mastodon.NotificationEvent:
			l.handleNotification(ctx, e.Notification)
		case *mastodon.ErrorEvent:
			blog.Errorf("fediside: stream error: %v", e.Err)
		}
	}
	return ctx.Err()
}

func (l *Listener) handleNotification(ctx context.Context, n *mastodon.Notification) {
	switch n.Type {
	case "mention":
		l.handleMention(ctx, n)
	case "follow", "follow_request":
		l.handleFollow(ctx, n)
	}
}

func (l *Listener) handleFollow(ctx context.Context, n *mastodon.Notification) {
	if l.AccountLocked && n.Type == "follow" {
		return
	}
	user := strings.ToLower(string(n.Account.Acct))

	xmppSess := newEphemeralSession(l.XMPPJID, l.XMPPPassword)
	defer xmppSess.close()

	reply, err := l.Pipeline.HandleFollowEvent(ctx, model.FEDI, user, xmppSess, l.Client)
	if err != nil {
		blog.Errorf("fediside: handle follow from %s: %v", user, err)
		return
	}

	if n.Type == "follow_request" {
		ok := reply != ""
		var aerr error
		if ok {
			aerr = l.Client.FollowRequestAuthorize(ctx, string(n.Account.ID))
		} else {
			aerr = l.Client.FollowRequestReject(ctx, string(n.Account.ID))
		}
		if aerr != nil {
			blog.Errorf("fediside: resolve follow_request from %s: %v", user, aerr)
		}
	}

	if reply == "" {
		return
	}
	if _, err := l.Client.StatusPost(ctx, fmt.Sprintf("@%s \n%s", user, reply), "", ""); err != nil {
		blog.Errorf("fediside: reply-post to %s: %v", user, err)
	}
}

// replyIDOf normalizes Status.InReplyToID, which the API reports as
// either null or a string status id.
func replyIDOf(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case mastodon.ID:
		return string(t)
	default:
		return ""
	}
}

func (l *Listener) handleMention(ctx context.Context, n *mastodon.Notification) {
	if n.Status == nil {
		return
	}
	user := strings.ToLower(string(n.Account.Acct))
	lang := n.Status.Language

	body := n.Status.Content
	if n.Status.Sensitive {
		body = "<p>" + strings.TrimSpace(l.Catalog.Text("cw", lang)) + "</p><br /><p>" +
			n.Status.SpoilerText + "</p><br /><br />" + body
	}
	if len(n.Status.MediaAttachments) > 0 {
		for _, m := range n.Status.MediaAttachments {
			body += "<br /><br /><p>" + m.URL + "</p>"
		}
	}
	if n.Status.Poll != nil {
		body += "<br /><br /><p>" + strings.TrimSpace(l.Catalog.Text("poll", lang)) + "</p><br /><p>" + n.Status.URL + "</p>"
	}

	d := model.Dispatch{
		Side:    model.FEDI,
		Sender:  user,
		Body:    body,
		FromID:  string(n.Status.ID),
		ReplyID: replyIDOf(n.Status.InReplyToID),
	}
	xmppSess := newEphemeralSession(l.XMPPJID, l.XMPPPassword)
	defer xmppSess.close()

	reply, err := l.Pipeline.HandleMessage(ctx, d, xmppSess, l.Client)
	if err != nil {
		blog.Errorf("fediside: handle mention from %s: %v", user, err)
		return
	}
	if reply == "" {
		return
	}
	if _, err := l.Client.StatusPost(ctx, fmt.Sprintf("@%s \n%s", user, reply), d.FromID, lang); err != nil {
		blog.Errorf("fediside: reply-post to %s: %v", user, err)
	}
}
