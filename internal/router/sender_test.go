package router

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/barbapulpe/xmppapbridge/internal/bridgefile"
	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/config"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/store"
	"github.com/barbapulpe/xmppapbridge/internal/translations"
	"github.com/stretchr/testify/require"
)

type stubXMPPSession struct {
	sent []string
}

func (s *stubXMPPSession) SendMessage(ctx context.Context, to, body, lang string) error {
	s.sent = append(s.sent, to+":"+body)
	return nil
}
func (s *stubXMPPSession) SetPresenceSubscription(ctx context.Context, to string, kind capability.PresenceKind) error {
	return nil
}
func (s *stubXMPPSession) DelRosterItem(ctx context.Context, jid string) error { return nil }
func (s *stubXMPPSession) RosterSubscription(ctx context.Context, jid string) (capability.Subscription, error) {
	return capability.SubBoth, nil
}

type stubFediClient struct{ posted []string }

func (c *stubFediClient) AccountFollow(ctx context.Context, id string) error   { return nil }
func (c *stubFediClient) AccountUnfollow(ctx context.Context, id string) error { return nil }
func (c *stubFediClient) AccountRelationships(ctx context.Context, id string) (capability.Relationship, error) {
	return capability.Relationship{}, nil
}
func (c *stubFediClient) AccountLookup(ctx context.Context, acct string) (capability.Account, error) {
	return capability.Account{}, nil
}
func (c *stubFediClient) AccountStatuses(ctx context.Context, id string, limit int) ([]capability.Status, error) {
	return nil, nil
}
func (c *stubFediClient) StatusPost(ctx context.Context, body, inReplyTo, lang string) (string, error) {
	c.posted = append(c.posted, body)
	return "status1", nil
}
func (c *stubFediClient) FollowRequestAuthorize(ctx context.Context, id string) error { return nil }
func (c *stubFediClient) FollowRequestReject(ctx context.Context, id string) error    { return nil }
func (c *stubFediClient) InstanceDomainBlocks(ctx context.Context) ([]string, error)  { return nil, nil }
func (c *stubFediClient) MaxCharacters(ctx context.Context) (int, error)              { return 0, nil }
func (c *stubFediClient) VerifyCredentialsLocked(ctx context.Context) (bool, error)   { return false, nil }

func testCatalog() translations.Catalog {
	return translations.Catalog{
		"stopped":      {"en": "stopped\n\n"},
		"noaddress":    {"en": "noaddress\n\n"},
		"toomany":      {"en": "toomany\n\n"},
		"sent":         {"en": "sent\n\n"},
		"notregwarn":   {"en": "notregwarn\n\n"},
		"blockingwarn": {"en": "blockingwarn\n\n"},
	}
}

func TestSendRejectsWhenStopped(t *testing.T) {
	dir := t.TempDir()
	files, err := bridgefile.Open(dir)
	require.NoError(t, err)
	defer files.Close()
	require.NoError(t, files.SetStarted(false))

	st, _, err := store.NewMock()
	require.NoError(t, err)
	defer st.Close()

	s := &Sender{
		Store:   st,
		Files:   files,
		Config:  &config.Config{DefaultLang: "en", MaxDestToSend: 5},
		Catalog: testCatalog(),
	}

	reply, err := s.Send(context.Background(), model.Dispatch{Side: model.FEDI, Sender: "alice@example.org"}, model.ParsedContent{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "stopped\n\n", reply)
}

func TestSendDeliversToXMPPRecipient(t *testing.T) {
	dir := t.TempDir()
	files, err := bridgefile.Open(dir)
	require.NoError(t, err)
	defer files.Close()
	require.NoError(t, files.SetStarted(true))

	st, mock, err := store.NewMock()
	require.NoError(t, err)
	defer st.Close()

	userCols := []string{"side", "user", "req_date", "nb_reg", "lang", "revoke_date", "app", "acc_id"}
	userRow := func() *sqlmock.Rows {
		return sqlmock.NewRows(userCols).AddRow(
			int(model.FEDI), "alice@example.org", time.Now(), 1, "en", nil, "Mastodon", "acc1")
	}
	// FetchUser(alice) is called three times: replyLang, the active
	// check in Send, and the sender-app lookup in deliverToXMPP.
	for i := 0; i < 3; i++ {
		mock.ExpectQuery("SELECT side, user, req_date, nb_reg, lang, revoke_date, app, acc_id FROM users").
			WithArgs(int(model.FEDI), "alice@example.org").
			WillReturnRows(userRow())
	}

	blockCols := []string{"COUNT(*)"}
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM blocks").
		WillReturnRows(sqlmock.NewRows(blockCols).AddRow(0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM blocks").
		WillReturnRows(sqlmock.NewRows(blockCols).AddRow(0))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO comm").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	s := &Sender{
		Store:   st,
		Files:   files,
		Config:  &config.Config{DefaultLang: "en", MaxDestToSend: 5},
		Catalog: testCatalog(),
	}

	xs := &stubXMPPSession{}
	parsed := model.ParsedContent{XMPPJIDs: []string{"bob@xmpp.example"}}
	d := model.Dispatch{Side: model.FEDI, Sender: "alice@example.org", Body: "hello", FromID: "status1"}

	reply, err := s.Send(context.Background(), d, parsed, xs, nil)
	require.NoError(t, err)
	require.Equal(t, "sent\n\n", reply)
	require.Len(t, xs.sent, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestSendStripsUnregisteredFediRecipient covers spec §4.6's "not
// registered" branch: an XMPP sender naming an AP address that never
// registered with the bridge gets a warning instead of a post.
func TestSendStripsUnregisteredFediRecipient(t *testing.T) {
	dir := t.TempDir()
	files, err := bridgefile.Open(dir)
	require.NoError(t, err)
	defer files.Close()
	require.NoError(t, files.SetStarted(true))

	st, mock, err := store.NewMock()
	require.NoError(t, err)
	defer st.Close()

	senderCols := []string{"side", "user", "req_date", "nb_reg", "lang", "revoke_date", "app", "acc_id"}
	senderRow := func() *sqlmock.Rows {
		return sqlmock.NewRows(senderCols).AddRow(
			int(model.XMPP), "bob@xmpp.example", time.Now(), 1, "en", nil, "XMPP", "")
	}
	// FetchUser(bob) is called twice: replyLang and the active check.
	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT side, user, req_date, nb_reg, lang, revoke_date, app, acc_id FROM users").
			WithArgs(int(model.XMPP), "bob@xmpp.example").
			WillReturnRows(senderRow())
	}
	// FetchUser(alice@example.org) for the not-registered recipient
	// check returns no rows.
	mock.ExpectQuery("SELECT side, user, req_date, nb_reg, lang, revoke_date, app, acc_id FROM users").
		WithArgs(int(model.FEDI), "alice@example.org").
		WillReturnRows(sqlmock.NewRows(senderCols))

	s := &Sender{
		Store:   st,
		Files:   files,
		Config:  &config.Config{DefaultLang: "en", MaxDestToSend: 5},
		Catalog: testCatalog(),
	}

	parsed := model.ParsedContent{APAddrs: []string{"alice@example.org"}}
	d := model.Dispatch{Side: model.XMPP, Sender: "bob@xmpp.example", Body: "hello"}

	reply, err := s.Send(context.Background(), d, parsed, nil, &stubFediClient{})
	require.NoError(t, err)
	require.Equal(t, "noaddress\n\n notregwarn\n\n", reply)
	require.NoError(t, mock.ExpectationsWereMet())
}
