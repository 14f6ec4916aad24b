package manager

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/config"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/store"
	"github.com/barbapulpe/xmppapbridge/internal/translations"
	"github.com/stretchr/testify/require"
)

type stubXMPPSession struct{ delCalled bool }

func (s *stubXMPPSession) SendMessage(ctx context.Context, to, body, lang string) error { return nil }
func (s *stubXMPPSession) SetPresenceSubscription(ctx context.Context, to string, kind capability.PresenceKind) error {
	return nil
}
func (s *stubXMPPSession) DelRosterItem(ctx context.Context, jid string) error {
	s.delCalled = true
	return nil
}
func (s *stubXMPPSession) RosterSubscription(ctx context.Context, jid string) (capability.Subscription, error) {
	return capability.SubBoth, nil
}

func testCatalog() translations.Catalog {
	return translations.Catalog{
		"notregistered":  {"en": "notregistered\n\n"},
		"unregistered":   {"en": "unregistered\n\n"},
		"contactremoved": {"en": "contactremoved\n\n"},
	}
}

func TestUnregisterNoSuchUser(t *testing.T) {
	st, mock, err := store.NewMock()
	require.NoError(t, err)
	defer st.Close()

	mock.ExpectQuery("SELECT side, user, req_date, nb_reg, lang, revoke_date, app, acc_id FROM users").
		WithArgs(int(model.XMPP), "bob@xmpp.example").
		WillReturnRows(sqlmock.NewRows([]string{"side", "user", "req_date", "nb_reg", "lang", "revoke_date", "app", "acc_id"}))

	m := &Manager{Store: st, Catalog: testCatalog(), Config: &config.Config{DefaultLang: "en"}}

	reply, err := m.Unregister(context.Background(), model.XMPP, "bob@xmpp.example", false, "", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "notregistered\n\n", reply)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnregisterRevokesActiveUserAndSyncsRoster(t *testing.T) {
	st, mock, err := store.NewMock()
	require.NoError(t, err)
	defer st.Close()

	userCols := []string{"side", "user", "req_date", "nb_reg", "lang", "revoke_date", "app", "acc_id"}
	mock.ExpectQuery("SELECT side, user, req_date, nb_reg, lang, revoke_date, app, acc_id FROM users").
		WithArgs(int(model.XMPP), "bob@xmpp.example").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			int(model.XMPP), "bob@xmpp.example", time.Now(), 1, "en", nil, "XMPP", ""))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET revoke_date").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM blocks WHERE side = \\? AND blocking = \\?").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM comm WHERE side = \\? AND user = \\?").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM comm WHERE side = \\? AND from_u = \\?").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	m := &Manager{Store: st, Catalog: testCatalog(), Config: &config.Config{DefaultLang: "en"}}

	xs := &stubXMPPSession{}
	reply, err := m.Unregister(context.Background(), model.XMPP, "bob@xmpp.example", false, "", xs, nil)
	require.NoError(t, err)
	require.Equal(t, "unregistered\n\n contactremoved\n\n", reply)
	require.True(t, xs.delCalled)
	require.NoError(t, mock.ExpectationsWereMet())
}
