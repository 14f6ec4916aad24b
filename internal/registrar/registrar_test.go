package registrar

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/barbapulpe/xmppapbridge/internal/bridgefile"
	"github.com/barbapulpe/xmppapbridge/internal/capability"
	"github.com/barbapulpe/xmppapbridge/internal/config"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/store"
	"github.com/barbapulpe/xmppapbridge/internal/translations"
	"github.com/stretchr/testify/require"
)

type stubXMPPSession struct{}

func (stubXMPPSession) SendMessage(ctx context.Context, to, body, lang string) error { return nil }
func (stubXMPPSession) SetPresenceSubscription(ctx context.Context, to string, kind capability.PresenceKind) error {
	return nil
}
func (stubXMPPSession) DelRosterItem(ctx context.Context, jid string) error { return nil }
func (stubXMPPSession) RosterSubscription(ctx context.Context, jid string) (capability.Subscription, error) {
	return capability.SubBoth, nil
}

func testCatalog() translations.Catalog {
	return translations.Catalog{
		"closed":       {"en": "closed\n\n"},
		"registered":   {"en": "registered\n\n"},
		"contactadded": {"en": "contactadded\n\n"},
	}
}

func TestRegisterRejectsWhenClosed(t *testing.T) {
	dir := t.TempDir()
	files, err := bridgefile.Open(dir)
	require.NoError(t, err)
	defer files.Close()
	require.NoError(t, files.SetRegistrationOpen(false))

	st, _, err := store.NewMock()
	require.NoError(t, err)
	defer st.Close()

	r := &Registrar{Store: st, Files: files, Catalog: testCatalog(), Config: &config.Config{DefaultLang: "en"}}

	reply, ok, err := r.Register(context.Background(), model.XMPP, "bob@xmpp.example", false, "", nil, nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "closed\n\n", reply)
}

func TestRegisterInsertsNewXMPPUser(t *testing.T) {
	dir := t.TempDir()
	files, err := bridgefile.Open(dir)
	require.NoError(t, err)
	defer files.Close()
	require.NoError(t, files.SetRegistrationOpen(true))

	st, mock, err := store.NewMock()
	require.NoError(t, err)
	defer st.Close()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM instb").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))
	mock.ExpectQuery("SELECT side, user, req_date, nb_reg, lang, revoke_date, app, acc_id FROM users").
		WithArgs(int(model.XMPP), "bob@xmpp.example").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT side, user, req_date, nb_reg, lang, revoke_date, app, acc_id FROM users").
		WithArgs(int(model.XMPP), "bob@xmpp.example").
		WillReturnError(sql.ErrNoRows)

	r := &Registrar{
		Store:   st,
		Files:   files,
		Catalog: testCatalog(),
		Config:  &config.Config{DefaultLang: "en", XMPPInstance: "xmpp.example"},
	}

	reply, ok, err := r.Register(context.Background(), model.XMPP, "bob@xmpp.example", false, "", stubXMPPSession{}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, reply, "registered")
	require.NoError(t, mock.ExpectationsWereMet())
}
