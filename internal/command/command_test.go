package command

import (
	"context"
	"testing"

	"github.com/barbapulpe/xmppapbridge/internal/bridgefile"
	"github.com/barbapulpe/xmppapbridge/internal/config"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/store"
	"github.com/barbapulpe/xmppapbridge/internal/translations"
	"github.com/stretchr/testify/require"
)

func testCatalog() translations.Catalog {
	return translations.Catalog{
		"notacommand": {"en": "notacommand"},
		"notadmin":    {"en": "notadmin"},
		"onecommand":  {"en": "onecommand"},
		"help":        {"en": "help text"},
	}
}

func newTestProcessor(t *testing.T) (*Processor, *bridgefile.Files) {
	t.Helper()
	dir := t.TempDir()
	files, err := bridgefile.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { files.Close() })

	st, _, err := store.NewMock()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		DefaultLang: "en",
		CommandList: []string{
			"register", "unregister", "report", "help", "block", "unblock", "listblocks",
			"start", "stop", "listusers", "listinstblocks", "adminblock", "adminunblock", "adminhelp",
			"addred", "addgreen", "removered", "removegreen", "listred", "listgreen", "open", "close", "status",
		},
		XMPPAdmin: []string{"admin@xmpp.example"},
	}
	return &Processor{Store: st, Files: files, Catalog: testCatalog(), Config: cfg}, files
}

func TestProcessUnknownCommand(t *testing.T) {
	p, _ := newTestProcessor(t)
	d := model.Dispatch{Side: model.XMPP, Sender: "alice@xmpp.example"}
	parsed := model.ParsedContent{Commands: []string{"bogus"}}

	reply, err := p.Process(context.Background(), d, parsed, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "notacommand", reply)
}

func TestProcessTooManyCommands(t *testing.T) {
	p, _ := newTestProcessor(t)
	d := model.Dispatch{Side: model.XMPP, Sender: "alice@xmpp.example"}
	parsed := model.ParsedContent{Commands: []string{"help", "status"}}

	reply, err := p.Process(context.Background(), d, parsed, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "onecommand", reply)
}

func TestProcessAdminCommandRejectsNonAdmin(t *testing.T) {
	p, _ := newTestProcessor(t)
	d := model.Dispatch{Side: model.XMPP, Sender: "alice@xmpp.example"}
	parsed := model.ParsedContent{Commands: []string{"status"}}

	reply, err := p.Process(context.Background(), d, parsed, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "notadmin", reply)
}

func TestProcessStatusForAdmin(t *testing.T) {
	p, files := newTestProcessor(t)
	require.NoError(t, files.SetStarted(true))
	d := model.Dispatch{Side: model.XMPP, Sender: "admin@xmpp.example"}
	parsed := model.ParsedContent{Commands: []string{"status"}}

	reply, err := p.Process(context.Background(), d, parsed, nil, nil)
	require.NoError(t, err)
	require.Contains(t, reply, "started")
}

func TestProcessHelp(t *testing.T) {
	p, _ := newTestProcessor(t)
	p.Config.HelpURL = map[string]string{"en": "https://example.org/help"}
	d := model.Dispatch{Side: model.XMPP, Sender: "alice@xmpp.example"}
	parsed := model.ParsedContent{Commands: []string{"help"}}

	reply, err := p.Process(context.Background(), d, parsed, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "help text https://example.org/help", reply)
}
