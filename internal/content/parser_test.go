package content

import (
	"testing"

	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	return New([4]string{"@", "xmpp:", "!", "lang="}, "bridge@xmpp.example", "bridge@fedi.example", "fedi.example")
}

func TestParseXMPPCommand(t *testing.T) {
	p := newTestParser()
	out := p.Parse(model.XMPP, "!register please")
	require.Equal(t, []string{"register"}, out.Commands)
}

func TestParseXMPPAddressesAndLang(t *testing.T) {
	p := newTestParser()
	out := p.Parse(model.XMPP, "hello xmpp:bob@example.org lang=fr @alice@fedi.example")
	require.Equal(t, []string{"bob@example.org"}, out.XMPPJIDs)
	require.Equal(t, []string{"alice@fedi.example"}, out.APAddrs)
	require.Equal(t, []string{"fr"}, out.LangCodes)
}

func TestParseShortAPFlag(t *testing.T) {
	p := newTestParser()
	out := p.Parse(model.XMPP, "hey @alice how are you")
	require.True(t, out.FlagShortAP)
}

func TestParseExcludesOwnAddress(t *testing.T) {
	p := newTestParser()
	out := p.Parse(model.XMPP, "xmpp:bridge@xmpp.example hello")
	require.Empty(t, out.XMPPJIDs)
}

func TestParseExtractsBareTwoLabelDomain(t *testing.T) {
	p := newTestParser()
	out := p.Parse(model.XMPP, "!red-add evil.example")
	require.Equal(t, []string{"evil.example"}, out.Domains)
}

func TestParseIdempotent(t *testing.T) {
	p := newTestParser()
	first := p.Parse(model.XMPP, "xmpp:bob@example.org lang=fr !register")
	second := p.Parse(model.XMPP, first.ParsedBody)
	require.ElementsMatch(t, first.Commands, second.Commands)
}
