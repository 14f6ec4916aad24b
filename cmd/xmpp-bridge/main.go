// Command xmpp-bridge runs the bridge's XMPP-facing process: one
// persistent session, fed through the shared core Pipeline. Grounded
// on hunter007-jackal's cmd/jackal main (load config, open storage,
// run the server loop until signalled).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/barbapulpe/xmppapbridge/internal/blog"
	"github.com/barbapulpe/xmppapbridge/internal/bridgecore"
	"github.com/barbapulpe/xmppapbridge/internal/bridgefile"
	"github.com/barbapulpe/xmppapbridge/internal/command"
	"github.com/barbapulpe/xmppapbridge/internal/config"
	"github.com/barbapulpe/xmppapbridge/internal/content"
	"github.com/barbapulpe/xmppapbridge/internal/fediside"
	"github.com/barbapulpe/xmppapbridge/internal/lang"
	"github.com/barbapulpe/xmppapbridge/internal/manager"
	"github.com/barbapulpe/xmppapbridge/internal/model"
	"github.com/barbapulpe/xmppapbridge/internal/registrar"
	"github.com/barbapulpe/xmppapbridge/internal/router"
	"github.com/barbapulpe/xmppapbridge/internal/store"
	"github.com/barbapulpe/xmppapbridge/internal/translations"
	"github.com/barbapulpe/xmppapbridge/internal/xmppside"
)

func main() {
	cfgPath := flag.String("config", "config.yml", "path to the bridge's YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		blog.Fatalf("xmpp-bridge: load config: %v", err)
	}
	blog.Configure(cfg.LogFile, cfg.LogLevel)

	files, err := bridgefile.Open(cfg.BridgeFilesDir)
	if err != nil {
		blog.Fatalf("xmpp-bridge: open bridge files: %v", err)
	}
	defer files.Close()

	st, err := store.Open(cfg.DatabaseFile)
	if err != nil {
		blog.Fatalf("xmpp-bridge: open database: %v", err)
	}
	defer st.Close()

	catalog, err := translations.Load(cfg.TranslationDir, cfg.SupportedLangs)
	if err != nil {
		blog.Fatalf("xmpp-bridge: load translations: %v", err)
	}

	supported := make(map[string]bool, len(cfg.SupportedLangs))
	for _, l := range cfg.SupportedLangs {
		supported[l] = true
	}

	var pfix [4]string
	copy(pfix[:], cfg.Pfix)

	reg := &registrar.Registrar{Store: st, Files: files, Catalog: catalog, Config: cfg}
	mgr := &manager.Manager{Store: st, Catalog: catalog, Config: cfg}

	pipeline := &bridgecore.Pipeline{
		Store:  st,
		Parser: content.New(pfix, cfg.APBridgeJID, cfg.XMPPBridgeName+"@"+cfg.APInstance, cfg.APInstance),
		Lang:   &lang.Processor{Store: st, Catalog: catalog, SupportedLangs: supported, UnknownLang: cfg.UnknownLang},
		Command: &command.Processor{
			Store: st, Files: files, Catalog: catalog, Config: cfg, Registrar: reg, Manager: mgr,
			OwnXMPPJID: cfg.APBridgeJID, OwnAPAccount: cfg.XMPPBridgeName + "@" + cfg.APInstance,
		},
		Sender:    &router.Sender{Store: st, Files: files, Config: cfg, Catalog: catalog, Registrar: reg},
		Registrar: reg,
		Manager:   mgr,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The Fediverse side is reachable from this process only through a
	// short-lived client built per spec.md §5's "ephemeral session per
	// message" rule for the non-owning side; InitBridge's Fediverse
	// reconciliation step runs only in the fedi-bridge process.
	var fediClient *fediside.Client
	if cfg.XMPPBridgeToken != "" {
		fediClient = fediside.NewClient("https://"+cfg.APInstance, cfg.XMPPBridgeToken)
	}
	if err := bridgecore.InitBridge(ctx, model.XMPP, st, files, cfg, mgr, fediClient); err != nil {
		blog.Fatalf("xmpp-bridge: init: %v", err)
	}

	listener := &xmppside.Listener{JID: cfg.APBridgeJID, Password: cfg.APBridgePass, Pipeline: pipeline}
	blog.Infof("xmpp-bridge: starting as %s", cfg.APBridgeJID)
	listener.Run(ctx)
}
