// Command fedi-bridge runs the bridge's Fediverse-facing process: it
// consumes the bridge account's notification stream and relays
// through the shared core Pipeline, using ephemeral XMPP sessions to
// deliver outbound messages. Grounded on hunter007-jackal's cmd/jackal
// main, adapted to a blocking-stream run loop instead of a listening
// server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

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
)

func main() {
	cfgPath := flag.String("config", "config.yml", "path to the bridge's YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		blog.Fatalf("fedi-bridge: load config: %v", err)
	}
	blog.Configure(cfg.LogFile, cfg.LogLevel)

	files, err := bridgefile.Open(cfg.BridgeFilesDir)
	if err != nil {
		blog.Fatalf("fedi-bridge: open bridge files: %v", err)
	}
	defer files.Close()

	st, err := store.Open(cfg.DatabaseFile)
	if err != nil {
		blog.Fatalf("fedi-bridge: open database: %v", err)
	}
	defer st.Close()

	catalog, err := translations.Load(cfg.TranslationDir, cfg.SupportedLangs)
	if err != nil {
		blog.Fatalf("fedi-bridge: load translations: %v", err)
	}

	supported := make(map[string]bool, len(cfg.SupportedLangs))
	for _, l := range cfg.SupportedLangs {
		supported[l] = true
	}

	var pfix [4]string
	copy(pfix[:], cfg.Pfix)

	ownAP := cfg.XMPPBridgeName + "@" + cfg.APInstance
	reg := &registrar.Registrar{Store: st, Files: files, Catalog: catalog, Config: cfg}
	mgr := &manager.Manager{Store: st, Catalog: catalog, Config: cfg}

	pipeline := &bridgecore.Pipeline{
		Store:  st,
		Parser: content.New(pfix, cfg.APBridgeJID, ownAP, cfg.APInstance),
		Lang:   &lang.Processor{Store: st, Catalog: catalog, SupportedLangs: supported, UnknownLang: cfg.UnknownLang},
		Command: &command.Processor{
			Store: st, Files: files, Catalog: catalog, Config: cfg, Registrar: reg, Manager: mgr,
			OwnXMPPJID: cfg.APBridgeJID, OwnAPAccount: ownAP,
		},
		Sender:    &router.Sender{Store: st, Files: files, Config: cfg, Catalog: catalog, Registrar: reg},
		Registrar: reg,
		Manager:   mgr,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fediClient := fediside.NewClient("https://"+cfg.APInstance, cfg.XMPPBridgeToken)
	if err := bridgecore.InitBridge(ctx, model.FEDI, st, files, cfg, mgr, fediClient); err != nil {
		blog.Fatalf("fedi-bridge: init: %v", err)
	}

	locked, err := fediClient.VerifyCredentialsLocked(ctx)
	if err != nil {
		blog.Warnf("fedi-bridge: verify credentials: %v", err)
	}

	listener := &fediside.Listener{
		Client:        fediClient,
		Pipeline:      pipeline,
		Catalog:       catalog,
		XMPPJID:       cfg.APBridgeJID,
		XMPPPassword:  cfg.APBridgePass,
		AccountLocked: locked,
	}

	blog.Infof("fedi-bridge: starting as %s", ownAP)
	for ctx.Err() == nil {
		if err := listener.Run(ctx); err != nil {
			blog.Errorf("fedi-bridge: stream ended: %v", err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Second):
		}
	}
}
