package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pacificderg/autoblock-bot/internal/export"
	"github.com/pacificderg/autoblock-bot/pkg/admission"
	"github.com/pacificderg/autoblock-bot/pkg/blob"
	"github.com/pacificderg/autoblock-bot/pkg/command"
	"github.com/pacificderg/autoblock-bot/pkg/config"
	exportpkg "github.com/pacificderg/autoblock-bot/pkg/export"
	"github.com/pacificderg/autoblock-bot/pkg/logger"
	"github.com/pacificderg/autoblock-bot/pkg/metrics"
	"github.com/pacificderg/autoblock-bot/pkg/models"
	"github.com/pacificderg/autoblock-bot/pkg/policy"
	"github.com/pacificderg/autoblock-bot/pkg/store"
	"github.com/pacificderg/autoblock-bot/pkg/telegram"
)

// App encapsulates the bot process: role store, per-bot webhook handlers,
// export scheduler and the HTTP listener.
type App struct {
	eff       *config.Effective
	version   string
	commit    string
	buildDate string

	bots  []*botRuntime
	blob  *blob.Store
	srv   *http.Server
	stopX context.CancelFunc
}

// botRuntime is one bot credential wired to its policy and engines.
type botRuntime struct {
	cfg        config.BotConfig
	admission  *admission.Engine
	dispatcher *command.Dispatcher
}

// New initializes resources that do not require a running context: the
// role store, blob storage and the per-bot engines. Call Run to start the
// scheduler and HTTP server.
func New(eff *config.Effective, version, commit, buildDate string) (*App, error) {
	cfg := eff.Config

	if err := metrics.Register(nil); err != nil {
		return nil, err
	}

	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open role store at %s: %w", eff.DBPath, err)
	}

	blobStore, err := openBlob(eff)
	if err != nil {
		return nil, err
	}

	admins := cfg.RootUserSet()
	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate, blob: blobStore}

	for i, bc := range cfg.Bots {
		mode, err := policy.ParseMode(policyName(bc))
		if err != nil {
			return nil, fmt.Errorf("bots[%d]: %w", i, err)
		}
		pol := policy.Policy{Role: bc.RoleName(), Mode: mode}
		api := newTelegramClient(bc.Key)
		rt := &botRuntime{
			cfg: bc,
			admission: &admission.Engine{
				Policy:   pol,
				API:      api,
				BotID:    telegram.BotID(bc.Key),
				Admins:   admins,
				Greeting: bc.Greeting,
			},
			dispatcher: &command.Dispatcher{
				Policy:  pol,
				API:     api,
				Admins:  admins,
				Welcome: bc.Welcome,
			},
		}
		// Only denylist bots have an export artifact behind /getlist.
		if mode == policy.Denylist {
			rt.dispatcher.List = blobStore
			rt.dispatcher.ListKey = exportpkg.ArchiveKey
		}
		a.bots = append(a.bots, rt)
	}
	return a, nil
}

// newTelegramClient is swapped out by tests to target a fake Bot API.
var newTelegramClient = func(key string) telegram.API {
	return telegram.NewClient(key)
}

func policyName(bc config.BotConfig) string {
	if bc.Policy == "" {
		return "denylist"
	}
	return bc.Policy
}

func openBlob(eff *config.Effective) (*blob.Store, error) {
	bc := eff.Config.Blob
	dir := bc.Dir
	if dir == "" {
		dir = "./exports"
	}
	base := eff.Config.Server.PublicURL
	if base == "" {
		if strings.HasPrefix(eff.Addr, ":") {
			base = "http://localhost" + eff.Addr
		} else {
			base = "http://" + eff.Addr
		}
	}
	secret := bc.Secret
	if secret == "" {
		// Ephemeral secret: download URLs stay valid for this process only.
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(raw)
		logger.Warn("blob_secret_generated", "hint", "set blob.secret to keep export URLs valid across restarts")
	}
	return blob.Open(dir, base, secret, bc.URLTTL.Duration(), bc.MaxArtifact.Int64())
}

// hasDenylistBot reports whether any configured bot runs the denylist
// policy; the export job only snapshots that role.
func (a *App) hasDenylistBot() bool {
	for _, b := range a.bots {
		if b.admission.Policy.Mode == policy.Denylist {
			return true
		}
	}
	return false
}

// Run starts the export scheduler and the HTTP server, and blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.eff.Config.Export.Enabled && a.hasDenylistBot() {
		cancel, err := export.Start(ctx, a.eff.Config.Export, a.blob, models.RoleBlacklist)
		if err != nil {
			return err
		}
		a.stopX = cancel
	}

	a.printBanner()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	if a.stopX != nil {
		a.stopX()
	}
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(ctx)
	}
	if err := store.Close(); err != nil {
		logger.Error("role_store_close_failed", "error", err)
	}
}
