package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"convodb/internal/sweeper"
	"convodb/pkg/access"
	"convodb/pkg/api/auth"
	"convodb/pkg/config"
	"convodb/pkg/config/banner"
	"convodb/pkg/ingest"
	"convodb/pkg/models"
	"convodb/pkg/presence"
	"convodb/pkg/publications"
	"convodb/pkg/publish"
	"convodb/pkg/state"
	"convodb/pkg/state/logger"
	"convodb/pkg/store/collection"
	"convodb/pkg/store/db/storedb"
	"convodb/pkg/store/keys"
	"convodb/pkg/validation"
)

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	store    *storedb.Store
	colls    *collection.Registry
	ingest   *ingest.Service
	presence *presence.Tracker
	sessions *publish.Server
	sweeper  *sweeper.Sweeper
	gateway  *auth.Gateway

	cancel  context.CancelFunc
	srvFast *fasthttp.Server
	srvLive *http.Server
	state   string
}

// New opens the store and wires the domain. It does not listen; Run does.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	cfg := eff.Config
	if cfg == nil {
		return nil, fmt.Errorf("effective config is nil")
	}
	if state.PathsVar.Store == "" {
		return nil, fmt.Errorf("state paths not initialized")
	}
	store, err := storedb.Open(state.PathsVar.Store, storedb.Options{
		Sync:      cfg.Storage.Sync,
		CacheSize: cfg.Storage.CacheSize.Int64(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}
	checkDiskSpace(state.PathsVar.Store)
	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate, store: store, state: "initialized"}
	if err := a.wire(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	cfg := a.eff.Config
	if err := a.store.SaveKey(keys.SystemVersionKey, []byte(a.version)); err != nil {
		return fmt.Errorf("write version: %w", err)
	}

	a.colls = collection.NewRegistry(a.store)
	participants, err := a.colls.Open(models.Participants)
	if err != nil {
		return err
	}
	checker := access.NewParticipants(participants)
	a.ingest, err = ingest.New(a.colls, ingest.Options{Checker: checker, Rules: validation.Rules{
		MaxBodyLen:   int(cfg.Limits.MaxBodyLen.Int64()),
		MaxNameLen:   cfg.Limits.MaxNameLen,
		MaxMembers:   cfg.Limits.MaxMembers,
		MessageTypes: cfg.Limits.MessageTypes,
	}})
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	a.presence = presence.NewTracker(participants)

	reg := publish.NewRegistry()
	if err := publications.Register(reg, publications.Deps{Collections: a.colls, Checker: checker, Presence: a.presence}); err != nil {
		return fmt.Errorf("publications: %w", err)
	}
	a.sessions = publish.NewServer(reg)

	a.sweeper, err = sweeper.New(cfg.Presence.SweepCron, a.presence, a.store)
	if err != nil {
		return err
	}

	a.gateway = auth.NewGateway(auth.Config{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		RPS:            cfg.Server.RateLimit.RPS,
		Burst:          cfg.Server.RateLimit.Burst,
		IPWhitelist:    cfg.Server.IPWhitelist,
		FrontendKeys:   auth.KeySet(cfg.Server.APIKeys.Frontend...),
		BackendKeys:    auth.KeySet(cfg.Server.APIKeys.Backend...),
		AdminKeys:      auth.KeySet(cfg.Server.APIKeys.Admin...),
		SigningKeys:    auth.KeySet(cfg.SigningKeys()...),
	}, auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Leeway.Duration()))
	logger.Debug("app_wired", "publications", reg.Names())
	return nil
}

// Run starts the sweeper and both listeners and blocks until ctx is
// cancelled or a listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	banner.Print(os.Stdout, a.eff, a.versionString())

	if a.eff.Config.SweepOnStart() {
		if res, err := a.sweeper.RunImmediate(ctx); err != nil {
			logger.Warn("startup_sweep_failed", "error", err)
		} else {
			logger.Info("startup_sweep_done", "observing", res.Observing, "typing", res.Typing)
		}
	}
	a.sweeper.Start(ctx)

	errCh := a.startHTTP(ctx)
	liveCh := a.startLive(ctx)
	a.state = "running"
	logger.Info("server_started", "addr", a.eff.Addr, "live", a.eff.Config.LiveAddr())

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case err := <-liveCh:
		return fmt.Errorf("live server: %w", err)
	}
}

func (a *App) versionString() string {
	v := a.version
	if a.commit != "" && a.commit != "none" {
		v += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		v += " @ " + a.buildDate
	}
	return v
}

// minFreePct is the free space below which startup warns.
const minFreePct = 10

func checkDiskSpace(path string) {
	sp, err := state.DiskSpace(path)
	if err != nil {
		logger.Debug("disk_space_unavailable", "path", path, "error", err)
		return
	}
	if sp.Low(minFreePct) {
		logger.Warn("disk_space_low", "path", path, "available", humanize.Bytes(sp.Available), "used_pct", sp.UsedPct())
		return
	}
	logger.Info("disk_space", "path", path, "available", humanize.Bytes(sp.Available), "total", humanize.Bytes(sp.Total))
}
