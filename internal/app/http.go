package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"

	"convodb/pkg/api"
	"convodb/pkg/api/live"
	"convodb/pkg/state"
)

// restHandler builds the gateway wrapped REST handler.
func (a *App) restHandler(ctx context.Context) fasthttp.RequestHandler {
	return api.Handler(a.gateway, api.Deps{
		Context:     ctx,
		Ingest:      a.ingest,
		Sessions:    a.sessions,
		Presence:    a.presence,
		Collections: a.colls,
		Sweeper:     a.sweeper,
		Ready:       a.store.Ready,
		DiskUsage:   a.store.DiskUsage,
		DiskSpace:   func() (state.Space, error) { return state.DiskSpace(state.PathsVar.Store) },
		Version:     a.version,
	})
}

// startHTTP builds and starts the fasthttp server, returning a channel that delivers errors.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	const (
		readBufferSize       = 64 * 1024
		maxRequestBodySize   = 1 * 1024 * 1024
		readTimeout          = 10 * time.Second
		writeTimeout         = 10 * time.Second
		idleTimeout          = 30 * time.Second
		maxKeepaliveDuration = 2 * time.Minute
	)
	a.srvFast = &fasthttp.Server{
		Handler:              a.restHandler(ctx),
		Name:                 "convodb",
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   maxRequestBodySize,
		ReduceMemoryUsage:    true,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}

// startLive serves the websocket endpoint on its own net/http listener;
// gorilla/websocket upgrades net/http connections only.
func (a *App) startLive(ctx context.Context) <-chan error {
	cfg := a.eff.Config.Live
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, live.NewHandler(ctx, a.sessions, a.gateway, live.Config{
		QueueSize:      cfg.QueueSize,
		PingInterval:   cfg.PingInterval.Duration(),
		WriteTimeout:   cfg.WriteTimeout.Duration(),
		MaxMessageSize: cfg.MaxMessageSize.Int64(),
	}))
	a.srvLive = &http.Server{
		Addr:              a.eff.Config.LiveAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srvLive.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}
