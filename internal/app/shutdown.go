package app

import (
	"context"
	"errors"
	"fmt"

	"convodb/pkg/state/logger"
)

// Shutdown stops listeners, closes live sessions, then the store. It is safe
// to call after a failed Run.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	logger.Info("shutdown_started")
	if a.cancel != nil {
		a.cancel()
	}

	var errs []error
	if a.srvLive != nil {
		if err := a.srvLive.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("live server: %w", err))
		}
	}
	if a.srvFast != nil {
		done := make(chan error, 1)
		go func() { done <- a.srvFast.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("http server: %w", err))
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("http server: %w", ctx.Err()))
		}
	}
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.sessions != nil {
		a.sessions.Close()
	}
	if a.gateway != nil {
		a.gateway.Shutdown()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err == nil {
		a.state = "stopped"
		logger.Info("shutdown_complete")
	} else {
		logger.Error("shutdown_failed", "error", err)
	}
	return err
}

// State reports the lifecycle phase.
func (a *App) State() string { return a.state }
