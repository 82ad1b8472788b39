package api

import (
	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"convodb/pkg/api/router"
	"convodb/pkg/state/logger"
)

func (h *handlers) stats(ctx *fasthttp.RequestCtx) {
	out := map[string]any{}
	if h.Sessions != nil {
		out["live"] = h.Sessions.Stats()
	}
	if h.Collections != nil {
		out["collections"] = h.Collections.Stats()
	}
	if h.Presence != nil {
		viewers, typers := h.Presence.Stats()
		out["presence"] = map[string]int{"viewers": viewers, "typers": typers}
	}
	if h.DiskUsage != nil {
		n := h.DiskUsage()
		out["disk"] = map[string]any{"bytes": n, "human": humanize.Bytes(n)}
	}
	if h.DiskSpace != nil {
		if sp, err := h.DiskSpace(); err == nil {
			out["filesystem"] = map[string]any{
				"total":     sp.Total,
				"available": sp.Available,
				"used_pct":  sp.UsedPct(),
				"human":     humanize.Bytes(sp.Available) + " free of " + humanize.Bytes(sp.Total),
			}
		} else {
			logger.Debug("disk_space_unavailable", "error", err)
		}
	}
	router.WriteJSONOk(ctx, out)
}

func (h *handlers) sweep(ctx *fasthttp.RequestCtx) {
	if h.Sweeper == nil {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "sweeper not running")
		return
	}
	res, err := h.Sweeper.RunImmediate(h.context())
	if err != nil {
		logger.Error("admin_sweep_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "sweep failed")
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"observing": res.Observing, "typing": res.Typing})
}
