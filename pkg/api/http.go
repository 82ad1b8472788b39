// Package api is the REST surface of convodb.
package api

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"convodb/pkg/api/auth"
	"convodb/pkg/api/router"
	"convodb/pkg/ingest"
	"convodb/pkg/metrics"
	"convodb/pkg/presence"
	"convodb/pkg/publish"
	"convodb/pkg/state"
	"convodb/pkg/store/collection"
)

// Sweeper runs an on-demand presence sweep.
type Sweeper interface {
	RunImmediate(ctx context.Context) (presence.SweepResult, error)
}

type Deps struct {
	// Context bounds the work handlers do; it is cancelled on shutdown.
	Context context.Context

	Ingest      *ingest.Service
	Sessions    *publish.Server
	Presence    *presence.Tracker
	Collections *collection.Registry
	Sweeper     Sweeper
	// Ready reports whether the store is open; nil means always ready.
	Ready     func() bool
	DiskUsage func() uint64
	DiskSpace func() (state.Space, error)
	Version   string
}

type handlers struct {
	Deps
}

// Handler builds the routed handler wrapped in the auth gateway.
func Handler(gw *auth.Gateway, d Deps) fasthttp.RequestHandler {
	r := router.New()
	RegisterRoutes(r, d)
	return instrument(gw.Middleware(r.Handler))
}

// RegisterRoutes mounts every REST route on r.
func RegisterRoutes(r *router.Router, d Deps) {
	h := &handlers{Deps: d}

	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)

	r.POST("/v1/users", h.registerUser)
	r.POST("/v1/conversations", h.createConversation)
	r.POST("/v1/conversations/{id}/participants", h.addParticipant)
	r.POST("/v1/conversations/{id}/leave", h.leaveConversation)
	r.POST("/v1/conversations/{id}/messages", h.sendMessage)
	r.POST("/v1/messages/{id}/like", h.like)
	r.DELETE("/v1/messages/{id}/like", h.unlike)
	r.POST("/v1/messages/{id}/like/toggle", h.toggleLike)
	r.POST("/v1/messages/{id}/hide", h.hideMessage)

	prom := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.GET("/admin/metrics", prom)
	r.GET("/admin/stats", h.stats)
	r.POST("/admin/presence/sweep", h.sweep)
}

// instrument counts requests by method and status class.
func instrument(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		next(ctx)
		class := strconv.Itoa(ctx.Response.StatusCode()/100) + "xx"
		metrics.HTTPRequests.WithLabelValues(string(ctx.Method()), class).Inc()
	}
}

func (h *handlers) context() context.Context {
	if h.Context != nil {
		return h.Context
	}
	return context.Background()
}

func (h *handlers) healthz(ctx *fasthttp.RequestCtx) {
	router.WriteJSONOk(ctx, map[string]any{"status": "ok", "version": h.Version})
}

func (h *handlers) readyz(ctx *fasthttp.RequestCtx) {
	if h.Ready != nil && !h.Ready() {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "not ready")
		return
	}
	router.WriteJSONOk(ctx, map[string]any{"status": "ready"})
}
