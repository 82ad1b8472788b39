// Package live serves publications to websocket clients.
package live

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"convodb/pkg/metrics"
	"convodb/pkg/publish"
	"convodb/pkg/state/logger"
)

type Config struct {
	// QueueSize bounds the outbound frames buffered per connection.
	QueueSize    int
	PingInterval time.Duration
	// WriteTimeout bounds one socket write and the wait for queue space.
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 << 10
	}
	return c
}

// Resolver identifies the user behind an upgrade request.
type Resolver interface {
	ResolveHTTP(r *http.Request) (string, error)
	AllowOrigin(r *http.Request) bool
}

type Handler struct {
	ctx      context.Context
	server   *publish.Server
	resolver Resolver
	cfg      Config
	upgrader websocket.Upgrader
}

// NewHandler serves server's publications. Connections end when ctx is
// cancelled.
func NewHandler(ctx context.Context, server *publish.Server, resolver Resolver, cfg Config) *Handler {
	h := &Handler{ctx: ctx, server: server, resolver: resolver, cfg: cfg.withDefaults()}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     resolver.AllowOrigin,
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.resolver.ResolveHTTP(r)
	if err != nil {
		logger.Warn("live_unauthorized", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote the response
		logger.Debug("live_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(h.ctx, ws, h.cfg)
	sess, err := h.server.Open(c.ctx, userID, c)
	if err != nil {
		c.shutdown("server_closed")
		countDisconnect("server_closed")
		return
	}
	c.sess = sess
	metrics.LiveConnections.Inc()
	logger.Info("live_connected", "session", sess.ID(), "user", userID, "remote", r.RemoteAddr)

	c.send(Frame{Msg: MsgConnected, Session: sess.ID()})
	go c.writeLoop()
	go func() {
		// server shutdown or session close from elsewhere
		select {
		case <-c.ctx.Done():
		case <-sess.Done():
		}
		c.shutdown("session_closed")
	}()
	c.readLoop()

	sess.Close()
	metrics.LiveConnections.Dec()
	countDisconnect(c.closeReason())
	logger.Info("live_disconnected", "session", sess.ID(), "user", userID, "reason", c.closeReason())
}
