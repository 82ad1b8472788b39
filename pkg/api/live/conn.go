package live

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"convodb/pkg/metrics"
	"convodb/pkg/publish"
	"convodb/pkg/state/logger"
	"convodb/pkg/store/docs"
)

// conn is one websocket client. It is the session's sink: sink methods run
// under the session lock, so they only encode and enqueue, waiting at most
// WriteTimeout for queue space.
type conn struct {
	ws     *websocket.Conn
	cfg    Config
	out    chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	sess   *publish.Session

	closed atomic.Bool
	reason atomic.Value
}

func newConn(parent context.Context, ws *websocket.Conn, cfg Config) *conn {
	ctx, cancel := context.WithCancel(parent)
	return &conn{ws: ws, cfg: cfg, out: make(chan []byte, cfg.QueueSize), ctx: ctx, cancel: cancel}
}

func (c *conn) Added(coll, id string, fields docs.Doc) {
	c.send(Frame{Msg: MsgAdded, Collection: coll, ID: id, Fields: fields})
}

func (c *conn) Changed(coll, id string, fields docs.Doc, cleared []string) {
	c.send(Frame{Msg: MsgChanged, Collection: coll, ID: id, Fields: fields, Cleared: cleared})
}

func (c *conn) Removed(coll, id string) {
	c.send(Frame{Msg: MsgRemoved, Collection: coll, ID: id})
}

func (c *conn) Ready(subID string) {
	c.send(Frame{Msg: MsgReady, Subs: []string{subID}})
}

func (c *conn) NoSub(subID string, err error) {
	f := Frame{Msg: MsgNoSub, ID: subID}
	if err != nil {
		f.Error = err.Error()
	}
	c.send(f)
}

// send waits up to WriteTimeout for room in the queue, so a large initial
// result set streams at the client's pace. A client that stays full for that
// long is disconnected.
func (c *conn) send(f Frame) {
	if c.closed.Load() {
		return
	}
	b, err := encode(f)
	if err != nil {
		logger.Error("live_encode_failed", "msg", f.Msg, "error", err)
		return
	}
	select {
	case c.out <- b:
		return
	default:
	}
	metrics.LiveBackpressure.Inc()
	timer := time.NewTimer(c.cfg.WriteTimeout)
	defer timer.Stop()
	select {
	case c.out <- b:
	case <-c.ctx.Done():
	case <-timer.C:
		go c.shutdown("slow_consumer")
	}
}

// shutdown closes the socket, which ends both loops. Only the first reason
// is kept.
func (c *conn) shutdown(reason string) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.reason.Store(reason)
	c.cancel()
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline)
	_ = c.ws.Close()
}

func (c *conn) closeReason() string {
	if r, ok := c.reason.Load().(string); ok {
		return r
	}
	return "unknown"
}

func (c *conn) writeLoop() {
	defer c.shutdown("write_ended")
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case b := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				logger.Debug("live_write_failed", "session", c.sessionID(), "error", err)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				logger.Debug("live_ping_failed", "session", c.sessionID(), "error", err)
				return
			}
		}
	}
}

func (c *conn) readLoop() {
	defer c.shutdown("client_closed")
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	pongWait := 2 * c.cfg.PingInterval
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("live_read_failed", "session", c.sessionID(), "error", err)
			}
			return
		}
		f, err := decode(b)
		if err != nil {
			c.send(Frame{Msg: MsgError, Error: "malformed frame"})
		} else {
			c.handle(f)
		}
		// handle may have streamed a large result set
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (c *conn) handle(f Frame) {
	switch f.Msg {
	case MsgSub:
		if f.ID == "" || f.Name == "" {
			c.send(Frame{Msg: MsgError, Error: "sub requires id and name"})
			return
		}
		err := c.sess.Subscribe(f.ID, f.Name, f.Params)
		// handler and lookup failures were already reported as nosub
		if errors.Is(err, publish.ErrDuplicateSubscription) {
			c.send(Frame{Msg: MsgError, ID: f.ID, Error: err.Error()})
		}
	case MsgUnsub:
		c.sess.Unsubscribe(f.ID)
		c.send(Frame{Msg: MsgNoSub, ID: f.ID})
	case MsgPing:
		c.send(Frame{Msg: MsgPong, ID: f.ID})
	default:
		c.send(Frame{Msg: MsgError, Error: "unknown msg " + f.Msg})
	}
}

func (c *conn) sessionID() string {
	if c.sess == nil {
		return ""
	}
	return c.sess.ID()
}

func countDisconnect(reason string) {
	metrics.LiveDisconnects.WithLabelValues(reason).Inc()
}
