package publish

import (
	"context"
	"fmt"
	"sync"

	"convodb/pkg/metrics"
	"convodb/pkg/state/logger"
)

// Subscription is the handle a publication handler works against.
type Subscription struct {
	sess   *Session
	id     string
	name   string
	params Params

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	mu      sync.Mutex
	graphs  []*Graph
	onStop  []func()
	ready   bool
	stopped bool
}

func newSubscription(sess *Session, id, name string, params Params) *Subscription {
	ctx, cancel := context.WithCancel(sess.ctx)
	sub := &Subscription{sess: sess, id: id, name: name, params: params, ctx: ctx, cancel: cancel}
	metrics.Subscriptions.WithLabelValues(name).Inc()
	context.AfterFunc(ctx, func() { sub.stopOnce.Do(sub.teardown) })
	return sub
}

func (s *Subscription) ID() string               { return s.id }
func (s *Subscription) Name() string             { return s.name }
func (s *Subscription) Params() Params           { return s.params }
func (s *Subscription) UserID() string           { return s.sess.userID }
func (s *Subscription) SessionID() string        { return s.sess.id }
func (s *Subscription) Context() context.Context { return s.ctx }

func (s *Subscription) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Ready tells the client the initial result set is complete. Later calls
// are no-ops.
func (s *Subscription) Ready() {
	s.mu.Lock()
	if s.ready || s.stopped {
		s.mu.Unlock()
		return
	}
	s.ready = true
	s.mu.Unlock()
	s.sess.ready(s.id)
}

// OnStop registers fn to run once when the subscription stops for any
// reason. Registered after the stop, fn runs immediately.
func (s *Subscription) OnStop(fn func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		runHook(s, fn)
		return
	}
	s.onStop = append(s.onStop, fn)
	s.mu.Unlock()
}

// Publish builds and starts a graph for spec. Initial documents have reached
// the sink when it returns.
func (s *Subscription) Publish(spec *Spec) (*Graph, error) {
	g, err := NewGraph(s.sess, spec)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrGraphStopped
	}
	s.graphs = append(s.graphs, g)
	s.mu.Unlock()

	if err := g.Start(); err != nil {
		g.Stop()
		return nil, fmt.Errorf("publish %s: %w", spec.Collection(), err)
	}
	return g, nil
}

// Stop ends the subscription and runs its stop hooks before returning.
func (s *Subscription) Stop() {
	s.cancel()
	s.stopOnce.Do(s.teardown)
}

func (s *Subscription) fail(err error) {
	s.sess.noSub(s.id, err)
	s.Stop()
}

func (s *Subscription) teardown() {
	s.mu.Lock()
	s.stopped = true
	graphs := s.graphs
	s.graphs = nil
	s.mu.Unlock()

	s.sess.mu.Lock()
	for _, g := range graphs {
		g.stop()
	}
	s.sess.removeSub(s)
	s.sess.mu.Unlock()

	s.mu.Lock()
	hooks := s.onStop
	s.onStop = nil
	s.mu.Unlock()
	for _, fn := range hooks {
		runHook(s, fn)
	}
	metrics.Subscriptions.WithLabelValues(s.name).Dec()
	logger.Debug("subscription_stopped", "name", s.name, "sub", s.id, "session", s.sess.id)
}

func runHook(s *Subscription, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("subscription_stop_hook_panic", "name", s.name, "sub", s.id, "panic", r)
		}
	}()
	fn()
}
