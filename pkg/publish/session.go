package publish

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"convodb/pkg/metrics"
	"convodb/pkg/state/logger"
)

var (
	ErrSessionClosed         = errors.New("session closed")
	ErrDuplicateSubscription = errors.New("subscription already active")
)

// Session is one client connection. Its subscriptions share a fan-in tracker
// and a serial executor, so all reactive work for the client happens on a
// single logical thread guarded by mu.
type Session struct {
	id       string
	userID   string
	ctx      context.Context
	cancel   context.CancelFunc
	registry *Registry
	onClose  func(*Session)

	mu      sync.Mutex
	sink    Sink
	tracker *Tracker
	subs    map[string]*Subscription
	closing bool
	closed  bool
	done    chan struct{}

	exec   *serial
	nodeID atomic.Uint64
}

// NewSession opens a session for userID ("" for anonymous) that delivers to
// sink. Cancelling parent closes it.
func NewSession(parent context.Context, userID string, sink Sink, reg *Registry) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:       uuid.NewString(),
		userID:   userID,
		ctx:      ctx,
		cancel:   cancel,
		registry: reg,
		sink:     sink,
		tracker:  NewTracker(sink),
		subs:     make(map[string]*Subscription),
		exec:     newSerial(),
		done:     make(chan struct{}),
	}
	metrics.Sessions.Inc()
	context.AfterFunc(ctx, s.Close)
	return s
}

func (s *Session) ID() string               { return s.id }
func (s *Session) UserID() string           { return s.userID }
func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) nextNodeID() uint64 { return s.nodeID.Add(1) }

// dispatch queues fn to run under the session lock.
func (s *Session) dispatch(fn func()) {
	s.exec.enqueue(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		fn()
	})
}

// Subscribe starts publication name as subID. Handler errors are reported to
// the sink as nosub and returned.
func (s *Session) Subscribe(subID, name string, params Params) error {
	h, ok := s.registry.Lookup(name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownPublication, name)
		s.noSub(subID, err)
		return err
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if _, dup := s.subs[subID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateSubscription, subID)
	}
	sub := newSubscription(s, subID, name, params)
	s.subs[subID] = sub
	s.mu.Unlock()

	logger.Debug("subscription_started", "name", name, "sub", subID, "session", s.id, "user", s.userID)
	if err := h(sub, params); err != nil {
		logger.Warn("subscription_failed", "name", name, "sub", subID, "session", s.id, "error", err)
		sub.fail(err)
		return err
	}
	sub.Ready()
	return nil
}

// Unsubscribe stops subID if it is active.
func (s *Session) Unsubscribe(subID string) {
	s.mu.Lock()
	sub := s.subs[subID]
	s.mu.Unlock()
	if sub != nil {
		sub.Stop()
	}
}

// Subscriptions lists active subscription ids.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subs))
	for id := range s.subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Published returns the number of documents visible to the client.
func (s *Session) Published() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Len()
}

// Refs returns the fan-in count of one visible document.
func (s *Session) Refs(coll, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Refs(coll, id)
}

// Flush waits for every change event queued so far to be processed.
func (s *Session) Flush() {
	s.exec.barrier()
}

// Close stops every subscription, running their stop hooks, and releases
// the executor. Concurrent and repeated calls wait for the first to finish.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closing = true
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Stop()
	}

	s.mu.Lock()
	s.closed = true
	if n := s.tracker.Len(); n > 0 {
		logger.Error("session_close_invariant", "session", s.id, "leftover_docs", n)
		s.tracker.drop()
	}
	s.mu.Unlock()

	s.cancel()
	s.exec.close()
	metrics.Sessions.Dec()
	if s.onClose != nil {
		s.onClose(s)
	}
	close(s.done)
	logger.Debug("session_closed", "session", s.id)
}

// Done is closed once the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) removeSub(sub *Subscription) {
	if cur, ok := s.subs[sub.id]; ok && cur == sub {
		delete(s.subs, sub.id)
	}
}

func (s *Session) ready(subID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.sink.Ready(subID)
	}
}

func (s *Session) noSub(subID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.sink.NoSub(subID, err)
	}
}
