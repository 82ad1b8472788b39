package publish

import (
	"context"
	"sync"

	"convodb/pkg/state/logger"
)

// Server owns the live sessions of one process.
type Server struct {
	registry *Registry

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewServer(reg *Registry) *Server {
	return &Server{registry: reg, sessions: make(map[string]*Session)}
}

func (s *Server) Registry() *Registry { return s.registry }

// Open starts a session for a freshly connected client.
func (s *Server) Open(ctx context.Context, userID string, sink Sink) (*Session, error) {
	sess := NewSession(ctx, userID, sink, s.registry)
	sess.onClose = s.forget
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sess.Close()
		return nil, ErrSessionClosed
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	logger.Debug("session_opened", "session", sess.id, "user", userID)
	return sess, nil
}

// Live reports whether sessionID belongs to a session that is still open.
func (s *Server) Live(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// Stats is a point-in-time view of the live sessions.
type Stats struct {
	Sessions      int `json:"sessions"`
	Subscriptions int `json:"subscriptions"`
	Published     int `json:"published_docs"`
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	st := Stats{Sessions: len(sessions)}
	for _, sess := range sessions {
		st.Subscriptions += len(sess.Subscriptions())
		st.Published += sess.Published()
	}
	return st
}

// Close closes every session. New sessions are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
	logger.Info("live_sessions_closed", "count", len(sessions))
}

func (s *Server) forget(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}
