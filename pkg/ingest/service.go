// Package ingest is the write path of the chat domain. Every operation takes
// the acting user explicitly and goes through the access checker.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"convodb/pkg/access"
	"convodb/pkg/models"
	"convodb/pkg/store/collection"
	"convodb/pkg/store/docs"
	"convodb/pkg/timeutil"
	"convodb/pkg/validation"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("not a participant")
	ErrNotFound        = errors.New("not found")
	ErrEmptyBody       = errors.New("message body is empty")
	ErrInvalid         = validation.ErrInvalid
)

type Options struct {
	Checker access.Checker
	Rules   validation.Rules
	Clock   timeutil.Clock
}

type Service struct {
	conversations *collection.Collection
	participants  *collection.Collection
	messages      *collection.Collection
	users         *collection.Collection

	checker access.Checker
	rules   validation.Rules
	clock   timeutil.Clock

	// membership writes check then insert
	memberMu sync.Mutex
}

// New wires the service to the domain collections of reg. A nil checker
// checks membership against the participants collection.
func New(reg *collection.Registry, opts Options) (*Service, error) {
	s := &Service{rules: opts.Rules, clock: opts.Clock, checker: opts.Checker}
	for name, dst := range map[string]**collection.Collection{
		models.Conversations: &s.conversations,
		models.Participants:  &s.participants,
		models.Messages:      &s.messages,
		models.Users:         &s.users,
	} {
		c, err := reg.Open(name)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		*dst = c
	}
	if s.clock == nil {
		s.clock = timeutil.Now
	}
	if s.checker == nil {
		s.checker = access.NewParticipants(s.participants)
	}
	return s, nil
}

func (s *Service) now() int64 { return timeutil.Millis(s.clock()) }

// requireParticipant fails unless actor is an active participant.
func (s *Service) requireParticipant(ctx context.Context, actor, conversationID string) error {
	if actor == "" {
		return ErrUnauthenticated
	}
	ok, err := s.checker.IsParticipant(ctx, actor, conversationID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *Service) message(id string) (models.Message, error) {
	d, err := s.messages.Get(id)
	if errors.Is(err, collection.ErrNotFound) {
		return models.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Message{}, err
	}
	var m models.Message
	if err := docs.Decode(d, &m); err != nil {
		return models.Message{}, fmt.Errorf("decode message %s: %w", id, err)
	}
	return m, nil
}

func insert(c *collection.Collection, v any) (string, error) {
	d, err := docs.FromValue(v)
	if err != nil {
		return "", err
	}
	if d.ID() == "" {
		delete(d, docs.IDField)
	}
	return c.Insert(d)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
