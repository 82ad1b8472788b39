package ingest

import (
	"context"
	"errors"
	"fmt"

	"convodb/pkg/access"
	"convodb/pkg/models"
	"convodb/pkg/state/logger"
	"convodb/pkg/store/collection"
	"convodb/pkg/store/docs"
	"convodb/pkg/store/selector"
)

// CreateConversation starts a conversation between actor and members.
func (s *Service) CreateConversation(ctx context.Context, actor, name string, members []string) (models.Conversation, error) {
	if actor == "" {
		return models.Conversation{}, ErrUnauthenticated
	}
	if err := s.rules.Conversation(name, members); err != nil {
		return models.Conversation{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Conversation{}, err
	}
	now := s.now()
	c := models.Conversation{Name: name, Date: now, CreatedBy: actor}
	id, err := insert(s.conversations, c)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	c.ID = id

	s.memberMu.Lock()
	defer s.memberMu.Unlock()
	for _, user := range dedupe(append([]string{actor}, members...)) {
		if err := s.insertParticipant(id, user, user == actor, now); err != nil {
			return c, err
		}
	}
	logger.Info("conversation_created", "conversation", id, "user", actor, "members", len(members))
	return c, nil
}

// AddParticipant adds userID to a conversation actor belongs to. It reports
// false when userID is already an active participant.
func (s *Service) AddParticipant(ctx context.Context, actor, conversationID, userID string) (bool, error) {
	if err := s.requireParticipant(ctx, actor, conversationID); err != nil {
		return false, err
	}
	if userID == "" {
		return false, fmt.Errorf("%w: userId is required", ErrInvalid)
	}
	if _, err := s.conversations.Get(conversationID); err != nil {
		if errors.Is(err, collection.ErrNotFound) {
			return false, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
		}
		return false, err
	}

	s.memberMu.Lock()
	defer s.memberMu.Unlock()
	if s.participants.Count(access.Membership(userID, conversationID)) > 0 {
		return false, nil
	}
	if err := s.insertParticipant(conversationID, userID, false, s.now()); err != nil {
		return false, err
	}
	return true, nil
}

// LeaveConversation soft-deletes actor's participant record. The
// conversation drops out of the actor's live views.
func (s *Service) LeaveConversation(ctx context.Context, actor, conversationID string) error {
	if err := s.requireParticipant(ctx, actor, conversationID); err != nil {
		return err
	}
	s.memberMu.Lock()
	defer s.memberMu.Unlock()
	n, err := s.participants.Update(access.Membership(actor, conversationID),
		collection.Modifier{Set: map[string]any{models.FieldDeleted: true}}, true)
	if err != nil {
		return fmt.Errorf("leave conversation: %w", err)
	}
	if n == 0 {
		return ErrForbidden
	}
	logger.Info("conversation_left", "conversation", conversationID, "user", actor)
	return nil
}

func (s *Service) insertParticipant(conversationID, userID string, read bool, now int64) error {
	p := models.Participant{
		ConversationID: conversationID,
		UserID:         userID,
		Read:           read,
		Observing:      []string{},
		Date:           now,
	}
	if _, err := insert(s.participants, p); err != nil {
		return fmt.Errorf("insert participant %s: %w", userID, err)
	}
	return nil
}

// RegisterUser creates or updates a user record and reports whether it was
// created.
func (s *Service) RegisterUser(ctx context.Context, u models.User) (bool, error) {
	if err := s.rules.User(u); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := s.users.Get(u.ID); err == nil {
		set := map[string]any{"username": u.Username}
		mod := collection.Modifier{Set: set}
		if u.Profile != nil {
			set["profile"] = u.Profile
		}
		if _, err := s.users.Update(selector.Where(selector.ID(u.ID)), mod, false); err != nil {
			return false, fmt.Errorf("update user: %w", err)
		}
		return false, nil
	}
	d, err := docs.FromValue(u)
	if err != nil {
		return false, err
	}
	if _, err := s.users.Insert(d); err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	return true, nil
}
