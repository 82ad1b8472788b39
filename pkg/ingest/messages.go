package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"convodb/pkg/metrics"
	"convodb/pkg/models"
	"convodb/pkg/state/logger"
	"convodb/pkg/store/collection"
	"convodb/pkg/store/selector"
)

// SendMessage stores a message from actor and runs the unread cascade.
func (s *Service) SendMessage(ctx context.Context, actor, conversationID, body, messageType string) (models.Message, error) {
	if actor == "" {
		return models.Message{}, ErrUnauthenticated
	}
	if strings.TrimSpace(body) == "" {
		return models.Message{}, ErrEmptyBody
	}
	if err := s.requireParticipant(ctx, actor, conversationID); err != nil {
		return models.Message{}, err
	}
	m := models.Message{
		ConversationID: conversationID,
		UserID:         actor,
		Body:           body,
		Date:           s.now(),
		Deleted:        []string{},
		Likes:          []string{},
		MessageType:    messageType,
	}
	if err := s.rules.Message(m); err != nil {
		return models.Message{}, err
	}
	id, err := insert(s.messages, m)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	m.ID = id
	if err := s.afterInsert(m); err != nil {
		// the message is stored; a failed cascade only leaves read state stale
		logger.Error("message_cascade_failed", "message", id, "conversation", conversationID, "error", err)
	}
	logger.Debug("message_sent", "message", id, "conversation", conversationID, "user", actor)
	return m, nil
}

// afterInsert marks every participant who is not looking at the
// conversation as unread and bumps the conversation to the top. The observer
// set is a snapshot; a viewer who arrives between the read and the update is
// still marked unread.
func (s *Service) afterInsert(m models.Message) error {
	start := time.Now()
	defer func() { metrics.CascadeDuration.Observe(time.Since(start).Seconds()) }()

	observed := s.participants.Find(selector.Where(
		selector.Eq(models.FieldConversationID, m.ConversationID),
		selector.NotEmpty(models.FieldObserving),
	), selector.Options{})
	observers := make([]string, 0, len(observed))
	for _, p := range observed {
		if u, ok := p[models.FieldUserID].(string); ok {
			observers = append(observers, u)
		}
	}

	now := s.now()
	n, err := s.participants.Update(selector.Where(
		selector.Eq(models.FieldConversationID, m.ConversationID),
		selector.Nin(models.FieldUserID, observers),
	), collection.Modifier{Set: map[string]any{models.FieldRead: false, models.FieldDate: now}}, true)
	if err != nil {
		return fmt.Errorf("mark unread: %w", err)
	}
	metrics.UnreadMarked.Add(float64(n))

	if _, err := s.conversations.Update(selector.Where(selector.ID(m.ConversationID)),
		collection.Modifier{Set: map[string]any{models.FieldDate: now}}, false); err != nil {
		return fmt.Errorf("bump conversation: %w", err)
	}
	return nil
}

// Like adds actor to the message's likes and reports whether that changed
// anything.
func (s *Service) Like(ctx context.Context, actor, messageID string) (bool, error) {
	if err := s.authorizeMessage(ctx, actor, messageID); err != nil {
		return false, err
	}
	return s.modifyMessage(messageID, collection.Modifier{AddToSet: map[string]any{models.FieldLikes: actor}})
}

// Unlike removes actor from the message's likes and reports whether that
// changed anything.
func (s *Service) Unlike(ctx context.Context, actor, messageID string) (bool, error) {
	if err := s.authorizeMessage(ctx, actor, messageID); err != nil {
		return false, err
	}
	return s.modifyMessage(messageID, collection.Modifier{Pull: map[string]any{models.FieldLikes: actor}})
}

// ToggleLike flips actor's like and returns whether the message is now
// liked by them.
func (s *Service) ToggleLike(ctx context.Context, actor, messageID string) (bool, error) {
	if err := s.authorizeMessage(ctx, actor, messageID); err != nil {
		return false, err
	}
	added, err := s.modifyMessage(messageID, collection.Modifier{AddToSet: map[string]any{models.FieldLikes: actor}})
	if err != nil || added {
		return added, err
	}
	if _, err := s.modifyMessage(messageID, collection.Modifier{Pull: map[string]any{models.FieldLikes: actor}}); err != nil {
		return false, err
	}
	return false, nil
}

// HideMessage deletes a message for actor only.
func (s *Service) HideMessage(ctx context.Context, actor, messageID string) (bool, error) {
	if err := s.authorizeMessage(ctx, actor, messageID); err != nil {
		return false, err
	}
	return s.modifyMessage(messageID, collection.Modifier{AddToSet: map[string]any{models.FieldDeleted: actor}})
}

func (s *Service) authorizeMessage(ctx context.Context, actor, messageID string) error {
	if actor == "" {
		return ErrUnauthenticated
	}
	m, err := s.message(messageID)
	if err != nil {
		return err
	}
	return s.requireParticipant(ctx, actor, m.ConversationID)
}

func (s *Service) modifyMessage(id string, mod collection.Modifier) (bool, error) {
	n, err := s.messages.Update(selector.Where(selector.ID(id)), mod, false)
	if err != nil {
		return false, fmt.Errorf("update message %s: %w", id, err)
	}
	return n > 0, nil
}
