// Package publications registers the named live views of the chat domain.
package publications

import (
	"fmt"

	"convodb/pkg/access"
	"convodb/pkg/models"
	"convodb/pkg/presence"
	"convodb/pkg/publish"
	"convodb/pkg/state/logger"
	"convodb/pkg/store/collection"
	sel "convodb/pkg/store/selector"
)

const (
	Conversations       = "conversations"
	MessagesFor         = "messagesFor"
	ViewingConversation = "viewingConversation"
	Typing              = "typing"
)

type Deps struct {
	Collections *collection.Registry
	Checker     access.Checker
	Presence    *presence.Tracker
}

type handlers struct {
	conversations *collection.Collection
	participants  *collection.Collection
	messages      *collection.Collection
	users         *collection.Collection
	checker       access.Checker
	presence      *presence.Tracker
}

// Register adds every publication to reg.
func Register(reg *publish.Registry, d Deps) error {
	h := &handlers{checker: d.Checker, presence: d.Presence}
	for name, dst := range map[string]**collection.Collection{
		models.Conversations: &h.conversations,
		models.Participants:  &h.participants,
		models.Messages:      &h.messages,
		models.Users:         &h.users,
	} {
		c, err := d.Collections.Open(name)
		if err != nil {
			return fmt.Errorf("open %s: %w", name, err)
		}
		*dst = c
	}
	if h.checker == nil {
		h.checker = access.NewParticipants(h.participants)
	}
	if h.presence == nil {
		h.presence = presence.NewTracker(h.participants)
	}

	for name, fn := range map[string]publish.Handler{
		Conversations:       h.conversationList,
		MessagesFor:         h.messagesFor,
		ViewingConversation: h.viewing,
		Typing:              h.typing,
	} {
		if err := reg.Register(name, fn); err != nil {
			return err
		}
	}
	logger.Debug("publications_registered", "names", reg.Names())
	return nil
}

// conversationSpec is the conversation list of userID: the conversations
// they take part in, newest first, each with its other participants and
// their users, and its latest visible message.
func (h *handlers) conversationSpec(userID string, page publish.Pagination) *publish.Spec {
	others := publish.From(h.participants).
		Where(sel.Ne(models.FieldUserID, userID)).
		ForeignKey(models.FieldConversationID).
		With(publish.From(h.users).ForeignKey(models.FieldUserID).Inverted())

	latest := publish.From(h.messages).
		Where(sel.Ne(models.FieldDeleted, userID)).
		ForeignKey(models.FieldConversationID).
		Sort(sel.Desc(models.FieldDate)).Limit(1).
		StraightPublish()

	return publish.From(h.participants).
		Where(sel.Eq(models.FieldUserID, userID), sel.NotExists(models.FieldDeleted)).
		With(publish.From(h.conversations).
			ForeignKey(models.FieldConversationID).Inverted().
			Sort(sel.Desc(models.FieldDate)).Window(page).
			With(others, latest))
}

func (h *handlers) conversationList(sub *publish.Subscription, p publish.Params) error {
	if sub.UserID() == "" {
		return nil
	}
	_, err := sub.Publish(h.conversationSpec(sub.UserID(), p.Pagination(0)))
	return err
}

// messagesSpec is the message history of one conversation as userID sees
// it, oldest first.
func (h *handlers) messagesSpec(userID, conversationID string, page publish.Pagination) *publish.Spec {
	return publish.From(h.messages).
		Where(sel.Eq(models.FieldConversationID, conversationID), sel.Ne(models.FieldDeleted, userID)).
		Sort(sel.Asc(models.FieldDate)).
		Window(page)
}

func (h *handlers) messagesFor(sub *publish.Subscription, p publish.Params) error {
	user := sub.UserID()
	if user == "" {
		return nil
	}
	conv, err := p.String(0)
	if err != nil {
		return err
	}
	ok, err := h.checker.IsParticipant(sub.Context(), user, conv)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	_, err = sub.Publish(h.messagesSpec(user, conv, p.Pagination(1)))
	return err
}

func (h *handlers) viewing(sub *publish.Subscription, p publish.Params) error {
	conv, err := p.String(0)
	if err != nil {
		return err
	}
	return h.presence.View(sub, conv)
}

func (h *handlers) typing(sub *publish.Subscription, p publish.Params) error {
	conv, err := p.String(0)
	if err != nil {
		return err
	}
	return h.presence.Typing(sub, conv)
}
