// Package access answers whether a user may see or write to a conversation.
package access

import (
	"context"
	"errors"

	"convodb/pkg/models"
	"convodb/pkg/store/collection"
	"convodb/pkg/store/docs"
	"convodb/pkg/store/selector"
)

// Checker reports conversation membership. Anonymous users are never
// participants.
type Checker interface {
	IsParticipant(ctx context.Context, userID, conversationID string) (bool, error)
}

// Participants checks membership against the participants collection. A
// participant who left (deleted) no longer has access.
type Participants struct {
	coll *collection.Collection
}

func NewParticipants(coll *collection.Collection) *Participants {
	return &Participants{coll: coll}
}

func (p *Participants) IsParticipant(ctx context.Context, userID, conversationID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if userID == "" || conversationID == "" {
		return false, nil
	}
	return p.coll.Count(Membership(userID, conversationID)) > 0, nil
}

// Find returns the active participant record of userID in conversationID.
func (p *Participants) Find(userID, conversationID string) (models.Participant, bool, error) {
	d, err := p.coll.FindOne(Membership(userID, conversationID))
	if err != nil {
		if errors.Is(err, collection.ErrNotFound) {
			return models.Participant{}, false, nil
		}
		return models.Participant{}, false, err
	}
	var out models.Participant
	if err := docs.Decode(d, &out); err != nil {
		return models.Participant{}, false, err
	}
	return out, true, nil
}

// Membership selects the active participant record of a user.
func Membership(userID, conversationID string) selector.Selector {
	return selector.Where(
		selector.Eq(models.FieldConversationID, conversationID),
		selector.Eq(models.FieldUserID, userID),
		selector.Ne(models.FieldDeleted, true),
	)
}
