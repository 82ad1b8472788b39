// Package models holds the stored records of the chat domain. Records are
// plain data; behaviour lives in functions over them.
package models

import (
	"time"

	"convodb/pkg/timeutil"
)

// Collection names.
const (
	Conversations = "conversations"
	Participants  = "participants"
	Messages      = "messages"
	Users         = "users"
)

// Field names used in selectors and modifiers.
const (
	FieldConversationID = "conversationId"
	FieldUserID         = "userId"
	FieldDate           = "date"
	FieldRead           = "read"
	FieldTyping         = "typing"
	FieldObserving      = "observing"
	FieldDeleted        = "deleted"
	FieldLikes          = "likes"
)

type Conversation struct {
	ID        string `json:"_id"`
	Name      string `json:"name,omitempty"`
	Date      int64  `json:"date"`
	CreatedBy string `json:"createdBy,omitempty"`
}

// Time is the last activity of the conversation.
func (c Conversation) Time() time.Time { return timeutil.FromMillis(c.Date) }

// Participant links a user to a conversation with per-user read state.
type Participant struct {
	ID             string   `json:"_id"`
	ConversationID string   `json:"conversationId"`
	UserID         string   `json:"userId"`
	Read           bool     `json:"read"`
	Typing         bool     `json:"typing"`
	Observing      []string `json:"observing"`
	Deleted        bool     `json:"deleted,omitempty"`
	Date           int64    `json:"date"`
}

// IsObserving reports whether any live session has the conversation open.
func (p Participant) IsObserving() bool { return len(p.Observing) > 0 }

type User struct {
	ID       string         `json:"_id"`
	Username string         `json:"username"`
	Profile  map[string]any `json:"profile,omitempty"`
}
