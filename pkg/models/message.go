package models

import (
	"slices"
	"time"

	"convodb/pkg/timeutil"
)

type Message struct {
	ID             string   `json:"_id"`
	ConversationID string   `json:"conversationId"`
	UserID         string   `json:"userId"`
	Body           string   `json:"body"`
	Date           int64    `json:"date"`
	Deleted        []string `json:"deleted"`
	Likes          []string `json:"likes"`
	MessageType    string   `json:"messageType,omitempty"`
}

func (m Message) NumLikes() int { return len(m.Likes) }

func (m Message) HasLikes() bool { return m.NumLikes() > 0 }

func (m Message) LikedBy(userID string) bool { return slices.Contains(m.Likes, userID) }

// DeletedFor reports whether userID hid the message from their own view.
func (m Message) DeletedFor(userID string) bool { return slices.Contains(m.Deleted, userID) }

func (m Message) Time() time.Time { return timeutil.FromMillis(m.Date) }

// Timestamp renders the send time in loc: the clock time for messages sent
// on the same day as now, prefixed with the date otherwise.
func (m Message) Timestamp(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	t := m.Time().In(loc)
	n := now.In(loc)
	if t.Year() == n.Year() && t.YearDay() == n.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() != n.Year() {
		return t.Format("Jan 2 2006 15:04")
	}
	return t.Format("Jan 2 15:04")
}
