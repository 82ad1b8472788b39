package models

import (
	"testing"
	"time"
)

func TestMessageLikes(t *testing.T) {
	m := Message{Likes: []string{"a", "b"}}
	if m.NumLikes() != 2 || !m.HasLikes() {
		t.Fatalf("expected 2 likes, got %d", m.NumLikes())
	}
	if !m.LikedBy("a") || m.LikedBy("c") {
		t.Fatalf("LikedBy mismatch")
	}
	if (Message{}).HasLikes() {
		t.Fatalf("nil likes should report none")
	}
}

func TestMessageDeletedFor(t *testing.T) {
	m := Message{Deleted: []string{"u1"}}
	if !m.DeletedFor("u1") || m.DeletedFor("u2") {
		t.Fatalf("DeletedFor mismatch")
	}
}

func TestMessageTimestamp(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		sent time.Time
		want string
	}{
		{"same day", time.Date(2024, 3, 10, 9, 5, 0, 0, time.UTC), "09:05"},
		{"earlier day", time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC), "Mar 9 23:59"},
		{"earlier year", time.Date(2023, 12, 31, 8, 0, 0, 0, time.UTC), "Dec 31 2023 08:00"},
	}
	for _, tc := range cases {
		m := Message{Date: tc.sent.UnixMilli()}
		if got := m.Timestamp(now, time.UTC); got != tc.want {
			t.Errorf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}

	// the day boundary follows the caller's location
	tokyo := time.FixedZone("JST", 9*3600)
	m := Message{Date: time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC).UnixMilli()}
	morning := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	if got := m.Timestamp(morning, tokyo); got != "05:00" {
		t.Errorf("tokyo: got %q", got)
	}
}

func TestParticipantIsObserving(t *testing.T) {
	if (Participant{}).IsObserving() {
		t.Fatalf("empty observing set")
	}
	if !(Participant{Observing: []string{"s1"}}).IsObserving() {
		t.Fatalf("expected observing")
	}
}

func TestConversationTime(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c := Conversation{Date: ts.UnixMilli()}
	if !c.Time().Equal(ts) {
		t.Fatalf("got %v", c.Time())
	}
}
