package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convodb/pkg/access"
	"convodb/pkg/models"
	"convodb/pkg/store/collection"
	"convodb/pkg/store/db/storedb"
	"convodb/pkg/store/docs"
	"convodb/pkg/store/selector"
	"convodb/pkg/timeutil"
	"convodb/pkg/validation"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *collection.Registry) {
	t.Helper()
	store, err := storedb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	reg := collection.NewRegistry(store)
	svc, err := New(reg, Options{Rules: validation.Defaults(), Clock: timeutil.Fixed(t0)})
	require.NoError(t, err)
	return svc, reg
}

func participant(t *testing.T, reg *collection.Registry, user, conv string) models.Participant {
	t.Helper()
	d, err := reg.MustOpen(models.Participants).FindOne(access.Membership(user, conv))
	require.NoError(t, err)
	var p models.Participant
	require.NoError(t, docs.Decode(d, &p))
	return p
}

func TestCreateConversation(t *testing.T) {
	svc, reg := newService(t)
	ctx := context.Background()

	c, err := svc.CreateConversation(ctx, "ann", "team", []string{"bob", "ann", "cat", "bob"})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)
	assert.Equal(t, t0.UnixMilli(), c.Date)

	assert.Equal(t, 3, reg.MustOpen(models.Participants).Count(selector.Where(selector.Eq("conversationId", c.ID))))
	assert.True(t, participant(t, reg, "ann", c.ID).Read)
	assert.False(t, participant(t, reg, "bob", c.ID).Read)

	_, err = svc.CreateConversation(ctx, "", "x", nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSendMessageMarksNonObserversUnread(t *testing.T) {
	svc, reg := newService(t)
	ctx := context.Background()
	c, err := svc.CreateConversation(ctx, "ann", "", []string{"bob", "cat"})
	require.NoError(t, err)

	// bob has the conversation open, cat does not
	parts := reg.MustOpen(models.Participants)
	_, err = parts.Update(access.Membership("bob", c.ID), collection.Modifier{
		AddToSet: map[string]any{"observing": "session-b"},
		Set:      map[string]any{"read": true},
	}, false)
	require.NoError(t, err)
	_, err = parts.Update(access.Membership("cat", c.ID), collection.Modifier{Set: map[string]any{"read": true}}, false)
	require.NoError(t, err)

	later := t0.Add(time.Minute)
	svc.clock = timeutil.Fixed(later)
	m, err := svc.SendMessage(ctx, "ann", c.ID, "hello", "")
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)

	assert.True(t, participant(t, reg, "bob", c.ID).Read)
	cat := participant(t, reg, "cat", c.ID)
	assert.False(t, cat.Read)
	assert.Equal(t, later.UnixMilli(), cat.Date)
	// the sender is not observing either
	assert.False(t, participant(t, reg, "ann", c.ID).Read)

	conv, err := reg.MustOpen(models.Conversations).Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(later.UnixMilli()), conv["date"])
}

func TestSendMessageRejections(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	c, err := svc.CreateConversation(ctx, "ann", "", []string{"bob"})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "", c.ID, "hi", "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.SendMessage(ctx, "ann", c.ID, "   ", "")
	assert.ErrorIs(t, err, ErrEmptyBody)
	_, err = svc.SendMessage(ctx, "eve", c.ID, "hi", "")
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.LeaveConversation(ctx, "bob", c.ID))
	_, err = svc.SendMessage(ctx, "bob", c.ID, "still here?", "")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.LeaveConversation(ctx, "bob", c.ID), ErrForbidden)
}

func TestLikesAreIdempotent(t *testing.T) {
	svc, reg := newService(t)
	ctx := context.Background()
	c, err := svc.CreateConversation(ctx, "ann", "", []string{"bob"})
	require.NoError(t, err)
	m, err := svc.SendMessage(ctx, "ann", c.ID, "hi", "")
	require.NoError(t, err)

	changed, err := svc.Like(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = svc.Like(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = svc.Unlike(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = svc.Unlike(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	liked, err := svc.ToggleLike(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	liked, err = svc.ToggleLike(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.False(t, liked)

	stored, err := svc.message(m.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Likes)

	_, err = svc.Like(ctx, "eve", m.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Like(ctx, "bob", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_ = reg
}

func TestHideMessage(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	c, err := svc.CreateConversation(ctx, "ann", "", []string{"bob"})
	require.NoError(t, err)
	m, err := svc.SendMessage(ctx, "ann", c.ID, "oops", "")
	require.NoError(t, err)

	hidden, err := svc.HideMessage(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.True(t, hidden)
	hidden, err = svc.HideMessage(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.False(t, hidden)

	stored, err := svc.message(m.ID)
	require.NoError(t, err)
	assert.True(t, stored.DeletedFor("bob"))
	assert.False(t, stored.DeletedFor("ann"))
}

func TestAddParticipant(t *testing.T) {
	svc, reg := newService(t)
	ctx := context.Background()
	c, err := svc.CreateConversation(ctx, "ann", "", nil)
	require.NoError(t, err)

	added, err := svc.AddParticipant(ctx, "ann", c.ID, "dan")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = svc.AddParticipant(ctx, "ann", c.ID, "dan")
	require.NoError(t, err)
	assert.False(t, added)

	_, err = svc.AddParticipant(ctx, "eve", c.ID, "fay")
	assert.ErrorIs(t, err, ErrForbidden)

	// rejoining after leaving creates a fresh record
	require.NoError(t, svc.LeaveConversation(ctx, "dan", c.ID))
	added, err = svc.AddParticipant(ctx, "ann", c.ID, "dan")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 1, reg.MustOpen(models.Participants).Count(access.Membership("dan", c.ID)))
}

func TestRegisterUser(t *testing.T) {
	svc, reg := newService(t)
	ctx := context.Background()

	created, err := svc.RegisterUser(ctx, models.User{ID: "u1", Username: "ann"})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = svc.RegisterUser(ctx, models.User{ID: "u1", Username: "annie"})
	require.NoError(t, err)
	assert.False(t, created)

	d, err := reg.MustOpen(models.Users).Get("u1")
	require.NoError(t, err)
	assert.Equal(t, "annie", d["username"])

	_, err = svc.RegisterUser(ctx, models.User{ID: "u2"})
	assert.ErrorIs(t, err, ErrInvalid)
}
