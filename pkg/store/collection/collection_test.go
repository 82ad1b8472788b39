package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convodb/pkg/store/db/storedb"
	"convodb/pkg/store/docs"
	sel "convodb/pkg/store/selector"
)

func openTest(t *testing.T, name string) (*Collection, *storedb.Store) {
	t.Helper()
	store, err := storedb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	c, err := Open(store, name)
	require.NoError(t, err)
	return c, store
}

type recorder struct{ events []Event }

func (r *recorder) fn(e Event) { r.events = append(r.events, e) }

func (r *recorder) kinds() []string {
	out := []string{}
	for _, e := range r.events {
		out = append(out, e.Kind.String()+":"+e.ID)
	}
	return out
}

func TestInsertAssignsIDAndPersists(t *testing.T) {
	c, store := openTest(t, "messages")

	id, err := c.Insert(docs.Doc{"body": "hi", "likes": []string{}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = c.Insert(docs.Doc{"_id": id})
	assert.ErrorIs(t, err, ErrDuplicateID)

	reopened, err := Open(store, "messages")
	require.NoError(t, err)
	d, err := reopened.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "hi", d["body"])
	assert.Equal(t, []any{}, d["likes"])
}

func TestUpdateOperators(t *testing.T) {
	c, _ := openTest(t, "participants")
	_, err := c.Insert(docs.Doc{"_id": "p1", "read": false, "observing": []any{}})
	require.NoError(t, err)

	n, err := c.Update(sel.Where(sel.ID("p1")), Modifier{
		Set:      map[string]any{"read": true},
		AddToSet: map[string]any{"observing": "s1"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// second addToSet of the same value changes nothing
	n, err = c.Update(sel.Where(sel.ID("p1")), Modifier{AddToSet: map[string]any{"observing": "s1"}}, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = c.Update(sel.Where(sel.ID("p1")), Modifier{Push: map[string]any{"observing": "s2"}}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.Update(sel.Where(sel.ID("p1")), Modifier{Pull: map[string]any{"observing": "s1"}, Unset: []string{"read"}}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err := c.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, []any{"s2"}, d["observing"])
	_, hasRead := d["read"]
	assert.False(t, hasRead)

	_, err = c.Update(sel.Where(sel.ID("p1")), Modifier{Set: map[string]any{"_id": "x"}}, false)
	assert.ErrorIs(t, err, ErrBadModifier)
	_, err = c.Update(sel.Where(sel.ID("p1")), Modifier{}, false)
	assert.ErrorIs(t, err, ErrBadModifier)
}

func TestUpdateMulti(t *testing.T) {
	c, _ := openTest(t, "participants")
	for _, id := range []string{"a", "b", "c"} {
		_, err := c.Insert(docs.Doc{"_id": id, "conversationId": "c1", "read": true})
		require.NoError(t, err)
	}

	n, err := c.Update(sel.Where(sel.Eq("conversationId", "c1")), Modifier{Set: map[string]any{"read": false}}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "single update touches the first match only")

	n, err = c.Update(sel.Where(sel.Eq("conversationId", "c1")), Modifier{Set: map[string]any{"read": false}}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "already-unread document is not counted")
	assert.Equal(t, 3, c.Count(sel.Where(sel.Eq("read", false))))
}

func TestObserveUnwindowed(t *testing.T) {
	c, _ := openTest(t, "participants")
	_, err := c.Insert(docs.Doc{"_id": "p1", "userId": "u1"})
	require.NoError(t, err)

	rec := &recorder{}
	h, initial, err := c.Observe(sel.Where(sel.Eq("userId", "u1"), sel.NotExists("deleted")), sel.Options{}, rec.fn)
	require.NoError(t, err)
	require.Len(t, initial, 1)

	_, err = c.Insert(docs.Doc{"_id": "p2", "userId": "u1"})
	require.NoError(t, err)
	_, err = c.Insert(docs.Doc{"_id": "p3", "userId": "u2"})
	require.NoError(t, err)
	_, err = c.Update(sel.Where(sel.ID("p1")), Modifier{Set: map[string]any{"read": true}}, false)
	require.NoError(t, err)
	_, err = c.Update(sel.Where(sel.ID("p2")), Modifier{Set: map[string]any{"deleted": true}}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"added:p2", "changed:p1", "removed:p2"}, rec.kinds())
	assert.Equal(t, docs.Doc{"read": true}, rec.events[1].Fields)

	h.Stop()
	h.Stop()
	assert.Equal(t, 0, c.Observers())
	_, err = c.Remove(sel.Where(sel.ID("p1")))
	require.NoError(t, err)
	assert.Len(t, rec.events, 3, "stopped observer receives nothing")
}

func TestObserveWindowed(t *testing.T) {
	c, _ := openTest(t, "messages")
	_, err := c.Insert(docs.Doc{"_id": "m1", "conversationId": "c1", "date": 1})
	require.NoError(t, err)

	rec := &recorder{}
	latest := sel.Options{Sort: []sel.SortField{sel.Desc("date")}, Limit: 1}
	_, initial, err := c.Observe(sel.Where(sel.Eq("conversationId", "c1")), latest, rec.fn)
	require.NoError(t, err)
	require.Len(t, initial, 1)
	assert.Equal(t, "m1", initial[0].ID())

	_, err = c.Insert(docs.Doc{"_id": "m2", "conversationId": "c1", "date": 2})
	require.NoError(t, err)
	// other conversation does not touch the window
	_, err = c.Insert(docs.Doc{"_id": "m3", "conversationId": "c2", "date": 3})
	require.NoError(t, err)
	_, err = c.Update(sel.Where(sel.ID("m2")), Modifier{AddToSet: map[string]any{"likes": "u1"}}, false)
	require.NoError(t, err)
	_, err = c.Remove(sel.Where(sel.ID("m2")))
	require.NoError(t, err)

	assert.Equal(t, []string{"removed:m1", "added:m2", "changed:m2", "removed:m2", "added:m1"}, rec.kinds())
}

func TestRegistryOpensOnce(t *testing.T) {
	store, err := storedb.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	r := NewRegistry(store)
	a, err := r.Open("users")
	require.NoError(t, err)
	b := r.MustOpen("users")
	assert.Same(t, a, b)
	assert.Equal(t, []string{"users"}, r.Names())

	_, err = r.Open("bad:name")
	assert.Error(t, err)
}
