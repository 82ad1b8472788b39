package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convodb/pkg/store/collection"
	"convodb/pkg/store/db/storedb"
	"convodb/pkg/store/docs"
)

func TestIsParticipant(t *testing.T) {
	store, err := storedb.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	coll, err := collection.Open(store, "participants")
	require.NoError(t, err)

	_, err = coll.Insert(docs.Doc{"_id": "p1", "conversationId": "c1", "userId": "u1"})
	require.NoError(t, err)
	_, err = coll.Insert(docs.Doc{"_id": "p2", "conversationId": "c1", "userId": "u2", "deleted": true})
	require.NoError(t, err)

	chk := NewParticipants(coll)
	ctx := context.Background()
	cases := []struct {
		user, conv string
		want       bool
	}{
		{"u1", "c1", true},
		{"u2", "c1", false},
		{"u3", "c1", false},
		{"u1", "c2", false},
		{"", "c1", false},
	}
	for _, tc := range cases {
		ok, err := chk.IsParticipant(ctx, tc.user, tc.conv)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "%s in %s", tc.user, tc.conv)
	}

	p, found, err := chk.Find("u1", "c1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "p1", p.ID)

	_, found, err = chk.Find("u2", "c1")
	require.NoError(t, err)
	assert.False(t, found)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = chk.IsParticipant(cancelled, "u1", "c1")
	assert.ErrorIs(t, err, context.Canceled)
}
