package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"convodb/pkg/store/docs"
)

func TestMatches(t *testing.T) {
	p := docs.Doc{"_id": "p1", "userId": "u1", "conversationId": "c1", "observing": []any{"s1"}}
	left := docs.Doc{"_id": "p2", "userId": "u2", "conversationId": "c1", "deleted": true, "observing": []any{}}
	msg := docs.Doc{"_id": "m1", "deleted": []any{"u1", "u3"}}

	tests := []struct {
		name string
		sel  Selector
		doc  docs.Doc
		want bool
	}{
		{"empty matches all", Where(), p, true},
		{"eq", Where(Eq("userId", "u1")), p, true},
		{"eq miss", Where(Eq("userId", "u2")), p, false},
		{"conjunction", Where(Eq("userId", "u1"), Eq("conversationId", "c2")), p, false},
		{"ne", Where(Ne("userId", "u1")), left, true},
		{"ne missing field", Where(Ne("missing", "x")), p, true},
		{"not exists", Where(NotExists("deleted")), p, true},
		{"not exists miss", Where(NotExists("deleted")), left, false},
		{"exists", Where(Exists("deleted")), left, true},
		{"not empty", Where(NotEmpty("observing")), p, true},
		{"not empty on empty array", Where(NotEmpty("observing")), left, false},
		{"in", Where(In("userId", []string{"u9", "u1"})), p, true},
		{"nin", Where(Nin("userId", []string{"u1"})), p, false},
		{"nin other", Where(Nin("userId", []string{"u1"})), left, true},
		{"array ne excludes member", Where(Ne("deleted", "u1")), msg, false},
		{"array ne keeps non member", Where(Ne("deleted", "u2")), msg, true},
		{"array eq member", Where(Eq("deleted", "u3")), msg, true},
		{"id", Where(ID("m1")), msg, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.Matches(tt.doc), tt.sel.String())
		})
	}
}

func TestIDs(t *testing.T) {
	ids, ok := Where(Eq("a", 1), ID("x")).IDs()
	assert.True(t, ok)
	assert.Equal(t, []string{"x"}, ids)

	ids, ok = Where(In(docs.IDField, []string{"x", "y"})).IDs()
	assert.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, ids)

	_, ok = Where(Eq("a", 1)).IDs()
	assert.False(t, ok)
}

func TestOptionsApply(t *testing.T) {
	mk := func(id string, date float64) docs.Doc { return docs.Doc{"_id": id, "date": date} }
	all := func() []docs.Doc { return []docs.Doc{mk("a", 3), mk("b", 1), mk("c", 2), mk("d", 2)} }

	ids := func(ds []docs.Doc) []string {
		out := []string{}
		for _, d := range ds {
			out = append(out, d.ID())
		}
		return out
	}

	assert.Equal(t, []string{"b", "c", "d", "a"}, ids(Options{Sort: []SortField{Asc("date")}}.Apply(all())))
	assert.Equal(t, []string{"a"}, ids(Options{Sort: []SortField{Desc("date")}, Limit: 1}.Apply(all())))
	assert.Equal(t, []string{"c", "d"}, ids(Options{Sort: []SortField{Desc("date")}, Skip: 1, Limit: 2}.Apply(all())))
	assert.Empty(t, Options{Skip: 10}.Apply(all()))
	assert.True(t, Options{Limit: 1}.Windowed())
	assert.False(t, Options{Sort: []SortField{Asc("x")}}.Windowed())
}
