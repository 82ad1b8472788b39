package docs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromValueNormalizesNumbers(t *testing.T) {
	type rec struct {
		ID   string   `json:"_id"`
		Date int64    `json:"date"`
		Tags []string `json:"tags"`
	}
	d, err := FromValue(rec{ID: "a", Date: 1700000000123, Tags: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "a", d.ID())
	assert.Equal(t, float64(1700000000123), d["date"])
	assert.Equal(t, []any{"x"}, d["tags"])

	var back rec
	require.NoError(t, Decode(d, &back))
	assert.Equal(t, int64(1700000000123), back.Date)
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b any
		want int
	}{
		{1, 2, -1},
		{int64(5), float64(5), 0},
		{"b", "a", 1},
		{nil, 0, -1},
		{"x", 1, 1},
		{false, true, -1},
		{true, "z", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Compare(tt.a, tt.b), "Compare(%v, %v)", tt.a, tt.b)
	}
}

func TestDiff(t *testing.T) {
	prev := Doc{"_id": "1", "read": true, "typing": false, "gone": "x"}
	next := Doc{"_id": "1", "read": false, "typing": false, "observing": []any{"s1"}}

	changed, cleared := Diff(prev, next)
	assert.Equal(t, Doc{"read": false, "observing": []any{"s1"}}, changed)
	assert.Equal(t, []string{"gone"}, cleared)

	prev.Apply(changed, cleared)
	again, none := Diff(prev, next)
	assert.Empty(t, again)
	assert.Empty(t, none)
}

func TestCloneIsDeep(t *testing.T) {
	d := Doc{"likes": []any{"u1"}, "profile": map[string]any{"name": "n"}}
	c := d.Clone()
	c["likes"] = append(c["likes"].([]any), "u2")
	c["profile"].(map[string]any)["name"] = "m"
	assert.Equal(t, []any{"u1"}, d["likes"])
	assert.Equal(t, "n", d["profile"].(map[string]any)["name"])
}

func TestContains(t *testing.T) {
	assert.True(t, Contains([]any{"a", "b"}, "b"))
	assert.True(t, Contains([]string{"a"}, "a"))
	assert.False(t, Contains([]any{"a"}, "c"))
	assert.False(t, Contains("a", "a"))
}
