// Package docs defines the schema-less document form used by collections and
// the publish engine. Values are normalized to the JSON data model: string,
// float64, bool, nil, []any and map[string]any.
package docs

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

const IDField = "_id"

type Doc map[string]any

// ID returns the document id or "" when missing.
func (d Doc) ID() string {
	if d == nil {
		return ""
	}
	s, _ := d[IDField].(string)
	return s
}

// Clone deep-copies d.
func (d Doc) Clone() Doc {
	if d == nil {
		return nil
	}
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// Without returns a copy of d lacking the given top-level fields.
func (d Doc) Without(fields ...string) Doc {
	out := d.Clone()
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Doc:
		return map[string]any(t.Clone())
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// FromValue converts a typed record into a normalized Doc.
func FromValue(v any) (Doc, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var d Doc
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return d, nil
}

// Decode fills out (a pointer to a typed record) from d.
func Decode(d Doc, out any) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return json.Unmarshal(b, out)
}

// Normalize maps Go values onto the JSON data model so they compare equal to
// values read back from storage.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return t
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case Doc:
		return Normalize(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// Equal compares two values after normalization.
func Equal(a, b any) bool {
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

// Compare orders two values: nil < numbers < strings < other < bools.
func Compare(a, b any) int {
	a, b = Normalize(a), Normalize(b)
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case nil:
		return 0
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return strings.Compare(string(ja), string(jb))
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64:
		return 1
	case string:
		return 2
	case bool:
		return 4
	default:
		return 3
	}
}

// Diff returns the top-level fields of next that differ from prev, and the
// fields present in prev but missing from next. The id is never reported.
func Diff(prev, next Doc) (Doc, []string) {
	changed := Doc{}
	for k, v := range next {
		if k == IDField {
			continue
		}
		if old, ok := prev[k]; !ok || !Equal(old, v) {
			changed[k] = cloneValue(v)
		}
	}
	var cleared []string
	for k := range prev {
		if k == IDField {
			continue
		}
		if _, ok := next[k]; !ok {
			cleared = append(cleared, k)
		}
	}
	sort.Strings(cleared)
	return changed, cleared
}

// Apply merges a change set into d in place.
func (d Doc) Apply(fields Doc, cleared []string) {
	for k, v := range fields {
		d[k] = cloneValue(v)
	}
	for _, k := range cleared {
		delete(d, k)
	}
}

// Contains reports whether v is an array holding elem.
func Contains(v any, elem any) bool {
	arr, ok := Normalize(v).([]any)
	if !ok {
		return false
	}
	for _, e := range arr {
		if Equal(e, elem) {
			return true
		}
	}
	return false
}
