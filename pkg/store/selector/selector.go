// Package selector implements the typed document predicates and query options
// used by collections and publications. Field semantics follow the document
// store convention: an equality test against an array field matches when any
// element is equal.
package selector

import (
	"fmt"
	"sort"
	"strings"

	"convodb/pkg/store/docs"
)

type Op int

const (
	OpEq Op = iota
	OpNe
	OpIn
	OpNin
	OpExists
	OpNotExists
	OpNotEmpty
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "$eq"
	case OpNe:
		return "$ne"
	case OpIn:
		return "$in"
	case OpNin:
		return "$nin"
	case OpExists:
		return "$exists"
	case OpNotExists:
		return "$notExists"
	case OpNotEmpty:
		return "$notEmpty"
	}
	return "?"
}

// Cond is one field predicate.
type Cond struct {
	Field  string
	Op     Op
	Value  any
	Values []any
}

// Selector is a conjunction of conditions. The empty selector matches all.
type Selector []Cond

func Eq(field string, v any) Cond { return Cond{Field: field, Op: OpEq, Value: docs.Normalize(v)} }
func Ne(field string, v any) Cond { return Cond{Field: field, Op: OpNe, Value: docs.Normalize(v)} }
func Exists(field string) Cond    { return Cond{Field: field, Op: OpExists} }
func NotExists(field string) Cond { return Cond{Field: field, Op: OpNotExists} }

// NotEmpty matches array fields with at least one element.
func NotEmpty(field string) Cond { return Cond{Field: field, Op: OpNotEmpty} }

func In[T any](field string, vs []T) Cond {
	return Cond{Field: field, Op: OpIn, Values: normalizeAll(vs)}
}

func Nin[T any](field string, vs []T) Cond {
	return Cond{Field: field, Op: OpNin, Values: normalizeAll(vs)}
}

// ID is shorthand for Eq on the document id.
func ID(id string) Cond { return Eq(docs.IDField, id) }

func normalizeAll[T any](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = docs.Normalize(v)
	}
	return out
}

// Where builds a selector from conditions.
func Where(conds ...Cond) Selector { return Selector(conds) }

// And returns a new selector with more conditions appended.
func (s Selector) And(more ...Cond) Selector {
	out := make(Selector, 0, len(s)+len(more))
	out = append(out, s...)
	return append(out, more...)
}

// Matches reports whether d satisfies every condition.
func (s Selector) Matches(d docs.Doc) bool {
	for _, c := range s {
		if !c.matches(d) {
			return false
		}
	}
	return true
}

// IDs returns the ids a selector is pinned to through an _id equality or $in,
// and false when the selector is not id-bound.
func (s Selector) IDs() ([]string, bool) {
	for _, c := range s {
		if c.Field != docs.IDField {
			continue
		}
		switch c.Op {
		case OpEq:
			id, _ := c.Value.(string)
			return []string{id}, true
		case OpIn:
			ids := make([]string, 0, len(c.Values))
			for _, v := range c.Values {
				if id, ok := v.(string); ok {
					ids = append(ids, id)
				}
			}
			return ids, true
		}
	}
	return nil, false
}

func (s Selector) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		switch c.Op {
		case OpIn, OpNin:
			parts[i] = fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Values)
		case OpExists, OpNotExists, OpNotEmpty:
			parts[i] = fmt.Sprintf("%s %s", c.Field, c.Op)
		default:
			parts[i] = fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (c Cond) matches(d docs.Doc) bool {
	v, present := d[c.Field]
	switch c.Op {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	case OpNotEmpty:
		arr, ok := v.([]any)
		return ok && len(arr) > 0
	case OpEq:
		return present && valueMatches(v, c.Value)
	case OpNe:
		return !present || !valueMatches(v, c.Value)
	case OpIn:
		if !present {
			return containsNil(c.Values)
		}
		for _, want := range c.Values {
			if valueMatches(v, want) {
				return true
			}
		}
		return false
	case OpNin:
		if !present {
			return !containsNil(c.Values)
		}
		for _, want := range c.Values {
			if valueMatches(v, want) {
				return false
			}
		}
		return true
	}
	return false
}

// valueMatches treats array fields as "any element equals", with a direct
// array equality also accepted.
func valueMatches(field, want any) bool {
	if docs.Equal(field, want) {
		return true
	}
	if arr, ok := field.([]any); ok {
		for _, e := range arr {
			if docs.Equal(e, want) {
				return true
			}
		}
	}
	return false
}

func containsNil(vs []any) bool {
	for _, v := range vs {
		if v == nil {
			return true
		}
	}
	return false
}

// SortField orders by one field; Desc flips it.
type SortField struct {
	Field string
	Desc  bool
}

func Asc(field string) SortField  { return SortField{Field: field} }
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

// Options shapes a result set. Limit 0 means unbounded.
type Options struct {
	Sort  []SortField
	Limit int
	Skip  int
}

// Windowed reports whether the options drop documents from a result set.
func (o Options) Windowed() bool { return o.Limit > 0 || o.Skip > 0 }

// Unwindowed returns o with limit and skip removed.
func (o Options) Unwindowed() Options { return Options{Sort: o.Sort} }

// SortDocs orders ds in place. Ties fall back to the id so results are stable.
func (o Options) SortDocs(ds []docs.Doc) {
	sort.SliceStable(ds, func(i, j int) bool {
		for _, sf := range o.Sort {
			c := docs.Compare(ds[i][sf.Field], ds[j][sf.Field])
			if c == 0 {
				continue
			}
			if sf.Desc {
				return c > 0
			}
			return c < 0
		}
		return ds[i].ID() < ds[j].ID()
	})
}

// Apply sorts ds and cuts the skip/limit window out of it.
func (o Options) Apply(ds []docs.Doc) []docs.Doc {
	o.SortDocs(ds)
	if o.Skip > 0 {
		if o.Skip >= len(ds) {
			return nil
		}
		ds = ds[o.Skip:]
	}
	if o.Limit > 0 && len(ds) > o.Limit {
		ds = ds[:o.Limit]
	}
	return ds
}
