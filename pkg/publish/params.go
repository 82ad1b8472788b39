package publish

import (
	"encoding/json"
	"fmt"
	"math"
)

// Params are the positional arguments of a subscription request.
type Params []json.RawMessage

// String reads argument i as a string. A missing argument is "".
func (p Params) String(i int) (string, error) {
	if i >= len(p) || len(p[i]) == 0 || string(p[i]) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(p[i], &s); err != nil {
		return "", fmt.Errorf("param %d: expected string: %w", i, err)
	}
	return s, nil
}

// Pagination reads argument i leniently; see ParsePagination.
func (p Params) Pagination(i int) Pagination {
	if i >= len(p) {
		return Pagination{}
	}
	return ParsePagination(p[i])
}

// Pagination is the client window over a publication. Limit 0 is unbounded.
type Pagination struct {
	Limit int `json:"limit"`
	Skip  int `json:"skip"`
}

// ParsePagination decodes {limit, skip}. Unknown fields, wrong types and
// negative values fall back to the defaults instead of failing.
func ParsePagination(raw json.RawMessage) Pagination {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Pagination{}
	}
	return Pagination{Limit: nonNegative(m["limit"]), Skip: nonNegative(m["skip"])}
}

func nonNegative(v any) int {
	f, ok := v.(float64)
	if !ok || f <= 0 || math.IsNaN(f) {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}
