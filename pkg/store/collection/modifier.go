package collection

import (
	"errors"
	"fmt"

	"convodb/pkg/store/docs"
)

var ErrBadModifier = errors.New("invalid modifier")

// Modifier is a targeted partial update. Operators apply in the order
// Set, Unset, Push, AddToSet, Pull.
type Modifier struct {
	Set      map[string]any
	Unset    []string
	Push     map[string]any
	AddToSet map[string]any
	Pull     map[string]any
}

func (m Modifier) empty() bool {
	return len(m.Set) == 0 && len(m.Unset) == 0 && len(m.Push) == 0 && len(m.AddToSet) == 0 && len(m.Pull) == 0
}

func (m Modifier) validate() error {
	if m.empty() {
		return fmt.Errorf("%w: no operators", ErrBadModifier)
	}
	check := func(field string) error {
		if field == "" {
			return fmt.Errorf("%w: empty field", ErrBadModifier)
		}
		if field == docs.IDField {
			return fmt.Errorf("%w: %s is immutable", ErrBadModifier, docs.IDField)
		}
		return nil
	}
	for k := range m.Set {
		if err := check(k); err != nil {
			return err
		}
	}
	for _, k := range m.Unset {
		if err := check(k); err != nil {
			return err
		}
	}
	for _, ops := range []map[string]any{m.Push, m.AddToSet, m.Pull} {
		for k := range ops {
			if err := check(k); err != nil {
				return err
			}
		}
	}
	return nil
}

// apply returns the modified copy of d.
func (m Modifier) apply(d docs.Doc) (docs.Doc, error) {
	out := d.Clone()
	for k, v := range m.Set {
		out[k] = docs.Normalize(v)
	}
	for _, k := range m.Unset {
		delete(out, k)
	}
	for k, v := range m.Push {
		arr, err := arrayField(out, k)
		if err != nil {
			return nil, err
		}
		out[k] = append(arr, docs.Normalize(v))
	}
	for k, v := range m.AddToSet {
		arr, err := arrayField(out, k)
		if err != nil {
			return nil, err
		}
		if !docs.Contains(arr, v) {
			arr = append(arr, docs.Normalize(v))
		}
		out[k] = arr
	}
	for k, v := range m.Pull {
		cur, ok := out[k]
		if !ok {
			continue
		}
		arr, isArr := cur.([]any)
		if !isArr {
			return nil, fmt.Errorf("%w: $pull on non-array field %q", ErrBadModifier, k)
		}
		kept := make([]any, 0, len(arr))
		for _, e := range arr {
			if !docs.Equal(e, v) {
				kept = append(kept, e)
			}
		}
		out[k] = kept
	}
	return out, nil
}

func arrayField(d docs.Doc, k string) ([]any, error) {
	cur, ok := d[k]
	if !ok || cur == nil {
		return []any{}, nil
	}
	arr, isArr := cur.([]any)
	if !isArr {
		return nil, fmt.Errorf("%w: array operator on non-array field %q", ErrBadModifier, k)
	}
	return arr, nil
}
