package publish

import (
	"errors"
	"fmt"

	"convodb/pkg/store/selector"
)

var ErrInvalidSpec = errors.New("invalid publication spec")

// Spec declares one node of a publication tree.
//
// A dependant with FK set and Invert false matches documents whose FK field
// holds the parent id. With Invert set it fetches documents whose id is the
// value of the parent's FK field. Straight nodes apply Options per parent
// and cannot have dependants; other nodes apply the skip/limit window across
// everything they hold.
type Spec struct {
	Feed       Feed
	Selector   selector.Selector
	Options    selector.Options
	FK         string
	Invert     bool
	Straight   bool
	Dependants []*Spec
}

// From starts a spec over feed.
func From(feed Feed) *Spec {
	return &Spec{Feed: feed}
}

func (s *Spec) Where(conds ...selector.Cond) *Spec {
	s.Selector = s.Selector.And(conds...)
	return s
}

func (s *Spec) Sort(fields ...selector.SortField) *Spec {
	s.Options.Sort = append(s.Options.Sort, fields...)
	return s
}

func (s *Spec) Limit(n int) *Spec {
	s.Options.Limit = n
	return s
}

func (s *Spec) Skip(n int) *Spec {
	s.Options.Skip = n
	return s
}

// Window applies client pagination.
func (s *Spec) Window(p Pagination) *Spec {
	s.Options.Limit = p.Limit
	s.Options.Skip = p.Skip
	return s
}

func (s *Spec) ForeignKey(field string) *Spec {
	s.FK = field
	return s
}

func (s *Spec) Inverted() *Spec {
	s.Invert = true
	return s
}

func (s *Spec) StraightPublish() *Spec {
	s.Straight = true
	return s
}

// With appends dependants sharing this node's document set as parents.
func (s *Spec) With(children ...*Spec) *Spec {
	s.Dependants = append(s.Dependants, children...)
	return s
}

// Collection is the name of the fed collection.
func (s *Spec) Collection() string {
	if s.Feed == nil {
		return ""
	}
	return s.Feed.Name()
}

// Validate checks the tree rooted at s.
func (s *Spec) Validate() error {
	return s.validate(true, "root")
}

func (s *Spec) validate(root bool, path string) error {
	if s.Feed == nil {
		return fmt.Errorf("%w: %s: no feed", ErrInvalidSpec, path)
	}
	path = path + "/" + s.Feed.Name()
	if !root && s.FK == "" {
		return fmt.Errorf("%w: %s: dependant without foreign key", ErrInvalidSpec, path)
	}
	if root && s.Invert {
		return fmt.Errorf("%w: %s: root cannot be inverted", ErrInvalidSpec, path)
	}
	if s.Straight && len(s.Dependants) > 0 {
		return fmt.Errorf("%w: %s: straight publish node with dependants", ErrInvalidSpec, path)
	}
	if s.Options.Limit < 0 || s.Options.Skip < 0 {
		return fmt.Errorf("%w: %s: negative limit or skip", ErrInvalidSpec, path)
	}
	for _, d := range s.Dependants {
		if d == nil {
			return fmt.Errorf("%w: %s: nil dependant", ErrInvalidSpec, path)
		}
		if err := d.validate(false, path); err != nil {
			return err
		}
	}
	return nil
}
