// Package publish is the reactive relational publish engine. A Spec tree
// describes live queries joined by foreign key; a Graph runs it for one
// subscription and feeds documents through the session's fan-in Tracker to
// the client Sink.
package publish

import (
	"convodb/pkg/store/collection"
	"convodb/pkg/store/docs"
	"convodb/pkg/store/selector"
)

// Feed is the change feed a node consumes. Observe returns the initial
// documents; later events arrive through fn, which must not block.
type Feed interface {
	Name() string
	Observe(sel selector.Selector, opts selector.Options, fn func(collection.Event)) (collection.Handle, []docs.Doc, error)
}

// Sink receives the client-visible document stream of one session. Calls are
// serialized by the session and must not call back into it.
type Sink interface {
	Added(collection, id string, fields docs.Doc)
	Changed(collection, id string, fields docs.Doc, cleared []string)
	Removed(collection, id string)
	Ready(subID string)
	NoSub(subID string, err error)
}
