package publish

import (
	"encoding/json"
	"sort"

	"convodb/pkg/state/logger"
	"convodb/pkg/store/collection"
	"convodb/pkg/store/docs"
	"convodb/pkg/store/selector"
)

// node runs one Spec. A root node has a single lookup keyed "". A dependant
// has one lookup per published parent document, scoped to that parent.
// All methods run with the session lock held.
type node struct {
	id       uint64
	spec     *Spec
	graph    *Graph
	children []*node

	lookups map[string]*lookup
	members map[string]*member
	visible map[string]struct{}
	stopped bool
}

type lookup struct {
	parentID string
	key      string
	handle   collection.Handle
	ids      map[string]struct{}
	stopped  bool
}

type member struct {
	doc  docs.Doc
	refs map[*lookup]struct{}
}

func newNode(g *Graph, spec *Spec) *node {
	n := &node{
		id:      g.sess.nextNodeID(),
		spec:    spec,
		graph:   g,
		lookups: make(map[string]*lookup),
		members: make(map[string]*member),
		visible: make(map[string]struct{}),
	}
	for _, d := range spec.Dependants {
		n.children = append(n.children, newNode(g, d))
	}
	return n
}

func (n *node) coll() string { return n.spec.Collection() }

func (n *node) tracker() *Tracker { return n.graph.sess.tracker }

// startRoot opens the root lookup.
func (n *node) startRoot() error {
	lk, err := n.open("", nil)
	if err != nil {
		return err
	}
	n.lookups[""] = lk
	n.republish()
	return nil
}

// addParents scopes one new lookup to each parent document and republishes
// once, so a batch of parents never exposes a partial window.
func (n *node) addParents(parents []docs.Doc) {
	if n.stopped {
		return
	}
	opened := false
	for _, parent := range parents {
		id := parent.ID()
		if _, exists := n.lookups[id]; exists {
			continue
		}
		lk, err := n.open(id, parent)
		if err != nil {
			logger.Error("publication_lookup_failed", "collection", n.coll(), "parent", id, "error", err)
			continue
		}
		n.lookups[id] = lk
		opened = true
	}
	if opened {
		n.republish()
	}
}

// removeParents drops the lookups scoped to parentIDs and everything only
// they were holding.
func (n *node) removeParents(parentIDs []string) {
	closed := false
	for _, id := range parentIDs {
		lk, ok := n.lookups[id]
		if !ok {
			continue
		}
		delete(n.lookups, id)
		n.close(lk)
		closed = true
	}
	if closed {
		n.republish()
	}
}

// parentChanged re-keys an inverted lookup when the parent's reference moved.
// The replacement opens before the old one closes so documents reachable
// through both stay published.
func (n *node) parentChanged(parentID string, parent docs.Doc) {
	if !n.spec.Invert || n.stopped {
		return
	}
	old, ok := n.lookups[parentID]
	if !ok || old.key == refKey(parent[n.spec.FK]) {
		return
	}
	lk, err := n.open(parentID, parent)
	if err != nil {
		logger.Error("publication_rekey_failed", "collection", n.coll(), "parent", parentID, "error", err)
		return
	}
	n.lookups[parentID] = lk
	n.close(old)
	n.republish()
}

func (n *node) open(parentID string, parent docs.Doc) (*lookup, error) {
	lk := &lookup{parentID: parentID, ids: make(map[string]struct{})}
	sel := n.spec.Selector
	if parent != nil {
		if n.spec.Invert {
			ref := parent[n.spec.FK]
			lk.key = refKey(ref)
			ids := refIDs(ref)
			if len(ids) == 0 {
				return lk, nil
			}
			sel = sel.And(selector.In(docs.IDField, ids))
		} else {
			sel = sel.And(selector.Eq(n.spec.FK, parentID))
		}
	}
	opts := n.spec.Options
	if !n.spec.Straight {
		opts = opts.Unwindowed()
	}

	sess := n.graph.sess
	h, initial, err := n.spec.Feed.Observe(sel, opts, func(ev collection.Event) {
		sess.dispatch(func() { n.onEvent(lk, ev) })
	})
	if err != nil {
		return nil, err
	}
	lk.handle = h
	for _, d := range initial {
		n.hold(lk, d)
	}
	return lk, nil
}

func (n *node) close(lk *lookup) {
	lk.stopped = true
	if lk.handle != nil {
		lk.handle.Stop()
	}
	for id := range lk.ids {
		n.release(lk, id)
	}
}

func (n *node) onEvent(lk *lookup, ev collection.Event) {
	if lk.stopped || n.stopped {
		return
	}
	switch ev.Kind {
	case collection.Added:
		n.hold(lk, ev.Fields)
	case collection.Changed:
		m, ok := n.members[ev.ID]
		if !ok {
			return
		}
		next := m.doc.Clone()
		next.Apply(ev.Fields, ev.Cleared)
		n.update(ev.ID, m, next)
	case collection.Removed:
		n.release(lk, ev.ID)
	}
	n.republish()
}

// hold records that lk sees doc.
func (n *node) hold(lk *lookup, doc docs.Doc) {
	id := doc.ID()
	lk.ids[id] = struct{}{}
	m, ok := n.members[id]
	if !ok {
		n.members[id] = &member{doc: doc.Clone(), refs: map[*lookup]struct{}{lk: {}}}
		return
	}
	m.refs[lk] = struct{}{}
	n.update(id, m, doc)
}

func (n *node) release(lk *lookup, id string) {
	delete(lk.ids, id)
	m, ok := n.members[id]
	if !ok {
		return
	}
	delete(m.refs, lk)
	if len(m.refs) == 0 {
		delete(n.members, id)
	}
}

// update swaps in a newer copy of a held document and propagates the
// difference when it is published.
func (n *node) update(id string, m *member, next docs.Doc) {
	fields, cleared := docs.Diff(m.doc, next)
	if len(fields) == 0 && len(cleared) == 0 {
		return
	}
	m.doc = next.Clone()
	if _, pub := n.visible[id]; !pub {
		return
	}
	n.tracker().Changed(n.id, n.coll(), id, fields, cleared)
	for _, c := range n.children {
		c.parentChanged(id, m.doc)
	}
}

// republish reconciles the published set with the held documents. Fresh
// documents reach the tracker before their children start, and their
// children open before the gone documents' children close, so a descendant
// reachable from both sides stays published without a removed/added pair.
// Gone documents leave the tracker after their children are torn down.
func (n *node) republish() {
	if n.stopped {
		return
	}
	held := make([]docs.Doc, 0, len(n.members))
	for _, m := range n.members {
		held = append(held, m.doc)
	}
	if n.spec.Straight {
		n.spec.Options.Unwindowed().SortDocs(held)
	} else {
		held = n.spec.Options.Apply(held)
	}
	want := make(map[string]struct{}, len(held))
	for _, d := range held {
		want[d.ID()] = struct{}{}
	}

	var gone []string
	for id := range n.visible {
		if _, keep := want[id]; !keep {
			gone = append(gone, id)
		}
	}

	var fresh []docs.Doc
	for _, d := range held {
		id := d.ID()
		if _, pub := n.visible[id]; pub {
			continue
		}
		n.visible[id] = struct{}{}
		n.tracker().Observe(n.id, n.coll(), d)
		fresh = append(fresh, d)
	}
	if len(fresh) > 0 {
		for _, c := range n.children {
			c.addParents(fresh)
		}
	}

	if len(gone) > 0 {
		sort.Strings(gone)
		for _, c := range n.children {
			c.removeParents(gone)
		}
		for _, id := range gone {
			delete(n.visible, id)
			n.tracker().Unobserve(n.id, n.coll(), id)
		}
	}
}

// stop tears the subtree down: children, then published documents, then
// the change feed handles.
func (n *node) stop() {
	if n.stopped {
		return
	}
	for _, c := range n.children {
		c.stop()
	}
	n.stopped = true
	ids := make([]string, 0, len(n.visible))
	for id := range n.visible {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		delete(n.visible, id)
		n.tracker().Unobserve(n.id, n.coll(), id)
	}
	for _, lk := range n.lookups {
		lk.stopped = true
		if lk.handle != nil {
			lk.handle.Stop()
		}
	}
	n.lookups = map[string]*lookup{}
	n.members = map[string]*member{}
}

// refIDs reads an inverted reference: a single id or an array of ids.
func refIDs(v any) []string {
	switch t := docs.Normalize(v).(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func refKey(v any) string {
	b, _ := json.Marshal(docs.Normalize(v))
	return string(b)
}
