package publish

import (
	"sort"

	"convodb/pkg/metrics"
	"convodb/pkg/state/logger"
	"convodb/pkg/store/docs"
)

type docKey struct {
	coll string
	id   string
}

type tracked struct {
	owners map[uint64]struct{}
	fields docs.Doc
}

// Tracker reference-counts documents per owning node so each one is added to
// the client once and removed only when no node holds it. Not safe for
// concurrent use; the session serializes access.
type Tracker struct {
	sink Sink
	docs map[docKey]*tracked
}

func NewTracker(sink Sink) *Tracker {
	return &Tracker{sink: sink, docs: make(map[docKey]*tracked)}
}

// Observe records that owner holds doc. The first owner triggers Added; a
// later owner with a different snapshot brings the client up to date.
func (t *Tracker) Observe(owner uint64, coll string, doc docs.Doc) {
	k := docKey{coll, doc.ID()}
	fields := doc.Without(docs.IDField)
	e, ok := t.docs[k]
	if !ok {
		t.docs[k] = &tracked{owners: map[uint64]struct{}{owner: {}}, fields: fields}
		metrics.PublishedDocs.Inc()
		metrics.ClientEvents.WithLabelValues("added").Inc()
		t.sink.Added(coll, k.id, fields.Clone())
		return
	}
	e.owners[owner] = struct{}{}
	changed, cleared := docs.Diff(e.fields, fields)
	t.emitChanged(k, e, changed, cleared)
}

// Unobserve drops owner's reference and removes the document from the client
// when it was the last one.
func (t *Tracker) Unobserve(owner uint64, coll, id string) {
	k := docKey{coll, id}
	e, ok := t.docs[k]
	if !ok {
		logger.Error("fanin_unobserve_invariant", "reason", "untracked", "collection", coll, "id", id, "owner", owner)
		return
	}
	if _, held := e.owners[owner]; !held {
		logger.Error("fanin_unobserve_invariant", "reason", "owner_not_holding", "collection", coll, "id", id, "owner", owner)
		return
	}
	delete(e.owners, owner)
	if len(e.owners) > 0 {
		return
	}
	delete(t.docs, k)
	metrics.PublishedDocs.Dec()
	metrics.ClientEvents.WithLabelValues("removed").Inc()
	t.sink.Removed(coll, id)
}

// Changed forwards the part of an update the client has not seen yet, so the
// same change reported by several owners reaches the client once.
func (t *Tracker) Changed(owner uint64, coll, id string, fields docs.Doc, cleared []string) {
	k := docKey{coll, id}
	e, ok := t.docs[k]
	if !ok {
		return
	}
	if _, held := e.owners[owner]; !held {
		return
	}
	diff := docs.Doc{}
	for f, v := range fields {
		if f == docs.IDField {
			continue
		}
		if cur, has := e.fields[f]; !has || !docs.Equal(cur, v) {
			diff[f] = v
		}
	}
	var gone []string
	for _, f := range cleared {
		if _, has := e.fields[f]; has {
			gone = append(gone, f)
		}
	}
	t.emitChanged(k, e, diff, gone)
}

func (t *Tracker) emitChanged(k docKey, e *tracked, fields docs.Doc, cleared []string) {
	if len(fields) == 0 && len(cleared) == 0 {
		return
	}
	sort.Strings(cleared)
	e.fields.Apply(fields, cleared)
	metrics.ClientEvents.WithLabelValues("changed").Inc()
	t.sink.Changed(k.coll, k.id, fields.Clone(), cleared)
}

// Refs returns how many owners hold the document.
func (t *Tracker) Refs(coll, id string) int {
	if e, ok := t.docs[docKey{coll, id}]; ok {
		return len(e.owners)
	}
	return 0
}

// Len returns the number of documents visible to the client.
func (t *Tracker) Len() int { return len(t.docs) }

// Snapshot returns a copy of a visible document including its id.
func (t *Tracker) Snapshot(coll, id string) (docs.Doc, bool) {
	e, ok := t.docs[docKey{coll, id}]
	if !ok {
		return nil, false
	}
	d := e.fields.Clone()
	d[docs.IDField] = id
	return d, true
}

// drop forgets every document without notifying the client; used when the
// session itself is gone.
func (t *Tracker) drop() {
	metrics.PublishedDocs.Sub(float64(len(t.docs)))
	t.docs = make(map[docKey]*tracked)
}
