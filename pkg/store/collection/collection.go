// Package collection is the document store and change feed behind the publish
// engine. Each collection keeps its documents in memory, writes through to
// pebble, and notifies live-query observers of every committed change.
package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"convodb/pkg/metrics"
	"convodb/pkg/state/logger"
	"convodb/pkg/store/db/storedb"
	"convodb/pkg/store/docs"
	"convodb/pkg/store/keys"
	"convodb/pkg/store/selector"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrDuplicateID = errors.New("duplicate document id")
)

type EventKind int

const (
	Added EventKind = iota
	Changed
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Changed:
		return "changed"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Event is one change feed notification. Added carries the full document,
// Changed carries only the differing fields plus the cleared field names.
type Event struct {
	Kind    EventKind
	ID      string
	Fields  docs.Doc
	Cleared []string
}

// Handle stops a live query.
type Handle interface {
	Stop()
}

type Collection struct {
	name  string
	store *storedb.Store
	newID func() string

	mu        sync.RWMutex
	docs      map[string]docs.Doc
	observers map[uint64]*observer
	nextObs   uint64
}

// Open loads the named collection from store.
func Open(store *storedb.Store, name string) (*Collection, error) {
	if err := keys.ValidateName(name); err != nil {
		return nil, err
	}
	c := &Collection{
		name:      name,
		store:     store,
		newID:     func() string { return ulid.Make().String() },
		docs:      make(map[string]docs.Doc),
		observers: make(map[uint64]*observer),
	}
	err := store.ScanPrefix(keys.GenDocPrefix(name), func(k, v []byte) error {
		var d docs.Doc
		if err := json.Unmarshal(v, &d); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		c.docs[d.ID()] = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", name, err)
	}
	logger.Info("collection_loaded", "collection", name, "docs", len(c.docs))
	return c, nil
}

func (c *Collection) Name() string { return c.name }

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Get returns a copy of the document with id.
func (c *Collection) Get(id string) (docs.Doc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

// Find returns copies of the matching documents shaped by opts.
func (c *Collection) Find(sel selector.Selector, opts selector.Options) []docs.Doc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	found := c.query(sel, opts)
	out := make([]docs.Doc, len(found))
	for i, d := range found {
		out[i] = d.Clone()
	}
	return out
}

// FindOne returns the first match in id order.
func (c *Collection) FindOne(sel selector.Selector) (docs.Doc, error) {
	found := c.Find(sel, selector.Options{Limit: 1})
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

// Count returns the number of matching documents.
func (c *Collection) Count(sel selector.Selector) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, d := range c.candidates(sel) {
		if sel.Matches(d) {
			n++
		}
	}
	return n
}

// Insert stores doc, assigning an id when it has none, and returns the id.
func (c *Collection) Insert(doc docs.Doc) (string, error) {
	d := docs.Doc(docs.Normalize(doc).(map[string]any))
	id := d.ID()
	if id == "" {
		id = c.newID()
		d[docs.IDField] = id
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; exists {
		return "", fmt.Errorf("%w: %s/%s", ErrDuplicateID, c.name, id)
	}
	ch := change{id: id, new: d}
	if err := c.persist([]change{ch}); err != nil {
		return "", err
	}
	c.docs[id] = d
	c.notify([]change{ch})
	metrics.CollectionWrites.WithLabelValues(c.name, "insert").Inc()
	return id, nil
}

// Update applies mod to the first matching document, or to every match when
// multi is set, and returns how many documents actually changed.
func (c *Collection) Update(sel selector.Selector, mod Modifier, multi bool) (int, error) {
	if err := mod.validate(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var changes []change
	for _, d := range c.candidates(sel) {
		if !sel.Matches(d) {
			continue
		}
		next, err := mod.apply(d)
		if err != nil {
			return 0, fmt.Errorf("update %s/%s: %w", c.name, d.ID(), err)
		}
		if fields, cleared := docs.Diff(d, next); len(fields) > 0 || len(cleared) > 0 {
			changes = append(changes, change{id: d.ID(), old: d, new: next})
		}
		if !multi {
			break
		}
	}
	if len(changes) == 0 {
		return 0, nil
	}
	if err := c.persist(changes); err != nil {
		return 0, err
	}
	for _, ch := range changes {
		c.docs[ch.id] = ch.new
	}
	c.notify(changes)
	metrics.CollectionWrites.WithLabelValues(c.name, "update").Add(float64(len(changes)))
	return len(changes), nil
}

// Remove deletes every matching document and returns the count.
func (c *Collection) Remove(sel selector.Selector) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changes []change
	for _, d := range c.candidates(sel) {
		if sel.Matches(d) {
			changes = append(changes, change{id: d.ID(), old: d})
		}
	}
	if len(changes) == 0 {
		return 0, nil
	}
	if err := c.persist(changes); err != nil {
		return 0, err
	}
	for _, ch := range changes {
		delete(c.docs, ch.id)
	}
	c.notify(changes)
	metrics.CollectionWrites.WithLabelValues(c.name, "remove").Add(float64(len(changes)))
	return len(changes), nil
}

// Observe registers a live query. It returns the initial result set; later
// changes arrive through fn in commit order. fn is called with the
// collection lock held and must not block or call back into the collection.
func (c *Collection) Observe(sel selector.Selector, opts selector.Options, fn func(Event)) (Handle, []docs.Doc, error) {
	if fn == nil {
		return nil, nil, fmt.Errorf("observe %s: nil listener", c.name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextObs++
	o := &observer{
		id:      c.nextObs,
		coll:    c,
		sel:     sel,
		opts:    opts,
		fn:      fn,
		results: make(map[string]struct{}),
	}
	found := c.query(sel, opts)
	initial := make([]docs.Doc, len(found))
	for i, d := range found {
		o.results[d.ID()] = struct{}{}
		initial[i] = d.Clone()
	}
	c.observers[o.id] = o
	metrics.LiveQueries.WithLabelValues(c.name).Inc()
	return o, initial, nil
}

// Observers returns the number of registered live queries.
func (c *Collection) Observers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.observers)
}

type change struct {
	id  string
	old docs.Doc // nil on insert
	new docs.Doc // nil on remove
}

// candidates returns the documents a selector can match in id order. An
// id-bound selector only visits the named ids.
func (c *Collection) candidates(sel selector.Selector) []docs.Doc {
	if ids, ok := sel.IDs(); ok {
		out := make([]docs.Doc, 0, len(ids))
		seen := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if d, ok := c.docs[id]; ok {
				out = append(out, d)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
		return out
	}
	out := make([]docs.Doc, 0, len(c.docs))
	for _, d := range c.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (c *Collection) query(sel selector.Selector, opts selector.Options) []docs.Doc {
	var out []docs.Doc
	for _, d := range c.candidates(sel) {
		if sel.Matches(d) {
			out = append(out, d)
		}
	}
	return opts.Apply(out)
}

func (c *Collection) persist(changes []change) error {
	b := c.store.NewBatch()
	for _, ch := range changes {
		key := keys.GenDocKey(c.name, ch.id)
		if ch.new == nil {
			if err := b.Delete(key); err != nil {
				b.Discard()
				return err
			}
			continue
		}
		raw, err := json.Marshal(ch.new)
		if err != nil {
			b.Discard()
			return fmt.Errorf("encode %s: %w", key, err)
		}
		if err := b.Set(key, raw); err != nil {
			b.Discard()
			return err
		}
	}
	return b.Commit()
}

func (c *Collection) notify(changes []change) {
	if len(c.observers) == 0 {
		return
	}
	ids := make([]uint64, 0, len(c.observers))
	for id := range c.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		c.observers[id].process(changes)
	}
}
