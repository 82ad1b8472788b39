package collection

import (
	"sort"

	"convodb/pkg/metrics"
	"convodb/pkg/store/docs"
	"convodb/pkg/store/selector"
)

type observer struct {
	id      uint64
	coll    *Collection
	sel     selector.Selector
	opts    selector.Options
	fn      func(Event)
	results map[string]struct{}
	stopped bool
}

// Stop unregisters the observer. Safe to call more than once.
func (o *observer) Stop() {
	c := o.coll
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.stopped {
		return
	}
	o.stopped = true
	delete(c.observers, o.id)
	metrics.LiveQueries.WithLabelValues(c.name).Dec()
}

// process turns committed changes into events for this query. Caller holds
// the collection write lock and has already applied the changes.
func (o *observer) process(changes []change) {
	if o.opts.Windowed() {
		o.rewindow(changes)
		return
	}
	for _, ch := range changes {
		_, was := o.results[ch.id]
		now := ch.new != nil && o.sel.Matches(ch.new)
		switch {
		case !was && now:
			o.results[ch.id] = struct{}{}
			o.fn(Event{Kind: Added, ID: ch.id, Fields: ch.new.Clone()})
		case was && now:
			if fields, cleared := docs.Diff(ch.old, ch.new); len(fields) > 0 || len(cleared) > 0 {
				o.fn(Event{Kind: Changed, ID: ch.id, Fields: fields, Cleared: cleared})
			}
		case was && !now:
			delete(o.results, ch.id)
			o.fn(Event{Kind: Removed, ID: ch.id})
		}
	}
}

// rewindow recomputes a limited query when any change touches its selector
// and emits the difference. Removals go out before additions.
func (o *observer) rewindow(changes []change) {
	touched := make(map[string]change, len(changes))
	relevant := false
	for _, ch := range changes {
		if (ch.old != nil && o.sel.Matches(ch.old)) || (ch.new != nil && o.sel.Matches(ch.new)) {
			relevant = true
		}
		touched[ch.id] = ch
	}
	if !relevant {
		return
	}

	window := o.coll.query(o.sel, o.opts)
	next := make(map[string]struct{}, len(window))
	for _, d := range window {
		next[d.ID()] = struct{}{}
	}

	var gone []string
	for id := range o.results {
		if _, keep := next[id]; !keep {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		o.fn(Event{Kind: Removed, ID: id})
	}
	for _, d := range window {
		id := d.ID()
		if _, had := o.results[id]; !had {
			o.fn(Event{Kind: Added, ID: id, Fields: d.Clone()})
			continue
		}
		ch, ok := touched[id]
		if !ok || ch.old == nil || ch.new == nil {
			continue
		}
		if fields, cleared := docs.Diff(ch.old, ch.new); len(fields) > 0 || len(cleared) > 0 {
			o.fn(Event{Kind: Changed, ID: id, Fields: fields, Cleared: cleared})
		}
	}
	o.results = next
}
