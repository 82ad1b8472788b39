package publish

import (
	"errors"
)

var ErrGraphStopped = errors.New("publication graph stopped")

// Graph is the running node tree of one Spec inside a session.
type Graph struct {
	sess    *Session
	spec    *Spec
	root    *node
	started bool
	stopped bool
}

// NewGraph validates spec and assembles its node tree. Nothing runs until
// Start.
func NewGraph(sess *Session, spec *Spec) (*Graph, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	g := &Graph{sess: sess, spec: spec}
	g.root = newNode(g, spec)
	return g, nil
}

// Start runs the root query and, transitively, every dependant. On return
// the initial documents have reached the sink.
func (g *Graph) Start() error {
	g.sess.mu.Lock()
	defer g.sess.mu.Unlock()
	return g.start()
}

// Stop tears the whole tree down before returning.
func (g *Graph) Stop() {
	g.sess.mu.Lock()
	defer g.sess.mu.Unlock()
	g.stop()
}

func (g *Graph) start() error {
	if g.stopped {
		return ErrGraphStopped
	}
	if g.started {
		return nil
	}
	g.started = true
	return g.root.startRoot()
}

func (g *Graph) stop() {
	if g.stopped {
		return
	}
	g.stopped = true
	g.root.stop()
}
