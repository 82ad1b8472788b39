package publish

import "sync"

// serial runs queued funcs one at a time on its own goroutine. enqueue never
// blocks, so change feeds can hand work over while holding their own locks.
type serial struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func newSerial() *serial {
	s := &serial{wake: make(chan struct{}, 1), done: make(chan struct{})}
	go s.run()
	return s
}

// enqueue reports false once the executor is closed.
func (s *serial) enqueue(fn func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *serial) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			<-s.wake
			continue
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		for _, fn := range batch {
			fn()
		}
	}
}

// barrier waits until everything queued before it has run.
func (s *serial) barrier() {
	ch := make(chan struct{})
	if !s.enqueue(func() { close(ch) }) {
		return
	}
	<-ch
}

// close drains what is queued and stops the goroutine.
func (s *serial) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
}
