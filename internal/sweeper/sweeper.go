// Package sweeper clears presence left behind by connections this process
// no longer holds, on a cron schedule.
package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"convodb/pkg/presence"
	"convodb/pkg/state/logger"
	"convodb/pkg/store/db/storedb"
	"convodb/pkg/store/keys"
	"convodb/pkg/timeutil"
)

// Presence is the part of the presence tracker the sweeper drives.
type Presence interface {
	Sweep(ctx context.Context) (presence.SweepResult, error)
}

// Run is the record persisted after every sweep.
type Run struct {
	Time      time.Time `json:"time"`
	Observing int       `json:"observing"`
	Typing    int       `json:"typing"`
	Trigger   string    `json:"trigger"`
}

type Sweeper struct {
	cron     string
	presence Presence
	store    *storedb.Store
	clock    timeutil.Clock

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns a sweeper for presence. store may be nil, in which case runs
// are not recorded.
func New(cron string, p Presence, store *storedb.Store) (*Sweeper, error) {
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid sweep cron: %q", cron)
	}
	return &Sweeper{cron: cron, presence: p, store: store, clock: timeutil.Now}, nil
}

// Start runs the schedule loop until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()
	logger.Info("presence_sweeper_started", "cron", s.cron)
	go func() {
		defer close(s.done)
		s.scheduleLoop(ctx)
	}()
}

// Stop ends the loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunImmediate sweeps now. A sweep already in progress is not repeated; the
// call reports zero cleared.
func (s *Sweeper) RunImmediate(ctx context.Context) (presence.SweepResult, error) {
	return s.run(ctx, "manual")
}

func (s *Sweeper) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.cron, s.clock(), false)
		if err != nil {
			logger.Error("sweep_nexttick_failed", "cron", s.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case <-time.After(time.Until(next)):
			if _, err := s.run(ctx, "cron"); err != nil {
				logger.Error("presence_sweep_failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) run(ctx context.Context, trigger string) (presence.SweepResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Debug("presence_sweep_skipped", "reason", "already_running", "trigger", trigger)
		return presence.SweepResult{}, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	res, err := s.presence.Sweep(ctx)
	if err != nil {
		return res, err
	}
	if err := s.record(Run{Time: s.clock(), Observing: res.Observing, Typing: res.Typing, Trigger: trigger}); err != nil {
		logger.Warn("presence_sweep_record_failed", "error", err)
	}
	logger.Debug("presence_sweep_done", "trigger", trigger, "observing", res.Observing, "typing", res.Typing)
	return res, nil
}

func (s *Sweeper) record(r Run) error {
	if s.store == nil {
		return nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.store.SaveKey(keys.SystemLastSweep, b)
}

// LastRun reads the most recent recorded sweep.
func LastRun(store *storedb.Store) (Run, bool, error) {
	b, err := store.GetKey(keys.SystemLastSweep)
	if err != nil {
		if storedb.IsNotFound(err) {
			return Run{}, false, nil
		}
		return Run{}, false, err
	}
	var r Run
	if err := json.Unmarshal(b, &r); err != nil {
		return Run{}, false, fmt.Errorf("decode last sweep: %w", err)
	}
	return r, true, nil
}
