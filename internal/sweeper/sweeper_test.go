package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convodb/pkg/presence"
	"convodb/pkg/store/db/storedb"
	"convodb/pkg/timeutil"
)

type fakePresence struct {
	calls atomic.Int32
	block chan struct{}
	err   error
}

func (f *fakePresence) Sweep(ctx context.Context) (presence.SweepResult, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return presence.SweepResult{Observing: 3, Typing: 1}, f.err
}

func TestRunImmediateRecordsRun(t *testing.T) {
	store, err := storedb.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	_, found, err := LastRun(store)
	require.NoError(t, err)
	assert.False(t, found)

	p := &fakePresence{}
	s, err := New("*/5 * * * *", p, store)
	require.NoError(t, err)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.clock = timeutil.Fixed(at)

	res, err := s.RunImmediate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Observing)

	run, found, err := LastRun(store)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Run{Time: at, Observing: 3, Typing: 1, Trigger: "manual"}, run)
}

func TestInvalidCron(t *testing.T) {
	_, err := New("whenever", &fakePresence{}, nil)
	assert.Error(t, err)
}

func TestSweepErrorIsReturned(t *testing.T) {
	s, err := New("* * * * *", &fakePresence{err: errors.New("disk")}, nil)
	require.NoError(t, err)
	_, err = s.RunImmediate(context.Background())
	assert.EqualError(t, err, "disk")
}

func TestOverlappingRunsAreSkipped(t *testing.T) {
	p := &fakePresence{block: make(chan struct{})}
	s, err := New("* * * * *", p, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunImmediate(context.Background())
	}()
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, time.Millisecond)

	res, err := s.RunImmediate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, presence.SweepResult{}, res)
	assert.EqualValues(t, 1, p.calls.Load())

	close(p.block)
	<-done
}

func TestStartStop(t *testing.T) {
	s, err := New("0 0 1 1 *", &fakePresence{}, nil)
	require.NoError(t, err)
	s.Stop()

	s.Start(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
