package shutdown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"convodb/pkg/state"
	"convodb/pkg/state/logger"
)

// Dump is the record written for a fatal startup or run failure.
type Dump struct {
	Time       time.Time `json:"time"`
	Reason     string    `json:"reason"`
	Error      string    `json:"error,omitempty"`
	Version    string    `json:"version,omitempty"`
	PID        int       `json:"pid"`
	Goroutines int       `json:"goroutines"`
	Stacks     string    `json:"stacks"`
}

var (
	// exit is swapped out by tests.
	exit = os.Exit

	version atomic.Value
)

// SetVersion tags later crash dumps with the build version.
func SetVersion(v string) { version.Store(v) }

// Abort logs a fatal error, writes a crash dump under dbPath and exits with
// status 2 after delaySeconds (default 3).
func Abort(contextMsg string, err error, dbPath string, delaySeconds ...int) {
	delay := 3
	if len(delaySeconds) > 0 && delaySeconds[0] >= 0 {
		delay = delaySeconds[0]
	}
	logger.Error("fatal", "msg", contextMsg, "error", err)
	if path, derr := WriteCrashDump(dbPath, contextMsg, err); derr != nil {
		logger.Error("crash_dump_failed", "error", derr)
		fmt.Fprintf(os.Stderr, "convodb: %s: %v (crash dump failed: %v)\n", contextMsg, err, derr)
	} else {
		logger.Error("crash_dump_written", "path", path)
		fmt.Fprintf(os.Stderr, "convodb: %s: %v (crash dump: %s)\n", contextMsg, err, path)
	}
	if delay > 0 {
		logger.Info("exiting", "in_seconds", delay)
		time.Sleep(time.Duration(delay) * time.Second)
	}
	exit(2)
}

// WriteCrashDump writes a Dump as JSON into the crash dir and returns its
// path. The file appears atomically.
func WriteCrashDump(dbPath, reason string, err error) (string, error) {
	crashDir := "./crash"
	if dbPath != "" {
		crashDir = state.PathsFor(dbPath).Crash
	}
	if e := os.MkdirAll(crashDir, 0o700); e != nil {
		return "", fmt.Errorf("create crash dir: %w", e)
	}

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	d := Dump{
		Time:       time.Now().UTC(),
		Reason:     reason,
		PID:        os.Getpid(),
		Goroutines: runtime.NumGoroutine(),
		Stacks:     string(buf[:n]),
	}
	if err != nil {
		d.Error = err.Error()
	}
	if v, ok := version.Load().(string); ok {
		d.Version = v
	}
	b, merr := json.MarshalIndent(d, "", "  ")
	if merr != nil {
		return "", fmt.Errorf("encode crash dump: %w", merr)
	}

	f, ferr := os.CreateTemp(crashDir, ".crash-*.tmp")
	if ferr != nil {
		return "", fmt.Errorf("create temp crash file: %w", ferr)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()
	if _, werr := f.Write(b); werr != nil {
		_ = f.Close()
		return "", fmt.Errorf("write crash dump: %w", werr)
	}
	_ = f.Sync()
	_ = f.Close()

	path := filepath.Join(crashDir, fmt.Sprintf("crash-%d.json", d.Time.UnixNano()))
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("move crash dump into place: %w", err)
	}
	return path, nil
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM. A
// second signal exits immediately.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigc)
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String())
			cancel()
		case <-ctx.Done():
			return
		}
		select {
		case s := <-sigc:
			logger.Warn("signal_forced_exit", "signal", s.String())
			exit(1)
		case <-parent.Done():
		}
	}()

	return ctx, cancel
}
