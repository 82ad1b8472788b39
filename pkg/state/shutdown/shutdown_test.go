package shutdown

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"convodb/pkg/state"
)

func TestWriteCrashDump(t *testing.T) {
	dir := t.TempDir()
	SetVersion("v1.2.3")

	path, err := WriteCrashDump(dir, "open store", errors.New("lock held"))
	require.NoError(t, err)
	require.Equal(t, state.PathsFor(dir).Crash, filepath.Dir(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var d Dump
	require.NoError(t, json.Unmarshal(b, &d))
	require.Equal(t, "open store", d.Reason)
	require.Equal(t, "lock held", d.Error)
	require.Equal(t, "v1.2.3", d.Version)
	require.Equal(t, os.Getpid(), d.PID)
	require.True(t, strings.Contains(d.Stacks, "goroutine"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not linger")
}

func TestAbortExitsWithStatus2(t *testing.T) {
	var code int
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = os.Exit })

	Abort("boom", errors.New("x"), t.TempDir(), 0)
	require.Equal(t, 2, code)
}
