package state

import (
	"fmt"
	"os"
	"path/filepath"
)

type Paths struct {
	DB    string
	Store string
	State string
	Crash string
	Tmp   string
}

var PathsVar Paths

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB:    dbPath,
		Store: filepath.Join(dbPath, "store"),
		State: statePath,
		Crash: filepath.Join(statePath, "crash"),
		Tmp:   filepath.Join(statePath, "tmp"),
	}
}

// Init resolves the runtime layout under dbPath and creates it.
func Init(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("db path is empty")
	}
	if err := EnsureStateDirs(dbPath); err != nil {
		return err
	}
	PathsVar = PathsFor(dbPath)
	return nil
}

// EnsureStateDirs creates the layout under dbPath. Existing entries must be
// real directories without group/other write bits.
func EnsureStateDirs(dbPath string) error {
	p := PathsFor(dbPath)
	for _, dir := range []string{p.Store, p.Crash, p.Tmp} {
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", dir)
			}
			if fi.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode (group/other write): %s", dir)
			}
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}

	probe := filepath.Join(p.Tmp, ".write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("state dir not writable: %w", err)
	}
	_ = os.Remove(probe)
	return nil
}
