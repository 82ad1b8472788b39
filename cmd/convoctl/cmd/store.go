package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"convodb/pkg/state"
	"convodb/pkg/store/db/storedb"
)

// openStore opens the pebble store under a convodb database directory.
func openStore(cmd *cobra.Command, readOnly bool) (*storedb.Store, error) {
	p, err := loadProfile(cmd)
	if err != nil {
		return nil, err
	}
	dir, err := dbPath(cmd, p)
	if err != nil {
		return nil, err
	}
	path := state.PathsFor(dir).Store
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no store at %s: %w", path, err)
	}
	return storedb.Open(path, storedb.Options{ReadOnly: readOnly})
}
