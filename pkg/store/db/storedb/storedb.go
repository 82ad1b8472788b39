package storedb

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"convodb/pkg/state/logger"
	"convodb/pkg/store/keys"
)

type Options struct {
	// Sync fsyncs the WAL on every write.
	Sync bool
	// CacheSize is the block cache in bytes; 0 keeps the pebble default.
	CacheSize int64
	// InMemory backs the store with a memory filesystem.
	InMemory bool
	ReadOnly bool
}

// Store is a pebble database holding collection documents.
type Store struct {
	db    *pebble.DB
	path  string
	sync  bool
	cache *pebble.Cache
}

func Open(path string, opts Options) (*Store, error) {
	po := &pebble.Options{ReadOnly: opts.ReadOnly}
	if opts.InMemory {
		po.FS = vfs.NewMem()
		path = ""
	}
	var cache *pebble.Cache
	if opts.CacheSize > 0 {
		cache = pebble.NewCache(opts.CacheSize)
		po.Cache = cache
	}
	db, err := pebble.Open(path, po)
	if cache != nil {
		// pebble holds its own reference once opened
		cache.Unref()
	}
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path, "in_memory", opts.InMemory, "read_only", opts.ReadOnly, "sync", opts.Sync)
	return &Store{db: db, path: path, sync: opts.Sync}, nil
}

// OpenInMemory opens a throwaway store.
func OpenInMemory() (*Store, error) {
	return Open("", Options{InMemory: true})
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Flush(); err != nil {
		logger.Warn("pebble_flush_failed", "error", err)
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) Ready() bool {
	return s != nil && s.db != nil
}

func (s *Store) Path() string { return s.path }

func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

func (s *Store) WriteOpt() *pebble.WriteOptions {
	if s.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (s *Store) GetKey(key string) ([]byte, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("pebble not opened")
	}
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if !IsNotFound(err) {
			logger.Error("get_key_failed", "key", key, "error", err)
		}
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) SaveKey(key string, value []byte) error {
	if !s.Ready() {
		return fmt.Errorf("pebble not opened")
	}
	if err := s.db.Set([]byte(key), value, s.WriteOpt()); err != nil {
		logger.Error("save_key_failed", "key", key, "error", err)
		return err
	}
	logger.Debug("save_key_ok", "key", key, "len", len(value))
	return nil
}

func (s *Store) DeleteKey(key string) error {
	if !s.Ready() {
		return fmt.Errorf("pebble not opened")
	}
	if err := s.db.Delete([]byte(key), s.WriteOpt()); err != nil {
		logger.Error("delete_key_failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Batch groups writes that commit together.
type Batch struct {
	s *Store
	b *pebble.Batch
	n int
}

func (s *Store) NewBatch() *Batch {
	return &Batch{s: s, b: s.db.NewBatch()}
}

func (b *Batch) Set(key string, value []byte) error {
	b.n++
	return b.b.Set([]byte(key), value, nil)
}

func (b *Batch) Delete(key string) error {
	b.n++
	return b.b.Delete([]byte(key), nil)
}

func (b *Batch) Len() int { return b.n }

// Commit applies the batch and releases it.
func (b *Batch) Commit() error {
	defer b.b.Close()
	if b.n == 0 {
		return nil
	}
	if err := b.b.Commit(b.s.WriteOpt()); err != nil {
		logger.Error("batch_commit_failed", "ops", b.n, "error", err)
		return err
	}
	return nil
}

// Discard drops the batch without writing.
func (b *Batch) Discard() { _ = b.b.Close() }

// ScanPrefix calls fn for every key under prefix in order. fn must copy any
// bytes it keeps.
func (s *Store) ScanPrefix(prefix string, fn func(key, value []byte) error) error {
	if !s.Ready() {
		return fmt.Errorf("pebble not opened")
	}
	lower := []byte(prefix)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: keys.PrefixUpperBound(lower)})
	if err != nil {
		return err
	}
	defer it.Close()
	for valid := it.First(); valid; valid = it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

// DiskUsage reports the bytes pebble holds on disk.
func (s *Store) DiskUsage() uint64 {
	if !s.Ready() {
		return 0
	}
	return s.db.Metrics().DiskSpaceUsage()
}
