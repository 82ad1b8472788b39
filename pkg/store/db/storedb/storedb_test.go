package storedb

import (
	"testing"
)

func TestSaveGetDelete(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.SaveKey("c:users:d:1", []byte(`{"_id":"1"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	v, err := s.GetKey("c:users:d:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != `{"_id":"1"}` {
		t.Fatalf("unexpected value %q", v)
	}
	if err := s.DeleteKey("c:users:d:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetKey("c:users:d:1"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBatchAndScanPrefix(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	b := s.NewBatch()
	for _, k := range []string{"c:a:d:1", "c:a:d:2", "c:b:d:1"} {
		if err := b.Set(k, []byte(k)); err != nil {
			t.Fatalf("batch set: %v", err)
		}
	}
	if b.Len() != 3 {
		t.Fatalf("expected 3 ops, got %d", b.Len())
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var got []string
	err = s.ScanPrefix("c:a:d:", func(k, _ []byte) error {
		got = append(got, string(k))
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 || got[0] != "c:a:d:1" || got[1] != "c:a:d:2" {
		t.Fatalf("unexpected scan result %v", got)
	}
}

func TestClosedStoreErrors(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.Ready() {
		t.Fatalf("closed store reports ready")
	}
	if err := s.SaveKey("k", nil); err == nil {
		t.Fatalf("expected error on closed store")
	}
}
