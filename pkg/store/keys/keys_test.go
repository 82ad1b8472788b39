package keys

import (
	"bytes"
	"testing"
)

func TestDocKeyRoundTrip(t *testing.T) {
	k := GenDocKey("messages", "01HZX")
	if k != "c:messages:d:01HZX" {
		t.Fatalf("unexpected key %q", k)
	}
	coll, id, err := ParseDocKey(k)
	if err != nil {
		t.Fatalf("ParseDocKey: %v", err)
	}
	if coll != "messages" || id != "01HZX" {
		t.Fatalf("got (%q, %q)", coll, id)
	}
}

func TestParseDocKeyRejects(t *testing.T) {
	for _, k := range []string{"", "c:x", "c::d:1", "x:m:d:1", "c:m:d:"} {
		if _, _, err := ParseDocKey(k); err == nil {
			t.Errorf("expected error for %q", k)
		}
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("users"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateName("a:b"); err == nil {
		t.Fatalf("expected error for name with colon")
	}
	if err := ValidateName(""); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestPrefixUpperBound(t *testing.T) {
	p := []byte(GenDocPrefix("users"))
	end := PrefixUpperBound(p)
	if bytes.Compare(end, p) <= 0 {
		t.Fatalf("upper bound %q not above prefix %q", end, p)
	}
	if bytes.Compare([]byte(GenDocKey("users", "zzzz")), end) >= 0 {
		t.Fatalf("doc key not below upper bound")
	}
	if PrefixUpperBound([]byte{0xff, 0xff}) != nil {
		t.Fatalf("expected nil for all-0xff prefix")
	}
}
