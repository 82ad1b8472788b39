package keys

import (
	"fmt"
	"strings"
)

const (
	// notation dictionary for key formats:
	// c   = collection
	// d   = document
	// sys = system
	// segments are separated by ":"
	// <...> = variable segment

	DocKey    = "c:%s:d:%s" // c:<collection>:d:<doc_id>
	DocPrefix = "c:%s:d:"   // c:<collection>:d:

	SystemVersionKey = "sys:version"
	SystemLastSweep  = "sys:presence:last_sweep"
)

func GenDocKey(collection, id string) string {
	return fmt.Sprintf(DocKey, collection, id)
}

func GenDocPrefix(collection string) string {
	return fmt.Sprintf(DocPrefix, collection)
}

// ParseDocKey splits a document key into collection and id.
func ParseDocKey(key string) (collection, id string, err error) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 || parts[0] != "c" || parts[2] != "d" || parts[1] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("invalid document key: %q", key)
	}
	return parts[1], parts[3], nil
}

// ValidateName rejects collection names that would break key parsing.
func ValidateName(collection string) error {
	if collection == "" {
		return fmt.Errorf("collection name is empty")
	}
	if strings.Contains(collection, ":") {
		return fmt.Errorf("collection name %q must not contain ':'", collection)
	}
	return nil
}

// PrefixUpperBound returns the smallest key strictly greater than every key
// starting with prefix.
func PrefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
