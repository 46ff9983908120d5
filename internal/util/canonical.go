package util

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalCanonical encodes v as deterministic JSON: struct fields in
// declaration order, map keys sorted, HTML escaping disabled. Suitable as
// input to content digests (fingerprints, audit hashes).
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal canonical: %w", err)
	}
	// Encoder appends a trailing newline; strip it.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
