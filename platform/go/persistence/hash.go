package persistence

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// computeJSONHash returns a SHA-256 hex digest of the canonical form of raw: object keys
// sorted, insignificant whitespace removed, number lexemes kept as written.
func computeJSONHash(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("payload is required to compute hash")
	}

	canonical, err := canonicalJSON(raw)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	// encoding/json writes map keys in sorted order.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode canonical json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// JSONChecksum exposes the canonical digest to stores that do not live in Postgres.
func JSONChecksum(raw []byte) (string, error) {
	return computeJSONHash(raw)
}
