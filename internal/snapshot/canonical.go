package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalJSON produces a deterministic encoding: map keys sorted, struct
// fields in declaration order, no insignificant whitespace, no HTML escaping.
func CanonicalJSON(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// PrettyJSON produces indented JSON for human review.
func PrettyJSON(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// ComputeSnapshotRev hashes the canonical encoding of s with snapshot_rev and
// generated_at cleared. Returns "sha256:<hex>".
func ComputeSnapshotRev(s *Snapshot) (string, error) {
	clean := *s
	clean.Meta.SnapshotRev = ""
	clean.Meta.GeneratedAt = ""
	data, err := CanonicalJSON(&clean)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:]), nil
}
