package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainEvidence versions the evidence hash so the algorithm can migrate.
const DomainEvidence = "dampen/evidence/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EvidenceHash computes the content hash of an evaluation trail for key.
// The same trail for the same key always yields the same hash, which lets a
// replayed run be compared against a recorded one.
func EvidenceHash(key Key, evidence []EvalSet) (string, error) {
	sets := make([]any, len(evidence))
	for i, set := range evidence {
		sets[i] = set
	}
	canonical, err := MarshalCanonical(map[string]any{
		"key":      key.String(),
		"evidence": sets,
	})
	if err != nil {
		return "", fmt.Errorf("EvidenceHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvidence, canonical), nil
}
