package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Fingerprint is the stable identity of a chunk: the lowercase hex SHA-256
// of its source key, index and text.
type Fingerprint string

// NewFingerprint derives the fingerprint for a chunk. Equal inputs always
// produce equal fingerprints.
func NewFingerprint(sourceKey string, index int, text string) Fingerprint {
	h := sha256.New()
	h.Write([]byte(sourceKey))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(index)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// String returns the string representation.
func (f Fingerprint) String() string {
	return string(f)
}

// Short returns the first 12 hex characters, for logs and reports.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// SourceKey returns the key a source contributes to its chunk fingerprints.
// With separate namespaces a URL and a PDF that share a source ID never
// collide.
func SourceKey(origin Origin, sourceID string, shared bool) string {
	if shared {
		return sourceID
	}
	return string(origin) + ":" + sourceID
}
