// Package hasher computes the content-addressed identity used for chunk
// and file identity throughout Ember. Identity is a function of bytes
// alone; callers must not mix path or line numbers into it.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Size is the digest length in bytes (256 bits).
const Size = sha256.Size

// Digest is a 256-bit content hash.
type Digest [Size]byte

// Hash computes the content hash of b. Deterministic and
// collision-resistant; the same algorithm is used for chunk identity
// and file identity.
func Hash(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// String returns the lowercase 64-character hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ShortString returns the first n hex characters, the permissible
// shorthand form (n must be >= 8 to be externally valid; callers doing
// prefix resolution enforce that separately).
func (d Digest) ShortString(n int) string {
	s := d.String()
	if n >= len(s) {
		return s
	}
	return s[:n]
}

// IsZero reports whether d is the zero digest (never a valid content
// hash, used as a sentinel for "no hash computed").
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Parse decodes a 64-character lowercase hex digest.
func Parse(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, err
	}
	if len(b) != Size {
		return d, errInvalidLength
	}
	copy(d[:], b)
	return d, nil
}

var errInvalidLength = errors.New("hasher: digest must be 32 bytes")
