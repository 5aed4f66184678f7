// Package hash computes content hashes of program trees. The hash keys
// the compiled-unit cache: two YAML files that decode to the same tree,
// positions included, share one cache entry.
package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/tutor/compiler"
)

// HashUnit computes the SHA-256 content hash of a program tree.
//
// The hash is computed over a deterministic serialization of every node,
// including source positions, so a cached image reports faults at the
// right place.
func HashUnit(u *compiler.Unit) [32]byte {
	return sha256.Sum256(Serialize(u))
}

// Key renders the hash of u as a cache key.
func Key(u *compiler.Unit) string {
	sum := HashUnit(u)
	return hex.EncodeToString(sum[:])
}
