package blobstore

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint derives an invalidation token from content: the xxhash64 of
// data as 16 lowercase hex digits.
//
// Typical use is hashing the source a payload was computed from, so that
// any change to the source turns later lookups into misses.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// FingerprintString is [Fingerprint] for string content.
func FingerprintString(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}
