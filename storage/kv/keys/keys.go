package keys

import (
	"bytes"
	"encoding/binary"
)

// Uint64ToKey constructs a key from a uint64.
// Keys built this way sort in numeric order.
func Uint64ToKey(i uint64) []byte {
	k := make([]byte, 8)

	binary.BigEndian.PutUint64(k, i)

	return k
}

// KeyToUint64 decodes a key produced by Uint64ToKey
func KeyToUint64(k []byte) uint64 {
	if len(k) < 8 {
		return 0
	}

	return binary.BigEndian.Uint64(k[:8])
}

// Key is a single key
type Key []byte

// Compare compares two keys
// -1 means a < b
// 1 means a > b
// 0 means a = b
func Compare(a, b Key) int {
	return bytes.Compare(a, b)
}

// Inc returns the smallest key greater than every key
// that has key as a prefix. It returns nil if no such
// key exists. key is not modified.
func Inc(key Key) Key {
	return inc(key)
}

// Next returns the key directly after key
func Next(key Key) Key {
	return after(key)
}

// LengthPrefixed encodes k with a uvarint length prefix
// so that it can be safely concatenated with other keys
// without one key's bytes bleeding into another's range.
func LengthPrefixed(k []byte) []byte {
	var n [binary.MaxVarintLen64]byte

	l := binary.PutUvarint(n[:], uint64(len(k)))
	result := make([]byte, 0, l+len(k))
	result = append(result, n[:l]...)
	result = append(result, k...)

	return result
}

// SplitLengthPrefixed is the inverse of LengthPrefixed.
// It returns the decoded prefix and the remaining bytes.
// ok is false if k is malformed.
func SplitLengthPrefixed(k []byte) (prefix []byte, rest []byte, ok bool) {
	l, n := binary.Uvarint(k)

	if n <= 0 || uint64(len(k)-n) < l {
		return nil, nil, false
	}

	return k[n : n+int(l)], k[n+int(l):], true
}
