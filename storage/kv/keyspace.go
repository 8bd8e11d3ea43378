package kv

import (
	"github.com/jrife/roost/storage/kv/keys"
)

// Drivers that keep every store inside a single flat sorted
// keyspace lay it out like this:
//
//   0x00 | store name                      -> "" (store exists)
//   0x01 | uvarint(len(name)) | name | key -> value
var (
	storeMarkerPrefix = []byte{0x00}
	storeDataPrefix   = []byte{0x01}
)

// StoreMarkerKey returns the key whose presence marks
// the store as created
func StoreMarkerKey(name []byte) []byte {
	return keys.All().Namespace(storeMarkerPrefix).Eq(name).Min
}

// StoreMarkers returns the range containing every store marker key
func StoreMarkers() keys.Range {
	return keys.All().Namespace(storeMarkerPrefix)
}

// StoreNameFromMarker extracts the store name from a marker key
func StoreNameFromMarker(key []byte) []byte {
	name := make([]byte, len(key)-len(storeMarkerPrefix))
	copy(name, key[len(storeMarkerPrefix):])

	return name
}

// StoreDataPrefix returns the prefix shared by all keys of
// the named store. Length prefixing keeps a store named "a"
// from seeing the keys of a store named "ab".
func StoreDataPrefix(name []byte) []byte {
	return append(append([]byte{}, storeDataPrefix...), keys.LengthPrefixed(name)...)
}
