// Package docstore is a versioned document store built on top of
// the kv package. Every database is one kv store holding document
// records, a sequence index, a deleted/local index, attachment
// blobs and a metadata record.
//
// Documents carry a revision tree instead of a single version.
// Writes merge an incoming lineage into the tree and the winning
// leaf becomes the queryable body. Every committed mutation of a
// non-local document is assigned a database-wide sequence number
// which orders the changes feed.
//
// Local documents (ids beginning with _local/) keep a single
// revision, are not sequenced and are physically removed on
// deletion.
package docstore
