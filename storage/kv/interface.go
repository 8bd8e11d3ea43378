package kv

import (
	"errors"

	"github.com/jrife/roost/storage/kv/keys"
)

var (
	// ErrClosed indicates that the root store was closed
	ErrClosed = errors.New("root store was closed")
	// ErrNoSuchStore indicates that the store doesn't exist. Either it hasn't been created or was deleted
	ErrNoSuchStore = errors.New("store does not exist")
	// ErrReadOnly indicates that a write was attempted in a read-only transaction
	ErrReadOnly = errors.New("transaction is read-only")
	// ErrEmptyKey indicates that a nil or empty key was passed to a map operation
	ErrEmptyKey = errors.New("key must not be empty")
)

// SortOrder describes the order in which an iterator
// visits keys
type SortOrder int

const (
	// SortOrderAsc visits keys in ascending lexicographical order
	SortOrderAsc SortOrder = iota
	// SortOrderDesc visits keys in descending lexicographical order
	SortOrderDesc
)

// PluginOptions is a generic structure to pass
// configuration to a plugin
type PluginOptions map[string]interface{}

// Plugin represents a kv storage plugin
type Plugin interface {
	// Name returns the name of the storage plugin
	Name() string
	// NewRootStore returns an instance of the plugin root store
	NewRootStore(options PluginOptions) (RootStore, error)
	// NewTempRootStore returns an instance of the plugin root store
	// initialized with some sane defaults. It is meant for
	// tests that need an initialized instance of the plugin's
	// store without knowing how to initialize it
	NewTempRootStore() (RootStore, error)
}

// RootStore is the parent store from which all stores are descended
type RootStore interface {
	// Delete closes then deletes this store and all its contents.
	// If the root store doesn't exist it should return nil and have
	// no effect.
	Delete() error
	// Close closes the store. Function calls to any I/O objects
	// descended from this store occurring after Close returns
	// must have no effect and return ErrClosed. Close must not
	// return until all concurrent I/O operations have concluded
	// and all transactions have either rolled back or committed.
	Close() error
	// Stores lists all the stores inside this root store by name. Results must
	// be in ascending lexicographical order. It must return
	// ErrClosed if its invocation starts after Close() returns.
	Stores() ([][]byte, error)
	// Store returns a handle for the store with this name. It does not
	// guarantee that this store exists yet and should not create the
	// store. It must not return nil.
	Store(name []byte) Store
}

// Store is a reference to a store. Transactions within
// a store are strictly serializable: a transaction that
// begins after another one commits observes its effects.
//
// Consumers should not rely on Begin(true) for mutual
// exclusion between their own writers and should order
// their own locks before calls to Begin().
//
// TL;DR Don't Do This (Possible Deadlock):
//   Thread A:
//     1) a.Lock()
//     2) s.Begin(true)
//   Thread B:
//     1) s.Begin(true)
//     2) a.Lock()
type Store interface {
	// Name returns the name of this store.
	Name() []byte
	// Create creates this store if it does not exist. It has no
	// effect if the store already exists. It must return ErrClosed
	// if its invocation starts after Close() on the root store returns
	Create() error
	// Delete deletes this store if it exists. It has no effect
	// if the store does not exist. It must return ErrClosed if
	// its invocation starts after Close() on the root store returns.
	Delete() error
	// Begin starts a transaction for this store. writable should be
	// true for read-write transactions and false for read-only transactions.
	// If Begin() is called after Close() on the root store returns it must
	// return ErrClosed. Otherwise if this store does not exist it must
	// return ErrNoSuchStore.
	Begin(writable bool) (Transaction, error)
}

// MapUpdater is an interface for updating a sorted
// key-value map
type MapUpdater interface {
	// Put puts a key. Put must return an error
	// if the key is nil or empty. Empty values are
	// allowed and a nil value is stored as an empty one.
	Put(key, value []byte) error
	// Delete deletes a key. It must return an error if the key
	// is nil or empty. If the key doesn't exist it has no effect
	// and returns nil.
	Delete(key []byte) error
}

// MapReader is an interface for reading a sorted
// key-value map
type MapReader interface {
	// Get gets a key. It must observe updates to that key made
	// previously by this transation. Get must return an error
	// if the key is nil or empty. It must return nil if the
	// requested key does not exist. The returned slice is only
	// valid until the transaction ends.
	Get(key []byte) ([]byte, error)
	// Keys creates an iterator that iterates over the range
	// of keys
	Keys(keys keys.Range, order SortOrder) (Iterator, error)
}

// Map combines MapReader and MapUpdater
type Map interface {
	MapUpdater
	MapReader
}

// Transaction is a transaction for a store. It must only be
// used by one goroutine at a time.
type Transaction interface {
	Map
	// OnCommit registers a function to be called after
	// the transaction commits successfully. Callbacks
	// run in the order they were registered.
	OnCommit(fn func())
	// Commit commits the transaction
	Commit() error
	// Rollback rolls back the transaction. Calling Rollback
	// after Commit has no effect on the stored data.
	Rollback() error
}

// Iterator iterates over a set of keys. It must only be
// used by one goroutine at a time. Consumers should not
// attempt to use an iterator once its parent transaction
// has been rolled back. Behavior is undefined in this case.
// The transaction must not mutate the store when the iterator
// is in use. This may cause inconsistent behavior.
type Iterator interface {
	// Next advances the iterator to the next key
	// A fresh iterator must call Next once to
	// advance to the first key. Next returns false
	// if there is no next key or if it encounters an
	// error.
	Next() bool
	// Key returns the current key
	Key() []byte
	// Value returns the current value
	Value() []byte
	// Error returns the error, if any.
	Error() error
}

// KV is a key-value pair
type KV [2][]byte

// Key returns the key
func (kv KV) Key() []byte {
	return kv[0]
}

// Value returns the value
func (kv KV) Value() []byte {
	return kv[1]
}
