package memory

import (
	"bytes"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/storage/kv/keys"
)

const (
	// DriverName is the name of this plugin
	DriverName = "memory"
)

// Plugins returns the plugins exposed by this driver
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&MemoryPlugin{},
	}
}

var _ kv.Plugin = (*MemoryPlugin)(nil)

// MemoryPlugin implements kv.Plugin with in-memory
// sorted maps. Nothing is persisted.
type MemoryPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *MemoryPlugin) Name() string {
	return DriverName
}

// NewRootStore implements kv.Plugin.NewRootStore
func (plugin *MemoryPlugin) NewRootStore(options kv.PluginOptions) (kv.RootStore, error) {
	return New(), nil
}

// NewTempRootStore implements kv.Plugin.NewTempRootStore
func (plugin *MemoryPlugin) NewTempRootStore() (kv.RootStore, error) {
	return New(), nil
}

func newMap() *treemap.Map {
	return treemap.NewWith(func(a, b interface{}) int {
		return bytes.Compare(a.([]byte), b.([]byte))
	})
}

// New creates an empty in-memory root store
func New() *MemoryRootStore {
	return &MemoryRootStore{stores: newMap()}
}

var _ kv.RootStore = (*MemoryRootStore)(nil)

// MemoryRootStore implements kv.RootStore. stores maps
// store names to *memoryStoreState.
type MemoryRootStore struct {
	mu        sync.Mutex
	stores    *treemap.Map
	lifecycle kv.Lifecycle
}

// memoryStoreState holds the committed contents of a
// store. Committed maps are never modified: a write
// transaction works on a copy and swaps it in on commit.
type memoryStoreState struct {
	writer sync.Mutex
	mu     sync.RWMutex
	data   *treemap.Map
}

func (state *memoryStoreState) snapshot() *treemap.Map {
	state.mu.RLock()
	defer state.mu.RUnlock()

	return state.data
}

func (state *memoryStoreState) swap(data *treemap.Map) {
	state.mu.Lock()
	defer state.mu.Unlock()

	state.data = data
}

func (rootStore *MemoryRootStore) state(name []byte) *memoryStoreState {
	rootStore.mu.Lock()
	defer rootStore.mu.Unlock()

	state, ok := rootStore.stores.Get(name)

	if !ok {
		return nil
	}

	return state.(*memoryStoreState)
}

// Close implements kv.RootStore.Close
func (rootStore *MemoryRootStore) Close() error {
	return rootStore.lifecycle.Close(func() error { return nil })
}

// Delete implements kv.RootStore.Delete
func (rootStore *MemoryRootStore) Delete() error {
	if err := rootStore.Close(); err != nil {
		return err
	}

	rootStore.mu.Lock()
	defer rootStore.mu.Unlock()

	rootStore.stores.Clear()

	return nil
}

// Stores implements kv.RootStore.Stores
func (rootStore *MemoryRootStore) Stores() ([][]byte, error) {
	if err := rootStore.lifecycle.Acquire(); err != nil {
		return nil, err
	}

	defer rootStore.lifecycle.Release()

	rootStore.mu.Lock()
	defer rootStore.mu.Unlock()

	var stores [][]byte = [][]byte{}

	for _, name := range rootStore.stores.Keys() {
		stores = append(stores, append([]byte{}, name.([]byte)...))
	}

	return stores, nil
}

// Store implements kv.RootStore.Store
func (rootStore *MemoryRootStore) Store(name []byte) kv.Store {
	return &MemoryStore{rootStore: rootStore, name: name}
}

var _ kv.Store = (*MemoryStore)(nil)

// MemoryStore implements kv.Store
type MemoryStore struct {
	rootStore *MemoryRootStore
	name      []byte
}

// Name implements kv.Store.Name
func (store *MemoryStore) Name() []byte {
	return store.name
}

// Create implements kv.Store.Create
func (store *MemoryStore) Create() error {
	if err := store.rootStore.lifecycle.Acquire(); err != nil {
		return err
	}

	defer store.rootStore.lifecycle.Release()

	store.rootStore.mu.Lock()
	defer store.rootStore.mu.Unlock()

	if _, ok := store.rootStore.stores.Get(store.name); !ok {
		store.rootStore.stores.Put(append([]byte{}, store.name...), &memoryStoreState{data: newMap()})
	}

	return nil
}

// Delete implements kv.Store.Delete
func (store *MemoryStore) Delete() error {
	if err := store.rootStore.lifecycle.Acquire(); err != nil {
		return err
	}

	defer store.rootStore.lifecycle.Release()

	store.rootStore.mu.Lock()
	defer store.rootStore.mu.Unlock()

	store.rootStore.stores.Remove(store.name)

	return nil
}

// Begin implements kv.Store.Begin
func (store *MemoryStore) Begin(writable bool) (kv.Transaction, error) {
	if err := store.rootStore.lifecycle.Acquire(); err != nil {
		return nil, err
	}

	state := store.rootStore.state(store.name)

	if state == nil {
		store.rootStore.lifecycle.Release()

		return nil, kv.ErrNoSuchStore
	}

	if !writable {
		return &MemoryTransaction{data: state.snapshot(), release: store.rootStore.lifecycle.Release}, nil
	}

	state.writer.Lock()

	data := newMap()
	iter := state.snapshot().Iterator()

	for iter.Next() {
		data.Put(iter.Key(), iter.Value())
	}

	return &MemoryTransaction{data: data, state: state, release: store.rootStore.lifecycle.Release}, nil
}

var _ kv.Transaction = (*MemoryTransaction)(nil)

// MemoryTransaction implements kv.Transaction
type MemoryTransaction struct {
	data    *treemap.Map
	state   *memoryStoreState
	hooks   kv.CommitHooks
	release func()
	done    bool
}

// Put implements kv.Transaction.Put
func (txn *MemoryTransaction) Put(key, value []byte) error {
	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	if txn.state == nil {
		return kv.ErrReadOnly
	}

	txn.data.Put(append([]byte{}, key...), append([]byte{}, value...))

	return nil
}

// Delete implements kv.Transaction.Delete
func (txn *MemoryTransaction) Delete(key []byte) error {
	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	if txn.state == nil {
		return kv.ErrReadOnly
	}

	txn.data.Remove(key)

	return nil
}

// Get implements kv.Transaction.Get
func (txn *MemoryTransaction) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, kv.ErrEmptyKey
	}

	v, ok := txn.data.Get(key)

	if !ok {
		return nil, nil
	}

	return v.([]byte), nil
}

// Keys implements kv.Transaction.Keys
func (txn *MemoryTransaction) Keys(keys keys.Range, order kv.SortOrder) (kv.Iterator, error) {
	iter := txn.data.Iterator()

	if order == kv.SortOrderDesc {
		iter.End()
	} else {
		iter.Begin()
	}

	return &MemoryIterator{iter: iter, keys: keys, order: order}, nil
}

// OnCommit implements kv.Transaction.OnCommit
func (txn *MemoryTransaction) OnCommit(fn func()) {
	txn.hooks.Add(fn)
}

// Commit implements kv.Transaction.Commit
func (txn *MemoryTransaction) Commit() error {
	if txn.done {
		return kv.ErrClosed
	}

	if txn.state != nil {
		txn.state.swap(txn.data)
	}

	txn.finish()
	txn.hooks.Run()

	return nil
}

// Rollback implements kv.Transaction.Rollback
func (txn *MemoryTransaction) Rollback() error {
	if txn.done {
		return nil
	}

	txn.hooks.Reset()
	txn.finish()

	return nil
}

func (txn *MemoryTransaction) finish() {
	txn.done = true

	if txn.state != nil {
		txn.state.writer.Unlock()
	}

	txn.release()
}

var _ kv.Iterator = (*MemoryIterator)(nil)

// MemoryIterator is the iterator implementation for MemoryTransaction
type MemoryIterator struct {
	iter  treemap.Iterator
	keys  keys.Range
	order kv.SortOrder
	done  bool
}

// Next implements kv.Iterator.Next
func (iter *MemoryIterator) Next() bool {
	if iter.done {
		return false
	}

	hasMore := false

	if iter.order == kv.SortOrderDesc {
		for hasMore = iter.iter.Prev(); hasMore && (iter.keys.Max != nil && keys.Compare(iter.iter.Key().([]byte), iter.keys.Max) >= 0); hasMore = iter.iter.Prev() {
		}
	} else {
		for hasMore = iter.iter.Next(); hasMore && (iter.keys.Min != nil && keys.Compare(iter.iter.Key().([]byte), iter.keys.Min) < 0); hasMore = iter.iter.Next() {
		}
	}

	if !hasMore || !iter.keys.Contains(iter.iter.Key().([]byte)) {
		iter.done = true

		return false
	}

	return true
}

// Key implements kv.Iterator.Key
func (iter *MemoryIterator) Key() []byte {
	if iter.done {
		return nil
	}

	return iter.iter.Key().([]byte)
}

// Value implements kv.Iterator.Value
func (iter *MemoryIterator) Value() []byte {
	if iter.done {
		return nil
	}

	return iter.iter.Value().([]byte)
}

// Error implements kv.Iterator.Error
func (iter *MemoryIterator) Error() error {
	return nil
}
