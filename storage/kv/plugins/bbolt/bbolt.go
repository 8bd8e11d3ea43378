package bbolt

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/storage/kv/keys"
	"github.com/jrife/roost/utils/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// DriverName is the name of this plugin
	DriverName = "bbolt"
	// a write that has to grow the mmap waits for all read
	// transactions to finish
	initialMmapSize = 1 << 26
)

// Plugins returns the plugins exposed by this driver
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&BBoltPlugin{},
	}
}

var _ kv.Plugin = (*BBoltPlugin)(nil)

// BBoltPlugin implements kv.Plugin on top of bbolt.
// Each store is a top-level bucket.
type BBoltPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *BBoltPlugin) Name() string {
	return DriverName
}

// NewRootStore implements kv.Plugin.NewRootStore
func (plugin *BBoltPlugin) NewRootStore(options kv.PluginOptions) (kv.RootStore, error) {
	var config BBoltRootStoreConfig

	if path, ok := options["path"]; !ok {
		return nil, fmt.Errorf("\"path\" is required")
	} else if pathString, ok := path.(string); !ok {
		return nil, fmt.Errorf("\"path\" must be a string")
	} else {
		config.Path = pathString
	}

	if noSync, ok := options["no_sync"]; ok {
		if noSyncBool, ok := noSync.(bool); !ok {
			return nil, fmt.Errorf("\"no_sync\" must be a bool")
		} else {
			config.NoSync = noSyncBool
		}
	}

	rootStore, err := New(config)

	if err != nil {
		return nil, err
	}

	return rootStore, nil
}

// NewTempRootStore implements kv.Plugin.NewTempRootStore
func (plugin *BBoltPlugin) NewTempRootStore() (kv.RootStore, error) {
	return plugin.NewRootStore(kv.PluginOptions{
		"path":    fmt.Sprintf("/tmp/bbolt-%s", uuid.MustUUID()),
		"no_sync": true,
	})
}

// BBoltRootStoreConfig configures a bbolt root store
type BBoltRootStoreConfig struct {
	Path   string
	NoSync bool
}

// New opens the bbolt database at config.Path
func New(config BBoltRootStoreConfig) (*BBoltRootStore, error) {
	db, err := bolt.Open(config.Path, 0666, &bolt.Options{
		Timeout:         time.Second,
		NoSync:          config.NoSync,
		InitialMmapSize: initialMmapSize,
	})

	if err != nil {
		return nil, fmt.Errorf("could not open bbolt store at %s: %s", config.Path, err)
	}

	return &BBoltRootStore{db: db, path: config.Path}, nil
}

var _ kv.RootStore = (*BBoltRootStore)(nil)

// BBoltRootStore implements kv.RootStore
type BBoltRootStore struct {
	db   *bolt.DB
	path string
}

// Close implements kv.RootStore.Close
func (rootStore *BBoltRootStore) Close() error {
	return rootStore.db.Close()
}

// Delete implements kv.RootStore.Delete
func (rootStore *BBoltRootStore) Delete() error {
	path := rootStore.path

	if err := rootStore.Close(); err != nil {
		return fmt.Errorf("could not close store: %s", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("could not remove path %s: %s", path, err)
	}

	return nil
}

// Stores implements kv.RootStore.Stores
func (rootStore *BBoltRootStore) Stores() ([][]byte, error) {
	var stores [][]byte = [][]byte{}

	err := rootStore.db.View(func(txn *bolt.Tx) error {
		return txn.ForEach(func(name []byte, _ *bolt.Bucket) error {
			stores = append(stores, append([]byte{}, name...))

			return nil
		})
	})

	if err != nil {
		return nil, wrapError(err)
	}

	return stores, nil
}

// Store implements kv.RootStore.Store
func (rootStore *BBoltRootStore) Store(name []byte) kv.Store {
	return &BBoltStore{db: rootStore.db, name: name}
}

var _ kv.Store = (*BBoltStore)(nil)

// BBoltStore implements kv.Store
type BBoltStore struct {
	db   *bolt.DB
	name []byte
}

// Name implements kv.Store.Name
func (store *BBoltStore) Name() []byte {
	return store.name
}

// Create implements kv.Store.Create
func (store *BBoltStore) Create() error {
	return wrapError(store.db.Update(func(txn *bolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists(store.name)

		return err
	}))
}

// Delete implements kv.Store.Delete
func (store *BBoltStore) Delete() error {
	return wrapError(store.db.Update(func(txn *bolt.Tx) error {
		err := txn.DeleteBucket(store.name)

		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}

		return err
	}))
}

// Begin implements kv.Store.Begin
func (store *BBoltStore) Begin(writable bool) (kv.Transaction, error) {
	transaction, err := store.db.Begin(writable)

	if err != nil {
		return nil, wrapError(err)
	}

	bucket := transaction.Bucket(store.name)

	if bucket == nil {
		transaction.Rollback()

		return nil, kv.ErrNoSuchStore
	}

	return &BBoltTransaction{transaction: transaction, bucket: bucket}, nil
}

var _ kv.Transaction = (*BBoltTransaction)(nil)

// BBoltTransaction implements kv.Transaction
type BBoltTransaction struct {
	transaction *bolt.Tx
	bucket      *bolt.Bucket
}

// Get implements kv.Transaction.Get
func (transaction *BBoltTransaction) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, kv.ErrEmptyKey
	}

	return transaction.bucket.Get(key), nil
}

// Put implements kv.Transaction.Put
func (transaction *BBoltTransaction) Put(key, value []byte) error {
	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	if value == nil {
		value = []byte{}
	}

	return wrapError(transaction.bucket.Put(key, value))
}

// Delete implements kv.Transaction.Delete
func (transaction *BBoltTransaction) Delete(key []byte) error {
	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	return wrapError(transaction.bucket.Delete(key))
}

// Keys implements kv.Transaction.Keys
func (transaction *BBoltTransaction) Keys(keys keys.Range, order kv.SortOrder) (kv.Iterator, error) {
	return &BBoltIterator{cursor: transaction.bucket.Cursor(), keys: keys, order: order}, nil
}

// OnCommit implements kv.Transaction.OnCommit
func (transaction *BBoltTransaction) OnCommit(fn func()) {
	transaction.transaction.OnCommit(fn)
}

// Commit implements kv.Transaction.Commit
func (transaction *BBoltTransaction) Commit() error {
	if !transaction.transaction.Writable() {
		return transaction.Rollback()
	}

	return wrapError(transaction.transaction.Commit())
}

// Rollback implements kv.Transaction.Rollback
func (transaction *BBoltTransaction) Rollback() error {
	err := transaction.transaction.Rollback()

	if errors.Is(err, bolt.ErrTxClosed) {
		return nil
	}

	return wrapError(err)
}

var _ kv.Iterator = (*BBoltIterator)(nil)

// BBoltIterator implements kv.Iterator with a bucket cursor
type BBoltIterator struct {
	cursor  *bolt.Cursor
	keys    keys.Range
	order   kv.SortOrder
	started bool
	done    bool
	key     []byte
	value   []byte
}

// Next implements kv.Iterator.Next
func (iter *BBoltIterator) Next() bool {
	if iter.done {
		return false
	}

	var k, v []byte

	if !iter.started {
		iter.started = true
		k, v = iter.first()
	} else if iter.order == kv.SortOrderDesc {
		k, v = iter.cursor.Prev()
	} else {
		k, v = iter.cursor.Next()
	}

	if k == nil || !iter.keys.Contains(k) {
		iter.done = true
		iter.key = nil
		iter.value = nil

		return false
	}

	iter.key = k
	iter.value = v

	return true
}

func (iter *BBoltIterator) first() ([]byte, []byte) {
	if iter.order != kv.SortOrderDesc {
		if iter.keys.Min == nil {
			return iter.cursor.First()
		}

		return iter.cursor.Seek(iter.keys.Min)
	}

	if iter.keys.Max == nil {
		return iter.cursor.Last()
	}

	// Seek lands on the first key >= Max. Max is exclusive
	// so the starting point is the key before that.
	k, _ := iter.cursor.Seek(iter.keys.Max)

	if k == nil {
		return iter.cursor.Last()
	}

	return iter.cursor.Prev()
}

// Key implements kv.Iterator.Key
func (iter *BBoltIterator) Key() []byte {
	return iter.key
}

// Value implements kv.Iterator.Value
func (iter *BBoltIterator) Value() []byte {
	return iter.value
}

// Error implements kv.Iterator.Error
func (iter *BBoltIterator) Error() error {
	return nil
}

func wrapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bolt.ErrDatabaseNotOpen):
		return kv.ErrClosed
	case errors.Is(err, bolt.ErrTxNotWritable):
		return kv.ErrReadOnly
	}

	return err
}
