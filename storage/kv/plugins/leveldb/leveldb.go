package leveldb

import (
	"errors"
	"fmt"
	"os"

	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/storage/kv/keys"
	"github.com/jrife/roost/utils/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	// DriverName is the name of this plugin
	DriverName = "leveldb"
)

// Plugins returns the plugins exposed by this driver
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&LevelDBPlugin{},
	}
}

var _ kv.Plugin = (*LevelDBPlugin)(nil)

// LevelDBPlugin implements kv.Plugin on top of goleveldb.
// All stores share one leveldb keyspace.
type LevelDBPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *LevelDBPlugin) Name() string {
	return DriverName
}

// NewRootStore implements kv.Plugin.NewRootStore
func (plugin *LevelDBPlugin) NewRootStore(options kv.PluginOptions) (kv.RootStore, error) {
	var config LevelDBRootStoreConfig

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

	return New(config)
}

// NewTempRootStore implements kv.Plugin.NewTempRootStore
func (plugin *LevelDBPlugin) NewTempRootStore() (kv.RootStore, error) {
	return plugin.NewRootStore(kv.PluginOptions{
		"path":    fmt.Sprintf("/tmp/leveldb-%s", uuid.MustUUID()),
		"no_sync": true,
	})
}

// LevelDBRootStoreConfig configures a leveldb root store
type LevelDBRootStoreConfig struct {
	Path   string
	NoSync bool
}

// New opens the leveldb database in the directory config.Path
func New(config LevelDBRootStoreConfig) (*LevelDBRootStore, error) {
	db, err := leveldb.OpenFile(config.Path, &opt.Options{NoSync: config.NoSync})

	if err != nil {
		return nil, fmt.Errorf("could not open leveldb store at %s: %s", config.Path, err)
	}

	return &LevelDBRootStore{db: db, path: config.Path}, nil
}

var _ kv.RootStore = (*LevelDBRootStore)(nil)

// LevelDBRootStore implements kv.RootStore
type LevelDBRootStore struct {
	db        *leveldb.DB
	path      string
	lifecycle kv.Lifecycle
}

// Close implements kv.RootStore.Close
func (rootStore *LevelDBRootStore) Close() error {
	return rootStore.lifecycle.Close(rootStore.db.Close)
}

// Delete implements kv.RootStore.Delete
func (rootStore *LevelDBRootStore) Delete() error {
	if err := rootStore.Close(); err != nil {
		return fmt.Errorf("could not close store: %s", err)
	}

	if err := os.RemoveAll(rootStore.path); err != nil {
		return fmt.Errorf("could not remove path %s: %s", rootStore.path, err)
	}

	return nil
}

// Stores implements kv.RootStore.Stores
func (rootStore *LevelDBRootStore) Stores() ([][]byte, error) {
	if err := rootStore.lifecycle.Acquire(); err != nil {
		return nil, err
	}

	defer rootStore.lifecycle.Release()

	markers := kv.StoreMarkers()
	iter := rootStore.db.NewIterator(&util.Range{Start: markers.Min, Limit: markers.Max}, nil)
	defer iter.Release()

	var stores [][]byte = [][]byte{}

	for iter.Next() {
		stores = append(stores, kv.StoreNameFromMarker(iter.Key()))
	}

	return stores, iter.Error()
}

// Store implements kv.RootStore.Store
func (rootStore *LevelDBRootStore) Store(name []byte) kv.Store {
	return &LevelDBStore{rootStore: rootStore, name: name}
}

var _ kv.Store = (*LevelDBStore)(nil)

// LevelDBStore implements kv.Store
type LevelDBStore struct {
	rootStore *LevelDBRootStore
	name      []byte
}

// Name implements kv.Store.Name
func (store *LevelDBStore) Name() []byte {
	return store.name
}

// Create implements kv.Store.Create
func (store *LevelDBStore) Create() error {
	if err := store.rootStore.lifecycle.Acquire(); err != nil {
		return err
	}

	defer store.rootStore.lifecycle.Release()

	return store.rootStore.db.Put(kv.StoreMarkerKey(store.name), []byte{}, nil)
}

// Delete implements kv.Store.Delete
func (store *LevelDBStore) Delete() error {
	if err := store.rootStore.lifecycle.Acquire(); err != nil {
		return err
	}

	defer store.rootStore.lifecycle.Release()

	transaction, err := store.rootStore.db.OpenTransaction()

	if err != nil {
		return err
	}

	iter := transaction.NewIterator(util.BytesPrefix(kv.StoreDataPrefix(store.name)), nil)

	for iter.Next() {
		if err := transaction.Delete(iter.Key(), nil); err != nil {
			iter.Release()
			transaction.Discard()

			return err
		}
	}

	iter.Release()

	if err := iter.Error(); err != nil {
		transaction.Discard()

		return err
	}

	if err := transaction.Delete(kv.StoreMarkerKey(store.name), nil); err != nil {
		transaction.Discard()

		return err
	}

	return transaction.Commit()
}

// Begin implements kv.Store.Begin
func (store *LevelDBStore) Begin(writable bool) (kv.Transaction, error) {
	if err := store.rootStore.lifecycle.Acquire(); err != nil {
		return nil, err
	}

	txn := &levelTxn{release: store.rootStore.lifecycle.Release}

	if writable {
		transaction, err := store.rootStore.db.OpenTransaction()

		if err != nil {
			txn.finish()

			return nil, err
		}

		txn.reader = transaction
		txn.transaction = transaction
	} else {
		snapshot, err := store.rootStore.db.GetSnapshot()

		if err != nil {
			txn.finish()

			return nil, err
		}

		txn.reader = snapshot
		txn.snapshot = snapshot
	}

	if ok, err := txn.reader.Has(kv.StoreMarkerKey(store.name), nil); err != nil || !ok {
		txn.Rollback()

		if err != nil {
			return nil, err
		}

		return nil, kv.ErrNoSuchStore
	}

	return kv.Namespace(txn, kv.StoreDataPrefix(store.name)), nil
}

// reader is the read surface shared by leveldb
// transactions and snapshots
type reader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Has(key []byte, ro *opt.ReadOptions) (bool, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

var _ kv.Transaction = (*levelTxn)(nil)

// levelTxn operates on the raw leveldb keyspace. Stores
// see it through kv.Namespace. Writable transactions wrap
// a leveldb.Transaction. Read-only ones wrap a snapshot.
type levelTxn struct {
	reader      reader
	transaction *leveldb.Transaction
	snapshot    *leveldb.Snapshot
	iters       []iterator.Iterator
	hooks       kv.CommitHooks
	release     func()
	done        bool
}

func (txn *levelTxn) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, kv.ErrEmptyKey
	}

	value, err := txn.reader.Get(key, nil)

	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}

	return value, err
}

func (txn *levelTxn) Put(key, value []byte) error {
	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	if txn.transaction == nil {
		return kv.ErrReadOnly
	}

	if value == nil {
		value = []byte{}
	}

	return txn.transaction.Put(key, value, nil)
}

func (txn *levelTxn) Delete(key []byte) error {
	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	if txn.transaction == nil {
		return kv.ErrReadOnly
	}

	return txn.transaction.Delete(key, nil)
}

func (txn *levelTxn) Keys(keys keys.Range, order kv.SortOrder) (kv.Iterator, error) {
	iter := txn.reader.NewIterator(&util.Range{Start: keys.Min, Limit: keys.Max}, nil)
	txn.iters = append(txn.iters, iter)

	return &levelIterator{iter: iter, order: order}, nil
}

func (txn *levelTxn) OnCommit(fn func()) {
	txn.hooks.Add(fn)
}

func (txn *levelTxn) Commit() error {
	if txn.done {
		return leveldb.ErrClosed
	}

	if txn.transaction == nil {
		return txn.Rollback()
	}

	txn.releaseIterators()

	if err := txn.transaction.Commit(); err != nil {
		txn.hooks.Reset()
		txn.transaction.Discard()
		txn.finish()

		return err
	}

	txn.finish()
	txn.hooks.Run()

	return nil
}

func (txn *levelTxn) Rollback() error {
	if txn.done {
		return nil
	}

	txn.releaseIterators()
	txn.hooks.Reset()

	if txn.transaction != nil {
		txn.transaction.Discard()
	}

	if txn.snapshot != nil {
		txn.snapshot.Release()
	}

	txn.finish()

	return nil
}

func (txn *levelTxn) releaseIterators() {
	for _, iter := range txn.iters {
		iter.Release()
	}

	txn.iters = nil
}

func (txn *levelTxn) finish() {
	txn.done = true

	if txn.release != nil {
		txn.release()
	}
}

var _ kv.Iterator = (*levelIterator)(nil)

// levelIterator adapts a leveldb iterator. leveldb reuses
// its key and value buffers so both are copied.
type levelIterator struct {
	iter    iterator.Iterator
	order   kv.SortOrder
	started bool
	key     []byte
	value   []byte
}

func (iter *levelIterator) Next() bool {
	var ok bool

	switch {
	case !iter.started && iter.order == kv.SortOrderDesc:
		ok = iter.iter.Last()
	case !iter.started:
		ok = iter.iter.First()
	case iter.order == kv.SortOrderDesc:
		ok = iter.iter.Prev()
	default:
		ok = iter.iter.Next()
	}

	iter.started = true

	if !ok {
		iter.key = nil
		iter.value = nil

		return false
	}

	iter.key = append([]byte{}, iter.iter.Key()...)
	iter.value = append([]byte{}, iter.iter.Value()...)

	return true
}

func (iter *levelIterator) Key() []byte {
	return iter.key
}

func (iter *levelIterator) Value() []byte {
	return iter.value
}

func (iter *levelIterator) Error() error {
	return iter.iter.Error()
}
