package badger

import (
	"errors"
	"fmt"
	"os"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/storage/kv/keys"
	"github.com/jrife/roost/utils/uuid"
	"go.uber.org/zap"
)

var errIteratorInvalidated = errors.New("iterator was closed by a newer iterator in the same transaction")

const (
	// DriverName is the name of this plugin
	DriverName = "badger"
)

// Plugins returns the plugins exposed by this driver
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&BadgerPlugin{},
	}
}

var _ kv.Plugin = (*BadgerPlugin)(nil)

// BadgerPlugin implements kv.Plugin on top of badger.
// All stores share one badger keyspace.
type BadgerPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *BadgerPlugin) Name() string {
	return DriverName
}

// NewRootStore implements kv.Plugin.NewRootStore
func (plugin *BadgerPlugin) NewRootStore(options kv.PluginOptions) (kv.RootStore, error) {
	var config BadgerRootStoreConfig

	if path, ok := options["path"]; !ok {
		return nil, fmt.Errorf("\"path\" is required")
	} else if pathString, ok := path.(string); !ok {
		return nil, fmt.Errorf("\"path\" must be a string")
	} else {
		config.Path = pathString
	}

	if syncWrites, ok := options["sync_writes"]; ok {
		if syncWritesBool, ok := syncWrites.(bool); !ok {
			return nil, fmt.Errorf("\"sync_writes\" must be a bool")
		} else {
			config.SyncWrites = syncWritesBool
		}
	}

	return New(config)
}

// NewTempRootStore implements kv.Plugin.NewTempRootStore
func (plugin *BadgerPlugin) NewTempRootStore() (kv.RootStore, error) {
	return plugin.NewRootStore(kv.PluginOptions{
		"path": fmt.Sprintf("/tmp/badger-%s", uuid.MustUUID()),
	})
}

// BadgerRootStoreConfig configures a badger root store
type BadgerRootStoreConfig struct {
	Path       string
	SyncWrites bool
	Logger     *zap.Logger
}

// New opens the badger database in the directory config.Path
func New(config BadgerRootStoreConfig) (*BadgerRootStore, error) {
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	options := badger.DefaultOptions(config.Path).
		WithSyncWrites(config.SyncWrites).
		WithLogger(badgerLogger{config.Logger.With(zap.String("driver", DriverName)).Sugar()})

	db, err := badger.Open(options)

	if err != nil {
		return nil, fmt.Errorf("could not open badger store at %s: %s", config.Path, err)
	}

	return &BadgerRootStore{db: db, path: config.Path}, nil
}

// badgerLogger adapts zap to badger.Logger
type badgerLogger struct {
	*zap.SugaredLogger
}

func (logger badgerLogger) Warningf(template string, args ...interface{}) {
	logger.Warnf(template, args...)
}

var _ kv.RootStore = (*BadgerRootStore)(nil)

// BadgerRootStore implements kv.RootStore
type BadgerRootStore struct {
	db        *badger.DB
	path      string
	lifecycle kv.Lifecycle
}

// Close implements kv.RootStore.Close
func (rootStore *BadgerRootStore) Close() error {
	return rootStore.lifecycle.Close(rootStore.db.Close)
}

// Delete implements kv.RootStore.Delete
func (rootStore *BadgerRootStore) Delete() error {
	if err := rootStore.Close(); err != nil {
		return fmt.Errorf("could not close store: %s", err)
	}

	if err := os.RemoveAll(rootStore.path); err != nil {
		return fmt.Errorf("could not remove path %s: %s", rootStore.path, err)
	}

	return nil
}

// Stores implements kv.RootStore.Stores
func (rootStore *BadgerRootStore) Stores() ([][]byte, error) {
	if err := rootStore.lifecycle.Acquire(); err != nil {
		return nil, err
	}

	defer rootStore.lifecycle.Release()

	txn := &badgerTxn{txn: rootStore.db.NewTransaction(false)}
	defer txn.Rollback()

	iter, err := txn.Keys(kv.StoreMarkers(), kv.SortOrderAsc)

	if err != nil {
		return nil, err
	}

	var stores [][]byte = [][]byte{}

	for iter.Next() {
		stores = append(stores, kv.StoreNameFromMarker(iter.Key()))
	}

	return stores, iter.Error()
}

// Store implements kv.RootStore.Store
func (rootStore *BadgerRootStore) Store(name []byte) kv.Store {
	return &BadgerStore{rootStore: rootStore, name: name}
}

var _ kv.Store = (*BadgerStore)(nil)

// BadgerStore implements kv.Store
type BadgerStore struct {
	rootStore *BadgerRootStore
	name      []byte
}

// Name implements kv.Store.Name
func (store *BadgerStore) Name() []byte {
	return store.name
}

// Create implements kv.Store.Create
func (store *BadgerStore) Create() error {
	if err := store.rootStore.lifecycle.Acquire(); err != nil {
		return err
	}

	defer store.rootStore.lifecycle.Release()

	return store.rootStore.db.Update(func(txn *badger.Txn) error {
		return txn.Set(kv.StoreMarkerKey(store.name), []byte{})
	})
}

// Delete implements kv.Store.Delete
func (store *BadgerStore) Delete() error {
	if err := store.rootStore.lifecycle.Acquire(); err != nil {
		return err
	}

	defer store.rootStore.lifecycle.Release()

	if err := store.rootStore.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(kv.StoreMarkerKey(store.name))
	}); err != nil {
		return err
	}

	return store.rootStore.db.DropPrefix(kv.StoreDataPrefix(store.name))
}

// Begin implements kv.Store.Begin
func (store *BadgerStore) Begin(writable bool) (kv.Transaction, error) {
	if err := store.rootStore.lifecycle.Acquire(); err != nil {
		return nil, err
	}

	txn := &badgerTxn{
		txn:      store.rootStore.db.NewTransaction(writable),
		writable: writable,
		release:  store.rootStore.lifecycle.Release,
	}

	if _, err := txn.txn.Get(kv.StoreMarkerKey(store.name)); err != nil {
		txn.Rollback()

		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, kv.ErrNoSuchStore
		}

		return nil, err
	}

	return kv.Namespace(txn, kv.StoreDataPrefix(store.name)), nil
}

var _ kv.Transaction = (*badgerTxn)(nil)

// badgerTxn operates on the raw badger keyspace. Stores
// see it through kv.Namespace.
type badgerTxn struct {
	txn      *badger.Txn
	writable bool
	// badger allows only one open iterator per read-write
	// transaction and panics on Discard if one is still open.
	iters   []*badgerIterator
	hooks   kv.CommitHooks
	release func()
	done    bool
}

func (txn *badgerTxn) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, kv.ErrEmptyKey
	}

	item, err := txn.txn.Get(key)

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return item.ValueCopy(nil)
}

func (txn *badgerTxn) Put(key, value []byte) error {
	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	if !txn.writable {
		return kv.ErrReadOnly
	}

	if value == nil {
		value = []byte{}
	}

	// badger holds on to both slices until commit
	return txn.txn.Set(append([]byte{}, key...), append([]byte{}, value...))
}

func (txn *badgerTxn) Delete(key []byte) error {
	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	if !txn.writable {
		return kv.ErrReadOnly
	}

	return txn.txn.Delete(append([]byte{}, key...))
}

func (txn *badgerTxn) Keys(keys keys.Range, order kv.SortOrder) (kv.Iterator, error) {
	if txn.writable {
		for _, iter := range txn.iters {
			iter.invalidate()
		}

		txn.iters = nil
	}

	options := badger.DefaultIteratorOptions
	options.Reverse = order == kv.SortOrderDesc

	iter := &badgerIterator{iter: txn.txn.NewIterator(options), keys: keys, order: order}
	txn.iters = append(txn.iters, iter)

	return iter, nil
}

func (txn *badgerTxn) closeIterators() {
	for _, iter := range txn.iters {
		iter.close()
	}

	txn.iters = nil
}

func (txn *badgerTxn) OnCommit(fn func()) {
	txn.hooks.Add(fn)
}

func (txn *badgerTxn) Commit() error {
	if txn.done {
		return badger.ErrDiscardedTxn
	}

	txn.closeIterators()
	err := txn.txn.Commit()
	txn.finish()

	if err != nil {
		txn.hooks.Reset()

		return err
	}

	txn.hooks.Run()

	return nil
}

func (txn *badgerTxn) Rollback() error {
	if txn.done {
		return nil
	}

	txn.closeIterators()
	txn.hooks.Reset()
	txn.finish()

	return nil
}

func (txn *badgerTxn) finish() {
	txn.txn.Discard()
	txn.done = true

	if txn.release != nil {
		txn.release()
	}
}

var _ kv.Iterator = (*badgerIterator)(nil)

type badgerIterator struct {
	iter    *badger.Iterator
	keys    keys.Range
	order   kv.SortOrder
	started bool
	closed  bool
	key     []byte
	value   []byte
	err     error
}

func (iter *badgerIterator) Next() bool {
	if iter.closed {
		return false
	}

	if !iter.started {
		iter.started = true
		iter.seek()
	} else {
		iter.iter.Next()
	}

	if !iter.iter.Valid() {
		iter.close()

		return false
	}

	item := iter.iter.Item()
	key := item.KeyCopy(nil)

	if !iter.keys.Contains(key) {
		iter.close()

		return false
	}

	value, err := item.ValueCopy(nil)

	if err != nil {
		iter.err = err
		iter.close()

		return false
	}

	iter.key = key
	iter.value = value

	return true
}

func (iter *badgerIterator) seek() {
	if iter.order != kv.SortOrderDesc {
		if iter.keys.Min == nil {
			iter.iter.Rewind()
		} else {
			iter.iter.Seek(iter.keys.Min)
		}

		return
	}

	if iter.keys.Max == nil {
		iter.iter.Rewind()

		return
	}

	// In reverse mode Seek lands on the last key <= Max.
	// Max is exclusive so skip it if present.
	iter.iter.Seek(iter.keys.Max)

	if iter.iter.Valid() && keys.Compare(iter.iter.Item().Key(), iter.keys.Max) == 0 {
		iter.iter.Next()
	}
}

func (iter *badgerIterator) invalidate() {
	if !iter.closed {
		iter.err = errIteratorInvalidated
		iter.close()
	}
}

func (iter *badgerIterator) close() {
	if iter.closed {
		return
	}

	iter.closed = true
	iter.key = nil
	iter.value = nil
	iter.iter.Close()
}

func (iter *badgerIterator) Key() []byte {
	return iter.key
}

func (iter *badgerIterator) Value() []byte {
	return iter.value
}

func (iter *badgerIterator) Error() error {
	return iter.err
}
