package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrife/roost/storage/attachments"
	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/storage/kv/plugins"
	"github.com/jrife/roost/utils/log"
	"github.com/jrife/roost/utils/uuid"
	"go.uber.org/zap"
)

// DefaultPlugin is the kv plugin used when none is configured
const DefaultPlugin = "bbolt"

var _ Engine = (*engine)(nil)

// EngineConfig contains configuration
// for an engine
type EngineConfig struct {
	Logger *zap.Logger
	// RootStore is used when set. Otherwise a root store is
	// created by Plugin with PluginOptions.
	RootStore     kv.RootStore
	Plugin        string
	PluginOptions kv.PluginOptions
	// Metrics defaults to unregistered metrics
	Metrics *Metrics
	// CompressibleTypes lists the content types of attachments
	// compressed at rest. Nil means attachments.DefaultCompressibleTypes.
	CompressibleTypes []string
}

type handleState int

const (
	handleOpening handleState = iota
	handleReady
	handleClosed
	handleFailed
)

// handle is the single shared open of one database. ready
// is closed once the handle leaves the opening state.
type handle struct {
	state handleState
	ready chan struct{}
	db    *database
	err   error
}

// engine implements Engine
type engine struct {
	logger  *zap.Logger
	root    kv.RootStore
	metrics *Metrics
	codec   attachments.Codec
	mu      sync.Mutex
	handles map[string]*handle
	closed  bool
}

// NewEngine creates an engine
func NewEngine(config EngineConfig) (Engine, error) {
	engine := &engine{logger: config.Logger, metrics: config.Metrics, handles: map[string]*handle{}}

	if engine.logger == nil {
		engine.logger = zap.L()
	}

	if engine.metrics == nil {
		engine.metrics = newMetrics()
	}

	engine.codec = attachments.Codec{CompressibleTypes: config.CompressibleTypes}

	if config.CompressibleTypes == nil {
		engine.codec.CompressibleTypes = attachments.DefaultCompressibleTypes
	}

	engine.root = config.RootStore

	if engine.root == nil {
		pluginName := config.Plugin

		if pluginName == "" {
			pluginName = DefaultPlugin
		}

		plugin := plugins.Plugin(pluginName)

		if plugin == nil {
			return nil, fmt.Errorf("no such kv plugin: %s", pluginName)
		}

		root, err := plugin.NewRootStore(config.PluginOptions)

		if err != nil {
			return nil, fmt.Errorf("could not create %s root store: %s", pluginName, err)
		}

		engine.root = root
	}

	return engine, nil
}

// Open implements Engine.Open
func (engine *engine) Open(ctx context.Context, name string, options DatabaseOptions) (Database, error) {
	logger := log.WithContext(ctx, engine.logger).With(zap.String("operation", "Open"), zap.String("db", name))
	logger.Debug("start Open()", zap.Int("revs_limit", options.RevsLimit))

	if name == "" {
		return nil, badArg("database name must not be empty")
	}

	engine.mu.Lock()

	if engine.closed {
		engine.mu.Unlock()

		return nil, ErrClosed
	}

	h, ok := engine.handles[name]

	if !ok {
		h = &handle{state: handleOpening, ready: make(chan struct{})}
		engine.handles[name] = h
		engine.mu.Unlock()

		db, err := engine.open(name, options)

		engine.mu.Lock()

		if err != nil {
			h.state = handleFailed
			h.err = err
			delete(engine.handles, name)
		} else {
			h.state = handleReady
			h.db = db
		}

		close(h.ready)
	}

	engine.mu.Unlock()

	select {
	case <-h.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if h.err != nil {
		logger.Debug("error", zap.Error(h.err))

		return nil, h.err
	}

	logger.Debug("return from Open()")

	return h.db, nil
}

// open creates the store if needed and loads its metadata.
// doc_count is recounted from the deleted index.
func (engine *engine) open(name string, options DatabaseOptions) (*database, error) {
	store := engine.root.Store([]byte(name))

	if err := store.Create(); err != nil {
		return nil, wrapError("could not create store", err)
	}

	var meta metadata

	err := kv.Update(store, func(txn kv.Transaction) error {
		var err error
		var ok bool

		meta, ok, err = readMetadata(txn)

		if err != nil {
			return err
		}

		if !ok {
			meta = metadata{DBUUID: uuid.MustUUID()}
		}

		if meta.DocCount, err = countLive(txn); err != nil {
			return err
		}

		return writeMetadata(txn, meta)
	})

	if err != nil {
		return nil, wrapError("could not load metadata", err)
	}

	db := &database{
		name:      name,
		engine:    engine,
		store:     store,
		revsLimit: options.RevsLimit,
		codec:     engine.codec,
		logger:    engine.logger.With(zap.String("db", name)),
		metrics:   engine.metrics,
		meta:      meta,
	}

	if db.revsLimit <= 0 {
		db.revsLimit = DefaultRevsLimit
	}

	db.changes = newChangesManager(db)

	return db, nil
}

// forget drops the handle of a closed database so that a
// later Open opens it again
func (engine *engine) forget(db *database) {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if h, ok := engine.handles[db.name]; ok && h.db == db {
		h.state = handleClosed
		delete(engine.handles, db.name)
	}
}

// Databases implements Engine.Databases
func (engine *engine) Databases(ctx context.Context) ([]string, error) {
	stores, err := engine.root.Stores()

	if err != nil {
		return nil, wrapError("could not list stores", err)
	}

	names := make([]string, len(stores))

	for i, store := range stores {
		names[i] = string(store)
	}

	return names, nil
}

// Close implements Engine.Close
func (engine *engine) Close() error {
	engine.mu.Lock()

	if engine.closed {
		engine.mu.Unlock()

		return nil
	}

	engine.closed = true
	handles := make([]*handle, 0, len(engine.handles))

	for _, h := range engine.handles {
		handles = append(handles, h)
	}

	engine.mu.Unlock()

	for _, h := range handles {
		<-h.ready

		if h.db != nil {
			h.db.Close()
		}
	}

	return engine.root.Close()
}
