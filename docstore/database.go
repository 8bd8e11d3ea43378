package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrife/roost/storage/attachments"
	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/utils/log"
	"go.uber.org/zap"
)

var _ Database = (*database)(nil)

// database implements Database
type database struct {
	name      string
	engine    *engine
	store     kv.Store
	revsLimit int
	codec     attachments.Codec
	logger    *zap.Logger
	metrics   *Metrics
	changes   *changesManager
	lifecycle kv.Lifecycle
	// writeMu serializes writers ahead of the store's own
	// transaction isolation
	writeMu sync.Mutex
	metaMu  sync.RWMutex
	meta    metadata
}

func (db *database) view(fn func(txn kv.Transaction) error) error {
	txn, err := db.store.Begin(false)

	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	defer txn.Rollback()

	return fn(txn)
}

func (db *database) update(fn func(txn kv.Transaction) error) error {
	txn, err := db.store.Begin(true)

	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	defer txn.Rollback()

	if err := fn(txn); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// committed publishes the metadata of a committed write
// and wakes the changes feed
func (db *database) committed(meta metadata) {
	db.metaMu.Lock()
	db.meta = meta
	db.metaMu.Unlock()

	db.changes.notify()
}

func (db *database) currentMeta() metadata {
	db.metaMu.RLock()
	defer db.metaMu.RUnlock()

	return db.meta
}

// Name implements Database.Name
func (db *database) Name() string {
	return db.name
}

// ID implements Database.ID
func (db *database) ID(ctx context.Context) (string, error) {
	if err := db.lifecycle.Acquire(); err != nil {
		return "", ErrClosed
	}

	defer db.lifecycle.Release()

	return db.currentMeta().DBUUID, nil
}

// Info implements Database.Info
func (db *database) Info(ctx context.Context) (Info, error) {
	if err := db.lifecycle.Acquire(); err != nil {
		return Info{}, ErrClosed
	}

	defer db.lifecycle.Release()

	meta := db.currentMeta()

	return Info{DBName: db.name, DocCount: meta.DocCount, UpdateSeq: meta.Seq}, nil
}

// Close implements Database.Close
func (db *database) Close() error {
	db.logger.Debug("close")

	return db.lifecycle.Close(func() error {
		db.changes.close()
		db.engine.forget(db)

		return nil
	})
}

// Destroy implements Database.Destroy
func (db *database) Destroy() error {
	logger := log.WithContext(context.Background(), db.logger).With(zap.String("operation", "Destroy"))
	logger.Debug("start Destroy()")

	destroyed := false

	err := db.lifecycle.Close(func() error {
		destroyed = true
		db.changes.close()
		db.engine.forget(db)

		return db.store.Delete()
	})

	if err != nil {
		err = wrapError("could not delete database", err)
		logger.Error("could not destroy database", zap.Error(err))

		return err
	}

	if !destroyed {
		return ErrClosed
	}

	logger.Debug("return from Destroy()")

	return nil
}
