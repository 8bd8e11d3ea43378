package docstore

import (
	"context"
	"sync"

	"github.com/jrife/roost/utils/log"
	"github.com/jrife/roost/utils/uuid"
	"go.uber.org/zap"
)

// Subscription is a continuous changes feed. Every committed
// write wakes it and it delivers the changes committed since
// the last one it saw.
type Subscription struct {
	id      string
	options ChangesOptions
	since   uint64
	wake    chan struct{}
	cancel  chan struct{}
	once    sync.Once
	done    chan struct{}
	err     error
}

// ID returns the subscription id, <db name>:<uuid>
func (subscription *Subscription) ID() string {
	return subscription.id
}

// Cancel stops the subscription. It may be called
// more than once. Changes already being delivered
// are not retracted.
func (subscription *Subscription) Cancel() {
	subscription.once.Do(func() {
		close(subscription.cancel)
	})
}

// Done is closed once the subscription has stopped
func (subscription *Subscription) Done() <-chan struct{} {
	return subscription.done
}

// Err returns the error that ended the subscription. It is
// nil if the subscription was cancelled or its database was
// closed. It must only be called after Done is closed.
func (subscription *Subscription) Err() error {
	return subscription.err
}

func (subscription *Subscription) cancelled() bool {
	select {
	case <-subscription.cancel:
		return true
	default:
		return false
	}
}

// notify wakes the subscription without blocking. Wakes
// that arrive during a scan coalesce into one more scan.
func (subscription *Subscription) notify() {
	select {
	case subscription.wake <- struct{}{}:
	default:
	}
}

func (subscription *Subscription) run(ctx context.Context, db *database, logger *zap.Logger) {
	defer func() {
		db.changes.remove(subscription)
		close(subscription.done)
	}()

	for {
		select {
		case <-subscription.cancel:
			return
		case <-ctx.Done():
			subscription.err = ctx.Err()

			return
		case <-subscription.wake:
		}

		if err := subscription.poll(ctx, db); err != nil {
			if err != ErrClosed {
				logger.Debug("subscription ended", zap.Error(err))
				subscription.err = err
			}

			return
		}
	}
}

// poll delivers the changes committed after the last seen
// sequence. The database is released before OnChange runs.
func (subscription *Subscription) poll(ctx context.Context, db *database) error {
	if err := db.lifecycle.Acquire(); err != nil {
		return ErrClosed
	}

	options := subscription.options
	options.Since = subscription.since
	options.Limit = nil
	options.Descending = false

	response, accepted, err := db.scanChanges(ctx, options)
	db.lifecycle.Release()

	if err != nil {
		return err
	}

	if response.LastSeq > subscription.since {
		subscription.since = response.LastSeq
	}

	returnDocs := false
	options.ReturnDocs = &returnDocs
	response.deliver(options, accepted, subscription.cancelled)

	return nil
}

// Subscribe implements Database.Subscribe
func (db *database) Subscribe(ctx context.Context, options ChangesOptions) (*Subscription, error) {
	logger := log.WithContext(ctx, db.logger).With(zap.String("operation", "Subscribe"))

	if err := db.lifecycle.Acquire(); err != nil {
		return nil, ErrClosed
	}

	defer db.lifecycle.Release()

	subscription := &Subscription{
		id:      db.name + ":" + uuid.MustUUID(),
		options: options,
		since:   options.Since,
		wake:    make(chan struct{}, 1),
		cancel:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	if err := db.changes.add(subscription); err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("subscription", subscription.id))
	logger.Debug("start Subscribe()", zap.Uint64("since", options.Since))

	go subscription.run(ctx, db, logger)
	subscription.notify()

	return subscription, nil
}

// changesManager is the subscription registry of one database
type changesManager struct {
	db            *database
	mu            sync.Mutex
	subscriptions map[string]*Subscription
	closed        bool
}

func newChangesManager(db *database) *changesManager {
	return &changesManager{db: db, subscriptions: map[string]*Subscription{}}
}

func (manager *changesManager) add(subscription *Subscription) error {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	if manager.closed {
		return ErrClosed
	}

	manager.subscriptions[subscription.id] = subscription
	manager.db.metrics.ChangesSubscribers.Inc()

	return nil
}

func (manager *changesManager) remove(subscription *Subscription) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	if _, ok := manager.subscriptions[subscription.id]; !ok {
		return
	}

	delete(manager.subscriptions, subscription.id)
	manager.db.metrics.ChangesSubscribers.Dec()
}

// notify wakes every subscription
func (manager *changesManager) notify() {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	for _, subscription := range manager.subscriptions {
		subscription.notify()
	}
}

// close cancels every subscription and refuses new ones
func (manager *changesManager) close() {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	manager.closed = true

	for _, subscription := range manager.subscriptions {
		subscription.Cancel()
	}
}
