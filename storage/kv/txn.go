package kv

import (
	"sync"
)

// View runs fn inside a read-only transaction
// which is always rolled back afterwards.
func View(store Store, fn func(txn Transaction) error) error {
	txn, err := store.Begin(false)

	if err != nil {
		return err
	}

	defer txn.Rollback()

	return fn(txn)
}

// Update runs fn inside a read-write transaction and
// commits it if fn returns no error. Otherwise the
// transaction is rolled back.
func Update(store Store, fn func(txn Transaction) error) error {
	txn, err := store.Begin(true)

	if err != nil {
		return err
	}

	defer txn.Rollback()

	if err := fn(txn); err != nil {
		return err
	}

	return txn.Commit()
}

// CommitHooks collects OnCommit callbacks for drivers
// whose native transactions have no commit hook.
type CommitHooks struct {
	hooks []func()
}

// Add registers fn
func (c *CommitHooks) Add(fn func()) {
	c.hooks = append(c.hooks, fn)
}

// Run invokes the registered callbacks in order
// and forgets them.
func (c *CommitHooks) Run() {
	hooks := c.hooks
	c.hooks = nil

	for _, hook := range hooks {
		hook()
	}
}

// Reset forgets the registered callbacks without
// running them.
func (c *CommitHooks) Reset() {
	c.hooks = nil
}

// Lifecycle tracks in-flight operations against a root store
// for drivers whose native handle does not reject calls made
// after it is closed. Close waits for every operation that
// acquired the lifecycle to release it. Once Close has started
// Acquire fails immediately instead of queueing behind it.
type Lifecycle struct {
	mu       sync.Mutex
	drained  *sync.Cond
	inFlight int
	closed   bool
}

// Acquire marks the start of an operation. It returns
// ErrClosed if the root store was closed or is closing.
// Every successful call must be paired with a call to Release.
func (l *Lifecycle) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	l.inFlight++

	return nil
}

// Release marks the end of an operation
func (l *Lifecycle) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inFlight--

	if l.inFlight == 0 && l.drained != nil {
		l.drained.Broadcast()
	}
}

// Close waits for in-flight operations then runs fn
// exactly once. Subsequent calls return nil without
// waiting. Close must not be called by an operation
// that holds the lifecycle.
func (l *Lifecycle) Close(fn func() error) error {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()

		return nil
	}

	l.closed = true

	if l.drained == nil {
		l.drained = sync.NewCond(&l.mu)
	}

	for l.inFlight > 0 {
		l.drained.Wait()
	}

	l.mu.Unlock()

	return fn()
}
