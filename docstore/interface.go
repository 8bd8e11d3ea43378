package docstore

import (
	"context"

	"github.com/jrife/roost/storage/revtree"
)

// Engine owns a kv root store and the databases opened
// inside it
type Engine interface {
	// Open opens the database with this name, creating it
	// if it does not exist. Concurrent calls for the same
	// name share a single open handle.
	Open(ctx context.Context, name string, options DatabaseOptions) (Database, error)
	// Databases lists the names of all databases in ascending order
	Databases(ctx context.Context) ([]string, error)
	// Close closes every open database then the root store
	Close() error
}

// Database is a handle to one open database
type Database interface {
	// Name returns the database name
	Name() string
	// ID returns the database's stable unique id
	ID(ctx context.Context) (string, error)
	// Info returns the document count and update sequence
	Info(ctx context.Context) (Info, error)
	// Get returns a document. Without options.Rev it returns
	// the winning revision and fails with ErrMissingDoc if the
	// document is deleted.
	Get(ctx context.Context, id string, options GetOptions) (Document, error)
	// GetAttachment returns the content of an attachment. It
	// returns raw bytes when options.Binary is set and base64
	// text otherwise.
	GetAttachment(ctx context.Context, docID string, name string, options AttachmentOptions) ([]byte, error)
	// BulkDocs writes a batch of documents in one transaction.
	// Results are in input order. A non-nil error means nothing
	// was written and every entry failed with that error.
	BulkDocs(ctx context.Context, docs []Document, options BulkDocsOptions) ([]Result, error)
	// AllDocs lists documents in id order
	AllDocs(ctx context.Context, options AllDocsOptions) (AllDocsResponse, error)
	// Changes scans the changes feed once
	Changes(ctx context.Context, options ChangesOptions) (ChangesResponse, error)
	// Subscribe starts a continuous changes feed. Changes are
	// delivered to options.OnChange until the subscription is
	// cancelled, ctx is done or the database is closed.
	Subscribe(ctx context.Context, options ChangesOptions) (*Subscription, error)
	// GetRevisionTree returns the revision tree of a document
	GetRevisionTree(ctx context.Context, id string) (revtree.Tree, error)
	// Compact marks revisions of a document missing, deletes their
	// bodies and releases their attachments. Callers must not
	// submit winning revisions.
	Compact(ctx context.Context, id string, revs []string) error
	// CompactAll compacts every available non-leaf revision of
	// every non-local document
	CompactAll(ctx context.Context) error
	// Close closes the handle and cancels its subscriptions
	Close() error
	// Destroy closes the handle and deletes the database
	Destroy() error
}
