package docstore

// DefaultRevsLimit is the number of revisions kept per
// lineage when DatabaseOptions.RevsLimit is not set
const DefaultRevsLimit = 1000

// Document is a JSON document. Members beginning with an
// underscore are reserved.
type Document map[string]interface{}

// DatabaseOptions configures a database when it is opened
type DatabaseOptions struct {
	// RevsLimit is the maximum depth of each revision
	// lineage. Zero means DefaultRevsLimit. Local documents
	// always keep a single revision.
	RevsLimit int
}

// Info describes a database
type Info struct {
	DBName    string `json:"db_name"`
	DocCount  int    `json:"doc_count"`
	UpdateSeq uint64 `json:"update_seq"`
}

// GetOptions modify Get
type GetOptions struct {
	// Rev requests a specific revision. Deleted revisions
	// can be read this way.
	Rev string
	// Conflicts adds _conflicts
	Conflicts bool
	// Revs adds _revisions
	Revs bool
	// Attachments inlines attachment content
	Attachments bool
	// Binary inlines attachment content as []byte
	// instead of base64 text
	Binary bool
}

// AttachmentOptions modify GetAttachment
type AttachmentOptions struct {
	Rev    string
	Binary bool
}

// BulkDocsOptions modify BulkDocs
type BulkDocsOptions struct {
	// NewEdits defaults to true. When false, revisions are
	// taken verbatim from _revisions or _rev, as a replicator
	// does.
	NewEdits *bool
	// WasDelete fails writes to documents that do not
	// exist yet with ErrMissingDoc
	WasDelete bool
}

func (options BulkDocsOptions) newEdits() bool {
	return options.NewEdits == nil || *options.NewEdits
}

// Result is the outcome of one BulkDocs entry. Err is set
// when the entry failed.
type Result struct {
	OK  bool   `json:"ok,omitempty"`
	ID  string `json:"id"`
	Rev string `json:"rev,omitempty"`
	Err error  `json:"-"`
}

// AllDocsOptions modify AllDocs
type AllDocsOptions struct {
	StartKey string
	EndKey   string
	// Key selects a single id. It is ignored when
	// StartKey or EndKey is set.
	Key string
	// InclusiveEnd defaults to true
	InclusiveEnd *bool
	// Descending reverses the order. StartKey is then
	// the greatest id in the range.
	Descending bool
	Skip       int
	// Limit caps the number of rows. Nil means no limit.
	Limit *int
	// Deleted set to "ok" lists deleted documents with
	// a deleted marker and no body
	Deleted     string
	IncludeDocs bool
	Conflicts   bool
	Attachments bool
	Binary      bool
}

func (options AllDocsOptions) inclusiveEnd() bool {
	return options.InclusiveEnd == nil || *options.InclusiveEnd
}

// RowValue is the value of an AllDocs row
type RowValue struct {
	Rev     string `json:"rev"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Row is one AllDocs row
type Row struct {
	ID    string   `json:"id"`
	Key   string   `json:"key"`
	Value RowValue `json:"value"`
	Doc   Document `json:"doc,omitempty"`
}

// AllDocsResponse is a page of AllDocs rows
type AllDocsResponse struct {
	TotalRows int   `json:"total_rows"`
	Offset    int   `json:"offset"`
	Rows      []Row `json:"rows"`
}

const (
	// StyleMainOnly lists only the winning revision of a change
	StyleMainOnly = "main_only"
	// StyleAllDocs lists every leaf revision of a change
	StyleAllDocs = "all_docs"
)

// ChangesOptions modify Changes and Subscribe
type ChangesOptions struct {
	// Since excludes changes with a sequence number <= Since
	Since uint64
	// Limit caps the number of accepted changes. Zero is
	// treated as one and nil means no limit. Subscriptions
	// ignore it.
	Limit *int
	// Descending scans from the newest change and ignores
	// Since. Subscriptions ignore it.
	Descending  bool
	IncludeDocs bool
	Conflicts   bool
	Attachments bool
	Binary      bool
	// Style is StyleMainOnly (default) or StyleAllDocs
	Style string
	// DocIDs restricts the feed to these documents
	DocIDs []string
	// Filter rejects changes for which it returns false.
	// It always sees the change's document. An error ends
	// the feed with that error. Filter runs during the scan
	// and must not close the database.
	Filter func(change Change) (bool, error)
	// ReturnDocs defaults to true. When false, Changes
	// does not collect results.
	ReturnDocs *bool
	// OnChange is called for every accepted change in
	// sequence order once the scan has finished. It may
	// read, write or close the database.
	OnChange func(change Change)
}

func (options ChangesOptions) returnDocs() bool {
	return options.ReturnDocs == nil || *options.ReturnDocs
}

// ChangeRev names one revision of a change
type ChangeRev struct {
	Rev string `json:"rev"`
}

// Change is one entry of the changes feed
type Change struct {
	ID      string      `json:"id"`
	Seq     uint64      `json:"seq"`
	Rev     string      `json:"rev"`
	Changes []ChangeRev `json:"changes"`
	Deleted bool        `json:"deleted,omitempty"`
	Doc     Document    `json:"doc,omitempty"`
}

// ChangesResponse is the result of a one-shot changes scan.
// LastSeq is the sequence number of the last change scanned,
// whether or not it was accepted. Changes skipped by DocIDs or
// rejected by Filter still advance it.
type ChangesResponse struct {
	Results []Change `json:"results"`
	LastSeq uint64   `json:"last_seq"`
}
