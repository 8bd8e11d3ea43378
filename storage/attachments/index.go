package attachments

import (
	"sort"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is the index record for one piece of content
type Entry struct {
	ContentType string          `json:"content_type"`
	Length      int             `json:"length"`
	Revs        map[string]bool `json:"revs"`
}

// Index is a document's reference-counted content index.
// It maps digests to the set of revisions referencing them.
// An entry exists exactly as long as its reference set is
// not empty. The zero value is an empty index.
type Index struct {
	entries map[string]*Entry
}

// Add records that rev carries attachment. It returns true
// if this created the entry, in which case the caller owns
// storing the content.
func (index *Index) Add(attachment Attachment, rev string) bool {
	if index.entries == nil {
		index.entries = map[string]*Entry{}
	}

	entry, ok := index.entries[attachment.Digest]

	if !ok {
		entry = &Entry{ContentType: attachment.ContentType, Length: attachment.Length, Revs: map[string]bool{}}
		index.entries[attachment.Digest] = entry
	}

	entry.Revs[rev] = true

	return !ok
}

// Ref records that rev reuses content already in the index.
// It returns ErrMissingStub if the digest is unknown.
func (index *Index) Ref(digest string, rev string) error {
	entry, ok := index.entries[digest]

	if !ok {
		return ErrMissingStub
	}

	entry.Revs[rev] = true

	return nil
}

// Release drops rev's reference to digest. It returns true
// if that emptied the reference set and removed the entry,
// in which case the caller owns deleting the content.
func (index *Index) Release(digest string, rev string) bool {
	entry, ok := index.entries[digest]

	if !ok {
		return false
	}

	delete(entry.Revs, rev)

	if len(entry.Revs) > 0 {
		return false
	}

	delete(index.entries, digest)

	return true
}

// Get returns the entry for digest
func (index Index) Get(digest string) (Entry, bool) {
	entry, ok := index.entries[digest]

	if !ok {
		return Entry{}, false
	}

	return *entry, true
}

// Has returns true if the index has an entry for digest
func (index Index) Has(digest string) bool {
	_, ok := index.entries[digest]

	return ok
}

// Digests lists every digest in the index in ascending order
func (index Index) Digests() []string {
	digests := make([]string, 0, len(index.entries))

	for digest := range index.entries {
		digests = append(digests, digest)
	}

	sort.Strings(digests)

	return digests
}

// Len returns the number of entries
func (index Index) Len() int {
	return len(index.entries)
}

// MarshalJSON implements json.Marshaler
func (index Index) MarshalJSON() ([]byte, error) {
	if index.entries == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(index.entries)
}

// UnmarshalJSON implements json.Unmarshaler
func (index *Index) UnmarshalJSON(data []byte) error {
	entries := map[string]*Entry{}

	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	for digest, entry := range entries {
		if entry == nil || len(entry.Revs) == 0 {
			delete(entries, digest)
		}
	}

	index.entries = entries

	return nil
}
