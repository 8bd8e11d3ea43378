package docstore

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/jrife/roost/storage/attachments"
	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/storage/kv/keys"
	"github.com/jrife/roost/storage/revtree"
)

// Map keys are sorted so that encoding a body twice
// produces the same bytes.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	docsNs        = []byte("d")
	seqNs         = []byte("s")
	deletedNs     = []byte("x")
	attachmentsNs = []byte("a")
	metaNs        = []byte("m")
	metaKey       = []byte("meta")
)

const localPrefix = "_local/"

func isLocal(id string) bool {
	return strings.HasPrefix(id, localPrefix)
}

func docsMap(txn kv.Transaction) kv.Transaction {
	return kv.Namespace(txn, docsNs)
}

func seqMap(txn kv.Transaction) kv.Transaction {
	return kv.Namespace(txn, seqNs)
}

func deletedMap(txn kv.Transaction) kv.Transaction {
	return kv.Namespace(txn, deletedNs)
}

func attachmentsMap(txn kv.Transaction, id string) kv.Transaction {
	return kv.Namespace(kv.Namespace(txn, attachmentsNs), keys.LengthPrefixed([]byte(id)))
}

func metaMap(txn kv.Transaction) kv.Transaction {
	return kv.Namespace(txn, metaNs)
}

// deletedKey is the key of a document in the deleted/local
// index. Live documents sort first.
func deletedKey(id string, deletedOrLocal bool) []byte {
	flag := byte(0)

	if deletedOrLocal {
		flag = 1
	}

	return append([]byte{flag}, id...)
}

// revision is the stored body of one revision
type revision struct {
	Data    Document `json:"data"`
	Deleted bool     `json:"deleted,omitempty"`
}

// record is the stored form of a document
type record struct {
	ID             string              `json:"id"`
	Rev            string              `json:"rev"`
	RevTree        revtree.Tree        `json:"rev_tree"`
	Revs           map[string]revision `json:"revs"`
	Attachments    attachments.Index   `json:"attachments"`
	Seq            uint64              `json:"seq"`
	Deleted        bool                `json:"deleted"`
	DeletedOrLocal bool                `json:"deletedOrLocal"`
	Data           Document            `json:"data"`
}

// document returns the body of rev with _id and _rev set
func (rec *record) document(rev string) Document {
	doc := Document{}

	for k, v := range rec.Revs[rev].Data {
		doc[k] = v
	}

	doc["_id"] = rec.ID
	doc["_rev"] = rev

	if rec.Revs[rev].Deleted {
		doc["_deleted"] = true
	}

	return doc
}

// digests lists the attachment digests referenced by the
// body of rev
func (rec *record) digests(rev string) []string {
	var digests []string

	stubs, _ := rec.Revs[rev].Data["_attachments"].(map[string]interface{})

	for _, stub := range stubs {
		if fields, ok := stub.(map[string]interface{}); ok {
			if digest, ok := fields["digest"].(string); ok {
				digests = append(digests, digest)
			}
		}
	}

	return digests
}

type metadata struct {
	DBUUID   string `json:"db_uuid"`
	Seq      uint64 `json:"seq"`
	DocCount int    `json:"doc_count"`
}

func readRecord(txn kv.Transaction, id string) (*record, error) {
	raw, err := docsMap(txn).Get([]byte(id))

	if err != nil {
		return nil, fmt.Errorf("could not read document %q: %s", id, err)
	}

	if raw == nil {
		return nil, nil
	}

	return decodeRecord(raw)
}

func decodeRecord(raw []byte) (*record, error) {
	var rec record

	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("could not decode document record: %s", err)
	}

	if rec.Revs == nil {
		rec.Revs = map[string]revision{}
	}

	return &rec, nil
}

func writeRecord(txn kv.Transaction, rec *record) error {
	raw, err := json.Marshal(rec)

	if err != nil {
		return fmt.Errorf("could not encode document %q: %s", rec.ID, err)
	}

	if err := docsMap(txn).Put([]byte(rec.ID), raw); err != nil {
		return fmt.Errorf("could not write document %q: %s", rec.ID, err)
	}

	return nil
}

func readMetadata(txn kv.Transaction) (metadata, bool, error) {
	var meta metadata

	raw, err := metaMap(txn).Get(metaKey)

	if err != nil {
		return meta, false, fmt.Errorf("could not read metadata: %s", err)
	}

	if raw == nil {
		return meta, false, nil
	}

	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, false, fmt.Errorf("could not decode metadata: %s", err)
	}

	return meta, true, nil
}

func writeMetadata(txn kv.Transaction, meta metadata) error {
	raw, err := json.Marshal(meta)

	if err != nil {
		return fmt.Errorf("could not encode metadata: %s", err)
	}

	if err := metaMap(txn).Put(metaKey, raw); err != nil {
		return fmt.Errorf("could not write metadata: %s", err)
	}

	return nil
}

// countLive counts the live documents in the deleted/local index
func countLive(txn kv.Transaction) (int, error) {
	iter, err := deletedMap(txn).Keys(keys.All().Prefix([]byte{0}), kv.SortOrderAsc)

	if err != nil {
		return 0, fmt.Errorf("could not scan deleted index: %s", err)
	}

	count := 0

	for iter.Next() {
		count++
	}

	if iter.Error() != nil {
		return 0, fmt.Errorf("could not scan deleted index: %s", iter.Error())
	}

	return count, nil
}
