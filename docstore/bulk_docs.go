package docstore

import (
	"context"
	"fmt"

	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/storage/kv/keys"
	"github.com/jrife/roost/storage/revtree"
	"github.com/jrife/roost/utils/log"
	"go.uber.org/zap"
)

// BulkDocs implements Database.BulkDocs
func (db *database) BulkDocs(ctx context.Context, docs []Document, options BulkDocsOptions) ([]Result, error) {
	logger := log.WithContext(ctx, db.logger).With(zap.String("operation", "BulkDocs"))
	logger.Debug("start BulkDocs()", zap.Int("docs", len(docs)), zap.Bool("new_edits", options.newEdits()))

	if err := db.lifecycle.Acquire(); err != nil {
		return nil, ErrClosed
	}

	defer db.lifecycle.Release()

	results, err := db.bulkDocs(ctx, docs, options)

	if err != nil {
		db.metrics.writeError(err)
		logger.Debug("error", zap.Error(err))

		return nil, err
	}

	for _, result := range results {
		if result.Err != nil {
			db.metrics.writeError(result.Err)
		} else {
			db.metrics.documentWritten()
		}
	}

	logger.Debug("return from BulkDocs()", zap.Any("results", results))

	return results, nil
}

func (db *database) bulkDocs(ctx context.Context, docs []Document, options BulkDocsOptions) ([]Result, error) {
	newEdits := options.newEdits()
	results := make([]Result, len(docs))
	entries := make([]*entry, len(docs))

	for i, doc := range docs {
		e, err := parseDocument(doc, newEdits)

		if err != nil {
			results[i] = Result{ID: idOf(doc), Err: err}

			continue
		}

		entries[i] = e
	}

	if err := materializeAttachments(ctx, entries); err != nil {
		return nil, wrapError("could not process attachments", err)
	}

	for i, e := range entries {
		if e == nil {
			continue
		}

		if e.err == nil {
			e.err = e.assignRev()
		}

		if e.err != nil {
			results[i] = Result{ID: e.id, Err: e.err}
			entries[i] = nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	err := db.update(func(txn kv.Transaction) error {
		meta, _, err := readMetadata(txn)

		if err != nil {
			return err
		}

		b := &batch{db: db, txn: txn, meta: &meta, options: options, newEdits: newEdits, docs: map[string]*record{}}

		for i, e := range entries {
			if e == nil {
				continue
			}

			result, err := b.write(e)

			if err != nil {
				return err
			}

			results[i] = result
		}

		if err := writeMetadata(txn, meta); err != nil {
			return err
		}

		txn.OnCommit(func() {
			db.committed(meta)
		})

		return nil
	})

	if err != nil {
		return nil, wrapError("could not write documents", err)
	}

	return results, nil
}

// batch is the state of one BulkDocs transaction. docs caches
// every record read or written so far so that later entries
// see the effect of earlier ones. A nil record means the
// document does not exist.
type batch struct {
	db       *database
	txn      kv.Transaction
	meta     *metadata
	options  BulkDocsOptions
	newEdits bool
	docs     map[string]*record
}

func (b *batch) load(id string) (*record, error) {
	if rec, ok := b.docs[id]; ok {
		return rec, nil
	}

	rec, err := readRecord(b.txn, id)

	if err != nil {
		return nil, err
	}

	b.docs[id] = rec

	return rec, nil
}

// inConflict reports whether a new edit merged with the given
// classification breaks linear history
func inConflict(oldDeleted bool, newDeleted bool, conflicts revtree.Conflicts) bool {
	switch {
	case oldDeleted && newDeleted:
		return true
	case !oldDeleted:
		return conflicts != revtree.NewLeaf
	}

	return conflicts == revtree.NewBranch
}

// write applies one entry. Errors confined to the entry are
// returned in the result. A returned error aborts the batch.
func (b *batch) write(e *entry) (Result, error) {
	old, err := b.load(e.id)

	if err != nil {
		return Result{}, err
	}

	revsLimit := b.db.revsLimit

	if e.local {
		revsLimit = 1
	}

	var merged revtree.MergeResult
	var rec *record

	switch {
	case b.options.WasDelete && old == nil:
		return Result{ID: e.id, Err: ErrMissingDoc.withReason("deleted")}, nil
	case b.newEdits && old == nil && e.parent != "":
		return Result{ID: e.id, Err: ErrRevConflict}, nil
	case old == nil:
		merged = revtree.Merge(revtree.Tree{}, e.path, revsLimit)
		rec = &record{ID: e.id, Revs: map[string]revision{}}
	default:
		// Revisions are content addressed, so a document recreated
		// with its first body would otherwise collide with its own
		// first revision. Re-parent before looking for known ones.
		if old.Deleted && !e.deleted && b.newEdits && e.isRoot() {
			if err := reattach(old, e); err != nil {
				return Result{ID: e.id, Err: err}, nil
			}
		}

		if _, ok := old.Revs[e.rev]; ok {
			return Result{OK: true, ID: e.id, Rev: e.rev}, nil
		}

		merged = revtree.Merge(old.RevTree, e.path, revsLimit)

		if b.newEdits && inConflict(old.Deleted, e.deleted, merged.Conflicts) {
			return Result{ID: e.id, Err: ErrRevConflict}, nil
		}

		rec = old
	}

	prev := *rec
	isNew := old == nil

	rec.RevTree = merged.Tree
	rec.Revs[e.rev] = revision{Data: e.body, Deleted: e.deleted}

	if err := b.attach(rec, e); err != nil {
		return Result{}, err
	}

	for _, rev := range merged.StemmedRevs {
		if err := releaseRevision(b.txn, rec, rev); err != nil {
			return Result{}, err
		}

		delete(rec.Revs, rev)
	}

	winner, _ := rec.RevTree.Winner()
	rec.Rev = winner.Rev()
	rec.Deleted = winner.Deleted
	rec.Data = rec.Revs[rec.Rev].Data
	rec.DeletedOrLocal = rec.Deleted || e.local

	if !e.local {
		b.meta.Seq++
		rec.Seq = b.meta.Seq

		switch {
		case isNew && !rec.Deleted:
			b.meta.DocCount++
		case !isNew && prev.Deleted != rec.Deleted && rec.Deleted:
			b.meta.DocCount--
		case !isNew && prev.Deleted != rec.Deleted:
			b.meta.DocCount++
		}
	}

	if !isNew {
		if err := b.unindex(&prev); err != nil {
			return Result{}, err
		}
	}

	if e.local && rec.Deleted {
		if err := b.remove(rec); err != nil {
			return Result{}, err
		}

		return Result{OK: true, ID: e.id, Rev: "0-0"}, nil
	}

	if err := b.index(rec); err != nil {
		return Result{}, err
	}

	if err := writeRecord(b.txn, rec); err != nil {
		return Result{}, err
	}

	b.docs[rec.ID] = rec

	return Result{OK: true, ID: e.id, Rev: e.rev}, nil
}

// reattach re-parents a first generation write onto the winning
// deleted leaf of a document. It refuses when more than one
// deleted leaf could be meant.
func reattach(old *record, e *entry) error {
	winner, _ := old.RevTree.Winner()
	candidates := 0

	for _, leaf := range old.RevTree.Leaves() {
		if leaf.Deleted && leaf.Pos == winner.Pos {
			candidates++
		}
	}

	if candidates > 1 {
		return ErrRevConflict.withReason("ambiguous deleted leaves")
	}

	e.parent = winner.Rev()

	return e.assignRev()
}

// attach resolves the attachments of the written revision.
// Literal content is added to the document's content index
// and replaced by a stub in the body.
func (b *batch) attach(rec *record, e *entry) error {
	if len(e.attachments) == 0 {
		delete(e.body, "_attachments")

		return nil
	}

	gen, _, _ := revtree.ParseRev(e.rev)
	stubs := make(map[string]interface{}, len(e.attachments))

	for _, name := range e.attachmentNames() {
		attachment := e.attachments[name]

		if attachment.Stub {
			if err := rec.Attachments.Ref(attachment.Digest, e.rev); err != nil {
				return ErrMissingStub.withReason(fmt.Sprintf("%s: %s", name, attachment.Digest))
			}

			stored, _ := rec.Attachments.Get(attachment.Digest)
			attachment.Length = stored.Length

			if attachment.ContentType == "" {
				attachment.ContentType = stored.ContentType
			}

			if attachment.RevPos == 0 {
				attachment.RevPos = gen
			}

			stubs[name] = attachment.AsStub()

			continue
		}

		attachment.RevPos = gen

		if rec.Attachments.Add(attachment, e.rev) {
			if err := b.db.putBlob(b.txn, rec.ID, attachment); err != nil {
				return err
			}
		}

		attachment.Data = nil
		stubs[name] = attachment.AsStub()
	}

	e.body["_attachments"] = stubs

	return nil
}

// unindex removes the sequence and deleted index entries
// of a previous version of a record
func (b *batch) unindex(prev *record) error {
	if prev.Seq != 0 {
		if err := seqMap(b.txn).Delete(keys.Uint64ToKey(prev.Seq)); err != nil {
			return fmt.Errorf("could not delete sequence %d: %s", prev.Seq, err)
		}
	}

	if err := deletedMap(b.txn).Delete(deletedKey(prev.ID, prev.DeletedOrLocal)); err != nil {
		return fmt.Errorf("could not unindex document %q: %s", prev.ID, err)
	}

	return nil
}

func (b *batch) index(rec *record) error {
	if rec.Seq != 0 {
		if err := seqMap(b.txn).Put(keys.Uint64ToKey(rec.Seq), []byte(rec.ID)); err != nil {
			return fmt.Errorf("could not write sequence %d: %s", rec.Seq, err)
		}
	}

	if err := deletedMap(b.txn).Put(deletedKey(rec.ID, rec.DeletedOrLocal), nil); err != nil {
		return fmt.Errorf("could not index document %q: %s", rec.ID, err)
	}

	return nil
}

// remove physically deletes a record and its content
func (b *batch) remove(rec *record) error {
	for _, digest := range rec.Attachments.Digests() {
		if err := deleteBlob(b.txn, rec.ID, digest); err != nil {
			return err
		}
	}

	if err := docsMap(b.txn).Delete([]byte(rec.ID)); err != nil {
		return fmt.Errorf("could not delete document %q: %s", rec.ID, err)
	}

	b.docs[rec.ID] = nil

	return nil
}
