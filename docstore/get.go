package docstore

import (
	"context"

	"github.com/jrife/roost/storage/attachments"
	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/storage/revtree"
	"github.com/jrife/roost/utils/log"
	"go.uber.org/zap"
)

// Get implements Database.Get
func (db *database) Get(ctx context.Context, id string, options GetOptions) (Document, error) {
	logger := log.WithContext(ctx, db.logger).With(zap.String("operation", "Get"))
	logger.Debug("start Get()", zap.String("id", id), zap.String("rev", options.Rev))

	if err := db.lifecycle.Acquire(); err != nil {
		return nil, ErrClosed
	}

	defer db.lifecycle.Release()

	var doc Document
	var pending []pendingBlob

	err := db.view(func(txn kv.Transaction) error {
		rec, err := readRecord(txn, id)

		if err != nil {
			return err
		}

		if rec == nil || (rec.Deleted && options.Rev == "") {
			return ErrMissingDoc
		}

		rev := options.Rev

		if rev == "" {
			rev = rec.Rev
		}

		if _, ok := rec.Revs[rev]; !ok {
			return ErrMissingDoc
		}

		doc = rec.document(rev)

		if options.Conflicts {
			if conflicts := rec.RevTree.Conflicts(); len(conflicts) > 0 {
				doc["_conflicts"] = conflicts
			}
		}

		if options.Revs {
			if pos, ids, ok := rec.RevTree.Ancestry(rev); ok {
				doc["_revisions"] = map[string]interface{}{"start": pos, "ids": ids}
			}
		}

		if options.Attachments {
			pending, err = collectBlobs(txn, id, doc)
		}

		return err
	})

	if err == nil && len(pending) > 0 {
		err = db.inlineBlobs(ctx, pending, options.Binary)
	}

	if err != nil {
		err = wrapError("could not get document", err)
		logger.Debug("error", zap.Error(err))

		return nil, err
	}

	logger.Debug("return from Get()", zap.Any("rev", doc["_rev"]))

	return doc, nil
}

// GetAttachment implements Database.GetAttachment
func (db *database) GetAttachment(ctx context.Context, docID string, name string, options AttachmentOptions) ([]byte, error) {
	logger := log.WithContext(ctx, db.logger).With(zap.String("operation", "GetAttachment"))
	logger.Debug("start GetAttachment()", zap.String("id", docID), zap.String("name", name), zap.String("rev", options.Rev))

	if err := db.lifecycle.Acquire(); err != nil {
		return nil, ErrClosed
	}

	defer db.lifecycle.Release()

	var blob []byte

	err := db.view(func(txn kv.Transaction) error {
		rec, err := readRecord(txn, docID)

		if err != nil {
			return err
		}

		if rec == nil {
			return ErrMissingDoc
		}

		rev := options.Rev

		if rev == "" {
			rev = rec.Rev
		}

		if _, ok := rec.Revs[rev]; !ok {
			return ErrMissingDoc
		}

		stubs, _ := rec.Revs[rev].Data["_attachments"].(map[string]interface{})
		stub, _ := stubs[name].(map[string]interface{})
		digest, _ := stub["digest"].(string)

		if digest == "" {
			return ErrMissingDoc.withReason("no such attachment")
		}

		if blob, err = readBlob(txn, docID, digest); err != nil {
			return err
		}

		if blob == nil {
			return ErrMissingDoc.withReason("no such attachment")
		}

		return nil
	})

	if err != nil {
		err = wrapError("could not get attachment", err)
		logger.Debug("error", zap.Error(err))

		return nil, err
	}

	data, err := db.codec.Decode(blob)

	if err != nil {
		err = ErrBackend.wrap(err)
		logger.Error("could not decode attachment", zap.Error(err))

		return nil, err
	}

	if !options.Binary {
		data = []byte(attachments.Inline(data, false).(string))
	}

	logger.Debug("return from GetAttachment()", zap.Int("length", len(data)))

	return data, nil
}

// GetRevisionTree implements Database.GetRevisionTree
func (db *database) GetRevisionTree(ctx context.Context, id string) (revtree.Tree, error) {
	logger := log.WithContext(ctx, db.logger).With(zap.String("operation", "GetRevisionTree"))
	logger.Debug("start GetRevisionTree()", zap.String("id", id))

	if err := db.lifecycle.Acquire(); err != nil {
		return revtree.Tree{}, ErrClosed
	}

	defer db.lifecycle.Release()

	var tree revtree.Tree

	err := db.view(func(txn kv.Transaction) error {
		rec, err := readRecord(txn, id)

		if err != nil {
			return err
		}

		if rec == nil {
			return ErrMissingDoc
		}

		tree = rec.RevTree

		return nil
	})

	if err != nil {
		err = wrapError("could not get revision tree", err)
		logger.Debug("error", zap.Error(err))

		return revtree.Tree{}, err
	}

	logger.Debug("return from GetRevisionTree()", zap.Int("nodes", len(tree.Nodes)))

	return tree, nil
}
