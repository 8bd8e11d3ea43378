package docstore

import (
	"context"

	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/storage/kv/keys"
	"github.com/jrife/roost/storage/revtree"
	"github.com/jrife/roost/utils/log"
	"go.uber.org/zap"
)

// Compact implements Database.Compact
func (db *database) Compact(ctx context.Context, id string, revs []string) error {
	logger := log.WithContext(ctx, db.logger).With(zap.String("operation", "Compact"))
	logger.Debug("start Compact()", zap.String("id", id), zap.Strings("revs", revs))

	if err := db.lifecycle.Acquire(); err != nil {
		return ErrClosed
	}

	defer db.lifecycle.Release()

	if err := db.compact(id, revs); err != nil {
		logger.Debug("error", zap.Error(err))

		return err
	}

	logger.Debug("return from Compact()")

	return nil
}

func (db *database) compact(id string, revs []string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	compacted := 0

	err := db.update(func(txn kv.Transaction) error {
		rec, err := readRecord(txn, id)

		if err != nil {
			return err
		}

		if rec == nil {
			return ErrMissingDoc
		}

		targets := make(map[string]bool, len(revs))

		for _, rev := range revs {
			targets[rev] = true
		}

		rec.RevTree.Traverse(func(node *revtree.Node) bool {
			if targets[node.Rev()] {
				node.Status = revtree.StatusMissing
			}

			return true
		})

		for _, rev := range revs {
			if err := releaseRevision(txn, rec, rev); err != nil {
				return err
			}

			if _, ok := rec.Revs[rev]; ok {
				delete(rec.Revs, rev)
				compacted++
			}
		}

		return writeRecord(txn, rec)
	})

	if err != nil {
		return wrapError("could not compact document", err)
	}

	db.metrics.CompactedRevisions.Add(float64(compacted))

	return nil
}

// CompactAll implements Database.CompactAll
func (db *database) CompactAll(ctx context.Context) error {
	logger := log.WithContext(ctx, db.logger).With(zap.String("operation", "CompactAll"))
	logger.Debug("start CompactAll()")

	if err := db.lifecycle.Acquire(); err != nil {
		return ErrClosed
	}

	defer db.lifecycle.Release()

	work := map[string][]string{}
	var ids []string

	err := db.view(func(txn kv.Transaction) error {
		iter, err := docsMap(txn).Keys(keys.All(), kv.SortOrderAsc)

		if err != nil {
			return err
		}

		for iter.Next() {
			if isLocal(string(iter.Key())) {
				continue
			}

			rec, err := decodeRecord(iter.Value())

			if err != nil {
				return err
			}

			if revs := compactable(rec.RevTree); len(revs) > 0 {
				ids = append(ids, rec.ID)
				work[rec.ID] = revs
			}
		}

		return iter.Error()
	})

	if err != nil {
		err = wrapError("could not scan documents", err)
		logger.Debug("error", zap.Error(err))

		return err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := db.compact(id, work[id]); err != nil {
			logger.Debug("error", zap.String("id", id), zap.Error(err))

			return err
		}
	}

	logger.Debug("return from CompactAll()", zap.Int("docs", len(ids)))

	return nil
}

// compactable lists the available revisions of tree that are not leaves
func compactable(tree revtree.Tree) []string {
	var revs []string

	tree.Traverse(func(node *revtree.Node) bool {
		if node.Status == revtree.StatusAvailable && !tree.IsLeaf(node.Rev()) {
			revs = append(revs, node.Rev())
		}

		return true
	})

	return revs
}
