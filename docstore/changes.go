package docstore

import (
	"context"

	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/storage/kv/keys"
	"github.com/jrife/roost/utils/log"
	"go.uber.org/zap"
)

// change returns the change record of the document's
// current version. Doc is always set.
func (rec *record) change(options ChangesOptions) Change {
	change := Change{ID: rec.ID, Seq: rec.Seq, Rev: rec.Rev, Deleted: rec.Deleted, Doc: rec.document(rec.Rev)}

	if options.Style == StyleAllDocs {
		for _, leaf := range rec.RevTree.Leaves() {
			change.Changes = append(change.Changes, ChangeRev{Rev: leaf.Rev()})
		}
	} else {
		change.Changes = []ChangeRev{{Rev: rec.Rev}}
	}

	if options.Conflicts {
		if conflicts := rec.RevTree.Conflicts(); len(conflicts) > 0 {
			change.Doc["_conflicts"] = conflicts
		}
	}

	return change
}

// Changes implements Database.Changes
func (db *database) Changes(ctx context.Context, options ChangesOptions) (ChangesResponse, error) {
	logger := log.WithContext(ctx, db.logger).With(zap.String("operation", "Changes"))
	logger.Debug("start Changes()", zap.Uint64("since", options.Since), zap.Bool("descending", options.Descending))

	if err := db.lifecycle.Acquire(); err != nil {
		return ChangesResponse{}, ErrClosed
	}

	response, accepted, err := db.scanChanges(ctx, options)
	db.lifecycle.Release()

	if err != nil {
		logger.Debug("error", zap.Error(err))

		return ChangesResponse{}, err
	}

	response.deliver(options, accepted, nil)
	logger.Debug("return from Changes()", zap.Int("results", len(response.Results)), zap.Uint64("last_seq", response.LastSeq))

	return response, nil
}

// deliver hands accepted changes to OnChange and collects
// them into Results. It runs after the scan has released the
// database so that OnChange may use or close it. Delivery
// stops early once stop returns true.
func (response *ChangesResponse) deliver(options ChangesOptions, accepted []Change, stop func() bool) {
	for _, change := range accepted {
		if stop != nil && stop() {
			return
		}

		if options.OnChange != nil {
			options.OnChange(change)
		}

		if options.returnDocs() {
			response.Results = append(response.Results, change)
		}
	}
}

// scanChanges scans the sequence index once and returns the
// accepted changes with their attachments inlined. The caller
// delivers them.
func (db *database) scanChanges(ctx context.Context, options ChangesOptions) (ChangesResponse, []Change, error) {
	response := ChangesResponse{Results: []Change{}, LastSeq: options.Since}
	limit := -1

	if options.Limit != nil {
		limit = *options.Limit

		if limit == 0 {
			limit = 1
		}
	}

	var docIDs map[string]bool

	if options.DocIDs != nil {
		docIDs = make(map[string]bool, len(options.DocIDs))

		for _, id := range options.DocIDs {
			docIDs[id] = true
		}
	}

	r := keys.All()
	order := kv.SortOrderAsc

	if options.Descending {
		order = kv.SortOrderDesc
		response.LastSeq = 0
	} else {
		r = r.Gt(keys.Uint64ToKey(options.Since))
	}

	var accepted []Change
	var pending []pendingBlob
	var filterErr error

	err := db.view(func(txn kv.Transaction) error {
		iter, err := seqMap(txn).Keys(r, order)

		if err != nil {
			return err
		}

		for iter.Next() {
			if limit >= 0 && len(accepted) >= limit {
				break
			}

			if err := ctx.Err(); err != nil {
				return err
			}

			id := string(iter.Value())
			response.LastSeq = keys.KeyToUint64(iter.Key())

			if docIDs != nil && !docIDs[id] {
				continue
			}

			rec, err := readRecord(txn, id)

			if err != nil {
				return err
			}

			if rec == nil {
				continue
			}

			change := rec.change(options)

			if options.Filter != nil {
				ok, err := options.Filter(change)

				if err != nil {
					filterErr = err

					return err
				}

				if !ok {
					continue
				}
			}

			if !options.IncludeDocs {
				change.Doc = nil
			} else if options.Attachments {
				blobs, err := collectBlobs(txn, id, change.Doc)

				if err != nil {
					return err
				}

				pending = append(pending, blobs...)
			}

			accepted = append(accepted, change)
		}

		return iter.Error()
	})

	if filterErr != nil {
		return ChangesResponse{}, nil, filterErr
	}

	if err == nil && len(pending) > 0 {
		err = db.inlineBlobs(ctx, pending, options.Binary)
	}

	if err != nil {
		return ChangesResponse{}, nil, wrapError("could not scan changes", err)
	}

	return response, accepted, nil
}
