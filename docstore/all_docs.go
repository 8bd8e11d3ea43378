package docstore

import (
	"context"

	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/storage/kv/keys"
	"github.com/jrife/roost/utils/log"
	"github.com/jrife/roost/utils/stream"
	"go.uber.org/zap"
)

// bound is one end of an id range
type bound struct {
	key  string
	open bool
	set  bool
}

// idRange is an id range in ascending order regardless
// of the direction it is scanned in
type idRange struct {
	lower bound
	upper bound
}

// idRangeFor builds the range selected by options. ok is
// false if the range is inverted, which selects nothing.
func idRangeFor(options AllDocsOptions) (idRange, bool) {
	var r idRange

	inclusiveEnd := options.inclusiveEnd()

	switch {
	case options.StartKey != "" && options.EndKey != "":
		if options.Descending {
			r.lower = bound{key: options.EndKey, open: !inclusiveEnd, set: true}
			r.upper = bound{key: options.StartKey, set: true}
		} else {
			r.lower = bound{key: options.StartKey, set: true}
			r.upper = bound{key: options.EndKey, open: !inclusiveEnd, set: true}
		}
	case options.StartKey != "":
		if options.Descending {
			r.upper = bound{key: options.StartKey, set: true}
		} else {
			r.lower = bound{key: options.StartKey, set: true}
		}
	case options.EndKey != "":
		if options.Descending {
			r.lower = bound{key: options.EndKey, open: !inclusiveEnd, set: true}
		} else {
			r.upper = bound{key: options.EndKey, open: !inclusiveEnd, set: true}
		}
	case options.Key != "":
		r.lower = bound{key: options.Key, set: true}
		r.upper = bound{key: options.Key, set: true}
	}

	if r.lower.set && r.upper.set {
		if r.lower.key > r.upper.key {
			return r, false
		}

		if r.lower.key == r.upper.key && (r.lower.open || r.upper.open) {
			return r, false
		}
	}

	return r, true
}

func (r idRange) keys() keys.Range {
	kr := keys.All()

	switch {
	case r.lower.set && r.lower.open:
		kr = kr.Gt([]byte(r.lower.key))
	case r.lower.set:
		kr = kr.Gte([]byte(r.lower.key))
	}

	switch {
	case r.upper.set && r.upper.open:
		kr = kr.Lt([]byte(r.upper.key))
	case r.upper.set:
		kr = kr.Lte([]byte(r.upper.key))
	}

	return kr
}

// AllDocs implements Database.AllDocs
func (db *database) AllDocs(ctx context.Context, options AllDocsOptions) (AllDocsResponse, error) {
	logger := log.WithContext(ctx, db.logger).With(zap.String("operation", "AllDocs"))
	logger.Debug("start AllDocs()", zap.Any("options", options))

	if err := db.lifecycle.Acquire(); err != nil {
		return AllDocsResponse{}, ErrClosed
	}

	defer db.lifecycle.Release()

	response := AllDocsResponse{TotalRows: db.currentMeta().DocCount, Offset: options.Skip, Rows: []Row{}}
	r, ok := idRangeFor(options)

	if !ok || (options.Limit != nil && *options.Limit == 0) {
		logger.Debug("return from AllDocs()", zap.Int("rows", 0))

		return response, nil
	}

	limit := -1

	if options.Limit != nil {
		limit = *options.Limit
	}

	order := kv.SortOrderAsc

	if options.Descending {
		order = kv.SortOrderDesc
	}

	var pending []pendingBlob

	err := db.view(func(txn kv.Transaction) error {
		meta, _, err := readMetadata(txn)

		if err != nil {
			return err
		}

		response.TotalRows = meta.DocCount
		iter, err := docsMap(txn).Keys(r.keys(), order)

		if err != nil {
			return err
		}

		rows := stream.Pipeline(kv.Stream(iter),
			stream.Filter(func(value interface{}) bool {
				return !isLocal(string(value.(kv.KV).Key()))
			}),
			stream.Map(func(value interface{}) (interface{}, error) {
				return decodeRecord(value.(kv.KV).Value())
			}),
			stream.Filter(func(value interface{}) bool {
				return !value.(*record).Deleted || options.Deleted == "ok"
			}),
			stream.Skip(options.Skip),
			stream.Limit(limit),
			stream.Log(logger),
		)

		for rows.Next() {
			rec := rows.Value().(*record)
			row := Row{ID: rec.ID, Key: rec.ID, Value: RowValue{Rev: rec.Rev, Deleted: rec.Deleted}}

			if options.IncludeDocs && !rec.Deleted {
				row.Doc = rec.document(rec.Rev)

				if options.Conflicts {
					if conflicts := rec.RevTree.Conflicts(); len(conflicts) > 0 {
						row.Doc["_conflicts"] = conflicts
					}
				}

				if options.Attachments {
					blobs, err := collectBlobs(txn, rec.ID, row.Doc)

					if err != nil {
						return err
					}

					pending = append(pending, blobs...)
				}
			}

			response.Rows = append(response.Rows, row)
		}

		return rows.Error()
	})

	if err == nil && len(pending) > 0 {
		err = db.inlineBlobs(ctx, pending, options.Binary)
	}

	if err != nil {
		err = wrapError("could not list documents", err)
		logger.Debug("error", zap.Error(err))

		return AllDocsResponse{}, err
	}

	logger.Debug("return from AllDocs()", zap.Int("rows", len(response.Rows)))

	return response, nil
}
