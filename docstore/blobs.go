package docstore

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jrife/roost/storage/attachments"
	"github.com/jrife/roost/storage/kv"
)

// maxBlobWorkers bounds the goroutines decoding or
// encoding attachment content for one operation
const maxBlobWorkers = 8

// materializeAttachments decodes and digests the literal
// attachments of every entry before the write transaction
// opens. Malformed attachments fail their entry only.
func materializeAttachments(ctx context.Context, entries []*entry) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBlobWorkers)

	for _, e := range entries {
		if e == nil || len(e.rawAtts) == 0 {
			continue
		}

		e := e

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			e.attachments = make(map[string]attachments.Attachment, len(e.rawAtts))

			for name, raw := range e.rawAtts {
				attachment, err := attachments.Materialize(name, raw)

				switch {
				case errors.Is(err, attachments.ErrBadBase64):
					e.err = badArg("Attachment is not a valid base64 string")

					return nil
				case errors.Is(err, attachments.ErrBadAttachment):
					e.err = badArg("%s", err)

					return nil
				case err != nil:
					return err
				}

				e.attachments[name] = attachment
			}

			return nil
		})
	}

	return g.Wait()
}

func (db *database) putBlob(txn kv.Transaction, id string, attachment attachments.Attachment) error {
	blob, err := db.codec.Encode(attachment.ContentType, attachment.Data)

	if err != nil {
		return fmt.Errorf("could not encode attachment %q: %s", attachment.Name, err)
	}

	if err := attachmentsMap(txn, id).Put([]byte(attachment.Digest), blob); err != nil {
		return fmt.Errorf("could not write attachment %q: %s", attachment.Name, err)
	}

	return nil
}

func deleteBlob(txn kv.Transaction, id string, digest string) error {
	if err := attachmentsMap(txn, id).Delete([]byte(digest)); err != nil {
		return fmt.Errorf("could not delete attachment %s: %s", digest, err)
	}

	return nil
}

// readBlob returns a copy of the encoded blob. It returns
// nil if the blob does not exist.
func readBlob(txn kv.Transaction, id string, digest string) ([]byte, error) {
	blob, err := attachmentsMap(txn, id).Get([]byte(digest))

	if err != nil {
		return nil, fmt.Errorf("could not read attachment %s: %s", digest, err)
	}

	if blob == nil {
		return nil, nil
	}

	return append([]byte(nil), blob...), nil
}

// releaseRevision drops rev's references from the document's
// content index and deletes content nothing references anymore
func releaseRevision(txn kv.Transaction, rec *record, rev string) error {
	for _, digest := range rec.Attachments.Digests() {
		if !rec.Attachments.Release(digest, rev) {
			continue
		}

		if err := deleteBlob(txn, rec.ID, digest); err != nil {
			return err
		}
	}

	return nil
}

// pendingBlob is attachment content read inside a transaction
// and decoded into its stub after the transaction ends
type pendingBlob struct {
	stub map[string]interface{}
	blob []byte
}

// collectBlobs reads the content of every attachment stub in doc
func collectBlobs(txn kv.Transaction, id string, doc Document) ([]pendingBlob, error) {
	stubs, _ := doc["_attachments"].(map[string]interface{})
	pending := make([]pendingBlob, 0, len(stubs))

	for name, raw := range stubs {
		stub, ok := raw.(map[string]interface{})

		if !ok {
			continue
		}

		digest, _ := stub["digest"].(string)
		blob, err := readBlob(txn, id, digest)

		if err != nil {
			return nil, err
		}

		if blob == nil {
			return nil, fmt.Errorf("attachment %q of document %q has no content", name, id)
		}

		pending = append(pending, pendingBlob{stub: stub, blob: blob})
	}

	return pending, nil
}

// inlineBlobs decodes pending content concurrently and replaces
// each stub's stub marker with the content. It returns once
// every blob is done or one failed.
func (db *database) inlineBlobs(ctx context.Context, pending []pendingBlob, binary bool) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBlobWorkers)

	decoded := make([][]byte, len(pending))

	for i := range pending {
		i := i

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			data, err := db.codec.Decode(pending[i].blob)

			if err != nil {
				return fmt.Errorf("could not decode attachment: %s", err)
			}

			decoded[i] = data

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for i, p := range pending {
		delete(p.stub, "stub")
		p.stub["data"] = attachments.Inline(decoded[i], binary)

		if !binary {
			delete(p.stub, "length")
		}
	}

	return nil
}
