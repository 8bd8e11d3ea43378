package docstore_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jrife/roost/docstore"
	"github.com/jrife/roost/storage/attachments"
)

func textAttachment(text string) map[string]interface{} {
	return map[string]interface{}{
		"content_type": "text/plain",
		"data":         base64.StdEncoding.EncodeToString([]byte(text)),
	}
}

func testAttachments(builder tempEngineBuilder, t *testing.T) {
	engine, cleanup := builder(t)
	defer cleanup()

	ctx := context.Background()
	db := openDB(t, engine, "db", docstore.DatabaseOptions{})
	digest := attachments.Digest([]byte("hello world"))
	image := []byte{0x89, 0x50, 0x4e, 0x47, 0x00, 0xff}

	rev1 := put(t, db, docstore.Document{
		"_id": "a",
		"_attachments": map[string]interface{}{
			"hello.txt": textAttachment("hello world"),
			"image.png": map[string]interface{}{"content_type": "image/png", "data": image},
		},
	})

	doc, err := db.Get(ctx, "a", docstore.GetOptions{})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	stubs := doc["_attachments"].(map[string]interface{})

	if diff := cmp.Diff(map[string]interface{}{
		"stub":         true,
		"digest":       digest,
		"content_type": "text/plain",
		"length":       11.0,
		"revpos":       1.0,
	}, stubs["hello.txt"]); diff != "" {
		t.Fatalf(diff)
	}

	doc, err = db.Get(ctx, "a", docstore.GetOptions{Attachments: true})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(map[string]interface{}{
		"digest":       digest,
		"content_type": "text/plain",
		"revpos":       1.0,
		"data":         base64.StdEncoding.EncodeToString([]byte("hello world")),
	}, doc["_attachments"].(map[string]interface{})["hello.txt"]); diff != "" {
		t.Fatalf(diff)
	}

	doc, err = db.Get(ctx, "a", docstore.GetOptions{Attachments: true, Binary: true})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(image, doc["_attachments"].(map[string]interface{})["image.png"].(map[string]interface{})["data"]); diff != "" {
		t.Fatalf(diff)
	}

	data, err := db.GetAttachment(ctx, "a", "hello.txt", docstore.AttachmentOptions{Binary: true})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if string(data) != "hello world" {
		t.Fatalf("expected hello world, got %q", data)
	}

	data, err = db.GetAttachment(ctx, "a", "image.png", docstore.AttachmentOptions{})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if string(data) != base64.StdEncoding.EncodeToString(image) {
		t.Fatalf("expected base64 content, got %q", data)
	}

	if _, err := db.GetAttachment(ctx, "a", "nope", docstore.AttachmentOptions{}); !errors.Is(err, docstore.ErrMissingDoc) {
		t.Fatalf("expected err to be %#v, got %#v", docstore.ErrMissingDoc, err)
	}

	// the second revision reuses hello.txt through a stub and drops image.png
	rev2 := put(t, db, docstore.Document{
		"_id":  "a",
		"_rev": rev1,
		"_attachments": map[string]interface{}{
			"hello.txt": map[string]interface{}{"stub": true, "digest": digest},
		},
	})

	if err := db.Compact(ctx, "a", []string{rev1}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	data, err = db.GetAttachment(ctx, "a", "hello.txt", docstore.AttachmentOptions{Rev: rev2, Binary: true})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if string(data) != "hello world" {
		t.Fatalf("expected hello world, got %q", data)
	}

	if _, err := db.GetAttachment(ctx, "a", "image.png", docstore.AttachmentOptions{Rev: rev1}); !errors.Is(err, docstore.ErrMissingDoc) {
		t.Fatalf("expected err to be %#v, got %#v", docstore.ErrMissingDoc, err)
	}

	// a stub for content the document released is rejected
	_, err = db.BulkDocs(ctx, []docstore.Document{{
		"_id":  "a",
		"_rev": rev2,
		"_attachments": map[string]interface{}{
			"image.png": map[string]interface{}{"stub": true, "digest": attachments.Digest(image)},
		},
	}}, docstore.BulkDocsOptions{})

	if !errors.Is(err, docstore.ErrMissingStub) {
		t.Fatalf("expected err to be %#v, got %#v", docstore.ErrMissingStub, err)
	}

	allDocs, err := db.AllDocs(ctx, docstore.AllDocsOptions{IncludeDocs: true, Attachments: true})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(
		base64.StdEncoding.EncodeToString([]byte("hello world")),
		allDocs.Rows[0].Doc["_attachments"].(map[string]interface{})["hello.txt"].(map[string]interface{})["data"],
	); diff != "" {
		t.Fatalf(diff)
	}
}
