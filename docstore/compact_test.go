package docstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jrife/roost/docstore"
	"github.com/jrife/roost/storage/revtree"
)

func testCompact(builder tempEngineBuilder, t *testing.T) {
	engine, cleanup := builder(t)
	defer cleanup()

	db := openDB(t, engine, "db", docstore.DatabaseOptions{})
	rev1 := put(t, db, docstore.Document{"_id": "doc", "v": 1.0})
	rev2 := put(t, db, docstore.Document{"_id": "doc", "_rev": rev1, "v": 2.0})
	rev3 := put(t, db, docstore.Document{"_id": "doc", "_rev": rev2, "v": 3.0})
	_, hash1, _ := revtree.ParseRev(rev1)
	replicate(t, db, docstore.Document{"_id": "doc", "v": 4.0, "_revisions": map[string]interface{}{"start": 2, "ids": []interface{}{"x", hash1}}})

	statuses := func(t *testing.T) map[string]revtree.Status {
		tree, err := db.GetRevisionTree(context.Background(), "doc")

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		result := map[string]revtree.Status{}

		for _, node := range tree.Nodes {
			result[node.Rev()] = node.Status
		}

		return result
	}

	t.Run("compact revisions", func(t *testing.T) {
		if _, err := db.Get(context.Background(), "doc", docstore.GetOptions{Rev: rev1}); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if err := db.Compact(context.Background(), "doc", []string{rev1}); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if _, err := db.Get(context.Background(), "doc", docstore.GetOptions{Rev: rev1}); !errors.Is(err, docstore.ErrMissingDoc) {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrMissingDoc, err)
		}

		if status := statuses(t)[rev1]; status != revtree.StatusMissing {
			t.Fatalf("expected %s to be missing, got %s", rev1, status)
		}

		if _, err := db.Get(context.Background(), "doc", docstore.GetOptions{Rev: rev2}); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	})

	t.Run("compact all", func(t *testing.T) {
		if err := db.CompactAll(context.Background()); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		expected := map[string]revtree.Status{
			rev1:  revtree.StatusMissing,
			rev2:  revtree.StatusMissing,
			rev3:  revtree.StatusAvailable,
			"2-x": revtree.StatusAvailable,
		}

		for rev, status := range statuses(t) {
			if expected[rev] != status {
				t.Fatalf("expected %s to be %s, got %s", rev, expected[rev], status)
			}
		}

		doc, err := db.Get(context.Background(), "doc", docstore.GetOptions{Rev: "2-x"})

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if doc["v"] != 4.0 {
			t.Fatalf("expected v to be 4, got %#v", doc["v"])
		}

		doc, err = db.Get(context.Background(), "doc", docstore.GetOptions{})

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if doc["_rev"] != rev3 {
			t.Fatalf("expected winner %s, got %#v", rev3, doc["_rev"])
		}

		if err := db.CompactAll(context.Background()); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	})

	t.Run("missing document", func(t *testing.T) {
		if err := db.Compact(context.Background(), "nope", []string{"1-a"}); !errors.Is(err, docstore.ErrMissingDoc) {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrMissingDoc, err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		db := openDB(t, engine, "closed", docstore.DatabaseOptions{})

		if err := db.Close(); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if err := db.CompactAll(context.Background()); err != docstore.ErrClosed {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrClosed, err)
		}
	})
}
