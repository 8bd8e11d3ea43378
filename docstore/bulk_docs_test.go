package docstore_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jrife/roost/docstore"
	"github.com/jrife/roost/storage/revtree"
)

func generation(t *testing.T, rev string) int {
	pos, _, err := revtree.ParseRev(rev)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return pos
}

func testBulkDocs(builder tempEngineBuilder, t *testing.T) {
	t.Run("first writes are deterministic", func(t *testing.T) {
		engine, cleanup := builder(t)
		defer cleanup()

		a := openDB(t, engine, "a", docstore.DatabaseOptions{})
		b := openDB(t, engine, "b", docstore.DatabaseOptions{})

		revA := put(t, a, docstore.Document{"_id": "doc", "value": 1.0})
		revB := put(t, b, docstore.Document{"_id": "doc", "value": 1.0})

		if generation(t, revA) != 1 {
			t.Fatalf("expected generation 1, got %s", revA)
		}

		if revA != revB {
			t.Fatalf("expected identical content to produce identical revisions, got %s and %s", revA, revB)
		}

		revC := put(t, b, docstore.Document{"_id": "other", "value": 2.0})

		if revC == revA {
			t.Fatalf("expected different content to produce a different revision")
		}
	})

	t.Run("edits and stale edits", func(t *testing.T) {
		engine, cleanup := builder(t)
		defer cleanup()

		db := openDB(t, engine, "db", docstore.DatabaseOptions{})
		rev1 := put(t, db, docstore.Document{"_id": "a", "value": 1.0})
		rev2 := put(t, db, docstore.Document{"_id": "a", "_rev": rev1, "value": 2.0})

		if generation(t, rev2) != 2 {
			t.Fatalf("expected generation 2, got %s", rev2)
		}

		results := bulkDocs(t, db, docstore.BulkDocsOptions{}, docstore.Document{"_id": "a", "_rev": rev1, "value": 3.0})

		if !errors.Is(results[0].Err, docstore.ErrRevConflict) {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrRevConflict, results[0].Err)
		}

		results = bulkDocs(t, db, docstore.BulkDocsOptions{}, docstore.Document{"_id": "a", "value": 4.0})

		if !errors.Is(results[0].Err, docstore.ErrRevConflict) {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrRevConflict, results[0].Err)
		}

		doc, err := db.Get(context.Background(), "a", docstore.GetOptions{})

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if diff := cmp.Diff(docstore.Document{"_id": "a", "_rev": rev2, "value": 2.0}, doc); diff != "" {
			t.Fatalf(diff)
		}

		doc, err = db.Get(context.Background(), "a", docstore.GetOptions{Rev: rev1, Revs: true})

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if diff := cmp.Diff(docstore.Document{
			"_id":        "a",
			"_rev":       rev1,
			"value":      1.0,
			"_revisions": map[string]interface{}{"start": 1, "ids": []string{strings.SplitN(rev1, "-", 2)[1]}},
		}, doc); diff != "" {
			t.Fatalf(diff)
		}
	})

	t.Run("known revisions are acknowledged", func(t *testing.T) {
		engine, cleanup := builder(t)
		defer cleanup()

		db := openDB(t, engine, "db", docstore.DatabaseOptions{})
		rev := put(t, db, docstore.Document{"_id": "a", "value": 1.0})
		again := put(t, db, docstore.Document{"_id": "a", "value": 1.0})

		if again != rev {
			t.Fatalf("expected %s, got %s", rev, again)
		}

		info, err := db.Info(context.Background())

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if info.UpdateSeq != 1 {
			t.Fatalf("expected update_seq 1, got %d", info.UpdateSeq)
		}
	})

	t.Run("later entries see earlier ones", func(t *testing.T) {
		engine, cleanup := builder(t)
		defer cleanup()

		db := openDB(t, engine, "db", docstore.DatabaseOptions{})
		results := bulkDocs(t, db, docstore.BulkDocsOptions{},
			docstore.Document{"_id": "a", "value": 1.0},
			docstore.Document{"_id": "a", "value": 2.0},
		)

		if results[0].Err != nil {
			t.Fatalf("expected err to be nil, got %#v", results[0].Err)
		}

		if !errors.Is(results[1].Err, docstore.ErrRevConflict) {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrRevConflict, results[1].Err)
		}
	})

	t.Run("generated ids", func(t *testing.T) {
		engine, cleanup := builder(t)
		defer cleanup()

		db := openDB(t, engine, "db", docstore.DatabaseOptions{})
		result := bulkDocs(t, db, docstore.BulkDocsOptions{}, docstore.Document{"value": 1.0})[0]

		if result.Err != nil || result.ID == "" {
			t.Fatalf("expected a generated id, got %#v", result)
		}

		if _, err := db.Get(context.Background(), result.ID, docstore.GetOptions{}); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	})

	t.Run("doc count", func(t *testing.T) {
		engine, cleanup := builder(t)
		defer cleanup()

		db := openDB(t, engine, "db", docstore.DatabaseOptions{})
		revs := map[string]string{}

		for _, id := range []string{"a", "b", "c"} {
			revs[id] = put(t, db, docstore.Document{"_id": id})
		}

		put(t, db, docstore.Document{"_id": "b", "_rev": revs["b"], "_deleted": true})

		info, err := db.Info(context.Background())

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if diff := cmp.Diff(docstore.Info{DBName: "db", DocCount: 2, UpdateSeq: 4}, info); diff != "" {
			t.Fatalf(diff)
		}

		put(t, db, docstore.Document{"_id": "b"})

		info, err = db.Info(context.Background())

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if diff := cmp.Diff(docstore.Info{DBName: "db", DocCount: 3, UpdateSeq: 5}, info); diff != "" {
			t.Fatalf(diff)
		}
	})
}

func testBulkDocsErrors(builder tempEngineBuilder, t *testing.T) {
	testCases := map[string]struct {
		options docstore.BulkDocsOptions
		doc     docstore.Document
		err     error
	}{
		"bad special member": {
			doc: docstore.Document{"_id": "a", "_foo": 1.0},
			err: docstore.ErrBadArg,
		},
		"reserved id": {
			doc: docstore.Document{"_id": "_foo"},
			err: docstore.ErrBadArg,
		},
		"invalid rev": {
			doc: docstore.Document{"_id": "a", "_rev": "foo"},
			err: docstore.ErrBadArg,
		},
		"parent of missing document": {
			doc: docstore.Document{"_id": "a", "_rev": "1-abc"},
			err: docstore.ErrRevConflict,
		},
		"first write is a delete": {
			options: docstore.BulkDocsOptions{WasDelete: true},
			doc:     docstore.Document{"_id": "a", "_deleted": true},
			err:     docstore.ErrMissingDoc,
		},
		"invalid base64": {
			doc: docstore.Document{"_id": "a", "_attachments": map[string]interface{}{
				"file": map[string]interface{}{"content_type": "text/plain", "data": "%%%"},
			}},
			err: docstore.ErrBadArg,
		},
		"missing id without new edits": {
			options: docstore.BulkDocsOptions{NewEdits: boolPtr(false)},
			doc:     docstore.Document{"_rev": "1-abc"},
			err:     docstore.ErrBadArg,
		},
		"missing rev without new edits": {
			options: docstore.BulkDocsOptions{NewEdits: boolPtr(false)},
			doc:     docstore.Document{"_id": "a"},
			err:     docstore.ErrBadArg,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			engine, cleanup := builder(t)
			defer cleanup()

			db := openDB(t, engine, "db", docstore.DatabaseOptions{})
			sibling := docstore.Document{"_id": "sibling"}

			if testCase.options.NewEdits != nil && !*testCase.options.NewEdits {
				sibling["_rev"] = "1-abc"
			}

			results := bulkDocs(t, db, testCase.options, testCase.doc, sibling)

			if !errors.Is(results[0].Err, testCase.err) {
				t.Fatalf("expected err to be %#v, got %#v", testCase.err, results[0].Err)
			}

			if results[1].Err != nil && !testCase.options.WasDelete {
				t.Fatalf("expected sibling to be written, got %#v", results[1].Err)
			}
		})
	}

	t.Run("missing stub aborts the batch", func(t *testing.T) {
		engine, cleanup := builder(t)
		defer cleanup()

		db := openDB(t, engine, "db", docstore.DatabaseOptions{})
		results, err := db.BulkDocs(context.Background(), []docstore.Document{
			{"_id": "b", "value": 1.0},
			{"_id": "a", "_attachments": map[string]interface{}{
				"file": map[string]interface{}{"stub": true, "digest": "md5-" + base64.StdEncoding.EncodeToString([]byte("nope"))},
			}},
		}, docstore.BulkDocsOptions{})

		if !errors.Is(err, docstore.ErrMissingStub) {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrMissingStub, err)
		}

		if results != nil {
			t.Fatalf("expected no results, got %#v", results)
		}

		if _, err := db.Get(context.Background(), "b", docstore.GetOptions{}); !errors.Is(err, docstore.ErrMissingDoc) {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrMissingDoc, err)
		}

		info, err := db.Info(context.Background())

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if diff := cmp.Diff(docstore.Info{DBName: "db"}, info); diff != "" {
			t.Fatalf(diff)
		}
	})
}

func testDeleteAndRecreate(builder tempEngineBuilder, t *testing.T) {
	engine, cleanup := builder(t)
	defer cleanup()

	db := openDB(t, engine, "db", docstore.DatabaseOptions{})
	rev1 := put(t, db, docstore.Document{"_id": "a", "value": 1.0})
	rev2 := put(t, db, docstore.Document{"_id": "a", "_rev": rev1, "_deleted": true})

	if _, err := db.Get(context.Background(), "a", docstore.GetOptions{}); !errors.Is(err, docstore.ErrMissingDoc) {
		t.Fatalf("expected err to be %#v, got %#v", docstore.ErrMissingDoc, err)
	}

	doc, err := db.Get(context.Background(), "a", docstore.GetOptions{Rev: rev2})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(docstore.Document{"_id": "a", "_rev": rev2, "_deleted": true}, doc); diff != "" {
		t.Fatalf(diff)
	}

	results := bulkDocs(t, db, docstore.BulkDocsOptions{}, docstore.Document{"_id": "a", "_rev": rev2, "_deleted": true})

	if !errors.Is(results[0].Err, docstore.ErrRevConflict) {
		t.Fatalf("expected err to be %#v, got %#v", docstore.ErrRevConflict, results[0].Err)
	}

	rev3 := put(t, db, docstore.Document{"_id": "a", "value": 3.0})

	if generation(t, rev3) != 3 {
		t.Fatalf("expected the new revision to extend the deleted one, got %s", rev3)
	}

	tree, err := db.GetRevisionTree(context.Background(), "a")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if len(tree.Leaves()) != 1 {
		t.Fatalf("expected a single lineage, got %#v", tree)
	}

	doc, err = db.Get(context.Background(), "a", docstore.GetOptions{})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(docstore.Document{"_id": "a", "_rev": rev3, "value": 3.0}, doc); diff != "" {
		t.Fatalf(diff)
	}
}

func testReplication(builder tempEngineBuilder, t *testing.T) {
	engine, cleanup := builder(t)
	defer cleanup()

	db := openDB(t, engine, "db", docstore.DatabaseOptions{})
	results := replicate(t, db,
		docstore.Document{"_id": "c", "_rev": "1-a", "value": 1.0},
		docstore.Document{"_id": "c", "_revisions": map[string]interface{}{"start": 2, "ids": []interface{}{"b", "a"}}, "value": 2.0},
		docstore.Document{"_id": "c", "_revisions": map[string]interface{}{"start": 2, "ids": []interface{}{"c", "a"}}, "value": 3.0},
		docstore.Document{"_id": "c", "_rev": "2-b", "value": 2.0},
	)

	var revs []string

	for _, result := range results {
		if result.Err != nil {
			t.Fatalf("expected err to be nil, got %#v", result.Err)
		}

		revs = append(revs, result.Rev)
	}

	if diff := cmp.Diff([]string{"1-a", "2-b", "2-c", "2-b"}, revs); diff != "" {
		t.Fatalf(diff)
	}

	doc, err := db.Get(context.Background(), "c", docstore.GetOptions{Conflicts: true, Revs: true})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(docstore.Document{
		"_id":        "c",
		"_rev":       "2-c",
		"value":      3.0,
		"_conflicts": []string{"2-b"},
		"_revisions": map[string]interface{}{"start": 2, "ids": []string{"c", "a"}},
	}, doc); diff != "" {
		t.Fatalf(diff)
	}

	info, err := db.Info(context.Background())

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(docstore.Info{DBName: "db", DocCount: 1, UpdateSeq: 3}, info); diff != "" {
		t.Fatalf(diff)
	}

	// deleting the winner promotes the conflict
	put(t, db, docstore.Document{"_id": "c", "_rev": "2-c", "_deleted": true})

	doc, err = db.Get(context.Background(), "c", docstore.GetOptions{})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if doc["_rev"] != "2-b" {
		t.Fatalf("expected 2-b to win, got %v", doc["_rev"])
	}
}

func testRevsLimit(builder tempEngineBuilder, t *testing.T) {
	engine, cleanup := builder(t)
	defer cleanup()

	db := openDB(t, engine, "db", docstore.DatabaseOptions{RevsLimit: 2})
	revs := []string{put(t, db, docstore.Document{"_id": "a", "value": 0.0})}

	for i := 1; i < 4; i++ {
		revs = append(revs, put(t, db, docstore.Document{"_id": "a", "_rev": revs[i-1], "value": float64(i)}))
	}

	tree, err := db.GetRevisionTree(context.Background(), "a")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	var kept []string

	for _, node := range tree.Nodes {
		kept = append(kept, node.Rev())
	}

	if diff := cmp.Diff(revs[2:], kept); diff != "" {
		t.Fatalf(diff)
	}

	if _, err := db.Get(context.Background(), "a", docstore.GetOptions{Rev: revs[1]}); !errors.Is(err, docstore.ErrMissingDoc) {
		t.Fatalf("expected err to be %#v, got %#v", docstore.ErrMissingDoc, err)
	}
}

func testLocalDocs(builder tempEngineBuilder, t *testing.T) {
	engine, cleanup := builder(t)
	defer cleanup()

	db := openDB(t, engine, "db", docstore.DatabaseOptions{})
	put(t, db, docstore.Document{"_id": "a"})
	rev1 := put(t, db, docstore.Document{"_id": "_local/checkpoint", "seq": 1.0})
	rev2 := put(t, db, docstore.Document{"_id": "_local/checkpoint", "_rev": rev1, "seq": 2.0})

	tree, err := db.GetRevisionTree(context.Background(), "_local/checkpoint")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if len(tree.Nodes) != 1 || tree.Nodes[0].Rev() != rev2 {
		t.Fatalf("expected only %s to be kept, got %#v", rev2, tree)
	}

	info, err := db.Info(context.Background())

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(docstore.Info{DBName: "db", DocCount: 1, UpdateSeq: 1}, info); diff != "" {
		t.Fatalf(diff)
	}

	allDocs, err := db.AllDocs(context.Background(), docstore.AllDocsOptions{})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if len(allDocs.Rows) != 1 || allDocs.Rows[0].ID != "a" {
		t.Fatalf("expected local documents to be hidden, got %#v", allDocs.Rows)
	}

	changes, err := db.Changes(context.Background(), docstore.ChangesOptions{})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if len(changes.Results) != 1 || changes.Results[0].ID != "a" {
		t.Fatalf("expected local documents to be hidden, got %#v", changes.Results)
	}

	results := bulkDocs(t, db, docstore.BulkDocsOptions{}, docstore.Document{"_id": "_local/checkpoint", "_rev": rev2, "_deleted": true})

	if diff := cmp.Diff(docstore.Result{OK: true, ID: "_local/checkpoint", Rev: "0-0"}, results[0]); diff != "" {
		t.Fatalf(diff)
	}

	if _, err := db.GetRevisionTree(context.Background(), "_local/checkpoint"); !errors.Is(err, docstore.ErrMissingDoc) {
		t.Fatalf("expected err to be %#v, got %#v", docstore.ErrMissingDoc, err)
	}

	put(t, db, docstore.Document{"_id": "_local/checkpoint", "seq": 3.0})
}
