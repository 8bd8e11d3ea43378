package docstore_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jrife/roost/docstore"
)

func rowIDs(rows []docstore.Row) []string {
	ids := []string{}

	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	return ids
}

func testAllDocs(builder tempEngineBuilder, t *testing.T) {
	engine, cleanup := builder(t)
	defer cleanup()

	db := openDB(t, engine, "db", docstore.DatabaseOptions{})
	revs := map[string]string{}
	ids := []string{}

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("doc%d", i)
		ids = append(ids, id)
		revs[id] = put(t, db, docstore.Document{"_id": id, "i": float64(i)})
	}

	put(t, db, docstore.Document{"_id": "doc9", "_rev": revs["doc9"], "_deleted": true})

	testCases := map[string]struct {
		options   docstore.AllDocsOptions
		ids       []string
		totalRows int
	}{
		"all": {
			ids: ids[:9],
		},
		"skip and limit": {
			options: docstore.AllDocsOptions{Skip: 2, Limit: intPtr(3)},
			ids:     []string{"doc2", "doc3", "doc4"},
		},
		"descending skip and limit": {
			options: docstore.AllDocsOptions{Descending: true, Skip: 2, Limit: intPtr(3)},
			ids:     []string{"doc6", "doc5", "doc4"},
		},
		"limit zero": {
			options: docstore.AllDocsOptions{Limit: intPtr(0)},
			ids:     []string{},
		},
		"start and end": {
			options: docstore.AllDocsOptions{StartKey: "doc3", EndKey: "doc5"},
			ids:     []string{"doc3", "doc4", "doc5"},
		},
		"exclusive end": {
			options: docstore.AllDocsOptions{StartKey: "doc3", EndKey: "doc5", InclusiveEnd: boolPtr(false)},
			ids:     []string{"doc3", "doc4"},
		},
		"descending start and end": {
			options: docstore.AllDocsOptions{StartKey: "doc5", EndKey: "doc3", Descending: true},
			ids:     []string{"doc5", "doc4", "doc3"},
		},
		"descending exclusive end": {
			options: docstore.AllDocsOptions{StartKey: "doc5", EndKey: "doc3", Descending: true, InclusiveEnd: boolPtr(false)},
			ids:     []string{"doc5", "doc4"},
		},
		"inverted range": {
			options: docstore.AllDocsOptions{StartKey: "doc5", EndKey: "doc3"},
			ids:     []string{},
		},
		"empty exclusive range": {
			options: docstore.AllDocsOptions{StartKey: "doc3", EndKey: "doc3", InclusiveEnd: boolPtr(false)},
			ids:     []string{},
		},
		"start only": {
			options: docstore.AllDocsOptions{StartKey: "doc7"},
			ids:     []string{"doc7", "doc8"},
		},
		"descending start only": {
			options: docstore.AllDocsOptions{StartKey: "doc1", Descending: true},
			ids:     []string{"doc1", "doc0"},
		},
		"end only": {
			options: docstore.AllDocsOptions{EndKey: "doc1"},
			ids:     []string{"doc0", "doc1"},
		},
		"descending end only": {
			options: docstore.AllDocsOptions{EndKey: "doc7", Descending: true, InclusiveEnd: boolPtr(false)},
			ids:     []string{"doc8"},
		},
		"key": {
			options: docstore.AllDocsOptions{Key: "doc4"},
			ids:     []string{"doc4"},
		},
		"missing key": {
			options: docstore.AllDocsOptions{Key: "nope"},
			ids:     []string{},
		},
		"deleted ok": {
			options: docstore.AllDocsOptions{StartKey: "doc8", Deleted: "ok"},
			ids:     []string{"doc8", "doc9"},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			response, err := db.AllDocs(context.Background(), testCase.options)

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if diff := cmp.Diff(testCase.ids, rowIDs(response.Rows)); diff != "" {
				t.Fatalf(diff)
			}

			if response.TotalRows != 9 {
				t.Fatalf("expected total_rows 9, got %d", response.TotalRows)
			}

			if response.Offset != testCase.options.Skip {
				t.Fatalf("expected offset %d, got %d", testCase.options.Skip, response.Offset)
			}
		})
	}

	t.Run("rows", func(t *testing.T) {
		response, err := db.AllDocs(context.Background(), docstore.AllDocsOptions{StartKey: "doc8", Deleted: "ok", IncludeDocs: true})

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		deletedRev := response.Rows[1].Value.Rev

		if diff := cmp.Diff([]docstore.Row{
			{
				ID:    "doc8",
				Key:   "doc8",
				Value: docstore.RowValue{Rev: revs["doc8"]},
				Doc:   docstore.Document{"_id": "doc8", "_rev": revs["doc8"], "i": 8.0},
			},
			{
				ID:    "doc9",
				Key:   "doc9",
				Value: docstore.RowValue{Rev: deletedRev, Deleted: true},
			},
		}, response.Rows); diff != "" {
			t.Fatalf(diff)
		}

		if generation(t, deletedRev) != 2 {
			t.Fatalf("expected the deletion to be generation 2, got %s", deletedRev)
		}
	})

	t.Run("conflicts", func(t *testing.T) {
		replicate(t, db, docstore.Document{"_id": "doc0", "_revisions": map[string]interface{}{"start": 1, "ids": []interface{}{"0"}}})

		response, err := db.AllDocs(context.Background(), docstore.AllDocsOptions{Key: "doc0", IncludeDocs: true, Conflicts: true})

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if diff := cmp.Diff([]string{"1-0"}, response.Rows[0].Doc["_conflicts"]); diff != "" {
			t.Fatalf(diff)
		}
	})
}
