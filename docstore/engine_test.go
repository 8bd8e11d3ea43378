package docstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jrife/roost/docstore"
)

func testEngine(builder tempEngineBuilder, t *testing.T) {
	t.Run("concurrent opens share one handle", func(t *testing.T) {
		engine, cleanup := builder(t)
		defer cleanup()

		var wg sync.WaitGroup
		handles := make([]docstore.Database, 10)
		errs := make([]error, 10)

		for i := range handles {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()

				handles[i], errs[i] = engine.Open(context.Background(), "shared", docstore.DatabaseOptions{})
			}(i)
		}

		wg.Wait()

		for i := range handles {
			if errs[i] != nil {
				t.Fatalf("expected err to be nil, got %#v", errs[i])
			}

			if handles[i] != handles[0] {
				t.Fatalf("expected open %d to return the shared handle", i)
			}
		}
	})

	t.Run("metadata survives reopen", func(t *testing.T) {
		engine, cleanup := builder(t)
		defer cleanup()

		db := openDB(t, engine, "reopen", docstore.DatabaseOptions{})
		put(t, db, docstore.Document{"_id": "a"})
		put(t, db, docstore.Document{"_id": "b"})

		id, err := db.ID(context.Background())

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if id == "" {
			t.Fatalf("expected a database id")
		}

		if err := db.Close(); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if _, err := db.Info(context.Background()); err != docstore.ErrClosed {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrClosed, err)
		}

		if _, err := db.Get(context.Background(), "a", docstore.GetOptions{}); err != docstore.ErrClosed {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrClosed, err)
		}

		reopened := openDB(t, engine, "reopen", docstore.DatabaseOptions{})

		if reopened == db {
			t.Fatalf("expected a new handle after close")
		}

		info, err := reopened.Info(context.Background())

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if diff := cmp.Diff(docstore.Info{DBName: "reopen", DocCount: 2, UpdateSeq: 2}, info); diff != "" {
			t.Fatalf(diff)
		}

		reopenedID, err := reopened.ID(context.Background())

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if reopenedID != id {
			t.Fatalf("expected id %s to be stable, got %s", id, reopenedID)
		}
	})

	t.Run("destroy", func(t *testing.T) {
		engine, cleanup := builder(t)
		defer cleanup()

		db := openDB(t, engine, "doomed", docstore.DatabaseOptions{})
		openDB(t, engine, "kept", docstore.DatabaseOptions{})
		put(t, db, docstore.Document{"_id": "a"})

		if err := db.Destroy(); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if err := db.Destroy(); err != docstore.ErrClosed {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrClosed, err)
		}

		names, err := engine.Databases(context.Background())

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if diff := cmp.Diff([]string{"kept"}, names); diff != "" {
			t.Fatalf(diff)
		}

		db = openDB(t, engine, "doomed", docstore.DatabaseOptions{})

		if _, err := db.Get(context.Background(), "a", docstore.GetOptions{}); !errors.Is(err, docstore.ErrMissingDoc) {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrMissingDoc, err)
		}
	})

	t.Run("closed engine", func(t *testing.T) {
		engine, cleanup := builder(t)
		defer cleanup()

		db := openDB(t, engine, "a", docstore.DatabaseOptions{})

		if err := engine.Close(); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if _, err := db.Info(context.Background()); err != docstore.ErrClosed {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrClosed, err)
		}

		if _, err := engine.Open(context.Background(), "a", docstore.DatabaseOptions{}); err != docstore.ErrClosed {
			t.Fatalf("expected err to be %#v, got %#v", docstore.ErrClosed, err)
		}
	})
}
