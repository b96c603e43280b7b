package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("a/1"), []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	batch := db.NewBatch()
	batch.Put([]byte("a/2"), []byte("two"))
	batch.Put([]byte("b/1"), []byte("other"))
	batch.Delete([]byte("a/1"))
	if batch.Len() != 3 {
		t.Fatalf("unexpected batch length %d", batch.Len())
	}
	if ok, _ := db.Has([]byte("a/2")); ok {
		t.Fatalf("batch writes must not be visible before Write")
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if ok, _ := db.Has([]byte("a/1")); ok {
		t.Fatalf("expected a/1 to be deleted")
	}
	value, err := db.Get([]byte("a/2"))
	if err != nil || string(value) != "two" {
		t.Fatalf("unexpected a/2 value %q err %v", value, err)
	}
	if err := db.Delete([]byte("b/1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("b/1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted key to be missing, got %v", err)
	}
}

func TestMemDB(t *testing.T) {
	exerciseDatabase(t, NewMemDB())
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestBoltDB(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}
