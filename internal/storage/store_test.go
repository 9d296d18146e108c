package storage

import (
	"context"
	"path/filepath"
	"testing"
)

// TestStoreSetGetDelete verifies basic blob persistence.
func TestStoreSetGetDelete(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v err %v, want not found", ok, err)
	}

	if err := store.Set(ctx, "user", `{"role":"garage"}`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, "user", `{"role":"recycler"}`); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	got, ok, err := store.Get(ctx, "user")
	if err != nil || !ok {
		t.Fatalf("Get(user) = ok %v err %v", ok, err)
	}
	if got != `{"role":"recycler"}` {
		t.Fatalf("value = %q, want recycler blob", got)
	}

	if err := store.Delete(ctx, "user"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "user"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, "user"); ok {
		t.Fatal("expected key to be deleted")
	}
}

// TestStorePersistsAcrossOpen checks blobs survive reopening the file.
func TestStorePersistsAcrossOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	ctx := context.Background()

	store, err := OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir() error = %v", err)
	}
	if err := store.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenDir(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, "k")
	if err != nil || !ok || got != "v" {
		t.Fatalf("Get(k) = %q ok %v err %v, want v", got, ok, err)
	}
}
