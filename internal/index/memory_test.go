package index

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreSaveAndFetch(t *testing.T) {
	store := NewMemoryStore()
	pkg := NewPackage("pkg", "1.0", "pkg-1.0.tar.gz", OriginUpload)

	if err := store.Save(context.Background(), pkg); err != nil {
		t.Fatalf("save error: %v", err)
	}

	got, err := store.Fetch(context.Background(), "pkg-1.0.tar.gz")
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if got == nil || got.Name != "pkg" || got.Version != "1.0" {
		t.Fatalf("unexpected fetch result: %+v", got)
	}

	missing, err := store.Fetch(context.Background(), "other-1.0.tar.gz")
	if err != nil {
		t.Fatalf("fetch missing error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for an absent filename, got %+v", missing)
	}
}

func TestMemoryStoreSaveDuplicate(t *testing.T) {
	store := NewMemoryStore()
	pkg := NewPackage("pkg", "1.0", "pkg-1.0.tar.gz", OriginUpload)
	if err := store.Save(context.Background(), pkg); err != nil {
		t.Fatalf("save error: %v", err)
	}

	again := NewPackage("pkg", "1.0", "pkg-1.0.tar.gz", OriginCache)
	err := store.Save(context.Background(), again)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestMemoryStoreAllSortedByFilename(t *testing.T) {
	store := NewMemoryStore()
	for _, filename := range []string{"pkg-2.0.tar.gz", "pkg-1.0.tar.gz", "pkg-1.0-py3-none-any.whl"} {
		if err := store.Save(context.Background(), NewPackage("pkg", "x", filename, OriginUpload)); err != nil {
			t.Fatalf("save %s: %v", filename, err)
		}
	}
	if err := store.Save(context.Background(), NewPackage("other", "1.0", "other-1.0.tar.gz", OriginUpload)); err != nil {
		t.Fatalf("save other: %v", err)
	}

	packages, err := store.All(context.Background(), "PKG")
	if err != nil {
		t.Fatalf("all error: %v", err)
	}
	if len(packages) != 3 {
		t.Fatalf("expected 3 packages, got %d", len(packages))
	}
	want := []string{"pkg-1.0-py3-none-any.whl", "pkg-1.0.tar.gz", "pkg-2.0.tar.gz"}
	for i, filename := range want {
		if packages[i].Filename != filename {
			t.Fatalf("position %d: expected %s, got %s", i, filename, packages[i].Filename)
		}
	}
}

func TestMemoryStoreDistinct(t *testing.T) {
	store := NewMemoryStore()
	for _, pkg := range []*Package{
		NewPackage("zebra", "1.0", "zebra-1.0.tar.gz", OriginUpload),
		NewPackage("alpha", "1.0", "alpha-1.0.tar.gz", OriginUpload),
		NewPackage("alpha", "2.0", "alpha-2.0.tar.gz", OriginUpload),
	} {
		if err := store.Save(context.Background(), pkg); err != nil {
			t.Fatalf("save %s: %v", pkg.Filename, err)
		}
	}

	names, err := store.Distinct(context.Background())
	if err != nil {
		t.Fatalf("distinct error: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zebra" {
		t.Fatalf("unexpected distinct names: %v", names)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	pkg := NewPackage("pkg", "1.0", "pkg-1.0.tar.gz", OriginUpload)
	if err := store.Save(context.Background(), pkg); err != nil {
		t.Fatalf("save error: %v", err)
	}
	if err := store.Delete(context.Background(), pkg); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if err := store.Delete(context.Background(), pkg); err == nil {
		t.Fatalf("expected error deleting an absent record")
	}
}
