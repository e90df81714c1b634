package registry

import (
	"context"
	"testing"

	"github.com/oriys/raikiri/internal/artifactstore"
	"github.com/oriys/raikiri/internal/compiler"
	"github.com/oriys/raikiri/internal/errkind"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store := artifactstore.New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return New(store, compiler.Noop{})
}

func TestRegistry_PutThenGet(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Put(ctx, "tenant-a", "echo", []byte("echo-handler")); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := r.Get(ctx, "tenant-a", "echo")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "echo-handler" {
		t.Fatalf("got %q, want %q", got, "echo-handler")
	}
}

func TestRegistry_GetMissingIsNotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Get(context.Background(), "tenant-a", "missing")
	if errkind.From(err) != errkind.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRegistry_PutInvalidatesCache(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Put(ctx, "tenant-a", "echo", []byte("v1")); err != nil {
		t.Fatalf("put v1: %v", err)
	}
	if _, err := r.Get(ctx, "tenant-a", "echo"); err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if err := r.Put(ctx, "tenant-a", "echo", []byte("v2")); err != nil {
		t.Fatalf("put v2: %v", err)
	}
	got, err := r.Get(ctx, "tenant-a", "echo")
	if err != nil {
		t.Fatalf("get v2: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("expected cache to be invalidated by Put, got %q", got)
	}
}
