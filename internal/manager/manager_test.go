package manager_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dynaform/core/internal/manager"
	"github.com/dynaform/core/internal/storage"
	"github.com/dynaform/core/internal/storage/memory"
	"github.com/dynaform/core/internal/types"
)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New(storage.Config{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func draftSchema(name string) *types.Schema {
	return &types.Schema{
		Metadata: types.Metadata{Name: name, Title: name},
		State:    types.SchemaDraft,
		Storage:  types.StorageEAV,
	}
}

func TestSchemaManagerGetReturnsLatestPublished(t *testing.T) {
	store := newStore(t)
	mgr := manager.NewSchemaManager(store)
	ctx := context.Background()

	v1 := draftSchema("person")
	if err := v1.Publish(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Publish v1: %v", err)
	}
	if err := store.PutSchema(ctx, v1, "alice"); err != nil {
		t.Fatalf("PutSchema v1: %v", err)
	}

	v2 := v1.DeepCopy(nil)
	if err := v2.Publish(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Publish v2: %v", err)
	}
	if err := store.PutSchema(ctx, v2, "alice"); err != nil {
		t.Fatalf("PutSchema v2: %v", err)
	}

	got, err := mgr.Get(ctx, "person", nil)
	if err != nil {
		t.Fatalf("Get(latest): %v", err)
	}
	if got.ID != v2.ID {
		t.Errorf("Get(nil) returned id %d, want v2's %d", got.ID, v2.ID)
	}

	on := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	got, err = mgr.Get(ctx, "person", &on)
	if err != nil {
		t.Fatalf("Get(as of March): %v", err)
	}
	if got.ID != v1.ID {
		t.Errorf("Get(on=2025-03-01) returned id %d, want v1's %d", got.ID, v1.ID)
	}
}

func TestSchemaManagerGetIgnoresDraftVersions(t *testing.T) {
	store := newStore(t)
	mgr := manager.NewSchemaManager(store)
	ctx := context.Background()

	sc := draftSchema("person")
	if err := store.PutSchema(ctx, sc, "alice"); err != nil {
		t.Fatalf("PutSchema: %v", err)
	}

	_, err := mgr.Get(ctx, "person", nil)
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get(draft-only) error = %v, want wrapping ErrNotFound", err)
	}
}

func TestSchemaManagerPurgeRemovesAllVersions(t *testing.T) {
	store := newStore(t)
	mgr := manager.NewSchemaManager(store)
	ctx := context.Background()

	v1 := draftSchema("person")
	if err := v1.Publish(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := store.PutSchema(ctx, v1, "alice"); err != nil {
		t.Fatalf("PutSchema: %v", err)
	}
	v2 := v1.DeepCopy(nil)
	if err := store.PutSchema(ctx, v2, "alice"); err != nil {
		t.Fatalf("PutSchema v2: %v", err)
	}

	n, err := mgr.Purge(ctx, "person", "alice")
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 2 {
		t.Errorf("Purge removed %d versions, want 2", n)
	}
	has, err := mgr.Has(ctx, "person")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if has {
		t.Error("Has(person) = true after Purge")
	}
}

func TestSchemaManagerKeys(t *testing.T) {
	store := newStore(t)
	mgr := manager.NewSchemaManager(store)
	ctx := context.Background()

	if err := store.PutSchema(ctx, draftSchema("person"), "alice"); err != nil {
		t.Fatalf("PutSchema person: %v", err)
	}
	if err := store.PutSchema(ctx, draftSchema("visit"), "alice"); err != nil {
		t.Fatalf("PutSchema visit: %v", err)
	}

	keys, err := mgr.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Keys = %v, want 2 entries", keys)
	}
}
