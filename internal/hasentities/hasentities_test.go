package hasentities_test

import (
	"context"
	"testing"
	"time"

	"github.com/dynaform/core/internal/hasentities"
	"github.com/dynaform/core/internal/storage"
	"github.com/dynaform/core/internal/storage/memory"
	"github.com/dynaform/core/internal/types"
)

func newStoreWithEntity(t *testing.T) (*memory.Store, *types.Entity) {
	t.Helper()
	store := memory.New(storage.Config{})
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	sc := &types.Schema{
		Metadata:   types.Metadata{Name: "visit", Title: "Visit"},
		State:      types.SchemaDraft,
		Storage:    types.StorageEAV,
		Attributes: map[string]*types.Attribute{},
	}
	if err := sc.Publish(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := store.PutSchema(ctx, sc, "alice"); err != nil {
		t.Fatalf("PutSchema: %v", err)
	}
	e := &types.Entity{Metadata: types.Metadata{Name: "visit-1"}, SchemaID: sc.ID, State: types.EntityComplete}
	if err := store.PutEntity(ctx, e, "alice"); err != nil {
		t.Fatalf("PutEntity: %v", err)
	}
	return store, e
}

func TestMixinAssociateAndEntities(t *testing.T) {
	store, e := newStoreWithEntity(t)
	ctx := context.Background()
	mix := hasentities.New(store, "patient")

	if err := mix.Associate(ctx, "patient-42", e.ID); err != nil {
		t.Fatalf("Associate: %v", err)
	}

	entities, err := mix.Entities(ctx, "patient-42")
	if err != nil {
		t.Fatalf("Entities: %v", err)
	}
	if len(entities) != 1 || entities[0].ID != e.ID {
		t.Errorf("Entities = %v, want [%d]", entities, e.ID)
	}

	contexts, err := mix.Contexts(ctx, "patient-42")
	if err != nil {
		t.Fatalf("Contexts: %v", err)
	}
	if len(contexts) != 1 || contexts[0].External != "patient" || contexts[0].Key != "patient-42" {
		t.Errorf("Contexts = %v, want one row (patient, patient-42)", contexts)
	}
}

func TestMixinDeleteHostCascadesContextsNotEntities(t *testing.T) {
	store, e := newStoreWithEntity(t)
	ctx := context.Background()
	mix := hasentities.New(store, "patient")

	if err := mix.Associate(ctx, "patient-42", e.ID); err != nil {
		t.Fatalf("Associate: %v", err)
	}

	removed, err := mix.DeleteHost(ctx, "patient-42")
	if err != nil {
		t.Fatalf("DeleteHost: %v", err)
	}
	if removed != 1 {
		t.Errorf("DeleteHost removed %d rows, want 1", removed)
	}

	entities, err := mix.Entities(ctx, "patient-42")
	if err != nil {
		t.Fatalf("Entities after DeleteHost: %v", err)
	}
	if len(entities) != 0 {
		t.Errorf("Entities after DeleteHost = %v, want none (association gone)", entities)
	}

	if _, err := store.GetEntity(ctx, e.ID); err != nil {
		t.Errorf("GetEntity after DeleteHost = %v, want entity to still exist (loose link)", err)
	}
}

func TestMixinDistinguishesHostTables(t *testing.T) {
	store, e := newStoreWithEntity(t)
	ctx := context.Background()
	patients := hasentities.New(store, "patient")
	visits := hasentities.New(store, "encounter")

	if err := patients.Associate(ctx, "42", e.ID); err != nil {
		t.Fatalf("Associate patient: %v", err)
	}

	got, err := visits.Entities(ctx, "42")
	if err != nil {
		t.Fatalf("Entities(encounter): %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Entities(encounter, 42) = %v, want none (association is scoped to patient, not encounter)", got)
	}
}
