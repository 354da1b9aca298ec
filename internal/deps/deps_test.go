package deps_test

import (
	"context"
	"testing"
	"time"

	"github.com/dynaform/core/internal/deps"
	"github.com/dynaform/core/internal/manager"
	"github.com/dynaform/core/internal/storage"
	"github.com/dynaform/core/internal/storage/memory"
	"github.com/dynaform/core/internal/types"
)

func newHierarchy(t *testing.T) (*deps.Hierarchy, *memory.Store) {
	t.Helper()
	store := memory.New(storage.Config{})
	t.Cleanup(func() { _ = store.Close() })
	return deps.NewHierarchy(manager.NewSchemaManager(store)), store
}

// schemaWithSection builds: name (string), contact (section: email string,
// phone string), office (object -> an unrelated schema). Children should
// skip into "contact" and stop at "office" without descending it.
func schemaWithSection() *types.Schema {
	officeID := types.ID(99)
	return &types.Schema{
		Metadata: types.Metadata{Name: "person", Title: "Person"},
		State:    types.SchemaDraft,
		Storage:  types.StorageEAV,
		Attributes: map[string]*types.Attribute{
			"name": {Metadata: types.Metadata{Name: "name"}, Type: types.TypeString, Order: 0},
			"contact": {
				Metadata: types.Metadata{Name: "contact"}, Type: types.TypeSection, Order: 1,
				Attributes: map[string]*types.Attribute{
					"email": {Metadata: types.Metadata{Name: "email"}, Type: types.TypeString, Order: 0},
					"phone": {Metadata: types.Metadata{Name: "phone"}, Type: types.TypeString, Order: 1},
				},
			},
			"office": {Metadata: types.Metadata{Name: "office"}, Type: types.TypeObject, Order: 2, ObjectSchemaID: &officeID},
		},
	}
}

func TestHierarchyChildrenDescendsSectionsNotObjects(t *testing.T) {
	h, store := newHierarchy(t)
	ctx := context.Background()
	sc := schemaWithSection()
	if err := sc.Publish(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := store.PutSchema(ctx, sc, "alice"); err != nil {
		t.Fatalf("PutSchema: %v", err)
	}

	names, err := h.ChildrenNames(ctx, "person", nil)
	if err != nil {
		t.Fatalf("ChildrenNames: %v", err)
	}
	want := []string{"name", "email", "phone", "office"}
	if len(names) != len(want) {
		t.Fatalf("ChildrenNames = %v, want %v", names, want)
	}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("ChildrenNames[%d] = %q, want %q (full: %v)", i, names[i], n, names)
		}
	}
}

func TestHierarchyIterChildrenStopsOnError(t *testing.T) {
	h, store := newHierarchy(t)
	ctx := context.Background()
	sc := schemaWithSection()
	if err := sc.Publish(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := store.PutSchema(ctx, sc, "alice"); err != nil {
		t.Fatalf("PutSchema: %v", err)
	}

	stopErr := errStop{}
	seen := 0
	err := h.IterChildren(ctx, "person", nil, func(a *types.Attribute) error {
		seen++
		if a.Name == "email" {
			return stopErr
		}
		return nil
	})
	if err != stopErr {
		t.Fatalf("IterChildren error = %v, want stopErr", err)
	}
	if seen != 2 {
		t.Errorf("IterChildren visited %d attributes before stopping, want 2", seen)
	}
}

type errStop struct{}

func (errStop) Error() string { return "stop" }

func TestHierarchyChildrenUnknownSchema(t *testing.T) {
	h, _ := newHierarchy(t)
	if _, err := h.Children(context.Background(), "nope", nil); err == nil {
		t.Error("Children(unknown schema) = nil error, want NotFoundError")
	}
}
