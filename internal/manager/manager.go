// Package manager implements the narrow keyed-store abstraction spec.md
// §4.6 calls a Manager, plus the Schema Manager's as-of (on: date)
// resolution. Grounded on the teacher's internal/spec package (registry.go):
// a thin struct wrapping a storage interface, not a session-level ORM
// abstraction.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/dynaform/core/internal/storage"
	"github.com/dynaform/core/internal/types"
)

// Manager is a narrow interface over a keyed collection of T (spec.md
// §4.6): keys/has/get/put/purge. SchemaManager below does not satisfy this
// interface: its Get takes an as-of date, its Put and Purge take an actor,
// and its Purge removes every version of a name rather than a single row,
// since the schema graph's purge/get operations need version-aware behavior
// a generic Manager[T] can't express without losing that nuance.
type Manager[T any] interface {
	Keys(ctx context.Context) ([]string, error)
	Has(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (T, error)
	Put(ctx context.Context, key string, item T) error
	Purge(ctx context.Context, key string) (int, error)
}

// SchemaManager resolves named schemata, honoring the "on: date" as-of
// parameter (spec.md §4.6): the published version whose publish_date is the
// latest one not after on, or the latest published version when on is nil.
// Unlike storage.Storage.GetSchemaByName, which returns the draft version
// when on is nil and does not filter by state, SchemaManager.Get only ever
// returns published versions — it is the reader-facing API spec.md §4.6
// describes.
type SchemaManager struct {
	store storage.Storage
}

// NewSchemaManager wraps store for schema lookups.
func NewSchemaManager(store storage.Storage) *SchemaManager {
	return &SchemaManager{store: store}
}

// Keys returns every distinct schema name known to the store, across all
// versions and states.
func (m *SchemaManager) Keys(ctx context.Context) ([]string, error) {
	return m.store.ListSchemaNames(ctx)
}

// Has reports whether at least one version (any state) of name exists.
func (m *SchemaManager) Has(ctx context.Context, name string) (bool, error) {
	versions, err := m.store.ListSchemaVersions(ctx, name)
	if err != nil {
		return false, err
	}
	return len(versions) > 0, nil
}

// Get resolves the published version of name in effect on, or the latest
// published version when on is nil (spec.md §4.6).
func (m *SchemaManager) Get(ctx context.Context, name string, on *time.Time) (*types.Schema, error) {
	versions, err := m.store.ListSchemaVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	var best *types.Schema
	for _, v := range versions {
		if v.State != types.SchemaPublished {
			continue
		}
		if on != nil && (v.PublishDate == nil || v.PublishDate.After(*on)) {
			continue
		}
		if best == nil || v.PublishDate.After(*best.PublishDate) {
			best = v
		}
	}
	if best == nil {
		return nil, &types.NotFoundError{What: "published schema", Key: name}
	}
	return best, nil
}

// Put validates and persists sc via the underlying store, failing with
// AlreadyExistsError if a version with the same (name, publish_date) is
// already present — the uniqueness spec.md §7 documents for schema inserts.
func (m *SchemaManager) Put(ctx context.Context, sc *types.Schema, actor string) error {
	if sc.PublishDate != nil {
		versions, err := m.store.ListSchemaVersions(ctx, sc.Name)
		if err != nil {
			return err
		}
		for _, v := range versions {
			if v.ID == sc.ID {
				continue
			}
			if v.PublishDate != nil && v.PublishDate.Equal(*sc.PublishDate) {
				return &types.AlreadyExistsError{What: "schema version", Key: fmt.Sprintf("%s@%s", sc.Name, sc.PublishDate.Format(time.RFC3339))}
			}
		}
	}
	return m.store.PutSchema(ctx, sc, actor)
}

// Purge deletes every version of name and reports how many were removed
// (spec.md §4.6: "purge(key) returning the count of items removed").
func (m *SchemaManager) Purge(ctx context.Context, name string, actor string) (int, error) {
	versions, err := m.store.ListSchemaVersions(ctx, name)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, v := range versions {
		if err := m.store.DeleteSchema(ctx, v.ID, actor); err != nil {
			return n, fmt.Errorf("purge schema %q version %d: %w", name, v.ID, err)
		}
		n++
	}
	return n, nil
}
