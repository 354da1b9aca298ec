// Package hasentities implements the HasEntities mix-in (spec.md §4.5): it
// lets any host table associate with Entities through generic Context rows
// without the entity ever knowing its host. Grounded on
// internal/storage/dolt/resources.go's generic external_type/external_id
// association idiom in the teacher's broader example pool — a thin wrapper
// over a (table, id) pair rather than a typed foreign key per host.
package hasentities

import (
	"context"
	"fmt"

	"github.com/dynaform/core/internal/storage"
	"github.com/dynaform/core/internal/types"
)

// Mixin adapts storage.Storage's Context operations to one host table,
// supplying the `external` discriminator spec.md §4.5 describes so callers
// never type the table name themselves.
type Mixin struct {
	store     storage.Storage
	hostTable string
}

// New returns a Mixin scoped to hostTable, the value every Context row it
// writes or reads carries in its `external` column.
func New(store storage.Storage, hostTable string) *Mixin {
	return &Mixin{store: store, hostTable: hostTable}
}

// Contexts returns the "contexts set relationship" (spec.md §4.5): every
// Context row whose external matches this mixin's host table and whose key
// is hostKey.
func (m *Mixin) Contexts(ctx context.Context, hostKey string) ([]types.Context, error) {
	entityIDs, err := m.store.GetEntitiesByContext(ctx, m.hostTable, hostKey)
	if err != nil {
		return nil, err
	}
	out := make([]types.Context, len(entityIDs))
	for i, id := range entityIDs {
		out[i] = types.Context{EntityID: id, External: m.hostTable, Key: hostKey}
	}
	return out, nil
}

// Entities resolves the "entities proxy" (spec.md §4.5): the full Entity
// rows associated with hostKey, in no particular order.
func (m *Mixin) Entities(ctx context.Context, hostKey string) ([]*types.Entity, error) {
	entityIDs, err := m.store.GetEntitiesByContext(ctx, m.hostTable, hostKey)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Entity, 0, len(entityIDs))
	for _, id := range entityIDs {
		e, err := m.store.GetEntity(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve entity %d for host %s:%s: %w", id, m.hostTable, hostKey, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Associate writes through the entities proxy: it transparently creates a
// Context row with this mixin's external discriminator (spec.md §4.5),
// linking entityID to hostKey. Associating the same pair twice is a no-op
// (PutContext is idempotent on (entity_id, external, key)).
func (m *Mixin) Associate(ctx context.Context, hostKey string, entityID types.ID) error {
	return m.store.PutContext(ctx, &types.Context{EntityID: entityID, External: m.hostTable, Key: hostKey})
}

// DeleteHost cascades the Contexts for hostKey without touching the
// associated Entities themselves (spec.md §4.5: "this is a loose,
// many-to-many link"). Callers delete their own host row separately; this
// only clears the association rows that would otherwise dangle.
func (m *Mixin) DeleteHost(ctx context.Context, hostKey string) (int, error) {
	return m.store.DeleteContextsByHost(ctx, m.hostTable, hostKey)
}
