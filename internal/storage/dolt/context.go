package dolt

import (
	"context"
	"fmt"

	"github.com/dynaform/core/internal/types"
)

// PutContext inserts a context association row, ignoring a duplicate
// (entity_id, external, key) rather than erroring, since the relation is a
// set (spec.md §4.5).
func (e *execHandle) PutContext(ctx context.Context, c *types.Context) error {
	return withSpan(ctx, "dolt.PutContext", func(ctx context.Context) error {
		_, err := e.exec.ExecContext(ctx, `
			INSERT IGNORE INTO context (entity_id, external, `+"`key`"+`) VALUES (?, ?, ?)
		`, int64(c.EntityID), c.External, c.Key)
		if err != nil {
			return fmt.Errorf("insert context (%d, %s, %s): %w", c.EntityID, c.External, c.Key, err)
		}
		return nil
	})
}

// GetContexts lists every context association for entityID.
func (e *execHandle) GetContexts(ctx context.Context, entityID types.ID) ([]types.Context, error) {
	var out []types.Context
	err := withSpan(ctx, "dolt.GetContexts", func(ctx context.Context) error {
		rows, err := e.exec.QueryContext(ctx, `
			SELECT entity_id, external, `+"`key`"+` FROM context WHERE entity_id = ?
		`, int64(entityID))
		if err != nil {
			return fmt.Errorf("list contexts for entity %d: %w", entityID, err)
		}
		defer rows.Close()
		for rows.Next() {
			var c types.Context
			var eid int64
			if err := rows.Scan(&eid, &c.External, &c.Key); err != nil {
				return err
			}
			c.EntityID = types.ID(eid)
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

// DeleteContextsByHost removes every context row for (external, key),
// backing HasEntities.DeleteHost (spec.md §4.5).
func (e *execHandle) DeleteContextsByHost(ctx context.Context, external, key string) (int, error) {
	var removed int
	err := withSpan(ctx, "dolt.DeleteContextsByHost", func(ctx context.Context) error {
		res, err := e.exec.ExecContext(ctx, `
			DELETE FROM context WHERE external = ? AND `+"`key`"+` = ?
		`, external, key)
		if err != nil {
			return fmt.Errorf("delete contexts for host (%s, %s): %w", external, key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = int(n)
		return nil
	})
	return removed, err
}

// GetEntitiesByContext resolves every entity associated with an external
// host row, the inverse lookup the hierarchy/hasentities mixin uses (spec.md
// §4.5, §4.6).
func (e *execHandle) GetEntitiesByContext(ctx context.Context, external, key string) ([]types.ID, error) {
	var out []types.ID
	err := withSpan(ctx, "dolt.GetEntitiesByContext", func(ctx context.Context) error {
		rows, err := e.exec.QueryContext(ctx, `
			SELECT entity_id FROM context WHERE external = ? AND `+"`key`"+` = ?
		`, external, key)
		if err != nil {
			return fmt.Errorf("list entities for context (%s, %s): %w", external, key, err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, types.ID(id))
		}
		return rows.Err()
	})
	return out, err
}
