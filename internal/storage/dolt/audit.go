package dolt

import (
	"context"
	"fmt"
	"time"

	"github.com/dynaform/core/internal/audit"
	"github.com/dynaform/core/internal/types"
)

// RecordAudit implements audit.Recorder for the Entity façade's own metadata
// columns, grounded on the teacher's internal/storage/dolt/events.go raw-SQL
// INSERT idiom. PutValues audits the EAV cell itself by calling
// recordValueCellAudit directly (SPEC_FULL §4.2 Open Question, see
// DESIGN.md) rather than through this interface, since a single value flush
// can shadow several attributes under one shared revision bump.
func (e *execHandle) RecordAudit(ctx context.Context, table string, entityID types.ID, row audit.AuditRow) error {
	return withSpan(ctx, "dolt.RecordAudit", func(ctx context.Context) error {
		if table != "entity" {
			return fmt.Errorf("%w: no audit shadow table mapped for %q", types.ErrConstraint, table)
		}
		return e.recordEntityAudit(ctx, entityID, row)
	})
}

func (e *execHandle) recordEntityAudit(ctx context.Context, entityID types.ID, row audit.AuditRow) error {
	now := time.Now().UTC()
	schemaID, _ := row.PreImage["schema_id"].(types.ID)
	state, _ := row.PreImage["state"].(types.EntityState)
	var collectDate interface{}
	if cd, ok := row.PreImage["collect_date"].(*time.Time); ok && cd != nil {
		collectDate = *cd
	}
	_, err := e.exec.ExecContext(ctx, `
		INSERT INTO entity_audit
			(id, revision, schema_id, state, collect_date, audited_at, audited_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, int64(entityID), row.Revision, int64(schemaID), string(state), collectDate, now, row.Actor)
	if err != nil {
		return fmt.Errorf("insert entity_audit for %d rev %d: %w", entityID, row.Revision, err)
	}
	return nil
}

func (e *execHandle) recordValueCellAudit(ctx context.Context, shard types.StorageTable, entityID types.ID, row audit.AuditRow) error {
	now := time.Now().UTC()
	attrID, _ := row.PreImage["attribute_id"].(types.ID)
	position, _ := row.PreImage["position"].(int)
	value := row.PreImage["value"]
	_, err := e.exec.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s_audit
			(entity_id, attribute_id, position, revision, value, audited_at, audited_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, shard), int64(entityID), int64(attrID), position, row.Revision, value, now, row.Actor)
	if err != nil {
		return fmt.Errorf("insert %s_audit for entity %d attribute %d rev %d: %w", shard, entityID, attrID, row.Revision, err)
	}
	return nil
}
