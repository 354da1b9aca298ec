package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dynaform/core/internal/audit"
	"github.com/dynaform/core/internal/types"
	"github.com/dynaform/core/internal/validation"
)

// PutEntity inserts or updates an entity row, journaling the mutation via
// audit.Flush before the revision bump is written back (spec.md §4.1,
// §4.2). The schema must be published (spec.md §3 invariant 2).
func (e *execHandle) PutEntity(ctx context.Context, ent *types.Entity, actor string) error {
	var err error
	spanErr := withSpan(ctx, "dolt.PutEntity", func(ctx context.Context) error {
		if actor == "" {
			return fmt.Errorf("%w: cannot flush entity %d", types.ErrNonExistentUser, ent.ID)
		}

		sc, scErr := e.GetSchema(ctx, ent.SchemaID)
		if scErr != nil {
			return scErr
		}
		if sc.State != types.SchemaPublished {
			return &types.InvalidEntitySchemaError{SchemaName: sc.Name, State: sc.State}
		}

		now := time.Now().UTC()
		before := audit.Row(nil)
		if ent.ID != 0 {
			if existing, getErr := e.getEntityRow(ctx, ent.ID); getErr == nil {
				before = existing
			} else if !errors.Is(getErr, types.ErrNotFound) {
				return getErr
			}
		}
		ent.Touch(now, actor)
		ent.TouchedAt = now

		var collectDate interface{}
		if ent.CollectDate != nil {
			collectDate = *ent.CollectDate
		}

		if ent.ID == 0 {
			if ent.Revision == 0 {
				ent.Revision = 1
			}
			res, insErr := e.exec.ExecContext(ctx, `
				INSERT INTO entity
					(schema_id, name, title, description, state, collect_date, revision,
					 create_date, modify_date, create_user, modify_user)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, int64(ent.SchemaID), ent.Name, ent.Title, ent.Description, string(ent.State), collectDate,
				ent.Revision, ent.CreateDate, ent.ModifyDate, ent.CreateUser, ent.ModifyUser)
			if insErr != nil {
				return fmt.Errorf("insert entity: %w", insErr)
			}
			id, idErr := res.LastInsertId()
			if idErr != nil {
				return idErr
			}
			ent.ID = types.ID(id)
			return nil
		}

		after := entitySnapshot(ent)
		rev, flushErr := audit.Flush(ctx, e, "entity", ent.ID, before, after, ent.Revision, actor)
		if flushErr != nil {
			return flushErr
		}
		ent.Revision = rev

		if _, updErr := e.exec.ExecContext(ctx, `
			UPDATE entity SET
				schema_id = ?, name = ?, title = ?, description = ?, state = ?, collect_date = ?,
				revision = ?, modify_date = ?, modify_user = ?
			WHERE id = ?
		`, int64(ent.SchemaID), ent.Name, ent.Title, ent.Description, string(ent.State), collectDate,
			ent.Revision, ent.ModifyDate, ent.ModifyUser, int64(ent.ID)); updErr != nil {
			return fmt.Errorf("update entity %d: %w", ent.ID, updErr)
		}
		return nil
	})
	err = spanErr
	return err
}

func entitySnapshot(e *types.Entity) audit.Row {
	return audit.Row{
		"schema_id":    e.SchemaID,
		"state":        e.State,
		"collect_date": e.CollectDate,
	}
}

// getEntityRow returns the current column snapshot used as Diff's "before"
// image; it is a thinner read than GetEntity since the audit diff never
// looks at anything beyond schema_id/state/collect_date.
func (e *execHandle) getEntityRow(ctx context.Context, id types.ID) (audit.Row, error) {
	ent, err := e.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	return entitySnapshot(ent), nil
}

// GetEntity loads a single entity by surrogate id.
func (e *execHandle) GetEntity(ctx context.Context, id types.ID) (*types.Entity, error) {
	var ent *types.Entity
	err := withSpan(ctx, "dolt.GetEntity", func(ctx context.Context) error {
		row := e.exec.QueryRowContext(ctx, `
			SELECT id, schema_id, name, title, description, state, collect_date, revision,
			       create_date, modify_date, create_user, modify_user
			FROM entity WHERE id = ?
		`, int64(id))
		var (
			eid, schemaID                          int64
			name, title, description, state        string
			collectDate                             sql.NullTime
			revision                                int64
			createDate, modifyDate                  time.Time
			createUser, modifyUser                  string
		)
		if scanErr := row.Scan(&eid, &schemaID, &name, &title, &description, &state, &collectDate, &revision,
			&createDate, &modifyDate, &createUser, &modifyUser); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return &types.NotFoundError{What: "entity", Key: fmt.Sprintf("%d", id)}
			}
			return fmt.Errorf("scan entity %d: %w", id, scanErr)
		}
		out := &types.Entity{
			Metadata: types.Metadata{
				ID: types.ID(eid), Name: name, Title: title, Description: description,
				CreateDate: createDate, ModifyDate: modifyDate, CreateUser: createUser, ModifyUser: modifyUser,
			},
			SchemaID: types.ID(schemaID),
			State:    types.EntityState(state),
			Revision: revision,
		}
		if collectDate.Valid {
			t := collectDate.Time
			out.CollectDate = &t
		}
		ent = out
		return nil
	})
	return ent, err
}

// DeleteEntity removes an entity; ON DELETE CASCADE on the value tables
// removes its stored values along with it.
func (e *execHandle) DeleteEntity(ctx context.Context, id types.ID, actor string) error {
	return withSpan(ctx, "dolt.DeleteEntity", func(ctx context.Context) error {
		res, err := e.exec.ExecContext(ctx, "DELETE FROM entity WHERE id = ?", int64(id))
		if err != nil {
			return fmt.Errorf("delete entity %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &types.NotFoundError{What: "entity", Key: fmt.Sprintf("%d", id)}
		}
		return nil
	})
}

// PutValues replaces the stored values of entityID for every attribute that
// appears in values (attributes absent from values keep their stored rows),
// routing each write to
// its per-type shard table (spec.md §4.4 storage routing table). Each value
// is checked against its attribute's bounds, validator regex, and choices
// (spec.md §4.4 "Validation on write", §8 invariant 7) before anything is
// written; a matched choice's id is stamped onto the value's ChoiceID so
// insertValue persists the "<shard>.choice_id" book-keeping column. Existing
// rows for attributes present in values are deleted and reinserted rather
// than diffed cell-by-cell, matching the teacher's delete-then-bulk-insert
// pattern for collection-valued relations. Before the delete, any position
// whose value is changing or disappearing is shadowed into the shard's
// "<shard>_audit" table (spec.md §4.2 invariant 6), and the entity's
// revision is bumped once per flush if any attribute actually changed.
func (e *execHandle) PutValues(ctx context.Context, entityID types.ID, values []types.EntityValue, actor string) error {
	return withSpan(ctx, "dolt.PutValues", func(ctx context.Context) error {
		if actor == "" {
			return fmt.Errorf("%w: cannot flush values for entity %d", types.ErrNonExistentUser, entityID)
		}
		ent, err := e.GetEntity(ctx, entityID)
		if err != nil {
			return err
		}
		sc, err := e.GetSchema(ctx, ent.SchemaID)
		if err != nil {
			return err
		}

		byAttr := make(map[types.ID][]types.EntityValue, len(values))
		for _, v := range values {
			byAttr[v.AttributeID] = append(byAttr[v.AttributeID], v)
		}

		anyChanged := false
		for attrID, vs := range byAttr {
			attr, ok := sc.AttributeByID(attrID)
			if !ok {
				return validation.NoAttributeError(sc.Name, attrID)
			}
			table, ok := types.StorageTableFor(attr.Type)
			if !ok {
				return fmt.Errorf("%w: attribute type %s has no storage table", types.ErrConstraint, attr.Type)
			}
			for i := range vs {
				choiceID, checkErr := validation.CheckValue(sc.Name, attr, vs[i].Value)
				if checkErr != nil {
					return checkErr
				}
				vs[i].ChoiceID = choiceID
			}
			old, err := e.readValuesFromTable(ctx, table, entityID)
			if err != nil {
				return err
			}
			for _, shadowed := range cellsToShadow(filterByAttribute(old, attrID), vs) {
				stored, storeErr := storedValueFor(table, attr.Type, shadowed.Value)
				if storeErr != nil {
					return storeErr
				}
				if auditErr := e.recordValueCellAudit(ctx, table, entityID, audit.AuditRow{
					PreImage: audit.Row{"attribute_id": attrID, "position": shadowed.Position, "value": stored},
					Revision: ent.Revision,
					Actor:    actor,
				}); auditErr != nil {
					return auditErr
				}
				anyChanged = true
			}
			if err := e.deleteValuesFor(ctx, table, entityID, attrID); err != nil {
				return err
			}
			for _, v := range vs {
				if err := e.insertValue(ctx, table, entityID, attrID, v, attr.Type); err != nil {
					return fmt.Errorf("insert value for attribute %d: %w", attrID, err)
				}
			}
		}
		if anyChanged {
			if err := e.bumpEntityRevision(ctx, ent, actor); err != nil {
				return err
			}
		}
		return nil
	})
}

// bumpEntityRevision advances the entity's revision after a value flush
// that produced at least one audit row, keeping the value-audit story
// consistent with PutEntity's own metadata-flush revision bump.
func (e *execHandle) bumpEntityRevision(ctx context.Context, ent *types.Entity, actor string) error {
	now := time.Now().UTC()
	_, err := e.exec.ExecContext(ctx, `
		UPDATE entity SET revision = ?, modify_date = ?, modify_user = ? WHERE id = ?
	`, ent.Revision+1, now, actor, int64(ent.ID))
	if err != nil {
		return fmt.Errorf("bump revision for entity %d: %w", ent.ID, err)
	}
	ent.Revision++
	return nil
}

func filterByAttribute(vs []types.EntityValue, attrID types.ID) []types.EntityValue {
	var out []types.EntityValue
	for _, v := range vs {
		if v.AttributeID == attrID {
			out = append(out, v)
		}
	}
	return out
}

// cellsToShadow reports which positions of old need their pre-image
// preserved before new replaces them: a position removed entirely, or one
// whose value differs, matching audit.Diff's column-history model at cell
// granularity (a position present unchanged, or newly added, is not
// shadowed — there is no prior value to preserve).
func cellsToShadow(old, updated []types.EntityValue) []types.EntityValue {
	byPos := make(map[int]types.EntityValue, len(updated))
	for _, v := range updated {
		byPos[v.Position] = v
	}
	var out []types.EntityValue
	for _, ov := range old {
		nv, ok := byPos[ov.Position]
		if !ok || !nv.Value.Equal(ov.Value) {
			out = append(out, ov)
		}
	}
	return out
}

func (e *execHandle) deleteValuesFor(ctx context.Context, table types.StorageTable, entityID, attrID types.ID) error {
	_, err := e.exec.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE entity_id = ? AND attribute_id = ?", string(table),
	), int64(entityID), int64(attrID))
	if err != nil {
		return fmt.Errorf("delete existing %s values: %w", table, err)
	}
	return nil
}

func (e *execHandle) insertValue(ctx context.Context, table types.StorageTable, entityID, attrID types.ID, v types.EntityValue, attrType types.AttributeType) error {
	var choiceID interface{}
	if v.ChoiceID != nil {
		choiceID = int64(*v.ChoiceID)
	}

	stored, err := storedValueFor(table, attrType, v.Value)
	if err != nil {
		return err
	}

	_, err = e.exec.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (entity_id, attribute_id, choice_id, position, value) VALUES (?, ?, ?, ?, ?)",
		string(table),
	), int64(entityID), int64(attrID), choiceID, v.Position, stored)
	return err
}

// storedValueFor converts v into the driver value its shard table column
// expects, shared between insertValue and the value-audit shadow writer so
// an audited pre-image round-trips through the same coercion as a live row.
func storedValueFor(table types.StorageTable, attrType types.AttributeType, v types.Value) (interface{}, error) {
	switch table {
	case types.TableInteger:
		if attrType == types.TypeBoolean {
			if v.Bool {
				return int64(1), nil
			}
			return int64(0), nil
		}
		return v.Int, nil
	case types.TableDecimal:
		return v.Decimal, nil
	case types.TableDateTime:
		if attrType == types.TypeDate {
			return v.Date, nil
		}
		return v.DateTime, nil
	case types.TableString:
		return v.Str, nil
	case types.TableObject:
		return int64(v.Ref), nil
	default:
		return nil, fmt.Errorf("%w: unhandled storage table %s", types.ErrConstraint, table)
	}
}

// GetValues reads back every stored value of entityID across all five
// per-type shard tables.
func (e *execHandle) GetValues(ctx context.Context, entityID types.ID) ([]types.EntityValue, error) {
	var out []types.EntityValue
	err := withSpan(ctx, "dolt.GetValues", func(ctx context.Context) error {
		for _, table := range []types.StorageTable{
			types.TableInteger, types.TableDecimal, types.TableDateTime, types.TableString, types.TableObject,
		} {
			vs, err := e.readValuesFromTable(ctx, table, entityID)
			if err != nil {
				return err
			}
			out = append(out, vs...)
		}
		return nil
	})
	return out, err
}

func (e *execHandle) readValuesFromTable(ctx context.Context, table types.StorageTable, entityID types.ID) ([]types.EntityValue, error) {
	rows, err := e.exec.QueryContext(ctx, fmt.Sprintf(
		"SELECT attribute_id, choice_id, position, value FROM %s WHERE entity_id = ? ORDER BY position",
		string(table),
	), int64(entityID))
	if err != nil {
		return nil, fmt.Errorf("read %s values: %w", table, err)
	}
	defer rows.Close()

	var out []types.EntityValue
	for rows.Next() {
		var (
			attrID   int64
			choiceID sql.NullInt64
			position int
		)
		ev := types.EntityValue{EntityID: entityID}
		switch table {
		case types.TableInteger:
			var v int64
			if err := rows.Scan(&attrID, &choiceID, &position, &v); err != nil {
				return nil, err
			}
			ev.Value = types.IntValue(v)
		case types.TableDecimal:
			var v string
			if err := rows.Scan(&attrID, &choiceID, &position, &v); err != nil {
				return nil, err
			}
			d, decErr := decimalFromString(v)
			if decErr != nil {
				return nil, decErr
			}
			ev.Value = types.DecimalValue(d)
		case types.TableDateTime:
			var v time.Time
			if err := rows.Scan(&attrID, &choiceID, &position, &v); err != nil {
				return nil, err
			}
			ev.Value = types.DateTimeValue(v)
		case types.TableString:
			var v string
			if err := rows.Scan(&attrID, &choiceID, &position, &v); err != nil {
				return nil, err
			}
			ev.Value = types.StringValue(v)
		case types.TableObject:
			var v int64
			if err := rows.Scan(&attrID, &choiceID, &position, &v); err != nil {
				return nil, err
			}
			ev.Value = types.RefValue(types.ID(v))
		}
		ev.AttributeID = types.ID(attrID)
		ev.Position = position
		if choiceID.Valid {
			c := types.ID(choiceID.Int64)
			ev.ChoiceID = &c
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func decimalFromString(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse stored decimal %q: %w", s, err)
	}
	return d, nil
}
