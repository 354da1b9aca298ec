package dolt

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dynaform/core/internal/types"
)

// ReportColumnValues runs the per-column subquery a report plan compiles
// to (internal/report): one SELECT per (attribute, table) pair, restricted
// to a batch of candidate entity ids, matching the teacher's pattern of
// compiling one correlated subquery per reported column rather than a
// single giant join (internal/storage/dolt query-builder helpers).
func (e *execHandle) ReportColumnValues(ctx context.Context, table types.StorageTable, attributeID types.ID, entityIDs []types.ID) (map[types.ID]types.Value, error) {
	out := make(map[types.ID]types.Value)
	if len(entityIDs) == 0 {
		return out, nil
	}

	err := withSpan(ctx, "dolt.ReportColumnValues", func(ctx context.Context) error {
		placeholders := make([]string, len(entityIDs))
		args := make([]interface{}, 0, len(entityIDs)+1)
		args = append(args, int64(attributeID))
		for i, id := range entityIDs {
			placeholders[i] = "?"
			args = append(args, int64(id))
		}
		query := fmt.Sprintf(`
			SELECT entity_id, value FROM %s
			WHERE attribute_id = ? AND entity_id IN (%s)
			ORDER BY entity_id, position
		`, string(table), strings.Join(placeholders, ","))

		rows, err := e.exec.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("report column values for attribute %d on %s: %w", attributeID, table, err)
		}
		defer rows.Close()

		for rows.Next() {
			eid, v, scanErr := scanReportValue(rows, table)
			if scanErr != nil {
				return scanErr
			}
			out[eid] = v
		}
		return rows.Err()
	})
	return out, err
}

// ListEntitiesBySchema returns every entity id bound to schemaID, ordered
// by id, for the report builder's default row set.
func (e *execHandle) ListEntitiesBySchema(ctx context.Context, schemaID types.ID) ([]types.ID, error) {
	var out []types.ID
	err := withSpan(ctx, "dolt.ListEntitiesBySchema", func(ctx context.Context) error {
		rows, err := e.exec.QueryContext(ctx, `
			SELECT id FROM entity WHERE schema_id = ? ORDER BY id
		`, int64(schemaID))
		if err != nil {
			return fmt.Errorf("list entities for schema %d: %w", schemaID, err)
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

// ReportColumnValueSets is ReportColumnValues without the last-position-wins
// collapse: it returns every stored value per entity for a collection
// attribute, in position order, for the report builder's
// expand_collections path.
func (e *execHandle) ReportColumnValueSets(ctx context.Context, table types.StorageTable, attributeID types.ID, entityIDs []types.ID) (map[types.ID][]types.Value, error) {
	out := make(map[types.ID][]types.Value)
	if len(entityIDs) == 0 {
		return out, nil
	}

	err := withSpan(ctx, "dolt.ReportColumnValueSets", func(ctx context.Context) error {
		placeholders := make([]string, len(entityIDs))
		args := make([]interface{}, 0, len(entityIDs)+1)
		args = append(args, int64(attributeID))
		for i, id := range entityIDs {
			placeholders[i] = "?"
			args = append(args, int64(id))
		}
		query := fmt.Sprintf(`
			SELECT entity_id, value FROM %s
			WHERE attribute_id = ? AND entity_id IN (%s)
			ORDER BY entity_id, position
		`, string(table), strings.Join(placeholders, ","))

		rows, err := e.exec.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("report column value sets for attribute %d on %s: %w", attributeID, table, err)
		}
		defer rows.Close()

		for rows.Next() {
			eid, v, scanErr := scanReportValue(rows, table)
			if scanErr != nil {
				return scanErr
			}
			out[eid] = append(out[eid], v)
		}
		return rows.Err()
	})
	return out, err
}

// scanReportValue scans one (entity_id, value) row, typed according to
// table, into an entity id and a Value. It re-declares the scan per table
// since the driver needs a concretely typed destination per column shape.
func scanReportValue(rows *sql.Rows, table types.StorageTable) (types.ID, types.Value, error) {
	switch table {
	case types.TableInteger:
		var eid, v int64
		if err := rows.Scan(&eid, &v); err != nil {
			return 0, types.Value{}, err
		}
		return types.ID(eid), types.IntValue(v), nil
	case types.TableDecimal:
		var eid int64
		var v string
		if err := rows.Scan(&eid, &v); err != nil {
			return 0, types.Value{}, err
		}
		d, err := decimalFromString(v)
		if err != nil {
			return 0, types.Value{}, err
		}
		return types.ID(eid), types.DecimalValue(d), nil
	case types.TableDateTime:
		var eid int64
		var v time.Time
		if err := rows.Scan(&eid, &v); err != nil {
			return 0, types.Value{}, err
		}
		return types.ID(eid), types.DateTimeValue(v), nil
	case types.TableString:
		var eid int64
		var v string
		if err := rows.Scan(&eid, &v); err != nil {
			return 0, types.Value{}, err
		}
		return types.ID(eid), types.StringValue(v), nil
	case types.TableObject:
		var eid, v int64
		if err := rows.Scan(&eid, &v); err != nil {
			return 0, types.Value{}, err
		}
		return types.ID(eid), types.RefValue(types.ID(v)), nil
	default:
		return 0, types.Value{}, fmt.Errorf("%w: unhandled report storage table %s", types.ErrConstraint, table)
	}
}
