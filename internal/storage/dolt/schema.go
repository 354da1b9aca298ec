package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dynaform/core/internal/idgen"
	"github.com/dynaform/core/internal/types"
)

// PutSchema inserts or updates a schema and its attribute/choice graph,
// grounded on the teacher's raw-SQL upsert idiom (internal/storage/dolt
// issues.go PutIssue): an explicit SELECT to decide INSERT vs UPDATE rather
// than relying on an upsert dialect, since Dolt's INSERT ... ON DUPLICATE
// KEY UPDATE support lags MySQL's for composite keys.
func (e *execHandle) PutSchema(ctx context.Context, s *types.Schema, actor string) error {
	return withSpan(ctx, "dolt.PutSchema", func(ctx context.Context) error {
		if err := s.Validate(); err != nil {
			return err
		}
		now := time.Now().UTC()
		s.Touch(now, actor)

		var publishDate interface{}
		if s.PublishDate != nil {
			publishDate = *s.PublishDate
		}
		var baseSchemaID interface{}
		if s.BaseSchema != nil {
			baseSchemaID = int64(*s.BaseSchema)
		}

		if s.ID == 0 {
			res, err := e.exec.ExecContext(ctx, `
				INSERT INTO `+"`schema`"+`
					(name, title, description, state, storage, publish_date, is_association, is_inline, base_schema_id,
					 create_date, modify_date, create_user, modify_user)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, s.Name, s.Title, s.Description, string(s.State), string(s.Storage), publishDate,
				s.IsAssociation, s.IsInline, baseSchemaID,
				s.CreateDate, s.ModifyDate, s.CreateUser, s.ModifyUser)
			if err != nil {
				return fmt.Errorf("insert schema %q: %w", s.Name, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("schema %q last insert id: %w", s.Name, err)
			}
			s.ID = types.ID(id)
		} else {
			if _, err := e.exec.ExecContext(ctx, `
				UPDATE `+"`schema`"+` SET
					name = ?, title = ?, description = ?, state = ?, storage = ?, publish_date = ?,
					is_association = ?, is_inline = ?, base_schema_id = ?, modify_date = ?, modify_user = ?
				WHERE id = ?
			`, s.Name, s.Title, s.Description, string(s.State), string(s.Storage), publishDate,
				s.IsAssociation, s.IsInline, baseSchemaID, s.ModifyDate, s.ModifyUser, int64(s.ID)); err != nil {
				return fmt.Errorf("update schema %q: %w", s.Name, err)
			}
		}

		for name, cat := range s.Categories {
			if _, err := e.exec.ExecContext(ctx, `
				INSERT IGNORE INTO category (name) VALUES (?)
			`, cat.Name); err != nil {
				return fmt.Errorf("insert category %q: %w", name, err)
			}
			if _, err := e.exec.ExecContext(ctx, `
				INSERT IGNORE INTO schema_category (schema_id, category_name) VALUES (?, ?)
			`, int64(s.ID), cat.Name); err != nil {
				return fmt.Errorf("link category %q to schema %q: %w", name, s.Name, err)
			}
		}

		for _, a := range s.Attributes {
			a.SchemaID = s.ID
			if err := e.putAttribute(ctx, s, a, nil, now, actor); err != nil {
				return fmt.Errorf("put attribute %q on schema %q: %w", a.Name, s.Name, err)
			}
		}
		return nil
	})
}

// putAttribute persists a (and recursively its section children, spec.md
// §3.1) under owning schema s. parent is nil for a schema's top-level
// attributes.
func (e *execHandle) putAttribute(ctx context.Context, s *types.Schema, a *types.Attribute, parent *types.Attribute, now time.Time, actor string) error {
	a.Touch(now, actor)
	a.SchemaID = s.ID
	var parentAttributeID interface{}
	if parent != nil {
		a.ParentAttributeID = &parent.ID
		parentAttributeID = int64(parent.ID)
	} else {
		a.ParentAttributeID = nil
	}
	a.Checksum = idgen.ChecksumAttribute(s.Name, a)

	var objectSchemaID interface{}
	if a.ObjectSchemaID != nil {
		objectSchemaID = int64(*a.ObjectSchemaID)
	}
	var isCollection, isRequired interface{}
	if a.IsCollection != nil {
		isCollection = *a.IsCollection
	}
	if a.IsRequired != nil {
		isRequired = *a.IsRequired
	}
	var valueMin, valueMax interface{}
	if a.ValueMin != nil {
		valueMin = *a.ValueMin
	}
	if a.ValueMax != nil {
		valueMax = *a.ValueMax
	}
	var collectionMin, collectionMax interface{}
	if a.CollectionMin != nil {
		collectionMin = *a.CollectionMin
	}
	if a.CollectionMax != nil {
		collectionMax = *a.CollectionMax
	}

	if a.ID == 0 {
		res, err := e.exec.ExecContext(ctx, `
			INSERT INTO attribute
				(schema_id, parent_attribute_id, name, title, description, type, is_collection, is_required,
				 is_private, object_schema_id, value_min, value_max, collection_min, collection_max, validator,
				 `+"`order`"+`, checksum, create_date, modify_date, create_user, modify_user)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, int64(a.SchemaID), parentAttributeID, a.Name, a.Title, a.Description, string(a.Type), isCollection, isRequired,
			a.IsPrivate, objectSchemaID, valueMin, valueMax, collectionMin, collectionMax, a.Validator, a.Order, a.Checksum,
			a.CreateDate, a.ModifyDate, a.CreateUser, a.ModifyUser)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		a.ID = types.ID(id)
	} else {
		if _, err := e.exec.ExecContext(ctx, `
			UPDATE attribute SET
				parent_attribute_id = ?, name = ?, title = ?, description = ?, type = ?, is_collection = ?,
				is_required = ?, is_private = ?, object_schema_id = ?, value_min = ?, value_max = ?,
				collection_min = ?, collection_max = ?, validator = ?, `+"`order`"+` = ?, checksum = ?,
				modify_date = ?, modify_user = ?
			WHERE id = ?
		`, parentAttributeID, a.Name, a.Title, a.Description, string(a.Type), isCollection, isRequired, a.IsPrivate,
			objectSchemaID, valueMin, valueMax, collectionMin, collectionMax, a.Validator, a.Order, a.Checksum,
			a.ModifyDate, a.ModifyUser, int64(a.ID)); err != nil {
			return err
		}
	}

	for _, c := range a.Choices {
		c.AttributeID = a.ID
		if c.ID == 0 {
			res, err := e.exec.ExecContext(ctx, `
				INSERT INTO choice (attribute_id, name, title, value, `+"`order`"+`)
				VALUES (?, ?, ?, ?, ?)
			`, int64(c.AttributeID), c.Name, c.Title, c.Value, c.Order)
			if err != nil {
				return fmt.Errorf("insert choice %q: %w", c.Name, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			c.ID = types.ID(id)
		} else {
			if _, err := e.exec.ExecContext(ctx, `
				UPDATE choice SET name = ?, title = ?, value = ?, `+"`order`"+` = ? WHERE id = ?
			`, c.Name, c.Title, c.Value, c.Order, int64(c.ID)); err != nil {
				return fmt.Errorf("update choice %q: %w", c.Name, err)
			}
		}
	}

	for _, child := range a.Attributes {
		if err := e.putAttribute(ctx, s, child, a, now, actor); err != nil {
			return fmt.Errorf("put child attribute %q under %q: %w", child.Name, a.Name, err)
		}
	}
	return nil
}

// GetSchema loads a schema by surrogate id along with its attribute and
// choice graph.
func (e *execHandle) GetSchema(ctx context.Context, id types.ID) (*types.Schema, error) {
	var s *types.Schema
	err := withSpan(ctx, "dolt.GetSchema", func(ctx context.Context) error {
		row := e.exec.QueryRowContext(ctx, `
			SELECT id, name, title, description, state, storage, publish_date, is_association, is_inline,
			       base_schema_id, create_date, modify_date, create_user, modify_user
			FROM `+"`schema`"+` WHERE id = ?
		`, int64(id))
		sc, err := scanSchema(row)
		if err != nil {
			return err
		}
		if err := e.loadAttributes(ctx, sc); err != nil {
			return err
		}
		if err := e.loadCategories(ctx, sc); err != nil {
			return err
		}
		s = sc
		return nil
	})
	return s, err
}

func scanSchema(row *sql.Row) (*types.Schema, error) {
	var (
		id                       int64
		name, title, description string
		state, storageMode      string
		publishDate              sql.NullTime
		isAssociation, isInline  bool
		baseSchemaID             sql.NullInt64
		createDate, modifyDate   time.Time
		createUser, modifyUser   string
	)
	if err := row.Scan(&id, &name, &title, &description, &state, &storageMode, &publishDate,
		&isAssociation, &isInline, &baseSchemaID, &createDate, &modifyDate, &createUser, &modifyUser); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &types.NotFoundError{What: "schema", Key: name}
		}
		return nil, err
	}
	sc := &types.Schema{
		Metadata: types.Metadata{
			ID: types.ID(id), Name: name, Title: title, Description: description,
			CreateDate: createDate, ModifyDate: modifyDate, CreateUser: createUser, ModifyUser: modifyUser,
		},
		State:         types.SchemaState(state),
		Storage:       types.SchemaStorage(storageMode),
		IsAssociation: isAssociation,
		IsInline:      isInline,
		Attributes:    make(map[string]*types.Attribute),
		Categories:    make(map[string]types.Category),
	}
	if publishDate.Valid {
		t := publishDate.Time
		sc.PublishDate = &t
	}
	if baseSchemaID.Valid {
		v := types.ID(baseSchemaID.Int64)
		sc.BaseSchema = &v
	}
	return sc, nil
}

// loadAttributes loads every attribute row owned by sc, flat, then
// reassembles the section nesting tree (spec.md §3.1) from each row's
// parent_attribute_id before attaching the roots to sc.Attributes.
func (e *execHandle) loadAttributes(ctx context.Context, sc *types.Schema) error {
	rows, err := e.exec.QueryContext(ctx, `
		SELECT id, parent_attribute_id, name, title, description, type, is_collection, is_required, is_private,
		       object_schema_id, value_min, value_max, collection_min, collection_max, validator, `+"`order`"+`, checksum,
		       create_date, modify_date, create_user, modify_user
		FROM attribute WHERE schema_id = ?
	`, int64(sc.ID))
	if err != nil {
		return fmt.Errorf("load attributes for schema %q: %w", sc.Name, err)
	}
	defer rows.Close()

	byID := make(map[types.ID]*types.Attribute)
	parentOf := make(map[types.ID]types.ID)
	var ordered []*types.Attribute

	for rows.Next() {
		var (
			id, parentID                        int64
			hasParent                            sql.NullInt64
			name, title, description, attrType  string
			isCollection, isRequired             sql.NullBool
			isPrivate                            bool
			objectSchemaID                       sql.NullInt64
			valueMin, valueMax                   sql.NullFloat64
			collectionMin, collectionMax         sql.NullInt64
			validator, checksum                  string
			order                                int
			createDate, modifyDate               time.Time
			createUser, modifyUser               string
		)
		if err := rows.Scan(&id, &hasParent, &name, &title, &description, &attrType, &isCollection, &isRequired,
			&isPrivate, &objectSchemaID, &valueMin, &valueMax, &collectionMin, &collectionMax, &validator, &order, &checksum,
			&createDate, &modifyDate, &createUser, &modifyUser); err != nil {
			return fmt.Errorf("scan attribute row: %w", err)
		}
		a := &types.Attribute{
			Metadata: types.Metadata{
				ID: types.ID(id), Name: name, Title: title, Description: description,
				CreateDate: createDate, ModifyDate: modifyDate, CreateUser: createUser, ModifyUser: modifyUser,
			},
			SchemaID:  sc.ID,
			Type:      types.AttributeType(attrType),
			IsPrivate: isPrivate,
			Validator: validator,
			Order:     order,
			Checksum:  checksum,
		}
		if isCollection.Valid {
			v := isCollection.Bool
			a.IsCollection = &v
		}
		if isRequired.Valid {
			v := isRequired.Bool
			a.IsRequired = &v
		}
		if objectSchemaID.Valid {
			v := types.ID(objectSchemaID.Int64)
			a.ObjectSchemaID = &v
		}
		if valueMin.Valid {
			v := valueMin.Float64
			a.ValueMin = &v
		}
		if valueMax.Valid {
			v := valueMax.Float64
			a.ValueMax = &v
		}
		if collectionMin.Valid {
			v := int(collectionMin.Int64)
			a.CollectionMin = &v
		}
		if collectionMax.Valid {
			v := int(collectionMax.Int64)
			a.CollectionMax = &v
		}
		if hasParent.Valid {
			parentID = hasParent.Int64
			parentOf[a.ID] = types.ID(parentID)
		}
		byID[a.ID] = a
		ordered = append(ordered, a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, a := range ordered {
		pid, hasParent := parentOf[a.ID]
		if !hasParent {
			sc.Attributes[a.Name] = a
			continue
		}
		parent, ok := byID[pid]
		if !ok {
			return fmt.Errorf("attribute %q references missing parent id %d", a.Name, pid)
		}
		a.ParentAttributeID = &pid
		if parent.Attributes == nil {
			parent.Attributes = make(map[string]*types.Attribute)
		}
		parent.Attributes[a.Name] = a
	}

	for _, a := range ordered {
		if err := e.loadChoices(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (e *execHandle) loadChoices(ctx context.Context, a *types.Attribute) error {
	rows, err := e.exec.QueryContext(ctx, `
		SELECT id, name, title, value, `+"`order`"+` FROM choice WHERE attribute_id = ? ORDER BY `+"`order`"+`
	`, int64(a.ID))
	if err != nil {
		return fmt.Errorf("load choices for attribute %q: %w", a.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id          int64
			name, title string
			value       string
			order       int
		)
		if err := rows.Scan(&id, &name, &title, &value, &order); err != nil {
			return err
		}
		a.Choices = append(a.Choices, &types.Choice{
			Metadata:    types.Metadata{ID: types.ID(id), Name: name, Title: title},
			AttributeID: a.ID,
			Value:       value,
			Order:       order,
		})
	}
	return rows.Err()
}

func (e *execHandle) loadCategories(ctx context.Context, sc *types.Schema) error {
	rows, err := e.exec.QueryContext(ctx, `
		SELECT category_name FROM schema_category WHERE schema_id = ?
	`, int64(sc.ID))
	if err != nil {
		return fmt.Errorf("load categories for schema %q: %w", sc.Name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		sc.Categories[name] = types.Category{Name: name}
	}
	return rows.Err()
}

// GetSchemaByName resolves the "on: date" as-of semantics (SPEC_FULL §4):
// the schema version whose publish_date is the latest one not after on,
// falling back to the single draft version if on is nil, mirroring
// memory.Store.getSchemaByNameLocked's logic against SQL instead of maps.
func (e *execHandle) GetSchemaByName(ctx context.Context, name string, on *time.Time) (*types.Schema, error) {
	if on == nil {
		row := e.exec.QueryRowContext(ctx, `
			SELECT id FROM `+"`schema`"+` WHERE name = ? AND state = 'draft' LIMIT 1
		`, name)
		var id int64
		if err := row.Scan(&id); err == nil {
			return e.GetSchema(ctx, types.ID(id))
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("resolve draft schema %q: %w", name, err)
		}
		row = e.exec.QueryRowContext(ctx, `
			SELECT id FROM `+"`schema`"+` WHERE name = ?
			ORDER BY publish_date DESC, id DESC LIMIT 1
		`, name)
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, &types.NotFoundError{What: "schema", Key: name}
			}
			return nil, fmt.Errorf("resolve latest schema %q: %w", name, err)
		}
		return e.GetSchema(ctx, types.ID(id))
	}

	row := e.exec.QueryRowContext(ctx, `
		SELECT id FROM `+"`schema`"+`
		WHERE name = ? AND publish_date IS NOT NULL AND publish_date <= ?
		ORDER BY publish_date DESC LIMIT 1
	`, name, *on)
	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &types.NotFoundError{What: "schema", Key: name}
		}
		return nil, fmt.Errorf("resolve schema %q as of %s: %w", name, on.Format(time.RFC3339), err)
	}
	return e.GetSchema(ctx, types.ID(id))
}

// ListSchemaVersions returns every version of name ordered oldest to newest
// by publish_date, draft (null publish_date) sorted last.
func (e *execHandle) ListSchemaVersions(ctx context.Context, name string) ([]*types.Schema, error) {
	var out []*types.Schema
	err := withSpan(ctx, "dolt.ListSchemaVersions", func(ctx context.Context) error {
		rows, err := e.exec.QueryContext(ctx, `
			SELECT id FROM `+"`schema`"+` WHERE name = ?
			ORDER BY (publish_date IS NULL) ASC, publish_date ASC
		`, name)
		if err != nil {
			return fmt.Errorf("list schema versions %q: %w", name, err)
		}
		defer rows.Close()
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range ids {
			sc, err := e.GetSchema(ctx, types.ID(id))
			if err != nil {
				return err
			}
			out = append(out, sc)
		}
		return nil
	})
	return out, err
}

// DeleteSchema cascades to attribute, choice, schema_category, entity, and
// value rows via the ON DELETE CASCADE foreign keys declared in
// migrations.go (spec.md §3: "Cascading delete on schema removes
// attributes, choices, entities bound to it, and their values").
func (e *execHandle) DeleteSchema(ctx context.Context, id types.ID, actor string) error {
	return withSpan(ctx, "dolt.DeleteSchema", func(ctx context.Context) error {
		res, err := e.exec.ExecContext(ctx, "DELETE FROM `schema` WHERE id = ?", int64(id))
		if err != nil {
			return fmt.Errorf("delete schema %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &types.NotFoundError{What: "schema", Key: fmt.Sprintf("%d", id)}
		}
		return nil
	})
}
