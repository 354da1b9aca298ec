package dolt

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one idempotent startup step, grounded on the teacher's
// internal/storage/dolt/migrations.go Migration/RunMigrations pair.
type Migration struct {
	Name string
	Func func(context.Context, *sql.DB) error
}

// migrations is the ordered list run on every Open (spec.md §6 "Persisted
// schema (SQL)"). Each step checks information_schema before acting so
// re-running against an already-migrated database is a no-op, the same
// idempotence contract the teacher's migrations carry.
var migrations = []Migration{
	{"metadata_tables", migrateMetadataTables},
	{"schema_graph_tables", migrateSchemaGraphTables},
	{"value_tables", migrateValueTables},
	{"entity_context_tables", migrateEntityContextTables},
	{"audit_shadow_tables", migrateAuditShadowTables},
}

// RunMigrations executes all registered migrations in order.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range migrations {
		if err := m.Func(ctx, db); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
	}
	return nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?
	`, table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return count > 0, nil
}

func createTableIfMissing(ctx context.Context, db *sql.DB, table, ddl string) error {
	exists, err := tableExists(ctx, db, table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// migrateMetadataTables creates user and category (spec.md §3, §6).
func migrateMetadataTables(ctx context.Context, db *sql.DB) error {
	if err := createTableIfMissing(ctx, db, "user", `
		CREATE TABLE user (
			id_key VARCHAR(255) PRIMARY KEY,
			display_name VARCHAR(255) NOT NULL
		)
	`); err != nil {
		return err
	}
	return createTableIfMissing(ctx, db, "category", `
		CREATE TABLE category (
			name VARCHAR(255) PRIMARY KEY
		)
	`)
}

// migrateSchemaGraphTables creates schema, attribute, choice, and
// schema_category (spec.md §3, §6): named check constraints for the
// publish_date/state rule and type=object iff object_schema_id, cascading
// deletes from schema to attribute to choice, SET NULL from
// attribute.object_schema_id.
func migrateSchemaGraphTables(ctx context.Context, db *sql.DB) error {
	if err := createTableIfMissing(ctx, db, "schema", `
		CREATE TABLE `+"`schema`"+` (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL,
			title VARCHAR(255) NOT NULL DEFAULT '',
			description TEXT,
			state VARCHAR(16) NOT NULL,
			storage VARCHAR(16) NOT NULL,
			publish_date DATETIME NULL,
			is_association BOOLEAN NOT NULL DEFAULT FALSE,
			is_inline BOOLEAN NOT NULL DEFAULT FALSE,
			base_schema_id BIGINT NULL,
			create_date DATETIME NOT NULL,
			modify_date DATETIME NOT NULL,
			create_user VARCHAR(255) NOT NULL,
			modify_user VARCHAR(255) NOT NULL,
			CONSTRAINT ck_schema_publish_date CHECK (
				(state IN ('published','retracted') AND publish_date IS NOT NULL) OR
				(state IN ('draft','review') AND publish_date IS NULL)
			),
			CONSTRAINT fk_schema_base FOREIGN KEY (base_schema_id) REFERENCES `+"`schema`"+`(id) ON DELETE SET NULL
		)
	`); err != nil {
		return err
	}

	if err := createTableIfMissing(ctx, db, "attribute", `
		CREATE TABLE attribute (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			schema_id BIGINT NOT NULL,
			parent_attribute_id BIGINT NULL,
			name VARCHAR(255) NOT NULL,
			title VARCHAR(255) NOT NULL DEFAULT '',
			description TEXT,
			type VARCHAR(16) NOT NULL,
			is_collection BOOLEAN NULL,
			is_required BOOLEAN NULL,
			is_private BOOLEAN NOT NULL DEFAULT FALSE,
			object_schema_id BIGINT NULL,
			value_min DOUBLE NULL,
			value_max DOUBLE NULL,
			collection_min INT NULL,
			collection_max INT NULL,
			validator VARCHAR(1024) NOT NULL DEFAULT '',
			` + "`order`" + ` INT NOT NULL,
			checksum CHAR(32) NOT NULL,
			create_date DATETIME NOT NULL,
			modify_date DATETIME NOT NULL,
			create_user VARCHAR(255) NOT NULL,
			modify_user VARCHAR(255) NOT NULL,
			CONSTRAINT uq_attribute_schema_name UNIQUE (schema_id, name),
			CONSTRAINT uq_attribute_schema_order UNIQUE (schema_id, ` + "`order`" + `),
			CONSTRAINT ck_attribute_object_schema CHECK (
				(type = 'object' AND object_schema_id IS NOT NULL) OR
				(type <> 'object' AND object_schema_id IS NULL)
			),
			CONSTRAINT fk_attribute_schema FOREIGN KEY (schema_id) REFERENCES `+"`schema`"+`(id) ON DELETE CASCADE,
			CONSTRAINT fk_attribute_object_schema FOREIGN KEY (object_schema_id) REFERENCES `+"`schema`"+`(id) ON DELETE SET NULL,
			CONSTRAINT fk_attribute_parent FOREIGN KEY (parent_attribute_id) REFERENCES attribute(id) ON DELETE CASCADE,
			INDEX idx_attribute_checksum (checksum),
			INDEX idx_attribute_object_schema (object_schema_id),
			INDEX idx_attribute_parent (parent_attribute_id)
		)
	`); err != nil {
		return err
	}

	if err := createTableIfMissing(ctx, db, "choice", `
		CREATE TABLE choice (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			attribute_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			title VARCHAR(255) NOT NULL DEFAULT '',
			value VARCHAR(255) NOT NULL,
			` + "`order`" + ` INT NOT NULL,
			CONSTRAINT uq_choice_attribute_name UNIQUE (attribute_id, name),
			CONSTRAINT uq_choice_attribute_order UNIQUE (attribute_id, ` + "`order`" + `),
			CONSTRAINT uq_choice_attribute_value UNIQUE (attribute_id, value),
			CONSTRAINT fk_choice_attribute FOREIGN KEY (attribute_id) REFERENCES attribute(id) ON DELETE CASCADE
		)
	`); err != nil {
		return err
	}

	return createTableIfMissing(ctx, db, "schema_category", `
		CREATE TABLE schema_category (
			schema_id BIGINT NOT NULL,
			category_name VARCHAR(255) NOT NULL,
			PRIMARY KEY (schema_id, category_name),
			CONSTRAINT fk_schema_category_schema FOREIGN KEY (schema_id) REFERENCES `+"`schema`"+`(id) ON DELETE CASCADE,
			CONSTRAINT fk_schema_category_category FOREIGN KEY (category_name) REFERENCES category(name) ON DELETE CASCADE
		)
	`)
}

// migrateValueTables creates the five per-type sharded value tables
// (spec.md §3 "Value"): integer, decimal, datetime, string, object, each
// indexed on (entity), (attribute), (choice), and (value).
func migrateValueTables(ctx context.Context, db *sql.DB) error {
	tables := []struct {
		name     string
		valueCol string
	}{
		{"integer", "value BIGINT NOT NULL"},
		{"decimal", "value DECIMAL(38,10) NOT NULL"},
		{"datetime", "value DATETIME NOT NULL"},
		{"string", "value TEXT NOT NULL"},
		{"object", "value BIGINT NOT NULL"},
	}
	for _, t := range tables {
		fkValue := ""
		if t.name == "object" {
			fkValue = ", CONSTRAINT fk_" + t.name + "_value_entity FOREIGN KEY (value) REFERENCES entity(id) ON DELETE CASCADE"
		}
		ddl := fmt.Sprintf(`
			CREATE TABLE %s (
				id BIGINT PRIMARY KEY AUTO_INCREMENT,
				entity_id BIGINT NOT NULL,
				attribute_id BIGINT NOT NULL,
				choice_id BIGINT NULL,
				position INT NOT NULL DEFAULT 0,
				%s,
				CONSTRAINT fk_%s_entity FOREIGN KEY (entity_id) REFERENCES entity(id) ON DELETE CASCADE,
				CONSTRAINT fk_%s_attribute FOREIGN KEY (attribute_id) REFERENCES attribute(id) ON DELETE CASCADE,
				CONSTRAINT fk_%s_choice FOREIGN KEY (choice_id) REFERENCES choice(id) ON DELETE SET NULL%s,
				INDEX idx_%s_entity (entity_id),
				INDEX idx_%s_attribute (attribute_id),
				INDEX idx_%s_choice (choice_id),
				INDEX idx_%s_value (value)
			)
		`, t.name, t.valueCol, t.name, t.name, t.name, fkValue, t.name, t.name, t.name, t.name)
		if err := createTableIfMissing(ctx, db, t.name, ddl); err != nil {
			return err
		}
	}
	return nil
}

// migrateEntityContextTables creates entity and context (spec.md §3, §4.5).
func migrateEntityContextTables(ctx context.Context, db *sql.DB) error {
	if err := createTableIfMissing(ctx, db, "entity", `
		CREATE TABLE entity (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			schema_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			title VARCHAR(255) NOT NULL DEFAULT '',
			description TEXT,
			state VARCHAR(16) NOT NULL,
			collect_date DATETIME NULL,
			revision BIGINT NOT NULL DEFAULT 1,
			create_date DATETIME NOT NULL,
			modify_date DATETIME NOT NULL,
			create_user VARCHAR(255) NOT NULL,
			modify_user VARCHAR(255) NOT NULL,
			CONSTRAINT fk_entity_schema FOREIGN KEY (schema_id) REFERENCES `+"`schema`"+`(id) ON DELETE CASCADE
		)
	`); err != nil {
		return err
	}

	return createTableIfMissing(ctx, db, "context", `
		CREATE TABLE context (
			entity_id BIGINT NOT NULL,
			external VARCHAR(255) NOT NULL,
			` + "`key`" + ` VARCHAR(255) NOT NULL,
			PRIMARY KEY (entity_id, external, ` + "`key`" + `),
			CONSTRAINT fk_context_entity FOREIGN KEY (entity_id) REFERENCES entity(id) ON DELETE CASCADE,
			INDEX idx_context_external_key (external, ` + "`key`" + `)
		)
	`)
}

// migrateAuditShadowTables creates the entity_audit shadow (spec.md §4.2):
// same columns as entity (with FK uniqueness dropped), revision added to
// the primary key. It also creates one "<shard>_audit" shadow per per-type
// value table, for the EAV cell-level history spec.md §4.2 invariant 6 asks
// for (e.g. updating attribute a from 'x' to 'y' leaves exactly one row with
// value='x' in the audit shadow of whichever shard holds a's type). Entity
// and the five value shards are the only mapped classes this store marks
// auditable; see DESIGN.md for why schema/attribute/choice are not shadowed.
func migrateAuditShadowTables(ctx context.Context, db *sql.DB) error {
	if err := createTableIfMissing(ctx, db, "entity_audit", `
		CREATE TABLE entity_audit (
			id BIGINT NOT NULL,
			revision BIGINT NOT NULL,
			schema_id BIGINT NOT NULL,
			state VARCHAR(16) NOT NULL,
			collect_date DATETIME NULL,
			audited_at DATETIME NOT NULL,
			audited_by VARCHAR(255) NOT NULL,
			PRIMARY KEY (id, revision)
		)
	`); err != nil {
		return err
	}

	shards := []struct {
		name     string
		valueCol string
	}{
		{"integer", "value BIGINT NULL"},
		{"decimal", "value DECIMAL(38,10) NULL"},
		{"datetime", "value DATETIME NULL"},
		{"string", "value TEXT NULL"},
		{"object", "value BIGINT NULL"},
	}
	for _, shard := range shards {
		table := shard.name + "_audit"
		ddl := fmt.Sprintf(`
			CREATE TABLE %s (
				entity_id BIGINT NOT NULL,
				attribute_id BIGINT NOT NULL,
				position INT NOT NULL DEFAULT 0,
				revision BIGINT NOT NULL,
				%s,
				audited_at DATETIME NOT NULL,
				audited_by VARCHAR(255) NOT NULL,
				PRIMARY KEY (entity_id, attribute_id, position, revision)
			)
		`, table, shard.valueCol)
		if err := createTableIfMissing(ctx, db, table, ddl); err != nil {
			return err
		}
	}
	return nil
}
