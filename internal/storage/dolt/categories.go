package dolt

import (
	"context"
	"fmt"

	"github.com/dynaform/core/internal/types"
)

// ListCategories returns every known Category (spec.md §3).
func (e *execHandle) ListCategories(ctx context.Context) ([]types.Category, error) {
	var out []types.Category
	err := withSpan(ctx, "dolt.ListCategories", func(ctx context.Context) error {
		rows, err := e.exec.QueryContext(ctx, "SELECT name FROM category ORDER BY name")
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			out = append(out, types.Category{Name: name})
		}
		return rows.Err()
	})
	return out, err
}

// ListSchemaNames returns every distinct schema name across all versions
// and states, backing manager.SchemaManager.Keys (spec.md §4.6).
func (e *execHandle) ListSchemaNames(ctx context.Context) ([]string, error) {
	var out []string
	err := withSpan(ctx, "dolt.ListSchemaNames", func(ctx context.Context) error {
		rows, err := e.exec.QueryContext(ctx, "SELECT DISTINCT name FROM `schema` ORDER BY name")
		if err != nil {
			return fmt.Errorf("list schema names: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			out = append(out, name)
		}
		return rows.Err()
	})
	return out, err
}

// PutCategory inserts a category, ignoring a name collision since
// categories are an unordered name set with no other state (spec.md §3).
func (e *execHandle) PutCategory(ctx context.Context, c types.Category) error {
	return withSpan(ctx, "dolt.PutCategory", func(ctx context.Context) error {
		_, err := e.exec.ExecContext(ctx, "INSERT IGNORE INTO category (name) VALUES (?)", c.Name)
		if err != nil {
			return fmt.Errorf("insert category %q: %w", c.Name, err)
		}
		return nil
	})
}
