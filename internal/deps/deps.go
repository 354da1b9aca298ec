// Package deps implements the Hierarchy inspector (spec.md §4.6): the
// section-descent, object-opaque walk over a schema's attribute tree that
// both the Hierarchy inspector and the report builder's column planner
// (internal/report) need. Grounded on the teacher's filepath.Walk-style
// visitor idiom (e.g. internal/comment/scanner.go) rather than a generic
// tree/iterator type: a callback that can return an error to short-circuit
// the walk.
package deps

import (
	"context"
	"sort"
	"time"

	"github.com/dynaform/core/internal/manager"
	"github.com/dynaform/core/internal/types"
)

// Hierarchy answers children/iterChildren/childrenNames over the sub-schema
// graph walked from the schema selected by (key, on), per spec.md §4.6.
type Hierarchy struct {
	schemas *manager.SchemaManager
}

// NewHierarchy wraps schemas for tree-walk queries.
func NewHierarchy(schemas *manager.SchemaManager) *Hierarchy {
	return &Hierarchy{schemas: schemas}
}

// Children returns the reachable leaf/object attributes of the schema named
// key as of on (spec.md §4.6), in declared order. A section attribute is
// descended into and replaced by its own children; an object attribute is
// an opaque reference and is returned as-is, not descended into (matching
// the report builder's column-plan walk, spec.md §4.7).
func (h *Hierarchy) Children(ctx context.Context, key string, on *time.Time) ([]*types.Attribute, error) {
	sc, err := h.schemas.Get(ctx, key, on)
	if err != nil {
		return nil, err
	}
	return WalkAttributes(sc.AttributesInOrder()), nil
}

// ChildrenNames returns the Name of each attribute Children would return,
// in the same order.
func (h *Hierarchy) ChildrenNames(ctx context.Context, key string, on *time.Time) ([]string, error) {
	children, err := h.Children(ctx, key, on)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(children))
	for i, a := range children {
		names[i] = a.Name
	}
	return names, nil
}

// IterChildren walks the children of the schema named key as of on,
// invoking fn for each in declared order. Returning a non-nil error from fn
// stops the walk early and IterChildren returns that error.
func (h *Hierarchy) IterChildren(ctx context.Context, key string, on *time.Time, fn func(*types.Attribute) error) error {
	children, err := h.Children(ctx, key, on)
	if err != nil {
		return err
	}
	for _, a := range children {
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

// WalkAttributes flattens attrs into the leaves reached by descending into
// every TypeSection attribute (not TypeObject — object attributes are
// opaque references to another schema, spec.md §4.7), preserving the
// depth-first declared order siblings appear in.
func WalkAttributes(attrs []*types.Attribute) []*types.Attribute {
	var out []*types.Attribute
	for _, a := range attrs {
		if a.Type == types.TypeSection {
			out = append(out, WalkAttributes(a.AttributesInOrder())...)
			continue
		}
		out = append(out, a)
	}
	return out
}

// SortedNames returns the Name of each attribute in attrs, sorted
// lexically. Used where a stable, order-independent name set is wanted
// (e.g. deduplicating a column plan's attribute name across schema
// versions) rather than the declared-order walk IterChildren performs.
func SortedNames(attrs []*types.Attribute) []string {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	sort.Strings(names)
	return names
}
