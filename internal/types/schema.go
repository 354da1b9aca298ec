package types

import (
	"fmt"
	"sort"
	"time"
)

// Schema is a versioned form definition (spec.md §3). Attributes are keyed by
// name and ordered by Attribute.Order, not by map iteration order — callers
// use AttributesInOrder for anything that must observe declared order.
type Schema struct {
	Metadata

	State         SchemaState
	Storage       SchemaStorage
	PublishDate   *time.Time
	IsAssociation bool
	IsInline      bool
	BaseSchema    *ID // self-reference emulating single inheritance

	Categories map[string]Category
	Attributes map[string]*Attribute

	// TouchedAt supports incremental report materialization (SPEC_FULL §10).
	// No backend sets or stores it; it stays zero.
	TouchedAt time.Time
}

// AttributesInOrder returns the schema's attributes sorted by Order,
// matching the "attributes keyed by attribute name, ordered by attribute
// order" invariant in spec.md §3.
func (s *Schema) AttributesInOrder() []*Attribute {
	out := make([]*Attribute, 0, len(s.Attributes))
	for _, a := range s.Attributes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// AttributeByID returns the attribute with the given id, searching nested
// section attributes as well as the top level (attributes of type object
// are opaque leaves — their object_schema is a different Schema).
func (s *Schema) AttributeByID(id ID) (*Attribute, bool) {
	var find func(attrs map[string]*Attribute) (*Attribute, bool)
	find = func(attrs map[string]*Attribute) (*Attribute, bool) {
		for _, a := range attrs {
			if a.ID == id {
				return a, true
			}
			if a.Type == TypeSection {
				if found, ok := find(a.Attributes); ok {
					return found, true
				}
			}
		}
		return nil, false
	}
	return find(s.Attributes)
}

// Validate checks the schema-level invariants from spec.md §3: the
// publish_date/state cross-field rule, and per-attribute (name,order)
// uniqueness.
func (s *Schema) Validate() error {
	if s.State.RequiresPublishDate() && s.PublishDate == nil {
		return fmt.Errorf("%w: schema %q state %s requires a publish_date", ErrConstraint, s.Name, s.State)
	}
	if !s.State.RequiresPublishDate() && s.PublishDate != nil {
		return fmt.Errorf("%w: schema %q state %s must not have a publish_date", ErrConstraint, s.Name, s.State)
	}

	seenOrder := map[int]bool{}
	for name, a := range s.Attributes {
		if a.Name != name {
			return fmt.Errorf("%w: attribute map key %q does not match attribute name %q", ErrConstraint, name, a.Name)
		}
		if seenOrder[a.Order] {
			return fmt.Errorf("%w: schema %q has two attributes with order %d", ErrConstraint, s.Name, a.Order)
		}
		seenOrder[a.Order] = true
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Publish transitions the schema into the published state, auto-setting
// PublishDate to now (truncated to a day, matching the spec's "auto-set to
// today" language) if it was not already supplied. It returns an error if
// the current state cannot transition to published (spec.md §4.3 state
// machine: draft→published and review→published are both allowed).
func (s *Schema) Publish(now time.Time) error {
	if !s.State.CanTransition(SchemaPublished) {
		return fmt.Errorf("%w: cannot publish schema %q from state %s", ErrConstraint, s.Name, s.State)
	}
	s.State = SchemaPublished
	if s.PublishDate == nil {
		d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		s.PublishDate = &d
	}
	return nil
}

// Retract transitions a published schema to retracted, setting PublishDate
// to retractDate (schemas are never deleted, only superseded — spec.md §3
// lifecycle note).
func (s *Schema) Retract(retractDate time.Time) error {
	if !s.State.CanTransition(SchemaRetracted) {
		return fmt.Errorf("%w: cannot retract schema %q from state %s", ErrConstraint, s.Name, s.State)
	}
	s.State = SchemaRetracted
	s.PublishDate = &retractDate
	return nil
}

// DeepCopy produces a new draft Schema with the same name, title,
// description, storage, and is_inline, a freshly deep-copied attribute map,
// and no publish_date (spec.md §4.3 "Deep copy"). is_association is carried
// over since it describes what kind of schema this is, not version-specific
// state. base_schema is copied by reference (it is a flat pointer, not
// something this version owns).
//
// Object-typed attributes that reference a sub-schema have their
// ObjectSchemaID rewired to subSchemaCopies[original object_schema_id] if a
// replacement is supplied; callers that are only cloning a leaf schema (no
// object attributes, or sub-schemas cloned separately) may pass nil.
func (s *Schema) DeepCopy(subSchemaCopies map[ID]ID) *Schema {
	cp := &Schema{
		Metadata: Metadata{
			Name:        s.Name,
			Title:       s.Title,
			Description: s.Description,
		},
		State:         SchemaDraft,
		Storage:       s.Storage,
		PublishDate:   nil,
		IsAssociation: s.IsAssociation,
		IsInline:      s.IsInline,
		BaseSchema:    s.BaseSchema,
		Categories:    make(map[string]Category, len(s.Categories)),
		Attributes:    make(map[string]*Attribute, len(s.Attributes)),
	}
	for k, v := range s.Categories {
		cp.Categories[k] = v
	}
	for name, a := range s.Attributes {
		ac := a.DeepCopy()
		if a.ObjectSchemaID != nil {
			if repl, ok := subSchemaCopies[*a.ObjectSchemaID]; ok {
				ac.ObjectSchemaID = &repl
			} else {
				orig := *a.ObjectSchemaID
				ac.ObjectSchemaID = &orig
			}
		}
		cp.Attributes[name] = ac
	}
	return cp
}
