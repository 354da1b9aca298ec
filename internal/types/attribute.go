package types

import (
	"sort"
	"strconv"
	"time"
)

// Documented defaults substituted for a null IsCollection/IsRequired when
// computing an attribute's checksum (spec.md §4.3, Design Notes). These
// substitutions apply only at checksum time, never at persistence time: a
// stored attribute keeps its literal NULL until explicitly set (resolved
// Open Question, see DESIGN.md).
const (
	IsCollectionDefault = false
	IsRequiredDefault   = false
)

// Attribute is a typed slot inside a Schema (spec.md §3).
type Attribute struct {
	Metadata

	SchemaID         ID
	ParentAttributeID *ID // set iff this attribute nests under a TypeSection attribute
	Type             AttributeType

	IsCollection *bool // nil until explicitly set; see IsCollectionDefault
	IsRequired   *bool // nil until explicitly set; see IsRequiredDefault
	IsPrivate    bool  // redacted to "[PRIVATE]" by the report builder's ignore_private option

	ObjectSchemaID *ID // required iff Type == TypeObject, else must be nil
	Choices        []*Choice

	// Attributes holds nested child attributes when Type == TypeSection
	// (spec.md §3.1: "attributes of type section nest further attributes").
	// Nil/empty for every other type. Unlike ObjectSchemaID, a section does
	// not reference a separate Schema row: its children are inline
	// attributes of the same schema, walked by internal/deps and the report
	// builder's column planner.
	Attributes map[string]*Attribute

	ValueMin *float64 // length for string/text, magnitude otherwise, epoch seconds for date/datetime
	ValueMax *float64

	CollectionMin *int
	CollectionMax *int

	Validator string // regular expression applied to the string form of the value
	Order     int    // unique within schema

	Checksum string // 32-hex content hash, see internal/idgen.ChecksumAttribute
}

// AttributesInOrder returns a's nested section children sorted by Order,
// mirroring Schema.AttributesInOrder.
func (a *Attribute) AttributesInOrder() []*Attribute {
	return childrenInOrder(a.Attributes)
}

// EffectiveIsCollection returns IsCollection or IsCollectionDefault if unset.
func (a *Attribute) EffectiveIsCollection() bool {
	if a.IsCollection == nil {
		return IsCollectionDefault
	}
	return *a.IsCollection
}

// EffectiveIsRequired returns IsRequired or IsRequiredDefault if unset.
func (a *Attribute) EffectiveIsRequired() bool {
	if a.IsRequired == nil {
		return IsRequiredDefault
	}
	return *a.IsRequired
}

// Validate checks the attribute-level invariants from spec.md §3 that do not
// require sibling attributes to evaluate (schema-wide uniqueness is checked
// by Schema.Validate).
func (a *Attribute) Validate() error {
	if !a.Type.Valid() {
		return NewConstraintError("", a.Name, "type", "valid", a.Type, a.Type)
	}
	if (a.Type == TypeObject) != (a.ObjectSchemaID != nil) {
		return NewConstraintError("", a.Name, "object_schema", "iff type=object", a.ObjectSchemaID, a.Type)
	}
	if a.Type != TypeSection && len(a.Attributes) > 0 {
		return NewConstraintError("", a.Name, "attributes", "iff type=section", a.Type, len(a.Attributes))
	}
	if a.ValueMin != nil && a.ValueMax != nil && *a.ValueMin >= *a.ValueMax {
		return NewConstraintError("", a.Name, "value_min<value_max", "<", *a.ValueMin, *a.ValueMax)
	}
	if a.CollectionMin != nil {
		if *a.CollectionMin < 0 {
			return NewConstraintError("", a.Name, "collection_min>=0", ">=", *a.CollectionMin, 0)
		}
		if a.CollectionMax != nil && *a.CollectionMin >= *a.CollectionMax {
			return NewConstraintError("", a.Name, "collection_min<collection_max", "<", *a.CollectionMin, *a.CollectionMax)
		}
	}
	if a.CollectionMax != nil && *a.CollectionMax < 0 {
		return NewConstraintError("", a.Name, "collection_max>=0", ">=", *a.CollectionMax, 0)
	}
	seenChoiceName := map[string]bool{}
	seenChoiceOrder := map[int]bool{}
	seenChoiceValue := map[string]bool{}
	for _, c := range a.Choices {
		if seenChoiceName[c.Name] || seenChoiceOrder[c.Order] || seenChoiceValue[c.Value] {
			return NewConstraintError("", a.Name, "choice uniqueness (name,order,value)", "unique", c, a.Choices)
		}
		seenChoiceName[c.Name] = true
		seenChoiceOrder[c.Order] = true
		seenChoiceValue[c.Value] = true
	}
	seenChildName := map[string]bool{}
	seenChildOrder := map[int]bool{}
	for name, c := range a.Attributes {
		if c.Name != name {
			return NewConstraintError("", a.Name, "child attribute map key", "==", name, c.Name)
		}
		if seenChildName[c.Name] || seenChildOrder[c.Order] {
			return NewConstraintError("", a.Name, "child attribute uniqueness (name,order)", "unique", c.Name, c.Order)
		}
		seenChildName[c.Name] = true
		seenChildOrder[c.Order] = true
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ChecksumInputs returns the ordered, whitespace-normalized inputs that feed
// the attribute's content checksum (spec.md §4.3). schemaName is the owning
// schema's Name; the schema's own title/description are intentionally
// excluded (only the schema *name* participates) so cosmetic schema edits
// never churn attribute checksums.
func (a *Attribute) ChecksumInputs(schemaName string) []string {
	out := []string{
		normalizeWhitespace(schemaName),
		normalizeWhitespace(a.Name),
		normalizeWhitespace(a.Title),
		normalizeWhitespace(a.Description),
		string(a.Type),
		boolToken(a.EffectiveIsCollection()),
		boolToken(a.EffectiveIsRequired()),
	}
	for _, c := range a.Choices {
		out = append(out,
			strconv.Itoa(c.Order),
			normalizeWhitespace(c.Title),
			normalizeWhitespace(c.Value),
		)
	}
	for _, c := range childrenInOrder(a.Attributes) {
		out = append(out, c.ChecksumInputs(schemaName)...)
	}
	return out
}

// childrenInOrder sorts a section attribute's nested Attributes by Order,
// mirroring Schema.AttributesInOrder for the nested case.
func childrenInOrder(children map[string]*Attribute) []*Attribute {
	out := make([]*Attribute, 0, len(children))
	for _, c := range children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func boolToken(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// DeepCopy duplicates the attribute, its ObjectSchemaID-targeted sub-schema
// content is NOT copied here (the caller, Schema.DeepCopy, owns cloning the
// referenced sub-schema and rewiring the pointer) and all of its Choices, per
// spec.md §4.3: "each Attribute deep-copy duplicates its object_schema and
// all its Choices". Checksum, id, and timestamps are reset; the attribute
// checksum is recomputed once the copy is attached to its new owning schema.
func (a *Attribute) DeepCopy() *Attribute {
	cp := *a
	cp.ID = 0
	cp.SchemaID = 0
	cp.CreateDate = time.Time{}
	cp.ModifyDate = time.Time{}
	cp.CreateUser = ""
	cp.ModifyUser = ""
	cp.Checksum = ""

	if a.IsCollection != nil {
		v := *a.IsCollection
		cp.IsCollection = &v
	}
	if a.IsRequired != nil {
		v := *a.IsRequired
		cp.IsRequired = &v
	}
	if a.ValueMin != nil {
		v := *a.ValueMin
		cp.ValueMin = &v
	}
	if a.ValueMax != nil {
		v := *a.ValueMax
		cp.ValueMax = &v
	}
	if a.CollectionMin != nil {
		v := *a.CollectionMin
		cp.CollectionMin = &v
	}
	if a.CollectionMax != nil {
		v := *a.CollectionMax
		cp.CollectionMax = &v
	}
	cp.Choices = make([]*Choice, len(a.Choices))
	for i, c := range a.Choices {
		cp.Choices[i] = c.DeepCopy()
	}
	// ObjectSchemaID is left for the caller to rewire after cloning the
	// referenced sub-schema; zeroed here so a half-copied attribute never
	// accidentally points at the original schema's sub-schema row.
	if a.ObjectSchemaID != nil {
		cp.ObjectSchemaID = nil
	}
	cp.ParentAttributeID = nil
	if len(a.Attributes) > 0 {
		cp.Attributes = make(map[string]*Attribute, len(a.Attributes))
		for name, c := range a.Attributes {
			cp.Attributes[name] = c.DeepCopy()
		}
	}
	return &cp
}
