package types

import "time"

// Entity is an instance of a published Schema (spec.md §3).
type Entity struct {
	Metadata

	SchemaID    ID
	State       EntityState
	CollectDate *time.Time

	// Revision is the monotonic per-row total order bumped by the audit
	// engine on every mutation (spec.md §4.2, §5).
	Revision int64

	// TouchedAt supports incremental report materialization (SPEC_FULL §10).
	TouchedAt time.Time
}

// EntityValue is one row of the abstract Value relation (spec.md §3):
// (entity, attribute, choice?, value). ChoiceID is populated only when the
// owning attribute declares Choices and is set by the validator as
// book-keeping once a write matches a choice (spec.md §4.4).
type EntityValue struct {
	EntityID    ID
	AttributeID ID
	ChoiceID    *ID
	Value       Value
	// Position orders values of a collection attribute; 0 for scalars.
	Position int
}
