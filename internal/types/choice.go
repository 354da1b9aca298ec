package types

import "time"

// Choice is a constrained option under an Attribute (spec.md §3). Choices are
// not independently versioned; modifying a choice requires re-publishing the
// owning schema, so Choice carries only the fields that matter for
// uniqueness and checksum purposes, not a full audit history of its own.
type Choice struct {
	Metadata

	AttributeID ID
	Value       string // coerced to the attribute's declared type on read
	Order       int
}

// DeepCopy returns a field-by-field copy of c with ID and timestamps reset,
// per spec.md §4.3: "Choice deep-copy is a shallow field copy."
func (c *Choice) DeepCopy() *Choice {
	cp := *c
	cp.ID = 0
	cp.AttributeID = 0
	cp.CreateDate = time.Time{}
	cp.ModifyDate = time.Time{}
	cp.CreateUser = ""
	cp.ModifyUser = ""
	return &cp
}
