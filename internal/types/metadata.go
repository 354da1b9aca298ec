package types

import "time"

// ID is the opaque surrogate identifier assigned by the persistence layer to
// every mapped row. It is auto-assigned and immutable once set (spec.md §3).
type ID int64

// Metadata is mixed into every persisted entity (spec.md §4.1): id, name,
// title, description, create/modify stamps, and create/modify user
// references. It is embedded by value in Schema, Attribute, Choice, and
// Entity rather than shared by pointer, since each owner
// copies its own stamps independently on flush.
type Metadata struct {
	ID          ID
	Name        string
	Title       string
	Description string

	CreateDate time.Time
	ModifyDate time.Time
	CreateUser string // User.Key of the creating user
	ModifyUser string // User.Key of the last modifying user
}

// Touch sets ModifyDate/ModifyUser and, on the first call (zero CreateDate),
// also seeds CreateDate/CreateUser. The persistence layer calls this
// immediately before a row is flushed; callers never set these fields by hand.
func (m *Metadata) Touch(now time.Time, user string) {
	if m.CreateDate.IsZero() {
		m.CreateDate = now
		m.CreateUser = user
	}
	m.ModifyDate = now
	m.ModifyUser = user
}

// User is the identity source consulted by the audit engine before every
// flush (spec.md §4.1, §6). Key is an opaque string such as an email address;
// it is what CreateUser/ModifyUser reference, not a numeric ID, so the
// identity source can be swapped without migrating historical stamps.
type User struct {
	Key         string
	DisplayName string
}

// Category is a free-form tag attached to schemata via an unordered set
// (spec.md §3). It has no lifecycle of its own beyond its name.
type Category struct {
	Name string
}
