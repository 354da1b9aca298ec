// Package audit journals every mutation of a mapped entity into a shadow
// row, per spec.md §4.2. The diff logic is a pure function of two column
// snapshots; persisting the resulting row and bumping the live row's
// revision is left to the storage backend (internal/storage/dolt,
// internal/storage/memory), grounded on the teacher's
// internal/storage/dolt/events.go raw-SQL INSERT idiom — generalized here
// from a single flat events table to one shadow table per mapped entity.
package audit

import (
	"context"
	"fmt"
	"reflect"

	"github.com/dynaform/core/internal/types"
)

// Row is a generic column-name -> value snapshot of a mapped entity. Storage
// backends build Rows from whatever concrete struct they persist (Schema,
// Attribute, Entity, EntityValue, Choice, Context); audit itself has no
// knowledge of those types beyond treating unset columns as absent keys.
type Row map[string]interface{}

// AuditRow is the pre-image written to a shadow table when Diff detects a
// change, paired with the revision it shadows.
type AuditRow struct {
	PreImage Row
	Revision int64
	// Actor is the user attributed to the mutation being shadowed, kept
	// separate from PreImage so it never participates in the before/after
	// column diff.
	Actor string
}

// Diff computes the audit pre-image for one mutation, given the row's
// column values before and after the change (spec.md §4.2): it distinguishes
// three histories per column (added, unchanged, deleted), mirroring the
// column-history model the teacher's ORM exposes to attribute instrumentation
// events, where a scalar change reports its old value as "deleted" and its
// new value as "added" in the same event.
//
//   - A column present in before but absent from after, or present in both
//     with a different value ("deleted"), writes its old (before) value
//     into the pre-image.
//   - A column present in after but absent from before ("added"), or
//     present in both with the same value ("unchanged"), writes its current
//     (after) value into the pre-image.
//
// changed reports whether any column differed (added, deleted, or modified)
// or the whole row was deleted; Diff returns (nil, false) for a fresh insert
// (before == nil) since there is no prior revision to shadow yet, and for a
// flush that touched no columns.
func Diff(before, after Row, revision int64) (row *AuditRow, changed bool) {
	if after == nil {
		if before == nil {
			return nil, false
		}
		cp := make(Row, len(before))
		for k, v := range before {
			cp[k] = v
		}
		return &AuditRow{PreImage: cp, Revision: revision}, true
	}
	if before == nil {
		return nil, false
	}

	pre := make(Row, len(before)+len(after))
	for k, bv := range before {
		av, ok := after[k]
		if !ok {
			pre[k] = bv
			changed = true
			continue
		}
		if !reflect.DeepEqual(bv, av) {
			pre[k] = bv
			changed = true
			continue
		}
		pre[k] = av
	}
	for k, av := range after {
		if _, ok := before[k]; !ok {
			pre[k] = av
			changed = true
		}
	}
	if !changed {
		return nil, false
	}
	return &AuditRow{PreImage: pre, Revision: revision}, true
}

// Recorder persists one audit row against a mapped entity's shadow table and
// is implemented per backend: internal/storage/dolt writes an
// INSERT INTO <table>_audit, internal/storage/memory appends to an
// in-process slice.
type Recorder interface {
	RecordAudit(ctx context.Context, table string, entityID types.ID, row AuditRow) error
}

// Flush runs Diff and, if the row changed, asks rec to persist the
// pre-image and returns the bumped revision; an unchanged row returns its
// revision unmodified. currentUser is checked here rather than deeper in
// the backend because every audited flush requires one (spec.md §4.1,
// §4.2): a flush with no bound user fails the whole transaction with
// ErrNonExistentUser before any row is written.
func Flush(ctx context.Context, rec Recorder, table string, entityID types.ID, before, after Row, revision int64, currentUser string) (int64, error) {
	if currentUser == "" {
		return revision, fmt.Errorf("%w: table %q entity %d", types.ErrNonExistentUser, table, entityID)
	}
	audited, changed := Diff(before, after, revision)
	if !changed {
		return revision, nil
	}
	audited.Actor = currentUser
	if err := rec.RecordAudit(ctx, table, entityID, *audited); err != nil {
		return revision, fmt.Errorf("failed to record audit row for %s %d: %w", table, entityID, err)
	}
	return revision + 1, nil
}
