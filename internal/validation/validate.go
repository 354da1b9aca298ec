// Package validation enforces the write-time rules of spec.md §4.4: bound
// checking, regex validator matching, and choice enumeration membership.
// The flat, table-free function style is grounded on the teacher's
// internal/validation package (ParsePriority/ValidatePriority in
// bead.go/bead_test.go): small functions returning (value, error), no
// bespoke validator-object hierarchy.
package validation

import (
	"fmt"
	"regexp"
	"time"

	"github.com/dynaform/core/internal/types"
)

// NoAttributeError reports that a written EntityValue names an attribute id
// the schema does not have, spec.md §4.4's ConstraintError("no attribute")
// case: there is no Value to compare yet, so it is raised by the caller
// (internal/storage) rather than by CheckValue itself.
func NoAttributeError(schemaName string, attrID types.ID) error {
	return types.NewConstraintError(schemaName, fmt.Sprintf("attribute %d", attrID), "", "no attribute", nil, nil)
}

// CheckValue enforces spec.md §4.4's "Validation on write" paragraph for a
// single scalar Value against the attribute that owns it. A nil value_min or
// value_max skips that side of the bound check. A KindNull value is permitted
// unconditionally and short-circuits every other check (spec.md §4.4: "null
// values are permitted, intentionally, to allow placeholder schemata") —
// bounds, validator, and choices only apply once a cell actually holds a
// value. attr must be non-nil; the caller (internal/storage) is responsible
// for raising NoAttributeError when the attribute itself is missing, since
// that failure has no Value to compare yet.
//
// On a successful choices match, the matched Choice's id is returned so the
// caller can stamp EntityValue.ChoiceID; choiceID is nil when the attribute
// has no choices to match against.
func CheckValue(schemaName string, attr *types.Attribute, v types.Value) (choiceID *types.ID, err error) {
	if v.Kind == types.KindNull {
		return nil, nil
	}

	interpreted, err := comparable(attr.Type, v)
	if err != nil {
		return nil, err
	}

	if attr.ValueMin != nil && interpreted < *attr.ValueMin {
		return nil, types.NewConstraintError(schemaName, attr.Name, fmt.Sprintf("%v", *attr.ValueMin), ">=", interpreted, v)
	}
	if attr.ValueMax != nil && interpreted > *attr.ValueMax {
		return nil, types.NewConstraintError(schemaName, attr.Name, fmt.Sprintf("%v", *attr.ValueMax), "<=", interpreted, v)
	}

	if attr.Validator != "" {
		re, err := regexp.Compile(attr.Validator)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %q has an invalid validator regex: %v", types.ErrConstraint, attr.Name, err)
		}
		if !re.MatchString(v.String()) {
			return nil, types.NewConstraintError(schemaName, attr.Name, attr.Validator, "matches", v.String(), v)
		}
	}

	if len(attr.Choices) == 0 {
		return nil, nil
	}
	for _, c := range attr.Choices {
		if c.Value == v.String() {
			id := c.ID
			return &id, nil
		}
	}
	return nil, types.NewConstraintError(schemaName, attr.Name, choiceValues(attr.Choices), "in", v.String(), v)
}

// comparable computes the interpreted scalar of spec.md §4.4 that bounds are
// checked against:
// string/text compare on length, integer/decimal/number on magnitude, and
// date/datetime bounds are UNIX epoch seconds converted to a float so they
// compare directly against the stored instant (SPEC_FULL §4 Open Question
// resolution).
func comparable(t types.AttributeType, v types.Value) (float64, error) {
	switch t {
	case types.TypeString, types.TypeText:
		return float64(len([]rune(v.Str))), nil
	case types.TypeDate:
		return float64(v.Date.Unix()), nil
	case types.TypeDateTime:
		return float64(v.DateTime.Unix()), nil
	default:
		return v.Comparable(), nil
	}
}

func choiceValues(choices []*types.Choice) string {
	out := ""
	for i, c := range choices {
		if i > 0 {
			out += ","
		}
		out += c.Value
	}
	return out
}

// EpochBound converts a value_min/value_max bound stored as a UNIX epoch
// second (spec.md's resolved Open Question on temporal bounds) back into a
// time.Time, for callers that need to render the bound rather than just
// compare against it (e.g. CLI error messages).
func EpochBound(sec float64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
