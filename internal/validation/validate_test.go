package validation

import (
	"errors"
	"testing"

	"github.com/dynaform/core/internal/types"
)

func intBoundAttr(min, max float64) *types.Attribute {
	return &types.Attribute{
		Metadata: types.Metadata{Name: "age"},
		Type:     types.TypeInteger,
		ValueMin: &min,
		ValueMax: &max,
	}
}

func TestCheckValueBounds(t *testing.T) {
	attr := intBoundAttr(0, 120)

	tests := []struct {
		name    string
		value   int64
		wantErr bool
	}{
		{"within bounds", 30, false},
		{"at min", 0, false},
		{"at max", 120, false},
		{"below min", -1, true},
		{"above max", 121, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckValue("person", attr, types.IntValue(tt.value))
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckValue(%d) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, types.ErrConstraint) {
				t.Errorf("CheckValue(%d) error = %v, want wrapping ErrConstraint", tt.value, err)
			}
		})
	}
}

func TestCheckValueStringLengthBound(t *testing.T) {
	min, max := 2.0, 5.0
	attr := &types.Attribute{
		Metadata: types.Metadata{Name: "code"},
		Type:     types.TypeString,
		ValueMin: &min,
		ValueMax: &max,
	}

	if _, err := CheckValue("widget", attr, types.StringValue("ab")); err != nil {
		t.Errorf("CheckValue(\"ab\") unexpected error: %v", err)
	}
	if _, err := CheckValue("widget", attr, types.StringValue("a")); err == nil {
		t.Error("CheckValue(\"a\") expected error for too-short string, got nil")
	}
	if _, err := CheckValue("widget", attr, types.StringValue("abcdef")); err == nil {
		t.Error("CheckValue(\"abcdef\") expected error for too-long string, got nil")
	}
}

func TestCheckValueValidatorRegex(t *testing.T) {
	attr := &types.Attribute{
		Metadata:  types.Metadata{Name: "sku"},
		Type:      types.TypeString,
		Validator: `^[A-Z]{3}-\d{4}$`,
	}

	if _, err := CheckValue("widget", attr, types.StringValue("ABC-1234")); err != nil {
		t.Errorf("CheckValue(valid sku) unexpected error: %v", err)
	}
	if _, err := CheckValue("widget", attr, types.StringValue("abc-1234")); err == nil {
		t.Error("CheckValue(invalid sku) expected error, got nil")
	}
}

func TestCheckValueChoiceMembership(t *testing.T) {
	attr := &types.Attribute{
		Metadata: types.Metadata{Name: "color"},
		Type:     types.TypeChoice,
		Choices: []*types.Choice{
			{Metadata: types.Metadata{ID: 1}, Value: "001", Order: 0},
			{Metadata: types.Metadata{ID: 2}, Value: "002", Order: 1},
		},
	}

	choiceID, err := CheckValue("widget", attr, types.StringValue("002"))
	if err != nil {
		t.Fatalf("CheckValue(\"002\") unexpected error: %v", err)
	}
	if choiceID == nil || *choiceID != 2 {
		t.Errorf("CheckValue(\"002\") choiceID = %v, want 2", choiceID)
	}

	if _, err := CheckValue("widget", attr, types.StringValue("999")); err == nil {
		t.Error("CheckValue(\"999\") expected error for unlisted choice, got nil")
	}
}

func TestCheckValueNullBypassesAllChecks(t *testing.T) {
	attr := &types.Attribute{
		Metadata:  types.Metadata{Name: "sku"},
		Type:      types.TypeString,
		Validator: `^[A-Z]{3}-\d{4}$`,
		Choices: []*types.Choice{
			{Metadata: types.Metadata{ID: 1}, Value: "001", Order: 0},
		},
	}
	choiceID, err := CheckValue("widget", attr, types.NullValue())
	if err != nil {
		t.Fatalf("CheckValue(null) unexpected error: %v", err)
	}
	if choiceID != nil {
		t.Errorf("CheckValue(null) choiceID = %v, want nil", choiceID)
	}
}

func TestCheckValueNoChoicesReturnsNilChoiceID(t *testing.T) {
	attr := intBoundAttr(0, 10)
	choiceID, err := CheckValue("widget", attr, types.IntValue(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if choiceID != nil {
		t.Errorf("choiceID = %v, want nil for an attribute with no choices", choiceID)
	}
}

func TestNoAttributeErrorWrapsErrConstraint(t *testing.T) {
	err := NoAttributeError("widget", types.ID(42))
	if !errors.Is(err, types.ErrConstraint) {
		t.Errorf("NoAttributeError does not wrap ErrConstraint: %v", err)
	}
}
