package types

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind discriminates the tagged-sum Value domain (spec.md Design Notes
// §9: "express the value domain as a tagged sum with variants {Int(i64),
// Dec(bigdec), DateTime(ts), Date(d), Str(String), Bool(bool), Ref(EntityId)}").
type ValueKind int

const (
	// KindNull is the zero value of ValueKind, matching the zero value of a
	// bare Value{} (spec.md §4.4: "null values are permitted, intentionally,
	// to allow placeholder schemata").
	KindNull ValueKind = iota
	KindInt
	KindDecimal
	KindDateTime
	KindDate
	KindString
	KindBool
	KindRef
)

// String returns a lowercase label for the kind, used in error messages.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindDateTime:
		return "datetime"
	case KindDate:
		return "date"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindRef:
		return "ref"
	default:
		return "unknown"
	}
}

// Value is a single cell of EAV storage: one variant is populated according
// to Kind. It never round-trips through an interface{} inside the storage
// layer, so the per-type value tables can route writes by switching on Kind
// rather than on a runtime type assertion.
type Value struct {
	Kind ValueKind

	Int      int64
	Decimal  decimal.Decimal
	DateTime time.Time
	Date     time.Time
	Str      string
	Bool     bool
	Ref      ID
}

// NullValue constructs the absent-cell Value, distinct from any zero-valued
// int/string/etc (spec.md §4.4: a placeholder schema's unfilled attributes
// round-trip as null rather than as a spurious zero or empty string).
func NullValue() Value { return Value{Kind: KindNull} }

// IntValue constructs an integer-kinded Value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// BoolValue constructs a boolean-kinded Value. Booleans are stored as 0/1 in
// the integer table (spec.md §3, §4.4) but are kept distinct at this layer so
// callers get back a bool, not an int64.
func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// DecimalValue constructs a decimal-kinded Value.
func DecimalValue(v decimal.Decimal) Value { return Value{Kind: KindDecimal, Decimal: v} }

// DateTimeValue constructs a datetime-kinded Value.
func DateTimeValue(v time.Time) Value { return Value{Kind: KindDateTime, DateTime: v} }

// DateValue constructs a date-kinded Value (datetime truncated to a day, per
// spec.md §4.4's "date → .date()" cast-on-read rule).
func DateValue(v time.Time) Value {
	y, m, d := v.Date()
	return Value{Kind: KindDate, Date: time.Date(y, m, d, 0, 0, 0, 0, v.Location())}
}

// StringValue constructs a string-kinded Value (also used for text).
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }

// RefValue constructs an object-reference-kinded Value pointing at another entity.
func RefValue(v ID) Value { return Value{Kind: KindRef, Ref: v} }

// ValueKindForType returns the Value kind that attribute type t stores its
// writes as (spec.md §4.4 storage routing table), and false if t holds no
// scalar value.
func ValueKindForType(t AttributeType) (ValueKind, bool) {
	switch t {
	case TypeInteger:
		return KindInt, true
	case TypeBoolean:
		return KindBool, true
	case TypeDecimal, TypeNumber:
		return KindDecimal, true
	case TypeDateTime:
		return KindDateTime, true
	case TypeDate:
		return KindDate, true
	case TypeString, TypeText, TypeChoice:
		return KindString, true
	case TypeObject:
		return KindRef, true
	default:
		return 0, false
	}
}

// Comparable returns the comparison scalar used for bound checking (spec.md
// §4.4): string/text compare by rune length, integers compare by identity,
// decimals/dates compare by their own ordering. Validator and choice checks
// compare the literal string form (String) instead.
func (v Value) Comparable() float64 {
	switch v.Kind {
	case KindNull:
		return 0
	case KindString:
		return float64(len([]rune(v.Str)))
	case KindInt:
		return float64(v.Int)
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	case KindDecimal:
		f, _ := v.Decimal.Float64()
		return f
	case KindDateTime:
		return float64(v.DateTime.Unix())
	case KindDate:
		return float64(v.Date.Unix())
	case KindRef:
		return float64(v.Ref)
	default:
		return 0
	}
}

// String renders the value's string form, used for validator-regex matching
// and choice-value equality (spec.md §4.4: "require the regex to match
// str(value)" / "require value to equal some choice's value").
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindDecimal:
		return v.Decimal.String()
	case KindDateTime:
		return v.DateTime.UTC().Format(time.RFC3339)
	case KindDate:
		return v.Date.UTC().Format("2006-01-02")
	case KindRef:
		return strconv.FormatInt(int64(v.Ref), 10)
	default:
		return ""
	}
}

// Equal reports whether v and other carry the same kind and value. Plain ==
// is unsafe here: decimal.Decimal embeds a *big.Int, and time.Time's
// monotonic reading makes == reject two timestamps a caller would consider
// identical.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindInt:
		return v.Int == other.Int
	case KindDecimal:
		return v.Decimal.Equal(other.Decimal)
	case KindDateTime:
		return v.DateTime.Equal(other.DateTime)
	case KindDate:
		return v.Date.Equal(other.Date)
	case KindString:
		return v.Str == other.Str
	case KindBool:
		return v.Bool == other.Bool
	case KindRef:
		return v.Ref == other.Ref
	default:
		return false
	}
}
