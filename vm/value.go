package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ValueKind discriminates the payload carried by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindInt
	KindFloat
	KindBool
	KindChar
	KindString
	KindRef
)

// Value is a tagged runtime value.
//
// Primitive payloads live in bits (int64, float64 bits, bool, rune) or str.
// References carry the arena Handle of the instance in bits together with
// the instance's dynamic class, so the runtime type of a value is always
// known without a heap lookup. Values are comparable with ==; for
// references this is identity.
type Value struct {
	kind  ValueKind
	bits  uint64
	str   string
	class *Class
}

// Null is the null reference.
var Null = Value{}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// IntValue creates an int value.
func IntValue(n int64) Value { return Value{kind: KindInt, bits: uint64(n)} }

// FloatValue creates a float value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(f)} }

// BoolValue creates a boolean value.
func BoolValue(b bool) Value {
	if b {
		return Value{kind: KindBool, bits: 1}
	}
	return Value{kind: KindBool}
}

// CharValue creates a char value.
func CharValue(r rune) Value { return Value{kind: KindChar, bits: uint64(r)} }

// StringValue creates a String value. Strings are immutable and compared by
// content.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// RefValue creates a reference to the instance at h whose dynamic class is c.
func RefValue(h Handle, c *Class) Value {
	if h == 0 {
		return Null
	}
	return Value{kind: KindRef, bits: uint64(h), class: c}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Kind returns the payload kind.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is the null reference.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsRef reports whether v refers to a heap instance.
func (v Value) IsRef() bool { return v.kind == KindRef }

// IsNumeric reports whether v is an int, float or char.
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat || v.kind == KindChar
}

func (v Value) AsInt() int64 {
	switch v.kind {
	case KindFloat:
		return truncate(v.AsFloat())
	case KindInt, KindChar:
		return int64(v.bits)
	}
	return 0
}

func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindFloat:
		return math.Float64frombits(v.bits)
	case KindInt:
		return float64(int64(v.bits))
	case KindChar:
		return float64(v.bits)
	}
	return 0
}

func (v Value) AsBool() bool { return v.kind == KindBool && v.bits == 1 }

func (v Value) AsChar() rune { return rune(v.bits) }

func (v Value) AsString() string { return v.str }

// Handle returns the arena handle of a reference, or 0.
func (v Value) Handle() Handle {
	if v.kind != KindRef {
		return 0
	}
	return Handle(v.bits)
}

// Class returns the dynamic class of a reference, or nil.
func (v Value) Class() *Class { return v.class }

// String formats the value the way print shows it.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInt:
		return strconv.FormatInt(v.AsInt(), 10)
	case KindFloat:
		f := v.AsFloat()
		if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
			return strconv.FormatFloat(f, 'f', 1, 64)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.AsBool())
	case KindChar:
		return string(v.AsChar())
	case KindString:
		return v.str
	case KindRef:
		return fmt.Sprintf("%s@%d", v.class.Name(), v.bits)
	}
	return "?"
}

// Default returns the initial value of an attribute or local of type t:
// zero for numeric primitives, false for boolean, null otherwise.
func Default(t Type) Value {
	switch t {
	case Int:
		return IntValue(0)
	case Float:
		return FloatValue(0)
	case Boolean:
		return BoolValue(false)
	case Char:
		return CharValue(0)
	}
	return Null
}
