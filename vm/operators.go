package vm

import (
	"errors"
	"fmt"
	"math"
)

// ErrDivisionByZero is returned for integer division or remainder by zero.
var ErrDivisionByZero = errors.New("division by zero")

// ---------------------------------------------------------------------------
// Static typing of operators
// ---------------------------------------------------------------------------

// Promote returns the wider of two numeric types; char promotes to int.
func Promote(a, b Type) Type {
	if a == Float || b == Float {
		return Float
	}
	return Int
}

// BinaryResultType returns the static result type of l op r, or nil if the
// operator does not apply to the operand types.
func BinaryResultType(op string, l, r Type) Type {
	switch op {
	case "+":
		if l == String || r == String {
			if l == Void || r == Void {
				return nil
			}
			return String
		}
		fallthrough
	case "-", "*", "/", "%":
		if IsNumeric(l) && IsNumeric(r) {
			return Promote(l, r)
		}
	case "<", ">", "<=", ">=":
		if IsNumeric(l) && IsNumeric(r) {
			return Boolean
		}
	case "==", "!=":
		switch {
		case IsNumeric(l) && IsNumeric(r),
			l == Boolean && r == Boolean,
			IsReference(l) && IsReference(r) && (CanCastTo(l, r) || CanCastTo(r, l)):
			return Boolean
		}
	case "&&", "||":
		if l == Boolean && r == Boolean {
			return Boolean
		}
	case "&", "|", "^":
		if l == Boolean && r == Boolean {
			return Boolean
		}
		if isIntegral(l) && isIntegral(r) {
			return Int
		}
	case "<<", ">>", ">>>":
		if isIntegral(l) && isIntegral(r) {
			return Int
		}
	}
	return nil
}

// UnaryResultType returns the static result type of op x, or nil.
func UnaryResultType(op string, x Type) Type {
	switch op {
	case "-", "+":
		if CanCastTo(x, Float) {
			return Promote(x, Int)
		}
	case "!":
		if CanCastTo(x, Boolean) {
			return Boolean
		}
	case "~":
		if isIntegral(x) {
			return Int
		}
	}
	return nil
}

func isIntegral(t Type) bool { return t == Int || t == Char }

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

// EvalUnary applies a unary operator.
func EvalUnary(op string, x Value) (Value, error) {
	switch op {
	case "-":
		switch x.Kind() {
		case KindInt, KindChar:
			return IntValue(-x.AsInt()), nil
		case KindFloat:
			return FloatValue(-x.AsFloat()), nil
		}
	case "+":
		switch x.Kind() {
		case KindInt, KindChar:
			return IntValue(x.AsInt()), nil
		case KindFloat:
			return x, nil
		}
	case "!":
		if x.Kind() == KindBool {
			return BoolValue(!x.AsBool()), nil
		}
	case "~":
		if x.Kind() == KindInt || x.Kind() == KindChar {
			return IntValue(^x.AsInt()), nil
		}
	}
	return Null, fmt.Errorf("operator %s not defined for %s", op, TypeOf(x).Name())
}

// EvalBinary applies a binary operator.
func EvalBinary(op string, a, b Value) (Value, error) {
	if op == "+" && (a.Kind() == KindString || b.Kind() == KindString) {
		return StringValue(a.String() + b.String()), nil
	}
	integral := isIntegralValue(a) && isIntegralValue(b)
	numeric := a.IsNumeric() && b.IsNumeric()

	switch op {
	case "+", "-", "*", "/", "%":
		if !numeric {
			break
		}
		if integral {
			x, y := a.AsInt(), b.AsInt()
			switch op {
			case "+":
				return IntValue(x + y), nil
			case "-":
				return IntValue(x - y), nil
			case "*":
				return IntValue(x * y), nil
			case "/":
				if y == 0 {
					return Null, ErrDivisionByZero
				}
				return IntValue(x / y), nil
			case "%":
				if y == 0 {
					return Null, ErrDivisionByZero
				}
				return IntValue(x % y), nil
			}
		}
		x, y := a.AsFloat(), b.AsFloat()
		switch op {
		case "+":
			return FloatValue(x + y), nil
		case "-":
			return FloatValue(x - y), nil
		case "*":
			return FloatValue(x * y), nil
		case "/":
			return FloatValue(x / y), nil
		case "%":
			return FloatValue(math.Mod(x, y)), nil
		}

	case "<", ">", "<=", ">=":
		if !numeric {
			break
		}
		var c int
		if integral {
			c = cmpInt(a.AsInt(), b.AsInt())
		} else {
			c = cmpFloat(a.AsFloat(), b.AsFloat())
		}
		switch op {
		case "<":
			return BoolValue(c < 0), nil
		case ">":
			return BoolValue(c > 0), nil
		case "<=":
			return BoolValue(c <= 0), nil
		default:
			return BoolValue(c >= 0), nil
		}

	case "==", "!=":
		eq := Equal(a, b)
		if op == "!=" {
			eq = !eq
		}
		return BoolValue(eq), nil

	case "&&", "||", "&", "|", "^":
		if a.Kind() == KindBool && b.Kind() == KindBool {
			x, y := a.AsBool(), b.AsBool()
			switch op {
			case "&&", "&":
				return BoolValue(x && y), nil
			case "||", "|":
				return BoolValue(x || y), nil
			default:
				return BoolValue(x != y), nil
			}
		}
		if integral && op != "&&" && op != "||" {
			x, y := a.AsInt(), b.AsInt()
			switch op {
			case "&":
				return IntValue(x & y), nil
			case "|":
				return IntValue(x | y), nil
			default:
				return IntValue(x ^ y), nil
			}
		}

	case "<<", ">>", ">>>":
		if !integral {
			break
		}
		x, s := a.AsInt(), uint(b.AsInt()&63)
		switch op {
		case "<<":
			return IntValue(x << s), nil
		case ">>":
			return IntValue(x >> s), nil
		default:
			return IntValue(int64(uint64(x) >> s)), nil
		}
	}
	return Null, fmt.Errorf("operator %s not defined for %s and %s", op, TypeOf(a).Name(), TypeOf(b).Name())
}

// Equal implements ==: numeric values compare by value across int, float
// and char, strings by content, everything else by identity.
func Equal(a, b Value) bool {
	if a.IsNumeric() && b.IsNumeric() {
		if isIntegralValue(a) && isIntegralValue(b) {
			return a.AsInt() == b.AsInt()
		}
		return a.AsFloat() == b.AsFloat()
	}
	return a == b
}

func isIntegralValue(v Value) bool {
	return v.Kind() == KindInt || v.Kind() == KindChar
}

func cmpInt(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func cmpFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}
