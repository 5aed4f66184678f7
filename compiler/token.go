package compiler

import (
	"fmt"

	"github.com/chazu/tutor/vm"
)

// TokenKind is the lexical kind of a literal, as reported by the parser.
type TokenKind int

const (
	TokenInt TokenKind = iota
	TokenFloat
	TokenBoolean
	TokenChar
	TokenString
	TokenNull
)

var tokenNames = map[TokenKind]string{
	TokenInt:     "int",
	TokenFloat:   "float",
	TokenBoolean: "boolean",
	TokenChar:    "char",
	TokenString:  "string",
	TokenNull:    "null",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// constantTypes maps literal token kinds to their static types.
var constantTypes = map[TokenKind]vm.Type{
	TokenInt:     vm.Int,
	TokenFloat:   vm.Float,
	TokenBoolean: vm.Boolean,
	TokenChar:    vm.Char,
	TokenString:  vm.String,
	TokenNull:    vm.NullType,
}

// constantValue converts a literal payload to a runtime value.
func constantValue(kind TokenKind, raw any) (vm.Value, error) {
	switch kind {
	case TokenNull:
		return vm.Null, nil
	case TokenInt:
		switch n := raw.(type) {
		case int:
			return vm.IntValue(int64(n)), nil
		case int64:
			return vm.IntValue(n), nil
		}
	case TokenFloat:
		switch f := raw.(type) {
		case float64:
			return vm.FloatValue(f), nil
		case int:
			return vm.FloatValue(float64(f)), nil
		case int64:
			return vm.FloatValue(float64(f)), nil
		}
	case TokenBoolean:
		if b, ok := raw.(bool); ok {
			return vm.BoolValue(b), nil
		}
	case TokenChar:
		switch c := raw.(type) {
		case rune:
			return vm.CharValue(c), nil
		case string:
			r := []rune(c)
			if len(r) == 1 {
				return vm.CharValue(r[0]), nil
			}
		}
	case TokenString:
		if s, ok := raw.(string); ok {
			return vm.StringValue(s), nil
		}
	}
	return vm.Null, fmt.Errorf("invalid %s literal %v", kind, raw)
}

// assignmentOps lists the operators that store into their left operand.
var assignmentOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"&=": true, "|=": true, "^=": true, "<<=": true, ">>=": true, ">>>=": true,
}
