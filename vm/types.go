package vm

// ---------------------------------------------------------------------------
// Type: common interface of everything a declaration can name
// ---------------------------------------------------------------------------

// TypeKind discriminates the concrete Type implementations.
type TypeKind uint8

const (
	TypePrimitive TypeKind = iota
	TypeClass
	TypeInterface
	TypeVar
	TypeNull
)

// Type is a primitive type, a class, an interface or a type variable.
type Type interface {
	Name() string
	TypeKind() TypeKind
}

// IsReference reports whether values of t are references (nullable).
func IsReference(t Type) bool {
	switch t.TypeKind() {
	case TypeClass, TypeInterface, TypeVar, TypeNull:
		return true
	}
	return t == String
}

// IsNumeric reports whether t is int, float or char.
func IsNumeric(t Type) bool {
	return t == Int || t == Float || t == Char
}

// ---------------------------------------------------------------------------
// Primitive types
// ---------------------------------------------------------------------------

// PrimitiveType is one of the built-in value types.
type PrimitiveType struct {
	name string
	// rank orders the numeric widening chain char < int < float; 0 means
	// the type does not take part in widening.
	rank int
}

func (p *PrimitiveType) Name() string       { return p.name }
func (p *PrimitiveType) TypeKind() TypeKind { return TypePrimitive }
func (p *PrimitiveType) String() string     { return p.name }

// nullType is the static type of the null literal.
type nullType struct{}

func (nullType) Name() string       { return "null" }
func (nullType) TypeKind() TypeKind { return TypeNull }

var (
	Char    = &PrimitiveType{name: "char", rank: 1}
	Int     = &PrimitiveType{name: "int", rank: 2}
	Float   = &PrimitiveType{name: "float", rank: 3}
	Boolean = &PrimitiveType{name: "boolean"}
	Void    = &PrimitiveType{name: "void"}

	// String is built in but nullable: its default value is null.
	String = &PrimitiveType{name: "String"}

	// NullType is the type of the null literal; it casts to every
	// reference type.
	NullType Type = nullType{}
)

// primitiveAliases maps every spelling a declaration may use to a built-in.
var primitiveAliases = map[string]Type{
	"char":    Char,
	"int":     Int,
	"long":    Int,
	"short":   Int,
	"float":   Float,
	"double":  Float,
	"boolean": Boolean,
	"void":    Void,
	"String":  String,
}

// TypeOf returns the dynamic type of v.
func TypeOf(v Value) Type {
	switch v.kind {
	case KindInt:
		return Int
	case KindFloat:
		return Float
	case KindBool:
		return Boolean
	case KindChar:
		return Char
	case KindString:
		return String
	case KindRef:
		return v.class
	}
	return NullType
}
