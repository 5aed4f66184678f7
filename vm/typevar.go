package vm

// TypeVariable is a generic placeholder. Its bound starts as Object and is
// narrowed when the declaration names a requirement.
type TypeVariable struct {
	name  string
	Scope Span // textual extent, for tooling only
	Bound Type
}

// NewTypeVariable creates a type variable bounded by Object.
func NewTypeVariable(name string) *TypeVariable {
	return &TypeVariable{name: name, Bound: ObjectClass}
}

func (tv *TypeVariable) Name() string       { return tv.name }
func (tv *TypeVariable) TypeKind() TypeKind { return TypeVar }
func (tv *TypeVariable) String() string     { return tv.name }

// Narrow replaces the bound with a stricter requirement.
func (tv *TypeVariable) Narrow(bound Type) {
	tv.Bound = bound
}

// Subst maps type-variable names to the types bound by an instantiation.
type Subst map[string]Type

// Apply substitutes t if it is a type variable bound by s.
func (s Subst) Apply(t Type) Type {
	if tv, ok := t.(*TypeVariable); ok {
		if b, ok := s[tv.Name()]; ok {
			return b
		}
	}
	return t
}
