package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Class: descriptor of a user or native class
// ---------------------------------------------------------------------------

// RecomputeFunc refreshes a derived attribute from the current state of
// its owner before the attribute is read. The owner handle is weak: the
// hook never keeps the instance alive.
type RecomputeFunc func(h *Heap, owner Handle, cell *AttributeCell)

// Attribute is a declared attribute of a class.
type Attribute struct {
	Name      string
	Type      Type
	Index     int // position in the flattened attribute vector
	Recompute RecomputeFunc
	Owner     *Class
}

// Class is a class descriptor with single inheritance.
//
// A generic class is a template: it declares type variables and its
// members refer to them. Instantiating it (TypeTable.Instantiate) creates
// a Class that points back at the template and carries a substitution map
// from type-variable names to bound types; members are shared with the
// template and resolved through Resolve.
type Class struct {
	name       string
	Base       *Class
	Interfaces []*Interface
	Abstract   bool
	TypeVars   []*TypeVariable
	Doc        string

	Template *Class
	Subst    Subst

	attrs    []*Attribute
	methods  []*Method
	numAttrs int // -1 until the layout is frozen
}

// ObjectClass is the root of every class chain.
var ObjectClass = &Class{name: "Object"}

// NewClass creates a class deriving from base (Object when nil).
func NewClass(name string, base *Class) *Class {
	if base == nil {
		base = ObjectClass
	}
	return &Class{name: name, Base: base, numAttrs: -1}
}

func (c *Class) Name() string       { return c.name }
func (c *Class) TypeKind() TypeKind { return TypeClass }
func (c *Class) String() string     { return c.name }

// IsGeneric reports whether c is an uninstantiated template.
func (c *Class) IsGeneric() bool { return c.Template == nil && len(c.TypeVars) > 0 }

// Origin returns the template of an instantiated class, or c itself.
func (c *Class) Origin() *Class {
	if c.Template != nil {
		return c.Template
	}
	return c
}

// ---------------------------------------------------------------------------
// Attribute layout
// ---------------------------------------------------------------------------

// AddAttribute declares an attribute and assigns its index in the flattened
// vector. Declaring attributes after the layout is frozen is a contract
// violation.
func (c *Class) AddAttribute(name string, t Type, hook RecomputeFunc) *Attribute {
	if c.Template != nil || c.numAttrs >= 0 {
		panic(ContractViolation{Msg: fmt.Sprintf("class %s: layout is frozen, cannot add attribute %s", c.name, name)})
	}
	offset := 0
	if c.Base != nil {
		offset = c.Base.NumAttributes()
	}
	a := &Attribute{Name: name, Type: t, Index: offset + len(c.attrs), Recompute: hook, Owner: c}
	c.attrs = append(c.attrs, a)
	return a
}

// DeclaredAttributes returns the attributes declared by this class only.
func (c *Class) DeclaredAttributes() []*Attribute {
	return c.Origin().attrs
}

// NumAttributes returns the number of attributes including those of every
// base class. The first call freezes the layout.
func (c *Class) NumAttributes() int {
	if c.Template != nil {
		return c.Template.NumAttributes()
	}
	if c.numAttrs < 0 {
		n := len(c.attrs)
		if c.Base != nil {
			n += c.Base.NumAttributes()
		}
		c.numAttrs = n
	}
	return c.numAttrs
}

// LookupAttribute finds an attribute by name along the class chain.
// Returns nil if not found.
func (c *Class) LookupAttribute(name string) *Attribute {
	for k := c; k != nil; k = k.Base {
		for _, a := range k.DeclaredAttributes() {
			if a.Name == name {
				return a
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

// AddMethod adds a method to the class and returns it.
func (c *Class) AddMethod(m *Method) *Method {
	if c.Template != nil {
		panic(ContractViolation{Msg: fmt.Sprintf("class %s: cannot add methods to an instantiated generic", c.name)})
	}
	m.Owner = c
	c.methods = append(c.methods, m)
	return m
}

// Methods returns the methods declared by this class only.
func (c *Class) Methods() []*Method {
	return c.Origin().methods
}

// Constructors returns the declared constructors.
func (c *Class) Constructors() []*Method {
	var out []*Method
	for _, m := range c.Methods() {
		if m.IsConstructor {
			out = append(out, m)
		}
	}
	return out
}

// FindMethod resolves a call by name and static argument types, walking
// from c to the root and then through the implemented interfaces.
// Returns nil if no method applies.
func (c *Class) FindMethod(name string, argTypes []Type) *Method {
	for k := c; k != nil; k = k.Base {
		for _, m := range k.Methods() {
			if !m.IsConstructor && m.Name == name && c.applicable(m, argTypes) {
				return m
			}
		}
	}
	for k := c; k != nil; k = k.Base {
		for _, t := range k.Interfaces {
			if m := t.FindMethod(name, argTypes); m != nil {
				return m
			}
		}
	}
	return nil
}

// FindConstructor resolves a constructor of c for the argument types.
func (c *Class) FindConstructor(argTypes []Type) *Method {
	for _, m := range c.Constructors() {
		if c.applicable(m, argTypes) {
			return m
		}
	}
	return nil
}

func (c *Class) applicable(m *Method, argTypes []Type) bool {
	if len(m.Params) != len(argTypes) {
		return false
	}
	for i, p := range m.Params {
		if !CanCastTo(argTypes[i], c.Resolve(p.Type)) {
			return false
		}
	}
	return true
}

// Override returns the implementation of m that an instance of c runs:
// the most derived non-abstract method with the same name and parameter
// list. Returns nil when c leaves m unimplemented.
func (c *Class) Override(m *Method) *Method {
	for k := c; k != nil; k = k.Base {
		for _, cand := range k.Methods() {
			if cand == m && !m.IsAbstract {
				return m
			}
			if !cand.IsAbstract && !cand.IsConstructor && cand.Name == m.Name && sameParams(cand, m) {
				return cand
			}
		}
	}
	return nil
}

// LookupBySignature finds the method an instance of c answers for name when
// called with the given argument values. Returns nil if absent.
func (c *Class) LookupBySignature(name string, args []Value) *Method {
	types := make([]Type, len(args))
	for i, a := range args {
		types[i] = TypeOf(a)
	}
	for k := c; k != nil; k = k.Base {
		for _, m := range k.Methods() {
			if !m.IsAbstract && !m.IsConstructor && m.Name == name && c.applicable(m, types) {
				return m
			}
		}
	}
	return nil
}

// MethodBySignature finds a declared method, constructors included, by its
// Signature string along the class chain.
func (c *Class) MethodBySignature(sig string) *Method {
	for k := c; k != nil; k = k.Base {
		for _, m := range k.Methods() {
			if m.Signature() == sig {
				return m
			}
		}
	}
	return nil
}

// MissingMethods lists the abstract methods (declared along the chain or
// required by implemented interfaces) that c does not implement.
func (c *Class) MissingMethods() []*Method {
	var missing []*Method
	seen := make(map[string]bool)
	check := func(m *Method) {
		sig := m.Signature()
		if seen[sig] {
			return
		}
		seen[sig] = true
		if c.Override(m) == nil {
			missing = append(missing, m)
		}
	}
	for k := c; k != nil; k = k.Base {
		for _, m := range k.Methods() {
			if m.IsAbstract {
				check(m)
			}
		}
		for _, t := range k.Interfaces {
			for _, m := range t.AllMethods() {
				check(m)
			}
		}
	}
	return missing
}

// CanInstantiate reports whether instances of c may be created.
func (c *Class) CanInstantiate() error {
	if c.Origin().Abstract {
		return fmt.Errorf("class %s is abstract", c.name)
	}
	if missing := c.MissingMethods(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, m := range missing {
			names[i] = m.Signature()
		}
		return fmt.Errorf("class %s does not implement %s", c.name, strings.Join(names, ", "))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Hierarchy
// ---------------------------------------------------------------------------

// IsSubclassOf returns true if c is other or derives from it. An
// instantiated generic counts as a subclass of its template.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.Base {
		if k == other || (k.Template != nil && k.Template == other) {
			return true
		}
		if k.Template != nil && other.Template == k.Template && sameSubst(k.Subst, other.Subst) {
			return true
		}
	}
	return false
}

// Implements reports whether c or one of its bases implements i.
func (c *Class) Implements(i *Interface) bool {
	for k := c; k != nil; k = k.Base {
		for _, t := range k.Interfaces {
			if t.IsSubInterfaceOf(i) {
				return true
			}
		}
	}
	return false
}

// Resolve applies the substitutions along the class chain to t: a type
// variable bound by an instantiation becomes its argument and a template
// becomes the instantiation that binds it.
func (c *Class) Resolve(t Type) Type {
	if t == nil {
		return nil
	}
	for k := c; k != nil; k = k.Base {
		if k.Template == nil {
			continue
		}
		if tv, ok := t.(*TypeVariable); ok {
			if b, ok := k.Subst[tv.Name()]; ok {
				return b
			}
		} else if t == Type(k.Template) {
			return k
		}
	}
	return t
}

func sameParams(a, b *Method) bool {
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if !sameSignatureType(a.Params[i].Type, b.Params[i].Type) {
			return false
		}
	}
	return true
}

// sameSignatureType compares parameter types for overriding. Type
// variables match anything, so an implementation of a generic interface
// method overrides it.
func sameSignatureType(a, b Type) bool {
	if a == b {
		return true
	}
	if a.TypeKind() == TypeVar || b.TypeKind() == TypeVar {
		return true
	}
	return a.Name() == b.Name()
}

func sameSubst(a, b Subst) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
