package vm

// Interface is an abstract contract: method signatures without bodies.
type Interface struct {
	name     string
	Extends  []*Interface
	TypeVars []*TypeVariable
	Doc      string

	Template *Interface
	Subst    Subst

	methods []*Method
}

// NewInterface creates an empty interface.
func NewInterface(name string) *Interface {
	return &Interface{name: name}
}

func (i *Interface) Name() string       { return i.name }
func (i *Interface) TypeKind() TypeKind { return TypeInterface }
func (i *Interface) String() string     { return i.name }

// Origin returns the template of an instantiated interface, or i itself.
func (i *Interface) Origin() *Interface {
	if i.Template != nil {
		return i.Template
	}
	return i
}

// AddMethod adds an abstract method signature.
func (i *Interface) AddMethod(m *Method) *Method {
	m.IsAbstract = true
	m.Body = nil
	m.Owner = i
	i.methods = append(i.methods, m)
	return m
}

// Methods returns the signatures declared by this interface only.
func (i *Interface) Methods() []*Method {
	return i.Origin().methods
}

// AllMethods returns the declared signatures followed by those of every
// extended interface.
func (i *Interface) AllMethods() []*Method {
	out := append([]*Method(nil), i.Methods()...)
	for _, e := range i.Origin().Extends {
		out = append(out, e.AllMethods()...)
	}
	return out
}

// FindMethod resolves a call on a value whose static type is i.
func (i *Interface) FindMethod(name string, argTypes []Type) *Method {
	for _, m := range i.AllMethods() {
		if m.Name != name || len(m.Params) != len(argTypes) {
			continue
		}
		ok := true
		for k, p := range m.Params {
			if !CanCastTo(argTypes[k], i.Resolve(p.Type)) {
				ok = false
				break
			}
		}
		if ok {
			return m
		}
	}
	return nil
}

// Resolve applies the interface's substitution to t.
func (i *Interface) Resolve(t Type) Type {
	if i.Template == nil || t == nil {
		return t
	}
	if tv, ok := t.(*TypeVariable); ok {
		if b, ok := i.Subst[tv.Name()]; ok {
			return b
		}
	}
	if t == Type(i.Template) {
		return i
	}
	return t
}

// IsSubInterfaceOf reports whether i is other, an instantiation of other,
// or extends it.
func (i *Interface) IsSubInterfaceOf(other *Interface) bool {
	if i == other || i.Origin() == other {
		return true
	}
	if i.Template != nil && i.Template == other.Template && sameSubst(i.Subst, other.Subst) {
		return true
	}
	for _, e := range i.Origin().Extends {
		if e.IsSubInterfaceOf(other) {
			return true
		}
	}
	return false
}
