package vm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tutor.vm")

// ---------------------------------------------------------------------------
// TypeTable: registry of named types
// ---------------------------------------------------------------------------

// TypeTable resolves type names to descriptors. It holds the built-in
// primitives, Object, every declared class and interface, and the cache of
// generic instantiations. It's safe for concurrent access.
type TypeTable struct {
	mu        sync.RWMutex
	types     map[string]Type
	instances map[string]Type
}

// NewTypeTable creates a table pre-populated with the built-in types.
func NewTypeTable() *TypeTable {
	t := &TypeTable{
		types:     make(map[string]Type),
		instances: make(map[string]Type),
	}
	for name, p := range primitiveAliases {
		t.types[name] = p
	}
	t.types[ObjectClass.Name()] = ObjectClass
	return t
}

// Declare registers a class or interface under its name.
func (t *TypeTable) Declare(typ Type) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.types[typ.Name()]; exists {
		return fmt.Errorf("type %s is already declared", typ.Name())
	}
	t.types[typ.Name()] = typ
	return nil
}

// Lookup returns the type registered under name, or nil. It does not
// parse generic names.
func (t *TypeTable) Lookup(name string) Type {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if typ, ok := t.types[name]; ok {
		return typ
	}
	return t.instances[name]
}

// Resolve maps a type name, possibly generic such as "List<Vertex>", to its
// descriptor. Fails with *UnknownTypeError if any component is absent.
func (t *TypeTable) Resolve(name string) (Type, error) {
	return t.ResolveScoped(name, nil)
}

// ResolveScoped resolves name, letting the given type variables shadow
// global names.
func (t *TypeTable) ResolveScoped(name string, scope []*TypeVariable) (Type, error) {
	base, args, err := ParseTypeName(name)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		for _, tv := range scope {
			if tv.Name() == base {
				return tv, nil
			}
		}
		if typ := t.Lookup(base); typ != nil {
			return typ, nil
		}
		return nil, &UnknownTypeError{Name: name}
	}
	template := t.Lookup(base)
	if template == nil {
		return nil, &UnknownTypeError{Name: base}
	}
	resolved := make([]Type, len(args))
	for i, a := range args {
		if resolved[i], err = t.ResolveScoped(a, scope); err != nil {
			return nil, err
		}
	}
	return t.Instantiate(template, resolved...)
}

// Instantiate binds the type variables of a generic class or interface.
// Instantiations are cached by name and never re-bound.
func (t *TypeTable) Instantiate(template Type, args ...Type) (Type, error) {
	var vars []*TypeVariable
	switch g := template.(type) {
	case *Class:
		vars = g.TypeVars
	case *Interface:
		vars = g.TypeVars
	default:
		return nil, fmt.Errorf("type %s is not generic", template.Name())
	}
	if len(vars) != len(args) {
		return nil, fmt.Errorf("type %s expects %d type arguments, got %d", template.Name(), len(vars), len(args))
	}

	names := make([]string, len(args))
	subst := make(Subst, len(args))
	for i, a := range args {
		if a.TypeKind() == TypePrimitive && a != String {
			return nil, fmt.Errorf("type argument %s of %s must be a reference type", a.Name(), template.Name())
		}
		if !CanCastTo(a, vars[i].Bound) {
			return nil, fmt.Errorf("type argument %s does not satisfy bound %s of %s", a.Name(), vars[i].Bound.Name(), vars[i].Name())
		}
		names[i] = a.Name()
		subst[vars[i].Name()] = a
	}
	key := fmt.Sprintf("%s<%s>", template.Name(), strings.Join(names, ", "))

	t.mu.Lock()
	defer t.mu.Unlock()
	if inst, ok := t.instances[key]; ok {
		return inst, nil
	}

	var inst Type
	switch g := template.(type) {
	case *Class:
		inst = &Class{name: key, Base: g.Base, Interfaces: g.Interfaces, Template: g, Subst: subst, numAttrs: -1}
	case *Interface:
		inst = &Interface{name: key, Template: g, Subst: subst}
	}
	t.instances[key] = inst
	log.Debugf("instantiated %s", key)
	return inst, nil
}

// Classes returns the declared classes sorted by name.
func (t *TypeTable) Classes() []*Class {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Class
	for _, typ := range t.types {
		if c, ok := typ.(*Class); ok && c != ObjectClass {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Interfaces returns the declared interfaces sorted by name.
func (t *TypeTable) Interfaces() []*Interface {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Interface
	for _, typ := range t.types {
		if i, ok := typ.(*Interface); ok {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ParseTypeName splits "Map<K, List<V>>" into "Map" and ["K", "List<V>"].
func ParseTypeName(name string) (string, []string, error) {
	name = strings.TrimSpace(name)
	open := strings.IndexByte(name, '<')
	if open < 0 {
		if name == "" || strings.ContainsAny(name, ">, ") {
			return "", nil, fmt.Errorf("malformed type name %q", name)
		}
		return name, nil, nil
	}
	if !strings.HasSuffix(name, ">") || open == 0 {
		return "", nil, fmt.Errorf("malformed type name %q", name)
	}
	base := name[:open]
	inner := name[open+1 : len(name)-1]
	var args []string
	depth, start := 0, 0
	for i, r := range inner {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return "", nil, fmt.Errorf("malformed type name %q", name)
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return "", nil, fmt.Errorf("malformed type name %q", name)
	}
	args = append(args, strings.TrimSpace(inner[start:]))
	for _, a := range args {
		if a == "" {
			return "", nil, fmt.Errorf("malformed type name %q", name)
		}
	}
	return base, args, nil
}
