package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/tutor/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tutor.compiler")

// ---------------------------------------------------------------------------
// Codegen: lower program trees to fragments and programs
// ---------------------------------------------------------------------------

// Result is the output of one generation pass.
type Result struct {
	// Main is the static method holding the main program; nil when the
	// main program could not be compiled.
	Main        *vm.Method
	Classes     []*vm.Class
	Interfaces  []*vm.Interface
	Diagnostics Diagnostics
}

// Generator lowers a Unit. Classes and interfaces are declared into the
// type table so later units and the interpreter can resolve them.
type Generator struct {
	types *vm.TypeTable
	diags Diagnostics

	// current compilation unit
	class   *vm.Class
	method  *vm.Method
	scope   []*vm.TypeVariable
	symbols *SymbolTable
}

// NewGenerator creates a generator declaring into types.
func NewGenerator(types *vm.TypeTable) *Generator {
	return &Generator{types: types}
}

// Check generates u and folds the error diagnostics into one error.
func Check(types *vm.TypeTable, u *Unit) (*Result, error) {
	res := NewGenerator(types).Generate(u)
	return res, res.Diagnostics.Err()
}

// ---------------------------------------------------------------------------
// Diagnostics and unit aborts
// ---------------------------------------------------------------------------

// unitAbort is the panic payload that abandons the current unit after a
// resolution error.
type unitAbort struct{}

func (g *Generator) report(d Diagnostic) {
	g.diags = append(g.diags, d)
}

func (g *Generator) errorf(pos Position, format string, args ...any) {
	g.report(Diagnostic{Severity: SeverityError, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

func (g *Generator) infof(pos Position, format string, args ...any) {
	g.report(Diagnostic{Severity: SeverityInfo, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// fatalf reports an error and abandons the enclosing unit.
func (g *Generator) fatalf(pos Position, format string, args ...any) {
	g.errorf(pos, format, args...)
	panic(unitAbort{})
}

// unit runs fn as one compilation unit. A resolution error inside fn
// abandons fn only; generation continues with the next unit.
func (g *Generator) unit(name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, abort := r.(unitAbort); !abort {
				panic(r)
			}
			log.Debugf("abandoned %s", name)
			ok = false
		}
	}()
	fn()
	return true
}

func (g *Generator) resolveType(ref TypeRef) vm.Type {
	t, err := g.types.ResolveScoped(ref.Name, g.scope)
	if err != nil {
		g.fatalf(ref.At, "%v", err)
	}
	return t
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

type classEntry struct {
	decl  *ClassDecl
	class *vm.Class
}

type ifaceEntry struct {
	decl  *InterfaceDecl
	iface *vm.Interface
}

type pendingBody struct {
	decl   *MethodDecl
	class  *vm.Class
	method *vm.Method
}

// Generate lowers every declaration and the main program of u.
func (g *Generator) Generate(u *Unit) *Result {
	g.diags = nil
	res := &Result{}

	var ifaces []ifaceEntry
	for i := range u.Interfaces {
		d := &u.Interfaces[i]
		it := vm.NewInterface(d.Name)
		it.TypeVars = typeVars(d.TypeParams)
		if err := g.types.Declare(it); err != nil {
			g.errorf(d.At, "%v", err)
			continue
		}
		ifaces = append(ifaces, ifaceEntry{d, it})
		res.Interfaces = append(res.Interfaces, it)
	}
	var classes []classEntry
	for i := range u.Classes {
		d := &u.Classes[i]
		c := vm.NewClass(d.Name, nil)
		c.Abstract = d.Abstract
		c.TypeVars = typeVars(d.TypeParams)
		if err := g.types.Declare(c); err != nil {
			g.errorf(d.At, "%v", err)
			continue
		}
		classes = append(classes, classEntry{d, c})
		res.Classes = append(res.Classes, c)
	}

	// Supertypes first, so instantiations created while resolving members
	// see complete hierarchies.
	for _, e := range ifaces {
		g.interfaceSupertypes(e.decl, e.iface)
	}
	for _, e := range classes {
		g.classInterfaces(e.decl, e.class)
	}
	for _, e := range classes {
		g.class, g.scope = e.class, e.class.TypeVars
		g.bounds(e.decl.TypeParams, e.class.TypeVars)
	}
	ordered := g.inheritanceOrder(classes)
	for _, e := range ordered {
		g.classBase(e.decl, e.class)
	}
	for _, e := range ifaces {
		g.interfaceMethods(e.decl, e.iface)
	}
	var bodies []pendingBody
	for _, e := range ordered {
		bodies = append(bodies, g.classMembers(e.decl, e.class)...)
	}

	for _, b := range bodies {
		b := b
		g.unit(b.method.QualifiedName(), func() { g.methodBody(b) })
	}
	res.Main = g.mainProgram(u.Main)

	for _, e := range classes {
		if e.class.Abstract {
			continue
		}
		for _, m := range e.class.MissingMethods() {
			g.errorf(e.decl.At, "class %s must implement %s", e.class.Name(), m.QualifiedName()+strings.TrimPrefix(m.Signature(), m.Name))
		}
	}

	res.Diagnostics = g.diags
	log.Debugf("generated %d classes, %d interfaces, %d diagnostics", len(res.Classes), len(res.Interfaces), len(res.Diagnostics))
	return res
}

func typeVars(params []TypeParam) []*vm.TypeVariable {
	var out []*vm.TypeVariable
	for _, p := range params {
		out = append(out, vm.NewTypeVariable(p.Name))
	}
	return out
}

// bounds narrows type variables to their declared requirements.
func (g *Generator) bounds(params []TypeParam, vars []*vm.TypeVariable) {
	for i, p := range params {
		if p.Bound == nil {
			continue
		}
		p, tv := p, vars[i]
		g.unit("bound of "+p.Name, func() {
			tv.Narrow(g.resolveType(*p.Bound))
		})
	}
}

func (g *Generator) interfaceSupertypes(d *InterfaceDecl, it *vm.Interface) {
	g.class, g.method, g.scope = nil, nil, it.TypeVars
	g.bounds(d.TypeParams, it.TypeVars)
	for _, ref := range d.Extends {
		ref := ref
		g.unit(it.Name()+" extends "+ref.Name, func() {
			e, ok := g.resolveType(ref).(*vm.Interface)
			if !ok {
				g.fatalf(ref.At, "%s is not an interface", ref.Name)
			}
			if e.IsSubInterfaceOf(it) {
				g.fatalf(ref.At, "cyclic inheritance involving %s", it.Name())
			}
			it.Extends = append(it.Extends, e)
		})
	}
}

func (g *Generator) interfaceMethods(d *InterfaceDecl, it *vm.Interface) {
	g.class, g.method, g.scope = nil, nil, it.TypeVars
	for i := range d.Methods {
		md := &d.Methods[i]
		g.unit(it.Name()+"."+md.Name, func() {
			if md.Body != nil {
				g.errorf(md.At, "interface method %s cannot have a body", md.Name)
			}
			if md.Static || md.Constructor {
				g.fatalf(md.At, "interface %s can only declare instance methods", it.Name())
			}
			m := g.signature(md, "")
			for _, prev := range it.Methods() {
				if prev.Signature() == m.Signature() {
					g.fatalf(md.At, "method %s is already declared in %s", m.Signature(), it.Name())
				}
			}
			it.AddMethod(m)
		})
	}
}

func (g *Generator) classInterfaces(d *ClassDecl, c *vm.Class) {
	g.class, g.method, g.scope = c, nil, c.TypeVars
	for _, ref := range d.Implements {
		ref := ref
		g.unit(c.Name()+" implements "+ref.Name, func() {
			it, ok := g.resolveType(ref).(*vm.Interface)
			if !ok {
				g.fatalf(ref.At, "%s is not an interface", ref.Name)
			}
			c.Interfaces = append(c.Interfaces, it)
		})
	}
}

// inheritanceOrder sorts the classes of the unit so every class follows
// the classes it extends. Cyclic extends clauses are reported and
// dropped.
func (g *Generator) inheritanceOrder(classes []classEntry) []classEntry {
	byName := make(map[string]int, len(classes))
	for i, e := range classes {
		byName[e.class.Name()] = i
	}
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(classes))
	var out []classEntry
	var visit func(i int)
	visit = func(i int) {
		state[i] = visiting
		e := classes[i]
		if e.decl.Extends != nil {
			if base, _, err := vm.ParseTypeName(e.decl.Extends.Name); err == nil {
				if j, ok := byName[base]; ok {
					switch state[j] {
					case unvisited:
						visit(j)
					case visiting:
						g.errorf(e.decl.Extends.At, "cyclic inheritance involving %s", e.class.Name())
						e.decl.Extends = nil
					}
				}
			}
		}
		state[i] = done
		out = append(out, e)
	}
	for i := range classes {
		if state[i] == unvisited {
			visit(i)
		}
	}
	return out
}

func (g *Generator) classBase(d *ClassDecl, c *vm.Class) {
	if d.Extends == nil {
		return
	}
	g.class, g.method, g.scope = c, nil, c.TypeVars
	g.unit(c.Name()+" extends "+d.Extends.Name, func() {
		base, ok := g.resolveType(*d.Extends).(*vm.Class)
		if !ok {
			g.fatalf(d.Extends.At, "%s is not a class", d.Extends.Name)
		}
		if base.IsGeneric() {
			g.fatalf(d.Extends.At, "generic class %s needs type arguments", base.Name())
		}
		if base.IsSubclassOf(c) {
			g.fatalf(d.Extends.At, "cyclic inheritance involving %s", c.Name())
		}
		c.Base = base
	})
}

// classMembers declares attributes and method signatures and returns the
// bodies still to compile.
func (g *Generator) classMembers(d *ClassDecl, c *vm.Class) []pendingBody {
	g.class, g.method, g.scope = c, nil, c.TypeVars
	for _, a := range d.Attributes {
		a := a
		g.unit(c.Name()+"."+a.Name, func() {
			t := g.resolveType(a.Type)
			if t == vm.Void {
				g.fatalf(a.At, "attribute %s cannot be void", a.Name)
			}
			for _, prev := range c.DeclaredAttributes() {
				if prev.Name == a.Name {
					g.fatalf(a.At, "attribute %s is already declared in %s", a.Name, c.Name())
				}
			}
			c.AddAttribute(a.Name, t, nil)
		})
	}
	c.NumAttributes()

	var bodies []pendingBody
	for i := range d.Methods {
		md := &d.Methods[i]
		g.unit(c.Name()+"."+md.Name, func() {
			switch {
			case md.Abstract && md.Body != nil:
				g.errorf(md.At, "abstract method %s cannot have a body", md.Name)
			case md.Abstract && !d.Abstract:
				g.errorf(md.At, "class %s must be abstract to declare abstract method %s", c.Name(), md.Name)
			case !md.Abstract && md.Body == nil:
				g.errorf(md.At, "method %s needs a body", md.Name)
			case md.Constructor && (md.Static || md.Abstract):
				g.fatalf(md.At, "constructor of %s cannot be static or abstract", c.Name())
			}
			m := g.signature(md, c.Name())
			for _, prev := range c.Methods() {
				if prev.IsConstructor == m.IsConstructor && prev.Signature() == m.Signature() {
					g.fatalf(md.At, "method %s is already declared in %s", m.Signature(), c.Name())
				}
			}
			c.AddMethod(m)
			if !m.IsAbstract && md.Body != nil {
				bodies = append(bodies, pendingBody{decl: md, class: c, method: m})
			}
		})
	}
	return bodies
}

// signature builds the descriptor of a declared method. Constructors are
// named after their class.
func (g *Generator) signature(md *MethodDecl, className string) *vm.Method {
	m := &vm.Method{
		Name:          md.Name,
		IsStatic:      md.Static,
		IsAbstract:    md.Abstract,
		IsConstructor: md.Constructor,
	}
	if md.Constructor {
		m.Name = className
	}
	seen := make(map[string]bool)
	for _, p := range md.Params {
		t := g.resolveType(p.Type)
		if t == vm.Void {
			g.fatalf(p.At, "parameter %s cannot be void", p.Name)
		}
		if seen[p.Name] {
			g.fatalf(p.At, "duplicate parameter %s", p.Name)
		}
		seen[p.Name] = true
		m.Params = append(m.Params, vm.Param{Name: p.Name, Type: t, Final: p.Final})
	}
	if md.ReturnType != nil && !md.Constructor {
		if t := g.resolveType(*md.ReturnType); t != vm.Void {
			m.ReturnType = t
		}
	}
	return m
}

// ---------------------------------------------------------------------------
// Method bodies
// ---------------------------------------------------------------------------

func (g *Generator) methodBody(b pendingBody) {
	c, m := b.class, b.method
	g.class, g.method, g.scope = c, m, c.TypeVars
	g.symbols = NewSymbolTable()
	for i, p := range m.Params {
		l, err := g.symbols.Declare(p.Name, p.Type, b.decl.Params[i].At)
		if err != nil {
			g.fatalf(b.decl.Params[i].At, "%v", err)
		}
		l.Initialized = true
		l.Final = p.Final
	}

	body := newFragment(m.Name, nil)
	if m.IsConstructor {
		if ctor := g.defaultConstructor(c.Base, b.decl.At); ctor != nil {
			body.Emit(vm.Instruction{Op: vm.OpPushThis, Pos: b.decl.At})
			body.Emit(vm.Instruction{Op: vm.OpInvoke, Method: ctor, Pos: b.decl.At})
		}
	}
	body.Append(g.block(b.decl.Body))
	if m.ReturnsValue() && !alwaysReturns(b.decl.Body) {
		g.errorf(b.decl.At, "method %s must return a value of type %s", m.Name, m.ReturnType.Name())
	}
	body.Emit(vm.Instruction{Op: vm.OpReturn})
	m.SetBody(vm.NewProgram(m.QualifiedName(), body.Code, len(m.Params), g.symbols.Names()))
}

func (g *Generator) mainProgram(stmts []Stmt) *vm.Method {
	m := &vm.Method{Name: "main", IsStatic: true}
	ok := g.unit("main", func() {
		g.class, g.method, g.scope = nil, m, nil
		g.symbols = NewSymbolTable()
		body := g.statements(stmts)
		body.Emit(vm.Instruction{Op: vm.OpReturn})
		m.Body = vm.NewProgram("main", body.Code, 0, g.symbols.Names())
	})
	if !ok {
		return nil
	}
	return m
}

// defaultConstructor finds the parameterless constructor that runs when
// an instance of c is created without an explicit constructor: the one
// declared by the nearest class along the chain that declares any.
func (g *Generator) defaultConstructor(c *vm.Class, pos Position) *vm.Method {
	for k := c; k != nil && k != vm.ObjectClass; k = k.Base {
		if len(k.Constructors()) == 0 {
			continue
		}
		m := k.FindConstructor(nil)
		if m == nil {
			g.errorf(pos, "class %s has no constructor without parameters", k.Name())
		}
		return m
	}
	return nil
}

// alwaysReturns reports whether no path through s completes normally:
// every path ends in a return or stays in a loop that never exits. The
// language has no break, so a loop on the constant true never exits.
func alwaysReturns(s Stmt) bool {
	switch n := s.(type) {
	case *Return:
		return true
	case *Block:
		if n == nil {
			return false
		}
		for _, st := range n.Stmts {
			if alwaysReturns(st) {
				return true
			}
		}
	case *If:
		return n.Else != nil && alwaysReturns(n.Then) && alwaysReturns(n.Else)
	case *While:
		return isConstantTrue(n.Cond)
	case *For:
		return n.Cond == nil || isConstantTrue(n.Cond)
	}
	return false
}

func isConstantTrue(e Expr) bool {
	c, ok := e.(*Constant)
	if !ok || c.Kind != TokenBoolean {
		return false
	}
	b, ok := c.Value.(bool)
	return ok && b
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// statements lowers a statement list. A statement that leaves a value on
// the stack, such as "12 + 17 - 7;", gets an explicit POP.
func (g *Generator) statements(stmts []Stmt) *Fragment {
	block := newFragment("block", nil)
	for _, s := range stmts {
		if s == nil {
			continue
		}
		f := g.stmt(s)
		if f == nil {
			continue
		}
		if f.LastPartIsExpression {
			f.AddPop()
		}
		block.Append(f)
	}
	block.LastPartIsExpression = false
	return block
}

func (g *Generator) block(b *Block) *Fragment {
	if b == nil {
		return nil
	}
	g.symbols.Push()
	defer g.symbols.Pop()
	return g.statements(b.Stmts)
}

// nested lowers the body of a control statement in its own scope.
func (g *Generator) nested(s Stmt) *Fragment {
	if s == nil {
		return nil
	}
	g.symbols.Push()
	defer g.symbols.Pop()
	return g.statements([]Stmt{s})
}

func (g *Generator) stmt(s Stmt) *Fragment {
	switch n := s.(type) {
	case *ExprStmt:
		return g.expr(n.X)
	case *LocalVarDecl:
		return g.localVar(n)
	case *Block:
		return g.block(n)
	case *If:
		return g.ifStmt(n)
	case *While:
		return g.whileStmt(n)
	case *For:
		return g.forStmt(n)
	case *Return:
		return g.returnStmt(n)
	case *Print:
		return g.printStmt(n)
	}
	g.fatalf(s.Pos(), "unsupported statement %T", s)
	return nil
}

func (g *Generator) localVar(n *LocalVarDecl) *Fragment {
	t := g.resolveType(n.Type)
	if t == vm.Void {
		g.errorf(n.At, "variable %s cannot be void", n.Name)
		return nil
	}
	// The initializer is lowered first so it cannot see the variable.
	var init *Fragment
	if n.Init != nil {
		init = g.expr(n.Init)
	}
	l, err := g.symbols.Declare(n.Name, t, n.At)
	if err != nil {
		g.errorf(n.At, "%v", err)
		return init
	}

	f := newFragment("local "+n.Name, nil)
	store := vm.Instruction{Op: vm.OpStoreLocal, Operand: l.Slot, Operator: "=", Type: t, Pos: n.At}
	if init == nil {
		if d := vm.Default(t); !d.IsNull() {
			f.Append(constFragment(d, t, n.At))
			f.Emit(store)
			f.AddPop()
		}
		return f
	}
	if init.Type == nil {
		return init
	}
	if !vm.CanCastTo(init.Type, t) {
		g.errorf(n.Init.Pos(), "cannot assign %s to %s", init.Type.Name(), t.Name())
		return init
	}
	init.EmitCast(t, n.At)
	f.Append(init)
	f.Emit(store)
	f.AddPop()
	l.Initialized = true
	return f
}

// condition lowers the test of if, while, for and ?:.
func (g *Generator) condition(e Expr) *Fragment {
	f := g.expr(e)
	g.checkAssignmentInsteadOfEqual(e, f.Type)
	if f.Type != nil && f.Type != vm.Boolean {
		g.errorf(e.Pos(), "condition must be boolean, found %s", f.Type.Name())
	}
	return f
}

// checkAssignmentInsteadOfEqual flags "=" where "==" was probably meant.
// When the assignment itself is boolean the code is legal, so it is only
// a warning.
func (g *Generator) checkAssignmentInsteadOfEqual(e Expr, condType vm.Type) {
	b, ok := e.(*BinaryOp)
	if !ok || b.Op != "=" {
		return
	}
	sev := SeverityError
	if condType == vm.Boolean {
		sev = SeverityWarning
	}
	g.report(Diagnostic{
		Severity: sev,
		Pos:      b.OpAt,
		Message:  "= assigns a value; use == to compare",
		Fix:      &QuickFix{Title: "replace = with ==", Pos: b.OpAt, Old: "=", New: "=="},
	})
}

func (g *Generator) ifStmt(n *If) *Fragment {
	f := newFragment("if", nil)
	f.Append(g.condition(n.Cond))
	skip := f.emitJump(vm.OpJumpIfFalse, n.At)
	f.Append(g.nested(n.Then))
	if n.Else != nil {
		end := f.emitJump(vm.OpJump, n.At)
		f.patchJump(skip, f.Len())
		f.Append(g.nested(n.Else))
		f.patchJump(end, f.Len())
	} else {
		f.patchJump(skip, f.Len())
	}
	f.LastPartIsExpression = false
	return f
}

func (g *Generator) whileStmt(n *While) *Fragment {
	f := newFragment("while", nil)
	f.Append(g.condition(n.Cond))
	exit := f.emitJump(vm.OpJumpIfFalse, n.At)
	f.Append(g.nested(n.Body))
	back := f.emitJump(vm.OpJump, n.At)
	f.patchJump(back, 0)
	f.patchJump(exit, f.Len())
	f.LastPartIsExpression = false
	return f
}

func (g *Generator) forStmt(n *For) *Fragment {
	g.symbols.Push()
	defer g.symbols.Pop()

	f := newFragment("for", nil)
	if n.Init != nil {
		if init := g.stmt(n.Init); init != nil {
			if init.LastPartIsExpression {
				init.AddPop()
			}
			f.Append(init)
		}
	}
	top := f.Len()
	exit := -1
	if n.Cond != nil {
		f.Append(g.condition(n.Cond))
		exit = f.emitJump(vm.OpJumpIfFalse, n.At)
	}
	f.Append(g.nested(n.Body))
	if n.Update != nil {
		u := g.expr(n.Update)
		if u.LastPartIsExpression {
			u.AddPop()
		}
		f.Append(u)
	}
	back := f.emitJump(vm.OpJump, n.At)
	f.patchJump(back, top)
	if exit >= 0 {
		f.patchJump(exit, f.Len())
	}
	f.LastPartIsExpression = false
	return f
}

func (g *Generator) returnStmt(n *Return) *Fragment {
	m := g.method
	f := newFragment("return", nil)
	if n.Value == nil {
		if m.ReturnsValue() {
			g.errorf(n.At, "method %s must return a value of type %s", m.Name, m.ReturnType.Name())
		}
		f.Emit(vm.Instruction{Op: vm.OpReturn, Pos: n.At})
		return f
	}
	v := g.expr(n.Value)
	if !m.ReturnsValue() {
		g.errorf(n.At, "%s cannot return a value", m.Name)
		return v
	}
	if v.Type == nil {
		return v
	}
	want := g.resolveMember(m.ReturnType)
	if !vm.CanCastTo(v.Type, want) {
		g.errorf(n.Value.Pos(), "cannot return %s from a method returning %s", v.Type.Name(), want.Name())
		return v
	}
	v.EmitCast(want, n.At)
	f.Append(v)
	f.Emit(vm.Instruction{Op: vm.OpReturnValue, Pos: n.At})
	f.LastPartIsExpression = false
	return f
}

func (g *Generator) printStmt(n *Print) *Fragment {
	var v *Fragment
	if n.Value == nil {
		v = constFragment(vm.StringValue(""), vm.String, n.At)
	} else {
		v = g.expr(n.Value)
	}
	if v.Type == vm.Void {
		g.errorf(n.At, "cannot print the result of a void method")
		return v
	}
	if v.Type == nil {
		return v
	}
	operand := 0
	if n.Newline {
		operand = 1
	}
	f := newFragment("print", nil)
	f.Append(v)
	f.Emit(vm.Instruction{Op: vm.OpPrint, Operand: operand, Pos: n.At})
	f.LastPartIsExpression = false
	return f
}

func (g *Generator) resolveMember(t vm.Type) vm.Type {
	if g.class != nil {
		return g.class.Resolve(t)
	}
	return t
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// expr lowers an expression. The result is never nil; a nil Type means an
// error was already reported for it.
func (g *Generator) expr(e Expr) *Fragment {
	switch n := e.(type) {
	case *Constant:
		return g.constant(n)
	case *Identifier:
		return g.identifier(n, false)
	case *This:
		return g.this(n)
	case *BinaryOp:
		return g.binary(n)
	case *UnaryOp:
		return g.unary(n)
	case *MethodCall:
		return g.call(n)
	case *NewObject:
		return g.newObject(n)
	case *AttributeAccess:
		return g.attribute(n)
	case *Cast:
		return g.cast(n)
	}
	g.fatalf(e.Pos(), "unsupported expression %T", e)
	return nil
}

func (g *Generator) constant(n *Constant) *Fragment {
	raw, err := vm.DeepCopy(n.Value)
	if err != nil {
		g.fatalf(n.At, "%v", err)
	}
	v, err := constantValue(n.Kind, raw)
	if err != nil {
		g.errorf(n.At, "%v", err)
		return newFragment("constant", nil)
	}
	return constFragment(v, constantTypes[n.Kind], n.At)
}

// identifier resolves a name to a local, then to an attribute of this.
// assigning suppresses the use-before-initialization note for the left
// side of "=".
func (g *Generator) identifier(n *Identifier, assigning bool) *Fragment {
	if l := g.symbols.Lookup(n.Name); l != nil {
		f := newFragment(n.Name, l.Type)
		f.Emit(vm.Instruction{Op: vm.OpPushLocal, Operand: l.Slot, Pos: n.At})
		f.LastPartIsExpression = true
		if !l.Final {
			f.loadable(vm.Instruction{Op: vm.OpStoreLocal, Operand: l.Slot})
		}
		if !assigning && !l.Initialized {
			g.infof(n.At, "variable %s may not have been initialized", n.Name)
		}
		return f
	}
	if g.class != nil {
		if a := g.class.LookupAttribute(n.Name); a != nil {
			if g.method == nil || g.method.IsStatic {
				g.errorf(n.At, "attribute %s cannot be used in a static method", n.Name)
			}
			f := newFragment(n.Name, g.class.Resolve(a.Type))
			f.Emit(vm.Instruction{Op: vm.OpPushThis, Pos: n.At})
			f.Emit(vm.Instruction{Op: vm.OpPushAttr, Operand: a.Index, Pos: n.At})
			f.LastPartIsExpression = true
			attributeStore(f, a)
			return f
		}
	}
	g.fatalf(n.At, "unknown variable %s", n.Name)
	return nil
}

func (g *Generator) this(n *This) *Fragment {
	f := newFragment("this", nil)
	if g.class == nil || g.method == nil || g.method.IsStatic {
		g.errorf(n.At, "this cannot be used in a static context")
	} else {
		f.Type = g.class
	}
	f.Emit(vm.Instruction{Op: vm.OpPushThis, Pos: n.At})
	f.LastPartIsExpression = true
	return f
}

func (g *Generator) attribute(n *AttributeAccess) *Fragment {
	of := g.expr(n.Object)
	if of.Type == nil {
		return of
	}
	c, ok := boundOf(of.Type).(*vm.Class)
	if !ok {
		g.fatalf(n.At, "type %s has no attribute %s", of.Type.Name(), n.Name)
	}
	a := c.LookupAttribute(n.Name)
	if a == nil {
		g.fatalf(n.At, "unknown attribute %s in %s", n.Name, c.Name())
	}
	of.Emit(vm.Instruction{Op: vm.OpPushAttr, Operand: a.Index, Pos: n.At})
	of.Type = c.Resolve(a.Type)
	of.LastPartIsExpression = true
	attributeStore(of, a)
	return of
}

// attributeStore makes f, which ends reading a, assignable unless a is
// recomputed on every read.
func attributeStore(f *Fragment, a *vm.Attribute) {
	if a.Recompute != nil {
		f.derived = a.Name
		return
	}
	f.loadable(vm.Instruction{Op: vm.OpStoreAttr, Operand: a.Index})
}

// notAssignable reports a store into f, which is not an lvalue.
func (g *Generator) notAssignable(f *Fragment, pos Position) {
	if f.derived != "" {
		g.errorf(pos, "read-only attribute %s", f.derived)
		return
	}
	g.errorf(pos, "cannot assign to this expression")
}

// boundOf replaces a type variable by its bound.
func boundOf(t vm.Type) vm.Type {
	if tv, ok := t.(*vm.TypeVariable); ok {
		return tv.Bound
	}
	return t
}

func (g *Generator) binary(n *BinaryOp) *Fragment {
	switch {
	case n.IsAssignment():
		return g.assignment(n)
	case n.Op == "&&" || n.Op == "||":
		return g.logical(n)
	case n.Op == "?":
		return g.ternary(n)
	}
	l := g.expr(n.Left)
	r := g.expr(n.Right)
	if l.Type == nil || r.Type == nil {
		l.Type = nil
		return l
	}
	rt := vm.BinaryResultType(n.Op, l.Type, r.Type)
	if rt == nil {
		g.errorf(n.OpAt, "operator %s is not defined for %s and %s", n.Op, l.Type.Name(), r.Type.Name())
		l.Type = nil
		return l
	}
	l.ApplyBinary(n.Op, r, rt, n.OpAt)
	return l
}

// assignment lowers "=" and the compound operators. When the right side
// does not fit the left, the left fragment is returned without a store.
func (g *Generator) assignment(n *BinaryOp) *Fragment {
	var left *Fragment
	id, isIdent := n.Left.(*Identifier)
	if isIdent {
		left = g.identifier(id, n.Op == "=")
	} else {
		left = g.expr(n.Left)
	}
	right := g.expr(n.Right)
	if left.Type == nil || right.Type == nil {
		return left
	}

	if n.Op == "=" {
		if !vm.CanCastTo(right.Type, left.Type) {
			g.errorf(n.OpAt, "cannot assign %s to %s", right.Type.Name(), left.Type.Name())
			return left
		}
	} else {
		rt := vm.BinaryResultType(n.Op[:len(n.Op)-1], left.Type, right.Type)
		if rt == nil || !vm.CanExplicitCast(rt, left.Type) {
			g.errorf(n.OpAt, "operator %s is not defined for %s and %s", n.Op, left.Type.Name(), right.Type.Name())
			return left
		}
	}
	if !left.Assignable {
		g.notAssignable(left, n.Left.Pos())
		return left
	}

	declared := left.Type
	if n.Op == "=" {
		right.EmitCast(declared, n.OpAt)
	}
	left.Assign(n.Op, right, declared, n.OpAt)
	if isIdent && n.Op == "=" {
		if l := g.symbols.Lookup(id.Name); l != nil {
			l.Initialized = true
		}
	}
	return left
}

// logical lowers && and || with short-circuit evaluation.
func (g *Generator) logical(n *BinaryOp) *Fragment {
	l := g.expr(n.Left)
	r := g.expr(n.Right)
	if l.Type == nil || r.Type == nil {
		l.Type = nil
		return l
	}
	if l.Type != vm.Boolean || r.Type != vm.Boolean {
		g.errorf(n.OpAt, "operator %s is not defined for %s and %s", n.Op, l.Type.Name(), r.Type.Name())
		l.Type = nil
		return l
	}
	if l.Constant != nil && r.Constant != nil {
		l.ApplyBinary(n.Op, r, vm.Boolean, n.OpAt)
		return l
	}

	jump, short := vm.OpJumpIfFalse, false
	if n.Op == "||" {
		jump, short = vm.OpJumpIfTrue, true
	}
	f := newFragment(n.Op, vm.Boolean)
	f.Append(l)
	skip := f.emitJump(jump, n.OpAt)
	f.Append(r)
	end := f.emitJump(vm.OpJump, n.OpAt)
	f.patchJump(skip, f.Len())
	f.Emit(vm.Instruction{Op: vm.OpPushConst, Const: vm.BoolValue(short), Pos: n.OpAt})
	f.patchJump(end, f.Len())
	f.LastPartIsExpression = true
	return f
}

func (g *Generator) ternary(n *BinaryOp) *Fragment {
	alt, ok := n.Right.(*BinaryOp)
	if !ok || alt.Op != ":" {
		g.fatalf(n.OpAt, "conditional expression needs both branches")
	}
	cond := g.condition(n.Left)
	a := g.expr(alt.Left)
	b := g.expr(alt.Right)
	t := commonType(a.Type, b.Type)
	if t == nil {
		if a.Type != nil && b.Type != nil {
			g.errorf(alt.OpAt, "incompatible branch types %s and %s", a.Type.Name(), b.Type.Name())
		}
		cond.Type = nil
		return cond
	}
	a.EmitCast(t, alt.Left.Pos())
	b.EmitCast(t, alt.Right.Pos())

	f := newFragment("?:", t)
	f.Append(cond)
	skip := f.emitJump(vm.OpJumpIfFalse, n.OpAt)
	f.Append(a)
	end := f.emitJump(vm.OpJump, alt.OpAt)
	f.patchJump(skip, f.Len())
	f.Append(b)
	f.patchJump(end, f.Len())
	f.LastPartIsExpression = true
	return f
}

// commonType returns the type both branches of ?: convert to.
func commonType(a, b vm.Type) vm.Type {
	switch {
	case a == nil || b == nil:
		return nil
	case a == b:
		return a
	case vm.CanCastTo(a, b):
		return b
	case vm.CanCastTo(b, a):
		return a
	}
	return nil
}

func (g *Generator) unary(n *UnaryOp) *Fragment {
	if n.Op == "++" || n.Op == "--" {
		return g.increment(n)
	}
	f := g.expr(n.Operand)
	if f.Type == nil {
		return f
	}
	switch n.Op {
	case "-", "+":
		if !vm.CanCastTo(f.Type, vm.Float) {
			g.errorf(n.At, "operator %s is not defined for %s", n.Op, f.Type.Name())
			return f
		}
	case "!":
		if !vm.CanCastTo(f.Type, vm.Boolean) {
			g.checkAssignmentInsteadOfEqual(n.Operand, nil)
			g.errorf(n.At, "operator ! is not defined for %s", f.Type.Name())
			return f
		}
	case "~":
		if vm.UnaryResultType(n.Op, f.Type) == nil {
			g.errorf(n.At, "operator ~ is not defined for %s", f.Type.Name())
			return f
		}
	default:
		g.fatalf(n.At, "unknown operator %s", n.Op)
	}
	f.ApplyUnary(n.Op, vm.UnaryResultType(n.Op, f.Type), n.At)
	return f
}

// increment lowers ++ and -- as a compound assignment. The postfix forms
// undo the step on the stored value to leave the old one.
func (g *Generator) increment(n *UnaryOp) *Fragment {
	f := g.expr(n.Operand)
	if f.Type == nil {
		return f
	}
	if !vm.IsNumeric(f.Type) {
		g.errorf(n.At, "operator %s is not defined for %s", n.Op, f.Type.Name())
		return f
	}
	if !f.Assignable {
		g.notAssignable(f, n.At)
		return f
	}
	step, undo := "+=", "-"
	if n.Op == "--" {
		step, undo = "-=", "+"
	}
	t := f.Type
	f.Assign(step, constFragment(vm.IntValue(1), vm.Int, n.At), t, n.At)
	if n.Postfix {
		f.ApplyBinary(undo, constFragment(vm.IntValue(1), vm.Int, n.At), vm.Promote(t, vm.Int), n.At)
		f.EmitCast(t, n.At)
	}
	return f
}

func (g *Generator) cast(n *Cast) *Fragment {
	t := g.resolveType(n.Type)
	f := g.expr(n.Operand)
	if f.Type == nil {
		return f
	}
	if !vm.CanExplicitCast(f.Type, t) {
		g.errorf(n.At, "cannot cast %s to %s", f.Type.Name(), t.Name())
		f.Type = nil
		return f
	}
	f.EmitCast(t, n.At)
	return f
}

// ---------------------------------------------------------------------------
// Calls and instantiation
// ---------------------------------------------------------------------------

// receiverKind says where a call's receiver comes from.
type receiverKind int

const (
	receiverImplicit receiverKind = iota // this or the current class
	receiverClass                        // ClassName.method(...)
	receiverValue                        // expr.method(...)
)

func (g *Generator) call(n *MethodCall) *Fragment {
	var (
		kind    receiverKind
		rf      *Fragment
		find    func([]vm.Type) *vm.Method
		resolve func(vm.Type) vm.Type
		owner   string
	)
	switch {
	case n.Object == nil:
		if g.class == nil {
			g.fatalf(n.At, "unknown method %s", n.Name)
		}
		kind = receiverImplicit
		c := g.class
		find = func(ts []vm.Type) *vm.Method { return c.FindMethod(n.Name, ts) }
		resolve, owner = c.Resolve, c.Name()
	case g.className(n.Object) != nil:
		kind = receiverClass
		c := g.className(n.Object)
		find = func(ts []vm.Type) *vm.Method { return c.FindMethod(n.Name, ts) }
		resolve, owner = c.Resolve, c.Name()
	default:
		kind = receiverValue
		rf = g.expr(n.Object)
		if rf.Type == nil {
			return rf
		}
		switch t := boundOf(rf.Type).(type) {
		case *vm.Class:
			find = func(ts []vm.Type) *vm.Method { return t.FindMethod(n.Name, ts) }
			resolve, owner = t.Resolve, t.Name()
		case *vm.Interface:
			find = func(ts []vm.Type) *vm.Method { return t.FindMethod(n.Name, ts) }
			resolve, owner = t.Resolve, t.Name()
		default:
			g.fatalf(n.At, "type %s has no methods", rf.Type.Name())
		}
	}

	args := make([]*Fragment, len(n.Args))
	argTypes := make([]vm.Type, len(n.Args))
	failed := false
	for i, a := range n.Args {
		args[i] = g.expr(a)
		argTypes[i] = args[i].Type
		failed = failed || args[i].Type == nil
	}
	if failed {
		return newFragment(n.Name, nil)
	}
	m := find(argTypes)
	if m == nil {
		g.fatalf(n.At, "unknown method %s(%s) in %s", n.Name, typeList(argTypes), owner)
	}

	f := newFragment(n.Name, nil)
	switch kind {
	case receiverImplicit:
		if !m.IsStatic {
			if g.method == nil || g.method.IsStatic {
				g.errorf(n.At, "instance method %s cannot be called from a static context", n.Name)
			}
			f.Emit(vm.Instruction{Op: vm.OpPushThis, Pos: n.At})
		}
	case receiverClass:
		if !m.IsStatic {
			g.errorf(n.At, "method %s of %s is not static", n.Name, owner)
		}
	case receiverValue:
		f.Append(rf)
		if m.IsStatic {
			f.AddPop()
		}
	}
	for i, a := range args {
		a.EmitCast(resolve(m.Params[i].Type), n.Args[i].Pos())
		f.Append(a)
	}
	op := vm.OpInvokeVirtual
	if m.IsStatic {
		op = vm.OpInvoke
	}
	f.Emit(vm.Instruction{Op: op, Method: m, Operand: len(args), Pos: n.At})
	if m.ReturnsValue() {
		f.Type = resolve(m.ReturnType)
		f.LastPartIsExpression = true
	} else {
		f.Type = vm.Void
		f.LastPartIsExpression = false
	}
	return f
}

// className returns the class an identifier names when it is not
// shadowed by a variable or attribute.
func (g *Generator) className(e Expr) *vm.Class {
	id, ok := e.(*Identifier)
	if !ok || g.symbols.Lookup(id.Name) != nil {
		return nil
	}
	if g.class != nil && g.class.LookupAttribute(id.Name) != nil {
		return nil
	}
	c, _ := g.types.Lookup(id.Name).(*vm.Class)
	return c
}

func (g *Generator) newObject(n *NewObject) *Fragment {
	c, ok := g.resolveType(n.Type).(*vm.Class)
	if !ok {
		g.fatalf(n.Type.At, "cannot instantiate %s", n.Type.Name)
	}
	if c.IsGeneric() {
		g.errorf(n.Type.At, "generic class %s needs type arguments", c.Name())
	}
	if err := c.CanInstantiate(); err != nil {
		g.errorf(n.At, "%v", err)
	}

	args := make([]*Fragment, len(n.Args))
	argTypes := make([]vm.Type, len(n.Args))
	for i, a := range n.Args {
		args[i] = g.expr(a)
		argTypes[i] = args[i].Type
		if argTypes[i] == nil {
			return newFragment("new", nil)
		}
	}
	var ctor *vm.Method
	if len(c.Constructors()) == 0 && len(args) == 0 {
		ctor = g.defaultConstructor(c, n.At)
	} else if ctor = c.FindConstructor(argTypes); ctor == nil {
		g.fatalf(n.At, "no constructor %s(%s)", c.Name(), typeList(argTypes))
	}

	f := newFragment("new", c)
	f.Emit(vm.Instruction{Op: vm.OpNew, Class: c, Pos: n.At})
	if ctor != nil {
		f.Emit(vm.Instruction{Op: vm.OpDup, Pos: n.At})
		for i, a := range args {
			a.EmitCast(c.Resolve(ctor.Params[i].Type), n.Args[i].Pos())
			f.Append(a)
		}
		f.Emit(vm.Instruction{Op: vm.OpInvoke, Method: ctor, Operand: len(args), Pos: n.At})
	}
	f.Type = c
	f.LastPartIsExpression = true
	return f
}

func typeList(ts []vm.Type) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name()
	}
	return strings.Join(names, ", ")
}
