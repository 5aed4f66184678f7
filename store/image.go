// Package store persists compiled units: program images encoded as
// canonical CBOR and a SQLite cache mapping tree hashes to images.
package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/tutor/compiler"
	"github.com/chazu/tutor/vm"
)

var log = commonlog.GetLogger("tutor.store")

// ImageVersion is bumped whenever the image layout changes.
const ImageVersion = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Wire records
// ---------------------------------------------------------------------------

type image struct {
	Version    int         `cbor:"1,keyasint"`
	Interfaces []ifaceRec  `cbor:"2,keyasint,omitempty"`
	Classes    []classRec  `cbor:"3,keyasint,omitempty"`
	Main       *programRec `cbor:"4,keyasint,omitempty"`
}

type typeVarRec struct {
	Name  string `cbor:"1,keyasint"`
	Bound string `cbor:"2,keyasint,omitempty"`
}

type ifaceRec struct {
	Name     string       `cbor:"1,keyasint"`
	TypeVars []typeVarRec `cbor:"2,keyasint,omitempty"`
	Extends  []string     `cbor:"3,keyasint,omitempty"`
	Methods  []methodRec  `cbor:"4,keyasint,omitempty"`
}

type classRec struct {
	Name       string       `cbor:"1,keyasint"`
	Base       string       `cbor:"2,keyasint,omitempty"`
	Abstract   bool         `cbor:"3,keyasint,omitempty"`
	TypeVars   []typeVarRec `cbor:"4,keyasint,omitempty"`
	Interfaces []string     `cbor:"5,keyasint,omitempty"`
	Attributes []paramRec   `cbor:"6,keyasint,omitempty"`
	Methods    []methodRec  `cbor:"7,keyasint,omitempty"`
}

type paramRec struct {
	Name  string `cbor:"1,keyasint"`
	Type  string `cbor:"2,keyasint"`
	Final bool   `cbor:"3,keyasint,omitempty"`
}

type methodRec struct {
	Name        string      `cbor:"1,keyasint"`
	Params      []paramRec  `cbor:"2,keyasint,omitempty"`
	Return      string      `cbor:"3,keyasint,omitempty"`
	Static      bool        `cbor:"4,keyasint,omitempty"`
	Abstract    bool        `cbor:"5,keyasint,omitempty"`
	Constructor bool        `cbor:"6,keyasint,omitempty"`
	Body        *programRec `cbor:"7,keyasint,omitempty"`
}

type programRec struct {
	ID        []byte   `cbor:"1,keyasint"`
	Name      string   `cbor:"2,keyasint"`
	NumParams int      `cbor:"3,keyasint,omitempty"`
	Locals    []string `cbor:"4,keyasint,omitempty"`
	Code      []insRec `cbor:"5,keyasint"`
}

type insRec struct {
	Op       uint8     `cbor:"1,keyasint"`
	Operand  int       `cbor:"2,keyasint,omitempty"`
	Operator string    `cbor:"3,keyasint,omitempty"`
	Const    *constRec `cbor:"4,keyasint,omitempty"`
	Type     string    `cbor:"5,keyasint,omitempty"`
	Class    string    `cbor:"6,keyasint,omitempty"`
	Owner    string    `cbor:"7,keyasint,omitempty"` // method owner
	Sig      string    `cbor:"8,keyasint,omitempty"` // method signature
	Line     int       `cbor:"9,keyasint,omitempty"`
	Column   int       `cbor:"10,keyasint,omitempty"`
}

type constRec struct {
	Kind  uint8   `cbor:"1,keyasint"`
	Int   int64   `cbor:"2,keyasint,omitempty"`
	Float float64 `cbor:"3,keyasint,omitempty"`
	Str   string  `cbor:"4,keyasint,omitempty"`
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// EncodeImage serializes the classes, interfaces and main program of a
// generation result. Types the result refers to but does not declare
// (native classes, Object) are recorded by name only.
func EncodeImage(res *compiler.Result) ([]byte, error) {
	img := image{Version: ImageVersion}
	for _, it := range res.Interfaces {
		r := ifaceRec{Name: it.Name(), TypeVars: typeVarRecs(it.TypeVars)}
		for _, e := range it.Extends {
			r.Extends = append(r.Extends, e.Name())
		}
		for _, m := range it.Methods() {
			mr, err := encodeMethod(m)
			if err != nil {
				return nil, err
			}
			r.Methods = append(r.Methods, mr)
		}
		img.Interfaces = append(img.Interfaces, r)
	}
	for _, c := range res.Classes {
		r := classRec{Name: c.Name(), Abstract: c.Abstract, TypeVars: typeVarRecs(c.TypeVars)}
		if c.Base != nil && c.Base != vm.ObjectClass {
			r.Base = c.Base.Name()
		}
		for _, it := range c.Interfaces {
			r.Interfaces = append(r.Interfaces, it.Name())
		}
		for _, a := range c.DeclaredAttributes() {
			if a.Recompute != nil {
				return nil, fmt.Errorf("class %s: derived attribute %s cannot be stored", c.Name(), a.Name)
			}
			r.Attributes = append(r.Attributes, paramRec{Name: a.Name, Type: a.Type.Name()})
		}
		for _, m := range c.Methods() {
			mr, err := encodeMethod(m)
			if err != nil {
				return nil, fmt.Errorf("class %s: %w", c.Name(), err)
			}
			r.Methods = append(r.Methods, mr)
		}
		img.Classes = append(img.Classes, r)
	}
	if res.Main != nil {
		p, err := encodeProgram(res.Main.Program())
		if err != nil {
			return nil, fmt.Errorf("main: %w", err)
		}
		img.Main = p
	}
	return cborEncMode.Marshal(&img)
}

func typeVarRecs(vars []*vm.TypeVariable) []typeVarRec {
	var out []typeVarRec
	for _, tv := range vars {
		r := typeVarRec{Name: tv.Name()}
		if tv.Bound != nil && tv.Bound != vm.Type(vm.ObjectClass) {
			r.Bound = tv.Bound.Name()
		}
		out = append(out, r)
	}
	return out
}

func typeName(t vm.Type) string {
	if t == nil {
		return ""
	}
	return t.Name()
}

func encodeMethod(m *vm.Method) (methodRec, error) {
	r := methodRec{
		Name:        m.Name,
		Return:      typeName(m.ReturnType),
		Static:      m.IsStatic,
		Abstract:    m.IsAbstract,
		Constructor: m.IsConstructor,
	}
	for _, p := range m.Params {
		r.Params = append(r.Params, paramRec{Name: p.Name, Type: p.Type.Name(), Final: p.Final})
	}
	if m.IsNative() {
		return r, fmt.Errorf("method %s is native", m.Signature())
	}
	if p := m.Program(); p != nil {
		body, err := encodeProgram(p)
		if err != nil {
			return r, fmt.Errorf("%s: %w", m.Signature(), err)
		}
		r.Body = body
	}
	return r, nil
}

func encodeProgram(p *vm.Program) (*programRec, error) {
	r := &programRec{ID: p.ID[:], Name: p.Name, NumParams: p.NumParams, Locals: p.Locals}
	for _, ins := range p.Code() {
		ir := insRec{
			Op:       uint8(ins.Op),
			Operand:  ins.Operand,
			Operator: ins.Operator,
			Type:     typeName(ins.Type),
			Line:     ins.Pos.Line,
			Column:   ins.Pos.Column,
		}
		if ins.Op == vm.OpPushConst {
			c, err := encodeConst(ins.Const)
			if err != nil {
				return nil, err
			}
			ir.Const = c
		}
		if ins.Class != nil {
			ir.Class = ins.Class.Name()
		}
		if ins.Method != nil {
			if ins.Method.Owner == nil {
				return nil, fmt.Errorf("call to unowned method %s", ins.Method.Name)
			}
			ir.Owner, ir.Sig = ins.Method.Owner.Name(), ins.Method.Signature()
		}
		r.Code = append(r.Code, ir)
	}
	return r, nil
}

func encodeConst(v vm.Value) (*constRec, error) {
	c := &constRec{Kind: uint8(v.Kind())}
	switch v.Kind() {
	case vm.KindNull:
	case vm.KindInt, vm.KindChar:
		c.Int = v.AsInt()
	case vm.KindBool:
		if v.AsBool() {
			c.Int = 1
		}
	case vm.KindFloat:
		c.Float = v.AsFloat()
	case vm.KindString:
		c.Str = v.AsString()
	default:
		return nil, fmt.Errorf("constant %s cannot be stored", v)
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// DecodeImage declares the image's classes and interfaces into types and
// returns them with the main program as a generation result. Native
// classes the image refers to must already be installed in types.
func DecodeImage(data []byte, types *vm.TypeTable) (*compiler.Result, error) {
	var img image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("store: unmarshal image: %w", err)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("store: image version %d, want %d", img.Version, ImageVersion)
	}
	d := &decoder{types: types}
	res, err := d.decode(&img)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	log.Debugf("decoded image: %d classes, %d interfaces", len(res.Classes), len(res.Interfaces))
	return res, nil
}

type decoder struct {
	types *vm.TypeTable
	scope []*vm.TypeVariable
}

func (d *decoder) resolve(name string) (vm.Type, error) {
	switch name {
	case "":
		return nil, nil
	case vm.NullType.Name():
		return vm.NullType, nil
	}
	return d.types.ResolveScoped(name, d.scope)
}

func (d *decoder) decode(img *image) (*compiler.Result, error) {
	res := &compiler.Result{}

	ifaces := make([]*vm.Interface, len(img.Interfaces))
	for i, r := range img.Interfaces {
		it := vm.NewInterface(r.Name)
		it.TypeVars = newTypeVars(r.TypeVars)
		if err := d.types.Declare(it); err != nil {
			return nil, err
		}
		ifaces[i] = it
	}
	classes := make([]*vm.Class, len(img.Classes))
	for i, r := range img.Classes {
		c := vm.NewClass(r.Name, nil)
		c.Abstract = r.Abstract
		c.TypeVars = newTypeVars(r.TypeVars)
		if err := d.types.Declare(c); err != nil {
			return nil, err
		}
		classes[i] = c
	}

	// Supertypes and bounds, then layouts in base-first order, then
	// signatures, then bodies.
	for i, r := range img.Interfaces {
		it := ifaces[i]
		d.scope = it.TypeVars
		if err := d.bounds(r.TypeVars, it.TypeVars); err != nil {
			return nil, err
		}
		for _, name := range r.Extends {
			t, err := d.resolve(name)
			if err != nil {
				return nil, err
			}
			e, ok := t.(*vm.Interface)
			if !ok {
				return nil, fmt.Errorf("%s extends non-interface %s", it.Name(), name)
			}
			it.Extends = append(it.Extends, e)
		}
	}
	for i, r := range img.Classes {
		c := classes[i]
		d.scope = c.TypeVars
		if err := d.bounds(r.TypeVars, c.TypeVars); err != nil {
			return nil, err
		}
		for _, name := range r.Interfaces {
			t, err := d.resolve(name)
			if err != nil {
				return nil, err
			}
			it, ok := t.(*vm.Interface)
			if !ok {
				return nil, fmt.Errorf("%s implements non-interface %s", c.Name(), name)
			}
			c.Interfaces = append(c.Interfaces, it)
		}
		if r.Base != "" {
			t, err := d.resolve(r.Base)
			if err != nil {
				return nil, err
			}
			base, ok := t.(*vm.Class)
			if !ok {
				return nil, fmt.Errorf("%s extends non-class %s", c.Name(), r.Base)
			}
			c.Base = base
		}
	}
	for _, i := range baseFirst(img.Classes) {
		c := classes[i]
		d.scope = c.TypeVars
		for _, a := range img.Classes[i].Attributes {
			t, err := d.resolve(a.Type)
			if err != nil {
				return nil, err
			}
			c.AddAttribute(a.Name, t, nil)
		}
	}

	type pending struct {
		method *vm.Method
		body   *programRec
		scope  []*vm.TypeVariable
	}
	var bodies []pending
	for i, r := range img.Interfaces {
		it := ifaces[i]
		d.scope = it.TypeVars
		for _, mr := range r.Methods {
			m, err := d.signature(mr)
			if err != nil {
				return nil, err
			}
			it.AddMethod(m)
		}
	}
	for i, r := range img.Classes {
		c := classes[i]
		d.scope = c.TypeVars
		for _, mr := range r.Methods {
			m, err := d.signature(mr)
			if err != nil {
				return nil, err
			}
			c.AddMethod(m)
			if mr.Body != nil {
				bodies = append(bodies, pending{m, mr.Body, c.TypeVars})
			}
		}
	}
	for _, b := range bodies {
		d.scope = b.scope
		p, err := d.program(b.body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.method.QualifiedName(), err)
		}
		b.method.SetBody(p)
	}

	if img.Main != nil {
		d.scope = nil
		p, err := d.program(img.Main)
		if err != nil {
			return nil, fmt.Errorf("main: %w", err)
		}
		res.Main = &vm.Method{Name: "main", IsStatic: true, Body: p}
	}
	res.Interfaces, res.Classes = ifaces, classes
	return res, nil
}

func newTypeVars(recs []typeVarRec) []*vm.TypeVariable {
	var out []*vm.TypeVariable
	for _, r := range recs {
		out = append(out, vm.NewTypeVariable(r.Name))
	}
	return out
}

func (d *decoder) bounds(recs []typeVarRec, vars []*vm.TypeVariable) error {
	for i, r := range recs {
		if r.Bound == "" {
			continue
		}
		t, err := d.resolve(r.Bound)
		if err != nil {
			return err
		}
		vars[i].Narrow(t)
	}
	return nil
}

// baseFirst orders class records so every class follows the image classes
// it extends.
func baseFirst(recs []classRec) []int {
	index := make(map[string]int, len(recs))
	for i, r := range recs {
		index[r.Name] = i
	}
	done := make([]bool, len(recs))
	var out []int
	var visit func(i int)
	visit = func(i int) {
		if done[i] {
			return
		}
		done[i] = true
		if base, _, err := vm.ParseTypeName(recs[i].Base); err == nil {
			if j, ok := index[base]; ok {
				visit(j)
			}
		}
		out = append(out, i)
	}
	for i := range recs {
		visit(i)
	}
	return out
}

func (d *decoder) signature(r methodRec) (*vm.Method, error) {
	m := &vm.Method{
		Name:          r.Name,
		IsStatic:      r.Static,
		IsAbstract:    r.Abstract,
		IsConstructor: r.Constructor,
	}
	var err error
	if m.ReturnType, err = d.resolve(r.Return); err != nil {
		return nil, err
	}
	for _, p := range r.Params {
		t, err := d.resolve(p.Type)
		if err != nil {
			return nil, err
		}
		m.Params = append(m.Params, vm.Param{Name: p.Name, Type: t, Final: p.Final})
	}
	return m, nil
}

func (d *decoder) program(r *programRec) (*vm.Program, error) {
	code := make([]vm.Instruction, len(r.Code))
	for i, ir := range r.Code {
		ins := vm.Instruction{
			Op:       vm.Opcode(ir.Op),
			Operand:  ir.Operand,
			Operator: ir.Operator,
			Pos:      vm.SourceLoc{Line: ir.Line, Column: ir.Column},
		}
		var err error
		if ins.Type, err = d.resolve(ir.Type); err != nil {
			return nil, err
		}
		if ir.Const != nil {
			ins.Const = decodeConst(ir.Const)
		}
		if ir.Class != "" {
			t, err := d.resolve(ir.Class)
			if err != nil {
				return nil, err
			}
			c, ok := t.(*vm.Class)
			if !ok {
				return nil, fmt.Errorf("instruction %d: %s is not a class", i, ir.Class)
			}
			ins.Class = c
		}
		if ir.Sig != "" {
			if ins.Method, err = d.method(ir.Owner, ir.Sig); err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
		}
		code[i] = ins
	}
	p := vm.NewProgram(r.Name, code, r.NumParams, r.Locals)
	if id, err := uuid.FromBytes(r.ID); err == nil {
		p.ID = id
	}
	return p, nil
}

// method finds a method by its owner's name and its signature.
func (d *decoder) method(owner, sig string) (*vm.Method, error) {
	switch t := d.types.Lookup(owner).(type) {
	case *vm.Class:
		if m := t.MethodBySignature(sig); m != nil {
			return m, nil
		}
	case *vm.Interface:
		for _, m := range t.Methods() {
			if m.Signature() == sig {
				return m, nil
			}
		}
	default:
		return nil, &vm.UnknownTypeError{Name: owner}
	}
	return nil, fmt.Errorf("%s has no method %s", owner, sig)
}

func decodeConst(c *constRec) vm.Value {
	switch vm.ValueKind(c.Kind) {
	case vm.KindInt:
		return vm.IntValue(c.Int)
	case vm.KindChar:
		return vm.CharValue(rune(c.Int))
	case vm.KindBool:
		return vm.BoolValue(c.Int != 0)
	case vm.KindFloat:
		return vm.FloatValue(c.Float)
	case vm.KindString:
		return vm.StringValue(c.Str)
	}
	return vm.Null
}
