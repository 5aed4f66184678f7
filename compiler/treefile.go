package compiler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Tree files: YAML interchange format written by the external parser
// ---------------------------------------------------------------------------
//
// A tree file is a mapping with the optional keys interfaces, classes and
// main. Statements and expressions are single-key mappings whose key names
// the node kind:
//
//	main:
//	  - local: {type: int, name: x, init: {int: 12}}
//	  - println: {binary: {op: "+", left: {id: x}, right: {int: 17}}}
//
// Node positions are taken from the YAML source.

// TreeError reports a malformed tree file.
type TreeError struct {
	Pos Position
	Msg string
}

func (e *TreeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// LoadTree reads and decodes a tree file.
func LoadTree(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	u, err := DecodeYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return u, nil
}

// DecodeYAML decodes a tree file. The first structural error is returned.
func DecodeYAML(data []byte) (*Unit, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	d := &treeDecoder{}
	u := &Unit{}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		top := d.fields(doc.Content[0], "interfaces", "classes", "main")
		for _, key := range []string{"interfaces", "classes", "main"} {
			f, ok := top[key]
			if !ok {
				continue
			}
			switch key {
			case "interfaces":
				for _, n := range d.list(f.value) {
					u.Interfaces = append(u.Interfaces, d.interfaceDecl(n))
				}
			case "classes":
				for _, n := range d.list(f.value) {
					u.Classes = append(u.Classes, d.classDecl(n))
				}
			case "main":
				u.Main = d.stmts(f.value)
			}
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return u, nil
}

type treeDecoder struct {
	err error
}

type field struct {
	key, value *yaml.Node
}

func at(n *yaml.Node) Position {
	if n == nil {
		return Position{}
	}
	return Position{Line: n.Line, Column: n.Column}
}

func (d *treeDecoder) fail(n *yaml.Node, format string, args ...any) {
	if d.err == nil {
		d.err = &TreeError{Pos: at(n), Msg: fmt.Sprintf(format, args...)}
	}
}

// fields returns the entries of a mapping, rejecting keys not in allowed.
func (d *treeDecoder) fields(n *yaml.Node, allowed ...string) map[string]field {
	out := make(map[string]field)
	if n == nil || n.Kind != yaml.MappingNode {
		d.fail(n, "expected a mapping")
		return out
	}
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if !ok[k.Value] {
			d.fail(k, "unexpected key %q", k.Value)
			continue
		}
		out[k.Value] = field{k, v}
	}
	return out
}

// single splits a one-key mapping into its kind and payload.
func (d *treeDecoder) single(n *yaml.Node) (string, *yaml.Node, *yaml.Node) {
	if n == nil || n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		d.fail(n, "expected a single-key mapping")
		return "", nil, nil
	}
	return n.Content[0].Value, n.Content[0], n.Content[1]
}

func (d *treeDecoder) list(n *yaml.Node) []*yaml.Node {
	if n == nil || isNull(n) {
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		d.fail(n, "expected a list")
		return nil
	}
	return n.Content
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

func (d *treeDecoder) str(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode {
		d.fail(n, "expected a scalar")
		return ""
	}
	return n.Value
}

func (d *treeDecoder) boolean(f map[string]field, key string) bool {
	v, ok := f[key]
	if !ok {
		return false
	}
	var b bool
	if err := v.value.Decode(&b); err != nil {
		d.fail(v.value, "%s: expected true or false", key)
	}
	return b
}

func (d *treeDecoder) typeRef(n *yaml.Node) TypeRef {
	return TypeRef{At: at(n), Name: d.str(n)}
}

func (d *treeDecoder) optTypeRef(f map[string]field, key string) *TypeRef {
	v, ok := f[key]
	if !ok || isNull(v.value) {
		return nil
	}
	t := d.typeRef(v.value)
	return &t
}

func (d *treeDecoder) typeRefs(n *yaml.Node) []TypeRef {
	var out []TypeRef
	for _, e := range d.list(n) {
		out = append(out, d.typeRef(e))
	}
	return out
}

func (d *treeDecoder) required(f map[string]field, key string, n *yaml.Node) *yaml.Node {
	v, ok := f[key]
	if !ok {
		d.fail(n, "missing %s", key)
		return nil
	}
	return v.value
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (d *treeDecoder) typeParams(n *yaml.Node) []TypeParam {
	var out []TypeParam
	for _, e := range d.list(n) {
		if e.Kind == yaml.ScalarNode {
			out = append(out, TypeParam{At: at(e), Name: e.Value})
			continue
		}
		f := d.fields(e, "name", "bound")
		out = append(out, TypeParam{
			At:    at(e),
			Name:  d.str(d.required(f, "name", e)),
			Bound: d.optTypeRef(f, "bound"),
		})
	}
	return out
}

func (d *treeDecoder) methods(n *yaml.Node) []MethodDecl {
	var out []MethodDecl
	for _, e := range d.list(n) {
		f := d.fields(e, "name", "params", "returns", "static", "abstract", "constructor", "body")
		m := MethodDecl{
			At:          at(e),
			Name:        d.str(d.required(f, "name", e)),
			ReturnType:  d.optTypeRef(f, "returns"),
			Static:      d.boolean(f, "static"),
			Abstract:    d.boolean(f, "abstract"),
			Constructor: d.boolean(f, "constructor"),
		}
		if p, ok := f["params"]; ok {
			for _, pn := range d.list(p.value) {
				pf := d.fields(pn, "name", "type", "final")
				m.Params = append(m.Params, ParamDecl{
					At:    at(pn),
					Name:  d.str(d.required(pf, "name", pn)),
					Type:  d.typeRef(d.required(pf, "type", pn)),
					Final: d.boolean(pf, "final"),
				})
			}
		}
		if b, ok := f["body"]; ok {
			m.Body = &Block{At: at(b.key), Stmts: d.stmts(b.value)}
		}
		out = append(out, m)
	}
	return out
}

func (d *treeDecoder) interfaceDecl(n *yaml.Node) InterfaceDecl {
	f := d.fields(n, "name", "typeParams", "extends", "methods")
	decl := InterfaceDecl{At: at(n), Name: d.str(d.required(f, "name", n))}
	if v, ok := f["typeParams"]; ok {
		decl.TypeParams = d.typeParams(v.value)
	}
	if v, ok := f["extends"]; ok {
		decl.Extends = d.typeRefs(v.value)
	}
	if v, ok := f["methods"]; ok {
		decl.Methods = d.methods(v.value)
	}
	return decl
}

func (d *treeDecoder) classDecl(n *yaml.Node) ClassDecl {
	f := d.fields(n, "name", "typeParams", "extends", "implements", "abstract", "attributes", "methods")
	decl := ClassDecl{
		At:       at(n),
		Name:     d.str(d.required(f, "name", n)),
		Extends:  d.optTypeRef(f, "extends"),
		Abstract: d.boolean(f, "abstract"),
	}
	if v, ok := f["typeParams"]; ok {
		decl.TypeParams = d.typeParams(v.value)
	}
	if v, ok := f["implements"]; ok {
		decl.Implements = d.typeRefs(v.value)
	}
	if v, ok := f["attributes"]; ok {
		for _, an := range d.list(v.value) {
			af := d.fields(an, "name", "type")
			decl.Attributes = append(decl.Attributes, AttributeDecl{
				At:   at(an),
				Name: d.str(d.required(af, "name", an)),
				Type: d.typeRef(d.required(af, "type", an)),
			})
		}
	}
	if v, ok := f["methods"]; ok {
		decl.Methods = d.methods(v.value)
	}
	return decl
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (d *treeDecoder) stmts(n *yaml.Node) []Stmt {
	var out []Stmt
	for _, e := range d.list(n) {
		if s := d.stmt(e); s != nil {
			out = append(out, s)
		}
	}
	return out
}

// body accepts either one statement or a list, which becomes a block.
func (d *treeDecoder) body(n *yaml.Node) Stmt {
	if n == nil || isNull(n) {
		return nil
	}
	if n.Kind == yaml.SequenceNode {
		return &Block{At: at(n), Stmts: d.stmts(n)}
	}
	return d.stmt(n)
}

func (d *treeDecoder) stmt(n *yaml.Node) Stmt {
	kind, key, v := d.single(n)
	pos := at(key)
	switch kind {
	case "":
		return nil
	case "expr":
		return &ExprStmt{X: d.expr(v)}
	case "local":
		f := d.fields(v, "type", "name", "init")
		s := &LocalVarDecl{
			At:   pos,
			Type: d.typeRef(d.required(f, "type", v)),
			Name: d.str(d.required(f, "name", v)),
		}
		if init, ok := f["init"]; ok {
			s.Init = d.expr(init.value)
		}
		return s
	case "block":
		return &Block{At: pos, Stmts: d.stmts(v)}
	case "if":
		f := d.fields(v, "cond", "then", "else")
		s := &If{At: pos, Cond: d.expr(d.required(f, "cond", v)), Then: d.body(d.required(f, "then", v))}
		if e, ok := f["else"]; ok {
			s.Else = d.body(e.value)
		}
		return s
	case "while":
		f := d.fields(v, "cond", "body")
		return &While{At: pos, Cond: d.expr(d.required(f, "cond", v)), Body: d.body(d.required(f, "body", v))}
	case "for":
		f := d.fields(v, "init", "cond", "update", "body")
		s := &For{At: pos, Body: d.body(d.required(f, "body", v))}
		if e, ok := f["init"]; ok {
			s.Init = d.stmt(e.value)
		}
		if e, ok := f["cond"]; ok {
			s.Cond = d.expr(e.value)
		}
		if e, ok := f["update"]; ok {
			s.Update = d.expr(e.value)
		}
		return s
	case "return":
		s := &Return{At: pos}
		if !isNull(v) {
			s.Value = d.expr(v)
		}
		return s
	case "print", "println":
		s := &Print{At: pos, Newline: kind == "println"}
		if !isNull(v) {
			s.Value = d.expr(v)
		}
		return s
	}
	d.fail(key, "unknown statement %q", kind)
	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (d *treeDecoder) exprs(n *yaml.Node) []Expr {
	var out []Expr
	for _, e := range d.list(n) {
		out = append(out, d.expr(e))
	}
	return out
}

func (d *treeDecoder) expr(n *yaml.Node) Expr {
	kind, key, v := d.single(n)
	pos := at(key)
	switch kind {
	case "":
		return nil
	case "int":
		var i int64
		if err := v.Decode(&i); err != nil {
			d.fail(v, "invalid int literal %q", v.Value)
		}
		return &Constant{At: pos, Kind: TokenInt, Value: i}
	case "float":
		var f float64
		if err := v.Decode(&f); err != nil {
			d.fail(v, "invalid float literal %q", v.Value)
		}
		return &Constant{At: pos, Kind: TokenFloat, Value: f}
	case "bool":
		var b bool
		if err := v.Decode(&b); err != nil {
			d.fail(v, "invalid boolean literal %q", v.Value)
		}
		return &Constant{At: pos, Kind: TokenBoolean, Value: b}
	case "char":
		r := []rune(d.str(v))
		if len(r) != 1 {
			d.fail(v, "char literal must be one character")
			return &Constant{At: pos, Kind: TokenChar, Value: rune(0)}
		}
		return &Constant{At: pos, Kind: TokenChar, Value: r[0]}
	case "string":
		return &Constant{At: pos, Kind: TokenString, Value: d.str(v)}
	case "null":
		return &Constant{At: pos, Kind: TokenNull}
	case "id":
		return &Identifier{At: pos, Name: d.str(v)}
	case "this":
		return &This{At: pos}
	case "binary":
		f := d.fields(v, "op", "left", "right")
		op := d.required(f, "op", v)
		return &BinaryOp{
			At:    pos,
			OpAt:  at(op),
			Op:    d.str(op),
			Left:  d.expr(d.required(f, "left", v)),
			Right: d.expr(d.required(f, "right", v)),
		}
	case "ternary":
		f := d.fields(v, "cond", "then", "else")
		then := d.required(f, "then", v)
		return &BinaryOp{
			At:   pos,
			OpAt: pos,
			Op:   "?",
			Left: d.expr(d.required(f, "cond", v)),
			Right: &BinaryOp{
				At:    at(then),
				OpAt:  at(f["else"].key),
				Op:    ":",
				Left:  d.expr(then),
				Right: d.expr(d.required(f, "else", v)),
			},
		}
	case "unary":
		f := d.fields(v, "op", "operand", "postfix")
		return &UnaryOp{
			At:      pos,
			Op:      d.str(d.required(f, "op", v)),
			Operand: d.expr(d.required(f, "operand", v)),
			Postfix: d.boolean(f, "postfix"),
		}
	case "call":
		f := d.fields(v, "name", "on", "args")
		c := &MethodCall{At: pos, Name: d.str(d.required(f, "name", v))}
		if on, ok := f["on"]; ok {
			c.Object = d.expr(on.value)
		}
		if args, ok := f["args"]; ok {
			c.Args = d.exprs(args.value)
		}
		return c
	case "new":
		f := d.fields(v, "type", "args")
		c := &NewObject{At: pos, Type: d.typeRef(d.required(f, "type", v))}
		if args, ok := f["args"]; ok {
			c.Args = d.exprs(args.value)
		}
		return c
	case "attr":
		f := d.fields(v, "name", "of")
		return &AttributeAccess{
			At:     pos,
			Name:   d.str(d.required(f, "name", v)),
			Object: d.expr(d.required(f, "of", v)),
		}
	case "cast":
		f := d.fields(v, "type", "value")
		return &Cast{
			At:      pos,
			Type:    d.typeRef(d.required(f, "type", v)),
			Operand: d.expr(d.required(f, "value", v)),
		}
	}
	d.fail(key, "unknown expression %q", kind)
	return nil
}
