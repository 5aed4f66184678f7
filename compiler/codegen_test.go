package compiler

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/chazu/tutor/vm"
)

// generate decodes src and runs the generator on a fresh type table.
func generate(t *testing.T, src string) (*Result, *vm.TypeTable) {
	t.Helper()
	u, err := DecodeYAML([]byte(src))
	if err != nil {
		t.Fatalf("DecodeYAML() error = %v", err)
	}
	types := vm.NewTypeTable()
	return NewGenerator(types).Generate(u), types
}

// runMain compiles src, requires it to be free of errors and returns what
// the main program prints.
func runMain(t *testing.T, src string) string {
	t.Helper()
	res, types := generate(t, src)
	if err := res.Diagnostics.Err(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	checkJumps(t, res)
	in := vm.NewInterpreter(types)
	var out bytes.Buffer
	in.Out = &out
	if _, err := in.Invoke(res.Main, vm.Null); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

// checkJumps verifies every jump of every program lands inside it.
func checkJumps(t *testing.T, res *Result) {
	t.Helper()
	programs := []*vm.Program{res.Main.Program()}
	for _, c := range res.Classes {
		for _, m := range c.Methods() {
			if p := m.Program(); p != nil {
				programs = append(programs, p)
			}
		}
	}
	for _, p := range programs {
		for i, ins := range p.Code() {
			if !ins.Op.IsJump() {
				continue
			}
			if target := i + 1 + ins.Operand; target < 0 || target > p.Len() {
				t.Errorf("%s: jump at %d lands at %d, outside [0, %d]", p.Name, i, target, p.Len())
			}
		}
	}
}

func mainCode(t *testing.T, res *Result) []vm.Instruction {
	t.Helper()
	if res.Main == nil {
		t.Fatal("main program was not generated")
	}
	return res.Main.Program().Code()
}

func countOps(code []vm.Instruction, ops ...vm.Opcode) int {
	n := 0
	for _, ins := range code {
		for _, op := range ops {
			if ins.Op == op {
				n++
			}
		}
	}
	return n
}

func TestExpressionStatementIsPopped(t *testing.T) {
	res, _ := generate(t, `
main:
  - expr:
      binary:
        op: "-"
        left: {binary: {op: "+", left: {int: 12}, right: {int: 17}}}
        right: {int: 7}
`)
	if len(res.Diagnostics) != 0 {
		t.Fatalf("diagnostics = %v", res.Diagnostics)
	}
	code := mainCode(t, res)
	if len(code) != 3 {
		t.Fatalf("code =\n%s", vm.Disassemble(code))
	}
	if code[0].Op != vm.OpPushConst || code[0].Const != vm.IntValue(22) {
		t.Errorf("constant was not folded: %s", code[0])
	}
	if code[1].Op != vm.OpPop {
		t.Errorf("statement value not popped: %s", code[1])
	}
}

func TestExpressionStatementIsPoppedWithoutFolding(t *testing.T) {
	res, _ := generate(t, `
main:
  - local: {type: int, name: a, init: {int: 12}}
  - expr: {binary: {op: "-", left: {binary: {op: "+", left: {id: a}, right: {int: 17}}}, right: {int: 7}}}
`)
	code := mainCode(t, res)
	n := len(code)
	if code[n-1].Op != vm.OpReturn || code[n-2].Op != vm.OpPop || code[n-3].Op != vm.OpBinary {
		t.Errorf("code =\n%s", vm.Disassemble(code))
	}
}

func TestImpossibleAssignmentEmitsNoStore(t *testing.T) {
	res, _ := generate(t, `
classes:
  - name: T
    methods:
      - name: f
        static: true
        params: [{name: x, type: int}, {name: y, type: String}]
        body:
          - expr: {binary: {op: "=", left: {id: x}, right: {id: y}}}
`)
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Severity != SeverityError {
		t.Fatalf("diagnostics = %v, want exactly one error", res.Diagnostics)
	}
	if !strings.Contains(res.Diagnostics[0].Message, "cannot assign String to int") {
		t.Errorf("message = %q", res.Diagnostics[0].Message)
	}
	f := res.Classes[0].Methods()[0]
	code := f.Program().Code()
	if n := countOps(code, vm.OpStoreLocal, vm.OpStoreAttr); n != 0 {
		t.Errorf("found %d stores in\n%s", n, vm.Disassemble(code))
	}
}

func TestAssignmentWidensConstant(t *testing.T) {
	res, _ := generate(t, `
main:
  - local: {type: float, name: f}
  - expr: {binary: {op: "=", left: {id: f}, right: {char: a}}}
`)
	require.Empty(t, res.Diagnostics)
	code := mainCode(t, res)
	var store vm.Instruction
	for i, ins := range code {
		if ins.Op == vm.OpStoreLocal && i > 0 && code[i-1].Op == vm.OpPushConst {
			store = code[i-1]
		}
	}
	if store.Const != vm.FloatValue(97) {
		t.Errorf("stored constant = %v, want 97.0\n%s", store.Const, vm.Disassemble(code))
	}
}

func TestAssignmentInsteadOfEqual(t *testing.T) {
	t.Run("boolean condition warns", func(t *testing.T) {
		res, _ := generate(t, `
main:
  - local: {type: boolean, name: b, init: {bool: false}}
  - if:
      cond: {binary: {op: "=", left: {id: b}, right: {bool: true}}}
      then: {println: {string: "yes"}}
`)
		require.Len(t, res.Diagnostics, 1)
		d := res.Diagnostics[0]
		require.Equal(t, SeverityWarning, d.Severity)
		require.NotNil(t, d.Fix)
		require.Equal(t, "=", d.Fix.Old)
		require.Equal(t, "==", d.Fix.New)
		require.Equal(t, Position{Line: 5, Column: 27}, d.Fix.Pos)
	})

	t.Run("int condition is an error", func(t *testing.T) {
		res, _ := generate(t, `
main:
  - local: {type: int, name: x, init: {int: 0}}
  - while:
      cond: {binary: {op: "=", left: {id: x}, right: {int: 5}}}
      body: []
`)
		var fixes int
		for _, d := range res.Diagnostics.Errors() {
			if d.Fix != nil {
				fixes++
			}
		}
		require.Equal(t, 1, fixes)
		require.True(t, res.Diagnostics.HasErrors())
	})

	t.Run("negated assignment", func(t *testing.T) {
		res, _ := generate(t, `
main:
  - local: {type: int, name: x, init: {int: 0}}
  - expr: {unary: {op: "!", operand: {binary: {op: "=", left: {id: x}, right: {int: 1}}}}}
`)
		var fix *QuickFix
		for _, d := range res.Diagnostics {
			if d.Fix != nil {
				fix = d.Fix
				require.Equal(t, SeverityError, d.Severity)
			}
		}
		require.NotNil(t, fix)
		require.Equal(t, "==", fix.New)
	})
}

func TestResolutionErrorAbortsOnlyItsUnit(t *testing.T) {
	res, _ := generate(t, `
classes:
  - name: A
    methods:
      - name: bad
        body:
          - expr: {binary: {op: "=", left: {id: missing}, right: {int: 1}}}
          - println: {string: "unreachable"}
      - name: good
        returns: int
        body: [{return: {int: 1}}]
main:
  - println: {int: 2}
`)
	errs := res.Diagnostics.Errors()
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "unknown variable missing") {
		t.Fatalf("errors = %v", errs)
	}
	a := res.Classes[0]
	if m := a.MethodBySignature("bad()"); m.Body != nil {
		t.Error("aborted method should have no body")
	}
	if m := a.MethodBySignature("good()"); m.Program() == nil {
		t.Error("good() should still be compiled")
	}
	if res.Main == nil {
		t.Error("main should still be compiled")
	}
}

func TestResolutionErrorInMain(t *testing.T) {
	res, _ := generate(t, `
classes:
  - name: A
    methods:
      - name: ok
        body: []
main:
  - local: {type: Nope, name: x}
  - println: {int: 1}
`)
	if res.Main != nil {
		t.Error("main should be abandoned")
	}
	if res.Classes[0].MethodBySignature("ok()").Program() == nil {
		t.Error("class bodies should be unaffected")
	}
	err := res.Diagnostics.Err()
	var unknown Diagnostic
	if !errors.As(err, &unknown) || !strings.Contains(unknown.Message, "Nope") {
		t.Errorf("Err() = %v", err)
	}
}

func TestUseBeforeInitialization(t *testing.T) {
	res, types := generate(t, `
main:
  - local: {type: int, name: x}
  - println: {id: x}
`)
	if res.Diagnostics.HasErrors() || len(res.Diagnostics) != 1 || res.Diagnostics[0].Severity != SeverityInfo {
		t.Fatalf("diagnostics = %v, want one info", res.Diagnostics)
	}
	in := vm.NewInterpreter(types)
	var out bytes.Buffer
	in.Out = &out
	if _, err := in.Invoke(res.Main, vm.Null); err != nil {
		t.Fatal(err)
	}
	if out.String() != "0\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestDeclarationErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"duplicate class", `
classes:
  - name: A
  - name: A
`, "already declared"},
		{"missing interface method", `
interfaces:
  - name: Shape
    methods: [{name: area, returns: int}]
classes:
  - name: Square
    implements: [Shape]
`, "must implement Shape.area()"},
		{"cyclic inheritance", `
classes:
  - name: A
    extends: B
  - name: B
    extends: A
`, "cyclic inheritance"},
		{"abstract method in concrete class", `
classes:
  - name: A
    methods: [{name: f, abstract: true}]
`, "must be abstract"},
		{"missing return", `
classes:
  - name: A
    methods:
      - name: f
        returns: int
        body: [{println: {int: 1}}]
`, "must return a value"},
		{"duplicate local", `
main:
  - local: {type: int, name: x}
  - block:
      - local: {type: int, name: x}
`, "already declared"},
		{"print void", `
classes:
  - name: A
    methods:
      - name: f
        static: true
        body: []
main:
  - println: {call: {name: f, on: {id: A}}}
`, "void"},
		{"this in main", `
main:
  - println: {this: ~}
`, "static context"},
		{"abstract instantiation", `
classes:
  - name: A
    abstract: true
main:
  - expr: {new: {type: A}}
`, "abstract"},
		{"bad operand", `
main:
  - println: {binary: {op: "-", left: {string: "a"}, right: {int: 1}}}
`, "operator - is not defined for String and int"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := generate(t, tt.src)
			err := res.Diagnostics.Err()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Err() = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRunLoopsAndLocals(t *testing.T) {
	out := runMain(t, `
main:
  - local: {type: int, name: sum, init: {int: 0}}
  - for:
      init: {local: {type: int, name: i, init: {int: 1}}}
      cond: {binary: {op: "<=", left: {id: i}, right: {int: 10}}}
      update: {unary: {op: "++", operand: {id: i}, postfix: true}}
      body:
        - expr: {binary: {op: "+=", left: {id: sum}, right: {id: i}}}
  - println: {id: sum}
  - local: {type: int, name: n, init: {int: 3}}
  - while:
      cond: {binary: {op: ">", left: {id: n}, right: {int: 0}}}
      body:
        - print: {id: n}
        - expr: {unary: {op: "--", operand: {id: n}}}
  - println: ~
`)
	if out != "55\n321\n" {
		t.Errorf("output = %q", out)
	}
}

func TestRunExpressions(t *testing.T) {
	out := runMain(t, `
main:
  - local: {type: int, name: zero, init: {int: 0}}
  - println:
      binary:
        op: "&&"
        left: {binary: {op: "!=", left: {id: zero}, right: {int: 0}}}
        right: {binary: {op: ">", left: {binary: {op: "/", left: {int: 10}, right: {id: zero}}}, right: {int: 1}}}
  - println: {ternary: {cond: {binary: {op: "==", left: {id: zero}, right: {int: 0}}}, then: {string: "zero"}, else: {string: "other"}}}
  - local: {type: int, name: i, init: {int: 5}}
  - println: {unary: {op: "++", operand: {id: i}, postfix: true}}
  - println: {id: i}
  - println: {unary: {op: "--", operand: {id: i}}}
  - local: {type: char, name: c, init: {char: a}}
  - local: {type: int, name: code, init: {binary: {op: "+", left: {id: c}, right: {int: 1}}}}
  - println: {id: code}
  - println: {cast: {type: char, value: {id: code}}}
  - local: {type: float, name: f, init: {binary: {op: "/", left: {int: 7}, right: {int: 2}}}}
  - println: {id: f}
  - println: {binary: {op: "/", left: {float: 7.0}, right: {id: i}}}
  - println: {cast: {type: int, value: {float: 3.7}}}
  - println: {binary: {op: "+", left: {string: "n="}, right: {id: i}}}
`)
	want := "false\nzero\n5\n6\n5\n98\nb\n3.0\n1.4\n3\nn=5\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestRunClasses(t *testing.T) {
	out := runMain(t, `
classes:
  - name: Counter
    attributes: [{name: count, type: int}]
    methods:
      - name: Counter
        constructor: true
        params: [{name: start, type: int}]
        body:
          - expr: {binary: {op: "=", left: {id: count}, right: {id: start}}}
      - name: next
        returns: int
        body:
          - return: {unary: {op: "++", operand: {id: count}}}
main:
  - local: {type: Counter, name: c, init: {new: {type: Counter, args: [{int: 5}]}}}
  - expr: {call: {name: next, on: {id: c}}}
  - println: {call: {name: next, on: {id: c}}}
  - expr: {binary: {op: "*=", left: {attr: {name: count, of: {id: c}}}, right: {int: 2}}}
  - println: {attr: {name: count, of: {id: c}}}
`)
	if out != "7\n14\n" {
		t.Errorf("output = %q", out)
	}
}

func TestRunVirtualDispatch(t *testing.T) {
	out := runMain(t, `
classes:
  - name: Animal
    methods:
      - name: sound
        returns: String
        body: [{return: {string: "..."}}]
      - name: speak
        returns: String
        body: [{return: {binary: {op: "+", left: {string: "I say "}, right: {call: {name: sound}}}}}]
  - name: Dog
    extends: Animal
    methods:
      - name: sound
        returns: String
        body: [{return: {string: "woof"}}]
main:
  - local: {type: Animal, name: a, init: {new: {type: Dog}}}
  - println: {call: {name: speak, on: {id: a}}}
  - local: {type: Animal, name: b, init: {new: {type: Animal}}}
  - println: {call: {name: speak, on: {id: b}}}
`)
	if out != "I say woof\nI say ...\n" {
		t.Errorf("output = %q", out)
	}
}

func TestRunInheritedConstructorAndStatics(t *testing.T) {
	out := runMain(t, `
classes:
  - name: Base
    attributes: [{name: tag, type: String}]
    methods:
      - name: Base
        constructor: true
        body: [{expr: {binary: {op: "=", left: {id: tag}, right: {string: "base"}}}}]
  - name: Derived
    extends: Base
    attributes: [{name: extra, type: int}]
  - name: MathUtil
    methods:
      - name: square
        static: true
        params: [{name: x, type: int}]
        returns: int
        body: [{return: {binary: {op: "*", left: {id: x}, right: {id: x}}}}]
main:
  - local: {type: Derived, name: d, init: {new: {type: Derived}}}
  - println: {attr: {name: tag, of: {id: d}}}
  - println: {attr: {name: extra, of: {id: d}}}
  - println: {call: {name: square, on: {id: MathUtil}, args: [{int: 7}]}}
`)
	if out != "base\n0\n49\n" {
		t.Errorf("output = %q", out)
	}
}

func TestRunInterfacesAndGenerics(t *testing.T) {
	out := runMain(t, `
interfaces:
  - name: Shape
    methods: [{name: area, returns: int}]
classes:
  - name: Square
    implements: [Shape]
    attributes: [{name: side, type: int}]
    methods:
      - name: Square
        constructor: true
        params: [{name: s, type: int}]
        body: [{expr: {binary: {op: "=", left: {id: side}, right: {id: s}}}}]
      - name: area
        returns: int
        body: [{return: {binary: {op: "*", left: {id: side}, right: {id: side}}}}]
  - name: Box
    typeParams: [T]
    attributes: [{name: item, type: T}]
    methods:
      - name: put
        params: [{name: x, type: T}]
        body: [{expr: {binary: {op: "=", left: {id: item}, right: {id: x}}}}]
      - name: get
        returns: T
        body: [{return: {id: item}}]
main:
  - local: {type: Shape, name: sh, init: {new: {type: Square, args: [{int: 3}]}}}
  - println: {call: {name: area, on: {id: sh}}}
  - local: {type: Box<String>, name: b, init: {new: {type: Box<String>}}}
  - expr: {call: {name: put, on: {id: b}, args: [{string: "hi"}]}}
  - local: {type: String, name: s, init: {call: {name: get, on: {id: b}}}}
  - println: {id: s}
`)
	if out != "9\nhi\n" {
		t.Errorf("output = %q", out)
	}
}

func TestRuntimeFaultPosition(t *testing.T) {
	res, types := generate(t, `
main:
  - local: {type: int, name: zero, init: {int: 0}}
  - println: {binary: {op: "/", left: {int: 1}, right: {id: zero}}}
`)
	require.False(t, res.Diagnostics.HasErrors())
	in := vm.NewInterpreter(types)
	_, err := in.Invoke(res.Main, vm.Null)
	var f *vm.Fault
	require.ErrorAs(t, err, &f)
	require.Equal(t, vm.FaultDivisionByZero, f.Kind)
	require.Equal(t, 4, f.Pos.Line)
}

// arith is a random integer expression used to compare constant folding
// with run-time evaluation.
type arith struct {
	op   string
	l, r *arith
	n    int64
}

func drawArith(t *rapid.T, depth int) *arith {
	if depth == 0 || rapid.Bool().Draw(t, "leaf") {
		return &arith{n: rapid.Int64Range(-100, 100).Draw(t, "n")}
	}
	return &arith{
		op: rapid.SampledFrom([]string{"+", "-", "*", "&", "|", "^"}).Draw(t, "op"),
		l:  drawArith(t, depth-1),
		r:  drawArith(t, depth-1),
	}
}

func (a *arith) eval() int64 {
	if a.op == "" {
		return a.n
	}
	x, y := a.l.eval(), a.r.eval()
	switch a.op {
	case "+":
		return x + y
	case "-":
		return x - y
	case "*":
		return x * y
	case "&":
		return x & y
	case "|":
		return x | y
	}
	return x ^ y
}

// tree converts a to an expression. With locals, every leaf becomes a
// variable initialized to its value so nothing can be folded.
func (a *arith) tree(locals *[]Stmt) Expr {
	if a.op == "" {
		c := &Constant{Kind: TokenInt, Value: a.n}
		if locals == nil {
			return c
		}
		name := "v" + strconv.Itoa(len(*locals))
		*locals = append(*locals, &LocalVarDecl{Type: TypeRef{Name: "int"}, Name: name, Init: c})
		return &Identifier{Name: name}
	}
	return &BinaryOp{Op: a.op, Left: a.l.tree(locals), Right: a.r.tree(locals)}
}

func TestFoldingMatchesEvaluation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := drawArith(t, 4)
		want := strconv.FormatInt(a.eval(), 10) + "\n"

		var locals []Stmt
		value := a.tree(&locals)
		folded := &Unit{Main: []Stmt{&Print{Newline: true, Value: a.tree(nil)}}}
		unfolded := &Unit{Main: append(locals, &Print{Newline: true, Value: value})}

		for _, u := range []*Unit{folded, unfolded} {
			types := vm.NewTypeTable()
			res := NewGenerator(types).Generate(u)
			require.Empty(t, res.Diagnostics)
			in := vm.NewInterpreter(types)
			var out bytes.Buffer
			in.Out = &out
			_, err := in.Invoke(res.Main, vm.Null)
			require.NoError(t, err)
			require.Equal(t, want, out.String())
		}
	})
}

func TestInfiniteLoopNeedsNoTrailingReturn(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"while true", `[{while: {cond: {bool: true}, body: [{return: {int: 1}}]}}]`, true},
		{"for without condition", `[{for: {body: [{return: {int: 2}}]}}]`, true},
		{"for on true", `[{for: {cond: {bool: true}, body: [{return: {int: 3}}]}}]`, true},
		{"while false", `[{while: {cond: {bool: false}, body: [{return: {int: 4}}]}}]`, false},
		{"while on a parameter", `[{while: {cond: {id: p}, body: [{return: {int: 5}}]}}]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := generate(t, `
classes:
  - name: A
    methods:
      - name: f
        static: true
        returns: int
        params: [{name: p, type: boolean}]
        body: `+tt.body+`
`)
			err := res.Diagnostics.Err()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, "must return a value")
		})
	}
}

func TestRecomputedAttributeIsReadOnly(t *testing.T) {
	types := vm.NewTypeTable()
	box := vm.NewClass("Box", nil)
	box.AddAttribute("size", vm.Int, func(h *vm.Heap, owner vm.Handle, cell *vm.AttributeCell) {
		cell.Value = vm.IntValue(3)
	})
	box.AddAttribute("label", vm.String, nil)
	require.NoError(t, types.Declare(box))

	tests := []struct {
		name string
		stmt string
		want string
	}{
		{"assign", `{expr: {binary: {op: "=", left: {attr: {name: size, of: {id: b}}}, right: {int: 7}}}}`, "read-only attribute size"},
		{"compound", `{expr: {binary: {op: "+=", left: {attr: {name: size, of: {id: b}}}, right: {int: 1}}}}`, "read-only attribute size"},
		{"increment", `{expr: {unary: {op: "++", operand: {attr: {name: size, of: {id: b}}}}}}`, "read-only attribute size"},
		{"plain attribute", `{expr: {binary: {op: "=", left: {attr: {name: label, of: {id: b}}}, right: {string: x}}}}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := DecodeYAML([]byte("main:\n  - local: {type: Box, name: b}\n  - " + tt.stmt + "\n"))
			require.NoError(t, err)
			res := NewGenerator(types).Generate(u)
			err = res.Diagnostics.Err()
			if tt.want == "" {
				require.NoError(t, err)
				require.Equal(t, 1, countOps(mainCode(t, res), vm.OpStoreAttr))
				return
			}
			require.ErrorContains(t, err, tt.want)
			require.Zero(t, countOps(mainCode(t, res), vm.OpStoreAttr))
		})
	}
}
