package compiler

import "github.com/chazu/tutor/vm"

// ---------------------------------------------------------------------------
// AST: program tree produced by the external parser
// ---------------------------------------------------------------------------

// Position is a 1-based source location.
type Position = vm.SourceLoc

// Node is the interface implemented by all tree nodes.
type Node interface {
	Pos() Position
	node() // marker method
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// TypeRef names a type as written, e.g. "List<Vertex>".
type TypeRef struct {
	At   Position
	Name string
}

func (t TypeRef) Pos() Position { return t.At }

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Constant is a literal. Value holds int64, float64, bool, rune, string or
// nil according to Kind.
type Constant struct {
	At    Position
	Kind  TokenKind
	Value any
}

func (n *Constant) Pos() Position { return n.At }
func (n *Constant) node()         {}
func (n *Constant) expr()         {}

// Identifier names a local, a parameter, an attribute of this, or a class
// (as the receiver of a static call).
type Identifier struct {
	At   Position
	Name string
}

func (n *Identifier) Pos() Position { return n.At }
func (n *Identifier) node()         {}
func (n *Identifier) expr()         {}

// This is the receiver.
type This struct {
	At Position
}

func (n *This) Pos() Position { return n.At }
func (n *This) node()         {}
func (n *This) expr()         {}

// BinaryOp covers arithmetic, comparison, logic, assignment (=, +=, ...)
// and the ternary operator, which is represented as Op "?" whose Right is
// a BinaryOp with Op ":".
type BinaryOp struct {
	At    Position
	OpAt  Position // position of the operator token
	Op    string
	Left  Expr
	Right Expr
}

func (n *BinaryOp) Pos() Position { return n.At }
func (n *BinaryOp) node()         {}
func (n *BinaryOp) expr()         {}

// IsAssignment reports whether Op stores into Left.
func (n *BinaryOp) IsAssignment() bool {
	return assignmentOps[n.Op]
}

// UnaryOp is -x, +x, !x, ~x, ++x, --x, x++ or x--.
type UnaryOp struct {
	At      Position
	Op      string
	Operand Expr
	Postfix bool
}

func (n *UnaryOp) Pos() Position { return n.At }
func (n *UnaryOp) node()         {}
func (n *UnaryOp) expr()         {}

// MethodCall calls Name on Object; a nil Object means this, or the
// current class for static methods.
type MethodCall struct {
	At     Position
	Object Expr
	Name   string
	Args   []Expr
}

func (n *MethodCall) Pos() Position { return n.At }
func (n *MethodCall) node()         {}
func (n *MethodCall) expr()         {}

// NewObject allocates an instance and runs a constructor.
type NewObject struct {
	At   Position
	Type TypeRef
	Args []Expr
}

func (n *NewObject) Pos() Position { return n.At }
func (n *NewObject) node()         {}
func (n *NewObject) expr()         {}

// AttributeAccess reads or writes Object.Name.
type AttributeAccess struct {
	At     Position
	Object Expr
	Name   string
}

func (n *AttributeAccess) Pos() Position { return n.At }
func (n *AttributeAccess) node()         {}
func (n *AttributeAccess) expr()         {}

// Cast is a manual cast (Type) Operand.
type Cast struct {
	At      Position
	Type    TypeRef
	Operand Expr
}

func (n *Cast) Pos() Position { return n.At }
func (n *Cast) node()         {}
func (n *Cast) expr()         {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// ExprStmt is an expression used as a statement.
type ExprStmt struct {
	X Expr
}

func (n *ExprStmt) Pos() Position { return n.X.Pos() }
func (n *ExprStmt) node()         {}
func (n *ExprStmt) stmt()         {}

// LocalVarDecl declares a local variable with an optional initializer.
type LocalVarDecl struct {
	At   Position
	Type TypeRef
	Name string
	Init Expr
}

func (n *LocalVarDecl) Pos() Position { return n.At }
func (n *LocalVarDecl) node()         {}
func (n *LocalVarDecl) stmt()         {}

// Block is a braced statement list with its own scope.
type Block struct {
	At    Position
	Stmts []Stmt
}

func (n *Block) Pos() Position { return n.At }
func (n *Block) node()         {}
func (n *Block) stmt()         {}

// If is a conditional with an optional else branch.
type If struct {
	At   Position
	Cond Expr
	Then Stmt
	Else Stmt
}

func (n *If) Pos() Position { return n.At }
func (n *If) node()         {}
func (n *If) stmt()         {}

// While is a pre-tested loop.
type While struct {
	At   Position
	Cond Expr
	Body Stmt
}

func (n *While) Pos() Position { return n.At }
func (n *While) node()         {}
func (n *While) stmt()         {}

// For is a C-style loop. Any part may be nil.
type For struct {
	At     Position
	Init   Stmt
	Cond   Expr
	Update Expr
	Body   Stmt
}

func (n *For) Pos() Position { return n.At }
func (n *For) node()         {}
func (n *For) stmt()         {}

// Return leaves the method, with a value unless Value is nil.
type Return struct {
	At    Position
	Value Expr
}

func (n *Return) Pos() Position { return n.At }
func (n *Return) node()         {}
func (n *Return) stmt()         {}

// Print writes a value, followed by a newline for println.
type Print struct {
	At      Position
	Value   Expr
	Newline bool
}

func (n *Print) Pos() Position { return n.At }
func (n *Print) node()         {}
func (n *Print) stmt()         {}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// TypeParam declares a type variable, optionally bounded.
type TypeParam struct {
	At    Position
	Name  string
	Bound *TypeRef
}

// ParamDecl is a formal parameter.
type ParamDecl struct {
	At    Position
	Name  string
	Type  TypeRef
	Final bool
}

// AttributeDecl declares an attribute.
type AttributeDecl struct {
	At   Position
	Name string
	Type TypeRef
}

// MethodDecl declares a method or constructor. Body is nil for abstract
// methods and interface signatures.
type MethodDecl struct {
	At          Position
	Name        string
	Params      []ParamDecl
	ReturnType  *TypeRef // nil for void and constructors
	Static      bool
	Abstract    bool
	Constructor bool
	Body        *Block
}

// ClassDecl declares a class.
type ClassDecl struct {
	At         Position
	Name       string
	TypeParams []TypeParam
	Extends    *TypeRef
	Implements []TypeRef
	Abstract   bool
	Attributes []AttributeDecl
	Methods    []MethodDecl
}

// InterfaceDecl declares an interface.
type InterfaceDecl struct {
	At         Position
	Name       string
	TypeParams []TypeParam
	Extends    []TypeRef
	Methods    []MethodDecl
}

// Unit is one compilation input: declarations plus the main program.
type Unit struct {
	Interfaces []InterfaceDecl
	Classes    []ClassDecl
	Main       []Stmt
}
