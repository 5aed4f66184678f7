package hash

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/tutor/compiler"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of program trees.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (int64=8B, uint32=4B)
//   - Floats: IEEE 754 big-endian 8B
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Positions: line and column as uint32
//   - Lists: uint32 count, then the elements
//   - Child nodes: serialized inline (flat); absent children as TagNone
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of a program
// tree. The returned bytes are suitable for hashing with SHA-256.
func Serialize(u *compiler.Unit) []byte {
	s := &serializer{buf: make([]byte, 0, 512)}
	s.writeByte(HashVersion)
	s.writeByte(TagUnit)
	s.writeUint32(uint32(len(u.Interfaces)))
	for i := range u.Interfaces {
		s.serializeInterface(&u.Interfaces[i])
	}
	s.writeUint32(uint32(len(u.Classes)))
	for i := range u.Classes {
		s.serializeClass(&u.Classes[i])
	}
	s.serializeStmts(u.Main)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writePos(p compiler.Position) {
	s.writeUint32(uint32(p.Line))
	s.writeUint32(uint32(p.Column))
}

func (s *serializer) writeTypeRef(t compiler.TypeRef) {
	s.writeByte(TagTypeRef)
	s.writePos(t.At)
	s.writeString(t.Name)
}

func (s *serializer) writeOptTypeRef(t *compiler.TypeRef) {
	if t == nil {
		s.writeByte(TagNone)
		return
	}
	s.writeTypeRef(*t)
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (s *serializer) serializeTypeParams(ps []compiler.TypeParam) {
	s.writeUint32(uint32(len(ps)))
	for _, p := range ps {
		s.writeByte(TagTypeParam)
		s.writePos(p.At)
		s.writeString(p.Name)
		s.writeOptTypeRef(p.Bound)
	}
}

func (s *serializer) serializeMethods(ms []compiler.MethodDecl) {
	s.writeUint32(uint32(len(ms)))
	for i := range ms {
		m := &ms[i]
		s.writeByte(TagMethod)
		s.writePos(m.At)
		s.writeString(m.Name)
		s.writeBool(m.Static)
		s.writeBool(m.Abstract)
		s.writeBool(m.Constructor)
		s.writeOptTypeRef(m.ReturnType)
		s.writeUint32(uint32(len(m.Params)))
		for _, p := range m.Params {
			s.writeByte(TagParam)
			s.writePos(p.At)
			s.writeString(p.Name)
			s.writeTypeRef(p.Type)
			s.writeBool(p.Final)
		}
		if m.Body == nil {
			s.writeByte(TagNone)
		} else {
			s.serializeStmt(m.Body)
		}
	}
}

func (s *serializer) serializeInterface(d *compiler.InterfaceDecl) {
	s.writeByte(TagInterface)
	s.writePos(d.At)
	s.writeString(d.Name)
	s.serializeTypeParams(d.TypeParams)
	s.writeUint32(uint32(len(d.Extends)))
	for _, e := range d.Extends {
		s.writeTypeRef(e)
	}
	s.serializeMethods(d.Methods)
}

func (s *serializer) serializeClass(d *compiler.ClassDecl) {
	s.writeByte(TagClass)
	s.writePos(d.At)
	s.writeString(d.Name)
	s.writeBool(d.Abstract)
	s.serializeTypeParams(d.TypeParams)
	s.writeOptTypeRef(d.Extends)
	s.writeUint32(uint32(len(d.Implements)))
	for _, i := range d.Implements {
		s.writeTypeRef(i)
	}
	s.writeUint32(uint32(len(d.Attributes)))
	for _, a := range d.Attributes {
		s.writeByte(TagAttribute)
		s.writePos(a.At)
		s.writeString(a.Name)
		s.writeTypeRef(a.Type)
	}
	s.serializeMethods(d.Methods)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (s *serializer) serializeStmts(stmts []compiler.Stmt) {
	s.writeUint32(uint32(len(stmts)))
	for _, st := range stmts {
		s.serializeStmt(st)
	}
}

func (s *serializer) serializeStmt(st compiler.Stmt) {
	switch n := st.(type) {
	case nil:
		s.writeByte(TagNone)

	case *compiler.ExprStmt:
		s.writeByte(TagExprStmt)
		s.serializeExpr(n.X)

	case *compiler.LocalVarDecl:
		s.writeByte(TagLocalVarDecl)
		s.writePos(n.At)
		s.writeTypeRef(n.Type)
		s.writeString(n.Name)
		s.serializeExpr(n.Init)

	case *compiler.Block:
		if n == nil {
			s.writeByte(TagNone)
			return
		}
		s.writeByte(TagBlock)
		s.writePos(n.At)
		s.serializeStmts(n.Stmts)

	case *compiler.If:
		s.writeByte(TagIf)
		s.writePos(n.At)
		s.serializeExpr(n.Cond)
		s.serializeStmt(n.Then)
		s.serializeStmt(n.Else)

	case *compiler.While:
		s.writeByte(TagWhile)
		s.writePos(n.At)
		s.serializeExpr(n.Cond)
		s.serializeStmt(n.Body)

	case *compiler.For:
		s.writeByte(TagFor)
		s.writePos(n.At)
		s.serializeStmt(n.Init)
		s.serializeExpr(n.Cond)
		s.serializeExpr(n.Update)
		s.serializeStmt(n.Body)

	case *compiler.Return:
		s.writeByte(TagReturn)
		s.writePos(n.At)
		s.serializeExpr(n.Value)

	case *compiler.Print:
		s.writeByte(TagPrint)
		s.writePos(n.At)
		s.writeBool(n.Newline)
		s.serializeExpr(n.Value)

	default:
		panic(fmt.Sprintf("hash: unknown statement %T", st))
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (s *serializer) serializeExprs(es []compiler.Expr) {
	s.writeUint32(uint32(len(es)))
	for _, e := range es {
		s.serializeExpr(e)
	}
}

func (s *serializer) serializeExpr(e compiler.Expr) {
	switch n := e.(type) {
	case nil:
		s.writeByte(TagNone)

	case *compiler.Constant:
		s.writeByte(TagConstant)
		s.writePos(n.At)
		s.writeByte(byte(n.Kind))
		s.writeConstant(n.Value)

	case *compiler.Identifier:
		s.writeByte(TagIdentifier)
		s.writePos(n.At)
		s.writeString(n.Name)

	case *compiler.This:
		s.writeByte(TagThis)
		s.writePos(n.At)

	case *compiler.BinaryOp:
		s.writeByte(TagBinaryOp)
		s.writePos(n.At)
		s.writePos(n.OpAt)
		s.writeString(n.Op)
		s.serializeExpr(n.Left)
		s.serializeExpr(n.Right)

	case *compiler.UnaryOp:
		s.writeByte(TagUnaryOp)
		s.writePos(n.At)
		s.writeString(n.Op)
		s.writeBool(n.Postfix)
		s.serializeExpr(n.Operand)

	case *compiler.MethodCall:
		s.writeByte(TagMethodCall)
		s.writePos(n.At)
		s.writeString(n.Name)
		s.serializeExpr(n.Object)
		s.serializeExprs(n.Args)

	case *compiler.NewObject:
		s.writeByte(TagNewObject)
		s.writePos(n.At)
		s.writeTypeRef(n.Type)
		s.serializeExprs(n.Args)

	case *compiler.AttributeAccess:
		s.writeByte(TagAttributeAccess)
		s.writePos(n.At)
		s.writeString(n.Name)
		s.serializeExpr(n.Object)

	case *compiler.Cast:
		s.writeByte(TagCast)
		s.writePos(n.At)
		s.writeTypeRef(n.Type)
		s.serializeExpr(n.Operand)

	default:
		panic(fmt.Sprintf("hash: unknown expression %T", e))
	}
}

// writeConstant encodes a literal payload. Integer payloads are widened
// so the same literal hashes alike whichever Go type decoded it.
func (s *serializer) writeConstant(v any) {
	switch x := v.(type) {
	case nil:
		s.writeByte(0)
	case int:
		s.writeByte(1)
		s.writeInt64(int64(x))
	case int64:
		s.writeByte(1)
		s.writeInt64(x)
	case float64:
		s.writeByte(2)
		s.writeFloat64(x)
	case bool:
		s.writeByte(3)
		s.writeBool(x)
	case rune:
		s.writeByte(4)
		s.writeUint32(uint32(x))
	case string:
		s.writeByte(5)
		s.writeString(x)
	default:
		s.writeByte(6)
		s.writeString(fmt.Sprint(x))
	}
}
