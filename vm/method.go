package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Method: descriptor for native and interpreted methods
// ---------------------------------------------------------------------------

// NativeFunc implements a method in Go. The interpreter is passed so the
// function can call back into interpreted code. A returned error becomes a
// runtime fault in the caller.
type NativeFunc func(in *Interpreter, receiver Value, args []Value) (Value, error)

// MethodBody is either Native or *Program.
type MethodBody interface {
	isMethodBody()
}

// Native is a method body implemented by a Go function.
type Native NativeFunc

func (Native) isMethodBody()   {}
func (*Program) isMethodBody() {}

// Param is a formal parameter.
type Param struct {
	Name  string
	Type  Type
	Final bool
}

// Method describes a method, constructor, or abstract signature.
// ReturnType is nil for constructors and void methods.
type Method struct {
	Name          string
	Params        []Param
	ReturnType    Type
	Body          MethodBody
	IsAbstract    bool
	IsStatic      bool
	IsConstructor bool
	Doc           string
	Owner         Type
}

// NewNativeMethod creates a method implemented by fn.
func NewNativeMethod(name string, params []Param, ret Type, fn NativeFunc) *Method {
	return &Method{Name: name, Params: params, ReturnType: voidToNil(ret), Body: Native(fn)}
}

// NewNativeConstructor creates a constructor implemented by fn. The receiver
// passed to fn is the freshly allocated instance.
func NewNativeConstructor(name string, params []Param, fn NativeFunc) *Method {
	return &Method{Name: name, Params: params, Body: Native(fn), IsConstructor: true}
}

// NewAbstractMethod creates a signature with no body.
func NewAbstractMethod(name string, params []Param, ret Type) *Method {
	return &Method{Name: name, Params: params, ReturnType: voidToNil(ret), IsAbstract: true}
}

func voidToNil(t Type) Type {
	if t == Void {
		return nil
	}
	return t
}

// Arity returns the number of declared parameters.
func (m *Method) Arity() int { return len(m.Params) }

// ReturnsValue reports whether a call leaves a value on the operand stack.
func (m *Method) ReturnsValue() bool {
	return m.ReturnType != nil && m.ReturnType != Void
}

// IsNative reports whether the body is a Go function.
func (m *Method) IsNative() bool {
	_, ok := m.Body.(Native)
	return ok
}

// Program returns the interpreted body, or nil.
func (m *Method) Program() *Program {
	p, _ := m.Body.(*Program)
	return p
}

// SetBody attaches a body. Abstract methods cannot have one.
func (m *Method) SetBody(b MethodBody) {
	if m.IsAbstract {
		panic(ContractViolation{Msg: fmt.Sprintf("abstract method %s cannot have a body", m.Signature())})
	}
	m.Body = b
}

// Signature renders the method as name(T1,T2), used for lookup and images.
func (m *Method) Signature() string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.Type.Name())
	}
	b.WriteByte(')')
	return b.String()
}

// QualifiedName renders Owner.name for diagnostics.
func (m *Method) QualifiedName() string {
	if m.Owner == nil {
		return m.Name
	}
	return m.Owner.Name() + "." + m.Name
}

func (m *Method) String() string {
	return m.QualifiedName()
}
