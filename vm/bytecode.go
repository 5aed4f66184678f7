package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a stack-machine instruction.
type Opcode byte

// Stack Operations
const (
	OpNop Opcode = 0x00 // no operation
	OpPop Opcode = 0x01 // discard top of stack
	OpDup Opcode = 0x02 // duplicate top of stack
)

// Push / Store
const (
	OpPushConst  Opcode = 0x10 // push Const
	OpPushThis   Opcode = 0x11 // push the receiver
	OpPushLocal  Opcode = 0x12 // push local Operand
	OpStoreLocal Opcode = 0x13 // store into local Operand with Operator, push result
	OpPushAttr   Opcode = 0x14 // pop ref, push attribute Operand
	OpStoreAttr  Opcode = 0x15 // pop value and ref, store attribute Operand with Operator, push result
)

// Operators
const (
	OpUnary  Opcode = 0x20 // apply unary Operator to top of stack
	OpBinary Opcode = 0x21 // pop right and left, push left Operator right
	OpCast   Opcode = 0x22 // convert top of stack to Type
)

// Control Flow (Operand is relative to the next instruction)
const (
	OpJump        Opcode = 0x30 // unconditional jump
	OpJumpIfFalse Opcode = 0x31 // pop boolean, jump if false
	OpJumpIfTrue  Opcode = 0x32 // pop boolean, jump if true
)

// Objects and Calls
const (
	OpNew           Opcode = 0x40 // allocate an instance of Class
	OpInvoke        Opcode = 0x41 // call Method with Operand args (static, constructor)
	OpInvokeVirtual Opcode = 0x42 // call the receiver's override of Method with Operand args
	OpReturn        Opcode = 0x43 // return from a void method
	OpReturnValue   Opcode = 0x44 // pop and return a value
)

// Output
const (
	OpPrint Opcode = 0x50 // pop and write; Operand 1 appends a newline
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string // human-readable name
	StackEffect int    // net effect on stack (-99 = depends on operand)
}

const variableEffect = -99

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop: {"NOP", 0},
	OpPop: {"POP", -1},
	OpDup: {"DUP", 1},

	OpPushConst:  {"PUSH_CONST", 1},
	OpPushThis:   {"PUSH_THIS", 1},
	OpPushLocal:  {"PUSH_LOCAL", 1},
	OpStoreLocal: {"STORE_LOCAL", 0},
	OpPushAttr:   {"PUSH_ATTR", 0},
	OpStoreAttr:  {"STORE_ATTR", -1},

	OpUnary:  {"UNARY", 0},
	OpBinary: {"BINARY", -1},
	OpCast:   {"CAST", 0},

	OpJump:        {"JUMP", 0},
	OpJumpIfFalse: {"JUMP_IF_FALSE", -1},
	OpJumpIfTrue:  {"JUMP_IF_TRUE", -1},

	OpNew:           {"NEW", 1},
	OpInvoke:        {"INVOKE", variableEffect},
	OpInvokeVirtual: {"INVOKE_VIRTUAL", variableEffect},
	OpReturn:        {"RETURN", 0},
	OpReturnValue:   {"RETURN_VALUE", -1},

	OpPrint: {"PRINT", -1},
}

// Info returns metadata about an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

func (op Opcode) String() string {
	return op.Name()
}

// IsJump reports whether the opcode's Operand is a relative jump offset.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpIfFalse || op == OpJumpIfTrue
}

// ---------------------------------------------------------------------------
// Instruction
// ---------------------------------------------------------------------------

// SourceLoc is a position in the program source, 1-based.
type SourceLoc struct {
	Line   int
	Column int
}

func (l SourceLoc) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// Span is a textual extent.
type Span struct {
	From, To SourceLoc
}

// Instruction is one lowered operation. Only the fields the opcode uses are
// set.
type Instruction struct {
	Op       Opcode
	Operand  int     // local slot, attribute index, jump offset or argument count
	Operator string  // OpUnary, OpBinary and the compound operator of stores
	Const    Value   // OpPushConst
	Type     Type    // OpCast target; declared type for stores
	Class    *Class  // OpNew
	Method   *Method // OpInvoke, OpInvokeVirtual
	Pos      SourceLoc
}

// StackEffect returns the net change in operand stack depth.
func (ins Instruction) StackEffect() int {
	switch ins.Op {
	case OpInvoke, OpInvokeVirtual:
		n := -ins.Operand
		if !ins.Method.IsStatic {
			n--
		}
		if ins.Method.ReturnsValue() {
			n++
		}
		return n
	}
	return ins.Op.Info().StackEffect
}

func (ins Instruction) String() string {
	name := ins.Op.Name()
	switch ins.Op {
	case OpPushConst:
		if ins.Const.Kind() == KindString {
			return fmt.Sprintf("%s %q", name, ins.Const.AsString())
		}
		return fmt.Sprintf("%s %s", name, ins.Const)
	case OpPushLocal, OpPushAttr:
		return fmt.Sprintf("%s %d", name, ins.Operand)
	case OpStoreLocal, OpStoreAttr:
		return fmt.Sprintf("%s %d %s", name, ins.Operand, ins.Operator)
	case OpUnary, OpBinary:
		return fmt.Sprintf("%s %s", name, ins.Operator)
	case OpCast:
		return fmt.Sprintf("%s %s", name, ins.Type.Name())
	case OpJump, OpJumpIfFalse, OpJumpIfTrue:
		return fmt.Sprintf("%s %+d", name, ins.Operand)
	case OpNew:
		return fmt.Sprintf("%s %s", name, ins.Class.Name())
	case OpInvoke, OpInvokeVirtual:
		return fmt.Sprintf("%s %s/%d", name, ins.Method.QualifiedName(), ins.Operand)
	case OpPrint:
		if ins.Operand == 1 {
			return name + " ln"
		}
	}
	return name
}

// Disassemble renders code one instruction per line.
func Disassemble(code []Instruction) string {
	var b strings.Builder
	for i, ins := range code {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%04d  %s", i, ins)
		if ins.Op.IsJump() {
			fmt.Fprintf(&b, "  ; -> %04d", i+1+ins.Operand)
		}
	}
	return b.String()
}
