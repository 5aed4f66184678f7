package compiler

import "github.com/chazu/tutor/vm"

// Fragment is the code produced for one tree node: a linear instruction
// sequence plus what the generator needs to keep composing it.
type Fragment struct {
	Name string
	Code []vm.Instruction
	Type vm.Type // static type of the value left on the stack; nil for statements

	// LastPartIsExpression is set when the code leaves a value on the
	// operand stack.
	LastPartIsExpression bool

	// Assignable fragments end with a load that Assign can turn into a
	// store.
	Assignable bool

	// Constant holds the value when the fragment is a single PUSH_CONST.
	Constant *vm.Value

	store *vm.Instruction
	// derived names the attribute read last when its value is recomputed
	// on every read; such a fragment is never assignable.
	derived string
}

func newFragment(name string, t vm.Type) *Fragment {
	return &Fragment{Name: name, Type: t}
}

func constFragment(v vm.Value, t vm.Type, pos Position) *Fragment {
	f := newFragment("constant", t)
	f.setConstant(v, pos)
	return f
}

func (f *Fragment) setConstant(v vm.Value, pos Position) {
	f.Code = []vm.Instruction{{Op: vm.OpPushConst, Const: v, Pos: pos}}
	f.Constant = &v
	f.LastPartIsExpression = true
	f.Assignable = false
	f.store = nil
	f.derived = ""
}

// Len returns the number of instructions.
func (f *Fragment) Len() int { return len(f.Code) }

// Emit appends one instruction.
func (f *Fragment) Emit(ins vm.Instruction) {
	f.Code = append(f.Code, ins)
	f.Constant = nil
	f.Assignable = false
	f.store = nil
	f.derived = ""
}

// Append appends the code of other. The flags describing the trailing
// value are taken from other.
func (f *Fragment) Append(other *Fragment) {
	if other == nil {
		return
	}
	f.Code = append(f.Code, other.Code...)
	f.LastPartIsExpression = other.LastPartIsExpression
	f.Constant = nil
	f.Assignable = false
	f.store = nil
	f.derived = ""
}

// loadable marks the fragment as an lvalue whose trailing load is
// replaced by st on assignment.
func (f *Fragment) loadable(st vm.Instruction) {
	f.Assignable = true
	f.store = &st
}

// ApplyUnary applies op to the value on the stack. Constants are folded.
func (f *Fragment) ApplyUnary(op string, result vm.Type, pos Position) {
	if f.Constant != nil {
		if v, err := vm.EvalUnary(op, *f.Constant); err == nil {
			f.setConstant(v, pos)
			f.Type = result
			return
		}
	}
	f.Emit(vm.Instruction{Op: vm.OpUnary, Operator: op, Pos: pos})
	f.Type = result
	f.LastPartIsExpression = true
}

// ApplyBinary combines f (left) and right with op. Two constants are
// folded unless evaluation fails, in which case the failure is left to
// happen at run time.
func (f *Fragment) ApplyBinary(op string, right *Fragment, result vm.Type, pos Position) {
	if f.Constant != nil && right.Constant != nil {
		if v, err := vm.EvalBinary(op, *f.Constant, *right.Constant); err == nil {
			f.setConstant(v, pos)
			f.Type = result
			return
		}
	}
	f.Code = append(f.Code, right.Code...)
	f.Emit(vm.Instruction{Op: vm.OpBinary, Operator: op, Pos: pos})
	f.Type = result
	f.LastPartIsExpression = true
}

// EmitCast converts the value on the stack to t. Widening between
// reference types needs no code; everything else gets a CAST, folded for
// constants.
func (f *Fragment) EmitCast(t vm.Type, pos Position) {
	if f.Type == nil || t == nil || f.Type == t {
		return
	}
	if !needsConversion(f.Type, t) {
		f.Type = t
		return
	}
	if f.Constant != nil {
		if v, err := vm.CastTo(*f.Constant, t); err == nil {
			f.setConstant(v, pos)
			f.Type = t
			return
		}
	}
	f.Emit(vm.Instruction{Op: vm.OpCast, Type: t, Pos: pos})
	f.Type = t
	f.LastPartIsExpression = true
}

func needsConversion(from, to vm.Type) bool {
	if from.TypeKind() == vm.TypePrimitive && to.TypeKind() == vm.TypePrimitive {
		return true
	}
	if from.TypeKind() == vm.TypeVar && to.TypeKind() != vm.TypeVar {
		return true
	}
	return !vm.CanCastTo(from, to)
}

// Assign turns the trailing load into a store of right with op ("=" or a
// compound operator). The stored value stays on the stack.
func (f *Fragment) Assign(op string, right *Fragment, declared vm.Type, pos Position) {
	if !f.Assignable || f.store == nil {
		panic(vm.ContractViolation{Msg: "assignment to a fragment that is not assignable"})
	}
	st := *f.store
	st.Operator = op
	st.Type = declared
	st.Pos = pos
	n := len(f.Code) - 1
	code := make([]vm.Instruction, 0, n+len(right.Code)+1)
	code = append(code, f.Code[:n]...)
	code = append(code, right.Code...)
	f.Code = append(code, st)
	f.Type = declared
	f.Constant = nil
	f.Assignable = false
	f.store = nil
	f.derived = ""
	f.LastPartIsExpression = true
}

// AddPop discards the trailing value.
func (f *Fragment) AddPop() {
	f.Emit(vm.Instruction{Op: vm.OpPop})
	f.LastPartIsExpression = false
}

// Jump placeholders are patched once both ends are known.
func (f *Fragment) emitJump(op vm.Opcode, pos Position) int {
	f.Emit(vm.Instruction{Op: op, Pos: pos})
	return len(f.Code) - 1
}

// patchJump makes the jump at index land on target.
func (f *Fragment) patchJump(index, target int) {
	f.Code[index].Operand = target - (index + 1)
}
