package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultMaxFrames bounds the depth of interpreted calls.
const DefaultMaxFrames = 1024

// ---------------------------------------------------------------------------
// Frame: execution state of an interpreted call
// ---------------------------------------------------------------------------

// Frame is the record of one active interpreted call. Native calls run on
// the Go stack and get no frame.
type Frame struct {
	Method   *Method
	Program  *Program
	Receiver Value
	IP       int     // next instruction
	BP       int     // operand stack height when the frame was entered
	Locals   []Value // parameters first
}

// Instruction returns the instruction the frame will execute next, and
// false when the frame is at its end.
func (f *Frame) Instruction() (Instruction, bool) {
	if f.IP >= f.Program.Len() {
		return Instruction{}, false
	}
	return f.Program.At(f.IP), true
}

// ---------------------------------------------------------------------------
// Interpreter: stack-frame execution engine
// ---------------------------------------------------------------------------

// Interpreter executes programs. It is single-threaded: one logical thread
// of control drives it, either through the stepped top-level run (Start,
// Step) or through synchronous nested calls (InvokeImmediate) made by
// native code.
type Interpreter struct {
	Types     *TypeTable
	Heap      *Heap
	Out       io.Writer
	MaxFrames int

	// Trace, when set, observes every call's state transitions.
	Trace func(m *Method, s CallState)

	stack  []Value
	frames []*Frame

	// top-level stepped run
	entry   *Method
	done    bool
	outcome Result
}

// NewInterpreter creates an interpreter with an empty heap writing to
// standard output.
func NewInterpreter(types *TypeTable) *Interpreter {
	return &Interpreter{
		Types:     types,
		Heap:      NewHeap(),
		Out:       os.Stdout,
		MaxFrames: DefaultMaxFrames,
		stack:     make([]Value, 0, 256),
		done:      true,
	}
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (in *Interpreter) push(v Value) {
	in.stack = append(in.stack, v)
}

func (in *Interpreter) pop() Value {
	n := len(in.stack)
	if n == 0 {
		panic(ContractViolation{Msg: "operand stack underflow"})
	}
	v := in.stack[n-1]
	in.stack = in.stack[:n-1]
	return v
}

func (in *Interpreter) peek() Value {
	if len(in.stack) == 0 {
		panic(ContractViolation{Msg: "operand stack underflow"})
	}
	return in.stack[len(in.stack)-1]
}

// StackDepth returns the operand stack height.
func (in *Interpreter) StackDepth() int { return len(in.stack) }

// Frames returns the active frames, outermost first.
func (in *Interpreter) Frames() []*Frame {
	return append([]*Frame(nil), in.frames...)
}

func (in *Interpreter) trace(m *Method, s CallState) {
	if in.Trace != nil {
		in.Trace(m, s)
	}
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// enter is the single place where a method body is selected. Native
// bodies run to completion and their value is returned; interpreted
// bodies get a new frame which the caller must run.
func (in *Interpreter) enter(m *Method, receiver Value, args []Value) (pushed bool, v Value, f *Fault) {
	if len(args) != len(m.Params) {
		panic(ContractViolation{Msg: fmt.Sprintf("%s expects %d arguments, got %d", m.QualifiedName(), len(m.Params), len(args))})
	}
	in.trace(m, Dispatching)

	switch body := m.Body.(type) {
	case Native:
		in.trace(m, NativeExecuting)
		v, err := body(in, receiver, args)
		if err != nil {
			f := faultFrom(err)
			if f.Method == nil {
				f.Method = m
			}
			in.trace(m, Faulted)
			return false, Null, f
		}
		in.trace(m, Returned)
		return false, v, nil

	case *Program:
		if len(in.frames) >= in.MaxFrames {
			in.trace(m, Faulted)
			return false, Null, &Fault{Kind: FaultStackOverflow, Message: fmt.Sprintf("more than %d nested calls", in.MaxFrames), Method: m}
		}
		locals := make([]Value, body.NumLocals())
		copy(locals, args)
		in.frames = append(in.frames, &Frame{
			Method:   m,
			Program:  body,
			Receiver: receiver,
			BP:       len(in.stack),
			Locals:   locals,
		})
		in.trace(m, FrameRunning)
		return true, Null, nil
	}

	in.trace(m, Faulted)
	return false, Null, &Fault{Kind: FaultMethodNotFound, Message: fmt.Sprintf("%s has no body", m.Signature()), Method: m}
}

// InvokeImmediate runs m synchronously to completion and returns its value
// or the fault that ended it. It is used by native code calling back into
// interpreted code; the nested run never yields to the stepped loop.
func (in *Interpreter) InvokeImmediate(m *Method, receiver Value, args []Value) Result {
	floor, base := len(in.frames), len(in.stack)
	pushed, v, f := in.enter(m, receiver, args)
	if f != nil {
		return Result{Fault: f}
	}
	if !pushed {
		return Result{Value: v}
	}
	if f := in.run(floor, -1); f != nil {
		in.unwind(floor, base)
		return Result{Fault: f}
	}
	if m.ReturnsValue() {
		v = in.pop()
	}
	return Result{Value: v}
}

// Invoke runs m to completion. Faults are returned as *Fault errors.
func (in *Interpreter) Invoke(m *Method, receiver Value, args ...Value) (Value, error) {
	r := in.InvokeImmediate(m, receiver, args)
	return r.Value, r.Err()
}

// ---------------------------------------------------------------------------
// Stepped execution
// ---------------------------------------------------------------------------

// Start prepares a top-level run of m that is advanced with Step.
func (in *Interpreter) Start(m *Method, receiver Value, args []Value) error {
	if len(in.frames) > 0 {
		return errors.New("interpreter is already running")
	}
	in.entry, in.done, in.outcome = m, false, Result{}
	pushed, v, f := in.enter(m, receiver, args)
	if f != nil {
		in.finish(Result{Fault: f})
	} else if !pushed {
		in.finish(Result{Value: v})
	}
	return nil
}

// Step executes up to n instructions of the top-level run (n < 0 means
// until completion) and reports whether the run has finished. A call made
// by an instruction counts as part of that instruction only when it is
// native; interpreted callees are stepped like their callers.
func (in *Interpreter) Step(n int) bool {
	if in.done {
		return true
	}
	if f := in.run(0, n); f != nil {
		in.unwind(0, 0)
		in.finish(Result{Fault: f})
		return true
	}
	if len(in.frames) == 0 {
		var v Value
		if in.entry.ReturnsValue() {
			v = in.pop()
		}
		in.finish(Result{Value: v})
		return true
	}
	return false
}

// Abort ends the top-level run between instructions with a cancellation
// fault.
func (in *Interpreter) Abort(cause error) {
	if in.done {
		return
	}
	var m *Method
	if n := len(in.frames); n > 0 {
		m = in.frames[n-1].Method
	}
	in.unwind(0, 0)
	in.finish(Result{Fault: &Fault{Kind: FaultCancelled, Message: cause.Error(), Method: m, Cause: cause}})
}

// Done reports whether the top-level run has finished.
func (in *Interpreter) Done() bool { return in.done }

// Outcome returns the result of the finished top-level run.
func (in *Interpreter) Outcome() Result { return in.outcome }

func (in *Interpreter) finish(r Result) {
	in.done = true
	in.outcome = r
	if r.Fault != nil {
		log.Warningf("run halted: %s", r.Fault)
	}
}

// run executes instructions until the frame count drops to floor, the
// budget is spent, or a fault occurs.
func (in *Interpreter) run(floor, budget int) *Fault {
	for len(in.frames) > floor {
		if budget == 0 {
			return nil
		}
		if budget > 0 {
			budget--
		}
		if f := in.step(); f != nil {
			return f
		}
	}
	return nil
}

// unwind drops frames above floor and restores the operand stack height.
func (in *Interpreter) unwind(floor, base int) {
	for len(in.frames) > floor {
		fr := in.frames[len(in.frames)-1]
		in.frames = in.frames[:len(in.frames)-1]
		in.trace(fr.Method, Faulted)
	}
	if len(in.stack) > base {
		in.stack = in.stack[:base]
	}
}

// ---------------------------------------------------------------------------
// Instruction execution
// ---------------------------------------------------------------------------

func (in *Interpreter) step() *Fault {
	fr := in.frames[len(in.frames)-1]
	ins, ok := fr.Instruction()
	if !ok {
		return in.doReturn(fr, false)
	}
	fr.IP++

	var (
		v   Value
		err error
	)
	switch ins.Op {
	case OpNop:
	case OpPop:
		in.pop()
	case OpDup:
		in.push(in.peek())

	case OpPushConst:
		in.push(ins.Const)
	case OpPushThis:
		in.push(fr.Receiver)
	case OpPushLocal:
		in.push(fr.Locals[ins.Operand])
	case OpStoreLocal:
		if v, err = combine(ins, fr.Locals[ins.Operand], in.pop()); err == nil {
			fr.Locals[ins.Operand] = v
			in.push(v)
		}
	case OpPushAttr:
		if v, err = in.Heap.Read(in.pop(), ins.Operand); err == nil {
			in.push(v)
		}
	case OpStoreAttr:
		val, obj := in.pop(), in.pop()
		var old Value
		if ins.Operator != "=" {
			old, err = in.Heap.Read(obj, ins.Operand)
		}
		if err == nil {
			v, err = combine(ins, old, val)
		}
		if err == nil {
			err = in.Heap.Write(obj, ins.Operand, v)
		}
		if err == nil {
			in.push(v)
		}

	case OpUnary:
		if v, err = EvalUnary(ins.Operator, in.pop()); err == nil {
			in.push(v)
		}
	case OpBinary:
		r, l := in.pop(), in.pop()
		if v, err = EvalBinary(ins.Operator, l, r); err == nil {
			in.push(v)
		}
	case OpCast:
		if v, err = CastTo(in.pop(), ins.Type); err == nil {
			in.push(v)
		}

	case OpJump:
		fr.IP += ins.Operand
	case OpJumpIfFalse:
		if !in.pop().AsBool() {
			fr.IP += ins.Operand
		}
	case OpJumpIfTrue:
		if in.pop().AsBool() {
			fr.IP += ins.Operand
		}

	case OpNew:
		if v, err = in.Heap.Instantiate(ins.Class); err == nil {
			in.push(v)
		}
	case OpInvoke, OpInvokeVirtual:
		return in.invoke(fr, ins)
	case OpReturn:
		return in.doReturn(fr, false)
	case OpReturnValue:
		return in.doReturn(fr, true)

	case OpPrint:
		var s string
		if s, err = in.Format(in.pop()); err == nil {
			if ins.Operand == 1 {
				s += "\n"
			}
			_, err = io.WriteString(in.Out, s)
		}

	default:
		panic(ContractViolation{Msg: fmt.Sprintf("unknown opcode %s", ins.Op)})
	}

	if err != nil {
		return annotate(faultFrom(err), fr, ins)
	}
	return nil
}

// combine computes the value a store writes: the right-hand side for "=",
// otherwise old op right converted back to the declared type.
func combine(ins Instruction, old, val Value) (Value, error) {
	if ins.Operator == "=" || ins.Operator == "" {
		return val, nil
	}
	v, err := EvalBinary(ins.Operator[:len(ins.Operator)-1], old, val)
	if err != nil {
		return Null, err
	}
	if ins.Type != nil {
		return CastTo(v, ins.Type)
	}
	return v, nil
}

func (in *Interpreter) invoke(fr *Frame, ins Instruction) *Fault {
	m := ins.Method
	argc := ins.Operand
	args := make([]Value, argc)
	copy(args, in.stack[len(in.stack)-argc:])
	in.stack = in.stack[:len(in.stack)-argc]

	receiver := Null
	if !m.IsStatic {
		receiver = in.pop()
		if receiver.IsNull() {
			return annotate(&Fault{Kind: FaultNullReference, Message: fmt.Sprintf("cannot call %s on null", m.Name)}, fr, ins)
		}
	}
	if ins.Op == OpInvokeVirtual && receiver.IsRef() {
		impl := receiver.Class().Override(m)
		if impl == nil {
			return annotate(&Fault{Kind: FaultMethodNotFound, Message: fmt.Sprintf("%s does not implement %s", receiver.Class().Name(), m.Signature())}, fr, ins)
		}
		m = impl
	}

	pushed, v, f := in.enter(m, receiver, args)
	if f != nil {
		return annotate(f, fr, ins)
	}
	if !pushed && m.ReturnsValue() {
		in.push(v)
	}
	return nil
}

func (in *Interpreter) doReturn(fr *Frame, withValue bool) *Fault {
	var v Value
	if withValue {
		v = in.pop()
	} else if fr.Method.ReturnsValue() {
		v = Default(fr.Method.ReturnType)
	}
	in.stack = in.stack[:fr.BP]
	in.frames = in.frames[:len(in.frames)-1]
	in.trace(fr.Method, Returned)
	if fr.Method.ReturnsValue() {
		in.push(v)
	}
	return nil
}

// annotate records where a fault surfaced if it does not know yet.
func annotate(f *Fault, fr *Frame, ins Instruction) *Fault {
	if f.Method == nil {
		f.Method = fr.Method
		f.Pos = ins.Pos
	}
	return f
}

// Format renders v for print. Instances whose class answers toString()
// are formatted by calling it.
func (in *Interpreter) Format(v Value) (string, error) {
	if !v.IsRef() {
		return v.String(), nil
	}
	m := v.Class().LookupBySignature("toString", nil)
	if m == nil || m.ReturnType != String {
		return v.String(), nil
	}
	r := in.InvokeImmediate(m, v, nil)
	if r.Fault != nil {
		return "", r.Fault
	}
	return r.Value.String(), nil
}

// Collect reclaims instances unreachable from the operand stack, the
// active frames, the last outcome and extra.
func (in *Interpreter) Collect(extra ...Value) CollectStats {
	roots := append([]Value(nil), in.stack...)
	for _, fr := range in.frames {
		roots = append(roots, fr.Receiver)
		roots = append(roots, fr.Locals...)
	}
	roots = append(roots, in.outcome.Value)
	roots = append(roots, extra...)
	return in.Heap.Collect(roots)
}
