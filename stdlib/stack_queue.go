package stdlib

import "github.com/chazu/tutor/vm"

// StackHelper is the helper behind Stack: a sequence whose last element is
// the top.
type StackHelper struct {
	seq *Sequence
}

func (h *StackHelper) Kind() vm.IntrinsicKind { return vm.IntrinsicStack }
func (h *StackHelper) Refs() []vm.Value       { return h.seq.Refs() }

// Push puts v on top. Null is ignored.
func (h *StackHelper) Push(v vm.Value) { h.seq.Append(v) }

// Top returns the top element, or null.
func (h *StackHelper) Top() vm.Value {
	h.seq.ToLast()
	return h.seq.Content()
}

// Pop removes the top element, if any.
func (h *StackHelper) Pop() {
	h.seq.ToLast()
	h.seq.Remove()
}

// QueueHelper is the helper behind Queue: a sequence whose first element
// is the front.
type QueueHelper struct {
	seq *Sequence
}

func (h *QueueHelper) Kind() vm.IntrinsicKind { return vm.IntrinsicQueue }
func (h *QueueHelper) Refs() []vm.Value       { return h.seq.Refs() }

// Enqueue appends v. Null is ignored.
func (h *QueueHelper) Enqueue(v vm.Value) { h.seq.Append(v) }

// Front returns the first element, or null.
func (h *QueueHelper) Front() vm.Value {
	h.seq.ToFirst()
	return h.seq.Content()
}

// Dequeue removes the first element, if any.
func (h *QueueHelper) Dequeue() {
	h.seq.ToFirst()
	h.seq.Remove()
}

// ---------------------------------------------------------------------------
// Stack Primitives
// ---------------------------------------------------------------------------

func (l *Library) registerStackPrimitives() {
	c := vm.NewClass("Stack", nil)
	ct := vm.NewTypeVariable("ContentType")
	c.TypeVars = []*vm.TypeVariable{ct}
	c.Doc = "Generic last-in first-out stack."

	c.AddMethod(constructor("Stack", nil, "Creates an empty stack.",
		func(*vm.Interpreter, vm.Value, []vm.Value) (vm.Intrinsic, error) {
			return &StackHelper{seq: NewSequence()}, nil
		}))

	c.AddMethod(method("isEmpty", nil, vm.Boolean, "True if the stack contains no objects.",
		func(_ *vm.Interpreter, h *StackHelper, _ []vm.Value) (vm.Value, error) {
			return vm.BoolValue(h.seq.IsEmpty()), nil
		}))

	c.AddMethod(method("push", []vm.Param{param("pContent", ct)}, vm.Void, "Puts pContent on top unless it is null.",
		func(_ *vm.Interpreter, h *StackHelper, args []vm.Value) (vm.Value, error) {
			h.Push(args[0])
			return vm.Null, nil
		}))

	c.AddMethod(method("pop", nil, vm.Void, "Removes the top object; an empty stack is left unchanged.",
		func(_ *vm.Interpreter, h *StackHelper, _ []vm.Value) (vm.Value, error) {
			h.Pop()
			return vm.Null, nil
		}))

	c.AddMethod(method("top", nil, ct, "Returns the top object, or null if the stack is empty.",
		func(_ *vm.Interpreter, h *StackHelper, _ []vm.Value) (vm.Value, error) {
			return h.Top(), nil
		}))

	c.AddMethod(method("toString", nil, vm.String, "",
		func(in *vm.Interpreter, h *StackHelper, _ []vm.Value) (vm.Value, error) {
			return format(in, h.seq.items)
		}))

	l.Stack = c
}

// ---------------------------------------------------------------------------
// Queue Primitives
// ---------------------------------------------------------------------------

func (l *Library) registerQueuePrimitives() {
	c := vm.NewClass("Queue", nil)
	ct := vm.NewTypeVariable("ContentType")
	c.TypeVars = []*vm.TypeVariable{ct}
	c.Doc = "Generic first-in first-out queue."

	c.AddMethod(constructor("Queue", nil, "Creates an empty queue.",
		func(*vm.Interpreter, vm.Value, []vm.Value) (vm.Intrinsic, error) {
			return &QueueHelper{seq: NewSequence()}, nil
		}))

	c.AddMethod(method("isEmpty", nil, vm.Boolean, "True if the queue contains no objects.",
		func(_ *vm.Interpreter, h *QueueHelper, _ []vm.Value) (vm.Value, error) {
			return vm.BoolValue(h.seq.IsEmpty()), nil
		}))

	c.AddMethod(method("enqueue", []vm.Param{param("pContent", ct)}, vm.Void, "Appends pContent unless it is null.",
		func(_ *vm.Interpreter, h *QueueHelper, args []vm.Value) (vm.Value, error) {
			h.Enqueue(args[0])
			return vm.Null, nil
		}))

	c.AddMethod(method("dequeue", nil, vm.Void, "Removes the first object; an empty queue is left unchanged.",
		func(_ *vm.Interpreter, h *QueueHelper, _ []vm.Value) (vm.Value, error) {
			h.Dequeue()
			return vm.Null, nil
		}))

	c.AddMethod(method("front", nil, ct, "Returns the first object, or null if the queue is empty.",
		func(_ *vm.Interpreter, h *QueueHelper, _ []vm.Value) (vm.Value, error) {
			return h.Front(), nil
		}))

	c.AddMethod(method("toString", nil, vm.String, "",
		func(in *vm.Interpreter, h *QueueHelper, _ []vm.Value) (vm.Value, error) {
			return format(in, h.seq.items)
		}))

	l.Queue = c
}
