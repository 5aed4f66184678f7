package stdlib

import (
	"strings"

	"github.com/chazu/tutor/vm"
)

// ---------------------------------------------------------------------------
// Sequence: ordered values with a cursor
// ---------------------------------------------------------------------------

// Sequence is the helper behind List and, by composition, Stack, Queue and
// the graph's vertex and edge sets. The cursor designates the current
// element; -1 means there is none.
type Sequence struct {
	items   []vm.Value
	current int
}

// NewSequence creates an empty sequence without a current element.
func NewSequence(items ...vm.Value) *Sequence {
	return &Sequence{items: items, current: -1}
}

func (s *Sequence) Kind() vm.IntrinsicKind { return vm.IntrinsicSequence }

func (s *Sequence) Refs() []vm.Value { return s.items }

// Len returns the number of elements.
func (s *Sequence) Len() int { return len(s.items) }

// Items returns a copy of the elements in order.
func (s *Sequence) Items() []vm.Value {
	return append([]vm.Value(nil), s.items...)
}

func (s *Sequence) IsEmpty() bool { return len(s.items) == 0 }

// HasAccess reports whether there is a current element.
func (s *Sequence) HasAccess() bool {
	return s.current >= 0 && s.current < len(s.items)
}

// Next advances the cursor. Moving past the last element leaves no
// current element.
func (s *Sequence) Next() {
	if !s.HasAccess() {
		return
	}
	s.current++
	if s.current == len(s.items) {
		s.current = -1
	}
}

func (s *Sequence) ToFirst() {
	if len(s.items) > 0 {
		s.current = 0
	}
}

func (s *Sequence) ToLast() {
	if len(s.items) > 0 {
		s.current = len(s.items) - 1
	}
}

// Content returns the current element, or null.
func (s *Sequence) Content() vm.Value {
	if !s.HasAccess() {
		return vm.Null
	}
	return s.items[s.current]
}

// SetContent replaces the current element. Null is ignored.
func (s *Sequence) SetContent(v vm.Value) {
	if s.HasAccess() && !v.IsNull() {
		s.items[s.current] = v
	}
}

// Append adds v at the end without moving the cursor. Null is ignored.
func (s *Sequence) Append(v vm.Value) {
	if !v.IsNull() {
		s.items = append(s.items, v)
	}
}

// Insert adds v before the current element, which stays current. On an
// empty sequence v becomes the only element and there is still no
// current element. Otherwise, without a current element, nothing happens.
func (s *Sequence) Insert(v vm.Value) {
	switch {
	case v.IsNull():
	case s.HasAccess():
		s.items = append(s.items, vm.Null)
		copy(s.items[s.current+1:], s.items[s.current:])
		s.items[s.current] = v
		s.current++
	case s.IsEmpty():
		s.items = append(s.items, v)
	}
}

// Concat moves the elements of other to the end of s and empties other.
// The current element of s is unchanged.
func (s *Sequence) Concat(other *Sequence) {
	if other == nil || other == s || other.IsEmpty() {
		return
	}
	s.items = append(s.items, other.items...)
	other.items = nil
	other.current = -1
}

// Remove deletes the current element; its successor becomes current.
func (s *Sequence) Remove() {
	if !s.HasAccess() {
		return
	}
	s.items = append(s.items[:s.current], s.items[s.current+1:]...)
	if s.current == len(s.items) {
		s.current = -1
	}
}

// RemoveIf deletes every element for which drop returns true and leaves
// no current element. It returns the number of deleted elements.
func (s *Sequence) RemoveIf(drop func(vm.Value) bool) int {
	kept := s.items[:0]
	for _, it := range s.items {
		if !drop(it) {
			kept = append(kept, it)
		}
	}
	n := len(s.items) - len(kept)
	clear(s.items[len(kept):])
	s.items = kept
	s.current = -1
	return n
}

// IndexOf returns the position of the element identical to v, or -1.
func (s *Sequence) IndexOf(v vm.Value) int {
	for i, it := range s.items {
		if same(it, v) {
			return i
		}
	}
	return -1
}

// format renders the elements as [a, b, c], calling toString on objects.
func format(in *vm.Interpreter, items []vm.Value) (vm.Value, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		s, err := in.Format(v)
		if err != nil {
			return vm.Null, err
		}
		b.WriteString(s)
	}
	b.WriteByte(']')
	return vm.StringValue(b.String()), nil
}

// ---------------------------------------------------------------------------
// List Primitives
// ---------------------------------------------------------------------------

func (l *Library) registerListPrimitives() {
	c := vm.NewClass("List", nil)
	ct := vm.NewTypeVariable("ContentType")
	c.TypeVars = []*vm.TypeVariable{ct}
	c.Doc = "Generic list of objects with a current element."

	// size - recomputed from the helper on every read
	c.AddAttribute("size", vm.Int, func(h *vm.Heap, owner vm.Handle, cell *vm.AttributeCell) {
		if s, ok := h.Get(owner).Intrinsic().(*Sequence); ok {
			cell.Value = vm.IntValue(int64(s.Len()))
		}
	})

	c.AddMethod(constructor("List", nil, "Creates an empty list.",
		func(*vm.Interpreter, vm.Value, []vm.Value) (vm.Intrinsic, error) {
			return NewSequence(), nil
		}))

	c.AddMethod(method("isEmpty", nil, vm.Boolean, "True if the list contains no objects.",
		func(_ *vm.Interpreter, s *Sequence, _ []vm.Value) (vm.Value, error) {
			return vm.BoolValue(s.IsEmpty()), nil
		}))

	c.AddMethod(method("hasAccess", nil, vm.Boolean, "True if there is a current object.",
		func(_ *vm.Interpreter, s *Sequence, _ []vm.Value) (vm.Value, error) {
			return vm.BoolValue(s.HasAccess()), nil
		}))

	c.AddMethod(method("next", nil, vm.Void, "Makes the following object current; after the last one there is no current object.",
		func(_ *vm.Interpreter, s *Sequence, _ []vm.Value) (vm.Value, error) {
			s.Next()
			return vm.Null, nil
		}))

	c.AddMethod(method("toFirst", nil, vm.Void, "Makes the first object current unless the list is empty.",
		func(_ *vm.Interpreter, s *Sequence, _ []vm.Value) (vm.Value, error) {
			s.ToFirst()
			return vm.Null, nil
		}))

	c.AddMethod(method("toLast", nil, vm.Void, "Makes the last object current unless the list is empty.",
		func(_ *vm.Interpreter, s *Sequence, _ []vm.Value) (vm.Value, error) {
			s.ToLast()
			return vm.Null, nil
		}))

	c.AddMethod(method("getContent", nil, ct, "Returns the current object, or null.",
		func(_ *vm.Interpreter, s *Sequence, _ []vm.Value) (vm.Value, error) {
			return s.Content(), nil
		}))

	c.AddMethod(method("setContent", []vm.Param{param("pContent", ct)}, vm.Void, "Replaces the current object unless pContent is null.",
		func(_ *vm.Interpreter, s *Sequence, args []vm.Value) (vm.Value, error) {
			s.SetContent(args[0])
			return vm.Null, nil
		}))

	c.AddMethod(method("append", []vm.Param{param("pContent", ct)}, vm.Void, "Adds pContent at the end; the current object is unchanged.",
		func(_ *vm.Interpreter, s *Sequence, args []vm.Value) (vm.Value, error) {
			s.Append(args[0])
			return vm.Null, nil
		}))

	c.AddMethod(method("insert", []vm.Param{param("pContent", ct)}, vm.Void, "Inserts pContent before the current object.",
		func(_ *vm.Interpreter, s *Sequence, args []vm.Value) (vm.Value, error) {
			s.Insert(args[0])
			return vm.Null, nil
		}))

	c.AddMethod(method("concat", []vm.Param{param("pList", c)}, vm.Void, "Moves the objects of pList to the end of this list.",
		func(in *vm.Interpreter, s *Sequence, args []vm.Value) (vm.Value, error) {
			if args[0].IsNull() {
				return vm.Null, nil
			}
			other, err := helperOf[*Sequence](in, args[0])
			if err != nil {
				return vm.Null, err
			}
			s.Concat(other)
			return vm.Null, nil
		}))

	c.AddMethod(method("remove", nil, vm.Void, "Deletes the current object; its successor becomes current.",
		func(_ *vm.Interpreter, s *Sequence, _ []vm.Value) (vm.Value, error) {
			s.Remove()
			return vm.Null, nil
		}))

	c.AddMethod(method("toString", nil, vm.String, "",
		func(in *vm.Interpreter, s *Sequence, _ []vm.Value) (vm.Value, error) {
			return format(in, s.items)
		}))

	l.List = c
}

// newList allocates an instance of the list class c holding items, with
// the first item current.
func newList(in *vm.Interpreter, c *vm.Class, items []vm.Value) (vm.Value, error) {
	s := NewSequence(items...)
	s.ToFirst()
	return newInstance(in, c, s)
}
