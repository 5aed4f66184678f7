package vm

import "fmt"

// Handle identifies an instance in a Heap. The zero Handle is null.
type Handle uint32

// ---------------------------------------------------------------------------
// Intrinsic data
// ---------------------------------------------------------------------------

// IntrinsicKind tags the helper a native class keeps in an instance.
type IntrinsicKind uint8

const (
	IntrinsicSequence IntrinsicKind = iota + 1
	IntrinsicStack
	IntrinsicQueue
	IntrinsicBinaryTree
	IntrinsicSearchTree
	IntrinsicVertex
	IntrinsicEdge
	IntrinsicGraph
)

var intrinsicNames = map[IntrinsicKind]string{
	IntrinsicSequence:   "sequence",
	IntrinsicStack:      "stack",
	IntrinsicQueue:      "queue",
	IntrinsicBinaryTree: "binary-tree",
	IntrinsicSearchTree: "search-tree",
	IntrinsicVertex:     "vertex",
	IntrinsicEdge:       "edge",
	IntrinsicGraph:      "graph",
}

func (k IntrinsicKind) String() string {
	if s, ok := intrinsicNames[k]; ok {
		return s
	}
	return fmt.Sprintf("intrinsic(%d)", uint8(k))
}

// Intrinsic is host-side state owned by a native class instance. Helpers
// refer to other instances by value (handle), never by pointer; Refs
// exposes those values to the collector.
type Intrinsic interface {
	Kind() IntrinsicKind
	Refs() []Value
}

// ---------------------------------------------------------------------------
// Object: runtime instance
// ---------------------------------------------------------------------------

// AttributeCell holds one attribute of an instance.
type AttributeCell struct {
	Type      Type
	Value     Value
	Recompute RecomputeFunc
	Owner     Handle // weak back-reference used by Recompute
}

// Object is a runtime instance: its class, the flattened attribute vector
// and the intrinsic slot.
type Object struct {
	Class     *Class
	Attrs     []AttributeCell
	intrinsic Intrinsic
	marked    bool
}

// Intrinsic returns the helper stored by the native constructor, or nil.
func (o *Object) Intrinsic() Intrinsic {
	return o.intrinsic
}

// SetIntrinsic stores the helper. It may be called once per instance.
func (o *Object) SetIntrinsic(x Intrinsic) {
	if o.intrinsic != nil {
		panic(ContractViolation{Msg: fmt.Sprintf("%s instance already has %s intrinsic data", o.Class.Name(), o.intrinsic.Kind())})
	}
	o.intrinsic = x
}
