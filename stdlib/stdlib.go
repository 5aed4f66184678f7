// Package stdlib provides the native collection classes of the tutor
// runtime: List, Stack, Queue, BinaryTree, BinarySearchTree and the graph
// classes Vertex, Edge and Graph, plus the ComparableContent interface the
// search tree orders its contents by.
//
// Every class keeps its state in a helper stored in the instance's
// intrinsic slot by the native constructor. Helpers refer to other
// instances by value, so they never keep the heap graph alive on their
// own. When a helper needs an answer from user code (the search tree
// comparing contents) it calls through vm.Interpreter.CallMethod, which
// treats native and interpreted methods alike.
package stdlib

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/tutor/vm"
)

var log = commonlog.GetLogger("tutor.stdlib")

// Library holds the descriptors installed into a type table.
type Library struct {
	ComparableContent *vm.Interface
	List              *vm.Class
	Stack             *vm.Class
	Queue             *vm.Class
	BinaryTree        *vm.Class
	BinarySearchTree  *vm.Class
	Vertex            *vm.Class
	Edge              *vm.Class
	Graph             *vm.Class

	vertexList *vm.Class // List<Vertex>
	edgeList   *vm.Class // List<Edge>
}

// Install declares the native classes in types. It fails if one of their
// names is already taken.
func Install(types *vm.TypeTable) (*Library, error) {
	l := &Library{}

	l.registerComparableContent()
	l.registerListPrimitives()
	l.registerStackPrimitives()
	l.registerQueuePrimitives()
	l.registerBinaryTreePrimitives()
	l.registerSearchTreePrimitives()

	// The graph classes mention List<Vertex> and List<Edge> in their
	// signatures, so each list is instantiated before the next class is
	// registered.
	l.registerVertexPrimitives()
	vl, err := types.Instantiate(l.List, l.Vertex)
	if err != nil {
		return nil, err
	}
	l.vertexList = vl.(*vm.Class)
	l.registerEdgePrimitives()
	el, err := types.Instantiate(l.List, l.Edge)
	if err != nil {
		return nil, err
	}
	l.edgeList = el.(*vm.Class)
	l.registerGraphPrimitives()

	all := l.Types()
	for _, t := range all {
		if err := types.Declare(t); err != nil {
			return nil, fmt.Errorf("install %s: %w", t.Name(), err)
		}
	}
	log.Debugf("installed %d native types", len(all))
	return l, nil
}

// Types returns the installed types in declaration order.
func (l *Library) Types() []vm.Type {
	return []vm.Type{l.ComparableContent, l.List, l.Stack, l.Queue, l.BinaryTree, l.BinarySearchTree, l.Vertex, l.Edge, l.Graph}
}

// ---------------------------------------------------------------------------
// Helpers shared by the native classes
// ---------------------------------------------------------------------------

func param(name string, t vm.Type) vm.Param {
	return vm.Param{Name: name, Type: t, Final: true}
}

// helperOf returns the intrinsic helper of the instance v refers to.
func helperOf[T vm.Intrinsic](in *vm.Interpreter, v vm.Value) (T, error) {
	var zero T
	obj, err := in.Heap.Deref(v)
	if err != nil {
		return zero, err
	}
	h, ok := obj.Intrinsic().(T)
	if !ok {
		return zero, fmt.Errorf("%s instance was not initialized by a %T constructor", obj.Class.Name(), zero)
	}
	return h, nil
}

// method builds a native method that operates on the receiver's helper.
func method[T vm.Intrinsic](name string, params []vm.Param, ret vm.Type, doc string,
	fn func(in *vm.Interpreter, h T, args []vm.Value) (vm.Value, error)) *vm.Method {
	m := vm.NewNativeMethod(name, params, ret, func(in *vm.Interpreter, recv vm.Value, args []vm.Value) (vm.Value, error) {
		h, err := helperOf[T](in, recv)
		if err != nil {
			return vm.Null, err
		}
		return fn(in, h, args)
	})
	m.Doc = doc
	return m
}

// constructor builds a native constructor storing the helper returned by
// build in the new instance.
func constructor(name string, params []vm.Param, doc string,
	build func(in *vm.Interpreter, recv vm.Value, args []vm.Value) (vm.Intrinsic, error)) *vm.Method {
	m := vm.NewNativeConstructor(name, params, func(in *vm.Interpreter, recv vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := in.Heap.Deref(recv)
		if err != nil {
			return vm.Null, err
		}
		x, err := build(in, recv, args)
		if err != nil {
			return vm.Null, err
		}
		obj.SetIntrinsic(x)
		return vm.Null, nil
	})
	m.Doc = doc
	return m
}

// newInstance allocates an instance of c whose helper is x, without
// running a constructor.
func newInstance(in *vm.Interpreter, c *vm.Class, x vm.Intrinsic) (vm.Value, error) {
	v, err := in.Heap.Instantiate(c)
	if err != nil {
		return vm.Null, err
	}
	in.Heap.Get(v.Handle()).SetIntrinsic(x)
	return v, nil
}

// same compares two values by identity.
func same(a, b vm.Value) bool {
	if a.IsRef() && b.IsRef() {
		return a.Handle() == b.Handle()
	}
	return a.IsNull() && b.IsNull()
}
