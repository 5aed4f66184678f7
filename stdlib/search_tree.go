package stdlib

import "github.com/chazu/tutor/vm"

// ---------------------------------------------------------------------------
// ComparableContent
// ---------------------------------------------------------------------------

func (l *Library) registerComparableContent() {
	i := vm.NewInterface("ComparableContent")
	ct := vm.NewTypeVariable("ContentType")
	i.TypeVars = []*vm.TypeVariable{ct}
	i.Doc = "Contents of a BinarySearchTree order themselves through these three predicates."

	for _, name := range []string{"isLess", "isGreater", "isEqual"} {
		i.AddMethod(vm.NewAbstractMethod(name, []vm.Param{param("pContent", ct)}, vm.Boolean))
	}
	l.ComparableContent = i
}

// ---------------------------------------------------------------------------
// SearchNode: the helper behind BinarySearchTree
// ---------------------------------------------------------------------------

// SearchNode holds one node of a search tree. A non-empty node has two
// subtrees, possibly empty, which are instances of the same class as the
// node. All contents in the left subtree are less than the node's content
// and all in the right subtree are greater.
type SearchNode struct {
	content     vm.Value
	left, right vm.Value
}

func (n *SearchNode) Kind() vm.IntrinsicKind { return vm.IntrinsicSearchTree }

func (n *SearchNode) Refs() []vm.Value {
	return []vm.Value{n.content, n.left, n.right}
}

func (n *SearchNode) IsEmpty() bool { return n.content.IsNull() }

// searchTree couples a node with the interpreter that runs the comparison
// methods and the class new subtrees are created with.
type searchTree struct {
	in    *vm.Interpreter
	class *vm.Class
}

func (st searchTree) node(v vm.Value) (*SearchNode, error) {
	return helperOf[*SearchNode](st.in, v)
}

// compare reports how the content of n relates to x: -1 when it is less,
// 1 when it is greater, 0 otherwise.
func (st searchTree) compare(n *SearchNode, x vm.Value) (int, error) {
	less, err := st.in.CallPredicate(n.content, "isLess", x)
	if err != nil || less {
		return -1, err
	}
	greater, err := st.in.CallPredicate(n.content, "isGreater", x)
	if err != nil || greater {
		return 1, err
	}
	return 0, nil
}

// Insert adds x unless an equal content is already present.
func (st searchTree) Insert(n *SearchNode, x vm.Value) error {
	for {
		if x.IsNull() {
			return nil
		}
		if n.IsEmpty() {
			var err error
			if n.left, err = newInstance(st.in, st.class, &SearchNode{}); err != nil {
				return err
			}
			if n.right, err = newInstance(st.in, st.class, &SearchNode{}); err != nil {
				return err
			}
			n.content = x
			return nil
		}
		ord, err := st.compare(n, x)
		if err != nil {
			return err
		}
		next := n.left
		switch ord {
		case -1:
			next = n.right
		case 0:
			return nil
		}
		if n, err = st.node(next); err != nil {
			return err
		}
	}
}

// Search returns the stored content equal to x, or null.
func (st searchTree) Search(n *SearchNode, x vm.Value) (vm.Value, error) {
	for !n.IsEmpty() && !x.IsNull() {
		ord, err := st.compare(n, x)
		if err != nil {
			return vm.Null, err
		}
		next := n.left
		switch ord {
		case -1:
			next = n.right
		case 0:
			eq, err := st.in.CallPredicate(n.content, "isEqual", x)
			if err != nil || !eq {
				return vm.Null, err
			}
			return n.content, nil
		}
		if n, err = st.node(next); err != nil {
			return vm.Null, err
		}
	}
	return vm.Null, nil
}

// Remove deletes the content equal to x, if present. A node with two
// non-empty subtrees takes the smallest content of its right subtree.
func (st searchTree) Remove(n *SearchNode, x vm.Value) error {
	for !n.IsEmpty() && !x.IsNull() {
		ord, err := st.compare(n, x)
		if err != nil {
			return err
		}
		if ord != 0 {
			next := n.left
			if ord < 0 {
				next = n.right
			}
			if n, err = st.node(next); err != nil {
				return err
			}
			continue
		}

		left, err := st.node(n.left)
		if err != nil {
			return err
		}
		right, err := st.node(n.right)
		if err != nil {
			return err
		}
		switch {
		case left.IsEmpty() && right.IsEmpty():
			*n = SearchNode{}
		case right.IsEmpty():
			*n = *left
		case left.IsEmpty():
			*n = *right
		default:
			succ := right
			for {
				l, err := st.node(succ.left)
				if err != nil {
					return err
				}
				if l.IsEmpty() {
					break
				}
				succ = l
			}
			n.content = succ.content
			n, x = right, succ.content
			continue
		}
		return nil
	}
	return nil
}

// ---------------------------------------------------------------------------
// BinarySearchTree Primitives
// ---------------------------------------------------------------------------

// treeMethod builds a search tree method that needs the receiver's class.
func treeMethod(name string, params []vm.Param, ret vm.Type, doc string,
	fn func(st searchTree, n *SearchNode, args []vm.Value) (vm.Value, error)) *vm.Method {
	m := vm.NewNativeMethod(name, params, ret, func(in *vm.Interpreter, recv vm.Value, args []vm.Value) (vm.Value, error) {
		n, err := helperOf[*SearchNode](in, recv)
		if err != nil {
			return vm.Null, err
		}
		return fn(searchTree{in: in, class: recv.Class()}, n, args)
	})
	m.Doc = doc
	return m
}

func (l *Library) registerSearchTreePrimitives() {
	c := vm.NewClass("BinarySearchTree", nil)
	ct := vm.NewTypeVariable("ContentType")
	ct.Narrow(l.ComparableContent)
	c.TypeVars = []*vm.TypeVariable{ct}
	c.Doc = "Binary search tree over contents implementing ComparableContent; equal contents are stored once."

	c.AddMethod(constructor("BinarySearchTree", nil, "Creates an empty search tree.",
		func(*vm.Interpreter, vm.Value, []vm.Value) (vm.Intrinsic, error) {
			return &SearchNode{}, nil
		}))

	c.AddMethod(method("isEmpty", nil, vm.Boolean, "True if the tree holds no content.",
		func(_ *vm.Interpreter, n *SearchNode, _ []vm.Value) (vm.Value, error) {
			return vm.BoolValue(n.IsEmpty()), nil
		}))

	c.AddMethod(treeMethod("insert", []vm.Param{param("pContent", ct)}, vm.Void,
		"Inserts pContent unless it is null or an equal content is present.",
		func(st searchTree, n *SearchNode, args []vm.Value) (vm.Value, error) {
			return vm.Null, st.Insert(n, args[0])
		}))

	c.AddMethod(treeMethod("remove", []vm.Param{param("pContent", ct)}, vm.Void,
		"Removes the content equal to pContent, if present.",
		func(st searchTree, n *SearchNode, args []vm.Value) (vm.Value, error) {
			return vm.Null, st.Remove(n, args[0])
		}))

	c.AddMethod(treeMethod("search", []vm.Param{param("pContent", ct)}, ct,
		"Returns the content equal to pContent, or null.",
		func(st searchTree, n *SearchNode, args []vm.Value) (vm.Value, error) {
			return st.Search(n, args[0])
		}))

	c.AddMethod(method("getContent", nil, ct, "Returns the content of the root, or null for an empty tree.",
		func(_ *vm.Interpreter, n *SearchNode, _ []vm.Value) (vm.Value, error) {
			return n.content, nil
		}))

	c.AddMethod(method("getLeftTree", nil, c, "Returns the left subtree, or null for an empty tree.",
		func(_ *vm.Interpreter, n *SearchNode, _ []vm.Value) (vm.Value, error) {
			return n.left, nil
		}))

	c.AddMethod(method("getRightTree", nil, c, "Returns the right subtree, or null for an empty tree.",
		func(_ *vm.Interpreter, n *SearchNode, _ []vm.Value) (vm.Value, error) {
			return n.right, nil
		}))

	l.BinarySearchTree = c
}
