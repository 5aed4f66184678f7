package stdlib

import "github.com/chazu/tutor/vm"

// TreeNode is the helper behind BinaryTree. An empty tree has null
// content and no subtrees; a non-empty tree always has two subtrees,
// possibly empty ones.
type TreeNode struct {
	content     vm.Value
	left, right vm.Value
}

func (t *TreeNode) Kind() vm.IntrinsicKind { return vm.IntrinsicBinaryTree }

func (t *TreeNode) Refs() []vm.Value {
	return []vm.Value{t.content, t.left, t.right}
}

func (t *TreeNode) IsEmpty() bool { return t.content.IsNull() }

// emptyTree allocates an empty tree of class c.
func emptyTree(in *vm.Interpreter, c *vm.Class) (vm.Value, error) {
	return newInstance(in, c, &TreeNode{})
}

// fill gives a tree that is becoming non-empty its two empty subtrees.
func (t *TreeNode) fill(in *vm.Interpreter, c *vm.Class) error {
	var err error
	if t.left.IsNull() {
		if t.left, err = emptyTree(in, c); err != nil {
			return err
		}
	}
	if t.right.IsNull() {
		t.right, err = emptyTree(in, c)
	}
	return err
}

// ---------------------------------------------------------------------------
// BinaryTree Primitives
// ---------------------------------------------------------------------------

func (l *Library) registerBinaryTreePrimitives() {
	c := vm.NewClass("BinaryTree", nil)
	ct := vm.NewTypeVariable("ContentType")
	c.TypeVars = []*vm.TypeVariable{ct}
	c.Doc = "Generic binary tree; every non-empty tree has two subtrees."

	c.AddMethod(constructor("BinaryTree", nil, "Creates an empty tree.",
		func(*vm.Interpreter, vm.Value, []vm.Value) (vm.Intrinsic, error) {
			return &TreeNode{}, nil
		}))

	c.AddMethod(constructor("BinaryTree", []vm.Param{param("pContent", ct)},
		"Creates a tree holding pContent with two empty subtrees, or an empty tree if pContent is null.",
		func(in *vm.Interpreter, recv vm.Value, args []vm.Value) (vm.Intrinsic, error) {
			t := &TreeNode{content: args[0]}
			if t.IsEmpty() {
				return t, nil
			}
			return t, t.fill(in, recv.Class())
		}))

	c.AddMethod(constructor("BinaryTree", []vm.Param{param("pContent", ct), param("pLeftTree", c), param("pRightTree", c)},
		"Creates a tree holding pContent with the given subtrees; null subtrees are replaced by empty ones.",
		func(in *vm.Interpreter, recv vm.Value, args []vm.Value) (vm.Intrinsic, error) {
			t := &TreeNode{content: args[0]}
			if t.IsEmpty() {
				return t, nil
			}
			t.left, t.right = args[1], args[2]
			return t, t.fill(in, recv.Class())
		}))

	c.AddMethod(method("isEmpty", nil, vm.Boolean, "True if the tree holds no content.",
		func(_ *vm.Interpreter, t *TreeNode, _ []vm.Value) (vm.Value, error) {
			return vm.BoolValue(t.IsEmpty()), nil
		}))

	c.AddMethod(method("getContent", nil, ct, "Returns the content, or null for an empty tree.",
		func(_ *vm.Interpreter, t *TreeNode, _ []vm.Value) (vm.Value, error) {
			return t.content, nil
		}))

	setContent := vm.NewNativeMethod("setContent", []vm.Param{param("pContent", ct)}, vm.Void,
		func(in *vm.Interpreter, recv vm.Value, args []vm.Value) (vm.Value, error) {
			t, err := helperOf[*TreeNode](in, recv)
			if err != nil || args[0].IsNull() {
				return vm.Null, err
			}
			if t.IsEmpty() {
				if err := t.fill(in, recv.Class()); err != nil {
					return vm.Null, err
				}
			}
			t.content = args[0]
			return vm.Null, nil
		})
	setContent.Doc = "Replaces the content unless pContent is null; an empty tree gains two empty subtrees."
	c.AddMethod(setContent)

	c.AddMethod(method("getLeftTree", nil, c, "Returns the left subtree, or null for an empty tree.",
		func(_ *vm.Interpreter, t *TreeNode, _ []vm.Value) (vm.Value, error) {
			return t.left, nil
		}))

	c.AddMethod(method("getRightTree", nil, c, "Returns the right subtree, or null for an empty tree.",
		func(_ *vm.Interpreter, t *TreeNode, _ []vm.Value) (vm.Value, error) {
			return t.right, nil
		}))

	c.AddMethod(method("setLeftTree", []vm.Param{param("pTree", c)}, vm.Void, "Replaces the left subtree of a non-empty tree unless pTree is null.",
		func(_ *vm.Interpreter, t *TreeNode, args []vm.Value) (vm.Value, error) {
			if !t.IsEmpty() && !args[0].IsNull() {
				t.left = args[0]
			}
			return vm.Null, nil
		}))

	c.AddMethod(method("setRightTree", []vm.Param{param("pTree", c)}, vm.Void, "Replaces the right subtree of a non-empty tree unless pTree is null.",
		func(_ *vm.Interpreter, t *TreeNode, args []vm.Value) (vm.Value, error) {
			if !t.IsEmpty() && !args[0].IsNull() {
				t.right = args[0]
			}
			return vm.Null, nil
		}))

	l.BinaryTree = c
}
