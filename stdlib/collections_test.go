package stdlib

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/chazu/tutor/vm"
)

// env is an interpreter with the library installed, driven from Go.
type env struct {
	t     require.TestingT
	types *vm.TypeTable
	lib   *Library
	in    *vm.Interpreter
}

func newEnv(t require.TestingT) *env {
	types := vm.NewTypeTable()
	lib, err := Install(types)
	require.NoError(t, err)
	return &env{t: t, types: types, lib: lib, in: vm.NewInterpreter(types)}
}

func (e *env) instantiate(template vm.Type, args ...vm.Type) *vm.Class {
	c, err := e.types.Instantiate(template, args...)
	require.NoError(e.t, err)
	return c.(*vm.Class)
}

// construct allocates an instance of c and runs the constructor matching
// args.
func (e *env) construct(c *vm.Class, args ...vm.Value) vm.Value {
	types := make([]vm.Type, len(args))
	for i, a := range args {
		types[i] = vm.TypeOf(a)
	}
	ctor := c.FindConstructor(types)
	require.NotNil(e.t, ctor, "no constructor of %s for %v", c.Name(), types)
	v, err := e.in.Heap.Instantiate(c)
	require.NoError(e.t, err)
	_, err = e.in.Invoke(ctor, v, args...)
	require.NoError(e.t, err)
	return v
}

func (e *env) call(recv vm.Value, name string, args ...vm.Value) vm.Value {
	r := e.in.CallMethod(recv, name, args...)
	require.NoError(e.t, r.Err())
	return r.Value
}

// numClass declares Num, a native ComparableContent ordered by its n
// attribute.
func (e *env) numClass() (*vm.Class, func(int64) vm.Value) {
	c := vm.NewClass("Num", nil)
	n := c.AddAttribute("n", vm.Int, nil)
	cc, err := e.types.Instantiate(e.lib.ComparableContent, c)
	require.NoError(e.t, err)
	c.Interfaces = []*vm.Interface{cc.(*vm.Interface)}

	compare := func(name string, ok func(a, b int64) bool) {
		c.AddMethod(vm.NewNativeMethod(name, []vm.Param{{Name: "o", Type: c}}, vm.Boolean,
			func(in *vm.Interpreter, recv vm.Value, args []vm.Value) (vm.Value, error) {
				a, err := in.Heap.Read(recv, n.Index)
				if err != nil {
					return vm.Null, err
				}
				b, err := in.Heap.Read(args[0], n.Index)
				if err != nil {
					return vm.Null, err
				}
				return vm.BoolValue(ok(a.AsInt(), b.AsInt())), nil
			}))
	}
	compare("isLess", func(a, b int64) bool { return a < b })
	compare("isGreater", func(a, b int64) bool { return a > b })
	compare("isEqual", func(a, b int64) bool { return a == b })
	require.NoError(e.t, e.types.Declare(c))

	return c, func(x int64) vm.Value {
		v, err := e.in.Heap.Instantiate(c)
		require.NoError(e.t, err)
		require.NoError(e.t, e.in.Heap.Write(v, n.Index, vm.IntValue(x)))
		return v
	}
}

// inorder returns the contents of a search tree in order, read through
// the n attribute of Num.
func (e *env) inorder(tree vm.Value, num *vm.Class) []int64 {
	node, err := helperOf[*SearchNode](e.in, tree)
	require.NoError(e.t, err)
	if node.IsEmpty() {
		return nil
	}
	idx := num.LookupAttribute("n").Index
	v, err := e.in.Heap.Read(node.content, idx)
	require.NoError(e.t, err)
	out := e.inorder(node.left, num)
	out = append(out, v.AsInt())
	return append(out, e.inorder(node.right, num)...)
}

func TestSearchTreeNativeContents(t *testing.T) {
	e := newEnv(t)
	num, mk := e.numClass()
	tree := e.construct(e.instantiate(e.lib.BinarySearchTree, num))

	for _, x := range []int64{5, 3, 8, 3} {
		e.call(tree, "insert", mk(x))
	}
	require.Equal(t, []int64{3, 5, 8}, e.inorder(tree, num))

	e.call(tree, "insert", vm.Null)
	e.call(tree, "remove", mk(42))
	require.Equal(t, []int64{3, 5, 8}, e.inorder(tree, num))
}

func TestSearchTreeBoundRejectsPlainClass(t *testing.T) {
	e := newEnv(t)
	plain := vm.NewClass("Plain", nil)
	_, err := e.types.Instantiate(e.lib.BinarySearchTree, plain)
	require.ErrorContains(t, err, "does not satisfy bound")
}

func TestSearchTreeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := newEnv(t)
		num, mk := e.numClass()
		tree := e.construct(e.instantiate(e.lib.BinarySearchTree, num))

		keys := rapid.SliceOf(rapid.Int64Range(-20, 20)).Draw(t, "keys")
		present := map[int64]bool{}
		for _, k := range keys {
			e.call(tree, "insert", mk(k))
			present[k] = true
		}
		removed := rapid.SliceOf(rapid.Int64Range(-20, 20)).Draw(t, "removed")
		for _, k := range removed {
			e.call(tree, "remove", mk(k))
			delete(present, k)
		}

		var want []int64
		for k := range present {
			want = append(want, k)
		}
		slices.Sort(want)
		require.Equal(t, want, e.inorder(tree, num), "contents are sorted and unique")

		probe := rapid.Int64Range(-20, 20).Draw(t, "probe")
		found := e.call(tree, "search", mk(probe))
		require.Equal(t, present[probe], !found.IsNull())
	})
}

func TestBinaryTreeSubtreesShareClass(t *testing.T) {
	e := newEnv(t)
	bt := e.instantiate(e.lib.BinaryTree, vm.String)
	tree := e.construct(bt, vm.StringValue("x"))
	left := e.call(tree, "getLeftTree")
	require.Same(t, bt, left.Class())
	require.True(t, e.call(left, "isEmpty").AsBool())

	e.call(tree, "setLeftTree", vm.Null)
	require.Equal(t, left, e.call(tree, "getLeftTree"), "null subtree is ignored")
}

func (e *env) vertex(id string) vm.Value {
	return e.construct(e.lib.Vertex, vm.StringValue(id))
}

func (e *env) edge(a, b vm.Value, w float64) vm.Value {
	return e.construct(e.lib.Edge, a, b, vm.FloatValue(w))
}

// listItems returns the elements of a List instance.
func (e *env) listItems(v vm.Value) []vm.Value {
	s, err := helperOf[*Sequence](e.in, v)
	require.NoError(e.t, err)
	return s.Items()
}

func TestGraphAddVertexDuplicateID(t *testing.T) {
	e := newEnv(t)
	g := e.construct(e.lib.Graph)
	a := e.vertex("A")
	e.call(g, "addVertex", a)
	e.call(g, "addVertex", e.vertex("A"))
	e.call(g, "addVertex", vm.Null)
	e.call(g, "addVertex", e.construct(e.lib.Vertex, vm.Null))

	vs := e.listItems(e.call(g, "getVertices"))
	require.Len(t, vs, 1)
	require.True(t, same(a, vs[0]))
	require.Equal(t, a, e.call(g, "getVertex", vm.StringValue("A")))
	require.True(t, e.call(g, "getVertex", vm.StringValue("Z")).IsNull())
}

func TestGraphAddEdgeRules(t *testing.T) {
	e := newEnv(t)
	g := e.construct(e.lib.Graph)
	a, b, outside := e.vertex("A"), e.vertex("B"), e.vertex("X")
	e.call(g, "addVertex", a)
	e.call(g, "addVertex", b)

	tests := []struct {
		name string
		edge vm.Value
		want int
	}{
		{name: "new edge", edge: e.edge(a, b, 1), want: 1},
		{name: "parallel edge", edge: e.edge(b, a, 2), want: 1},
		{name: "loop", edge: e.edge(a, a, 1), want: 1},
		{name: "foreign vertex", edge: e.edge(a, outside, 1), want: 1},
		{name: "null", edge: vm.Null, want: 1},
	}
	for _, tt := range tests {
		e.call(g, "addEdge", tt.edge)
		require.Len(t, e.listItems(e.call(g, "getEdges")), tt.want, tt.name)
	}
	require.Equal(t, 1.0, e.call(e.call(g, "getEdge", b, a), "getWeight").AsFloat())
}

func TestGraphRemoveVertexDropsEdges(t *testing.T) {
	e := newEnv(t)
	g := e.construct(e.lib.Graph)
	a, b, c := e.vertex("A"), e.vertex("B"), e.vertex("C")
	for _, v := range []vm.Value{a, b, c} {
		e.call(g, "addVertex", v)
	}
	ab, bc := e.edge(a, b, 1), e.edge(b, c, 1)
	e.call(g, "addEdge", ab)
	e.call(g, "addEdge", bc)

	e.call(g, "removeVertex", b)
	require.Empty(t, e.listItems(e.call(g, "getEdges", b)))
	require.Empty(t, e.listItems(e.call(g, "getEdges")))
	require.Empty(t, e.listItems(e.call(g, "getNeighbours", a)))
	require.Len(t, e.listItems(e.call(g, "getVertices")), 2)

	e.call(g, "removeEdge", ab)
	require.False(t, e.call(g, "isEmpty").AsBool())
}

func TestGraphMarks(t *testing.T) {
	e := newEnv(t)
	g := e.construct(e.lib.Graph)
	require.True(t, e.call(g, "allVerticesMarked").AsBool())
	a, b := e.vertex("A"), e.vertex("B")
	e.call(g, "addVertex", a)
	e.call(g, "addVertex", b)
	ab := e.edge(a, b, 1)
	e.call(g, "addEdge", ab)

	e.call(g, "setAllEdgeMarks", vm.BoolValue(true))
	require.True(t, e.call(ab, "isMarked").AsBool())
	require.True(t, e.call(g, "allEdgesMarked").AsBool())
	e.call(ab, "setMark", vm.BoolValue(false))
	require.False(t, e.call(g, "allEdgesMarked").AsBool())

	e.call(b, "setMark", vm.BoolValue(true))
	require.False(t, e.call(g, "allVerticesMarked").AsBool())
	idx := e.lib.Vertex.LookupAttribute("marked").Index
	marked, err := e.in.Heap.Read(b, idx)
	require.NoError(t, err)
	require.True(t, marked.AsBool())
}

// TestGraphInvariants adds and removes random vertices and edges and
// checks that ids stay unique, every edge joins two vertices of the graph
// and no two edges join the same pair.
func TestGraphInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := newEnv(t)
		g := e.construct(e.lib.Graph)
		ids := []string{"A", "B", "C", "D"}
		var pool []vm.Value

		for i := rapid.IntRange(0, 30).Draw(t, "steps"); i > 0; i-- {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				v := e.vertex(rapid.SampledFrom(ids).Draw(t, "id"))
				pool = append(pool, v)
				e.call(g, "addVertex", v)
			case 1:
				if len(pool) == 0 {
					continue
				}
				a := rapid.SampledFrom(pool).Draw(t, "a")
				b := rapid.SampledFrom(pool).Draw(t, "b")
				e.call(g, "addEdge", e.edge(a, b, 1))
			case 2:
				if len(pool) == 0 {
					continue
				}
				e.call(g, "removeVertex", rapid.SampledFrom(pool).Draw(t, "victim"))
			case 3:
				edges := e.listItems(e.call(g, "getEdges"))
				if len(edges) > 0 {
					e.call(g, "removeEdge", rapid.SampledFrom(edges).Draw(t, "edge"))
				}
			}
		}

		vertices := e.listItems(e.call(g, "getVertices"))
		seen := map[string]bool{}
		for _, v := range vertices {
			id := e.call(v, "getID").AsString()
			require.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
		contains := func(v vm.Value) bool {
			return slices.ContainsFunc(vertices, func(w vm.Value) bool { return same(v, w) })
		}
		pairs := map[[2]vm.Handle]bool{}
		for _, ed := range e.listItems(e.call(g, "getEdges")) {
			ends := e.listItems(e.call(ed, "getVertices"))
			require.Len(t, ends, 2)
			require.True(t, contains(ends[0]) && contains(ends[1]), "edge endpoint outside the graph")
			require.False(t, same(ends[0], ends[1]), "loop edge")
			k := [2]vm.Handle{ends[0].Handle(), ends[1].Handle()}
			if k[0] > k[1] {
				k[0], k[1] = k[1], k[0]
			}
			require.False(t, pairs[k], "parallel edge")
			pairs[k] = true
		}
	})
}
