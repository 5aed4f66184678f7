package stdlib

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chazu/tutor/compiler"
	"github.com/chazu/tutor/vm"
)

// run compiles src against a type table holding the library and returns
// what its main program prints.
func run(t *testing.T, src string) string {
	t.Helper()
	types := vm.NewTypeTable()
	_, err := Install(types)
	require.NoError(t, err)

	u, err := compiler.DecodeYAML([]byte(src))
	require.NoError(t, err)
	res := compiler.NewGenerator(types).Generate(u)
	require.NoError(t, res.Diagnostics.Err())

	in := vm.NewInterpreter(types)
	var out bytes.Buffer
	in.Out = &out
	_, err = in.Invoke(res.Main, vm.Null)
	require.NoError(t, err)
	return out.String()
}

func TestInstallTwice(t *testing.T) {
	types := vm.NewTypeTable()
	lib, err := Install(types)
	require.NoError(t, err)
	require.Len(t, lib.Types(), 9)
	require.Same(t, lib.Graph, types.Lookup("Graph"))

	_, err = Install(types)
	require.ErrorContains(t, err, "already declared")
}

func TestListProgram(t *testing.T) {
	out := run(t, `
main:
  - local: {type: List<String>, name: l, init: {new: {type: List<String>}}}
  - expr: {call: {name: append, on: {id: l}, args: [{string: a}]}}
  - expr: {call: {name: append, on: {id: l}, args: [{string: c}]}}
  - println: {call: {name: hasAccess, on: {id: l}}}
  - expr: {call: {name: toLast, on: {id: l}}}
  - expr: {call: {name: insert, on: {id: l}, args: [{string: b}]}}
  - println: {id: l}
  - println: {call: {name: getContent, on: {id: l}}}
  - println: {attr: {name: size, of: {id: l}}}
  - expr: {call: {name: toFirst, on: {id: l}}}
  - while:
      cond: {call: {name: hasAccess, on: {id: l}}}
      body:
        - print: {call: {name: getContent, on: {id: l}}}
        - expr: {call: {name: next, on: {id: l}}}
  - println: {string: "!"}
`)
	require.Equal(t, "false\n[a, b, c]\nc\n3\nabc!\n", out)
}

func TestListConcatProgram(t *testing.T) {
	out := run(t, `
main:
  - local: {type: List<String>, name: a, init: {new: {type: List<String>}}}
  - local: {type: List<String>, name: b, init: {new: {type: List<String>}}}
  - expr: {call: {name: append, on: {id: a}, args: [{string: x}]}}
  - expr: {call: {name: append, on: {id: b}, args: [{string: y}]}}
  - expr: {call: {name: append, on: {id: b}, args: [{string: z}]}}
  - expr: {call: {name: concat, on: {id: a}, args: [{id: b}]}}
  - println: {id: a}
  - println: {call: {name: isEmpty, on: {id: b}}}
`)
	require.Equal(t, "[x, y, z]\ntrue\n", out)
}

func TestStackAndQueueProgram(t *testing.T) {
	out := run(t, `
main:
  - local: {type: Stack<String>, name: s, init: {new: {type: Stack<String>}}}
  - expr: {call: {name: push, on: {id: s}, args: [{string: a}]}}
  - expr: {call: {name: push, on: {id: s}, args: [{string: b}]}}
  - println: {id: s}
  - println: {call: {name: top, on: {id: s}}}
  - expr: {call: {name: pop, on: {id: s}}}
  - println: {call: {name: top, on: {id: s}}}
  - expr: {call: {name: pop, on: {id: s}}}
  - expr: {call: {name: pop, on: {id: s}}}
  - println: {call: {name: isEmpty, on: {id: s}}}
  - println: {call: {name: top, on: {id: s}}}
  - local: {type: Queue<String>, name: q, init: {new: {type: Queue<String>}}}
  - expr: {call: {name: enqueue, on: {id: q}, args: [{string: x}]}}
  - expr: {call: {name: enqueue, on: {id: q}, args: [{string: y}]}}
  - println: {call: {name: front, on: {id: q}}}
  - expr: {call: {name: dequeue, on: {id: q}}}
  - println: {call: {name: front, on: {id: q}}}
  - expr: {call: {name: dequeue, on: {id: q}}}
  - expr: {call: {name: dequeue, on: {id: q}}}
  - println: {call: {name: isEmpty, on: {id: q}}}
`)
	require.Equal(t, "[a, b]\nb\na\ntrue\nnull\nx\ny\ntrue\n", out)
}

func TestBinaryTreeProgram(t *testing.T) {
	out := run(t, `
main:
  - local: {type: BinaryTree<String>, name: e, init: {new: {type: BinaryTree<String>}}}
  - println: {call: {name: isEmpty, on: {id: e}}}
  - println: {call: {name: getLeftTree, on: {id: e}}}
  - expr: {call: {name: setContent, on: {id: e}, args: [{string: r}]}}
  - println: {call: {name: isEmpty, on: {id: e}}}
  - local:
      type: BinaryTree<String>
      name: t
      init:
        new:
          type: BinaryTree<String>
          args: [{string: root}, {new: {type: BinaryTree<String>, args: [{string: l}]}}, {null: ~}]
  - println: {call: {name: getContent, on: {call: {name: getLeftTree, on: {id: t}}}}}
  - println: {call: {name: isEmpty, on: {call: {name: getRightTree, on: {id: t}}}}}
  - expr: {call: {name: setRightTree, on: {id: t}, args: [{id: e}]}}
  - println: {call: {name: getContent, on: {call: {name: getRightTree, on: {id: t}}}}}
`)
	require.Equal(t, "true\nnull\nfalse\nl\ntrue\nr\n", out)
}

const itemClass = `
classes:
  - name: Item
    implements: [ComparableContent<Item>]
    attributes: [{name: key, type: int}]
    methods:
      - name: Item
        constructor: true
        params: [{name: k, type: int}]
        body: [{expr: {binary: {op: "=", left: {id: key}, right: {id: k}}}}]
      - name: isLess
        params: [{name: other, type: Item}]
        returns: boolean
        body: [{return: {binary: {op: "<", left: {id: key}, right: {attr: {name: key, of: {id: other}}}}}}]
      - name: isGreater
        params: [{name: other, type: Item}]
        returns: boolean
        body: [{return: {binary: {op: ">", left: {id: key}, right: {attr: {name: key, of: {id: other}}}}}}]
      - name: isEqual
        params: [{name: other, type: Item}]
        returns: boolean
        body: [{return: {binary: {op: "==", left: {id: key}, right: {attr: {name: key, of: {id: other}}}}}}]
      - name: toString
        returns: String
        body: [{return: {binary: {op: "+", left: {string: "#"}, right: {id: key}}}}]
`

func TestSearchTreeProgram(t *testing.T) {
	out := run(t, itemClass+`
main:
  - local: {type: BinarySearchTree<Item>, name: t, init: {new: {type: BinarySearchTree<Item>}}}
  - expr: {call: {name: insert, on: {id: t}, args: [{new: {type: Item, args: [{int: 5}]}}]}}
  - expr: {call: {name: insert, on: {id: t}, args: [{new: {type: Item, args: [{int: 3}]}}]}}
  - expr: {call: {name: insert, on: {id: t}, args: [{new: {type: Item, args: [{int: 8}]}}]}}
  - expr: {call: {name: insert, on: {id: t}, args: [{new: {type: Item, args: [{int: 3}]}}]}}
  - println: {call: {name: getContent, on: {id: t}}}
  - println: {call: {name: getContent, on: {call: {name: getLeftTree, on: {id: t}}}}}
  - println: {call: {name: isEmpty, on: {call: {name: getLeftTree, on: {call: {name: getLeftTree, on: {id: t}}}}}}}
  - println: {call: {name: search, on: {id: t}, args: [{new: {type: Item, args: [{int: 8}]}}]}}
  - println: {call: {name: search, on: {id: t}, args: [{new: {type: Item, args: [{int: 4}]}}]}}
  - expr: {call: {name: remove, on: {id: t}, args: [{new: {type: Item, args: [{int: 5}]}}]}}
  - println: {call: {name: getContent, on: {id: t}}}
  - println: {call: {name: getContent, on: {call: {name: getLeftTree, on: {id: t}}}}}
`)
	require.Equal(t, "#5\n#3\ntrue\n#8\nnull\n#8\n#3\n", out)
}

func TestGraphProgram(t *testing.T) {
	out := run(t, `
main:
  - local: {type: Graph, name: g, init: {new: {type: Graph}}}
  - local: {type: Vertex, name: a, init: {new: {type: Vertex, args: [{string: A}]}}}
  - local: {type: Vertex, name: b, init: {new: {type: Vertex, args: [{string: B}]}}}
  - local: {type: Vertex, name: c, init: {new: {type: Vertex, args: [{string: C}]}}}
  - expr: {call: {name: addVertex, on: {id: g}, args: [{id: a}]}}
  - expr: {call: {name: addVertex, on: {id: g}, args: [{id: b}]}}
  - expr: {call: {name: addVertex, on: {id: g}, args: [{id: c}]}}
  - expr: {call: {name: addVertex, on: {id: g}, args: [{new: {type: Vertex, args: [{string: A}]}}]}}
  - println: {attr: {name: vertexCount, of: {id: g}}}
  - expr: {call: {name: addEdge, on: {id: g}, args: [{new: {type: Edge, args: [{id: a}, {id: b}, {float: 2.5}]}}]}}
  - expr: {call: {name: addEdge, on: {id: g}, args: [{new: {type: Edge, args: [{id: b}, {id: a}, {float: 1.0}]}}]}}
  - expr: {call: {name: addEdge, on: {id: g}, args: [{new: {type: Edge, args: [{id: a}, {id: c}, {float: 4.0}]}}]}}
  - println: {call: {name: getNeighbours, on: {id: g}, args: [{id: a}]}}
  - println: {call: {name: getWeight, on: {call: {name: getEdge, on: {id: g}, args: [{id: b}, {id: a}]}}}}
  - println: {call: {name: getVertices, on: {call: {name: getEdge, on: {id: g}, args: [{id: a}, {id: c}]}}}}
  - println: {call: {name: getID, on: {call: {name: getVertex, on: {id: g}, args: [{string: C}]}}}}
  - expr: {call: {name: setMark, on: {id: a}, args: [{bool: true}]}}
  - println: {call: {name: allVerticesMarked, on: {id: g}}}
  - expr: {call: {name: setAllVertexMarks, on: {id: g}, args: [{bool: true}]}}
  - println: {call: {name: allVerticesMarked, on: {id: g}}}
  - println: {attr: {name: marked, of: {id: c}}}
  - expr: {call: {name: removeVertex, on: {id: g}, args: [{id: a}]}}
  - println: {call: {name: getEdges, on: {id: g}}}
  - println: {call: {name: getVertices, on: {id: g}}}
`)
	require.Equal(t, "3\n[B, C]\n2.5\n[A, C]\nC\nfalse\ntrue\ntrue\n[]\n[B, C]\n", out)
}
