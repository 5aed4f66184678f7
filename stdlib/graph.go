package stdlib

import "github.com/chazu/tutor/vm"

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// VertexData is the helper behind Vertex.
type VertexData struct {
	id     vm.Value // String or null
	marked bool
}

func (v *VertexData) Kind() vm.IntrinsicKind { return vm.IntrinsicVertex }
func (v *VertexData) Refs() []vm.Value       { return nil }

func (v *VertexData) hasID(id vm.Value) bool {
	return v.id.Kind() == vm.KindString && id.Kind() == vm.KindString && v.id.AsString() == id.AsString()
}

// EdgeData is the helper behind Edge. The edge is undirected; a and b are
// its endpoints in construction order.
type EdgeData struct {
	a, b   vm.Value
	weight float64
	marked bool
}

func (e *EdgeData) Kind() vm.IntrinsicKind { return vm.IntrinsicEdge }
func (e *EdgeData) Refs() []vm.Value       { return []vm.Value{e.a, e.b} }

// touches reports whether v is one of the endpoints.
func (e *EdgeData) touches(v vm.Value) bool { return same(e.a, v) || same(e.b, v) }

// connects reports whether the edge joins v and w, in either order.
func (e *EdgeData) connects(v, w vm.Value) bool {
	return same(e.a, v) && same(e.b, w) || same(e.a, w) && same(e.b, v)
}

// other returns the endpoint opposite v.
func (e *EdgeData) other(v vm.Value) vm.Value {
	if same(e.a, v) {
		return e.b
	}
	return e.a
}

// GraphData is the helper behind Graph: its vertex set and edge set.
type GraphData struct {
	vertices *Sequence
	edges    *Sequence
}

func (g *GraphData) Kind() vm.IntrinsicKind { return vm.IntrinsicGraph }

func (g *GraphData) Refs() []vm.Value {
	return append(g.vertices.Items(), g.edges.Refs()...)
}

// graphOp gives the graph operations access to the vertex and edge
// helpers on the heap.
type graphOp struct {
	in *vm.Interpreter
	g  *GraphData
}

func (op graphOp) edge(v vm.Value) *EdgeData {
	e, err := helperOf[*EdgeData](op.in, v)
	if err != nil {
		panic(vm.ContractViolation{Msg: "graph holds a non-edge: " + err.Error()})
	}
	return e
}

func (op graphOp) vertex(v vm.Value) *VertexData {
	x, err := helperOf[*VertexData](op.in, v)
	if err != nil {
		panic(vm.ContractViolation{Msg: "graph holds a non-vertex: " + err.Error()})
	}
	return x
}

// VertexByID returns the vertex with the given id, or null.
func (op graphOp) VertexByID(id vm.Value) vm.Value {
	for _, v := range op.g.vertices.items {
		if op.vertex(v).hasID(id) {
			return v
		}
	}
	return vm.Null
}

// AddVertex adds v unless it is null, has no id, or its id is taken.
func (op graphOp) AddVertex(v vm.Value) error {
	if v.IsNull() {
		return nil
	}
	x, err := helperOf[*VertexData](op.in, v)
	if err != nil {
		return err
	}
	if x.id.IsNull() || !op.VertexByID(x.id).IsNull() {
		return nil
	}
	op.g.vertices.Append(v)
	return nil
}

// AddEdge adds e if both endpoints are distinct vertices of the graph that
// are not connected yet.
func (op graphOp) AddEdge(e vm.Value) error {
	if e.IsNull() {
		return nil
	}
	x, err := helperOf[*EdgeData](op.in, e)
	if err != nil {
		return err
	}
	if same(x.a, x.b) || op.g.vertices.IndexOf(x.a) < 0 || op.g.vertices.IndexOf(x.b) < 0 {
		return nil
	}
	if !op.EdgeBetween(x.a, x.b).IsNull() {
		return nil
	}
	op.g.edges.Append(e)
	return nil
}

// RemoveVertex deletes v together with every edge incident to it.
func (op graphOp) RemoveVertex(v vm.Value) {
	if op.g.vertices.IndexOf(v) < 0 {
		return
	}
	op.g.edges.RemoveIf(func(e vm.Value) bool { return op.edge(e).touches(v) })
	op.g.vertices.RemoveIf(func(w vm.Value) bool { return same(w, v) })
}

func (op graphOp) RemoveEdge(e vm.Value) {
	op.g.edges.RemoveIf(func(f vm.Value) bool { return same(f, e) })
}

// EdgesOf returns the edges incident to v.
func (op graphOp) EdgesOf(v vm.Value) []vm.Value {
	var out []vm.Value
	for _, e := range op.g.edges.items {
		if op.edge(e).touches(v) {
			out = append(out, e)
		}
	}
	return out
}

// Neighbours returns the vertices joined to v by an edge.
func (op graphOp) Neighbours(v vm.Value) []vm.Value {
	var out []vm.Value
	for _, e := range op.EdgesOf(v) {
		out = append(out, op.edge(e).other(v))
	}
	return out
}

// EdgeBetween returns the edge joining v and w, or null.
func (op graphOp) EdgeBetween(v, w vm.Value) vm.Value {
	for _, e := range op.g.edges.items {
		if op.edge(e).connects(v, w) {
			return e
		}
	}
	return vm.Null
}

// ---------------------------------------------------------------------------
// Vertex Primitives
// ---------------------------------------------------------------------------

func (l *Library) registerVertexPrimitives() {
	c := vm.NewClass("Vertex", nil)
	c.Doc = "Graph vertex identified by a string id; carries a mark."

	// marked - mirrors the helper's mark
	c.AddAttribute("marked", vm.Boolean, func(h *vm.Heap, owner vm.Handle, cell *vm.AttributeCell) {
		if x, ok := h.Get(owner).Intrinsic().(*VertexData); ok {
			cell.Value = vm.BoolValue(x.marked)
		}
	})

	c.AddMethod(constructor("Vertex", []vm.Param{param("pID", vm.String)}, "Creates an unmarked vertex with the given id.",
		func(_ *vm.Interpreter, _ vm.Value, args []vm.Value) (vm.Intrinsic, error) {
			return &VertexData{id: args[0]}, nil
		}))

	c.AddMethod(method("getID", nil, vm.String, "Returns the id.",
		func(_ *vm.Interpreter, x *VertexData, _ []vm.Value) (vm.Value, error) {
			return x.id, nil
		}))

	c.AddMethod(method("setMark", []vm.Param{param("pMark", vm.Boolean)}, vm.Void, "",
		func(_ *vm.Interpreter, x *VertexData, args []vm.Value) (vm.Value, error) {
			x.marked = args[0].AsBool()
			return vm.Null, nil
		}))

	c.AddMethod(method("isMarked", nil, vm.Boolean, "",
		func(_ *vm.Interpreter, x *VertexData, _ []vm.Value) (vm.Value, error) {
			return vm.BoolValue(x.marked), nil
		}))

	c.AddMethod(method("toString", nil, vm.String, "",
		func(_ *vm.Interpreter, x *VertexData, _ []vm.Value) (vm.Value, error) {
			return vm.StringValue(x.id.String()), nil
		}))

	l.Vertex = c
}

// ---------------------------------------------------------------------------
// Edge Primitives
// ---------------------------------------------------------------------------

func (l *Library) registerEdgePrimitives() {
	c := vm.NewClass("Edge", nil)
	c.Doc = "Weighted undirected edge between two vertices; carries a mark."

	c.AddMethod(constructor("Edge", []vm.Param{param("pVertex", l.Vertex), param("pAnotherVertex", l.Vertex), param("pWeight", vm.Float)},
		"Creates an unmarked edge joining the two vertices.",
		func(_ *vm.Interpreter, _ vm.Value, args []vm.Value) (vm.Intrinsic, error) {
			return &EdgeData{a: args[0], b: args[1], weight: args[2].AsFloat()}, nil
		}))

	c.AddMethod(method("getVertices", nil, l.vertexList, "Returns a list of the two endpoints.",
		func(in *vm.Interpreter, e *EdgeData, _ []vm.Value) (vm.Value, error) {
			return newList(in, l.vertexList, []vm.Value{e.a, e.b})
		}))

	c.AddMethod(method("getWeight", nil, vm.Float, "",
		func(_ *vm.Interpreter, e *EdgeData, _ []vm.Value) (vm.Value, error) {
			return vm.FloatValue(e.weight), nil
		}))

	c.AddMethod(method("setWeight", []vm.Param{param("pWeight", vm.Float)}, vm.Void, "",
		func(_ *vm.Interpreter, e *EdgeData, args []vm.Value) (vm.Value, error) {
			e.weight = args[0].AsFloat()
			return vm.Null, nil
		}))

	c.AddMethod(method("setMark", []vm.Param{param("pMark", vm.Boolean)}, vm.Void, "",
		func(_ *vm.Interpreter, e *EdgeData, args []vm.Value) (vm.Value, error) {
			e.marked = args[0].AsBool()
			return vm.Null, nil
		}))

	c.AddMethod(method("isMarked", nil, vm.Boolean, "",
		func(_ *vm.Interpreter, e *EdgeData, _ []vm.Value) (vm.Value, error) {
			return vm.BoolValue(e.marked), nil
		}))

	l.Edge = c
}

// ---------------------------------------------------------------------------
// Graph Primitives
// ---------------------------------------------------------------------------

// graphMethod builds a Graph method operating through a graphOp.
func graphMethod(name string, params []vm.Param, ret vm.Type, doc string,
	fn func(op graphOp, args []vm.Value) (vm.Value, error)) *vm.Method {
	return method(name, params, ret, doc, func(in *vm.Interpreter, g *GraphData, args []vm.Value) (vm.Value, error) {
		return fn(graphOp{in: in, g: g}, args)
	})
}

func (l *Library) registerGraphPrimitives() {
	c := vm.NewClass("Graph", nil)
	c.Doc = "Undirected weighted graph. Vertex ids are unique and at most one edge joins two vertices."

	// vertexCount - recomputed from the helper on every read
	c.AddAttribute("vertexCount", vm.Int, func(h *vm.Heap, owner vm.Handle, cell *vm.AttributeCell) {
		if g, ok := h.Get(owner).Intrinsic().(*GraphData); ok {
			cell.Value = vm.IntValue(int64(g.vertices.Len()))
		}
	})

	c.AddMethod(constructor("Graph", nil, "Creates an empty graph.",
		func(*vm.Interpreter, vm.Value, []vm.Value) (vm.Intrinsic, error) {
			return &GraphData{vertices: NewSequence(), edges: NewSequence()}, nil
		}))

	c.AddMethod(graphMethod("isEmpty", nil, vm.Boolean, "True if the graph has no vertices.",
		func(op graphOp, _ []vm.Value) (vm.Value, error) {
			return vm.BoolValue(op.g.vertices.IsEmpty()), nil
		}))

	c.AddMethod(graphMethod("addVertex", []vm.Param{param("pVertex", l.Vertex)}, vm.Void,
		"Adds the vertex unless it is null, has a null id, or its id is already used.",
		func(op graphOp, args []vm.Value) (vm.Value, error) {
			return vm.Null, op.AddVertex(args[0])
		}))

	c.AddMethod(graphMethod("addEdge", []vm.Param{param("pEdge", l.Edge)}, vm.Void,
		"Adds the edge if its endpoints are distinct vertices of the graph without an edge between them.",
		func(op graphOp, args []vm.Value) (vm.Value, error) {
			return vm.Null, op.AddEdge(args[0])
		}))

	c.AddMethod(graphMethod("removeVertex", []vm.Param{param("pVertex", l.Vertex)}, vm.Void,
		"Removes the vertex and its incident edges.",
		func(op graphOp, args []vm.Value) (vm.Value, error) {
			op.RemoveVertex(args[0])
			return vm.Null, nil
		}))

	c.AddMethod(graphMethod("removeEdge", []vm.Param{param("pEdge", l.Edge)}, vm.Void, "",
		func(op graphOp, args []vm.Value) (vm.Value, error) {
			op.RemoveEdge(args[0])
			return vm.Null, nil
		}))

	c.AddMethod(graphMethod("getVertex", []vm.Param{param("pID", vm.String)}, l.Vertex,
		"Returns the vertex with the given id, or null.",
		func(op graphOp, args []vm.Value) (vm.Value, error) {
			return op.VertexByID(args[0]), nil
		}))

	c.AddMethod(graphMethod("getVertices", nil, l.vertexList, "Returns a new list of all vertices.",
		func(op graphOp, _ []vm.Value) (vm.Value, error) {
			return newList(op.in, l.vertexList, op.g.vertices.Items())
		}))

	c.AddMethod(graphMethod("getEdges", nil, l.edgeList, "Returns a new list of all edges.",
		func(op graphOp, _ []vm.Value) (vm.Value, error) {
			return newList(op.in, l.edgeList, op.g.edges.Items())
		}))

	c.AddMethod(graphMethod("getEdges", []vm.Param{param("pVertex", l.Vertex)}, l.edgeList,
		"Returns a new list of the edges incident to the vertex.",
		func(op graphOp, args []vm.Value) (vm.Value, error) {
			return newList(op.in, l.edgeList, op.EdgesOf(args[0]))
		}))

	c.AddMethod(graphMethod("getNeighbours", []vm.Param{param("pVertex", l.Vertex)}, l.vertexList,
		"Returns a new list of the vertices adjacent to the vertex.",
		func(op graphOp, args []vm.Value) (vm.Value, error) {
			return newList(op.in, l.vertexList, op.Neighbours(args[0]))
		}))

	c.AddMethod(graphMethod("getEdge", []vm.Param{param("pVertex", l.Vertex), param("pAnotherVertex", l.Vertex)}, l.Edge,
		"Returns the edge joining the two vertices, or null.",
		func(op graphOp, args []vm.Value) (vm.Value, error) {
			return op.EdgeBetween(args[0], args[1]), nil
		}))

	c.AddMethod(graphMethod("setAllVertexMarks", []vm.Param{param("pMark", vm.Boolean)}, vm.Void, "",
		func(op graphOp, args []vm.Value) (vm.Value, error) {
			for _, v := range op.g.vertices.items {
				op.vertex(v).marked = args[0].AsBool()
			}
			return vm.Null, nil
		}))

	c.AddMethod(graphMethod("setAllEdgeMarks", []vm.Param{param("pMark", vm.Boolean)}, vm.Void, "",
		func(op graphOp, args []vm.Value) (vm.Value, error) {
			for _, e := range op.g.edges.items {
				op.edge(e).marked = args[0].AsBool()
			}
			return vm.Null, nil
		}))

	c.AddMethod(graphMethod("allVerticesMarked", nil, vm.Boolean, "True if every vertex is marked; vacuously true for an empty graph.",
		func(op graphOp, _ []vm.Value) (vm.Value, error) {
			for _, v := range op.g.vertices.items {
				if !op.vertex(v).marked {
					return vm.BoolValue(false), nil
				}
			}
			return vm.BoolValue(true), nil
		}))

	c.AddMethod(graphMethod("allEdgesMarked", nil, vm.Boolean, "True if every edge is marked; vacuously true without edges.",
		func(op graphOp, _ []vm.Value) (vm.Value, error) {
			for _, e := range op.g.edges.items {
				if !op.edge(e).marked {
					return vm.BoolValue(false), nil
				}
			}
			return vm.BoolValue(true), nil
		}))

	l.Graph = c
}
