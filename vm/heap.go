package vm

import (
	"errors"
	"fmt"
)

// ErrNullReference is returned when a null value is dereferenced.
var ErrNullReference = errors.New("null reference")

// ---------------------------------------------------------------------------
// Heap: arena of instances
// ---------------------------------------------------------------------------

// Heap owns every instance. Instances refer to each other through
// handles, so reference cycles between instances and native helpers need
// no special treatment; unreachable instances are reclaimed by Collect.
type Heap struct {
	objects []*Object // index 0 is the null slot
	free    []Handle
	live    int
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{objects: make([]*Object, 1, 64)}
}

// Instantiate allocates an instance of c. The attribute vector is
// populated walking from c to the root: each declared attribute gets its
// type's default value and, if it has one, its recompute hook bound to
// the new instance.
func (h *Heap) Instantiate(c *Class) (Value, error) {
	if err := c.CanInstantiate(); err != nil {
		return Null, err
	}
	obj := &Object{Class: c, Attrs: make([]AttributeCell, c.NumAttributes())}
	handle := h.alloc(obj)
	for k := c; k != nil; k = k.Base {
		for _, a := range k.DeclaredAttributes() {
			t := c.Resolve(a.Type)
			obj.Attrs[a.Index] = AttributeCell{
				Type:      t,
				Value:     Default(t),
				Recompute: a.Recompute,
				Owner:     handle,
			}
		}
	}
	return RefValue(handle, c), nil
}

func (h *Heap) alloc(obj *Object) Handle {
	h.live++
	if n := len(h.free); n > 0 {
		handle := h.free[n-1]
		h.free = h.free[:n-1]
		h.objects[handle] = obj
		return handle
	}
	h.objects = append(h.objects, obj)
	return Handle(len(h.objects) - 1)
}

// Get returns the instance for a handle. A dangling handle is a contract
// violation.
func (h *Heap) Get(handle Handle) *Object {
	if handle == 0 || int(handle) >= len(h.objects) || h.objects[handle] == nil {
		panic(ContractViolation{Msg: fmt.Sprintf("dangling handle %d", handle)})
	}
	return h.objects[handle]
}

// Deref returns the instance v refers to.
func (h *Heap) Deref(v Value) (*Object, error) {
	if v.IsNull() {
		return nil, ErrNullReference
	}
	if !v.IsRef() {
		return nil, fmt.Errorf("%s value is not an object", TypeOf(v).Name())
	}
	return h.Get(v.Handle()), nil
}

// Read returns attribute index of the instance v refers to, running the
// attribute's recompute hook first.
func (h *Heap) Read(v Value, index int) (Value, error) {
	obj, err := h.Deref(v)
	if err != nil {
		return Null, err
	}
	cell := obj.cell(index)
	if cell.Recompute != nil {
		cell.Recompute(h, cell.Owner, cell)
	}
	return cell.Value, nil
}

// Write stores val into attribute index of the instance v refers to.
func (h *Heap) Write(v Value, index int, val Value) error {
	obj, err := h.Deref(v)
	if err != nil {
		return err
	}
	obj.cell(index).Value = val
	return nil
}

func (o *Object) cell(index int) *AttributeCell {
	if index < 0 || index >= len(o.Attrs) {
		panic(ContractViolation{Msg: fmt.Sprintf("attribute index %d out of range for %s (%d attributes)", index, o.Class.Name(), len(o.Attrs))})
	}
	return &o.Attrs[index]
}

// Len returns the number of live instances.
func (h *Heap) Len() int { return h.live }

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// CollectStats reports the outcome of a collection.
type CollectStats struct {
	Live  int
	Freed int
}

// Collect frees every instance not reachable from roots, following
// attribute values and the references held by intrinsic helpers.
func (h *Heap) Collect(roots []Value) CollectStats {
	var work []Handle
	push := func(v Value) {
		if v.IsRef() {
			if obj := h.objects[v.Handle()]; obj != nil && !obj.marked {
				obj.marked = true
				work = append(work, v.Handle())
			}
		}
	}
	for _, r := range roots {
		push(r)
	}
	for len(work) > 0 {
		obj := h.objects[work[len(work)-1]]
		work = work[:len(work)-1]
		for _, cell := range obj.Attrs {
			push(cell.Value)
		}
		if obj.intrinsic != nil {
			for _, r := range obj.intrinsic.Refs() {
				push(r)
			}
		}
	}

	var stats CollectStats
	for i := 1; i < len(h.objects); i++ {
		obj := h.objects[i]
		if obj == nil {
			continue
		}
		if obj.marked {
			obj.marked = false
			stats.Live++
			continue
		}
		h.objects[i] = nil
		h.free = append(h.free, Handle(i))
		stats.Freed++
	}
	h.live = stats.Live
	log.Debugf("collect: %d live, %d freed", stats.Live, stats.Freed)
	return stats
}
