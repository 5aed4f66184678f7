package vm

import (
	"errors"
	"reflect"

	"github.com/mitchellh/copystructure"
)

// ErrCyclicValue is returned by DeepCopy for self-referential input.
var ErrCyclicValue = errors.New("deep copy: value contains a cycle")

// DeepCopy structurally clones plain nested data (slices, maps, pointers,
// structs, time.Time). Shared substructures are copied separately; a value
// that contains itself is rejected with ErrCyclicValue.
func DeepCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if hasCycle(reflect.ValueOf(v), make(map[uintptr]bool)) {
		return nil, ErrCyclicValue
	}
	return copystructure.Copy(v)
}

// hasCycle walks v depth-first. path holds the addresses of the containers
// on the current descent only, so a DAG is not mistaken for a cycle.
func hasCycle(v reflect.Value, path map[uintptr]bool) bool {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return false
		}
		return hasCycle(v.Elem(), path)
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return false
		}
		addr := v.Pointer()
		if v.Kind() == reflect.Slice && v.Len() == 0 {
			return false
		}
		if path[addr] {
			return true
		}
		path[addr] = true
		defer delete(path, addr)
		switch v.Kind() {
		case reflect.Pointer:
			return hasCycle(v.Elem(), path)
		case reflect.Map:
			iter := v.MapRange()
			for iter.Next() {
				if hasCycle(iter.Key(), path) || hasCycle(iter.Value(), path) {
					return true
				}
			}
		case reflect.Slice:
			for i := 0; i < v.Len(); i++ {
				if hasCycle(v.Index(i), path) {
					return true
				}
			}
		}
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if hasCycle(v.Index(i), path) {
				return true
			}
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if hasCycle(v.Field(i), path) {
				return true
			}
		}
	}
	return false
}
