// Package vm implements the tutor runtime.
//
// This package contains:
//   - the type system: primitives, classes, interfaces, type variables,
//     generic instantiation and casting rules
//   - the object model: an arena heap of instances with attribute cells,
//     recompute hooks and native intrinsic data
//   - the instruction set and programs produced by the compiler
//   - the stack-frame interpreter with stepped and immediate execution
//   - the dispatch point native code uses to call methods by signature
package vm
