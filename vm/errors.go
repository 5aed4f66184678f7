package vm

import "fmt"

// UnknownTypeError is returned when a type name cannot be resolved.
type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q", e.Name)
}

// InvalidCastError is returned when a value cannot be converted.
type InvalidCastError struct {
	From, To Type
}

func (e *InvalidCastError) Error() string {
	return fmt.Sprintf("cannot cast %s to %s", e.From.Name(), e.To.Name())
}

// ContractViolation is the panic payload for host programming errors:
// out-of-range attribute indices, arity mismatches, layout changes after
// freezing. It is never recovered by the interpreter.
type ContractViolation struct {
	Msg string
}

func (c ContractViolation) Error() string {
	return "contract violation: " + c.Msg
}
