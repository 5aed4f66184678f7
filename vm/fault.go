package vm

import (
	"errors"
	"fmt"
)

// FaultKind classifies runtime faults.
type FaultKind uint8

const (
	FaultNative FaultKind = iota
	FaultNullReference
	FaultDivisionByZero
	FaultMethodNotFound
	FaultInvalidCast
	FaultStackOverflow
	FaultCancelled
)

var faultNames = [...]string{
	FaultNative:         "native error",
	FaultNullReference:  "null reference",
	FaultDivisionByZero: "division by zero",
	FaultMethodNotFound: "method not found",
	FaultInvalidCast:    "invalid cast",
	FaultStackOverflow:  "stack overflow",
	FaultCancelled:      "cancelled",
}

func (k FaultKind) String() string {
	if int(k) < len(faultNames) {
		return faultNames[k]
	}
	return fmt.Sprintf("fault(%d)", uint8(k))
}

// Fault is a runtime error raised by a native closure or an interpreted
// frame. It propagates to the immediate caller.
type Fault struct {
	Kind    FaultKind
	Message string
	Method  *Method   // method executing when the fault was raised
	Pos     SourceLoc // position of the faulting instruction, if interpreted
	Cause   error
}

func (f *Fault) Error() string {
	where := ""
	if f.Method != nil {
		where = " in " + f.Method.QualifiedName()
		if f.Pos.Line > 0 {
			where += " at " + f.Pos.String()
		}
	}
	return fmt.Sprintf("%s%s: %s", f.Kind, where, f.Message)
}

func (f *Fault) Unwrap() error { return f.Cause }

// faultFrom wraps an arbitrary error as a fault, keeping existing faults
// and mapping known sentinel errors to their kind.
func faultFrom(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	kind := FaultNative
	var castErr *InvalidCastError
	switch {
	case errors.Is(err, ErrNullReference):
		kind = FaultNullReference
	case errors.Is(err, ErrDivisionByZero):
		kind = FaultDivisionByZero
	case errors.As(err, &castErr):
		kind = FaultInvalidCast
	}
	return &Fault{Kind: kind, Message: err.Error(), Cause: err}
}

// Result is the outcome of an immediate invocation: a value, or the fault
// that ended the call.
type Result struct {
	Value Value
	Fault *Fault
}

// Ok reports whether the call returned normally.
func (r Result) Ok() bool { return r.Fault == nil }

// Err returns the fault as an error, or nil.
func (r Result) Err() error {
	if r.Fault == nil {
		return nil
	}
	return r.Fault
}

// CallState is the lifecycle of a single call.
type CallState uint8

const (
	Dispatching CallState = iota
	NativeExecuting
	FrameRunning
	Returned
	Faulted
)

var callStateNames = [...]string{"dispatching", "native", "running", "returned", "faulted"}

func (s CallState) String() string {
	if int(s) < len(callStateNames) {
		return callStateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}
