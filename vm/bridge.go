package vm

import "fmt"

// CallMethod invokes the method named name that receiver's own class
// answers for args, synchronously. The method is found by signature and
// may be native or interpreted; the caller cannot tell which. A missing
// method or a fault inside the call comes back as Result.Fault.
func (in *Interpreter) CallMethod(receiver Value, name string, args ...Value) Result {
	if receiver.IsNull() {
		return Result{Fault: &Fault{Kind: FaultNullReference, Message: fmt.Sprintf("cannot call %s on null", name)}}
	}
	if !receiver.IsRef() {
		return Result{Fault: &Fault{Kind: FaultMethodNotFound, Message: fmt.Sprintf("%s value has no method %s", TypeOf(receiver).Name(), name)}}
	}
	m := receiver.Class().LookupBySignature(name, args)
	if m == nil {
		return Result{Fault: &Fault{Kind: FaultMethodNotFound, Message: fmt.Sprintf("%s has no method %s/%d", receiver.Class().Name(), name, len(args))}}
	}
	return in.InvokeImmediate(m, receiver, args)
}

// CallPredicate calls a boolean method through CallMethod.
func (in *Interpreter) CallPredicate(receiver Value, name string, args ...Value) (bool, error) {
	r := in.CallMethod(receiver, name, args...)
	if r.Fault != nil {
		return false, r.Fault
	}
	if r.Value.Kind() != KindBool {
		return false, fmt.Errorf("%s.%s returned %s, want boolean", receiver.Class().Name(), name, TypeOf(r.Value).Name())
	}
	return r.Value.AsBool(), nil
}
