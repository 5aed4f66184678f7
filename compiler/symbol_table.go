package compiler

import (
	"fmt"

	"github.com/chazu/tutor/vm"
)

// Local is a parameter or local variable of the unit being compiled.
type Local struct {
	Name        string
	Type        vm.Type
	Slot        int
	Pos         Position
	Final       bool
	Initialized bool
}

// SymbolTable is the stack of block scopes of one method body. Slots are
// handed out monotonically, so a variable keeps its slot for the whole
// frame even after its block closes.
type SymbolTable struct {
	scopes []map[string]*Local
	slots  []string
}

// NewSymbolTable creates a table with one open scope.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{scopes: []map[string]*Local{{}}}
}

// Push opens a nested scope.
func (s *SymbolTable) Push() {
	s.scopes = append(s.scopes, map[string]*Local{})
}

// Pop closes the innermost scope.
func (s *SymbolTable) Pop() {
	if len(s.scopes) == 1 {
		panic(vm.ContractViolation{Msg: "symbol table: cannot pop the outermost scope"})
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
}

// Depth returns the number of open scopes.
func (s *SymbolTable) Depth() int { return len(s.scopes) }

// Declare adds a variable to the innermost scope. A name visible from an
// enclosing scope cannot be redeclared.
func (s *SymbolTable) Declare(name string, t vm.Type, pos Position) (*Local, error) {
	if prev := s.Lookup(name); prev != nil {
		return nil, fmt.Errorf("variable %s is already declared at %s", name, prev.Pos)
	}
	l := &Local{Name: name, Type: t, Slot: len(s.slots), Pos: pos}
	s.slots = append(s.slots, name)
	s.scopes[len(s.scopes)-1][name] = l
	return l, nil
}

// Lookup finds a visible variable, innermost scope first.
func (s *SymbolTable) Lookup(name string) *Local {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if l, ok := s.scopes[i][name]; ok {
			return l
		}
	}
	return nil
}

// Names returns the slot names in slot order.
func (s *SymbolTable) Names() []string {
	return append([]string(nil), s.slots...)
}
