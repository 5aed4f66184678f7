package vm

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Program is the interpreted body of a method: lowered instructions plus
// the locals layout. Programs are immutable once built.
type Program struct {
	ID        uuid.UUID
	Name      string
	NumParams int
	Locals    []string // slot names, parameters first
	code      []Instruction
}

// NewProgram builds a program. Parameters occupy the first numParams
// local slots.
func NewProgram(name string, code []Instruction, numParams int, locals []string) *Program {
	if numParams > len(locals) {
		panic(ContractViolation{Msg: fmt.Sprintf("program %s: %d params but %d locals", name, numParams, len(locals))})
	}
	return &Program{
		ID:        uuid.New(),
		Name:      name,
		NumParams: numParams,
		Locals:    append([]string(nil), locals...),
		code:      append([]Instruction(nil), code...),
	}
}

// Code returns a copy of the instruction sequence.
func (p *Program) Code() []Instruction {
	return append([]Instruction(nil), p.code...)
}

// Len returns the number of instructions.
func (p *Program) Len() int { return len(p.code) }

// At returns the instruction at ip.
func (p *Program) At(ip int) Instruction { return p.code[ip] }

// NumLocals returns the number of local slots a frame needs.
func (p *Program) NumLocals() int { return len(p.Locals) }

// Disassemble renders the program with a header naming its locals.
func (p *Program) Disassemble() string {
	var b strings.Builder
	fmt.Fprintf(&b, "; %s  params=%d locals=[%s]\n", p.Name, p.NumParams, strings.Join(p.Locals, ", "))
	b.WriteString(Disassemble(p.code))
	return b.String()
}
