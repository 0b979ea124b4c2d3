package vm

import (
	"errors"
	"fmt"

	"github.com/akhildatla/ttk91/pkg/word"
)

// Error definitions
var (
	ErrOutOfMemory          = errors.New("out of memory")
	ErrInvalidAddress       = errors.New("invalid memory address")
	ErrInvalidRegister      = errors.New("invalid register number")
	ErrIllegalInstruction   = errors.New("bad instruction")
	ErrNoSuchDevice         = errors.New("no such device")
	ErrNoSuchSupervisorCall = errors.New("no such supervisor call")
	ErrNotImplemented       = errors.New("supervisor call not implemented")
	ErrDivisionByZero       = errors.New("division by zero")
	ErrInput                = errors.New("cannot read from input")
	ErrOutput               = errors.New("cannot write to output")

	// Engine state errors
	ErrNotLoaded        = errors.New("no program loaded")
	ErrHalted           = errors.New("machine is halted")
	ErrInstructionLimit = errors.New("instruction limit exceeded")

	// ErrOverflow is word.ErrOverflow, exported here so callers of the VM
	// need not import the word package to match it.
	ErrOverflow = word.ErrOverflow
)

// Trap describes a fatal fault raised while executing an instruction.
// Once a VM has trapped it refuses to step again.
type Trap struct {
	Err  error // nature of the fault
	PC   Word  // address of the faulting instruction
	Insn Word  // instruction word, zero if the fetch itself failed
}

func (t *Trap) Error() string {
	return fmt.Sprintf("%v at pc %d (instruction 0x%08x)", t.Err, t.PC, t.Insn)
}

func (t *Trap) Unwrap() error {
	return t.Err
}
