package vm

import (
	"fmt"
)

const (
	NumRegs = 8 // R0-R7

	SP uint8 = 6 // stack pointer by convention
	FP uint8 = 7 // frame pointer by convention
)

// RegisterNames maps register numbers to their assembler names.
var RegisterNames = [NumRegs]string{"R0", "R1", "R2", "R3", "R4", "R5", "SP", "FP"}

// Flags is the condition part of the state register.
type Flags uint8

// Flag constants, at the bit positions the state register uses.
const (
	FlagGreater Flags = 1 << 0 // last COMP found lhs > rhs
	FlagEqual   Flags = 1 << 1 // last COMP found lhs == rhs
	FlagLess    Flags = 1 << 2 // last COMP found lhs < rhs
)

func (f Flags) String() string {
	b := []byte("---")
	if f&FlagLess != 0 {
		b[0] = 'L'
	}
	if f&FlagEqual != 0 {
		b[1] = 'E'
	}
	if f&FlagGreater != 0 {
		b[2] = 'G'
	}
	return string(b)
}

// RegisterFile holds the general purpose registers and the condition flags.
type RegisterFile struct {
	R     [NumRegs]Word // General purpose registers
	Flags Flags         // Set by COMP only
}

// NewRegisterFile creates a new register file with all registers zeroed.
func NewRegisterFile() *RegisterFile {
	return &RegisterFile{}
}

// Reset clears all registers and flags.
func (rf *RegisterFile) Reset() {
	rf.R = [NumRegs]Word{}
	rf.Flags = 0
}

// Get returns the value of register r.
func (rf *RegisterFile) Get(r uint8) (Word, error) {
	if int(r) >= NumRegs {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRegister, r)
	}
	return rf.R[r], nil
}

// Set stores w in register r.
func (rf *RegisterFile) Set(r uint8, w Word) error {
	if int(r) >= NumRegs {
		return fmt.Errorf("%w: %d", ErrInvalidRegister, r)
	}
	rf.R[r] = w
	return nil
}

// Compare sets the flags from an unsigned comparison of a and b.
func (rf *RegisterFile) Compare(a, b Word) {
	rf.Flags = 0
	switch {
	case a < b:
		rf.Flags |= FlagLess
	case a > b:
		rf.Flags |= FlagGreater
	default:
		rf.Flags |= FlagEqual
	}
}

// Flag reports whether f is set.
func (rf *RegisterFile) Flag(f Flags) bool {
	return rf.Flags&f != 0
}

// RegisterName returns the assembler name of register r.
func RegisterName(r uint8) string {
	if int(r) < NumRegs {
		return RegisterNames[r]
	}
	return fmt.Sprintf("R?%d", r)
}
