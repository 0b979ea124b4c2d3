package vm

import (
	"fmt"
)

// Opcode represents a TTK-91 instruction opcode.
type Opcode uint8

const (
	// ===== Data Movement and I/O (0x00-0x04) =====
	OpNop   Opcode = 0x00 // no operation
	OpStore Opcode = 0x01 // M[operand] = R[reg]
	OpLoad  Opcode = 0x02 // R[reg] = operand
	OpIn    Opcode = 0x03 // R[reg] = input from device operand
	OpOut   Opcode = 0x04 // output R[reg] to device operand

	// ===== Arithmetic and Logic (0x11-0x1F) =====
	OpAdd  Opcode = 0x11 // R[reg] += operand
	OpSub  Opcode = 0x12 // R[reg] -= operand
	OpMul  Opcode = 0x13 // R[reg] *= operand
	OpDiv  Opcode = 0x14 // R[reg] /= operand (unsigned)
	OpMod  Opcode = 0x15 // R[reg] %= operand (unsigned)
	OpAnd  Opcode = 0x16 // R[reg] &= operand
	OpOr   Opcode = 0x17 // R[reg] |= operand
	OpXor  Opcode = 0x18 // R[reg] ^= operand
	OpShl  Opcode = 0x19 // R[reg] <<= operand
	OpShr  Opcode = 0x1A // R[reg] >>= operand (logical)
	OpShra Opcode = 0x1B // R[reg] >>= operand (arithmetic)
	OpComp Opcode = 0x1F // flags = unsigned compare(R[reg], operand)

	// ===== Jumps (0x20-0x2C) =====
	OpJump  Opcode = 0x20 // PC = operand
	OpJneg  Opcode = 0x21 // if R[reg] < 0
	OpJzer  Opcode = 0x22 // if R[reg] == 0
	OpJpos  Opcode = 0x23 // if R[reg] > 0
	OpJnneg Opcode = 0x24 // if R[reg] >= 0
	OpJnzer Opcode = 0x25 // if R[reg] != 0
	OpJnpos Opcode = 0x26 // if R[reg] <= 0
	OpJles  Opcode = 0x27 // if L flag
	OpJequ  Opcode = 0x28 // if E flag
	OpJgre  Opcode = 0x29 // if G flag
	OpJnles Opcode = 0x2A // if not L flag
	OpJnequ Opcode = 0x2B // if not E flag
	OpJngre Opcode = 0x2C // if not G flag

	// ===== Stack (0x31-0x36) =====
	OpCall  Opcode = 0x31 // push PC, push FP, FP = SP, PC = operand
	OpExit  Opcode = 0x32 // pop FP, pop PC, drop operand words
	OpPush  Opcode = 0x33 // push operand
	OpPop   Opcode = 0x34 // R[index] = pop
	OpPushr Opcode = 0x35 // push R0..R5
	OpPopr  Opcode = 0x36 // pop R5..R0

	// ===== Supervisor (0x70) =====
	OpSvc Opcode = 0x70 // supervisor call number operand
)

// Opcodes lists every defined opcode in ascending order.
var Opcodes = []Opcode{
	OpNop, OpStore, OpLoad, OpIn, OpOut,
	OpAdd, OpSub, OpMul, OpDiv, OpMod, OpAnd, OpOr, OpXor, OpShl, OpShr, OpShra, OpComp,
	OpJump, OpJneg, OpJzer, OpJpos, OpJnneg, OpJnzer, OpJnpos,
	OpJles, OpJequ, OpJgre, OpJnles, OpJnequ, OpJngre,
	OpCall, OpExit, OpPush, OpPop, OpPushr, OpPopr,
	OpSvc,
}

// Mnemonic returns the opcode's mnemonic, or "" if the opcode is unknown.
func (o Opcode) Mnemonic() string {
	switch o {
	case OpNop:
		return "NOP"
	case OpStore:
		return "STORE"
	case OpLoad:
		return "LOAD"
	case OpIn:
		return "IN"
	case OpOut:
		return "OUT"

	case OpAdd:
		return "ADD"
	case OpSub:
		return "SUB"
	case OpMul:
		return "MUL"
	case OpDiv:
		return "DIV"
	case OpMod:
		return "MOD"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpXor:
		return "XOR"
	case OpShl:
		return "SHL"
	case OpShr:
		return "SHR"
	case OpShra:
		return "SHRA"
	case OpComp:
		return "COMP"

	case OpJump:
		return "JUMP"
	case OpJneg:
		return "JNEG"
	case OpJzer:
		return "JZER"
	case OpJpos:
		return "JPOS"
	case OpJnneg:
		return "JNNEG"
	case OpJnzer:
		return "JNZER"
	case OpJnpos:
		return "JNPOS"
	case OpJles:
		return "JLES"
	case OpJequ:
		return "JEQU"
	case OpJgre:
		return "JGRE"
	case OpJnles:
		return "JNLES"
	case OpJnequ:
		return "JNEQU"
	case OpJngre:
		return "JNGRE"

	case OpCall:
		return "CALL"
	case OpExit:
		return "EXIT"
	case OpPush:
		return "PUSH"
	case OpPop:
		return "POP"
	case OpPushr:
		return "PUSHR"
	case OpPopr:
		return "POPR"

	case OpSvc:
		return "SVC"

	default:
		return ""
	}
}

// Valid reports whether o is a defined opcode.
func (o Opcode) Valid() bool {
	return o.Mnemonic() != ""
}

// String returns the string representation of an opcode.
func (o Opcode) String() string {
	if m := o.Mnemonic(); m != "" {
		return m
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(o))
}

// OpcodeFromString returns the opcode for the given mnemonic.
func OpcodeFromString(s string) (Opcode, bool) {
	for _, op := range Opcodes {
		if op.Mnemonic() == s {
			return op, true
		}
	}
	return 0, false
}
