package vm

// Instruction represents a 32-bit encoded instruction.
//
// Layout:
// ┌─────────┬─────┬──────┬───────┬───────────────────┐
// │ opcode  │ reg │ mode │ index │       imm16       │
// │ 8 bits  │3 bit│2 bits│3 bits │ 16 bits, signed   │
// └─────────┴─────┴──────┴───────┴───────────────────┘
//
// Index register 0 means "no index register".
type Instruction uint32

// Mode is the addressing mode of an instruction's operand.
type Mode uint8

const (
	ModeImmediate Mode = 0 // operand is the computed value itself
	ModeDirect    Mode = 1 // operand is read from memory at the computed address
	ModeIndirect  Mode = 2 // one more memory read through the computed address
	// Mode 3 is reserved and resolves like ModeImmediate.
)

// String returns the assembler prefix for the mode.
func (m Mode) String() string {
	switch m {
	case ModeImmediate:
		return "="
	case ModeIndirect:
		return "@"
	default:
		return ""
	}
}

// Encode creates an instruction from its components. Fields wider than their
// slot are masked.
func Encode(op Opcode, reg uint8, mode Mode, index uint8, imm int16) Instruction {
	var inst uint32

	inst |= uint32(op) << 24
	inst |= uint32(reg&7) << 21
	inst |= uint32(mode&3) << 19
	inst |= uint32(index&7) << 16
	inst |= uint32(uint16(imm))

	return Instruction(inst)
}

// Opcode returns the opcode (bits 31-24).
func (i Instruction) Opcode() Opcode {
	return Opcode(i >> 24)
}

// Reg returns the main register (bits 23-21).
func (i Instruction) Reg() uint8 {
	return uint8((i >> 21) & 7)
}

// Mode returns the addressing mode (bits 20-19).
func (i Instruction) Mode() Mode {
	return Mode((i >> 19) & 3)
}

// Index returns the index register (bits 18-16).
func (i Instruction) Index() uint8 {
	return uint8((i >> 16) & 7)
}

// Imm returns the sign-extended immediate value (bits 15-0).
func (i Instruction) Imm() int16 {
	return int16(uint16(i & 0xFFFF))
}

// Decoded is an instruction split into its fields.
type Decoded struct {
	Opcode   Opcode
	Reg      uint8
	Mode     Mode
	Index    uint8
	Imm      int16
	Mnemonic string // "" when the opcode is unknown
}

// Decode splits w into its fields. It never fails: unknown opcodes decode
// with an empty mnemonic and are rejected only when executed.
func Decode(w uint32) Decoded {
	i := Instruction(w)
	return Decoded{
		Opcode:   i.Opcode(),
		Reg:      i.Reg(),
		Mode:     i.Mode(),
		Index:    i.Index(),
		Imm:      i.Imm(),
		Mnemonic: i.Opcode().Mnemonic(),
	}
}

// Instruction re-encodes the decoded fields.
func (d Decoded) Instruction() Instruction {
	return Encode(d.Opcode, d.Reg, d.Mode, d.Index, d.Imm)
}

// String returns a human-readable representation of the instruction.
func (i Instruction) String() string {
	return DisassembleWord(Word(i))
}
