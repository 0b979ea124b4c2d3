package vm

import (
	"bytes"
	"fmt"
	"math"
)

// DisassembleWord renders one memory word as TTK-91 assembler text.
// Operands are printed numerically. A lone register operand is the
// register's value and @R is the word it points to, as in assembler source.
// Words that are not valid instructions, including those using the
// reserved addressing mode, are shown as DC constants.
func DisassembleWord(w Word) string {
	if w > math.MaxUint32 {
		return fmt.Sprintf("DC %d", int64(w))
	}
	d := Decode(uint32(w))
	if d.Mnemonic == "" || d.Mode > ModeIndirect {
		return fmt.Sprintf("DC %d", w)
	}

	var buf bytes.Buffer
	buf.WriteString(d.Mnemonic)
	buf.WriteByte(' ')
	if d.Reg != 0 {
		fmt.Fprintf(&buf, "%s, ", RegisterName(d.Reg))
	}

	switch {
	case d.Imm == 0 && d.Index != 0 && d.Mode == ModeImmediate:
		buf.WriteString(RegisterName(d.Index))
	case d.Imm == 0 && d.Index != 0 && d.Mode == ModeDirect:
		fmt.Fprintf(&buf, "@%s", RegisterName(d.Index))
	case d.Index != 0:
		fmt.Fprintf(&buf, "%s%d(%s)", d.Mode, d.Imm, RegisterName(d.Index))
	default:
		fmt.Fprintf(&buf, "%s%d", d.Mode, d.Imm)
	}
	return buf.String()
}

// Disassemble renders count words starting at off, one per line, each
// prefixed by its address.
func Disassemble(mem *Memory, off, count Word) (string, error) {
	words, err := mem.Slice(off, count)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for i, w := range words {
		fmt.Fprintf(&buf, "%4d: %s\n", off+Word(i), DisassembleWord(w))
	}
	return buf.String(), nil
}
