package vm

import (
	"testing"
)

// newProgram lays out code at offset 0 followed directly by data.
func newProgram(code []Instruction, data ...Word) *Program {
	words := make([]Word, 0, len(code)+len(data))
	for _, inst := range code {
		words = append(words, Word(inst))
	}
	words = append(words, data...)

	p := NewProgram()
	p.Memory = NewMemoryWords(words)
	p.Code = Segment{Offset: 0, Size: Word(len(code))}
	p.Data = Segment{Offset: Word(len(code)), Size: Word(len(data))}
	return p
}

// newTestVM loads the program into a VM fed from input and recording output.
func newTestVM(t *testing.T, p *Program, input ...int64) (*VM, *Recorder) {
	t.Helper()
	v := NewVM()
	out := &Recorder{}
	v.SetInput(NewFeed(input...))
	v.SetOutput(out)
	if err := v.Load(p); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return v, out
}

func halt() Instruction {
	return Encode(OpSvc, SP, ModeImmediate, 0, SvcHalt)
}

func loadImm(reg uint8, imm int16) Instruction {
	return Encode(OpLoad, reg, ModeImmediate, 0, imm)
}

func mustRun(t *testing.T, v *VM) {
	t.Helper()
	if err := v.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !v.Halted() {
		t.Fatal("expected machine to be halted")
	}
}
