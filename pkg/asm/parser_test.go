package asm

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/akhildatla/ttk91/pkg/vm"
)

func TestParser_Statements(t *testing.T) {
	input := `; header
X       DC    -3
main:   LOAD  R1, X
        ADD   R1, @7(R2)
        OUT   R1, =CRT
        PUSHR SP
        POP   SP, R3
        STORE R1, @FP
        NOP
buf     DS    4
`

	parser := NewParser(input)
	src, err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := []Statement{
		{Label: "X", Op: "DC", Operand: Operand{Value: Value{Int: -3}}, Line: 2},
		{Label: "main", Op: "LOAD", Reg: 1, Operand: Operand{Mode: vm.ModeDirect, Value: Value{Symbol: "X"}}, Line: 3},
		{Op: "ADD", Reg: 1, Operand: Operand{Mode: vm.ModeIndirect, Value: Value{Int: 7}, Index: 2}, Line: 4},
		{Op: "OUT", Reg: 1, Operand: Operand{Mode: vm.ModeImmediate, Value: Value{Symbol: "CRT"}}, Line: 5},
		{Op: "PUSHR", Reg: vm.SP, Line: 6},
		{Op: "POP", Reg: vm.SP, Operand: Operand{Mode: vm.ModeImmediate, Index: 3}, Line: 7},
		{Op: "STORE", Reg: 1, Operand: Operand{Mode: vm.ModeDirect, Index: vm.FP}, Line: 8},
		{Op: "NOP", Line: 9},
		{Label: "buf", Op: "DS", Operand: Operand{Value: Value{Int: 4}}, Line: 10},
	}
	if diff := cmp.Diff(want, src.Statements); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_LabelOnOwnLine(t *testing.T) {
	input := `start:
  JUMP =start`

	parser := NewParser(input)
	src, err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(src.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(src.Statements))
	}
	if src.Statements[0].Label != "start" {
		t.Errorf("expected label start, got %q", src.Statements[0].Label)
	}
	if src.Statements[0].Line != 2 {
		t.Errorf("expected line 2, got %d", src.Statements[0].Line)
	}
}

func TestParser_CaseInsensitiveMnemonics(t *testing.T) {
	parser := NewParser("load r1, =5\nsvc sp, =halt")
	src, err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if src.Statements[0].Op != "LOAD" || src.Statements[0].Reg != 1 {
		t.Errorf("unexpected first statement %+v", src.Statements[0])
	}
	if src.Statements[1].Op != "SVC" || src.Statements[1].Reg != vm.SP {
		t.Errorf("unexpected second statement %+v", src.Statements[1])
	}
}

func TestParser_Registers(t *testing.T) {
	tests := []struct {
		name string
		want uint8
	}{
		{"R0", 0},
		{"r5", 5},
		{"SP", vm.SP},
		{"R6", vm.SP},
		{"fp", vm.FP},
		{"R7", vm.FP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := register(Token{Type: TokenIdent, Value: tt.name})
			if !ok || got != tt.want {
				t.Errorf("expected %d, got %d (%v)", tt.want, got, ok)
			}
		})
	}

	for _, name := range []string{"R8", "RX", "X"} {
		if _, ok := register(Token{Type: TokenIdent, Value: name}); ok {
			t.Errorf("%s: expected no register", name)
		}
	}
}
