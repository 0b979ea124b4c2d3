// Package asm assembles TTK-91 symbolic assembly into programs.
//
// Source is line oriented:
//
//	; comment
//	label   OPCODE  [Rj,] operand
//	label   DC      value        ; one data word
//	label   DS      size         ; size zeroed data words
//	name    EQU     value        ; a constant, no storage
//
// An operand is "=value" (immediate), "value" (direct) or "@value"
// (indirect), optionally indexed as "value(Ri)". A lone register "Ri" is the
// register's value and "@Ri" is the word it points to. Labels may carry a
// trailing colon and may stand on a line of their own.
//
// Instructions form the code segment at address 0 in source order. DC and
// DS words follow as the data segment, so the result can be written as an
// image with image.Write. The device and supervisor call names CRT, KBD,
// STDIN, STDOUT, HALT, READ, WRITE, TIME and DATE are predefined.
package asm

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/akhildatla/ttk91/pkg/vm"
)

// SourceExt is the file extension of assembly source.
const SourceExt = ".k91"

// ErrAssembly is matched by every assembly error.
var ErrAssembly = errors.New("assembly error")

// Error is an assembly error at a source line.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: line %d: %s", ErrAssembly, e.Line, e.Msg)
}

func (e *Error) Is(target error) bool {
	return target == ErrAssembly
}

func errorf(line int, format string, args ...any) *Error {
	return &Error{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// Builtins are the predefined symbols.
var Builtins = map[string]int64{
	"CRT":    vm.PortCRT,
	"KBD":    vm.PortKBD,
	"STDIN":  vm.PortStdin,
	"STDOUT": vm.PortStdout,
	"HALT":   vm.SvcHalt,
	"READ":   vm.SvcRead,
	"WRITE":  vm.SvcWrite,
	"TIME":   vm.SvcTime,
	"DATE":   vm.SvcDate,
}

// IsSource reports whether path names assembly source rather than an image.
func IsSource(path string) bool {
	return strings.EqualFold(filepath.Ext(path), SourceExt)
}

// Assemble assembles source into a program.
func Assemble(source string) (*vm.Program, error) {
	parser := NewParser(source)
	src, err := parser.Parse()
	if err != nil {
		return nil, err
	}

	a := &Assembler{
		labels: make(map[string]vm.Word),
		equs:   make(map[string]Statement),
	}
	return a.assemble(src)
}

// AssembleFile reads and assembles the source file at path.
func AssembleFile(path string) (*vm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}
	return Assemble(string(data))
}

// Assembler turns parsed source into memory words.
type Assembler struct {
	labels map[string]vm.Word
	equs   map[string]Statement
}

func (a *Assembler) assemble(src *Source) (*vm.Program, error) {
	// Pass 1: lay out code, then data, and collect symbols.
	var codeSize, dataSize vm.Word
	for _, st := range src.Statements {
		if st.Op != DirectiveEQU && !st.IsData() {
			codeSize++
		}
	}

	prog := vm.NewProgram()
	prog.Code = vm.Segment{Offset: 0, Size: codeSize}

	var pc vm.Word
	for _, st := range src.Statements {
		var addr vm.Word
		switch {
		case st.Op == DirectiveEQU:
			if err := a.define(st.Label, st.Line); err != nil {
				return nil, err
			}
			a.equs[st.Label] = st
			continue
		case st.IsData():
			addr = codeSize + dataSize
			dataSize += a.size(st)
		default:
			addr = pc
			pc++
		}

		if st.Label != "" {
			if err := a.define(st.Label, st.Line); err != nil {
				return nil, err
			}
			a.labels[st.Label] = addr
			prog.Symbols.Add(st.Label, addr)
		}
	}
	prog.Data = vm.Segment{Offset: codeSize, Size: dataSize}

	if err := prog.Memory.Grow(codeSize + dataSize); err != nil {
		return nil, err
	}

	// Pass 2: encode.
	pc = 0
	data := codeSize
	for _, st := range src.Statements {
		switch {
		case st.Op == DirectiveEQU:
			// Resolve now so an unusable constant is reported even if unused.
			if _, err := a.resolve(st.Operand.Value, st.Line, 0); err != nil {
				return nil, err
			}

		case st.Op == DirectiveDC:
			v, err := a.resolve(st.Operand.Value, st.Line, 0)
			if err != nil {
				return nil, err
			}
			if err := prog.Memory.Write(data, vm.Word(v)); err != nil {
				return nil, err
			}
			data++

		case st.Op == DirectiveDS:
			data += a.size(st)

		default:
			insn, err := a.encode(st)
			if err != nil {
				return nil, err
			}
			if err := prog.Memory.Write(pc, vm.Word(insn)); err != nil {
				return nil, err
			}
			pc++
		}
	}
	return prog, nil
}

func (a *Assembler) size(st Statement) vm.Word {
	if st.Op == DirectiveDS {
		return vm.Word(st.Operand.Value.Int)
	}
	return 1
}

func (a *Assembler) define(name string, line int) error {
	if _, ok := Builtins[strings.ToUpper(name)]; ok {
		return errorf(line, "symbol %s is predefined", name)
	}
	_, isLabel := a.labels[name]
	_, isEqu := a.equs[name]
	if isLabel || isEqu {
		return errorf(line, "symbol %s defined twice", name)
	}
	return nil
}

// maxEquDepth bounds chains of EQU constants defined in terms of each other.
const maxEquDepth = 32

func (a *Assembler) resolve(v Value, line, depth int) (int64, error) {
	if v.Symbol == "" {
		return v.Int, nil
	}
	if addr, ok := a.labels[v.Symbol]; ok {
		return int64(addr), nil
	}
	if st, ok := a.equs[v.Symbol]; ok {
		if depth >= maxEquDepth {
			return 0, errorf(line, "constant %s is defined in terms of itself", v.Symbol)
		}
		return a.resolve(st.Operand.Value, line, depth+1)
	}
	if n, ok := Builtins[strings.ToUpper(v.Symbol)]; ok {
		return n, nil
	}
	return 0, errorf(line, "undefined symbol %s", v.Symbol)
}

func (a *Assembler) encode(st Statement) (vm.Instruction, error) {
	opcode, ok := vm.OpcodeFromString(st.Op)
	if !ok {
		return 0, errorf(st.Line, "unknown mnemonic %q", st.Op)
	}

	v, err := a.resolve(st.Operand.Value, st.Line, 0)
	if err != nil {
		return 0, err
	}
	if v < math.MinInt16 || v > math.MaxInt16 {
		return 0, errorf(st.Line, "operand %d does not fit in 16 bits", v)
	}

	return vm.Encode(opcode, st.Reg, st.Operand.Mode, st.Operand.Index, int16(v)), nil
}
