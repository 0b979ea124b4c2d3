// Package vm implements the TTK-91 execution engine.
//
// The machine has a growable word-addressable memory, eight general purpose
// registers (R6 is the stack pointer SP, R7 the frame pointer FP by
// convention) and three condition flags set by COMP.
//
// Basic usage:
//
//	program, _ := image.ParseFile("prog.b91")
//	v := vm.NewVM()
//	v.Load(program)
//	err := v.Execute()
//
// With resource limits:
//
//	v := vm.NewVM()
//	v.SetMaxSteps(10000)
//	v.SetContext(ctx)
//	v.Load(program)
//	err := v.Execute()
package vm

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/akhildatla/ttk91/pkg/word"
)

// DefaultStackReserve is the number of words appended after the image to
// host the stack.
const DefaultStackReserve Word = 64

// ExecutionStats contains metrics about VM execution for observability.
type ExecutionStats struct {
	StepsExecuted   int64          // Total instructions executed
	ExecutionTimeNs int64          // Execution time in nanoseconds
	OpCounts        map[string]int // Count of each mnemonic executed
}

// VM represents the virtual machine.
type VM struct {
	mem       *Memory
	registers RegisterFile
	program   *Program
	pc        Word  // Program counter
	ir        Word  // Instruction register: last fetched word
	tr        Word  // Temporary register: last resolved operand
	halted    bool  // Set by the HALT supervisor call
	trap      error // First fatal fault, if any

	in       Input
	out      Output
	inPorts  [NumPorts]func() (Word, error)
	outPorts [NumPorts]func(Word) error
	svcs     [NumSvcs]func(sp uint8) error

	stackReserve Word

	// Resource limits
	maxSteps  int64
	stepCount int64

	// Context for cancellation
	ctx context.Context

	log *logrus.Entry

	// Observability - execution statistics
	stats        ExecutionStats
	statsEnabled bool
}

// NewVM creates a new VM instance reading from stdin and writing to stdout.
func NewVM() *VM {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)

	vm := &VM{
		in:           NewConsole(os.Stdin, os.Stdout),
		out:          NewConsole(os.Stdin, os.Stdout),
		stackReserve: DefaultStackReserve,
		log:          logger.WithField("component", "vm"),
	}
	vm.installDevices()
	return vm
}

// SetInput replaces the source of the input devices.
func (vm *VM) SetInput(in Input) {
	vm.in = in
}

// SetOutput replaces the sink of the output devices.
func (vm *VM) SetOutput(out Output) {
	vm.out = out
}

// SetIO attaches a console over in and out.
func (vm *VM) SetIO(in io.Reader, out io.Writer) {
	c := NewConsole(in, out)
	vm.in = c
	vm.out = c
}

// SetLogger replaces the logger. At debug level every executed instruction
// is traced.
func (vm *VM) SetLogger(logger *logrus.Logger) {
	vm.log = logger.WithField("component", "vm")
}

// SetStackReserve sets how many words Load appends for the stack.
func (vm *VM) SetStackReserve(n Word) {
	vm.stackReserve = n
}

// SetMaxSteps sets the maximum number of execution steps. Zero means
// unlimited.
func (vm *VM) SetMaxSteps(n int64) {
	vm.maxSteps = n
}

// SetContext sets the context for cancellation/timeout.
func (vm *VM) SetContext(ctx context.Context) {
	vm.ctx = ctx
}

// EnableStats enables execution statistics collection.
func (vm *VM) EnableStats() {
	vm.statsEnabled = true
	vm.stats = ExecutionStats{
		OpCounts: make(map[string]int),
	}
}

// Stats returns the execution statistics collected so far.
// Returns nil if stats were not enabled via EnableStats().
func (vm *VM) Stats() *ExecutionStats {
	if !vm.statsEnabled {
		return nil
	}
	return &vm.stats
}

// Load takes ownership of the program's memory and prepares the machine to
// run it: registers are cleared, FP is set to the last image word, SP to one
// past the end of the image, and the stack reserve is appended.
func (vm *VM) Load(program *Program) error {
	if program == nil || program.Memory == nil {
		return ErrNotLoaded
	}

	vm.mem = program.Memory
	vm.program = program
	vm.registers.Reset()
	vm.pc = program.Code.Offset
	vm.ir = 0
	vm.tr = 0
	vm.halted = false
	vm.trap = nil
	vm.stepCount = 0

	size := vm.mem.Len()
	if size > 0 {
		vm.registers.R[FP] = size - 1
	}
	vm.registers.R[SP] = size
	if err := vm.mem.Grow(vm.stackReserve); err != nil {
		vm.mem = nil
		return fmt.Errorf("reserving stack: %w", err)
	}

	vm.log.WithFields(logrus.Fields{
		"image": size,
		"stack": vm.stackReserve,
	}).Debug("program loaded")
	return nil
}

// Execute runs the loaded program until HALT or a fault.
func (vm *VM) Execute() error {
	var startTime time.Time
	if vm.statsEnabled {
		startTime = time.Now()
		defer func() {
			vm.stats.ExecutionTimeNs += time.Since(startTime).Nanoseconds()
		}()
	}

	for !vm.halted {
		if vm.ctx != nil {
			select {
			case <-vm.ctx.Done():
				return vm.ctx.Err()
			default:
			}
		}

		if vm.maxSteps > 0 && vm.stepCount >= vm.maxSteps {
			return fmt.Errorf("%w: %d", ErrInstructionLimit, vm.maxSteps)
		}

		if err := vm.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes a single instruction.
func (vm *VM) Step() error {
	switch {
	case vm.mem == nil:
		return ErrNotLoaded
	case vm.trap != nil:
		return vm.trap
	case vm.halted:
		return ErrHalted
	}

	pc := vm.pc
	if err := vm.cycle(); err != nil {
		vm.trap = &Trap{Err: err, PC: pc, Insn: vm.ir}
		return vm.trap
	}
	return nil
}

// cycle runs one fetch-decode-execute cycle.
func (vm *VM) cycle() error {
	// Fetch
	w, err := vm.mem.Read(vm.pc)
	if err != nil {
		vm.ir = 0
		return err
	}
	vm.ir = w

	if vm.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		vm.log.WithFields(logrus.Fields{
			"pc":   vm.pc,
			"word": fmt.Sprintf("0x%08x", w),
		}).Debug("executing " + DisassembleWord(w))
	}
	vm.pc++
	vm.stepCount++

	// Decode
	if w > math.MaxUint32 {
		return fmt.Errorf("%w: word %d", ErrIllegalInstruction, w)
	}
	insn := Decode(uint32(w))
	if insn.Mnemonic == "" {
		return fmt.Errorf("%w: opcode 0x%02X", ErrIllegalInstruction, uint8(insn.Opcode))
	}

	if vm.statsEnabled {
		vm.stats.StepsExecuted++
		vm.stats.OpCounts[insn.Mnemonic]++
	}

	operand, err := vm.resolve(insn)
	if err != nil {
		return err
	}
	vm.tr = operand

	return vm.execute(insn, operand)
}

// resolve computes the operand: the sign-extended immediate plus the index
// register, followed by zero, one or two memory reads depending on the mode.
func (vm *VM) resolve(insn Decoded) (Word, error) {
	tr := Word(int64(insn.Imm))
	if insn.Index != 0 {
		tr += vm.registers.R[insn.Index]
	}

	switch insn.Mode {
	case ModeDirect:
		return vm.mem.Read(tr)
	case ModeIndirect:
		addr, err := vm.mem.Read(tr)
		if err != nil {
			return 0, err
		}
		return vm.mem.Read(addr)
	default:
		return tr, nil
	}
}

// execute dispatches on the opcode.
func (vm *VM) execute(insn Decoded, tr Word) error {
	reg := insn.Reg
	r := &vm.registers.R

	switch insn.Opcode {
	// ===== Data Movement =====
	case OpNop:

	case OpStore:
		return vm.mem.Write(tr, r[reg])

	case OpLoad:
		r[reg] = tr

	// ===== I/O =====
	case OpIn:
		if tr >= NumPorts || vm.inPorts[tr] == nil {
			return fmt.Errorf("%w: input port %d", ErrNoSuchDevice, tr)
		}
		w, err := vm.inPorts[tr]()
		if err != nil {
			return err
		}
		r[reg] = w

	case OpOut:
		if tr >= NumPorts || vm.outPorts[tr] == nil {
			return fmt.Errorf("%w: output port %d", ErrNoSuchDevice, tr)
		}
		return vm.outPorts[tr](r[reg])

	// ===== Arithmetic and Logic =====
	case OpAdd:
		r[reg] += tr
	case OpSub:
		r[reg] -= tr
	case OpMul:
		r[reg] *= tr
	case OpDiv:
		if tr == 0 {
			return ErrDivisionByZero
		}
		r[reg] /= tr
	case OpMod:
		if tr == 0 {
			return ErrDivisionByZero
		}
		r[reg] %= tr
	case OpAnd:
		r[reg] &= tr
	case OpOr:
		r[reg] |= tr
	case OpXor:
		r[reg] ^= tr
	case OpShl:
		r[reg] = word.Shl(r[reg], tr)
	case OpShr:
		r[reg] = word.Shr(r[reg], tr)
	case OpShra:
		r[reg] = word.Sar(r[reg], tr)

	case OpComp:
		vm.registers.Compare(r[reg], tr)

	// ===== Jumps =====
	case OpJump:
		vm.pc = tr
	case OpJneg:
		vm.jumpIf(int64(r[reg]) < 0, tr)
	case OpJzer:
		vm.jumpIf(int64(r[reg]) == 0, tr)
	case OpJpos:
		vm.jumpIf(int64(r[reg]) > 0, tr)
	case OpJnneg:
		vm.jumpIf(int64(r[reg]) >= 0, tr)
	case OpJnzer:
		vm.jumpIf(int64(r[reg]) != 0, tr)
	case OpJnpos:
		vm.jumpIf(int64(r[reg]) <= 0, tr)
	case OpJles:
		vm.jumpIf(vm.registers.Flag(FlagLess), tr)
	case OpJequ:
		vm.jumpIf(vm.registers.Flag(FlagEqual), tr)
	case OpJgre:
		vm.jumpIf(vm.registers.Flag(FlagGreater), tr)
	case OpJnles:
		vm.jumpIf(!vm.registers.Flag(FlagLess), tr)
	case OpJnequ:
		vm.jumpIf(!vm.registers.Flag(FlagEqual), tr)
	case OpJngre:
		vm.jumpIf(!vm.registers.Flag(FlagGreater), tr)

	// ===== Stack =====
	case OpCall:
		if err := vm.push(reg, vm.pc); err != nil {
			return err
		}
		if err := vm.push(reg, r[FP]); err != nil {
			return err
		}
		r[FP] = r[SP]
		vm.pc = tr

	case OpExit:
		fp, err := vm.pop(reg)
		if err != nil {
			return err
		}
		r[FP] = fp
		if vm.pc, err = vm.pop(reg); err != nil {
			return err
		}
		for n := tr; n > 0; n-- {
			if _, err := vm.pop(reg); err != nil {
				return err
			}
		}

	case OpPush:
		return vm.push(reg, tr)

	case OpPop:
		w, err := vm.pop(reg)
		if err != nil {
			return err
		}
		return vm.registers.Set(insn.Index, w)

	case OpPushr:
		for i := uint8(0); i <= 5; i++ {
			if err := vm.push(reg, r[i]); err != nil {
				return err
			}
		}

	case OpPopr:
		for i := 5; i >= 0; i-- {
			w, err := vm.pop(reg)
			if err != nil {
				return err
			}
			r[i] = w
		}

	// ===== Supervisor =====
	case OpSvc:
		if tr >= NumSvcs || vm.svcs[tr] == nil {
			return fmt.Errorf("%w: %d", ErrNoSuchSupervisorCall, tr)
		}
		return vm.svcs[tr](reg)

	default:
		return fmt.Errorf("%w: opcode 0x%02X", ErrIllegalInstruction, uint8(insn.Opcode))
	}

	return nil
}

func (vm *VM) jumpIf(cond bool, target Word) {
	if cond {
		vm.pc = target
	}
}

// push grows the stack addressed by register sp toward higher addresses:
// the pointer is incremented first, then the word is stored. There is no
// bound check against the rest of memory.
func (vm *VM) push(sp uint8, w Word) error {
	top, err := vm.registers.Get(sp)
	if err != nil {
		return err
	}
	top++
	vm.registers.R[sp] = top
	return vm.mem.Write(top, w)
}

// pop reads the word at the top of the stack addressed by sp, then
// decrements the pointer.
func (vm *VM) pop(sp uint8) (Word, error) {
	top, err := vm.registers.Get(sp)
	if err != nil {
		return 0, err
	}
	w, err := vm.mem.Read(top)
	if err != nil {
		return 0, err
	}
	vm.registers.R[sp] = top - 1
	return w, nil
}

// ===== Accessors =====

// PC returns the program counter.
func (vm *VM) PC() Word {
	return vm.pc
}

// SetPC moves the program counter.
func (vm *VM) SetPC(pc Word) {
	vm.pc = pc
}

// Halted reports whether the HALT supervisor call has been issued.
func (vm *VM) Halted() bool {
	return vm.halted
}

// Err returns the trap that stopped the machine, if any.
func (vm *VM) Err() error {
	return vm.trap
}

// Registers returns a copy of the general purpose registers.
func (vm *VM) Registers() [NumRegs]Word {
	return vm.registers.R
}

// Register returns the value of register r.
func (vm *VM) Register(r uint8) (Word, error) {
	return vm.registers.Get(r)
}

// SetRegister stores w in register r.
func (vm *VM) SetRegister(r uint8, w Word) error {
	return vm.registers.Set(r, w)
}

// Flags returns the condition flags.
func (vm *VM) Flags() Flags {
	return vm.registers.Flags
}

// Memory returns the machine's memory, nil before Load.
func (vm *VM) Memory() *Memory {
	return vm.mem
}

// ReadMemory returns the word at addr.
func (vm *VM) ReadMemory(addr Word) (Word, error) {
	if vm.mem == nil {
		return 0, ErrNotLoaded
	}
	return vm.mem.Read(addr)
}

// Program returns the loaded program, nil before Load.
func (vm *VM) Program() *Program {
	return vm.program
}

// StepCount returns the number of instructions fetched since Load.
func (vm *VM) StepCount() int64 {
	return vm.stepCount
}
