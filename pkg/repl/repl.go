package repl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/k0kubun/pp/v3"
	"github.com/sirupsen/logrus"

	"github.com/akhildatla/ttk91/pkg/asm"
	"github.com/akhildatla/ttk91/pkg/image"
	"github.com/akhildatla/ttk91/pkg/loader"
	"github.com/akhildatla/ttk91/pkg/report"
	"github.com/akhildatla/ttk91/pkg/vm"
)

const (
	prompt      = "ttk91> "
	defaultSpan = 10
)

var errNoProgram = errors.New("no program loaded (use 'load <path>')")

// REPL is an interactive monitor over one TTK-91 machine: load an image,
// step or run it, and inspect registers, memory and symbols between steps.
type REPL struct {
	vm          *vm.VM
	feed        *vm.Feed
	image       []byte // image as loaded, for reset
	path        string
	input       []int64
	breakpoints map[vm.Word]bool
	history     []string
	logger      *logrus.Logger
	printer     *pp.PrettyPrinter
	out         io.Writer
	done        bool
}

// New creates a new REPL instance.
func New() *REPL {
	printer := pp.New()
	printer.SetColoringEnabled(false)
	return &REPL{
		breakpoints: make(map[vm.Word]bool),
		history:     []string{},
		printer:     printer,
		out:         io.Discard,
	}
}

// SetLogger routes machine and parser logging to logger.
func (r *REPL) SetLogger(logger *logrus.Logger) {
	r.logger = logger
}

// SetInput queues values for the program's input devices. The queue is
// handed to the machine on every load and reset.
func (r *REPL) SetInput(values ...int64) {
	r.input = values
	if r.vm != nil {
		r.feed = vm.NewFeed(values...)
		r.vm.SetInput(r.feed)
	}
}

// Load parses the image at path, or assembles it when it is .k91 source,
// and loads it into a fresh machine.
func (r *REPL) Load(path string) error {
	var prog *vm.Program
	var err error
	if asm.IsSource(path) {
		prog, err = asm.AssembleFile(path)
	} else {
		parser := image.NewParser()
		if r.logger != nil {
			parser.SetLogger(r.logger)
		}
		prog, err = parser.ParseFile(path)
	}
	if err != nil {
		return err
	}
	if err := r.LoadProgram(prog); err != nil {
		return err
	}
	r.path = path
	return nil
}

// LoadProgram loads prog into a fresh machine. The machine takes ownership
// of prog's memory.
func (r *REPL) LoadProgram(prog *vm.Program) error {
	snapshot, err := image.Marshal(prog)
	if err != nil {
		return err
	}

	m := vm.NewVM()
	if r.logger != nil {
		m.SetLogger(r.logger)
	}
	feed := vm.NewFeed(r.input...)
	m.SetInput(feed)
	m.SetOutput(r)
	m.EnableStats()
	if err := m.Load(prog); err != nil {
		return err
	}

	r.vm = m
	r.feed = feed
	r.image = snapshot
	r.path = ""
	return nil
}

// Reset reloads the program from the image it was loaded from, discarding
// the effects of any steps taken.
func (r *REPL) Reset() error {
	if r.image == nil {
		return errNoProgram
	}
	prog, err := image.Parse(bytes.NewReader(r.image))
	if err != nil {
		return err
	}
	path := r.path
	if err := r.LoadProgram(prog); err != nil {
		return err
	}
	r.path = path
	return nil
}

// WriteWord prints program output on the monitor's output stream.
func (r *REPL) WriteWord(w vm.Word) error {
	return vm.NewPrinter(r.out).WriteWord(w)
}

// Start starts the REPL loop. It returns on quit or at the end of in.
func (r *REPL) Start(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	r.out = out
	r.done = false

	fmt.Fprintln(out, "TTK-91 monitor")
	fmt.Fprintln(out, "Type 'help' for available commands, 'quit' to exit")
	fmt.Fprintln(out)

	for !r.done {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			r.history = append(r.history, line)
		}
		if handled := r.handleCommand(line, out); !handled {
			fields := strings.Fields(line)
			fmt.Fprintf(out, "Unknown command: %s (type 'help')\n", fields[0])
		}
	}
}

func (r *REPL) handleCommand(line string, out io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	args := parts[1:]

	var err error
	switch parts[0] {
	case "quit", "exit", "q":
		fmt.Fprintln(out, "Goodbye!")
		r.done = true

	case "help", "h", "?":
		r.printHelp(out)

	case "load":
		if len(args) != 1 {
			fmt.Fprintln(out, "Usage: load <path.b91|path.k91>")
			return true
		}
		if err = r.Load(args[0]); err == nil {
			fmt.Fprintf(out, "Loaded %s (%d code words, %d data words)\n",
				args[0], r.vm.Program().Code.Size, r.vm.Program().Data.Size)
		}

	case "reset":
		if err = r.Reset(); err == nil {
			fmt.Fprintln(out, "Program reset")
		}

	case "input":
		err = r.setInput(args, out)

	case "step", "s":
		err = r.step(args, out)

	case "run", "r", "continue", "c":
		err = r.run(out)

	case "break", "b":
		err = r.toggleBreak(args, out)

	case "regs":
		err = r.printRegisters(out)

	case "mem", "m":
		err = r.printMemory(args, out)

	case "dis", "d":
		err = r.printDisassembly(args, out)

	case "syms":
		err = r.printSymbols(out)

	case "stats":
		if err = r.loaded(); err == nil {
			err = report.WriteStats(out, r.vm.Stats())
		}

	case "state":
		if err = r.loaded(); err == nil {
			fmt.Fprintln(out, r.printer.Sprint(r.snapshot()))
		}

	case "save":
		if len(args) != 1 {
			fmt.Fprintln(out, "Usage: save <path.b91>")
			return true
		}
		if err = r.save(args[0]); err == nil {
			fmt.Fprintf(out, "Saved %s\n", args[0])
		}

	case "history":
		for i, cmd := range r.history {
			fmt.Fprintf(out, "%3d: %s\n", i+1, cmd)
		}

	default:
		return false
	}

	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
	return true
}

func (r *REPL) loaded() error {
	if r.vm == nil {
		return errNoProgram
	}
	return nil
}

func (r *REPL) setInput(args []string, out io.Writer) error {
	if len(args) == 0 {
		remaining := 0
		if r.feed != nil {
			remaining = r.feed.Remaining()
		}
		fmt.Fprintf(out, "%d input values pending\n", remaining)
		return nil
	}

	if args[0] == "file" {
		if len(args) < 2 || len(args) > 3 {
			fmt.Fprintln(out, "Usage: input file <path> [column]")
			return nil
		}
		column := ""
		if len(args) == 3 {
			column = args[2]
		}
		values, err := loader.ReadInts(context.Background(), args[1], column)
		if err != nil {
			return err
		}
		r.SetInput(values...)
		fmt.Fprintf(out, "Queued %d input values from %s\n", len(values), args[1])
		return nil
	}

	values := make([]int64, len(args))
	for i, arg := range args {
		v, err := strconv.ParseInt(arg, 0, 64)
		if err != nil {
			return fmt.Errorf("input value %q: %w", arg, err)
		}
		values[i] = v
	}
	r.SetInput(values...)
	fmt.Fprintf(out, "Queued %d input values\n", len(values))
	return nil
}

func (r *REPL) step(args []string, out io.Writer) error {
	if err := r.loaded(); err != nil {
		return err
	}
	n := uint64(1)
	if len(args) > 0 {
		var err error
		if n, err = strconv.ParseUint(args[0], 0, 64); err != nil {
			return fmt.Errorf("step count %q: %w", args[0], err)
		}
	}

	for ; n > 0 && !r.vm.Halted(); n-- {
		r.printCurrent(out)
		if err := r.vm.Step(); err != nil {
			return err
		}
	}
	r.reportHalt(out)
	return nil
}

// run executes until HALT, a fault, or a breakpoint other than the one the
// machine is currently sitting on.
func (r *REPL) run(out io.Writer) error {
	if err := r.loaded(); err != nil {
		return err
	}
	if len(r.breakpoints) == 0 {
		if err := r.vm.Execute(); err != nil {
			return err
		}
		r.reportHalt(out)
		return nil
	}

	for first := true; !r.vm.Halted(); first = false {
		if !first && r.breakpoints[r.vm.PC()] {
			fmt.Fprintf(out, "Breakpoint at %d\n", r.vm.PC())
			r.printCurrent(out)
			return nil
		}
		if err := r.vm.Step(); err != nil {
			return err
		}
	}
	r.reportHalt(out)
	return nil
}

func (r *REPL) reportHalt(out io.Writer) {
	if r.vm.Halted() {
		fmt.Fprintf(out, "Halted after %d steps\n", r.vm.StepCount())
	}
}

func (r *REPL) printCurrent(out io.Writer) {
	pc := r.vm.PC()
	w, err := r.vm.ReadMemory(pc)
	if err != nil {
		fmt.Fprintf(out, "%4d: ??\n", pc)
		return
	}
	fmt.Fprintf(out, "%4d: %s\n", pc, vm.DisassembleWord(w))
}

func (r *REPL) toggleBreak(args []string, out io.Writer) error {
	if len(args) == 0 {
		if len(r.breakpoints) == 0 {
			fmt.Fprintln(out, "No breakpoints set")
			return nil
		}
		addrs := make([]vm.Word, 0, len(r.breakpoints))
		for addr := range r.breakpoints {
			addrs = append(addrs, addr)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
		fmt.Fprintln(out, "Breakpoints:")
		for _, addr := range addrs {
			fmt.Fprintf(out, "  %d\n", addr)
		}
		return nil
	}

	addr, err := r.address(args[0])
	if err != nil {
		return err
	}
	if r.breakpoints[addr] {
		delete(r.breakpoints, addr)
		fmt.Fprintf(out, "Breakpoint at %d cleared\n", addr)
	} else {
		r.breakpoints[addr] = true
		fmt.Fprintf(out, "Breakpoint at %d set\n", addr)
	}
	return nil
}

// address parses a numeric address or looks up a symbol of the loaded
// program.
func (r *REPL) address(s string) (vm.Word, error) {
	if addr, err := strconv.ParseUint(s, 0, 64); err == nil {
		return addr, nil
	}
	if r.vm != nil {
		if addr, ok := r.vm.Program().Symbols.Lookup(s); ok {
			return addr, nil
		}
	}
	return 0, fmt.Errorf("unknown address %q", s)
}

// span parses optional "<addr> [count]" arguments.
func (r *REPL) span(args []string, addr vm.Word) (vm.Word, vm.Word, error) {
	count := vm.Word(defaultSpan)
	if len(args) > 0 {
		var err error
		if addr, err = r.address(args[0]); err != nil {
			return 0, 0, err
		}
		count = 1
	}
	if len(args) > 1 {
		n, err := strconv.ParseUint(args[1], 0, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("count %q: %w", args[1], err)
		}
		count = n
	}

	size := r.vm.Memory().Len()
	if addr >= size {
		return 0, 0, fmt.Errorf("%w: %d", vm.ErrInvalidAddress, addr)
	}
	if count > size-addr {
		count = size - addr
	}
	return addr, count, nil
}

func (r *REPL) printRegisters(out io.Writer) error {
	if err := r.loaded(); err != nil {
		return err
	}
	for i, val := range r.vm.Registers() {
		fmt.Fprintf(out, "%-3s = %d (0x%x)\n", vm.RegisterName(uint8(i)), int64(val), val)
	}
	fmt.Fprintf(out, "PC  = %d\n", r.vm.PC())
	fmt.Fprintf(out, "SR  = %s\n", r.vm.Flags())
	return nil
}

func (r *REPL) printMemory(args []string, out io.Writer) error {
	if err := r.loaded(); err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Fprintln(out, "Usage: mem <addr|symbol> [count]")
		return nil
	}
	addr, count, err := r.span(args, 0)
	if err != nil {
		return err
	}
	words, err := r.vm.Memory().Slice(addr, count)
	if err != nil {
		return err
	}
	for i, w := range words {
		fmt.Fprintf(out, "%4d: %d (0x%x)\n", addr+vm.Word(i), int64(w), w)
	}
	return nil
}

func (r *REPL) printDisassembly(args []string, out io.Writer) error {
	if err := r.loaded(); err != nil {
		return err
	}
	addr, count, err := r.span(args, r.vm.PC())
	if err != nil {
		return err
	}
	if len(args) == 1 {
		count = min(vm.Word(defaultSpan), r.vm.Memory().Len()-addr)
	}
	text, err := vm.Disassemble(r.vm.Memory(), addr, count)
	if err != nil {
		return err
	}
	fmt.Fprint(out, text)
	return nil
}

func (r *REPL) printSymbols(out io.Writer) error {
	if err := r.loaded(); err != nil {
		return err
	}
	rows, err := report.Symbols(r.vm.Program())
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No data symbols")
		return nil
	}
	return report.WriteText(out, rows)
}

func (r *REPL) save(path string) error {
	if err := r.loaded(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := image.Write(f, r.vm.Program()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type state struct {
	Image     string
	PC        vm.Word
	Registers map[string]int64
	Flags     string
	Steps     int64
	Halted    bool
	Trap      string
	Input     int
}

func (r *REPL) snapshot() state {
	s := state{
		Image:     r.path,
		PC:        r.vm.PC(),
		Registers: make(map[string]int64, vm.NumRegs),
		Flags:     r.vm.Flags().String(),
		Steps:     r.vm.StepCount(),
		Halted:    r.vm.Halted(),
		Input:     r.feed.Remaining(),
	}
	for i, val := range r.vm.Registers() {
		s.Registers[vm.RegisterName(uint8(i))] = int64(val)
	}
	if err := r.vm.Err(); err != nil {
		s.Trap = err.Error()
	}
	return s
}

func (r *REPL) printHelp(out io.Writer) {
	help := `
TTK-91 Monitor Commands:
  help, h, ?             Show this help message
  quit, exit, q          Exit the monitor
  load <path>            Load a .b91 image or assemble .k91 source
  reset                  Reload the current image
  input [v...]           Queue input values, or show how many remain
  input file <p> [col]   Queue input values from a text/csv/json/parquet file
  step, s [n]            Execute n instructions (default 1)
  run, r, continue, c    Run until HALT, a fault or a breakpoint
  break, b [addr]        Toggle a breakpoint, or list breakpoints
  regs                   Show registers and flags
  mem, m <addr> [n]      Show n memory words
  dis, d [addr [n]]      Disassemble memory (default: from PC)
  syms                   Show data symbols and their values
  stats                  Show execution statistics
  state                  Dump the machine state
  save <path>            Write code and data as an image
  history                Show command history

Addresses may be decimal, 0x-prefixed hex, or a symbol name.
`
	fmt.Fprint(out, help)
}
