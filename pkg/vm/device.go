package vm

import (
	"bufio"
	"fmt"
	"io"
)

// Device port numbers.
const (
	PortCRT    = 0 // output
	PortKBD    = 1 // input
	PortStdin  = 6 // input
	PortStdout = 7 // output

	NumPorts = 8
)

// Supervisor call numbers.
const (
	SvcHalt  = 11
	SvcRead  = 12
	SvcWrite = 13
	SvcTime  = 14
	SvcDate  = 15

	NumSvcs = 16
)

// Input supplies integers to the input devices and the READ supervisor call.
type Input interface {
	ReadWord() (Word, error)
}

// Output receives integers from the output devices and the WRITE
// supervisor call.
type Output interface {
	WriteWord(w Word) error
}

// Console reads whitespace-delimited signed decimals from a reader and
// writes one signed decimal per line to a writer.
type Console struct {
	in     *bufio.Reader
	out    io.Writer
	prompt io.Writer
}

// NewConsole creates a console over in and out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// SetPrompt makes ReadWord print "Input: " to w before each read.
// A nil writer disables the prompt.
func (c *Console) SetPrompt(w io.Writer) {
	c.prompt = w
}

// ReadWord reads one signed decimal integer.
func (c *Console) ReadWord() (Word, error) {
	if c.prompt != nil {
		fmt.Fprint(c.prompt, "Input: ")
	}
	var v int64
	if _, err := fmt.Fscan(c.in, &v); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInput, err)
	}
	return Word(v), nil
}

// WriteWord writes w as a signed decimal on its own line.
func (c *Console) WriteWord(w Word) error {
	return printWord(c.out, w)
}

// Printer is an Output that writes one signed decimal per line.
type Printer struct {
	out io.Writer
}

// NewPrinter creates an output-only device over out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// WriteWord writes w as a signed decimal on its own line.
func (p *Printer) WriteWord(w Word) error {
	return printWord(p.out, w)
}

func printWord(out io.Writer, w Word) error {
	if _, err := fmt.Fprintf(out, "%d\n", int64(w)); err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}
	return nil
}

// Feed is an Input over a fixed list of values.
type Feed struct {
	values []int64
	pos    int
}

// NewFeed returns an Input that yields values in order.
func NewFeed(values ...int64) *Feed {
	return &Feed{values: values}
}

// ReadWord returns the next value, or ErrInput once the feed is exhausted.
func (f *Feed) ReadWord() (Word, error) {
	if f.pos >= len(f.values) {
		return 0, fmt.Errorf("%w: input exhausted after %d values", ErrInput, len(f.values))
	}
	v := f.values[f.pos]
	f.pos++
	return Word(v), nil
}

// Remaining returns the number of unread values.
func (f *Feed) Remaining() int {
	return len(f.values) - f.pos
}

// Recorder is an Output that keeps every value written to it.
type Recorder struct {
	Values []int64
}

// WriteWord records w.
func (r *Recorder) WriteWord(w Word) error {
	r.Values = append(r.Values, int64(w))
	return nil
}

func (vm *VM) installDevices() {
	vm.inPorts = [NumPorts]func() (Word, error){
		PortKBD:   vm.input,
		PortStdin: vm.input,
	}
	vm.outPorts = [NumPorts]func(Word) error{
		PortCRT:    vm.output,
		PortStdout: vm.output,
	}
	vm.svcs = [NumSvcs]func(sp uint8) error{
		SvcHalt:  vm.svcHalt,
		SvcRead:  vm.svcRead,
		SvcWrite: vm.svcWrite,
		SvcTime:  vm.svcTime,
		SvcDate:  vm.svcDate,
	}
}

func (vm *VM) input() (Word, error) {
	w, err := vm.in.ReadWord()
	if err != nil {
		return 0, err
	}
	vm.log.WithField("value", int64(w)).Debug("received input")
	return w, nil
}

func (vm *VM) output(w Word) error {
	return vm.out.WriteWord(w)
}

func (vm *VM) svcHalt(sp uint8) error {
	vm.halted = true
	vm.log.WithField("steps", vm.stepCount).Info("HALT")
	return nil
}

func (vm *VM) svcRead(sp uint8) error {
	addr, err := vm.pop(sp)
	if err != nil {
		return err
	}
	w, err := vm.input()
	if err != nil {
		return err
	}
	return vm.mem.Write(addr, w)
}

func (vm *VM) svcWrite(sp uint8) error {
	w, err := vm.pop(sp)
	if err != nil {
		return err
	}
	return vm.output(w)
}

func (vm *VM) svcTime(sp uint8) error {
	return fmt.Errorf("%w: TIME", ErrNotImplemented)
}

func (vm *VM) svcDate(sp uint8) error {
	return fmt.Errorf("%w: DATE", ErrNotImplemented)
}
