// Package embed provides the Go embedding API for the TTK-91 simulator.
//
// Pass an image, get a result.
//
// Basic usage:
//
//	result, err := embed.Run(imageText, embed.WithInputValues(20, 22))
//	fmt.Println(result.Output) // [42]
//
// From a file, with limits:
//
//	result, err := embed.RunFile("prog.b91",
//	    embed.WithTimeout(5*time.Second),
//	    embed.WithMaxInstructions(100000),
//	    embed.WithOutput(os.Stdout),
//	)
//
// Assembly source runs the same way through RunSource, or RunFile with a
// .k91 path.
package embed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/akhildatla/ttk91/pkg/asm"
	"github.com/akhildatla/ttk91/pkg/image"
	"github.com/akhildatla/ttk91/pkg/loader"
	"github.com/akhildatla/ttk91/pkg/report"
	"github.com/akhildatla/ttk91/pkg/vm"
)

// Common errors
var (
	ErrTimeout          = errors.New("execution timeout exceeded")
	ErrInstructionLimit = vm.ErrInstructionLimit
)

// Result describes a finished run.
type Result struct {
	Program   *vm.Program         // the program, with memory as left by the run
	Registers [vm.NumRegs]vm.Word // registers at the end of the run
	Output    []int64             // every value written to an output device
	Symbols   []report.SymbolRow  // data symbols at the end of the run
	Steps     int64               // instructions executed
	Halted    bool                // false if the run ended in an error
	Stats     *vm.ExecutionStats  // nil unless WithStats was given
}

// Options configures execution behavior.
type Options struct {
	// Input supplies the input devices. Defaults to no input at all.
	Input vm.Input

	// InputFile and InputColumn name a data file to feed the input devices
	// from. They take precedence over Input.
	InputFile   string
	InputColumn string

	// Output receives output device values as decimal lines, in addition to
	// Result.Output.
	Output io.Writer

	// Logger receives engine and loader diagnostics.
	Logger *logrus.Logger

	// Timeout sets maximum execution time. Zero means no timeout.
	Timeout time.Duration

	// MaxInstructions limits the number of instructions executed.
	// Zero means unlimited.
	MaxInstructions int64

	// StackReserve overrides vm.DefaultStackReserve when set.
	StackReserve *vm.Word

	// MemoryLimit caps memory in words. Zero keeps vm.DefaultMemoryLimit.
	MemoryLimit vm.Word

	// Stats enables execution statistics.
	Stats bool

	// Context for cancellation. If nil, context.Background() is used.
	Context context.Context
}

// Option is a functional option for configuring execution.
type Option func(*Options)

// WithInput reads input values from r as whitespace separated decimals.
func WithInput(r io.Reader) Option {
	return func(o *Options) {
		o.Input = vm.NewConsole(r, io.Discard)
	}
}

// WithInputDevice reads input values from in.
func WithInputDevice(in vm.Input) Option {
	return func(o *Options) {
		o.Input = in
	}
}

// WithInputValues feeds the given values to the input devices.
func WithInputValues(values ...int64) Option {
	return func(o *Options) {
		o.Input = vm.NewFeed(values...)
	}
}

// WithInputFile feeds one column of a CSV, JSON or Parquet file, or every
// value of a text file, to the input devices.
func WithInputFile(path, column string) Option {
	return func(o *Options) {
		o.InputFile = path
		o.InputColumn = column
	}
}

// WithOutput copies output values to w.
func WithOutput(w io.Writer) Option {
	return func(o *Options) {
		o.Output = w
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithTimeout sets execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithMaxInstructions sets instruction limit.
func WithMaxInstructions(n int64) Option {
	return func(o *Options) {
		o.MaxInstructions = n
	}
}

// WithStackReserve sets how many words are appended for the stack.
func WithStackReserve(words vm.Word) Option {
	return func(o *Options) {
		o.StackReserve = &words
	}
}

// WithMemoryLimit caps memory in words.
func WithMemoryLimit(words vm.Word) Option {
	return func(o *Options) {
		o.MemoryLimit = words
	}
}

// WithStats enables execution statistics.
func WithStats() Option {
	return func(o *Options) {
		o.Stats = true
	}
}

// WithContext sets the context for cancellation.
func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

func buildOptions(opts []Option) *Options {
	options := &Options{
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.MemoryLimit == 0 {
		options.MemoryLimit = vm.DefaultMemoryLimit
	}
	return options
}

func (o *Options) parser() *image.Parser {
	p := image.NewParser()
	p.SetMemoryLimit(o.MemoryLimit)
	if o.Logger != nil {
		p.SetLogger(o.Logger)
	}
	return p
}

// Run parses image text and runs it until HALT.
func Run(text string, opts ...Option) (*Result, error) {
	options := buildOptions(opts)
	prog, err := options.parser().ParseString(text)
	if err != nil {
		return nil, err
	}
	return run(prog, options)
}

// RunSource assembles TTK-91 assembly source and runs it.
func RunSource(source string, opts ...Option) (*Result, error) {
	prog, err := asm.Assemble(source)
	if err != nil {
		return nil, err
	}
	return RunProgram(prog, opts...)
}

// RunFile reads a .b91 image, or assembles a .k91 source file, and runs it.
func RunFile(path string, opts ...Option) (*Result, error) {
	if asm.IsSource(path) {
		prog, err := asm.AssembleFile(path)
		if err != nil {
			return nil, err
		}
		return RunProgram(prog, opts...)
	}

	options := buildOptions(opts)
	prog, err := options.parser().ParseFile(path)
	if err != nil {
		return nil, err
	}
	return run(prog, options)
}

// RunProgram runs an already parsed program. The program's memory is used
// in place.
func RunProgram(prog *vm.Program, opts ...Option) (*Result, error) {
	options := buildOptions(opts)
	if prog != nil && prog.Memory != nil {
		prog.Memory.SetLimit(options.MemoryLimit)
	}
	return run(prog, options)
}

// run executes prog. On an execution error the partial result is returned
// along with the error.
func run(prog *vm.Program, options *Options) (*Result, error) {
	// Setup timeout context
	ctx := options.Context
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	machine := vm.NewVM()
	if options.Logger != nil {
		machine.SetLogger(options.Logger)
	}

	input := options.Input
	if options.InputFile != "" {
		feed, err := loader.OpenInput(ctx, options.InputFile, options.InputColumn)
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		input = feed
	}
	if input == nil {
		input = vm.NewFeed()
	}
	machine.SetInput(input)

	rec := &vm.Recorder{}
	out := &teeOutput{rec: rec}
	if options.Output != nil {
		out.next = vm.NewPrinter(options.Output)
	}
	machine.SetOutput(out)

	if options.StackReserve != nil {
		machine.SetStackReserve(*options.StackReserve)
	}
	machine.SetMaxSteps(options.MaxInstructions)
	machine.SetContext(ctx)
	if options.Stats {
		machine.EnableStats()
	}

	if err := machine.Load(prog); err != nil {
		return nil, err
	}

	runErr := machine.Execute()

	result := &Result{
		Program:   prog,
		Registers: machine.Registers(),
		Output:    rec.Values,
		Steps:     machine.StepCount(),
		Halted:    machine.Halted(),
		Stats:     machine.Stats(),
	}
	syms, err := report.Symbols(prog)
	if err != nil {
		return result, err
	}
	result.Symbols = syms

	if runErr != nil {
		// Map VM errors to embed package errors
		if errors.Is(runErr, context.DeadlineExceeded) && options.Timeout > 0 {
			return result, fmt.Errorf("%w: %v", ErrTimeout, options.Timeout)
		}
		return result, runErr
	}
	return result, nil
}

// teeOutput records every value and forwards it to next, if set.
type teeOutput struct {
	rec  *vm.Recorder
	next vm.Output
}

func (t *teeOutput) WriteWord(w vm.Word) error {
	if err := t.rec.WriteWord(w); err != nil {
		return err
	}
	if t.next != nil {
		return t.next.WriteWord(w)
	}
	return nil
}
