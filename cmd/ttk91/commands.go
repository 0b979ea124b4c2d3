package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/akhildatla/ttk91/pkg/asm"
	"github.com/akhildatla/ttk91/pkg/embed"
	"github.com/akhildatla/ttk91/pkg/image"
	"github.com/akhildatla/ttk91/pkg/loader"
	"github.com/akhildatla/ttk91/pkg/report"
	"github.com/akhildatla/ttk91/pkg/repl"
	"github.com/akhildatla/ttk91/pkg/vm"
)

// machineFlags configure loading an image and the machine it runs on.
type machineFlags struct {
	input       string
	inputColumn string
	maxSteps    int64
	timeout     time.Duration
	stack       uint64
	memoryLimit uint64
}

func (f *machineFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.input, "input", "", "feed input devices from a text, CSV, JSON or Parquet file")
	flags.StringVar(&f.inputColumn, "input-column", "", "column of the --input file to read (default: first)")
	flags.Int64Var(&f.maxSteps, "max-steps", 0, "stop after N instructions (0 = unlimited)")
	flags.DurationVar(&f.timeout, "timeout", 0, "stop after this much wall time (0 = unlimited)")
	flags.Uint64Var(&f.stack, "stack", vm.DefaultStackReserve, "words reserved for the stack after the image")
	flags.Uint64Var(&f.memoryLimit, "memory-limit", vm.DefaultMemoryLimit, "memory limit in words")
}

func (f *machineFlags) limit() vm.Word {
	if f.memoryLimit == 0 {
		return vm.DefaultMemoryLimit
	}
	return f.memoryLimit
}

func (f *machineFlags) parse(path string, logger *logrus.Logger) (*vm.Program, error) {
	return load(path, logger, f.limit())
}

// load reads the image at path, assembling it first when path names
// assembly source.
func load(path string, logger *logrus.Logger, limit vm.Word) (*vm.Program, error) {
	if !asm.IsSource(path) {
		p := image.NewParser()
		p.SetLogger(logger)
		p.SetMemoryLimit(limit)
		return p.ParseFile(path)
	}

	prog, err := asm.AssembleFile(path)
	if err != nil {
		return nil, err
	}
	if limit > 0 && prog.Memory.Len() > limit {
		return nil, fmt.Errorf("%w: %d words assembled, limit is %d", vm.ErrOutOfMemory, prog.Memory.Len(), limit)
	}
	prog.Memory.SetLimit(limit)
	logger.WithFields(logrus.Fields{
		"component": "asm",
		"code":      prog.Code.Size,
		"data":      prog.Data.Size,
	}).Debugf("assembled %s", path)
	return prog, nil
}

// reportFlags select what is printed after a run.
type reportFlags struct {
	symbols   bool
	report    string
	reportOut string
	stats     bool
}

func (f *reportFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.report, "report", string(report.FormatText), "symbol report format: text, table, csv, json or parquet")
	flags.StringVar(&f.reportOut, "report-out", "", "write the symbol report to a file instead of stdout")
}

func (f *reportFlags) format() (report.Format, error) {
	format, err := report.ParseFormat(f.report)
	if err != nil {
		return "", err
	}
	if format == report.FormatParquet && f.reportOut == "" {
		return "", fmt.Errorf("%w: use --report-out", report.ErrNeedsFile)
	}
	return format, nil
}

func (f *reportFlags) writeSymbols(ctx context.Context, out io.Writer, rows []report.SymbolRow) error {
	format, err := f.format()
	if err != nil {
		return err
	}
	return report.WriteSymbols(ctx, out, f.reportOut, rows, format)
}

func (c *cli) newRunCmd() *cobra.Command {
	var mf machineFlags
	var rf reportFlags

	cmd := &cobra.Command{
		Use:   "run <image.b91|source.k91>",
		Short: "Run a program until HALT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runImage(cmd, args[0], &mf, &rf)
		},
	}
	mf.register(cmd)
	rf.register(cmd)
	cmd.Flags().BoolVar(&rf.symbols, "symbols", false, "report data symbols at halt")
	cmd.Flags().BoolVar(&rf.stats, "stats", false, "print execution statistics at halt")
	return cmd
}

func (c *cli) runImage(cmd *cobra.Command, path string, mf *machineFlags, rf *reportFlags) error {
	out := cmd.OutOrStdout()
	logger := c.logger(cmd)

	showSymbols := c.verbose || rf.symbols || cmd.Flags().Changed("report") || rf.reportOut != ""
	if showSymbols {
		if _, err := rf.format(); err != nil {
			return err
		}
	}

	prog, err := mf.parse(path, logger)
	if err != nil {
		return err
	}

	if c.verbose {
		text, err := vm.Disassemble(prog.Memory, prog.Code.Offset, prog.Code.Size)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Disassembly of code area at program start:")
		fmt.Fprint(out, text)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Running program:")
	}

	opts := []embed.Option{
		embed.WithContext(cmd.Context()),
		embed.WithLogger(logger),
		embed.WithOutput(out),
		embed.WithStackReserve(mf.stack),
		embed.WithMemoryLimit(mf.limit()),
		embed.WithMaxInstructions(mf.maxSteps),
		embed.WithTimeout(mf.timeout),
	}
	if mf.input != "" {
		opts = append(opts, embed.WithInputFile(mf.input, mf.inputColumn))
	} else {
		opts = append(opts, embed.WithInputDevice(console(cmd.InOrStdin(), out)))
	}
	if rf.stats {
		opts = append(opts, embed.WithStats())
	}

	result, err := embed.RunProgram(prog, opts...)
	if err != nil {
		return err
	}

	if showSymbols {
		if c.verbose {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Data area symbols at program halt:")
		}
		if err := rf.writeSymbols(cmd.Context(), out, result.Symbols); err != nil {
			return err
		}
	}
	if rf.stats {
		return report.WriteStats(out, result.Stats)
	}
	return nil
}

// console reads program input from in, prompting on out when in is a
// terminal.
func console(in io.Reader, out io.Writer) *vm.Console {
	c := vm.NewConsole(in, out)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.SetPrompt(out)
	}
	return c
}

func (c *cli) newDisasmCmd() *cobra.Command {
	var data bool
	cmd := &cobra.Command{
		Use:   "disasm <image.b91|source.k91>",
		Short: "Disassemble the code segment of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := load(args[0], c.logger(cmd), vm.DefaultMemoryLimit)
			if err != nil {
				return err
			}

			seg := prog.Code
			if data {
				seg.Size += prog.Data.Size
			}
			text, err := vm.Disassemble(prog.Memory, seg.Offset, seg.Size)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&data, "data", false, "also disassemble the data segment")
	return cmd
}

func (c *cli) newSymbolsCmd() *cobra.Command {
	var rf reportFlags
	cmd := &cobra.Command{
		Use:   "symbols <image.b91|source.k91>",
		Short: "List data symbols with their values at load time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rf.format(); err != nil {
				return err
			}
			prog, err := load(args[0], c.logger(cmd), vm.DefaultMemoryLimit)
			if err != nil {
				return err
			}
			rows, err := report.Symbols(prog)
			if err != nil {
				return err
			}
			return rf.writeSymbols(cmd.Context(), cmd.OutOrStdout(), rows)
		},
	}
	rf.register(cmd)
	return cmd
}

func (c *cli) newReplCmd() *cobra.Command {
	var input, inputColumn string
	cmd := &cobra.Command{
		Use:   "repl [image.b91|source.k91]",
		Short: "Start the interactive monitor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := repl.New()
			r.SetLogger(c.logger(cmd))

			if input != "" {
				values, err := loader.ReadInts(cmd.Context(), input, inputColumn)
				if err != nil {
					return err
				}
				r.SetInput(values...)
			}
			if len(args) == 1 {
				if err := r.Load(args[0]); err != nil {
					return err
				}
			}

			r.Start(cmd.InOrStdin(), cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "queue input values from a text, CSV, JSON or Parquet file")
	cmd.Flags().StringVar(&inputColumn, "input-column", "", "column of the --input file to read (default: first)")
	return cmd
}

func (c *cli) newAsmCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "asm <source.k91>",
		Short: "Assemble a source file into a program image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := asm.AssembleFile(args[0])
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + image.Ext
			}
			if err := writeImage(path, prog); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assembled: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "image file to write (default: the source name with "+image.Ext+")")
	return cmd
}

func writeImage(path string, prog *vm.Program) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := image.Write(f, prog); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
