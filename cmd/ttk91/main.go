// Package main provides the CLI entry point for the TTK-91 simulator.
//
// Usage:
//
//	ttk91 run program.b91                # run an image
//	ttk91 run -v program.b91             # trace, disassemble and report symbols
//	ttk91 run --input data.csv --input-column value program.b91
//	ttk91 disasm program.b91             # disassemble the code segment
//	ttk91 symbols --report csv program.b91
//	ttk91 repl [program.b91]             # interactive monitor
//	ttk91 asm program.k91                # assemble into program.b91
//	ttk91 run program.k91                # assemble and run in one step
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version info set by GoReleaser via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// cli holds the flags shared by every subcommand.
type cli struct {
	verbose bool
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "ttk91",
		Short: "TTK-91 machine simulator",
		Long: `ttk91 loads TTK-91 program images (.b91) and runs them on a simulated
machine with keyboard/stdin input and CRT/stdout output.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false,
		"trace execution, disassemble before running and report symbols at halt")

	root.AddCommand(
		c.newRunCmd(),
		c.newDisasmCmd(),
		c.newSymbolsCmd(),
		c.newReplCmd(),
		c.newAsmCmd(),
		newVersionCmd(),
	)
	return root
}

// logger writes diagnostics to the command's error stream. Verbose mode
// enables the per-instruction trace.
func (c *cli) logger(cmd *cobra.Command) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if c.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ttk91 version %s\n", version)
			if commit != "none" {
				fmt.Fprintf(out, "  commit: %s\n", commit)
			}
			if date != "unknown" {
				fmt.Fprintf(out, "  built:  %s\n", date)
			}
		},
	}
}
