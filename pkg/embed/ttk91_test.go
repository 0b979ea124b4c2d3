package embed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/akhildatla/ttk91/internal/testutil"
	"github.com/akhildatla/ttk91/pkg/asm"
	"github.com/akhildatla/ttk91/pkg/image"
	"github.com/akhildatla/ttk91/pkg/report"
	"github.com/akhildatla/ttk91/pkg/vm"
)

func TestRun_Halt(t *testing.T) {
	result, err := Run(testutil.HaltImage())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Registers[1] != 5 {
		t.Errorf("expected R1 = 5, got %d", result.Registers[1])
	}
	if result.Steps != 2 {
		t.Errorf("expected 2 steps, got %d", result.Steps)
	}
	if !result.Halted {
		t.Error("expected halted result")
	}
	if len(result.Output) != 0 {
		t.Errorf("expected no output, got %v", result.Output)
	}
	if result.Stats != nil {
		t.Error("expected nil stats without WithStats")
	}
}

func TestRun_Echo(t *testing.T) {
	var out bytes.Buffer
	result, err := Run(testutil.EchoImage(), WithInputValues(20, 22), WithOutput(&out))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if diff := cmp.Diff([]int64{42}, result.Output); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if out.String() != "42\n" {
		t.Errorf("expected %q written, got %q", "42\n", out.String())
	}
	want := []report.SymbolRow{{Name: "sum", Offset: 6, Value: 42}, {Name: "seven", Offset: 7, Value: 7}}
	if diff := cmp.Diff(want, result.Symbols); diff != "" {
		t.Errorf("symbols mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_InputReader(t *testing.T) {
	result, err := Run(testutil.EchoImage(), WithInput(strings.NewReader("1\n-3\n")))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if diff := cmp.Diff([]int64{-2}, result.Output); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_InputDevice(t *testing.T) {
	var prompt bytes.Buffer
	console := vm.NewConsole(strings.NewReader("4 5"), io.Discard)
	console.SetPrompt(&prompt)

	result, err := Run(testutil.EchoImage(), WithInputDevice(console))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if diff := cmp.Diff([]int64{9}, result.Output); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
	if prompt.String() != "Input: Input: " {
		t.Errorf("expected two prompts, got %q", prompt.String())
	}
}

func TestRun_InputFile(t *testing.T) {
	path := testutil.TempFile(t, testutil.InputCSV(), ".csv")

	result, err := Run(testutil.EchoImage(), WithInputFile(path, "value"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if diff := cmp.Diff([]int64{42}, result.Output); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	if _, err := Run(testutil.EchoImage(), WithInputFile(path, "missing")); err == nil {
		t.Error("expected error for missing column")
	}
}

func TestRun_NoInputTraps(t *testing.T) {
	result, err := Run(testutil.EchoImage())
	if !errors.Is(err, vm.ErrInput) {
		t.Fatalf("expected ErrInput, got %v", err)
	}

	var trap *vm.Trap
	if !errors.As(err, &trap) || trap.PC != 0 {
		t.Errorf("expected trap at pc 0, got %v", err)
	}
	if result == nil || result.Halted || result.Steps != 1 {
		t.Errorf("expected partial result after one step, got %+v", result)
	}
}

func TestRunFile(t *testing.T) {
	path := testutil.TempFile(t, testutil.HaltImage(), ".b91")

	result, err := RunFile(path)
	if err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}
	if result.Registers[1] != 5 {
		t.Errorf("expected R1 = 5, got %d", result.Registers[1])
	}

	if _, err := RunFile(path + ".missing"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRunSource(t *testing.T) {
	source := `n     DC    4
      LOAD  R1, n
      MUL   R1, R1
      OUT   R1, =CRT
      SVC   SP, =HALT
`
	result, err := RunSource(source)
	if err != nil {
		t.Fatalf("RunSource failed: %v", err)
	}
	if diff := cmp.Diff([]int64{16}, result.Output); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	if _, err := RunSource("LOAD R1, =nowhere"); !errors.Is(err, asm.ErrAssembly) {
		t.Errorf("expected ErrAssembly, got %v", err)
	}
}

func TestRunFile_Source(t *testing.T) {
	path := testutil.TempFile(t, "LOAD R1, =5\nSVC SP, =HALT\n", ".k91")

	result, err := RunFile(path)
	if err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}
	if result.Registers[1] != 5 || !result.Halted {
		t.Errorf("expected R1 = 5 and halted, got %d %v", result.Registers[1], result.Halted)
	}
}

func TestRunProgram(t *testing.T) {
	prog, err := image.ParseString(testutil.EchoImage())
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}

	if _, err := RunProgram(prog, WithInputValues(2, 3)); err != nil {
		t.Fatalf("RunProgram failed: %v", err)
	}
	if sum, _ := prog.Memory.Read(6); sum != 5 {
		t.Errorf("expected program memory to be updated in place, got %d", sum)
	}

	if _, err := RunProgram(nil); !errors.Is(err, vm.ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded, got %v", err)
	}
}

func TestRun_MalformedImage(t *testing.T) {
	result, err := Run("___b91___\n___code___\n1 1\n0\n")
	if !errors.Is(err, image.ErrMalformedImage) {
		t.Fatalf("expected ErrMalformedImage, got %v", err)
	}
	if result != nil {
		t.Error("expected no result for a malformed image")
	}
}

func TestRun_InstructionLimit(t *testing.T) {
	result, err := Run(testutil.LoopImage(), WithMaxInstructions(100))
	if !errors.Is(err, ErrInstructionLimit) {
		t.Fatalf("expected ErrInstructionLimit, got %v", err)
	}
	if result.Steps != 100 {
		t.Errorf("expected 100 steps, got %d", result.Steps)
	}
}

func TestRun_Timeout(t *testing.T) {
	start := time.Now()
	_, err := Run(testutil.LoopImage(), WithTimeout(20*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout took too long to fire")
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(testutil.LoopImage(), WithContext(ctx))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("cancellation is not a timeout")
	}
}

func TestRun_StackReserve(t *testing.T) {
	result, err := Run(testutil.HaltImage(), WithStackReserve(0))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Program.Memory.Len() != 2 {
		t.Errorf("expected no stack words, memory is %d words", result.Program.Memory.Len())
	}

	result, err = Run(testutil.HaltImage())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Program.Memory.Len() != 2+vm.DefaultStackReserve {
		t.Errorf("expected default stack, memory is %d words", result.Program.Memory.Len())
	}
}

func TestRun_MemoryLimit(t *testing.T) {
	// The image fits, the stack does not.
	_, err := Run(testutil.HaltImage(), WithMemoryLimit(10))
	if !errors.Is(err, vm.ErrOutOfMemory) {
		t.Errorf("expected ErrOutOfMemory, got %v", err)
	}

	if _, err := Run(testutil.HaltImage(), WithMemoryLimit(66)); err != nil {
		t.Errorf("expected image and stack to fit in 66 words, got %v", err)
	}
}

func TestRun_Stats(t *testing.T) {
	result, err := Run(testutil.HaltImage(), WithStats())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Stats == nil || result.Stats.StepsExecuted != 2 {
		t.Errorf("unexpected stats %+v", result.Stats)
	}
}

func TestRun_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)

	if _, err := Run(testutil.HaltImage(), WithLogger(logger)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	logs := buf.String()
	for _, want := range []string{"component=image", "component=vm", "msg=HALT"} {
		if !strings.Contains(logs, want) {
			t.Errorf("expected log to contain %q, got:\n%s", want, logs)
		}
	}
}

func TestOptions(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()
	var out bytes.Buffer

	opts := buildOptions([]Option{
		WithTimeout(5 * time.Second),
		WithMaxInstructions(1000),
		WithStackReserve(8),
		WithMemoryLimit(4096),
		WithStats(),
		WithContext(ctx),
		WithLogger(logger),
		WithOutput(&out),
		WithInputFile("in.csv", "value"),
	})

	if opts.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", opts.Timeout)
	}
	if opts.MaxInstructions != 1000 {
		t.Errorf("expected 1000 instructions, got %d", opts.MaxInstructions)
	}
	if opts.StackReserve == nil || *opts.StackReserve != 8 {
		t.Errorf("expected stack reserve 8, got %v", opts.StackReserve)
	}
	if opts.MemoryLimit != 4096 {
		t.Errorf("expected memory limit 4096, got %d", opts.MemoryLimit)
	}
	if !opts.Stats || opts.Context != ctx || opts.Logger != logger || opts.Output != &out {
		t.Error("expected stats, context, logger and output to be set")
	}
	if opts.InputFile != "in.csv" || opts.InputColumn != "value" {
		t.Errorf("unexpected input file %q column %q", opts.InputFile, opts.InputColumn)
	}

	defaults := buildOptions(nil)
	if defaults.MemoryLimit != vm.DefaultMemoryLimit || defaults.Context == nil {
		t.Errorf("unexpected defaults %+v", defaults)
	}
}

func TestError_Variables(t *testing.T) {
	if ErrTimeout.Error() != "execution timeout exceeded" {
		t.Errorf("unexpected ErrTimeout message %q", ErrTimeout.Error())
	}
	if !errors.Is(ErrInstructionLimit, vm.ErrInstructionLimit) {
		t.Error("ErrInstructionLimit should match vm.ErrInstructionLimit")
	}
}
