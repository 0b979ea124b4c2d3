package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/akhildatla/ttk91/internal/testutil"
	"github.com/akhildatla/ttk91/pkg/asm"
	"github.com/akhildatla/ttk91/pkg/image"
	"github.com/akhildatla/ttk91/pkg/report"
	"github.com/akhildatla/ttk91/pkg/vm"
)

// execute runs the CLI in-process with stdin as program input.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// buildTTK91 builds the ttk91 binary for testing
func buildTTK91(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	binary := filepath.Join(tmpDir, "ttk91")
	cmd := exec.Command("go", "build", "-o", binary, ".")
	cmd.Dir = "."
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to build ttk91: %v\n%s", err, output)
	}
	return binary
}

func TestCLI_Help(t *testing.T) {
	out, _, err := execute(t, "", "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}

	for _, want := range []string{"ttk91", "run", "disasm", "symbols", "repl", "asm", "version"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output should contain %q", want)
		}
	}
}

func TestCLI_Version(t *testing.T) {
	out, _, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "ttk91 version dev") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestCLI_Run(t *testing.T) {
	path := testutil.TempFile(t, testutil.HaltImage(), ".b91")

	out, errOut, err := execute(t, "", "run", path)
	if err != nil {
		t.Fatalf("run command failed: %v", err)
	}
	if out != "" {
		t.Errorf("expected no output, got %q", out)
	}
	if errOut != "" {
		t.Errorf("expected quiet stderr, got %q", errOut)
	}
}

func TestCLI_RunEcho(t *testing.T) {
	path := testutil.TempFile(t, testutil.EchoImage(), ".b91")

	out, _, err := execute(t, "20\n22\n", "run", path)
	if err != nil {
		t.Fatalf("run command failed: %v", err)
	}
	if out != "42\n" {
		t.Errorf("expected %q, got %q", "42\n", out)
	}
}

func TestCLI_RunVerbose(t *testing.T) {
	path := testutil.TempFile(t, testutil.EchoImage(), ".b91")

	out, errOut, err := execute(t, "20 22", "run", "-v", path)
	if err != nil {
		t.Fatalf("run command failed: %v", err)
	}

	for _, want := range []string{
		"Disassembly of code area at program start:\n   0: IN R1, =1\n",
		"\nRunning program:\n42\n",
		"\n\nData area symbols at program halt:\nsum(0x6) == 0x2a (decimal 42)\nseven(0x7) == 0x7 (decimal 7)\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got:\n%s", want, out)
		}
	}
	if !strings.HasPrefix(out, "Disassembly") {
		t.Errorf("expected disassembly first, got:\n%s", out)
	}
	if !strings.Contains(errOut, "msg=HALT") {
		t.Errorf("expected HALT in trace, got:\n%s", errOut)
	}
}

func TestCLI_RunSymbols(t *testing.T) {
	path := testutil.TempFile(t, testutil.EchoImage(), ".b91")

	out, _, err := execute(t, "1 2", "run", "--symbols", path)
	if err != nil {
		t.Fatalf("run command failed: %v", err)
	}
	want := "3\nsum(0x6) == 0x3 (decimal 3)\nseven(0x7) == 0x7 (decimal 7)\n"
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestCLI_RunReportCSV(t *testing.T) {
	path := testutil.TempFile(t, testutil.EchoImage(), ".b91")

	out, _, err := execute(t, "1 2", "run", "--report", "csv", path)
	if err != nil {
		t.Fatalf("run command failed: %v", err)
	}
	if !strings.Contains(out, "sum,6,3,0x3") {
		t.Errorf("expected sum row, got:\n%s", out)
	}
}

func TestCLI_RunReportErrors(t *testing.T) {
	path := testutil.TempFile(t, testutil.HaltImage(), ".b91")

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown format", []string{"--report", "xml"}, report.ErrUnknownFormat},
		{"parquet to stdout", []string{"--report", "parquet"}, report.ErrNeedsFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run"}, tt.args...)
			out, _, err := execute(t, "", append(args, path)...)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if out != "" {
				t.Errorf("expected nothing to run, got %q", out)
			}
		})
	}
}

func TestCLI_RunInputFile(t *testing.T) {
	path := testutil.TempFile(t, testutil.EchoImage(), ".b91")
	csvPath := testutil.TempFile(t, testutil.InputCSV(), ".csv")

	out, _, err := execute(t, "", "run", "--input", csvPath, "--input-column", "value", path)
	if err != nil {
		t.Fatalf("run command failed: %v", err)
	}
	if out != "42\n" {
		t.Errorf("expected %q, got %q", "42\n", out)
	}
}

func TestCLI_RunStats(t *testing.T) {
	path := testutil.TempFile(t, testutil.HaltImage(), ".b91")

	out, _, err := execute(t, "", "run", "--stats", path)
	if err != nil {
		t.Fatalf("run command failed: %v", err)
	}
	if !strings.HasPrefix(out, "steps: 2\n") {
		t.Errorf("expected step count, got:\n%s", out)
	}
	if !strings.Contains(out, "LOAD") || !strings.Contains(out, "SVC") {
		t.Errorf("expected mnemonic counts, got:\n%s", out)
	}
}

func TestCLI_RunErrors(t *testing.T) {
	tests := []struct {
		name  string
		image string
		stdin string
		args  []string
		want  error
	}{
		{"no input", testutil.EchoImage(), "", nil, vm.ErrInput},
		{"malformed image", "___b91___\n", "", nil, image.ErrMalformedImage},
		{"step limit", testutil.LoopImage(), "", []string{"--max-steps", "10"}, vm.ErrInstructionLimit},
		{"memory limit", testutil.HaltImage(), "", []string{"--memory-limit", "10"}, vm.ErrOutOfMemory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.TempFile(t, tt.image, ".b91")
			args := append([]string{"run"}, tt.args...)
			_, _, err := execute(t, tt.stdin, append(args, path)...)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCLI_RunStack(t *testing.T) {
	path := testutil.TempFile(t, testutil.HaltImage(), ".b91")

	if _, _, err := execute(t, "", "run", "--stack", "0", "--memory-limit", "2", path); err != nil {
		t.Errorf("expected image without stack to fit in 2 words, got %v", err)
	}
}

func TestCLI_Disasm(t *testing.T) {
	path := testutil.TempFile(t, testutil.HaltImage(), ".b91")

	out, _, err := execute(t, "", "disasm", path)
	if err != nil {
		t.Fatalf("disasm command failed: %v", err)
	}
	want := "   0: LOAD R1, =5\n   1: SVC SP, =11\n"
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestCLI_DisasmData(t *testing.T) {
	path := testutil.TempFile(t, testutil.EchoImage(), ".b91")

	out, _, err := execute(t, "", "disasm", "--data", path)
	if err != nil {
		t.Fatalf("disasm command failed: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected 8 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[7], "   7: ") {
		t.Errorf("expected last line at address 7, got %q", lines[7])
	}
}

func TestCLI_Symbols(t *testing.T) {
	path := testutil.TempFile(t, testutil.EchoImage(), ".b91")

	out, _, err := execute(t, "", "symbols", path)
	if err != nil {
		t.Fatalf("symbols command failed: %v", err)
	}
	want := "sum(0x6) == 0x0 (decimal 0)\nseven(0x7) == 0x7 (decimal 7)\n"
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestCLI_SymbolsReportFile(t *testing.T) {
	path := testutil.TempFile(t, testutil.EchoImage(), ".b91")
	outPath := filepath.Join(t.TempDir(), "symbols.json")

	out, _, err := execute(t, "", "symbols", "--report", "json", "--report-out", outPath, path)
	if err != nil {
		t.Fatalf("symbols command failed: %v", err)
	}
	if out != "" {
		t.Errorf("expected report in file only, got %q", out)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("report file not written: %v", err)
	}
	if !strings.Contains(string(data), "seven") {
		t.Errorf("expected symbol in report, got: %s", data)
	}
}

func TestCLI_Repl(t *testing.T) {
	path := testutil.TempFile(t, testutil.HaltImage(), ".b91")

	out, _, err := execute(t, "run\nregs\nquit\n", "repl", path)
	if err != nil {
		t.Fatalf("repl command failed: %v", err)
	}
	for _, want := range []string{"TTK-91 monitor", "Halted after 2 steps", "R1  = 5 (0x5)", "Goodbye!"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestCLI_ReplInputFile(t *testing.T) {
	path := testutil.TempFile(t, testutil.EchoImage(), ".b91")
	input := testutil.TempFile(t, "5 6\n", ".txt")

	out, _, err := execute(t, "run\n", "repl", "--input", input, path)
	if err != nil {
		t.Fatalf("repl command failed: %v", err)
	}
	if !strings.Contains(out, "11\nHalted after 6 steps") {
		t.Errorf("expected program output, got:\n%s", out)
	}
}

const echoSource = `sum     DC    0
seven   DC    7
main    IN    R1, =KBD
        IN    R2, =KBD
        ADD   R1, R2
        OUT   R1, =CRT
        STORE R1, =sum
        SVC   SP, =HALT
`

func TestCLI_Asm(t *testing.T) {
	src := testutil.TempFile(t, echoSource, ".k91")
	want := strings.TrimSuffix(src, ".k91") + ".b91"

	out, _, err := execute(t, "", "asm", src)
	if err != nil {
		t.Fatalf("asm command failed: %v", err)
	}
	if out != "Assembled: "+want+"\n" {
		t.Errorf("unexpected output %q", out)
	}

	got, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("failed to read image: %v", err)
	}
	prog, err := image.ParseString(testutil.EchoImage())
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	expected, err := image.Marshal(prog)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(got) != string(expected) {
		t.Errorf("image mismatch:\n%s\nwant:\n%s", got, expected)
	}
}

func TestCLI_AsmOutput(t *testing.T) {
	src := testutil.TempFile(t, echoSource, ".k91")
	dst := filepath.Join(t.TempDir(), "echo.b91")

	if _, _, err := execute(t, "", "asm", "-o", dst, src); err != nil {
		t.Fatalf("asm command failed: %v", err)
	}

	out, _, err := execute(t, "1\n2\n", "run", dst)
	if err != nil {
		t.Fatalf("run command failed: %v", err)
	}
	if out != "3\n" {
		t.Errorf("expected %q, got %q", "3\n", out)
	}
}

func TestCLI_AsmError(t *testing.T) {
	src := testutil.TempFile(t, "NOP\nJUMP =nowhere\n", ".k91")

	_, _, err := execute(t, "", "asm", src)
	if !errors.Is(err, asm.ErrAssembly) {
		t.Fatalf("expected ErrAssembly, got %v", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line number in %q", err)
	}
	if _, err := os.Stat(strings.TrimSuffix(src, ".k91") + ".b91"); err == nil {
		t.Error("expected no image after a failed assembly")
	}
}

func TestCLI_RunSource(t *testing.T) {
	src := testutil.TempFile(t, echoSource, ".k91")

	out, _, err := execute(t, "20\n22\n", "run", "--symbols", src)
	if err != nil {
		t.Fatalf("run command failed: %v", err)
	}
	for _, want := range []string{"42\n", "sum(0x6) == 0x2a (decimal 42)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got %q", want, out)
		}
	}
}

func TestCLI_RunSourceMemoryLimit(t *testing.T) {
	src := testutil.TempFile(t, "buf DS 100\nSVC SP, =HALT\n", ".k91")

	_, _, err := execute(t, "", "run", "--memory-limit", "50", src)
	if !errors.Is(err, vm.ErrOutOfMemory) {
		t.Errorf("expected ErrOutOfMemory, got %v", err)
	}
}

func TestCLI_DisasmSource(t *testing.T) {
	src := testutil.TempFile(t, echoSource, ".k91")

	out, _, err := execute(t, "", "disasm", src)
	if err != nil {
		t.Fatalf("disasm command failed: %v", err)
	}
	want := `   0: IN R1, =1
   1: IN R2, =1
   2: ADD R1, R2
   3: OUT R1, =0
   4: STORE R1, =6
   5: SVC SP, =11
`
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestCLI_UnknownCommand(t *testing.T) {
	if _, _, err := execute(t, "", "unknown-cmd"); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestCLI_MissingFile(t *testing.T) {
	for _, sub := range []string{"run", "disasm", "symbols", "repl"} {
		if _, _, err := execute(t, "", sub, "/nonexistent/file.b91"); err == nil {
			t.Errorf("%s: expected error for missing file", sub)
		}
	}
}

func TestCLI_MissingArgument(t *testing.T) {
	if _, _, err := execute(t, "", "run"); err == nil {
		t.Error("expected error for missing image argument")
	}
}

func TestCLI_ExitStatus(t *testing.T) {
	binary := buildTTK91(t)

	cmd := exec.Command(binary, "run", "/nonexistent/file.b91")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
		t.Fatalf("expected exit status 1, got %v", err)
	}
	if !strings.HasPrefix(stderr.String(), "error: ") {
		t.Errorf("expected error message on stderr, got %q", stderr.String())
	}
}
