// Package testutil provides testing utilities for TTK-91 tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	dataframe "github.com/rocketlaunchr/dataframe-go"
)

// Symbol is a symbol table line of a test image.
type Symbol struct {
	Name   string
	Offset int64
}

// Image returns .b91 text holding code at offset 0, data directly after it
// and the given symbols.
func Image(code []uint32, data []int64, symbols ...Symbol) string {
	var sb strings.Builder
	sb.WriteString("___b91___\n___code___\n")
	fmt.Fprintf(&sb, "0 %d\n", len(code)-1)
	for _, w := range code {
		fmt.Fprintf(&sb, "%d\n", w)
	}

	sb.WriteString("___data___\n")
	fmt.Fprintf(&sb, "%d %d\n", len(code), len(code)+len(data)-1)
	for _, w := range data {
		fmt.Fprintf(&sb, "%d\n", w)
	}

	sb.WriteString("___symboltable___\n")
	for _, s := range symbols {
		fmt.Fprintf(&sb, "%s %d\n", s.Name, s.Offset)
	}
	sb.WriteString("___end___\n")
	return sb.String()
}

// Encode packs instruction fields the way the assembler does.
func Encode(op, reg, mode, index uint8, imm int16) uint32 {
	return uint32(op)<<24 | uint32(reg&7)<<21 | uint32(mode&3)<<19 |
		uint32(index&7)<<16 | uint32(uint16(imm))
}

// HaltImage returns a program that loads 5 into R1 and halts.
func HaltImage() string {
	return Image([]uint32{
		Encode(0x02, 1, 0, 0, 5),  // LOAD R1, =5
		Encode(0x70, 6, 0, 0, 11), // SVC SP, =HALT
	}, nil)
}

// EchoImage returns a program that reads two numbers from the keyboard,
// prints their sum to the CRT, stores it in the data word "sum" and halts.
func EchoImage() string {
	return Image([]uint32{
		Encode(0x03, 1, 0, 0, 1),  // IN R1, =KBD
		Encode(0x03, 2, 0, 0, 1),  // IN R2, =KBD
		Encode(0x11, 1, 0, 2, 0),  // ADD R1, R2
		Encode(0x04, 1, 0, 0, 0),  // OUT R1, =CRT
		Encode(0x01, 1, 0, 0, 6),  // STORE R1, =sum
		Encode(0x70, 6, 0, 0, 11), // SVC SP, =HALT
	}, []int64{0, 7}, Symbol{"sum", 6}, Symbol{"seven", 7}, Symbol{"main", 0})
}

// LoopImage returns a program that never halts.
func LoopImage() string {
	return Image([]uint32{
		Encode(0x20, 0, 0, 0, 0), // JUMP =0
	}, nil)
}

// TempFile creates a temporary file with the given content and extension.
// The file is automatically cleaned up when the test finishes.
func TempFile(t *testing.T, content, ext string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test"+ext)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// InputCSV returns test CSV content with an integer "value" column.
func InputCSV() string {
	return `name,value
a,20
b,22
c,-5`
}

// MakeInputFrame creates a frame with the same content as InputCSV.
func MakeInputFrame() *dataframe.DataFrame {
	return dataframe.NewDataFrame(
		dataframe.NewSeriesString("name", nil, "a", "b", "c"),
		dataframe.NewSeriesInt64("value", nil, 20, 22, -5),
	)
}

// AssertInt64Equal checks if two int64 values are equal.
func AssertInt64Equal(t *testing.T, expected, actual int64) {
	t.Helper()
	if expected != actual {
		t.Errorf("expected %d, got %d", expected, actual)
	}
}
