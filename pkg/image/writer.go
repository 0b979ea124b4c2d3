package image

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/akhildatla/ttk91/pkg/vm"
)

// ErrLayout is returned when a program's segments cannot be written as an
// image: code must start at 0 and data must follow it directly.
var ErrLayout = errors.New("segments not writable as an image")

// Write writes p as an image. Only the code and data segments are written,
// so a program can be saved again after running with its data as left by
// the run.
func Write(w io.Writer, p *vm.Program) error {
	if p == nil || p.Memory == nil {
		return fmt.Errorf("%w: no memory", ErrLayout)
	}
	if p.Code.Offset != 0 {
		return fmt.Errorf("%w: code starts at %d", ErrLayout, p.Code.Offset)
	}
	if p.Data.Offset != p.Code.Size {
		return fmt.Errorf("%w: data starts at %d, code ends at %d", ErrLayout, p.Data.Offset, p.Code.Size)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, KeywordHeader)

	fmt.Fprintln(bw, KeywordCode)
	if err := writeDump(bw, p.Memory, p.Code); err != nil {
		return err
	}

	fmt.Fprintln(bw, KeywordData)
	if err := writeDump(bw, p.Memory, p.Data); err != nil {
		return err
	}

	fmt.Fprintln(bw, KeywordSymbolTable)
	for _, sym := range p.Symbols.All() {
		fmt.Fprintf(bw, "%s %d\n", sym.Name, int64(sym.Offset))
	}
	fmt.Fprintln(bw, KeywordEnd)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	return nil
}

func writeDump(w io.Writer, mem *vm.Memory, seg vm.Segment) error {
	words, err := mem.Slice(seg.Offset, seg.Size)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLayout, err)
	}
	fmt.Fprintf(w, "%d %d\n", int64(seg.Offset), int64(seg.Offset+seg.Size-1))
	for _, v := range words {
		fmt.Fprintf(w, "%d\n", int64(v))
	}
	return nil
}

// Marshal returns p as image text.
func Marshal(p *vm.Program) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
