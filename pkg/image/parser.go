// Package image reads and writes the .b91 program image format produced by
// the TTK-91 assembler.
//
// An image has the form:
//
//	___b91___
//	___code___
//	<first> <last>
//	<word>              (last-first+1 lines)
//	___data___
//	<first> <last>
//	<word>              (last-first+1 lines)
//	___symboltable___
//	<name> <offset>     (zero or more lines)
//	___end___
//
// All integers are signed decimals and are stored as their two's complement
// word. Blank lines and spaces between tokens are ignored.
package image

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/akhildatla/ttk91/pkg/vm"
	"github.com/akhildatla/ttk91/pkg/word"
)

// Ext is the file extension of program images.
const Ext = ".b91"

// Section keywords.
const (
	KeywordHeader      = "___b91___"
	KeywordCode        = "___code___"
	KeywordData        = "___data___"
	KeywordSymbolTable = "___symboltable___"
	KeywordEnd         = "___end___"
)

// ErrMalformedImage is matched by every syntax error in an image.
var ErrMalformedImage = errors.New("malformed image")

// ParseError reports where an image stopped making sense.
type ParseError struct {
	Line int    // 1-based line of the offending input
	Msg  string // what was expected or found
	Err  error  // underlying cause, if any
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: line %d: %s", ErrMalformedImage, e.Line, e.Msg)
}

// Is makes every ParseError match ErrMalformedImage.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedImage
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser reads images into programs.
type Parser struct {
	log   *logrus.Entry
	limit vm.Word
}

// NewParser creates a parser with vm.DefaultMemoryLimit and a logger that
// only reports warnings.
func NewParser() *Parser {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	return &Parser{
		log:   logger.WithField("component", "image"),
		limit: vm.DefaultMemoryLimit,
	}
}

// SetLogger replaces the logger. Sections are reported at debug level.
func (p *Parser) SetLogger(logger *logrus.Logger) {
	p.log = logger.WithField("component", "image")
}

// SetMemoryLimit caps the memory of parsed programs. Zero removes the cap.
func (p *Parser) SetMemoryLimit(words vm.Word) {
	p.limit = words
}

// Parse reads a whole image from r. On error no program is returned.
func (p *Parser) Parse(r io.Reader) (*vm.Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return p.ParseString(string(data))
}

// ParseFile reads the image stored at path.
func (p *Parser) ParseFile(path string) (*vm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return p.ParseString(string(data))
}

// ParseString parses an image held in memory.
func (p *Parser) ParseString(input string) (*vm.Program, error) {
	if i := strings.IndexByte(input, 0); i >= 0 {
		return nil, &ParseError{
			Line: strings.Count(input[:i], "\n") + 1,
			Msg:  "null byte in input",
		}
	}

	prog := vm.NewProgram()
	prog.Memory.SetLimit(p.limit)

	st := &state{sc: newScanner(input), prog: prog, log: p.log}
	if err := st.readImage(); err != nil {
		return nil, err
	}

	p.log.WithFields(logrus.Fields{
		"code":    prog.Code.Size,
		"data":    prog.Data.Size,
		"symbols": prog.Symbols.Len(),
	}).Debug("image parsed")
	return prog, nil
}

// Parse reads an image from r with a default parser.
func Parse(r io.Reader) (*vm.Program, error) {
	return NewParser().Parse(r)
}

// ParseString parses an image held in memory with a default parser.
func ParseString(input string) (*vm.Program, error) {
	return NewParser().ParseString(input)
}

// ParseFile reads the image stored at path with a default parser.
func ParseFile(path string) (*vm.Program, error) {
	return NewParser().ParseFile(path)
}

// state holds one parse in progress.
type state struct {
	sc   *scanner
	prog *vm.Program
	log  *logrus.Entry
}

func (st *state) fail(format string, args ...any) error {
	return &ParseError{Line: st.sc.line, Msg: fmt.Sprintf(format, args...)}
}

func (st *state) readImage() error {
	if err := st.readKeyword(KeywordHeader); err != nil {
		return err
	}
	if err := st.readKeyword(KeywordCode); err != nil {
		return err
	}
	if err := st.readDump("code", &st.prog.Code); err != nil {
		return err
	}
	if err := st.readKeyword(KeywordData); err != nil {
		return err
	}
	if err := st.readDump("data", &st.prog.Data); err != nil {
		return err
	}
	if err := st.readKeyword(KeywordSymbolTable); err != nil {
		return err
	}
	if err := st.readSymbolTable(); err != nil {
		return err
	}
	if err := st.readKeyword(KeywordEnd); err != nil {
		return err
	}
	return st.readEOF()
}

// readKeyword reads a keyword line along with any blank lines around it.
func (st *state) readKeyword(keyword string) error {
	st.sc.skip(blankLines)
	if !st.sc.maybeChar('_') {
		return st.fail("keyword %s expected", keyword)
	}
	tok, ok := st.sc.token('_', bodyChars)
	if !ok {
		return st.fail("input token too long")
	}
	if tok != keyword {
		return st.fail("keyword %s expected, found %s", keyword, tok)
	}
	st.sc.skip(blankLines)
	return nil
}

// readEOL reads the end of a line along with any blank lines after it.
func (st *state) readEOL() error {
	st.sc.skip(whitespace)
	if !st.sc.atEOF() {
		if _, ok := st.sc.maybeIn(eols); !ok {
			return st.fail("end of line expected")
		}
	}
	st.sc.skip(blankLines)
	return nil
}

func (st *state) readEOF() error {
	st.sc.skip(blankLines)
	if !st.sc.atEOF() {
		return st.fail("end of file expected")
	}
	return nil
}

// readInt reads a signed decimal and returns its two's complement word,
// which must lie in [lo, hi].
func (st *state) readInt(lo, hi vm.Word) (vm.Word, error) {
	st.sc.skip(whitespace)
	negative := st.sc.maybeChar('-')

	var val vm.Word
	n := 0
	for {
		ch, ok := st.sc.maybeIn(digits)
		if !ok {
			break
		}
		var err error
		if val, err = word.Mul(val, 10); err == nil {
			val, err = word.Add(val, vm.Word(ch-'0'))
		}
		if err != nil {
			return 0, &ParseError{Line: st.sc.line, Msg: "integer too large", Err: err}
		}
		n++
	}
	if n == 0 {
		return 0, st.fail("integer expected")
	}
	if negative {
		if val >= word.Sign {
			return 0, st.fail("magnitude too large for negative integer")
		}
		val = -val
	}
	if val < lo {
		return 0, st.fail("integer too small")
	}
	if val > hi {
		return 0, st.fail("integer too large")
	}
	return val, nil
}

// readDump reads a memory section. Its first offset must be the current end
// of memory, which keeps code before data with no gaps. A last offset one
// below the first declares an empty section.
func (st *state) readDump(name string, seg *vm.Segment) error {
	mem := st.prog.Memory

	first, err := st.readInt(0, word.Max)
	if err != nil {
		return err
	}
	if first != mem.Len() {
		return st.fail("%s section must start at offset %d, not %d", name, mem.Len(), int64(first))
	}
	last, err := st.readInt(0, word.Max)
	if err != nil {
		return err
	}
	switch {
	case last+1 == first:
	case last < first:
		return st.fail("integer too small")
	case last == word.Max:
		return st.fail("integer too large")
	}
	if err := st.readEOL(); err != nil {
		return err
	}

	// Memory for the whole section is allocated before its words are read.
	size := last + 1 - first
	if err := mem.Grow(size); err != nil {
		return fmt.Errorf("line %d: %s section: %w", st.sc.line, name, err)
	}
	for addr := first; addr-first < size; addr++ {
		w, err := st.readInt(0, word.Max)
		if err != nil {
			return err
		}
		if err := st.readEOL(); err != nil {
			return err
		}
		if err := mem.Write(addr, w); err != nil {
			return err
		}
	}

	*seg = vm.Segment{Offset: first, Size: size}
	st.log.WithFields(logrus.Fields{
		"section": name,
		"offset":  first,
		"size":    size,
	}).Debug("section read")
	return nil
}

// readSymbolTable reads "name offset" lines until the next token does not
// start like a symbol. Duplicate names are kept.
func (st *state) readSymbolTable() error {
	for {
		st.sc.skip(whitespace)
		first, ok := st.sc.maybeIn(symStartChars)
		if !ok {
			return nil
		}
		name, ok := st.sc.token(first, bodyChars)
		if !ok {
			return st.fail("input token too long")
		}
		off, err := st.readInt(0, word.Max)
		if err != nil {
			return err
		}
		if err := st.readEOL(); err != nil {
			return err
		}
		st.prog.Symbols.Add(name, off)
	}
}
