package image

import (
	"strings"
)

// MaxTokenLen is the longest keyword or symbol name accepted.
const MaxTokenLen = 255

// Character classes of the image format.
const (
	uppers = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowers = "abcdefghijklmnopqrstuvwxyz"
	digits = "0123456789"
	newlns = "\n\r"
	whites = " \t"

	eols          = newlns
	blankLines    = whites + newlns
	whitespace    = whites
	bodyChars     = uppers + lowers + digits + "_"
	symStartChars = uppers + lowers
)

// eof is returned by peek at end of input.
const eof = -1

// scanner reads the image byte by byte, tracking the current line.
type scanner struct {
	input string
	pos   int
	line  int
}

func newScanner(input string) *scanner {
	return &scanner{
		input: input,
		pos:   0,
		line:  1,
	}
}

func (s *scanner) peek() int {
	if s.pos >= len(s.input) {
		return eof
	}
	return int(s.input[s.pos])
}

func (s *scanner) advance() byte {
	ch := s.input[s.pos]
	s.pos++
	if ch == '\n' {
		s.line++
	}
	return ch
}

// atEOF reports whether all input has been consumed.
func (s *scanner) atEOF() bool {
	return s.pos >= len(s.input)
}

// maybeChar consumes the next byte if it equals goal.
func (s *scanner) maybeChar(goal byte) bool {
	if s.peek() != int(goal) {
		return false
	}
	s.advance()
	return true
}

// maybeIn consumes the next byte if it belongs to class.
func (s *scanner) maybeIn(class string) (byte, bool) {
	ch := s.peek()
	if ch == eof || strings.IndexByte(class, byte(ch)) < 0 {
		return 0, false
	}
	return s.advance(), true
}

// skip consumes every following byte that belongs to class.
func (s *scanner) skip(class string) {
	for {
		if _, ok := s.maybeIn(class); !ok {
			return
		}
	}
}

// token reads a token that starts with first, already consumed, and
// continues with bytes from tail. It reports false if the token would be
// longer than MaxTokenLen.
func (s *scanner) token(first byte, tail string) (string, bool) {
	var sb strings.Builder
	sb.WriteByte(first)
	for {
		ch, ok := s.maybeIn(tail)
		if !ok {
			return sb.String(), true
		}
		if sb.Len() >= MaxTokenLen {
			return "", false
		}
		sb.WriteByte(ch)
	}
}
