package asm

import (
	"strconv"
	"strings"

	"github.com/akhildatla/ttk91/pkg/vm"
)

// Directives that reserve data words or name constants.
const (
	DirectiveDC  = "DC"  // one data word holding a value
	DirectiveDS  = "DS"  // a block of zeroed data words
	DirectiveEQU = "EQU" // a named constant, no storage
)

// Value is a literal or a symbol resolved at assembly time.
type Value struct {
	Int    int64
	Symbol string // set for symbolic values
}

// Operand is the address part of an instruction.
type Operand struct {
	Mode  vm.Mode
	Value Value
	Index uint8 // index register, 0 for none
}

// Statement is one source line that assembles to zero or more words.
type Statement struct {
	Label   string
	Op      string // upper-cased mnemonic or directive
	Reg     uint8
	Operand Operand
	Line    int
}

// IsData reports whether the statement reserves data words.
func (s Statement) IsData() bool {
	return s.Op == DirectiveDC || s.Op == DirectiveDS
}

// Source is a parsed assembly source file.
type Source struct {
	Statements []Statement
}

// Parser parses TTK-91 assembly source.
type Parser struct {
	tokens []Token
	pos    int
	source *Source
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	lexer := NewLexer(input)
	return &Parser{
		tokens: lexer.Tokenize(),
		source: &Source{Statements: []Statement{}},
	}
}

// Parse parses the entire input. A label on a line of its own applies to
// the next statement.
func (p *Parser) Parse() (*Source, error) {
	var pending Token
	for {
		tok := p.peek()
		switch tok.Type {
		case TokenEOF:
			if pending.Value != "" {
				return nil, errorf(pending.Line, "label %s does not precede a statement", pending.Value)
			}
			return p.source, nil

		case TokenNewline:
			p.pos++

		case TokenIdent:
			st, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			if st.Op == "" {
				if pending.Value != "" {
					return nil, errorf(st.Line, "label %s follows label %s", st.Label, pending.Value)
				}
				pending = Token{Value: st.Label, Line: st.Line}
				continue
			}
			if pending.Value != "" {
				if st.Label != "" {
					return nil, errorf(st.Line, "label %s follows label %s", st.Label, pending.Value)
				}
				st.Label = pending.Value
				pending = Token{}
			}
			p.source.Statements = append(p.source.Statements, st)

		default:
			return nil, errorf(tok.Line, "unexpected %q", tok.Value)
		}
	}
}

func (p *Parser) peek() Token {
	return p.peekAt(0)
}

func (p *Parser) peekAt(n int) Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) next() Token {
	tok := p.peek()
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) atEnd() bool {
	t := p.peek().Type
	return t == TokenNewline || t == TokenEOF
}

func (p *Parser) parseStatement() (Statement, error) {
	tok := p.next()
	st := Statement{Line: tok.Line}

	if p.peek().Type == TokenColon || !isOp(tok.Value) {
		if _, ok := register(tok); ok {
			return st, errorf(tok.Line, "register %s used as a label", tok.Value)
		}
		label := tok
		st.Label = label.Value
		if p.peek().Type == TokenColon {
			p.pos++
		}
		if p.atEnd() {
			return st, nil
		}
		tok = p.next()
		if tok.Type != TokenIdent || !isOp(tok.Value) {
			if _, ok := register(tok); ok || tok.Type != TokenIdent {
				// "LAOD R1, X" is a misspelled mnemonic, not a label.
				tok = label
			}
			return st, errorf(tok.Line, "unknown mnemonic %q", tok.Value)
		}
	}
	st.Op = strings.ToUpper(tok.Value)

	var err error
	switch st.Op {
	case DirectiveDC, DirectiveEQU:
		if st.Label == "" && st.Op == DirectiveEQU {
			return st, errorf(st.Line, "%s needs a name", st.Op)
		}
		st.Operand.Value, err = p.parseValue()
	case DirectiveDS:
		st.Operand.Value, err = p.parseValue()
		if err == nil && (st.Operand.Value.Symbol != "" || st.Operand.Value.Int < 0) {
			err = errorf(st.Line, "%s needs a non-negative size", st.Op)
		}
		if err == nil && st.Operand.Value.Int > int64(vm.DefaultMemoryLimit) {
			err = errorf(st.Line, "%s size %d exceeds memory", st.Op, st.Operand.Value.Int)
		}
	default:
		err = p.parseOperands(&st)
	}
	if err != nil {
		return st, err
	}

	if !p.atEnd() {
		tok := p.peek()
		return st, errorf(tok.Line, "unexpected %q after operands", tok.Value)
	}
	return st, nil
}

// parseOperands reads "[Rj,] operand". An instruction given no operand
// assembles with =0; PUSHR and POPR take a lone register.
func (p *Parser) parseOperands(st *Statement) error {
	if p.atEnd() {
		return nil
	}

	if reg, ok := register(p.peek()); ok {
		next := p.peekAt(1).Type
		lone := next == TokenNewline || next == TokenEOF
		if next == TokenComma || lone && (st.Op == "PUSHR" || st.Op == "POPR") {
			st.Reg = reg
			p.pos++
			if lone {
				return nil
			}
			p.pos++
		}
	}

	op, err := p.parseOperand()
	if err != nil {
		return err
	}
	st.Operand = op
	return nil
}

// parseOperand reads "[=|@] value[(Ri)]" or "[@]Ri". A lone register is
// its value; @Ri is the word it points to.
func (p *Parser) parseOperand() (Operand, error) {
	op := Operand{Mode: vm.ModeDirect}
	switch p.peek().Type {
	case TokenEquals:
		op.Mode = vm.ModeImmediate
		p.pos++
	case TokenAt:
		op.Mode = vm.ModeIndirect
		p.pos++
	}

	if reg, ok := register(p.peek()); ok {
		tok := p.next()
		switch op.Mode {
		case vm.ModeDirect:
			op.Mode = vm.ModeImmediate
		case vm.ModeIndirect:
			op.Mode = vm.ModeDirect
		default:
			return op, errorf(tok.Line, "register %s cannot be immediate", tok.Value)
		}
		op.Index = reg
		return op, nil
	}

	val, err := p.parseValue()
	if err != nil {
		return op, err
	}
	op.Value = val

	if p.peek().Type == TokenLParen {
		p.pos++
		tok := p.next()
		reg, ok := register(tok)
		if !ok {
			return op, errorf(tok.Line, "expected index register, got %q", tok.Value)
		}
		if tok := p.next(); tok.Type != TokenRParen {
			return op, errorf(tok.Line, "expected ), got %q", tok.Value)
		}
		op.Index = reg
	}
	return op, nil
}

func (p *Parser) parseValue() (Value, error) {
	tok := p.next()
	switch tok.Type {
	case TokenInt:
		v, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return Value{}, errorf(tok.Line, "invalid integer %s", tok.Value)
		}
		return Value{Int: v}, nil
	case TokenIdent:
		if _, ok := register(tok); ok {
			return Value{}, errorf(tok.Line, "unexpected register %s", tok.Value)
		}
		return Value{Symbol: tok.Value}, nil
	default:
		return Value{}, errorf(tok.Line, "expected value, got %q", tok.Value)
	}
}

// isOp reports whether s names an instruction or a directive.
func isOp(s string) bool {
	s = strings.ToUpper(s)
	if s == DirectiveDC || s == DirectiveDS || s == DirectiveEQU {
		return true
	}
	_, ok := vm.OpcodeFromString(s)
	return ok
}

// register returns the register an identifier names: R0-R7, SP or FP.
func register(tok Token) (uint8, bool) {
	if tok.Type != TokenIdent {
		return 0, false
	}
	name := strings.ToUpper(tok.Value)
	for i, n := range vm.RegisterNames {
		if name == n {
			return uint8(i), true
		}
	}
	switch name {
	case "R6":
		return vm.SP, true
	case "R7":
		return vm.FP, true
	}
	return 0, false
}
