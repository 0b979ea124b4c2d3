package asm

import (
	"unicode"
)

// TokenType represents the type of a token.
type TokenType uint8

const (
	TokenEOF TokenType = iota
	TokenNewline
	TokenIdent   // mnemonics, directives, registers and symbols
	TokenInt     // integer literals
	TokenComma   // ,
	TokenColon   // : after a label
	TokenEquals  // = immediate mode
	TokenAt      // @ indirect mode
	TokenLParen  // (
	TokenRParen  // )
	TokenIllegal // anything else
)

// String returns the string representation of a token type.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	case TokenIdent:
		return "IDENT"
	case TokenInt:
		return "INT"
	case TokenComma:
		return "COMMA"
	case TokenColon:
		return "COLON"
	case TokenEquals:
		return "EQUALS"
	case TokenAt:
		return "AT"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	case TokenIllegal:
		return "ILLEGAL"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Line  int
}

// Lexer tokenizes TTK-91 assembly source.
type Lexer struct {
	input  string
	pos    int
	line   int
	tokens []Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		line:   1,
		tokens: []Token{},
	}
}

var punctuation = map[byte]TokenType{
	',': TokenComma,
	':': TokenColon,
	'=': TokenEquals,
	'@': TokenAt,
	'(': TokenLParen,
	')': TokenRParen,
}

// Tokenize tokenizes the entire input and returns the tokens.
func (l *Lexer) Tokenize() []Token {
	for l.pos < len(l.input) {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			break
		}

		ch := l.input[l.pos]

		switch {
		case ch == '\n':
			l.emit(TokenNewline, "\n")
			l.line++
			l.pos++

		case ch == ';':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}

		case punctuation[ch] != 0:
			l.emit(punctuation[ch], string(ch))
			l.pos++

		case isDigit(ch) || (ch == '-' || ch == '+') && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]):
			l.scanNumber()

		case unicode.IsLetter(rune(ch)) || ch == '_':
			l.scanIdent()

		default:
			l.emit(TokenIllegal, string(ch))
			l.pos++
		}
	}

	l.emit(TokenEOF, "")
	return l.tokens
}

func (l *Lexer) emit(t TokenType, value string) {
	l.tokens = append(l.tokens, Token{Type: t, Value: value, Line: l.line})
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == ' ' || ch == '\t' || ch == '\r' {
			l.pos++
		} else {
			break
		}
	}
}

func (l *Lexer) scanNumber() {
	start := l.pos
	if l.input[l.pos] == '-' || l.input[l.pos] == '+' {
		l.pos++
	}
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	l.emit(TokenInt, l.input[start:l.pos])
}

func (l *Lexer) scanIdent() {
	start := l.pos
	l.pos++
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if unicode.IsLetter(rune(ch)) || isDigit(ch) || ch == '_' {
			l.pos++
		} else {
			break
		}
	}
	l.emit(TokenIdent, l.input[start:l.pos])
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
