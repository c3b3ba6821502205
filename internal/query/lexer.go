package query

import (
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a lexer token.
type TokenType int

const (
	TokenEOF    TokenType = iota
	TokenWord             // bare words: keywords, phrase words, unquoted operands
	TokenString           // "quoted literal"
	TokenOp               // > < >= <=
	TokenLParen           // (
	TokenRParen           // )
	TokenComma            // ,
	TokenError            // error token
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of query"
	case TokenWord:
		return "word"
	case TokenString:
		return "string"
	case TokenOp:
		return "operator"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	case TokenComma:
		return "','"
	default:
		return "invalid input"
	}
}

// Token represents a lexer token.
type Token struct {
	Type  TokenType
	Value string // unquoted value for strings
	Pos   int    // byte offset in the input
	Text  string // original text
}

// Lexer tokenizes a query string.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]

	switch ch {
	case '(':
		l.pos++
		return Token{Type: TokenLParen, Value: "(", Text: "(", Pos: start}
	case ')':
		l.pos++
		return Token{Type: TokenRParen, Value: ")", Text: ")", Pos: start}
	case ',':
		l.pos++
		return Token{Type: TokenComma, Value: ",", Text: ",", Pos: start}
	case '>', '<':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
		}
		op := l.input[start:l.pos]
		return Token{Type: TokenOp, Value: op, Text: op, Pos: start}
	case '"':
		return l.scanString()
	}

	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	if isWordRune(r) {
		return l.scanWord()
	}
	l.pos += size
	return Token{Type: TokenError, Value: string(r), Text: string(r), Pos: start}
}

// Tokenize returns every token of input up to and including EOF, or stops at
// the first error token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return toks
		}
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *Lexer) scanWord() Token {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isWordRune(r) {
			break
		}
		l.pos += size
	}
	value := l.input[start:l.pos]
	return Token{Type: TokenWord, Value: value, Text: value, Pos: start}
}

// scanString scans a double-quoted literal. Backslash escapes the next byte.
func (l *Lexer) scanString() Token {
	start := l.pos
	l.pos++ // opening quote

	var value []byte
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch ch {
		case '\\':
			if l.pos+1 >= len(l.input) {
				l.pos++
				return Token{Type: TokenError, Value: "unterminated string", Text: l.input[start:], Pos: start}
			}
			value = append(value, l.input[l.pos+1])
			l.pos += 2
		case '"':
			l.pos++
			return Token{Type: TokenString, Value: string(value), Text: l.input[start:l.pos], Pos: start}
		default:
			value = append(value, ch)
			l.pos++
		}
	}
	return Token{Type: TokenError, Value: "unterminated string", Text: l.input[start:], Pos: start}
}

func isWordRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '_', '-', '.', '/', '@', ':', '+', '#':
		return true
	}
	return false
}

// isReserved reports whether a bare word is a boolean or clause keyword.
func isReserved(word string) bool {
	switch word {
	case "and", "or", "not", "order":
		return true
	}
	return false
}
