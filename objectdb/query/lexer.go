package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Token represents a lexical token of a filter expression
type Token struct {
	Kind  TokenKind
	Value string
	Num   float64
}

// TokenKind is the type of token
type TokenKind int

const (
	TokIdent TokenKind = iota
	TokString
	TokNumber
	TokColon
	TokComma
	TokAnd
	TokIn
	TokNot
	TokLParen
	TokRParen
	TokEq
	TokNe
	TokGt
	TokGte
	TokLt
	TokLte
	TokTilde
	TokDoubleTilde
	TokDotDot
	TokEOF
)

var tokenNames = map[TokenKind]string{
	TokIdent:       "Ident",
	TokString:      "String",
	TokNumber:      "Number",
	TokColon:       "Colon",
	TokComma:       "Comma",
	TokAnd:         "And",
	TokIn:          "In",
	TokNot:         "Not",
	TokLParen:      "LParen",
	TokRParen:      "RParen",
	TokEq:          "Eq",
	TokNe:          "Ne",
	TokGt:          "Gt",
	TokGte:         "Gte",
	TokLt:          "Lt",
	TokLte:         "Lte",
	TokTilde:       "Tilde",
	TokDoubleTilde: "DoubleTilde",
	TokDotDot:      "DotDot",
	TokEOF:         "EOF",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Lexer tokenizes a filter expression
type Lexer struct {
	input []rune
	pos   int
}

func NewLexer(input string) *Lexer {
	return &Lexer{input: []rune(input)}
}

// Lex tokenizes the entire input
func Lex(input string) ([]Token, error) {
	lexer := NewLexer(input)
	var tokens []Token
	for {
		tok, err := lexer.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokEOF {
			break
		}
	}
	return tokens, nil
}

// Next returns the next token
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Kind: TokEOF}, nil
	}

	ch := l.input[l.pos]

	switch ch {
	case ':':
		l.pos++
		return Token{Kind: TokColon}, nil
	case ',':
		l.pos++
		return Token{Kind: TokComma}, nil
	case '(':
		l.pos++
		return Token{Kind: TokLParen}, nil
	case ')':
		l.pos++
		return Token{Kind: TokRParen}, nil
	case '=':
		l.pos++
		return Token{Kind: TokEq}, nil
	case '&':
		l.pos++
		return Token{Kind: TokAnd}, nil
	}

	if ch == '.' && l.peek(1) == '.' {
		l.pos += 2
		return Token{Kind: TokDotDot}, nil
	}
	if ch == '!' {
		if l.peek(1) == '=' {
			l.pos += 2
			return Token{Kind: TokNe}, nil
		}
		return Token{}, fmt.Errorf("unexpected character: %c", ch)
	}
	if ch == '~' {
		if l.peek(1) == '~' {
			l.pos += 2
			return Token{Kind: TokDoubleTilde}, nil
		}
		l.pos++
		return Token{Kind: TokTilde}, nil
	}
	if ch == '>' {
		if l.peek(1) == '=' {
			l.pos += 2
			return Token{Kind: TokGte}, nil
		}
		l.pos++
		return Token{Kind: TokGt}, nil
	}
	if ch == '<' {
		if l.peek(1) == '=' {
			l.pos += 2
			return Token{Kind: TokLte}, nil
		}
		l.pos++
		return Token{Kind: TokLt}, nil
	}

	if ch == '"' || ch == '\'' {
		return l.scanString(ch)
	}

	if unicode.IsDigit(ch) || (ch == '-' && l.pos+1 < len(l.input) && unicode.IsDigit(l.input[l.pos+1])) {
		return l.scanNumber()
	}

	if isIdentStart(ch) {
		return l.scanIdent()
	}

	return Token{}, fmt.Errorf("unexpected character: %c", ch)
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos < len(l.input) {
		return l.input[pos]
	}
	return 0
}

func (l *Lexer) scanString(quote rune) (Token, error) {
	l.pos++
	var sb strings.Builder

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == quote {
			l.pos++
			return Token{Kind: TokString, Value: sb.String()}, nil
		}
		if ch == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			switch l.input[l.pos] {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			default:
				sb.WriteRune(l.input[l.pos])
			}
			l.pos++
			continue
		}
		sb.WriteRune(ch)
		l.pos++
	}

	return Token{}, fmt.Errorf("unterminated string")
}

func (l *Lexer) scanNumber() (Token, error) {
	start := l.pos

	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
		l.pos++
	}
	// A single dot is a decimal point, ".." starts a range.
	if l.pos < len(l.input) && l.input[l.pos] == '.' && l.peek(1) != '.' {
		l.pos++
		for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
			l.pos++
		}
	}

	numStr := string(l.input[start:l.pos])
	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return Token{}, fmt.Errorf("invalid number: %s", numStr)
	}
	return Token{Kind: TokNumber, Value: numStr, Num: num}, nil
}

func (l *Lexer) scanIdent() (Token, error) {
	start := l.pos
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		// stop before a range operator
		if l.input[l.pos] == '.' && l.peek(1) == '.' {
			break
		}
		l.pos++
	}

	value := string(l.input[start:l.pos])
	switch strings.ToUpper(value) {
	case "AND":
		return Token{Kind: TokAnd}, nil
	case "IN":
		return Token{Kind: TokIn}, nil
	case "NOT":
		return Token{Kind: TokNot}, nil
	}
	return Token{Kind: TokIdent, Value: value}, nil
}

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_' || ch == '%' || ch == '*' || ch == '/' || ch == '^'
}

func isIdentChar(ch rune) bool {
	return isIdentStart(ch) || unicode.IsDigit(ch) || ch == '-' || ch == '.' || ch == '$'
}
