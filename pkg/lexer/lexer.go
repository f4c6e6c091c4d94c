package lexer

import (
	"strings"
	"unicode"

	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/util"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
}

func NewLexer(source []rune, fileIndex int) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1,
	}
}

// Next returns the next token. Atoms that spell a form head or an operator
// come back with that keyword type, numeric atoms as Number, the rest as Ident.
func (l *Lexer) Next() (token.Token, error) {
	l.skipWhitespaceAndComments()
	startPos, startCol, startLine := l.pos, l.column, l.line

	if l.isAtEnd() {
		return l.makeToken(token.EOF, "", startPos, startCol, startLine), nil
	}

	switch ch := l.peek(); ch {
	case '(', '[':
		l.advance()
		return l.makeToken(token.LParen, "", startPos, startCol, startLine), nil
	case ')', ']':
		l.advance()
		return l.makeToken(token.RParen, "", startPos, startCol, startLine), nil
	case '"', '\'':
		l.advance()
		tok := l.makeToken(token.EOF, "", startPos, startCol, startLine)
		return tok, util.Errorf(tok, "Unexpected character: '%c'", ch)
	}
	return l.atom(startPos, startCol, startLine), nil
}

// Tokenize reads the whole source, the EOF token included.
func (l *Lexer) Tokenize() ([]token.Token, error) {
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.isAtEnd() {
		switch ch := l.peek(); {
		case unicode.IsSpace(ch):
			l.advance()
		case ch == ';':
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func isDelimiter(ch rune) bool {
	return unicode.IsSpace(ch) || strings.ContainsRune("()[];\"'", ch)
}

func (l *Lexer) atom(startPos, startCol, startLine int) token.Token {
	for !l.isAtEnd() && !isDelimiter(l.peek()) {
		l.advance()
	}
	text := string(l.source[startPos:l.pos])
	if tokType, isKeyword := token.KeywordMap[text]; isKeyword {
		return l.makeToken(tokType, text, startPos, startCol, startLine)
	}
	if isNumber(text) {
		return l.makeToken(token.Number, text, startPos, startCol, startLine)
	}
	return l.makeToken(token.Ident, text, startPos, startCol, startLine)
}

// isNumber accepts decimal, 0x hexadecimal and 0-prefixed octal atoms with an
// optional leading minus sign. Range checking happens in the parser.
func isNumber(text string) bool {
	text = strings.TrimPrefix(text, "-")
	if text == "" || !unicode.IsDigit(rune(text[0])) {
		return false
	}
	if len(text) > 2 && (text[:2] == "0x" || text[:2] == "0X") {
		for _, r := range text[2:] {
			if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
				return false
			}
		}
		return true
	}
	for _, r := range text {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
