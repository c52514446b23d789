/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package rule

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenNumber
	TokenString
	TokenDash
	TokenSlash
	TokenColon
	TokenDot
	TokenAllow
	TokenBlock
	TokenInbound
	TokenOutbound
	TokenBoth
	TokenName
	TokenApp
	TokenLocal
	TokenRemote
	TokenAddress
	TokenPort
	TokenProtocol
	TokenPriority
	TokenDescription
)

type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

type Lexer struct {
	input string
	pos   int
	ch    rune
	width int
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.pos >= len(l.input) {
		l.ch = 0
		l.width = 0
		l.pos++
		return
	}
	l.ch, l.width = utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += l.width
}

// offset is the byte offset of the current character.
func (l *Lexer) offset() int {
	if l.ch == 0 {
		return len(l.input)
	}
	return l.pos - l.width
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() string {
	start := l.offset()
	for unicode.IsLetter(l.ch) || unicode.IsDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[start:l.offset()]
}

func (l *Lexer) readNumber() string {
	start := l.offset()
	for unicode.IsDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.offset()]
}

// readString reads a double quoted string. Backslashes are kept, only \"
// escapes a quote, so Windows paths need no doubling.
func (l *Lexer) readString() (string, error) {
	start := l.offset()
	l.readChar()

	var b strings.Builder
	for {
		switch l.ch {
		case 0:
			return "", fmt.Errorf("unterminated string at position %d", start)
		case '"':
			l.readChar()
			return b.String(), nil
		case '\\':
			l.readChar()
			if l.ch != '"' {
				b.WriteRune('\\')
				continue
			}
		}
		b.WriteRune(l.ch)
		l.readChar()
	}
}

func (l *Lexer) NextToken() (Token, error) {
	l.skipWhitespace()

	tok := Token{Pos: l.offset()}

	switch l.ch {
	case 0:
		tok.Type = TokenEOF
	case '-':
		tok.Type = TokenDash
		tok.Value = "-"
		l.readChar()
	case '/':
		tok.Type = TokenSlash
		tok.Value = "/"
		l.readChar()
	case ':':
		tok.Type = TokenColon
		tok.Value = ":"
		l.readChar()
	case '.':
		tok.Type = TokenDot
		tok.Value = "."
		l.readChar()
	case '"':
		value, err := l.readString()
		if err != nil {
			return tok, err
		}
		tok.Type = TokenString
		tok.Value = value
	default:
		if unicode.IsLetter(l.ch) {
			tok.Value = l.readIdentifier()
			tok.Type = l.lookupKeyword(tok.Value)
		} else if unicode.IsDigit(l.ch) {
			tok.Value = l.readNumber()
			tok.Type = TokenNumber
		} else {
			return tok, fmt.Errorf("unexpected character: %c at position %d", l.ch, l.offset())
		}
	}

	return tok, nil
}

func (l *Lexer) lookupKeyword(ident string) TokenType {
	keywords := map[string]TokenType{
		"allow":       TokenAllow,
		"permit":      TokenAllow,
		"block":       TokenBlock,
		"inbound":     TokenInbound,
		"in":          TokenInbound,
		"outbound":    TokenOutbound,
		"out":         TokenOutbound,
		"both":        TokenBoth,
		"name":        TokenName,
		"app":         TokenApp,
		"local":       TokenLocal,
		"remote":      TokenRemote,
		"address":     TokenAddress,
		"port":        TokenPort,
		"protocol":    TokenProtocol,
		"priority":    TokenPriority,
		"description": TokenDescription,
	}

	lower := strings.ToLower(ident)
	if tokType, ok := keywords[lower]; ok {
		return tokType
	}
	return TokenIdent
}
