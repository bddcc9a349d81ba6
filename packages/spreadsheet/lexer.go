package spreadsheet

import "strings"

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenEquals
	TokenNumber
	TokenBoolean
	TokenCell
	TokenRange
	TokenFunction
	TokenUnaryPrefixOp
	TokenUnaryPostfixOp
	TokenBinaryOp
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenIdentifier
	TokenWhitespace
	TokenError
)

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent
)

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charTab        = '\t'
	charNewline    = '\n'
	charReturn     = '\r'
	charSpace      = ' '
	charDollar     = '$'
	charPercent    = '%'
	charLParen     = '('
	charRParen     = ')'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charSemicolon  = ';'
	charMinus      = '-'
	charPeriod     = '.'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charCaret      = '^'
	charUnderscore = '_'
	charExclaim    = '!'
)

// tokenTransitions maps the current state to valid next token types
var tokenTransitions = map[TokenState]map[TokenType]bool{
	StateStart: {
		TokenUnaryPrefixOp: true, // unary +/-
		TokenNumber:        true,
		TokenBoolean:       true,
		TokenCell:          true,
		TokenRange:         true, // allow ranges at start for standalone parsing
		TokenFunction:      true,
		TokenIdentifier:    true,
		TokenLeftParen:     true,
	},
	StateAfterValue: { // after number, boolean, cell, range
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true, // for %
		TokenRightParen:     true,
		TokenComma:          true, // only if in function
		TokenEOF:            true,
	},
	StateAfterOperator: {
		TokenNumber:        true,
		TokenBoolean:       true,
		TokenCell:          true,
		TokenFunction:      true,
		TokenIdentifier:    true,
		TokenLeftParen:     true,
		TokenUnaryPrefixOp: true, // only unary after binary
	},
	StateAfterLeftParen: {
		TokenNumber:        true,
		TokenBoolean:       true,
		TokenCell:          true,
		TokenRange:         true, // allow ranges in functions
		TokenFunction:      true,
		TokenIdentifier:    true,
		TokenLeftParen:     true, // nested
		TokenUnaryPrefixOp: true, // unary
		TokenRightParen:    true, // empty parens for arg-less functions like PI()
	},
	StateAfterRightParen: {
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true, // for %
		TokenRightParen:     true, // if nested
		TokenComma:          true, // if in function
		TokenEOF:            true,
	},
	StateAfterComma: { // only valid in function context
		TokenNumber:        true,
		TokenBoolean:       true,
		TokenCell:          true,
		TokenRange:         true, // allow ranges in function arguments
		TokenFunction:      true,
		TokenIdentifier:    true,
		TokenLeftParen:     true,
		TokenUnaryPrefixOp: true, // unary
	},
	StateAfterIdentifier: {
		TokenLeftParen:      true, // function call
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true,
		TokenRightParen:     true,
		TokenComma:          true,
		TokenEOF:            true,
	},
}

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in input
}

// TokenState represents the lexer state for validation
type TokenState int

const (
	StateStart TokenState = iota
	StateAfterValue
	StateAfterOperator
	StateAfterLeftParen
	StateAfterRightParen
	StateAfterComma
	StateAfterIdentifier
)

// Lexer tokenizes spreadsheet formula expressions
type Lexer struct {
	input      string
	runes      []rune // UTF-8 aware representation
	pos        int
	state      TokenState
	parenDepth int
	tokens     []Token
	error      string
}

// NewLexer creates a new lexer for the given formula input. The leading '='
// formula marker is optional.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		runes:  []rune(input),
		pos:    0,
		state:  StateStart,
		tokens: []Token{},
	}
}

// Tokenize tokenizes the entire input and returns tokens and any error
func (l *Lexer) Tokenize() ([]Token, []string) {
	l.skipWhitespace()
	if l.current() == charEqual {
		l.tokens = append(l.tokens, Token{Type: TokenEquals, Value: "=", Pos: l.pos})
		l.pos++
	}

	for l.pos < len(l.runes) {
		tok := l.nextToken()
		if tok.Type == TokenError {
			l.error = tok.Value
			return nil, []string{l.error}
		}
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type != TokenWhitespace {
			// validate state transition
			if !l.validateTransition(tok.Type) {
				l.error = "unexpected token: " + tok.Value
				return nil, []string{l.error}
			}
			l.tokens = append(l.tokens, tok)
			l.updateState(tok.Type)
		}
	}

	if l.parenDepth > 0 {
		l.error = "unbalanced parentheses: missing closing parenthesis"
		return nil, []string{l.error}
	}

	if !l.validateTransition(TokenEOF) {
		l.error = "unexpected end of formula"
		return nil, []string{l.error}
	}

	l.tokens = append(l.tokens, Token{Type: TokenEOF, Pos: l.pos})
	return l.tokens, nil
}

// validateTransition checks if the token type is valid in current state
func (l *Lexer) validateTransition(tokenType TokenType) bool {
	validTokens, exists := tokenTransitions[l.state]
	if !exists {
		return false
	}
	return validTokens[tokenType]
}

// updateState updates the lexer state based on the token type
func (l *Lexer) updateState(tokenType TokenType) {
	switch tokenType {
	case TokenNumber, TokenBoolean, TokenCell, TokenRange:
		l.state = StateAfterValue
	case TokenUnaryPrefixOp, TokenBinaryOp:
		l.state = StateAfterOperator
	case TokenUnaryPostfixOp:
		// postfix operators don't change state
	case TokenLeftParen:
		l.state = StateAfterLeftParen
	case TokenRightParen:
		l.state = StateAfterRightParen
	case TokenComma:
		l.state = StateAfterComma
	case TokenIdentifier, TokenFunction:
		l.state = StateAfterIdentifier
	}
}

// nextToken returns the next token from the input
func (l *Lexer) nextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.runes) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	startPos := l.pos
	ch := l.current()

	// check for numbers
	if l.isDigit(ch) || (ch == charPeriod && l.isDigit(l.peek(1))) {
		return l.scanNumber()
	}

	// check for operators and special characters
	switch ch {
	case charLParen:
		l.pos++
		l.parenDepth++
		return Token{Type: TokenLeftParen, Value: "(", Pos: startPos}
	case charRParen:
		l.pos++
		l.parenDepth--
		if l.parenDepth < 0 {
			return Token{Type: TokenError, Value: "unexpected closing parenthesis", Pos: startPos}
		}
		return Token{Type: TokenRightParen, Value: ")", Pos: startPos}
	case charComma, charSemicolon:
		// both separators are accepted, the parser only ever sees ','
		l.pos++
		return Token{Type: TokenComma, Value: ",", Pos: startPos}
	case charPlus, charMinus:
		return l.scanUnaryPrefixOrBinaryOp()
	case charAsterisk, charSlash, charCaret, charLess, charGreater, charEqual, charExclaim:
		return l.scanBinaryOp()
	case charPercent:
		return l.scanUnaryPostfixOp()
	case charColon:
		l.pos++
		return Token{Type: TokenError, Value: "range is missing a cell reference", Pos: startPos}
	}

	// check for identifiers, functions, cells, ranges, booleans
	if l.isAlpha(ch) || ch == charUnderscore || ch == charDollar {
		return l.scanIdentifierOrCell()
	}

	// unknown character
	l.pos++
	return Token{Type: TokenError, Value: "unexpected character: " + string(ch), Pos: startPos}
}

// helper methods for character navigation and classification

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.runes) && l.isSpace(l.current()) {
		l.pos++
	}
}

func (l *Lexer) isSpace(ch rune) bool {
	return ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func (l *Lexer) isAlphaNumeric(ch rune) bool {
	return l.isAlpha(ch) || l.isDigit(ch)
}

// scanNumber scans a number token including decimals and scientific notation
func (l *Lexer) scanNumber() Token {
	startPos := l.pos

	// scan integer part
	for l.pos < len(l.runes) && l.isDigit(l.current()) {
		l.pos++
	}

	// check for decimal part. "1." is accepted like in spreadsheets.
	if l.current() == charPeriod {
		l.pos++
		for l.pos < len(l.runes) && l.isDigit(l.current()) {
			l.pos++
		}
	}

	// check for scientific notation (e or E)
	if l.current() == 'e' || l.current() == 'E' {
		savedPos := l.pos
		l.pos++ // consume 'e' or 'E'

		// optional + or - sign
		if l.current() == charPlus || l.current() == charMinus {
			l.pos++
		}

		// must have at least one digit after e/E
		if !l.isDigit(l.current()) {
			// not scientific notation, restore position
			l.pos = savedPos
		} else {
			for l.pos < len(l.runes) && l.isDigit(l.current()) {
				l.pos++
			}
		}
	}

	value := l.substring(startPos, l.pos)
	return Token{Type: TokenNumber, Value: value, Pos: startPos}
}

// scanReferenceRun consumes letters, digits, '_' and '$'.
func (l *Lexer) scanReferenceRun() string {
	start := l.pos
	for l.pos < len(l.runes) {
		ch := l.current()
		if !l.isAlphaNumeric(ch) && ch != charUnderscore && ch != charDollar {
			break
		}
		l.pos++
	}
	return l.substring(start, l.pos)
}

// scanIdentifierOrCell scans identifiers, functions, cells, ranges, and
// booleans. Ranges are recognised before single cells so a range endpoint
// is never read as a standalone reference.
func (l *Lexer) scanIdentifierOrCell() Token {
	startPos := l.pos
	value := l.scanReferenceRun()
	upperValue := l.toUpper(value)

	// a name followed by '(' is a function even when it looks like a cell,
	// e.g. LOG10(
	savedPos := l.pos
	l.skipWhitespace()
	if l.current() == charLParen && !strings.ContainsRune(value, charDollar) {
		return Token{Type: TokenFunction, Value: upperValue, Pos: startPos}
	}
	l.pos = savedPos

	// check if it's a cell reference
	if l.isCell(value) {
		// check for range (A1:B2), spaces around ':' are tolerated
		l.skipWhitespace()
		if l.current() == charColon {
			l.pos++ // consume ':'
			l.skipWhitespace()
			second := l.scanReferenceRun()
			if l.isCell(second) {
				return Token{Type: TokenRange, Value: upperValue + ":" + l.toUpper(second), Pos: startPos}
			}
			return Token{Type: TokenError, Value: "invalid range reference: " + l.substring(startPos, l.pos), Pos: startPos}
		}
		l.pos = savedPos
		return Token{Type: TokenCell, Value: upperValue, Pos: startPos}
	}

	if strings.ContainsRune(value, charDollar) {
		return Token{Type: TokenError, Value: "invalid cell reference: " + value, Pos: startPos}
	}

	// check for boolean literals
	if upperValue == "TRUE" || upperValue == "FALSE" {
		return Token{Type: TokenBoolean, Value: upperValue, Pos: startPos}
	}

	// an unknown name; the parser reports it
	return Token{Type: TokenIdentifier, Value: value, Pos: startPos}
}

// isCell checks if a string is a valid cell reference (e.g., A1, $B$12).
// '$' may only precede the column letters or the row digits.
func (l *Lexer) isCell(s string) bool {
	i := 0
	if i < len(s) && s[i] == charDollar {
		i++
	}
	letters := i
	for i < len(s) && l.isAlpha(rune(s[i])) {
		i++
	}
	if i == letters {
		return false
	}
	if i < len(s) && s[i] == charDollar {
		i++
	}
	digits := i
	for i < len(s) && l.isDigit(rune(s[i])) {
		i++
	}
	return i > digits && i == len(s)
}

// toUpper converts a string to uppercase
func (l *Lexer) toUpper(s string) string {
	result := []rune(s)
	for i, ch := range result {
		if ch >= 'a' && ch <= 'z' {
			result[i] = ch - 32
		}
	}
	return string(result)
}

// scanUnaryPrefixOrBinaryOp scans + and - which can be either unary
// prefix or binary
func (l *Lexer) scanUnaryPrefixOrBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	if l.isUnaryContext() {
		return Token{Type: TokenUnaryPrefixOp, Value: string(ch), Pos: startPos}
	}
	return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos}
}

// scanBinaryOp scans binary operators. Spellings are canonicalised so the
// parser sees "^" for power, "=" for equality and "<>" for inequality.
func (l *Lexer) scanBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	switch ch {
	case charLess:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<=", Pos: startPos}
		} else if l.current() == charGreater {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<>", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: "<", Pos: startPos}
	case charGreater:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: ">=", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: ">", Pos: startPos}
	case charEqual:
		if l.current() == charEqual {
			l.pos++
		}
		return Token{Type: TokenBinaryOp, Value: "=", Pos: startPos}
	case charExclaim:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<>", Pos: startPos}
		}
		return Token{Type: TokenError, Value: "unexpected '!'", Pos: startPos}
	case charAsterisk:
		if l.current() == charAsterisk {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "^", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: "*", Pos: startPos}
	case charSlash:
		return Token{Type: TokenBinaryOp, Value: "/", Pos: startPos}
	case charCaret:
		return Token{Type: TokenBinaryOp, Value: "^", Pos: startPos}
	}

	return Token{Type: TokenError, Value: "unknown operator", Pos: startPos}
}

// scanUnaryPostfixOp scans postfix operators like %
func (l *Lexer) scanUnaryPostfixOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++
	return Token{Type: TokenUnaryPostfixOp, Value: string(ch), Pos: startPos}
}

// isUnaryContext checks if the current context allows for unary operators
func (l *Lexer) isUnaryContext() bool {
	// unary operators are allowed after:
	// - start of expression
	// - after another operator
	// - after left paren
	// - after comma
	switch l.state {
	case StateStart, StateAfterOperator, StateAfterLeftParen, StateAfterComma:
		return true
	default:
		return false
	}
}
