package spreadsheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AST enables dependency extraction and canonical rendering through tree
// traversal rather than regex/string manipulation. A formula is parsed once
// and evaluated against many value snapshots.
type ASTNode interface {
	Eval(values Values) (Primitive, error)
	ToString() string
}

// Parser parses tokens into an AST
type Parser struct {
	tokens    []Token
	pos       int
	functions *BuiltInFunctions
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value float64
}

func (n *NumberNode) Eval(values Values) (Primitive, error) {
	return n.Value, nil
}

func (n *NumberNode) ToString() string {
	// format number without unnecessary decimals
	if n.Value == math.Trunc(n.Value) && math.Abs(n.Value) < 1e15 {
		return strconv.FormatInt(int64(n.Value), 10)
	}
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

// BooleanNode represents a boolean literal
type BooleanNode struct {
	Value bool
}

func (n *BooleanNode) Eval(values Values) (Primitive, error) {
	return n.Value, nil
}

func (n *BooleanNode) ToString() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// CellRefNode represents a single cell reference. Absolute markers are
// dropped at parse time, Address is always normalized.
type CellRefNode struct {
	Address string
}

func (n *CellRefNode) Eval(values Values) (Primitive, error) {
	v, ok := values[n.Address]
	if !ok {
		return nil, &MissingValueError{Address: n.Address}
	}
	return v, nil
}

func (n *CellRefNode) ToString() string {
	return n.Address
}

// RangeNode represents a rectangular range of cells. It evaluates to a lazy
// Range that only aggregate functions consume.
type RangeNode struct {
	Bounds RangeAddress
}

func (n *RangeNode) Eval(values Values) (Primitive, error) {
	return &CellRange{bounds: n.Bounds, values: values}, nil
}

func (n *RangeNode) ToString() string {
	return n.Bounds.String()
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op    BinaryOp
	Left  ASTNode
	Right ASTNode
}

func (n *BinaryOpNode) Eval(values Values) (Primitive, error) {
	// both operands are always evaluated, the left error wins
	leftVal, err := n.Left.Eval(values)
	if err != nil {
		return nil, err
	}
	rightVal, err := n.Right.Eval(values)
	if err != nil {
		return nil, err
	}

	leftNum, leftOk := toNumber(leftVal)
	rightNum, rightOk := toNumber(rightVal)
	if !leftOk || !rightOk {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("operator %s requires scalar operands", n.Op))
	}

	switch n.Op {
	case BinOpAdd:
		return leftNum + rightNum, nil
	case BinOpSubtract:
		return leftNum - rightNum, nil
	case BinOpMultiply:
		return leftNum * rightNum, nil
	case BinOpDivide:
		if rightNum == 0 {
			return nil, NewSpreadsheetError(ErrorCodeDiv0, "Division by zero")
		}
		return leftNum / rightNum, nil
	case BinOpPower:
		if leftNum == 0 && rightNum < 0 {
			return nil, NewSpreadsheetError(ErrorCodeDiv0, "Zero raised to a negative power")
		}
		result := math.Pow(leftNum, rightNum)
		if math.IsNaN(result) || math.IsInf(result, 0) {
			return nil, NewSpreadsheetError(ErrorCodeNum, fmt.Sprintf("%g^%g is not a real number", leftNum, rightNum))
		}
		return result, nil
	case BinOpEqual:
		return leftNum == rightNum, nil
	case BinOpNotEqual:
		return leftNum != rightNum, nil
	case BinOpLess:
		return leftNum < rightNum, nil
	case BinOpLessEqual:
		return leftNum <= rightNum, nil
	case BinOpGreater:
		return leftNum > rightNum, nil
	case BinOpGreaterEqual:
		return leftNum >= rightNum, nil
	default:
		return nil, NewSpreadsheetError(ErrorCodeValue, "Unknown operator")
	}
}

func (n *BinaryOpNode) ToString() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), n.Op, n.Right.ToString())
}

func (op BinaryOp) String() string {
	switch op {
	case BinOpAdd:
		return "+"
	case BinOpSubtract:
		return "-"
	case BinOpMultiply:
		return "*"
	case BinOpDivide:
		return "/"
	case BinOpPower:
		return "^"
	case BinOpEqual:
		return "="
	case BinOpNotEqual:
		return "<>"
	case BinOpLess:
		return "<"
	case BinOpLessEqual:
		return "<="
	case BinOpGreater:
		return ">"
	case BinOpGreaterEqual:
		return ">="
	}
	return "?"
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op      UnaryOp
	Operand ASTNode
}

func (n *UnaryOpNode) Eval(values Values) (Primitive, error) {
	val, err := n.Operand.Eval(values)
	if err != nil {
		return nil, err
	}

	num, ok := toNumber(val)
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeValue, "Unary operator requires a scalar operand")
	}

	switch n.Op {
	case UnaryOpPlus:
		return num, nil
	case UnaryOpMinus:
		return -num, nil
	case UnaryOpPercent:
		return num / 100.0, nil
	default:
		return nil, NewSpreadsheetError(ErrorCodeValue, "Unknown unary operator")
	}
}

func (n *UnaryOpNode) ToString() string {
	switch n.Op {
	case UnaryOpMinus:
		return "-" + n.Operand.ToString()
	case UnaryOpPercent:
		return fmt.Sprintf("(%s%%)", n.Operand.ToString())
	}
	return "+" + n.Operand.ToString()
}

// FunctionCallNode represents a function call
type FunctionCallNode struct {
	Name      string
	Args      []ASTNode
	functions *BuiltInFunctions
}

func (n *FunctionCallNode) Eval(values Values) (Primitive, error) {
	// every argument is evaluated before the call, IF included
	args := make([]Primitive, len(n.Args))
	for i, argNode := range n.Args {
		argVal, err := argNode.Eval(values)
		if err != nil {
			return nil, err
		}
		args[i] = argVal
	}
	return n.functions.Call(n.Name, args...)
}

func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// NewParser creates a new parser over lexer output. Function names are
// checked against functions while parsing.
func NewParser(tokens []Token, functions *BuiltInFunctions) *Parser {
	if functions == nil {
		functions = NewDefaultBuiltInFunctions()
	}
	return &Parser{
		tokens:    tokens,
		pos:       0,
		functions: functions,
	}
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeValue, "no tokens to parse")
	}

	// the '=' marker is optional
	if p.tokens[p.pos].Type == TokenEquals {
		p.pos++
	}
	if p.tokens[p.pos].Type == TokenEOF {
		return nil, NewSpreadsheetError(ErrorCodeValue, "empty formula")
	}

	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	// ensure we've consumed all tokens except EOF
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type != TokenEOF {
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("unexpected token after expression: %s", p.tokens[p.pos].Value))
	}

	return node, nil
}

// parseComparison handles comparison operators (lowest precedence). A
// comparison cannot be an operand of another one: "=3>2>1" is #VALUE!.
func (p *Parser) parseComparison() (ASTNode, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	op, ok := p.comparisonOp()
	if !ok {
		return left, nil
	}
	p.pos++
	right, err := p.parseAddition()
	if err != nil {
		return nil, err
	}
	if _, chained := p.comparisonOp(); chained {
		return nil, NewSpreadsheetError(ErrorCodeValue,
			fmt.Sprintf("chained comparison at %s", p.tokens[p.pos].Value))
	}

	return &BinaryOpNode{
		Op:    op,
		Left:  left,
		Right: right,
	}, nil
}

// comparisonOp reports the comparison operator at the current token.
func (p *Parser) comparisonOp() (BinaryOp, bool) {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenBinaryOp {
		return 0, false
	}
	switch p.tokens[p.pos].Value {
	case "=":
		return BinOpEqual, true
	case "<>":
		return BinOpNotEqual, true
	case "<":
		return BinOpLess, true
	case "<=":
		return BinOpLessEqual, true
	case ">":
		return BinOpGreater, true
	case ">=":
		return BinOpGreaterEqual, true
	}
	return 0, false
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (ASTNode, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "+":
			op = BinOpAdd
		case "-":
			op = BinOpSubtract
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}

		left = &BinaryOpNode{
			Op:    op,
			Left:  left,
			Right: right,
		}
	}

	return left, nil
}

// parseMultiplication handles multiplication and division
func (p *Parser) parseMultiplication() (ASTNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "*":
			op = BinOpMultiply
		case "/":
			op = BinOpDivide
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = &BinaryOpNode{
			Op:    op,
			Left:  left,
			Right: right,
		}
	}

	return left, nil
}

// parseUnary handles prefix operators. They bind looser than '^', so -2^2
// is -(2^2).
func (p *Parser) parseUnary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, NewSpreadsheetError(ErrorCodeValue, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]
	if tok.Type != TokenUnaryPrefixOp {
		return p.parsePower()
	}

	op := UnaryOpPlus
	if tok.Value == "-" {
		op = UnaryOpMinus
	}
	p.pos++
	operand, err := p.parseUnary() // recurse for chained unary operators
	if err != nil {
		return nil, err
	}

	return &UnaryOpNode{
		Op:      op,
		Operand: operand,
	}, nil
}

// parsePower handles exponentiation
func (p *Parser) parsePower() (ASTNode, error) {
	left, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}

	// right-associative, and the exponent may carry its own sign
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenBinaryOp && p.tokens[p.pos].Value == "^" {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &BinaryOpNode{
			Op:    BinOpPower,
			Left:  left,
			Right: right,
		}, nil
	}

	return left, nil
}

// parsePostfix handles postfix operators (percent)
func (p *Parser) parsePostfix() (ASTNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenUnaryPostfixOp {
		p.pos++
		node = &UnaryOpNode{
			Op:      UnaryOpPercent,
			Operand: node,
		}
	}

	return node, nil
}

// parsePrimary handles primary expressions (literals, references,
// functions, parentheses)
func (p *Parser) parsePrimary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, NewSpreadsheetError(ErrorCodeValue, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]

	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("invalid number: %s", tok.Value))
		}
		return &NumberNode{
			Value: val,
		}, nil

	case TokenBoolean:
		p.pos++
		return &BooleanNode{
			Value: tok.Value == "TRUE",
		}, nil

	case TokenCell:
		p.pos++
		return p.parseCellReference(tok)

	case TokenRange:
		p.pos++
		return p.parseRange(tok)

	case TokenIdentifier:
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("unknown name: %s", tok.Value))

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}

		if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenRightParen {
			return nil, NewSpreadsheetError(ErrorCodeValue, "expected closing parenthesis")
		}
		p.pos++

		return node, nil

	default:
		return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("unexpected token: %s", tok.Value))
	}
}

// parseFunctionCall parses a function call
func (p *Parser) parseFunctionCall() (ASTNode, error) {
	funcTok := p.tokens[p.pos]
	funcName := funcTok.Value
	if !p.functions.Has(funcName) {
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Unknown function: %s", funcName))
	}
	p.pos++

	// expect opening parenthesis
	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenLeftParen {
		return nil, NewSpreadsheetError(ErrorCodeValue, "expected '(' after function name")
	}
	p.pos++

	args := []ASTNode{}

	// check for empty argument list
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenRightParen {
		p.pos++
		return &FunctionCallNode{
			Name:      funcName,
			Args:      args,
			functions: p.functions,
		}, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if p.pos >= len(p.tokens) {
			return nil, NewSpreadsheetError(ErrorCodeValue, "unexpected end in function arguments")
		}

		if p.tokens[p.pos].Type == TokenRightParen {
			p.pos++
			break
		}

		if p.tokens[p.pos].Type != TokenComma {
			return nil, NewSpreadsheetError(ErrorCodeValue, "expected ',' or ')' in function arguments")
		}
		p.pos++
	}

	return &FunctionCallNode{
		Name:      funcName,
		Args:      args,
		functions: p.functions,
	}, nil
}

// parseCellReference parses a cell reference token into a CellRefNode
func (p *Parser) parseCellReference(tok Token) (ASTNode, error) {
	addr, err := ParseAddress(tok.Value)
	if err != nil {
		return nil, &SpreadsheetError{ErrorCode: ErrorCodeRef, Message: err.Error(), Err: err}
	}
	return &CellRefNode{
		Address: addr.String(),
	}, nil
}

// parseRange parses a range token into a RangeNode
func (p *Parser) parseRange(tok Token) (ASTNode, error) {
	bounds, err := ParseRangeRef(tok.Value)
	if err != nil {
		return nil, &SpreadsheetError{ErrorCode: ErrorCodeRef, Message: err.Error(), Err: err}
	}
	return &RangeNode{
		Bounds: bounds,
	}, nil
}

// Walk visits node and every node below it, depth first.
func Walk(node ASTNode, visit func(ASTNode)) {
	visit(node)
	switch n := node.(type) {
	case *BinaryOpNode:
		Walk(n.Left, visit)
		Walk(n.Right, visit)
	case *UnaryOpNode:
		Walk(n.Operand, visit)
	case *FunctionCallNode:
		for _, arg := range n.Args {
			Walk(arg, visit)
		}
	}
}
