package spreadsheet

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFormula is matched by every *FormulaError.
	ErrFormula = errors.New("spreadsheet: formula error")
	// ErrMissingValue is matched by every *MissingValueError.
	ErrMissingValue = errors.New("spreadsheet: missing value")
	// ErrCycle is matched by every *CycleError.
	ErrCycle = errors.New("spreadsheet: circular dependency")
)

// SpreadsheetError preserves error code for display in cells
type SpreadsheetError struct {
	ErrorCode ErrorCode
	Message   string
	Err       error
}

func (e *SpreadsheetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.ErrorCode.String()
}

func (e *SpreadsheetError) Unwrap() error {
	return e.Err
}

func NewSpreadsheetError(code ErrorCode, message string) *SpreadsheetError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &SpreadsheetError{
		ErrorCode: code,
		Message:   message,
	}
}

// MissingValueError is raised when a formula reads a cell that has no value
// yet. This is what keeps a cell from being evaluated before its
// dependencies.
type MissingValueError struct {
	Address string
}

func (e *MissingValueError) Error() string {
	return "missing value for cell " + e.Address
}

func (e *MissingValueError) Is(target error) bool {
	return target == ErrMissingValue
}

// FormulaError names the formula that failed to parse or evaluate.
type FormulaError struct {
	Formula string
	Code    ErrorCode
	Err     error
}

func newFormulaError(formula string, err error) *FormulaError {
	code := ErrorCodeOther
	var se *SpreadsheetError
	switch {
	case errors.As(err, &se):
		code = se.ErrorCode
	case errors.Is(err, ErrMissingValue):
		code = ErrorCodeRef
	}
	return &FormulaError{Formula: formula, Code: code, Err: err}
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("formula %q: %v", e.Formula, e.Err)
}

func (e *FormulaError) Unwrap() error {
	return e.Err
}

func (e *FormulaError) Is(target error) bool {
	return target == ErrFormula
}

// CycleError lists every cell left unresolved by the topological pass.
type CycleError struct {
	Cells []string
}

func (e *CycleError) Error() string {
	return "circular dependency among cells: " + strings.Join(e.Cells, ", ")
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}
