package spreadsheet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Primitive represents the values a formula node can produce.
// types:
//   - float64: numeric values
//   - bool: results of comparisons and logical functions
//   - Range: a rectangular span, only meaningful as a function argument
type Primitive any

// ErrorCode represents standard spreadsheet error codes following
// Excel conventions
type ErrorCode uint8

const (
	ErrorCodeNull  ErrorCode = 1 // #NULL! - no cells in common between ranges
	ErrorCodeDiv0  ErrorCode = 2 // #DIV/0! - division by zero
	ErrorCodeValue ErrorCode = 3 // #VALUE! - wrong type of argument or operand
	ErrorCodeRef   ErrorCode = 4 // #REF! - invalid or missing cell reference
	ErrorCodeName  ErrorCode = 5 // #NAME? - unrecognized function name
	ErrorCodeNum   ErrorCode = 6 // #NUM! - number too large, small or outside a function's domain
	ErrorCodeNA    ErrorCode = 7 // #N/A - wrong number of arguments for function
	ErrorCodeOther ErrorCode = 8 // #ERROR! - all other errors
)

// ErrorMapper maps error code numbers to their string representations
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeNull:  "#NULL!",
	ErrorCodeDiv0:  "#DIV/0!",
	ErrorCodeValue: "#VALUE!",
	ErrorCodeRef:   "#REF!",
	ErrorCodeName:  "#NAME?",
	ErrorCodeNum:   "#NUM!",
	ErrorCodeNA:    "#N/A",
	ErrorCodeOther: "#ERROR!",
}

func (c ErrorCode) String() string {
	if s, ok := ErrorMapper[c]; ok {
		return s
	}
	return ErrorMapper[ErrorCodeOther]
}

// ErrInvalidAddress is matched by every *AddressError.
var ErrInvalidAddress = errors.New("spreadsheet: invalid cell address")

// AddressError reports a cell identifier without a column prefix or row
// suffix.
type AddressError struct {
	Address string
	Reason  string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid cell address %q: %s", e.Address, e.Reason)
}

func (e *AddressError) Is(target error) bool {
	return target == ErrInvalidAddress
}

// CellAddress is a 1-based column/row pair. The zero value is not a valid
// address.
type CellAddress struct {
	Column int
	Row    int
}

func (a CellAddress) String() string {
	return ColumnToLetters(a.Column) + strconv.Itoa(a.Row)
}

// Normalize strips absolute-reference markers and upper-cases the address.
// It never fails; use Split to check that the result is well formed.
func Normalize(address string) string {
	return strings.ToUpper(strings.ReplaceAll(address, "$", ""))
}

// ParseAddress parses "B12", "$b$12" and friends.
func ParseAddress(address string) (CellAddress, error) {
	col, row, err := Split(address)
	if err != nil {
		return CellAddress{}, err
	}
	return CellAddress{Column: col, Row: row}, nil
}

// Split converts an address into its 1-based column index (A=1, Z=26,
// AA=27) and row number.
func Split(address string) (column int, row int, err error) {
	cell := Normalize(address)

	// find where letters end and numbers begin
	letterEnd := 0
	for i, ch := range cell {
		if ch >= 'A' && ch <= 'Z' {
			letterEnd = i + 1
		} else {
			break
		}
	}

	if letterEnd == 0 {
		return 0, 0, &AddressError{Address: address, Reason: "missing column letters"}
	}
	if letterEnd == len(cell) {
		return 0, 0, &AddressError{Address: address, Reason: "missing row number"}
	}

	for _, ch := range cell[:letterEnd] {
		column = column*26 + int(ch-'A') + 1
	}

	rowStr := cell[letterEnd:]
	for i := 0; i < len(rowStr); i++ {
		if rowStr[i] < '0' || rowStr[i] > '9' {
			return 0, 0, &AddressError{Address: address, Reason: "row must be digits only"}
		}
	}
	n, err := strconv.Atoi(rowStr)
	if err != nil {
		return 0, 0, &AddressError{Address: address, Reason: err.Error()}
	}
	if n < 1 {
		return 0, 0, &AddressError{Address: address, Reason: "row number must be positive"}
	}

	return column, n, nil
}

// ColumnToLetters is the inverse of the column half of Split. Indices below
// 1 have no letters.
func ColumnToLetters(column int) string {
	var buf [8]byte
	i := len(buf)
	for column > 0 {
		column--
		i--
		buf[i] = byte('A' + column%26)
		column /= 26
	}
	return string(buf[i:])
}

// ExpandRange lists every address of the rectangle spanned by start and end,
// rows outer and columns inner, whichever corner comes first.
func ExpandRange(start, end string) ([]string, error) {
	r, err := ParseRange(start, end)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, r.Size())
	for addr := range r.Cells() {
		out = append(out, addr.String())
	}
	return out, nil
}
