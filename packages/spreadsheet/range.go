package spreadsheet

import (
	"iter"
	"strings"
)

// RangeAddress represents a rectangular block of cells. Start is always the
// top-left corner and End the bottom-right one.
type RangeAddress struct {
	Start CellAddress
	End   CellAddress
}

// NewRangeAddress normalizes two corners so the range iterates the same way
// regardless of which corner is given first.
func NewRangeAddress(a, b CellAddress) RangeAddress {
	return RangeAddress{
		Start: CellAddress{Column: min(a.Column, b.Column), Row: min(a.Row, b.Row)},
		End:   CellAddress{Column: max(a.Column, b.Column), Row: max(a.Row, b.Row)},
	}
}

// ParseRange parses both corners of a range.
func ParseRange(start, end string) (RangeAddress, error) {
	a, err := ParseAddress(start)
	if err != nil {
		return RangeAddress{}, err
	}
	b, err := ParseAddress(end)
	if err != nil {
		return RangeAddress{}, err
	}
	return NewRangeAddress(a, b), nil
}

// ParseRangeRef parses "A1:B2".
func ParseRangeRef(ref string) (RangeAddress, error) {
	start, end, ok := strings.Cut(ref, ":")
	if !ok {
		return RangeAddress{}, &AddressError{Address: ref, Reason: "range must be START:END"}
	}
	return ParseRange(strings.TrimSpace(start), strings.TrimSpace(end))
}

func (r RangeAddress) String() string {
	return r.Start.String() + ":" + r.End.String()
}

// Size returns the number of cells in the range.
func (r RangeAddress) Size() int {
	return (r.End.Column - r.Start.Column + 1) * (r.End.Row - r.Start.Row + 1)
}

// Contains reports whether addr lies inside the range.
func (r RangeAddress) Contains(addr CellAddress) bool {
	return addr.Row >= r.Start.Row && addr.Row <= r.End.Row &&
		addr.Column >= r.Start.Column && addr.Column <= r.End.Column
}

// Cells iterates the range row by row, left to right.
func (r RangeAddress) Cells() iter.Seq[CellAddress] {
	return func(yield func(CellAddress) bool) {
		for row := r.Start.Row; row <= r.End.Row; row++ {
			for col := r.Start.Column; col <= r.End.Column; col++ {
				if !yield(CellAddress{Column: col, Row: row}) {
					return
				}
			}
		}
	}
}

// Range represents a lazy range bound to a value snapshot
type Range interface {
	GetBounds() RangeAddress
	IterateValues() iter.Seq2[float64, error]
}

// CellRange implements Range over a Values snapshot. Members are only read
// when iterated.
type CellRange struct {
	bounds RangeAddress
	values Values
}

// GetBounds returns the range boundaries
func (r *CellRange) GetBounds() RangeAddress {
	return r.bounds
}

// IterateValues yields member values in row-major order. A member absent
// from the snapshot yields a *MissingValueError and stops the iteration.
func (r *CellRange) IterateValues() iter.Seq2[float64, error] {
	return func(yield func(float64, error) bool) {
		for addr := range r.bounds.Cells() {
			key := addr.String()
			v, ok := r.values[key]
			if !ok {
				yield(0, &MissingValueError{Address: key})
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// NamedRangeTable maps names to ranges, e.g. the columns of an auxiliary
// table read out of a computed mapping.
type NamedRangeTable struct {
	ranges map[string]RangeAddress
}

// NewNamedRangeTable creates a new named range table
func NewNamedRangeTable() *NamedRangeTable {
	return &NamedRangeTable{ranges: make(map[string]RangeAddress)}
}

// DefineNamedRange defines or redefines a named range from a "A1:B2"
// reference. Names are case-insensitive.
func (nrt *NamedRangeTable) DefineNamedRange(name, ref string) error {
	r, err := ParseRangeRef(ref)
	if err != nil {
		return err
	}
	nrt.ranges[strings.ToUpper(name)] = r
	return nil
}

// GetRangeAddress returns the address of a defined named range
func (nrt *NamedRangeTable) GetRangeAddress(name string) (RangeAddress, bool) {
	r, ok := nrt.ranges[strings.ToUpper(name)]
	return r, ok
}
