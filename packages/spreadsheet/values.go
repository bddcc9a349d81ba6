package spreadsheet

import (
	"maps"
	"sort"
)

// Values is a snapshot of cell values keyed by normalized address.
type Values map[string]float64

// NewValues copies m, normalizing every key.
func NewValues(m map[string]float64) Values {
	v := make(Values, len(m))
	for addr, value := range m {
		v[Normalize(addr)] = value
	}
	return v
}

// Clone returns an independent copy.
func (v Values) Clone() Values {
	return maps.Clone(v)
}

// Get looks up an address in any spelling.
func (v Values) Get(addr string) (float64, bool) {
	value, ok := v[Normalize(addr)]
	return value, ok
}

// Merge overwrites v with every entry of other.
func (v Values) Merge(other map[string]float64) Values {
	for addr, value := range other {
		v[Normalize(addr)] = value
	}
	return v
}

// Addresses returns the keys in sorted order.
func (v Values) Addresses() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Range binds a range address to this snapshot.
func (v Values) Range(r RangeAddress) Range {
	return &CellRange{bounds: r, values: v}
}
