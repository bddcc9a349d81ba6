package solver

import (
	"strconv"
	"strings"

	"github.com/vogtb/kinecalc/packages/spreadsheet"
)

// Resolve turns a bound or constraint expression into a number. A literal
// wins; otherwise the cell is looked up in live, then computed, then
// defaults. Any of the mappings may be nil.
func Resolve(expr string, live, computed, defaults map[string]float64) (float64, error) {
	trimmed := strings.TrimSpace(expr)
	if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return v, nil
	}

	key := spreadsheet.Normalize(trimmed)
	for _, tier := range [...]map[string]float64{live, computed, defaults} {
		if v, ok := tier[key]; ok {
			return v, nil
		}
	}
	return 0, &UnresolvedReferenceError{Expression: expr}
}
