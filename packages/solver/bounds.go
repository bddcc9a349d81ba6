package solver

import (
	"fmt"
	"math"

	"github.com/vogtb/kinecalc/packages/spreadsheet"
)

// DefaultBounds pairs each decision variable of the loading-stand schema
// with the cells holding its lower and upper limit. A schema that declares
// its own bounds overrides these.
var DefaultBounds = map[string][2]string{
	"C7":  {"E195", "E197"},
	"J7":  {"J191", "J193"},
	"C9":  {"E191", "E193"},
	"J94": {"J195", "J197"},
}

// Bound is a resolved box for one decision variable. An infinite side is
// unbounded.
type Bound struct {
	Variable string  `json:"variable"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
}

// Clip returns v moved into the box.
func (b Bound) Clip(v float64) float64 {
	return math.Min(math.Max(v, b.Lower), b.Upper)
}

// boundExpressions finds the limit expressions of a variable.
func (o *Optimizer) boundExpressions(variable string) (lower, upper string, ok bool) {
	for _, b := range o.schema.Solver.Bounds {
		if spreadsheet.Normalize(b.Variable) == variable {
			return b.Lower, b.Upper, true
		}
	}
	if pair, found := DefaultBounds[variable]; found {
		return pair[0], pair[1], true
	}
	return "", "", false
}

// resolveBounds evaluates every variable's limits against one baseline
// compute. Inverted limits are swapped; a variable without limits is left
// unbounded.
func (o *Optimizer) resolveBounds(live, computed spreadsheet.Values) ([]Bound, error) {
	bounds := make([]Bound, len(o.variables))
	for i, variable := range o.variables {
		lowerExpr, upperExpr, ok := o.boundExpressions(variable)
		if !ok {
			o.logger.Warn("decision variable has no bounds", "variable", variable)
			bounds[i] = Bound{Variable: variable, Lower: math.Inf(-1), Upper: math.Inf(1)}
			continue
		}
		lo, err := Resolve(lowerExpr, live, computed, o.defaults)
		if err != nil {
			return nil, fmt.Errorf("lower bound of %s: %w", variable, err)
		}
		hi, err := Resolve(upperExpr, live, computed, o.defaults)
		if err != nil {
			return nil, fmt.Errorf("upper bound of %s: %w", variable, err)
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		bounds[i] = Bound{Variable: variable, Lower: lo, Upper: hi}
	}
	return bounds, nil
}

// finiteOrNaN maps an infinite limit to NaN, the solvers' "no bound".
func finiteOrNaN(v float64) float64 {
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}
