package solver

import (
	"fmt"
	"math"

	"github.com/vogtb/kinecalc/packages/schema"
)

// violationEpsilon keeps the relative measure finite near zero.
const violationEpsilon = 1e-6

// Severity thresholds on relative violation.
const (
	SatisfiedThreshold = 1e-4
	MarginalThreshold  = 0.05
)

// Severity classifies how far a constraint is from holding.
type Severity string

const (
	SeveritySatisfied Severity = "satisfied"
	SeverityMarginal  Severity = "marginal"
	SeverityViolated  Severity = "violated"
)

// Violation is the nonnegative relative distance from satisfying
// lhs <relation> rhs. Unknown relations are treated as equality.
func Violation(relation string, lhs, rhs float64) float64 {
	switch relation {
	case schema.RelationLE:
		return math.Max(0, (lhs-rhs)/math.Max(math.Abs(rhs), violationEpsilon))
	case schema.RelationGE:
		return math.Max(0, (rhs-lhs)/math.Max(math.Abs(lhs), violationEpsilon))
	default:
		return math.Abs(lhs-rhs) / math.Max(math.Abs(rhs), violationEpsilon)
	}
}

// Classify maps a violation onto its severity tier.
func Classify(violation float64) Severity {
	switch {
	case violation <= SatisfiedThreshold:
		return SeveritySatisfied
	case violation <= MarginalThreshold:
		return SeverityMarginal
	default:
		return SeverityViolated
	}
}

// ConstraintStatus describes one constraint at the returned point.
type ConstraintStatus struct {
	Name      string   `json:"name"`
	LHS       float64  `json:"lhs"`
	RHS       float64  `json:"rhs"`
	Violation float64  `json:"violation"`
	Severity  Severity `json:"severity"`
}

// ConstraintName labels the idx-th constraint (1-based) as it is shown in
// reports and history columns.
func ConstraintName(idx int, c schema.Constraint) string {
	return fmt.Sprintf("C%d: %s %s %s", idx, c.LHS, c.Type, c.RHS)
}

// slsqpValue is the constraint in the solver's sign convention: nonnegative
// when an inequality holds, zero when an equality holds.
func slsqpValue(relation string, lhs, rhs float64) float64 {
	if relation == schema.RelationLE {
		return rhs - lhs
	}
	return lhs - rhs
}
