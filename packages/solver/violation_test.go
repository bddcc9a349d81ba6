package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vogtb/kinecalc/packages/schema"
)

func TestViolation(t *testing.T) {
	cases := []struct {
		name     string
		relation string
		lhs, rhs float64
		want     float64
	}{
		{"le holds with equality", "le", 5, 5, 0},
		{"le exceeded by one percent", "le", 101, 100, 0.01},
		{"le holds", "le", 3, 5, 0},
		{"ge holds", "ge", 5, 3, 0},
		{"ge short by a quarter of lhs", "ge", 4, 5, 0.25},
		{"eq above", "eq", 11, 10, 0.1},
		{"eq below", "eq", 9, 10, 0.1},
		{"le against zero", "le", 1e-6, 0, 1},
		{"unknown relation is equality", "ne", 12, 10, 0.2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Violation(tc.relation, tc.lhs, tc.rhs), 1e-12)
		})
	}
}

func TestViolationNeverNegative(t *testing.T) {
	for _, rel := range []string{"le", "ge", "eq"} {
		for _, lhs := range []float64{-10, -1, 0, 1, 10} {
			for _, rhs := range []float64{-10, -1, 0, 1, 10} {
				assert.GreaterOrEqual(t, Violation(rel, lhs, rhs), 0.0)
			}
		}
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, SeveritySatisfied, Classify(0))
	assert.Equal(t, SeveritySatisfied, Classify(0.00005))
	assert.Equal(t, SeveritySatisfied, Classify(1e-4))
	assert.Equal(t, SeverityMarginal, Classify(0.02))
	assert.Equal(t, SeverityMarginal, Classify(0.05))
	assert.Equal(t, SeverityViolated, Classify(0.10))
}

func TestConstraintName(t *testing.T) {
	c := schema.Constraint{Type: "ge", LHS: "J141", RHS: "C25"}
	assert.Equal(t, "C1: J141 ge C25", ConstraintName(1, c))
}

func TestSlsqpValueSign(t *testing.T) {
	assert.Equal(t, 2.0, slsqpValue("le", 3, 5))
	assert.Equal(t, -2.0, slsqpValue("ge", 3, 5))
	assert.Equal(t, 0.0, slsqpValue("eq", 5, 5))
}
