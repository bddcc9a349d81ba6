package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTiers(t *testing.T) {
	live := map[string]float64{"A1": 1}
	computed := map[string]float64{"A1": 10, "B1": 20}
	defaults := map[string]float64{"A1": 100, "B1": 200, "C1": 300}

	cases := []struct {
		expr string
		want float64
	}{
		{"60", 60},
		{" -2.5e1 ", -25},
		{"A1", 1},
		{"$a$1", 1},
		{"B1", 20},
		{"C1", 300},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := Resolve(tc.expr, live, computed, defaults)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveNilTiers(t *testing.T) {
	got, err := Resolve("C1", nil, nil, map[string]float64{"C1": 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)
}

func TestResolveUnresolved(t *testing.T) {
	_, err := Resolve("Z9", map[string]float64{"A1": 1}, nil, nil)
	require.ErrorIs(t, err, ErrUnresolvedReference)

	var unresolved *UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "Z9", unresolved.Expression)
}
