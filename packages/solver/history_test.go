package solver

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryNumbersAndColumns(t *testing.T) {
	h := NewHistory([]string{"C7", "J7"}, []string{"J204"}, []string{"C1: J141 ge C25"})

	first := h.Add(IterationRecord{
		Stage:      StageStrict,
		Variables:  map[string]float64{"C7": 1.25, "J7": 0.75},
		Objective:  5,
		Outputs:    map[string]float64{"J204": 5},
		Violations: map[string]float64{"C1: J141 ge C25": 0},
	})
	second := h.Add(IterationRecord{
		Iteration:  42,
		Stage:      StageRelaxed,
		Variables:  map[string]float64{"C7": 1, "J7": 0.5},
		Objective:  4.5,
		Outputs:    map[string]float64{"J204": 4.5},
		Violations: map[string]float64{"C1: J141 ge C25": 0.125},
	})

	assert.Equal(t, 1, first.Iteration)
	assert.Equal(t, 2, second.Iteration)
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 0.125, second.MaxViolation())

	assert.Equal(t,
		[]string{"iteration", "stage", "C7", "J7", "objective", "J204", "C1: J141 ge C25"},
		h.Columns())
	want := [][]string{
		{"1", "strict", "1.25", "0.75", "5", "5", "0"},
		{"2", "relaxed", "1", "0.5", "4.5", "4.5", "0.125"},
	}
	if diff := cmp.Diff(want, h.Rows()); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryExportCopies(t *testing.T) {
	h := NewHistory([]string{"A1"}, nil, nil)
	h.Add(IterationRecord{Variables: map[string]float64{"A1": 1}})

	exported := h.Export()
	require.Len(t, exported, 1)
	exported[0].Variables["A1"] = 99

	assert.Equal(t, 1.0, h.Records()[0].Variables["A1"])
}

func TestSweepDeltas(t *testing.T) {
	assert.Equal(t, []float64{-10, -5, 0, 5, 10}, SweepDeltas(10, 5))
	assert.Len(t, SweepDeltas(10, 41), 41)
	assert.Equal(t, 0.0, SweepDeltas(10, 41)[20])
}
