package solver

import (
	"maps"
	"slices"
	"strconv"
)

// IterationRecord is one recorded point; see History for what each stage
// records. Records are never modified after they are added to a History.
type IterationRecord struct {
	Iteration  int                `json:"iteration"`
	Stage      Stage              `json:"stage"`
	Variables  map[string]float64 `json:"variables"`
	Objective  float64            `json:"objective"`
	Outputs    map[string]float64 `json:"outputs"`
	Violations map[string]float64 `json:"violations"`
}

// MaxViolation is the largest violation in the record, 0 without
// constraints.
func (r IterationRecord) MaxViolation() float64 {
	m := 0.0
	for _, v := range r.Violations {
		m = max(m, v)
	}
	return m
}

// History is the append-only iteration log of one optimization run. It is
// shared by both stages, so iteration numbers keep counting across them.
//
// The two stages record differently. A strict record is an accepted
// iterate of the constrained solver. A relaxed record is an objective
// evaluation, line-search trials included, so relaxed rows outnumber the
// solver's own iteration count and need not decrease monotonically.
type History struct {
	variables   []string
	outputs     []string
	constraints []string
	records     []IterationRecord
}

// NewHistory fixes the column layout: variables, outputs and constraint
// names, each in the given order.
func NewHistory(variables, outputs, constraints []string) *History {
	return &History{
		variables:   slices.Clone(variables),
		outputs:     slices.Clone(outputs),
		constraints: slices.Clone(constraints),
	}
}

// Add numbers rec as the next iteration, stores it and returns the stored
// copy.
func (h *History) Add(rec IterationRecord) IterationRecord {
	rec.Iteration = len(h.records) + 1
	h.records = append(h.records, rec)
	return rec
}

// Len is the number of records.
func (h *History) Len() int {
	return len(h.records)
}

// Records returns the records in order.
func (h *History) Records() []IterationRecord {
	return slices.Clone(h.records)
}

// Export returns the records with their maps copied, for serialization by
// callers that may modify them.
func (h *History) Export() []IterationRecord {
	out := make([]IterationRecord, len(h.records))
	for i, rec := range h.records {
		rec.Variables = maps.Clone(rec.Variables)
		rec.Outputs = maps.Clone(rec.Outputs)
		rec.Violations = maps.Clone(rec.Violations)
		out[i] = rec
	}
	return out
}

// Columns is the flat column order used by Rows.
func (h *History) Columns() []string {
	cols := make([]string, 0, 3+len(h.variables)+len(h.outputs)+len(h.constraints))
	cols = append(cols, "iteration", "stage")
	cols = append(cols, h.variables...)
	cols = append(cols, "objective")
	cols = append(cols, h.outputs...)
	cols = append(cols, h.constraints...)
	return cols
}

// Rows renders every record as text cells aligned with Columns. Numbers use
// the shortest representation that round-trips.
func (h *History) Rows() [][]string {
	rows := make([][]string, len(h.records))
	for i, rec := range h.records {
		row := make([]string, 0, len(h.Columns()))
		row = append(row, strconv.Itoa(rec.Iteration), string(rec.Stage))
		for _, v := range h.variables {
			row = append(row, formatFloat(rec.Variables[v]))
		}
		row = append(row, formatFloat(rec.Objective))
		for _, o := range h.outputs {
			row = append(row, formatFloat(rec.Outputs[o]))
		}
		for _, c := range h.constraints {
			row = append(row, formatFloat(rec.Violations[c]))
		}
		rows[i] = row
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
