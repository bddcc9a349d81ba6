package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/vogtb/kinecalc/packages/engine"
	"github.com/vogtb/kinecalc/packages/solver"
	"github.com/vogtb/kinecalc/packages/spreadsheet"
)

// number marshals NaN and infinities as null, which encoding/json refuses.
type number float64

func (n number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

type keyOutputJSON struct {
	Address string `json:"address"`
	Value   number `json:"value"`
	Present bool   `json:"present"`
}

type tableRowJSON struct {
	K number `json:"k"`
	A number `json:"a"`
	B number `json:"b"`
	S number `json:"s"`
}

type computeJSON struct {
	KeyOutputs []keyOutputJSON   `json:"key_outputs"`
	Table      []tableRowJSON    `json:"table"`
	Values     map[string]number `json:"values,omitempty"`
}

func newComputeJSON(r *engine.Result, all bool) computeJSON {
	out := computeJSON{
		KeyOutputs: make([]keyOutputJSON, 0, len(r.KeyOutputs)),
		Table:      make([]tableRowJSON, 0, len(r.Table)),
	}
	for _, k := range r.KeyOutputs {
		v := k.Value
		if !k.Present {
			v = math.NaN()
		}
		out.KeyOutputs = append(out.KeyOutputs, keyOutputJSON{Address: k.Address, Value: number(v), Present: k.Present})
	}
	for _, row := range r.Table {
		out.Table = append(out.Table, tableRowJSON{K: number(row.K), A: number(row.A), B: number(row.B), S: number(row.S)})
	}
	if all {
		out.Values = numbers(r.Values)
	}
	return out
}

type constraintJSON struct {
	Name      string          `json:"name"`
	LHS       number          `json:"lhs"`
	RHS       number          `json:"rhs"`
	Violation number          `json:"violation"`
	Severity  solver.Severity `json:"severity"`
}

type boundJSON struct {
	Variable string `json:"variable"`
	Lower    number `json:"lower"`
	Upper    number `json:"upper"`
}

type optimizeJSON struct {
	RunID       string            `json:"run_id"`
	Success     bool              `json:"success"`
	Stage       solver.Stage      `json:"stage"`
	Message     string            `json:"message"`
	Objective   number            `json:"objective"`
	Variables   map[string]number `json:"variables"`
	Constraints []constraintJSON  `json:"constraints"`
	Bounds      []boundJSON       `json:"bounds"`
	Iterations  int               `json:"iterations"`
}

func newOptimizeJSON(r *solver.Result, variables []string) optimizeJSON {
	out := optimizeJSON{
		RunID:     r.RunID,
		Success:   r.Success,
		Stage:     r.Stage,
		Message:   r.Message,
		Objective: number(r.Objective),
		Variables: make(map[string]number, len(variables)),
	}
	for _, v := range variables {
		x, ok := r.Values.Get(v)
		if !ok {
			x = math.NaN()
		}
		out.Variables[v] = number(x)
	}
	for _, c := range r.Constraints {
		out.Constraints = append(out.Constraints, constraintJSON{
			Name:      c.Name,
			LHS:       number(c.LHS),
			RHS:       number(c.RHS),
			Violation: number(c.Violation),
			Severity:  c.Severity,
		})
	}
	for _, b := range r.Bounds {
		out.Bounds = append(out.Bounds, boundJSON{Variable: b.Variable, Lower: number(b.Lower), Upper: number(b.Upper)})
	}
	if r.History != nil {
		out.Iterations = r.History.Len()
	}
	return out
}

type profileJSON struct {
	Variable  string   `json:"variable"`
	Deltas    []number `json:"deltas"`
	Objective []number `json:"objective"`
}

func newProfileJSON(series []solver.ProfileSeries) []profileJSON {
	out := make([]profileJSON, 0, len(series))
	for _, s := range series {
		p := profileJSON{Variable: s.Variable}
		for _, d := range s.Deltas {
			p.Deltas = append(p.Deltas, number(d))
		}
		for _, o := range s.Objective {
			p.Objective = append(p.Objective, number(o))
		}
		out = append(out, p)
	}
	return out
}

func numbers(values spreadsheet.Values) map[string]number {
	out := make(map[string]number, len(values))
	for k, v := range values {
		out[k] = number(v)
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeHistoryCSV writes one row per recorded iteration.
func writeHistoryCSV(path string, h *solver.History) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create history file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(h.Columns()); err != nil {
		return err
	}
	if err := w.WriteAll(h.Rows()); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// parseAssignments turns CELL=VALUE pairs into a value mapping.
func parseAssignments(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		addr, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q: want CELL=VALUE", pair)
		}
		if _, err := spreadsheet.ParseAddress(strings.TrimSpace(addr)); err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid assignment %q: %w", pair, err)
		}
		out[spreadsheet.Normalize(strings.TrimSpace(addr))] = v
	}
	return out, nil
}
