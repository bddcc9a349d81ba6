// Package engine evaluates a calculation schema: every formula cell in
// dependency order over a complete input mapping.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/vogtb/kinecalc/packages/schema"
	"github.com/vogtb/kinecalc/packages/spreadsheet"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// KeyOutputCells are the cells reported as the answer of a calculation.
var KeyOutputCells = []string{"J122", "J132", "L141", "J169", "T168", "T178", "J204"}

// The auxiliary table reads four parallel columns over a fixed row span.
const (
	TableFirstRow = 106
	TableLastRow  = 116
	TableRows     = TableLastRow - TableFirstRow + 1
)

// tableRanges names the table columns in TableRow field order.
var tableRanges = func() *spreadsheet.NamedRangeTable {
	t := spreadsheet.NewNamedRangeTable()
	for name, col := range map[string]string{"K": "N", "A": "O", "B": "P", "S": "Q"} {
		ref := fmt.Sprintf("%s%d:%s%d", col, TableFirstRow, col, TableLastRow)
		if err := t.DefineNamedRange(name, ref); err != nil {
			panic(err)
		}
	}
	return t
}()

// KeyOutput is one curated output. Present is false when the schema does
// not define the cell.
type KeyOutput struct {
	Address string  `json:"address"`
	Value   float64 `json:"value"`
	Present bool    `json:"present"`
}

// TableRow is one row of the kinematics table: step index K, angle A and
// the hook position (B, S). A cell missing from the mapping reads as NaN.
type TableRow struct {
	K float64 `json:"k"`
	A float64 `json:"a"`
	B float64 `json:"b"`
	S float64 `json:"s"`
}

// Result is the outcome of one Compute call.
type Result struct {
	Values     spreadsheet.Values
	KeyOutputs []KeyOutput
	Table      [TableRows]TableRow
}

// KeyOutput returns a curated output by address.
func (r *Result) KeyOutput(addr string) (float64, bool) {
	addr = spreadsheet.Normalize(addr)
	for _, out := range r.KeyOutputs {
		if out.Address == addr {
			return out.Value, out.Present
		}
	}
	return 0, false
}

// KeyOutputMap returns the present key outputs keyed by address.
func (r *Result) KeyOutputMap() map[string]float64 {
	m := make(map[string]float64, len(r.KeyOutputs))
	for _, out := range r.KeyOutputs {
		if out.Present {
			m[out.Address] = out.Value
		}
	}
	return m
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine owns the compiled formulas of one schema. All state is fixed at
// construction, so Compute may be called concurrently.
type Engine struct {
	schema   *schema.Schema
	sheet    *spreadsheet.Sheet
	defaults spreadsheet.Values
	logger   *slog.Logger
}

// New compiles the schema's formulas and fixes the evaluation order. Parse
// failures are reported per cell; a dependency cycle fails with a
// *spreadsheet.CycleError.
func New(s *schema.Schema, opts ...Option) (*Engine, error) {
	e := &Engine{
		schema:   s,
		defaults: s.DefaultValues(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	sheet, err := spreadsheet.NewSheet(s.FormulaSources())
	if err != nil {
		return nil, fmt.Errorf("engine: compile formulas: %w", err)
	}
	e.sheet = sheet

	var undeclared []string
	for _, addr := range sheet.Inputs() {
		if _, ok := e.defaults[addr]; !ok {
			undeclared = append(undeclared, addr)
		}
	}
	if len(undeclared) > 0 {
		e.logger.Warn("formulas read cells that are neither inputs nor formulas",
			slog.Any("cells", undeclared))
	}

	e.logger.Debug("engine ready",
		slog.String("version", s.Version),
		slog.Int("inputs", len(s.Inputs)),
		slog.Int("formulas", len(sheet.Order())),
		slog.Int("distinct_formulas", sheet.Formulas().Count()),
	)
	return e, nil
}

// Schema returns the schema the engine was built from.
func (e *Engine) Schema() *schema.Schema {
	return e.schema
}

// DefaultValues maps every input cell to its declared default. The result
// is a fresh copy.
func (e *Engine) DefaultValues() spreadsheet.Values {
	return e.defaults.Clone()
}

// InputValues returns the defaults overlaid with overrides. Compute itself
// never fills in defaults; this is the helper for callers that hold only
// the cells they changed.
func (e *Engine) InputValues(overrides map[string]float64) spreadsheet.Values {
	return e.DefaultValues().Merge(overrides)
}

// Compute evaluates every formula cell over a copy of values. The mapping
// must already hold every input the formulas read. Any cell failure aborts
// the call with a *spreadsheet.CellError and no partial result.
func (e *Engine) Compute(ctx context.Context, values map[string]float64) (*Result, error) {
	ctx, span := tracer.Start(ctx, "engine.Compute",
		trace.WithAttributes(attribute.Int("engine.input_count", len(values))),
	)
	defer span.End()

	start := time.Now()
	data, err := e.sheet.Calculate(spreadsheet.Values(values))
	recordCompute(ctx, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute failed")
		e.logger.Debug("compute failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("compute: %w", err)
	}
	span.SetAttributes(attribute.Int("engine.cell_count", len(data)))

	return &Result{
		Values:     data,
		KeyOutputs: keyOutputs(data),
		Table:      buildTable(data),
	}, nil
}

func keyOutputs(data spreadsheet.Values) []KeyOutput {
	out := make([]KeyOutput, len(KeyOutputCells))
	for i, addr := range KeyOutputCells {
		value, ok := data[addr]
		out[i] = KeyOutput{Address: addr, Value: value, Present: ok}
	}
	return out
}

func buildTable(data spreadsheet.Values) [TableRows]TableRow {
	var table [TableRows]TableRow
	column := func(name string, set func(row *TableRow, v float64)) {
		r, _ := tableRanges.GetRangeAddress(name)
		i := 0
		for cell := range r.Cells() {
			v, ok := data[cell.String()]
			if !ok {
				v = math.NaN()
			}
			set(&table[i], v)
			i++
		}
	}
	column("K", func(row *TableRow, v float64) { row.K = v })
	column("A", func(row *TableRow, v float64) { row.A = v })
	column("B", func(row *TableRow, v float64) { row.B = v })
	column("S", func(row *TableRow, v float64) { row.S = v })
	return table
}

// Order returns the formula evaluation order.
func (e *Engine) Order() []string {
	return e.sheet.Order()
}

// Formula returns the compiled formula of a cell.
func (e *Engine) Formula(addr string) (*spreadsheet.Formula, bool) {
	return e.sheet.Formula(spreadsheet.Normalize(addr))
}

// IsFormula reports whether addr is computed rather than supplied.
func (e *Engine) IsFormula(addr string) bool {
	return e.sheet.Graph().IsFormula(spreadsheet.Normalize(addr))
}

// DependencyChain lists every cell addr transitively reads, in discovery
// order.
func (e *Engine) DependencyChain(addr string) []string {
	return e.sheet.Graph().DependencyChain(spreadsheet.Normalize(addr))
}

// Precedents lists the cells addr's formula reads directly, sorted.
func (e *Engine) Precedents(addr string) []string {
	return e.sheet.Graph().GetDirectPrecedents(spreadsheet.Normalize(addr))
}

// SharedFormula lists the other cells whose formula is structurally the
// same as addr's.
func (e *Engine) SharedFormula(addr string) []string {
	return e.sheet.Formulas().SharedWith(addr)
}

// CellCount is the number of distinct cells the formulas define or read.
func (e *Engine) CellCount() int {
	return e.sheet.Graph().NodeCount()
}

// Dependents lists the formula cells that read addr directly.
func (e *Engine) Dependents(addr string) []string {
	return e.sheet.Graph().GetDirectDependents(spreadsheet.Normalize(addr))
}

// AffectedCells lists every formula cell whose value changes when addr
// changes.
func (e *Engine) AffectedCells(addr string) []string {
	return e.sheet.Graph().GetAffectedCells(spreadsheet.Normalize(addr))
}
