package spreadsheet

import (
	"errors"
	"fmt"
	"sort"
)

// CellError names the formula cell whose evaluation failed.
type CellError struct {
	Address string
	Err     error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("cell %s: %v", e.Address, e.Err)
}

func (e *CellError) Unwrap() error {
	return e.Err
}

// Sheet is a compiled set of formula cells: every formula parsed once, the
// dependency graph built and the evaluation order fixed. It holds no
// per-calculation state, so a single Sheet can serve concurrent Calculate
// calls.
type Sheet struct {
	formulas *FormulaTable
	graph    *DependencyGraph
	order    []string
}

// NewSheet compiles formula cells keyed by address. Parse failures are
// reported per cell and joined; a cycle fails with *CycleError.
func NewSheet(formulas map[string]string) (*Sheet, error) {
	table := NewFormulaTable()
	graph := NewDependencyGraph()

	cells := make([]string, 0, len(formulas))
	for cell := range formulas {
		cells = append(cells, cell)
	}
	sort.Strings(cells)

	var errs []error
	for _, cell := range cells {
		addr := Normalize(cell)
		if _, _, err := Split(addr); err != nil {
			errs = append(errs, err)
			continue
		}
		if graph.IsFormula(addr) {
			errs = append(errs, &CellError{Address: addr, Err: errors.New("duplicate formula cell")})
			continue
		}
		f, err := Parse(formulas[cell])
		if err != nil {
			errs = append(errs, &CellError{Address: addr, Err: err})
			continue
		}
		table.InternFormula(f, addr)
		graph.AddFormulaCell(addr, f.Dependencies...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	order, err := graph.TopologicalSort()
	if err != nil {
		return nil, err
	}

	return &Sheet{formulas: table, graph: graph, order: order}, nil
}

// Calculate evaluates every formula cell in order over a copy of values and
// returns the completed snapshot. Each result is visible to the cells after
// it. The first failure aborts the pass with a *CellError and no partial
// snapshot.
func (s *Sheet) Calculate(values Values) (Values, error) {
	data := NewValues(values)
	for _, cell := range s.order {
		f, _ := s.formulas.FormulaAt(cell)
		result, err := f.Evaluate(data)
		if err != nil {
			return nil, &CellError{Address: cell, Err: err}
		}
		data[cell] = result
	}
	return data, nil
}

// Order returns the evaluation order.
func (s *Sheet) Order() []string {
	return append([]string(nil), s.order...)
}

// Formula returns the compiled formula of a cell.
func (s *Sheet) Formula(addr string) (*Formula, bool) {
	return s.formulas.FormulaAt(addr)
}

// Graph exposes the dependency graph for inspection.
func (s *Sheet) Graph() *DependencyGraph {
	return s.graph
}

// Formulas exposes the shared formula table.
func (s *Sheet) Formulas() *FormulaTable {
	return s.formulas
}

// Inputs lists every cell that is read but not computed, sorted. These are
// the cells a caller must supply.
func (s *Sheet) Inputs() []string {
	var inputs []string
	for addr, node := range s.graph.nodes {
		if !node.IsFormula {
			inputs = append(inputs, addr)
		}
	}
	sort.Strings(inputs)
	return inputs
}

// RunnableSheet provides a chainable interface for assembling and
// calculating a sheet. Errors are tracked internally, once one occurs the
// remaining steps are no-ops.
type RunnableSheet struct {
	formulas map[string]string
	values   Values
	sheet    *Sheet
	result   Values
	err      error
}

// NewRunnableSheet creates an empty RunnableSheet.
func NewRunnableSheet() *RunnableSheet {
	return &RunnableSheet{
		formulas: make(map[string]string),
		values:   make(Values),
	}
}

// Set sets an input value (chainable)
func (r *RunnableSheet) Set(address string, value float64) *RunnableSheet {
	if r.err != nil {
		return r
	}
	if _, _, err := Split(address); err != nil {
		r.err = err
		return r
	}
	r.values[Normalize(address)] = value
	return r
}

// SetFormula sets a formula cell (chainable)
func (r *RunnableSheet) SetFormula(address, formula string) *RunnableSheet {
	if r.err != nil {
		return r
	}
	r.formulas[Normalize(address)] = formula
	r.sheet = nil
	return r
}

// Calculate compiles if needed and recalculates all formulas (chainable)
func (r *RunnableSheet) Calculate() *RunnableSheet {
	if r.err != nil {
		return r
	}
	if r.sheet == nil {
		r.sheet, r.err = NewSheet(r.formulas)
		if r.err != nil {
			return r
		}
	}
	r.result, r.err = r.sheet.Calculate(r.values)
	return r
}

// Run executes a final calculation and returns the compiled sheet, the
// calculated values and any error
func (r *RunnableSheet) Run() (*Sheet, Values, error) {
	r.Calculate()
	if r.err != nil {
		return nil, nil, r.err
	}
	return r.sheet, r.result, nil
}
