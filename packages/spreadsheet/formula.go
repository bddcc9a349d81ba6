package spreadsheet

import (
	"math"
	"sort"
	"strings"
)

var defaultFunctions = NewDefaultBuiltInFunctions()

// Formula is a parsed formula: its source text, the expression tree and the
// sorted, de-duplicated set of cells it reads. Every member of a range is a
// dependency, not just its corners.
type Formula struct {
	Source       string
	Root         ASTNode
	Dependencies []string
}

// Parse tokenizes and parses a formula. The leading '=' is optional and
// unknown functions are rejected here with #NAME?.
func Parse(formula string) (*Formula, error) {
	lexer := NewLexer(formula)
	tokens, errs := lexer.Tokenize()
	if len(errs) > 0 {
		return nil, newFormulaError(formula, NewSpreadsheetError(ErrorCodeValue, strings.Join(errs, "; ")))
	}

	root, err := NewParser(tokens, defaultFunctions).Parse()
	if err != nil {
		return nil, newFormulaError(formula, err)
	}

	return &Formula{
		Source:       formula,
		Root:         root,
		Dependencies: collectDependencies(root),
	}, nil
}

func collectDependencies(root ASTNode) []string {
	seen := make(map[string]struct{})
	Walk(root, func(node ASTNode) {
		switch n := node.(type) {
		case *CellRefNode:
			seen[n.Address] = struct{}{}
		case *RangeNode:
			for addr := range n.Bounds.Cells() {
				seen[addr.String()] = struct{}{}
			}
		}
	})
	deps := make([]string, 0, len(seen))
	for addr := range seen {
		deps = append(deps, addr)
	}
	sort.Strings(deps)
	return deps
}

// Evaluate computes the formula against a snapshot of known values. A
// boolean result is returned as 1 or 0. Every failure is a *FormulaError.
func (f *Formula) Evaluate(values Values) (float64, error) {
	result, err := f.Root.Eval(values)
	if err != nil {
		return 0, newFormulaError(f.Source, err)
	}

	num, ok := toNumber(result)
	if !ok {
		return 0, newFormulaError(f.Source, NewSpreadsheetError(ErrorCodeValue, "a range cannot be a formula result"))
	}
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return 0, newFormulaError(f.Source, NewSpreadsheetError(ErrorCodeNum, "result is not a finite number"))
	}
	return num, nil
}

// String renders the canonical form of the expression tree.
func (f *Formula) String() string {
	return "=" + f.Root.ToString()
}

// ASTKey is the canonical rendering of an AST. Two formulas with the same
// structure (ignoring whitespace, case and '$' markers) share a key.
type ASTKey string

// FormulaTable stores parsed formulas centrally. Identical formulas used by
// several cells are parsed once and shared. A table is filled once per
// sheet; a cell holds at most one formula.
type FormulaTable struct {
	astIndex map[ASTKey]uint32   // normalized AST -> formula ID
	formulas map[uint32]*Formula // formula ID -> parsed formula

	cellsUsingFormula map[uint32]map[string]struct{} // formula ID -> cells using it
	formulaAtCell     map[string]uint32              // cell -> formula ID (reverse index)

	nextID uint32
}

// NewFormulaTable creates a new formula table
func NewFormulaTable() *FormulaTable {
	return &FormulaTable{
		astIndex:          make(map[ASTKey]uint32),
		formulas:          make(map[uint32]*Formula),
		cellsUsingFormula: make(map[uint32]map[string]struct{}),
		formulaAtCell:     make(map[string]uint32),
		nextID:            1, // start at 1, reserve 0 for no formula
	}
}

func normalizeAST(ast ASTNode) ASTKey {
	if ast == nil {
		return ""
	}
	return ASTKey(ast.ToString())
}

// InternFormula stores f for cell, reusing an equivalent formula when one
// exists. Returns the formula ID.
func (ft *FormulaTable) InternFormula(f *Formula, cell string) uint32 {
	cell = Normalize(cell)
	key := normalizeAST(f.Root)

	id, exists := ft.astIndex[key]
	if !exists {
		id = ft.nextID
		ft.astIndex[key] = id
		ft.formulas[id] = f
		ft.cellsUsingFormula[id] = make(map[string]struct{})
		ft.nextID++
	}
	ft.cellsUsingFormula[id][cell] = struct{}{}
	ft.formulaAtCell[cell] = id
	return id
}

// Get retrieves a formula by ID
func (ft *FormulaTable) Get(id uint32) (*Formula, bool) {
	f, exists := ft.formulas[id]
	return f, exists
}

// FormulaAt returns the formula a cell uses.
func (ft *FormulaTable) FormulaAt(cell string) (*Formula, bool) {
	id, ok := ft.formulaAtCell[Normalize(cell)]
	if !ok {
		return nil, false
	}
	return ft.Get(id)
}

// GetCellsUsingFormula returns the cells sharing a formula, sorted.
func (ft *FormulaTable) GetCellsUsingFormula(formulaID uint32) []string {
	cells := make([]string, 0, len(ft.cellsUsingFormula[formulaID]))
	for cell := range ft.cellsUsingFormula[formulaID] {
		cells = append(cells, cell)
	}
	sort.Strings(cells)
	return cells
}

// SharedWith lists the other cells whose formula is structurally identical
// to cell's, sorted.
func (ft *FormulaTable) SharedWith(cell string) []string {
	cell = Normalize(cell)
	id, ok := ft.formulaAtCell[cell]
	if !ok {
		return nil
	}
	var out []string
	for _, other := range ft.GetCellsUsingFormula(id) {
		if other != cell {
			out = append(out, other)
		}
	}
	return out
}

// Count returns the number of distinct formulas
func (ft *FormulaTable) Count() int {
	return len(ft.formulas)
}
