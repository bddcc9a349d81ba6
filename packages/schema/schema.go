// Package schema defines the calculation schema: input cells with their
// defaults, formula cells and the optimizer block. A schema is loaded once
// and never mutated afterwards.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vogtb/kinecalc/packages/spreadsheet"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSchema is matched by every error returned from Validate.
var ErrInvalidSchema = errors.New("schema: invalid schema")

var validate = validator.New(validator.WithRequiredStructEnabled())

// InputCell is a user-settable quantity.
type InputCell struct {
	Cell        string  `json:"cell" yaml:"cell" validate:"required"`
	Name        string  `json:"name" yaml:"name" validate:"required"`
	Default     float64 `json:"default" yaml:"default"`
	Unit        string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// FormulaCell is a derived quantity.
type FormulaCell struct {
	Cell    string `json:"cell" yaml:"cell" validate:"required"`
	Formula string `json:"formula" yaml:"formula" validate:"required"`
}

// Relation kinds accepted in Constraint.Type.
const (
	RelationLE = "le"
	RelationGE = "ge"
	RelationEQ = "eq"
)

// Constraint relates two expressions. Each side is a literal number or a
// cell address.
type Constraint struct {
	Type string `json:"type" yaml:"type" validate:"required,oneof=le ge eq"`
	LHS  string `json:"lhs" yaml:"lhs" validate:"required"`
	RHS  string `json:"rhs" yaml:"rhs" validate:"required"`
}

// Symbol renders the relation as an operator.
func (c Constraint) Symbol() string {
	switch c.Type {
	case RelationLE:
		return "<="
	case RelationGE:
		return ">="
	}
	return "="
}

// Bound gives the box of one decision variable. Lower and Upper are
// expressions like constraint sides.
type Bound struct {
	Variable string `json:"variable" yaml:"variable" validate:"required"`
	Lower    string `json:"lower" yaml:"lower" validate:"required"`
	Upper    string `json:"upper" yaml:"upper" validate:"required"`
}

// Solver describes the optimization problem.
type Solver struct {
	Objective   string       `json:"objective" yaml:"objective" validate:"required"`
	Variables   []string     `json:"variables" yaml:"variables" validate:"len=4,dive,required"`
	Constraints []Constraint `json:"constraints" yaml:"constraints" validate:"dive"`
	Bounds      []Bound      `json:"bounds,omitempty" yaml:"bounds,omitempty" validate:"omitempty,dive"`
}

// Schema is the full problem definition.
type Schema struct {
	Version  string        `json:"version" yaml:"version"`
	Inputs   []InputCell   `json:"inputs" yaml:"inputs" validate:"required,min=1,dive"`
	Formulas []FormulaCell `json:"formulas" yaml:"formulas" validate:"dive"`
	Solver   Solver        `json:"solver" yaml:"solver"`
}

// Decode reads a schema document. A document whose first non-blank byte is
// '{' and that parses as JSON is decoded as JSON, where a repeated key
// takes its last value; anything else is decoded as YAML, which rejects
// repeated keys. The result is not validated.
func Decode(r io.Reader) (*Schema, error) {
	doc, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidSchema)
	}

	var s Schema
	if doc[0] == '{' {
		err := json.Unmarshal(doc, &s)
		var syntax *json.SyntaxError
		if err == nil {
			return &s, nil
		}
		if !errors.As(err, &syntax) {
			return nil, fmt.Errorf("decode schema: %w", err)
		}
		// YAML flow mapping
		s = Schema{}
	}
	if err := yaml.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return &s, nil
}

// Load reads, decodes and validates a schema file.
func Load(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema: %w", err)
	}
	defer f.Close()

	s, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks struct constraints first, then that every address is well
// formed, no cell is defined twice, and the solver block only names cells
// the schema knows. All problems are reported together.
func (s *Schema) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	var errs []error
	defined := make(map[string]string, len(s.Inputs)+len(s.Formulas))
	define := func(kind, cell string) {
		if _, _, err := spreadsheet.Split(cell); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			return
		}
		addr := spreadsheet.Normalize(cell)
		if prev, ok := defined[addr]; ok {
			errs = append(errs, fmt.Errorf("%s %s: already defined as %s", kind, addr, prev))
			return
		}
		defined[addr] = kind
	}
	for _, in := range s.Inputs {
		define("input", in.Cell)
	}
	for _, f := range s.Formulas {
		define("formula", f.Cell)
	}

	known := func(field, cell string) {
		if _, ok := defined[spreadsheet.Normalize(cell)]; !ok {
			errs = append(errs, fmt.Errorf("solver %s %q: not an input or formula cell", field, cell))
		}
	}
	expression := func(field, expr string) {
		if IsLiteral(expr) {
			return
		}
		known(field, expr)
	}

	known("objective", s.Solver.Objective)
	variables := make(map[string]struct{}, len(s.Solver.Variables))
	for _, v := range s.Solver.Variables {
		addr := spreadsheet.Normalize(v)
		if kind, ok := defined[addr]; !ok || kind != "input" {
			errs = append(errs, fmt.Errorf("solver variable %q: not an input cell", v))
		}
		if _, dup := variables[addr]; dup {
			errs = append(errs, fmt.Errorf("solver variable %q: listed twice", v))
		}
		variables[addr] = struct{}{}
	}
	for i, c := range s.Solver.Constraints {
		expression(fmt.Sprintf("constraint %d lhs", i+1), c.LHS)
		expression(fmt.Sprintf("constraint %d rhs", i+1), c.RHS)
	}
	for _, b := range s.Solver.Bounds {
		if _, ok := variables[spreadsheet.Normalize(b.Variable)]; !ok {
			errs = append(errs, fmt.Errorf("solver bound %q: not a decision variable", b.Variable))
		}
		expression("bound lower", b.Lower)
		expression("bound upper", b.Upper)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, errors.Join(errs...))
	}
	return nil
}

// IsLiteral reports whether a constraint or bound expression is a plain
// number rather than a cell reference.
func IsLiteral(expr string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(expr), 64)
	return err == nil
}

// DefaultValues maps every input cell to its declared default.
func (s *Schema) DefaultValues() spreadsheet.Values {
	values := make(spreadsheet.Values, len(s.Inputs))
	for _, in := range s.Inputs {
		values[spreadsheet.Normalize(in.Cell)] = in.Default
	}
	return values
}

// InputsByCell indexes inputs by normalized address.
func (s *Schema) InputsByCell() map[string]InputCell {
	m := make(map[string]InputCell, len(s.Inputs))
	for _, in := range s.Inputs {
		m[spreadsheet.Normalize(in.Cell)] = in
	}
	return m
}

// FormulasByCell indexes formulas by normalized address.
func (s *Schema) FormulasByCell() map[string]FormulaCell {
	m := make(map[string]FormulaCell, len(s.Formulas))
	for _, f := range s.Formulas {
		m[spreadsheet.Normalize(f.Cell)] = f
	}
	return m
}

// FormulaSources maps normalized address to formula text, the shape a
// spreadsheet.Sheet is compiled from.
func (s *Schema) FormulaSources() map[string]string {
	m := make(map[string]string, len(s.Formulas))
	for _, f := range s.Formulas {
		m[spreadsheet.Normalize(f.Cell)] = f.Formula
	}
	return m
}
