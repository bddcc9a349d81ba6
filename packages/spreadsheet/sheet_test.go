package spreadsheet

import (
	"errors"
	"math"
	"testing"
)

type SheetTestCase struct {
	t        *testing.T
	name     string
	runnable *RunnableSheet
	values   Values
	err      error
}

func NewSheetTestCase(t *testing.T, name string) *SheetTestCase {
	return &SheetTestCase{
		t:        t,
		name:     name,
		runnable: NewRunnableSheet(),
	}
}

func (tc *SheetTestCase) Set(address string, value float64) *SheetTestCase {
	tc.runnable.Set(address, value)
	return tc
}

func (tc *SheetTestCase) SetFormula(address, formula string) *SheetTestCase {
	tc.runnable.SetFormula(address, formula)
	return tc
}

func (tc *SheetTestCase) RunAndAssertNoError() *SheetTestCase {
	_, tc.values, tc.err = tc.runnable.Run()
	if tc.err != nil {
		tc.t.Errorf("%s: Calculate() failed: %v", tc.name, tc.err)
	}
	return tc
}

func (tc *SheetTestCase) Run() *SheetTestCase {
	_, tc.values, tc.err = tc.runnable.Run()
	return tc
}

func (tc *SheetTestCase) AssertCellEq(address string, expected float64) *SheetTestCase {
	if tc.err != nil {
		return tc
	}
	actual, ok := tc.values.Get(address)
	if !ok {
		tc.t.Errorf("%s: Cell %s has no value", tc.name, address)
		return tc
	}
	if math.Abs(actual-expected) > 1e-10 {
		tc.t.Errorf("%s: Cell %s = %v, want %v", tc.name, address, actual, expected)
	}
	return tc
}

func (tc *SheetTestCase) AssertErrCode(code ErrorCode) *SheetTestCase {
	if tc.err == nil {
		tc.t.Errorf("%s: Expected error %v, but got no error", tc.name, code)
		return tc
	}
	var fe *FormulaError
	if !errors.As(tc.err, &fe) {
		tc.t.Errorf("%s: Got error %v, want FormulaError with code %v", tc.name, tc.err, code)
		return tc
	}
	if fe.Code != code {
		tc.t.Errorf("%s: Got error code %v, want %v", tc.name, fe.Code, code)
	}
	return tc
}

func (tc *SheetTestCase) AssertErrIs(target error) *SheetTestCase {
	if !errors.Is(tc.err, target) {
		tc.t.Errorf("%s: Got error %v, want %v", tc.name, tc.err, target)
	}
	return tc
}

func (tc *SheetTestCase) AssertFailingCell(address string) *SheetTestCase {
	var ce *CellError
	if !errors.As(tc.err, &ce) {
		tc.t.Errorf("%s: Got error %v, want CellError", tc.name, tc.err)
		return tc
	}
	if ce.Address != address {
		tc.t.Errorf("%s: Failing cell %s, want %s", tc.name, ce.Address, address)
	}
	return tc
}

func (tc *SheetTestCase) End() {}

func TestLexingAndParsing(t *testing.T) {
	t.Run("ValidFormulas", func(t *testing.T) {
		NewSheetTestCase(t, "Basic arithmetic").
			SetFormula("A1", "=1+2").
			RunAndAssertNoError().
			AssertCellEq("A1", 3.0).
			End()

		NewSheetTestCase(t, "No formula marker").
			SetFormula("A1", "1+2").
			RunAndAssertNoError().
			AssertCellEq("A1", 3.0).
			End()

		NewSheetTestCase(t, "Cell reference").
			Set("A1", 10.0).
			SetFormula("A2", "=A1").
			RunAndAssertNoError().
			AssertCellEq("A2", 10.0).
			End()

		NewSheetTestCase(t, "Absolute reference").
			Set("A1", 10.0).
			SetFormula("A2", "=$A$1*2+A$1+$A1").
			RunAndAssertNoError().
			AssertCellEq("A2", 40.0).
			End()

		NewSheetTestCase(t, "Function call").
			Set("A1", 5.0).
			Set("A2", 10.0).
			SetFormula("A3", "=SUM(A1:A2)").
			RunAndAssertNoError().
			AssertCellEq("A3", 15.0).
			End()

		NewSheetTestCase(t, "Lowercase names").
			Set("A1", 5.0).
			Set("A2", 10.0).
			SetFormula("a3", "=sum(a1:a2)").
			RunAndAssertNoError().
			AssertCellEq("A3", 15.0).
			End()

		NewSheetTestCase(t, "Semicolon separator").
			Set("A1", 5.0).
			Set("A2", 10.0).
			SetFormula("A3", "=MAX(A1;A2)").
			RunAndAssertNoError().
			AssertCellEq("A3", 10.0).
			End()

		NewSheetTestCase(t, "Boolean literal").
			SetFormula("A1", "=TRUE").
			SetFormula("A2", "=FALSE").
			RunAndAssertNoError().
			AssertCellEq("A1", 1.0).
			AssertCellEq("A2", 0.0).
			End()
	})

	t.Run("InvalidFormulas", func(t *testing.T) {
		NewSheetTestCase(t, "Unknown function").
			SetFormula("A1", "=FOO(1)").
			Run().
			AssertErrCode(ErrorCodeName).
			AssertErrIs(ErrFormula).
			End()

		NewSheetTestCase(t, "Unknown name").
			SetFormula("A1", "=hello+1").
			Run().
			AssertErrCode(ErrorCodeName).
			End()

		NewSheetTestCase(t, "Dangling operator").
			SetFormula("A1", "=1+").
			Run().
			AssertErrCode(ErrorCodeValue).
			End()
	})
}

func TestBinaryOperators(t *testing.T) {
	t.Run("Arithmetic", func(t *testing.T) {
		cases := []struct {
			name     string
			formula  string
			expected float64
		}{
			{"Addition", "=2+3", 5},
			{"Subtraction", "=10-4", 6},
			{"Multiplication", "=3*4", 12},
			{"Division", "=15/3", 5},
			{"Power", "=2^3", 8},
			{"Power alternate spelling", "=2**3", 8},
			{"Power is right associative", "=2^3^2", 512},
			{"Negation binds looser than power", "=-2^2", -4},
			{"Signed exponent", "=2^-1", 0.5},
			{"Precedence", "=2+3*4", 14},
			{"Parentheses", "=(2+3)*4", 20},
			{"Percent", "=50%", 0.5},
			{"Booleans coerce", "=TRUE+TRUE", 2},
		}
		for _, c := range cases {
			NewSheetTestCase(t, c.name).
				SetFormula("A1", c.formula).
				RunAndAssertNoError().
				AssertCellEq("A1", c.expected).
				End()
		}

		NewSheetTestCase(t, "Division by zero").
			SetFormula("A1", "=1/0").
			Run().
			AssertErrCode(ErrorCodeDiv0).
			AssertFailingCell("A1").
			End()

		NewSheetTestCase(t, "Negative base with fractional power").
			SetFormula("A1", "=(-8)^0.5").
			Run().
			AssertErrCode(ErrorCodeNum).
			End()
	})

	t.Run("Comparison", func(t *testing.T) {
		cases := []struct {
			name     string
			formula  string
			expected float64
		}{
			{"Equal", "=5=5", 1},
			{"Double equal", "=5==5", 1},
			{"Not equal", "=5<>4", 1},
			{"Bang not equal", "=5!=5", 0},
			{"Less equal", "=3<=3", 1},
			{"Greater equal", "=2>=3", 0},
			{"Less", "=2<3", 1},
			{"Greater", "=3>4", 0},
			{"Comparison binds loosest", "=1+1=2", 1},
		}
		for _, c := range cases {
			NewSheetTestCase(t, c.name).
				SetFormula("A1", c.formula).
				RunAndAssertNoError().
				AssertCellEq("A1", c.expected).
				End()
		}
	})
}

func TestLogicalFunctions(t *testing.T) {
	NewSheetTestCase(t, "IF true branch").
		Set("A1", 10).
		SetFormula("A2", "=IF(A1>5,1,2)").
		RunAndAssertNoError().
		AssertCellEq("A2", 1).
		End()

	NewSheetTestCase(t, "IF false branch").
		Set("A1", 0).
		SetFormula("A2", "=IF(A1,1,2)").
		RunAndAssertNoError().
		AssertCellEq("A2", 2).
		End()

	NewSheetTestCase(t, "IF evaluates both branches").
		SetFormula("A1", "=IF(1,2,1/0)").
		Run().
		AssertErrCode(ErrorCodeDiv0).
		End()

	NewSheetTestCase(t, "IF arity").
		SetFormula("A1", "=IF(1,2)").
		Run().
		AssertErrCode(ErrorCodeNA).
		End()

	NewSheetTestCase(t, "AND and OR").
		Set("A1", 1).
		Set("A2", 2).
		SetFormula("B1", "=AND(1,0)").
		SetFormula("B2", "=OR(0,0,3)").
		SetFormula("B3", "=AND(A1:A2)").
		SetFormula("B4", "=OR(FALSE,A1<0)").
		RunAndAssertNoError().
		AssertCellEq("B1", 0).
		AssertCellEq("B2", 1).
		AssertCellEq("B3", 1).
		AssertCellEq("B4", 0).
		End()

	NewSheetTestCase(t, "Nested IF over logical").
		Set("C25", 1.75).
		Set("C27", 2.0).
		Set("J140", 2.3).
		Set("J141", 2.0).
		SetFormula("L141", "=IF(AND(J140>=C27,J141>=C25),5,IF(OR(J140>=C27,J141>=C25),3,1))").
		RunAndAssertNoError().
		AssertCellEq("L141", 5).
		End()
}

func TestAggregationFunctions(t *testing.T) {
	NewSheetTestCase(t, "Range and scalars mix").
		Set("A1", 5).
		Set("A2", 10).
		Set("B1", -1).
		Set("B2", 3).
		SetFormula("C1", "=MAX(A1:A2,20)").
		SetFormula("C2", "=MIN(A1:B2)").
		SetFormula("C3", "=SUM(A1:B2)").
		SetFormula("C4", "=SUM(B2:A1)").
		SetFormula("C5", "=SUM(A1 : A2)/2").
		RunAndAssertNoError().
		AssertCellEq("C1", 20).
		AssertCellEq("C2", -1).
		AssertCellEq("C3", 17).
		AssertCellEq("C4", 17).
		AssertCellEq("C5", 7.5).
		End()

	NewSheetTestCase(t, "Range member missing").
		Set("A1", 5).
		Set("A2", 10).
		SetFormula("B1", "=SUM(A1:A3)").
		Run().
		AssertErrIs(ErrMissingValue).
		AssertFailingCell("B1").
		End()

	NewSheetTestCase(t, "No arguments").
		SetFormula("A1", "=MAX()").
		Run().
		AssertErrCode(ErrorCodeNA).
		End()
}

func TestMathFunctions(t *testing.T) {
	cases := []struct {
		name     string
		formula  string
		expected float64
	}{
		{"ABS", "=ABS(-3)", 3},
		{"SQRT", "=SQRT(16)", 4},
		{"EXP", "=EXP(0)", 1},
		{"COS", "=COS(0)", 1},
		{"SIN", "=SIN(0)", 0},
		{"TAN", "=TAN(0)", 0},
		{"ASIN", "=ASIN(1)", math.Pi / 2},
		{"ACOS", "=ACOS(1)", 0},
		{"ATAN", "=ATAN(1)", math.Pi / 4},
		{"PI", "=PI()", math.Pi},
		{"Radians", "=COS(PI())", -1},
	}
	for _, c := range cases {
		NewSheetTestCase(t, c.name).
			SetFormula("A1", c.formula).
			RunAndAssertNoError().
			AssertCellEq("A1", c.expected).
			End()
	}

	errCases := []struct {
		name    string
		formula string
		code    ErrorCode
	}{
		{"SQRT of negative", "=SQRT(-1)", ErrorCodeNum},
		{"ACOS out of domain", "=ACOS(2)", ErrorCodeNum},
		{"ASIN out of domain", "=ASIN(-1.5)", ErrorCodeNum},
		{"EXP overflow", "=EXP(1000)", ErrorCodeNum},
		{"SQRT arity", "=SQRT(1,2)", ErrorCodeNA},
		{"PI arity", "=PI(1)", ErrorCodeNA},
		{"Range as scalar", "=ABS(A1:A2)", ErrorCodeValue},
	}
	for _, c := range errCases {
		NewSheetTestCase(t, c.name).
			Set("A1", 1).
			Set("A2", 2).
			SetFormula("B1", c.formula).
			Run().
			AssertErrCode(c.code).
			End()
	}
}

func TestMissingValues(t *testing.T) {
	NewSheetTestCase(t, "Missing input").
		SetFormula("A1", "=Z9+1").
		Run().
		AssertErrIs(ErrMissingValue).
		AssertErrCode(ErrorCodeRef).
		AssertFailingCell("A1").
		End()
}

func TestUpdateAndRecalculation(t *testing.T) {
	NewSheetTestCase(t, "Chain evaluates in dependency order").
		SetFormula("A3", "=A2+1").
		SetFormula("A2", "=A1+1").
		Set("A1", 1).
		RunAndAssertNoError().
		AssertCellEq("A3", 3).
		End()

	tc := NewSheetTestCase(t, "Inputs changed between runs").
		Set("A1", 1).
		SetFormula("B1", "=A1*10").
		RunAndAssertNoError().
		AssertCellEq("B1", 10)
	tc.Set("A1", 2).
		RunAndAssertNoError().
		AssertCellEq("B1", 20).
		End()
}

func TestCircularReferences(t *testing.T) {
	NewSheetTestCase(t, "Two cell cycle").
		SetFormula("A1", "=B1").
		SetFormula("B1", "=A1").
		Run().
		AssertErrIs(ErrCycle).
		End()

	NewSheetTestCase(t, "Self reference").
		SetFormula("A1", "=A1+1").
		Run().
		AssertErrIs(ErrCycle).
		End()
}

func TestSheetCalculateDoesNotMutateInput(t *testing.T) {
	sheet, err := NewSheet(map[string]string{"B1": "=A1*2"})
	if err != nil {
		t.Fatalf("NewSheet() failed: %v", err)
	}
	in := Values{"A1": 3}
	out, err := sheet.Calculate(in)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	if _, ok := in["B1"]; ok {
		t.Errorf("Calculate() wrote into its input")
	}
	if out["B1"] != 6 {
		t.Errorf("B1 = %v, want 6", out["B1"])
	}
	if got := sheet.Inputs(); len(got) != 1 || got[0] != "A1" {
		t.Errorf("Inputs() = %v, want [A1]", got)
	}
}

func TestSheetDuplicateCell(t *testing.T) {
	_, err := NewSheet(map[string]string{"a1": "=1", "A1": "=2"})
	if err == nil {
		t.Fatal("NewSheet() accepted the same cell twice")
	}
	var ce *CellError
	if !errors.As(err, &ce) || ce.Address != "A1" {
		t.Errorf("got %v, want CellError for A1", err)
	}
}
