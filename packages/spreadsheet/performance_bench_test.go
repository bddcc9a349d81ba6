package spreadsheet

import (
	"fmt"
	"testing"
)

func mustSheet(b *testing.B, formulas map[string]string) *Sheet {
	b.Helper()
	s, err := NewSheet(formulas)
	if err != nil {
		b.Fatalf("NewSheet() failed: %v", err)
	}
	return s
}

func BenchmarkFormulaDependencyChain(b *testing.B) {
	formulas := make(map[string]string)
	for i := 2; i <= 100; i++ {
		formulas[fmt.Sprintf("A%d", i)] = fmt.Sprintf("=A%d+1", i-1)
	}
	s := mustSheet(b, formulas)
	values := Values{"A1": 1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Calculate(values)
	}
}

func BenchmarkWideDependencyFanOut(b *testing.B) {
	formulas := make(map[string]string)
	for i := 2; i <= 500; i++ {
		formulas[fmt.Sprintf("B%d", i)] = "=A1*2"
	}
	s := mustSheet(b, formulas)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Calculate(Values{"A1": float64(i)})
	}
}

func BenchmarkLargeRangeSUM(b *testing.B) {
	values := make(Values)
	for i := 1; i <= 1000; i++ {
		values[fmt.Sprintf("A%d", i)] = float64(i)
	}
	s := mustSheet(b, map[string]string{"B1": "=SUM(A1:A1000)"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Calculate(values)
	}
}

func BenchmarkComplexNestedFormulas(b *testing.B) {
	values := make(Values)
	for i := 1; i <= 20; i++ {
		values[fmt.Sprintf("A%d", i)] = float64(i)
		values[fmt.Sprintf("B%d", i)] = float64(i * 2)
	}
	s := mustSheet(b, map[string]string{
		"C1": "=IF(SUM(A1:A20)/20>10, SUM(B1:B20), MAX(A1:A20))",
		"D1": "=SQRT(C1)*PI()",
		"E1": "=IF(D1>100, MIN(A1:A20), MIN(B1:B20))",
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Calculate(values)
	}
}

func BenchmarkCascadingUpdates(b *testing.B) {
	formulas := make(map[string]string)
	values := make(Values)
	for row := 1; row <= 50; row++ {
		for col := 1; col <= 10; col++ {
			addr := fmt.Sprintf("%s%d", ColumnToLetters(col), row)
			if col == 1 {
				values[addr] = float64(row)
			} else {
				formulas[addr] = fmt.Sprintf("=%s%d*2", ColumnToLetters(col-1), row)
			}
		}
	}
	s := mustSheet(b, formulas)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		values["A1"] = float64(i % 100)
		s.Calculate(values)
	}
}

func BenchmarkCircularReferenceDetection(b *testing.B) {
	formulas := map[string]string{
		"A1": "=B1+C1",
		"B1": "=C1+D1",
		"C1": "=D1+E1",
		"D1": "=E1+F1",
		"E1": "=F1+G1",
		"F1": "=G1+H1",
		"G1": "=H1+A1",
		"H1": "=A1",
	}
	for i := 0; i < b.N; i++ {
		NewSheet(formulas)
	}
}

func BenchmarkConditionalLogic(b *testing.B) {
	formulas := make(map[string]string)
	values := make(Values)
	for i := 1; i <= 200; i++ {
		values[fmt.Sprintf("A%d", i)] = float64(i)
		formulas[fmt.Sprintf("B%d", i)] = fmt.Sprintf(`=IF(A%d>100, A%d*2, A%d/2)`, i, i, i)
		formulas[fmt.Sprintf("C%d", i)] = fmt.Sprintf(`=AND(A%d>50, A%d<150)`, i, i)
		formulas[fmt.Sprintf("D%d", i)] = fmt.Sprintf(`=OR(A%d<25, A%d>175)`, i, i)
	}
	s := mustSheet(b, formulas)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Calculate(values)
	}
}

func BenchmarkGridPropagation(b *testing.B) {
	formulas := make(map[string]string)
	grid := 20
	for row := 1; row <= grid; row++ {
		for col := 1; col <= grid; col++ {
			addr := fmt.Sprintf("%s%d", ColumnToLetters(col), row)
			switch {
			case row == 1 && col == 1:
				// input
			case row == 1:
				formulas[addr] = fmt.Sprintf("=%s%d+1", ColumnToLetters(col-1), row)
			case col == 1:
				formulas[addr] = fmt.Sprintf("=%s%d+1", ColumnToLetters(col), row-1)
			default:
				formulas[addr] = fmt.Sprintf("=%s%d+%s%d", ColumnToLetters(col-1), row, ColumnToLetters(col), row-1)
			}
		}
	}
	s := mustSheet(b, formulas)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Calculate(Values{"A1": float64(i % 100)})
	}
}

func BenchmarkParse(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Parse("=IF(AND(J140>=C27,J141>=C25),5,IF(OR(J140>=C27,J141>=C25),3,1))")
	}
}
