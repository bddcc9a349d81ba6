package spreadsheet

import (
	"fmt"
	"math"
	"strings"
)

// builtinFunc is the shape every formula function shares.
type builtinFunc func(bf *BuiltInFunctions, args ...Primitive) (Primitive, error)

// BuiltInFunctions contains the formula function vocabulary. Lookups are
// case-insensitive.
type BuiltInFunctions struct {
	table map[string]builtinFunc
}

// NewDefaultBuiltInFunctions creates a BuiltInFunctions with the standard
// vocabulary
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	return &BuiltInFunctions{
		table: map[string]builtinFunc{
			"IF":   (*BuiltInFunctions).IF,
			"OR":   (*BuiltInFunctions).OR,
			"AND":  (*BuiltInFunctions).AND,
			"MAX":  (*BuiltInFunctions).MAX,
			"MIN":  (*BuiltInFunctions).MIN,
			"SUM":  (*BuiltInFunctions).SUM,
			"ABS":  (*BuiltInFunctions).ABS,
			"SQRT": (*BuiltInFunctions).SQRT,
			"EXP":  (*BuiltInFunctions).EXP,
			"COS":  (*BuiltInFunctions).COS,
			"SIN":  (*BuiltInFunctions).SIN,
			"TAN":  (*BuiltInFunctions).TAN,
			"ASIN": (*BuiltInFunctions).ASIN,
			"ACOS": (*BuiltInFunctions).ACOS,
			"ATAN": (*BuiltInFunctions).ATAN,
			"PI":   (*BuiltInFunctions).PI,
		},
	}
}

// Has reports whether name is part of the vocabulary.
func (bf *BuiltInFunctions) Has(name string) bool {
	_, ok := bf.table[strings.ToUpper(name)]
	return ok
}

// Call invokes a built-in function by name with the given arguments
func (bf *BuiltInFunctions) Call(name string, args ...Primitive) (Primitive, error) {
	fn, ok := bf.table[strings.ToUpper(name)]
	if !ok {
		return nil, NewSpreadsheetError(ErrorCodeName, fmt.Sprintf("Unknown function: %s", name))
	}
	return fn(bf, args...)
}

// IF selects between its second and third arguments. All three have
// already been evaluated by the time it runs.
func (bf *BuiltInFunctions) IF(args ...Primitive) (Primitive, error) {
	if len(args) != 3 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "IF requires exactly 3 arguments")
	}
	if _, isRange := args[0].(Range); isRange {
		return nil, NewSpreadsheetError(ErrorCodeValue, "IF condition must be a scalar")
	}
	if isTruthy(args[0]) {
		return args[1], nil
	}
	return args[2], nil
}

func (bf *BuiltInFunctions) AND(args ...Primitive) (Primitive, error) {
	nums, err := collectNumbers("AND", args)
	if err != nil {
		return nil, err
	}
	for _, num := range nums {
		if num == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (bf *BuiltInFunctions) OR(args ...Primitive) (Primitive, error) {
	nums, err := collectNumbers("OR", args)
	if err != nil {
		return nil, err
	}
	for _, num := range nums {
		if num != 0 {
			return true, nil
		}
	}
	return false, nil
}

func (bf *BuiltInFunctions) MAX(args ...Primitive) (Primitive, error) {
	nums, err := collectNumbers("MAX", args)
	if err != nil {
		return nil, err
	}
	max := math.Inf(-1)
	for _, num := range nums {
		if num > max {
			max = num
		}
	}
	return max, nil
}

func (bf *BuiltInFunctions) MIN(args ...Primitive) (Primitive, error) {
	nums, err := collectNumbers("MIN", args)
	if err != nil {
		return nil, err
	}
	min := math.Inf(1)
	for _, num := range nums {
		if num < min {
			min = num
		}
	}
	return min, nil
}

func (bf *BuiltInFunctions) SUM(args ...Primitive) (Primitive, error) {
	nums, err := collectNumbers("SUM", args)
	if err != nil {
		return nil, err
	}
	sum := 0.0
	for _, num := range nums {
		sum += num
	}
	return sum, nil
}

func (bf *BuiltInFunctions) ABS(args ...Primitive) (Primitive, error) {
	return unary("ABS", args, math.Abs)
}

func (bf *BuiltInFunctions) SQRT(args ...Primitive) (Primitive, error) {
	num, err := singleNumber("SQRT", args)
	if err != nil {
		return nil, err
	}
	if num < 0 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "SQRT requires a non-negative argument")
	}
	return math.Sqrt(num), nil
}

func (bf *BuiltInFunctions) EXP(args ...Primitive) (Primitive, error) {
	return unary("EXP", args, math.Exp)
}

func (bf *BuiltInFunctions) COS(args ...Primitive) (Primitive, error) {
	return unary("COS", args, math.Cos)
}

func (bf *BuiltInFunctions) SIN(args ...Primitive) (Primitive, error) {
	return unary("SIN", args, math.Sin)
}

func (bf *BuiltInFunctions) TAN(args ...Primitive) (Primitive, error) {
	return unary("TAN", args, math.Tan)
}

func (bf *BuiltInFunctions) ASIN(args ...Primitive) (Primitive, error) {
	num, err := singleNumber("ASIN", args)
	if err != nil {
		return nil, err
	}
	if num < -1 || num > 1 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "ASIN requires an argument between -1 and 1")
	}
	return math.Asin(num), nil
}

func (bf *BuiltInFunctions) ACOS(args ...Primitive) (Primitive, error) {
	num, err := singleNumber("ACOS", args)
	if err != nil {
		return nil, err
	}
	if num < -1 || num > 1 {
		return nil, NewSpreadsheetError(ErrorCodeNum, "ACOS requires an argument between -1 and 1")
	}
	return math.Acos(num), nil
}

func (bf *BuiltInFunctions) ATAN(args ...Primitive) (Primitive, error) {
	return unary("ATAN", args, math.Atan)
}

func (bf *BuiltInFunctions) PI(args ...Primitive) (Primitive, error) {
	if len(args) != 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, "PI takes no arguments")
	}
	return math.Pi, nil
}

// unary applies fn to exactly one scalar argument and rejects non-finite
// results.
func unary(name string, args []Primitive, fn func(float64) float64) (Primitive, error) {
	num, err := singleNumber(name, args)
	if err != nil {
		return nil, err
	}
	result := fn(num)
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return nil, NewSpreadsheetError(ErrorCodeNum, fmt.Sprintf("%s(%g) is not a finite number", name, num))
	}
	return result, nil
}

func singleNumber(name string, args []Primitive) (float64, error) {
	if len(args) != 1 {
		return 0, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("%s requires exactly 1 argument", name))
	}
	num, ok := toNumber(args[0])
	if !ok {
		return 0, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s requires a numeric argument", name))
	}
	return num, nil
}

// collectNumbers flattens scalar and range arguments in order. A range
// member without a value fails the whole call.
func collectNumbers(name string, args []Primitive) ([]float64, error) {
	if len(args) == 0 {
		return nil, NewSpreadsheetError(ErrorCodeNA, fmt.Sprintf("%s requires at least 1 argument", name))
	}
	nums := make([]float64, 0, len(args))
	for _, arg := range args {
		if r, ok := arg.(Range); ok {
			for value, err := range r.IterateValues() {
				if err != nil {
					return nil, err
				}
				nums = append(nums, value)
			}
			continue
		}
		num, ok := toNumber(arg)
		if !ok {
			return nil, NewSpreadsheetError(ErrorCodeValue, fmt.Sprintf("%s requires numeric arguments", name))
		}
		nums = append(nums, num)
	}
	return nums, nil
}

// toNumber converts value to number, returning ok=false if conversion fails
func toNumber(value Primitive) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// isTruthy checks if value is truthy
func isTruthy(value Primitive) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return false
	}
}
