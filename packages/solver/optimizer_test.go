package solver

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogtb/kinecalc/packages/engine"
	"github.com/vogtb/kinecalc/packages/schema"
)

// quadraticSchema pulls four variables toward (1, 2, 3, 4) while A1+A2 is
// capped at 2, so the optimum is (0.5, 1.5, 3, 4) with objective 0.5.
func quadraticSchema() *schema.Schema {
	s := &schema.Schema{
		Version: "test",
		Inputs: []schema.InputCell{
			{Cell: "A1", Name: "a", Default: 2},
			{Cell: "A2", Name: "b", Default: 2},
			{Cell: "A3", Name: "c", Default: 2},
			{Cell: "A4", Name: "d", Default: 2},
			{Cell: "A5", Name: "cap", Default: 2},
		},
		Formulas: []schema.FormulaCell{
			{Cell: "B1", Formula: "=(A1-1)^2+(A2-2)^2+(A3-3)^2+(A4-4)^2"},
			{Cell: "B2", Formula: "=A1+A2"},
		},
		Solver: schema.Solver{
			Objective: "B1",
			Variables: []string{"A1", "A2", "A3", "A4"},
			Constraints: []schema.Constraint{
				{Type: "le", LHS: "B2", RHS: "A5"},
			},
		},
	}
	for _, v := range s.Solver.Variables {
		s.Solver.Bounds = append(s.Solver.Bounds, schema.Bound{Variable: v, Lower: "0", Upper: "10"})
	}
	return s
}

func newOptimizer(t testing.TB, s *schema.Schema, opts ...Option) (*Optimizer, *engine.Engine) {
	t.Helper()
	e, err := engine.New(s)
	require.NoError(t, err)
	o, err := New(s, e, opts...)
	require.NoError(t, err)
	return o, e
}

func TestOptimizeQuadratic(t *testing.T) {
	s := quadraticSchema()
	o, e := newOptimizer(t, s)

	res, err := o.Optimize(context.Background(), e.DefaultValues())
	require.NoError(t, err)

	assert.True(t, res.Success, res.Message)
	assert.Equal(t, StageStrict, res.Stage)
	assert.NotEmpty(t, res.RunID)
	assert.InDelta(t, 0.5, res.Values["A1"], 1e-3)
	assert.InDelta(t, 1.5, res.Values["A2"], 1e-3)
	assert.InDelta(t, 3.0, res.Values["A3"], 1e-3)
	assert.InDelta(t, 4.0, res.Values["A4"], 1e-3)
	assert.InDelta(t, 0.5, res.Objective, 1e-3)
	assert.Equal(t, 2.0, res.Values["A5"])

	require.Len(t, res.Constraints, 1)
	assert.Equal(t, "C1: B2 le A5", res.Constraints[0].Name)
	assert.Equal(t, SeveritySatisfied, res.Constraints[0].Severity)
	assert.Equal(t, []Bound{
		{Variable: "A1", Lower: 0, Upper: 10},
		{Variable: "A2", Lower: 0, Upper: 10},
		{Variable: "A3", Lower: 0, Upper: 10},
		{Variable: "A4", Lower: 0, Upper: 10},
	}, res.Bounds)

	records := res.History.Records()
	require.NotEmpty(t, records)
	for i, rec := range records {
		assert.Equal(t, i+1, rec.Iteration)
		assert.Equal(t, StageStrict, rec.Stage)
		assert.Len(t, rec.Variables, 4)
		assert.Contains(t, rec.Outputs, "J76")
	}
	// The start point is the first record.
	assert.Equal(t, 2.0, records[0].Variables["A1"])
}

func TestOptimizeObjectiveMatchesRecompute(t *testing.T) {
	s, err := schema.Default()
	require.NoError(t, err)
	o, e := newOptimizer(t, s)

	res, err := o.Optimize(context.Background(), e.DefaultValues())
	require.NoError(t, err)

	again, err := e.Compute(context.Background(), res.Values)
	require.NoError(t, err)
	assert.Equal(t, res.Objective, again.Values["J204"])
}

func TestOptimizeDefaultDataset(t *testing.T) {
	s, err := schema.Default()
	require.NoError(t, err)
	o, e := newOptimizer(t, s)

	res, err := o.Optimize(context.Background(), e.DefaultValues())
	require.NoError(t, err)

	assert.Len(t, res.Constraints, len(s.Solver.Constraints))
	assert.GreaterOrEqual(t, res.History.Len(), 1)

	// The defaults are feasible and the start point is always recorded,
	// so the strict stage can only improve on an objective of 5.
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, StageStrict, res.Stage)
	assert.LessOrEqual(t, res.Objective, 5.0+1e-9)
	for _, c := range res.Constraints {
		assert.LessOrEqual(t, c.Violation, SatisfiedThreshold, c.Name)
	}

	want := map[string][2]float64{
		"C7":  {1, 1.5},
		"J7":  {0.375, 1.125},
		"C9":  {0.25, 0.75},
		"J94": {0.3, 0.8},
	}
	for _, b := range res.Bounds {
		assert.InDelta(t, want[b.Variable][0], b.Lower, 1e-12, b.Variable)
		assert.InDelta(t, want[b.Variable][1], b.Upper, 1e-12, b.Variable)
		v := res.Values[b.Variable]
		assert.True(t, v >= b.Lower && v <= b.Upper, "%s=%v outside bounds", b.Variable, v)
	}
}

func TestOptimizeFallsBackToRelaxed(t *testing.T) {
	s, err := schema.Default()
	require.NoError(t, err)
	o, e := newOptimizer(t, s)

	// No point inside the bounds lifts the hook to 2.85 m without
	// overloading the boom.
	values := e.InputValues(map[string]float64{"C27": 2.85})
	res, err := o.Optimize(context.Background(), values)
	require.NoError(t, err)

	assert.Equal(t, StageRelaxed, res.Stage)
	assert.Len(t, res.Constraints, 6)

	maxViolation := 0.0
	for _, c := range res.Constraints {
		maxViolation = math.Max(maxViolation, c.Violation)
	}
	assert.Equal(t, maxViolation <= o.Settings().RelaxedTolerance, res.Success)

	var strict, relaxed int
	for i, rec := range res.History.Records() {
		assert.Equal(t, i+1, rec.Iteration)
		switch rec.Stage {
		case StageStrict:
			assert.Zero(t, relaxed, "strict record after relaxed ones")
			strict++
		case StageRelaxed:
			relaxed++
		}
	}
	assert.Positive(t, strict)
	assert.Positive(t, relaxed)
}

func TestOptimizeSwapsInvertedBounds(t *testing.T) {
	s := quadraticSchema()
	s.Solver.Bounds[0] = schema.Bound{Variable: "A1", Lower: "10", Upper: "0"}
	o, e := newOptimizer(t, s)

	res, err := o.Optimize(context.Background(), e.DefaultValues())
	require.NoError(t, err)
	assert.Equal(t, Bound{Variable: "A1", Lower: 0, Upper: 10}, res.Bounds[0])
}

func TestOptimizeClipsStartPoint(t *testing.T) {
	s := quadraticSchema()
	s.Solver.Bounds[2] = schema.Bound{Variable: "A3", Lower: "5", Upper: "6"}
	o, e := newOptimizer(t, s)

	res, err := o.Optimize(context.Background(), e.DefaultValues())
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.History.Records()[0].Variables["A3"])
	assert.InDelta(t, 5.0, res.Values["A3"], 1e-6)
}

func TestOptimizeIgnoresStaleFormulaValues(t *testing.T) {
	s := quadraticSchema()
	o, e := newOptimizer(t, s)

	values := e.DefaultValues()
	values["B2"] = 1000
	res, err := o.Optimize(context.Background(), values)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotContains(t, res.Values, "B2")
}

func TestOptimizeUnresolvedReference(t *testing.T) {
	s := quadraticSchema()
	s.Solver.Constraints[0].RHS = "Z99"
	o, e := newOptimizer(t, s)

	_, err := o.Optimize(context.Background(), e.DefaultValues())
	require.ErrorIs(t, err, ErrUnresolvedReference)
}

func TestOptimizeUnresolvedBound(t *testing.T) {
	s := quadraticSchema()
	s.Solver.Bounds[1].Upper = "Q1"
	o, e := newOptimizer(t, s)

	_, err := o.Optimize(context.Background(), e.DefaultValues())
	require.ErrorIs(t, err, ErrUnresolvedReference)
	assert.Contains(t, err.Error(), "upper bound of A2")
}

func TestOptimizeCanceled(t *testing.T) {
	o, e := newOptimizer(t, quadraticSchema())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Optimize(ctx, e.DefaultValues())
	require.ErrorIs(t, err, context.Canceled)
}

func TestOptimizeMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	o, e := newOptimizer(t, quadraticSchema(), WithMetrics(m))

	_, err := o.Optimize(context.Background(), e.DefaultValues())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("strict", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("relaxed", "success")))
	assert.Positive(t, testutil.ToFloat64(m.EvaluationsTotal))
	assert.InDelta(t, 0.5, testutil.ToFloat64(m.BestObjective), 1e-3)
	assert.Equal(t, 1, testutil.CollectAndCount(m.Iterations))
}

func TestSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	bad := DefaultSettings()
	bad.RelaxedTolerance = bad.StrictTolerance / 2
	require.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	bad = DefaultSettings()
	bad.MaxIterations = 0
	require.ErrorIs(t, bad.Validate(), ErrInvalidSettings)

	s := quadraticSchema()
	e, err := engine.New(s)
	require.NoError(t, err)
	_, err = New(s, e, WithSettings(Settings{}))
	require.ErrorIs(t, err, ErrInvalidSettings)
}

func TestNewRequiresVariables(t *testing.T) {
	s := quadraticSchema()
	e, err := engine.New(s)
	require.NoError(t, err)
	s.Solver.Variables = nil

	_, err = New(s, e)
	require.Error(t, err)
	_, err = New(nil, e)
	require.Error(t, err)
}

func TestProfile(t *testing.T) {
	s, err := schema.Default()
	require.NoError(t, err)
	o, e := newOptimizer(t, s)

	series, err := o.Profile(context.Background(), e.DefaultValues(), 10, 5)
	require.NoError(t, err)
	require.Len(t, series, 4)

	// J204 = 2*(C7+J7) + (C9+J94), so each sweep is a straight line.
	slopes := map[string]float64{"C7": 2 * 1.25, "J7": 2 * 0.75, "C9": 0.5, "J94": 0.5}
	for _, ser := range series {
		assert.Equal(t, []float64{-10, -5, 0, 5, 10}, ser.Deltas)
		require.Len(t, ser.Objective, 5)
		for j, delta := range ser.Deltas {
			want := 5.0 + slopes[ser.Variable]*delta/100
			assert.InDelta(t, want, ser.Objective[j], 1e-9, "%s %+g%%", ser.Variable, delta)
		}
	}

	_, err = o.Profile(context.Background(), e.DefaultValues(), 10, 1)
	require.Error(t, err)

	_, err = o.Profile(context.Background(), map[string]float64{"C7": 1}, 10, 5)
	require.ErrorIs(t, err, ErrUnresolvedReference)
}
