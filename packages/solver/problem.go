package solver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/curioloop/optimizer/numdiff"
	"github.com/vogtb/kinecalc/packages/engine"
	"github.com/vogtb/kinecalc/packages/spreadsheet"
)

// point is one fully evaluated iterate.
type point struct {
	x            []float64
	inputs       spreadsheet.Values
	result       *engine.Result
	objective    float64
	lhs, rhs     []float64
	violations   []float64
	maxViolation float64
}

// problem is the mutable state of one Optimize call. It is not safe for
// concurrent use; the solvers call back sequentially.
type problem struct {
	opt     *Optimizer
	ctx     context.Context
	base    spreadsheet.Values
	bounds  []Bound
	history *History

	last  *point
	evals int
	err   error
}

// evaluate computes the sheet at x and every quantity derived from it. The
// most recent point is cached since the solvers ask for the objective and
// each constraint at the same x separately.
func (p *problem) evaluate(x []float64) (*point, error) {
	if p.last != nil && slices.Equal(p.last.x, x) {
		return p.last, nil
	}
	if err := p.ctx.Err(); err != nil {
		return nil, err
	}

	o := p.opt
	inputs := p.base.Clone()
	for i, variable := range o.variables {
		inputs[variable] = x[i]
	}

	res, err := o.engine.Compute(p.ctx, inputs)
	p.evals++
	o.metrics.observeEvaluation()
	if err != nil {
		return nil, err
	}

	objective, err := Resolve(o.schema.Solver.Objective, inputs, res.Values, o.defaults)
	if err != nil {
		return nil, fmt.Errorf("objective: %w", err)
	}

	n := len(o.constraints)
	pt := &point{
		x:          slices.Clone(x),
		inputs:     inputs,
		result:     res,
		objective:  objective,
		lhs:        make([]float64, n),
		rhs:        make([]float64, n),
		violations: make([]float64, n),
	}
	for k, c := range o.constraints {
		if pt.lhs[k], err = Resolve(c.LHS, inputs, res.Values, o.defaults); err != nil {
			return nil, fmt.Errorf("%s: %w", o.names[k], err)
		}
		if pt.rhs[k], err = Resolve(c.RHS, inputs, res.Values, o.defaults); err != nil {
			return nil, fmt.Errorf("%s: %w", o.names[k], err)
		}
		pt.violations[k] = Violation(c.Type, pt.lhs[k], pt.rhs[k])
		pt.maxViolation = math.Max(pt.maxViolation, pt.violations[k])
	}

	p.last = pt
	return pt, nil
}

// at is evaluate for use inside solver callbacks. Both solvers recover
// panics from callbacks and stop with an evaluation-failure status, so the
// first error is kept and raised as a panic.
func (p *problem) at(x []float64) *point {
	pt, err := p.evaluate(x)
	if err != nil {
		if p.err == nil {
			p.err = err
		}
		panic(err)
	}
	return pt
}

// record appends pt to the history.
func (p *problem) record(stage Stage, pt *point) IterationRecord {
	o := p.opt
	rec := IterationRecord{
		Stage:      stage,
		Variables:  make(map[string]float64, len(o.variables)),
		Objective:  pt.objective,
		Outputs:    make(map[string]float64, len(o.outputs)),
		Violations: make(map[string]float64, len(o.names)),
	}
	for i, variable := range o.variables {
		rec.Variables[variable] = pt.x[i]
	}
	for _, out := range o.outputs {
		rec.Outputs[out] = pt.result.Values[out]
	}
	for k, name := range o.names {
		rec.Violations[name] = pt.violations[k]
	}
	rec = p.history.Add(rec)

	o.logger.Debug("iteration",
		slog.Int("iteration", rec.Iteration),
		slog.String("stage", string(stage)),
		slog.Float64("objective", pt.objective),
		slog.Float64("max_violation", pt.maxViolation),
	)
	return rec
}

// startPoint reads the variables from the base mapping, falling back to
// the baseline compute and defaults, and clips them into the bounds.
func (p *problem) startPoint(baseline spreadsheet.Values) ([]float64, error) {
	x := make([]float64, len(p.opt.variables))
	for i, variable := range p.opt.variables {
		v, err := Resolve(variable, p.base, baseline, p.opt.defaults)
		if err != nil {
			return nil, err
		}
		x[i] = p.bounds[i].Clip(v)
	}
	return x, nil
}

// differ builds a forward-difference approximation of fn over the
// problem's box. fn writes m values for the x it is given.
func (p *problem) differ(m int, fn func(x, y []float64)) *numdiff.ApproxSpec {
	bounds := make([]numdiff.Bound, len(p.bounds))
	for i, b := range p.bounds {
		bounds[i] = numdiff.Bound{b.Lower, b.Upper}
	}
	return &numdiff.ApproxSpec{
		N:         len(p.bounds),
		M:         m,
		Object:    fn,
		Method:    numdiff.Forward,
		Bounds:    bounds,
		NotChkBnd: true,
	}
}

// tracker remembers the best point within tolerance, by objective.
type tracker struct {
	tolerance float64
	best      *point
	iteration int
}

func (t *tracker) offer(pt *point, iteration int) {
	if pt.maxViolation > t.tolerance {
		return
	}
	if t.best == nil || pt.objective < t.best.objective {
		t.best = pt
		t.iteration = iteration
	}
}

// choose settles a stage: the solver's final point is a candidate like any
// other, and the best feasible point wins when there is one.
func (t *tracker) choose(final *point) (chosen *point, bestIteration int) {
	t.offer(final, 0)
	if t.best == nil {
		return final, 0
	}
	return t.best, t.iteration
}
