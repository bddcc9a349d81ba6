package solver

import (
	"fmt"
	"math"
	"slices"

	"github.com/curioloop/optimizer/numdiff"
	"github.com/curioloop/optimizer/slsqp"
	"github.com/vogtb/kinecalc/packages/schema"
)

// jacobian caches the forward-difference Jacobian of the objective (row 0)
// and every constraint in solver sign convention (rows 1..m) at one x.
type jacobian struct {
	spec *numdiff.ApproxSpec
	x    []float64
	rows []float64
}

// row copies row k at x into g, differencing only when x moved.
func (j *jacobian) row(x []float64, k int, g []float64) {
	n := len(x)
	if j.x == nil || !slices.Equal(j.x, x) {
		if err := j.spec.Diff(slices.Clone(x), j.rows); err != nil {
			panic(fmt.Errorf("finite differences: %w", err))
		}
		j.x = slices.Clone(x)
	}
	copy(g, j.rows[k*n:(k+1)*n])
}

// runStrict minimizes the objective with every constraint enforced by
// SLSQP. Iterates are recorded when the solver asks for gradients, which
// happens once at the start and once per accepted step.
func (p *problem) runStrict(x0 []float64) (*stageOutcome, error) {
	o := p.opt
	n, m := len(x0), len(o.constraints)
	track := &tracker{tolerance: o.settings.StrictTolerance}

	values := func(x, y []float64) {
		pt := p.at(x)
		y[0] = pt.objective
		for k, c := range o.constraints {
			y[1+k] = slsqpValue(c.Type, pt.lhs[k], pt.rhs[k])
		}
	}
	jac := &jacobian{spec: p.differ(1+m, values), rows: make([]float64, (1+m)*n)}

	objective := func(x, g []float64) float64 {
		pt := p.at(x)
		if g != nil {
			jac.row(x, 0, g)
			rec := p.record(StageStrict, pt)
			track.offer(pt, rec.Iteration)
		}
		return pt.objective
	}

	var eq, neq []slsqp.Evaluation
	for k, c := range o.constraints {
		fn := func(x, g []float64) float64 {
			pt := p.at(x)
			if g != nil {
				jac.row(x, 1+k, g)
			}
			return slsqpValue(c.Type, pt.lhs[k], pt.rhs[k])
		}
		if c.Type == schema.RelationEQ {
			eq = append(eq, fn)
		} else {
			neq = append(neq, fn)
		}
	}

	bounds := make([]slsqp.Bound, n)
	for i, b := range p.bounds {
		bounds[i] = slsqp.Bound{Lower: finiteOrNaN(b.Lower), Upper: finiteOrNaN(b.Upper)}
	}

	problem := slsqp.Problem{
		N:       n,
		Object:  objective,
		EqCons:  eq,
		NeqCons: neq,
		Bounds:  bounds,
		Stop: slsqp.Termination{
			Accuracy:       o.settings.Accuracy,
			MaxIterations:  o.settings.MaxIterations,
			FEvalTolerance: math.NaN(),
			FDiffTolerance: math.NaN(),
			XDiffTolerance: math.NaN(),
		},
	}
	solver, err := problem.New()
	if err != nil {
		return nil, fmt.Errorf("slsqp: %w", err)
	}

	res := solver.Fit(x0, solver.Init())
	if p.err != nil {
		return nil, p.err
	}

	final, err := p.evaluate(res.X)
	if err != nil {
		return nil, err
	}
	chosen, bestIteration := track.choose(final)
	return &stageOutcome{
		stage:         StageStrict,
		chosen:        chosen,
		success:       chosen.maxViolation <= track.tolerance,
		status:        slsqpMessage(res.Status),
		iterations:    res.NumIter,
		bestIteration: bestIteration,
	}, nil
}

// slsqpMessage spells out the solver's exit mode.
func slsqpMessage(status any) string {
	switch status {
	case slsqp.OK:
		return "Optimization terminated successfully"
	case slsqp.SQPExceedMaxIter:
		return "Iteration limit reached"
	case slsqp.ConsIncompatible:
		return "Inequality constraints incompatible"
	case slsqp.SearchNotDescent:
		return "Positive directional derivative for linesearch"
	case slsqp.NNLSExceedMaxIter:
		return "Iteration limit reached in NNLS subproblem"
	case slsqp.LSISingularE:
		return "Singular matrix E in LSQ subproblem"
	case slsqp.LSEISingularC:
		return "Singular matrix C in LSQ subproblem"
	case slsqp.HFTIRankDefect:
		return "Rank-deficient equality constraint subproblem HFTI"
	case slsqp.BadArgument:
		return "Evaluation failed"
	}
	return fmt.Sprintf("SLSQP stopped with status %v", status)
}
