package solver

import (
	"fmt"
	"io"
	"slices"

	"github.com/curioloop/optimizer/lbfgsb"
)

// lbfgsbCorrections is the number of BFGS correction pairs kept.
const lbfgsbCorrections = 10

// penalized folds the constraints into the objective as a quadratic
// penalty on relative violation.
func (p *problem) penalized(pt *point) float64 {
	sum := 0.0
	for _, v := range pt.violations {
		sum += v * v
	}
	return pt.objective + p.opt.settings.PenaltyWeight*sum
}

// runRelaxed minimizes the penalized objective with L-BFGS-B under the box
// bounds only. Every evaluation is recorded.
func (p *problem) runRelaxed(x0 []float64) (*stageOutcome, error) {
	o := p.opt
	n := len(x0)
	track := &tracker{tolerance: o.settings.RelaxedTolerance}

	grad := p.differ(1, func(x, y []float64) {
		y[0] = p.penalized(p.at(x))
	})

	eval := func(x, g []float64) float64 {
		pt := p.at(x)
		rec := p.record(StageRelaxed, pt)
		track.offer(pt, rec.Iteration)
		f := p.penalized(pt)
		if g != nil {
			if err := grad.Diff(slices.Clone(x), g); err != nil {
				panic(fmt.Errorf("finite differences: %w", err))
			}
		}
		return f
	}

	bounds := make([]lbfgsb.Bound, n)
	for i, b := range p.bounds {
		bounds[i] = lbfgsb.Bound{Lower: finiteOrNaN(b.Lower), Upper: finiteOrNaN(b.Upper)}
	}

	problem := lbfgsb.Problem{
		N:      n,
		M:      lbfgsbCorrections,
		Eval:   eval,
		Bounds: bounds,
		Stop: lbfgsb.Termination{
			MaxIterations:     o.settings.MaxIterations,
			EpsAccuracyFactor: 1e7,
			ProjGradTolerance: 1e-5,
		},
	}
	solver, err := problem.New(&lbfgsb.Logger{Level: lbfgsb.LogNoop, Msg: io.Discard, Out: io.Discard})
	if err != nil {
		return nil, fmt.Errorf("lbfgsb: %w", err)
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
		stage:         StageRelaxed,
		chosen:        chosen,
		success:       chosen.maxViolation <= track.tolerance,
		status:        lbfgsbMessage(res.Status),
		iterations:    res.NumIter,
		bestIteration: bestIteration,
	}, nil
}

// lbfgsbMessage spells out the solver's exit task.
func lbfgsbMessage(status any) string {
	switch status {
	case lbfgsb.ConvGradProgNorm:
		return "CONVERGENCE: NORM_OF_PROJECTED_GRADIENT_<=_PGTOL"
	case lbfgsb.ConvEnoughAccuracy:
		return "CONVERGENCE: REL_REDUCTION_OF_F_<=_FACTR*EPSMCH"
	case lbfgsb.StopAbnormalSearch:
		return "ABNORMAL_TERMINATION_IN_LNSRCH"
	case lbfgsb.HaltEvalPanic:
		return "STOP: CALLBACK REQUESTED HALT"
	case lbfgsb.OverIterLimit:
		return "STOP: TOTAL NO. of ITERATIONS REACHED LIMIT"
	case lbfgsb.OverEvalLimit:
		return "STOP: TOTAL NO. of f AND g EVALUATIONS EXCEEDS LIMIT"
	case lbfgsb.OverTimeLimit:
		return "STOP: CPU EXCEEDING THE TIME LIMIT"
	case lbfgsb.OverGradThresh:
		return "STOP: THE PROJECTED GRADIENT IS SUFFICIENTLY SMALL"
	}
	return fmt.Sprintf("L-BFGS-B stopped with status %v", status)
}
