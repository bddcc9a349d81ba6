package solver

import (
	"context"
	"fmt"

	"github.com/vogtb/kinecalc/packages/spreadsheet"
	"golang.org/x/sync/errgroup"
)

// ProfileSeries is the objective along a one-variable sweep.
type ProfileSeries struct {
	Variable  string    `json:"variable"`
	Deltas    []float64 `json:"deltas"`
	Objective []float64 `json:"objective"`
}

// SweepDeltas spreads points percentages evenly over [-percent, percent].
// With an even count the grid follows the same integer step and stops
// short of +percent.
func SweepDeltas(percent float64, points int) []float64 {
	half := points / 2
	deltas := make([]float64, points)
	for i := range deltas {
		deltas[i] = float64(i-half) / float64(half) * percent
	}
	return deltas
}

// Profile varies each decision variable alone by up to ±percent of its
// value in values and reports the objective at every step. Variables are
// swept concurrently; values must be a complete input mapping.
func (o *Optimizer) Profile(ctx context.Context, values map[string]float64, percent float64, points int) ([]ProfileSeries, error) {
	if points < 2 {
		return nil, fmt.Errorf("solver: profile needs at least 2 points, got %d", points)
	}
	base := spreadsheet.NewValues(values)
	deltas := SweepDeltas(percent, points)
	series := make([]ProfileSeries, len(o.variables))

	for _, variable := range o.variables {
		if _, ok := base[variable]; !ok {
			return nil, &UnresolvedReferenceError{Expression: variable}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, variable := range o.variables {
		center := base[variable]
		g.Go(func() error {
			ys := make([]float64, len(deltas))
			for j, delta := range deltas {
				current := base.Clone()
				current[variable] = center * (1 + delta/100)
				res, err := o.engine.Compute(gctx, current)
				if err != nil {
					return fmt.Errorf("profile %s at %+g%%: %w", variable, delta, err)
				}
				if ys[j], err = Resolve(o.schema.Solver.Objective, current, res.Values, o.defaults); err != nil {
					return err
				}
			}
			series[i] = ProfileSeries{Variable: variable, Deltas: deltas, Objective: ys}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return series, nil
}
