// Package solver chooses the decision variables of a schema that minimize
// its objective subject to its constraints. A strict stage enforces every
// constraint with SLSQP; when it cannot find a feasible point a relaxed
// stage minimizes a penalized objective with L-BFGS-B.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/vogtb/kinecalc/packages/engine"
	"github.com/vogtb/kinecalc/packages/schema"
	"github.com/vogtb/kinecalc/packages/spreadsheet"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kinecalc.solver")

var validate = validator.New()

// HistoryOutputs are recorded in every iteration besides the key outputs.
var HistoryOutputs = []string{"J76", "J77"}

// Stage names an optimizer operating mode.
type Stage string

const (
	StageStrict  Stage = "strict"
	StageRelaxed Stage = "relaxed"
)

// Settings tune both stages.
type Settings struct {
	// StrictTolerance is the largest relative violation the strict stage
	// accepts.
	StrictTolerance float64 `json:"strict_tolerance" yaml:"strict_tolerance" validate:"gt=0"`
	// RelaxedTolerance is the same for the relaxed stage.
	RelaxedTolerance float64 `json:"relaxed_tolerance" yaml:"relaxed_tolerance" validate:"gtefield=StrictTolerance"`
	// PenaltyWeight multiplies the squared violations in the relaxed stage.
	PenaltyWeight float64 `json:"penalty_weight" yaml:"penalty_weight" validate:"gt=0"`
	MaxIterations int     `json:"max_iterations" yaml:"max_iterations" validate:"min=1"`
	// Accuracy is the SLSQP convergence accuracy.
	Accuracy float64 `json:"accuracy" yaml:"accuracy" validate:"gt=0"`
}

// DefaultSettings returns the tolerances and limits the optimizer uses when
// none are given.
func DefaultSettings() Settings {
	return Settings{
		StrictTolerance:  SatisfiedThreshold,
		RelaxedTolerance: MarginalThreshold,
		PenaltyWeight:    1000,
		MaxIterations:    100,
		Accuracy:         1e-6,
	}
}

// Validate checks the settings' field constraints.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Optimizer) {
		o.metrics = m
	}
}

// WithSettings replaces DefaultSettings.
func WithSettings(s Settings) Option {
	return func(o *Optimizer) {
		o.settings = s
	}
}

// Optimizer solves the optimization problem of one schema. It holds no
// per-run state, so concurrent Optimize calls are safe.
type Optimizer struct {
	schema      *schema.Schema
	engine      *engine.Engine
	variables   []string
	constraints []schema.Constraint
	names       []string
	outputs     []string
	defaults    spreadsheet.Values

	settings Settings
	logger   *slog.Logger
	metrics  *Metrics
}

// New builds an optimizer over an engine compiled from the same schema.
func New(s *schema.Schema, e *engine.Engine, opts ...Option) (*Optimizer, error) {
	if s == nil || e == nil {
		return nil, errors.New("solver: schema and engine are required")
	}
	o := &Optimizer{
		schema:      s,
		engine:      e,
		constraints: slices.Clone(s.Solver.Constraints),
		defaults:    e.DefaultValues(),
		settings:    DefaultSettings(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.settings.Validate(); err != nil {
		return nil, err
	}
	if len(s.Solver.Variables) == 0 {
		return nil, errors.New("solver: schema declares no decision variables")
	}

	for _, v := range s.Solver.Variables {
		o.variables = append(o.variables, spreadsheet.Normalize(v))
	}
	for i, c := range o.constraints {
		o.names = append(o.names, ConstraintName(i+1, c))
	}
	o.outputs = append(slices.Clone(engine.KeyOutputCells), HistoryOutputs...)
	return o, nil
}

// Variables returns the normalized decision variables.
func (o *Optimizer) Variables() []string {
	return slices.Clone(o.variables)
}

// ConstraintNames returns the constraint labels in schema order.
func (o *Optimizer) ConstraintNames() []string {
	return slices.Clone(o.names)
}

// Settings returns the effective settings.
func (o *Optimizer) Settings() Settings {
	return o.settings
}

// Result is the outcome of Optimize. Failing to find a feasible point is a
// result with Success false, not an error.
type Result struct {
	RunID       string             `json:"run_id"`
	Success     bool               `json:"success"`
	Message     string             `json:"message"`
	Values      spreadsheet.Values `json:"values"`
	Objective   float64            `json:"objective"`
	Constraints []ConstraintStatus `json:"constraints"`
	Bounds      []Bound            `json:"bounds"`
	History     *History           `json:"-"`
	Stage       Stage              `json:"stage"`
}

// stageOutcome is what one stage hands back to Optimize.
type stageOutcome struct {
	stage         Stage
	chosen        *point
	success       bool
	status        string
	iterations    int
	bestIteration int
}

func (s *stageOutcome) message() string {
	if s.bestIteration > 0 {
		return fmt.Sprintf("%s (best at iteration %d)", s.status, s.bestIteration)
	}
	return s.status
}

// Optimize searches from the decision variables in values. values must be
// a complete input mapping; formula cells in it are ignored since every
// compute recomputes them. Bounds are resolved once from a baseline
// compute of values and held for the run.
func (o *Optimizer) Optimize(ctx context.Context, values map[string]float64) (*Result, error) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "solver.Optimize",
		trace.WithAttributes(attribute.String("solver.run_id", runID)),
	)
	defer span.End()

	res, err := o.optimize(ctx, runID, values)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "optimize failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("solver.stage", string(res.Stage)),
		attribute.Bool("solver.success", res.Success),
		attribute.Int("solver.iterations", res.History.Len()),
	)
	return res, nil
}

func (o *Optimizer) optimize(ctx context.Context, runID string, values map[string]float64) (*Result, error) {
	base := make(spreadsheet.Values, len(values))
	for addr, v := range values {
		addr = spreadsheet.Normalize(addr)
		if !o.engine.IsFormula(addr) {
			base[addr] = v
		}
	}

	baseline, err := o.engine.Compute(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("solver: baseline: %w", err)
	}

	p := &problem{
		opt:     o,
		ctx:     ctx,
		base:    base,
		history: NewHistory(o.variables, o.outputs, o.names),
	}
	if p.bounds, err = o.resolveBounds(base, baseline.Values); err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}
	start, err := p.startPoint(baseline.Values)
	if err != nil {
		return nil, fmt.Errorf("solver: start point: %w", err)
	}
	// Surface unresolvable references before any solver runs.
	if _, err := p.evaluate(start); err != nil {
		return nil, fmt.Errorf("solver: %w", err)
	}

	logger := o.logger.With(slog.String("run_id", runID))
	logger.Info("optimization started",
		slog.Any("variables", o.variables),
		slog.Any("start", start),
		slog.Any("bounds", p.bounds),
	)

	outcome, err := o.runStage(ctx, p, StageStrict, start)
	if err != nil {
		return nil, err
	}
	if !outcome.success {
		logger.Info("strict stage found no feasible point, relaxing",
			slog.String("message", outcome.message()))
		if outcome, err = o.runStage(ctx, p, StageRelaxed, start); err != nil {
			return nil, err
		}
	}

	chosen := outcome.chosen
	statuses := make([]ConstraintStatus, len(o.constraints))
	for k := range o.constraints {
		statuses[k] = ConstraintStatus{
			Name:      o.names[k],
			LHS:       chosen.lhs[k],
			RHS:       chosen.rhs[k],
			Violation: chosen.violations[k],
			Severity:  Classify(chosen.violations[k]),
		}
	}
	o.metrics.observeBest(chosen.objective)

	logger.Info("optimization finished",
		slog.String("stage", string(outcome.stage)),
		slog.Bool("success", outcome.success),
		slog.Float64("objective", chosen.objective),
		slog.Int("records", p.history.Len()),
		slog.Int("evaluations", p.evals),
	)

	return &Result{
		RunID:       runID,
		Success:     outcome.success,
		Message:     outcome.message(),
		Values:      chosen.inputs.Clone(),
		Objective:   chosen.objective,
		Constraints: statuses,
		Bounds:      slices.Clone(p.bounds),
		History:     p.history,
		Stage:       outcome.stage,
	}, nil
}

// runStage runs one stage inside its own span and accounts for it.
func (o *Optimizer) runStage(ctx context.Context, p *problem, stage Stage, start []float64) (*stageOutcome, error) {
	ctx, span := tracer.Start(ctx, "solver."+string(stage),
		trace.WithAttributes(attribute.String("solver.stage", string(stage))),
	)
	defer span.End()
	p.ctx = ctx

	var (
		outcome *stageOutcome
		err     error
	)
	switch stage {
	case StageStrict:
		outcome, err = p.runStrict(start)
	default:
		outcome, err = p.runRelaxed(start)
	}
	if err != nil {
		o.metrics.observeRun(stage, "error", 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage failed")
		return nil, fmt.Errorf("solver: %s stage: %w", stage, err)
	}

	result := "infeasible"
	if outcome.success {
		result = "success"
	}
	o.metrics.observeRun(stage, result, outcome.iterations)
	span.SetAttributes(
		attribute.Bool("solver.success", outcome.success),
		attribute.Int("solver.iterations", outcome.iterations),
		attribute.Float64("solver.objective", outcome.chosen.objective),
	)
	return outcome, nil
}
