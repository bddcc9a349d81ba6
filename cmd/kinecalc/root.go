package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vogtb/kinecalc/packages/engine"
	"github.com/vogtb/kinecalc/packages/schema"
	"github.com/vogtb/kinecalc/packages/solver"
	"github.com/vogtb/kinecalc/packages/telemetry"
)

const defaultConfigPath = "kinecalc.yaml"

// app carries the state shared by every subcommand for one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	// flags
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string
	schemaPath  string

	cfg      Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *solver.Metrics
	shutdown func(context.Context) error
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "kinecalc",
		Short: "Evaluate and optimize the loading-stand calculation",
		Long: `kinecalc evaluates a spreadsheet-style calculation schema and searches
for design variables that minimize its objective under its constraints.

Examples:
  kinecalc compute --set C7=1.3 --set J7=0.8
  kinecalc optimize --history history.csv
  kinecalc deps J204`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "",
		"Config file (default "+defaultConfigPath+" if present)")
	flags.StringVar(&a.logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "",
		"Log format: text, json")
	flags.StringVar(&a.metricsFile, "metrics-file", "",
		"Write Prometheus metrics to this file on exit")
	flags.StringVar(&a.schemaPath, "schema", "",
		"Schema file (JSON or YAML); defaults to the bundled dataset")

	root.AddCommand(
		a.computeCommand(),
		a.optimizeCommand(),
		a.profileCommand(),
		a.depsCommand(),
		a.orderCommand(),
		a.validateCommand(),
	)
	return root
}

// setup loads the config, applies flag overrides and installs logging,
// telemetry and metrics.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path, optional := a.configPath, false
	if path == "" {
		path, optional = defaultConfigPath, true
	}
	cfg, err := LoadConfig(path, optional)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.schemaPath != "" {
		cfg.Schema = a.schemaPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = newLogger(a.stderr, cfg.Log)
	slog.SetDefault(a.logger)

	a.registry = prometheus.NewRegistry()
	a.metrics = solver.NewMetrics(a.registry)

	tcfg := cfg.Telemetry
	tcfg.Registerer = a.registry
	tcfg.Writer = a.stderr
	shutdown, err := telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		return err
	}
	a.shutdown = shutdown
	return nil
}

// close flushes telemetry and writes the metrics file. It runs after the
// command whether or not the command failed.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	if a.metricsFile != "" && a.registry != nil {
		if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *app) loadSchema() (*schema.Schema, error) {
	if a.cfg.Schema == "" {
		return schema.Default()
	}
	return schema.Load(a.cfg.Schema)
}

func (a *app) loadEngine() (*engine.Engine, error) {
	s, err := a.loadSchema()
	if err != nil {
		return nil, err
	}
	return engine.New(s, engine.WithLogger(a.logger))
}

func (a *app) loadOptimizer() (*engine.Engine, *solver.Optimizer, error) {
	e, err := a.loadEngine()
	if err != nil {
		return nil, nil, err
	}
	opt, err := solver.New(e.Schema(), e,
		solver.WithLogger(a.logger),
		solver.WithMetrics(a.metrics),
		solver.WithSettings(a.cfg.Solver),
	)
	if err != nil {
		return nil, nil, err
	}
	return e, opt, nil
}

func newLogger(w io.Writer, cfg LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelWarn
	}
	return level
}

// run executes the CLI and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	root := a.rootCommand()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(context.WithoutCancel(ctx)); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
