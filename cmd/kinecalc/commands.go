package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vogtb/kinecalc/packages/engine"
	"github.com/vogtb/kinecalc/packages/spreadsheet"
)

// inputs merges --set assignments over the schema defaults.
func inputs(e *engine.Engine, set []string) (spreadsheet.Values, error) {
	overrides, err := parseAssignments(set)
	if err != nil {
		return nil, err
	}
	return e.InputValues(overrides), nil
}

func (a *app) computeCommand() *cobra.Command {
	var (
		set []string
		all bool
	)
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Evaluate every formula and print the key outputs and table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.loadEngine()
			if err != nil {
				return err
			}
			values, err := inputs(e, set)
			if err != nil {
				return err
			}
			res, err := e.Compute(cmd.Context(), values)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), newComputeJSON(res, all))
		},
	}
	cmd.Flags().StringArrayVar(&set, "set", nil, "Override an input, CELL=VALUE (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Include every computed cell")
	return cmd
}

func (a *app) optimizeCommand() *cobra.Command {
	var (
		set           []string
		historyPath   string
		maxIterations int
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search for design variables that minimize the objective",
		Long: `Search for the decision variables that minimize the objective subject to
the schema constraints. A strict constrained solve runs first; when it cannot
satisfy every constraint a penalized solve with a looser tolerance follows.

An unsuccessful search is reported in the result, not as an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if maxIterations > 0 {
				a.cfg.Solver.MaxIterations = maxIterations
			}
			e, opt, err := a.loadOptimizer()
			if err != nil {
				return err
			}
			values, err := inputs(e, set)
			if err != nil {
				return err
			}
			res, err := opt.Optimize(cmd.Context(), values)
			if err != nil {
				return err
			}
			if historyPath != "" {
				if err := writeHistoryCSV(historyPath, res.History); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), newOptimizeJSON(res, opt.Variables()))
		},
	}
	cmd.Flags().StringArrayVar(&set, "set", nil, "Override an input, CELL=VALUE (repeatable)")
	cmd.Flags().StringVar(&historyPath, "history", "", "Write the iteration history as CSV")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0,
		"Iteration limit per stage (default from config)")
	return cmd
}

func (a *app) profileCommand() *cobra.Command {
	var (
		set     []string
		percent float64
		points  int
	)
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Sweep each decision variable and report the objective",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, opt, err := a.loadOptimizer()
			if err != nil {
				return err
			}
			values, err := inputs(e, set)
			if err != nil {
				return err
			}
			series, err := opt.Profile(cmd.Context(), values, percent, points)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), newProfileJSON(series))
		},
	}
	cmd.Flags().StringArrayVar(&set, "set", nil, "Override an input, CELL=VALUE (repeatable)")
	cmd.Flags().Float64Var(&percent, "percent", 10, "Sweep half-width in percent of each value")
	cmd.Flags().IntVar(&points, "points", 41, "Steps per variable")
	return cmd
}

func (a *app) depsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deps CELL",
		Short: "Show what a cell is computed from and what reads it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := spreadsheet.ParseAddress(args[0]); err != nil {
				return err
			}
			e, err := a.loadEngine()
			if err != nil {
				return err
			}
			addr := spreadsheet.Normalize(args[0])
			w := cmd.OutOrStdout()

			if f, ok := e.Formula(addr); ok {
				fmt.Fprintf(w, "%s = %s\n", addr, f.String())
			} else if _, ok := e.Schema().InputsByCell()[addr]; ok {
				fmt.Fprintf(w, "%s (input)\n", addr)
			} else {
				return fmt.Errorf("cell %s is not defined by the schema", addr)
			}
			fmt.Fprintf(w, "reads:      %s\n", list(e.Precedents(addr)))
			fmt.Fprintf(w, "depends on: %s\n", list(e.DependencyChain(addr)))
			fmt.Fprintf(w, "read by:    %s\n", list(e.Dependents(addr)))
			fmt.Fprintf(w, "affects:    %s\n", list(e.AffectedCells(addr)))
			fmt.Fprintf(w, "same as:    %s\n", list(e.SharedFormula(addr)))
			return nil
		},
	}
}

func (a *app) orderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print the formula evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.loadEngine()
			if err != nil {
				return err
			}
			for _, addr := range e.Order() {
				fmt.Fprintln(cmd.OutOrStdout(), addr)
			}
			return nil
		},
	}
}

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check a schema file and compile its formulas",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.cfg.Schema = args[0]
			}
			e, err := a.loadEngine()
			if err != nil {
				return err
			}
			s := e.Schema()
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d inputs, %d formulas, %d cells, %d constraints\n",
				len(s.Inputs), len(e.Order()), e.CellCount(), len(s.Solver.Constraints))
			return nil
		},
	}
}

func list(addrs []string) string {
	if len(addrs) == 0 {
		return "-"
	}
	return strings.Join(addrs, " ")
}
