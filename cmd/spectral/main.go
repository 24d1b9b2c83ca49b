// Command spectral runs a load case through the augmented-Lagrangian spectral
// solver with the bundled linear-elastic material.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/micromech/spectral/constitutive"
	"github.com/micromech/spectral/grid"
	"github.com/micromech/spectral/solver"
)

var (
	flagRestartFrom string
	flagRestartDir  string
	flagCutbacks    int
	flagVerbose     bool
)

func main() {
	root := &cobra.Command{
		Use:   "spectral",
		Short: "FFT-based micromechanical equilibrium solver",
	}
	run := &cobra.Command{
		Use:   "run <loadcase.yaml>",
		Short: "Run a load case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadCase(args[0])
		},
	}
	run.Flags().StringVar(&flagRestartFrom, "restart-from", "", "directory with restart records to resume from")
	run.Flags().StringVar(&flagRestartDir, "restart-dir", "", "directory to write restart records to")
	run.Flags().IntVar(&flagCutbacks, "max-cutbacks", 3, "time-step halvings before a diverged increment is fatal")
	run.Flags().BoolVar(&flagVerbose, "verbose", false, "per-iteration residual logging")
	root.AddCommand(run)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runLoadCase(path string) error {
	if flagVerbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	lc, err := solver.LoadCaseFromFile(path)
	if err != nil {
		return err
	}
	g, err := grid.NewGrid(lc.Grid.Resolution, lc.Grid.Size)
	if err != nil {
		return err
	}
	cref, err := lc.Stiffness()
	if err != nil {
		return err
	}
	resp := constitutive.NewLinearElastic(cref)
	if resp.Scale, err = lc.ScaleField(g); err != nil {
		return err
	}

	var sc *solver.Context
	if flagRestartFrom != "" {
		store, err := solver.NewDirStore(flagRestartFrom)
		if err != nil {
			return err
		}
		if sc, err = solver.RestoreContext(g, lc.Solver, resp, store); err != nil {
			return err
		}
		logrus.WithField("dir", flagRestartFrom).Info("restored state from restart records")
	} else {
		if sc, err = solver.NewContext(g, lc.Solver, resp, cref); err != nil {
			return err
		}
	}

	var out *solver.DirStore
	if flagRestartDir != "" {
		if out, err = solver.NewDirStore(flagRestartDir); err != nil {
			return err
		}
	}

	outer := solver.FixedPoint{}
	inc := 0
	for li, entry := range lc.Increments {
		bc, err := entry.BoundaryCondition()
		if err != nil {
			return err
		}
		dt := entry.Time / float64(entry.Steps)
		for step := 0; step < entry.Steps; step++ {
			inc++
			if err := runIncrement(sc, outer, bc, dt, inc); err != nil {
				return fmt.Errorf("load entry %d, increment %d: %w", li+1, inc, err)
			}
			if out != nil {
				if err := sc.WriteRestart(out); err != nil {
					return err
				}
			}
		}
	}
	logrus.WithField("increments", inc).Info("load case complete")
	return nil
}

// runIncrement solves one increment, retrying with a halved time step when
// the iteration diverges.
func runIncrement(sc *solver.Context, outer solver.OuterSolver, bc solver.BoundaryCondition, dt float64, inc int) error {
	remaining := dt
	sub := dt
	cutbacks := 0
	for remaining > 0 {
		if sub > remaining {
			sub = remaining
		}
		snap := sc.Snapshot()
		if err := sc.BeginIncrement(bc, sub); err != nil {
			return err
		}
		rep, err := outer.Solve(context.Background(), sc)
		if err != nil {
			if !errors.Is(err, solver.ErrDiverged) {
				return err
			}
			cutbacks++
			if cutbacks > flagCutbacks {
				logrus.WithFields(logrus.Fields{
					"increment":  inc,
					"iterations": rep.Iterations,
					"err_f":      rep.ErrF,
					"err_p":      rep.ErrP,
					"err_stress": rep.ErrStress,
				}).Error("increment failed after cutbacks")
				return err
			}
			sc.Restore(snap)
			sub /= 2
			logrus.WithFields(logrus.Fields{
				"increment": inc,
				"dt":        sub,
				"cutback":   cutbacks,
			}).Warn("iteration diverged, retrying with smaller step")
			continue
		}
		sc.FinishIncrement()
		remaining -= sub
		logrus.WithFields(logrus.Fields{
			"increment":  inc,
			"iterations": rep.Iterations,
			"err_f":      rep.ErrF,
			"err_p":      rep.ErrP,
			"err_stress": rep.ErrStress,
		}).Info("increment converged")
	}
	return nil
}
