package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// ErrDiverged reports an increment whose inner iteration did not converge.
// The application layer may retry the increment with a smaller time step; the
// solver never retries internally.
var ErrDiverged = errors.New("solver: iteration diverged")

// Report summarizes one outer solve for diagnostics: which error measure
// blocked convergence is read directly off the three errors.
type Report struct {
	Iterations int
	ErrF       float64
	ErrP       float64
	ErrStress  float64
	Converged  bool
}

// OuterSolver drives the residual function to convergence. The bundled
// FixedPoint is sufficient for the augmented-Lagrangian map; Newton-Krylov or
// other globalized schemes plug in through the same interface.
type OuterSolver interface {
	Solve(ctx context.Context, sc *Context) (Report, error)
}

// FixedPoint iterates x <- x - residual(x) until the convergence predicate
// accepts or the iteration budget runs out.
type FixedPoint struct{}

// Solve runs the fixed-point iteration for the current increment.
func (FixedPoint) Solve(ctx context.Context, sc *Context) (Report, error) {
	n := sc.Grid.N() * UnknownsPerPoint
	x := make([]float64, n)
	r := make([]float64, n)
	sc.PackUnknowns(x)

	var rep Report
	for it := 1; ; it++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := sc.EvaluateResidual(x, r); err != nil {
			rep.Iterations = it
			rep.ErrF, rep.ErrP, rep.ErrStress = sc.ErrF, sc.ErrP, sc.ErrStress
			return rep, fmt.Errorf("%w: %v", ErrDiverged, err)
		}
		rep = Report{
			Iterations: it,
			ErrF:       sc.ErrF,
			ErrP:       sc.ErrP,
			ErrStress:  sc.ErrStress,
		}
		log.WithFields(logrus.Fields{
			"it":         it,
			"err_f":      sc.ErrF,
			"err_p":      sc.ErrP,
			"err_stress": sc.ErrStress,
		}).Debug("residual evaluated")

		switch sc.CheckConvergence(it) {
		case Converged:
			rep.Converged = true
			return rep, nil
		case Diverged:
			log.WithFields(logrus.Fields{
				"it":         it,
				"err_f":      sc.ErrF,
				"err_p":      sc.ErrP,
				"err_stress": sc.ErrStress,
			}).Error("iteration budget exhausted without convergence")
			return rep, ErrDiverged
		}
		floats.Sub(x, r)
	}
}
