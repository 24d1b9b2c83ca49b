package solver

import (
	"math"

	"github.com/micromech/spectral/tensor"
)

// Status is the convergence predicate's verdict for one outer iteration.
type Status int

const (
	// Continue: not converged, iterate further.
	Continue Status = iota
	// Converged: all three error measures are within tolerance and the
	// minimum iteration count has passed.
	Converged
	// Diverged: the iteration budget is exhausted without convergence.
	Diverged
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "continue"
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	default:
		return "unknown"
	}
}

// CheckConvergence evaluates the three normalized error measures of the last
// residual evaluation. The compatibility and equilibrium errors are measured
// relative to the deviation of the loading target from identity; an
// undeformed target would divide by zero, so the raw errors are used in that
// limit. The stress error is bounded by the smaller of a relative and an
// absolute stress tolerance.
func (c *Context) CheckConvergence(it int) Status {
	den := c.Faim.Sub(tensor.I33()).Norm()
	errF := c.ErrF
	errP := c.ErrP
	if den > 0 {
		errF /= den
		errP /= den
	}
	sden := math.Min(c.Pav.MaxAbs()*c.Cfg.TolStressRel, c.Cfg.TolStressAbs)
	if sden <= 0 {
		sden = c.Cfg.TolStressAbs
	}

	converged := it > c.Cfg.ItMin &&
		errF/c.Cfg.TolF < 1 &&
		errP/c.Cfg.TolP < 1 &&
		c.ErrStress/sden < 1
	if converged {
		return Converged
	}
	if it > c.Cfg.ItMax {
		return Diverged
	}
	return Continue
}
