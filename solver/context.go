package solver

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/micromech/spectral/constitutive"
	"github.com/micromech/spectral/gamma"
	"github.com/micromech/spectral/grid"
	"github.com/micromech/spectral/spectral"
	"github.com/micromech/spectral/tensor"
)

var log = logrus.StandardLogger()

// UnknownsPerPoint is the width of the outer solver's unknown vector per grid
// point: the 9 row-major components of F followed by the 9 of F_lambda. The
// layout is fixed for the life of the solve and validated once at startup.
const UnknownsPerPoint = 18

// Context owns the full state of one augmented-Lagrangian solve: the
// per-point fields, the global loading target, the reference material and the
// precomputed convolution operator. It is built once, driven through load
// increments by the application, and handed to an outer nonlinear solver for
// the inner iterations.
type Context struct {
	Grid *grid.Grid
	Cfg  Config
	Eng  *spectral.Engine
	Gam  *gamma.Operator
	Resp constitutive.Responder

	// Fwd extrapolates the per-point fields into a new increment's guess.
	// The bundled extrapolator mirrors the winding rule used for Faim.
	Fwd Forwarder

	F              *grid.Field
	Flambda        *grid.Field
	FLastInc       *grid.Field
	FlambdaLastInc *grid.Field
	Coords         *grid.Field

	Faim        tensor.T33
	FaimLastInc tensor.T33
	Pav         tensor.T33

	// Cscale/Sscale are frozen at initialization (or restart) and define the
	// gamma operator and the driving fields. C follows the homogenized
	// tangent per increment when Cfg.UpdateReference is set.
	Cscale tensor.T3333
	Sscale tensor.T3333
	C      tensor.T3333

	// ErrF, ErrP, ErrStress are the three error measures of the last residual
	// evaluation, consumed by CheckConvergence.
	ErrF      float64
	ErrP      float64
	ErrStress float64

	bc          BoundaryCondition
	smasked     tensor.T3333
	tangent     tensor.T3333
	tau         *grid.Field
	dt          float64
	dtPrev      float64
	forwardNext bool
	incs        int
}

// NewContext builds a fresh solve on grid g with reference stiffness cref.
// All fields start at identity. A singular reference stiffness is fatal here:
// without S_scale there is no valid reference material.
func NewContext(g *grid.Grid, cfg Config, resp constitutive.Responder, cref tensor.T3333) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	eng, err := spectral.NewEngine()
	if err != nil {
		return nil, err
	}
	sscale, err := cref.Inverse()
	if err != nil {
		return nil, fmt.Errorf("solver: reference stiffness not invertible: %w", err)
	}
	gam := gamma.NewOperator(g, eng)
	if _, err := gam.Update(cref); err != nil {
		return nil, fmt.Errorf("solver: building gamma operator: %w", err)
	}

	c := &Context{
		Grid:           g,
		Cfg:            cfg,
		Eng:            eng,
		Gam:            gam,
		Resp:           resp,
		Fwd:            Extrapolator{},
		F:              grid.NewField(g, 9),
		Flambda:        grid.NewField(g, 9),
		FLastInc:       grid.NewField(g, 9),
		FlambdaLastInc: grid.NewField(g, 9),
		Faim:           tensor.I33(),
		FaimLastInc:    tensor.I33(),
		Cscale:         cref,
		Sscale:         sscale,
		C:              cref,
		tangent:        cref,
		tau:            grid.NewField(g, 9),
	}
	c.F.FillIdentity()
	c.Flambda.FillIdentity()
	c.FLastInc.FillIdentity()
	c.FlambdaLastInc.FillIdentity()
	return c, nil
}

// BeginIncrement winds the solve forward into a new load increment: the
// average target and the per-point fields are extrapolated from the previous
// increment, coordinates are rebuilt for the oracle, and the per-increment
// reference data are refreshed.
func (c *Context) BeginIncrement(bc BoundaryCondition, dt float64) error {
	if err := bc.Validate(); err != nil {
		return err
	}
	if dt <= 0 {
		return fmt.Errorf("solver: increment time step must be positive, got %g", dt)
	}
	c.bc = bc
	if c.dt == 0 {
		c.dtPrev = dt
	} else {
		c.dtPrev = c.dt
	}
	c.dt = dt

	if c.Cfg.UpdateReference && c.incs > 0 {
		c.C = c.tangent
	}
	var err error
	c.smasked, err = tensor.MaskedCompliance(c.C, bc.Stress.Mask)
	if err != nil {
		return fmt.Errorf("solver: stress-control compliance: %w", err)
	}

	// Strain-controlled components follow the prescribed rate; the achieved
	// rate of stress-controlled components is extrapolated from the previous
	// increment.
	delta := bc.deltaAim(c.Faim, dt)
	prev := c.Faim
	ratio := dt / c.dtPrev
	guess := c.Faim.Sub(c.FaimLastInc).MaskScale(bc.Stress.MaskFloat()).Scale(c.Cfg.Guessmode * ratio)
	c.Faim = c.Faim.Add(guess).Add(delta)
	c.FaimLastInc = prev

	c.Fwd.Forward(delta, dt, c.dtPrev, c.Cfg.Guessmode, c.FLastInc, c.F)
	c.Fwd.Forward(delta, dt, c.dtPrev, c.Cfg.Guessmode, c.FlambdaLastInc, c.Flambda)

	c.Coords, err = c.Eng.ReconstructCoordinates(c.F, c.Faim, 1.0)
	if err != nil {
		return fmt.Errorf("solver: reconstructing coordinates: %w", err)
	}

	c.forwardNext = true
	c.incs++
	return nil
}

// FinishIncrement persists the converged fields as the new reference for the
// next increment. Call only after the outer solver reports convergence.
func (c *Context) FinishIncrement() {
	c.FLastInc.CopyFrom(c.F)
	c.FlambdaLastInc.CopyFrom(c.Flambda)
}

// PackUnknowns writes the current fields into the outer solver's unknown
// vector layout.
func (c *Context) PackUnknowns(x []float64) {
	n := c.Grid.N()
	if len(x) != n*UnknownsPerPoint {
		panic(fmt.Sprintf("solver: unknown vector length %d, want %d", len(x), n*UnknownsPerPoint))
	}
	for p := 0; p < n; p++ {
		copy(x[p*UnknownsPerPoint:p*UnknownsPerPoint+9], c.F.At(p))
		copy(x[p*UnknownsPerPoint+9:(p+1)*UnknownsPerPoint], c.Flambda.At(p))
	}
}

func (c *Context) unpackUnknowns(x []float64) {
	n := c.Grid.N()
	for p := 0; p < n; p++ {
		copy(c.F.At(p), x[p*UnknownsPerPoint:p*UnknownsPerPoint+9])
		copy(c.Flambda.At(p), x[p*UnknownsPerPoint+9:(p+1)*UnknownsPerPoint])
	}
}

// Snapshot captures the state BeginIncrement and the inner iterations mutate,
// so a failed increment can be retried with a smaller step.
type Snapshot struct {
	f, flambda  *grid.Field
	faim        tensor.T33
	faimLast    tensor.T33
	dt, dtPrev  float64
	forwardNext bool
	incs        int
}

// Snapshot returns a copy of the retryable state.
func (c *Context) Snapshot() *Snapshot {
	return &Snapshot{
		f:           c.F.Clone(),
		flambda:     c.Flambda.Clone(),
		faim:        c.Faim,
		faimLast:    c.FaimLastInc,
		dt:          c.dt,
		dtPrev:      c.dtPrev,
		forwardNext: c.forwardNext,
		incs:        c.incs,
	}
}

// Restore rewinds the context to a snapshot taken before BeginIncrement.
func (c *Context) Restore(s *Snapshot) {
	c.F.CopyFrom(s.f)
	c.Flambda.CopyFrom(s.flambda)
	c.Faim = s.faim
	c.FaimLastInc = s.faimLast
	c.dt = s.dt
	c.dtPrev = s.dtPrev
	c.forwardNext = s.forwardNext
	c.incs = s.incs
}
