package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/micromech/spectral/constitutive"
	"github.com/micromech/spectral/tensor"
)

// ErrInvalidResponse reports a constitutive response that is not physically
// usable (NaN stress). It propagates to the outer solver as a divergence
// signal rather than being clamped.
var ErrInvalidResponse = errors.New("solver: invalid constitutive response")

// EvaluateResidual is the nonlinear map handed to the outer solver. It
// unpacks the unknown vector into (F, F_lambda), evaluates the constitutive
// oracle exactly once, corrects the loading target from the average-stress
// residual, convolves the polarization field with the gamma operator and
// assembles the two residual blocks. The three error measures are updated as
// a side effect for CheckConvergence.
//
// The ordering is load-bearing: the target correction happens strictly before
// the convolution, whose zero mode carries the corrected target.
func (c *Context) EvaluateResidual(x, r []float64) error {
	n := c.Grid.N()
	if len(x) != n*UnknownsPerPoint || len(r) != n*UnknownsPerPoint {
		return fmt.Errorf("solver: unknown/residual vector length %d/%d, want %d",
			len(x), len(r), n*UnknownsPerPoint)
	}
	c.unpackUnknowns(x)

	resp, err := c.Resp.Respond(context.Background(), constitutive.Request{
		Coords:      c.Coords,
		F0:          c.FLastInc,
		F:           c.F,
		Temperature: c.Cfg.Temperature,
		Dt:          c.dt,
		Forward:     c.forwardNext,
		Rotation:    c.bc.Rotation,
	})
	c.forwardNext = false
	if err != nil {
		return fmt.Errorf("solver: constitutive response: %w", err)
	}
	if resp.Pav.HasNaN() {
		return fmt.Errorf("%w: average stress contains NaN", ErrInvalidResponse)
	}
	c.Pav = resp.Pav
	c.tangent = resp.C

	// stress-control correction of the loading target
	maskStress := c.bc.Stress.MaskFloat()
	pdiff := resp.Pav.Sub(c.bc.Stress.Target).MaskScale(maskStress)
	c.Faim = c.Faim.Sub(c.smasked.Contract(pdiff))
	c.ErrStress = pdiff.MaxAbs()

	// polarization field C_scale : (F_lambda - F)
	for p := 0; p < n; p++ {
		var f, lam tensor.T33
		copy(f[:], c.F.At(p))
		copy(lam[:], c.Flambda.At(p))
		t := c.Cscale.Contract(lam.Sub(f))
		copy(c.tau.At(p), t[:])
	}

	rot := c.bc.Rotation
	aim := rot.Mul(c.Faim).Mul(rot.Transpose())
	correction, err := c.Gam.Convolve(c.tau, aim)
	if err != nil {
		return fmt.Errorf("solver: gamma convolution: %w", err)
	}

	ident := tensor.I33()
	var sumF, sumP float64
	for p := 0; p < n; p++ {
		var f, lam, stress, corr tensor.T33
		copy(f[:], c.F.At(p))
		copy(lam[:], c.Flambda.At(p))
		copy(stress[:], resp.P.At(p))
		copy(corr[:], correction.At(p))

		target := c.Sscale.Contract(stress).Add(ident)
		rLam := f.Sub(corr)
		rF := target.Sub(lam).Add(rLam)

		dst := r[p*UnknownsPerPoint : (p+1)*UnknownsPerPoint]
		copy(dst[:9], rF[:])
		copy(dst[9:], rLam[:])

		for a := 0; a < 9; a++ {
			sumF += rLam[a] * rLam[a]
			d := rF[a] - rLam[a]
			sumP += d * d
		}
	}
	c.ErrF = math.Sqrt(sumF / float64(n))
	c.ErrP = math.Sqrt(sumP / float64(n))
	return nil
}
