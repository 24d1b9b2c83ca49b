// Package gamma implements the Fourier-space Green's-operator convolution of
// the spectral equilibrium solver. The operator is built once per
// reference-stiffness update from the acoustic tensor of the reference
// material and the grid geometry, then applied mode by mode to stress-like
// tensor fields.
package gamma

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/micromech/spectral/grid"
	"github.com/micromech/spectral/spectral"
	"github.com/micromech/spectral/tensor"
)

// ErrSingularReference reports a reference stiffness whose acoustic tensor is
// singular for every direction, leaving no valid operator at all.
var ErrSingularReference = errors.New("gamma: reference stiffness has no invertible acoustic tensor")

var log = logrus.StandardLogger()

// Operator holds the precomputed per-mode Green's operator on the half-grid.
// The zero mode is never touched by Apply; its value is owned by the caller.
type Operator struct {
	g   *grid.Grid
	eng *spectral.Engine

	// per-mode 3x3x3x3 operator, flat, 81 values per mode
	gam []float64
	// modes whose acoustic tensor could not be inverted; their correction is
	// skipped
	skipped int
}

// NewOperator allocates an operator for the given grid. Update must be called
// before the first Apply.
func NewOperator(g *grid.Grid, eng *spectral.Engine) *Operator {
	return &Operator{
		g:   g,
		eng: eng,
		gam: make([]float64, g.NModes()*81),
	}
}

// Skipped returns the number of modes excluded by the last Update.
func (o *Operator) Skipped() int { return o.skipped }

// Update rebuilds the per-mode operator from a reference stiffness. For every
// nonzero wavevector the acoustic tensor A_ik = C_ijkl n_j n_l is inverted
// with a dense solve; a near-singular A is a recoverable condition for that
// single mode, which is skipped and counted. Update fails only when no mode
// at all survives.
func (o *Operator) Update(c tensor.T3333) (int, error) {
	nh, ny, nz := o.g.NHalf(), o.g.Res[1], o.g.Res[2]
	var skipped atomic.Int64

	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for k := 0; k < nz; k++ {
		k := k
		eg.Go(func() error {
			aData := make([]float64, 9)
			for j := 0; j < ny; j++ {
				for i := 0; i < nh; i++ {
					m := (k*ny+j)*nh + i
					dst := o.gam[m*81 : (m+1)*81]
					for a := range dst {
						dst[a] = 0
					}
					if i == 0 && j == 0 && k == 0 {
						continue
					}
					xi := o.g.Wavevector(i, j, k)
					norm := math.Sqrt(xi[0]*xi[0] + xi[1]*xi[1] + xi[2]*xi[2])
					if norm == 0 {
						continue
					}
					n := [3]float64{xi[0] / norm, xi[1] / norm, xi[2] / norm}

					for a := 0; a < 3; a++ {
						for b := 0; b < 3; b++ {
							var s float64
							for p := 0; p < 3; p++ {
								for q := 0; q < 3; q++ {
									s += c.At(a, p, b, q) * n[p] * n[q]
								}
							}
							aData[a*3+b] = s
						}
					}
					var ainv mat.Dense
					if err := ainv.Inverse(mat.NewDense(3, 3, aData)); err != nil {
						skipped.Add(1)
						continue
					}
					// The equilibrium response to a polarization tau is
					// -Ainv_ik n_j n_l tau_kl; the sign is folded in here so
					// Apply is a plain contraction.
					for a := 0; a < 3; a++ {
						for b := 0; b < 3; b++ {
							for p := 0; p < 3; p++ {
								for q := 0; q < 3; q++ {
									dst[((a*3+b)*3+p)*3+q] = -ainv.At(a, p) * n[b] * n[q]
								}
							}
						}
					}
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	o.skipped = int(skipped.Load())
	if o.skipped > 0 {
		log.WithFields(logrus.Fields{
			"skipped": o.skipped,
			"modes":   o.g.NModes(),
		}).Warn("gamma: acoustic tensor near-singular, correction skipped for some modes")
	}
	if o.skipped >= o.g.NModes()-1 && o.g.NModes() > 1 {
		return o.skipped, ErrSingularReference
	}
	return o.skipped, nil
}

// Apply contracts the operator against a 9-component Fourier field in place.
// The zero mode passes through untouched.
func (o *Operator) Apply(ff *grid.Fourier) error {
	if ff.Comps != 9 {
		return fmt.Errorf("%w: gamma apply needs 9 components, got %d", spectral.ErrShapeMismatch, ff.Comps)
	}
	if ff.Grid.NModes() != o.g.NModes() {
		return fmt.Errorf("%w: fourier field does not match operator grid", spectral.ErrShapeMismatch)
	}
	nm := o.g.NModes()
	var tau [9]complex128
	for m := 1; m < nm; m++ {
		dst := ff.At(m)
		copy(tau[:], dst)
		gm := o.gam[m*81 : (m+1)*81]
		for ab := 0; ab < 9; ab++ {
			var s complex128
			base := ab * 9
			for pq := 0; pq < 9; pq++ {
				s += complex(gm[base+pq], 0) * tau[pq]
			}
			dst[ab] = s
		}
	}
	return nil
}

// Convolve applies the operator to a real tensor field: forward transform,
// per-mode contraction, zero mode replaced by the prescribed volume average,
// backward transform. The input field's own average never reaches the output.
func (o *Operator) Convolve(f *grid.Field, avg tensor.T33) (*grid.Field, error) {
	ff, err := o.eng.Forward(f)
	if err != nil {
		return nil, err
	}
	if err := o.Apply(ff); err != nil {
		return nil, err
	}
	// Backward divides by N, so the zero mode is seeded with avg*N.
	n := float64(o.g.N())
	zero := ff.At(0)
	for c := 0; c < 9; c++ {
		zero[c] = complex(avg[c]*n, 0)
	}
	out := grid.NewField(f.Grid, 9)
	if err := o.eng.Backward(ff, out); err != nil {
		return nil, err
	}
	return out, nil
}
