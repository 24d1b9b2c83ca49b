package spectral

import (
	"fmt"
	"math"

	"github.com/micromech/spectral/grid"
	"github.com/micromech/spectral/tensor"
)

// Divergence computes the spectral divergence of a tensor (9-component) or
// vector (3-component) field. A tensor field contracts its trailing index
// against the wavevector, giving a vector; a vector field gives a scalar.
func (e *Engine) Divergence(f *grid.Field) (*grid.Field, error) {
	var outComps int
	switch f.Comps {
	case 9:
		outComps = 3
	case 3:
		outComps = 1
	default:
		return nil, fmt.Errorf("%w: divergence needs 3 or 9 components, got %d", ErrShapeMismatch, f.Comps)
	}

	ff, err := e.Forward(f)
	if err != nil {
		return nil, err
	}
	out := grid.NewFourier(f.Grid, outComps)
	g := f.Grid
	nh, ny, nz := g.NHalf(), g.Res[1], g.Res[2]

	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nh; i++ {
				m := (k*ny+j)*nh + i
				xi := g.Wavevector(i, j, k)
				in := ff.At(m)
				dst := out.At(m)
				if outComps == 3 {
					for r := 0; r < 3; r++ {
						var s complex128
						for c := 0; c < 3; c++ {
							s += in[r*3+c] * complex(0, 2*math.Pi*xi[c])
						}
						dst[r] = s
					}
				} else {
					var s complex128
					for c := 0; c < 3; c++ {
						s += in[c] * complex(0, 2*math.Pi*xi[c])
					}
					dst[0] = s
				}
			}
		}
	}

	ZeroNyquist(out)
	res := grid.NewField(g, outComps)
	if err := e.Backward(out, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Curl computes the spectral curl. For a vector field c_i = eps_ijk d_j v_k;
// a tensor field is curled row by row: c_rl = eps_ljk d_j F_rk.
func (e *Engine) Curl(f *grid.Field) (*grid.Field, error) {
	if f.Comps != 3 && f.Comps != 9 {
		return nil, fmt.Errorf("%w: curl needs 3 or 9 components, got %d", ErrShapeMismatch, f.Comps)
	}

	ff, err := e.Forward(f)
	if err != nil {
		return nil, err
	}
	out := grid.NewFourier(f.Grid, f.Comps)
	g := f.Grid
	nh, ny, nz := g.NHalf(), g.Res[1], g.Res[2]
	rows := f.Comps / 3

	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nh; i++ {
				m := (k*ny+j)*nh + i
				xi := g.Wavevector(i, j, k)
				var d [3]complex128
				for a := 0; a < 3; a++ {
					d[a] = complex(0, 2*math.Pi*xi[a])
				}
				in := ff.At(m)
				dst := out.At(m)
				for r := 0; r < rows; r++ {
					row := in[r*3 : r*3+3]
					dst[r*3+0] = d[1]*row[2] - d[2]*row[1]
					dst[r*3+1] = d[2]*row[0] - d[0]*row[2]
					dst[r*3+2] = d[0]*row[1] - d[1]*row[0]
				}
			}
		}
	}

	ZeroNyquist(out)
	res := grid.NewField(g, f.Comps)
	if err := e.Backward(out, res); err != nil {
		return nil, err
	}
	return res, nil
}

// ReconstructCoordinates integrates a deformation-gradient field into point
// coordinates: the fluctuating part comes from the spectral inverse gradient,
// the homogeneous part from favg applied to the undeformed lattice positions.
// The fluctuation is amplified by scaling and shifted so that node (0,0,0)
// stays at the origin. The zero wavevector is never divided by; its
// contribution is exactly the favg term.
func (e *Engine) ReconstructCoordinates(f *grid.Field, favg tensor.T33, scaling float64) (*grid.Field, error) {
	if f.Comps != 9 {
		return nil, fmt.Errorf("%w: coordinate reconstruction needs a 9-component field, got %d", ErrShapeMismatch, f.Comps)
	}

	ff, err := e.Forward(f)
	if err != nil {
		return nil, err
	}
	g := f.Grid
	out := grid.NewFourier(g, 3)
	nh, ny, nz := g.NHalf(), g.Res[1], g.Res[2]

	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nh; i++ {
				if i == 0 && j == 0 && k == 0 {
					continue
				}
				m := (k*ny+j)*nh + i
				xi := g.Wavevector(i, j, k)
				xi2 := xi[0]*xi[0] + xi[1]*xi[1] + xi[2]*xi[2]
				if xi2 == 0 {
					continue
				}
				inv := 1.0 / (-math.Pow(2*math.Pi, 2) * xi2)
				in := ff.At(m)
				dst := out.At(m)
				for r := 0; r < 3; r++ {
					var s complex128
					for c := 0; c < 3; c++ {
						s += in[r*3+c] * complex(0, 2*math.Pi*xi[c])
					}
					dst[r] = s * complex(inv, 0)
				}
			}
		}
	}

	ZeroNyquist(out)
	fluct := grid.NewField(g, 3)
	if err := e.Backward(out, fluct); err != nil {
		return nil, err
	}

	// anchor node (0,0,0) at the origin
	var offset [3]float64
	for r := 0; r < 3; r++ {
		offset[r] = -fluct.Data[r]
	}

	coords := grid.NewField(g, 3)
	step := g.Step()
	nx := g.Res[0]
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				p := (k*ny+j)*nx + i
				lattice := [3]float64{step[0] * float64(i), step[1] * float64(j), step[2] * float64(k)}
				for r := 0; r < 3; r++ {
					homog := favg.At(r, 0)*lattice[0] + favg.At(r, 1)*lattice[1] + favg.At(r, 2)*lattice[2]
					coords.Data[p*3+r] = homog + scaling*(fluct.Data[p*3+r]+offset[r])
				}
			}
		}
	}
	return coords, nil
}
