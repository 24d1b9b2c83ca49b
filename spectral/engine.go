// Package spectral provides the 3-D real-to-complex transform engine and the
// Fourier-space differential operators built on it. Transforms are composed
// from 1-D gonum FFTs: a real transform along the first axis followed by
// complex transforms along the remaining two, giving the usual half-grid
// layout with nx/2+1 complex samples along x.
package spectral

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/micromech/spectral/grid"
)

// ErrShapeMismatch reports a field whose grid or component count does not
// match the plan it is being transformed with.
var ErrShapeMismatch = errors.New("spectral: field shape mismatch")

// Engine owns the per-shape transform plans. Plans are created lazily and
// cached; distinct plans are independent, so transforms of different field
// shapes may run concurrently. One plan serializes its own transforms because
// the underlying 1-D FFTs carry scratch state.
type Engine struct {
	mu    sync.Mutex
	plans map[planKey]*plan
}

type planKey struct {
	nx, ny, nz int
	comps      int
}

type plan struct {
	mu   sync.Mutex
	nx   int
	ny   int
	nz   int
	fftX *fourier.FFT
	fftY *fourier.CmplxFFT
	fftZ *fourier.CmplxFFT

	lineRe []float64
	lineCo []complex128
	bufY   []complex128
	outY   []complex128
	bufZ   []complex128
	outZ   []complex128
}

// NewEngine verifies the numeric-backend assumptions the transforms rely on
// and returns an empty plan cache. The complex element must be exactly two
// real elements wide; anything else means the build is misconfigured and the
// solve must not start.
func NewEngine() (*Engine, error) {
	if unsafe.Sizeof(complex128(0)) != 2*unsafe.Sizeof(float64(0)) {
		return nil, fmt.Errorf("spectral: complex128 size %d does not match two float64 of size %d",
			unsafe.Sizeof(complex128(0)), unsafe.Sizeof(float64(0)))
	}
	return &Engine{plans: make(map[planKey]*plan)}, nil
}

func (e *Engine) plan(g *grid.Grid, comps int) *plan {
	key := planKey{g.Res[0], g.Res[1], g.Res[2], comps}
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.plans[key]; ok {
		return p
	}
	nx, ny, nz := g.Res[0], g.Res[1], g.Res[2]
	p := &plan{
		nx:     nx,
		ny:     ny,
		nz:     nz,
		fftX:   fourier.NewFFT(nx),
		fftY:   fourier.NewCmplxFFT(ny),
		fftZ:   fourier.NewCmplxFFT(nz),
		lineRe: make([]float64, nx),
		lineCo: make([]complex128, nx/2+1),
		bufY:   make([]complex128, ny),
		outY:   make([]complex128, ny),
		bufZ:   make([]complex128, nz),
		outZ:   make([]complex128, nz),
	}
	e.plans[key] = p
	return p
}

// Forward transforms a real field to its half-grid Fourier representation and
// removes the Nyquist modes of every even axis. The transform is
// unnormalized; Backward carries the 1/(nx*ny*nz) factor.
func (e *Engine) Forward(f *grid.Field) (*grid.Fourier, error) {
	p := e.plan(f.Grid, f.Comps)
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(f.Data) != f.Grid.N()*f.Comps {
		return nil, fmt.Errorf("%w: field data length %d, want %d", ErrShapeMismatch, len(f.Data), f.Grid.N()*f.Comps)
	}
	nx, ny, nz, nh := p.nx, p.ny, p.nz, f.Grid.NHalf()
	comps := f.Comps
	ff := grid.NewFourier(f.Grid, comps)

	for c := 0; c < comps; c++ {
		// real transform along x
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				row := (k*ny + j) * nx
				for i := 0; i < nx; i++ {
					p.lineRe[i] = f.Data[(row+i)*comps+c]
				}
				p.fftX.Coefficients(p.lineCo, p.lineRe)
				out := (k*ny + j) * nh
				for i := 0; i < nh; i++ {
					ff.Data[(out+i)*comps+c] = p.lineCo[i]
				}
			}
		}
		// complex transform along y
		if ny > 1 {
			for k := 0; k < nz; k++ {
				for i := 0; i < nh; i++ {
					for j := 0; j < ny; j++ {
						p.bufY[j] = ff.Data[((k*ny+j)*nh+i)*comps+c]
					}
					p.fftY.Coefficients(p.outY, p.bufY)
					for j := 0; j < ny; j++ {
						ff.Data[((k*ny+j)*nh+i)*comps+c] = p.outY[j]
					}
				}
			}
		}
		// complex transform along z
		if nz > 1 {
			for j := 0; j < ny; j++ {
				for i := 0; i < nh; i++ {
					for k := 0; k < nz; k++ {
						p.bufZ[k] = ff.Data[((k*ny+j)*nh+i)*comps+c]
					}
					p.fftZ.Coefficients(p.outZ, p.bufZ)
					for k := 0; k < nz; k++ {
						ff.Data[((k*ny+j)*nh+i)*comps+c] = p.outZ[k]
					}
				}
			}
		}
	}

	ZeroNyquist(ff)
	return ff, nil
}

// Backward transforms a Fourier field back to real space into dst, applying
// the 1/(nx*ny*nz) normalization so that Backward(Forward(f)) == f.
func (e *Engine) Backward(ff *grid.Fourier, dst *grid.Field) error {
	if dst.Grid.N() != ff.Grid.N() || dst.Comps != ff.Comps {
		return fmt.Errorf("%w: destination field does not match Fourier field", ErrShapeMismatch)
	}
	p := e.plan(ff.Grid, ff.Comps)
	p.mu.Lock()
	defer p.mu.Unlock()

	nx, ny, nz, nh := p.nx, p.ny, p.nz, ff.Grid.NHalf()
	comps := ff.Comps
	work := make([]complex128, len(ff.Data))
	copy(work, ff.Data)
	norm := 1.0 / float64(nx*ny*nz)

	for c := 0; c < comps; c++ {
		// inverse along z
		if nz > 1 {
			for j := 0; j < ny; j++ {
				for i := 0; i < nh; i++ {
					for k := 0; k < nz; k++ {
						p.bufZ[k] = work[((k*ny+j)*nh+i)*comps+c]
					}
					p.fftZ.Sequence(p.outZ, p.bufZ)
					for k := 0; k < nz; k++ {
						work[((k*ny+j)*nh+i)*comps+c] = p.outZ[k]
					}
				}
			}
		}
		// inverse along y
		if ny > 1 {
			for k := 0; k < nz; k++ {
				for i := 0; i < nh; i++ {
					for j := 0; j < ny; j++ {
						p.bufY[j] = work[((k*ny+j)*nh+i)*comps+c]
					}
					p.fftY.Sequence(p.outY, p.bufY)
					for j := 0; j < ny; j++ {
						work[((k*ny+j)*nh+i)*comps+c] = p.outY[j]
					}
				}
			}
		}
		// complex-to-real along x
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				for i := 0; i < nh; i++ {
					p.lineCo[i] = work[((k*ny+j)*nh+i)*comps+c]
				}
				p.fftX.Sequence(p.lineRe, p.lineCo)
				row := (k*ny + j) * nx
				for i := 0; i < nx; i++ {
					dst.Data[(row+i)*comps+c] = p.lineRe[i] * norm
				}
			}
		}
	}
	return nil
}

// ZeroNyquist removes the highest-frequency mode along every axis of even
// extent. Those modes carry no phase information on an even grid and are
// dropped from every transformed field as an anti-aliasing policy.
func ZeroNyquist(ff *grid.Fourier) {
	nx, ny, nz := ff.Grid.Res[0], ff.Grid.Res[1], ff.Grid.Res[2]
	nh := ff.Grid.NHalf()
	comps := ff.Comps
	zeroMode := func(m int) {
		for c := 0; c < comps; c++ {
			ff.Data[m*comps+c] = 0
		}
	}
	if nx%2 == 0 {
		ih := nx / 2
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				zeroMode((k*ny + j) * nh + ih)
			}
		}
	}
	if ny%2 == 0 {
		j := ny / 2
		for k := 0; k < nz; k++ {
			for i := 0; i < nh; i++ {
				zeroMode((k*ny + j) * nh + i)
			}
		}
	}
	if nz%2 == 0 {
		k := nz / 2
		for j := 0; j < ny; j++ {
			for i := 0; i < nh; i++ {
				zeroMode((k*ny + j) * nh + i)
			}
		}
	}
}
