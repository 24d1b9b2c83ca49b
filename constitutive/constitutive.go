// Package constitutive defines the contract between the spectral solver and
// the material-response oracle, together with a linear-elastic reference
// implementation used by tests and the bundled CLI. Real constitutive models
// live outside this module and plug in through the Responder interface.
package constitutive

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/micromech/spectral/grid"
	"github.com/micromech/spectral/tensor"
)

// Request carries one evaluation of the oracle. Forward is true exactly once
// per load increment, on the first evaluation, to let the oracle advance its
// internal state; later evaluations of the same increment pass false.
type Request struct {
	Coords      *grid.Field // current point coordinates, 3 components
	F0          *grid.Field // deformation gradient at the last converged increment
	F           *grid.Field // candidate deformation gradient
	Temperature float64
	Dt          float64
	Forward     bool
	Rotation    tensor.T33 // loading-frame rotation
}

// Response is the oracle's answer: the per-point stress field, the
// homogenized tangent and the volume-average stress.
type Response struct {
	P   *grid.Field
	C   tensor.T3333
	Pav tensor.T33
}

// Responder is the external constitutive oracle. Implementations must be
// callable once per residual evaluation; the solver never calls Respond
// speculatively.
type Responder interface {
	Respond(ctx context.Context, req Request) (Response, error)
}

// LinearElastic responds with P = scale * C : (F - I) at every point. Scale
// is an optional single-component field introducing stiffness heterogeneity
// (two-phase test materials); nil means homogeneous.
type LinearElastic struct {
	C     tensor.T3333
	Scale *grid.Field

	mu       sync.Mutex
	advanced int // increments the oracle has been wound forward through
}

// NewLinearElastic builds a homogeneous linear-elastic responder.
func NewLinearElastic(c tensor.T3333) *LinearElastic {
	return &LinearElastic{C: c}
}

// Advanced returns how many times the responder has been wound forward.
func (le *LinearElastic) Advanced() int {
	le.mu.Lock()
	defer le.mu.Unlock()
	return le.advanced
}

// Respond evaluates the linear response slab-parallel over the grid.
func (le *LinearElastic) Respond(ctx context.Context, req Request) (Response, error) {
	if req.F == nil || req.F.Comps != 9 {
		return Response{}, fmt.Errorf("constitutive: request needs a 9-component deformation field")
	}
	if le.Scale != nil && le.Scale.Grid.N() != req.F.Grid.N() {
		return Response{}, fmt.Errorf("constitutive: scale field does not match request grid")
	}
	if req.Forward {
		le.mu.Lock()
		le.advanced++
		le.mu.Unlock()
	}

	g := req.F.Grid
	p := grid.NewField(g, 9)
	n := g.N()

	eg, _ := errgroup.WithContext(ctx)
	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, n)
		if lo >= hi {
			break
		}
		eg.Go(func() error {
			ident := tensor.I33()
			for pt := lo; pt < hi; pt++ {
				var f tensor.T33
				copy(f[:], req.F.At(pt))
				stress := le.C.Contract(f.Sub(ident))
				if le.Scale != nil {
					stress = stress.Scale(le.Scale.Data[pt])
				}
				copy(p.At(pt), stress[:])
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Response{}, err
	}

	var pav tensor.T33
	copy(pav[:], p.Average())

	tangent := le.C
	if le.Scale != nil {
		tangent = le.C.Scale(le.Scale.Average()[0])
	}
	return Response{P: p, C: tangent, Pav: pav}, nil
}
