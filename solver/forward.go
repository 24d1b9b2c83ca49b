package solver

import (
	"github.com/micromech/spectral/grid"
	"github.com/micromech/spectral/tensor"
)

// Forwarder extrapolates a per-point tensor field into the initial guess for
// a new load increment. The solver core consumes this as an interface so an
// application can substitute its own extrapolation rule.
type Forwarder interface {
	Forward(delta tensor.T33, dt, dtPrev, guessmode float64, lastInc *grid.Field, f *grid.Field)
}

// Extrapolator is the default forwarding rule: the same winding applied to
// the average target, broadcast per point.
//
//	f += guessmode*(f - lastInc)*(dt/dtPrev) + delta
type Extrapolator struct{}

// Forward applies the extrapolation in place.
func (Extrapolator) Forward(delta tensor.T33, dt, dtPrev, guessmode float64, lastInc *grid.Field, f *grid.Field) {
	ratio := guessmode * dt / dtPrev
	n := f.Grid.N()
	for p := 0; p < n; p++ {
		cur := f.At(p)
		old := lastInc.At(p)
		for c := 0; c < 9; c++ {
			cur[c] += ratio*(cur[c]-old[c]) + delta[c]
		}
	}
}
