package solver

import (
	"fmt"

	"github.com/micromech/spectral/tensor"
)

// Kind discriminates how the strain channel of a boundary condition is
// interpreted.
type Kind int

const (
	// DotF prescribes the rate of the deformation gradient directly.
	DotF Kind = iota
	// VelocityGrad prescribes a velocity gradient L; the deformation target
	// advances by L·F_aim per unit time.
	VelocityGrad
)

func (k Kind) String() string {
	switch k {
	case DotF:
		return "dotF"
	case VelocityGrad:
		return "L"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Channel is one half of a mixed boundary condition: the set of tensor
// components it controls and their target values.
type Channel struct {
	Mask   [9]bool
	Target tensor.T33
}

// MaskFloat returns the mask as a 0/1 tensor for component-wise products.
func (ch Channel) MaskFloat() tensor.T33 {
	var m tensor.T33
	for i, on := range ch.Mask {
		if on {
			m[i] = 1
		}
	}
	return m
}

// Count returns the number of controlled components.
func (ch Channel) Count() int {
	var n int
	for _, on := range ch.Mask {
		if on {
			n++
		}
	}
	return n
}

// BoundaryCondition pairs a strain-rate channel with a stress channel. Every
// tensor component must be controlled by exactly one of the two.
type BoundaryCondition struct {
	Kind     Kind
	Strain   Channel
	Stress   Channel
	Rotation tensor.T33
}

// Validate checks mask complementarity and normalizes a zero rotation to the
// identity. It must pass before the solve starts; overlapping or uncontrolled
// components are configuration errors, not solver states.
func (bc *BoundaryCondition) Validate() error {
	for i := 0; i < 9; i++ {
		if bc.Strain.Mask[i] == bc.Stress.Mask[i] {
			return fmt.Errorf("solver: component (%d,%d) must be controlled by exactly one of strain and stress",
				i/3, i%3)
		}
	}
	if bc.Rotation == (tensor.T33{}) {
		bc.Rotation = tensor.I33()
	}
	return nil
}

// deltaAim converts the strain channel into the masked change of the average
// deformation gradient over a step of length dt, given the current target.
func (bc BoundaryCondition) deltaAim(faim tensor.T33, dt float64) tensor.T33 {
	var rate tensor.T33
	switch bc.Kind {
	case VelocityGrad:
		rate = bc.Strain.Target.Mul(faim)
	default:
		rate = bc.Strain.Target
	}
	return rate.Scale(dt).MaskScale(bc.Strain.MaskFloat())
}
