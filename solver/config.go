// Package solver implements the augmented-Lagrangian state core of the
// spectral equilibrium solve: it owns the coupled deformation and
// Lagrange-multiplier fields, evaluates the nonlinear residual for an outer
// solver, applies mixed stress/strain boundary conditions and decides
// convergence.
package solver

import "fmt"

// Config carries the iteration limits and tolerances of the nonlinear solve.
type Config struct {
	ItMin int `yaml:"itmin"`
	ItMax int `yaml:"itmax"`

	// TolF bounds the compatibility error, TolP the equilibrium error, both
	// relative to the deviation of the average deformation from identity.
	TolF float64 `yaml:"eps_f"`
	TolP float64 `yaml:"eps_p"`

	// Stress boundary-condition tolerance: relative to the largest average
	// stress component, with an absolute floor.
	TolStressRel float64 `yaml:"eps_stress_rel"`
	TolStressAbs float64 `yaml:"eps_stress_abs"`

	// UpdateReference refreshes the per-increment reference stiffness from
	// the homogenized tangent. The gamma-operator reference is frozen at
	// initialization regardless.
	UpdateReference bool `yaml:"update_reference"`

	// Guessmode weights the extrapolation of the previous increment's
	// solution when winding fields forward: 0 restarts from the prescribed
	// rate alone, 1 extrapolates fully.
	Guessmode float64 `yaml:"guessmode"`

	Temperature float64 `yaml:"temperature"`
}

// DefaultConfig returns the tolerances used when a load case does not
// override them.
func DefaultConfig() Config {
	return Config{
		ItMin:        2,
		ItMax:        250,
		TolF:         1e-6,
		TolP:         1e-5,
		TolStressRel: 1e-3,
		TolStressAbs: 1e3,
		Guessmode:    1,
		Temperature:  300,
	}
}

// Validate rejects configurations that could never terminate.
func (c Config) Validate() error {
	if c.ItMax <= c.ItMin {
		return fmt.Errorf("solver: itmax %d must exceed itmin %d", c.ItMax, c.ItMin)
	}
	if c.TolF <= 0 || c.TolP <= 0 || c.TolStressRel <= 0 || c.TolStressAbs <= 0 {
		return fmt.Errorf("solver: tolerances must be positive")
	}
	if c.Guessmode < 0 || c.Guessmode > 1 {
		return fmt.Errorf("solver: guessmode must lie in [0,1], got %g", c.Guessmode)
	}
	return nil
}
