package solver

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/micromech/spectral/grid"
	"github.com/micromech/spectral/tensor"
)

// LoadCase is the YAML description of a whole run: the grid, the solver
// tolerances, the reference material and the loading history.
type LoadCase struct {
	Grid struct {
		Resolution [3]int     `yaml:"resolution"`
		Size       [3]float64 `yaml:"size"`
	} `yaml:"grid"`
	Solver   Config   `yaml:"solver"`
	Material Material `yaml:"material"`
	Increments []IncrementSpec `yaml:"increments"`
}

// Material describes the bundled isotropic linear-elastic test material. A
// nonzero inclusion fraction turns the microstructure into a two-phase
// laminate: the lower InclusionFraction of the grid along x carries the
// stiffness scaled by InclusionScale, the rest stays at 1.
type Material struct {
	Young             float64 `yaml:"young"`
	Poisson           float64 `yaml:"poisson"`
	InclusionScale    float64 `yaml:"inclusion_scale"`
	InclusionFraction float64 `yaml:"inclusion_fraction"`
}

// IncrementSpec describes one entry of the loading history. Rate and stress
// are 3x3 string matrices where "x" marks a component left to the other
// channel; every component must be prescribed by exactly one of the two.
type IncrementSpec struct {
	Kind     string      `yaml:"kind"` // "dotF" (default) or "L"
	Rate     [][]string  `yaml:"rate"`
	Stress   [][]string  `yaml:"stress"`
	Rotation [][]float64 `yaml:"rotation"`
	Time     float64     `yaml:"time"`
	Steps    int         `yaml:"steps"`
}

// ParseLoadCase decodes and validates a YAML load case.
func ParseLoadCase(data []byte) (*LoadCase, error) {
	lc := &LoadCase{Solver: DefaultConfig()}
	if err := yaml.Unmarshal(data, lc); err != nil {
		return nil, fmt.Errorf("solver: parsing load case: %w", err)
	}
	if _, err := grid.NewGrid(lc.Grid.Resolution, lc.Grid.Size); err != nil {
		return nil, err
	}
	if err := lc.Solver.Validate(); err != nil {
		return nil, err
	}
	if len(lc.Increments) == 0 {
		return nil, fmt.Errorf("solver: load case has no increments")
	}
	for i := range lc.Increments {
		if _, err := lc.Increments[i].BoundaryCondition(); err != nil {
			return nil, fmt.Errorf("solver: increment %d: %w", i+1, err)
		}
		if lc.Increments[i].Time <= 0 {
			return nil, fmt.Errorf("solver: increment %d: time must be positive", i+1)
		}
		if lc.Increments[i].Steps < 1 {
			return nil, fmt.Errorf("solver: increment %d: steps must be at least 1", i+1)
		}
	}
	return lc, nil
}

// LoadCaseFromFile reads and parses a load-case file.
func LoadCaseFromFile(path string) (*LoadCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("solver: reading load case: %w", err)
	}
	return ParseLoadCase(data)
}

// BoundaryCondition converts the increment entry into validated channel
// masks and targets.
func (s IncrementSpec) BoundaryCondition() (BoundaryCondition, error) {
	var bc BoundaryCondition
	switch s.Kind {
	case "", "dotF":
		bc.Kind = DotF
	case "L":
		bc.Kind = VelocityGrad
	default:
		return bc, fmt.Errorf("unknown kind %q (want dotF or L)", s.Kind)
	}

	strain, err := parseChannel(s.Rate, "rate")
	if err != nil {
		return bc, err
	}
	stress, err := parseChannel(s.Stress, "stress")
	if err != nil {
		return bc, err
	}
	bc.Strain = strain
	bc.Stress = stress

	if s.Rotation != nil {
		if len(s.Rotation) != 3 {
			return bc, fmt.Errorf("rotation must have 3 rows")
		}
		for i := 0; i < 3; i++ {
			if len(s.Rotation[i]) != 3 {
				return bc, fmt.Errorf("rotation row %d must have 3 entries", i)
			}
			for j := 0; j < 3; j++ {
				bc.Rotation.Set(i, j, s.Rotation[i][j])
			}
		}
	}

	if err := bc.Validate(); err != nil {
		return bc, err
	}
	return bc, nil
}

// parseChannel reads a 3x3 string matrix; "x" leaves a component to the other
// channel. A nil matrix leaves every component unprescribed.
func parseChannel(rows [][]string, what string) (Channel, error) {
	var ch Channel
	if rows == nil {
		return ch, nil
	}
	if len(rows) != 3 {
		return ch, fmt.Errorf("%s must have 3 rows, got %d", what, len(rows))
	}
	for i := 0; i < 3; i++ {
		if len(rows[i]) != 3 {
			return ch, fmt.Errorf("%s row %d must have 3 entries, got %d", what, i, len(rows[i]))
		}
		for j := 0; j < 3; j++ {
			s := rows[i][j]
			if s == "x" || s == "*" {
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return ch, fmt.Errorf("%s component (%d,%d): %w", what, i, j, err)
			}
			ch.Mask[i*3+j] = true
			ch.Target.Set(i, j, v)
		}
	}
	return ch, nil
}

// Stiffness returns the isotropic reference stiffness of the material block.
func (lc *LoadCase) Stiffness() (tensor.T3333, error) {
	if lc.Material.Young <= 0 || lc.Material.Poisson <= 0 || lc.Material.Poisson >= 0.5 {
		return tensor.T3333{}, fmt.Errorf("solver: material needs young > 0 and 0 < poisson < 0.5")
	}
	return tensor.IsotropicFromEnu(lc.Material.Young, lc.Material.Poisson), nil
}

// ScaleField builds the per-point stiffness scale of the material block on
// grid g, or nil for a homogeneous material.
func (lc *LoadCase) ScaleField(g *grid.Grid) (*grid.Field, error) {
	m := lc.Material
	if m.InclusionFraction == 0 {
		return nil, nil
	}
	if m.InclusionFraction < 0 || m.InclusionFraction >= 1 {
		return nil, fmt.Errorf("solver: inclusion_fraction must lie in [0,1), got %g", m.InclusionFraction)
	}
	if m.InclusionScale <= 0 {
		return nil, fmt.Errorf("solver: inclusion_scale must be positive, got %g", m.InclusionScale)
	}
	cut := int(m.InclusionFraction * float64(g.Res[0]))
	scale := grid.NewField(g, 1)
	scale.Fill(1)
	for k := 0; k < g.Res[2]; k++ {
		for j := 0; j < g.Res[1]; j++ {
			for i := 0; i < cut; i++ {
				scale.Data[scale.Point(i, j, k)] = m.InclusionScale
			}
		}
	}
	return scale, nil
}
