package gamma

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micromech/spectral/grid"
	"github.com/micromech/spectral/spectral"
	"github.com/micromech/spectral/tensor"
)

func setup(t *testing.T, res [3]int) (*grid.Grid, *spectral.Engine, *Operator) {
	t.Helper()
	g, err := grid.NewGrid(res, [3]float64{1, 1, 1})
	require.NoError(t, err)
	eng, err := spectral.NewEngine()
	require.NoError(t, err)
	return g, eng, NewOperator(g, eng)
}

func TestUpdate_IsotropicReferenceKeepsAllModes(t *testing.T) {
	_, _, op := setup(t, [3]int{4, 4, 4})
	skipped, err := op.Update(tensor.IsotropicStiffness(2.0, 1.5))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Zero(t, op.Skipped())
}

func TestUpdate_ZeroReferenceFails(t *testing.T) {
	_, _, op := setup(t, [3]int{4, 4, 4})
	_, err := op.Update(tensor.T3333{})
	assert.ErrorIs(t, err, ErrSingularReference)
}

func TestConvolve_ZeroModeExclusion(t *testing.T) {
	// the operator never reads the input field's volume average: adding any
	// constant tensor to the field must not change the output
	g, _, op := setup(t, [3]int{4, 4, 4})
	_, err := op.Update(tensor.IsotropicStiffness(2.0, 1.5))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(5))
	f := grid.NewField(g, 9)
	for i := range f.Data {
		f.Data[i] = rng.NormFloat64()
	}
	avg := tensor.T33{1.01, 0, 0, 0, 1, 0, 0, 0, 1}

	out1, err := op.Convolve(f, avg)
	require.NoError(t, err)

	shift := tensor.T33{5, -3, 2, 1, 4, -2, 0.5, 7, -1}
	shifted := f.Clone()
	for p := 0; p < g.N(); p++ {
		pt := shifted.At(p)
		for c := 0; c < 9; c++ {
			pt[c] += shift[c]
		}
	}
	out2, err := op.Convolve(shifted, avg)
	require.NoError(t, err)

	for i := range out1.Data {
		assert.InDelta(t, out1.Data[i], out2.Data[i], 1e-10)
	}
}

func TestConvolve_AverageIsPrescribed(t *testing.T) {
	g, _, op := setup(t, [3]int{4, 4, 4})
	_, err := op.Update(tensor.IsotropicStiffness(2.0, 1.5))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	f := grid.NewField(g, 9)
	for i := range f.Data {
		f.Data[i] = rng.NormFloat64()
	}
	avg := tensor.T33{1.5, 0.1, 0, 0, 0.9, 0, 0.2, 0, 1.1}

	out, err := op.Convolve(f, avg)
	require.NoError(t, err)
	got := out.Average()
	for c := 0; c < 9; c++ {
		assert.InDelta(t, avg[c], got[c], 1e-10)
	}
}

func TestConvolve_UniformFieldReturnsAverage(t *testing.T) {
	// a uniform polarization has no nonzero modes: the output is exactly the
	// prescribed average everywhere
	g, _, op := setup(t, [3]int{4, 4, 4})
	_, err := op.Update(tensor.IsotropicStiffness(2.0, 1.5))
	require.NoError(t, err)

	f := grid.NewField(g, 9)
	f.FillTensor([]float64{3, 1, 4, 1, 5, 9, 2, 6, 5})
	avg := tensor.T33{1.01, 0, 0, 0, 1, 0, 0, 0, 1}

	out, err := op.Convolve(f, avg)
	require.NoError(t, err)
	for p := 0; p < g.N(); p++ {
		pt := out.At(p)
		for c := 0; c < 9; c++ {
			assert.InDelta(t, avg[c], pt[c], 1e-12)
		}
	}
}

func TestApply_ProjectsCompatibleFields(t *testing.T) {
	// for a compatible fluctuation field F = grad(u), convolving C:F must
	// reproduce -F up to the prescribed average (the operator responds to a
	// polarization tau with the negated equilibrium fluctuation)
	g, _, op := setup(t, [3]int{8, 8, 8})
	cref := tensor.IsotropicStiffness(2.0, 1.5)
	_, err := op.Update(cref)
	require.NoError(t, err)

	// compatible fluctuation: F_0c = d/dc (sin term), single harmonic in x
	f := grid.NewField(g, 9)
	nx, ny, nz := g.Res[0], g.Res[1], g.Res[2]
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				p := (k*ny+j)*nx + i
				x := float64(i) / float64(nx)
				f.Data[p*9+0] = 0.01 * math.Cos(2*math.Pi*x)
			}
		}
	}

	tau := grid.NewField(g, 9)
	for p := 0; p < g.N(); p++ {
		var ft tensor.T33
		copy(ft[:], f.At(p))
		ct := cref.Contract(ft)
		copy(tau.At(p), ct[:])
	}

	out, err := op.Convolve(tau, tensor.T33{})
	require.NoError(t, err)
	for i := range out.Data {
		assert.InDelta(t, -f.Data[i], out.Data[i], 1e-10)
	}
}
