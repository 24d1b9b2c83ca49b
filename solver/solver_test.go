package solver

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micromech/spectral/constitutive"
	"github.com/micromech/spectral/grid"
	"github.com/micromech/spectral/tensor"
)

const (
	testYoung   = 210e9
	testPoisson = 0.3
)

func lameConstants() (lambda, mu float64) {
	lambda = testYoung * testPoisson / ((1 + testPoisson) * (1 - 2*testPoisson))
	mu = testYoung / (2 * (1 + testPoisson))
	return
}

func e2eConfig() Config {
	cfg := DefaultConfig()
	cfg.ItMin = 1
	cfg.ItMax = 100
	return cfg
}

// mixedBC controls F11 through the strain channel and leaves every other
// component to a zero-stress target.
func mixedBC(rate float64) BoundaryCondition {
	var bc BoundaryCondition
	bc.Kind = DotF
	bc.Strain.Mask[0] = true
	bc.Strain.Target.Set(0, 0, rate)
	for i := 1; i < 9; i++ {
		bc.Stress.Mask[i] = true
	}
	return bc
}

func TestSolve_UniaxialStrainControlled(t *testing.T) {
	g, err := grid.NewGrid([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	cref := tensor.IsotropicFromEnu(testYoung, testPoisson)
	le := constitutive.NewLinearElastic(cref)
	sc, err := NewContext(g, e2eConfig(), le, cref)
	require.NoError(t, err)

	bc := fullStrainBC(tensor.T33{0.01, 0, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, sc.BeginIncrement(bc, 1.0))

	rep, err := FixedPoint{}.Solve(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, rep.Converged)
	assert.LessOrEqual(t, rep.Iterations, 5)
	assert.Less(t, rep.ErrF, 1e-10)
	assert.Less(t, rep.ErrP, 1e-10)

	// uniform deformation everywhere
	want := tensor.T33{1.01, 0, 0, 0, 1, 0, 0, 0, 1}
	for p := 0; p < g.N(); p++ {
		for c := 0; c < 9; c++ {
			if math.Abs(sc.F.At(p)[c]-want[c]) > 1e-10 {
				t.Fatalf("point %d component %d: got %g, want %g", p, c, sc.F.At(p)[c], want[c])
			}
		}
	}

	lambda, mu := lameConstants()
	assert.InDelta(t, (lambda+2*mu)*0.01, sc.Pav[0], 1e-3*testYoung*1e-6)
	assert.InDelta(t, lambda*0.01, sc.Pav[4], 1e-3*testYoung*1e-6)
	assert.InDelta(t, lambda*0.01, sc.Pav[8], 1e-3*testYoung*1e-6)

	// the oracle was wound forward exactly once for the increment
	assert.Equal(t, 1, le.Advanced())
}

func TestSolve_UniaxialStressFree(t *testing.T) {
	g, err := grid.NewGrid([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	cref := tensor.IsotropicFromEnu(testYoung, testPoisson)
	sc, err := NewContext(g, e2eConfig(), constitutive.NewLinearElastic(cref), cref)
	require.NoError(t, err)

	require.NoError(t, sc.BeginIncrement(mixedBC(0.01), 1.0))
	rep, err := FixedPoint{}.Solve(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, rep.Converged)

	// fixed axial stretch, laterally stress free: the lateral contraction is
	// -lambda/(2*(lambda+mu)) per unit axial strain
	lambda, mu := lameConstants()
	lateral := 1 - 0.01*lambda/(2*(lambda+mu))
	assert.InDelta(t, 1.01, sc.Faim[0], 1e-10)
	assert.InDelta(t, lateral, sc.Faim[4], 1e-8)
	assert.InDelta(t, lateral, sc.Faim[8], 1e-8)

	// stress-controlled components meet their zero target
	for i := 1; i < 9; i++ {
		assert.Less(t, math.Abs(sc.Pav[i]), sc.Cfg.TolStressAbs)
	}
	assert.Greater(t, sc.Pav[0], 0.0)
}

func TestSolve_TwoPhaseLaminate(t *testing.T) {
	g, err := grid.NewGrid([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	cref := tensor.IsotropicFromEnu(testYoung, testPoisson)

	// stiffness scaled 0.9 for the lower half in x and 1.1 for the upper, a
	// laminate with interfaces normal to the loading axis
	le := constitutive.NewLinearElastic(cref)
	le.Scale = grid.NewField(g, 1)
	for k := 0; k < g.Res[2]; k++ {
		for j := 0; j < g.Res[1]; j++ {
			for i := 0; i < g.Res[0]; i++ {
				s := 0.9
				if i >= g.Res[0]/2 {
					s = 1.1
				}
				le.Scale.Data[le.Scale.Point(i, j, k)] = s
			}
		}
	}

	sc, err := NewContext(g, e2eConfig(), le, cref)
	require.NoError(t, err)

	bc := fullStrainBC(tensor.T33{0.01, 0, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, sc.BeginIncrement(bc, 1.0))
	rep, err := FixedPoint{}.Solve(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, rep.Converged)

	// axial stress must be continuous across the laminate, so the soft phase
	// carries more strain: 0.9*e_soft = 1.1*e_stiff with mean 0.01
	eSoft := 0.011
	eStiff := 0.009
	for k := 0; k < g.Res[2]; k++ {
		for j := 0; j < g.Res[1]; j++ {
			for i := 0; i < g.Res[0]; i++ {
				want := 1 + eSoft
				if i >= g.Res[0]/2 {
					want = 1 + eStiff
				}
				got := sc.F.At(sc.F.Point(i, j, k))[0]
				if math.Abs(got-want) > 1e-5 {
					t.Fatalf("F11 at (%d,%d,%d): got %g, want %g", i, j, k, got, want)
				}
			}
		}
	}

	// the volume average matches the prescribed target
	avg := sc.F.Average()
	assert.InDelta(t, 1.01, avg[0], 1e-9)
	assert.InDelta(t, 1.0, avg[4], 1e-9)

	// axial stress between the Reuss and Voigt responses
	lambda, mu := lameConstants()
	hom := (lambda + 2*mu) * 0.01
	assert.Greater(t, sc.Pav[0], 0.9*hom)
	assert.Less(t, sc.Pav[0], 1.1*hom)
}

func TestSolve_RestartIdempotence(t *testing.T) {
	g, err := grid.NewGrid([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	cref := tensor.IsotropicFromEnu(testYoung, testPoisson)

	run := func(sc *Context) {
		t.Helper()
		rep, err := FixedPoint{}.Solve(context.Background(), sc)
		require.NoError(t, err)
		require.True(t, rep.Converged)
		sc.FinishIncrement()
	}

	// first increment, then persist the converged state
	orig, err := NewContext(g, e2eConfig(), constitutive.NewLinearElastic(cref), cref)
	require.NoError(t, err)
	require.NoError(t, orig.BeginIncrement(mixedBC(0.01), 1.0))
	run(orig)

	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, orig.WriteRestart(store))

	// second increment, once continued and once restarted
	require.NoError(t, orig.BeginIncrement(mixedBC(0.01), 1.0))
	run(orig)

	restored, err := RestoreContext(g, e2eConfig(), constitutive.NewLinearElastic(cref), store)
	require.NoError(t, err)
	require.NoError(t, restored.BeginIncrement(mixedBC(0.01), 1.0))
	run(restored)

	for i := range orig.Faim {
		assert.InDelta(t, orig.Faim[i], restored.Faim[i], 1e-12)
	}
	for i := range orig.F.Data {
		if math.Abs(orig.F.Data[i]-restored.F.Data[i]) > 1e-12 {
			t.Fatalf("restored F diverges at %d: %g vs %g", i, restored.F.Data[i], orig.F.Data[i])
		}
	}
	for i := range orig.Flambda.Data {
		if math.Abs(orig.Flambda.Data[i]-restored.Flambda.Data[i]) > 1e-12 {
			t.Fatalf("restored F_lambda diverges at %d", i)
		}
	}
}

func TestRestore_MissingRecord(t *testing.T) {
	g, err := grid.NewGrid([3]int{2, 2, 2}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	cref := tensor.IsotropicFromEnu(testYoung, testPoisson)
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	_, err = RestoreContext(g, e2eConfig(), constitutive.NewLinearElastic(cref), store)
	require.Error(t, err)
}

func TestRestore_SizeMismatch(t *testing.T) {
	cref := tensor.IsotropicFromEnu(testYoung, testPoisson)

	small, err := grid.NewGrid([3]int{2, 2, 2}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	sc, err := NewContext(small, e2eConfig(), constitutive.NewLinearElastic(cref), cref)
	require.NoError(t, err)
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, sc.WriteRestart(store))

	big, err := grid.NewGrid([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	_, err = RestoreContext(big, e2eConfig(), constitutive.NewLinearElastic(cref), store)
	require.Error(t, err)
}

func TestUnknownVectorLayout(t *testing.T) {
	g, err := grid.NewGrid([3]int{2, 1, 1}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	cref := tensor.IsotropicFromEnu(testYoung, testPoisson)
	sc, err := NewContext(g, e2eConfig(), constitutive.NewLinearElastic(cref), cref)
	require.NoError(t, err)

	for p := 0; p < g.N(); p++ {
		for c := 0; c < 9; c++ {
			sc.F.At(p)[c] = float64(100*p + c)
			sc.Flambda.At(p)[c] = float64(100*p + 50 + c)
		}
	}

	x := make([]float64, g.N()*UnknownsPerPoint)
	sc.PackUnknowns(x)
	for p := 0; p < g.N(); p++ {
		for c := 0; c < 9; c++ {
			assert.Equal(t, float64(100*p+c), x[p*UnknownsPerPoint+c])
			assert.Equal(t, float64(100*p+50+c), x[p*UnknownsPerPoint+9+c])
		}
	}

	for i := range x {
		x[i] += 1000
	}
	sc.unpackUnknowns(x)
	assert.Equal(t, float64(1000+50+3), sc.Flambda.At(0)[3])
	assert.Equal(t, float64(1000+100+7), sc.F.At(1)[7])
}

func TestSnapshotRestore_RewindsIncrement(t *testing.T) {
	g, err := grid.NewGrid([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	cref := tensor.IsotropicFromEnu(testYoung, testPoisson)
	sc, err := NewContext(g, e2eConfig(), constitutive.NewLinearElastic(cref), cref)
	require.NoError(t, err)

	snap := sc.Snapshot()
	require.NoError(t, sc.BeginIncrement(mixedBC(0.01), 1.0))
	_, err = FixedPoint{}.Solve(context.Background(), sc)
	require.NoError(t, err)

	sc.Restore(snap)
	assert.Equal(t, tensor.I33(), sc.Faim)
	for i := range sc.F.Data {
		want := 0.0
		if i%9 == 0 || i%9 == 4 || i%9 == 8 {
			want = 1.0
		}
		if sc.F.Data[i] != want {
			t.Fatalf("restored F not identity at %d: %g", i, sc.F.Data[i])
		}
	}

	// retry with a halved step succeeds from the rewound state
	require.NoError(t, sc.BeginIncrement(mixedBC(0.01), 0.5))
	rep, err := FixedPoint{}.Solve(context.Background(), sc)
	require.NoError(t, err)
	require.True(t, rep.Converged)
	assert.InDelta(t, 1.005, sc.Faim[0], 1e-10)
}
