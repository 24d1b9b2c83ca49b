package constitutive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micromech/spectral/grid"
	"github.com/micromech/spectral/tensor"
)

func TestLinearElastic_UniformStretch(t *testing.T) {
	g, err := grid.NewGrid([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	lambda, mu := 2.0, 1.5
	le := NewLinearElastic(tensor.IsotropicStiffness(lambda, mu))

	f := grid.NewField(g, 9)
	f.FillTensor([]float64{1.01, 0, 0, 0, 1, 0, 0, 0, 1})
	f0 := grid.NewField(g, 9)
	f0.FillIdentity()

	resp, err := le.Respond(context.Background(), Request{
		F0: f0, F: f, Temperature: 300, Dt: 1, Rotation: tensor.I33(),
	})
	require.NoError(t, err)

	assert.InDelta(t, (lambda+2*mu)*0.01, resp.Pav.At(0, 0), 1e-12)
	assert.InDelta(t, lambda*0.01, resp.Pav.At(1, 1), 1e-12)
	assert.InDelta(t, lambda*0.01, resp.Pav.At(2, 2), 1e-12)
	for p := 0; p < g.N(); p++ {
		assert.InDelta(t, (lambda+2*mu)*0.01, resp.P.At(p)[0], 1e-12)
	}
	assert.Equal(t, le.C, resp.C)
}

func TestLinearElastic_ForwardFlagAdvances(t *testing.T) {
	g, err := grid.NewGrid([3]int{2, 2, 2}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	le := NewLinearElastic(tensor.IsotropicStiffness(2, 1.5))

	f := grid.NewField(g, 9)
	f.FillIdentity()
	req := Request{F0: f, F: f, Forward: true}
	_, err = le.Respond(context.Background(), req)
	require.NoError(t, err)
	req.Forward = false
	_, err = le.Respond(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, le.Advanced())
}

func TestLinearElastic_TwoPhaseScale(t *testing.T) {
	g, err := grid.NewGrid([3]int{4, 4, 4}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	lambda, mu := 2.0, 1.5
	le := NewLinearElastic(tensor.IsotropicStiffness(lambda, mu))

	// stiffer inclusion in the first half of the grid
	scale := grid.NewField(g, 1)
	scale.Fill(1)
	for p := 0; p < g.N()/2; p++ {
		scale.Data[p] = 2
	}
	le.Scale = scale

	f := grid.NewField(g, 9)
	f.FillTensor([]float64{1.01, 0, 0, 0, 1, 0, 0, 0, 1})
	resp, err := le.Respond(context.Background(), Request{F0: f, F: f})
	require.NoError(t, err)

	p11 := (lambda + 2*mu) * 0.01
	assert.InDelta(t, 2*p11, resp.P.At(0)[0], 1e-12)
	assert.InDelta(t, p11, resp.P.At(g.N()-1)[0], 1e-12)
	assert.InDelta(t, 1.5*p11, resp.Pav.At(0, 0), 1e-12)
	assert.InDelta(t, 1.5*le.C.At(0, 0, 0, 0), resp.C.At(0, 0, 0, 0), 1e-12)
}

func TestLinearElastic_BadRequest(t *testing.T) {
	le := NewLinearElastic(tensor.IsotropicStiffness(2, 1.5))
	_, err := le.Respond(context.Background(), Request{})
	assert.Error(t, err)
}
