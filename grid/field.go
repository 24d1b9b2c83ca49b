package grid

import "fmt"

// Field is a real-valued field sampled at every grid point with Comps scalar
// components per point. Storage is point-major: the components of point
// p = (k*ny+j)*nx + i occupy Data[p*Comps : (p+1)*Comps], with the tensor
// components of a 3x3-valued field in row-major order.
type Field struct {
	Grid  *Grid
	Comps int
	Data  []float64
}

// NewField allocates a zero field with comps components per point.
func NewField(g *Grid, comps int) *Field {
	return &Field{Grid: g, Comps: comps, Data: make([]float64, g.N()*comps)}
}

// Point returns the flat point index of (i, j, k).
func (f *Field) Point(i, j, k int) int {
	nx, ny := f.Grid.Res[0], f.Grid.Res[1]
	return (k*ny+j)*nx + i
}

// At returns the components of point p as a slice into Data.
func (f *Field) At(p int) []float64 {
	return f.Data[p*f.Comps : (p+1)*f.Comps]
}

// Fill sets every component of every point to v.
func (f *Field) Fill(v float64) {
	for i := range f.Data {
		f.Data[i] = v
	}
}

// FillTensor broadcasts one per-point value across the whole grid.
func (f *Field) FillTensor(t []float64) {
	if len(t) != f.Comps {
		panic(fmt.Sprintf("grid: FillTensor got %d components, field has %d", len(t), f.Comps))
	}
	for p := 0; p < f.Grid.N(); p++ {
		copy(f.At(p), t)
	}
}

// FillIdentity sets a 9-component field to the identity tensor everywhere.
func (f *Field) FillIdentity() {
	if f.Comps != 9 {
		panic(fmt.Sprintf("grid: FillIdentity requires 9 components, field has %d", f.Comps))
	}
	f.FillTensor([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// Average returns the per-component volume average.
func (f *Field) Average() []float64 {
	avg := make([]float64, f.Comps)
	n := f.Grid.N()
	for p := 0; p < n; p++ {
		pt := f.At(p)
		for c := range avg {
			avg[c] += pt[c]
		}
	}
	inv := 1.0 / float64(n)
	for c := range avg {
		avg[c] *= inv
	}
	return avg
}

// Clone returns an independent copy.
func (f *Field) Clone() *Field {
	out := NewField(f.Grid, f.Comps)
	copy(out.Data, f.Data)
	return out
}

// CopyFrom overwrites f with src, which must share grid and component count.
func (f *Field) CopyFrom(src *Field) {
	if src.Grid.N() != f.Grid.N() || src.Comps != f.Comps {
		panic("grid: CopyFrom shape mismatch")
	}
	copy(f.Data, src.Data)
}

// Fourier is the half-grid complex counterpart of a Field, produced by a
// real-to-complex transform. Storage is mode-major with the same component
// ordering as Field: mode m = (k*ny+j)*nh + ih occupies
// Data[m*Comps : (m+1)*Comps].
type Fourier struct {
	Grid  *Grid
	Comps int
	Data  []complex128
}

// NewFourier allocates a zero Fourier field.
func NewFourier(g *Grid, comps int) *Fourier {
	return &Fourier{Grid: g, Comps: comps, Data: make([]complex128, g.NModes()*comps)}
}

// Mode returns the flat mode index of half-grid coordinates (ih, j, k).
func (f *Fourier) Mode(ih, j, k int) int {
	nh, ny := f.Grid.NHalf(), f.Grid.Res[1]
	return (k*ny+j)*nh + ih
}

// At returns the components of mode m as a slice into Data.
func (f *Fourier) At(m int) []complex128 {
	return f.Data[m*f.Comps : (m+1)*f.Comps]
}
