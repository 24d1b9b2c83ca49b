// Package grid defines the periodic structured grid that all spectral fields
// live on: a regular (nx, ny, nz) lattice of material points covering a
// rectangular physical domain with periodic boundaries in every direction.
package grid

import "fmt"

// Grid describes a periodic structured grid: Res points per axis over a
// physical domain of extent Size.
type Grid struct {
	Res  [3]int
	Size [3]float64
}

// NewGrid validates the resolution and domain extent.
func NewGrid(res [3]int, size [3]float64) (*Grid, error) {
	for a := 0; a < 3; a++ {
		if res[a] < 1 {
			return nil, fmt.Errorf("grid: resolution must be positive, got %v", res)
		}
		if size[a] <= 0 {
			return nil, fmt.Errorf("grid: domain size must be positive, got %v", size)
		}
	}
	return &Grid{Res: res, Size: size}, nil
}

// N returns the total number of grid points.
func (g *Grid) N() int {
	return g.Res[0] * g.Res[1] * g.Res[2]
}

// NHalf returns the number of complex samples along the first axis after a
// real-to-complex transform.
func (g *Grid) NHalf() int {
	return g.Res[0]/2 + 1
}

// NModes returns the number of Fourier modes on the half-grid.
func (g *Grid) NModes() int {
	return g.NHalf() * g.Res[1] * g.Res[2]
}

// Step returns the physical spacing between neighboring points per axis.
func (g *Grid) Step() [3]float64 {
	return [3]float64{
		g.Size[0] / float64(g.Res[0]),
		g.Size[1] / float64(g.Res[1]),
		g.Size[2] / float64(g.Res[2]),
	}
}

// Freq maps a transform output index to its discrete frequency using the
// wrap-around convention: indices beyond n/2 count as negative frequencies.
func Freq(i, n int) int {
	if i > n/2 {
		return i - n
	}
	return i
}

// Wavevector returns the physical wavevector (cycles per unit length) of the
// half-grid mode (ih, j, k). The first axis carries only non-negative
// frequencies because of Hermitian symmetry.
func (g *Grid) Wavevector(ih, j, k int) [3]float64 {
	return [3]float64{
		float64(ih) / g.Size[0],
		float64(Freq(j, g.Res[1])) / g.Size[1],
		float64(Freq(k, g.Res[2])) / g.Size[2],
	}
}
