// Package tensor implements the small dense tensor algebra the spectral
// solver needs: 3x3 second-order tensors, 3x3x3x3 fourth-order tensors, and
// the masked compliance used for mixed stress/strain loading.
package tensor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// T33 is a 3x3 tensor in row-major order: element (i,j) is T33[i*3+j].
type T33 [9]float64

// T3333 is a 3x3x3x3 tensor in row-major order: element (i,j,k,l) is
// T3333[((i*3+j)*3+k)*3+l].
type T3333 [81]float64

// ErrSingular reports a tensor inversion that failed or is too
// ill-conditioned to trust.
var ErrSingular = errors.New("tensor: singular or near-singular inversion")

// I33 returns the second-order identity.
func I33() T33 {
	return T33{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// At returns element (i, j).
func (t T33) At(i, j int) float64 { return t[i*3+j] }

// Set assigns element (i, j).
func (t *T33) Set(i, j int, v float64) { t[i*3+j] = v }

// Add returns t + o.
func (t T33) Add(o T33) T33 {
	var r T33
	for i := range r {
		r[i] = t[i] + o[i]
	}
	return r
}

// Sub returns t - o.
func (t T33) Sub(o T33) T33 {
	var r T33
	for i := range r {
		r[i] = t[i] - o[i]
	}
	return r
}

// Scale returns s*t.
func (t T33) Scale(s float64) T33 {
	var r T33
	for i := range r {
		r[i] = s * t[i]
	}
	return r
}

// Mul returns the matrix product t·o.
func (t T33) Mul(o T33) T33 {
	var r T33
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += t[i*3+k] * o[k*3+j]
			}
			r[i*3+j] = s
		}
	}
	return r
}

// Transpose returns the transpose of t.
func (t T33) Transpose() T33 {
	var r T33
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i*3+j] = t[j*3+i]
		}
	}
	return r
}

// MaskScale returns the component-wise product t_ij * m_ij.
func (t T33) MaskScale(m T33) T33 {
	var r T33
	for i := range r {
		r[i] = t[i] * m[i]
	}
	return r
}

// MaxAbs returns the largest absolute component.
func (t T33) MaxAbs() float64 {
	var m float64
	for _, v := range t {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// Norm returns the Frobenius norm.
func (t T33) Norm() float64 {
	var s float64
	for _, v := range t {
		s += v * v
	}
	return math.Sqrt(s)
}

// HasNaN reports whether any component is NaN.
func (t T33) HasNaN() bool {
	for _, v := range t {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Det returns the determinant.
func (t T33) Det() float64 {
	return t[0]*(t[4]*t[8]-t[5]*t[7]) -
		t[1]*(t[3]*t[8]-t[5]*t[6]) +
		t[2]*(t[3]*t[7]-t[4]*t[6])
}

// Inverse returns the inverse of t, or ErrSingular.
func (t T33) Inverse() (T33, error) {
	d := t.Det()
	if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return T33{}, ErrSingular
	}
	inv := 1.0 / d
	var r T33
	r[0] = (t[4]*t[8] - t[5]*t[7]) * inv
	r[1] = (t[2]*t[7] - t[1]*t[8]) * inv
	r[2] = (t[1]*t[5] - t[2]*t[4]) * inv
	r[3] = (t[5]*t[6] - t[3]*t[8]) * inv
	r[4] = (t[0]*t[8] - t[2]*t[6]) * inv
	r[5] = (t[2]*t[3] - t[0]*t[5]) * inv
	r[6] = (t[3]*t[7] - t[4]*t[6]) * inv
	r[7] = (t[1]*t[6] - t[0]*t[7]) * inv
	r[8] = (t[0]*t[4] - t[1]*t[3]) * inv
	return r, nil
}

// At returns element (i, j, k, l).
func (c T3333) At(i, j, k, l int) float64 { return c[((i*3+j)*3+k)*3+l] }

// Set assigns element (i, j, k, l).
func (c *T3333) Set(i, j, k, l int, v float64) { c[((i*3+j)*3+k)*3+l] = v }

// Contract returns the double contraction y_ij = C_ijkl x_kl.
func (c T3333) Contract(x T33) T33 {
	var y T33
	for ij := 0; ij < 9; ij++ {
		var s float64
		base := ij * 9
		for kl := 0; kl < 9; kl++ {
			s += c[base+kl] * x[kl]
		}
		y[ij] = s
	}
	return y
}

// Scale returns s*C.
func (c T3333) Scale(s float64) T3333 {
	var r T3333
	for i := range r {
		r[i] = s * c[i]
	}
	return r
}

// Add returns C + D.
func (c T3333) Add(d T3333) T3333 {
	var r T3333
	for i := range r {
		r[i] = c[i] + d[i]
	}
	return r
}

// ToMat returns the 9x9 matrix representation with row index (ij) and column
// index (kl).
func (c T3333) ToMat() *mat.Dense {
	m := mat.NewDense(9, 9, nil)
	for ij := 0; ij < 9; ij++ {
		for kl := 0; kl < 9; kl++ {
			m.Set(ij, kl, c[ij*9+kl])
		}
	}
	return m
}

// FromMat builds a T3333 from its 9x9 matrix representation.
func FromMat(m mat.Matrix) T3333 {
	var c T3333
	for ij := 0; ij < 9; ij++ {
		for kl := 0; kl < 9; kl++ {
			c[ij*9+kl] = m.At(ij, kl)
		}
	}
	return c
}

// Inverse inverts the fourth-order tensor through its 9x9 matrix
// representation. A singular reference stiffness is unrecoverable for the
// caller, so near-singular systems are reported as errors as well.
func (c T3333) Inverse() (T3333, error) {
	var inv mat.Dense
	if err := inv.Inverse(c.ToMat()); err != nil {
		return T3333{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return FromMat(&inv), nil
}

// MaskedCompliance inverts C restricted to the tensor components selected by
// mask, returning a compliance that is zero on all unselected rows and
// columns. A fully unselected mask yields the zero tensor, which disables the
// stress-control correction for fully strain-controlled loading.
func MaskedCompliance(c T3333, mask [9]bool) (T3333, error) {
	var sel []int
	for ij := 0; ij < 9; ij++ {
		if mask[ij] {
			sel = append(sel, ij)
		}
	}
	var s T3333
	if len(sel) == 0 {
		return s, nil
	}
	n := len(sel)
	sub := mat.NewDense(n, n, nil)
	for a, ij := range sel {
		for b, kl := range sel {
			sub.Set(a, b, c[ij*9+kl])
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(sub); err != nil {
		return T3333{}, fmt.Errorf("%w: masked stiffness block: %v", ErrSingular, err)
	}
	for a, ij := range sel {
		for b, kl := range sel {
			s[ij*9+kl] = inv.At(a, b)
		}
	}
	return s, nil
}

// IsotropicStiffness builds the isotropic map C_ijkl = lambda d_ij d_kl +
// 2 mu d_ik d_jl from the Lame parameters. On symmetric arguments it
// coincides with classical isotropic elasticity; unlike the minor-symmetric
// form it is invertible on the full 9-dimensional tensor space, which a
// reference stiffness must be.
func IsotropicStiffness(lambda, mu float64) T3333 {
	var c T3333
	d := func(a, b int) float64 {
		if a == b {
			return 1
		}
		return 0
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				for l := 0; l < 3; l++ {
					c.Set(i, j, k, l, lambda*d(i, j)*d(k, l)+2*mu*d(i, k)*d(j, l))
				}
			}
		}
	}
	return c
}

// IsotropicFromEnu builds the isotropic stiffness from Young's modulus and
// Poisson's ratio.
func IsotropicFromEnu(e, nu float64) T3333 {
	lambda := e * nu / ((1 + nu) * (1 - 2*nu))
	mu := e / (2 * (1 + nu))
	return IsotropicStiffness(lambda, mu)
}
