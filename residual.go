package gsdae

import "gonum.org/v1/gonum/mat"

// Residual is the user-supplied F(x, y, y', ..., y^(o)) = 0. y has shape
// (o+1) x n (row j is the j-th derivative); delta is the caller-owned output
// slice of length n.
type Residual func(o, n int, x float64, y *mat.Dense, delta []float64)

// Jacobian is the user-supplied analytic derivative of F: dfx is length n
// (∂F/∂x), dfy has shape (o+1) x n x n with dfy[j][k][i] = ∂F_k/∂y^(j)_i. A
// Solver built without one falls back to the one-sided finite-difference
// approximation in jacobian.go.
type Jacobian func(o, n int, x float64, y *mat.Dense, dfx []float64, dfy [][]float64)

// packH assembles the augmented residual H(c, c') = (F(c); w(c)c'; ||c'||^2-1)
// into dst, applying the active row permutation row (on F's n rows) and
// column permutation col (on y's spatial index), per spec.md §4.2. dst must
// have length o*n+r+1.
//
// Layout: dst[0:n] = F(x,y)[row[i]]; then, for j descending from o-1 to 1,
// n entries h*(y[j+1][col[i]]*dx - y[j][col[i]]'); then, when o >= 1, the
// first r permuted columns of the top-derivative block; last entry
// h*(dx*dx+sum(dy^2)-1).
func (s *Solver) packH(dst []float64, cx float64, cy *mat.Dense, dcx float64, dcy *mat.Dense, h float64) {
	n, o, r := s.n, s.o, s.Rank
	f := make([]float64, n)
	s.residual(o, n, cx, cy, f)
	s.fEvals++

	for i := 0; i < n; i++ {
		dst[s.rowOf[i]] = f[i]
	}

	idx := n
	for j := o - 1; j >= 1; j-- {
		for i := 0; i < n; i++ {
			col := s.colOf[i]
			dst[idx] = h * (cy.At(j+1, col)*dcx - dcy.At(j, col))
			idx++
		}
	}
	if o >= 1 {
		for i := 0; i < r; i++ {
			col := s.colOf[i]
			dst[idx] = h * (cy.At(o, col)*dcx - dcy.At(o-1, col))
			idx++
		}
	}

	sq := dcx * dcx
	for j := 0; j <= o; j++ {
		for i := 0; i < n; i++ {
			v := dcy.At(j, i)
			sq += v * v
		}
	}
	dst[idx] = h * (sq - 1)
}

// hDim returns o*n+r+1, the length of the packed residual/Newton vector for
// the current (n, o, r).
func (s *Solver) hDim() int {
	return s.o*s.n + s.Rank + 1
}
