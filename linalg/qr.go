// Package linalg implements the small dense kernels the arc-length DAE
// stepper needs: a row-pivoted Givens QR for the (n+1)xn tangent system and
// the square Newton system, a full-pivot rank-revealing QR for the algebraic Jacobian block,
// and the triangular solves that ride on top of both. n is always small
// (on the order of the DAE's spatial dimension), so these are serial,
// allocation-light routines rather than a call into LAPACK: gonum's
// generic mat.QR targets m>=n dense factorization and exposes no rank or
// pivot information, which is exactly what the structural analyzer needs.
package linalg

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RankThreshold is the pivot magnitude below which a column is considered
// numerically zero by the rank-revealing QR. Matches the original solver's
// GSDAE-CODE threshold for declaring a row/column dependent.
const RankThreshold = 1e-15

// GivensQR holds the in-place row-pivoted Givens factorization of an m x n
// matrix A with m in {n, n+1}. After Factorize, A's strict upper triangle
// holds R and Q holds the accumulated orthogonal transform Q^T (A = Q R).
type GivensQR struct {
	A    *mat.Dense // m x n, overwritten with R on the diagonal and above
	Q    *mat.Dense // m x m, accumulates Q^T
	Cond float64    // crude condition estimate, see Factorize
}

// NewGivensQR allocates scratch for an m x n factorization.
func NewGivensQR(m, n int) *GivensQR {
	return &GivensQR{
		A: mat.NewDense(m, n, nil),
		Q: mat.NewDense(m, m, nil),
	}
}

// Factorize computes the row-pivoted Givens QR of a (already populated)
// qr.A, optionally choosing the pivot row at each column by largest
// remaining magnitude. The condition estimate is the ratio of the largest
// strict-upper-triangle entry to the diagonal entry in its column - not a
// true condition number, but cheap and sufficient to drive the solver's
// ill-conditioning guard.
func (qr *GivensQR) Factorize(pivot bool) {
	m, n := qr.A.Dims()

	qr.Q.Zero()
	for i := 0; i < m; i++ {
		qr.Q.Set(i, i, 1)
	}

	for i := 0; i < m-1; i++ {
		if pivot {
			pivotRow(i, qr.A, qr.Q)
		}
		for j := i + 1; j < m; j++ {
			givensRotate(i, j, qr.A, qr.Q, qr.A.At(i, i), qr.A.At(j, i))
		}
	}

	if n == 1 {
		qr.Cond = math.Abs(1 / qr.A.At(0, 0))
		return
	}
	cond := 0.0
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			v := math.Abs(qr.A.At(j, i) / qr.A.At(i, i))
			if v > cond {
				cond = v
			}
		}
	}
	qr.Cond = cond
}

// pivotRow swaps row k with the row in [k, m) of A with the largest |A[.,k]|,
// mirroring the swap in both A and the accumulating Q.
func pivotRow(k int, A, Q *mat.Dense) {
	m, _ := A.Dims()
	best := math.Abs(A.At(k, k))
	bestRow := k
	for i := k + 1; i < m; i++ {
		if v := math.Abs(A.At(i, k)); v > best {
			best = v
			bestRow = i
		}
	}
	if bestRow != k {
		swapRows(A, k, bestRow)
		swapRows(Q, k, bestRow)
	}
}

func swapRows(m *mat.Dense, i, j int) {
	_, n := m.Dims()
	for c := 0; c < n; c++ {
		vi, vj := m.At(i, c), m.At(j, c)
		m.Set(i, c, vj)
		m.Set(j, c, vi)
	}
}

// givensRotate zeroes A[k][col] using a rotation between rows i and k, the
// pivot column being wherever (s1, s2) = (A[i][col], A[k][col]) came from.
// Applies the same rotation to Q so Q keeps tracking Q^T.
func givensRotate(i, k int, A, Q *mat.Dense, s1, s2 float64) {
	if math.Abs(s1)+math.Abs(s2) == 0 {
		return
	}
	var s float64
	if math.Abs(s2) >= math.Abs(s1) {
		s = math.Sqrt(1+(s1/s2)*(s1/s2)) * math.Abs(s2)
	} else {
		s = math.Sqrt(1+(s2/s1)*(s2/s1)) * math.Abs(s1)
	}
	c1, c2 := s1/s, s2/s

	_, n := A.Dims()
	for j := 0; j < n; j++ {
		a, b := A.At(i, j), A.At(k, j)
		A.Set(i, j, c1*a+c2*b)
		A.Set(k, j, -c2*a+c1*b)
	}
	_, m := Q.Dims()
	for j := 0; j < m; j++ {
		a, b := Q.At(i, j), Q.At(k, j)
		Q.Set(i, j, c1*a+c2*b)
		Q.Set(k, j, -c2*a+c1*b)
	}
}

// NewtonSolve solves the damped Newton step min||Ax-b|| for the m x n
// matrix A (m in {n, n+1}) that Factorize has already factored (qr.A holds
// R, qr.Q holds Q^T). ac is the modified-Newton acceleration factor
// (spec: ac = 2/(1+cj/cjold)).
//
//	u = ac * (top-n block of Q^T b)
//	solve R x = u by back substitution over the first n rows
func (qr *GivensQR) NewtonSolve(b []float64, ac float64) []float64 {
	_, n := qr.A.Dims()
	u := make([]float64, n)
	for i := 0; i < n; i++ {
		s := 0.0
		for j := 0; j < len(b); j++ {
			s += qr.Q.At(i, j) * b[j]
		}
		u[i] = ac * s
	}
	for i := n - 1; i >= 0; i-- {
		for j := i + 1; j < n; j++ {
			u[i] -= qr.A.At(i, j) * u[j]
		}
		u[i] /= qr.A.At(i, i)
	}
	return u
}
