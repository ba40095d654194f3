package linalg

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Permutation is a full-length row or column reassignment, kept separate
// from any notion of rank (spec.md's redesign note: row/column pivots mix
// permutation semantics with rank book-keeping in the original; here a
// Permutation is always a full bijection on [0,n) and rank is reported
// alongside it, never folded in).
type Permutation []int

// Identity returns the trivial permutation of length n.
func Identity(n int) Permutation {
	p := make(Permutation, n)
	for i := range p {
		p[i] = i
	}
	return p
}

func (p Permutation) swap(i, j int) {
	p[i], p[j] = p[j], p[i]
}

// RankRevealingQR factors a square n x n matrix A in place using full
// pivoting (global max over the trailing block at each step), tracking row
// permutation Row and column permutation Col. It returns the numerical
// rank: the largest i such that |A[Row[i]][Col[i]]| >= RankThreshold.
//
// Unlike GivensQR, this variant permutes rows and columns of the algebraic
// Jacobian block DFy[o] rather than computing an explicit Q matrix product;
// the rotation log is still accumulated in Q so callers needing the
// orthogonal factor (the tangent computation does not; it only needs rank
// and the permutations) can reconstruct it.
type RankRevealingQR struct {
	A    *mat.Dense // n x n, overwritten with R under the permutation
	Q    *mat.Dense // n x n, accumulates the rotation log
	Row, Col Permutation
	Rank int
}

// NewRankRevealingQR allocates scratch for an n x n factorization.
func NewRankRevealingQR(n int) *RankRevealingQR {
	return &RankRevealingQR{
		A:  mat.NewDense(n, n, nil),
		Q:  mat.NewDense(n, n, nil),
		Row: Identity(n),
		Col: Identity(n),
	}
}

// Factorize runs the full-pivot rank-revealing decomposition and sets Rank.
func (qr *RankRevealingQR) Factorize() int {
	n, _ := qr.A.Dims()
	qr.Q.Zero()
	qr.Row = Identity(n)
	qr.Col = Identity(n)
	for i := 0; i < n; i++ {
		qr.Q.Set(i, i, 1)
	}

	for i := 0; i < n-1; i++ {
		if qr.pivot(i) < RankThreshold {
			qr.Rank = i
			return qr.Rank
		}
		for k := i + 1; k < n; k++ {
			qr.rotate(i, k, qr.A.At(qr.Row[i], qr.Col[i]), qr.A.At(qr.Row[k], qr.Col[i]))
		}
	}

	if math.Abs(qr.A.At(qr.Row[n-1], qr.Col[n-1])) < RankThreshold {
		qr.Rank = n - 1
		return qr.Rank
	}
	qr.Rank = n
	return qr.Rank
}

// pivot finds the largest |A[P[i..n)][Q[i..n)]]| and swaps it into (i,i),
// returning its magnitude.
func (qr *RankRevealingQR) pivot(k int) float64 {
	n, _ := qr.A.Dims()
	best := math.Abs(qr.A.At(qr.Row[k], qr.Col[k]))
	bi, bj := k, k
	for i := k; i < n; i++ {
		for j := k; j < n; j++ {
			if v := math.Abs(qr.A.At(qr.Row[i], qr.Col[j])); v > best {
				best, bi, bj = v, i, j
			}
		}
	}
	if bi != k {
		qr.Row.swap(k, bi)
	}
	if bj != k {
		qr.Col.swap(k, bj)
	}
	return best
}

// rotate applies a Givens rotation zeroing A[P[k]][Q2[i]] using row P[i] as
// pivot, under the active row/column permutation, mirroring it into Q.
func (qr *RankRevealingQR) rotate(i, k int, s1, s2 float64) {
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

	n, _ := qr.A.Dims()
	pi, pk := qr.Row[i], qr.Row[k]
	for j := 0; j < n; j++ {
		qj := qr.Col[j]
		a, b := qr.A.At(pi, qj), qr.A.At(pk, qj)
		qr.A.Set(pi, qj, c1*a+c2*b)
		qr.A.Set(pk, qj, -c2*a+c1*b)
		a, b = qr.Q.At(pi, qj), qr.Q.At(pk, qj)
		qr.Q.Set(pi, qj, c1*a+c2*b)
		qr.Q.Set(pk, qj, -c2*a+c1*b)
	}
}

// SolveSystem solves the permuted triangular system Ax=y produced by
// Factorize: y is first rotated by the accumulated Q under the
// permutation, then back-substituted against the permuted R.
func (qr *RankRevealingQR) SolveSystem(y []float64) []float64 {
	n, _ := qr.A.Dims()
	x := make([]float64, n)
	copy(x, y)

	rotated := make([]float64, n)
	for i := 0; i < n; i++ {
		pi := qr.Row[i]
		s := 0.0
		for j := 0; j < n; j++ {
			s += qr.Q.At(pi, qr.Col[j]) * x[qr.Col[j]]
		}
		rotated[pi] = s
	}

	for i := n - 1; i >= 0; i-- {
		pi, qi := qr.Row[i], qr.Col[i]
		s := 0.0
		for j := i + 1; j < n; j++ {
			s += qr.A.At(pi, qr.Col[j]) * x[qr.Col[j]]
		}
		x[qi] = (rotated[pi] - s) / qr.A.At(pi, qi)
	}
	return x
}
