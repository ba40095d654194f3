package gsdae

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point is a single point on the solution curve c(s) = (x(s), y(s)), carried
// together with enough derivative history to restart the corrector: Y's row
// j holds the j-th arc-length derivative of y, row 0 being y itself. Y always
// has shape (o+1) x n.
type Point struct {
	S float64
	X float64
	Y *mat.Dense
}

// NewPoint allocates a Point for a system of dimension n and order o.
func NewPoint(n, o int) *Point {
	return &Point{Y: mat.NewDense(o+1, n, nil)}
}

// Clone returns a deep copy of p.
func (p *Point) Clone() *Point {
	q := NewPoint(p.Y.RawMatrix().Cols, p.Y.RawMatrix().Rows-1)
	q.S, q.X = p.S, p.X
	q.Y.Copy(p.Y)
	return q
}

// Tangent is the unit tangent vector to c(s) at a Point: X*X plus the sum of
// squares of every entry of Y equals 1 (spec.md's normalization invariant).
// Y has the same shape as the Point it is tangent to.
type Tangent struct {
	X float64
	Y *mat.Dense
}

// NewTangent allocates a Tangent for a system of dimension n and order o.
func NewTangent(n, o int) *Tangent {
	return &Tangent{Y: mat.NewDense(o+1, n, nil)}
}

// Normalize rescales t in place so that X*X + sum(Y_ij^2) == 1. It panics if
// t is the zero vector - the structural analyzer never hands back a zero
// tangent, so this is a programmer-error guard, not a runtime status.
func (t *Tangent) Normalize() {
	norm := t.X * t.X
	r, c := t.Y.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := t.Y.At(i, j)
			norm += v * v
		}
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		throwf("tangent: zero vector cannot be normalized")
	}
	t.X /= norm
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			t.Y.Set(i, j, t.Y.At(i, j)/norm)
		}
	}
}

// weights holds the DASSL-style weight vector wt[i] = rtol*|v| + atol used by
// both the corrector's convergence test and the controller's error norms
// (gsdae.c weightvector). wtX is the scalar weight on the x-component; wtY
// has the same shape as a Point's Y, but only rows 0..o-1 plus rank columns
// of row o are ever populated (the weightnorm below mirrors that).
type weights struct {
	X float64
	Y *mat.Dense
}

// setWeights fills wt from the current iterate c (cx, cy), the order o, the
// structural rank r, the active column permutation cols (1-origin semantics
// dropped; cols[j] is the j-th live column, 0-based), and the tolerances.
func setWeights(wt *weights, cx float64, cy *mat.Dense, o, r int, cols []int, tol Tolerances) {
	wt.X = tol.RelX*math.Abs(cx) + tol.AbsX
	for i := 0; i < o; i++ {
		for j := 0; j < len(cols); j++ {
			k := cols[j]
			wt.Y.Set(i, k, tol.rtolY(i, k)*math.Abs(cy.At(i, k))+tol.atolY(i, k))
		}
	}
	for j := 0; j < r; j++ {
		k := cols[j]
		wt.Y.Set(o, k, tol.rtolY(o, k)*math.Abs(cy.At(o, k))+tol.atolY(o, k))
	}
}

// weightedNorm computes the weighted max-scaled RMS norm of (cx, cy) against
// wt, restricted to the same (order, rank, columns) footprint setWeights
// used - gsdae.c's weightnorm. Scaling by the largest weighted component
// before squaring and averaging keeps the sum-of-squares from over/underflowing
// when components differ by many orders of magnitude.
func weightedNorm(cx float64, cy *mat.Dense, o, r int, cols []int, wt *weights) float64 {
	neq := o*len(cols) + r + 1

	vmax := math.Abs(cx / wt.X)
	for i := 0; i < o; i++ {
		for j := 0; j < len(cols); j++ {
			k := cols[j]
			if v := math.Abs(cy.At(i, k) / wt.Y.At(i, k)); v > vmax {
				vmax = v
			}
		}
	}
	for j := 0; j < r; j++ {
		k := cols[j]
		if v := math.Abs(cy.At(o, k) / wt.Y.At(o, k)); v > vmax {
			vmax = v
		}
	}
	if vmax == 0 {
		return 0
	}

	norm := cx / wt.X / vmax
	sum := norm * norm
	for i := 0; i < o; i++ {
		for j := 0; j < len(cols); j++ {
			k := cols[j]
			aux := cy.At(i, k) / wt.Y.At(i, k) / vmax
			sum += aux * aux
		}
	}
	for j := 0; j < r; j++ {
		k := cols[j]
		aux := cy.At(o, k) / wt.Y.At(o, k) / vmax
		sum += aux * aux
	}
	return vmax * math.Sqrt(sum/float64(neq))
}

// machineEps is the IEEE-754 double relative rounding error, used by the
// corrector's first-iteration convergence shortcut (spec.md §4.5:
// d <= 100*eps*||predicted||_w).
const machineEps = 2.220446049250313e-16

// packedWeights returns the weight vector in the same packed layout as
// newtonWarmStart: r entries of wt.Y[o][col[0:r]], then wt.Y[o-1..0] in
// permuted order, then wt.X last.
func (s *Solver) packedWeights() []float64 {
	n, o, r := s.n, s.o, s.Rank
	w := make([]float64, o*n+r+1)
	idx := 0
	for i := 0; i < r; i++ {
		w[idx] = s.wt.Y.At(o, s.colOf[i])
		idx++
	}
	for j := o - 1; j >= 0; j-- {
		for i := 0; i < n; i++ {
			w[idx] = s.wt.Y.At(j, s.colOf[i])
			idx++
		}
	}
	w[idx] = s.wt.X
	return w
}

// packedWeightedNorm computes the max-scaled RMS norm (the same formula as
// weightedNorm) directly on a packed vector u against s's current weights,
// used by the corrector where u is already in NEWTON's packed layout rather
// than a Point's (j, i) shape.
func packedWeightedNorm(u []float64, s *Solver, _ weights) float64 {
	w := s.packedWeights()
	vmax := 0.0
	for i, v := range u {
		if a := math.Abs(v / w[i]); a > vmax {
			vmax = a
		}
	}
	if vmax == 0 {
		return 0
	}
	sum := 0.0
	for i, v := range u {
		a := v / w[i] / vmax
		sum += a * a
	}
	return vmax * math.Sqrt(sum/float64(len(u)))
}
