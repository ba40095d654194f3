package gsdae

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// sqrtEps is the machine-epsilon square root used to scale finite-difference
// perturbations, mirroring the teacher's timespan.go dlamchE-style constant
// but computed directly rather than hardcoded.
var sqrtEps = math.Sqrt(2.220446049250313e-16)

// packDH assembles dst, the o*n+r+1 square Jacobian of the packed residual H
// with respect to the packed unknown vector (cy[o][col[0:r]], cy[o-1][*],
// ..., cy[0][*], cx), using the analytic Jacobian when available and the
// one-sided finite-difference approximation (spec.md §4.3) otherwise.
func (s *Solver) packDH(dst *mat.Dense, cx float64, cy *mat.Dense, dcx float64, dcy *mat.Dense, h float64) {
	if s.analytic {
		s.packDHAnalytic(dst, cx, cy, dcx, dcy, h)
		return
	}
	s.packDHFiniteDifference(dst, cx, cy, dcx, dcy, h)
}

// packDHAnalytic fills dst from the user-supplied DF: entries are permuted
// DFy[j][col[j']][row[i]] and +-cj*y^(j) / +-cj contributions positioned per
// H's block structure (spec.md §4.3).
func (s *Solver) packDHAnalytic(dst *mat.Dense, cx float64, cy *mat.Dense, dcx float64, dcy *mat.Dense, h float64) {
	n, o, r := s.n, s.o, s.Rank
	dfx := make([]float64, n)
	dfy := make([][]float64, o+1)
	for j := range dfy {
		dfy[j] = make([]float64, n*n)
	}
	s.jacobian(o, n, cx, cy, dfx, dfy)
	s.dfEvals++

	dim := s.hDim()
	dst.Zero()

	for i := 0; i < n; i++ {
		row := s.rowOf[i]
		for j := 0; j <= o; j++ {
			for c := 0; c < n; c++ {
				col := s.colOf[c]
				dst.Set(row, colIndex(j, c, o, n, r), dfy[j][i*n+col])
			}
		}
		dst.Set(row, dim-1, dfx[i])
	}

	idx := n
	for j := o - 1; j >= 1; j-- {
		for i := 0; i < n; i++ {
			dst.Set(idx, colIndex(j+1, i, o, n, r), h*dcx)
			dst.Set(idx, colIndex(j, i, o, n, r), -h)
			idx++
		}
	}
	if o >= 1 {
		for i := 0; i < r; i++ {
			dst.Set(idx, colIndex(o, i, o, n, r), h*dcx)
			dst.Set(idx, colIndex(o-1, i, o, n, r), -h)
			idx++
		}
	}

	last := dim - 1
	dst.Set(last, last, 2*h*dcx)
	for j := 0; j <= o; j++ {
		for i := 0; i < n; i++ {
			dst.Set(last, colIndex(j, i, o, n, r), 2*h*dcy.At(j, i))
		}
	}
}

// colIndex maps (derivative order j, spatial index i) to its column in the
// packed Jacobian, matching packH's layout: columns 0..r-1 are cy[o][col],
// then cy[o-1][*] .. cy[0][*], then cx last.
func colIndex(j, i, o, n, r int) int {
	if j == o {
		return i
	}
	return r + (o-1-j)*n + i
}

// packDHFiniteDifference fills dst with one-sided finite differences of H,
// perturbing each packed coordinate by delta = sqrt(eps) * max(|h*deriv|,
// |value|, |weight|), snapped to machine representation, and shifting the
// companion derivative dy[k][i] (dx for the x column) by delta*cj to
// preserve the BDF relation during probing (spec.md §4.3).
func (s *Solver) packDHFiniteDifference(dst *mat.Dense, cx float64, cy *mat.Dense, dcx float64, dcy *mat.Dense, h float64) {
	dim := s.hDim()
	base := make([]float64, dim)
	s.packH(base, cx, cy, dcx, dcy, h)

	perturbed := make([]float64, dim)
	n, o, r := s.n, s.o, s.Rank

	perturbCol := func(j, i int, weight float64) {
		pc := s.colOf[i]
		value := cy.At(j, pc)
		deriv := dcy.At(j, pc)
		delta := sqrtEps * math.Max(math.Abs(h*deriv), math.Max(math.Abs(value), weight))
		if delta == 0 {
			delta = sqrtEps
		}
		delta = math.Copysign(delta, h*deriv)
		snapped := (value + delta) - value

		cy.Set(j, pc, value+snapped)
		dOld := dcy.At(j, pc)
		dcy.Set(j, pc, dOld+snapped*s.cj)

		s.packH(perturbed, cx, cy, dcx, dcy, h)
		col := colIndex(j, i, o, n, r)
		for row := 0; row < dim; row++ {
			dst.Set(row, col, (perturbed[row]-base[row])/snapped)
		}

		cy.Set(j, pc, value)
		dcy.Set(j, pc, dOld)
	}

	for j := 0; j <= o; j++ {
		lim := n
		if j == o {
			lim = r
		}
		for i := 0; i < lim; i++ {
			perturbCol(j, i, s.wt.Y.At(j, s.colOf[i]))
		}
	}

	// x column.
	delta := sqrtEps * math.Max(math.Abs(h*dcx), math.Max(math.Abs(cx), s.wt.X))
	if delta == 0 {
		delta = sqrtEps
	}
	delta = math.Copysign(delta, h*dcx)
	snapped := (cx + delta) - cx
	s.packH(perturbed, cx+snapped, cy, dcx+snapped*s.cj, dcy, h)
	last := dim - 1
	for row := 0; row < dim; row++ {
		dst.Set(row, last, (perturbed[row]-base[row])/snapped)
	}
}

// CheckJacobian cross-checks an analytic Jacobian against a central-
// difference approximation of the residual at (x, y), returning the max
// absolute discrepancy per output component. Only the dF/dy blocks are
// compared; the dfx returned by df is not checked. Intended for tests and for a
// caller validating WithAnalyticJacobian before a production run - it is
// never invoked on the solver's hot path, so it affords the heavier
// gonum/diff/fd central-difference cost that packDHFiniteDifference avoids.
// F: R^((o+1)n) -> R^n, so the Jacobian is assembled one row at a time via
// fd.Gradient on each output component (this package's diff/fd exposes
// Gradient, not a batched Jacobian helper).
func CheckJacobian(o, n int, x float64, y *mat.Dense, f Residual, df Jacobian) []float64 {
	flat := make([]float64, (o+1)*n)
	for j := 0; j <= o; j++ {
		for i := 0; i < n; i++ {
			flat[j*n+i] = y.At(j, i)
		}
	}

	delta := make([]float64, n)
	component := func(k int) func([]float64) float64 {
		return func(in []float64) float64 {
			yy := mat.NewDense(o+1, n, nil)
			for j := 0; j <= o; j++ {
				for i := 0; i < n; i++ {
					yy.Set(j, i, in[j*n+i])
				}
			}
			f(o, n, x, yy, delta)
			return delta[k]
		}
	}

	dfx := make([]float64, n)
	dfy := make([][]float64, o+1)
	for j := range dfy {
		dfy[j] = make([]float64, n*n)
	}
	df(o, n, x, y, dfx, dfy)

	grad := make([]float64, (o+1)*n)
	maxDiff := make([]float64, n)
	for k := 0; k < n; k++ {
		fd.Gradient(grad, component(k), flat, &fd.Settings{Formula: fd.Central})
		for j := 0; j <= o; j++ {
			for c := 0; c < n; c++ {
				d := math.Abs(grad[j*n+c] - dfy[j][k*n+c])
				if d > maxDiff[k] {
					maxDiff[k] = d
				}
			}
		}
	}
	return maxDiff
}
