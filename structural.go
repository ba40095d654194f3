package gsdae

import (
	"math"

	"github.com/pkg/errors"
)

// rankThreshold2 is the perturbation magnitude used by the rank-in-
// neighborhood probe (spec.md §4.7.1), distinct from linalg.RankThreshold
// which gates pivot magnitude inside the QR itself.
const rankThreshold2 = 1e-6

// analyzeStructure evaluates F at the current point, determines the rank of
// dF/dy^(o) (or accepts the user's declared rank), probes rank stability in
// a neighborhood when the measured rank is deficient, reduces the DAE order
// if the top block is identically singular, builds the tangent matrix B,
// and extracts the normalized tangent. Returns the informative status code
// (0..5) or a negative failure code (spec.md §4.7).
func (s *Solver) analyzeStructure() (Status, error) {
	n := s.n

	f := make([]float64, n)
	s.residual(s.o, n, s.cur.X, s.cur.Y, f)
	s.fEvals++
	if !s.residualWithinTolerance(f) {
		return StatusInitialPointInfeasible, errors.New("structural: initial point does not satisfy F within tolerance")
	}

	origOrder := s.o
	o := origOrder
	for {
		if !s.rankSet {
			r1, err := s.factorAlgebraicBlock(o)
			if err != nil {
				return StatusDeclaredRankTooLow, errors.Wrap(err, "structural: factoring dF/dy^(o)")
			}
			if r1 > n {
				return StatusDeclaredRankTooLow, nil
			}
			if r1 < n {
				r2 := s.rankInNeighborhood(o, r1)
				if r1 == r2 {
					// rank stays low throughout the neighborhood: a genuine
					// reduction, not an isolated singularity.
					if r1 == 0 {
						if o == 0 {
							return StatusIllPosed, errors.New("structural: order and rank both zero")
						}
						o--
						continue
					}
					s.Rank = r1
				} else {
					// rank differs nearby: a transversal-singularity
					// candidate, confirmed only if the neighborhood is at
					// full rank (otherwise the drop isn't isolated to this
					// point - not transversal).
					if r2 != n {
						return StatusRankVaries, errors.New("structural: rank varies in neighborhood")
					}
					s.Rank = n
				}
			} else {
				s.Rank = r1
			}
		} else {
			s.Rank = s.declaredRank
		}
		break
	}
	s.o = o
	s.Order = o

	rankDrop := s.Rank < n
	orderDrop := o < origOrder
	s.lastRankDrop, s.lastOrderDrop = rankDrop, orderDrop

	status, err := s.buildTangent(rankDrop, orderDrop)
	if err != nil {
		return status, err
	}
	return status, nil
}

// residualWithinTolerance checks |F[i]| <= ftol[i] when residual tolerances
// were supplied, falling back to the scalar x-tolerance per spec.md §4.7.
func (s *Solver) residualWithinTolerance(f []float64) bool {
	if len(s.fTol) > 0 && s.fTol[0] != 0 {
		for i, v := range f {
			if math.Abs(v) > s.fTol[i] {
				return false
			}
		}
		return true
	}
	for _, v := range f {
		if math.Abs(v) > s.tol.RelX {
			return false
		}
	}
	return true
}

// factorAlgebraicBlock assembles dF/dy^(o) (analytic or one-sided FD) and
// runs the full-pivot rank-revealing QR on it, updating s.rowOf/s.colOf and
// returning the measured rank.
func (s *Solver) factorAlgebraicBlock(o int) (int, error) {
	n := s.n
	dfx := make([]float64, n)
	dfy := make([][]float64, o+1)
	for j := range dfy {
		dfy[j] = make([]float64, n*n)
	}
	if s.analytic {
		s.jacobian(o, n, s.cur.X, s.cur.Y, dfx, dfy)
		s.dfEvals++
	} else {
		s.finiteDifferenceAlgebraicBlock(o, dfy[o])
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			s.qrRank.A.Set(i, j, dfy[o][i*n+j])
		}
	}
	r := s.qrRank.Factorize()
	s.stats.QRFactorizations++
	copy(s.rowOf, s.qrRank.Row)
	copy(s.colOf, s.qrRank.Col)
	return r, nil
}

// finiteDifferenceAlgebraicBlock fills dfyO (row-major n x n, dfyO[i*n+j] =
// dF_i/dy^(o)_j) via one-sided differences when no analytic Jacobian was
// supplied.
func (s *Solver) finiteDifferenceAlgebraicBlock(o int, dfyO []float64) {
	n := s.n
	base := make([]float64, n)
	s.residual(o, n, s.cur.X, s.cur.Y, base)
	s.fEvals++

	perturbed := make([]float64, n)
	for j := 0; j < n; j++ {
		v := s.cur.Y.At(o, j)
		delta := sqrtEps * math.Max(math.Abs(v), 1)
		s.cur.Y.Set(o, j, v+delta)
		s.residual(o, n, s.cur.X, s.cur.Y, perturbed)
		s.fEvals++
		s.cur.Y.Set(o, j, v)
		for i := 0; i < n; i++ {
			dfyO[i*n+j] = (perturbed[i] - base[i]) / delta
		}
	}
}

// rankInNeighborhood perturbs cx and every cy[k][l] by +-1e-6 (spec.md
// §4.7.1), recomputing the rank of dF/dy^(ord) at each perturbed point, and
// returns the first differing rank or baseline if none differs. baseline is
// the rank already measured at the current (unperturbed) point.
func (s *Solver) rankInNeighborhood(ord, baseline int) int {
	perturb := func(apply func(delta float64)) int {
		apply(rankThreshold2)
		rPlus, _ := s.factorAlgebraicBlock(ord)
		apply(-2 * rankThreshold2)
		rMinus, _ := s.factorAlgebraicBlock(ord)
		apply(rankThreshold2)
		if rPlus != baseline {
			return rPlus
		}
		return rMinus
	}

	if r := perturb(func(d float64) { s.cur.X += d }); r != baseline {
		return r
	}
	for k := 0; k <= ord; k++ {
		for l := 0; l < s.n; l++ {
			if r := perturb(func(d float64) { s.cur.Y.Set(k, l, s.cur.Y.At(k, l)+d) }); r != baseline {
				return r
			}
		}
	}
	return baseline
}

// buildTangent assembles the (n+1) x n matrix B (spec.md §4.7.2): row 0
// holds the total derivative of each residual equation along the curve
// (dF/dx plus the already-known lower-order y terms), and rows 1..n hold
// the permuted algebraic/sub-algebraic Jacobian columns, one row per
// y-variable. Its row-pivoted Givens QR yields the unit tangent as the
// last row of the accumulated Q (the null vector of B's columns).
func (s *Solver) buildTangent(rankDrop, orderDrop bool) (Status, error) {
	n, o, r := s.n, s.o, s.Rank
	dfx := make([]float64, n)
	dfy := make([][]float64, o+1)
	for j := range dfy {
		dfy[j] = make([]float64, n*n)
	}
	if s.analytic {
		s.jacobian(o, n, s.cur.X, s.cur.Y, dfx, dfy)
		s.dfEvals++
	} else {
		for j := 0; j <= o; j++ {
			s.finiteDifferenceAlgebraicBlock(j, dfy[j])
		}
		base := make([]float64, n)
		s.residual(o, n, s.cur.X, s.cur.Y, base)
		s.fEvals++
		perturbed := make([]float64, n)
		delta := sqrtEps * math.Max(math.Abs(s.cur.X), 1)
		s.residual(o, n, s.cur.X+delta, s.cur.Y, perturbed)
		s.fEvals++
		for i := range dfx {
			dfx[i] = (perturbed[i] - base[i]) / delta
		}
	}

	// Row 0 of B is the total-derivative row: one entry per residual
	// equation (permuted by rowOf), combining dF/dx with the known lower-
	// order y derivatives already fixed by the current point.
	for i := 0; i < n; i++ {
		fi := s.rowOf[i]
		total := dfx[fi]
		for k := 0; k <= o-2; k++ {
			for j := 0; j < n; j++ {
				yj := s.colOf[j]
				total += dfy[k][fi*n+yj] * s.cur.Y.At(k+1, yj)
			}
		}
		if o >= 1 {
			for j := 0; j < r; j++ {
				yj := s.colOf[j]
				total += dfy[o-1][fi*n+yj] * s.cur.Y.At(o, yj)
			}
		}
		s.qrB.A.Set(0, i, total)
	}

	// Rows 1..n of B, one per permuted y-variable j: the rank-r algebraic
	// columns of dF/dy^(o) for j < r (and 0 beyond the first r residual
	// equations, per the original's explicit zero block), the sub-order
	// Jacobian columns of dF/dy^(o-1) for j >= r.
	for j := 0; j < n; j++ {
		yj := s.colOf[j]
		for i := 0; i < n; i++ {
			fi := s.rowOf[i]
			var v float64
			if j < r {
				if i < r {
					v = dfy[o][fi*n+yj]
				}
			} else if o >= 1 {
				v = dfy[o-1][fi*n+yj]
			}
			s.qrB.A.Set(j+1, i, v)
		}
	}

	s.qrB.Factorize(true)
	s.stats.QRFactorizations++
	if s.qrB.Cond > s.cdMax {
		switch {
		case rankDrop && orderDrop:
			return StatusNonTransversalOrderDrop, errors.New("structural: non-transversal singularity with order drop")
		case rankDrop:
			return StatusNonTransversalRankDrop, errors.New("structural: non-transversal singularity with rank drop")
		default:
			return StatusNonTransversalSingularity, errors.New("structural: non-transversal singularity")
		}
	}

	s.extractTangent()

	// A point where the curve's tangent has (near) zero x-component is a
	// transversal singularity in its own right (spec.md §4.7.2): x(s) has
	// a turning point here, the same condition the driver's per-step
	// sign-change test looks for between structural analyses.
	singular := math.Abs(s.dcur.X) < s.tol.AbsX
	switch {
	case singular && orderDrop:
		return StatusSingularityOrderDrop, nil
	case singular && rankDrop:
		return StatusSingularityRankDrop, nil
	case singular:
		return StatusTransversalSingularity, nil
	case orderDrop:
		return StatusRegularOrderDrop, nil
	case rankDrop:
		return StatusRegularRankDrop, nil
	default:
		return StatusRegular, nil
	}
}

// extractTangent pulls the last row of Q^T out of qrB (the null vector of
// B's columns) into s.dcur and normalizes it. Column idx of that row (idx =
// 1..n) is the tauy component for the permuted y-variable colOf[idx-1], so
// it is written back through colOf to the physical y-index.
func (s *Solver) extractTangent() {
	m, _ := s.qrB.Q.Dims()
	n := m - 1
	last := m - 1
	s.dcur.X = s.qrB.Q.At(last, 0)
	for j := 0; j < n; j++ {
		yj := s.colOf[j]
		s.dcur.Y.Set(0, yj, s.qrB.Q.At(last, j+1))
	}
	s.dcur.Normalize()
	if math.Signbit(s.dcur.X) != math.Signbit(s.dir) && s.dir != 0 {
		s.dcur.X = -s.dcur.X
		r, c := s.dcur.Y.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				s.dcur.Y.Set(i, j, -s.dcur.Y.At(i, j))
			}
		}
	}
}
