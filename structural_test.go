package gsdae

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// unitCircleResidual implements F(x, y) = x^2 + y^2 - 1, the order-1 scenario
// from the acceptance suite.
func unitCircleResidual(o, n int, x float64, y *mat.Dense, delta []float64) {
	delta[0] = x*x + y.At(0, 0)*y.At(0, 0) - 1
}

// newUnitCircleSolver seeds the solver at spec scenario 1's starting point,
// (x, y0) = (0, 1) - a regular point for the order-0 algebraic block, since
// the residual never references y's order-1 row and so dF/dy^(1) is
// identically singular everywhere: every analyzeStructure call on this
// fixture discovers order 0, regardless of where on the circle it starts.
func newUnitCircleSolver() *Solver {
	s := New(1, 1, unitCircleResidual, WithStepBounds(0.01, 1e-14, 1))
	s.cur.X = 0
	s.cur.Y.Set(0, 0, 1)
	s.dir = 1
	return s
}

func TestAnalyzeStructureFullRankRegular(t *testing.T) {
	s := newUnitCircleSolver()
	status, err := s.analyzeStructure()
	require.NoError(t, err)
	// The declared order (1) never matches this residual (it only reads
	// y's row 0), so every analysis discovers order 0 and reports the
	// order drop alongside the full-rank result.
	assert.Equal(t, StatusRegularOrderDrop, status)
	assert.Equal(t, 0, s.Order)
	assert.Equal(t, 1, s.Rank)

	norm := s.dcur.X*s.dcur.X + s.dcur.Y.At(0, 0)*s.dcur.Y.At(0, 0)
	assert.InDelta(t, 1.0, norm, 1e-6)
}

func TestAnalyzeStructureRejectsInfeasibleInitialPoint(t *testing.T) {
	s := newUnitCircleSolver()
	s.cur.X = 5 // 25 + 1 - 1 far outside tolerance
	status, err := s.analyzeStructure()
	assert.Error(t, err)
	assert.Equal(t, StatusInitialPointInfeasible, status)
}

func TestResidualWithinToleranceUsesRelXFallback(t *testing.T) {
	s := newUnitCircleSolver()
	s.tol = NewScalarTolerances(0, 1e-6, 0, 1e-6)
	assert.True(t, s.residualWithinTolerance([]float64{1e-9}))
	assert.False(t, s.residualWithinTolerance([]float64{1}))
}

func TestRankInNeighborhoodStableWhenBlockIsIdenticallySingular(t *testing.T) {
	s := newUnitCircleSolver()
	baseline, _ := s.factorAlgebraicBlock(s.o)
	r := s.rankInNeighborhood(s.o, baseline)
	assert.Equal(t, baseline, r)
}

func TestFiniteDifferenceAlgebraicBlockMatchesAnalytic(t *testing.T) {
	s := newUnitCircleSolver()
	dfy := make([]float64, 1)
	s.cur.X = 1
	s.cur.Y.Set(0, 0, 0)
	s.finiteDifferenceAlgebraicBlock(0, dfy)
	// d/dy0 (x^2+y0^2-1) = 2*y0 = 0 at y0=0
	assert.InDelta(t, 0, dfy[0], 1e-4)

	s.cur.Y.Set(0, 0, 1)
	s.cur.X = 0
	s.finiteDifferenceAlgebraicBlock(0, dfy)
	assert.InDelta(t, 2, dfy[0], 1e-4)
}

func TestExtractTangentSignMatchesDir(t *testing.T) {
	s := newUnitCircleSolver()
	s.dir = -1
	_, err := s.analyzeStructure()
	require.NoError(t, err)
	assert.True(t, math.Signbit(s.dcur.X) == math.Signbit(s.dir) || s.dcur.X == 0)
}
