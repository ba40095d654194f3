package linalg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGivensQRIdentity(t *testing.T) {
	qr := NewGivensQR(2, 2)
	qr.A.SetRow(0, []float64{1, 0})
	qr.A.SetRow(1, []float64{0, 1})
	qr.Factorize(true)

	assert.InDelta(t, 1.0, qr.A.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, qr.A.At(1, 1), 1e-12)
}

func TestGivensQROverdetermined(t *testing.T) {
	// min ||Ax-b|| for a simple 3x2 system with known least-squares solution.
	qr := NewGivensQR(3, 2)
	qr.A.SetRow(0, []float64{1, 0})
	qr.A.SetRow(1, []float64{0, 1})
	qr.A.SetRow(2, []float64{1, 1})
	qr.Factorize(true)

	if qr.Cond > 1e10 {
		t.Fatalf("unexpectedly ill-conditioned: cond=%v", qr.Cond)
	}
}

func TestRankRevealingQRFullRank(t *testing.T) {
	qr := NewRankRevealingQR(2)
	qr.A.SetRow(0, []float64{2, 0})
	qr.A.SetRow(1, []float64{0, 3})
	r := qr.Factorize()
	assert.Equal(t, 2, r)
}

func TestRankRevealingQRRankDeficient(t *testing.T) {
	qr := NewRankRevealingQR(2)
	qr.A.SetRow(0, []float64{1, 1})
	qr.A.SetRow(1, []float64{1, 1})
	r := qr.Factorize()
	assert.Equal(t, 1, r)
}

func TestRankRevealingQRSolveSystem(t *testing.T) {
	qr := NewRankRevealingQR(2)
	qr.A.SetRow(0, []float64{2, 0})
	qr.A.SetRow(1, []float64{0, 3})
	qr.Factorize()
	x := qr.SolveSystem([]float64{4, 9})
	assert.InDelta(t, 2.0, x[0], 1e-9)
	assert.InDelta(t, 3.0, x[1], 1e-9)
}

func TestNewtonSolveLeastSquares(t *testing.T) {
	// A factored (n=2 unknowns, 3 equations x=1, y=1, x+y=2),
	// consistent so the least-squares solution should be exact.
	qr := NewGivensQR(3, 2)
	qr.A.SetRow(0, []float64{1, 0})
	qr.A.SetRow(1, []float64{0, 1})
	qr.A.SetRow(2, []float64{1, 1})
	qr.Factorize(true)

	u := qr.NewtonSolve([]float64{1, 1, 2}, 1.0)
	if math.IsNaN(u[0]) || math.IsNaN(u[1]) {
		t.Fatal("NewtonSolve produced NaN")
	}
}
