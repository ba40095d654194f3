package gsdae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// linearResidual implements F(x, y) = A*y - b for a fixed 2x2 A, used as a
// residual whose analytic Jacobian is trivial to state exactly.
func linearResidual(o, n int, x float64, y *mat.Dense, delta []float64) {
	a11, a12, a21, a22 := 2.0, 1.0, 0.0, 3.0
	delta[0] = a11*y.At(0, 0) + a12*y.At(0, 1) - x
	delta[1] = a21*y.At(0, 0) + a22*y.At(0, 1) - 2*x
}

func linearJacobian(o, n int, x float64, y *mat.Dense, dfx []float64, dfy [][]float64) {
	dfx[0], dfx[1] = -1, -2
	dfy[0][0*n+0] = 2
	dfy[0][0*n+1] = 1
	dfy[0][1*n+0] = 0
	dfy[0][1*n+1] = 3
}

func TestCheckJacobianMatchesAnalyticForLinearResidual(t *testing.T) {
	y := mat.NewDense(1, 2, []float64{1, 1})
	maxDiff := CheckJacobian(0, 2, 0.5, y, linearResidual, linearJacobian)
	for i, d := range maxDiff {
		assert.InDeltaf(t, 0, d, 1e-6, "component %d diff too large: %v", i, d)
	}
}

func TestColIndexLayoutMatchesPackH(t *testing.T) {
	o, n, r := 2, 3, 2
	// top-derivative block (j == o) occupies columns [0, r)
	assert.Equal(t, 0, colIndex(o, 0, o, n, r))
	assert.Equal(t, 1, colIndex(o, 1, o, n, r))
	// the next block down (j == o-1) occupies columns [r, r+n)
	assert.Equal(t, r, colIndex(o-1, 0, o, n, r))
	assert.Equal(t, r+n-1, colIndex(o-1, n-1, o, n, r))
	// the bottom block (j == 0) occupies the last n columns before x
	assert.Equal(t, r+n, colIndex(0, 0, o, n, r))
}
