package gsdae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewtonAccelerationDefaultsToOneOnFirstStep(t *testing.T) {
	s := New(1, 1, unitCircleResidual)
	assert.Equal(t, 1.0, s.newtonAcceleration())
}

func TestNewtonAccelerationMatchesFormula(t *testing.T) {
	s := New(1, 1, unitCircleResidual)
	s.cj, s.cjOld = 2, 1
	assert.InDelta(t, 2.0/3.0, s.newtonAcceleration(), 1e-12)
}

func TestResidualAccuracyOKDisabledByDefault(t *testing.T) {
	s := newUnitCircleSolver()
	assert.True(t, s.residualAccuracyOK())
}

func TestResidualAccuracyOKEnforcesFtol(t *testing.T) {
	s := newUnitCircleSolver()
	s.cur.X = 5
	s.cur.Y.Set(0, 0, 0)
	s.fTol = []float64{1e-12}
	assert.False(t, s.residualAccuracyOK())
}

func TestCorrectConvergesForUnitCircleFirstStep(t *testing.T) {
	s := newUnitCircleSolver()
	_, err := s.analyzeStructure()
	require.NoError(t, err)

	s.h = 0.05
	s.k = 1
	s.computeCoefficients()

	// phi[1] seeds the predictor with the analyzed point itself, phi[2]
	// with the first true divided difference h*tangent (firststep's
	// convention - see driver.go's bootstrap).
	s.phiX[1] = s.cur.X
	s.phiX[2] = s.h * s.dcur.X
	s.phiY[1].Set(0, 0, s.cur.Y.At(0, 0))
	s.phiY[2].Set(0, 0, s.h*s.dcur.Y.At(0, 0))
	setWeights(&s.wt, s.cur.X, s.cur.Y, s.o, s.Rank, s.colOf, s.tol)

	outcome, _ := s.correct()
	assert.Equal(t, correctorConverged, outcome)

	f := (s.cur.X*s.cur.X + s.cur.Y.At(0, 0)*s.cur.Y.At(0, 0)) - 1
	assert.InDelta(t, 0, f, 1e-6)
}
