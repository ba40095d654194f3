package gsdae

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeCoefficientsOrderOne(t *testing.T) {
	s := New(1, 1, unitCircleResidual)
	s.h = 0.1
	s.k = 1
	s.computeCoefficients()

	assert.Equal(t, 0.1, s.psi[1])
	assert.Equal(t, 1.0, s.alfa[1])
	assert.Equal(t, 1.0, s.beta[1])
	assert.InDelta(t, -1.0, s.alfaS, 1e-12)
	assert.InDelta(t, 1.0/s.h, s.cj, 1e-12)
}

func TestComputeCoefficientsLeavesCjOldToCorrector(t *testing.T) {
	// cjOld only advances when the corrector actually refreshes DH
	// (correct(), not computeCoefficients itself) - see corrector.go.
	s := New(1, 1, unitCircleResidual)
	s.h = 0.1
	s.k = 1
	s.cjOld = 1.0 / 0.1
	s.dhStale = false
	s.computeCoefficients()
	assert.Equal(t, 1.0/0.1, s.cjOld)
	assert.InDelta(t, 1.0/0.1, s.cj, 1e-12)
	assert.False(t, s.dhStale)

	s.h = 0.2
	s.computeCoefficients()
	assert.Equal(t, 1.0/0.1, s.cjOld)
	assert.InDelta(t, 1.0/0.2, s.cj, 1e-12)
	assert.True(t, s.dhStale)
}

func TestCkIsAtLeastAlfaKPlusOne(t *testing.T) {
	s := New(1, 1, unitCircleResidual)
	s.h = 0.1
	s.k = 1
	s.computeCoefficients()
	assert.GreaterOrEqual(t, s.ck(), s.alfa[s.k+1])
}

func TestAcceptOrRejectAcceptsSmallError(t *testing.T) {
	s := newUnitCircleSolver()
	_, err := s.analyzeStructure()
	assert.NoError(t, err)
	s.h = 0.05
	s.k = 1
	s.ns = 0
	s.computeCoefficients()
	setWeights(&s.wt, s.cur.X, s.cur.Y, s.o, s.Rank, s.colOf, s.tol)

	tiny := make([]float64, s.hDim())
	outcome := s.acceptOrReject(tiny)
	assert.Equal(t, stepAccepted, outcome)
	assert.Equal(t, 1, s.stats.Successes)
}

func TestAcceptOrRejectRejectsLargeErrorAndShrinksH(t *testing.T) {
	s := newUnitCircleSolver()
	_, err := s.analyzeStructure()
	assert.NoError(t, err)
	s.h = 0.05
	s.k = 1
	s.ns = 0
	s.computeCoefficients()
	setWeights(&s.wt, s.cur.X, s.cur.Y, s.o, s.Rank, s.colOf, s.tol)

	huge := make([]float64, s.hDim())
	for i := range huge {
		huge[i] = 1e6
	}
	hBefore := s.h
	outcome := s.acceptOrReject(huge)
	assert.Equal(t, stepRejected, outcome)
	assert.Less(t, s.h, hBefore)
	assert.Equal(t, 1, s.consecutiveRejections)
}
