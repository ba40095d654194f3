package gsdae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolateAtZeroReproducesPhi1(t *testing.T) {
	s := newUnitCircleSolver()
	_, err := s.analyzeStructure()
	require.NoError(t, err)

	s.h = 0.05
	s.k, s.kOld = 1, 1
	s.computeCoefficients()
	s.phiX[1] = s.cur.X
	s.phiX[2] = s.h * s.dcur.X
	s.phiY[1].Set(0, 0, s.cur.Y.At(0, 0))
	s.phiY[2].Set(0, 0, s.h*s.dcur.Y.At(0, 0))

	pt, tg := NewPoint(s.n, s.o), NewTangent(s.n, s.o)
	s.interpolateAt(0, pt, tg)

	assert.InDelta(t, s.cur.X, pt.X, 1e-12)
	assert.InDelta(t, s.cur.Y.At(0, 0), pt.Y.At(0, 0), 1e-12)
}

func TestEndpointByXConvergesOnCurrentPoint(t *testing.T) {
	s := newUnitCircleSolver()
	_, err := s.analyzeStructure()
	require.NoError(t, err)

	s.h = 0.05
	s.k, s.kOld = 1, 1
	s.computeCoefficients()
	s.phiX[1] = s.cur.X
	s.phiX[2] = s.h * s.dcur.X
	s.phiY[1].Set(0, 0, s.cur.Y.At(0, 0))
	s.phiY[2].Set(0, 0, s.h*s.dcur.Y.At(0, 0))

	pt, err := s.endpointByX(s.cur.X)
	require.NoError(t, err)
	assert.InDelta(t, s.cur.X, pt.X, 1e-8)
}

func TestLocalizeSingularityShortcutsWhenKoldOne(t *testing.T) {
	s := newUnitCircleSolver()
	s.kOld = 1
	s.cur.S = 3.5
	pt, err := s.localizeSingularity()
	require.NoError(t, err)
	assert.Equal(t, s.cur.S, pt.S)
}
