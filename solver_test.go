package gsdae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewPanicsOnBadInput(t *testing.T) {
	assert.Panics(t, func() { New(0, 1, unitCircleResidual) })
	assert.Panics(t, func() { New(1, -1, unitCircleResidual) })
	assert.Panics(t, func() { New(1, 1, nil) })
}

func TestSetInitialPointCopiesShapeMatchingPoint(t *testing.T) {
	s := New(1, 1, unitCircleResidual)
	s.SetInitialPoint(1, mat.NewDense(2, 1, []float64{0, 1}))
	assert.Equal(t, 1.0, s.cur.X)
	assert.Equal(t, 0.0, s.cur.Y.At(0, 0))
	assert.Equal(t, 1.0, s.cur.Y.At(1, 0))
}

func TestSetInitialPointPanicsOnShapeMismatch(t *testing.T) {
	s := New(1, 1, unitCircleResidual)
	assert.Panics(t, func() { s.SetInitialPoint(1, mat.NewDense(1, 1, []float64{0})) })
}

func TestSetInitialPointPanicsAfterIntegrationStarted(t *testing.T) {
	s := newUnitCircleSolver()
	_, err := s.bootstrap()
	require.NoError(t, err)
	assert.Panics(t, func() { s.SetInitialPoint(2, mat.NewDense(2, 1, []float64{0, 0})) })
}
