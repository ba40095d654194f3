package gsdae

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPointShape(t *testing.T) {
	p := NewPoint(3, 2)
	r, c := p.Y.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
}

func TestPointCloneIsIndependent(t *testing.T) {
	p := NewPoint(2, 1)
	p.S, p.X = 1.5, 2.5
	p.Y.Set(0, 0, 10)

	q := p.Clone()
	q.Y.Set(0, 0, -10)
	q.X = 99

	assert.Equal(t, 10.0, p.Y.At(0, 0))
	assert.Equal(t, 2.5, p.X)
	assert.Equal(t, 1.5, q.S)
}

func TestTangentNormalize(t *testing.T) {
	tg := NewTangent(1, 0)
	tg.X = 3
	tg.Y.Set(0, 0, 4)
	tg.Normalize()

	norm := tg.X*tg.X + tg.Y.At(0, 0)*tg.Y.At(0, 0)
	assert.InDelta(t, 1.0, norm, 1e-12)
	assert.InDelta(t, 0.6, tg.X, 1e-12)
	assert.InDelta(t, 0.8, tg.Y.At(0, 0), 1e-12)
}

func TestTangentNormalizeZeroPanics(t *testing.T) {
	tg := NewTangent(1, 0)
	require.Panics(t, func() { tg.Normalize() })
}

func TestWeightedNormScalesLargestComponent(t *testing.T) {
	wt := &weights{X: 1, Y: NewPoint(2, 0).Y}
	wt.Y.Set(0, 0, 1)
	wt.Y.Set(0, 1, 1)

	cy := NewPoint(2, 0).Y
	cy.Set(0, 0, 3)
	cy.Set(0, 1, 4)

	norm := weightedNorm(0, cy, 1, 0, []int{0, 1}, wt)
	expected := math.Sqrt((0*0+3*3+4*4)/3.0) / 1.0 * 1.0
	assert.InDelta(t, expected, norm, 1e-12)
	assert.Greater(t, norm, 0.0)
}

func TestSetWeightsPopulatesActiveColumns(t *testing.T) {
	wt := &weights{Y: NewPoint(2, 1).Y}
	cy := NewPoint(2, 1).Y
	cy.Set(0, 0, 2)
	cy.Set(1, 1, 3)
	tol := NewScalarTolerances(1e-10, 1e-8, 1e-10, 1e-8)

	setWeights(wt, 0, cy, 1, 1, []int{0, 1}, tol)

	assert.Greater(t, wt.Y.At(0, 0), 0.0)
	assert.Greater(t, wt.Y.At(1, 0), 0.0)
}
