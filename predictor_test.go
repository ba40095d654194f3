package gsdae

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredictSumsPhiForOrderOne(t *testing.T) {
	s := New(1, 1, unitCircleResidual)
	s.k = 1
	s.phiX[1] = 0.1
	s.phiX[2] = 0.01
	s.phiY[1].Set(0, 0, 0.2)
	s.phiY[2].Set(0, 0, 0.02)
	s.gama[1] = 0
	s.gama[2] = 5

	s.predict()

	assert.InDelta(t, 0.11, s.cur.X, 1e-12)
	assert.InDelta(t, 0.22, s.cur.Y.At(0, 0), 1e-12)
	assert.InDelta(t, 0.05, s.dcur.X, 1e-12) // gama[1]*phiX[1] + gama[2]*phiX[2]
}

func TestNewtonWarmStartRoundTripsThroughUnpack(t *testing.T) {
	s := New(2, 1, unitCircleResidual)
	s.Rank = 2
	s.cur.X = 1.5
	s.cur.Y.Set(0, 0, 2)
	s.cur.Y.Set(0, 1, 3)
	s.cur.Y.Set(1, 0, 4)
	s.cur.Y.Set(1, 1, 5)

	packed := make([]float64, s.hDim())
	s.newtonWarmStart(packed)

	var gotX float64
	gotY := map[[2]int]float64{}
	s.unpackInto(packed,
		func(v float64) { gotX = v },
		func(j, i int, v float64) { gotY[[2]int{j, i}] = v },
	)

	assert.InDelta(t, 1.5, gotX, 1e-12)
	assert.InDelta(t, 2, gotY[[2]int{0, 0}], 1e-12)
	assert.InDelta(t, 3, gotY[[2]int{0, 1}], 1e-12)
	assert.InDelta(t, 4, gotY[[2]int{1, 0}], 1e-12)
	assert.InDelta(t, 5, gotY[[2]int{1, 1}], 1e-12)
}
