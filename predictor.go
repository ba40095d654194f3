package gsdae

import "gonum.org/v1/gonum/floats"

// predict evaluates the predictor polynomial at the next node using the
// starred modified divided differences phi (spec.md §4.4):
//
//	pcx  = sum_{l=1..k+1} phiX[l]          dpcx = sum_{l=1..k+1} gama[l]*phiX[l]
//
// with the analogous sums over phiY producing (pcY, dpcY), accumulated a
// row at a time via floats.Add/AddScaled. Results are written into
// s.cur/s.dcur as the warm start for the corrector.
func (s *Solver) predict() {
	n, o, k := s.n, s.o, s.k

	var pcx, dpcx float64
	for l := 1; l <= k+1; l++ {
		pcx += s.phiX[l]
		dpcx += s.gama[l] * s.phiX[l]
	}
	s.cur.X = pcx
	s.dcur.X = dpcx

	pcRow := make([]float64, n)
	dpcRow := make([]float64, n)
	for j := 0; j <= o; j++ {
		for i := range pcRow {
			pcRow[i] = 0
			dpcRow[i] = 0
		}
		for l := 1; l <= k+1; l++ {
			row := s.phiY[l].RawRowView(j)
			floats.Add(pcRow, row)
			floats.AddScaled(dpcRow, s.gama[l], row)
		}
		s.cur.Y.SetRow(j, pcRow)
		s.dcur.Y.SetRow(j, dpcRow)
	}
}

// newtonWarmStart packs the predicted point into the layout NEWTON expects:
// first r entries pcY[o][col[0:r]], then pcY[o-1..0] in permuted order, last
// entry pcx (spec.md §4.4).
func (s *Solver) newtonWarmStart(dst []float64) {
	n, o, r := s.n, s.o, s.Rank
	idx := 0
	for i := 0; i < r; i++ {
		dst[idx] = s.cur.Y.At(o, s.colOf[i])
		idx++
	}
	for j := o - 1; j >= 0; j-- {
		for i := 0; i < n; i++ {
			dst[idx] = s.cur.Y.At(j, s.colOf[i])
			idx++
		}
	}
	dst[idx] = s.cur.X
}

// unpackInto is the inverse of newtonWarmStart, writing a packed
// vector (e.g. a Newton increment) back into the (j, col) layout of cur.Y
// and cur.X for in-place subtraction during the corrector iteration.
func (s *Solver) unpackInto(u []float64, applyX func(float64), applyY func(j, i int, v float64)) {
	n, o, r := s.n, s.o, s.Rank
	idx := 0
	for i := 0; i < r; i++ {
		applyY(o, s.colOf[i], u[idx])
		idx++
	}
	for j := o - 1; j >= 0; j-- {
		for i := 0; i < n; i++ {
			applyY(j, s.colOf[i], u[idx])
			idx++
		}
	}
	applyX(u[idx])
}
