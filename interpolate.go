package gsdae

import (
	"math"

	"github.com/pkg/errors"
)

// maxInterpolationIterations bounds both the endpoint-by-x Newton loop and
// the singularity Regula-Falsi loop (spec.md §4.8).
const maxInterpolationIterations = 500

// tolRelative is the shared convergence tolerance for both interpolation
// loops: |delta| <= tolRelative*|reference|.
const tolRelative = 1e-10

var (
	errEndpointStall       = errors.New("interpolate: x'(s) vanished before reaching xend")
	errNoSingularityBracket = errors.New("interpolate: x'(s) does not change sign across the step")
)

// interpolateAt evaluates the predictor polynomial of order kold at arc
// length s' = s.cur.S + hPrime using Newton's divided-difference form over
// phi/psi, writing value and first s-derivative into dst/ddst. ddst.Y is
// accumulated with the derivative coefficient d, the same as ddst.X.
// Columns beyond the structural rank at the top order are recovered from the
// consistency relation y^(o)[q[i]] = dy^(o-1)[q[i]] / x'(s), honoring the
// algebraic constraint exactly (spec.md §4.8).
func (s *Solver) interpolateAt(hPrime float64, dst *Point, ddst *Tangent) {
	k := s.kOld
	n, o, r := s.n, s.o, s.Rank

	dst.S = s.cur.S + hPrime

	vx, dvx := s.phiX[1], 0.0
	for j := 0; j <= o; j++ {
		for i := 0; i < n; i++ {
			dst.Y.Set(j, i, s.phiY[1].At(j, i))
			ddst.Y.Set(j, i, 0)
		}
	}

	c, d := 1.0, 0.0
	gamma := hPrime / s.psi[1]
	for l := 2; l <= k+1; l++ {
		d = d*gamma + c/s.psi[l-1]
		c *= gamma
		gamma = (hPrime + s.psi[l-1]) / s.psi[l]
		vx += c * s.phiX[l]
		dvx += d * s.phiX[l]
		for j := 0; j <= o; j++ {
			for i := 0; i < n; i++ {
				dst.Y.Set(j, i, dst.Y.At(j, i)+c*s.phiY[l].At(j, i))
				ddst.Y.Set(j, i, ddst.Y.At(j, i)+d*s.phiY[l].At(j, i))
			}
		}
	}
	dst.X = vx
	ddst.X = dvx

	if o > 0 && dvx != 0 {
		for idx := r; idx < n; idx++ {
			col := s.colOf[idx]
			dst.Y.Set(o, col, ddst.Y.At(o-1, col)/dvx)
		}
	}
}

// endpointByX locates s such that the interpolated x(s) equals xend, via
// Newton iteration s <- s - (x-xend)/x', starting from the current point
// (spec.md §4.8's CSDAE endpoint routine).
func (s *Solver) endpointByX(xend float64) (*Point, error) {
	h := 0.0
	pt := NewPoint(s.n, s.o)
	tg := NewTangent(s.n, s.o)

	for iter := 0; iter < maxInterpolationIterations; iter++ {
		s.interpolateAt(h, pt, tg)
		dx := pt.X - xend
		if math.Abs(dx) <= tolRelative*math.Abs(xend) {
			return pt, nil
		}
		if tg.X == 0 {
			return pt, errEndpointStall
		}
		delta := -dx / tg.X
		h += delta
		if math.Abs(delta) <= tolRelative*math.Abs(s.cur.S) {
			return pt, nil
		}
	}
	return pt, errEndpointStall
}

// localizeSingularity brackets a sign change of x'(s) between the previous
// accepted point and the current one, converging via Regula-Falsi on x'(s)
// (spec.md §4.8). When kold == 1, x' is monotone within the step and no
// localization is attempted: the crossing is reported at the current s.
func (s *Solver) localizeSingularity() (*Point, error) {
	if s.kOld == 1 {
		return s.cur.Clone(), nil
	}

	lo, hi := s.prevAccepted.S-s.cur.S, 0.0
	ptLo, tgLo := NewPoint(s.n, s.o), NewTangent(s.n, s.o)
	ptHi, tgHi := NewPoint(s.n, s.o), NewTangent(s.n, s.o)
	s.interpolateAt(lo, ptLo, tgLo)
	s.interpolateAt(hi, ptHi, tgHi)
	fLo, fHi := tgLo.X, tgHi.X
	if fLo == 0 {
		return ptLo, nil
	}
	if fHi == 0 {
		return ptHi, nil
	}
	if math.Signbit(fLo) == math.Signbit(fHi) {
		return nil, errNoSingularityBracket
	}

	mid, tgMid := NewPoint(s.n, s.o), NewTangent(s.n, s.o)
	for iter := 0; iter < maxInterpolationIterations; iter++ {
		h := hi - fHi*(hi-lo)/(fHi-fLo)
		s.interpolateAt(h, mid, tgMid)
		if math.Abs(h-lo) <= tolRelative*math.Abs(s.cur.S) || math.Abs(tgMid.X) <= tolRelative {
			return mid, nil
		}
		if math.Signbit(tgMid.X) == math.Signbit(fLo) {
			lo, fLo = h, tgMid.X
		} else {
			hi, fHi = h, tgMid.X
		}
	}
	return mid, nil
}
