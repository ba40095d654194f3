package gsdae

import (
	"math"

	"github.com/daesolve/gsdae/linalg"
	"gonum.org/v1/gonum/mat"
)

// maxNewtonIterations is the per-attempt iteration cap before the corrector
// either re-evaluates a stale DH or shrinks h (spec.md §4.5).
const maxNewtonIterations = 4

// maxCorrectorAttempts bounds the outer shrink-and-retry loop.
const maxCorrectorAttempts = 20

// correctorOutcome distinguishes why correct returned.
type correctorOutcome int

const (
	correctorConverged correctorOutcome = iota
	correctorDiverged
	correctorStepTooSmall
	correctorIllConditioned
)

// correct runs the modified-Newton iteration with frozen leading coefficient
// cj against the current predicted point, re-evaluating DH on demand and
// shrinking h up to maxCorrectorAttempts times (spec.md §4.5). On return,
// s.cur/s.dcur hold either the corrected point (correctorConverged) or the
// last attempted predictor (any other outcome, with s.cur restored to
// prevAccepted by the caller).
func (s *Solver) correct() (correctorOutcome, []float64) {
	dim := s.hDim()
	s.ensureDH(dim)
	delta := make([]float64, dim)
	accumulated := make([]float64, dim)

	for attempt := 0; attempt < maxCorrectorAttempts; attempt++ {
		s.predict()

		freshDH := s.dhStale
		if s.dhStale {
			s.packDH(s.dh, s.cur.X, s.cur.Y, s.dcur.X, s.dcur.Y, s.h)
			s.stats.QRFactorizations++
			s.factorDH(s.dh, dim)
			s.cjOld = s.cj
			s.factor = 100
			s.dhStale = false
		}
		for i := range accumulated {
			accumulated[i] = 0
		}

		var d1 float64
		converged := false
		var m int
		for m = 1; ; m++ {
			s.packH(delta, s.cur.X, s.cur.Y, s.dcur.X, s.dcur.Y, s.h)
			ac := s.newtonAcceleration()
			u := s.qrNewt.NewtonSolve(delta, ac)
			floatsAddInto(accumulated, u)

			s.unpackInto(u,
				func(v float64) { s.cur.X -= v; s.dcur.X -= s.cj * v },
				func(j, i int, v float64) {
					s.cur.Y.Set(j, i, s.cur.Y.At(j, i)-v)
					s.dcur.Y.Set(j, i, s.dcur.Y.At(j, i)-s.cj*v)
				},
			)

			d := s.weightedIncrementNorm(u)
			if m == 1 {
				d1 = d
				predictedNorm := s.weightedPredictedNorm()
				if d <= 100*machineEps*predictedNorm {
					converged = true
					break
				}
				if s.factor*d <= 1.0/3.0 {
					converged = true
					break
				}
			} else {
				rho := math.Pow(d/d1, 1.0/float64(m-1))
				if rho > 0.9 {
					break
				}
				s.factor = rho / (1 - rho)
				if s.factor*d <= 1.0/3.0 {
					converged = true
					break
				}
			}
			if m >= maxNewtonIterations {
				break
			}
		}

		if converged && !s.residualAccuracyOK() {
			converged = false
		}
		if converged {
			return correctorConverged, accumulated
		}

		if !freshDH || m < maxNewtonIterations {
			// Either this attempt reused an already-stale DH, or the
			// Newton iteration's own rho test caught divergence before the
			// iteration cap - either way DH itself is suspect. Re-evaluate
			// it at the current predicted point and retry without
			// shrinking h.
			s.dhStale = true
			continue
		}

		s.h *= 0.25
		if math.Abs(s.h) < s.hMin {
			return correctorStepTooSmall, nil
		}
		s.computeCoefficients()
		s.dhStale = true
	}

	if s.qrNewt.Cond > s.cdMax {
		return correctorIllConditioned, nil
	}
	return correctorDiverged, nil
}

// ensureDH (re)allocates s.dh when dim = o*n+rank+1 has changed since the
// last call, forcing a fresh DH the same way a cj/cjold swing does.
func (s *Solver) ensureDH(dim int) {
	if s.dh == nil || s.dh.RawMatrix().Rows != dim {
		s.dh = mat.NewDense(dim, dim, nil)
		s.dhStale = true
	}
}

// factorDH copies dh into a fresh square qrNewt (reallocated whenever
// dim = o*n+rank+1 changes between steps) and factors it, so that
// NewtonSolve, which solves against the matrix Factorize was given, yields
// the Newton step dh u = delta. NEWTON in the source this is grounded on
// operates on a genuinely square system here, unlike the rectangular
// tangent solve in structural.go.
func (s *Solver) factorDH(dh *mat.Dense, dim int) {
	if s.qrNewt == nil || s.qrNewt.A.RawMatrix().Rows != dim {
		s.qrNewt = linalg.NewGivensQR(dim, dim)
	}
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			s.qrNewt.A.Set(i, j, dh.At(i, j))
		}
	}
	s.qrNewt.Factorize(true)
}

// newtonAcceleration is the modified-Newton damping factor ac = 2/(1+cj/cjold).
func (s *Solver) newtonAcceleration() float64 {
	if s.cjOld == 0 {
		return 1
	}
	return 2 / (1 + s.cj/s.cjOld)
}

func (s *Solver) weightedIncrementNorm(u []float64) float64 {
	return packedWeightedNorm(u, s, s.wt)
}

func (s *Solver) weightedPredictedNorm() float64 {
	dim := s.hDim()
	packed := make([]float64, dim)
	s.newtonWarmStart(packed)
	return packedWeightedNorm(packed, s, s.wt)
}

// residualAccuracyOK re-evaluates F at the corrected point and rejects
// acceptance unless |F[i]| <= ftol[i] for all i, when ftol[0] != 0
// (spec.md §4.5's post-check).
func (s *Solver) residualAccuracyOK() bool {
	if len(s.fTol) == 0 || s.fTol[0] == 0 {
		return true
	}
	f := make([]float64, s.n)
	s.residual(s.o, s.n, s.cur.X, s.cur.Y, f)
	s.fEvals++
	for i, v := range f {
		if math.Abs(v) > s.fTol[i] {
			return false
		}
	}
	return true
}
