package gsdae

import (
	"math"

	"github.com/pkg/errors"
)

// maxConsecutiveFailures bounds the driver's step-failure restart policy
// (spec.md §4.9: "more than 4 restarts have occurred").
const maxConsecutiveFailures = 4

// IntegrateToS advances the solver's curve by arc length until
// (s-send)*dir >= 0, per spec.md §4.9's GSDAE loop. The returned error is
// non-nil only when status is a failure code; callers should branch on
// status, not on err being nil, to decide whether to retry.
func (s *Solver) IntegrateToS(send float64) (Status, error) {
	if !s.initialized {
		status, err := s.bootstrap()
		if err != nil {
			s.lastStatus = status
			return status, err
		}
		s.dir = math.Copysign(1, send-s.cur.S)
		if s.dir == 0 {
			s.dir = 1
		}
	} else if s.lastStatus.Negative() {
		return StatusUnacknowledged, errors.New("driver: prior negative status unacknowledged")
	}

	for (s.cur.S-send)*s.dir < 0 {
		status, err := s.step()
		if err != nil {
			s.lastStatus = status
			return status, err
		}
		if status != StatusRegular {
			s.lastStatus = status
			return status, nil
		}
	}

	pt, err := s.interpolateToS(send)
	if err != nil {
		s.lastStatus = StatusAdvancedPointInfeasible
		return s.lastStatus, err
	}
	s.cur = pt
	s.lastStatus = StatusRegular
	return StatusRegular, nil
}

// IntegrateToX advances the solver's curve until (xend-cx)*dir >= 0, per
// spec.md §4.9's CSDAE loop. Unlike IntegrateToS, a prior unacknowledged
// transversal singularity (status 1, 3, or 5) latches a dedicated failure
// (-16) distinct from an unacknowledged numerical failure (-15).
func (s *Solver) IntegrateToX(xend float64) (Status, error) {
	if !s.initialized {
		status, err := s.bootstrap()
		if err != nil {
			s.lastStatus = status
			return status, err
		}
		s.dir = math.Copysign(1, xend-s.cur.X)
		if s.dir == 0 {
			s.dir = 1
		}
	} else if s.singularityOpen {
		return StatusSingularityUnacknowledged, errors.New("driver: prior transversal singularity unacknowledged")
	} else if s.lastStatus.Negative() {
		return StatusUnacknowledged, errors.New("driver: prior negative status unacknowledged")
	}

	for (xend-s.cur.X)*s.dir < 0 {
		status, err := s.step()
		if err != nil {
			s.lastStatus = status
			return status, err
		}
		switch status {
		case StatusTransversalSingularity, StatusSingularityRankDrop, StatusSingularityOrderDrop:
			s.singularityOpen = true
			s.lastStatus = status
			return status, nil
		case StatusRegular, StatusRegularRankDrop, StatusRegularOrderDrop:
			// keep looping
		default:
			s.lastStatus = status
			return status, nil
		}
	}

	pt, err := s.endpointByX(xend)
	if err != nil {
		s.lastStatus = StatusAdvancedPointInfeasible
		return s.lastStatus, err
	}
	s.cur = pt
	s.lastStatus = StatusRegular
	s.singularityOpen = false
	return StatusRegular, nil
}

// bootstrap performs the first-call sequence (spec.md §4.9 and the
// `firststep` routine supplemented from original_source/gsdae.c): apply the
// initial step-size default, run the structural analyzer once to seed the
// tangent, and prime phi[1]/phi[2]/psi[1]/cj from it. Input validation and
// the tolerance structures are handled by New and its options; bootstrap
// does not repeat them.
func (s *Solver) bootstrap() (Status, error) {
	if s.h0 == 0 {
		s.h0 = 10 * s.hMin
	}
	s.h = s.h0
	s.k = 1
	s.ifase = 0
	s.ns = 0

	status, err := s.analyzeStructure()
	if err != nil {
		return status, err
	}

	// phi[1] seeds the zeroth divided difference with the point itself, not
	// an increment; phi[2] holds the first true difference, h*tangent. Per
	// the firststep routine this was distilled from, getting this backwards
	// (seeding phi[1] with h*tangent alone) loses the base point entirely
	// the first time predict() sums phi[1..k+1].
	s.phiX[1] = s.cur.X
	s.phiX[2] = s.h * s.dcur.X
	r, c := s.phiY[1].Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			s.phiY[1].Set(i, j, s.cur.Y.At(i, j))
			s.phiY[2].Set(i, j, s.h*s.dcur.Y.At(i, j))
		}
	}
	s.psi[1] = s.h
	s.alfaS = -1
	s.cj = 1 / s.h
	s.cjOld = s.cj
	s.kOld = 0
	s.hOld = 0
	s.factor = 100

	s.prevAccepted.S = s.cur.S
	s.prevAccepted.X = s.cur.X
	s.prevAccepted.Y.Copy(s.cur.Y)
	s.prevDx = s.dcur.X
	s.dhStale = true

	s.initialized = true
	return status, nil
}

// step runs one stepper/controller cycle: predict+correct, accept/reject,
// and on acceptance tests x'(s) for a sign change since the previously
// accepted point (spec.md §4.9's main loop, step 3). The structural
// analyzer itself is never invoked here - only at bootstrap and on restart
// (spec.md §4.7.1 calls its neighborhood probe "an expensive but rare
// diagnostic"); a singularity crossed mid-run is instead localized from the
// corrector's own tangent via interpolateAt/localizeSingularity, and
// reported combined with whatever rank/order-drop bits the last structural
// analysis left behind.
func (s *Solver) step() (Status, error) {
	for {
		setWeights(&s.wt, s.cur.X, s.cur.Y, s.o, s.Rank, s.colOf, s.tol)

		outcome, E := s.correct()
		switch outcome {
		case correctorStepTooSmall:
			s.restore()
			return StatusStepTooSmall, errors.New("driver: |h| < hmin during correction")
		case correctorIllConditioned:
			s.restore()
			return StatusIllConditioned, errors.New("driver: condition number exceeds cdmax")
		case correctorDiverged:
			s.stats.NewtonFailures++
			return s.handleStepFailure()
		}

		result := s.acceptOrReject(E)
		switch result {
		case stepFailed:
			return s.handleStepFailure()
		case stepRejected:
			s.stats.Rejects++
			continue
		}
		break
	}

	return s.checkSingularityCrossing()
}

// checkSingularityCrossing compares x'(s) at the previously accepted point
// against x'(s) at the point the corrector just converged to; a sign change
// (or a vanishing derivative) means a transversal singularity was crossed
// between the two. When kold > 1, x' is re-read at the previous point via
// interpolateAt the same as localizeSingularity does; otherwise the prior
// value recorded by the last call is reused, mirroring masterstep's own
// "if kold > 1 re-interpolate, else dx stays unchanged" rule.
func (s *Solver) checkSingularityCrossing() (Status, error) {
	dxPrev := s.prevDx
	if s.kOld > 1 {
		pt, tg := NewPoint(s.n, s.o), NewTangent(s.n, s.o)
		s.interpolateAt(s.prevAccepted.S-s.cur.S, pt, tg)
		dxPrev = tg.X
	}
	dxCur := s.dcur.X

	crossed := dxPrev != 0 && (dxCur == 0 || math.Signbit(dxCur) != math.Signbit(dxPrev))
	s.prevDx = dxCur
	if !crossed {
		return StatusRegular, nil
	}

	pt, err := s.localizeSingularity()
	if err == nil {
		s.cur = pt
	}

	switch {
	case s.lastOrderDrop:
		return StatusSingularityOrderDrop, nil
	case s.lastRankDrop:
		return StatusSingularityRankDrop, nil
	default:
		return StatusTransversalSingularity, nil
	}
}

// handleStepFailure implements the restart of spec.md §4.9 step 4: roll cur
// back to the previously accepted point, reset to the initial step and order
// 1, recompute the coefficients (which rebuilds psi), and re-run the
// structural analyzer once. phi is left as it is. It escalates to
// StatusCorrectorDiverged when that analysis fails or once more than
// maxConsecutiveFailures restarts have occurred over the solver's lifetime;
// consecutive failures are not counted separately.
func (s *Solver) handleStepFailure() (Status, error) {
	s.restore()
	s.stats.Restarts++
	if s.stats.Restarts > maxConsecutiveFailures {
		return StatusCorrectorDiverged, errors.New("driver: too many restarts")
	}

	s.h = s.h0
	s.k = 1
	s.computeCoefficients()
	status, err := s.analyzeStructure()
	if err != nil {
		return StatusCorrectorDiverged, errors.Wrap(err, "driver: restart structural analysis failed")
	}
	s.prevDx = s.dcur.X
	s.dhStale = true
	return status, nil
}

// restore rolls cur back to the previously accepted point. dcur is not
// restored: prevAccepted carries no tangent.
func (s *Solver) restore() {
	s.cur.S = s.prevAccepted.S
	s.cur.X = s.prevAccepted.X
	s.cur.Y.Copy(s.prevAccepted.Y)
}

// interpolateToS is the terminal dense-output call for GSDAE: evaluate the
// predictor polynomial at exactly send and return that Point.
func (s *Solver) interpolateToS(send float64) (*Point, error) {
	pt := NewPoint(s.n, s.o)
	tg := NewTangent(s.n, s.o)
	s.interpolateAt(send-s.cur.S, pt, tg)
	return pt, nil
}
