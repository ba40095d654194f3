package gsdae

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// computeCoefficients derives the BDF recurrence coefficients alfa, beta,
// gama, sigma and alfaS for the current (h, k, psi history), then refreshes
// cj (spec.md §3's "recurrence coefficients" and §4.6). psi[1] = h and
// psi[l] = psi[l-1] + h for l>1, rebuilt from the current h on every call:
// earlier accepted step sizes are not carried in psi. alfa, beta and sigma
// are filled for indices 1..k+1 (ck and errorTerms read index k+1); alfaS
// sums over 1..k. cjOld is deliberately left
// untouched here - it only advances when the corrector actually refreshes
// DH (correct() does that), never merely because cj moved; what this
// function does do is test the drift between the new cj and that stale
// cjOld and flag DH for re-evaluation once it strays too far (cj/cjold
// outside [0.6, 1/0.6], the same band the source's coefficient routine
// uses before deciding aDH).
func (s *Solver) computeCoefficients() {
	k := s.k
	s.psi[1] = s.h
	for l := 2; l <= k+1; l++ {
		s.psi[l] = s.psi[l-1] + s.h
	}

	s.alfa[1] = 1
	s.beta[1] = 1
	s.sigma[1] = 1
	s.alfaS = -1.0 / 1
	for l := 2; l <= k+1; l++ {
		s.alfa[l] = s.h / s.psi[l]
		s.beta[l] = s.beta[l-1] * s.psi[l-1] / (s.psi[l] - s.h)
		s.sigma[l] = float64(l) * s.sigma[l-1] * s.alfa[l-1]
		if l <= k {
			s.alfaS -= 1.0 / float64(l)
		}
	}
	s.gama[1] = 0
	for l := 2; l <= k+1; l++ {
		s.gama[l] = s.gama[l-1] + s.alfa[l-1]/s.h
	}

	s.cj = -s.alfaS / s.h

	if s.cjOld == 0 {
		s.dhStale = true
	} else {
		lambda := s.cj / s.cjOld
		if lambda < 0.6 || lambda > 1.0/0.6 {
			s.dhStale = true
		}
	}
}

// ck is the controller's acceptance predicate scale factor:
// max(|alfa[k+1]+alfaS-alfa0|, alfa[k+1]).
func (s *Solver) ck() float64 {
	alfa0 := -1.0
	diff := math.Abs(s.alfa[s.k+1] + s.alfaS - alfa0)
	if s.alfa[s.k+1] > diff {
		return s.alfa[s.k+1]
	}
	return diff
}

// stepOutcome is returned by acceptOrReject.
type stepOutcome int

const (
	stepAccepted stepOutcome = iota
	stepRejected
	stepFailed // |h| fell below hmin while shrinking
)

// acceptOrReject evaluates the controller's acceptance predicate against
// the accumulated Newton increment E (spec.md §4.6) and either commits the
// step (sliding phi/psi forward and selecting the next (k, h)) or rolls
// back and shrinks according to the rejection count.
func (s *Solver) acceptOrReject(E []float64) stepOutcome {
	normE := packedWeightedNorm(E, s, s.wt)
	if s.ck()*normE <= 1 {
		s.consecutiveRejections = 0
		s.commitAcceptedStep(E, normE)
		return stepAccepted
	}

	s.consecutiveRejections++
	s.rollbackPhi()
	switch {
	case s.consecutiveRejections == 1:
		k := s.k
		factor := 0.9 * math.Pow(2*normE+1e-4, -1.0/float64(k+1))
		if factor > 0.9 {
			factor = 0.9
		}
		if factor < 0.25 {
			factor = 0.25
		}
		s.h *= factor
	case s.consecutiveRejections == 2:
		s.h /= 4
	default:
		s.k = 1
		s.h /= 4
	}
	if math.Abs(s.h) < s.hMin {
		return stepFailed
	}
	s.computeCoefficients()
	return stepRejected
}

// rollbackPhi divides phi back down by beta (undoing the "starred" scaling
// applied during the predictor's coefficient step) and restores cur's X and Y
// to the previously accepted point, per spec.md §4.6's rejection path; dcur
// is left as it is.
func (s *Solver) rollbackPhi() {
	for l := 1; l <= s.k+1; l++ {
		if s.beta[l] == 0 {
			continue
		}
		inv := 1 / s.beta[l]
		s.phiX[l] *= inv
		r, _ := s.phiY[l].Dims()
		for i := 0; i < r; i++ {
			floats.Scale(inv, s.phiY[l].RawRowView(i))
		}
	}
	s.cur.X = s.prevAccepted.X
	s.cur.Y.Copy(s.prevAccepted.Y)
}

// commitAcceptedStep advances s by h, chooses the next (k, h), and slides
// the divided-difference tables, per spec.md §4.6's acceptance path.
// Grounded on the controlstep routine of the source this was distilled
// from: before touching ifase or the startup growth rule, it computes
// knew, the same order-decrease pre-check controlstep runs on terk/terkm1/
// terkm2 - evidence that k-1 would already do at least as well as k. Only
// once that evidence exists (knew==k-1) or k has hit its ceiling does the
// controller leave startup (ifase 0 -> 1); until then s.ns>k+1 alone is not
// reason enough.
func (s *Solver) commitAcceptedStep(E []float64, normE float64) {
	s.prevAccepted.S = s.cur.S
	s.prevAccepted.X = s.cur.X
	s.prevAccepted.Y.Copy(s.cur.Y)

	k := s.k
	kOldPrev := s.kOld
	kdiff := k - kOldPrev

	s.cur.S += s.h
	s.kOld = k
	s.hOld = s.h
	s.ns++
	s.stats.Successes++
	s.stats.Steps++

	terms := s.errorTerms(E, normE, k)

	knew := k
	switch {
	case k > 2:
		if math.Max(terms[k-1], terms[k-2]) <= terms[k] {
			knew = k - 1
		}
	case k > 1:
		if terms[k-1] <= 0.5*terms[k] {
			knew = k - 1
		}
	}

	if knew == k-1 || k == 5 {
		s.ifase = 1
	}

	if s.ifase == 0 {
		if k < 5 {
			s.k = k + 1
			s.h *= 2
		}
	} else {
		best := k
		bestTerm := terms[k]
		for cand := k - 2; cand <= k+1; cand++ {
			if cand < 1 || cand > 5 {
				continue
			}
			if cand == k+1 && (k >= 5 || k+1 >= s.ns || kdiff == 1) {
				continue
			}
			if t, ok := terms[cand]; ok && t < bestTerm {
				best, bestTerm = cand, t
			}
		}
		s.k = best

		est := terms[best]
		scale := math.Pow(2*est+1e-4, -1.0/float64(best+1))
		if scale >= 2 {
			s.h *= 2
			if s.hMax > 0 && s.h > s.hMax {
				s.h = s.hMax
			}
		} else if scale <= 1 {
			if scale < 0.5 {
				scale = 0.5
			}
			if scale > 0.9 {
				scale = 0.9
			}
			s.h *= scale
		}
	}

	s.updateDividedDifferences(E)
	s.computeCoefficients()
}

// errorTerms computes term_m = m*err_m for m in {k-2,k-1,k,k+1} when
// meaningful, using err_k = sigma[k+1]*||E||_w and the phi-shifted variants
// for k-1, k-2 (spec.md §4.6). No separate estimate of err_{k+1} is formed:
// term_{k+1} reuses err_k, so it is never smaller than term_k and the
// steady-phase order selection in commitAcceptedStep never picks k+1.
func (s *Solver) errorTerms(E []float64, normE float64, k int) map[int]float64 {
	terms := map[int]float64{}
	errK := s.sigma[k+1] * normE
	terms[k] = float64(k) * errK

	if k > 1 {
		shifted := s.packPhi(k + 1)
		floatsAddInto(shifted, E)
		errKm1 := s.sigma[k] * packedWeightedNorm(shifted, s, s.wt)
		terms[k-1] = float64(k-1) * errKm1
	}
	if k > 2 {
		shifted := s.packPhi(k + 1)
		floatsAddInto(shifted, E)
		floatsAddInto(shifted, s.packPhi(k))
		errKm2 := s.sigma[k-1] * packedWeightedNorm(shifted, s, s.wt)
		terms[k-2] = float64(k-2) * errKm2
	}
	if k < 5 {
		// err_k stands in for err_{k+1}; the caller's eligibility guard
		// decides whether term_{k+1} is considered at all.
		terms[k+1] = float64(k+1) * errK
	}
	return terms
}

// packPhi packs phiX[l]/phiY[l] into the NEWTON layout, so it can be added
// to an already-packed error vector when estimating error at order k-1/k-2.
func (s *Solver) packPhi(l int) []float64 {
	n, o, r := s.n, s.o, s.Rank
	packed := make([]float64, o*n+r+1)
	idx := 0
	for i := 0; i < r; i++ {
		packed[idx] = s.phiY[l].At(o, s.colOf[i])
		idx++
	}
	for j := o - 1; j >= 0; j-- {
		for i := 0; i < n; i++ {
			packed[idx] = s.phiY[l].At(j, s.colOf[i])
			idx++
		}
	}
	packed[idx] = s.phiX[l]
	return packed
}

// floatsAddInto adds src into dst element-wise, in place.
func floatsAddInto(dst, src []float64) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// updateDividedDifferences slides phi forward: phi[k+2] <- E (replacing the
// trailing slot) when kold < 5, and re-stars every phi[l] by beta[l]
// (spec.md §4.6's "update").
func (s *Solver) updateDividedDifferences(E []float64) {
	k := s.kOld
	if k < 5 {
		s.unpackPackedInto(E, s.phiX[k+2:k+3], s.phiY[k+2])
	}
	for l := k + 1; l >= 1; l-- {
		s.phiX[l] *= s.beta[l]
		r, _ := s.phiY[l].Dims()
		for i := 0; i < r; i++ {
			floats.Scale(s.beta[l], s.phiY[l].RawRowView(i))
		}
	}
}

// unpackPackedInto writes a packed vector (NEWTON layout) into phiXSlot[0]
// and the phiY matrix, inverse of newtonWarmStart.
func (s *Solver) unpackPackedInto(u []float64, phiXSlot []float64, phiY *mat.Dense) {
	n, o, r := s.n, s.o, s.Rank
	idx := 0
	for i := 0; i < r; i++ {
		phiY.Set(o, s.colOf[i], u[idx])
		idx++
	}
	for j := o - 1; j >= 0; j-- {
		for i := 0; i < n; i++ {
			phiY.Set(j, s.colOf[i], u[idx])
			idx++
		}
	}
	phiXSlot[0] = u[idx]
}
