package gsdae

import (
	"io"
	"os"

	"github.com/daesolve/gsdae/linalg"
	"gonum.org/v1/gonum/mat"
)

// kmax is the highest BDF order the controller will select (spec.md §3:
// 1 <= kold <= 5); the +2 history slots are for the predictor's trailing
// divided-difference terms.
const kmax = 5

// Solver is the long-lived handle owning every workspace, BDF history table,
// permutation, counter, and callback for one integration trajectory -
// replacing the original C code's module-global `parameter*` singleton with
// one explicit value per spec.md §9's redesign note. Not safe for concurrent
// use (spec.md §5): exactly one goroutine may call into a given Solver at a
// time, and user callbacks must not re-enter it.
type Solver struct {
	n, o int

	residual Residual
	jacobian Jacobian
	analytic bool

	Rank  int
	Order int
	rowOf linalg.Permutation // F-equation row permutation, length n
	colOf linalg.Permutation // y spatial-index column permutation, length n

	declaredRank int
	rankSet      bool

	// current point and its arc-length derivative
	cur  *Point
	dcur *Tangent

	// previously accepted point, restored on step rejection
	prevAccepted *Point

	// BDF history: modified divided differences, node offsets, recurrence
	// coefficients. These slices are sized kmax+2 and addressed 1-based:
	// indices 1..kmax+1 are in use and slot 0 is left unused.
	phiX           []float64
	phiY           []*mat.Dense
	psi            []float64
	alfa, beta     []float64
	gama, sigma    []float64
	alfaS          float64
	cj, cjOld      float64

	h, hMin, hMax, h0, hOld float64
	kOld                    int
	k                       int
	ns                      int
	ifase                   int
	consecutiveRejections   int
	factor                  float64
	dir                     float64

	// prevDx is x'(s) at the previously accepted point, carried across
	// step() calls to detect a sign change (a transversal singularity
	// crossing) without re-running the structural analyzer every step.
	prevDx float64

	// lastRankDrop/lastOrderDrop are the rank/order-drop bits the most
	// recent structural analysis (bootstrap or restart) left behind; a
	// singularity crossing detected mid-stepping is reported combined
	// with whichever of these is still in effect.
	lastRankDrop, lastOrderDrop bool

	// dh/dhStale cache the corrector's Jacobian across Newton attempts
	// within a step: dhStale is set whenever cj has drifted far enough
	// from cjOld (or a restart forces it) that DH needs re-evaluating.
	dh      *mat.Dense
	dhStale bool

	cdMax float64
	tol   Tolerances
	fTol  []float64

	wt weights

	qrB    *linalg.GivensQR      // tangent system (n+1) x n
	qrNewt *linalg.GivensQR      // corrector Newton system, square o*n+r+1; reallocated when that dimension changes
	qrRank *linalg.RankRevealingQR // n x n algebraic Jacobian block

	lastStatus      Status
	singularityOpen bool
	initialized     bool

	stats Stats
	fEvals, dfEvals int

	Log *Logger
}

// New allocates a Solver for an n-dimensional, order-o DAE with residual f.
// Options customize tolerances, step bounds, an analytic Jacobian, and
// logging; see With* below. Panics (via throwf) on misuse: n < 1, o < 0, or
// a nil residual - these can never be legitimate runtime outcomes.
func New(n, o int, f Residual, opts ...Option) *Solver {
	if n < 1 {
		throwf("gsdae.New: n must be >= 1, got %d", n)
	}
	if o < 0 {
		throwf("gsdae.New: o must be >= 0, got %d", o)
	}
	if f == nil {
		throwf("gsdae.New: residual must not be nil")
	}

	cfg := DefaultConfig()
	s := &Solver{
		n: n, o: o,
		residual: f,
		cur:      NewPoint(n, o),
		dcur:     NewTangent(n, o),
		prevAccepted: NewPoint(n, o),
		rowOf:    linalg.Identity(n),
		colOf:    linalg.Identity(n),
		phiX:     make([]float64, kmax+2),
		psi:      make([]float64, kmax+2),
		alfa:     make([]float64, kmax+2),
		beta:     make([]float64, kmax+2),
		gama:     make([]float64, kmax+2),
		sigma:    make([]float64, kmax+2),
		fTol:     make([]float64, n),
		hMin:     cfg.Step.Min,
		h0:       cfg.Step.Initial,
		hMax:     cfg.Step.Max,
		cdMax:    cfg.Condition.Max,
		tol:      NewScalarTolerances(cfg.Tolerance.AbsX, cfg.Tolerance.RelX, cfg.Tolerance.AbsY, cfg.Tolerance.RelY),
		dir:      1,
		k:        1,
		dhStale:  true,
		Log:      &Logger{Output: io.Discard},
	}
	s.phiY = make([]*mat.Dense, kmax+2)
	for i := range s.phiY {
		s.phiY[i] = mat.NewDense(o+1, n, nil)
	}
	s.wt.Y = mat.NewDense(o+1, n, nil)
	s.qrB = linalg.NewGivensQR(n+1, n)
	s.qrRank = linalg.NewRankRevealingQR(n)

	for _, opt := range opts {
		opt(s)
	}
	if s.cdMax < 1e2 {
		s.cdMax = 1e2
	}
	return s
}

// Option configures a Solver at construction time.
type Option func(*Solver)

// WithAnalyticJacobian supplies DF, replacing the finite-difference
// fallback used by jacobian.go.
func WithAnalyticJacobian(df Jacobian) Option {
	return func(s *Solver) { s.jacobian = df; s.analytic = true }
}

// WithStepBounds overrides hmin/hmax/h0 (spec.md defaults otherwise apply).
func WithStepBounds(h0, hMin, hMax float64) Option {
	return func(s *Solver) { s.h0, s.hMin, s.hMax = h0, hMin, hMax }
}

// WithConditionLimit overrides cdmax (clamped to >= 1e2 by New).
func WithConditionLimit(cdMax float64) Option {
	return func(s *Solver) { s.cdMax = cdMax }
}

// WithTolerances overrides the default scalar tolerances.
func WithTolerances(tol Tolerances) Option {
	return func(s *Solver) { s.tol = tol }
}

// WithResidualTolerance enables the post-acceptance |F| <= ftol check
// (spec.md §4.5); ftol defaults to all-zero, i.e. disabled.
func WithResidualTolerance(ftol []float64) Option {
	return func(s *Solver) { copy(s.fTol, ftol) }
}

// WithDeclaredRank pre-declares the rank of dF/dy^(o), skipping the initial
// full-pivot QR on the first call (spec.md §4.9's infoinput index 4).
func WithDeclaredRank(r int, p, q linalg.Permutation) Option {
	return func(s *Solver) {
		s.declaredRank, s.rankSet = r, true
		copy(s.rowOf, p)
		copy(s.colOf, q)
	}
}

// WithLogWriter directs step-by-step diagnostics to w instead of discarding
// them, mirroring the teacher's Logger.
func WithLogWriter(w io.Writer) Option {
	return func(s *Solver) { s.Log = &Logger{Output: w} }
}

// WithStderrLog is a convenience for WithLogWriter(os.Stderr).
func WithStderrLog() Option {
	return WithLogWriter(os.Stderr)
}

// SetInitialPoint seeds the curve at (x, y) before the first IntegrateToS/
// IntegrateToX call (spec.md §4.9's `infoinput.initialized = false` state).
// y must have shape (o+1) x n, row j holding the j-th arc-length derivative
// of y (row 0 is y itself); panics via throwf on a shape mismatch or if
// called after the first integration call, since the BDF history would
// otherwise silently disagree with the reseeded point.
func (s *Solver) SetInitialPoint(x float64, y *mat.Dense) {
	if s.initialized {
		throwf("gsdae: SetInitialPoint called after integration has started")
	}
	r, c := y.Dims()
	if r != s.o+1 || c != s.n {
		throwf("gsdae: SetInitialPoint: y has shape %dx%d, want %dx%d", r, c, s.o+1, s.n)
	}
	s.cur.X = x
	s.cur.Y.Copy(y)
}

// Close releases the Solver's workspaces. Idiomatic Go does not require an
// explicit free, but Close matches the teacher's explicit-lifecycle pattern
// and flushes any buffered log output.
func (s *Solver) Close() {
	s.Log.flush()
}

// Stats is the post-run diagnostic snapshot (spec.md §6 statistics(state)).
type Stats struct {
	S                               float64
	Steps, Rejects, Successes       int
	FEvals, DFEvals, QRFactorizations int
	Restarts, NewtonFailures        int
}

// Statistics returns the current accumulated counters.
func (s *Solver) Statistics() Stats {
	st := s.stats
	st.S = s.cur.S
	st.FEvals, st.DFEvals = s.fEvals, s.dfEvals
	return st
}
