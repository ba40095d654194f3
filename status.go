package gsdae

import "fmt"

// Status is the outcome code returned by IntegrateToS/IntegrateToX, in the
// same spirit as the teacher's EventKind enum but carrying the solver's own
// fixed numeric codes (spec.md's exit-code table) rather than iota values,
// since these numbers are the external contract.
type Status int

const (
	StatusRegular                   Status = 0
	StatusTransversalSingularity    Status = 1
	StatusRegularRankDrop           Status = 2
	StatusSingularityRankDrop       Status = 3
	StatusRegularOrderDrop          Status = 4
	StatusSingularityOrderDrop      Status = 5
	StatusNotAllocated              Status = -1
	StatusBadInput                  Status = -2
	StatusInitialPointInfeasible    Status = -3
	StatusDeclaredRankTooLow        Status = -4
	StatusIllPosed                  Status = -5
	StatusRankVaries                Status = -6
	StatusOrderDropRankVaries       Status = -7
	StatusNonTransversalSingularity Status = -8
	StatusNonTransversalRankDrop    Status = -9
	StatusNonTransversalOrderDrop   Status = -10
	StatusAdvancedPointInfeasible   Status = -11
	StatusStepTooSmall              Status = -12
	StatusIllConditioned            Status = -13
	StatusCorrectorDiverged         Status = -14
	StatusUnacknowledged            Status = -15
	StatusSingularityUnacknowledged Status = -16
)

// String renders the descriptive status message from spec.md's table. The
// text for -4 and -5 is intentionally distinct here even though the source
// this was distilled from left them duplicated - see DESIGN.md's Open
// Question resolution.
func (s Status) String() string {
	switch s {
	case StatusRegular:
		return "endpoint reached at a regular point"
	case StatusTransversalSingularity:
		return "transversal singularity"
	case StatusRegularRankDrop:
		return "regular point, rank drop"
	case StatusSingularityRankDrop:
		return "transversal singularity, rank drop"
	case StatusRegularOrderDrop:
		return "regular point, order drop"
	case StatusSingularityOrderDrop:
		return "transversal singularity, order drop"
	case StatusNotAllocated:
		return "state not allocated"
	case StatusBadInput:
		return "input validation failure"
	case StatusInitialPointInfeasible:
		return "initial point does not satisfy F within tolerance"
	case StatusDeclaredRankTooLow:
		return "declared rank lower than measured"
	case StatusIllPosed:
		return "order 0 and rank(dF/dy) = 0: ill-posed"
	case StatusRankVaries:
		return "rank varies in neighborhood (non-transversal singularity)"
	case StatusOrderDropRankVaries:
		return "order drop and rank still varies"
	case StatusNonTransversalSingularity:
		return "non-transversal singularity"
	case StatusNonTransversalRankDrop:
		return "non-transversal singularity, rank drop"
	case StatusNonTransversalOrderDrop:
		return "non-transversal singularity, order drop"
	case StatusAdvancedPointInfeasible:
		return "advanced point fails F within tolerance"
	case StatusStepTooSmall:
		return "step size below hmin"
	case StatusIllConditioned:
		return "condition number exceeds cdmax"
	case StatusCorrectorDiverged:
		return "corrector did not converge"
	case StatusUnacknowledged:
		return "prior negative status unacknowledged"
	case StatusSingularityUnacknowledged:
		return "prior transversal singularity unacknowledged"
	default:
		return fmt.Sprintf("unknown status %d", int(s))
	}
}

// Negative reports whether s is a failure code (all status codes < 0 in
// spec.md's table are failures; 0..5 are informative successes).
func (s Status) Negative() bool {
	return s < 0
}

// throwf terminates construction immediately due to programmer misuse: bad
// shapes, nil callbacks, anything that cannot be a legitimate runtime
// outcome of integration. Numerical and structural outcomes are always a
// returned Status, never a panic.
func throwf(format string, a ...interface{}) {
	panic(fmt.Errorf(format, a...))
}
