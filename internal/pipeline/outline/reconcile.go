package outline

import "math"

// DefaultTolerance is the relative deviation the pipeline accepts between a
// generated outline's total minutes and the requested target. The same
// threshold governs the parts-plan validation and the final reconciliation.
const DefaultTolerance = 0.05

// Assessment is the reconciler's verdict over one generated outline.
type Assessment struct {
	TargetMinutes   int
	TotalMinutes    int
	Variance        float64
	WithinTolerance bool
}

// Assess classifies variance = |total-target| / target against tolerance.
// Pure arithmetic; callers issue at most one corrective generation call on a
// failing verdict and never re-assess the result.
func Assess(targetMinutes, totalMinutes int, tolerance float64) Assessment {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	a := Assessment{TargetMinutes: targetMinutes, TotalMinutes: totalMinutes}
	if targetMinutes <= 0 {
		a.Variance = math.Inf(1)
		a.WithinTolerance = false
		return a
	}
	a.Variance = math.Abs(float64(totalMinutes-targetMinutes)) / float64(targetMinutes)
	a.WithinTolerance = a.Variance <= tolerance
	return a
}
