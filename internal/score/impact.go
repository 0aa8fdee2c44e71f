package score

import "math"

// ImpactLevel is a categorical bucket for a sequence_disruption value.
type ImpactLevel string

// Impact levels, lowest to highest.
const (
	ImpactNone     ImpactLevel = "no_impact"
	ImpactLow      ImpactLevel = "low"
	ImpactModerate ImpactLevel = "moderate"
	ImpactHigh     ImpactLevel = "high"
	ImpactMassive  ImpactLevel = "massive"
)

// impactThresholds are the inclusive lower bounds, highest first.
var impactThresholds = [...]struct {
	min   float64
	level ImpactLevel
}{
	{0.9, ImpactMassive},
	{0.5, ImpactHigh},
	{0.2, ImpactModerate},
	{0.05, ImpactLow},
}

// ClassifyImpactLevel maps a normalized sequence_disruption onto an impact
// level. The mapping is monotonic: a larger score never yields a lower level.
func ClassifyImpactLevel(s float64) ImpactLevel {
	if math.IsNaN(s) {
		return ImpactNone
	}
	for _, t := range impactThresholds {
		if s >= t.min {
			return t.level
		}
	}
	return ImpactNone
}

// Ambiguous returns true if s lies within margin of any impact threshold,
// i.e. a small change in the underlying delta could flip its level.
func Ambiguous(s, margin float64) bool {
	if margin <= 0 {
		return false
	}
	for _, t := range impactThresholds {
		if math.Abs(s-t.min) < margin {
			return true
		}
	}
	return false
}

// Disruption converts a raw model delta into a bounded disruption magnitude
// in [0,1]: |delta| / scale, saturating at 1.
func Disruption(delta, scale float64) float64 {
	if math.IsNaN(delta) {
		return 0
	}
	if scale <= 0 {
		scale = 1
	}
	return Clamp01(math.Abs(delta) / scale)
}

// Clamp01 clamps v into [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
