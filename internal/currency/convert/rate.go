package convert

import "math"

// ResolveRate picks the first available rate in precedence order:
// explicit, then current, then static, then 1. A resolved rate that is not a
// positive finite number is clamped to 1.
func ResolveRate(explicit, current *float64, static float64) float64 {
	rate := static
	switch {
	case explicit != nil:
		rate = *explicit
	case current != nil:
		rate = *current
	}
	if !validRate(rate) {
		return 1
	}
	return rate
}

func validRate(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 0) && !math.IsNaN(rate)
}

// ValidRate reports whether rate can be used as an exchange rate.
func ValidRate(rate float64) bool { return validRate(rate) }
