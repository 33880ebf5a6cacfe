package shared

import "math"

// Round2 rounds to currency display precision (2 decimal places).
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round6 rounds to exchange-rate precision (6 decimal places).
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
