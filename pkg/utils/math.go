package utils

import "math"

// RoundTo rounds x to the given number of decimal places.
func RoundTo(x float64, places int) float64 {
	if places < 0 {
		return x
	}
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
