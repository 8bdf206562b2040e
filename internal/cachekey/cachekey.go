package cachekey

import (
	"math"
	"strconv"
)

// MakeKey maps a coordinate pair to its cache key by rounding each axis to
// 2 decimal places (roughly 1.1 km at the equator) and joining as "lat,lon".
// Rounding is half away from zero, so -74.0060 becomes -74.01. Nearby
// coordinates intentionally collapse to the same key; the mapping is the
// basis for all cache addressing and must stay stable across processes.
func MakeKey(latitude, longitude float64) string {
	return formatAxis(latitude) + "," + formatAxis(longitude)
}

// formatAxis quantizes one axis and renders it in shortest decimal form
// (no fixed-width padding, sign preserved).
func formatAxis(v float64) string {
	rounded := math.Round(v*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
