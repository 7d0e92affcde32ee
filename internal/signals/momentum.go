// Package signals provides pure price-series calculations
package signals

import (
	"github.com/stockbuddy/advisor/internal/models"
)

// Momentum is a normalized short-term trend reading over recent closes.
type Momentum struct {
	Value        float64 // ChangePct / full scale, clamped to [-1, +1]
	ChangePct    float64 // raw percent change across the window
	Completeness float64 // bars present / bars requested, in (0, 1]
}

// NormalizedMomentum computes the percent change across the most recent
// windowDays closes and scales it so that fullScalePct reads as ±1.
// Points must be date-ascending. Returns ok=false with fewer than two
// closes or a non-positive base price.
func NormalizedMomentum(points []models.ClosePoint, windowDays int, fullScalePct float64) (Momentum, bool) {
	if windowDays < 2 {
		windowDays = 2
	}
	if fullScalePct <= 0 {
		fullScalePct = 10
	}

	n := len(points)
	if n < 2 {
		return Momentum{}, false
	}

	w := windowDays
	if n < w {
		w = n
	}
	window := points[n-w:]

	base := window[0].Close
	if base <= 0 {
		return Momentum{}, false
	}

	changePct := (window[len(window)-1].Close - base) / base * 100
	return Momentum{
		Value:        Clamp(changePct/fullScalePct, -1, 1),
		ChangePct:    changePct,
		Completeness: float64(w) / float64(windowDays),
	}, true
}

// PctChange returns the percent change from the first to the last close.
// Returns ok=false with fewer than two closes or a non-positive base.
func PctChange(points []models.ClosePoint) (float64, bool) {
	if len(points) < 2 {
		return 0, false
	}
	base := points[0].Close
	if base <= 0 {
		return 0, false
	}
	return (points[len(points)-1].Close - base) / base * 100, true
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
