package score

import (
	"math"

	"github.com/teranos/trendspark/internal/util"
)

// RequiredEngagement computes the adaptive per-author engagement bar.
//
// The author's historical average is compared against a global reference
// (the population average, floored at the configured minimum and at 1).
// The resulting ratio, clamped to the scale band, scales the base floor so
// high-baseline authors need proportionally more engagement than
// low-baseline ones. Always at least 1.
func RequiredEngagement(authorAvg, globalAvg float64, baseFloor int, bandMin, bandMax float64) int {
	reference := math.Max(globalAvg, math.Max(float64(baseFloor), 1))
	ratio := util.ClampFloat64(authorAvg/reference, bandMin, bandMax)

	required := int(math.Round(float64(baseFloor) * ratio))
	if required < 1 {
		required = 1
	}
	return required
}
