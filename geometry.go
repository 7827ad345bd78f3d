package darkroom

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/darkroom/internal/engine"
)

// normalizeDegrees maps an angle to [0, 360).
func normalizeDegrees(deg float32) float32 {
	d := math32.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// RotatedDimensions returns the bounding-box dimensions of a w x h image
// rotated by the given angle in degrees:
//
//	w' = round(w*|cos| + h*|sin|)
//	h' = round(w*|sin| + h*|cos|)
//
// Exact quarter turns take a fast path so that 90 and 270 swap the
// dimensions exactly and 0, 180 and full turns preserve them. The result
// is invariant under adding full turns and under negating the angle.
func RotatedDimensions(w, h int, degrees float32) (int, int) {
	return engine.RotatedDimensions(w, h, normalizeDegrees(degrees))
}
