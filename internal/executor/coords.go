package executor

import "math"

// Denormalize maps normalized coordinates in [0,1] onto viewport pixels.
func Denormalize(nx, ny float64, width, height int64) (px, py float64) {
	return nx * float64(width), ny * float64(height)
}

// Normalize is the inverse mapping. Denormalize(Normalize(px, py)) lands
// within one pixel of the original point for any positive viewport.
func Normalize(px, py float64, width, height int64) (nx, ny float64) {
	return px / float64(width), py / float64(height)
}

// ClampPoint keeps a pixel point inside the viewport so a rounding overshoot
// at the edge cannot miss elementFromPoint.
func ClampPoint(px, py float64, width, height int64) (float64, float64) {
	px = math.Max(0, math.Min(px, float64(width-1)))
	py = math.Max(0, math.Min(py, float64(height-1)))
	return px, py
}
