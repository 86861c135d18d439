// Package landmark defines the facial landmark data model and the pure
// per-frame computations derived from it: the aggregate confidence
// score and the normalized face bounding box. Landmarks arrive from an
// external detector as a fixed-length ordered point list following the
// MediaPipe face mesh topology; this package never retains them beyond
// the call that consumes them.
package landmark

import "errors"

// NumPoints is the number of points in the detector's face mesh
// topology. The point order is fixed; index tables in indices.go refer
// into this layout.
const NumPoints = 468

// VisibilityThreshold is the minimum per-point visibility for a point
// to participate in bounding-box and confidence computation.
const VisibilityThreshold = 0.5

// ErrNoUsableLandmarks is returned when no point passes the visibility
// threshold even after falling back to the full topology scan. Callers
// absorb it as zero confidence rather than propagating a failure.
var ErrNoUsableLandmarks = errors.New("landmark: no usable landmarks above visibility threshold")

// Point is a single tracked point on the face in normalized image
// coordinates. X and Y are in [0,1], Z is relative depth (negative
// toward the camera), Visibility is the detector's per-point
// confidence in [0,1].
type Point struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Frame is one detection callback's worth of landmarks: the fixed-length
// ordered point list plus the aggregate confidence and capture
// timestamp. Frames are immutable once built.
type Frame struct {
	Points      []Point `json:"points"`
	Confidence  float64 `json:"confidence"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// Box is a normalized face bounding box. Center coordinates and extents
// are all in [0,1] image space.
type Box struct {
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// IsZero reports whether the box is degenerate (no extent).
func (b Box) IsZero() bool {
	return b.Width == 0 && b.Height == 0
}

// BoxResult carries a computed bounding box together with provenance:
// how many points contributed and whether the curated subset was
// abandoned for the full-topology fallback scan. The fallback widens
// the box semantics from "tight face box" to "whatever was visible";
// consumers that care about consistency across frames can check
// UsedFallback. See DESIGN.md for the open product question.
type BoxResult struct {
	Box          Box
	VisibleCount int
	UsedFallback bool
}

// Detection is an independently reported face detection result. When
// landmarks are available the box is derived from them instead; the
// detector may also report detection without a box.
type Detection struct {
	Detected    bool    `json:"detected"`
	Confidence  float64 `json:"confidence"`
	Box         *Box    `json:"box,omitempty"`
	TimestampMs int64   `json:"timestamp_ms"`
}
