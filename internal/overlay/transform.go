package overlay

import (
	"errors"
	"math"
	"sync"

	"github.com/banshee-data/overlay.studio/internal/landmark"
)

// Fallback display dimensions used when neither the canvas nor the
// stream track has reported a size yet (video metadata not loaded).
const (
	DefaultCanvasWidth  = 640.0
	DefaultCanvasHeight = 480.0
)

// ErrDimensionUnavailable is returned when display dimensions are
// malformed (NaN, Inf, negative) and placement cannot be computed. The
// frame is skipped and retried on the next tick; the loop never crashes
// on it.
var ErrDimensionUnavailable = errors.New("overlay: display dimensions unavailable")

// ErrAnchorUnresolved is returned when a config's primary anchor index
// is outside the landmark topology of the given frame.
var ErrAnchorUnresolved = errors.New("overlay: anchor landmark index out of range")

// VideoContext carries the per-frame display information the transform
// needs: canvas dimensions in pixels, the stream track's settings as a
// fallback, and whether the feed is shown mirrored (front camera
// convention).
type VideoContext struct {
	CanvasWidth  float64 `json:"canvas_width"`
	CanvasHeight float64 `json:"canvas_height"`
	StreamWidth  float64 `json:"stream_width"`
	StreamHeight float64 `json:"stream_height"`
	Mirrored     bool    `json:"mirrored"`
}

// Dimensions resolves the effective display size: canvas first, then
// stream track settings, then the fixed default. Zero values fall
// through the chain; malformed values (NaN, Inf, negative) return
// ErrDimensionUnavailable. The result is never NaN or Inf.
func (v VideoContext) Dimensions() (width, height float64, err error) {
	pick := func(canvas, stream, def float64) (float64, error) {
		for _, d := range [...]float64{canvas, stream} {
			if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
				return 0, ErrDimensionUnavailable
			}
			if d > 0 {
				return d, nil
			}
		}
		return def, nil
	}
	if width, err = pick(v.CanvasWidth, v.StreamWidth, DefaultCanvasWidth); err != nil {
		return 0, 0, err
	}
	if height, err = pick(v.CanvasHeight, v.StreamHeight, DefaultCanvasHeight); err != nil {
		return 0, 0, err
	}
	return width, height, nil
}

// Mirror flips a pixel-space x coordinate for mirrored display. The
// transform is its own inverse: Mirror(Mirror(x, w), w) == x exactly.
func Mirror(x, width float64) float64 {
	return width - x
}

// ComputePosition maps one overlay config and one landmark frame to a
// placement. It is a pure function: same config, frame, box and context
// always yield the same Position, and it touches no shared state.
//
// Steps:
//  1. Resolve display dimensions via the fallback chain.
//  2. Resolve the primary anchor to pixel space; when the context is
//     mirrored, every normalized-sourced x coordinate is flipped as
//     width − x before any downstream use, so anchors, rotation points
//     and the face box all agree on orientation.
//  3. Position = anchor + configured offset; width/height = face box
//     extent × scale spec; rotation = angle of the line through the
//     first two secondary anchors (eye line for glasses), else 0.
//  4. ZIndex from the fixed per-type ordering table.
//
// The face box is computed upstream (stage 1 of the frame pipeline) and
// passed in so transform never re-derives state-machine inputs.
func ComputePosition(cfg Config, frame *landmark.Frame, box landmark.Box, vctx VideoContext) (Position, error) {
	width, height, err := vctx.Dimensions()
	if err != nil {
		return Position{}, err
	}
	if frame == nil || cfg.Anchor.Primary < 0 || cfg.Anchor.Primary >= len(frame.Points) {
		return Position{}, ErrAnchorUnresolved
	}

	// Resolve a landmark to pixel space with mirroring applied.
	resolve := func(idx int) (px, py float64, ok bool) {
		if idx < 0 || idx >= len(frame.Points) {
			return 0, 0, false
		}
		p := frame.Points[idx]
		px = p.X * width
		if vctx.Mirrored {
			px = Mirror(px, width)
		}
		return px, p.Y * height, true
	}

	anchorX, anchorY, _ := resolve(cfg.Anchor.Primary)

	pos := Position{
		X:      anchorX/width + cfg.Anchor.OffsetX,
		Y:      anchorY/height + cfg.Anchor.OffsetY,
		Width:  box.Width * cfg.Scale.BaseScale * cfg.Scale.WidthFactor,
		Height: box.Height * cfg.Scale.BaseScale * cfg.Scale.HeightFactor,
		Scale:  cfg.Scale.BaseScale,
		ZIndex: cfg.Type.ZIndex(),
	}

	// Rotation from the angular difference between two secondary
	// anchors, when configured. Mirroring already flipped the x of both
	// points, so the sign of the angle follows the displayed image.
	if len(cfg.Anchor.Secondary) >= 2 {
		x1, y1, ok1 := resolve(cfg.Anchor.Secondary[0])
		x2, y2, ok2 := resolve(cfg.Anchor.Secondary[1])
		if ok1 && ok2 {
			pos.RotationDeg = math.Atan2(y2-y1, x2-x1) * 180 / math.Pi
		}
	}

	return pos, nil
}

// RotationSmoother applies exponential moving average smoothing to
// per-overlay rotation angles, with wraparound handling at ±180°. It
// reduces eye-line jitter between frames while staying responsive to
// real head tilt. The smoother holds the only mutable state in the
// transform path, kept outside ComputePosition so that function stays
// pure.
type RotationSmoother struct {
	mu    sync.Mutex
	alpha float64
	prev  map[string]float64
}

// NewRotationSmoother creates a smoother with the given responsiveness
// factor in (0,1]. Higher alpha follows raw rotation more closely;
// alpha 1 disables smoothing. Typical: 0.35.
func NewRotationSmoother(alpha float64) *RotationSmoother {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.35
	}
	return &RotationSmoother{alpha: alpha, prev: make(map[string]float64)}
}

// Smooth blends the raw rotation for the given overlay id with its
// previous smoothed value and returns the result in (−180, 180].
func (r *RotationSmoother) Smooth(id string, rawDeg float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.prev[id]
	if !ok {
		r.prev[id] = rawDeg
		return rawDeg
	}

	// Shortest angular distance, wraparound at ±180°.
	diff := rawDeg - prev
	for diff > 180 {
		diff -= 360
	}
	for diff < -180 {
		diff += 360
	}

	smoothed := prev + r.alpha*diff
	for smoothed > 180 {
		smoothed -= 360
	}
	for smoothed < -180 {
		smoothed += 360
	}

	r.prev[id] = smoothed
	return smoothed
}

// Forget drops the smoothing history for an overlay id, so a re-added
// overlay starts from its first raw rotation instead of blending with a
// stale angle.
func (r *RotationSmoother) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.prev, id)
}
