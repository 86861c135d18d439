// Package engine drives the per-frame pipeline: detector frames are
// consumed from a bounded feed, scored and boxed, folded into the
// tracking state machine, and turned into overlay placements — in that
// strict order, so no overlay is ever positioned using a tracking
// status newer than the landmarks that produced it.
package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/overlay.studio/internal/facelog"
	"github.com/banshee-data/overlay.studio/internal/landmark"
	"github.com/banshee-data/overlay.studio/internal/overlay"
	"github.com/banshee-data/overlay.studio/internal/tracking"
)

// Sample is one periodic tracking-quality observation, persisted for
// the session timeline and the debug monitor.
type Sample struct {
	SessionID   string
	TimestampMs int64
	Status      tracking.Status
	Confidence  float64
	FaceCount   int
	FPS         float64
}

// SampleRecorder persists periodic samples. The engine treats recorder
// failures as diagnostics, never as pipeline failures.
type SampleRecorder interface {
	RecordSample(s Sample) error
}

// Config holds engine tuning. Zero values select defaults.
type Config struct {
	// FeedDepth is the bounded detector feed capacity. Frames arriving
	// while the feed is full are dropped (the detector outruns the
	// loop; stale frames are worthless).
	FeedDepth int

	// MaxFrameRate caps how often the transform stage runs. Frames
	// arriving faster still update the state machine but skip the
	// placement computation. Zero means no cap.
	MaxFrameRate float64

	// SampleInterval is how often a quality sample is recorded.
	SampleInterval time.Duration

	// RotationAlpha is the EMA factor for rotation smoothing.
	RotationAlpha float64
}

func (c Config) feedDepth() int {
	if c.FeedDepth <= 0 {
		return 8
	}
	return c.FeedDepth
}

func (c Config) sampleInterval() time.Duration {
	if c.SampleInterval <= 0 {
		return time.Second
	}
	return c.SampleInterval
}

// Engine owns the frame loop. It is the single writer of overlay
// positions; user commands reach the registry through the same mutex,
// so a command and a frame update never interleave on one overlay.
type Engine struct {
	state    *tracking.State
	registry *overlay.Registry
	smoother *overlay.RotationSmoother
	recorder SampleRecorder
	cfg      Config

	sessionID string
	frames    chan *landmark.Frame

	vctxMu sync.RWMutex
	vctx   overlay.VideoContext

	// Frame-rate throttle state, loop goroutine only.
	lastTransform time.Time
	minInterval   time.Duration

	droppedFrames    atomic.Uint64
	processedFrames  atomic.Uint64
	throttledFrames  atomic.Uint64
	fpsWindowCount   atomic.Uint64
	currentFPS       atomic.Uint64 // bits of a float64
	historyMu        sync.Mutex
	history          []Sample
	maxHistory       int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine around the given state machine and registry.
// recorder may be nil to disable persistence.
func New(state *tracking.State, registry *overlay.Registry, recorder SampleRecorder, cfg Config) *Engine {
	e := &Engine{
		state:      state,
		registry:   registry,
		smoother:   overlay.NewRotationSmoother(cfg.RotationAlpha),
		recorder:   recorder,
		cfg:        cfg,
		sessionID:  uuid.NewString(),
		frames:     make(chan *landmark.Frame, cfg.feedDepth()),
		maxHistory: 600,
	}
	if cfg.MaxFrameRate > 0 {
		e.minInterval = time.Duration(float64(time.Second) / cfg.MaxFrameRate)
	}
	return e
}

// SessionID identifies this engine run in persisted samples.
func (e *Engine) SessionID() string { return e.sessionID }

// SetVideoContext updates the display dimensions and mirroring flag
// reported by the canvas/video collaborator.
func (e *Engine) SetVideoContext(v overlay.VideoContext) {
	e.vctxMu.Lock()
	e.vctx = v
	e.vctxMu.Unlock()
}

// VideoContext returns the current display context.
func (e *Engine) VideoContext() overlay.VideoContext {
	e.vctxMu.RLock()
	defer e.vctxMu.RUnlock()
	return e.vctx
}

// SubmitFrame offers a landmark frame to the bounded feed. Returns
// false when the feed is full and the frame was dropped.
func (e *Engine) SubmitFrame(frame *landmark.Frame) bool {
	if frame == nil {
		return false
	}
	select {
	case e.frames <- frame:
		return true
	default:
		n := e.droppedFrames.Add(1)
		if n%100 == 1 {
			facelog.Diagf("[Engine] Feed full, %d frames dropped so far", n)
		}
		return false
	}
}

// SubmitDetection applies an independently reported face detection
// (no landmarks). Runs synchronously; the state machine serializes it.
func (e *Engine) SubmitDetection(det landmark.Detection) {
	e.state.UpdateFaceDetection(det)
}

// SubmitFaceCount applies a detector-reported face count.
func (e *Engine) SubmitFaceCount(n int) {
	e.state.SetFaceCount(n)
}

// OnDetectorError translates a detector failure into the error state.
// Errors are latched until an explicit reset; they never propagate as
// crashes.
func (e *Engine) OnDetectorError(err error) {
	if err == nil {
		return
	}
	facelog.Opsf("[Engine] Detector failure: %v", err)
	e.state.SetError(err.Error())
}

// Start launches the frame loop. It returns immediately; the loop runs
// until Stop or context cancellation, discarding any in-flight frames
// on the way out.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.loop(ctx)
	facelog.Opsf("[Engine] Started session %s", e.sessionID)
}

// Stop cancels the loop and waits for it to drain.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	facelog.Opsf("[Engine] Stopped session %s (%d frames processed, %d dropped, %d throttled)",
		e.sessionID, e.processedFrames.Load(), e.droppedFrames.Load(), e.throttledFrames.Load())
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	sampleTicker := time.NewTicker(e.cfg.sampleInterval())
	defer sampleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Discard partial in-flight frames.
			for {
				select {
				case <-e.frames:
				default:
					return
				}
			}
		case frame := <-e.frames:
			e.ProcessFrame(frame)
		case <-sampleTicker.C:
			e.recordSample()
		}
	}
}

// ProcessFrame runs one frame through the strictly ordered stages:
//
//	confidence/bbox → state machine update → per-overlay transform.
//
// Exposed so the detector boundary can also drive the engine
// frame-synchronously without the feed channel (tests, replay).
func (e *Engine) ProcessFrame(frame *landmark.Frame) {
	if frame == nil {
		return
	}
	e.processedFrames.Add(1)
	e.fpsWindowCount.Add(1)

	// Stage 1: confidence and bounding box. Pure computation over the
	// frame; the detector's own aggregate confidence is refined upward
	// by the spatial score, never downward. The refined value goes into
	// a copy so the submitted frame stays immutable.
	score := landmark.Score(frame.Points)
	boxRes, boxErr := landmark.ComputeBox(frame.Points)

	// Stage 2: state machine. A frame with no usable landmarks is a
	// negative detection: confidence decays to zero rather than
	// carrying a stale value.
	if boxErr != nil {
		if errors.Is(boxErr, landmark.ErrNoUsableLandmarks) {
			e.state.UpdateFaceDetection(landmark.Detection{
				Detected:    false,
				TimestampMs: frame.TimestampMs,
			})
			facelog.Tracef("[Engine] Frame %d: no usable landmarks", frame.TimestampMs)
		}
		return
	}
	tracked := *frame
	if score > tracked.Confidence {
		tracked.Confidence = score
	}
	e.state.SetFaceCount(1)
	e.state.UpdateFacialLandmarks(&tracked)

	if boxRes.UsedFallback {
		facelog.Tracef("[Engine] Frame %d: bbox from full-topology fallback (%d visible)",
			frame.TimestampMs, boxRes.VisibleCount)
	}

	// Frame-rate throttle: state stays fresh on every frame, but the
	// transform stage is skipped when frames arrive faster than
	// MaxFrameRate. The stamp moves only on a completed transform pass,
	// so a frame deferred on missing dimensions does not consume the
	// throttle budget.
	if e.minInterval > 0 {
		if !e.lastTransform.IsZero() && time.Since(e.lastTransform) < e.minInterval {
			if n := e.throttledFrames.Add(1); n%50 == 0 {
				facelog.Diagf("[Engine] Throttled %d frames (max %.0f fps)", n, e.cfg.MaxFrameRate)
			}
			return
		}
	}

	// Stage 3: per-overlay transform.
	if e.positionOverlays(frame, boxRes.Box) {
		e.lastTransform = time.Now()
	}
}

// positionOverlays computes and applies placement for every enabled
// overlay. DimensionUnavailable skips the whole frame — placement is
// retried on the next one; the loop never crashes on it. Reports
// whether the pass completed (false on deferral).
func (e *Engine) positionOverlays(frame *landmark.Frame, box landmark.Box) bool {
	vctx := e.VideoContext()
	for _, id := range e.registry.ActiveIDs() {
		a, ok := e.registry.Get(id)
		if !ok {
			continue
		}
		pos, err := overlay.ComputePosition(a.Config, frame, box, vctx)
		if err != nil {
			if errors.Is(err, overlay.ErrDimensionUnavailable) {
				facelog.Tracef("[Engine] Dimensions unavailable, deferring frame %d", frame.TimestampMs)
				return false
			}
			facelog.Diagf("[Engine] Skipping overlay %q: %v", id, err)
			continue
		}
		pos.RotationDeg = e.smoother.Smooth(id, pos.RotationDeg)
		e.registry.ApplyPosition(id, pos, frame.TimestampMs)
	}
	return true
}

// Reset clears the error state and starts a fresh detection episode.
func (e *Engine) Reset() {
	e.state.Reset()
}

// Status returns a value copy of the tracking state for the UI.
func (e *Engine) Status() tracking.Snapshot {
	return e.state.Snapshot()
}

// FPS returns the most recent one-second frame rate estimate.
func (e *Engine) FPS() float64 {
	return math.Float64frombits(e.currentFPS.Load())
}

// recordSample computes the FPS window, appends to the in-memory
// history ring, and hands the sample to the recorder when configured.
func (e *Engine) recordSample() {
	frames := e.fpsWindowCount.Swap(0)
	fps := float64(frames) / e.cfg.sampleInterval().Seconds()
	e.currentFPS.Store(math.Float64bits(fps))

	snap := e.state.Snapshot()
	s := Sample{
		SessionID:   e.sessionID,
		TimestampMs: time.Now().UnixMilli(),
		Status:      snap.Status,
		Confidence:  snap.Confidence,
		FaceCount:   snap.FaceCount,
		FPS:         fps,
	}

	e.historyMu.Lock()
	e.history = append(e.history, s)
	if len(e.history) > e.maxHistory {
		e.history = e.history[len(e.history)-e.maxHistory:]
	}
	e.historyMu.Unlock()

	if e.recorder != nil {
		if err := e.recorder.RecordSample(s); err != nil {
			facelog.Diagf("[Engine] Failed to record sample: %v", err)
		}
	}
}

// History returns a copy of the recent sample window for the monitor.
func (e *Engine) History() []Sample {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	out := make([]Sample, len(e.history))
	copy(out, e.history)
	return out
}

// DroppedFrames reports how many frames the bounded feed rejected.
func (e *Engine) DroppedFrames() uint64 { return e.droppedFrames.Load() }

// ProcessedFrames reports how many frames ran through the pipeline.
func (e *Engine) ProcessedFrames() uint64 { return e.processedFrames.Load() }
