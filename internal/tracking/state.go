// Package tracking maintains the detection-quality state machine that
// converts raw per-frame detector results into a stable status signal
// for the render loop and the UI.
package tracking

import (
	"sync"

	"github.com/banshee-data/overlay.studio/internal/landmark"
)

// Status is the mutually exclusive tracking status. Exactly one holds
// at any time.
type Status string

const (
	StatusInitializing  Status = "initializing"    // No detector input received yet
	StatusNotDetected   Status = "not_detected"    // Detector ran, no face found
	StatusDetected      Status = "detected"        // Exactly one face tracked
	StatusMultipleFaces Status = "multiple_faces"  // More than one face in frame
	StatusError         Status = "error"           // Detector failure, latched until Reset
)

// Snapshot is a value copy of the tracking state for the UI/API.
type Snapshot struct {
	Status     Status  `json:"status"`
	Confidence float64 `json:"confidence"`
	FaceCount  int     `json:"face_count"`
	IsTracking bool    `json:"is_tracking"`
	Error      string  `json:"error,omitempty"`

	// HasLandmarks reports whether a last-known landmark frame is
	// available and not suppressed by an error state.
	HasLandmarks    bool  `json:"has_landmarks"`
	LastTimestampMs int64 `json:"last_timestamp_ms,omitempty"`
}

// State is the tracking state container. All transitions run under a
// single mutex so the per-frame pipeline and API readers never observe
// a half-applied update.
//
// Invariants held across every operation:
//   - Confidence stays in [0,1].
//   - StatusDetected implies FaceCount==1 and Confidence>0 once a
//     detection carrying confidence arrives.
//   - StatusMultipleFaces implies FaceCount>1.
//   - StatusError implies a non-empty message; while in error the
//     last-known landmarks are treated as stale and every transition
//     except Reset is ignored.
type State struct {
	mu         sync.RWMutex
	status     Status
	confidence float64
	faceCount  int
	errMsg     string
	lastFrame  *landmark.Frame
}

// NewState returns a state machine in StatusInitializing.
func NewState() *State {
	return &State{status: StatusInitializing}
}

// SetFaceCount applies the face-count transition: 0 faces means
// NotDetected, exactly one means Detected, more means MultipleFaces.
// Negative counts are clamped to zero. Ignored while in error.
func (s *State) SetFaceCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusError {
		return
	}
	if n < 0 {
		n = 0
	}
	s.faceCount = n
	switch {
	case n == 0:
		s.status = StatusNotDetected
	case n == 1:
		s.status = StatusDetected
	default:
		s.status = StatusMultipleFaces
	}
}

// UpdateFaceDetection applies an independently reported detection
// result. A positive detection moves to Detected with face count 1; a
// negative one moves to NotDetected. Either way the detection's
// confidence replaces the current value, starting a new detection
// episode (the landmark-driven ratchet in UpdateFacialLandmarks only
// holds within an episode). Ignored while in error.
func (s *State) UpdateFaceDetection(det landmark.Detection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusError {
		return
	}
	s.confidence = clamp01(det.Confidence)
	if det.Detected {
		s.status = StatusDetected
		s.faceCount = 1
	} else {
		s.status = StatusNotDetected
		s.faceCount = 0
	}
}

// UpdateFacialLandmarks records the latest landmark frame. It does not
// change the status by itself; the frame's confidence refines the
// reported confidence upward but never lowers it within the current
// detection episode. Ignored while in error.
func (s *State) UpdateFacialLandmarks(frame *landmark.Frame) {
	if frame == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusError {
		return
	}
	if c := clamp01(frame.Confidence); c > s.confidence {
		s.confidence = c
	}
	s.lastFrame = frame
}

// SetError latches the error state. Confidence is left unchanged so the
// UI can show the value that held when the detector failed, but the
// last-known landmarks are suppressed (LastFrame and Snapshot report
// none) until Reset.
func (s *State) SetError(msg string) {
	if msg == "" {
		msg = "detector failure"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusError
	s.errMsg = msg
}

// Reset returns to the initial tuple: NotDetected, zero confidence, no
// landmarks, no error. This is the only exit from StatusError.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusNotDetected
	s.confidence = 0
	s.faceCount = 0
	s.errMsg = ""
	s.lastFrame = nil
}

// IsTracking reports whether at least one face is currently tracked.
func (s *State) IsTracking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status != StatusError && s.faceCount > 0
}

// LastFrame returns the last-known landmark frame, or false when none
// is held or the state machine is in error (stale suppression).
func (s *State) LastFrame() (*landmark.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == StatusError || s.lastFrame == nil {
		return nil, false
	}
	return s.lastFrame, true
}

// Snapshot returns a value copy of the current state for the UI/API.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Status:     s.status,
		Confidence: s.confidence,
		FaceCount:  s.faceCount,
		IsTracking: s.status != StatusError && s.faceCount > 0,
		Error:      s.errMsg,
	}
	if s.status != StatusError && s.lastFrame != nil {
		snap.HasLandmarks = true
		snap.LastTimestampMs = s.lastFrame.TimestampMs
	}
	return snap
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
