package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/overlay.studio/internal/landmark"
)

func TestStateFaceCountTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		count      int
		want       Status
		isTracking bool
	}{
		{"zero faces", 0, StatusNotDetected, false},
		{"negative count clamps to zero", -3, StatusNotDetected, false},
		{"one face", 1, StatusDetected, true},
		{"two faces", 2, StatusMultipleFaces, true},
		{"crowd", 7, StatusMultipleFaces, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := NewState()
			s.SetFaceCount(tc.count)

			snap := s.Snapshot()
			assert.Equal(t, tc.want, snap.Status)
			assert.Equal(t, tc.isTracking, s.IsTracking())
			assert.Equal(t, tc.isTracking, snap.IsTracking)
		})
	}
}

func TestStateStartsInitializing(t *testing.T) {
	t.Parallel()
	s := NewState()

	snap := s.Snapshot()
	assert.Equal(t, StatusInitializing, snap.Status)
	assert.Zero(t, snap.Confidence)
	assert.False(t, snap.IsTracking)
	assert.False(t, snap.HasLandmarks)
}

func TestStateConfidenceRatchet(t *testing.T) {
	t.Parallel()

	t.Run("landmark confidence only moves upward", func(t *testing.T) {
		t.Parallel()
		s := NewState()
		s.UpdateFaceDetection(landmark.Detection{Detected: true, Confidence: 0.4})

		s.UpdateFacialLandmarks(&landmark.Frame{Confidence: 0.8, TimestampMs: 10})
		assert.InDelta(t, 0.8, s.Snapshot().Confidence, 1e-12)

		// A weaker frame within the same episode must not lower it.
		s.UpdateFacialLandmarks(&landmark.Frame{Confidence: 0.3, TimestampMs: 20})
		assert.InDelta(t, 0.8, s.Snapshot().Confidence, 1e-12)
	})

	t.Run("new detection starts a new episode", func(t *testing.T) {
		t.Parallel()
		s := NewState()
		s.UpdateFaceDetection(landmark.Detection{Detected: true, Confidence: 0.9})
		s.UpdateFacialLandmarks(&landmark.Frame{Confidence: 0.95})

		s.UpdateFaceDetection(landmark.Detection{Detected: true, Confidence: 0.2})
		assert.InDelta(t, 0.2, s.Snapshot().Confidence, 1e-12)
	})

	t.Run("negative detection zeroes confidence", func(t *testing.T) {
		t.Parallel()
		s := NewState()
		s.UpdateFaceDetection(landmark.Detection{Detected: true, Confidence: 0.7})

		s.UpdateFaceDetection(landmark.Detection{Detected: false})
		snap := s.Snapshot()
		assert.Equal(t, StatusNotDetected, snap.Status)
		assert.Zero(t, snap.Confidence)
		assert.Zero(t, snap.FaceCount)
	})

	t.Run("confidence is clamped to the unit interval", func(t *testing.T) {
		t.Parallel()
		s := NewState()
		s.UpdateFaceDetection(landmark.Detection{Detected: true, Confidence: 3.0})
		assert.InDelta(t, 1.0, s.Snapshot().Confidence, 1e-12)
	})
}

func TestStateErrorLatch(t *testing.T) {
	t.Parallel()

	t.Run("transitions are ignored while in error", func(t *testing.T) {
		t.Parallel()
		s := NewState()
		s.UpdateFaceDetection(landmark.Detection{Detected: true, Confidence: 0.6})
		s.SetError("camera unplugged")

		s.SetFaceCount(1)
		s.UpdateFaceDetection(landmark.Detection{Detected: true, Confidence: 0.9})
		s.UpdateFacialLandmarks(&landmark.Frame{Confidence: 1.0, TimestampMs: 5})

		snap := s.Snapshot()
		assert.Equal(t, StatusError, snap.Status)
		assert.Equal(t, "camera unplugged", snap.Error)
		// Confidence from before the failure is preserved for display.
		assert.InDelta(t, 0.6, snap.Confidence, 1e-12)
		assert.False(t, s.IsTracking())
	})

	t.Run("last landmarks are suppressed in error", func(t *testing.T) {
		t.Parallel()
		s := NewState()
		s.SetFaceCount(1)
		s.UpdateFacialLandmarks(&landmark.Frame{Confidence: 0.9, TimestampMs: 42})

		_, ok := s.LastFrame()
		require.True(t, ok)

		s.SetError("detector crash")
		_, ok = s.LastFrame()
		assert.False(t, ok)
		assert.False(t, s.Snapshot().HasLandmarks)
	})

	t.Run("empty error message gets a default", func(t *testing.T) {
		t.Parallel()
		s := NewState()
		s.SetError("")
		assert.Equal(t, "detector failure", s.Snapshot().Error)
	})

	t.Run("reset is the only exit", func(t *testing.T) {
		t.Parallel()
		s := NewState()
		s.SetError("boom")
		s.Reset()

		snap := s.Snapshot()
		assert.Equal(t, StatusNotDetected, snap.Status)
		assert.Zero(t, snap.Confidence)
		assert.Zero(t, snap.FaceCount)
		assert.Empty(t, snap.Error)
		assert.False(t, snap.HasLandmarks)
	})
}

func TestStateLastFrame(t *testing.T) {
	t.Parallel()

	s := NewState()
	_, ok := s.LastFrame()
	assert.False(t, ok)

	frame := &landmark.Frame{Confidence: 0.5, TimestampMs: 100}
	s.SetFaceCount(1)
	s.UpdateFacialLandmarks(frame)

	got, ok := s.LastFrame()
	require.True(t, ok)
	assert.Same(t, frame, got)

	snap := s.Snapshot()
	assert.True(t, snap.HasLandmarks)
	assert.Equal(t, int64(100), snap.LastTimestampMs)
}
