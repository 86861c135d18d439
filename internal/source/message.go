// Package source ingests detector output into the engine. The detector
// is a black box running in its own process (or on another machine);
// it emits one JSON datagram per result over UDP. This package also
// records the feed to disk and replays recordings with original pacing.
package source

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/overlay.studio/internal/landmark"
)

// Message kinds on the detector wire.
const (
	KindLandmarks = "landmarks"
	KindDetection = "detection"
	KindFaceCount = "face_count"
	KindError     = "error"
)

// Message is one detector datagram. Kind selects which payload fields
// are meaningful.
type Message struct {
	Kind        string `json:"type"`
	TimestampMs int64  `json:"timestamp_ms"`

	// KindLandmarks
	Points     []landmark.Point `json:"points,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`

	// KindDetection
	Detected bool          `json:"detected,omitempty"`
	Box      *landmark.Box `json:"box,omitempty"`

	// KindFaceCount
	Count int `json:"count,omitempty"`

	// KindError
	Error string `json:"error,omitempty"`
}

// Decode parses one datagram payload. Malformed payloads are a
// detector failure from the engine's perspective.
func Decode(payload []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("source: malformed detector message: %w", err)
	}
	switch m.Kind {
	case KindLandmarks, KindDetection, KindFaceCount, KindError:
		return &m, nil
	default:
		return nil, fmt.Errorf("source: unknown detector message type %q", m.Kind)
	}
}

// FrameSink is where decoded detector results land. The engine
// implements it; tests substitute fakes.
type FrameSink interface {
	SubmitFrame(frame *landmark.Frame) bool
	SubmitDetection(det landmark.Detection)
	SubmitFaceCount(n int)
	OnDetectorError(err error)
}

// Dispatch routes a decoded message to the sink. Nil messages are
// ignored.
func Dispatch(sink FrameSink, m *Message) {
	if m == nil {
		return
	}
	switch m.Kind {
	case KindLandmarks:
		sink.SubmitFrame(&landmark.Frame{
			Points:      m.Points,
			Confidence:  m.Confidence,
			TimestampMs: m.TimestampMs,
		})
	case KindDetection:
		sink.SubmitDetection(landmark.Detection{
			Detected:    m.Detected,
			Confidence:  m.Confidence,
			Box:         m.Box,
			TimestampMs: m.TimestampMs,
		})
	case KindFaceCount:
		sink.SubmitFaceCount(m.Count)
	case KindError:
		sink.OnDetectorError(fmt.Errorf("detector: %s", m.Error))
	}
}
