package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/overlay.studio/internal/landmark"
)

// FileExtension is the extension for overlay.studio detector feed logs.
const FileExtension = ".oslog"

// LogHeader is the first line of a feed log.
type LogHeader struct {
	Version       string `json:"version"`
	CreatedMs     int64  `json:"created_ms"`
	SourceAddress string `json:"source_address,omitempty"`
	TotalMessages uint64 `json:"total_messages,omitempty"`
}

// logEntry wraps a recorded message with its capture wall-clock time so
// the replayer can reproduce the original pacing.
type logEntry struct {
	CapturedMs int64    `json:"captured_ms"`
	Message    *Message `json:"message"`
}

// Recorder appends detector messages to a JSON-lines log file.
type Recorder struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	count  uint64
	closed bool
}

// NewRecorder creates a log file and writes the header line.
func NewRecorder(path, sourceAddress string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("source: create log: %w", err)
	}
	w := bufio.NewWriter(f)
	hdr := LogHeader{Version: "1.0", CreatedMs: time.Now().UnixMilli(), SourceAddress: sourceAddress}
	if err := json.NewEncoder(w).Encode(&hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("source: write header: %w", err)
	}
	return &Recorder{f: f, w: w}, nil
}

// Record appends one message.
func (r *Recorder) Record(m *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("source: recorder closed")
	}
	entry := logEntry{CapturedMs: time.Now().UnixMilli(), Message: m}
	if err := json.NewEncoder(r.w).Encode(&entry); err != nil {
		return fmt.Errorf("source: write entry: %w", err)
	}
	r.count++
	return nil
}

// Close flushes and closes the log.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.w.Flush(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}

// recordingSink tees messages to a recorder while forwarding to the
// real sink. Recorder failures are reported once and recording stops;
// the live pipeline is never disturbed by a full disk.
type recordingSink struct {
	inner FrameSink
	rec   *Recorder

	mu     sync.Mutex
	failed bool
}

// NewRecordingSink wraps sink so every dispatched message is also
// written to rec.
func NewRecordingSink(inner FrameSink, rec *Recorder) FrameSink {
	return &recordingSink{inner: inner, rec: rec}
}

func (s *recordingSink) record(m *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return
	}
	if err := s.rec.Record(m); err != nil {
		s.failed = true
	}
}

func (s *recordingSink) SubmitFrame(frame *landmark.Frame) bool {
	s.record(&Message{
		Kind:        KindLandmarks,
		TimestampMs: frame.TimestampMs,
		Points:      frame.Points,
		Confidence:  frame.Confidence,
	})
	return s.inner.SubmitFrame(frame)
}

func (s *recordingSink) SubmitDetection(det landmark.Detection) {
	s.record(&Message{
		Kind:        KindDetection,
		TimestampMs: det.TimestampMs,
		Detected:    det.Detected,
		Confidence:  det.Confidence,
		Box:         det.Box,
	})
	s.inner.SubmitDetection(det)
}

func (s *recordingSink) SubmitFaceCount(n int) {
	s.record(&Message{Kind: KindFaceCount, Count: n, TimestampMs: time.Now().UnixMilli()})
	s.inner.SubmitFaceCount(n)
}

func (s *recordingSink) OnDetectorError(err error) {
	s.record(&Message{Kind: KindError, Error: err.Error(), TimestampMs: time.Now().UnixMilli()})
	s.inner.OnDetectorError(err)
}

// Replayer streams a recorded log back into a sink.
type Replayer struct {
	path string
}

// NewReplayer opens a feed log for replay.
func NewReplayer(path string) *Replayer {
	return &Replayer{path: path}
}

// Replay dispatches every recorded message to the sink. When pace is
// true, inter-message gaps from capture time are reproduced; otherwise
// messages are dispatched back to back. speed scales pacing (2 = twice
// as fast); values <= 0 mean 1.
func (r *Replayer) Replay(ctx context.Context, sink FrameSink, pace bool, speed float64) (uint64, error) {
	if speed <= 0 {
		speed = 1
	}
	f, err := os.Open(r.path)
	if err != nil {
		return 0, fmt.Errorf("source: open log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	if !sc.Scan() {
		return 0, fmt.Errorf("source: log missing header")
	}
	var hdr LogHeader
	if err := json.Unmarshal(sc.Bytes(), &hdr); err != nil {
		return 0, fmt.Errorf("source: parse header: %w", err)
	}

	var count uint64
	var prevMs int64
	for sc.Scan() {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		var entry logEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return count, fmt.Errorf("source: parse entry %d: %w", count+1, err)
		}
		if entry.Message == nil {
			return count, fmt.Errorf("source: entry %d has no message", count+1)
		}
		if pace && prevMs > 0 && entry.CapturedMs > prevMs {
			gap := time.Duration(float64(entry.CapturedMs-prevMs)/speed) * time.Millisecond
			select {
			case <-time.After(gap):
			case <-ctx.Done():
				return count, ctx.Err()
			}
		}
		prevMs = entry.CapturedMs
		Dispatch(sink, entry.Message)
		count++
	}
	if err := sc.Err(); err != nil {
		return count, fmt.Errorf("source: scan log: %w", err)
	}
	return count, nil
}
