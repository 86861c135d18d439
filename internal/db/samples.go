package db

import (
	"fmt"

	"github.com/banshee-data/overlay.studio/internal/engine"
	"github.com/banshee-data/overlay.studio/internal/tracking"
)

// RecordSample implements engine.SampleRecorder.
func (db *DB) RecordSample(s engine.Sample) error {
	_, err := db.Exec(`
		INSERT INTO tracking_samples (session_id, timestamp_ms, status, confidence, face_count, fps)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.TimestampMs, string(s.Status), s.Confidence, s.FaceCount, s.FPS)
	if err != nil {
		return fmt.Errorf("db: insert sample: %w", err)
	}
	return nil
}

// SessionSamples returns the recorded samples for a session in time
// order, capped at limit (0 = no cap).
func (db *DB) SessionSamples(sessionID string, limit int) ([]engine.Sample, error) {
	q := `SELECT session_id, timestamp_ms, status, confidence, face_count, fps
	      FROM tracking_samples WHERE session_id = ? ORDER BY timestamp_ms`
	args := []interface{}{sessionID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("db: session samples: %w", err)
	}
	defer rows.Close()

	var out []engine.Sample
	for rows.Next() {
		var s engine.Sample
		var status string
		if err := rows.Scan(&s.SessionID, &s.TimestampMs, &status, &s.Confidence, &s.FaceCount, &s.FPS); err != nil {
			return nil, fmt.Errorf("db: scan sample: %w", err)
		}
		s.Status = tracking.Status(status)
		out = append(out, s)
	}
	return out, rows.Err()
}
