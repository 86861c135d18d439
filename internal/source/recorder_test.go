package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/overlay.studio/internal/landmark"
)

func TestRecorderReplayRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feed"+FileExtension)

	rec, err := NewRecorder(path, ":7788")
	require.NoError(t, err)

	live := &fakeSink{}
	sink := NewRecordingSink(live, rec)

	frame := &landmark.Frame{
		Points:      []landmark.Point{{X: 0.5, Y: 0.4, Visibility: 0.9}},
		Confidence:  0.8,
		TimestampMs: 1000,
	}
	sink.SubmitFrame(frame)
	sink.SubmitDetection(landmark.Detection{Detected: true, Confidence: 0.7, TimestampMs: 1001})
	sink.SubmitFaceCount(1)
	sink.OnDetectorError(assert.AnError)
	require.NoError(t, rec.Close())

	// Live sink saw everything while recording.
	require.Len(t, live.frames, 1)
	require.Len(t, live.detections, 1)
	require.Len(t, live.counts, 1)
	require.Len(t, live.errs, 1)

	replayed := &fakeSink{}
	n, err := NewReplayer(path).Replay(context.Background(), replayed, false, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)

	require.Len(t, replayed.frames, 1)
	if diff := cmp.Diff(frame, replayed.frames[0]); diff != "" {
		t.Errorf("replayed frame differs (-recorded +replayed):\n%s", diff)
	}

	require.Len(t, replayed.detections, 1)
	assert.True(t, replayed.detections[0].Detected)
	assert.InDelta(t, 0.7, replayed.detections[0].Confidence, 1e-12)
	assert.Equal(t, []int{1}, replayed.counts)
	require.Len(t, replayed.errs, 1)
}

func TestReplayerErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := NewReplayer(filepath.Join(t.TempDir(), "nope.oslog")).
			Replay(context.Background(), &fakeSink{}, false, 1)
		assert.Error(t, err)
	})

	t.Run("entry without a message is rejected, not dereferenced", func(t *testing.T) {
		t.Parallel()
		for name, entry := range map[string]string{
			"message field absent": `{"captured_ms":5}`,
			"message null":         `{"captured_ms":5,"message":null}`,
		} {
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				path := filepath.Join(t.TempDir(), "corrupt.oslog")
				body := `{"version":"1.0","created_ms":1}` + "\n" + entry + "\n"
				require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

				sink := &fakeSink{}
				n, err := NewReplayer(path).Replay(context.Background(), sink, false, 1)
				assert.ErrorContains(t, err, "no message")
				assert.Zero(t, n)
				frames, detections, counts, errs := sink.tally()
				assert.Zero(t, frames+detections+counts+errs)
			})
		}
	})

	t.Run("cancelled context stops the replay", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "feed.oslog")
		rec, err := NewRecorder(path, "")
		require.NoError(t, err)
		require.NoError(t, rec.Record(&Message{Kind: KindFaceCount, Count: 1}))
		require.NoError(t, rec.Close())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = NewReplayer(path).Replay(ctx, &fakeSink{}, false, 1)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRecorderClosedRejectsWrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feed.oslog")
	rec, err := NewRecorder(path, "")
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close(), "double close is a no-op")

	assert.Error(t, rec.Record(&Message{Kind: KindFaceCount}))
}
