package db

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/overlay.studio/internal/engine"
	"github.com/banshee-data/overlay.studio/internal/overlay"
	"github.com/banshee-data/overlay.studio/internal/tracking"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOverlayConfigRoundTrip(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	cfg := overlay.Config{
		ID:               "glasses-classic",
		Type:             overlay.TypeGlasses,
		ImageRef:         "assets/glasses-classic.png",
		DefaultRendering: overlay.Rendering{Opacity: 0.9, BlendMode: "normal", Visible: true},
		Anchor:           overlay.DefaultAnchor(overlay.TypeGlasses),
		Scale:            overlay.ScaleSpec{BaseScale: 1, WidthFactor: 1.1, HeightFactor: 0.4},
	}
	require.NoError(t, db.UpsertOverlayConfig(cfg))

	got, err := db.GetOverlayConfig("glasses-classic")
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("config round trip differs (-stored +loaded):\n%s", diff)
	}

	// Upsert replaces in place.
	cfg.ImageRef = "assets/v2.png"
	require.NoError(t, db.UpsertOverlayConfig(cfg))
	got, err = db.GetOverlayConfig("glasses-classic")
	require.NoError(t, err)
	assert.Equal(t, "assets/v2.png", got.ImageRef)

	_, err = db.GetOverlayConfig("missing")
	assert.ErrorContains(t, err, "not found")
}

func TestEnsureDefaultCatalog(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	require.NoError(t, db.EnsureDefaultCatalog())
	configs, err := db.ListOverlayConfigs()
	require.NoError(t, err)
	assert.Len(t, configs, len(DefaultCatalog()))

	// Operator edit survives a reseed.
	edited, err := db.GetOverlayConfig("glasses-classic")
	require.NoError(t, err)
	edited.ImageRef = "assets/custom.png"
	require.NoError(t, db.UpsertOverlayConfig(edited))

	require.NoError(t, db.EnsureDefaultCatalog())
	got, err := db.GetOverlayConfig("glasses-classic")
	require.NoError(t, err)
	assert.Equal(t, "assets/custom.png", got.ImageRef)
}

func TestSessionsAndSamples(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	require.NoError(t, db.CreateSession("session-1"))
	require.NoError(t, db.CreateSession("session-1"), "duplicate session id is a no-op")

	for i, conf := range []float64{0.2, 0.6, 0.9} {
		require.NoError(t, db.RecordSample(engine.Sample{
			SessionID:   "session-1",
			TimestampMs: int64(1000 + i),
			Status:      tracking.StatusDetected,
			Confidence:  conf,
			FaceCount:   1,
			FPS:         30,
		}))
	}

	samples, err := db.SessionSamples("session-1", 0)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, int64(1000), samples[0].TimestampMs, "samples are time ordered")
	assert.Equal(t, tracking.StatusDetected, samples[0].Status)
	assert.InDelta(t, 0.9, samples[2].Confidence, 1e-12)

	limited, err := db.SessionSamples("session-1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	require.NoError(t, db.EndSession("session-1", 1234))

	var frames uint64
	require.NoError(t, db.QueryRow(
		`SELECT frames FROM tracking_sessions WHERE session_id = ?`, "session-1").Scan(&frames))
	assert.Equal(t, uint64(1234), frames)
}

func TestOverlayEvents(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	require.NoError(t, db.CreateSession("session-1"))

	require.NoError(t, db.InsertOverlayEvent("session-1", "add", "glasses-classic", "glasses"))
	require.NoError(t, db.InsertOverlayEvent("session-1", "conflict", "mask-carnival", "conflicts with glasses-classic"))

	var count int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM overlay_events WHERE session_id = ?`, "session-1").Scan(&count))
	assert.Equal(t, 2, count)
}
