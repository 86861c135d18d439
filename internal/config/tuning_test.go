package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyTuningConfigDefaults(t *testing.T) {
	t.Parallel()
	c := EmptyTuningConfig()

	assert.Equal(t, 30.0, c.GetMaxFrameRate())
	assert.Equal(t, 8, c.GetFeedDepth())
	assert.Equal(t, time.Second, c.GetSampleInterval())
	assert.Equal(t, 0.35, c.GetRotationAlpha())
	assert.Equal(t, ":7788", c.GetListenAddress())
	assert.Equal(t, 4*1024*1024, c.GetRcvBuf())
	assert.Zero(t, c.GetCanvasWidth())
	assert.Zero(t, c.GetCanvasHeight())
	assert.True(t, c.GetMirrored())
}

func TestLoadTuningConfig(t *testing.T) {
	t.Parallel()

	t.Run("partial config keeps defaults for omitted fields", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "tuning.json", `{
			"max_frame_rate": 60,
			"sample_interval": "500ms",
			"mirrored": false
		}`)

		c, err := LoadTuningConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 60.0, c.GetMaxFrameRate())
		assert.Equal(t, 500*time.Millisecond, c.GetSampleInterval())
		assert.False(t, c.GetMirrored())
		// Untouched fields fall back.
		assert.Equal(t, 8, c.GetFeedDepth())
		assert.Equal(t, ":7788", c.GetListenAddress())
	})

	t.Run("rejects non-json extension", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "tuning.yaml", `{}`)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, ".json extension")
	})

	t.Run("rejects missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "tuning.json", `{"max_frame_rate":`)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, "parse config JSON")
	})
}

func TestTuningConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"negative frame rate", `{"max_frame_rate": -1}`},
		{"absurd frame rate", `{"max_frame_rate": 500}`},
		{"zero feed depth", `{"feed_depth": 0}`},
		{"oversized feed depth", `{"feed_depth": 4096}`},
		{"zero rotation alpha", `{"rotation_alpha": 0}`},
		{"rotation alpha above one", `{"rotation_alpha": 1.5}`},
		{"unparseable sample interval", `{"sample_interval": "soon"}`},
		{"negative canvas width", `{"canvas_width": -640}`},
		{"negative canvas height", `{"canvas_height": -480}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, "tuning.json", tc.body)
			_, err := LoadTuningConfig(path)
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}

	t.Run("boundary values pass", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "tuning.json", `{
			"max_frame_rate": 240,
			"feed_depth": 1024,
			"rotation_alpha": 1,
			"canvas_width": 0
		}`)
		_, err := LoadTuningConfig(path)
		assert.NoError(t, err)
	})
}
