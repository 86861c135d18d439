package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/overlay.studio/internal/engine"
	"github.com/banshee-data/overlay.studio/internal/overlay"
	"github.com/banshee-data/overlay.studio/internal/tracking"
)

// memCatalog is an in-memory Catalog for tests.
type memCatalog map[string]overlay.Config

func (c memCatalog) GetOverlayConfig(id string) (overlay.Config, error) {
	cfg, ok := c[id]
	if !ok {
		return overlay.Config{}, fmt.Errorf("overlay config %q not found", id)
	}
	return cfg, nil
}

func (c memCatalog) ListOverlayConfigs() ([]overlay.Config, error) {
	out := make([]overlay.Config, 0, len(c))
	for _, cfg := range c {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type eventRecord struct {
	event, overlayID string
}

type memEvents struct {
	records []eventRecord
}

func (e *memEvents) InsertOverlayEvent(sessionID, event, overlayID, detail string) error {
	e.records = append(e.records, eventRecord{event, overlayID})
	return nil
}

func testCatalog() memCatalog {
	cat := memCatalog{}
	for id, typ := range map[string]overlay.Type{
		"glasses-classic": overlay.TypeGlasses,
		"mask-carnival":   overlay.TypeMask,
		"hat-party":       overlay.TypeHat,
	} {
		cat[id] = overlay.Config{
			ID:     id,
			Type:   typ,
			Anchor: overlay.DefaultAnchor(typ),
			Scale:  overlay.ScaleSpec{BaseScale: 1, WidthFactor: 1, HeightFactor: 1},
		}
	}
	return cat
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine, *memEvents) {
	t.Helper()
	state := tracking.NewState()
	registry := overlay.NewRegistry()
	eng := engine.New(state, registry, nil, engine.Config{})
	events := &memEvents{}

	mux := http.NewServeMux()
	NewServer(eng, testCatalog(), events).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, eng, events
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var payload map[string]json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status string
	require.NoError(t, json.Unmarshal(payload["status"], &status))
	assert.Equal(t, string(tracking.StatusInitializing), status)
}

func TestAddOverlayEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("adds a catalog config", func(t *testing.T) {
		t.Parallel()
		srv, eng, events := newTestServer(t)

		resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/overlays",
			`{"config_id":"glasses-classic"}`)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.JSONEq(t, `"glasses-classic"`, string(payload["id"]))
		assert.Len(t, eng.Overlays(), 1)
		require.Len(t, events.records, 1)
		assert.Equal(t, eventRecord{"add", "glasses-classic"}, events.records[0])
	})

	t.Run("unknown config is 404", func(t *testing.T) {
		t.Parallel()
		srv, _, _ := newTestServer(t)
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/overlays",
			`{"config_id":"no-such-thing"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing config_id is 400", func(t *testing.T) {
		t.Parallel()
		srv, _, _ := newTestServer(t)
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/overlays", `{}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("conflict is 409 with structured detail", func(t *testing.T) {
		t.Parallel()
		srv, eng, events := newTestServer(t)
		doJSON(t, http.MethodPost, srv.URL+"/api/overlays", `{"config_id":"glasses-classic"}`)

		resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/overlays",
			`{"config_id":"mask-carnival"}`)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		var conflict overlay.ConflictError
		require.NoError(t, json.Unmarshal(payload["conflict"], &conflict))
		assert.Equal(t, "mask-carnival", conflict.CandidateID)
		assert.Equal(t, []string{"glasses-classic"}, conflict.ConflictingIDs)

		assert.Len(t, eng.Overlays(), 1, "active set unchanged")
		assert.Equal(t, "conflict", events.records[len(events.records)-1].event)
	})
}

func TestOverlayLifecycleEndpoints(t *testing.T) {
	t.Parallel()
	srv, eng, _ := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/api/overlays", `{"config_id":"glasses-classic"}`)

	// Tune rendering, remove, re-add: the user's opacity survives.
	resp, _ := doJSON(t, http.MethodPatch, srv.URL+"/api/overlays/glasses-classic/rendering",
		`{"opacity":0.9}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/overlays/glasses-classic", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, eng.Overlays())

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/overlays", `{"config_id":"glasses-classic"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.InDelta(t, 0.9, eng.Overlays()[0].Rendering.Opacity, 1e-12)

	// Toggle off: still active, absent from the render list.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/overlays/glasses-classic/toggle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, eng.Overlays(), 1)
	assert.Empty(t, eng.RenderSnapshot())

	// Explicit enable via body.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/overlays/glasses-classic/toggle",
		`{"enabled":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, eng.RenderSnapshot(), 1)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/overlays/clear", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, eng.Overlays())
}

func TestRenderingValidation(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/api/overlays", `{"config_id":"glasses-classic"}`)

	resp, _ := doJSON(t, http.MethodPatch, srv.URL+"/api/overlays/glasses-classic/rendering",
		`{"opacity":1.5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCatalogEndpoint(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/catalog")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var configs []overlay.Config
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&configs))
	require.Len(t, configs, 3)
	assert.Equal(t, "glasses-classic", configs[0].ID, "catalog is id-ordered")
}

func TestVideoContextEndpoint(t *testing.T) {
	t.Parallel()
	srv, eng, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/video-context",
		`{"canvas_width":1280,"canvas_height":720,"mirrored":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	vctx := eng.VideoContext()
	assert.Equal(t, 1280.0, vctx.CanvasWidth)
	assert.Equal(t, 720.0, vctx.CanvasHeight)
	assert.True(t, vctx.Mirrored)
}

func TestResetEndpoint(t *testing.T) {
	t.Parallel()
	srv, eng, _ := newTestServer(t)
	eng.OnDetectorError(assert.AnError)
	require.Equal(t, tracking.StatusError, eng.Status().Status)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/tracking/reset", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, tracking.StatusNotDetected, eng.Status().Status)
}
