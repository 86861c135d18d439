package engine

import (
	"github.com/banshee-data/overlay.studio/internal/overlay"
)

// Command surface for the UI collaborator. All calls are synchronous
// and return immediately; the registry mutex serializes them against
// the per-frame update.

// AddOverlay activates a catalog config. Returns a *overlay.ConflictError
// when the combination rules reject it; the active set is unchanged in
// that case.
func (e *Engine) AddOverlay(cfg overlay.Config) error {
	return e.registry.Add(cfg)
}

// RemoveOverlay deactivates an overlay, caching its rendering settings
// for a later re-add, and drops its rotation smoothing history so a
// re-added instance starts from its first raw angle.
func (e *Engine) RemoveOverlay(id string) {
	e.registry.Remove(id)
	e.smoother.Forget(id)
}

// ToggleOverlay flips or sets the enabled flag.
func (e *Engine) ToggleOverlay(id string, enabled *bool) {
	e.registry.Toggle(id, enabled)
}

// UpdateOverlayRendering merges a partial rendering update.
func (e *Engine) UpdateOverlayRendering(id string, patch overlay.RenderingPatch) {
	e.registry.UpdateRendering(id, patch)
}

// UpdateOverlayPosition merges a partial position update. The next
// frame's transform overwrites positional fields for anchored overlays;
// this exists for manual nudging while tracking is lost.
func (e *Engine) UpdateOverlayPosition(id string, patch overlay.PositionPatch) {
	e.registry.UpdatePosition(id, patch)
}

// ClearOverlays empties the active set, forfeiting cached rendering
// restoration. Smoothing history is dropped for every active overlay,
// disabled ones included.
func (e *Engine) ClearOverlays() {
	for _, a := range e.registry.Snapshot() {
		e.smoother.Forget(a.Config.ID)
	}
	e.registry.Clear()
}

// Overlays returns value copies of all active overlays for the UI.
func (e *Engine) Overlays() []overlay.Active {
	return e.registry.Snapshot()
}

// RenderSnapshot returns the overlays the 2D compositor should draw
// this frame: enabled, visible, ordered by z-index.
func (e *Engine) RenderSnapshot() []overlay.Active {
	return e.registry.EnabledSnapshot()
}
