package overlay

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/overlay.studio/internal/facelog"
)

// ConflictError reports a rejected add: the candidate overlay cannot
// coexist with one or more currently active overlays. The add leaves
// the registry unchanged; the error carries the conflicting ids and
// types for the UI to display.
type ConflictError struct {
	CandidateID      string   `json:"candidate_id"`
	CandidateType    Type     `json:"candidate_type"`
	ConflictingIDs   []string `json:"conflicting_ids"`
	ConflictingTypes []Type   `json:"conflicting_types"`
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.ConflictingIDs))
	for i, id := range e.ConflictingIDs {
		parts[i] = fmt.Sprintf("%s (%s)", id, e.ConflictingTypes[i])
	}
	return fmt.Sprintf("overlay %q (%s) conflicts with active overlay(s): %s",
		e.CandidateID, e.CandidateType, strings.Join(parts, ", "))
}

// PositionPatch is a partial position update. Nil fields are left
// unchanged.
type PositionPatch struct {
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	RotationDeg *float64 `json:"rotation_deg,omitempty"`
	Scale       *float64 `json:"scale,omitempty"`
	ZIndex      *int     `json:"z_index,omitempty"`
}

// RenderingPatch is a partial rendering update. Nil fields are left
// unchanged.
type RenderingPatch struct {
	Opacity   *float64 `json:"opacity,omitempty"`
	BlendMode *string  `json:"blend_mode,omitempty"`
	Visible   *bool    `json:"visible,omitempty"`
}

// Registry owns the active overlay set and the removal cache. All
// mutation — user commands and the per-frame transform writes — runs
// under one mutex, so commands never interleave with a frame update on
// the same overlay's fields.
//
// Invariant: an overlay id is in at most one of the active set and the
// removal cache at any time.
type Registry struct {
	mu           sync.RWMutex
	active       map[string]*Active
	removalCache map[string]Rendering

	// nowMs is swappable for tests.
	nowMs func() int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active:       make(map[string]*Active),
		removalCache: make(map[string]Rendering),
		nowMs:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Add activates an overlay config.
//
// If the id is already active the new config is merged in while the
// live Rendering is preserved — opacity and visibility are user-tuned
// and must survive a config refresh.
//
// For a new id the prospective set (current actives plus the candidate)
// is validated against the per-type region table; on conflict the add
// is rejected with a ConflictError and the registry is left unchanged.
// On success the Position starts from the config default with the
// z-index from the type table, and the Rendering comes from the removal
// cache when a prior instance of this id left one behind (merged over
// the config default, then consumed), otherwise from the config
// default.
func (r *Registry) Add(cfg Config) error {
	if cfg.ID == "" {
		return fmt.Errorf("overlay: config has empty id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.active[cfg.ID]; ok {
		// Config refresh: keep live Rendering, Position and Enabled.
		a.Config = cfg
		a.Position.ZIndex = cfg.Type.ZIndex()
		a.LastUpdateMs = r.nowMs()
		facelog.Diagf("[Registry] Refreshed config for active overlay %q", cfg.ID)
		return nil
	}

	if err := r.validateLocked(cfg); err != nil {
		facelog.Opsf("[Registry] Rejected add of %q: %v", cfg.ID, err)
		return err
	}

	rendering := cfg.DefaultRendering
	if rendering == (Rendering{}) {
		rendering = DefaultRendering()
	}
	if cached, ok := r.removalCache[cfg.ID]; ok {
		// Restoration takes precedence over config defaults; the cache
		// entry is consumed so the id is never in both collections.
		rendering = cached
		delete(r.removalCache, cfg.ID)
		facelog.Diagf("[Registry] Restored cached rendering for %q", cfg.ID)
	}

	pos := cfg.DefaultPosition
	pos.ZIndex = cfg.Type.ZIndex()

	r.active[cfg.ID] = &Active{
		Config:       cfg,
		Position:     pos,
		Rendering:    rendering,
		Enabled:      true,
		LastUpdateMs: r.nowMs(),
		InstanceID:   uuid.NewString(),
	}
	facelog.Diagf("[Registry] Added overlay %q (%s), %d active", cfg.ID, cfg.Type, len(r.active))
	return nil
}

// validateLocked checks the candidate against every currently active
// overlay, including disabled ones — disabling is a render skip, not a
// removal, so a disabled overlay still holds its region claim.
func (r *Registry) validateLocked(cfg Config) error {
	var ids []string
	for id, a := range r.active {
		if cfg.Type.ConflictsWith(a.Config.Type) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	cerr := &ConflictError{CandidateID: cfg.ID, CandidateType: cfg.Type}
	for _, id := range ids {
		cerr.ConflictingIDs = append(cerr.ConflictingIDs, id)
		cerr.ConflictingTypes = append(cerr.ConflictingTypes, r.active[id].Config.Type)
	}
	return cerr
}

// Remove deactivates an overlay, first copying its current Rendering
// into the removal cache so a later re-add of the same id restores the
// user's settings instead of resetting to defaults. Unknown ids are a
// no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.active[id]
	if !ok {
		return
	}
	r.removalCache[id] = a.Rendering
	delete(r.active, id)
	facelog.Diagf("[Registry] Removed overlay %q, rendering cached", id)
}

// Clear empties the active set without populating the removal cache:
// an explicit clear forfeits restoration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.active)
	r.active = make(map[string]*Active)
	if n > 0 {
		facelog.Diagf("[Registry] Cleared %d overlays", n)
	}
}

// Toggle flips the enabled flag, or sets it when enabled is non-nil.
// Disabled overlays are skipped by the render loop but remain active
// and keep their region claims. Unknown ids are a no-op.
func (r *Registry) Toggle(id string, enabled *bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.active[id]
	if !ok {
		return
	}
	if enabled != nil {
		a.Enabled = *enabled
	} else {
		a.Enabled = !a.Enabled
	}
	a.LastUpdateMs = r.nowMs()
}

// UpdatePosition merges a partial position update into the matching
// active overlay. Unknown ids are a no-op.
func (r *Registry) UpdatePosition(id string, patch PositionPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.active[id]
	if !ok {
		return
	}
	if patch.X != nil {
		a.Position.X = *patch.X
	}
	if patch.Y != nil {
		a.Position.Y = *patch.Y
	}
	if patch.Width != nil {
		a.Position.Width = *patch.Width
	}
	if patch.Height != nil {
		a.Position.Height = *patch.Height
	}
	if patch.RotationDeg != nil {
		a.Position.RotationDeg = *patch.RotationDeg
	}
	if patch.Scale != nil {
		a.Position.Scale = *patch.Scale
	}
	if patch.ZIndex != nil {
		a.Position.ZIndex = *patch.ZIndex
	}
	a.LastUpdateMs = r.nowMs()
}

// UpdateRendering merges a partial rendering update into the matching
// active overlay. Unknown ids are a no-op.
func (r *Registry) UpdateRendering(id string, patch RenderingPatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.active[id]
	if !ok {
		return
	}
	if patch.Opacity != nil {
		a.Rendering.Opacity = *patch.Opacity
	}
	if patch.BlendMode != nil {
		a.Rendering.BlendMode = *patch.BlendMode
	}
	if patch.Visible != nil {
		a.Rendering.Visible = *patch.Visible
	}
	a.LastUpdateMs = r.nowMs()
}

// ApplyPosition writes a transform-engine result into an active
// overlay. This is the per-frame write path; it shares the registry
// mutex with user commands so neither interleaves mid-update.
func (r *Registry) ApplyPosition(id string, pos Position, timestampMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.active[id]
	if !ok {
		return
	}
	a.Position = pos
	a.LastUpdateMs = timestampMs
}

// Get returns a value copy of one active overlay.
func (r *Registry) Get(id string) (Active, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.active[id]
	if !ok {
		return Active{}, false
	}
	return *a, true
}

// Snapshot returns value copies of every active overlay, ordered by
// z-index then id for stable output.
func (r *Registry) Snapshot() []Active {
	return r.snapshot(false)
}

// EnabledSnapshot returns value copies of the overlays the render loop
// should draw: enabled and marked visible.
func (r *Registry) EnabledSnapshot() []Active {
	return r.snapshot(true)
}

func (r *Registry) snapshot(enabledOnly bool) []Active {
	r.mu.RLock()
	out := make([]Active, 0, len(r.active))
	for _, a := range r.active {
		if enabledOnly && (!a.Enabled || !a.Rendering.Visible) {
			continue
		}
		out = append(out, *a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Position.ZIndex != out[j].Position.ZIndex {
			return out[i].Position.ZIndex < out[j].Position.ZIndex
		}
		return out[i].Config.ID < out[j].Config.ID
	})
	return out
}

// ActiveIDs returns the ids of enabled active overlays. Used by the
// frame pipeline to iterate without holding the lock across transforms.
func (r *Registry) ActiveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.active))
	for id, a := range r.active {
		if a.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// CachedRendering exposes the removal cache entry for an id, mainly for
// tests and the API's introspection endpoint.
func (r *Registry) CachedRendering(id string) (Rendering, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rend, ok := r.removalCache[id]
	return rend, ok
}
