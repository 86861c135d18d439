package db

import (
	"fmt"

	"github.com/banshee-data/overlay.studio/internal/overlay"
)

// DefaultCatalog is the set of overlay configs seeded on first run.
// Anchor geometry comes from the overlay package's per-type tables so
// landmark indices stay single-sourced.
func DefaultCatalog() []overlay.Config {
	mk := func(id string, t overlay.Type, image string, scale overlay.ScaleSpec, opacity float64) overlay.Config {
		return overlay.Config{
			ID:       id,
			Type:     t,
			ImageRef: image,
			DefaultPosition: overlay.Position{
				X: 0.5, Y: 0.5, Width: 0.2, Height: 0.1, Scale: scale.BaseScale,
			},
			DefaultRendering: overlay.Rendering{Opacity: opacity, BlendMode: "normal", Visible: true},
			Anchor:           overlay.DefaultAnchor(t),
			Scale:            scale,
		}
	}

	return []overlay.Config{
		mk("glasses-classic", overlay.TypeGlasses, "assets/glasses-classic.png",
			overlay.ScaleSpec{BaseScale: 1.0, WidthFactor: 1.1, HeightFactor: 0.4}, 0.9),
		mk("glasses-aviator", overlay.TypeGlasses, "assets/glasses-aviator.png",
			overlay.ScaleSpec{BaseScale: 1.0, WidthFactor: 1.15, HeightFactor: 0.45}, 0.9),
		mk("hat-party", overlay.TypeHat, "assets/hat-party.png",
			overlay.ScaleSpec{BaseScale: 1.2, WidthFactor: 1.0, HeightFactor: 0.8}, 1.0),
		mk("hat-top", overlay.TypeHat, "assets/hat-top.png",
			overlay.ScaleSpec{BaseScale: 1.3, WidthFactor: 1.05, HeightFactor: 0.9}, 1.0),
		mk("mask-carnival", overlay.TypeMask, "assets/mask-carnival.png",
			overlay.ScaleSpec{BaseScale: 1.0, WidthFactor: 1.2, HeightFactor: 0.7}, 0.95),
		mk("earrings-gold", overlay.TypeEarrings, "assets/earrings-gold.png",
			overlay.ScaleSpec{BaseScale: 0.6, WidthFactor: 0.25, HeightFactor: 0.3}, 1.0),
		mk("necklace-pearl", overlay.TypeNecklace, "assets/necklace-pearl.png",
			overlay.ScaleSpec{BaseScale: 1.0, WidthFactor: 0.9, HeightFactor: 0.5}, 1.0),
	}
}

// EnsureDefaultCatalog inserts any default config whose id is missing
// from the catalog. Existing rows are left untouched so operator edits
// survive restarts.
func (db *DB) EnsureDefaultCatalog() error {
	existing, err := db.ListOverlayConfigs()
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, cfg := range existing {
		have[cfg.ID] = true
	}
	for _, cfg := range DefaultCatalog() {
		if have[cfg.ID] {
			continue
		}
		if err := db.UpsertOverlayConfig(cfg); err != nil {
			return fmt.Errorf("db: seed catalog entry %q: %w", cfg.ID, err)
		}
	}
	return nil
}
