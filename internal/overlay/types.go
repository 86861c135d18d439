// Package overlay implements the overlay data model, the per-frame
// anchor/transform engine that positions overlays against facial
// landmarks, and the registry that owns the active overlay set,
// validates combination rules, and preserves user-tuned rendering
// settings across remove/re-add cycles.
package overlay

import (
	"github.com/banshee-data/overlay.studio/internal/landmark"
)

// Type is the closed set of overlay kinds. Per-type behaviour (z-order,
// claimed facial regions, default anchors) is table-driven off the tag;
// there is no per-kind code path.
type Type string

const (
	TypeGlasses    Type = "glasses"
	TypeHat        Type = "hat"
	TypeMask       Type = "mask"
	TypeEarrings   Type = "earrings"
	TypeNecklace   Type = "necklace"
	TypeBackground Type = "background"
)

// Region is a facial region an overlay type occupies. Two overlays
// conflict when their types claim an overlapping region.
type Region string

const (
	RegionEyes  Region = "eyes"
	RegionMouth Region = "mouth"
	RegionHead  Region = "head"
	RegionEars  Region = "ears"
	RegionNeck  Region = "neck"
	RegionScene Region = "scene"
)

// zOrderByType fixes render layering by overlay semantics: visually
// "higher" items (hats) render above "lower" ones (glasses), regardless
// of insertion order. Gaps leave room for future types.
var zOrderByType = map[Type]int{
	TypeBackground: 0,
	TypeNecklace:   10,
	TypeEarrings:   20,
	TypeMask:       30,
	TypeGlasses:    40,
	TypeHat:        50,
}

// regionsByType lists the facial regions each type claims. A type
// always conflicts with another instance of itself because both claim
// the same regions. Masks cover the eye and mouth regions, which makes
// them mutually exclusive with glasses.
var regionsByType = map[Type][]Region{
	TypeGlasses:    {RegionEyes},
	TypeHat:        {RegionHead},
	TypeMask:       {RegionEyes, RegionMouth},
	TypeEarrings:   {RegionEars},
	TypeNecklace:   {RegionNeck},
	TypeBackground: {RegionScene},
}

// ZIndex returns the fixed z-order for the type. Unknown types sort
// between background and necklace rather than on top of everything.
func (t Type) ZIndex() int {
	if z, ok := zOrderByType[t]; ok {
		return z
	}
	return 5
}

// Regions returns the facial regions the type claims.
func (t Type) Regions() []Region {
	return regionsByType[t]
}

// ConflictsWith reports whether two types claim an overlapping region.
func (t Type) ConflictsWith(other Type) bool {
	for _, a := range t.Regions() {
		for _, b := range other.Regions() {
			if a == b {
				return true
			}
		}
	}
	return false
}

// AnchorSpec names the landmark geometry an overlay attaches to: the
// primary anchor index, optional secondary indices (used in order for
// rotation, e.g. the eye-to-eye line), and a normalized offset from the
// anchor point.
type AnchorSpec struct {
	Primary   int     `json:"primary"`
	Secondary []int   `json:"secondary,omitempty"`
	OffsetX   float64 `json:"offset_x"`
	OffsetY   float64 `json:"offset_y"`
}

// ScaleSpec controls how overlay size follows the detected face box.
// Width = face box width × BaseScale × WidthFactor, and likewise for
// height, so a wider detected face yields a proportionally larger
// overlay.
type ScaleSpec struct {
	BaseScale    float64 `json:"base_scale"`
	WidthFactor  float64 `json:"width_factor"`
	HeightFactor float64 `json:"height_factor"`
}

// Position is the live placement of an active overlay. X, Y, Width and
// Height are normalized to the display; rotation is in degrees. The
// transform engine rewrites it every frame while the overlay is active.
type Position struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	RotationDeg float64 `json:"rotation_deg"`
	Scale       float64 `json:"scale"`
	ZIndex      int     `json:"z_index"`
}

// Rendering holds the user-tunable draw settings. Only explicit user
// commands mutate it; the per-frame loop never touches it. Rendering
// survives remove/re-add of the same overlay id via the registry's
// removal cache.
type Rendering struct {
	Opacity   float64 `json:"opacity"`
	BlendMode string  `json:"blend_mode"`
	Visible   bool    `json:"visible"`
}

// Config is the immutable definition of an overlay, owned by the
// catalog. Adding the same id again refreshes the config while the
// registry preserves the live Rendering.
type Config struct {
	ID               string     `json:"id"`
	Type             Type       `json:"type"`
	ImageRef         string     `json:"image_ref"`
	DefaultPosition  Position   `json:"default_position"`
	DefaultRendering Rendering  `json:"default_rendering"`
	Anchor           AnchorSpec `json:"anchor"`
	Scale            ScaleSpec  `json:"scale"`
}

// Active pairs a Config with its live placement and rendering state.
// The registry owns the collection of Active values exclusively.
type Active struct {
	Config       Config    `json:"config"`
	Position     Position  `json:"position"`
	Rendering    Rendering `json:"rendering"`
	Enabled      bool      `json:"enabled"`
	LastUpdateMs int64     `json:"last_update_ms"`

	// InstanceID stamps each add so downstream consumers can tell a
	// re-added overlay from the instance it replaced.
	InstanceID string `json:"instance_id"`
}

// DefaultAnchor returns the conventional anchor spec for a type:
// glasses sit on the nose bridge rotated along the eye line, hats on
// the forehead top, masks on the nose tip, earrings on the left ear
// paired with the right, necklaces under the chin.
func DefaultAnchor(t Type) AnchorSpec {
	switch t {
	case TypeGlasses:
		return AnchorSpec{
			Primary:   landmark.IdxNoseBridge,
			Secondary: []int{landmark.IdxLeftEyeOuter, landmark.IdxRightEyeOuter},
		}
	case TypeHat:
		return AnchorSpec{Primary: landmark.IdxForeheadTop, OffsetY: -0.12}
	case TypeMask:
		return AnchorSpec{
			Primary:   landmark.IdxNoseTip,
			Secondary: []int{landmark.IdxLeftEyeOuter, landmark.IdxRightEyeOuter},
		}
	case TypeEarrings:
		return AnchorSpec{
			Primary:   landmark.IdxLeftEar,
			Secondary: []int{landmark.IdxLeftEar, landmark.IdxRightEar},
		}
	case TypeNecklace:
		return AnchorSpec{Primary: landmark.IdxChin, OffsetY: 0.15}
	default:
		return AnchorSpec{Primary: landmark.IdxNoseTip}
	}
}

// DefaultRendering returns the rendering settings used when neither the
// catalog nor the removal cache supplies values.
func DefaultRendering() Rendering {
	return Rendering{Opacity: 1.0, BlendMode: "normal", Visible: true}
}
