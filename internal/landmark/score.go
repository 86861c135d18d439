package landmark

import (
	"gonum.org/v1/gonum/stat"
)

// Confidence score weighting. Visibility dominates; the spatial
// consistency term demotes frames where the rigid facial points are
// scattered beyond plausible face proportions (detector jitter or a
// partially hallucinated mesh).
const (
	visibilityWeight  = 0.7
	consistencyWeight = 0.3

	// maxStableSpread is the combined X/Y variance of the stable point
	// subset at which the consistency term bottoms out at zero. A well
	// tracked face spans roughly a third of the normalized image, which
	// puts the stable points' variance well below this.
	maxStableSpread = 0.05

	// minStablePoints is the minimum number of visible stable points
	// required to compute the consistency term at all.
	minStablePoints = 3
)

// Score computes the aggregate confidence for one landmark frame in
// [0,1]. Returns 0 for empty input.
//
// The score combines:
//  1. Mean per-point visibility across the whole topology.
//  2. Spatial consistency: one minus the normalized variance of the
//     stable point subset (eye corners, nose, chin). High variance of
//     points that should move rigidly together indicates jitter.
//
// When too few stable points are visible the consistency term is
// skipped and visibility carries full weight, so a mostly occluded but
// cleanly tracked face is not penalised twice.
func Score(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}

	var visSum float64
	for _, p := range points {
		visSum += p.Visibility
	}
	meanVis := visSum / float64(len(points))

	xs := make([]float64, 0, len(stableIndices))
	ys := make([]float64, 0, len(stableIndices))
	for _, idx := range stableIndices {
		if idx >= len(points) {
			continue
		}
		p := points[idx]
		if p.Visibility <= VisibilityThreshold {
			continue
		}
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
	}

	if len(xs) < minStablePoints {
		return clamp01(meanVis)
	}

	spread := stat.Variance(xs, nil) + stat.Variance(ys, nil)
	consistency := 1 - spread/maxStableSpread
	if consistency < 0 {
		consistency = 0
	}

	return clamp01(visibilityWeight*meanVis + consistencyWeight*consistency)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
