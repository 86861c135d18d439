package landmark

// ComputeBox estimates the normalized face bounding box for one frame.
//
// Algorithm:
//  1. Scan the curated subset (eyes, nose, mouth, lower face outline),
//     skipping points at or below the visibility threshold, tracking
//     running min/max X and Y.
//  2. If no curated point is visible (heavy occlusion), fall back to
//     scanning the entire topology with the same threshold. The
//     fallback widens the box semantics; the result records it in
//     UsedFallback.
//  3. If still no point is visible, return a degenerate zero box and
//     ErrNoUsableLandmarks. No path fabricates values or produces NaN.
//
// Center is (min+max)/2, extent is max−min.
func ComputeBox(points []Point) (BoxResult, error) {
	box, count, ok := scanBox(points, boxIndices)
	if ok {
		return BoxResult{Box: box, VisibleCount: count}, nil
	}

	box, count, ok = scanBox(points, nil)
	if ok {
		return BoxResult{Box: box, VisibleCount: count, UsedFallback: true}, nil
	}

	return BoxResult{}, ErrNoUsableLandmarks
}

// scanBox runs the min/max scan over the given index subset, or over
// every point when indices is nil. Returns ok=false when no point
// passed the visibility threshold.
func scanBox(points []Point, indices []int) (Box, int, bool) {
	var minX, minY, maxX, maxY float64
	count := 0

	visit := func(p Point) {
		if p.Visibility <= VisibilityThreshold {
			return
		}
		if count == 0 {
			minX, maxX = p.X, p.X
			minY, maxY = p.Y, p.Y
		} else {
			if p.X < minX {
				minX = p.X
			}
			if p.X > maxX {
				maxX = p.X
			}
			if p.Y < minY {
				minY = p.Y
			}
			if p.Y > maxY {
				maxY = p.Y
			}
		}
		count++
	}

	if indices == nil {
		for _, p := range points {
			visit(p)
		}
	} else {
		for _, idx := range indices {
			if idx >= len(points) {
				continue
			}
			visit(points[idx])
		}
	}

	if count == 0 {
		return Box{}, 0, false
	}

	return Box{
		CenterX: (minX + maxX) / 2,
		CenterY: (minY + maxY) / 2,
		Width:   maxX - minX,
		Height:  maxY - minY,
	}, count, true
}
