package track

import (
	"sort"

	"github.com/banshee-data/platewatch/internal/geom"
)

// affinity scores how well a detection matches a track in [0, 1).
// Box overlap (IOU) is the primary signal. When overlap is near zero —
// fast vehicles can clear their previous box between frames — a centroid
// distance fallback applies, scaled so that any accepted overlap always
// outranks any centroid-only match.
func (m *Manager) affinity(t *Track, d Detection) float64 {
	iou := geom.IOU(t.BBox, d.BBox)
	if iou >= m.cfg.IOUThreshold {
		return iou
	}

	gate := m.cfg.CentroidGatePx
	if gate <= 0 {
		return 0
	}
	dist := geom.CenterDistance(t.BBox, d.BBox)
	if dist >= gate {
		return 0
	}
	// Map [0, gate) onto (0, IOUThreshold): closest centroid wins, but a
	// centroid match never beats a real overlap match.
	return m.cfg.IOUThreshold * (1 - dist/gate)
}

// candidate is one scored (track, detection) pair considered for
// assignment.
type candidate struct {
	trackID  int64
	detIdx   int
	affinity float64
}

// matchGreedy resolves candidates one-to-one by descending affinity.
// Ties break by lowest detection index, then lowest track ID, so repeated
// runs over the same input always produce the same assignment.
func matchGreedy(candidates []candidate) map[int64]int {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.affinity != b.affinity {
			return a.affinity > b.affinity
		}
		if a.detIdx != b.detIdx {
			return a.detIdx < b.detIdx
		}
		return a.trackID < b.trackID
	})

	assigned := make(map[int64]int, len(candidates))
	usedDet := make(map[int]bool, len(candidates))
	for _, c := range candidates {
		if usedDet[c.detIdx] {
			continue
		}
		if _, taken := assigned[c.trackID]; taken {
			continue
		}
		assigned[c.trackID] = c.detIdx
		usedDet[c.detIdx] = true
	}
	return assigned
}
