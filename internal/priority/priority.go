// Package priority selects which confirmed track the camera should
// follow. Scores are a weighted blend of frame-center proximity,
// apparent size, approach rate, and novelty; an incumbent target holds
// its slot until a challenger clearly beats it.
package priority

import (
	"sync"

	"github.com/banshee-data/platewatch/internal/geom"
	"github.com/banshee-data/platewatch/internal/track"
)

// Weights are the blend coefficients for the score components. Each
// component is normalized to [0,1] before weighting, so the overall
// score lands in [0, sum of weights].
type Weights struct {
	Center   float64 `json:"center"`   // Proximity to frame center
	Size     float64 `json:"size"`     // Apparent size in the frame
	Approach float64 `json:"approach"` // Closing rate toward frame center
	Novelty  float64 `json:"novelty"`  // Plate not yet captured
}

// Config tunes the scorer.
type Config struct {
	Weights Weights

	// SwitchMargin is how much a challenger must beat the incumbent's
	// score by before the target switches. Zero disables hysteresis.
	SwitchMargin float64

	// SizeRefFraction is the bbox area, as a fraction of the frame,
	// that earns a full size score. Vehicles rarely fill the frame, so
	// this sits well below 1.
	SizeRefFraction float64

	// ApproachRefPx is the closing speed in px/s that earns a full
	// approach score.
	ApproachRefPx float64
}

// Scorer ranks confirmed tracks and remembers the current target so
// selection is sticky. It also remembers which tracks already had a
// plate captured, which feeds the novelty component.
type Scorer struct {
	mu        sync.Mutex
	cfg       Config
	incumbent int64
	hasTarget bool
	captured  map[int64]bool
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg, captured: make(map[int64]bool)}
}

// Select picks the target among the given tracks. Only confirmed tracks
// are eligible. An empty eligible set clears the target and returns
// false; that is a normal quiet-road condition, not an error.
//
// The incumbent keeps the target unless a challenger beats its current
// score by at least SwitchMargin.
func (s *Scorer) Select(tracks []*track.Track, frame geom.FrameGeometry) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		bestID         int64
		bestScore      float64
		found          bool
		incumbentOK    bool
		incumbentScore float64
	)
	for _, t := range tracks {
		if t.State != track.StateConfirmed {
			continue
		}
		score := s.score(t, frame)
		if s.hasTarget && t.ID == s.incumbent {
			incumbentOK = true
			incumbentScore = score
		}
		if !found || score > bestScore || (score == bestScore && t.ID < bestID) {
			bestID, bestScore, found = t.ID, score, true
		}
	}

	if !found {
		s.hasTarget = false
		return 0, false
	}
	if incumbentOK && bestID != s.incumbent && bestScore <= incumbentScore+s.cfg.SwitchMargin {
		return s.incumbent, true
	}
	s.incumbent = bestID
	s.hasTarget = true
	return bestID, true
}

// Score returns the blended score for a single track. Exposed so the
// pipeline can publish per-track scores on the bus.
func (s *Scorer) Score(t *track.Track, frame geom.FrameGeometry) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score(t, frame)
}

func (s *Scorer) score(t *track.Track, frame geom.FrameGeometry) float64 {
	w := s.cfg.Weights
	score := w.Center * s.centerScore(t, frame)
	score += w.Size * s.sizeScore(t, frame)
	score += w.Approach * s.approachScore(t, frame)
	if !s.captured[t.ID] {
		score += w.Novelty
	}
	return score
}

// centerScore is 1 at the frame center falling linearly to 0 at the
// corner.
func (s *Scorer) centerScore(t *track.Track, frame geom.FrameGeometry) float64 {
	max := frame.MaxCenterDistance()
	if max <= 0 {
		return 0
	}
	d := t.BBox.Center().Sub(frame.Center()).Norm()
	return clamp01(1 - d/max)
}

// sizeScore is the bbox area relative to the reference fraction of the
// frame, capped at 1.
func (s *Scorer) sizeScore(t *track.Track, frame geom.FrameGeometry) float64 {
	ref := s.cfg.SizeRefFraction * float64(frame.Width) * float64(frame.Height)
	if ref <= 0 {
		return 0
	}
	return clamp01(t.BBox.Area() / ref)
}

// approachScore projects the track velocity onto the direction toward
// the frame center: closing vehicles score up to 1, receding ones 0.
func (s *Scorer) approachScore(t *track.Track, frame geom.FrameGeometry) float64 {
	if s.cfg.ApproachRefPx <= 0 {
		return 0
	}
	toCenter := frame.Center().Sub(t.BBox.Center())
	dist := toCenter.Norm()
	if dist == 0 {
		return 0
	}
	closing := (t.Velocity.X*toCenter.X + t.Velocity.Y*toCenter.Y) / dist
	return clamp01(closing / s.cfg.ApproachRefPx)
}

// MarkCaptured records that a track's plate has been captured, dropping
// its novelty component in later cycles.
func (s *Scorer) MarkCaptured(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captured[id] = true
}

// Captured reports whether a track's plate has already been captured.
func (s *Scorer) Captured(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured[id]
}

// Retire forgets per-track state once the track is gone. The pipeline
// calls this on every lost transition so the captured set cannot grow
// without bound.
func (s *Scorer) Retire(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.captured, id)
	if s.hasTarget && s.incumbent == id {
		s.hasTarget = false
	}
}

// Current returns the incumbent target, if any.
func (s *Scorer) Current() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incumbent, s.hasTarget
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
