// Package plates estimates where a license plate sits inside a vehicle
// bounding box and decides when it is worth asking the ANPR service for
// a read.
package plates

import (
	"sync"

	"github.com/banshee-data/platewatch/internal/geom"
	"github.com/banshee-data/platewatch/internal/track"
)

// Plate region heuristic for front-facing vehicles: a strip at the
// bottom-center of the vehicle box.
const (
	regionHeightFrac = 0.15 // Plate height as a fraction of vehicle height
	regionWidthFrac  = 0.60 // Plate width as a fraction of vehicle width
	regionBottomFrac = 0.25 // Region top sits this far up from the bottom
)

// EstimateRegion returns the estimated plate bounding box for a vehicle
// box.
func EstimateRegion(vehicle geom.BBox) geom.BBox {
	w := vehicle.W * regionWidthFrac
	h := vehicle.H * regionHeightFrac
	return geom.BBox{
		X: vehicle.X + (vehicle.W-w)/2,
		Y: vehicle.Y + vehicle.H - vehicle.H*regionBottomFrac,
		W: w,
		H: h,
	}
}

// Config tunes capture readiness.
type Config struct {
	MinPlateHeightPx float64 // Plates under this are too small to read
	StabilityFrames  int     // Cycles a track must hold before capture
}

// Proposer tracks per-track stability and decides capture readiness. A
// track is ready once its estimated plate clears the minimum height AND
// the track has been steadily observed for the stability window, so the
// ANPR service is not asked to read blurred or half-entered vehicles.
type Proposer struct {
	mu     sync.Mutex
	cfg    Config
	stable map[int64]int
}

// NewProposer creates a proposer.
func NewProposer(cfg Config) *Proposer {
	return &Proposer{cfg: cfg, stable: make(map[int64]int)}
}

// Observe accumulates one cycle of evidence for a confirmed track and
// reports whether its plate is ready for capture, along with the
// estimated region. Once ready the caller is expected to mark the track
// captured; Observe keeps answering true until then.
func (p *Proposer) Observe(t *track.Track) (geom.BBox, bool) {
	region := EstimateRegion(t.BBox)

	p.mu.Lock()
	defer p.mu.Unlock()

	if region.H < p.cfg.MinPlateHeightPx {
		// Too small to read; stability accrues only on usable frames.
		return region, false
	}
	p.stable[t.ID]++
	return region, p.stable[t.ID] >= p.cfg.StabilityFrames
}

// Retire drops per-track stability state once the track is gone.
func (p *Proposer) Retire(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.stable, id)
}
