package track

import (
	"sync"
	"time"

	"github.com/banshee-data/platewatch/internal/monitoring"
)

// Config holds tuning parameters for the track manager.
type Config struct {
	MinHits           int     // Matched cycles before Tentative → Confirmed
	MaxAge            int     // Unmatched cycles before a track goes Stale
	MinConfidence     float64 // Detections below this are ignored
	IOUThreshold      float64 // Minimum box overlap accepted as a match
	CentroidGatePx    float64 // Max centre distance for the overlap fallback
	VelocitySmoothing float64 // EMA weight of the newest velocity sample [0,1]
	MaxHistory        int     // Position trail cap, oldest evicted
	MaxSpeedHistory   int     // Speed sample cap for percentile reporting
}

// Manager converts per-frame detection sets into a stable set of tracks
// with persistent identity and smoothed velocity. It owns the active
// track set exclusively; every track handed out is a copy.
//
// Update is written for a single caller per camera — the pipeline runs
// one cycle to completion before the next — but the manager still locks
// so the status endpoint can read counts concurrently.
type Manager struct {
	mu            sync.RWMutex
	cfg           Config
	tracks        map[int64]*Track
	nextID        int64
	lastFrameTime time.Time
	transitions   []Transition

	// Lifetime counters for the status endpoint.
	created   int64
	confirmed int64
	retired   int64
}

// NewManager creates a track manager with the given configuration.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:    cfg,
		tracks: make(map[int64]*Track),
		nextID: 1,
	}
}

// Update runs one association cycle: match detections to tracks, refresh
// matched tracks, age unmatched ones, spawn tracks for leftover
// detections, and drop anything that went Stale. It returns copies of the
// tracks still active at cycle end.
//
// Frame timestamps must not run backwards; an out-of-order timestamp is
// clamped to the previous frame time so velocity math never sees a
// negative dt.
func (m *Manager) Update(detections []Detection, frameTime time.Time) []*Track {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastFrameTime.IsZero() && frameTime.Before(m.lastFrameTime) {
		monitoring.Logf("track: clamping out-of-order frame time %v -> %v",
			frameTime, m.lastFrameTime)
		frameTime = m.lastFrameTime
	}
	m.lastFrameTime = frameTime

	detections = m.filterConfident(detections)

	// Score every class-compatible (track, detection) pair that clears
	// the affinity floor, then assign greedily.
	var candidates []candidate
	for id, t := range m.tracks {
		for di, d := range detections {
			if !t.Class.Compatible(d.Class) {
				continue
			}
			if aff := m.affinity(t, d); aff > 0 {
				candidates = append(candidates, candidate{trackID: id, detIdx: di, affinity: aff})
			}
		}
	}
	assigned := matchGreedy(candidates)

	// Refresh matched tracks.
	for id, di := range assigned {
		m.observe(m.tracks[id], detections[di], frameTime)
	}

	// Age unmatched tracks; anything past MaxAge goes Stale.
	for id, t := range m.tracks {
		if _, ok := assigned[id]; ok {
			continue
		}
		t.Age++
		t.Hits = 0
		if t.Age > m.cfg.MaxAge {
			t.State = StateStale
		}
	}

	// Spawn Tentative tracks for unmatched detections.
	matchedDet := make(map[int]bool, len(assigned))
	for _, di := range assigned {
		matchedDet[di] = true
	}
	for di, d := range detections {
		if !matchedDet[di] {
			m.spawn(d, frameTime)
		}
	}

	// Drop Stale tracks. Identities retire with them and are never
	// reassigned: nextID only ever increases.
	active := make([]*Track, 0, len(m.tracks))
	for id, t := range m.tracks {
		if t.State == StateStale {
			if wasConfirmed(t) {
				m.transitions = append(m.transitions, Transition{Kind: TransitionLost, Track: t.clone()})
			}
			m.retired++
			delete(m.tracks, id)
			continue
		}
		active = append(active, t.clone())
	}
	return active
}

// filterConfident drops detections under the confidence floor.
func (m *Manager) filterConfident(detections []Detection) []Detection {
	if m.cfg.MinConfidence <= 0 {
		return detections
	}
	kept := detections[:0:0]
	for _, d := range detections {
		if d.Confidence >= m.cfg.MinConfidence {
			kept = append(kept, d)
		}
	}
	return kept
}

// observe folds a matched detection into a track: position, velocity,
// counters, and promotion.
func (m *Manager) observe(t *Track, d Detection, frameTime time.Time) {
	prevCenter := t.BBox.Center()
	prevSeen := t.LastSeen

	t.BBox = d.BBox
	t.Confidence = d.Confidence
	t.Hits++
	t.Age = 0
	t.LastSeen = frameTime
	t.Observations++

	// Velocity from real elapsed time, exponentially smoothed. A track
	// with a single prior point starts from zero velocity rather than an
	// undefined one, so the first sample is the raw displacement rate.
	if dt := frameTime.Sub(prevSeen).Seconds(); dt > 0 {
		raw := d.BBox.Center().Sub(prevCenter)
		alpha := m.cfg.VelocitySmoothing
		t.Velocity.X = alpha*(raw.X/dt) + (1-alpha)*t.Velocity.X
		t.Velocity.Y = alpha*(raw.Y/dt) + (1-alpha)*t.Velocity.Y
	}

	t.History = append(t.History, HistoryPoint{Pos: d.BBox.Center(), Time: frameTime})
	if len(t.History) > m.cfg.MaxHistory {
		t.History = t.History[len(t.History)-m.cfg.MaxHistory:]
	}

	speed := t.Speed()
	n := float64(t.Observations)
	t.AvgSpeedPx = ((n-1)*t.AvgSpeedPx + speed) / n
	if speed > t.PeakSpeedPx {
		t.PeakSpeedPx = speed
	}
	t.speedHistory = append(t.speedHistory, speed)
	if len(t.speedHistory) > m.cfg.MaxSpeedHistory {
		t.speedHistory = t.speedHistory[1:]
	}

	if t.State == StateTentative && t.Hits >= m.cfg.MinHits {
		t.State = StateConfirmed
		t.confirmedOnce = true
		m.confirmed++
		m.transitions = append(m.transitions, Transition{Kind: TransitionConfirmed, Track: t.clone()})
	}
}

// spawn creates a Tentative track from an unmatched detection.
func (m *Manager) spawn(d Detection, frameTime time.Time) {
	id := m.nextID
	m.nextID++
	if _, exists := m.tracks[id]; exists {
		// Identity reuse is a defect; drop the spawn rather than corrupt
		// the active set.
		monitoring.Logf("track: duplicate identity %d, dropping new track", id)
		return
	}
	m.tracks[id] = &Track{
		ID:           id,
		Class:        d.Class,
		BBox:         d.BBox,
		Confidence:   d.Confidence,
		State:        StateTentative,
		Hits:         1,
		FirstSeen:    frameTime,
		LastSeen:     frameTime,
		Observations: 1,
		History:      []HistoryPoint{{Pos: d.BBox.Center(), Time: frameTime}},
		speedHistory: make([]float64, 0, m.cfg.MaxSpeedHistory),
	}
	m.created++
}

// wasConfirmed reports whether a track reached Confirmed at any point.
// Hits resets on every miss, so the sticky marker is the only signal.
func wasConfirmed(t *Track) bool {
	return t.confirmedOnce
}

// TakeTransitions returns the lifecycle transitions recorded since the
// previous call and clears the buffer. The pipeline drains this once per
// cycle to publish bus events.
func (m *Manager) TakeTransitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.transitions
	m.transitions = nil
	return out
}

// ConfirmedTracks returns copies of all Confirmed tracks.
func (m *Manager) ConfirmedTracks() []*Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Track, 0, len(m.tracks))
	for _, t := range m.tracks {
		if t.State == StateConfirmed {
			out = append(out, t.clone())
		}
	}
	return out
}

// ActiveTracks returns copies of all non-Stale tracks.
func (m *Manager) ActiveTracks() []*Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Track, 0, len(m.tracks))
	for _, t := range m.tracks {
		out = append(out, t.clone())
	}
	return out
}

// Counts returns total, tentative, and confirmed track counts.
func (m *Manager) Counts() (total, tentative, confirmed int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tracks {
		total++
		switch t.State {
		case StateTentative:
			tentative++
		case StateConfirmed:
			confirmed++
		}
	}
	return
}

// Stats returns lifetime created/confirmed/retired counters.
func (m *Manager) Stats() (created, confirmed, retired int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.created, m.confirmed, m.retired
}
