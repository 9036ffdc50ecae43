package track

import (
	"testing"
	"time"

	"github.com/banshee-data/platewatch/internal/geom"
)

func testConfig() Config {
	return Config{
		MinHits:           3,
		MaxAge:            5,
		MinConfidence:     0.3,
		IOUThreshold:      0.3,
		CentroidGatePx:    120,
		VelocitySmoothing: 0.5,
		MaxHistory:        30,
		MaxSpeedHistory:   50,
	}
}

func det(x, y, w, h float64) Detection {
	return Detection{
		BBox:       geom.BBox{X: x, Y: y, W: w, H: h},
		Class:      ClassCar,
		Confidence: 0.9,
	}
}

func TestManager_ConfirmationAfterMinHits(t *testing.T) {
	m := NewManager(testConfig())
	ts := time.Unix(1000, 0)

	// First two matched cycles: still tentative.
	for i := 0; i < 2; i++ {
		tracks := m.Update([]Detection{det(100, 100, 50, 40)}, ts)
		if len(tracks) != 1 {
			t.Fatalf("cycle %d: expected 1 track, got %d", i, len(tracks))
		}
		if tracks[0].State != StateTentative {
			t.Errorf("cycle %d: expected tentative, got %s", i, tracks[0].State)
		}
		ts = ts.Add(100 * time.Millisecond)
	}

	// Third matched cycle crosses MinHits.
	tracks := m.Update([]Detection{det(100, 100, 50, 40)}, ts)
	if tracks[0].State != StateConfirmed {
		t.Errorf("expected confirmed after 3 hits, got %s", tracks[0].State)
	}

	transitions := m.TakeTransitions()
	if len(transitions) != 1 || transitions[0].Kind != TransitionConfirmed {
		t.Errorf("expected one confirmation transition, got %+v", transitions)
	}
}

func TestManager_StaleExpiryAndLostTransition(t *testing.T) {
	cfg := testConfig()
	cfg.MinHits = 1
	cfg.MaxAge = 2
	m := NewManager(cfg)
	ts := time.Unix(1000, 0)

	tracks := m.Update([]Detection{det(100, 100, 50, 40)}, ts)
	if tracks[0].State != StateConfirmed {
		t.Fatalf("expected immediate confirmation with MinHits=1, got %s", tracks[0].State)
	}
	m.TakeTransitions()

	// Miss for MaxAge cycles: the track survives but ages.
	for i := 0; i < cfg.MaxAge; i++ {
		ts = ts.Add(100 * time.Millisecond)
		tracks = m.Update(nil, ts)
		if len(tracks) != 1 {
			t.Fatalf("miss %d: expected track to survive, got %d tracks", i+1, len(tracks))
		}
	}

	// One more miss exceeds MaxAge and the track is dropped.
	ts = ts.Add(100 * time.Millisecond)
	tracks = m.Update(nil, ts)
	if len(tracks) != 0 {
		t.Fatalf("expected track dropped after %d misses, got %d", cfg.MaxAge+1, len(tracks))
	}

	transitions := m.TakeTransitions()
	if len(transitions) != 1 || transitions[0].Kind != TransitionLost {
		t.Fatalf("expected one lost transition, got %+v", transitions)
	}
	if transitions[0].Track.State != StateStale {
		t.Errorf("lost snapshot should be stale, got %s", transitions[0].Track.State)
	}
}

func TestManager_TentativeLossIsSilent(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAge = 1
	m := NewManager(cfg)
	ts := time.Unix(1000, 0)

	m.Update([]Detection{det(100, 100, 50, 40)}, ts)
	m.Update(nil, ts.Add(100*time.Millisecond))
	m.Update(nil, ts.Add(200*time.Millisecond))

	// The track never confirmed, so dropping it announces nothing.
	if transitions := m.TakeTransitions(); len(transitions) != 0 {
		t.Errorf("expected no transitions for a tentative loss, got %+v", transitions)
	}
}

func TestManager_IdentityNeverReused(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAge = 0
	m := NewManager(cfg)
	ts := time.Unix(1000, 0)

	seen := make(map[int64]bool)
	for i := 0; i < 5; i++ {
		tracks := m.Update([]Detection{det(100, 100, 50, 40)}, ts)
		if len(tracks) != 1 {
			t.Fatalf("cycle %d: expected 1 track, got %d", i, len(tracks))
		}
		id := tracks[0].ID
		if seen[id] {
			t.Fatalf("identity %d reused", id)
		}
		seen[id] = true

		// Kill the track so the next detection spawns fresh.
		ts = ts.Add(100 * time.Millisecond)
		m.Update(nil, ts)
		ts = ts.Add(100 * time.Millisecond)
	}
}

func TestManager_VelocityFromFrameTime(t *testing.T) {
	cfg := testConfig()
	cfg.VelocitySmoothing = 1.0 // No smoothing: velocity is the raw rate
	m := NewManager(cfg)
	ts := time.Unix(1000, 0)

	tracks := m.Update([]Detection{det(100, 100, 50, 40)}, ts)
	if v := tracks[0].Velocity; v.X != 0 || v.Y != 0 {
		t.Errorf("single-point track should have zero velocity, got %+v", v)
	}

	// Move 20px right over 200ms: 100 px/s.
	tracks = m.Update([]Detection{det(120, 100, 50, 40)}, ts.Add(200*time.Millisecond))
	if v := tracks[0].Velocity; v.X < 99 || v.X > 101 {
		t.Errorf("expected ~100 px/s in X, got %+v", v)
	}
}

func TestManager_TimestampClamping(t *testing.T) {
	m := NewManager(testConfig())
	ts := time.Unix(1000, 0)

	m.Update([]Detection{det(100, 100, 50, 40)}, ts)

	// A frame stamped before the previous one is clamped; velocity must
	// not blow up or go negative-dt.
	tracks := m.Update([]Detection{det(120, 100, 50, 40)}, ts.Add(-1*time.Second))
	if len(tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(tracks))
	}
	if v := tracks[0].Velocity; v.X != 0 || v.Y != 0 {
		t.Errorf("clamped frame should contribute no velocity, got %+v", v)
	}
}

func TestManager_ConfidenceFloor(t *testing.T) {
	m := NewManager(testConfig())
	ts := time.Unix(1000, 0)

	low := det(100, 100, 50, 40)
	low.Confidence = 0.1
	tracks := m.Update([]Detection{low}, ts)
	if len(tracks) != 0 {
		t.Errorf("low-confidence detection should be ignored, got %d tracks", len(tracks))
	}
}

func TestManager_ClassGating(t *testing.T) {
	cfg := testConfig()
	cfg.MinHits = 1
	m := NewManager(cfg)
	ts := time.Unix(1000, 0)

	m.Update([]Detection{det(100, 100, 50, 40)}, ts)

	// A bus at the same spot must not steal the car's identity.
	bus := det(100, 100, 50, 40)
	bus.Class = ClassBus
	tracks := m.Update([]Detection{bus}, ts.Add(100*time.Millisecond))
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks (class mismatch spawns new), got %d", len(tracks))
	}

	// Unknown at the same spot DOES match the existing car.
	unknown := det(100, 100, 50, 40)
	unknown.Class = ClassUnknown
	before, _, _ := m.Counts()
	m.Update([]Detection{unknown}, ts.Add(200*time.Millisecond))
	after, _, _ := m.Counts()
	if after > before {
		t.Errorf("unknown-class detection should match, not spawn: %d -> %d tracks", before, after)
	}
}

func TestManager_HistoryBounded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHistory = 5
	m := NewManager(cfg)
	ts := time.Unix(1000, 0)

	var tracks []*Track
	for i := 0; i < 20; i++ {
		tracks = m.Update([]Detection{det(100+float64(i), 100, 50, 40)}, ts)
		ts = ts.Add(100 * time.Millisecond)
	}
	if got := len(tracks[0].History); got != 5 {
		t.Errorf("expected history capped at 5, got %d", got)
	}
	// Oldest evicted: the first remaining point is from cycle 15.
	if x := tracks[0].History[0].Pos.X; x != 115+25 {
		t.Errorf("expected oldest history center x=140, got %v", x)
	}
}

func TestManager_SnapshotsAreCopies(t *testing.T) {
	cfg := testConfig()
	cfg.MinHits = 1
	m := NewManager(cfg)
	ts := time.Unix(1000, 0)

	tracks := m.Update([]Detection{det(100, 100, 50, 40)}, ts)
	snapshot := tracks[0]
	snapshot.BBox.X = -999
	snapshot.History[0].Pos.X = -999

	fresh := m.ActiveTracks()
	if fresh[0].BBox.X == -999 || fresh[0].History[0].Pos.X == -999 {
		t.Error("mutating a returned track leaked into manager state")
	}
}

func TestManager_SpeedAggregates(t *testing.T) {
	cfg := testConfig()
	cfg.VelocitySmoothing = 1.0
	m := NewManager(cfg)
	ts := time.Unix(1000, 0)

	// Constant 100 px/s for several cycles.
	for i := 0; i < 10; i++ {
		m.Update([]Detection{det(100+float64(i*10), 100, 50, 40)}, ts)
		ts = ts.Add(100 * time.Millisecond)
	}
	tracks := m.ActiveTracks()
	tr := tracks[0]
	if tr.PeakSpeedPx < 99 || tr.PeakSpeedPx > 101 {
		t.Errorf("expected peak ~100 px/s, got %v", tr.PeakSpeedPx)
	}
	// First observation contributes zero speed, so the average sits below
	// the steady-state speed.
	if tr.AvgSpeedPx <= 0 || tr.AvgSpeedPx > 100 {
		t.Errorf("expected average in (0, 100], got %v", tr.AvgSpeedPx)
	}
	if p50 := tr.SpeedPercentile(0.5); p50 < 99 || p50 > 101 {
		t.Errorf("expected p50 ~100 px/s, got %v", p50)
	}
}
