package track

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/platewatch/internal/geom"
)

// Class is the vehicle classification reported by the detector.
type Class string

const (
	ClassCar        Class = "car"
	ClassTruck      Class = "truck"
	ClassBus        Class = "bus"
	ClassMotorcycle Class = "motorcycle"
	ClassUnknown    Class = "unknown"
)

// Compatible reports whether two classes may belong to the same physical
// object. Unknown is compatible with everything: detectors flap between
// "unknown" and a concrete label on distant vehicles, and a class flip
// must not fracture an otherwise solid track.
func (c Class) Compatible(other Class) bool {
	if c == ClassUnknown || other == ClassUnknown {
		return true
	}
	return c == other
}

// State represents the lifecycle state of a track.
type State string

const (
	StateTentative State = "tentative" // Seen, not yet confirmed
	StateConfirmed State = "confirmed" // Matched min-hits times, trusted
	StateStale     State = "stale"     // Aged out, removed at cycle end
)

// Detection is one observation from the detector: a bounding box with a
// class label and confidence, stamped with the frame time. Detections are
// ephemeral; the manager consumes them once per cycle.
type Detection struct {
	BBox       geom.BBox `json:"bbox"`
	Class      Class     `json:"class"`
	Confidence float64   `json:"confidence"`
	Time       time.Time `json:"time"`
}

// HistoryPoint is a single point in a track's position trail.
type HistoryPoint struct {
	Pos  geom.Point `json:"pos"`
	Time time.Time  `json:"time"`
}

// Track is a persistent identity for one physical vehicle across frames.
// Tracks are owned exclusively by the Manager; Update hands out copies.
type Track struct {
	ID         int64     `json:"id"`
	Class      Class     `json:"class"`
	BBox       geom.BBox `json:"bbox"`
	Confidence float64   `json:"confidence"`
	State      State     `json:"state"`

	// Lifecycle counters
	Hits int `json:"hits"` // Consecutive matched cycles
	Age  int `json:"age"`  // Cycles since last matched detection

	// Velocity in pixels/second, exponentially smoothed. Zero until the
	// track has at least two history points.
	Velocity geom.Point `json:"velocity"`

	// Bounded position trail, oldest evicted first.
	History []HistoryPoint `json:"history"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// Aggregates over the track's lifetime.
	Observations int     `json:"observations"`
	AvgSpeedPx   float64 `json:"avg_speed_px"`
	PeakSpeedPx  float64 `json:"peak_speed_px"`

	speedHistory []float64

	// Set when the track first reaches Confirmed; survives demotion to
	// Stale so loss events only fire for tracks that were ever trusted.
	confirmedOnce bool
}

// Speed returns the current speed magnitude in pixels/second.
func (t *Track) Speed() float64 {
	return t.Velocity.Norm()
}

// SpeedPercentile returns the p-th percentile (p in [0,1]) of the track's
// recent speed samples, or 0 when no samples exist. Sorting happens on a
// copy so the bounded history order is preserved.
func (t *Track) SpeedPercentile(p float64) float64 {
	if len(t.speedHistory) == 0 {
		return 0
	}
	samples := make([]float64, len(t.speedHistory))
	copy(samples, t.speedHistory)
	sortFloats(samples)
	return stat.Quantile(p, stat.Empirical, samples, nil)
}

// clone returns a copy of the track safe for callers to keep: slices are
// deep-copied so later manager updates never show through.
func (t *Track) clone() *Track {
	copied := *t
	if len(t.History) > 0 {
		copied.History = make([]HistoryPoint, len(t.History))
		copy(copied.History, t.History)
	}
	if len(t.speedHistory) > 0 {
		copied.speedHistory = make([]float64, len(t.speedHistory))
		copy(copied.speedHistory, t.speedHistory)
	}
	return &copied
}

func sortFloats(v []float64) {
	// Insertion sort: speed histories are capped at a few dozen samples.
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

// TransitionKind identifies a lifecycle event worth announcing on the bus.
type TransitionKind string

const (
	TransitionConfirmed TransitionKind = "track_confirmed"
	TransitionLost      TransitionKind = "track_lost"
)

// Transition records a lifecycle change that happened during one Update
// cycle, carrying a snapshot of the track at the moment of the change.
type Transition struct {
	Kind  TransitionKind
	Track *Track
}
