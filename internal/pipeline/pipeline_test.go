package pipeline

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/banshee-data/platewatch/internal/events"
	"github.com/banshee-data/platewatch/internal/geom"
	"github.com/banshee-data/platewatch/internal/governor"
	"github.com/banshee-data/platewatch/internal/plates"
	"github.com/banshee-data/platewatch/internal/priority"
	"github.com/banshee-data/platewatch/internal/ptz"
	"github.com/banshee-data/platewatch/internal/timeutil"
	"github.com/banshee-data/platewatch/internal/track"
)

var testFrame = geom.FrameGeometry{Width: 1920, Height: 1080}

// harness wires a pipeline against in-memory fakes.
type harness struct {
	pipe  *Pipeline
	sim   *ptz.SimClient
	bus   *events.MemoryPublisher
	clock *timeutil.MockClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	sim := ptz.NewSimClient()
	bus := events.NewMemoryPublisher()

	gov := governor.New(governor.Config{
		Frame:               testFrame,
		DeadZonePx:          30,
		PanGain:             0.001,
		TiltGain:            0.001,
		MaxStep:             0.5,
		ZoomStep:            0.1,
		TargetPlateHeightPx: 40,
		ZoomInRatio:         1.2,
		ZoomOutRatio:        0.8,
		MinMoveInterval:     0, // Rate limiting is exercised in the governor tests
		GracePeriod:         time.Second,
		ReturnTimeout:       2 * time.Second,
		IdleTimeout:         3 * time.Second,
		SweepDwell:          2 * time.Second,
		FaultCooldown:       5 * time.Second,
		HomePreset:          "home",
		SweepPresets:        []string{"p1", "p2"},
	}, clock)

	pipe, err := New(Options{
		CameraID: "cam-1",
		Frame:    testFrame,
		Source:   &sliceSource{},
		Tracks: track.NewManager(track.Config{
			MinHits:           2,
			MaxAge:            2,
			MinConfidence:     0.3,
			IOUThreshold:      0.3,
			CentroidGatePx:    200,
			VelocitySmoothing: 1.0,
			MaxHistory:        30,
			MaxSpeedHistory:   50,
		}),
		Scorer: priority.NewScorer(priority.Config{
			Weights:         priority.Weights{Center: 0.4, Size: 0.3, Approach: 0.2, Novelty: 0.1},
			SwitchMargin:    0.15,
			SizeRefFraction: 0.1,
			ApproachRefPx:   200,
		}),
		Governor: gov,
		Adapter:  ptz.NewAdapter(sim, ptz.DefaultLimits()),
		Proposer: plates.NewProposer(plates.Config{MinPlateHeightPx: 20, StabilityFrames: 2}),
		Bus:      bus,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return &harness{pipe: pipe, sim: sim, bus: bus, clock: clock}
}

// cycle advances the clock to the frame time and runs one cycle.
func (h *harness) cycle(dets []track.Detection) Snapshot {
	h.clock.Advance(100 * time.Millisecond)
	return h.pipe.RunCycle(context.Background(), Frame{Detections: dets, Time: h.clock.Now()})
}

func det(x, y, w, hh float64) track.Detection {
	return track.Detection{
		BBox:       geom.BBox{X: x, Y: y, W: w, H: hh},
		Class:      track.ClassCar,
		Confidence: 0.9,
	}
}

// Scenario: one vehicle crossing left to right. The track confirms, the
// governor starts tracking, pans after it, and zooms in while the plate
// is under the target height.
func TestCycle_VehicleCrossingConfirmsAndPans(t *testing.T) {
	h := newHarness(t)

	var snap Snapshot
	for i := 0; i < 8; i++ {
		// 240x160 box moving right 60px per frame, vertically centered.
		snap = h.cycle([]track.Detection{det(200+float64(i)*60, 460, 240, 160)})
	}

	if snap.ConfirmedTracks != 1 || !snap.HasTarget {
		t.Fatalf("expected one confirmed tracked target, got %+v", snap)
	}
	if snap.State != governor.StateTracking {
		t.Fatalf("expected tracking state, got %s", snap.State)
	}

	var sawPanLeft, sawZoomIn bool
	for _, call := range h.sim.Calls() {
		if call.Kind == ptz.IntentMove && call.Pan < 0 {
			sawPanLeft = true
		}
		if call.Zoom > 0 {
			sawZoomIn = true
		}
	}
	// The vehicle spends these frames left of frame center, so the
	// camera pans negative (toward it); its 24px plate estimate is
	// under the 40px target, so zoom only ever increases.
	if !sawPanLeft {
		t.Error("expected pans toward the vehicle")
	}
	if !sawZoomIn {
		t.Error("expected zoom-in while plate is under target height")
	}

	// Lifecycle and target events reached the bus.
	if evts := h.bus.Events(events.TopicTracks); len(evts) == 0 ||
		evts[0].Type != events.TypeTrackConfirmed {
		t.Errorf("expected confirmation on tracks topic, got %+v", evts)
	}
	if evts := h.bus.Events(events.TopicTargets); len(evts) == 0 ||
		evts[0].Type != events.TypeTargetSelected {
		t.Errorf("expected selection on targets topic, got %+v", evts)
	}
}

// Scenario: detections stop. Tracking degrades through Returning and
// Idle into Sweeping, recalling home and patrol presets on the way.
func TestCycle_LossWalksThroughPatrolStates(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 3; i++ {
		h.cycle([]track.Detection{det(900, 460, 240, 160)})
	}
	if got := h.pipe.Snapshot().State; got != governor.StateTracking {
		t.Fatalf("setup: expected tracking, got %s", got)
	}

	deadline := h.clock.Now().Add(10 * time.Second)
	var states []governor.State
	last := governor.StateTracking
	for h.clock.Now().Before(deadline) {
		snap := h.cycle(nil)
		if snap.State != last {
			states = append(states, snap.State)
			last = snap.State
		}
	}

	want := []governor.State{governor.StateReturning, governor.StateIdle, governor.StateSweeping}
	if len(states) != len(want) {
		t.Fatalf("state walk %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state walk %v, want %v", states, want)
		}
	}
	if h.sim.Preset() == "" {
		t.Error("expected preset recalls during return/sweep")
	}

	// The bus saw each motion state change.
	evts := h.bus.Events(events.TopicPTZStatus)
	if len(evts) != 4 { // tracking, returning, idle, sweeping
		t.Errorf("expected 4 status events, got %d", len(evts))
	}
}

// Scenario: a stable, large-enough plate triggers exactly one ANPR
// capture request, and the track's novelty drops afterwards.
func TestCycle_CaptureRequestIssuedOnce(t *testing.T) {
	h := newHarness(t)

	// 240x160 vehicle: estimated plate 24px, above the 20px floor.
	for i := 0; i < 6; i++ {
		h.cycle([]track.Detection{det(840, 460, 240, 160)})
	}

	evts := h.bus.Events(events.TopicANPRRequests)
	if len(evts) != 1 {
		t.Fatalf("expected exactly one capture request, got %d", len(evts))
	}
	if evts[0].Capture == nil || evts[0].Capture.PlateHeightPx != 24 {
		t.Errorf("capture payload: %+v", evts[0].Capture)
	}
}

// Scenario: the device answers with transient faults; the pipeline
// reports degraded and stops emitting until the cooldown passes.
func TestCycle_TransientFaultCooldown(t *testing.T) {
	h := newHarness(t)
	h.sim.FailNext(
		ptz.Transient("RelativeMove", io.ErrUnexpectedEOF),
	)

	for i := 0; i < 3; i++ {
		h.cycle([]track.Detection{det(400, 460, 240, 160)})
	}
	if !h.pipe.Snapshot().Degraded {
		t.Fatal("expected degraded snapshot after transient fault")
	}
	suppressed := len(h.sim.Calls())

	// Cooldown window: no further device calls despite live targets.
	h.cycle([]track.Detection{det(460, 460, 240, 160)})
	if got := len(h.sim.Calls()); got != suppressed {
		t.Fatalf("device called during cooldown: %d -> %d", suppressed, got)
	}

	// After the cooldown, motion resumes and degraded clears.
	h.clock.Advance(5 * time.Second)
	h.cycle([]track.Detection{det(520, 460, 240, 160)})
	if got := len(h.sim.Calls()); got == suppressed {
		t.Error("expected motion to resume after cooldown")
	}
	if h.pipe.Snapshot().Degraded {
		t.Error("successful apply should clear degraded")
	}
}

// Lost tracks are announced and their identities never return.
func TestCycle_LossPublishesAndRetires(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 3; i++ {
		h.cycle([]track.Detection{det(900, 460, 240, 160)})
	}
	firstID := h.pipe.Snapshot().TargetTrackID

	for i := 0; i < 4; i++ {
		h.cycle(nil)
	}

	var sawLost bool
	for _, evt := range h.bus.Events(events.TopicTracks) {
		if evt.Type == events.TypeTrackLost && evt.TrackID == firstID {
			sawLost = true
		}
	}
	if !sawLost {
		t.Error("expected track_lost event for the departed target")
	}

	// A new vehicle gets a new identity.
	snap := h.cycle([]track.Detection{det(900, 460, 240, 160)})
	snap = h.cycle([]track.Detection{det(900, 460, 240, 160)})
	if snap.TargetTrackID == firstID {
		t.Errorf("identity %d reused for a new vehicle", firstID)
	}
}

// sliceSource feeds a fixed frame list, then io.EOF.
type sliceSource struct {
	frames []Frame
}

func (s *sliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if len(s.frames) == 0 {
		return Frame{}, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func TestRun_DrainsSourceThenStops(t *testing.T) {
	h := newHarness(t)
	base := h.clock.Now()
	src := &sliceSource{frames: []Frame{
		{Detections: []track.Detection{det(900, 460, 240, 160)}, Time: base.Add(100 * time.Millisecond)},
		{Detections: []track.Detection{det(920, 460, 240, 160)}, Time: base.Add(200 * time.Millisecond)},
	}}
	h.pipe.opts.Source = src

	if err := h.pipe.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := h.pipe.Snapshot().Cycles; got != 2 {
		t.Errorf("expected 2 cycles, got %d", got)
	}
}

func TestRun_HonorsCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.pipe.Run(ctx); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
