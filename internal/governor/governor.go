// Package governor decides when and how the camera moves. It holds a
// four-state machine (Idle, Sweeping, Tracking, Returning) and turns
// target offsets into rate-limited motion intents, with a dead zone
// against jitter and a cooldown against flaky devices.
package governor

import (
	"time"

	"github.com/banshee-data/platewatch/internal/geom"
	"github.com/banshee-data/platewatch/internal/monitoring"
	"github.com/banshee-data/platewatch/internal/ptz"
	"github.com/banshee-data/platewatch/internal/timeutil"
)

// State is the governor's motion state.
type State string

const (
	StateIdle      State = "idle"      // No target, camera parked
	StateSweeping  State = "sweeping"  // Stepping through patrol presets
	StateTracking  State = "tracking"  // Following a selected target
	StateReturning State = "returning" // Heading back to the home preset
)

// Config tunes the governor. All durations run on the injected clock.
type Config struct {
	Frame geom.FrameGeometry

	// Tracking behavior.
	DeadZonePx          float64 // Offsets under this radius emit nothing
	PanGain             float64 // Normalized pan per pixel of offset
	TiltGain            float64 // Normalized tilt per pixel of offset
	MaxStep             float64 // Per-intent pan/tilt magnitude cap
	ZoomStep            float64 // Zoom delta per adjustment
	TargetPlateHeightPx float64 // Plate height the zoom loop aims for
	ZoomInRatio         float64 // Zoom in when target/actual exceeds this
	ZoomOutRatio        float64 // Zoom out when target/actual is under this

	// Timing.
	MinMoveInterval time.Duration // Rate limit between emitted intents
	GracePeriod     time.Duration // Target absence tolerated while Tracking
	ReturnTimeout   time.Duration // Max time spent Returning
	IdleTimeout     time.Duration // Idle duration before a sweep starts
	SweepDwell      time.Duration // Time parked on each sweep preset
	FaultCooldown   time.Duration // Emission pause after a transient fault

	// Presets.
	HomePreset   string
	SweepPresets []string
}

// Target is the track the camera should follow this cycle, reduced to
// what motion control needs.
type Target struct {
	TrackID       int64
	BBox          geom.BBox
	PlateHeightPx float64 // Estimated plate height; 0 disables zoom
}

// Governor is single-goroutine state: the per-camera pipeline calls
// Step and ReportResult serially, so no lock is needed.
type Governor struct {
	cfg   Config
	clock timeutil.Clock

	state        State
	stateEntered time.Time
	lastSeen     time.Time // Last cycle a target existed while Tracking

	pending    *ptz.Intent // Coalesced intent, latest truth wins
	lastEmit   time.Time
	hasEmitted bool

	cooldownUntil time.Time
	degraded      bool
	disabled      bool // Permanent fault: motion off, tracking continues

	sweepIdx   int
	lastPreset time.Time
}

// New creates a governor starting in Idle.
func New(cfg Config, clock timeutil.Clock) *Governor {
	g := &Governor{cfg: cfg, clock: clock, state: StateIdle}
	g.stateEntered = clock.Now()
	return g
}

// State returns the current motion state.
func (g *Governor) State() State { return g.state }

// Degraded reports whether the device recently answered with a
// transient fault.
func (g *Governor) Degraded() bool { return g.degraded }

// Disabled reports whether a permanent device fault turned motion off.
func (g *Governor) Disabled() bool { return g.disabled }

// Step runs one control cycle against the current target (nil when the
// prioritizer selected nothing) and returns at most one intent to apply.
// Intents inside the rate-limit window are coalesced, not queued: the
// newest offset replaces the pending one so the camera always moves
// toward current truth.
func (g *Governor) Step(target *Target) (ptz.Intent, bool) {
	now := g.clock.Now()

	if target != nil {
		if g.state != StateTracking {
			g.transition(StateTracking, now)
		}
		g.lastSeen = now
		g.aim(*target)
	} else {
		g.stepNoTarget(now)
	}

	return g.emit(now)
}

// stepNoTarget advances the patrol side of the state machine.
func (g *Governor) stepNoTarget(now time.Time) {
	switch g.state {
	case StateTracking:
		// Tolerate missed frames for the grace period before giving up.
		if now.Sub(g.lastSeen) >= g.cfg.GracePeriod {
			g.transition(StateReturning, now)
			g.pending = &ptz.Intent{Kind: ptz.IntentPreset, Preset: g.cfg.HomePreset}
		} else {
			g.pending = nil
		}
	case StateReturning:
		if now.Sub(g.stateEntered) >= g.cfg.ReturnTimeout {
			g.transition(StateIdle, now)
		}
	case StateIdle:
		if g.cfg.IdleTimeout > 0 && len(g.cfg.SweepPresets) > 0 &&
			now.Sub(g.stateEntered) >= g.cfg.IdleTimeout {
			g.transition(StateSweeping, now)
			g.sweepIdx = 0
			g.queueSweepPreset(now)
		}
	case StateSweeping:
		if now.Sub(g.lastPreset) >= g.cfg.SweepDwell {
			g.queueSweepPreset(now)
		}
	}
}

func (g *Governor) queueSweepPreset(now time.Time) {
	g.pending = &ptz.Intent{Kind: ptz.IntentPreset, Preset: g.cfg.SweepPresets[g.sweepIdx]}
	g.sweepIdx = (g.sweepIdx + 1) % len(g.cfg.SweepPresets)
	g.lastPreset = now
}

// aim computes the tracking intent for the target, or clears the
// pending one when the target sits inside the dead zone.
func (g *Governor) aim(target Target) {
	offset := target.BBox.Center().Sub(g.cfg.Frame.Center())
	zoom := g.zoomDelta(target.PlateHeightPx)

	if offset.Norm() <= g.cfg.DeadZonePx {
		if zoom == 0 {
			// Inside the dead zone with the right framing: the stale
			// pending offset, if any, no longer reflects truth.
			g.pending = nil
			return
		}
		g.pending = &ptz.Intent{Kind: ptz.IntentMove, Zoom: zoom}
		return
	}

	g.pending = &ptz.Intent{
		Kind: ptz.IntentMove,
		Pan:  clampAbs(offset.X*g.cfg.PanGain, g.cfg.MaxStep),
		Tilt: clampAbs(offset.Y*g.cfg.TiltGain, g.cfg.MaxStep),
		Zoom: zoom,
	}
}

// zoomDelta compares the estimated plate height against the configured
// target height. Under-sized plates zoom in, over-sized zoom out, and
// the band between the two ratios holds still.
func (g *Governor) zoomDelta(plateHeightPx float64) float64 {
	if plateHeightPx <= 0 || g.cfg.TargetPlateHeightPx <= 0 {
		return 0
	}
	ratio := g.cfg.TargetPlateHeightPx / plateHeightPx
	switch {
	case ratio > g.cfg.ZoomInRatio:
		return g.cfg.ZoomStep
	case ratio < g.cfg.ZoomOutRatio:
		return -g.cfg.ZoomStep
	default:
		return 0
	}
}

// emit releases the pending intent when allowed: motion must be
// enabled, the fault cooldown elapsed, and the rate-limit window clear.
func (g *Governor) emit(now time.Time) (ptz.Intent, bool) {
	if g.pending == nil || g.disabled {
		return ptz.Intent{}, false
	}
	if now.Before(g.cooldownUntil) {
		return ptz.Intent{}, false
	}
	if g.hasEmitted && now.Sub(g.lastEmit) < g.cfg.MinMoveInterval {
		return ptz.Intent{}, false
	}
	intent := *g.pending
	g.pending = nil
	g.lastEmit = now
	g.hasEmitted = true
	return intent, true
}

// ReportResult feeds back the adapter's verdict on the last applied
// intent. A transient fault marks the camera degraded and opens a
// cooldown window; a permanent fault disables motion entirely. Nil
// clears the degraded flag.
func (g *Governor) ReportResult(err error) {
	switch {
	case err == nil:
		g.degraded = false
	case ptz.IsPermanent(err):
		if !g.disabled {
			monitoring.Logf("governor: permanent device fault, motion disabled: %v", err)
		}
		g.disabled = true
	case ptz.IsTransient(err):
		g.degraded = true
		g.cooldownUntil = g.clock.Now().Add(g.cfg.FaultCooldown)
		monitoring.Logf("governor: transient device fault, cooling down %s: %v",
			g.cfg.FaultCooldown, err)
	default:
		// Unclassified errors get the cautious treatment.
		g.degraded = true
		g.cooldownUntil = g.clock.Now().Add(g.cfg.FaultCooldown)
	}
}

func (g *Governor) transition(next State, now time.Time) {
	monitoring.Logf("governor: %s -> %s", g.state, next)
	g.state = next
	g.stateEntered = now
}

func clampAbs(v, max float64) float64 {
	if max <= 0 {
		return v
	}
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}
