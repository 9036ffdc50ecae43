// Package pipeline runs the per-camera control loop: detections in,
// track updates, target selection, motion governance, device commands
// and bus events out. One Pipeline instance owns one camera; a fleet is
// just multiple instances with nothing shared.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/platewatch/internal/events"
	"github.com/banshee-data/platewatch/internal/geom"
	"github.com/banshee-data/platewatch/internal/governor"
	"github.com/banshee-data/platewatch/internal/plates"
	"github.com/banshee-data/platewatch/internal/priority"
	"github.com/banshee-data/platewatch/internal/ptz"
	"github.com/banshee-data/platewatch/internal/storage/sqlite"
	"github.com/banshee-data/platewatch/internal/timeutil"
	"github.com/banshee-data/platewatch/internal/track"
)

// Frame is one cycle's worth of input: the detector's output for a
// single camera frame.
type Frame struct {
	Detections []track.Detection
	Time       time.Time
}

// Source delivers frames in arrival order. Next blocks until a frame is
// available, the source is exhausted (io.EOF), or ctx is done.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// Options holds the pipeline's dependencies. Store is optional; every
// other field is required.
type Options struct {
	CameraID string
	Frame    geom.FrameGeometry
	Source   Source
	Tracks   *track.Manager
	Scorer   *priority.Scorer
	Governor *governor.Governor
	Adapter  *ptz.Adapter
	Proposer *plates.Proposer
	Bus      events.Publisher
	Store    *sqlite.Store
	Clock    timeutil.Clock
}

// Snapshot is the pipeline's externally visible state, refreshed
// atomically at the end of every cycle.
type Snapshot struct {
	CameraID        string         `json:"camera_id"`
	State           governor.State `json:"state"`
	Degraded        bool           `json:"degraded"`
	MotionDisabled  bool           `json:"motion_disabled"`
	ActiveTracks    int            `json:"active_tracks"`
	ConfirmedTracks int            `json:"confirmed_tracks"`
	TargetTrackID   int64          `json:"target_track_id,omitempty"`
	HasTarget       bool           `json:"has_target"`
	Cycles          int64          `json:"cycles"`
	LastFrame       time.Time      `json:"last_frame"`
}

// Pipeline is the per-camera control loop. Run drives it; everything
// else is wired in through Options. Cycle state is mutated only inside
// runCycle, so mid-cycle partial state is never observable.
type Pipeline struct {
	opts Options

	lastTarget int64
	hadTarget  bool
	lastState  governor.State
	cycles     int64

	mu       sync.RWMutex
	snapshot Snapshot
}

// New validates the options and builds a pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.CameraID == "":
		return nil, errors.New("pipeline: camera id required")
	case opts.Frame.Width <= 0 || opts.Frame.Height <= 0:
		return nil, fmt.Errorf("pipeline %s: frame geometry required", opts.CameraID)
	case opts.Source == nil, opts.Tracks == nil, opts.Scorer == nil,
		opts.Governor == nil, opts.Adapter == nil, opts.Proposer == nil,
		opts.Bus == nil, opts.Clock == nil:
		return nil, fmt.Errorf("pipeline %s: missing dependency", opts.CameraID)
	}
	p := &Pipeline{opts: opts, lastState: opts.Governor.State()}
	p.snapshot = Snapshot{CameraID: opts.CameraID, State: p.lastState}
	return p, nil
}

// Run processes frames until the source is exhausted or ctx is
// cancelled. The in-flight cycle always drains: cancellation is only
// checked between cycles.
func (p *Pipeline) Run(ctx context.Context) error {
	diagf("%s: pipeline started", p.opts.CameraID)
	defer diagf("%s: pipeline stopped after %d cycles", p.opts.CameraID, p.cycles)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frame, err := p.opts.Source.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return ctx.Err()
		case err != nil:
			// Detector trouble is a quiet cycle, not a pipeline failure.
			opsf("%s: source error, running empty cycle: %v", p.opts.CameraID, err)
			frame = Frame{Time: p.opts.Clock.Now()}
		}

		p.runCycle(ctx, frame)
	}
}

// RunCycle executes a single cycle synchronously. Exposed for the
// replay tool; the service uses Run.
func (p *Pipeline) RunCycle(ctx context.Context, frame Frame) Snapshot {
	p.runCycle(ctx, frame)
	return p.Snapshot()
}

func (p *Pipeline) runCycle(ctx context.Context, frame Frame) {
	o := p.opts
	p.cycles++

	active := o.Tracks.Update(frame.Detections, frame.Time)
	tracef("%s: cycle %d: %d detections, %d active tracks",
		o.CameraID, p.cycles, len(frame.Detections), len(active))

	p.publishTransitions(ctx, frame.Time)

	targetID, hasTarget := o.Scorer.Select(active, o.Frame)
	p.publishTargetChange(ctx, active, targetID, hasTarget, frame.Time)

	var govTarget *governor.Target
	if hasTarget {
		if t := findTrack(active, targetID); t != nil {
			govTarget = p.proposeCapture(ctx, t, frame.Time)
		}
	}

	intent, emit := o.Governor.Step(govTarget)
	if emit {
		err := o.Adapter.Apply(ctx, intent)
		o.Governor.ReportResult(err)
		if err != nil {
			opsf("%s: device fault applying %s intent: %v", o.CameraID, intent.Kind, err)
		} else {
			tracef("%s: applied %s intent pan=%.3f tilt=%.3f zoom=%.3f preset=%q",
				o.CameraID, intent.Kind, intent.Pan, intent.Tilt, intent.Zoom, intent.Preset)
		}
	}

	if state := o.Governor.State(); state != p.lastState {
		diagf("%s: motion state %s -> %s", o.CameraID, p.lastState, state)
		p.lastState = state
		p.publish(ctx, events.TopicPTZStatus,
			events.NewStatusEvent(o.CameraID, string(state), frame.Time))
	}

	p.updateSnapshot(targetID, hasTarget, frame.Time)
}

// publishTransitions drains lifecycle transitions, announces them, and
// tears down per-track state for lost tracks.
func (p *Pipeline) publishTransitions(ctx context.Context, at time.Time) {
	o := p.opts
	for _, tr := range o.Tracks.TakeTransitions() {
		var typ events.Type
		switch tr.Kind {
		case track.TransitionConfirmed:
			typ = events.TypeTrackConfirmed
			diagf("%s: track %d confirmed (%s)", o.CameraID, tr.Track.ID, tr.Track.Class)
		case track.TransitionLost:
			typ = events.TypeTrackLost
			diagf("%s: track %d lost after %d observations",
				o.CameraID, tr.Track.ID, tr.Track.Observations)
			o.Scorer.Retire(tr.Track.ID)
			o.Proposer.Retire(tr.Track.ID)
			if o.Store != nil {
				if err := o.Store.ArchiveTrack(o.CameraID, tr.Track); err != nil {
					opsf("%s: archive track %d: %v", o.CameraID, tr.Track.ID, err)
				}
			}
		default:
			continue
		}
		p.publish(ctx, events.TopicTracks,
			events.NewTrackEvent(typ, o.CameraID, tr.Track, at))
	}
}

// publishTargetChange announces target selection and clearance edges.
func (p *Pipeline) publishTargetChange(ctx context.Context, active []*track.Track, targetID int64, hasTarget bool, at time.Time) {
	o := p.opts
	switch {
	case hasTarget && (!p.hadTarget || targetID != p.lastTarget):
		if t := findTrack(active, targetID); t != nil {
			diagf("%s: target -> track %d", o.CameraID, targetID)
			p.publish(ctx, events.TopicTargets,
				events.NewTrackEvent(events.TypeTargetSelected, o.CameraID, t, at))
		}
	case !hasTarget && p.hadTarget:
		diagf("%s: target cleared", o.CameraID)
		p.publish(ctx, events.TopicTargets, events.NewTargetClearedEvent(o.CameraID, at))
	}
	p.lastTarget, p.hadTarget = targetID, hasTarget
}

// proposeCapture runs the plate proposer for the target and issues an
// ANPR capture request the first cycle the plate is ready. It returns
// the governor's view of the target.
func (p *Pipeline) proposeCapture(ctx context.Context, t *track.Track, at time.Time) *governor.Target {
	o := p.opts
	region, ready := o.Proposer.Observe(t)
	if ready && !o.Scorer.Captured(t.ID) {
		evt := events.NewCaptureRequestEvent(o.CameraID, t, region, at)
		diagf("%s: capture request %s for track %d (plate %.0fpx)",
			o.CameraID, evt.Capture.RequestID, t.ID, region.H)
		p.publish(ctx, events.TopicANPRRequests, evt)
		if o.Store != nil {
			if err := o.Store.ArchiveCapture(o.CameraID, evt); err != nil {
				opsf("%s: archive capture: %v", o.CameraID, err)
			}
		}
		o.Scorer.MarkCaptured(t.ID)
	}
	return &governor.Target{
		TrackID:       t.ID,
		BBox:          t.BBox,
		PlateHeightPx: region.H,
	}
}

func (p *Pipeline) publish(ctx context.Context, topic string, evt events.Event) {
	if err := p.opts.Bus.Publish(ctx, topic, evt); err != nil {
		opsf("%s: publish %s to %s: %v", p.opts.CameraID, evt.Type, topic, err)
	}
}

func (p *Pipeline) updateSnapshot(targetID int64, hasTarget bool, frameTime time.Time) {
	total, _, confirmed := p.opts.Tracks.Counts()
	snap := Snapshot{
		CameraID:        p.opts.CameraID,
		State:           p.opts.Governor.State(),
		Degraded:        p.opts.Governor.Degraded(),
		MotionDisabled:  p.opts.Governor.Disabled(),
		ActiveTracks:    total,
		ConfirmedTracks: confirmed,
		HasTarget:       hasTarget,
		Cycles:          p.cycles,
		LastFrame:       frameTime,
	}
	if hasTarget {
		snap.TargetTrackID = targetID
	}
	p.mu.Lock()
	p.snapshot = snap
	p.mu.Unlock()
}

// Snapshot returns the state as of the last completed cycle. Safe to
// call concurrently with Run.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

func findTrack(tracks []*track.Track, id int64) *track.Track {
	for _, t := range tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
