// Command replay drives the control loop from a recorded detection
// log instead of the live bus. The camera is simulated, events stay in
// memory, and the clock follows the recorded frame timestamps, so a
// night of traffic can be re-run in seconds to check tuning changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/platewatch/internal/config"
	"github.com/banshee-data/platewatch/internal/events"
	"github.com/banshee-data/platewatch/internal/geom"
	"github.com/banshee-data/platewatch/internal/governor"
	"github.com/banshee-data/platewatch/internal/pipeline"
	"github.com/banshee-data/platewatch/internal/plates"
	"github.com/banshee-data/platewatch/internal/priority"
	"github.com/banshee-data/platewatch/internal/ptz"
	"github.com/banshee-data/platewatch/internal/timeutil"
	"github.com/banshee-data/platewatch/internal/track"
)

var (
	logPath    = flag.String("log", "", "Path to a detection log (JSONL, one batch per line)")
	cameraID   = flag.String("camera", "", "Camera ID to replay (empty replays everything)")
	configPath = flag.String("config", "", "Optional config file for tuning and geometry")
	width      = flag.Int("width", 1920, "Frame width when no config is given")
	height     = flag.Int("height", 1080, "Frame height when no config is given")
	verbose    = flag.Bool("verbose", false, "Log every cycle")
)

func main() {
	flag.Parse()
	if *logPath == "" {
		log.Fatal("-log is required")
	}

	tuning := config.Tuning{}
	frame := geom.FrameGeometry{Width: *width, Height: *height}
	home := ""
	var sweeps []string
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		tuning = cfg.Tuning
		for _, cam := range cfg.Cameras {
			if *cameraID == "" || cam.ID == *cameraID {
				frame = geom.FrameGeometry{Width: cam.FrameWidth, Height: cam.FrameHeight}
				home = cam.HomePreset
				sweeps = cam.SweepPresets
				break
			}
		}
	}

	f, err := os.Open(*logPath)
	if err != nil {
		log.Fatalf("open log: %v", err)
	}
	defer f.Close()

	if *verbose {
		pipeline.SetLogWriters(os.Stderr, os.Stderr, nil)
	} else {
		pipeline.SetLogWriters(os.Stderr, nil, nil)
	}

	clock := timeutil.NewMockClock(time.Time{})
	sim := ptz.NewSimClient()
	bus := events.NewMemoryPublisher()
	source := pipeline.NewReplaySource(*cameraID, f)

	p, err := pipeline.New(pipeline.Options{
		CameraID: orDefault(*cameraID, "replay"),
		Frame:    frame,
		Source:   source,
		Tracks: track.NewManager(track.Config{
			MinHits:           tuning.GetMinHits(),
			MaxAge:            tuning.GetMaxAge(),
			MinConfidence:     tuning.GetMinConfidence(),
			IOUThreshold:      tuning.GetIOUThreshold(),
			CentroidGatePx:    tuning.GetCentroidGatePx(),
			VelocitySmoothing: tuning.GetVelocitySmoothing(),
			MaxHistory:        tuning.GetMaxHistory(),
			MaxSpeedHistory:   tuning.GetMaxSpeedHistory(),
		}),
		Scorer: priority.NewScorer(priority.Config{
			Weights: priority.Weights{
				Center:   tuning.GetWeightCenter(),
				Size:     tuning.GetWeightSize(),
				Approach: tuning.GetWeightApproach(),
				Novelty:  tuning.GetWeightNovelty(),
			},
			SwitchMargin:    tuning.GetSwitchMargin(),
			SizeRefFraction: tuning.GetSizeRefFraction(),
			ApproachRefPx:   tuning.GetApproachRefPx(),
		}),
		Governor: governor.New(governor.Config{
			Frame:               frame,
			DeadZonePx:          tuning.GetDeadZonePx(),
			PanGain:             tuning.GetPanGain(),
			TiltGain:            tuning.GetTiltGain(),
			MaxStep:             tuning.GetMaxStep(),
			ZoomStep:            tuning.GetZoomStep(),
			TargetPlateHeightPx: tuning.GetTargetPlateHeightPx(),
			ZoomInRatio:         tuning.GetZoomInRatio(),
			ZoomOutRatio:        tuning.GetZoomOutRatio(),
			MinMoveInterval:     tuning.GetMinMoveInterval(),
			GracePeriod:         tuning.GetGracePeriod(),
			ReturnTimeout:       tuning.GetReturnTimeout(),
			IdleTimeout:         tuning.GetIdleTimeout(),
			SweepDwell:          tuning.GetSweepDwell(),
			FaultCooldown:       tuning.GetFaultCooldown(),
			HomePreset:          home,
			SweepPresets:        sweeps,
		}, clock),
		Adapter: ptz.NewAdapter(sim, ptz.DefaultLimits()),
		Proposer: plates.NewProposer(plates.Config{
			MinPlateHeightPx: tuning.GetMinPlateHeightPx(),
			StabilityFrames:  tuning.GetStabilityFrames(),
		}),
		Bus:   bus,
		Clock: clock,
	})
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	ctx := context.Background()
	cycles := 0
	var last pipeline.Snapshot
	for {
		fr, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("replay: %v", err)
		}
		// Governor timers run on frame time, matching the recording.
		if !fr.Time.IsZero() {
			clock.Set(fr.Time)
		}
		last = p.RunCycle(ctx, fr)
		cycles++
		if *verbose {
			fmt.Printf("cycle %d: state=%s tracks=%d confirmed=%d target=%v\n",
				cycles, last.State, last.ActiveTracks, last.ConfirmedTracks, last.HasTarget)
		}
	}

	fmt.Printf("replayed %d cycle(s)\n", cycles)
	fmt.Printf("final state: %s (degraded=%v, motion_disabled=%v)\n",
		last.State, last.Degraded, last.MotionDisabled)
	fmt.Printf("events: %d track, %d target, %d anpr, %d status\n",
		len(bus.Events(events.TopicTracks)),
		len(bus.Events(events.TopicTargets)),
		len(bus.Events(events.TopicANPRRequests)),
		len(bus.Events(events.TopicPTZStatus)))
	for _, evt := range bus.Events(events.TopicANPRRequests) {
		if evt.Capture != nil {
			fmt.Printf("  capture %s: track %d at %s\n",
				evt.Capture.RequestID, evt.TrackID, evt.Timestamp.Format(time.RFC3339))
		}
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
