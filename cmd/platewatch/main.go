// Command platewatch runs the PTZ control service: one pipeline per
// configured camera, fed by the shared detection stream on Redis,
// driving each camera over ONVIF and archiving track summaries to
// SQLite. A small HTTP server exposes health and per-camera status.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/banshee-data/platewatch/internal/api"
	"github.com/banshee-data/platewatch/internal/config"
	"github.com/banshee-data/platewatch/internal/events"
	"github.com/banshee-data/platewatch/internal/geom"
	"github.com/banshee-data/platewatch/internal/governor"
	"github.com/banshee-data/platewatch/internal/pipeline"
	"github.com/banshee-data/platewatch/internal/plates"
	"github.com/banshee-data/platewatch/internal/priority"
	"github.com/banshee-data/platewatch/internal/ptz"
	"github.com/banshee-data/platewatch/internal/storage/sqlite"
	"github.com/banshee-data/platewatch/internal/timeutil"
	"github.com/banshee-data/platewatch/internal/track"
	"github.com/banshee-data/platewatch/internal/version"
)

var (
	configPath = flag.String("config", "platewatch.json", "Path to config file")
	devMode    = flag.Bool("dev", false, "Drive simulated cameras instead of ONVIF")
	listen     = flag.String("listen", "", "Listen address override")
	logDir     = flag.String("log-dir", "", "Directory for rotated logs (stderr if empty)")
	verbose    = flag.Bool("verbose", false, "Enable diagnostic logging")
	trace      = flag.Bool("trace", false, "Enable per-cycle trace logging")
)

const onvifTimeout = 5 * time.Second

func main() {
	flag.Parse()

	// Local development convenience; absence of a .env file is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("godotenv: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	setupLogging()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password(),
	})
	defer rdb.Close()

	store, err := sqlite.Open(cfg.Archive.GetPath())
	if err != nil {
		log.Fatalf("archive: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewRedisPublisher(rdb, cfg.Redis.GetStreamMaxLen())

	pipelines := make([]*pipeline.Pipeline, 0, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		p, err := buildPipeline(ctx, cfg, cam, rdb, bus, store)
		if err != nil {
			log.Fatalf("camera %s: %v", cam.ID, err)
		}
		pipelines = append(pipelines, p)
	}

	var wg sync.WaitGroup
	for _, p := range pipelines {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("pipeline: %v", err)
			}
		}()
	}

	// Nightly archive pruning, plus one pass at startup.
	if retention := cfg.Archive.GetRetention(); retention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruneLoop(ctx, store, retention)
		}()
	}

	addr := cfg.GetListenAddr()
	if *listen != "" {
		addr = *listen
	}
	server := &http.Server{
		Addr:    addr,
		Handler: api.New(pipelines, store).Handler(),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("http server: %v", err)
			}
		}()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
	}()

	log.Printf("platewatch %s (%s) started: %d camera(s), listening on %s",
		version.Version, version.GitSHA, len(pipelines), addr)
	wg.Wait()
	log.Printf("graceful shutdown complete")
}

// buildPipeline assembles one camera's control loop from the config.
// Each camera gets its own consumer group on the shared detection
// stream so every pipeline sees every batch and keeps only its own.
func buildPipeline(ctx context.Context, cfg *config.Config, cam config.CameraConfig, rdb *redis.Client, bus events.Publisher, store *sqlite.Store) (*pipeline.Pipeline, error) {
	group := fmt.Sprintf("%s.%s", cfg.Redis.GetGroup(), cam.ID)
	name := cfg.Redis.Consumer
	if name == "" {
		name, _ = os.Hostname()
		if name == "" {
			name = "platewatch"
		}
	}
	consumer, err := events.NewConsumer(ctx, rdb, events.TopicDetections, group, name)
	if err != nil {
		return nil, fmt.Errorf("consumer group: %w", err)
	}

	var client ptz.Client
	if *devMode {
		client = ptz.NewSimClient()
	} else {
		client = ptz.NewONVIFClient(ptz.ONVIFConfig{
			Endpoint:     cam.Endpoint,
			ProfileToken: cam.ProfileToken,
			Username:     cam.Username,
			Password:     cam.Password(),
			Timeout:      onvifTimeout,
		})
	}

	frame := geom.FrameGeometry{Width: cam.FrameWidth, Height: cam.FrameHeight}
	t := cfg.Tuning
	clock := timeutil.RealClock{}

	return pipeline.New(pipeline.Options{
		CameraID: cam.ID,
		Frame:    frame,
		Source:   pipeline.NewRedisSource(cam.ID, consumer),
		Tracks: track.NewManager(track.Config{
			MinHits:           t.GetMinHits(),
			MaxAge:            t.GetMaxAge(),
			MinConfidence:     t.GetMinConfidence(),
			IOUThreshold:      t.GetIOUThreshold(),
			CentroidGatePx:    t.GetCentroidGatePx(),
			VelocitySmoothing: t.GetVelocitySmoothing(),
			MaxHistory:        t.GetMaxHistory(),
			MaxSpeedHistory:   t.GetMaxSpeedHistory(),
		}),
		Scorer: priority.NewScorer(priority.Config{
			Weights: priority.Weights{
				Center:   t.GetWeightCenter(),
				Size:     t.GetWeightSize(),
				Approach: t.GetWeightApproach(),
				Novelty:  t.GetWeightNovelty(),
			},
			SwitchMargin:    t.GetSwitchMargin(),
			SizeRefFraction: t.GetSizeRefFraction(),
			ApproachRefPx:   t.GetApproachRefPx(),
		}),
		Governor: governor.New(governor.Config{
			Frame:               frame,
			DeadZonePx:          t.GetDeadZonePx(),
			PanGain:             t.GetPanGain(),
			TiltGain:            t.GetTiltGain(),
			MaxStep:             t.GetMaxStep(),
			ZoomStep:            t.GetZoomStep(),
			TargetPlateHeightPx: t.GetTargetPlateHeightPx(),
			ZoomInRatio:         t.GetZoomInRatio(),
			ZoomOutRatio:        t.GetZoomOutRatio(),
			MinMoveInterval:     t.GetMinMoveInterval(),
			GracePeriod:         t.GetGracePeriod(),
			ReturnTimeout:       t.GetReturnTimeout(),
			IdleTimeout:         t.GetIdleTimeout(),
			SweepDwell:          t.GetSweepDwell(),
			FaultCooldown:       t.GetFaultCooldown(),
			HomePreset:          cam.HomePreset,
			SweepPresets:        cam.SweepPresets,
		}, clock),
		Adapter: ptz.NewAdapter(client, ptz.DefaultLimits()),
		Proposer: plates.NewProposer(plates.Config{
			MinPlateHeightPx: t.GetMinPlateHeightPx(),
			StabilityFrames:  t.GetStabilityFrames(),
		}),
		Bus:   bus,
		Store: store,
		Clock: clock,
	})
}

// setupLogging routes the pipeline's ops/diag/trace streams. With
// -log-dir set, each enabled stream gets its own rotated file;
// otherwise everything goes to stderr.
func setupLogging() {
	if *logDir == "" {
		var diag, trc io.Writer
		if *verbose || *trace {
			diag = os.Stderr
		}
		if *trace {
			trc = os.Stderr
		}
		pipeline.SetLogWriters(os.Stderr, diag, trc)
		return
	}
	rotated := func(name string) *lumberjack.Logger {
		return &lumberjack.Logger{
			Filename:   strings.TrimRight(*logDir, "/") + "/" + name,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
	}
	ops := rotated("platewatch.log")
	log.SetOutput(ops)
	if *verbose || *trace {
		diag := rotated("platewatch-diag.log")
		if *trace {
			pipeline.SetLogWriters(ops, diag, diag)
		} else {
			pipeline.SetLogWriters(ops, diag, nil)
		}
		return
	}
	pipeline.SetLogWriters(ops, nil, nil)
}

// pruneLoop deletes archive rows older than the retention window, once
// at startup and then daily.
func pruneLoop(ctx context.Context, store *sqlite.Store, retention time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		cutoff := time.Now().Add(-retention)
		if n, err := store.Prune(cutoff); err != nil {
			log.Printf("archive prune: %v", err)
		} else if n > 0 {
			log.Printf("archive prune: removed %d row(s) older than %s", n, cutoff.Format(time.RFC3339))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
