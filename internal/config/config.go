// Package config loads and validates the service configuration. Tuning
// knobs are optional pointer fields with Get* fallbacks, so a partial
// JSON file is safe and the defaults live in exactly one place.
// Secrets (camera and Redis passwords) never appear in the file; they
// are resolved from the environment at load time.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the service.
type Config struct {
	Cameras    []CameraConfig `json:"cameras" validate:"min=1,dive"`
	Redis      RedisConfig    `json:"redis"`
	Archive    ArchiveConfig  `json:"archive"`
	Tuning     Tuning         `json:"tuning"`
	ListenAddr string         `json:"listen_addr,omitempty"`
}

// CameraConfig describes one ONVIF camera and its patrol presets.
type CameraConfig struct {
	ID           string   `json:"id" validate:"required"`
	Endpoint     string   `json:"endpoint" validate:"required,url"`
	ProfileToken string   `json:"profile_token"`
	Username     string   `json:"username"`
	PasswordEnv  string   `json:"password_env,omitempty"`
	FrameWidth   int      `json:"frame_width" validate:"gt=0"`
	FrameHeight  int      `json:"frame_height" validate:"gt=0"`
	HomePreset   string   `json:"home_preset"`
	SweepPresets []string `json:"sweep_presets,omitempty"`
}

// Password resolves the camera password from the environment.
func (c CameraConfig) Password() string {
	env := c.PasswordEnv
	if env == "" {
		env = "PLATEWATCH_CAMERA_PASSWORD"
	}
	return os.Getenv(env)
}

// RedisConfig locates the event bus.
type RedisConfig struct {
	Addr         string `json:"addr" validate:"required,hostname_port"`
	DB           int    `json:"db"`
	PasswordEnv  string `json:"password_env,omitempty"`
	StreamMaxLen int64  `json:"stream_max_len,omitempty"`
	Group        string `json:"group,omitempty"`
	Consumer     string `json:"consumer,omitempty"`
}

// Password resolves the Redis password from the environment.
func (c RedisConfig) Password() string {
	env := c.PasswordEnv
	if env == "" {
		env = "PLATEWATCH_REDIS_PASSWORD"
	}
	return os.Getenv(env)
}

// ArchiveConfig locates the SQLite archive.
type ArchiveConfig struct {
	Path          string `json:"path,omitempty"`
	RetentionDays int    `json:"retention_days,omitempty" validate:"gte=0"`
}

// Tuning holds every control knob. All fields are optional; absent
// fields take the Get* defaults. Durations are strings like "2s".
type Tuning struct {
	// Tracking
	MinConfidence     *float64 `json:"min_confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	IOUThreshold      *float64 `json:"iou_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
	CentroidGatePx    *float64 `json:"centroid_gate_px,omitempty" validate:"omitempty,gte=0"`
	MinHits           *int     `json:"min_hits,omitempty" validate:"omitempty,gte=1"`
	MaxAge            *int     `json:"max_age,omitempty" validate:"omitempty,gte=0"`
	VelocitySmoothing *float64 `json:"velocity_smoothing,omitempty" validate:"omitempty,gt=0,lte=1"`
	MaxHistory        *int     `json:"max_history,omitempty" validate:"omitempty,gte=2"`
	MaxSpeedHistory   *int     `json:"max_speed_history,omitempty" validate:"omitempty,gte=1"`

	// Prioritization
	WeightCenter    *float64 `json:"weight_center,omitempty" validate:"omitempty,gte=0"`
	WeightSize      *float64 `json:"weight_size,omitempty" validate:"omitempty,gte=0"`
	WeightApproach  *float64 `json:"weight_approach,omitempty" validate:"omitempty,gte=0"`
	WeightNovelty   *float64 `json:"weight_novelty,omitempty" validate:"omitempty,gte=0"`
	SwitchMargin    *float64 `json:"switch_margin,omitempty" validate:"omitempty,gte=0"`
	SizeRefFraction *float64 `json:"size_ref_fraction,omitempty" validate:"omitempty,gt=0,lte=1"`
	ApproachRefPx   *float64 `json:"approach_ref_px,omitempty" validate:"omitempty,gt=0"`

	// Motion
	DeadZonePx          *float64 `json:"dead_zone_px,omitempty" validate:"omitempty,gte=0"`
	PanGain             *float64 `json:"pan_gain,omitempty" validate:"omitempty,gt=0"`
	TiltGain            *float64 `json:"tilt_gain,omitempty" validate:"omitempty,gt=0"`
	MaxStep             *float64 `json:"max_step,omitempty" validate:"omitempty,gt=0,lte=1"`
	ZoomStep            *float64 `json:"zoom_step,omitempty" validate:"omitempty,gt=0,lte=1"`
	TargetPlateHeightPx *float64 `json:"target_plate_height_px,omitempty" validate:"omitempty,gt=0"`
	ZoomInRatio         *float64 `json:"zoom_in_ratio,omitempty" validate:"omitempty,gt=1"`
	ZoomOutRatio        *float64 `json:"zoom_out_ratio,omitempty" validate:"omitempty,gt=0,lt=1"`
	MinMoveInterval     *string  `json:"min_move_interval,omitempty"`
	GracePeriod         *string  `json:"grace_period,omitempty"`
	ReturnTimeout       *string  `json:"return_timeout,omitempty"`
	IdleTimeout         *string  `json:"idle_timeout,omitempty"`
	SweepDwell          *string  `json:"sweep_dwell,omitempty"`
	FaultCooldown       *string  `json:"fault_cooldown,omitempty"`

	// Plate capture
	MinPlateHeightPx *float64 `json:"min_plate_height_px,omitempty" validate:"omitempty,gt=0"`
	StabilityFrames  *int     `json:"stability_frames,omitempty" validate:"omitempty,gte=1"`
}

// Load reads, parses, and validates the configuration at path.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cleanPath, err)
	}
	return cfg, nil
}

// Validate checks structural fields with validator tags plus the
// constraints tags cannot express (duration strings, ratio ordering).
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	for name, v := range map[string]*string{
		"min_move_interval": c.Tuning.MinMoveInterval,
		"grace_period":      c.Tuning.GracePeriod,
		"return_timeout":    c.Tuning.ReturnTimeout,
		"idle_timeout":      c.Tuning.IdleTimeout,
		"sweep_dwell":       c.Tuning.SweepDwell,
		"fault_cooldown":    c.Tuning.FaultCooldown,
	} {
		if v == nil || *v == "" {
			continue
		}
		if _, err := time.ParseDuration(*v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, *v, err)
		}
	}

	seen := make(map[string]bool, len(c.Cameras))
	for _, cam := range c.Cameras {
		if seen[cam.ID] {
			return fmt.Errorf("duplicate camera id %q", cam.ID)
		}
		seen[cam.ID] = true
	}
	return nil
}

// GetListenAddr returns the status server address.
func (c *Config) GetListenAddr() string {
	if c.ListenAddr == "" {
		return ":8089"
	}
	return c.ListenAddr
}

// GetStreamMaxLen returns the per-topic stream cap.
func (c RedisConfig) GetStreamMaxLen() int64 {
	if c.StreamMaxLen <= 0 {
		return 10000
	}
	return c.StreamMaxLen
}

// GetGroup returns the detection consumer group name.
func (c RedisConfig) GetGroup() string {
	if c.Group == "" {
		return "platewatch-control"
	}
	return c.Group
}

// GetPath returns the SQLite archive location.
func (c ArchiveConfig) GetPath() string {
	if c.Path == "" {
		return "platewatch.db"
	}
	return c.Path
}

// GetRetention returns how long archive rows are kept.
func (c ArchiveConfig) GetRetention() time.Duration {
	if c.RetentionDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
