// Package ptz is the camera command boundary: it translates abstract
// motion intents into device protocol calls and classifies failures so
// the control core never sees raw transport errors. No business logic
// and no internal retries live here.
package ptz

import (
	"context"
	"fmt"
)

// IntentKind identifies what a motion intent asks the camera to do.
type IntentKind string

const (
	IntentMove   IntentKind = "move"   // Relative pan/tilt plus zoom delta
	IntentPreset IntentKind = "preset" // Recall a stored preset
	IntentStop   IntentKind = "stop"   // Halt any in-progress motion
)

// Intent is one abstract motion command. Pan, Tilt and Zoom are
// normalized deltas in [-1, 1]; Preset names a stored camera position.
type Intent struct {
	Kind   IntentKind `json:"kind"`
	Pan    float64    `json:"pan,omitempty"`
	Tilt   float64    `json:"tilt,omitempty"`
	Zoom   float64    `json:"zoom,omitempty"`
	Preset string     `json:"preset,omitempty"`
}

// Status is the device-reported PTZ position.
type Status struct {
	Pan    float64 `json:"pan"`
	Tilt   float64 `json:"tilt"`
	Zoom   float64 `json:"zoom"`
	Moving bool    `json:"moving"`
}

// Client is the concrete device protocol. Implementations return *Fault
// errors so callers can classify without knowing the transport.
type Client interface {
	MoveRelative(ctx context.Context, pan, tilt float64) error
	SetZoom(ctx context.Context, delta float64) error
	RecallPreset(ctx context.Context, id string) error
	GetStatus(ctx context.Context) (Status, error)
	Stop(ctx context.Context) error
}

// Limits clamp intent magnitudes to what the device accepts.
type Limits struct {
	MaxPan  float64 `json:"max_pan"`
	MaxTilt float64 `json:"max_tilt"`
	MaxZoom float64 `json:"max_zoom"`
}

// DefaultLimits is the full normalized ONVIF translation space.
func DefaultLimits() Limits {
	return Limits{MaxPan: 1, MaxTilt: 1, MaxZoom: 1}
}

// Adapter applies intents through a Client, clamping to device limits.
type Adapter struct {
	client Client
	limits Limits
}

// NewAdapter wraps a device client with the given limits.
func NewAdapter(client Client, limits Limits) *Adapter {
	return &Adapter{client: client, limits: limits}
}

// Apply executes one intent. A move with both a pan/tilt component and a
// zoom component issues both calls; the first fault wins and the rest of
// the intent is abandoned — the governor will issue fresh deltas next
// cycle rather than replay stale ones.
func (a *Adapter) Apply(ctx context.Context, intent Intent) error {
	switch intent.Kind {
	case IntentMove:
		pan := clampAbs(intent.Pan, a.limits.MaxPan)
		tilt := clampAbs(intent.Tilt, a.limits.MaxTilt)
		if pan != 0 || tilt != 0 {
			if err := a.client.MoveRelative(ctx, pan, tilt); err != nil {
				return err
			}
		}
		if zoom := clampAbs(intent.Zoom, a.limits.MaxZoom); zoom != 0 {
			return a.client.SetZoom(ctx, zoom)
		}
		return nil
	case IntentPreset:
		return a.client.RecallPreset(ctx, intent.Preset)
	case IntentStop:
		return a.client.Stop(ctx)
	default:
		return Permanent("apply", fmt.Errorf("unknown intent kind %q", intent.Kind))
	}
}

// Status passes through to the device.
func (a *Adapter) Status(ctx context.Context) (Status, error) {
	return a.client.GetStatus(ctx)
}

func clampAbs(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}
