package ptz

import (
	"context"
	"errors"
	"testing"
)

func TestAdapter_MoveClampsToLimits(t *testing.T) {
	sim := NewSimClient()
	a := NewAdapter(sim, Limits{MaxPan: 0.5, MaxTilt: 0.5, MaxZoom: 0.2})

	err := a.Apply(context.Background(), Intent{Kind: IntentMove, Pan: 2, Tilt: -2, Zoom: 1})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	calls := sim.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected move + zoom calls, got %d", len(calls))
	}
	if calls[0].Pan != 0.5 || calls[0].Tilt != -0.5 {
		t.Errorf("pan/tilt not clamped: %+v", calls[0])
	}
	if calls[1].Zoom != 0.2 {
		t.Errorf("zoom not clamped: %+v", calls[1])
	}
}

func TestAdapter_ZeroComponentsSkipCalls(t *testing.T) {
	sim := NewSimClient()
	a := NewAdapter(sim, DefaultLimits())

	// Pure zoom intent must not issue a pan/tilt move.
	if err := a.Apply(context.Background(), Intent{Kind: IntentMove, Zoom: 0.1}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	calls := sim.Calls()
	if len(calls) != 1 || calls[0].Zoom != 0.1 {
		t.Errorf("expected single zoom call, got %+v", calls)
	}
}

func TestAdapter_PresetAndStop(t *testing.T) {
	sim := NewSimClient()
	a := NewAdapter(sim, DefaultLimits())

	if err := a.Apply(context.Background(), Intent{Kind: IntentPreset, Preset: "home"}); err != nil {
		t.Fatalf("preset: %v", err)
	}
	if sim.Preset() != "home" {
		t.Errorf("expected preset home, got %q", sim.Preset())
	}
	if err := a.Apply(context.Background(), Intent{Kind: IntentStop}); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestAdapter_FaultPassesThroughUnretried(t *testing.T) {
	sim := NewSimClient()
	sim.FailNext(Transient("RelativeMove", errors.New("timeout")))
	a := NewAdapter(sim, DefaultLimits())

	err := a.Apply(context.Background(), Intent{Kind: IntentMove, Pan: 0.1})
	if !IsTransient(err) {
		t.Fatalf("expected transient fault, got %v", err)
	}
	// Exactly one device call happened: the adapter never retries.
	if calls := sim.Calls(); len(calls) != 0 {
		t.Errorf("expected no successful calls, got %+v", calls)
	}
}

func TestFaultClassification(t *testing.T) {
	tr := Transient("GetStatus", errors.New("dial tcp: i/o timeout"))
	pe := Permanent("GotoPreset", errors.New("HTTP 401"))

	if !IsTransient(tr) || IsPermanent(tr) {
		t.Error("transient fault misclassified")
	}
	if !IsPermanent(pe) || IsTransient(pe) {
		t.Error("permanent fault misclassified")
	}
	// Wrapped faults still classify.
	wrapped := errors.Join(errors.New("apply"), tr)
	if !IsTransient(wrapped) {
		t.Error("wrapped transient fault not detected")
	}
	if IsTransient(errors.New("plain")) {
		t.Error("plain error classified as fault")
	}
}
