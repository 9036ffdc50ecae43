package ptz

import (
	"context"
	"sync"
)

// SimClient is an in-memory camera for tests and dev mode. It integrates
// relative moves into a position and records every call; a queued error
// is returned by the next operation, so tests can script fault
// sequences.
type SimClient struct {
	mu     sync.Mutex
	pos    Status
	preset string
	calls  []Intent
	errs   []error
}

// NewSimClient creates a simulated camera parked at the origin.
func NewSimClient() *SimClient {
	return &SimClient{}
}

// FailNext queues errors to be returned, in order, by upcoming
// operations.
func (s *SimClient) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
}

func (s *SimClient) takeErr() error {
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *SimClient) MoveRelative(_ context.Context, pan, tilt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.pos.Pan = clampAbs(s.pos.Pan+pan, 1)
	s.pos.Tilt = clampAbs(s.pos.Tilt+tilt, 1)
	s.calls = append(s.calls, Intent{Kind: IntentMove, Pan: pan, Tilt: tilt})
	return nil
}

func (s *SimClient) SetZoom(_ context.Context, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.pos.Zoom = clampAbs(s.pos.Zoom+delta, 1)
	s.calls = append(s.calls, Intent{Kind: IntentMove, Zoom: delta})
	return nil
}

func (s *SimClient) RecallPreset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.preset = id
	s.pos = Status{} // Presets park the camera; position resets
	s.calls = append(s.calls, Intent{Kind: IntentPreset, Preset: id})
	return nil
}

func (s *SimClient) GetStatus(_ context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return Status{}, err
	}
	return s.pos, nil
}

func (s *SimClient) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.calls = append(s.calls, Intent{Kind: IntentStop})
	return nil
}

// Calls returns a copy of every successful call in order.
func (s *SimClient) Calls() []Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Intent, len(s.calls))
	copy(out, s.calls)
	return out
}

// Preset returns the last recalled preset, if any.
func (s *SimClient) Preset() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preset
}
