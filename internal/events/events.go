// Package events defines the bus schema and transports. The control
// core publishes track lifecycle and target changes for downstream
// consumers (ANPR, storage, UI) and reads detection batches published
// by the vision service.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/platewatch/internal/geom"
	"github.com/banshee-data/platewatch/internal/track"
)

// Stream topics. One Redis Stream per topic.
const (
	TopicTracks       = "platewatch.tracks"
	TopicTargets      = "platewatch.targets"
	TopicDetections   = "platewatch.detections"
	TopicANPRRequests = "platewatch.anpr.requests"
	TopicPTZStatus    = "platewatch.ptz.status"
)

// Type identifies what an event announces.
type Type string

const (
	TypeTrackConfirmed Type = "track_confirmed"
	TypeTrackLost      Type = "track_lost"
	TypeTargetSelected Type = "target_selected"
	TypeTargetCleared  Type = "target_cleared"
	TypeCaptureRequest Type = "capture_request"
	TypePTZStatus      Type = "ptz_status"
)

// Event is the wire schema for everything this service publishes.
// Track-scoped fields are pointers/omitempty so target-cleared and
// status events stay lean.
type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"event_type"`
	Camera    string      `json:"camera_id"`
	TrackID   int64       `json:"track_id,omitempty"`
	BBox      *geom.BBox  `json:"bbox,omitempty"`
	Class     track.Class `json:"class,omitempty"`
	Velocity  *geom.Point `json:"velocity,omitempty"`
	Timestamp time.Time   `json:"timestamp"`

	// Capture carries the ANPR request payload on TopicANPRRequests.
	Capture *CaptureRequest `json:"capture,omitempty"`

	// State carries the governor state on TopicPTZStatus.
	State string `json:"state,omitempty"`
}

// CaptureRequest asks the ANPR service to read a plate from the given
// region of the current frame.
type CaptureRequest struct {
	RequestID     string    `json:"request_id"`
	PlateRegion   geom.BBox `json:"plate_region"`
	PlateHeightPx float64   `json:"plate_height_px"`
}

// DetectionBatch is the payload the vision service publishes on
// TopicDetections: one frame's worth of detections.
type DetectionBatch struct {
	Camera     string             `json:"camera_id"`
	Frame      geom.FrameGeometry `json:"frame"`
	Detections []track.Detection  `json:"detections"`
	Timestamp  time.Time          `json:"timestamp"`
}

// NewTrackEvent builds a lifecycle or target event from a track
// snapshot.
func NewTrackEvent(typ Type, camera string, t *track.Track, at time.Time) Event {
	bbox := t.BBox
	vel := t.Velocity
	return Event{
		ID:        newEventID(),
		Type:      typ,
		Camera:    camera,
		TrackID:   t.ID,
		BBox:      &bbox,
		Class:     t.Class,
		Velocity:  &vel,
		Timestamp: at,
	}
}

// NewTargetClearedEvent announces that no target is selected.
func NewTargetClearedEvent(camera string, at time.Time) Event {
	return Event{
		ID:        newEventID(),
		Type:      TypeTargetCleared,
		Camera:    camera,
		Timestamp: at,
	}
}

// NewCaptureRequestEvent builds an ANPR capture request for a track.
func NewCaptureRequestEvent(camera string, t *track.Track, region geom.BBox, at time.Time) Event {
	evt := NewTrackEvent(TypeCaptureRequest, camera, t, at)
	evt.Capture = &CaptureRequest{
		RequestID:     "cap_" + uuid.NewString(),
		PlateRegion:   region,
		PlateHeightPx: region.H,
	}
	return evt
}

// NewStatusEvent reports the governor's motion state.
func NewStatusEvent(camera, state string, at time.Time) Event {
	return Event{
		ID:        newEventID(),
		Type:      TypePTZStatus,
		Camera:    camera,
		State:     state,
		Timestamp: at,
	}
}

func newEventID() string {
	return "evt_" + uuid.NewString()
}
