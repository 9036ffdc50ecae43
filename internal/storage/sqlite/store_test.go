package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/platewatch/internal/events"
	"github.com/banshee-data/platewatch/internal/geom"
	"github.com/banshee-data/platewatch/internal/track"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func archivedTrack(id int64, lastSeen time.Time) *track.Track {
	return &track.Track{
		ID:           id,
		Class:        track.ClassCar,
		State:        track.StateStale,
		FirstSeen:    lastSeen.Add(-10 * time.Second),
		LastSeen:     lastSeen,
		Observations: 42,
		AvgSpeedPx:   85,
		PeakSpeedPx:  140,
	}
}

func TestArchiveTrackUpsert(t *testing.T) {
	s := openTestStore(t)
	now := time.Unix(2000, 0)

	tr := archivedTrack(7, now)
	if err := s.ArchiveTrack("cam-1", tr); err != nil {
		t.Fatalf("archive: %v", err)
	}

	// Archiving the same identity again updates rather than duplicates.
	tr.Observations = 50
	if err := s.ArchiveTrack("cam-1", tr); err != nil {
		t.Fatalf("re-archive: %v", err)
	}

	tracks, _, err := s.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if tracks != 1 {
		t.Errorf("expected 1 archived track, got %d", tracks)
	}
}

func TestArchiveCaptureRequiresPayload(t *testing.T) {
	s := openTestStore(t)

	bare := events.NewTargetClearedEvent("cam-1", time.Now())
	if err := s.ArchiveCapture("cam-1", bare); err == nil {
		t.Error("expected error for event without capture payload")
	}

	tr := archivedTrack(3, time.Now())
	evt := events.NewCaptureRequestEvent("cam-1", tr,
		geom.BBox{X: 10, Y: 20, W: 48, H: 12}, time.Now())
	if err := s.ArchiveCapture("cam-1", evt); err != nil {
		t.Fatalf("archive capture: %v", err)
	}

	_, captures, err := s.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if captures != 1 {
		t.Errorf("expected 1 capture, got %d", captures)
	}
}

func TestPruneRemovesOnlyAgedRows(t *testing.T) {
	s := openTestStore(t)
	old := time.Unix(1000, 0)
	fresh := time.Unix(5000, 0)

	s.ArchiveTrack("cam-1", archivedTrack(1, old))
	s.ArchiveTrack("cam-1", archivedTrack(2, fresh))
	s.ArchiveCapture("cam-1", events.NewCaptureRequestEvent("cam-1",
		archivedTrack(1, old), geom.BBox{W: 48, H: 12}, old))

	n, err := s.Prune(time.Unix(3000, 0))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows pruned, got %d", n)
	}

	tracks, captures, _ := s.Counts()
	if tracks != 1 || captures != 0 {
		t.Errorf("expected 1 track / 0 captures after prune, got %d / %d", tracks, captures)
	}
}
