// Package sqlite archives track lifecycles and plate capture requests.
// The archive is an operational record for offline analysis; the live
// pipeline never reads it on the hot path.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/platewatch/internal/events"
	"github.com/banshee-data/platewatch/internal/track"
)

// Store wraps the archive database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the archive at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tracks (
			track_id INTEGER NOT NULL,
			camera_id TEXT NOT NULL,
			class TEXT NOT NULL,
			first_seen_unix_nanos INTEGER NOT NULL,
			last_seen_unix_nanos INTEGER NOT NULL,
			observation_count INTEGER NOT NULL,
			avg_speed_px REAL,
			peak_speed_px REAL,
			p50_speed_px REAL,
			p95_speed_px REAL,
			PRIMARY KEY (camera_id, track_id)
		);
		CREATE TABLE IF NOT EXISTS captures (
			request_id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL,
			track_id INTEGER NOT NULL,
			plate_x REAL, plate_y REAL, plate_w REAL, plate_h REAL,
			requested_unix_nanos INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tracks_last_seen
			ON tracks(last_seen_unix_nanos);
		CREATE INDEX IF NOT EXISTS idx_captures_requested
			ON captures(requested_unix_nanos);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// ArchiveTrack records a finished track's lifecycle summary. Re-archiving
// the same identity updates the row, so a crash between archive and
// cycle end cannot duplicate history.
func (s *Store) ArchiveTrack(cameraID string, t *track.Track) error {
	_, err := s.db.Exec(`
		INSERT INTO tracks (
			track_id, camera_id, class,
			first_seen_unix_nanos, last_seen_unix_nanos, observation_count,
			avg_speed_px, peak_speed_px, p50_speed_px, p95_speed_px
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(camera_id, track_id) DO UPDATE SET
			last_seen_unix_nanos = excluded.last_seen_unix_nanos,
			observation_count = excluded.observation_count,
			avg_speed_px = excluded.avg_speed_px,
			peak_speed_px = excluded.peak_speed_px,
			p50_speed_px = excluded.p50_speed_px,
			p95_speed_px = excluded.p95_speed_px
	`,
		t.ID, cameraID, string(t.Class),
		t.FirstSeen.UnixNano(), t.LastSeen.UnixNano(), t.Observations,
		t.AvgSpeedPx, t.PeakSpeedPx, t.SpeedPercentile(0.50), t.SpeedPercentile(0.95),
	)
	if err != nil {
		return fmt.Errorf("archive track %d: %w", t.ID, err)
	}
	return nil
}

// ArchiveCapture records an issued ANPR capture request.
func (s *Store) ArchiveCapture(cameraID string, evt events.Event) error {
	if evt.Capture == nil {
		return fmt.Errorf("archive capture: event %s has no capture payload", evt.ID)
	}
	c := evt.Capture
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO captures (
			request_id, camera_id, track_id,
			plate_x, plate_y, plate_w, plate_h, requested_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.RequestID, cameraID, evt.TrackID,
		c.PlateRegion.X, c.PlateRegion.Y, c.PlateRegion.W, c.PlateRegion.H,
		evt.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("archive capture %s: %w", c.RequestID, err)
	}
	return nil
}

// Prune deletes archive rows older than the cutoff and reports how many
// went.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	nanos := cutoff.UnixNano()
	var total int64

	res, err := s.db.Exec(`DELETE FROM tracks WHERE last_seen_unix_nanos < ?`, nanos)
	if err != nil {
		return 0, fmt.Errorf("prune tracks: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = s.db.Exec(`DELETE FROM captures WHERE requested_unix_nanos < ?`, nanos)
	if err != nil {
		return total, fmt.Errorf("prune captures: %w", err)
	}
	n, _ = res.RowsAffected()
	return total + n, nil
}

// Counts returns archived track and capture row counts, for the status
// endpoint.
func (s *Store) Counts() (tracks, captures int64, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM tracks`).Scan(&tracks); err != nil {
		return 0, 0, fmt.Errorf("count tracks: %w", err)
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM captures`).Scan(&captures); err != nil {
		return 0, 0, fmt.Errorf("count captures: %w", err)
	}
	return tracks, captures, nil
}
