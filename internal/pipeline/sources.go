package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/banshee-data/platewatch/internal/events"
)

// RedisSource pulls detection batches for one camera off the bus. The
// vision service publishes every camera's frames to the same stream;
// batches for other cameras are acknowledged and skipped.
type RedisSource struct {
	cameraID string
	consumer *events.Consumer
	buffer   []Frame
}

// NewRedisSource wraps a consumer-group reader for the given camera.
func NewRedisSource(cameraID string, consumer *events.Consumer) *RedisSource {
	return &RedisSource{cameraID: cameraID, consumer: consumer}
}

// Next blocks until a detection batch for this camera arrives. Entries
// that fail to parse are acknowledged and dropped so a single bad
// producer cannot wedge the group.
func (s *RedisSource) Next(ctx context.Context) (Frame, error) {
	for {
		if len(s.buffer) > 0 {
			frame := s.buffer[0]
			s.buffer = s.buffer[1:]
			return frame, nil
		}
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		msgs, err := s.consumer.Read(ctx)
		if err != nil {
			return Frame{}, err
		}

		var acks []string
		for _, msg := range msgs {
			acks = append(acks, msg.ID)
			var batch events.DetectionBatch
			if err := json.Unmarshal(msg.Data, &batch); err != nil {
				opsf("%s: dropping malformed detection batch %s: %v", s.cameraID, msg.ID, err)
				continue
			}
			if batch.Camera != s.cameraID {
				continue
			}
			s.buffer = append(s.buffer, Frame{
				Detections: batch.Detections,
				Time:       batch.Timestamp,
			})
		}
		if err := s.consumer.Ack(ctx, acks...); err != nil {
			opsf("%s: ack: %v", s.cameraID, err)
		}
	}
}

// ReplaySource reads newline-delimited DetectionBatch JSON, as written
// by the vision service's capture log. It feeds frames as fast as the
// pipeline consumes them; the frame timestamps carry the real timing.
type ReplaySource struct {
	cameraID string
	scanner  *bufio.Scanner
	line     int
}

// NewReplaySource reads batches from r, keeping only those for
// cameraID. An empty cameraID keeps everything.
func NewReplaySource(cameraID string, r io.Reader) *ReplaySource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &ReplaySource{cameraID: cameraID, scanner: sc}
}

// Next returns the next matching frame, or io.EOF when the log ends.
func (s *ReplaySource) Next(ctx context.Context) (Frame, error) {
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		s.line++
		data := s.scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var batch events.DetectionBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			return Frame{}, fmt.Errorf("replay line %d: %w", s.line, err)
		}
		if s.cameraID != "" && batch.Camera != s.cameraID {
			continue
		}
		return Frame{Detections: batch.Detections, Time: batch.Timestamp}, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("replay read: %w", err)
	}
	return Frame{}, io.EOF
}
