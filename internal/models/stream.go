package models

import (
	"fmt"
	"strings"
	"time"
)

// StreamJob is one declared intent to re-stream a local video file to an
// RTMP ingest on a schedule. VideoPath is immutable after creation; Duration
// is display-only and does not bound execution (the encoder loops its input
// until it is stopped or dies).
type StreamJob struct {
	ID             int       `json:"id"`
	VideoPath      string    `json:"video_path"`
	Duration       string    `json:"duration,omitempty"`
	ScheduledStart string    `json:"scheduled_start"`
	StreamKey      string    `json:"stream_key"`
	Vertical       bool      `json:"vertical"`
	Quality        Quality   `json:"quality"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// MaskedKey returns the stream key safe for display: first four characters
// followed by asterisks. Keys shorter than five characters are fully masked.
func (j *StreamJob) MaskedKey() string {
	if len(j.StreamKey) > 4 {
		return j.StreamKey[:4] + "****"
	}
	return "****"
}

// Validate checks the fields required before a job may be created.
func (j *StreamJob) Validate() error {
	if strings.TrimSpace(j.VideoPath) == "" {
		return fmt.Errorf("video path is required")
	}
	if strings.TrimSpace(j.StreamKey) == "" {
		return fmt.Errorf("stream key is required")
	}
	if !j.Quality.Valid() {
		return fmt.Errorf("unknown quality %q (want low, medium or high)", j.Quality)
	}
	if _, err := time.Parse("15:04", j.ScheduledStart); err != nil {
		return fmt.Errorf("scheduled start %q is not HH:MM", j.ScheduledStart)
	}
	return nil
}

// ActiveRecord links a job to its running encoder process. It lives in
// memory and in the durable active map so a restarted supervisor can
// reattach to processes it did not spawn.
type ActiveRecord struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}
