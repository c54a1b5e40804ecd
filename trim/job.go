package trim

import "time"

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Job is one queued trim of a recording.
type Job struct {
	ID          string    `json:"id"`
	RecordingID string    `json:"recording_id,omitempty"`
	InputPath   string    `json:"input_path"`
	OutputPath  string    `json:"output_path"`
	StartMs     int64     `json:"start_ms"`
	EndMs       int64     `json:"end_ms"`
	State       JobState  `json:"state"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}
