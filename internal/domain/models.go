package domain

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further status transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

const (
	SourceTypeUpload = "upload"
	SourceTypeURL    = "url"
)

const (
	DeviceCPU = "cpu"
	DeviceGPU = "gpu"
)

// Segment is a timestamped slice of the transcript.
type Segment struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
}

// Job is the persisted unit of transcription work.
type Job struct {
	ID                    string    `json:"id"`
	SourceName            string    `json:"source_name"`
	SourceType            string    `json:"source_type"`
	Status                Status    `json:"status"`
	Text                  string    `json:"text"`
	Segments              []Segment `json:"segments"`
	Language              string    `json:"language"`
	Device                string    `json:"device,omitempty"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds,omitempty"`
	Error                 string    `json:"error,omitempty"`
	AudioPath             string    `json:"audio_path,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TranscriptionResult is the fixed-shape output of one inference call.
type TranscriptionResult struct {
	Text                  string
	Segments              []Segment
	Language              string
	Device                string
	ProcessingTimeSeconds float64
}
