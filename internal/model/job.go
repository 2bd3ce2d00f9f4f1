package model

import "time"

// Job represents a background job in the system
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Payload     []byte     `json:"-"` // Stored as JSON
	Result      []byte     `json:"-"` // Stored as JSON
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RemoteJobID string     `json:"remoteJobId,omitempty"`
}

// Job types
const (
	JobTypeTranscode = "transcode"
)

// TranscodeJobPayload contains the data for a transcode job
type TranscodeJobPayload struct {
	InputPath  string     `json:"inputPath"`
	FileName   string     `json:"fileName"`
	PresetID   string     `json:"presetId"`
	OutputMode OutputMode `json:"outputMode"`
}

// TranscodeResult is stored on the job once transcoding succeeded
type TranscodeResult struct {
	FileName    string `json:"fileName"`
	FilePath    string `json:"filePath,omitempty"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	RemoteJobID string `json:"remoteJobId"`
	OutputURL   string `json:"outputUrl,omitempty"`
}
